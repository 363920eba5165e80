package transport

import (
	"sort"
	"strings"
)

// HeaderValue is either a Single value or, for repeated headers, Multiple
// values in the order they were received.
type HeaderValue interface {
	isHeaderValue()
}

type Single string

func (Single) isHeaderValue() {}

type Multiple []string

func (Multiple) isHeaderValue() {}

// HeaderMap maps lower-cased header names to their values.
type HeaderMap map[string]HeaderValue

// Add records a value for name. A second value for the same name turns the
// entry into a Multiple.
func (h HeaderMap) Add(name, value string) {
	name = strings.ToLower(name)
	switch existing := h[name].(type) {
	case nil:
		h[name] = Single(value)
	case Single:
		h[name] = Multiple{string(existing), value}
	case Multiple:
		h[name] = append(existing, value)
	}
}

// Set replaces any value recorded for name.
func (h HeaderMap) Set(name, value string) {
	h[strings.ToLower(name)] = Single(value)
}

func (h HeaderMap) Lookup(name string) (HeaderValue, bool) {
	v, ok := h[strings.ToLower(name)]
	return v, ok
}

func (h HeaderMap) Has(name string) bool {
	_, ok := h.Lookup(name)
	return ok
}

// Get returns the first value for name, or "".
func (h HeaderMap) Get(name string) string {
	if vs := h.Values(name); len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values returns every value for name in received order.
func (h HeaderMap) Values(name string) []string {
	switch v := h[strings.ToLower(name)].(type) {
	case Single:
		return []string{string(v)}
	case Multiple:
		out := make([]string, len(v))
		copy(out, v)
		return out
	}
	return nil
}

// Del removes name and returns whether it was present.
func (h HeaderMap) Del(name string) bool {
	name = strings.ToLower(name)
	_, ok := h[name]
	delete(h, name)
	return ok
}

// Flatten returns the map as name to value list, for logging and JSON output.
func (h HeaderMap) Flatten() map[string][]string {
	out := make(map[string][]string, len(h))
	for name := range h {
		out[name] = h.Values(name)
	}
	return out
}

// Names returns the header names in sorted order.
func (h HeaderMap) Names() []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HeaderField is a request header. Requests keep their headers in the order
// they were set.
type HeaderField struct {
	Name  string
	Value string
}

type Header []HeaderField

// Set replaces the first field matching name case-insensitively, or appends.
func (h *Header) Set(name, value string) {
	for i := range *h {
		if strings.EqualFold((*h)[i].Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, HeaderField{Name: name, Value: value})
}

func (h Header) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

func (h Header) Clone() Header {
	out := make(Header, len(h))
	copy(out, h)
	return out
}
