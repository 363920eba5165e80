package xmltree

import (
	"fmt"
	"html"
	"strings"
)

// Field is one element of a flat argument list. Value is either a scalar,
// rendered with fmt.Sprint, or nested Fields.
type Field struct {
	Name  string
	Value any
}

// Fields is an ordered argument list. UPnP actions are sensitive to argument
// order so a map is not used.
type Fields []Field

// F is shorthand for Field{name, value}.
func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// Get returns the value of the first field named name.
func (fs Fields) Get(name string) (any, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// With returns fs with name set to value, appending it if absent.
func (fs Fields) With(name string, value any) Fields {
	out := make(Fields, len(fs), len(fs)+1)
	copy(out, fs)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Field{Name: name, Value: value})
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&apos;",
)

// Escape encodes the five predefined XML entities.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Marshal renders fs as concatenated <name>value</name> elements.
func Marshal(fs Fields) string {
	var sb strings.Builder
	marshal(&sb, fs)
	return sb.String()
}

func marshal(sb *strings.Builder, fs Fields) {
	for _, f := range fs {
		sb.WriteString("<" + f.Name + ">")
		switch v := f.Value.(type) {
		case Fields:
			marshal(sb, v)
		case nil:
		case string:
			sb.WriteString(Escape(v))
		default:
			sb.WriteString(Escape(fmt.Sprint(v)))
		}
		sb.WriteString("</" + f.Name + ">")
	}
}

// Unescape decodes entity-encoded markup embedded as text, such as the
// LastChange value of an event or DIDL-Lite metadata.
func Unescape(s string) string {
	return html.UnescapeString(strings.ReplaceAll(s, "&nbsp;", " "))
}

// ParseEmbedded decodes and parses an entity-encoded document.
func ParseEmbedded(s string) (*Node, error) {
	return Parse(Unescape(s))
}
