package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

var schemeDefaultPorts = map[string]int{
	"http":  80,
	"https": 443,
}

// Endpoint is the network side of a URL.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int

	// netloc is the host[:port] exactly as written in the URL.
	netloc string
}

// Secure reports whether the endpoint needs a TLS wrapper.
func (e Endpoint) Secure() bool {
	return e.Scheme == "https"
}

// Netloc is the lower-cased authority used for the Host header.
func (e Endpoint) Netloc() string {
	if e.netloc != "" {
		return strings.ToLower(e.netloc)
	}
	return strings.ToLower(e.Address())
}

func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Base is scheme://netloc, with no trailing slash.
func (e Endpoint) Base() string {
	netloc := e.netloc
	if netloc == "" {
		netloc = e.Address()
	}
	return e.Scheme + "://" + netloc
}

func (e Endpoint) String() string {
	return e.Base()
}

// ParseURL splits raw into its endpoint and request path. Query strings stay
// on the path and fragments are dropped.
func ParseURL(raw string) (Endpoint, string, error) {
	var ep Endpoint

	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return ep, "", fmt.Errorf("invalid url %q: missing scheme", raw)
	}
	scheme = strings.ToLower(scheme)
	defaultPort, ok := schemeDefaultPorts[scheme]
	if !ok {
		return ep, "", fmt.Errorf("invalid url %q: unsupported scheme %q", raw, scheme)
	}

	netloc, path := rest, "/"
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		netloc, path = rest[:i], rest[i:]
	}
	path, _, _ = strings.Cut(path, "#")
	if netloc == "" {
		return ep, "", fmt.Errorf("invalid url %q: missing host", raw)
	}

	host, port := netloc, defaultPort
	if h, p, err := net.SplitHostPort(netloc); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return ep, "", fmt.Errorf("invalid url %q: bad port %q", raw, p)
		}
		host, port = h, n
	}

	return Endpoint{
		Scheme: scheme,
		Host:   host,
		Port:   port,
		netloc: netloc,
	}, path, nil
}

// ResolveReference joins ref against base the way device descriptions use
// relative control and event URLs.
func ResolveReference(base Endpoint, ref string) string {
	if strings.Contains(ref, "://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return base.Base() + ref
}
