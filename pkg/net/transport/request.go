package transport

import (
	"bytes"
	"strconv"
	"strings"
)

const crlf = "\r\n"

// Request is a single outbound HTTP/1.1 request.
type Request struct {
	Method string
	URL    string
	Header Header
	Body   []byte
}

func NewRequest(method, url string, header Header, body []byte) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Header: header.Clone(),
		Body:   body,
	}
}

// format renders the request as it goes on the wire. Host and Connection are
// always set by the transport, and Content-Length whenever there is a body.
func (r *Request) format(ep Endpoint, path string) []byte {
	header := r.Header.Clone()
	header.Set("Host", ep.Netloc())
	header.Set("Connection", "close")
	if 0 < len(r.Body) {
		header.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}

	var buf bytes.Buffer
	buf.WriteString(strings.ToUpper(r.Method) + " " + path + " HTTP/1.1" + crlf)
	for _, f := range header {
		buf.WriteString(f.Name + ": " + f.Value + crlf)
	}
	buf.WriteString(crlf)
	buf.Write(r.Body)

	return buf.Bytes()
}
