package transport

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/forestnode-io/knob/pkg/xmltree"
	"golang.org/x/text/encoding/htmlindex"
)

var headerTerminator = []byte("\r\n\r\n")

// textMIMEs are decoded as text alongside every text/* type.
var textMIMEs = map[string]struct{}{
	"application/json": {},
}

// Response is a fully read HTTP response. It is not modified after it is
// returned to the caller.
type Response struct {
	Method     string
	URL        string
	StatusCode int
	Reason     string
	Header     HeaderMap
	// Body holds the decoded payload bytes, after chunked framing is removed.
	Body []byte
	// Text is Body decoded with the response charset. It is only set when
	// IsText is true.
	Text   string
	IsText bool
}

func (r *Response) String() string {
	return fmt.Sprintf("<Response status_code=%d %s>", r.StatusCode, r.Reason)
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return 200 <= r.StatusCode && r.StatusCode < 300
}

// BodyString returns Text when the body was decoded and the raw bytes
// otherwise.
func (r *Response) BodyString() string {
	if r.IsText {
		return r.Text
	}
	return string(r.Body)
}

// XML parses the body with xmltree. Responses declaring a non-xml content
// type are rejected.
func (r *Response) XML() (*xmltree.Node, error) {
	if ct := r.Header.Get("content-type"); ct != "" && !strings.Contains(ct, "xml") {
		return nil, fmt.Errorf("response content type %q is not xml", ct)
	}
	return xmltree.Parse(r.BodyString())
}

// ParseHeaderBlock splits an HTTP-style header block into its first line and
// its headers. Lines without a colon are skipped.
func ParseHeaderBlock(block string) (string, HeaderMap) {
	var (
		header = make(HeaderMap)
		lines  = strings.Split(block, "\n")
		first  = strings.TrimRight(lines[0], "\r")
	)
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		name, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(name) == "" {
			continue
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return first, header
}

func parseStatusLine(line string) (int, string, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return 0, "", &FramingError{Msg: fmt.Sprintf("bad status line %q", line)}
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", &FramingError{Msg: fmt.Sprintf("bad status code %q", parts[1]), Err: err}
	}
	var reason string
	if len(parts) == 3 {
		reason = parts[2]
	}
	return code, reason, nil
}

// ParseResponse frames a complete response held in memory.
func ParseResponse(raw []byte) (*Response, error) {
	idx := bytes.Index(raw, headerTerminator)
	if idx < 0 {
		return nil, &FramingError{Msg: "missing header terminator"}
	}
	br := &bodyReader{
		buf:  append([]byte(nil), raw[idx+len(headerTerminator):]...),
		fill: func() ([]byte, error) { return nil, io.EOF },
	}
	return assemble("", string(raw[:idx]), br)
}

func assemble(method, headerBlock string, br *bodyReader) (*Response, error) {
	statusLine, header := ParseHeaderBlock(headerBlock)
	code, reason, err := parseStatusLine(statusLine)
	if err != nil {
		return nil, err
	}

	body, err := readBody(method, code, header, br)
	if err != nil {
		return nil, err
	}

	r := Response{
		Method:     method,
		StatusCode: code,
		Reason:     reason,
		Header:     header,
		Body:       body,
	}
	r.Text, r.IsText = decodeText(header.Get("content-type"), body)
	return &r, nil
}

// bodyReader buffers body bytes, pulling more through fill on demand. Bytes
// read past the header terminator seed buf.
type bodyReader struct {
	buf  []byte
	fill func() ([]byte, error)
	eof  bool
}

func (b *bodyReader) more() error {
	if b.eof {
		return io.EOF
	}
	p, err := b.fill()
	b.buf = append(b.buf, p...)
	if err == io.EOF {
		b.eof = true
	}
	return err
}

// need fills until n bytes are buffered. It returns io.EOF if the peer closed
// first.
func (b *bodyReader) need(n int) error {
	for len(b.buf) < n {
		if err := b.more(); err != nil {
			return err
		}
	}
	return nil
}

func (b *bodyReader) readLine() (string, error) {
	for {
		if i := bytes.Index(b.buf, []byte(crlf)); i >= 0 {
			line := string(b.buf[:i])
			b.buf = b.buf[i+2:]
			return line, nil
		}
		if err := b.more(); err != nil {
			return "", err
		}
	}
}

func (b *bodyReader) rest() ([]byte, error) {
	for {
		if err := b.more(); err == io.EOF {
			return b.buf, nil
		} else if err != nil {
			return nil, err
		}
	}
}

func readBody(method string, code int, header HeaderMap, br *bodyReader) ([]byte, error) {
	if strings.Contains(strings.ToLower(header.Get("transfer-encoding")), "chunked") {
		return readChunked(br)
	}

	if cl, ok := header.Lookup("content-length"); ok {
		raw := header.Get("content-length")
		if _, multiple := cl.(Multiple); multiple {
			return nil, &FramingError{Msg: "repeated content-length"}
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			return nil, &FramingError{Msg: fmt.Sprintf("bad content-length %q", raw), Err: err}
		}
		if err := br.need(n); err != nil {
			if err == io.EOF {
				// peer closed early: keep what arrived
				return br.buf, nil
			}
			return nil, err
		}
		return br.buf[:n], nil
	}

	if strings.EqualFold(method, "HEAD") || code == 204 || code == 304 || (100 <= code && code < 200) {
		return nil, nil
	}

	return br.rest()
}

func readChunked(br *bodyReader) ([]byte, error) {
	var body []byte
	for {
		line, err := br.readLine()
		if err == io.EOF {
			return body, nil
		} else if err != nil {
			return nil, err
		}

		sizeField, _, _ := strings.Cut(line, ";")
		size, err := strconv.ParseUint(strings.TrimSpace(sizeField), 16, 31)
		if err != nil {
			return nil, &FramingError{Msg: fmt.Sprintf("bad chunk size %q", line), Err: err}
		}

		if size == 0 {
			// drain trailers up to the final empty line
			for {
				trailer, err := br.readLine()
				if err == io.EOF || trailer == "" {
					return body, nil
				} else if err != nil {
					return nil, err
				}
			}
		}

		n := int(size)
		if err := br.need(n + 2); err != nil {
			if err == io.EOF {
				if len(br.buf) > n {
					return append(body, br.buf[:n]...), nil
				}
				return append(body, br.buf...), nil
			}
			return nil, err
		}
		if !bytes.Equal(br.buf[n:n+2], []byte(crlf)) {
			return nil, &FramingError{Msg: "chunk not terminated by CRLF"}
		}
		body = append(body, br.buf[:n]...)
		br.buf = br.buf[n+2:]
	}
}

// decodeText decodes text/* and JSON bodies, latin-1 unless a charset
// parameter says otherwise. An unknown charset leaves the body undecoded.
func decodeText(contentType string, body []byte) (string, bool) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	mime, params, _ := strings.Cut(contentType, ";")
	mime = strings.ToLower(strings.TrimSpace(mime))

	var charset string
	if _, ok := textMIMEs[mime]; ok || strings.HasPrefix(mime, "text/") {
		charset = "latin1"
	}
	for _, param := range strings.Split(params, ";") {
		name, value, found := strings.Cut(param, "=")
		if found && strings.EqualFold(strings.TrimSpace(name), "charset") {
			charset = strings.Trim(strings.TrimSpace(value), `"'`)
		}
	}
	if charset == "" {
		return "", false
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", false
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", false
	}
	return string(out), true
}
