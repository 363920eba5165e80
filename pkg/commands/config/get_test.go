package config

import (
	"bytes"
	"testing"

	"github.com/matryer/is"
)

const doc = `# knob
server:
  port: 8099 # callback
control:
  services:
    - AVTransport
    - RenderingControl
`

func TestGet(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	is.NoErr(Get(&buf, []byte(doc), "$.server.port"))
	is.Equal(buf.String(), "8099\n")

	buf.Reset()
	is.NoErr(Get(&buf, []byte(doc), "$.control.services[1]"))
	is.Equal(buf.String(), "RenderingControl\n")

	buf.Reset()
	is.NoErr(Get(&buf, []byte(doc), "$.control.services"))
	is.Equal(buf.String(), "- AVTransport\n- RenderingControl\n")
}

func TestGet_Missing(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	is.True(Get(&buf, []byte(doc), "$.server.host") != nil)
	is.True(Get(&buf, []byte(doc), "$[") != nil)
}
