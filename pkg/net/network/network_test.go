package network

import (
	"testing"

	"github.com/matryer/is"
)

func TestCallbackURL(t *testing.T) {
	is := is.New(t)

	u, err := CallbackURL("127.0.0.1", 8080, "notify")
	is.NoErr(err)
	is.Equal(u, "http://127.0.0.1:8080/notify")
}

func TestHostAddresses_LoopbackLast(t *testing.T) {
	is := is.New(t)

	addrs, err := HostAddresses()
	is.NoErr(err)
	for i, a := range addrs {
		if a == "127.0.0.1" {
			for _, rest := range addrs[i:] {
				is.Equal(rest[:4], "127.")
			}
		}
	}
}
