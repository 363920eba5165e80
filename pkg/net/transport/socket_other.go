//go:build !unix

package transport

// DefaultSocketFactory falls back to net package sockets where raw
// descriptors are unavailable.
var DefaultSocketFactory SocketFactory = NewConnSocket
