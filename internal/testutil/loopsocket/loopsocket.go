// Package loopsocket provides a real, connected net.Conn pair for tests
// that want to exercise netadapter.WebSocketSubscriber over an actual
// socket rather than an httptest server.
package loopsocket

import (
	"net"

	"github.com/prep/socketpair"
)

// New returns a connected pair of local Unix-domain sockets.
func New() (a, b net.Conn, err error) {
	return socketpair.New("unix")
}
