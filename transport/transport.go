package transport

import (
	"net"

	"github.com/indigo-web/strand/config"
)

// Listener accepts connections and hands each of them to the callback on its own goroutine.
type Listener interface {
	Bind(addr string) error
	Listen(cfg config.NET, cb func(conn net.Conn)) error
	// Stop makes Listen return at the next accept loop interruption.
	Stop()
	Close()
	// Wait blocks until all the callbacks return.
	Wait()
	Addr() net.Addr
}
