package transport

import (
	"crypto/tls"
	"net"
)

// TLS is a TCP listener terminating TLS. The handshake happens lazily on the connection's
// first read or write, so it never blocks the accept loop.
type TLS struct {
	config *tls.Config
	TCP
}

func NewTLS(config *tls.Config) *TLS {
	return &TLS{config: config}
}

func (t *TLS) Bind(addr string) error {
	tcp, err := bindTCP(addr)
	if err != nil {
		return err
	}

	t.TCP = newTCP(tlsAdapter{tcp, tls.NewListener(tcp, t.config)})

	return nil
}

type tlsAdapter struct {
	*net.TCPListener
	tls net.Listener
}

func (t tlsAdapter) Accept() (net.Conn, error) {
	return t.tls.Accept()
}
