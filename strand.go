// Package strand is an HTTP/1.1 server built around a per-connection event loop.
package strand

import (
	"crypto/tls"
	"log"
	"net"

	"github.com/indigo-web/strand/accesslog"
	"github.com/indigo-web/strand/config"
	"github.com/indigo-web/strand/http"
	"github.com/indigo-web/strand/internal/protocol/http1"
	"github.com/indigo-web/strand/transport"
)

// Logger is implemented by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

type secureListener struct {
	addr   string
	config func() (*tls.Config, error)
}

// App is the server application. It's configured via chained calls before Serve.
type App struct {
	addr    string
	cfg     *config.Config
	logger  Logger
	access  *accesslog.Log
	secure  []secureListener
	onStart func()
	sup     transport.Supervisor
}

// New returns a new App listening plain HTTP at the address.
func New(addr string) *App {
	return &App{
		addr:   addr,
		cfg:    config.Default(),
		logger: log.Default(),
		sup:    transport.NewSupervisor(),
	}
}

// Tune replaces the default config.
func (a *App) Tune(cfg *config.Config) *App {
	a.cfg = cfg
	return a
}

// Logger replaces the default logger writing to stderr.
func (a *App) Logger(logger Logger) *App {
	a.logger = logger
	return a
}

// AccessLog enables recording every finished exchange.
func (a *App) AccessLog(format accesslog.Formatter, out accesslog.Printer) *App {
	a.access = accesslog.New(format, out)
	return a
}

// NotifyOnStart calls the callback once all the listeners are bound.
func (a *App) NotifyOnStart(cb func()) *App {
	a.onStart = cb
	return a
}

// TLS adds an HTTPS listener using the certificate and key files.
func (a *App) TLS(addr, cert, key string) *App {
	a.secure = append(a.secure, secureListener{
		addr: addr,
		config: func() (*tls.Config, error) {
			certificate, err := tls.LoadX509KeyPair(cert, key)
			if err != nil {
				return nil, err
			}

			return &tls.Config{Certificates: []tls.Certificate{certificate}}, nil
		},
	})

	return a
}

// AutoTLS adds an HTTPS listener obtaining certificates for the domains via ACME. Without
// domains, a self-signed certificate is generated instead, which is only useful for local
// development.
func (a *App) AutoTLS(addr string, domains ...string) *App {
	a.secure = append(a.secure, secureListener{
		addr: addr,
		config: func() (*tls.Config, error) {
			return autoTLSConfig(a.logger, domains)
		},
	})

	return a
}

// Addrs returns the addresses of all the listeners, plain one first. It's meaningful only
// after the start notification.
func (a *App) Addrs() []net.Addr {
	return a.sup.Addrs()
}

// Serve binds all the listeners and serves the handler until Stop is called or one of
// the listeners fails.
func (a *App) Serve(handler http.Handler) error {
	configs := make([]*tls.Config, len(a.secure))
	for i, l := range a.secure {
		tlsConfig, err := l.config()
		if err != nil {
			return err
		}

		configs[i] = tlsConfig
	}

	if err := a.sup.Add(a.addr, transport.NewTCP(), a.onConn(handler)); err != nil {
		return err
	}

	for i, l := range a.secure {
		if err := a.sup.Add(l.addr, transport.NewTLS(configs[i]), a.onConn(handler)); err != nil {
			return err
		}
	}

	if a.onStart != nil {
		a.onStart()
	}

	return a.sup.Run(a.cfg.NET)
}

// Stop stops accepting new connections and blocks until the open ones are closed.
func (a *App) Stop() {
	a.sup.Stop()
}

func (a *App) onConn(handler http.Handler) func(net.Conn) {
	return func(conn net.Conn) {
		c := transport.NewConn(conn, a.cfg.NET, a.logger)
		c.Serve(http1.NewChannel(a.cfg, c, c, handler, a.logger, a.exchangeDone))
	}
}

func (a *App) exchangeDone(e *http.Exchange) {
	if a.access != nil {
		a.access.Record(e)
	}
}
