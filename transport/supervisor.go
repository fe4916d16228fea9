package transport

import (
	"net"
	"sync/atomic"

	"github.com/indigo-web/strand/config"
)

// Supervisor runs several listeners at once. Once any of them fails, the rest are stopped.
type Supervisor struct {
	stopped *atomic.Bool
	ls      []boundListener
	stopch  chan struct{}
}

func NewSupervisor() Supervisor {
	return Supervisor{
		stopped: new(atomic.Bool),
		stopch:  make(chan struct{}),
	}
}

// Add binds the listener. If binding fails, all the listeners bound before are closed.
func (s *Supervisor) Add(addr string, l Listener, cb func(net.Conn)) error {
	if err := l.Bind(addr); err != nil {
		s.close()
		return err
	}

	s.ls = append(s.ls, boundListener{
		cb: cb,
		l:  l,
	})

	return nil
}

// Addrs returns the addresses of bound listeners in the order they were added.
func (s *Supervisor) Addrs() []net.Addr {
	addrs := make([]net.Addr, len(s.ls))
	for i, l := range s.ls {
		addrs[i] = l.l.Addr()
	}

	return addrs
}

// Run blocks until either a listener fails or Stop is called.
func (s *Supervisor) Run(cfg config.NET) error {
	if len(s.ls) == 0 {
		return nil
	}

	errch := make(chan error)

	for _, l := range s.ls {
		go func(l boundListener) {
			errch <- l.l.Listen(cfg, l.cb)
		}(l)
	}

	select {
	case err := <-errch:
		s.stop()
		drain(errch, len(s.ls)-1)

		return err
	case <-s.stopch:
		s.stop()
		drain(errch, len(s.ls))
		s.stopch <- struct{}{}

		return nil
	}
}

// Stop makes Run return and blocks until it does.
func (s *Supervisor) Stop() {
	if !s.stopped.Load() {
		s.stopch <- struct{}{}
		<-s.stopch
	}
}

func (s *Supervisor) stop() {
	if s.stopped.Swap(true) {
		return
	}

	for _, l := range s.ls {
		l.l.Stop()
	}

	for _, l := range s.ls {
		l.l.Wait()
		l.l.Close()
	}
}

func (s *Supervisor) close() {
	for _, l := range s.ls {
		l.l.Close()
	}
}

type boundListener struct {
	cb func(conn net.Conn)
	l  Listener
}

func drain(ch <-chan error, n int) {
	for range n {
		<-ch
	}
}
