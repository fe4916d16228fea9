package transport

import (
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/indigo-web/strand/config"
	"github.com/indigo-web/strand/http/status"
	"github.com/stretchr/testify/require"
)

type printer struct {
	mu    sync.Mutex
	lines []string
}

func (p *printer) Printf(format string, v ...any) {
	p.mu.Lock()
	p.lines = append(p.lines, fmt.Sprintf(format, v...))
	p.mu.Unlock()
}

// echo writes back everything it receives in upper case, reporting every event into
// the channel.
type echo struct {
	conn   *Conn
	events chan string
	lost   chan error
	onData func(data []byte)
	onMade func()
}

func newEcho(conn *Conn) *echo {
	return &echo{
		conn:   conn,
		events: make(chan string, 64),
		lost:   make(chan error, 1),
	}
}

func (e *echo) ConnectionMade() {
	e.events <- "made"
	if e.onMade != nil {
		e.onMade()
	}
}

func (e *echo) DataReceived(data []byte) {
	if e.onData != nil {
		e.onData(data)
		return
	}

	e.conn.Write([]byte(strings.ToUpper(string(data))))
}

func (e *echo) ConnectionLost(reason error) {
	e.lost <- reason
}

func (e *echo) PauseProducing() {
	e.events <- "pause"
}

func (e *echo) ResumeProducing() {
	e.events <- "resume"
}

func expectEvent(t *testing.T, events <-chan string, want string) {
	select {
	case got := <-events:
		require.Equal(t, want, got)
	case <-time.After(time.Second):
		require.Failf(t, "no event", "expected %q", want)
	}
}

func expectLost(t *testing.T, e *echo) error {
	select {
	case err := <-e.lost:
		return err
	case <-time.After(time.Second):
		require.Fail(t, "connection loss wasn't reported")
		return nil
	}
}

func readN(t *testing.T, conn net.Conn, n int) string {
	buf := make([]byte, n)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return string(buf)
}

type pipe struct {
	client net.Conn
	conn   *Conn
	proto  *echo
	logger *printer
	served chan struct{}
}

func newPipe(cfg config.NET, setup func(p *pipe)) *pipe {
	server, client := net.Pipe()
	p := &pipe{
		client: client,
		logger: new(printer),
		served: make(chan struct{}),
	}
	p.conn = NewConn(server, cfg, p.logger)
	p.proto = newEcho(p.conn)
	if setup != nil {
		setup(p)
	}

	go func() {
		p.conn.Serve(p.proto)
		close(p.served)
	}()

	return p
}

func (p *pipe) waitServed(t *testing.T) {
	select {
	case <-p.served:
	case <-time.After(time.Second):
		require.Fail(t, "the loop didn't stop")
	}
}

func TestConn(t *testing.T) {
	t.Run("echo", func(t *testing.T) {
		p := newPipe(config.Default().NET, nil)
		expectEvent(t, p.proto.events, "made")

		_, err := p.client.Write([]byte("hello"))
		require.NoError(t, err)
		require.Equal(t, "HELLO", readN(t, p.client, 5))

		require.NoError(t, p.client.Close())
		require.ErrorIs(t, expectLost(t, p.proto), status.ErrConnectionDone)
		p.waitServed(t)
	})

	t.Run("lose connection flushes", func(t *testing.T) {
		p := newPipe(config.Default().NET, func(p *pipe) {
			p.proto.onData = func([]byte) {
				p.conn.Write([]byte("bye"))
				p.conn.WriteSequence([][]byte{[]byte(", "), []byte("bye")})
				p.conn.LoseConnection()
			}
		})

		_, err := p.client.Write([]byte("x"))
		require.NoError(t, err)
		require.Equal(t, "bye, bye", readN(t, p.client, 8))

		_, err = p.client.Read(make([]byte, 1))
		require.ErrorIs(t, err, io.EOF)
		require.ErrorIs(t, expectLost(t, p.proto), status.ErrConnectionDone)
		p.waitServed(t)
	})

	t.Run("abort", func(t *testing.T) {
		p := newPipe(config.Default().NET, func(p *pipe) {
			p.proto.onData = func([]byte) {
				p.conn.AbortConnection()
				p.conn.Write([]byte("discarded"))
			}
		})

		_, err := p.client.Write([]byte("x"))
		require.NoError(t, err)
		require.ErrorIs(t, expectLost(t, p.proto), status.ErrConnectionAborted)
		p.waitServed(t)
	})

	t.Run("paused reading", func(t *testing.T) {
		received := make(chan string, 4)
		p := newPipe(config.Default().NET, func(p *pipe) {
			p.proto.onMade = p.conn.PauseProducing
			p.proto.onData = func(data []byte) {
				received <- string(data)
			}
		})

		written := make(chan error, 1)
		go func() {
			_, err := p.client.Write([]byte("data"))
			written <- err
		}()

		select {
		case <-received:
			require.Fail(t, "data was read while paused")
		case <-time.After(50 * time.Millisecond):
		}

		p.conn.Post(p.conn.ResumeProducing)
		require.NoError(t, <-written)
		require.Equal(t, "data", <-received)
		require.NoError(t, p.client.Close())
		p.waitServed(t)
	})

	t.Run("write backpressure", func(t *testing.T) {
		cfg := config.Default().NET
		cfg.WriteBuffer.High = 8
		cfg.WriteBuffer.Low = 0
		p := newPipe(cfg, func(p *pipe) {
			p.proto.onData = func([]byte) {
				p.conn.Write([]byte("0123"))
				p.conn.Write([]byte("4567"))
			}
		})
		expectEvent(t, p.proto.events, "made")

		_, err := p.client.Write([]byte("x"))
		require.NoError(t, err)
		expectEvent(t, p.proto.events, "pause")

		require.Equal(t, "01234567", readN(t, p.client, 8))
		expectEvent(t, p.proto.events, "resume")
		require.NoError(t, p.client.Close())
		p.waitServed(t)
	})

	t.Run("unregistered producer", func(t *testing.T) {
		cfg := config.Default().NET
		cfg.WriteBuffer.High = 1
		p := newPipe(cfg, func(p *pipe) {
			p.proto.onMade = p.conn.UnregisterProducer
		})
		expectEvent(t, p.proto.events, "made")

		_, err := p.client.Write([]byte("ab"))
		require.NoError(t, err)
		require.Equal(t, "AB", readN(t, p.client, 2))
		require.NoError(t, p.client.Close())
		expectLost(t, p.proto)
		require.Empty(t, p.proto.events)
	})

	t.Run("panic", func(t *testing.T) {
		p := newPipe(config.Default().NET, func(p *pipe) {
			p.proto.onData = func([]byte) {
				panic("boom")
			}
		})

		_, err := p.client.Write([]byte("x"))
		require.NoError(t, err)
		require.ErrorIs(t, expectLost(t, p.proto), status.ErrConnectionAborted)
		p.waitServed(t)

		p.logger.mu.Lock()
		defer p.logger.mu.Unlock()
		require.Len(t, p.logger.lines, 1)
		require.Contains(t, p.logger.lines[0], "panic while serving: boom")
	})

	t.Run("addresses", func(t *testing.T) {
		p := newPipe(config.Default().NET, nil)
		require.Equal(t, "pipe", p.conn.Peer().Network())
		require.Equal(t, "pipe", p.conn.Host().Network())
		require.Same(t, p.conn, p.conn.Producer())
		require.NoError(t, p.client.Close())
		p.waitServed(t)
	})
}

func TestDelayedCall(t *testing.T) {
	t.Run("fires on the loop", func(t *testing.T) {
		fired := make(chan struct{})
		p := newPipe(config.Default().NET, func(p *pipe) {
			p.proto.onMade = func() {
				p.conn.CallLater(10*time.Millisecond, func() {
					close(fired)
				})
			}
		})

		select {
		case <-fired:
		case <-time.After(time.Second):
			require.Fail(t, "the call didn't fire")
		}

		require.NoError(t, p.client.Close())
		p.waitServed(t)
	})

	t.Run("cancel", func(t *testing.T) {
		fired := make(chan struct{}, 1)
		p := newPipe(config.Default().NET, func(p *pipe) {
			p.proto.onMade = func() {
				call := p.conn.CallLater(10*time.Millisecond, func() {
					fired <- struct{}{}
				})
				call.Cancel()
				call.Reset(time.Millisecond)
			}
		})

		select {
		case <-fired:
			require.Fail(t, "cancelled call fired")
		case <-time.After(50 * time.Millisecond):
		}

		require.NoError(t, p.client.Close())
		p.waitServed(t)
	})

	t.Run("reset", func(t *testing.T) {
		fired := make(chan time.Time, 2)
		start := time.Now()
		p := newPipe(config.Default().NET, func(p *pipe) {
			p.proto.onMade = func() {
				call := p.conn.CallLater(20*time.Millisecond, func() {
					fired <- time.Now()
				})
				call.Reset(80 * time.Millisecond)
			}
		})

		select {
		case when := <-fired:
			require.GreaterOrEqual(t, when.Sub(start), 80*time.Millisecond)
		case <-time.After(time.Second):
			require.Fail(t, "the call didn't fire")
		}

		select {
		case <-fired:
			require.Fail(t, "the call fired twice")
		case <-time.After(50 * time.Millisecond):
		}

		require.NoError(t, p.client.Close())
		p.waitServed(t)
	})
}
