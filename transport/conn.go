package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/indigo-web/strand/config"
	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/strand/internal/protocol/http1"
	"github.com/indigo-web/strand/stats"
)

var (
	_ http1.Transport       = new(Conn)
	_ http1.Reactor         = new(Conn)
	_ http1.NetworkProducer = new(Conn)
)

// Protocol consumes the events of a single connection.
type Protocol interface {
	ConnectionMade()
	DataReceived(data []byte)
	ConnectionLost(reason error)
	// PauseProducing is called when the outbound buffer grows above the high watermark.
	PauseProducing()
	// ResumeProducing is called when the outbound buffer drains below the low watermark.
	ResumeProducing()
}

// Logger is implemented by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Conn is an event loop serving a single net.Conn. Every protocol callback, every posted
// function and every delayed call runs on the goroutine which called Serve, so the protocol
// never needs locking. Reading and writing happen on their own goroutines.
type Conn struct {
	conn   net.Conn
	cfg    config.NET
	logger Logger
	proto  Protocol

	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}
	done  chan struct{}

	readMu     sync.Mutex
	readCond   *sync.Cond
	readPaused bool
	readStop   bool

	writeMu   sync.Mutex
	writeCond *sync.Cond
	outbox    [][]byte
	closing   bool
	writeStop bool

	// owned by the loop
	queued    int
	saturated bool
	streaming bool
	aborted   bool
	lost      bool
}

func NewConn(conn net.Conn, cfg config.NET, logger Logger) *Conn {
	c := &Conn{
		conn:      conn,
		cfg:       cfg,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		streaming: true,
	}

	c.readCond = sync.NewCond(&c.readMu)
	c.writeCond = sync.NewCond(&c.writeMu)

	return c
}

// Serve runs the loop until the connection is lost.
func (c *Conn) Serve(proto Protocol) {
	stats.Open.Add(1)
	defer stats.Open.Add(-1)

	c.proto = proto
	c.run(proto.ConnectionMade)

	go c.read()
	go c.write()

	for {
		select {
		case <-c.wake:
		case <-c.done:
			return
		}

		c.mu.Lock()
		tasks := c.tasks
		c.tasks = nil
		c.mu.Unlock()

		for _, task := range tasks {
			if c.lost {
				return
			}

			c.run(task)
		}
	}
}

// Post schedules the function on the loop. It's safe to call from any goroutine. Functions
// posted after the connection is lost are never called.
func (c *Conn) Post(fn func()) {
	select {
	case <-c.done:
		return
	default:
	}

	c.mu.Lock()
	c.tasks = append(c.tasks, fn)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// CallLater calls the function on the loop after the duration passes.
func (c *Conn) CallLater(d time.Duration, fn func()) http1.DelayedCall {
	call := &delayedCall{conn: c, fn: fn}
	call.arm(d)

	return call
}

func (c *Conn) Write(data []byte) {
	if c.lost || c.aborted {
		return
	}

	c.enqueue(append([]byte(nil), data...))
}

func (c *Conn) WriteSequence(data [][]byte) {
	if c.lost || c.aborted {
		return
	}

	var size int
	for _, piece := range data {
		size += len(piece)
	}

	buf := make([]byte, 0, size)
	for _, piece := range data {
		buf = append(buf, piece...)
	}

	c.enqueue(buf)
}

// LoseConnection closes the connection once everything queued is written.
func (c *Conn) LoseConnection() {
	c.writeMu.Lock()
	c.closing = true
	c.writeMu.Unlock()
	c.writeCond.Signal()
}

// AbortConnection closes the connection immediately, discarding the outbound buffer.
func (c *Conn) AbortConnection() {
	if c.lost || c.aborted {
		return
	}

	c.aborted = true
	c.shutdown(status.ErrConnectionAborted)
}

func (c *Conn) Peer() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Host() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Conn) Producer() http1.NetworkProducer {
	return c
}

// PauseProducing stops reading from the socket.
func (c *Conn) PauseProducing() {
	c.readMu.Lock()
	c.readPaused = true
	c.readMu.Unlock()
}

// ResumeProducing resumes reading from the socket.
func (c *Conn) ResumeProducing() {
	c.readMu.Lock()
	c.readPaused = false
	c.readMu.Unlock()
	c.readCond.Signal()
}

// UnregisterProducer stops notifying the protocol about the outbound buffer state.
func (c *Conn) UnregisterProducer() {
	c.streaming = false
}

func (c *Conn) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Printf("[%s] panic while serving: %v\n%s", c.conn.RemoteAddr(), r, debug.Stack())
			c.AbortConnection()
		}
	}()

	fn()
}

func (c *Conn) enqueue(data []byte) {
	if len(data) == 0 {
		return
	}

	c.writeMu.Lock()
	c.outbox = append(c.outbox, data)
	c.writeMu.Unlock()
	c.writeCond.Signal()

	c.queued += len(data)
	if !c.saturated && c.queued >= c.cfg.WriteBuffer.High {
		c.saturated = true
		if c.streaming {
			c.proto.PauseProducing()
		}
	}
}

func (c *Conn) written(n int) {
	c.queued -= n
	if c.saturated && c.queued <= c.cfg.WriteBuffer.Low {
		c.saturated = false
		if c.streaming && !c.lost {
			c.proto.ResumeProducing()
		}
	}
}

func (c *Conn) read() {
	buf := make([]byte, c.cfg.ReadBufferSize)

	for {
		c.readMu.Lock()
		for c.readPaused && !c.readStop {
			c.readCond.Wait()
		}

		stop := c.readStop
		c.readMu.Unlock()

		if stop {
			return
		}

		n, err := c.conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			c.Post(func() {
				if !c.lost {
					c.proto.DataReceived(data)
				}
			})
		}

		if err != nil {
			reason := readFailure(err)
			c.Post(func() {
				c.connectionLost(reason)
			})

			return
		}
	}
}

func (c *Conn) write() {
	for {
		c.writeMu.Lock()
		for len(c.outbox) == 0 && !c.closing && !c.writeStop {
			c.writeCond.Wait()
		}

		if c.writeStop {
			c.writeMu.Unlock()
			return
		}

		batch := net.Buffers(c.outbox)
		c.outbox = nil
		closing := c.closing
		c.writeMu.Unlock()

		if len(batch) == 0 && closing {
			c.shutdown(status.ErrConnectionDone)
			return
		}

		n, err := batch.WriteTo(c.conn)
		c.Post(func() {
			c.written(int(n))
		})

		if err != nil {
			c.shutdown(fmt.Errorf("%w: %w", status.ErrConnectionLost, err))
			return
		}
	}
}

// shutdown reports the loss before closing the socket, so the reason isn't overtaken by
// the read error the close causes.
func (c *Conn) shutdown(reason error) {
	c.Post(func() {
		c.connectionLost(reason)
	})

	_ = c.conn.Close()
}

func (c *Conn) connectionLost(reason error) {
	if c.lost {
		return
	}

	c.lost = true
	c.stop()
	c.run(func() {
		c.proto.ConnectionLost(reason)
	})
	close(c.done)
}

func (c *Conn) stop() {
	c.readMu.Lock()
	c.readStop = true
	c.readMu.Unlock()
	c.readCond.Broadcast()

	c.writeMu.Lock()
	c.writeStop = true
	c.outbox = nil
	c.writeMu.Unlock()
	c.writeCond.Broadcast()

	_ = c.conn.Close()
}

func readFailure(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return status.ErrConnectionDone
	}

	return fmt.Errorf("%w: %w", status.ErrConnectionLost, err)
}

type delayedCall struct {
	conn   *Conn
	fn     func()
	timer  *time.Timer
	gen    int
	called bool
}

func (d *delayedCall) arm(after time.Duration) {
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(after, func() {
		d.conn.Post(func() {
			d.fire(gen)
		})
	})
}

func (d *delayedCall) fire(gen int) {
	if d.called || gen != d.gen {
		return
	}

	d.called = true
	d.fn()
}

func (d *delayedCall) Reset(after time.Duration) {
	if d.called {
		return
	}

	d.timer.Stop()
	d.arm(after)
}

func (d *delayedCall) Cancel() {
	d.called = true
	d.timer.Stop()
}
