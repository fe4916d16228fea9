package http1

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/strand/config"
	"github.com/indigo-web/strand/http"
	"github.com/indigo-web/strand/http/proto"
	"github.com/indigo-web/strand/stats"
	"github.com/indigo-web/utils/strcomp"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/net/http/httpguts"
)

var (
	badRequestResponse = []byte("HTTP/1.1 400 Bad Request\r\n\r\n")
	continueResponse   = []byte("HTTP/1.1 100 Continue\r\n\r\n")
)

type lineState uint8

const (
	// eHeaders means the request line was already received.
	eHeaders lineState = iota
	// eRequestLine awaits the request line. A single empty line is tolerated.
	eRequestLine
	// eRequestLineNoEmpty awaits the request line after an empty line was already skipped.
	eRequestLineNoEmpty
)

// Channel is a single HTTP/1.1 connection. It parses the incoming byte stream into
// exchanges, dispatches them one at a time and enforces the connection's lifecycle.
//
// Every method must be called from the connection's event loop only.
type Channel struct {
	cfg       *config.Config
	transport Transport
	network   NetworkProducer
	reactor   Reactor
	handler   http.Handler
	logger    Logger
	onDone    func(*http.Exchange)
	id        string

	acc   *accumulator
	buf   []byte
	inbuf []byte
	busy  bool

	raw       bool
	decoder   Decoder
	lineState lineState
	// the request line is kept aside until the request is dispatched
	method, target, version string

	queue           []*http.Exchange
	handlingRequest bool
	pipeline        *bytebufferpool.ByteBuffer
	persistent      bool

	waitingForTransport bool
	readPaused          bool
	disconnecting       bool
	lost                bool

	timeout, savedTimeout time.Duration
	idle, abort           DelayedCall

	producer          http.PushProducer
	producerStreaming bool
}

// NewChannel returns a channel serving the handler. onDone, if not nil, is called for
// every finished exchange.
func NewChannel(
	cfg *config.Config,
	transport Transport,
	reactor Reactor,
	handler http.Handler,
	logger Logger,
	onDone func(*http.Exchange),
) *Channel {
	network := transport.Producer()
	if network == nil {
		network = noPushProducer{}
	}

	return &Channel{
		cfg:        cfg,
		transport:  transport,
		network:    network,
		reactor:    reactor,
		handler:    handler,
		logger:     logger,
		onDone:     onDone,
		id:         uniuri.NewLen(8),
		acc:        newAccumulator(cfg.Headers),
		buf:        make([]byte, 0, cfg.NET.ReadBufferSize),
		lineState:  eRequestLine,
		persistent: true,
	}
}

// ConnectionMade arms the idle timeout. Must be called once before any data is fed.
func (c *Channel) ConnectionMade() {
	c.setTimeout(c.cfg.NET.IdleTimeout)
}

// DataReceived feeds the data received from the peer. The data is copied, therefore the
// slice may be reused once the call returns.
func (c *Channel) DataReceived(data []byte) {
	if c.disconnecting {
		return
	}

	if c.handlingRequest {
		c.bufferPipelined(data)
		return
	}

	c.receive(data)
	c.process()
}

// ConnectionLost must be called exactly once the connection is closed for whatever reason.
// The reason is reported to every exchange which hasn't been finished yet.
func (c *Channel) ConnectionLost(reason error) {
	if c.lost {
		return
	}

	c.lost = true
	c.disconnecting = true
	c.setTimeout(0)

	if c.producer != nil {
		c.producer.StopProducing()
		c.producer = nil
	}

	cause := reason
	if c.decoder != nil {
		if err := c.decoder.NoMoreData(); err != nil {
			cause = fmt.Errorf("%w: %w", err, reason)
		}

		c.decoder = nil
	}

	queue := c.queue
	c.queue = nil

	for i, e := range queue {
		if i == len(queue)-1 {
			e.ConnectionLost(cause)
		} else {
			e.ConnectionLost(reason)
		}
	}

	if c.abort != nil {
		c.abort.Cancel()
		c.abort = nil
	}

	if c.pipeline != nil {
		bytebufferpool.Put(c.pipeline)
		c.pipeline = nil
	}

	c.inbuf = nil
}

// receive appends the data to the unprocessed input, reusing the buffer whenever it's
// drained.
func (c *Channel) receive(data []byte) {
	if len(c.inbuf) == 0 && !c.busy {
		c.inbuf = c.buf[:0]
	}

	c.inbuf = append(c.inbuf, data...)
	if !c.busy && len(c.inbuf) == len(data) {
		c.buf = c.inbuf[:0]
	}
}

func (c *Channel) process() {
	if c.busy {
		return
	}

	c.busy = true
	defer func() {
		c.busy = false
	}()

	for len(c.inbuf) > 0 && !c.disconnecting {
		if c.handlingRequest {
			c.bufferPipelined(c.inbuf)
			c.inbuf = c.inbuf[:0]
			return
		}

		if c.raw {
			data := c.inbuf
			c.inbuf = c.inbuf[:0]
			c.resetTimeout()

			if err := c.decoder.Feed(data); err != nil {
				c.badRequest()
				return
			}

			continue
		}

		eol := bytes.Index(c.inbuf, crlf)
		if eol == -1 {
			if len(c.inbuf) > c.cfg.NET.MaxLineLength {
				c.loseConnection()
			}

			return
		}

		if eol > c.cfg.NET.MaxLineLength {
			c.loseConnection()
			return
		}

		line := c.inbuf[:eol]
		c.inbuf = c.inbuf[eol+len(crlf):]
		c.lineReceived(line)
	}
}

func (c *Channel) lineReceived(line []byte) {
	c.resetTimeout()

	if err := c.acc.Account(line); err != nil {
		c.badRequest()
		return
	}

	if c.lineState != eHeaders {
		if len(line) == 0 && c.lineState == eRequestLine {
			c.lineState = eRequestLineNoEmpty
			return
		}

		e := http.NewExchange(c, c.cfg)
		c.queue = append(c.queue, e)
		c.acc.Begin(e.Headers)
		c.lineState = eHeaders

		method, target, version, err := requestLine(line)
		if err != nil {
			c.badRequest()
			return
		}

		c.method, c.target, c.version = method, target, version
		return
	}

	done, err := c.acc.Line(line)
	if err != nil {
		c.badRequest()
		return
	}

	if !done {
		return
	}

	c.allHeadersReceived()

	switch f, length := c.acc.Framing(); {
	case f == framingChunked:
		c.decoder = NewChunkedDecoder(c.cfg.Chunked.MaxSizeLine, c.bodyChunk, c.finishBody)
		c.raw = true
	case f == framingLength && length > 0:
		c.decoder = NewIdentityDecoder(length, c.bodyChunk, c.finishBody)
		c.raw = true
	default:
		c.allContentReceived()
	}
}

func (c *Channel) allHeadersReceived() {
	e := c.queue[len(c.queue)-1]
	c.persistent = c.checkPersistence(e)

	length := int64(0)
	if f, l := c.acc.Framing(); f != framingNone {
		length = l
	}

	e.GotLength(length)

	expect, found := e.Headers.Get("expect")
	if found && strcomp.EqualFold(expect, "100-continue") && c.version == proto.HTTP11 {
		c.transport.Write(continueResponse)
	}
}

// checkPersistence tells whether the connection may be kept alive after the exchange.
// Only HTTP/1.1 connections are persistent, unless the client asks to close it.
func (c *Channel) checkPersistence(e *http.Exchange) bool {
	if c.version != proto.HTTP11 {
		return false
	}

	if httpguts.HeaderValuesContainsToken(e.Headers.ValuesSlice("connection"), "close") {
		e.SetHeader("Connection", "close")
		return false
	}

	return true
}

func (c *Channel) bodyChunk(data []byte) {
	c.queue[len(c.queue)-1].HandleContentChunk(data)
}

func (c *Channel) finishBody(extra []byte) {
	if c.lost {
		return
	}

	// extra must be in place before the dispatch, as the handler may finish synchronously
	// and bring pipelined data in.
	c.inbuf = append(c.inbuf[:0], extra...)
	c.allContentReceived()
}

func (c *Channel) allContentReceived() {
	method, target, version := c.method, c.target, c.version
	c.method, c.target, c.version = "", "", ""
	c.acc.Reset()
	c.lineState = eRequestLine
	c.decoder = nil
	c.raw = false

	c.savedTimeout = c.setTimeout(0)
	c.handlingRequest = true

	e := c.queue[len(c.queue)-1]
	e.RequestReceived(method, target, version)
	c.handler.Serve(e)
}

func (c *Channel) bufferPipelined(data []byte) {
	if c.pipeline == nil {
		c.pipeline = bytebufferpool.Get()
	}

	_, _ = c.pipeline.Write(data)

	if c.pipeline.Len() > c.cfg.NET.EagerReadWatermark && !c.waitingForTransport {
		// the head-of-line request is still being handled. Apply backpressure to the peer
		// until it's done.
		c.pauseReading()
	}
}

// RequestDone is called by the exchange once it's finished. The exchange must be the
// oldest one.
func (c *Channel) RequestDone(e *http.Exchange) {
	if len(c.queue) == 0 || c.queue[0] != e {
		panic("BUG: RequestDone called on an exchange which isn't the head of the queue")
	}

	c.queue[0] = nil
	c.queue = c.queue[1:]

	if c.producer != nil {
		c.logger.Printf("[%s] producer was not unregistered for %s", c.id, e.Target)
		c.UnregisterProducer()
	}

	stats.Exchanges.Add(1)
	if c.onDone != nil {
		c.onDone(e)
	}

	if !c.waitingForTransport {
		c.resumeReading()
	}

	if !c.persistent {
		c.loseConnection()
		return
	}

	c.handlingRequest = false
	if c.savedTimeout > 0 {
		c.setTimeout(c.savedTimeout)
	}

	if c.pipeline != nil {
		pipeline := c.pipeline
		c.pipeline = nil
		c.receive(pipeline.B)
		bytebufferpool.Put(pipeline)
	}

	c.process()
}

// PauseProducing is called by the transport when its outbound buffer is saturated.
func (c *Channel) PauseProducing() {
	c.waitingForTransport = true

	if c.producer != nil {
		c.producer.PauseProducing()
	}

	if !c.handlingRequest {
		c.pauseReading()
	}
}

// ResumeProducing is called by the transport once its outbound buffer is drained.
func (c *Channel) ResumeProducing() {
	c.waitingForTransport = false

	if c.producer != nil {
		c.producer.ResumeProducing()
	}

	if !c.handlingRequest {
		c.resumeReading()
	}
}

// StopProducing is called by the transport when the connection is going away.
func (c *Channel) StopProducing() {
	if c.producer != nil {
		c.producer.StopProducing()
	}
}

func (c *Channel) RegisterProducer(producer http.PullProducer, streaming bool) {
	if c.producer != nil {
		panic(fmt.Sprintf(
			"BUG: cannot register producer %T, because producer %T was never unregistered",
			producer, c.producer,
		))
	}

	if streaming {
		push, ok := producer.(http.PushProducer)
		if !ok {
			panic(fmt.Sprintf("BUG: streaming producer %T doesn't implement http.PushProducer", producer))
		}

		c.producer, c.producerStreaming = push, true
		if c.waitingForTransport {
			push.PauseProducing()
		}

		return
	}

	adapter := newPullToPush(producer, c.reactor)
	c.producer, c.producerStreaming = adapter, false
	if c.waitingForTransport {
		adapter.PauseProducing()
	}

	adapter.StartStreaming()
}

func (c *Channel) UnregisterProducer() {
	if c.producer == nil {
		return
	}

	if !c.producerStreaming {
		c.producer.(*pullToPush).StopStreaming()
	}

	c.producer = nil
	c.producerStreaming = false
}

func (c *Channel) Write(data []byte) {
	c.transport.Write(data)
}

func (c *Channel) WriteSequence(data [][]byte) {
	c.transport.WriteSequence(data)
}

func (c *Channel) Peer() net.Addr {
	return c.transport.Peer()
}

func (c *Channel) Host() net.Addr {
	return c.transport.Host()
}

func (c *Channel) Post(fn func()) {
	c.reactor.Post(fn)
}

// Persistent tells whether the connection is going to be kept alive after the current
// exchange.
func (c *Channel) Persistent() bool {
	return c.persistent
}

func (c *Channel) badRequest() {
	stats.BadRequests.Add(1)
	c.transport.Write(badRequestResponse)
	c.loseConnection()
}

func (c *Channel) loseConnection() {
	if c.disconnecting {
		return
	}

	c.disconnecting = true
	c.network.UnregisterProducer()
	c.transport.LoseConnection()
}

func (c *Channel) pauseReading() {
	if !c.readPaused {
		c.readPaused = true
		c.network.PauseProducing()
	}
}

func (c *Channel) resumeReading() {
	if c.readPaused {
		c.readPaused = false
		c.network.ResumeProducing()
	}
}

// setTimeout replaces the idle timeout, returning the previous one. Zero disables it.
func (c *Channel) setTimeout(d time.Duration) (previous time.Duration) {
	previous = c.timeout
	c.timeout = d

	if c.idle != nil {
		c.idle.Cancel()
		c.idle = nil
	}

	if d > 0 {
		c.idle = c.reactor.CallLater(d, c.timeoutConnection)
	}

	return previous
}

func (c *Channel) resetTimeout() {
	if c.idle != nil {
		c.idle.Reset(c.timeout)
	}
}

func (c *Channel) timeoutConnection() {
	c.idle = nil
	c.logger.Printf("[%s] timing out client: %s", c.id, c.transport.Peer())

	if c.cfg.NET.AbortTimeout > 0 {
		c.abort = c.reactor.CallLater(c.cfg.NET.AbortTimeout, c.forceAbort)
	}

	c.loseConnection()
}

func (c *Channel) forceAbort() {
	c.logger.Printf("[%s] forcibly timing out client: %s", c.id, c.transport.Peer())
	c.abort = nil
	c.transport.AbortConnection()
}
