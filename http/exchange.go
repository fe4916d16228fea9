package http

import (
	"net"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/indigo-web/strand/config"
	"github.com/indigo-web/strand/http/cookie"
	"github.com/indigo-web/strand/http/date"
	"github.com/indigo-web/strand/http/method"
	"github.com/indigo-web/strand/http/proto"
	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/strand/internal/timer"
	"github.com/indigo-web/strand/kv"
	"github.com/indigo-web/strand/stats"
	"github.com/valyala/bytebufferpool"
)

var (
	crlf              = []byte("\r\n")
	chunkedTerminator = []byte("0\r\n\r\n")
)

// Exchange is a single request together with its response. Request fields are filled by
// the connection before the exchange is passed to the handler and must be treated as
// read-only afterwards.
//
// An exchange isn't safe for concurrent use. Handlers producing the response from other
// goroutines must hop back onto the connection via Post.
type Exchange struct {
	// Method is the request method as sent by the client.
	Method string
	// Target is the raw request target.
	Target string
	// Version is the protocol version token, e.g. HTTP/1.1.
	Version string
	// Headers holds request header pairs in the order of their appearance. Names are
	// lower-cased.
	Headers *kv.Storage
	// Body holds the request body.
	Body *Body
	// ResponseHeaders are sent on the first write. Changing them afterwards has no effect.
	ResponseHeaders *kv.Storage

	conn           Conn
	cfg            *config.Config
	path, query    string
	jar            cookie.Jar
	code           status.Code
	reason         string
	startedWriting bool
	chunked        bool
	suppressBody   bool
	finished       bool
	disconnected   bool
	cause          error
	sentLength     int64
	lastModified   time.Time
	etag           string
	cookies        []cookie.Cookie
	producer       PullProducer
	subscribers    []chan error
	received       time.Time
}

func NewExchange(conn Conn, cfg *config.Config) *Exchange {
	e := &Exchange{
		Headers:         kv.New(),
		Body:            newBody(false, ""),
		ResponseHeaders: kv.NewPrealloc(len(cfg.Headers.Default)),
		conn:            conn,
		cfg:             cfg,
		code:            status.OK,
		reason:          string(status.Text(status.OK)),
	}

	keys := make([]string, 0, len(cfg.Headers.Default))
	for key := range cfg.Headers.Default {
		keys = append(keys, key)
	}

	slices.Sort(keys)
	for _, key := range keys {
		e.ResponseHeaders.Add(key, cfg.Headers.Default[key])
	}

	return e
}

// GotLength is called by the connection once the request body length is known. Negative
// length means that it isn't known. Not intended to be used by users.
func (e *Exchange) GotLength(length int64) {
	spool := length < 0 || length >= e.cfg.Body.SpoolThreshold
	if spool {
		stats.Spooled.Add(1)
	}

	e.Body = newBody(spool, e.cfg.Body.SpoolDir)
}

// HandleContentChunk stores a piece of the request body. Not intended to be used by users.
func (e *Exchange) HandleContentChunk(data []byte) {
	_, _ = e.Body.Write(data)
}

// RequestReceived is called by the connection when the request is completely received,
// right before it's passed to the handler. Not intended to be used by users.
func (e *Exchange) RequestReceived(method, target, version string) {
	e.Method, e.Target, e.Version = method, target, version
	e.path, e.query, _ = strings.Cut(target, "?")
	e.received = timer.Now()
}

// ConnectionLost marks the exchange as disconnected and notifies the subscribers. Not
// intended to be used by users.
func (e *Exchange) ConnectionLost(reason error) {
	e.disconnected = true
	e.cause = reason
	_ = e.Body.Close()
	e.notify(reason)
}

// Path returns the target without the query.
func (e *Exchange) Path() string {
	return e.path
}

// Query returns the raw query, i.e. everything after the first question mark.
func (e *Exchange) Query() string {
	return e.query
}

// Header returns the first value of the request header.
func (e *Exchange) Header(name string) string {
	return e.Headers.Value(name)
}

// Cookie returns the value of the cookie received from the client.
func (e *Exchange) Cookie(name string) (value string, found bool) {
	if e.jar == nil {
		e.jar = cookie.NewJar()
		for header := range e.Headers.Values("cookie") {
			cookie.Parse(e.jar, header)
		}
	}

	return e.jar.Get(name)
}

// AddCookie adds a Set-Cookie header to the response.
func (e *Exchange) AddCookie(c cookie.Cookie) {
	e.cookies = append(e.cookies, c)
}

// SetResponseCode sets the response code along with its standard reason phrase.
func (e *Exchange) SetResponseCode(code status.Code) {
	e.SetResponseCodeWithReason(code, string(status.Text(code)))
}

func (e *Exchange) SetResponseCodeWithReason(code status.Code, reason string) {
	e.code, e.reason = code, reason
}

// Code returns the response code.
func (e *Exchange) Code() status.Code {
	return e.code
}

// SetHeader replaces all the values of the response header by a single one.
func (e *Exchange) SetHeader(name, value string) {
	e.ResponseHeaders.Set(name, value)
}

// AddHeader adds one more value of the response header.
func (e *Exchange) AddHeader(name, value string) {
	e.ResponseHeaders.Add(name, value)
}

// Redirect responds with 302 Found pointing to the url.
func (e *Exchange) Redirect(url string) {
	e.SetResponseCode(status.Found)
	e.SetHeader("Location", url)
}

// SetLastModified sets the Last-Modified response header, keeping the latest of the dates
// if called more than once. If the request is conditional and the client's copy is fresh,
// the response code is set to 304 and true is returned; the body must not be written
// in that case.
func (e *Exchange) SetLastModified(when time.Time) (cached bool) {
	if when.Nanosecond() != 0 {
		when = when.Truncate(time.Second).Add(time.Second)
	}

	if e.lastModified.IsZero() || e.lastModified.Before(when) {
		e.lastModified = when
	}

	value, found := e.Headers.Get("if-modified-since")
	if !found {
		return false
	}

	value, _, _ = strings.Cut(value, ";")
	since, err := date.Parse(value)
	if err != nil {
		return false
	}

	if !since.Before(e.lastModified) {
		e.SetResponseCode(status.NotModified)
		return true
	}

	return false
}

// SetETag sets the ETag response header. The tag must be quoted. If the request is
// conditional and matches the tag, the response code is set to either 304 (GET and HEAD)
// or 412, and true is returned; the body must not be written in that case.
func (e *Exchange) SetETag(tag string) (cached bool) {
	if len(tag) > 0 {
		e.etag = tag
	}

	value, found := e.Headers.Get("if-none-match")
	if !found {
		return false
	}

	tags := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	for _, t := range tags {
		if t == tag || t == "*" {
			if method.Safe(e.Method) {
				e.SetResponseCode(status.NotModified)
			} else {
				e.SetResponseCode(status.PreconditionFailed)
			}

			return true
		}
	}

	return false
}

// Peer returns the remote address.
func (e *Exchange) Peer() net.Addr {
	return e.conn.Peer()
}

// Host returns the local address the request was received at.
func (e *Exchange) Host() net.Addr {
	return e.conn.Host()
}

// SentLength returns the number of body bytes written so far, excluding the framing.
func (e *Exchange) SentLength() int64 {
	return e.sentLength
}

// Received returns the moment the request was completely received.
func (e *Exchange) Received() time.Time {
	return e.received
}

// Finished tells whether Finish was successfully called.
func (e *Exchange) Finished() bool {
	return e.finished
}

// Post schedules the function on the connection's event loop. It's the only method which
// may be called from any goroutine.
func (e *Exchange) Post(fn func()) {
	e.conn.Post(fn)
}

// Write writes the data to the response body. The first call sends the status line and
// the headers. Unless the response has Content-Length set, it's sent using the chunked
// transfer coding to HTTP/1.1 clients. Writes to a disconnected exchange are silently
// discarded.
func (e *Exchange) Write(data []byte) error {
	if e.finished {
		return status.ErrResponseFinished
	}

	if e.disconnected {
		return nil
	}

	if !e.startedWriting {
		e.startedWriting = true
		e.suppressBody = e.Method == method.HEAD || !status.HasBody(e.code)
		e.chunked = e.Version == proto.HTTP11 && !e.suppressBody && !e.ResponseHeaders.Has("content-length")
		e.writeHead()

		if e.suppressBody {
			return nil
		}
	}

	if e.suppressBody {
		return nil
	}

	e.sentLength += int64(len(data))
	if len(data) == 0 {
		return nil
	}

	if e.chunked {
		e.conn.WriteSequence([][]byte{
			strconv.AppendUint(make([]byte, 0, 16), uint64(len(data)), 16),
			crlf, data, crlf,
		})
	} else {
		e.conn.Write(data)
	}

	return nil
}

// Finish completes the response. If nothing was written, the headers are sent with an
// empty body.
func (e *Exchange) Finish() error {
	if e.disconnected {
		return status.ErrFinishedAfterDisconnect
	}

	if e.finished {
		return status.ErrResponseFinished
	}

	if !e.startedWriting {
		_ = e.Write(nil)
	}

	if e.chunked {
		e.conn.Write(chunkedTerminator)
	}

	e.finished = true
	e.producer = nil
	e.conn.RequestDone(e)
	_ = e.Body.Close()
	e.notify(nil)

	return nil
}

// NotifyFinish returns a channel which receives a single value: nil once the response is
// finished, or the cause if the connection was lost before that.
func (e *Exchange) NotifyFinish() <-chan error {
	ch := make(chan error, 1)

	switch {
	case e.finished:
		ch <- nil
	case e.disconnected:
		ch <- e.cause
	default:
		e.subscribers = append(e.subscribers, ch)
	}

	return ch
}

// RegisterProducer attaches the producer to the connection. Registering a second producer
// before unregistering the first one panics.
func (e *Exchange) RegisterProducer(producer PullProducer, streaming bool) {
	if e.producer != nil {
		panic("BUG: a producer is already registered on the exchange")
	}

	if e.disconnected {
		producer.StopProducing()
		return
	}

	e.producer = producer
	e.conn.RegisterProducer(producer, streaming)
}

func (e *Exchange) UnregisterProducer() {
	if e.producer == nil {
		return
	}

	e.producer = nil
	e.conn.UnregisterProducer()
}

func (e *Exchange) notify(err error) {
	for _, ch := range e.subscribers {
		ch <- err
	}

	e.subscribers = nil
}

func (e *Exchange) writeHead() {
	if !e.lastModified.IsZero() && !e.ResponseHeaders.Has("last-modified") {
		e.ResponseHeaders.Set("Last-Modified", date.Format(e.lastModified))
	}

	if len(e.etag) > 0 {
		e.ResponseHeaders.Set("ETag", e.etag)
	}

	buf := bytebufferpool.Get()
	buf.B = appendHead(buf.B, e)
	e.conn.Write(buf.B)
	bytebufferpool.Put(buf)
}
