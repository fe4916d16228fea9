package http

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/strand/config"
	"github.com/indigo-web/strand/http/cookie"
	"github.com/indigo-web/strand/http/status"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	data       []byte
	done       []*Exchange
	producer   PullProducer
	streaming  bool
	registered int
}

func (f *fakeConn) Write(data []byte) {
	f.data = append(f.data, data...)
}

func (f *fakeConn) WriteSequence(data [][]byte) {
	for _, piece := range data {
		f.Write(piece)
	}
}

func (f *fakeConn) RegisterProducer(producer PullProducer, streaming bool) {
	f.producer, f.streaming = producer, streaming
	f.registered++
}

func (f *fakeConn) UnregisterProducer() {
	f.producer = nil
}

func (f *fakeConn) RequestDone(e *Exchange) {
	f.done = append(f.done, e)
}

func (f *fakeConn) Peer() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321}
}

func (f *fakeConn) Host() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8080}
}

func (f *fakeConn) Post(fn func()) {
	fn()
}

func newExchange(method, version string) (*Exchange, *fakeConn) {
	conn := new(fakeConn)
	e := NewExchange(conn, config.Default())
	e.RequestReceived(method, "/", version)
	return e, conn
}

func dechunk(t *testing.T, data []byte) string {
	parser := chunkedbody.NewParser(chunkedbody.DefaultSettings())
	var body []byte

	for len(data) > 0 {
		chunk, extra, err := parser.Parse(data, false)
		body = append(body, chunk...)
		if err != nil {
			require.EqualError(t, err, io.EOF.Error())
			require.Empty(t, extra)
			break
		}

		data = extra
	}

	return string(body)
}

func splitResponse(t *testing.T, data []byte) (head, body string) {
	head, body, found := strings.Cut(string(data), "\r\n\r\n")
	require.True(t, found)
	return head + "\r\n\r\n", body
}

func TestExchange(t *testing.T) {
	t.Run("chunked response", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.1")
		require.NoError(t, e.Write([]byte("Hello, ")))
		require.NoError(t, e.Write(nil))
		require.NoError(t, e.Write([]byte("world!")))
		require.NoError(t, e.Finish())

		head, body := splitResponse(t, conn.data)
		require.Equal(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n", head)
		require.Equal(t, "7\r\nHello, \r\n6\r\nworld!\r\n0\r\n\r\n", body)
		require.Equal(t, "Hello, world!", dechunk(t, []byte(body)))
		require.Equal(t, int64(13), e.SentLength())
		require.Equal(t, []*Exchange{e}, conn.done)
	})

	t.Run("content length", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.1")
		e.SetHeader("Content-Length", "5")
		require.NoError(t, e.Write([]byte("hello")))
		require.NoError(t, e.Finish())
		require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello", string(conn.data))
	})

	t.Run("HTTP/1.0 is never chunked", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.0")
		require.NoError(t, e.Write([]byte("hello")))
		require.NoError(t, e.Finish())
		require.Equal(t, "HTTP/1.0 200 OK\r\n\r\nhello", string(conn.data))
	})

	t.Run("finish without writes", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.1")
		require.NoError(t, e.Finish())
		require.Equal(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\n", string(conn.data))
	})

	t.Run("HEAD suppresses body", func(t *testing.T) {
		e, conn := newExchange("HEAD", "HTTP/1.1")
		require.NoError(t, e.Write([]byte("hello")))
		require.NoError(t, e.Write([]byte("world")))
		require.NoError(t, e.Finish())
		require.Equal(t, "HTTP/1.1 200 OK\r\n\r\n", string(conn.data))
		require.Zero(t, e.SentLength())
	})

	for _, code := range []status.Code{status.NoContent, status.NotModified} {
		t.Run("no body for "+string(status.Text(code)), func(t *testing.T) {
			e, conn := newExchange("GET", "HTTP/1.1")
			e.SetResponseCode(code)
			require.NoError(t, e.Write([]byte("hello")))
			require.NoError(t, e.Finish())
			head, body := splitResponse(t, conn.data)
			require.NotContains(t, head, "Transfer-Encoding")
			require.Empty(t, body)
		})
	}

	t.Run("finish is not idempotent", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.1")
		require.NoError(t, e.Finish())
		sent := len(conn.data)

		require.ErrorIs(t, e.Finish(), status.ErrResponseFinished)
		require.ErrorIs(t, e.Write([]byte("late")), status.ErrResponseFinished)
		require.Len(t, conn.data, sent)
		require.Len(t, conn.done, 1)
	})

	t.Run("disconnected", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.1")
		notify := e.NotifyFinish()
		e.ConnectionLost(status.ErrConnectionDone)

		require.ErrorIs(t, <-notify, status.ErrConnectionDone)
		require.NoError(t, e.Write([]byte("hello")))
		require.Empty(t, conn.data)
		require.ErrorIs(t, e.Finish(), status.ErrFinishedAfterDisconnect)
		require.Empty(t, conn.done)
		require.ErrorIs(t, <-e.NotifyFinish(), status.ErrConnectionDone)
	})

	t.Run("notify finish", func(t *testing.T) {
		e, _ := newExchange("GET", "HTTP/1.1")
		first, second := e.NotifyFinish(), e.NotifyFinish()
		require.NoError(t, e.Finish())
		require.NoError(t, <-first)
		require.NoError(t, <-second)
		require.NoError(t, <-e.NotifyFinish())
	})

	t.Run("headers and cookies", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.1")
		e.SetResponseCodeWithReason(status.NotFound, "Nope")
		e.SetHeader("Content-Length", "0")
		e.AddHeader("X-Multi", "a")
		e.AddHeader("X-Multi", "b")
		e.SetHeader("X-Evil", "a\r\nInjected: yes")
		e.SetHeader("Bad\r\nName", "dropped")
		e.AddCookie(cookie.New("session", "abc"))
		require.NoError(t, e.Finish())
		require.Equal(t,
			"HTTP/1.1 404 Nope\r\n"+
				"Content-Length: 0\r\n"+
				"X-Multi: a\r\n"+
				"X-Multi: b\r\n"+
				"X-Evil: a Injected: yes\r\n"+
				"Set-Cookie: session=abc\r\n"+
				"\r\n",
			string(conn.data),
		)
	})

	t.Run("header names spelling", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.1")
		e.SetHeader("content-length", "0")
		e.SetHeader("x-request-id", "42")
		e.SetHeader("etag", `"v1"`)
		e.SetHeader("WWW-AUTHENTICATE", "Basic")
		require.NoError(t, e.Finish())
		require.Equal(t,
			"HTTP/1.1 200 OK\r\n"+
				"Content-Length: 0\r\n"+
				"X-Request-Id: 42\r\n"+
				"ETag: \"v1\"\r\n"+
				"WWW-Authenticate: Basic\r\n"+
				"\r\n",
			string(conn.data),
		)
	})

	t.Run("default headers", func(t *testing.T) {
		cfg := config.Default()
		cfg.Headers.Default = map[string]string{
			"Server":       "strand",
			"Content-Type": "text/plain",
		}
		conn := new(fakeConn)
		e := NewExchange(conn, cfg)
		e.RequestReceived("GET", "/", "HTTP/1.1")
		e.SetHeader("content-type", "text/html")
		e.SetHeader("Content-Length", "0")
		require.NoError(t, e.Finish())
		require.Equal(t,
			"HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nServer: strand\r\nContent-Length: 0\r\n\r\n",
			string(conn.data),
		)
	})

	t.Run("redirect", func(t *testing.T) {
		e, _ := newExchange("GET", "HTTP/1.1")
		e.Redirect("/elsewhere")
		require.Equal(t, status.Found, e.Code())
		require.Equal(t, "/elsewhere", e.ResponseHeaders.Value("location"))
	})

	t.Run("unknown code", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.1")
		e.SetResponseCode(599)
		e.SetHeader("Content-Length", "0")
		require.NoError(t, e.Finish())
		require.True(t, strings.HasPrefix(string(conn.data), "HTTP/1.1 599 Unknown Status Code\r\n"))
	})

	t.Run("target and cookies", func(t *testing.T) {
		e, _ := newExchange("GET", "HTTP/1.1")
		e.RequestReceived("GET", "/path/to?a=b&c", "HTTP/1.1")
		e.Headers.Add("cookie", "a=1; b=2").Add("cookie", "c=3")
		require.Equal(t, "/path/to", e.Path())
		require.Equal(t, "a=b&c", e.Query())

		value, found := e.Cookie("b")
		require.True(t, found)
		require.Equal(t, "2", value)
		value, _ = e.Cookie("c")
		require.Equal(t, "3", value)
		_, found = e.Cookie("d")
		require.False(t, found)
	})

	t.Run("producer registration", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.1")
		p := new(nopProducer)
		e.RegisterProducer(p, false)
		require.Equal(t, 1, conn.registered)
		require.Panics(t, func() {
			e.RegisterProducer(p, false)
		})
		e.UnregisterProducer()
		require.Nil(t, conn.producer)
		e.RegisterProducer(p, true)
		require.Equal(t, 2, conn.registered)
		require.True(t, conn.streaming)
	})

	t.Run("producer on disconnected exchange", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.1")
		e.ConnectionLost(status.ErrConnectionAborted)
		p := new(nopProducer)
		e.RegisterProducer(p, true)
		require.True(t, p.stopped)
		require.Zero(t, conn.registered)
	})
}

type nopProducer struct {
	stopped bool
}

func (n *nopProducer) ResumeProducing() {}
func (n *nopProducer) PauseProducing()  {}
func (n *nopProducer) StopProducing() {
	n.stopped = true
}

func TestConditional(t *testing.T) {
	modified := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

	t.Run("not modified", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.1")
		e.Headers.Add("if-modified-since", "Wed, 01 May 2024 12:00:00 GMT; length=10")
		require.True(t, e.SetLastModified(modified))
		require.Equal(t, status.NotModified, e.Code())
		require.NoError(t, e.Finish())
		require.Equal(t, "HTTP/1.1 304 Not Modified\r\nLast-Modified: Wed, 01 May 2024 12:00:00 GMT\r\n\r\n", string(conn.data))
	})

	t.Run("modified", func(t *testing.T) {
		e, _ := newExchange("GET", "HTTP/1.1")
		e.Headers.Add("if-modified-since", "Wed, 01 May 2024 11:59:59 GMT")
		require.False(t, e.SetLastModified(modified))
		require.Equal(t, status.OK, e.Code())
	})

	t.Run("sub-second precision rounds up", func(t *testing.T) {
		e, _ := newExchange("GET", "HTTP/1.1")
		e.Headers.Add("if-modified-since", "Wed, 01 May 2024 12:00:00 GMT")
		require.False(t, e.SetLastModified(modified.Add(time.Millisecond)))
	})

	t.Run("malformed date", func(t *testing.T) {
		e, _ := newExchange("GET", "HTTP/1.1")
		e.Headers.Add("if-modified-since", "yesterday")
		require.False(t, e.SetLastModified(modified))
	})

	t.Run("etag match", func(t *testing.T) {
		e, _ := newExchange("GET", "HTTP/1.1")
		e.Headers.Add("if-none-match", `"x", "abc"`)
		require.True(t, e.SetETag(`"abc"`))
		require.Equal(t, status.NotModified, e.Code())
	})

	t.Run("etag wildcard on POST", func(t *testing.T) {
		e, _ := newExchange("POST", "HTTP/1.1")
		e.Headers.Add("if-none-match", "*")
		require.True(t, e.SetETag(`"abc"`))
		require.Equal(t, status.PreconditionFailed, e.Code())
	})

	t.Run("etag mismatch", func(t *testing.T) {
		e, conn := newExchange("GET", "HTTP/1.1")
		e.Headers.Add("if-none-match", `"x"`)
		require.False(t, e.SetETag(`"abc"`))
		e.SetHeader("Content-Length", "0")
		require.NoError(t, e.Finish())
		require.Contains(t, string(conn.data), "ETag: \"abc\"\r\n")
	})
}
