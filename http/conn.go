package http

import "net"

// Conn is the connection-side counterpart of an exchange. It's implemented by the protocol
// engine and isn't meant to be implemented by users, except for tests.
type Conn interface {
	Write(data []byte)
	WriteSequence(data [][]byte)
	RegisterProducer(producer PullProducer, streaming bool)
	UnregisterProducer()
	// RequestDone is called by a finished exchange. The exchange must be the oldest one
	// of the connection.
	RequestDone(e *Exchange)
	Peer() net.Addr
	Host() net.Addr
	// Post schedules the function on the connection's event loop.
	Post(fn func())
}

// Handler is invoked for every completely received request. Exchanges may be finished
// either synchronously, or later via Exchange.Post.
type Handler interface {
	Serve(e *Exchange)
}

// HandlerFunc is an adapter allowing ordinary functions to be used as handlers.
type HandlerFunc func(e *Exchange)

func (h HandlerFunc) Serve(e *Exchange) {
	h(e)
}
