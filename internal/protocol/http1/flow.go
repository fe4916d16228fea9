package http1

import (
	"net"
	"time"

	"github.com/indigo-web/strand/http"
)

// Transport is the byte stream a channel talks over.
type Transport interface {
	// Write queues the data for sending. The data is copied, so the slice may be reused
	// once the call returns.
	Write(data []byte)
	WriteSequence(data [][]byte)
	// LoseConnection closes the connection once all the queued data is sent.
	LoseConnection()
	// AbortConnection closes the connection immediately, dropping the queued data.
	AbortConnection()
	Peer() net.Addr
	Host() net.Addr
	// Producer returns the transport's reading side, or nil if it can't be paused.
	Producer() NetworkProducer
}

// NetworkProducer is the reading side of the transport, which can be paused in order to
// stop receiving data from the peer.
type NetworkProducer interface {
	PauseProducing()
	ResumeProducing()
	// UnregisterProducer stops the transport from pausing and resuming the channel.
	UnregisterProducer()
}

// DelayedCall is a function scheduled to be called later.
type DelayedCall interface {
	// Reset postpones the call, so it happens after d counting from now.
	Reset(d time.Duration)
	Cancel()
}

// Reactor is the event loop the channel lives on. Every function it calls is serialized
// with the rest of the channel's callbacks.
type Reactor interface {
	CallLater(d time.Duration, fn func()) DelayedCall
	// Post schedules the function to be called on the next loop iteration.
	Post(fn func())
}

// Logger is the minimal logging interface, implemented by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// noPushProducer stands in for transports which can't pause reading.
type noPushProducer struct{}

func (noPushProducer) PauseProducing()     {}
func (noPushProducer) ResumeProducing()    {}
func (noPushProducer) UnregisterProducer() {}

// pullToPush drives a pull producer as if it were a push producer: as long as it isn't
// paused, it keeps asking the producer for more data, one pull per loop iteration.
type pullToPush struct {
	producer  http.PullProducer
	reactor   Reactor
	paused    bool
	finished  bool
	scheduled bool
}

func newPullToPush(producer http.PullProducer, reactor Reactor) *pullToPush {
	return &pullToPush{
		producer: producer,
		reactor:  reactor,
	}
}

func (p *pullToPush) StartStreaming() {
	p.schedule()
}

// StopStreaming stops pulling without notifying the producer.
func (p *pullToPush) StopStreaming() {
	p.finished = true
}

func (p *pullToPush) PauseProducing() {
	p.paused = true
}

func (p *pullToPush) ResumeProducing() {
	p.paused = false
	p.schedule()
}

func (p *pullToPush) StopProducing() {
	p.StopStreaming()
	p.producer.StopProducing()
}

func (p *pullToPush) schedule() {
	if p.scheduled || p.paused || p.finished {
		return
	}

	p.scheduled = true
	p.reactor.Post(p.pull)
}

func (p *pullToPush) pull() {
	p.scheduled = false
	if p.paused || p.finished {
		return
	}

	p.producer.ResumeProducing()
	p.schedule()
}
