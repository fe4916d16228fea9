package dummy

import (
	"net"

	"github.com/indigo-web/strand/internal/protocol/http1"
)

var _ http1.Transport = new(Transport)

// Transport records everything written into it. The connection loss isn't reported back
// automatically, tests must call ConnectionLost on the channel themselves.
type Transport struct {
	Data    []byte
	Writes  int
	Closed  bool
	Aborted bool
	// Reading is returned by Producer. Set it to nil to emulate a transport without
	// flow control.
	Reading *Producer
	peer    net.Addr
	host    net.Addr
}

func NewTransport() *Transport {
	return &Transport{
		Reading: new(Producer),
		peer:    &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321},
		host:    &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8080},
	}
}

func (t *Transport) Write(data []byte) {
	t.Writes++
	t.Data = append(t.Data, data...)
}

func (t *Transport) WriteSequence(data [][]byte) {
	t.Writes++
	for _, piece := range data {
		t.Data = append(t.Data, piece...)
	}
}

func (t *Transport) LoseConnection() {
	t.Closed = true
}

func (t *Transport) AbortConnection() {
	t.Closed = true
	t.Aborted = true
}

func (t *Transport) Peer() net.Addr {
	return t.peer
}

func (t *Transport) Host() net.Addr {
	return t.host
}

func (t *Transport) Producer() http1.NetworkProducer {
	if t.Reading == nil {
		return nil
	}

	return t.Reading
}

// Flush returns the recorded data and resets it.
func (t *Transport) Flush() string {
	data := string(t.Data)
	t.Data = t.Data[:0]
	return data
}

// Producer counts the flow control signals.
type Producer struct {
	Pauses, Resumes int
	Paused          bool
	Unregistered    bool
}

func (p *Producer) PauseProducing() {
	p.Pauses++
	p.Paused = true
}

func (p *Producer) ResumeProducing() {
	p.Resumes++
	p.Paused = false
}

func (p *Producer) UnregisterProducer() {
	p.Unregistered = true
}
