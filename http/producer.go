package http

// PullProducer produces data only when asked to. Every ResumeProducing call is a request
// for the next piece of data, which is written to the consumer synchronously.
type PullProducer interface {
	ResumeProducing()
	StopProducing()
}

// PushProducer produces data on its own pace until paused.
type PushProducer interface {
	PullProducer
	PauseProducing()
}

var _ Consumer = (*Exchange)(nil)

// Consumer accepts data from a producer, which it pauses and resumes depending on its
// ability to carry the data further.
type Consumer interface {
	Write(data []byte) error
	// RegisterProducer attaches the producer. When streaming is true, the producer must
	// implement PushProducer. Registering a producer while another one is registered
	// panics.
	RegisterProducer(producer PullProducer, streaming bool)
	UnregisterProducer()
}
