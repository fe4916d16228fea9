package http1

// Sink receives decoded body bytes or, in case of the finish sink, bytes following the body.
// The slice is only valid until the sink returns.
type Sink func(data []byte)

// Decoder turns the raw body bytes of a single request into a sequence of data sink calls,
// followed by exactly one finish sink call.
type Decoder interface {
	// Feed consumes the next piece of the raw stream. It panics if called after the body
	// has already been completed.
	Feed(data []byte) error
	// NoMoreData notifies the decoder that the stream has ended. A non-nil error means
	// that the body was cut short.
	NoMoreData() error
}
