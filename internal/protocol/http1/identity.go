package http1

import "github.com/indigo-web/strand/http/status"

// IdentityDecoder passes through the body of a known length. When the length is unknown,
// everything is considered a body until the stream ends.
type IdentityDecoder struct {
	remaining        int64
	finished         bool
	onData, onFinish Sink
}

// NewIdentityDecoder returns a decoder expecting exactly length bytes. Negative length
// stands for unknown one.
func NewIdentityDecoder(length int64, onData, onFinish Sink) *IdentityDecoder {
	return &IdentityDecoder{
		remaining: length,
		onData:    onData,
		onFinish:  onFinish,
	}
}

func (i *IdentityDecoder) Feed(data []byte) error {
	if i.finished {
		panic("BUG: identity decoder fed after the body was completed")
	}

	if i.remaining < 0 {
		i.onData(data)
		return nil
	}

	if int64(len(data)) < i.remaining {
		i.remaining -= int64(len(data))
		i.onData(data)
		return nil
	}

	n := i.remaining
	i.remaining = 0
	i.finished = true
	i.onData(data[:n])
	i.onFinish(data[n:])

	return nil
}

func (i *IdentityDecoder) NoMoreData() error {
	if i.finished {
		return nil
	}

	i.finished = true

	switch {
	case i.remaining < 0:
		i.onFinish(nil)
		return status.ErrPotentialDataLoss
	case i.remaining > 0:
		return status.ErrDataLoss
	default:
		return nil
	}
}
