package http

import (
	"bytes"
	"errors"
	"io"
	"os"
)

var ErrBodyClosed = errors.New("body is closed")

// Body is where the request body lands. It's kept in memory when its declared length is
// below the spool threshold, otherwise it's spooled into a temporary file, which is
// created on the first write.
type Body struct {
	buf    bytes.Buffer
	file   *os.File
	dir    string
	spool  bool
	size   int64
	err    error
	closed bool
}

func newBody(spool bool, dir string) *Body {
	return &Body{spool: spool, dir: dir}
}

// Write stores the bytes. The first write error is remembered and returned by every
// subsequent Reader call.
func (b *Body) Write(p []byte) (int, error) {
	if b.closed {
		return 0, ErrBodyClosed
	}

	if b.err != nil {
		return 0, b.err
	}

	if !b.spool {
		n, err := b.buf.Write(p)
		b.size += int64(n)
		return n, err
	}

	if b.file == nil {
		b.file, b.err = os.CreateTemp(b.dir, "strand-body-*")
		if b.err != nil {
			return 0, b.err
		}
	}

	n, err := b.file.Write(p)
	b.size += int64(n)
	if err != nil {
		b.err = err
	}

	return n, err
}

// Len returns the number of bytes received.
func (b *Body) Len() int64 {
	return b.size
}

// Spooled tells whether the body is stored on the disk.
func (b *Body) Spooled() bool {
	return b.spool
}

// Bytes returns the in-memory body. Spooled bodies are returned as nil.
func (b *Body) Bytes() []byte {
	if b.spool {
		return nil
	}

	return b.buf.Bytes()
}

// String returns the in-memory body as a string.
func (b *Body) String() string {
	return string(b.Bytes())
}

// Reader returns a fresh reader positioned at the beginning of the body.
func (b *Body) Reader() (io.Reader, error) {
	switch {
	case b.closed:
		return nil, ErrBodyClosed
	case b.err != nil:
		return nil, b.err
	case !b.spool:
		return bytes.NewReader(b.buf.Bytes()), nil
	case b.file == nil:
		return bytes.NewReader(nil), nil
	}

	return io.NewSectionReader(b.file, 0, b.size), nil
}

// Close releases the memory and removes the temporary file, if any. Subsequent calls are
// no-op.
func (b *Body) Close() error {
	if b.closed {
		return nil
	}

	b.closed = true
	b.buf = bytes.Buffer{}

	if b.file == nil {
		return nil
	}

	err := b.file.Close()
	if rerr := os.Remove(b.file.Name()); err == nil {
		err = rerr
	}

	b.file = nil

	return err
}
