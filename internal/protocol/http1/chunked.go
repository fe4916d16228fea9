package http1

import (
	"bytes"

	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/strand/internal/hexconv"
)

type chunkedState uint8

const (
	eChunkLength chunkedState = iota
	eChunkBody
	eChunkBodyCRLF
	eChunkTrailer
	eChunkFinished
)

var crlf = []byte("\r\n")

// chunkExtChars marks octets allowed to appear in chunk extensions: HTAB, visible ASCII,
// space and obs-text.
var chunkExtChars = func() (table [256]bool) {
	table['\t'] = true
	for c := 0x20; c <= 0x7E; c++ {
		table[c] = true
	}
	for c := 0x80; c <= 0xFF; c++ {
		table[c] = true
	}

	return table
}()

// ChunkedDecoder decodes the chunked transfer coding. Chunk extensions are validated and
// ignored. Trailer fields aren't supported, the terminal chunk must be directly followed
// by an empty line.
type ChunkedDecoder struct {
	state   chunkedState
	maxLine int
	// remaining is the number of bytes left in the current chunk.
	remaining uint64
	buffer    []byte
	// scanned is how much of the buffer is known to not contain CRLF.
	scanned          int
	onData, onFinish Sink
}

// NewChunkedDecoder returns a decoder rejecting chunk-size lines longer than maxLine bytes.
func NewChunkedDecoder(maxLine int, onData, onFinish Sink) *ChunkedDecoder {
	return &ChunkedDecoder{
		state:    eChunkLength,
		maxLine:  maxLine,
		onData:   onData,
		onFinish: onFinish,
	}
}

func (c *ChunkedDecoder) Feed(data []byte) error {
	if c.state == eChunkFinished {
		panic("BUG: chunked decoder fed after the terminal chunk")
	}

	c.buffer = append(c.buffer, data...)

	for len(c.buffer) > 0 {
		switch c.state {
		case eChunkLength:
			goto chunkLength
		case eChunkBody:
			goto chunkBody
		case eChunkBodyCRLF:
			goto chunkBodyCRLF
		case eChunkTrailer:
			goto trailer
		default:
			panic("unreachable code")
		}

	chunkLength:
		{
			eol := bytes.Index(c.buffer[c.scanned:], crlf)
			if eol != -1 {
				eol += c.scanned
			}

			if eol >= c.maxLine || (eol == -1 && len(c.buffer) > c.maxLine) {
				return status.ErrChunkSizeLineTooLong
			}

			if eol == -1 {
				// the CR might already be there, waiting for its LF
				c.scanned = max(len(c.buffer)-1, 0)
				return nil
			}

			line := c.buffer[:eol]
			semicolon := bytes.IndexByte(line, ';')
			if semicolon == -1 {
				semicolon = len(line)
			}

			length, ok := hexconv.ParseUint(line[:semicolon])
			if !ok {
				return status.ErrBadChunkLength
			}

			if semicolon < len(line) {
				for _, char := range line[semicolon+1:] {
					if !chunkExtChars[char] {
						return status.ErrBadChunkExtension
					}
				}
			}

			c.consume(eol + len(crlf))
			c.scanned = 0
			c.remaining = length
			if length == 0 {
				c.state = eChunkTrailer
			} else {
				c.state = eChunkBody
			}

			continue
		}

	chunkBody:
		{
			if uint64(len(c.buffer)) < c.remaining {
				c.remaining -= uint64(len(c.buffer))
				c.onData(c.buffer)
				c.buffer = c.buffer[:0]
				return nil
			}

			n := int(c.remaining)
			c.remaining = 0
			c.state = eChunkBodyCRLF
			c.onData(c.buffer[:n])
			c.consume(n)
			continue
		}

	chunkBodyCRLF:
		if len(c.buffer) < len(crlf) {
			if c.buffer[0] != '\r' {
				return status.ErrBadChunkTerminator
			}

			return nil
		}

		if !bytes.HasPrefix(c.buffer, crlf) {
			return status.ErrBadChunkTerminator
		}

		c.consume(len(crlf))
		c.state = eChunkLength
		continue

	trailer:
		if len(c.buffer) < len(crlf) {
			if c.buffer[0] != '\r' {
				return status.ErrBadChunkTerminator
			}

			return nil
		}

		if !bytes.HasPrefix(c.buffer, crlf) {
			return status.ErrBadChunkTerminator
		}

		extra := c.buffer[len(crlf):]
		c.buffer = nil
		c.state = eChunkFinished
		c.onFinish(extra)

		return nil
	}

	return nil
}

func (c *ChunkedDecoder) NoMoreData() error {
	if c.state == eChunkFinished {
		return nil
	}

	c.state = eChunkFinished
	c.buffer = nil

	return status.ErrDataLoss
}

// consume drops first n bytes of the buffer, keeping the underlying array.
func (c *ChunkedDecoder) consume(n int) {
	c.buffer = c.buffer[:copy(c.buffer, c.buffer[n:])]
}
