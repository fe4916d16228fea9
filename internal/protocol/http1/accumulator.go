package http1

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/indigo-web/strand/config"
	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/strand/kv"
	"github.com/indigo-web/utils/uf"
)

type framing uint8

const (
	// framingNone means there's no body at all.
	framingNone framing = iota
	framingLength
	framingChunked
)

// accumulator collects the request line and the header section of a single request.
// Header lines are processed one behind, so folded continuation lines are joined before
// the header is interpreted.
type accumulator struct {
	cfg     config.Headers
	headers *kv.Storage
	size    int
	count   int
	pending []byte
	framing framing
	length  int64
	decided bool
}

func newAccumulator(cfg config.Headers) *accumulator {
	return &accumulator{cfg: cfg}
}

// Begin directs the following header lines into the storage.
func (a *accumulator) Begin(headers *kv.Storage) {
	a.headers = headers
}

// Reset prepares the accumulator for the next request.
func (a *accumulator) Reset() {
	*a = accumulator{
		cfg:     a.cfg,
		pending: a.pending[:0],
	}
}

// Account adds the line to the cumulative size of the header section.
func (a *accumulator) Account(line []byte) error {
	a.size += len(line)
	if a.size > a.cfg.MaxSize {
		return status.ErrHeaderFieldsTooLarge
	}

	return nil
}

// Line consumes a single header line. An empty line completes the section.
func (a *accumulator) Line(line []byte) (done bool, err error) {
	switch {
	case len(line) == 0:
		return true, a.flush()
	case line[0] == ' ' || line[0] == '\t':
		if len(a.pending) == 0 {
			return false, status.ErrBadHeader
		}

		a.pending = append(a.pending, ' ')
		a.pending = append(a.pending, bytes.TrimLeft(line, " \t")...)
		return false, nil
	default:
		err = a.flush()
		a.pending = append(a.pending[:0], line...)
		return false, err
	}
}

// Framing returns how the body of the request is delimited.
func (a *accumulator) Framing() (framing, int64) {
	return a.framing, a.length
}

func (a *accumulator) flush() error {
	if len(a.pending) == 0 {
		return nil
	}

	err := a.header(a.pending)
	a.pending = a.pending[:0]

	return err
}

func (a *accumulator) header(line []byte) error {
	colon := bytes.IndexByte(line, ':')
	if colon == -1 {
		return status.ErrBadHeader
	}

	name, value := line[:colon], line[colon+1:]
	if len(name) == 0 || isSpace(name[len(name)-1]) {
		return status.ErrBadHeader
	}

	key := strings.ToLower(string(name))
	val := string(bytes.Trim(value, " \t"))

	if err := a.chooseFraming(key, val); err != nil {
		return err
	}

	a.headers.Add(key, val)

	if a.count++; a.count > a.cfg.MaxCount {
		return status.ErrTooManyHeaders
	}

	return nil
}

func (a *accumulator) chooseFraming(key, value string) error {
	var (
		f      framing
		length int64
	)

	switch key {
	case "content-length":
		if !isDigits(value) {
			return status.ErrBadContentLength
		}

		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return status.ErrBadContentLength
		}

		f, length = framingLength, n
	case "transfer-encoding":
		switch strings.ToLower(value) {
		case "chunked":
			f, length = framingChunked, -1
		case "identity":
			return nil
		default:
			return status.ErrUnsupportedTransferEncoding
		}
	default:
		return nil
	}

	if a.decided {
		return status.ErrConflictingLength
	}

	a.decided = true
	a.framing, a.length = f, length

	return nil
}

// requestLine splits the request line into exactly three whitespace-separated tokens.
// The method must consist of ASCII characters only.
func requestLine(line []byte) (method, target, version string, err error) {
	fields := strings.FieldsFunc(uf.B2S(line), func(r rune) bool {
		return r < 0x80 && isSpace(byte(r))
	})
	if len(fields) != 3 {
		return "", "", "", status.ErrBadRequestLine
	}

	for i := 0; i < len(fields[0]); i++ {
		if fields[0][i] >= 0x80 {
			return "", "", "", status.ErrBadMethod
		}
	}

	// copy, as the fields share the memory with the input buffer
	return strings.Clone(fields[0]), strings.Clone(fields[1]), strings.Clone(fields[2]), nil
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}

func isDigits(str string) bool {
	if len(str) == 0 {
		return false
	}

	for i := 0; i < len(str); i++ {
		if str[i] < '0' || str[i] > '9' {
			return false
		}
	}

	return true
}
