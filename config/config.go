package config

import "time"

type (
	Headers struct {
		// MaxCount is the maximal number of header fields a single request may carry.
		MaxCount int
		// MaxSize limits the cumulative length of the request line and all the header
		// lines of a single request, excluding line delimiters.
		MaxSize int
		// Default headers are included into every response implicitly, unless
		// explicitly overridden.
		Default map[string]string `test:"nullable"`
	}

	Body struct {
		// SpoolThreshold is the declared body length starting from which the request body
		// is stored in a temporary file instead of the memory. Bodies of unknown length
		// (chunked) are always spooled.
		SpoolThreshold int64
		// SpoolDir is a directory for temporary files. Empty value means os.TempDir().
		SpoolDir string `test:"nullable"`
	}

	Chunked struct {
		// MaxSizeLine limits the length of a single chunk-size line (hex length plus
		// extensions), excluding CRLF.
		MaxSizeLine int
	}

	WriteBuffer struct {
		// High is the amount of outstanding outbound bytes at which the transport asks
		// the connection to pause producing.
		High int
		// Low is the amount of outstanding outbound bytes at which the producing resumes.
		Low int
	}

	NET struct {
		// ReadBufferSize is a size of buffer in bytes which will be used to read from
		// socket.
		ReadBufferSize int
		// MaxLineLength is the longest line accepted before the header section is over.
		// Longer lines drop the connection.
		MaxLineLength int
		// EagerReadWatermark is the amount of pipelined bytes buffered while a request is
		// being handled, after which the transport stops reading.
		EagerReadWatermark int
		// IdleTimeout closes connections which haven't sent anything in this period of
		// time. It is suspended while a request is being handled.
		IdleTimeout time.Duration
		// AbortTimeout is how long a timed out connection is given to close gracefully
		// before being aborted.
		AbortTimeout time.Duration
		// AcceptLoopInterruptPeriod controls how often will the Accept() call be interrupted
		// in order to check whether it's time to stop. Defaults to 5 seconds.
		AcceptLoopInterruptPeriod time.Duration
		// WriteBuffer controls outbound backpressure.
		WriteBuffer WriteBuffer
	}
)

// Config holds settings used across various parts of strand, mainly restrictions and
// limitations.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	Headers Headers
	Body    Body
	Chunked Chunked
	NET     NET
}

// Default returns default config.
func Default() *Config {
	return &Config{
		Headers: Headers{
			MaxCount: 500,
			MaxSize:  16 * 1024,
			Default:  make(map[string]string),
		},
		Body: Body{
			SpoolThreshold: 100_000,
		},
		Chunked: Chunked{
			MaxSizeLine: 1024,
		},
		NET: NET{
			ReadBufferSize:            4 * 1024,
			MaxLineLength:             16 * 1024,
			EagerReadWatermark:        16 * 1024,
			IdleTimeout:               90 * time.Second,
			AbortTimeout:              15 * time.Second,
			AcceptLoopInterruptPeriod: 5 * time.Second,
			WriteBuffer: WriteBuffer{
				High: 64 * 1024,
				Low:  16 * 1024,
			},
		},
	}
}
