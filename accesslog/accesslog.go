package accesslog

import (
	"net"
	"strconv"
	"time"

	"github.com/indigo-web/strand/http"
	"github.com/indigo-web/strand/http/date"
	"github.com/indigo-web/strand/internal/timer"
	json "github.com/json-iterator/go"
)

// Formatter renders the exchange into a single log line.
type Formatter func(now time.Time, e *http.Exchange) string

// Printer is where formatted lines go. *log.Logger satisfies it.
type Printer interface {
	Printf(format string, v ...any)
}

type Log struct {
	format Formatter
	out    Printer
}

func New(format Formatter, out Printer) *Log {
	return &Log{format: format, out: out}
}

// Record writes the line for the exchange.
func (l *Log) Record(e *http.Exchange) {
	l.out.Printf("%s", l.format(timer.Now(), e))
}

// Combined renders the exchange in the NCSA combined log format.
func Combined(now time.Time, e *http.Exchange) string {
	length := "-"
	if sent := e.SentLength(); sent > 0 {
		length = strconv.FormatInt(sent, 10)
	}

	buf := make([]byte, 0, 128)
	buf = append(buf, '"')
	buf = escape(buf, remoteIP(e.Peer()))
	buf = append(buf, `" - - `...)
	buf = append(buf, date.Log(now)...)
	buf = append(buf, ` "`...)
	buf = escape(buf, e.Method)
	buf = append(buf, ' ')
	buf = escape(buf, e.Target)
	buf = append(buf, ' ')
	buf = escape(buf, e.Version)
	buf = append(buf, `" `...)
	buf = strconv.AppendUint(buf, uint64(e.Code()), 10)
	buf = append(buf, ' ')
	buf = append(buf, length...)
	buf = append(buf, ` "`...)
	buf = escape(buf, e.Headers.ValueOr("referer", "-"))
	buf = append(buf, `" "`...)
	buf = escape(buf, e.Headers.ValueOr("user-agent", "-"))
	buf = append(buf, '"')

	return string(buf)
}

type record struct {
	Time      string  `json:"time"`
	Remote    string  `json:"remote"`
	Method    string  `json:"method"`
	Target    string  `json:"target"`
	Protocol  string  `json:"protocol"`
	Status    int     `json:"status"`
	Length    int64   `json:"length"`
	Referrer  string  `json:"referrer,omitempty"`
	UserAgent string  `json:"user_agent,omitempty"`
	Duration  float64 `json:"duration_ms"`
}

// JSON renders the exchange as a JSON object.
func JSON(now time.Time, e *http.Exchange) string {
	var duration float64
	if received := e.Received(); !received.IsZero() {
		duration = float64(now.Sub(received).Microseconds()) / 1000
	}

	data, err := json.ConfigDefault.Marshal(record{
		Time:      now.UTC().Format(time.RFC3339),
		Remote:    remoteIP(e.Peer()),
		Method:    e.Method,
		Target:    e.Target,
		Protocol:  e.Version,
		Status:    int(e.Code()),
		Length:    e.SentLength(),
		Referrer:  e.Headers.Value("referer"),
		UserAgent: e.Headers.Value("user-agent"),
		Duration:  max(duration, 0),
	})
	if err != nil {
		return `{"error":` + strconv.Quote(err.Error()) + `}`
	}

	return string(data)
}

func remoteIP(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String()
	case *net.UDPAddr:
		return a.IP.String()
	default:
		return "-"
	}
}

const hexDigits = "0123456789abcdef"

// escape appends the string with double quotes, backslashes and non-printable bytes
// escaped, so the field can't break out of its quotes.
func escape(buf []byte, str string) []byte {
	for i := 0; i < len(str); i++ {
		switch c := str[i]; {
		case c == '"' || c == '\\':
			buf = append(buf, '\\', c)
		case c == '\t':
			buf = append(buf, `\t`...)
		case c == '\n':
			buf = append(buf, `\n`...)
		case c == '\r':
			buf = append(buf, `\r`...)
		case c < 0x20 || c >= 0x7F:
			buf = append(buf, '\\', 'x', hexDigits[c>>4], hexDigits[c&0xF])
		default:
			buf = append(buf, c)
		}
	}

	return buf
}
