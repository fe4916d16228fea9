package date

import (
	"errors"
	"strings"
	"time"
)

// Layout is the preferred HTTP date format (IMF-fixdate).
const Layout = "Mon, 02 Jan 2006 15:04:05 GMT"

// obsolete formats recipients must still accept.
const (
	rfc850  = "Monday, 02-Jan-06 15:04:05 GMT"
	asctime = "Mon Jan _2 15:04:05 2006"
)

var ErrBadDate = errors.New("malformed HTTP date")

// Format returns the IMF-fixdate representation of t.
func Format(t time.Time) string {
	return string(Append(nil, t))
}

// Append appends the IMF-fixdate representation of t to buf.
func Append(buf []byte, t time.Time) []byte {
	return t.UTC().AppendFormat(buf, Layout)
}

// Parse parses the date in any of the three formats permitted by RFC 9110.
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	for _, layout := range [...]string{Layout, rfc850, asctime} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, ErrBadDate
}

// Log returns the timestamp in the common log format.
func Log(t time.Time) string {
	return t.UTC().Format("[02/Jan/2006:15:04:05 +0000]")
}
