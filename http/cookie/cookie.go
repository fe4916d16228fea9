package cookie

import (
	"strconv"
	"strings"
	"time"

	"github.com/indigo-web/strand/http/date"
)

type Cookie struct {
	Name    string
	Value   string
	Path    string
	Domain  string
	Expires time.Time
	// MaxAge defines a delta in seconds, when the cookie should be dropped.
	// Note, that zero is treated as a zero-value, so will be ignored. In order
	// to be added with a value of zero, it must be negative. -1 is the conventional
	// value for this purpose
	MaxAge   int
	SameSite SameSite
	Secure   bool
	HttpOnly bool
}

func New(name, value string) Cookie {
	return Cookie{Name: name, Value: value}
}

// String returns the cookie in the form suitable for the Set-Cookie header value.
func (c Cookie) String() string {
	return string(c.Append(nil))
}

// Append appends the Set-Cookie representation of the cookie to buf. Name and value are
// sanitized: line breaks and semicolons are replaced by spaces.
func (c Cookie) Append(buf []byte) []byte {
	buf = append(buf, sanitize(c.Name)...)
	buf = append(buf, '=')
	buf = append(buf, sanitize(c.Value)...)

	if !c.Expires.IsZero() {
		buf = append(buf, "; Expires="...)
		buf = date.Append(buf, c.Expires)
	}

	if len(c.Domain) > 0 {
		buf = append(buf, "; Domain="...)
		buf = append(buf, sanitize(c.Domain)...)
	}

	if len(c.Path) > 0 {
		buf = append(buf, "; Path="...)
		buf = append(buf, sanitize(c.Path)...)
	}

	if c.MaxAge != 0 {
		buf = append(buf, "; Max-Age="...)
		buf = strconv.AppendInt(buf, int64(max(c.MaxAge, 0)), 10)
	}

	if c.Secure {
		buf = append(buf, "; Secure"...)
	}

	if c.HttpOnly {
		buf = append(buf, "; HttpOnly"...)
	}

	if len(c.SameSite) > 0 {
		buf = append(buf, "; SameSite="...)
		buf = append(buf, c.SameSite...)
	}

	return buf
}

var sanitizer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ", ";", " ")

func sanitize(str string) string {
	if strings.ContainsAny(str, "\r\n;") {
		return sanitizer.Replace(str)
	}

	return str
}

type Builder struct {
	cookie Cookie
}

// Build is a chainable constructor for cookies. A preferred way of instantiation
func Build(name, value string) Builder {
	return Builder{New(name, value)}
}

func (b Builder) Path(path string) Builder {
	b.cookie.Path = path
	return b
}

func (b Builder) Domain(domain string) Builder {
	b.cookie.Domain = domain
	return b
}

func (b Builder) Expires(expires time.Time) Builder {
	b.cookie.Expires = expires
	return b
}

// MaxAge defines a delta in seconds, when the cookie should be dropped.
// Note, that zero is treated as a zero-value, so will be ignored. In order
// to be added with a value of zero, it must be negative. -1 is the conventional
// value for this purpose
func (b Builder) MaxAge(maxAge int) Builder {
	b.cookie.MaxAge = maxAge
	return b
}

func (b Builder) SameSite(sameSite SameSite) Builder {
	b.cookie.SameSite = sameSite
	return b
}

func (b Builder) Secure(secure bool) Builder {
	b.cookie.Secure = secure
	return b
}

func (b Builder) HttpOnly(httpOnly bool) Builder {
	b.cookie.HttpOnly = httpOnly
	return b
}

// Cookie returns the built cookie instance
func (b Builder) Cookie() Cookie {
	return b.cookie
}

type SameSite = string

const (
	SameSiteLax    SameSite = "Lax"
	SameSiteStrict SameSite = "Strict"
	SameSiteNone   SameSite = "None"
)
