package http

import (
	"net/textproto"
	"strconv"
	"strings"

	"github.com/indigo-web/strand/http/proto"
	"golang.org/x/net/http/httpguts"
)

var linearWhitespace = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// sanitize replaces line breaks by spaces, so a header value can't be split into two.
// Header names containing anything but token characters aren't sent at all.
func sanitize(str string) string {
	if strings.ContainsAny(str, "\r\n") {
		return linearWhitespace.Replace(str)
	}

	return str
}

// irregular are the header names whose conventional spelling isn't the canonical MIME one.
var irregular = map[string]string{
	"content-md5":      "Content-MD5",
	"dnt":              "DNT",
	"etag":             "ETag",
	"p3p":              "P3P",
	"te":               "TE",
	"www-authenticate": "WWW-Authenticate",
	"x-xss-protection": "X-XSS-Protection",
}

// canonical returns the conventional spelling of the header name.
func canonical(name string) string {
	if known, ok := irregular[strings.ToLower(name)]; ok {
		return known
	}

	return textproto.CanonicalMIMEHeaderKey(name)
}

func appendHead(buf []byte, e *Exchange) []byte {
	version := e.Version
	if len(version) == 0 {
		version = proto.HTTP11
	}

	buf = append(buf, version...)
	buf = append(buf, ' ')
	buf = strconv.AppendUint(buf, uint64(e.code), 10)
	buf = append(buf, ' ')
	buf = append(buf, sanitize(e.reason)...)
	buf = append(buf, crlf...)

	if e.chunked {
		buf = append(buf, "Transfer-Encoding: chunked\r\n"...)
	}

	for name, value := range e.ResponseHeaders.Pairs() {
		if !httpguts.ValidHeaderFieldName(name) {
			continue
		}

		buf = appendHeader(buf, canonical(name), sanitize(value))
	}

	for _, c := range e.cookies {
		buf = append(buf, "Set-Cookie: "...)
		buf = c.Append(buf)
		buf = append(buf, crlf...)
	}

	return append(buf, crlf...)
}

func appendHeader(buf []byte, name, value string) []byte {
	buf = append(buf, name...)
	buf = append(buf, ':', ' ')
	buf = append(buf, value...)
	return append(buf, crlf...)
}
