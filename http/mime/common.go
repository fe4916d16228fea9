package mime

type MIME = string

const (
	OctetStream MIME = "application/octet-stream"
	Plain       MIME = "text/plain"
	HTML        MIME = "text/html"
	CSS         MIME = "text/css"
	JS          MIME = "text/javascript"
	JSON        MIME = "application/json"
	XML         MIME = "text/xml"
	PNG         MIME = "image/png"
	SVG         MIME = "image/svg+xml"
)

// WithCharset appends the charset parameter to the media type.
func WithCharset(mime MIME, charset Charset) string {
	return mime + "; charset=" + charset
}
