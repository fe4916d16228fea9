package method

const (
	GET     = "GET"
	HEAD    = "HEAD"
	POST    = "POST"
	PUT     = "PUT"
	DELETE  = "DELETE"
	OPTIONS = "OPTIONS"
)

// Safe tells whether the method is read-only, which makes a matching conditional request
// answerable with 304 rather than 412.
func Safe(m string) bool {
	return m == GET || m == HEAD
}
