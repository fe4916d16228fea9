package proto

const (
	HTTP10 = "HTTP/1.0"
	HTTP11 = "HTTP/1.1"
)
