package mime

type Charset = string

const (
	UTF8  Charset = "utf-8"
	ASCII Charset = "us-ascii"
)
