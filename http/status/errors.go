package status

import "errors"

type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// Malformed requests. Every one of them is answered with the bare 400 fallback response
// followed by the connection close.
var (
	ErrBadRequestLine              = NewError(BadRequest, "malformed request line")
	ErrBadMethod                   = NewError(BadRequest, "request method must be ASCII")
	ErrBadHeader                   = NewError(BadRequest, "malformed header line")
	ErrTooManyHeaders              = NewError(BadRequest, "too many headers")
	ErrHeaderFieldsTooLarge        = NewError(BadRequest, "too large headers section")
	ErrBadContentLength            = NewError(BadRequest, "content-length must be a non-negative integer")
	ErrConflictingLength           = NewError(BadRequest, "conflicting body length indicators")
	ErrUnsupportedTransferEncoding = NewError(BadRequest, "transfer-encoding is not supported")
	ErrChunkSizeLineTooLong        = NewError(BadRequest, "chunk size line is too long")
	ErrBadChunkLength              = NewError(BadRequest, "chunk size must be a hexadecimal integer")
	ErrBadChunkExtension           = NewError(BadRequest, "invalid characters in chunk extensions")
	ErrBadChunkTerminator          = NewError(BadRequest, "chunk did not end with CRLF")
)

// Body transfer ending prematurely. These are reported to finish subscribers only.
var (
	ErrDataLoss          = errors.New("connection closed while the body was incomplete")
	ErrPotentialDataLoss = errors.New("body length is unknown, the connection close may have truncated it")
)

var (
	// ErrConnectionDone is the cause reported when the peer closed the connection cleanly.
	ErrConnectionDone = errors.New("connection was closed cleanly")
	// ErrConnectionAborted is the cause reported when the connection was forcibly terminated.
	ErrConnectionAborted = errors.New("connection was aborted")
	// ErrConnectionLost is the cause reported when the connection broke uncleanly.
	ErrConnectionLost = errors.New("connection was lost")
)

var (
	ErrResponseFinished        = errors.New("response was already finished")
	ErrFinishedAfterDisconnect = errors.New("finish called after the connection was lost, use NotifyFinish instead")
)
