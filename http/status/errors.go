package status

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

var (
	// ErrCloseConnection is an internal verdict: the response was written fine,
	// but the connection must not be reused for another request.
	ErrCloseConnection = NewError(CloseConnection, "actively closing the connection")
	// ErrShutdown is returned by pull calls once graceful shutdown has begun.
	ErrShutdown = NewError(ServiceUnavailable, "server is shutting down")
	// ErrDoubleRespond is a contract violation: the request was already responded.
	ErrDoubleRespond = NewError(InternalServerError, "request is already responded")

	ErrBadRequest              = NewError(BadRequest, "bad request")
	ErrTooLongRequestLine      = NewError(BadRequest, "request line is too long")
	ErrBadChunk                = NewError(BadRequest, "malformed chunk-encoded data")
	ErrAmbiguousFraming        = NewError(BadRequest, "both transfer-encoding and content-length received")
	ErrNotFound                = NewError(NotFound, "not found")
	ErrInternalServerError     = NewError(InternalServerError, "internal server error")
	ErrMethodNotImplemented    = NewError(NotImplemented, "request method is not supported")
	ErrBodyTooLarge            = NewError(RequestEntityTooLarge, "request body is too large")
	ErrHeaderFieldsTooLarge    = NewError(RequestHeaderFieldsTooLarge, "too large headers section")
	ErrTooManyHeaders          = NewError(RequestHeaderFieldsTooLarge, "too many headers")
	ErrURITooLong              = NewError(RequestURITooLong, "request URI too long")
	ErrUnsupportedProtocol     = NewError(HTTPVersionNotSupported, "protocol is not supported")
	ErrRequestTimeout          = NewError(RequestTimeout, "request timeout")
	ErrExpectationFailed       = NewError(ExpectationFailed, "expectation failed")
	ErrUnsupportedEncoding     = NewError(NotImplemented, "transfer encoding is not supported")
	ErrConnectionsLimitReached = NewError(ServiceUnavailable, "connections limit reached")
)

// CloseConnection is a special in-band code which must never be rendered
// onto the wire. Any valid HTTP code is at most three digits.
const CloseConnection Code = 1000
