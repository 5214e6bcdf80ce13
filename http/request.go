package http

import (
	"net"
	"sync/atomic"

	"github.com/sww1235/tiny-http/http/method"
	"github.com/sww1235/tiny-http/http/proto"
	"github.com/sww1235/tiny-http/http/status"
	"github.com/sww1235/tiny-http/kv"
	"github.com/sww1235/tiny-http/transport"
)

// Responder consumes a finished response builder on behalf of a request. It is
// implemented by the connection the request arrived on.
type Responder interface {
	Respond(request *Request, response *Response) error
}

// Request represents a single inbound HTTP request. Instances are owned by the
// connection and re-used across a keep-alive session, so none of the fields
// must be retained past Respond.
type Request struct {
	// Method is an enum representing the request method.
	Method method.Method
	// Target is the raw request target, exactly as it appeared on the request
	// line. No normalization or percent-decoding is applied.
	Target string
	// Proto is the protocol version stated on the request line.
	Proto proto.Proto
	// Headers holds non-normalized header pairs, even though lookup is
	// case-insensitive. Values aren't validated, therefore may contain
	// ASCII-nonprintable and/or Unicode characters.
	Headers Headers
	// ContentLength obtains the value from Content-Length header. It holds the
	// value of 0 if isn't presented.
	//
	// NOTE: you shouldn't rely on this value, as it may be anything (mostly 0)
	// if any Transfer-Encoding were applied.
	ContentLength int
	// Encoding holds an information about encoding, that was used to make the request.
	Encoding Encoding
	// Connection holds the Connection header value. It isn't normalized, so can be
	// anything and in any case. So in order to compare it, highly recommended to
	// do it case-insensibly.
	Connection string
	// Expect is set when the client sent Expect: 100-continue. The interim
	// response is written automatically as soon as the body is first read.
	Expect bool
	// Remote holds the remote address. Please note that this is generally not a
	// good parameter to identify a user, because there might be proxies in the middle.
	Remote net.Addr
	// Body is a dedicated entity providing access to the message body.
	Body      *Body
	responder Responder
	responded atomic.Bool
	done      chan error
}

func NewRequest(client transport.Client, headers *kv.Storage, responder Responder) *Request {
	return &Request{
		Method:    method.Unknown,
		Proto:     proto.HTTP11,
		Headers:   headers,
		Remote:    client.Remote(),
		responder: responder,
		done:      make(chan error, 1),
	}
}

// Respond sends the response back to the client. The call consumes the request:
// the second and any further attempt fails with status.ErrDoubleRespond without
// touching the connection.
func (r *Request) Respond(response *Response) error {
	if !r.Claim() {
		return status.ErrDoubleRespond
	}

	err := r.responder.Respond(r, response)
	r.done <- err

	if err == status.ErrCloseConnection {
		// the response was delivered, the connection just won't survive it.
		// Not the application's concern
		return nil
	}

	return err
}

// RespondError responds with the status code carried by the error, if it is a
// status.HTTPError, otherwise with 500 Internal Server Error.
func (r *Request) RespondError(err error) error {
	return r.Respond(NewResponse().Error(err))
}

// Claim atomically takes the exclusive right to respond to the request. It
// reports false if the right is already taken. Used by the connection to
// substitute a response of its own when the deadline expires.
func (r *Request) Claim() bool {
	return !r.responded.Swap(true)
}

// Done exposes the channel signalled exactly once after a successfully claimed
// Respond has finished, carrying its write error.
func (r *Request) Done() <-chan error {
	return r.done
}

// Reset prepares the instance for the next request on the same connection.
func (r *Request) Reset() {
	r.Method = method.Unknown
	r.Target = ""
	r.Proto = proto.HTTP11
	r.Headers.Clear()
	r.ContentLength = 0
	r.Encoding = Encoding{}
	r.Connection = ""
	r.Expect = false
	r.Body.Reset()
	r.responded.Store(false)
}
