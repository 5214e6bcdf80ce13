package http

import (
	"io"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
	"github.com/sww1235/tiny-http/http/status"
	"github.com/sww1235/tiny-http/internal/response"
	"github.com/sww1235/tiny-http/kv"
)

// why 7? I don't know. There's no theory behind this number nor researches.
// It can be adjusted to 10 as well, but why you would ever need to do this?
const preallocRespHeaders = 7

// Response is a builder for an outbound message. A fresh instance renders as
// 200 OK with an empty body.
type Response struct {
	fields *response.Fields
}

func NewResponse() *Response {
	return &Response{
		&response.Fields{
			Code:        status.OK,
			Headers:     make([]kv.Pair, 0, preallocRespHeaders),
			ContentType: response.DefaultContentType,
		},
	}
}

// Code sets a Response code and a corresponding status.
// In case of unknown code, "Unknown Status Code" will be set as a status
// code. In this case you should call Status explicitly
func (r *Response) Code(code status.Code) *Response {
	r.fields.Code = code
	return r
}

// Status sets a custom status text. This text does not matter at all, and usually
// totally ignored by client, so there is actually no reasons to use this except some
// rare cases when you need to represent a Response status text somewhere
func (r *Response) Status(status status.Status) *Response {
	r.fields.Status = status
	return r
}

// ContentType sets a custom Content-Type header value.
func (r *Response) ContentType(value string) *Response {
	r.fields.ContentType = value
	return r
}

// TransferEncoding sets a custom Transfer-Encoding header value.
func (r *Response) TransferEncoding(value string) *Response {
	r.fields.TransferEncoding = value
	return r
}

// Header sets header values to a key. In case it already exists the value will
// be appended.
func (r *Response) Header(key string, values ...string) *Response {
	switch {
	case strcomp.EqualFold(key, "content-type"):
		return r.ContentType(values[0])
	case strcomp.EqualFold(key, "transfer-encoding"):
		return r.TransferEncoding(values[0])
	}

	for i := range values {
		r.fields.Headers = append(r.fields.Headers, kv.Pair{
			Key:   key,
			Value: values[i],
		})
	}

	return r
}

// Headers simply merges passed headers into Response.
func (r *Response) Headers(headers map[string][]string) *Response {
	resp := r

	for k, v := range headers {
		resp = resp.Header(k, v...)
	}

	return resp
}

// String sets the response's body to the passed string
func (r *Response) String(body string) *Response {
	return r.Bytes(uf.S2B(body))
}

// Bytes sets the response's body to passed slice WITHOUT COPYING. Changing
// the passed slice later will affect the response by itself
func (r *Response) Bytes(body []byte) *Response {
	r.fields.Body = body
	return r
}

// Write implements io.Writer interface. It always returns n=len(b) and err=nil
func (r *Response) Write(b []byte) (n int, err error) {
	r.fields.Body = append(r.fields.Body, b...)
	return len(b), nil
}

// Attachment sets a Response's attachment. In this case Response body will be ignored.
// If size <= 0, then Transfer-Encoding: chunked will be used
func (r *Response) Attachment(reader io.Reader, size int) *Response {
	r.fields.Attachment = response.NewAttachment(reader, size)
	return r
}

// TryJSON receives a model (must be a pointer to the structure) and returns a new
// Response object and an error
func (r *Response) TryJSON(model any) (*Response, error) {
	r.fields.Body = r.fields.Body[:0]
	stream := json.ConfigDefault.BorrowStream(r)
	stream.WriteVal(model)
	err := stream.Flush()
	json.ConfigDefault.ReturnStream(stream)

	return r.ContentType("application/json"), err
}

// JSON does the same as TryJSON does, except returned error is being implicitly
// wrapped by Error
func (r *Response) JSON(model any) *Response {
	resp, err := r.TryJSON(model)
	if err != nil {
		return r.Error(err)
	}

	return resp
}

// Error returns a response builder with an error set. If passed err is nil, nothing
// will happen. If an instance of status.HTTPError is passed, error code will be
// automatically set. Custom codes can be passed, however only first will be used.
// By default, the error is status.ErrInternalServerError
func (r *Response) Error(err error, code ...status.Code) *Response {
	if err == nil {
		return r
	}

	if http, ok := err.(status.HTTPError); ok {
		return r.Code(http.Code)
	}

	c := status.InternalServerError
	if len(code) > 0 {
		// peek the first, ignore the rest
		c = code[0]
	}

	return r.
		Code(c).
		String(err.Error())
}

// Reveal returns a struct with values, filled by builder. Used mostly in internal purposes
func (r *Response) Reveal() *response.Fields {
	return r.fields
}

// Clear discards everything was done with Response object before
func (r *Response) Clear() *Response {
	*r.fields = r.fields.Clear()
	return r
}
