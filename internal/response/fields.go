package response

import (
	"github.com/sww1235/tiny-http/http/status"
	"github.com/sww1235/tiny-http/kv"
)

const DefaultContentType = "text/html"

// Fields is the bare state of a response builder, revealed to the serializer.
type Fields struct {
	Attachment       Attachment
	Status           status.Status
	ContentType      string
	TransferEncoding string
	Headers          []kv.Pair
	Body             []byte
	Code             status.Code
}

func (f Fields) Clear() Fields {
	f.Code = status.OK
	f.Status = ""
	f.ContentType = DefaultContentType
	f.TransferEncoding = ""
	f.Headers = f.Headers[:0]
	f.Body = nil
	f.Attachment = Attachment{}

	return f
}
