package http

import (
	"io"

	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

type BodyCallback func([]byte) error

type Retriever interface {
	// Retrieve reads and returns a piece of body available for processing
	Retrieve() ([]byte, error)
}

type retriever = Retriever

// Body provides access to the message body of a request. All the methods share
// the same underlying stream, so mixing them mid-body is possible, yet the data
// is consumed exactly once.
type Body struct {
	retriever
	buff    []byte
	pending []byte
	error   error
}

func NewBody(impl retriever) *Body {
	return &Body{
		retriever: impl,
	}
}

// Callback invokes the callback every time as there's a piece of body available
// for reading. If the callback returns an error, it'll be passed back to the caller.
//
// Please note: this method can be used only once.
func (b *Body) Callback(cb BodyCallback) error {
	if b.error != nil {
		return b.error
	}

	for {
		var data []byte
		data, b.error = b.Retrieve()
		switch b.error {
		case nil:
		case io.EOF:
			return cb(data)
		default:
			return b.error
		}

		if b.error = cb(data); b.error != nil {
			return b.error
		}
	}
}

// Bytes returns the whole body at once in a byte representation.
func (b *Body) Bytes() ([]byte, error) {
	if len(b.buff) != 0 {
		return b.buff, nil
	}

	if b.error != nil {
		return nil, b.error
	}

	for {
		var data []byte
		data, b.error = b.Retrieve()
		b.buff = append(b.buff, data...)
		switch b.error {
		case nil:
		case io.EOF:
			return b.buff, nil
		default:
			return nil, b.error
		}
	}
}

// String returns the whole body at once in a string representation.
func (b *Body) String() (string, error) {
	bytes, err := b.Bytes()
	return uf.B2S(bytes), err
}

// Read implements the io.Reader interface.
func (b *Body) Read(into []byte) (n int, err error) {
	if len(b.pending) == 0 && b.error == nil {
		b.pending, b.error = b.Retrieve()
	}

	n = copy(into, b.pending)
	b.pending = b.pending[n:]

	if len(b.pending) == 0 && b.error != nil {
		err = b.error
	}

	return n, err
}

// JSON convoys the request's body to a json unmarshaller automatically and behaves
// in a similar manner. The Content-Type header is not consulted.
func (b *Body) JSON(model any) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}

	iterator := json.ConfigDefault.BorrowIterator(data)
	iterator.ReadVal(model)
	err = iterator.Error
	json.ConfigDefault.ReturnIterator(iterator)

	return err
}

// Discard discards the rest of the body (if any). If no networking error was
// encountered, nil is returned.
func (b *Body) Discard() error {
	for b.error == nil {
		_, b.error = b.Retrieve()
	}

	if b.error == io.EOF {
		return nil
	}

	return b.error
}

// Error returns a previously encountered error, otherwise nil.
func (b *Body) Error() error {
	return b.error
}

// Reset prepares the body for the next message on the same stream. The caller
// is responsible for the previous message being read till the end.
func (b *Body) Reset() {
	b.error = nil
	b.buff = b.buff[:0]
	b.pending = nil
}
