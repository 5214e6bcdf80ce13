package http1

import (
	"io"
	"math"

	"github.com/indigo-web/chunkedbody"
	"github.com/sww1235/tiny-http/config"
	"github.com/sww1235/tiny-http/http"
	"github.com/sww1235/tiny-http/http/status"
	"github.com/sww1235/tiny-http/transport"
)

var continueResponse = []byte("HTTP/1.1 100 Continue\r\n\r\n")

// Body is the message body source of a single connection, re-initialized for
// every arriving request. It implements http.Retriever.
type Body struct {
	plain           plainBodyReader
	chunked         chunkedBodyReader
	client          transport.Client
	isChunked       bool
	pendingContinue bool
	eof             bool
}

func NewBody(client transport.Client, chunkedParser *chunkedbody.Parser, s config.Body) *Body {
	return &Body{
		plain:   newPlainBodyReader(client, s.MaxSize),
		chunked: newChunkedBodyReader(client, s.MaxSize, chunkedParser),
		client:  client,
		eof:     true,
	}
}

func (b *Body) Init(request *http.Request) {
	b.isChunked = request.Encoding.Chunked
	if b.isChunked {
		b.chunked.init(request)
	} else {
		b.plain.init(request)
	}

	b.eof = !b.isChunked && request.ContentLength == 0
	// 100 Continue makes sense only when there is an actual body to invite
	b.pendingContinue = request.Expect && !b.eof
}

// AwaitingContinue reports whether the client was promised an 100 Continue
// which was never sent, meaning the body most probably never hit the wire.
func (b *Body) AwaitingContinue() bool {
	return b.pendingContinue
}

func (b *Body) Retrieve() ([]byte, error) {
	if b.eof {
		return nil, io.EOF
	}

	if b.pendingContinue {
		if err := b.client.Write(continueResponse); err != nil {
			return nil, err
		}

		b.pendingContinue = false
	}

	var (
		piece []byte
		err   error
	)

	if b.isChunked {
		piece, err = b.chunked.read()
	} else {
		piece, err = b.plain.read()
	}

	if err == io.EOF {
		b.eof = true
	}

	return piece, err
}

// Drain reads the rest of the body through without handing it to anybody, so
// the next request head can be parsed off the stream. Leftovers above the
// limit aren't worth the bandwidth, status.ErrCloseConnection is reported
// instead.
func (b *Body) Drain(limit uint) error {
	var drained uint

	for !b.eof {
		piece, err := b.Retrieve()
		switch err {
		case nil, io.EOF:
		default:
			return err
		}

		drained += uint(len(piece))
		if drained > limit && !b.eof {
			return status.ErrCloseConnection
		}
	}

	return nil
}

type plainBodyReader struct {
	client                transport.Client
	maxBodyLen, bytesLeft uint
}

func newPlainBodyReader(client transport.Client, maxBodyLen uint) plainBodyReader {
	return plainBodyReader{
		client:     client,
		maxBodyLen: maxBodyLen,
	}
}

func (p *plainBodyReader) init(request *http.Request) {
	p.bytesLeft = uint(request.ContentLength)
}

func (p *plainBodyReader) read() (body []byte, err error) {
	if p.bytesLeft == 0 {
		return nil, io.EOF
	}

	data, err := p.client.Read()
	if err != nil {
		return nil, err
	}

	if p.bytesLeft > p.maxBodyLen {
		return nil, status.ErrBodyTooLarge
	}

	if dataLen := uint(len(data)); dataLen >= p.bytesLeft {
		body, data = data[:p.bytesLeft], data[p.bytesLeft:]
		p.client.Unread(data)
		p.bytesLeft = 0
		err = io.EOF
	} else {
		p.bytesLeft -= dataLen
		body = data
	}

	return body, err
}

type chunkedBodyReader struct {
	client               transport.Client
	maxBodyLen, received uint
	hasTrailer           bool
	parser               *chunkedbody.Parser
}

func newChunkedBodyReader(client transport.Client, maxBodyLen uint, parser *chunkedbody.Parser) chunkedBodyReader {
	return chunkedBodyReader{
		client:     client,
		maxBodyLen: maxBodyLen,
		parser:     parser,
	}
}

func (c *chunkedBodyReader) init(request *http.Request) {
	c.hasTrailer = request.Encoding.HasTrailer
	c.received = 0
}

func (c *chunkedBodyReader) read() (body []byte, err error) {
	data, err := c.client.Read()
	if err != nil {
		return nil, err
	}

	chunk, extra, err := c.parser.Parse(data, c.hasTrailer)
	switch err {
	case nil, io.EOF:
	default:
		return nil, status.ErrBadChunk
	}

	received, overflows := adduint(c.received, uint(len(chunk)))
	if overflows || received > c.maxBodyLen {
		return nil, status.ErrBodyTooLarge
	}

	c.received = received
	c.client.Unread(extra)

	return chunk, err
}

func adduint(x, y uint) (uint, bool) {
	return x + y, math.MaxUint-x < y
}
