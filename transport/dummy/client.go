package dummy

import (
	"io"
	"net"

	"github.com/indigo-web/utils/unreader"
)

// CircularClient returns the pieces of data it was initialised with, one per
// read, wrapping around unless OneTime is set. Everything written into it is
// recorded, which makes it the workhorse of serializer and connection tests.
type CircularClient struct {
	unreader        *unreader.Unreader
	data            [][]byte
	written         []byte
	pointer         int
	closed, oneTime bool
}

func NewCircularClient(data ...[]byte) *CircularClient {
	return &CircularClient{
		unreader: new(unreader.Unreader),
		data:     data,
		pointer:  -1,
	}
}

func (c *CircularClient) Read() ([]byte, error) {
	if c.closed {
		return nil, io.EOF
	}

	return c.unreader.PendingOr(func() ([]byte, error) {
		c.pointer++

		if c.pointer == len(c.data) {
			if c.oneTime {
				c.closed = true
				return nil, io.EOF
			}

			c.pointer = 0
		}

		return c.data[c.pointer], nil
	})
}

func (c *CircularClient) Unread(takeback []byte) {
	c.unreader.Unread(takeback)
}

func (c *CircularClient) Write(b []byte) error {
	c.written = append(c.written, b...)
	return nil
}

// Written reports everything the engine has sent so far.
func (c *CircularClient) Written() []byte {
	return c.written
}

func (c *CircularClient) Remote() net.Addr {
	return nil
}

func (c *CircularClient) Conn() net.Conn {
	return nil
}

func (c *CircularClient) Close() error {
	c.closed = true
	return nil
}

func (c *CircularClient) Closed() bool {
	return c.closed
}

// OneTime makes the client return io.EOF once all the pieces are consumed
// instead of wrapping around.
func (c *CircularClient) OneTime() *CircularClient {
	c.oneTime = true
	return c
}

// NopClient reads nothing and swallows writes. Used where a client is
// formally required but never actually touched.
type NopClient struct{}

func NewNopClient() *NopClient {
	return new(NopClient)
}

func (NopClient) Read() ([]byte, error) {
	return nil, io.EOF
}

func (NopClient) Unread([]byte) {}

func (NopClient) Write([]byte) error {
	return nil
}

func (NopClient) Remote() net.Addr {
	return nil
}

func (NopClient) Conn() net.Conn {
	return nil
}

func (NopClient) Close() error {
	return nil
}
