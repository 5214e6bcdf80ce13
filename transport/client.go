package transport

import (
	"net"
	"time"

	"github.com/indigo-web/utils/unreader"

	"github.com/sww1235/tiny-http/internal/timer"
)

// Client is an exclusively owned read/write handle over an accepted stream.
// The engine never distinguishes plaintext from TLS here: both are just
// ordered opaque bytes.
type Client interface {
	Read() ([]byte, error)
	Unread([]byte)
	Write([]byte) error
	Remote() net.Addr
	Conn() net.Conn
	Close() error
}

type client struct {
	unreader *unreader.Unreader
	buff     []byte
	conn     net.Conn
	timeout  time.Duration
}

func NewClient(conn net.Conn, timeout time.Duration, buff []byte) Client {
	return &client{
		unreader: new(unreader.Unreader),
		buff:     buff,
		conn:     conn,
		timeout:  timeout,
	}
}

// Read reads data into the internal buffer and returns a piece of it back.
// Timeouts are handled automatically.
func (c *client) Read() ([]byte, error) {
	return c.unreader.PendingOr(func() ([]byte, error) {
		if err := c.conn.SetReadDeadline(timer.Now().Add(c.timeout)); err != nil {
			return nil, err
		}

		n, err := c.conn.Read(c.buff)

		return c.buff[:n], err
	})
}

// Unread preserves a chunk of data from the previous read for the next read.
func (c *client) Unread(b []byte) {
	c.unreader.Unread(b)
}

func (c *client) Write(b []byte) error {
	_, err := c.conn.Write(b)

	return err
}

func (c *client) Remote() net.Addr {
	return c.conn.RemoteAddr()
}

// Conn unwraps the underlying net.Conn.
func (c *client) Conn() net.Conn {
	return c.conn
}

func (c *client) Close() error {
	return c.conn.Close()
}
