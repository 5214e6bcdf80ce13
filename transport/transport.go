package transport

import (
	"net"

	"github.com/sww1235/tiny-http/config"
)

// Transport is a listening socket decorated with the accept loop machinery.
// Implementations differ only in how the stream is constructed (plain TCP,
// TLS of any backing), the engine above is written once against net.Conn.
type Transport interface {
	Bind(addr string) error
	Addr() net.Addr
	Listen(cfg config.NET, cb func(conn net.Conn)) error
	// Stop makes the accept loop quit after at most cfg.NET.AcceptLoopInterruptPeriod.
	Stop()
	// Kill forcibly closes all the connections accepted so far.
	Kill()
	Close()
	Wait()
}
