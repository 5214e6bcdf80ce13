package tinyhttp

import (
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sww1235/tiny-http/config"
	"github.com/sww1235/tiny-http/http"
	"github.com/sww1235/tiny-http/http/status"
	"github.com/sww1235/tiny-http/internal/construct"
	"github.com/sww1235/tiny-http/internal/protocol/http1"
	"github.com/sww1235/tiny-http/internal/queue"
	"github.com/sww1235/tiny-http/transport"
)

var (
	ErrAlreadyRunning = errors.New("the server is already running")
	ErrNoCertificates = errors.New("no certificates were passed")
	// ErrEmpty is reported by TryPull and PullTimeout when no request arrived
	// in time.
	ErrEmpty = queue.ErrEmpty
	// ErrShutdown is reported by pulls once the server is shutting down and
	// no pending requests are left to serve.
	ErrShutdown = status.ErrShutdown
)

// Server accepts HTTP/1 connections and turns them into a single stream of
// requests, consumed via Pull by however many goroutines the application
// prefers. Every request must be responded to exactly once.
type Server struct {
	cfg       *config.Config
	sup       *transport.Supervisor
	pending   *queue.Queue
	listeners []listener
	conns     atomic.Int64
	running   atomic.Bool
	mu        sync.Mutex
	done      chan error
}

type listener struct {
	addr string
	t    transport.Transport
	err  error
}

// New returns a server listening on addr with the default config. More
// listeners may be attached via TLS and AutoTLS before Start.
func New(addr string) *Server {
	s := &Server{
		cfg:  config.Default(),
		sup:  transport.NewSupervisor(),
		done: make(chan error, 1),
	}
	s.pending = queue.New(s.cfg.HTTP.PendingRequests)
	s.listeners = append(s.listeners, listener{addr: addr, t: transport.NewTCP()})

	return s
}

// Tune replaces the default config. Must be called before Start.
func (s *Server) Tune(cfg *config.Config) *Server {
	s.cfg = cfg
	s.pending = queue.New(cfg.HTTP.PendingRequests)

	return s
}

// TLS attaches a TLS listener on addr with the passed certificates.
func (s *Server) TLS(addr string, certs ...tls.Certificate) *Server {
	if len(certs) == 0 {
		s.listeners = append(s.listeners, listener{addr: addr, err: ErrNoCertificates})
		return s
	}

	s.listeners = append(s.listeners, listener{addr: addr, t: transport.NewTLSCerts(certs...)})

	return s
}

// TLSFiles attaches a TLS listener on addr with a certificate loaded from the
// PEM-encoded pair of files.
func (s *Server) TLSFiles(addr, certFile, keyFile string) *Server {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		// there's no way to report it at this point. Save it in the listener,
		// Start will catch and return it
		s.listeners = append(s.listeners, listener{addr: addr, err: err})
		return s
	}

	return s.TLS(addr, cert)
}

// AutoTLS attaches a TLS listener on addr, obtaining certificates via ACME for
// the passed domains. Localhost addresses get a self-signed certificate instead.
func (s *Server) AutoTLS(addr string, domains ...string) *Server {
	cfg, err := autoTLSConfig(addr, domains...)
	if err != nil {
		s.listeners = append(s.listeners, listener{addr: addr, err: err})
		return s
	}

	s.listeners = append(s.listeners, listener{addr: addr, t: transport.NewTLS(cfg)})

	return s
}

// Start binds all the listeners and begins accepting connections in the
// background. The call is non-blocking, use Wait to park until the server dies.
func (s *Server) Start() error {
	if s.running.Swap(true) {
		return ErrAlreadyRunning
	}

	for _, l := range s.listeners {
		// deferred construction errors surface before anything is bound
		if l.err != nil {
			return l.err
		}
	}

	for _, l := range s.listeners {
		if err := s.sup.Add(l.addr, l.t, s.serveConn); err != nil {
			return err
		}
	}

	go func() {
		s.done <- s.sup.Run(s.cfg.NET)
	}()

	return nil
}

// Addr reports the actual address of the first listener. Handy when the
// server was bound to port zero.
func (s *Server) Addr() net.Addr {
	return s.sup.Addr()
}

// Pull blocks until a request arrives on any connection. Requests pushed
// before a shutdown are still handed out, afterwards ErrShutdown is reported.
func (s *Server) Pull() (*http.Request, error) {
	return s.pending.Pull()
}

// TryPull is a non-blocking Pull.
func (s *Server) TryPull() (*http.Request, error) {
	return s.pending.TryPull()
}

// PullTimeout is a Pull which gives up with ErrEmpty after the timeout expires.
func (s *Server) PullTimeout(timeout time.Duration) (*http.Request, error) {
	return s.pending.PullTimeout(timeout)
}

// Shutdown stops accepting new connections and requests, and waits for the
// connections served at the moment to finish their lives peacefully. The call
// is idempotent.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending.Stop()

	if s.running.Load() {
		s.sup.Stop()
	}
}

// Stop shuts the server down forcibly, closing all the connections served at
// the moment.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending.Stop()

	if s.running.Load() {
		s.sup.Kill()
	}
}

// Wait parks the caller until the server dies, returning the error it died
// with, if any.
func (s *Server) Wait() error {
	return <-s.done
}

func (s *Server) serveConn(conn net.Conn) {
	if !s.admit() {
		// over capacity. Dropping the connection on the floor beats queueing
		// peers without any bound
		_ = conn.Close()
		return
	}
	defer s.release()

	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			return
		}
	}

	client := construct.Client(s.cfg.NET, conn)
	http1.Initialize(s.cfg, client, s.pending).Serve()
}

func (s *Server) admit() bool {
	max := s.cfg.NET.MaxConnections
	if s.conns.Add(1) > int64(max) && max > 0 {
		s.conns.Add(-1)
		return false
	}

	return true
}

func (s *Server) release() {
	s.conns.Add(-1)
}
