package transport

import (
	"net"
	"sync/atomic"

	"github.com/sww1235/tiny-http/config"
)

// Supervisor runs a set of bound transports and tears all of them down as
// soon as any fails, or when asked to stop.
type Supervisor struct {
	stopped *atomic.Bool
	ts      []boundTransport
	stopch  chan stopRequest
	// done is closed as Run returns, releasing signals which would otherwise
	// knock on a select nobody serves anymore
	done chan struct{}
}

type stopRequest struct {
	kill bool
}

func NewSupervisor() *Supervisor {
	return &Supervisor{
		stopped: new(atomic.Bool),
		stopch:  make(chan stopRequest),
		done:    make(chan struct{}),
	}
}

func (s *Supervisor) Add(addr string, transport Transport, cb func(net.Conn)) error {
	err := transport.Bind(addr)
	if err != nil {
		s.close()
		return err
	}

	s.ts = append(s.ts, boundTransport{
		cb: cb,
		t:  transport,
	})

	return nil
}

// Addr reports the bound address of the first transport. Handy when the
// server was bound to port zero.
func (s *Supervisor) Addr() net.Addr {
	if len(s.ts) == 0 {
		return nil
	}

	return s.ts[0].t.Addr()
}

func (s *Supervisor) Run(cfg config.NET) error {
	defer close(s.done)

	if len(s.ts) == 0 {
		return nil
	}

	errch := make(chan error)

	for _, t := range s.ts {
		go func(t boundTransport, ch chan<- error) {
			errch <- t.t.Listen(cfg, t.cb)
		}(t, errch)
	}

	select {
	case err := <-errch:
		s.stop(false)
		drain(errch, len(s.ts)-1)

		return err
	case req := <-s.stopch:
		s.stop(req.kill)
		drain(errch, len(s.ts))
		s.stopch <- stopRequest{}

		return nil
	}
}

// Stop quits accepting and waits for all the served connections to finish
// their lives peacefully. The call is idempotent.
func (s *Supervisor) Stop() {
	s.signal(stopRequest{kill: false})
}

// Kill quits accepting and forcibly closes all the served connections.
func (s *Supervisor) Kill() {
	s.signal(stopRequest{kill: true})
}

func (s *Supervisor) signal(req stopRequest) {
	// Run may leave its select at any moment because of a dying transport, so
	// the handshake must never be the only way out of here
	select {
	case s.stopch <- req:
		<-s.stopch
	case <-s.done:
	}
}

func (s *Supervisor) stop(kill bool) {
	if s.stopped.Swap(true) {
		return
	}

	for _, t := range s.ts {
		t.t.Stop()
	}

	if kill {
		for _, t := range s.ts {
			t.t.Kill()
		}
	}

	for _, t := range s.ts {
		t.t.Wait()
		t.t.Close()
	}
}

func (s *Supervisor) close() {
	for _, t := range s.ts {
		t.t.Close()
	}
}

type boundTransport struct {
	cb func(conn net.Conn)
	t  Transport
}

func drain(ch <-chan error, n int) {
	for i := 0; i < n; i++ {
		<-ch
	}
}
