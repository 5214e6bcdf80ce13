package transport

import (
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sww1235/tiny-http/config"
	"github.com/sww1235/tiny-http/internal/timer"
)

type listener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

type TCP struct {
	l     listener
	wg    *sync.WaitGroup
	stop  *atomic.Bool
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewTCP() *TCP {
	return newTCP(nil)
}

func newTCP(l listener) *TCP {
	return &TCP{
		l:     l,
		wg:    new(sync.WaitGroup),
		stop:  new(atomic.Bool),
		conns: map[net.Conn]struct{}{},
	}
}

func bindTCP(addr string) (*net.TCPListener, error) {
	tcpaddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	return net.ListenTCP("tcp", tcpaddr)
}

func (t *TCP) Bind(addr string) (err error) {
	t.l, err = bindTCP(addr)
	return err
}

func (t *TCP) Addr() net.Addr {
	return t.l.Addr()
}

func (t *TCP) Listen(cfg config.NET, cb func(conn net.Conn)) error {
	for !t.stop.Load() {
		err := t.l.SetDeadline(timer.Now().Add(cfg.AcceptLoopInterruptPeriod))
		if err != nil {
			return err
		}

		conn, err := t.l.Accept()
		if err != nil {
			if operr, ok := err.(*net.OpError); ok && operr.Err.Error() == os.ErrDeadlineExceeded.Error() {
				continue
			}

			return err
		}

		t.track(conn)
		t.wg.Add(1)

		go func(conn net.Conn) {
			cb(conn)
			_ = conn.Close()
			t.forget(conn)
			t.wg.Done()
		}(conn)
	}

	return nil
}

func (t *TCP) Stop() {
	t.stop.Store(true)
}

func (t *TCP) Kill() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for conn := range t.conns {
		_ = conn.Close()
	}
}

func (t *TCP) Close() {
	_ = t.l.Close()
}

func (t *TCP) Wait() {
	t.wg.Wait()
}

func (t *TCP) track(conn net.Conn) {
	t.mu.Lock()
	t.conns[conn] = struct{}{}
	t.mu.Unlock()
}

func (t *TCP) forget(conn net.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
}
