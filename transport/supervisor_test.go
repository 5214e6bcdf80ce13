package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sww1235/tiny-http/config"
)

// stubTransport fails its accept loop with the given error right away.
type stubTransport struct {
	listenErr error
}

func (s *stubTransport) Bind(string) error { return nil }
func (s *stubTransport) Addr() net.Addr    { return nil }
func (s *stubTransport) Listen(config.NET, func(net.Conn)) error {
	return s.listenErr
}
func (s *stubTransport) Stop()  {}
func (s *stubTransport) Kill()  {}
func (s *stubTransport) Close() {}
func (s *stubTransport) Wait()  {}

// blockingTransport accepts nothing and parks until stopped, like a real
// listener with no peers around.
type blockingTransport struct {
	quit chan struct{}
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{quit: make(chan struct{})}
}

func (b *blockingTransport) Bind(string) error { return nil }
func (b *blockingTransport) Addr() net.Addr    { return nil }
func (b *blockingTransport) Listen(config.NET, func(net.Conn)) error {
	<-b.quit
	return nil
}
func (b *blockingTransport) Stop()  { close(b.quit) }
func (b *blockingTransport) Kill()  {}
func (b *blockingTransport) Close() {}
func (b *blockingTransport) Wait()  {}

func stopEventually(t *testing.T, sup *Supervisor) {
	stopped := make(chan struct{})
	go func() {
		sup.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop blocked forever")
	}
}

func TestSupervisor(t *testing.T) {
	t.Run("graceful stop handshake", func(t *testing.T) {
		sup := NewSupervisor()
		require.NoError(t, sup.Add("", newBlockingTransport(), nil))

		errs := make(chan error, 1)
		go func() {
			errs <- sup.Run(config.Default().NET)
		}()

		stopEventually(t, sup)
		require.NoError(t, <-errs)
	})

	t.Run("transport failure surfaces through run", func(t *testing.T) {
		sentinel := errors.New("address already in use")
		sup := NewSupervisor()
		require.NoError(t, sup.Add("", &stubTransport{listenErr: sentinel}, nil))

		errs := make(chan error, 1)
		go func() {
			errs <- sup.Run(config.Default().NET)
		}()

		require.EqualError(t, <-errs, sentinel.Error())

		// the supervisor is already dead, stopping it must not block
		stopEventually(t, sup)
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		sup := NewSupervisor()
		require.NoError(t, sup.Add("", newBlockingTransport(), nil))

		errs := make(chan error, 1)
		go func() {
			errs <- sup.Run(config.Default().NET)
		}()

		stopEventually(t, sup)
		stopEventually(t, sup)
		require.NoError(t, <-errs)
	})
}
