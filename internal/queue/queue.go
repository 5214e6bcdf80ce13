package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/sww1235/tiny-http/http"
	"github.com/sww1235/tiny-http/http/status"
)

// ErrEmpty is returned by non-blocking and deadlined pulls when no request
// arrived in time.
var ErrEmpty = errors.New("no requests are pending")

// Queue is the fan-in point between connections and the application. Every
// connection pushes its parsed requests here, and the application pulls them
// one by one in the arrival order.
type Queue struct {
	ch   chan *http.Request
	stop chan struct{}
	once sync.Once
}

func New(capacity int) *Queue {
	return &Queue{
		ch:   make(chan *http.Request, capacity),
		stop: make(chan struct{}),
	}
}

// Push hands a request over to the application. It blocks until there is a
// free slot, and fails with status.ErrShutdown once the queue is stopped.
func (q *Queue) Push(request *http.Request) error {
	// checked before the blocking select: with both a free slot and a closed
	// stop channel ready, the select would pick at random, letting a push
	// sneak into a stopped queue
	if q.Stopped() {
		return status.ErrShutdown
	}

	select {
	case q.ch <- request:
		return nil
	case <-q.stop:
		return status.ErrShutdown
	}
}

// Pull blocks until a request arrives. After the queue is stopped, requests
// pushed before the stop are still served, and only then status.ErrShutdown
// is reported.
func (q *Queue) Pull() (*http.Request, error) {
	select {
	case request := <-q.ch:
		return request, nil
	case <-q.stop:
		return q.drain()
	}
}

// TryPull is a non-blocking Pull. ErrEmpty is reported when there is nothing
// to serve right away.
func (q *Queue) TryPull() (*http.Request, error) {
	select {
	case request := <-q.ch:
		return request, nil
	default:
		if q.Stopped() {
			return nil, status.ErrShutdown
		}

		return nil, ErrEmpty
	}
}

// PullTimeout is a Pull which gives up with ErrEmpty after the timeout expires.
func (q *Queue) PullTimeout(timeout time.Duration) (*http.Request, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case request := <-q.ch:
		return request, nil
	case <-q.stop:
		return q.drain()
	case <-timer.C:
		return nil, ErrEmpty
	}
}

// Stop wakes all the blocked pulls up and makes all the further pushes fail.
// The call is idempotent.
func (q *Queue) Stop() {
	q.once.Do(func() {
		close(q.stop)
	})
}

func (q *Queue) Stopped() bool {
	select {
	case <-q.stop:
		return true
	default:
		return false
	}
}

func (q *Queue) drain() (*http.Request, error) {
	select {
	case request := <-q.ch:
		return request, nil
	default:
		return nil, status.ErrShutdown
	}
}
