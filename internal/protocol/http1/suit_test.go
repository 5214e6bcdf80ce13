package http1

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sww1235/tiny-http/config"
	"github.com/sww1235/tiny-http/http"
	"github.com/sww1235/tiny-http/http/status"
	"github.com/sww1235/tiny-http/internal/queue"
	"github.com/sww1235/tiny-http/transport/dummy"
)

// serveConn spawns an application goroutine and drives the connection till the
// end, returning everything the engine has written into the socket.
func serveConn(cfg *config.Config, client *dummy.CircularClient, app func(*http.Request)) string {
	pending := queue.New(cfg.HTTP.PendingRequests)
	defer pending.Stop()

	go func() {
		for {
			request, err := pending.Pull()
			if err != nil {
				return
			}

			app(request)
		}
	}()

	Initialize(cfg, client, pending).Serve()

	return string(client.Written())
}

func respondText(text string) func(*http.Request) {
	return func(request *http.Request) {
		_ = request.Respond(http.NewResponse().String(text))
	}
}

func TestSuit(t *testing.T) {
	t.Run("keep-alive session", func(t *testing.T) {
		client := dummy.NewCircularClient(
			[]byte("GET /first HTTP/1.1\r\n\r\n"),
			[]byte("GET /second HTTP/1.1\r\n\r\n"),
			[]byte("GET /third HTTP/1.1\r\nConnection: close\r\n\r\n"),
		).OneTime()

		written := serveConn(config.Default(), client, respondText("hi"))
		require.Equal(t, 3, strings.Count(written, "HTTP/1.1 200 OK\r\n"), written)
		require.True(t, client.Closed())
	})

	t.Run("connection close ends the session", func(t *testing.T) {
		client := dummy.NewCircularClient(
			[]byte("GET / HTTP/1.1\r\nConnection: close\r\n\r\n"),
			[]byte("GET /never-parsed HTTP/1.1\r\n\r\n"),
		)

		written := serveConn(config.Default(), client, respondText("bye"))
		require.Equal(t, 1, strings.Count(written, "HTTP/1.1 200 OK\r\n"), written)
	})

	t.Run("unread body is drained between requests", func(t *testing.T) {
		client := dummy.NewCircularClient(
			[]byte("POST /upload HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"),
			[]byte("GET /next HTTP/1.1\r\n\r\n"),
		).OneTime()

		// the application never touches the body
		written := serveConn(config.Default(), client, respondText("ok"))
		require.Equal(t, 2, strings.Count(written, "HTTP/1.1 200 OK\r\n"), written)
	})

	t.Run("leftover body above the drain limit closes the connection", func(t *testing.T) {
		cfg := config.Default()
		cfg.Body.MaxDrainSize = 2

		client := dummy.NewCircularClient(
			[]byte("POST /upload HTTP/1.1\r\nContent-Length: 10\r\n\r\n"),
			[]byte("aaaaa"), []byte("aaaaa"),
			[]byte("GET /never-served HTTP/1.1\r\n\r\n"),
		).OneTime()

		written := serveConn(cfg, client, respondText("ok"))
		require.Equal(t, 1, strings.Count(written, "HTTP/1.1 200 OK\r\n"), written)
	})

	t.Run("second respond fails", func(t *testing.T) {
		errs := make(chan error, 2)
		client := dummy.NewCircularClient([]byte("GET / HTTP/1.1\r\n\r\n")).OneTime()

		serveConn(config.Default(), client, func(request *http.Request) {
			errs <- request.Respond(http.NewResponse().String("first"))
			errs <- request.Respond(http.NewResponse().String("second"))
		})

		require.NoError(t, <-errs)
		require.EqualError(t, <-errs, status.ErrDoubleRespond.Error())
	})

	t.Run("malformed request gets 400 and the connection dies", func(t *testing.T) {
		client := dummy.NewCircularClient(
			[]byte("GET / HTTP/1.1\r\n: broken\r\n\r\n"),
			[]byte("GET /never-served HTTP/1.1\r\n\r\n"),
		).OneTime()

		written := serveConn(config.Default(), client, respondText("nope"))
		require.Contains(t, written, "HTTP/1.1 400 Bad Request\r\n")
		require.NotContains(t, written, "200 OK")
	})

	t.Run("content-length together with chunked is refused", func(t *testing.T) {
		client := dummy.NewCircularClient(
			[]byte("POST / HTTP/1.1\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\n"),
		).OneTime()

		written := serveConn(config.Default(), client, respondText("nope"))
		require.Contains(t, written, "HTTP/1.1 400 Bad Request\r\n")
	})

	t.Run("response timeout synthesizes 408", func(t *testing.T) {
		cfg := config.Default()
		cfg.HTTP.ResponseTimeout = 10 * time.Millisecond

		client := dummy.NewCircularClient([]byte("GET / HTTP/1.1\r\n\r\n")).OneTime()

		// the application ignores the request completely
		written := serveConn(cfg, client, func(*http.Request) {})
		require.Contains(t, written, "HTTP/1.1 408 Request Timeout\r\n")
	})

	t.Run("shutdown refuses the request with 503", func(t *testing.T) {
		cfg := config.Default()
		pending := queue.New(cfg.HTTP.PendingRequests)
		pending.Stop()

		client := dummy.NewCircularClient([]byte("GET / HTTP/1.1\r\n\r\n")).OneTime()
		Initialize(cfg, client, pending).Serve()

		require.Contains(t, string(client.Written()), "HTTP/1.1 503 Service Unavailable\r\n")
	})
}

func TestSuitExpectContinue(t *testing.T) {
	t.Run("the body read triggers the interim response", func(t *testing.T) {
		// room for both requests, so the handler never blocks on the send
		bodies := make(chan string, 2)
		client := dummy.NewCircularClient(
			[]byte("POST / HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 5\r\n\r\n"),
			[]byte("hello"),
			[]byte("GET /next HTTP/1.1\r\n\r\n"),
		).OneTime()

		written := serveConn(config.Default(), client, func(request *http.Request) {
			body, _ := request.Body.String()
			bodies <- body
			_ = request.Respond(http.NewResponse().String("ok"))
		})

		require.Equal(t, "hello", <-bodies)
		require.Empty(t, <-bodies)
		require.Equal(t, 2, strings.Count(written, "HTTP/1.1 200 OK\r\n"), written)
		require.Equal(t, 1, strings.Count(written, "HTTP/1.1 100 Continue\r\n\r\n"), written)
		require.Less(t,
			strings.Index(written, "HTTP/1.1 100 Continue\r\n\r\n"),
			strings.Index(written, "HTTP/1.1 200 OK\r\n"),
		)
	})

	t.Run("responding without the invite closes the connection", func(t *testing.T) {
		client := dummy.NewCircularClient(
			[]byte("POST / HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 5\r\n\r\n"),
			[]byte("GET /never-served HTTP/1.1\r\n\r\n"),
		).OneTime()

		// the body is never read, so the peer was never invited to send it
		written := serveConn(config.Default(), client, respondText("denied"))
		require.NotContains(t, written, "100 Continue")
		require.Equal(t, 1, strings.Count(written, "HTTP/1.1 200 OK\r\n"), written)
	})
}
