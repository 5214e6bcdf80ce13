package tinyhttp

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sww1235/tiny-http/config"
	"github.com/sww1235/tiny-http/http"
)

func testConfig() *config.Config {
	cfg := config.Default()
	// keep the accept loop responsive, so shutdowns don't stall the test run
	cfg.NET.AcceptLoopInterruptPeriod = 100 * time.Millisecond
	cfg.NET.ReadTimeout = 5 * time.Second

	return cfg
}

func startServer(t *testing.T, cfg *config.Config, app func(*http.Request)) *Server {
	s := New("localhost:0").Tune(cfg)
	require.NoError(t, s.Start())

	go func() {
		for {
			request, err := s.Pull()
			if err != nil {
				return
			}

			go app(request)
		}
	}()

	return s
}

func dial(t *testing.T, s *Server) net.Conn {
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	return conn
}

func send(t *testing.T, conn net.Conn, raw string) {
	_, err := conn.Write([]byte(raw))
	require.NoError(t, err)
}

// readResponse reads a single complete response off the connection, splitting
// it into the head and exactly Content-Length bytes of body.
func readResponse(t *testing.T, conn net.Conn) (head, body string) {
	var buff []byte
	tmp := make([]byte, 1024)

	for {
		boundary := bytes.Index(buff, []byte("\r\n\r\n"))
		if boundary != -1 {
			head = string(buff[:boundary+4])
			rest := buff[boundary+4:]
			length := contentLengthOf(t, head)

			for len(rest) < length {
				n, err := conn.Read(tmp)
				require.NoError(t, err)
				rest = append(rest, tmp[:n]...)
			}

			return head, string(rest[:length])
		}

		n, err := conn.Read(tmp)
		require.NoError(t, err)
		buff = append(buff, tmp[:n]...)
	}
}

func contentLengthOf(t *testing.T, head string) int {
	const prefix = "Content-Length: "

	begin := strings.Index(head, prefix)
	if begin == -1 {
		return 0
	}

	end := strings.IndexByte(head[begin:], '\r')
	require.NotEqual(t, -1, end)

	length, err := strconv.Atoi(head[begin+len(prefix) : begin+end])
	require.NoError(t, err)

	return length
}

func TestServer(t *testing.T) {
	t.Run("keep-alive session", func(t *testing.T) {
		s := startServer(t, testConfig(), func(request *http.Request) {
			_ = request.Respond(http.NewResponse().String("you asked " + request.Target))
		})
		defer shutdown(t, s)

		conn := dial(t, s)
		defer conn.Close()

		for _, target := range []string{"/first", "/second", "/third"} {
			send(t, conn, "GET "+target+" HTTP/1.1\r\nHost: localhost\r\n\r\n")
			head, body := readResponse(t, conn)
			require.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n"), head)
			require.Equal(t, "you asked "+target, body)
		}

		send(t, conn, "GET /last HTTP/1.1\r\nConnection: close\r\n\r\n")
		head, _ := readResponse(t, conn)
		require.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n"), head)

		// the server promised to hang up
		one := make([]byte, 1)
		_, err := conn.Read(one)
		require.Error(t, err)
	})

	t.Run("request body echo", func(t *testing.T) {
		s := startServer(t, testConfig(), func(request *http.Request) {
			body, err := request.Body.String()
			if err != nil {
				_ = request.RespondError(err)
				return
			}

			_ = request.Respond(http.NewResponse().String(body))
		})
		defer shutdown(t, s)

		conn := dial(t, s)
		defer conn.Close()

		send(t, conn, "POST /echo HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
		head, body := readResponse(t, conn)
		require.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n"), head)
		require.Equal(t, "hello", body)

		send(t, conn, "POST /echo HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nworld\r\n0\r\n\r\n")
		head, body = readResponse(t, conn)
		require.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n"), head)
		require.Equal(t, "world", body)
	})

	t.Run("connections above the limit are refused", func(t *testing.T) {
		cfg := testConfig()
		cfg.NET.MaxConnections = 1

		s := startServer(t, cfg, func(request *http.Request) {
			_ = request.Respond(http.NewResponse().String("served"))
		})
		defer shutdown(t, s)

		first := dial(t, s)
		defer first.Close()

		// make sure the first connection is admitted before opening the second
		send(t, first, "GET / HTTP/1.1\r\n\r\n")
		_, body := readResponse(t, first)
		require.Equal(t, "served", body)

		second := dial(t, s)
		defer second.Close()

		send(t, second, "GET / HTTP/1.1\r\n\r\n")
		one := make([]byte, 1)
		_, err := second.Read(one)
		require.Error(t, err)
	})
}

func TestServerPulls(t *testing.T) {
	cfg := testConfig()
	s := New("localhost:0").Tune(cfg)
	require.NoError(t, s.Start())
	defer shutdown(t, s)

	t.Run("try pull on an idle server", func(t *testing.T) {
		request, err := s.TryPull()
		require.Nil(t, request)
		require.EqualError(t, err, ErrEmpty.Error())
	})

	t.Run("pull timeout on an idle server", func(t *testing.T) {
		request, err := s.PullTimeout(10 * time.Millisecond)
		require.Nil(t, request)
		require.EqualError(t, err, ErrEmpty.Error())
	})

	t.Run("pull catches a request", func(t *testing.T) {
		conn := dial(t, s)
		defer conn.Close()
		send(t, conn, "GET /pulled HTTP/1.1\r\n\r\n")

		request, err := s.PullTimeout(5 * time.Second)
		require.NoError(t, err)
		require.Equal(t, "/pulled", request.Target)
		require.NoError(t, request.Respond(http.NewResponse()))

		head, _ := readResponse(t, conn)
		require.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n"), head)
	})
}

func TestServerBeforeStart(t *testing.T) {
	s := New("localhost:0")

	request, err := s.TryPull()
	require.Nil(t, request)
	require.EqualError(t, err, ErrEmpty.Error())

	_, err = s.PullTimeout(5 * time.Millisecond)
	require.EqualError(t, err, ErrEmpty.Error())

	// a server which was never started still shuts down quietly
	s.Shutdown()

	_, err = s.Pull()
	require.EqualError(t, err, ErrShutdown.Error())
}

func TestServerShutdown(t *testing.T) {
	t.Run("wakes blocked pulls up", func(t *testing.T) {
		s := New("localhost:0").Tune(testConfig())
		require.NoError(t, s.Start())

		errs := make(chan error)
		go func() {
			_, err := s.Pull()
			errs <- err
		}()

		// let the pull park itself first
		time.Sleep(10 * time.Millisecond)
		s.Shutdown()
		require.EqualError(t, <-errs, ErrShutdown.Error())
		require.NoError(t, s.Wait())
	})

	t.Run("double start is refused", func(t *testing.T) {
		s := New("localhost:0").Tune(testConfig())
		require.NoError(t, s.Start())
		defer shutdown(t, s)

		require.EqualError(t, s.Start(), ErrAlreadyRunning.Error())
	})
}

func shutdown(t *testing.T, s *Server) {
	s.Shutdown()
	require.NoError(t, s.Wait())
}
