package http1

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sww1235/tiny-http/config"
	"github.com/sww1235/tiny-http/http"
	"github.com/sww1235/tiny-http/http/method"
	"github.com/sww1235/tiny-http/http/proto"
	"github.com/sww1235/tiny-http/http/status"
	"github.com/sww1235/tiny-http/kv"
	"github.com/sww1235/tiny-http/transport/dummy"
)

func getSerializer(defHdrs map[string]string) *Serializer {
	return NewSerializer(make([]byte, 0, 1024), 128, defHdrs)
}

func newDummyRequest() *http.Request {
	request := http.NewRequest(dummy.NewNopClient(), kv.New(), nil)
	request.Proto = proto.HTTP11

	return request
}

// render passes the response through the serializer and splits the result into
// the head and the body.
func render(
	t *testing.T, s *Serializer, request *http.Request, resp *http.Response,
) (head, body string, err error) {
	client := dummy.NewCircularClient()
	err = s.Write(request.Proto, request, resp, client)

	written := string(client.Written())
	boundary := strings.Index(written, "\r\n\r\n")
	require.NotEqual(t, -1, boundary, "response head must be terminated by an empty line")

	return written[:boundary+4], written[boundary+4:], err
}

func TestSerializerResponseLine(t *testing.T) {
	s := getSerializer(nil)

	t.Run("200 OK by default", func(t *testing.T) {
		head, body, err := render(t, s, newDummyRequest(), http.NewResponse())
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n"), head)
		require.Empty(t, body)
	})

	t.Run("known code", func(t *testing.T) {
		head, _, err := render(t, s, newDummyRequest(), http.NewResponse().Code(status.NotFound))
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(head, "HTTP/1.1 404 Not Found\r\n"), head)
	})

	t.Run("custom status text", func(t *testing.T) {
		resp := http.NewResponse().Code(status.Teapot).Status("T is for Teapot")
		head, _, err := render(t, s, newDummyRequest(), resp)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(head, "HTTP/1.1 418 T is for Teapot\r\n"), head)
	})

	t.Run("responds via HTTP/1.1 when the protocol stayed unknown", func(t *testing.T) {
		request := newDummyRequest()
		request.Proto = proto.Unknown
		head, _, err := render(t, s, request, http.NewResponse().Code(status.BadRequest))
		require.EqualError(t, err, status.ErrCloseConnection.Error())
		require.True(t, strings.HasPrefix(head, "HTTP/1.1 400 Bad Request\r\n"), head)
	})
}

func TestSerializerHeaders(t *testing.T) {
	t.Run("compulsory head fields", func(t *testing.T) {
		s := getSerializer(config.Default().Headers.Default)
		head, _, err := render(t, s, newDummyRequest(), http.NewResponse())
		require.NoError(t, err)
		require.Contains(t, head, "Content-Length: 0\r\n")
		require.Contains(t, head, "Content-Type: text/html\r\n")
		require.Contains(t, head, "Server: tiny-http (Go)\r\n")
		require.Contains(t, head, "Date: ")
		require.Contains(t, head, "GMT\r\n")
	})

	t.Run("custom headers", func(t *testing.T) {
		s := getSerializer(nil)
		resp := http.NewResponse().Header("Hello", "world").Header("Set-Cookie", "a=b", "c=d")
		head, _, err := render(t, s, newDummyRequest(), resp)
		require.NoError(t, err)
		require.Contains(t, head, "Hello: world\r\n")
		require.Contains(t, head, "Set-Cookie: a=b\r\n")
		require.Contains(t, head, "Set-Cookie: c=d\r\n")
	})

	t.Run("explicit header overrides the default one", func(t *testing.T) {
		s := getSerializer(map[string]string{"Server": "default"})
		resp := http.NewResponse().Header("Server", "custom")
		head, _, err := render(t, s, newDummyRequest(), resp)
		require.NoError(t, err)
		require.Contains(t, head, "Server: custom\r\n")
		require.NotContains(t, head, "Server: default\r\n")

		// the exclusion must not leak into the following responses
		head, _, err = render(t, s, newDummyRequest(), http.NewResponse())
		require.NoError(t, err)
		require.Contains(t, head, "Server: default\r\n")
	})

	t.Run("explicit date suppresses the generated one", func(t *testing.T) {
		s := getSerializer(nil)
		resp := http.NewResponse().Header("Date", "Mon, 01 Jan 2024 00:00:00 GMT")
		head, _, err := render(t, s, newDummyRequest(), resp)
		require.NoError(t, err)
		require.Equal(t, 1, strings.Count(head, "Date: "), head)
	})
}

func TestSerializerBody(t *testing.T) {
	s := getSerializer(nil)

	t.Run("plain body", func(t *testing.T) {
		head, body, err := render(t, s, newDummyRequest(), http.NewResponse().String("hello"))
		require.NoError(t, err)
		require.Contains(t, head, "Content-Length: 5\r\n")
		require.Equal(t, "hello", body)
	})

	t.Run("HEAD cuts the body off", func(t *testing.T) {
		request := newDummyRequest()
		request.Method = method.HEAD
		head, body, err := render(t, s, request, http.NewResponse().String("hello"))
		require.NoError(t, err)
		require.Contains(t, head, "Content-Length: 5\r\n")
		require.Empty(t, body)
	})

	t.Run("204 carries neither body nor framing", func(t *testing.T) {
		resp := http.NewResponse().Code(status.NoContent).String("hello")
		head, body, err := render(t, s, newDummyRequest(), resp)
		require.NoError(t, err)
		require.NotContains(t, head, "Content-Length")
		require.Empty(t, body)
	})

	t.Run("304 carries neither body nor framing", func(t *testing.T) {
		resp := http.NewResponse().Code(status.NotModified).String("hello")
		head, body, err := render(t, s, newDummyRequest(), resp)
		require.NoError(t, err)
		require.NotContains(t, head, "Content-Length")
		require.Empty(t, body)
	})
}

func TestSerializerAttachment(t *testing.T) {
	s := getSerializer(nil)

	t.Run("sized stream", func(t *testing.T) {
		resp := http.NewResponse().Attachment(strings.NewReader("Hello, world!"), 13)
		head, body, err := render(t, s, newDummyRequest(), resp)
		require.NoError(t, err)
		require.Contains(t, head, "Content-Length: 13\r\n")
		require.Equal(t, "Hello, world!", body)
	})

	t.Run("unsized stream is chunked", func(t *testing.T) {
		resp := http.NewResponse().Attachment(strings.NewReader("Hello, world!"), 0)
		head, body, err := render(t, s, newDummyRequest(), resp)
		require.NoError(t, err)
		require.Contains(t, head, "Transfer-Encoding: chunked\r\n")
		require.Equal(t, "d\r\nHello, world!\r\n0\r\n\r\n", body)
	})

	t.Run("HEAD cuts the stream off", func(t *testing.T) {
		request := newDummyRequest()
		request.Method = method.HEAD
		resp := http.NewResponse().Attachment(strings.NewReader("Hello, world!"), 13)
		head, body, err := render(t, s, request, resp)
		require.NoError(t, err)
		require.Contains(t, head, "Content-Length: 13\r\n")
		require.Empty(t, body)
	})
}

func TestSerializerKeepAlive(t *testing.T) {
	s := getSerializer(nil)

	verdict := func(p proto.Proto, connection string) error {
		request := newDummyRequest()
		request.Proto = p
		request.Connection = connection
		_, _, err := render(t, s, request, http.NewResponse())

		return err
	}

	t.Run("HTTP/1.1 defaults to keep-alive", func(t *testing.T) {
		require.NoError(t, verdict(proto.HTTP11, ""))
	})

	t.Run("HTTP/1.1 connection close", func(t *testing.T) {
		require.EqualError(t, verdict(proto.HTTP11, "close"), status.ErrCloseConnection.Error())
	})

	t.Run("HTTP/1.0 defaults to close", func(t *testing.T) {
		require.EqualError(t, verdict(proto.HTTP10, ""), status.ErrCloseConnection.Error())
	})

	t.Run("HTTP/1.0 explicit keep-alive", func(t *testing.T) {
		require.NoError(t, verdict(proto.HTTP10, "keep-alive"))
	})

	t.Run("upgrade always closes", func(t *testing.T) {
		require.EqualError(t, verdict(proto.HTTP11, "upgrade"), status.ErrCloseConnection.Error())
	})
}
