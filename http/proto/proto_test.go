package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromBytes(t *testing.T) {
	require.Equal(t, HTTP10, FromBytes([]byte("HTTP/1.0")))
	require.Equal(t, HTTP11, FromBytes([]byte("HTTP/1.1")))

	for _, token := range []string{"", "HTTP/1.2", "HTTP/2.0", "HTTP/0.9", "SMTP/1.1", "HTTP/11", "http/1.1"} {
		require.Equal(t, Unknown, FromBytes([]byte(token)), token)
	}
}

func TestString(t *testing.T) {
	// the trailing space lets the serializer append the token as-is
	require.Equal(t, "HTTP/1.0 ", HTTP10.String())
	require.Equal(t, "HTTP/1.1 ", HTTP11.String())
	require.Empty(t, Unknown.String())
}
