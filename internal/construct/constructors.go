package construct

import (
	"net"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/utils/buffer"
	"github.com/sww1235/tiny-http/config"
	"github.com/sww1235/tiny-http/transport"
)

func Client(cfg config.NET, conn net.Conn) transport.Client {
	readBuff := make([]byte, cfg.ReadBufferSize)

	return transport.NewClient(conn, cfg.ReadTimeout, readBuff)
}

func Buffers(cfg *config.Config) (keyBuff, valBuff, startLineBuff *buffer.Buffer) {
	return buffer.New(cfg.Headers.Space.Default, cfg.Headers.Space.Maximal),
		buffer.New(cfg.Headers.Space.Default, cfg.Headers.Space.Maximal),
		buffer.New(cfg.URI.RequestLineSize.Default, cfg.URI.RequestLineSize.Maximal)
}

func Chunked(cfg config.Body) *chunkedbody.Parser {
	settings := chunkedbody.DefaultSettings()
	settings.MaxChunkSize = cfg.MaxChunkSize

	return chunkedbody.NewParser(settings)
}
