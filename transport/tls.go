package transport

import (
	"crypto/tls"
	"net"
	"time"
)

type TLS struct {
	cfg *tls.Config
	*TCP
}

// NewTLS returns a transport wrapping every accepted stream into the given
// TLS configuration. The configuration may come from plain certificate pairs
// as well as from an autocert manager.
func NewTLS(cfg *tls.Config) *TLS {
	return &TLS{cfg: cfg, TCP: NewTCP()}
}

func NewTLSCerts(certs ...tls.Certificate) *TLS {
	return NewTLS(&tls.Config{Certificates: certs})
}

func (t *TLS) Bind(addr string) error {
	tcp, err := bindTCP(addr)
	if err != nil {
		return err
	}

	l := tls.NewListener(tcp, t.cfg)
	t.TCP = newTCP(tlsAdapter{tcp, l})

	return nil
}

// tlsAdapter accepts through the TLS listener, but keeps deadline control
// over the raw TCP one, as crypto/tls listeners don't expose SetDeadline.
type tlsAdapter struct {
	tcp *net.TCPListener
	tls net.Listener
}

func (t tlsAdapter) Accept() (net.Conn, error) {
	return t.tls.Accept()
}

func (t tlsAdapter) Close() error {
	return t.tls.Close()
}

func (t tlsAdapter) Addr() net.Addr {
	return t.tls.Addr()
}

func (t tlsAdapter) SetDeadline(deadline time.Time) error {
	return t.tcp.SetDeadline(deadline)
}
