package connio

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/gopherhttp/httpclient/internal/httperr"
)

// DialRaw opens a TCP connection to addr, setting TCP_NODELAY, with
// AI_ADDRCONFIG-style address selection via net.Dialer's default
// resolver.
func DialRaw(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return nc, nil
}

// UpgradeTLS wraps an established TCP stream with a TLS client session,
// SNI = serverName, per the ManagerSettings-supplied tls.Config. The
// certificate-verification callback, if any, is already embedded in cfg
// (VerifyPeerCertificate/VerifyConnection) by the caller.
func UpgradeTLS(ctx context.Context, raw net.Conn, serverName string, cfg *tls.Config, handshakeTimeout time.Duration) (*tls.Conn, error) {
	cloned := cfg.Clone()
	if cloned == nil {
		cloned = &tls.Config{}
	}
	if cloned.ServerName == "" {
		cloned.ServerName = serverName
	}

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	tc := tls.Client(raw, cloned)
	if err := tc.HandshakeContext(hctx); err != nil {
		return nil, httperr.TLSException(serverName, 0, err)
	}
	return tc, nil
}
