// Package proxycfg holds the proxy configuration types shared by the
// request model, the connection manager, and proxy resolution; kept in
// its own leaf package to avoid import cycles between those three.
package proxycfg

import (
	"crypto/tls"
	"strconv"
	"time"
)

// HTTPProxy configures an HTTP proxy (plain CONNECT or TLS-to-proxy).
type HTTPProxy struct {
	Secure      bool // dial the proxy itself over TLS ("https" proxy)
	Host        string
	Port        int
	Username    string
	Password    string
	ConnTimeout time.Duration
	Headers     map[string]string // extra headers on the CONNECT request
	TLSConfig   *tls.Config       // TLS config for dialing the proxy itself
}

// SOCKSProxy configures a SOCKS4 or SOCKS5 proxy. Password applies to
// SOCKS5 only; SOCKS4 always resolves the target hostname locally.
// ResolveDNSViaProxy is not read by the dialer: a SOCKS5 dial always
// passes the target hostname to the proxy.
type SOCKSProxy struct {
	Version            int // 4 or 5
	Host               string
	Port               int
	Username           string
	Password           string
	ConnTimeout        time.Duration
	ResolveDNSViaProxy bool
}

func (p *HTTPProxy) Addr() string {
	if p == nil {
		return ""
	}
	return joinHostPort(p.Host, p.Port)
}

func (p *SOCKSProxy) Addr() string {
	if p == nil {
		return ""
	}
	return joinHostPort(p.Host, p.Port)
}

func joinHostPort(host string, port int) string {
	if port == 0 {
		return host
	}
	return host + ":" + strconv.Itoa(port)
}
