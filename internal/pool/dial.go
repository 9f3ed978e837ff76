package pool

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gopherhttp/httpclient/internal/connio"
	"github.com/gopherhttp/httpclient/internal/constants"
	"github.com/gopherhttp/httpclient/internal/httperr"
	"github.com/gopherhttp/httpclient/internal/proxycfg"
	"github.com/gopherhttp/httpclient/internal/proxyenv"
	"github.com/gopherhttp/httpclient/internal/tlsprofile"
	netproxy "golang.org/x/net/proxy"
)

// dial establishes a fresh socket for spec: direct, through an HTTP(S)
// CONNECT proxy, or through a SOCKS4/SOCKS5 proxy, then upgrades to TLS
// when spec.Secure is set.
func dial(ctx context.Context, spec DialSpec) (connio.Connection, Metadata, error) {
	connTimeout := spec.ConnTimeout
	if connTimeout <= 0 {
		connTimeout = constants.DefaultConnTimeout
	}
	targetAddr := net.JoinHostPort(spec.Host, strconv.Itoa(spec.Port))

	var (
		raw  net.Conn
		meta Metadata
		err  error
	)

	switch {
	case spec.HTTPProxy != nil && !spec.Secure:
		// Plain target through an HTTP proxy: no tunnel; the request
		// engine rewrites the request-target to absolute-URI form and the
		// proxy relays it.
		raw, err = dialProxyConn(ctx, spec.HTTPProxy, connTimeout)
		meta.ProxyUsed = true
		meta.ProxyAddr = spec.HTTPProxy.Addr()
	case spec.HTTPProxy != nil:
		raw, err = dialHTTPProxy(ctx, spec, targetAddr, connTimeout)
		meta.ProxyUsed = true
		meta.ProxyAddr = spec.HTTPProxy.Addr()
	case spec.SOCKSProxy != nil && spec.SOCKSProxy.Version == 4:
		raw, err = dialSOCKS4(ctx, spec.SOCKSProxy, targetAddr, connTimeout)
		meta.ProxyUsed = true
		meta.ProxyAddr = spec.SOCKSProxy.Addr()
	case spec.SOCKSProxy != nil:
		raw, err = dialSOCKS5(ctx, spec.SOCKSProxy, targetAddr, connTimeout)
		meta.ProxyUsed = true
		meta.ProxyAddr = spec.SOCKSProxy.Addr()
	default:
		raw, err = connio.DialRaw(ctx, targetAddr, connTimeout)
	}
	if err != nil {
		return nil, Metadata{}, httperr.Connection(spec.Host, spec.Port, err)
	}

	if ra := raw.RemoteAddr(); ra != nil {
		meta.ConnectedAddr = ra.String()
	}

	if !spec.Secure {
		return connio.New(raw), meta, nil
	}

	handshakeTimeout := spec.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = connTimeout
	}
	cfg := effectiveTLSConfig(spec)
	serverName := sniFor(spec)

	tlsConn, err := connio.UpgradeTLS(ctx, raw, serverName, cfg, handshakeTimeout)
	if err != nil {
		raw.Close()
		return nil, Metadata{}, err
	}
	state := tlsConn.ConnectionState()
	meta.TLSVersion = tlsprofile.VersionName(state.Version)
	meta.TLSCipher = tlsprofile.CipherSuiteName(state.CipherSuite)
	meta.TLSServerName = serverName
	meta.TLSResumed = state.DidResume

	return connio.New(tlsConn), meta, nil
}

// effectiveTLSConfig clones the caller-supplied config (or a secure
// default) and applies the InsecureTLS override, which always wins even
// over an explicit TLSConfig.InsecureSkipVerify=false.
func effectiveTLSConfig(spec DialSpec) *tls.Config {
	var cfg *tls.Config
	if spec.TLSConfig != nil {
		cfg = spec.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if spec.InsecureTLS {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

// sniFor implements the SNI priority rule: explicit ServerName on the
// TLS config wins, then DisableSNI leaves it empty, then spec.ServerName,
// then spec.Host.
func sniFor(spec DialSpec) string {
	if spec.TLSConfig != nil && spec.TLSConfig.ServerName != "" {
		return spec.TLSConfig.ServerName
	}
	if spec.DisableSNI {
		return ""
	}
	if spec.ServerName != "" {
		return spec.ServerName
	}
	return spec.Host
}

// dialProxyConn opens the proxy-facing connection: raw TCP, upgraded to
// TLS when the proxy itself is an "https" proxy.
func dialProxyConn(ctx context.Context, proxy *proxycfg.HTTPProxy, timeout time.Duration) (net.Conn, error) {
	conn, err := connio.DialRaw(ctx, proxy.Addr(), timeout)
	if err != nil {
		return nil, err
	}
	if !proxy.Secure {
		return conn, nil
	}

	cfg := proxy.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = proxy.Host
	}
	tlsConn, err := connio.UpgradeTLS(ctx, conn, cfg.ServerName, cfg, timeout)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// dialHTTPProxy opens a tunnel through an HTTP or HTTPS forward proxy
// using CONNECT, for TLS targets.
func dialHTTPProxy(ctx context.Context, spec DialSpec, targetAddr string, timeout time.Duration) (net.Conn, error) {
	proxy := spec.HTTPProxy
	conn, err := dialProxyConn(ctx, proxy, timeout)
	if err != nil {
		return nil, err
	}

	var req strings.Builder
	fmt.Fprintf(&req, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n", targetAddr, targetAddr)
	for k, v := range proxy.Headers {
		fmt.Fprintf(&req, "%s: %s\r\n", k, v)
	}
	if authHeader := proxyenv.BasicAuthHeader(proxy); authHeader != "" {
		fmt.Fprintf(&req, "Proxy-Authorization: %s\r\n", authHeader)
	}
	req.WriteString("\r\n")

	if _, err := conn.Write([]byte(req.String())); err != nil {
		conn.Close()
		return nil, err
	}

	status, err := readConnectResponse(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if status < 200 || status >= 300 {
		conn.Close()
		return nil, httperr.ProxyConnectException(proxy.Host, proxy.Port, status)
	}
	return conn, nil
}

// readConnectResponse reads the CONNECT status line and discards headers
// up to the blank line, without over-reading into the tunneled stream.
func readConnectResponse(conn net.Conn) (int, error) {
	var line []byte
	buf := make([]byte, 1)
	readLine := func() (string, error) {
		line = line[:0]
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				if buf[0] == '\n' {
					return strings.TrimRight(string(line), "\r"), nil
				}
				line = append(line, buf[0])
			}
			if err != nil {
				return "", err
			}
		}
	}

	statusLine, err := readLine()
	if err != nil {
		return 0, err
	}
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return 0, httperr.InvalidStatusLine(statusLine)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, httperr.InvalidStatusLine(statusLine)
	}
	for {
		l, err := readLine()
		if err != nil {
			return 0, err
		}
		if l == "" {
			break
		}
	}
	return status, nil
}

// dialSOCKS4 hand-rolls the SOCKS4 CONNECT exchange (IPv4 only, no
// inline DNS resolution support; the hostname is resolved locally
// first).
func dialSOCKS4(ctx context.Context, proxy *proxycfg.SOCKSProxy, targetAddr string, timeout time.Duration) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(targetAddr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil || len(ips) == 0 {
		return nil, httperr.DNS(host, err)
	}
	ip4 := ips[0].To4()
	if ip4 == nil {
		return nil, httperr.DNS(host, fmt.Errorf("no IPv4 address for %s (SOCKS4 requires IPv4)", host))
	}

	conn, err := connio.DialRaw(ctx, proxy.Addr(), timeout)
	if err != nil {
		return nil, err
	}

	req := []byte{0x04, 0x01, byte(port >> 8), byte(port & 0xFF)}
	req = append(req, ip4...)
	if proxy.Username != "" {
		req = append(req, []byte(proxy.Username)...)
	}
	req = append(req, 0x00)

	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, err
	}

	resp := make([]byte, 8)
	if _, err := io.ReadFull(conn, resp); err != nil {
		conn.Close()
		return nil, err
	}
	switch resp[1] {
	case 0x5A:
		return conn, nil
	default:
		conn.Close()
		return nil, fmt.Errorf("SOCKS4 request failed, status 0x%02X", resp[1])
	}
}

// dialSOCKS5 delegates to golang.org/x/net/proxy for RFC-compliant
// SOCKS5 negotiation, including optional username/password auth.
func dialSOCKS5(ctx context.Context, proxy *proxycfg.SOCKSProxy, targetAddr string, timeout time.Duration) (net.Conn, error) {
	var auth *netproxy.Auth
	if proxy.Username != "" {
		auth = &netproxy.Auth{User: proxy.Username, Password: proxy.Password}
	}
	dialer, err := netproxy.SOCKS5("tcp", proxy.Addr(), auth, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	if ctxDialer, ok := dialer.(netproxy.ContextDialer); ok {
		return ctxDialer.DialContext(ctx, "tcp", targetAddr)
	}
	return dialer.Dial("tcp", targetAddr)
}
