// Package pool manages per-host connection reuse: a LIFO idle stack per
// ConnKey, a release-token acquire/release protocol that stays leak-safe
// under cancellation, and a reaper goroutine that evicts connections
// idle past the pool's timeout.
package pool

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/gopherhttp/httpclient/internal/proxycfg"
)

// ConnKey namespaces the idle-connection stack. Requests through
// different proxies never share a pooled connection with a direct
// request or with a request through a different proxy, even to the same
// target host.
type ConnKey struct {
	Host     string
	Port     int
	Secure   bool
	ProxyKey string
}

func (k ConnKey) String() string {
	if k.ProxyKey == "" {
		return fmt.Sprintf("%s:%d", k.Host, k.Port)
	}
	return fmt.Sprintf("%s->%s:%d", k.ProxyKey, k.Host, k.Port)
}

// DialSpec carries everything Acquire needs to either reuse a pooled
// connection or dial a fresh one.
type DialSpec struct {
	Host   string
	Port   int
	Secure bool

	ServerName  string // SNI override; empty means use Host unless DisableSNI
	DisableSNI  bool
	InsecureTLS bool
	TLSConfig   *tls.Config // base config (profile/cipher suites already applied)

	HTTPProxy  *proxycfg.HTTPProxy
	SOCKSProxy *proxycfg.SOCKSProxy

	ConnTimeout      time.Duration
	HandshakeTimeout time.Duration
}

func (s DialSpec) key() ConnKey {
	return ConnKey{Host: s.Host, Port: s.Port, Secure: s.Secure, ProxyKey: s.proxyKey()}
}

func (s DialSpec) proxyKey() string {
	switch {
	case s.HTTPProxy != nil:
		return fmt.Sprintf("http:%s", s.HTTPProxy.Addr())
	case s.SOCKSProxy != nil:
		return fmt.Sprintf("socks%d:%s", s.SOCKSProxy.Version, s.SOCKSProxy.Addr())
	default:
		return ""
	}
}
