package pool

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/gopherhttp/httpclient/internal/tlsprofile"
)

// TLSSettings configures mTLS, custom CAs, and version/cipher policy for
// every TLS connection a Manager dials. The settings live on the manager
// rather than the request: every dial under one pool shares a single
// verification policy, so pooled TLS connections stay interchangeable.
type TLSSettings struct {
	// ClientCertPEM/ClientKeyPEM (or the *File equivalents) configure
	// mutual TLS. The PEM-bytes form wins if both are set.
	ClientCertPEM  []byte
	ClientKeyPEM   []byte
	ClientCertFile string
	ClientKeyFile  string

	// CustomCACerts are PEM-encoded certificates appended to the system
	// root pool (or to a fresh pool, if the system pool is unavailable).
	CustomCACerts [][]byte

	// MinTLSVersion/MaxTLSVersion default to tlsprofile.ProfileSecure's
	// range (TLS 1.2 through 1.3) when zero.
	MinTLSVersion uint16
	MaxTLSVersion uint16
	// CipherSuites overrides the suites tlsprofile.ApplyCipherSuites
	// would otherwise pick for MinTLSVersion.
	CipherSuites []uint16

	TLSRenegotiation tls.RenegotiationSupport

	// InsecureSkipVerify disables certificate verification on every
	// connection this Manager dials. Testing against self-signed
	// fixtures and deliberate MITM setups only.
	InsecureSkipVerify bool
}

// Build renders a base *tls.Config from the settings. Per-request
// overrides (InsecureTLS, SNI) are applied afterward in DialSpec, not
// here; this config is the shared baseline every dial clones.
func (s TLSSettings) Build() (*tls.Config, error) {
	cfg := &tls.Config{}

	profile := tlsprofile.ProfileSecure
	if s.MinTLSVersion != 0 {
		profile.Min = s.MinTLSVersion
	}
	if s.MaxTLSVersion != 0 {
		profile.Max = s.MaxTLSVersion
	}
	tlsprofile.ApplyVersionProfile(cfg, profile)
	tlsprofile.ApplyCipherSuites(cfg, cfg.MinVersion)
	if s.CipherSuites != nil {
		cfg.CipherSuites = s.CipherSuites
	}
	cfg.Renegotiation = s.TLSRenegotiation
	cfg.InsecureSkipVerify = s.InsecureSkipVerify

	cert, hasCert, err := s.clientCertificate()
	if err != nil {
		return nil, err
	}
	if hasCert {
		cfg.Certificates = []tls.Certificate{cert}
	}

	if len(s.CustomCACerts) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		for _, pemBytes := range s.CustomCACerts {
			if !pool.AppendCertsFromPEM(pemBytes) {
				return nil, fmt.Errorf("tlssettings: failed to parse custom CA certificate")
			}
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

func (s TLSSettings) clientCertificate() (tls.Certificate, bool, error) {
	switch {
	case len(s.ClientCertPEM) > 0 && len(s.ClientKeyPEM) > 0:
		cert, err := tls.X509KeyPair(s.ClientCertPEM, s.ClientKeyPEM)
		return cert, true, err
	case s.ClientCertFile != "" && s.ClientKeyFile != "":
		cert, err := tls.LoadX509KeyPair(s.ClientCertFile, s.ClientKeyFile)
		return cert, true, err
	default:
		return tls.Certificate{}, false, nil
	}
}
