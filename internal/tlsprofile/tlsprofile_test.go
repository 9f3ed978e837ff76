package tlsprofile

import (
	"crypto/tls"
	"testing"
)

func TestVersionName(t *testing.T) {
	cases := map[uint16]string{
		VersionSSL30: "SSL 3.0",
		VersionTLS10: "TLS 1.0",
		VersionTLS11: "TLS 1.1",
		VersionTLS12: "TLS 1.2",
		VersionTLS13: "TLS 1.3",
		0xFFFF:       "Unknown",
	}
	for version, want := range cases {
		if got := VersionName(version); got != want {
			t.Errorf("VersionName(0x%04x) = %q, want %q", version, got, want)
		}
	}
}

func TestApplyVersionProfile(t *testing.T) {
	cfg := &tls.Config{}
	ApplyVersionProfile(cfg, ProfileSecure)
	if cfg.MinVersion != VersionTLS12 || cfg.MaxVersion != VersionTLS13 {
		t.Errorf("got min=0x%x max=0x%x, want TLS1.2/TLS1.3", cfg.MinVersion, cfg.MaxVersion)
	}
}

func TestApplyCipherSuitesByMinVersion(t *testing.T) {
	cfg := &tls.Config{}
	ApplyCipherSuites(cfg, VersionTLS13)
	if cfg.CipherSuites != nil {
		t.Errorf("TLS 1.3 minimum should leave CipherSuites nil (automatic), got %v", cfg.CipherSuites)
	}

	ApplyCipherSuites(cfg, VersionTLS12)
	if len(cfg.CipherSuites) == 0 {
		t.Errorf("TLS 1.2 minimum should set an explicit cipher suite list")
	}

	ApplyCipherSuites(cfg, VersionTLS10)
	compatLen := len(cfg.CipherSuites)
	if compatLen <= len(CipherSuitesTLS12Secure) {
		t.Errorf("TLS 1.0 compatible profile should include more suites than the secure profile")
	}

	ApplyCipherSuites(cfg, VersionSSL30)
	if len(cfg.CipherSuites) != len(CipherSuitesLegacy) {
		t.Errorf("SSL 3.0 minimum should select the legacy suite list")
	}
}

func TestCipherSuiteName(t *testing.T) {
	if got := CipherSuiteName(tls.TLS_AES_128_GCM_SHA256); got != "TLS_AES_128_GCM_SHA256" {
		t.Errorf("CipherSuiteName = %q, want TLS_AES_128_GCM_SHA256", got)
	}
	if got := CipherSuiteName(tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA); got != "TLS_RSA_WITH_3DES_EDE_CBC_SHA" {
		t.Errorf("CipherSuiteName(3DES) = %q, want TLS_RSA_WITH_3DES_EDE_CBC_SHA", got)
	}
	if got := CipherSuiteName(0xFFFF); got != "Unknown" {
		t.Errorf("CipherSuiteName(unknown) = %q, want Unknown", got)
	}
}

func TestProfilesAreOrderedByCompatibility(t *testing.T) {
	if ProfileModern.Min != VersionTLS13 {
		t.Errorf("ProfileModern.Min = 0x%x, want TLS 1.3", ProfileModern.Min)
	}
	if ProfileCompatible.Min >= ProfileSecure.Min {
		t.Errorf("ProfileCompatible should allow an older minimum version than ProfileSecure")
	}
	if ProfileLegacy.Min >= ProfileCompatible.Min {
		t.Errorf("ProfileLegacy should allow an older minimum version than ProfileCompatible")
	}
}
