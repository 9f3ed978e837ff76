package cookiejar

import (
	"testing"
	"time"

	"github.com/gopherhttp/httpclient/internal/urlmodel"
)

// TestScenarioPathScoping: a cookie scoped to /a matches a request under
// /a/c but not one to the bare root.
func TestScenarioPathScoping(t *testing.T) {
	now := time.Now()
	jar := New()
	jar = jar.Ingest("foo=bar; Path=/a; Domain=example.com", "example.com", "/a/b", false, now, DefaultOptions)

	req := &urlmodel.Request{Host: "example.com", Path: "/a/c", Headers: urlmodel.NewHeader()}
	InsertCookiesIntoRequest(jar, req, now)
	if got := req.Headers.Get("Cookie"); got != "foo=bar" {
		t.Fatalf("Cookie header for /a/c = %q, want %q", got, "foo=bar")
	}

	req2 := &urlmodel.Request{Host: "example.com", Path: "/", Headers: urlmodel.NewHeader()}
	InsertCookiesIntoRequest(jar, req2, now)
	if got := req2.Headers.Get("Cookie"); got != "" {
		t.Fatalf("Cookie header for / = %q, want empty", got)
	}
}

// TestMatchSortOrder: emission order is longer-path-first, then
// earlier-creation-first on ties.
func TestMatchSortOrder(t *testing.T) {
	now := time.Now()
	jar := New()
	jar = jar.Ingest("a=1; Path=/x", "example.com", "/x", false, now, DefaultOptions)
	jar = jar.Ingest("b=2; Path=/x/y", "example.com", "/x/y", false, now.Add(time.Second), DefaultOptions)
	jar = jar.Ingest("c=3; Path=/x", "example.com", "/x", false, now.Add(2*time.Second), DefaultOptions)

	matches := jar.Match("example.com", "/x/y/z", false, now.Add(10*time.Second))
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3: %+v", len(matches), matches)
	}
	if matches[0].Name != "b" {
		t.Fatalf("first match = %s, want b (longest path)", matches[0].Name)
	}
	if matches[1].Name != "a" || matches[2].Name != "c" {
		t.Fatalf("tie order = [%s %s], want [a c] (earlier creation first)", matches[1].Name, matches[2].Name)
	}
}

func TestDomainMatchHostOnly(t *testing.T) {
	now := time.Now()
	jar := New()
	jar = jar.Ingest("a=1", "example.com", "/", false, now, DefaultOptions)

	if m := jar.Match("sub.example.com", "/", false, now); len(m) != 0 {
		t.Fatalf("host-only cookie matched a different host: %+v", m)
	}
	if m := jar.Match("example.com", "/", false, now); len(m) != 1 {
		t.Fatalf("host-only cookie failed to match exact host: %+v", m)
	}
}

func TestDomainMatchSuffix(t *testing.T) {
	now := time.Now()
	jar := New()
	jar = jar.Ingest("a=1; Domain=example.com", "example.com", "/", false, now, DefaultOptions)

	if m := jar.Match("sub.example.com", "/", false, now); len(m) != 1 {
		t.Fatalf("domain cookie failed to match subdomain: %+v", m)
	}
	if m := jar.Match("notexample.com", "/", false, now); len(m) != 0 {
		t.Fatalf("domain cookie incorrectly matched unrelated host: %+v", m)
	}
}

func TestDomainRejectsIPLiteralSuffix(t *testing.T) {
	now := time.Now()
	jar := New()
	// A Set-Cookie naming Domain=example.com from an IP-literal host is
	// rejected by domainMatch since domainMatch never suffix-matches an
	// IPv4 literal.
	jar = jar.Ingest("a=1; Domain=example.com", "203.0.113.1", "/", false, now, DefaultOptions)
	if jar.Len() != 0 {
		t.Fatalf("expected cookie rejected for IP-literal host, jar has %d entries", jar.Len())
	}
}

func TestMaxAgeTakesPrecedenceOverExpires(t *testing.T) {
	now := time.Now()
	jar := New()
	jar = jar.Ingest("a=1; Max-Age=60; Expires=Mon, 01-Jan-2001 00:00:00 GMT", "example.com", "/", false, now, DefaultOptions)
	all := jar.All()
	if len(all) != 1 {
		t.Fatalf("got %d cookies, want 1", len(all))
	}
	want := now.Add(60 * time.Second)
	if all[0].Expiry.Sub(want).Abs() > time.Second {
		t.Fatalf("expiry = %v, want ~%v (Max-Age, not the stale Expires)", all[0].Expiry, want)
	}
}

func TestSecureOnlyExcludedFromPlainRequest(t *testing.T) {
	now := time.Now()
	jar := New()
	jar = jar.Ingest("a=1; Secure", "example.com", "/", true, now, DefaultOptions)
	if m := jar.Match("example.com", "/", false, now); len(m) != 0 {
		t.Fatalf("Secure cookie leaked onto a plain-HTTP match: %+v", m)
	}
	if m := jar.Match("example.com", "/", true, now); len(m) != 1 {
		t.Fatalf("Secure cookie failed to match an HTTPS request: %+v", m)
	}
}

// TestEvictExpiredCookies: after eviction, no remaining cookie has an
// expiry before now.
func TestEvictExpiredCookies(t *testing.T) {
	now := time.Now()
	jar := New()
	jar = jar.Ingest("a=1; Max-Age=-1", "example.com", "/", false, now, DefaultOptions)
	jar = jar.Ingest("b=2; Max-Age=600", "example.com", "/", false, now, DefaultOptions)

	evicted := EvictExpiredCookies(jar, now)
	for _, c := range evicted.All() {
		if c.Expiry.Before(now) {
			t.Fatalf("evicted jar still has an expired cookie: %+v", c)
		}
	}
	if evicted.Len() != 1 {
		t.Fatalf("got %d cookies after eviction, want 1", evicted.Len())
	}
}

func TestReplaceInheritsCreationTime(t *testing.T) {
	t0 := time.Now()
	jar := New()
	jar = jar.Ingest("a=1", "example.com", "/", false, t0, DefaultOptions)
	original := jar.All()[0].CreationTime

	t1 := t0.Add(time.Hour)
	jar = jar.Ingest("a=2", "example.com", "/", false, t1, DefaultOptions)
	updated := jar.All()[0]
	if updated.Value != "2" {
		t.Fatalf("value = %q, want 2", updated.Value)
	}
	if !updated.CreationTime.Equal(original) {
		t.Fatalf("CreationTime changed on replace: got %v, want %v", updated.CreationTime, original)
	}
}

func TestUpdateCookieJarExtractsSetCookie(t *testing.T) {
	now := time.Now()
	h := urlmodel.NewHeader()
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")
	jar := UpdateCookieJar(New(), "example.com", "/", false, h, now)
	if jar.Len() != 2 {
		t.Fatalf("got %d cookies, want 2", jar.Len())
	}
}

func TestRenderCookieHeaderOrderPreserved(t *testing.T) {
	cookies := []Cookie{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}
	if got := RenderCookieHeader(cookies); got != "a=1; b=2" {
		t.Fatalf("RenderCookieHeader = %q, want %q", got, "a=1; b=2")
	}
}
