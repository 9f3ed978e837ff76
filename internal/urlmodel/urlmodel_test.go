package urlmodel

import "testing"

func TestParseURLDefaults(t *testing.T) {
	cases := []struct {
		raw    string
		secure bool
		host   string
		port   int
		path   string
		query  string
	}{
		{"http://example.com", false, "example.com", 80, "/", ""},
		{"https://example.com", true, "example.com", 443, "/", ""},
		{"http://example.com:8080/a/b", false, "example.com", 8080, "/a/b", ""},
		{"https://example.com/a?b=c", true, "example.com", 443, "/a", "b=c"},
		{"http://example.com?x=1", false, "example.com", 80, "/", "x=1"},
	}
	for _, c := range cases {
		req, err := ParseURL(c.raw)
		if err != nil {
			t.Fatalf("ParseURL(%q): %v", c.raw, err)
		}
		if req.Secure != c.secure || req.Host != c.host || req.Port != c.port || req.Path != c.path || req.Query != c.query {
			t.Errorf("ParseURL(%q) = %+v, want secure=%v host=%v port=%v path=%v query=%v",
				c.raw, req, c.secure, c.host, c.port, c.path, c.query)
		}
		if req.Method != "GET" {
			t.Errorf("ParseURL(%q).Method = %q, want GET", c.raw, req.Method)
		}
	}
}

func TestParseURLErrors(t *testing.T) {
	for _, raw := range []string{
		"ftp://example.com",
		"http://",
		"http://example.com:notaport/",
		"http://example.com:999999/",
	} {
		if _, err := ParseURL(raw); err == nil {
			t.Errorf("ParseURL(%q): want error, got nil", raw)
		}
	}
}

// TestRenderURLRoundTrip: parsing a rendered URL reproduces the original
// request, ignoring default ports.
func TestRenderURLRoundTrip(t *testing.T) {
	for _, raw := range []string{
		"http://example.com/",
		"https://example.com/a/b",
		"http://example.com:8080/a/b?x=1",
		"https://sub.example.com/path",
	} {
		req, err := ParseURL(raw)
		if err != nil {
			t.Fatalf("ParseURL(%q): %v", raw, err)
		}
		rendered := RenderURL(req)
		req2, err := ParseURL(rendered)
		if err != nil {
			t.Fatalf("ParseURL(RenderURL(%q)=%q): %v", raw, rendered, err)
		}
		if req2.Secure != req.Secure || req2.Host != req.Host || req2.Port != req.Port ||
			req2.Path != req.Path || req2.Query != req.Query {
			t.Errorf("round trip mismatch for %q: got %+v, want %+v", raw, req2, req)
		}
	}
}

func TestEncodeQueryValueIdempotentOnUnreserved(t *testing.T) {
	const unreservedAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_.~"
	got := EncodeQueryValue(unreservedAlphabet)
	if got != unreservedAlphabet {
		t.Fatalf("EncodeQueryValue(unreserved) = %q, want unchanged", got)
	}
	twice := EncodeQueryValue(got)
	if twice != got {
		t.Fatalf("encoding is not idempotent: %q != %q", twice, got)
	}
}

func TestEncodeQueryValueSpaceAndPercent(t *testing.T) {
	if got := EncodeQueryValue("a b"); got != "a+b" {
		t.Errorf("EncodeQueryValue(%q) = %q, want %q", "a b", got, "a+b")
	}
	if got := EncodeQueryValue("a&b=c"); got != "a%26b%3Dc" {
		t.Errorf("EncodeQueryValue(%q) = %q, want %q", "a&b=c", got, "a%26b%3Dc")
	}
}

// TestEncodeQueryValueInjective: distinct byte strings never collide
// after encoding.
func TestEncodeQueryValueInjective(t *testing.T) {
	inputs := []string{"a b", "a+b", "a%20b", "a=b", "a&b"}
	seen := map[string]string{}
	for _, in := range inputs {
		enc := EncodeQueryValue(in)
		if prior, ok := seen[enc]; ok && prior != in {
			t.Fatalf("collision: %q and %q both encode to %q", prior, in, enc)
		}
		seen[enc] = in
	}
}

func TestHeaderCaseInsensitiveLookup(t *testing.T) {
	h := NewHeader()
	h.Add("Content-Type", "text/plain")
	if got := h.Get("content-type"); got != "text/plain" {
		t.Errorf("Get(content-type) = %q, want text/plain", got)
	}
	h.Set("X-Foo", "1")
	h.Set("x-foo", "2")
	if got := h.Values("X-Foo"); len(got) != 1 || got[0] != "2" {
		t.Errorf("Values(X-Foo) = %v, want [2]", got)
	}
}

func TestHeaderDelCaseInsensitive(t *testing.T) {
	h := NewHeader()
	h.Add("A", "1")
	h.Add("a", "2")
	h.Add("B", "3")
	h.Del("a")
	if h.Has("A") || h.Has("a") {
		t.Fatalf("expected all A/a fields removed, got %+v", h)
	}
	if got := h.Get("B"); got != "3" {
		t.Errorf("Get(B) = %q, want 3", got)
	}
}
