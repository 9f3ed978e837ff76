package cookiejar

import (
	"net"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// neverExpires stands in for "no Expires/Max-Age attribute": a
// session-effective cookie, modeled as an expiry 1000 years out rather
// than a separate "no expiry" state, with Persistent=false.
func neverExpires(now time.Time) time.Time { return now.AddDate(1000, 0, 0) }

// Jar is an immutable snapshot of a cookie store. Every mutating
// operation returns a new Jar value instead of mutating in place, so a
// Jar can be shared across concurrent requests safely by construction;
// the engine hands back an updated Jar rather than holding one inside
// the Manager.
type Jar struct {
	cookies map[string]Cookie // keyed by Cookie.id()
}

// New returns an empty Jar.
func New() Jar { return Jar{} }

func (j Jar) clone() map[string]Cookie {
	out := make(map[string]Cookie, len(j.cookies)+1)
	for k, v := range j.cookies {
		out[k] = v
	}
	return out
}

// Options configures cookie ingestion. RejectPublicSuffixes refuses
// Domain attributes naming a registered public suffix (example.com may
// not set a cookie for ".com"); on by default, since
// golang.org/x/net/publicsuffix gives us a real list to check against.
type Options struct {
	RejectPublicSuffixes bool
}

// DefaultOptions is RejectPublicSuffixes: true.
var DefaultOptions = Options{RejectPublicSuffixes: true}

// domainMatch implements RFC 6265 §5.1.3: exact equality, or the jar
// domain is a suffix of host preceded by '.' in host, and host is not an
// IPv4 literal.
func domainMatch(host, domain string) bool {
	if strings.EqualFold(host, domain) {
		return true
	}
	if isIPLiteral(host) {
		return false
	}
	return strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(domain))
}

func isIPLiteral(host string) bool {
	return net.ParseIP(host) != nil
}

// pathMatch implements RFC 6265 §5.1.4.
func pathMatch(requestPath, cookiePath string) bool {
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if strings.HasSuffix(cookiePath, "/") {
		return true
	}
	return requestPath[len(cookiePath)] == '/'
}

// defaultPath implements the default-path computation of RFC 6265 §5.1.4:
// the request path's directory component, or "/" when the path is empty,
// relative, or has no '/' past the first.
func defaultPath(requestPath string) string {
	if requestPath == "" || requestPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndexByte(requestPath, '/')
	if i == 0 {
		return "/"
	}
	return requestPath[:i]
}

func isPublicSuffix(domain string) bool {
	suffix, _ := publicsuffix.PublicSuffix(strings.ToLower(domain))
	return suffix == strings.ToLower(domain)
}

// Ingest applies one Set-Cookie header value against the responding
// request's host/path/scheme, per the storage algorithm of RFC 6265
// §5.3. It returns the Jar unchanged (same value, not an error) when
// the cookie is rejected by one of the algorithm's reject conditions.
func (j Jar) Ingest(rawSetCookie string, requestHost, requestPath string, secure bool, now time.Time, opts Options) Jar {
	sc, ok := parseSetCookie(rawSetCookie)
	if !ok {
		return j
	}

	c := Cookie{
		Name:           sc.name,
		Value:          sc.value,
		SecureOnly:     sc.secure,
		HTTPOnly:       sc.httpOnly,
		CreationTime:   now,
		LastAccessTime: now,
	}

	// Step 1: expiry. Max-Age takes precedence over Expires.
	switch {
	case sc.hasMaxAge:
		if sc.maxAge <= 0 {
			c.Expiry = now.Add(-time.Second) // already-expired sentinel; deletion happens on next eviction/match
		} else {
			c.Expiry = now.Add(time.Duration(sc.maxAge) * time.Second)
		}
		c.Persistent = true
	case sc.hasExpiry:
		c.Expiry = sc.expiry
		c.Persistent = true
	default:
		c.Expiry = neverExpires(now)
		c.Persistent = false
	}

	// Step 2: domain.
	domain := sc.domain
	if domain != "" {
		if strings.HasSuffix(domain, ".") {
			return j // trailing dot rejects
		}
		domain = strings.TrimPrefix(domain, ".")
		domain = strings.ToLower(domain)
		if opts.RejectPublicSuffixes && isPublicSuffix(domain) {
			if !strings.EqualFold(domain, requestHost) {
				return j
			}
			domain = ""
		}
	}
	if domain != "" {
		if !domainMatch(requestHost, domain) {
			return j
		}
		c.Domain = domain
		c.HostOnly = false
	} else {
		c.Domain = strings.ToLower(requestHost)
		c.HostOnly = true
	}

	// Step 3: path.
	if sc.path != "" && strings.HasPrefix(sc.path, "/") {
		c.Path = sc.path
	} else {
		c.Path = defaultPath(requestPath)
	}

	// Steps 4-5: this jar is always an "http API" caller (there is no
	// script-originated cookie access in this library), so the HttpOnly
	// reject condition never fires; an existing cookie's creation time is
	// inherited when present regardless of its HttpOnly bit.
	id := c.id()
	next := j.clone()
	if old, exists := next[id]; exists {
		c.CreationTime = old.CreationTime
	}
	next[id] = c
	return Jar{cookies: next}
}

// IngestAll applies every Set-Cookie header value in order.
func (j Jar) IngestAll(rawSetCookies []string, requestHost, requestPath string, secure bool, now time.Time, opts Options) Jar {
	for _, raw := range rawSetCookies {
		j = j.Ingest(raw, requestHost, requestPath, secure, now, opts)
	}
	return j
}

// Evict removes every cookie with Expiry before now.
func (j Jar) Evict(now time.Time) Jar {
	var changed bool
	next := make(map[string]Cookie, len(j.cookies))
	for k, c := range j.cookies {
		if c.Expiry.Before(now) {
			changed = true
			continue
		}
		next[k] = c
	}
	if !changed {
		return j
	}
	return Jar{cookies: next}
}

// Match returns every cookie eligible for a request to requestHost/path
// over the given scheme, sorted by longer-path-first then
// earlier-creation-first. Expired cookies are
// excluded first per the eviction rule. Matched cookies' LastAccessTime
// is not mutated here; Match is read-only, and the package has no
// operation that updates LastAccessTime after a match.
func (j Jar) Match(requestHost, requestPath string, secure bool, now time.Time) []Cookie {
	var out []Cookie
	for _, c := range j.cookies {
		if c.Expiry.Before(now) {
			continue
		}
		if !domainMatch(requestHost, c.Domain) {
			continue
		}
		if c.HostOnly && !strings.EqualFold(c.Domain, requestHost) {
			continue
		}
		if !pathMatch(requestPath, c.Path) {
			continue
		}
		if c.SecureOnly && !secure {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, k int) bool {
		if len(out[i].Path) != len(out[k].Path) {
			return len(out[i].Path) > len(out[k].Path)
		}
		return out[i].CreationTime.Before(out[k].CreationTime)
	})
	return out
}

// Len reports how many cookies the jar currently holds (including ones
// that may have since expired; callers that care should Evict first).
func (j Jar) Len() int { return len(j.cookies) }

// All returns every cookie in the jar in unspecified order, for tests
// and diagnostics.
func (j Jar) All() []Cookie {
	out := make([]Cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		out = append(out, c)
	}
	return out
}
