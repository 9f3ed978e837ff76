package cookiejar

import (
	"time"

	"github.com/gopherhttp/httpclient/internal/urlmodel"
)

func effectivePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// InsertCookiesIntoRequest rewrites req's Cookie header to the jar's
// eligible cookies for req.Host/req.Path/req.Secure, replacing any
// caller-provided Cookie header.
func InsertCookiesIntoRequest(jar Jar, req *urlmodel.Request, now time.Time) {
	matches := jar.Match(req.Host, effectivePath(req.Path), req.Secure, now)
	if len(matches) == 0 {
		req.Headers.Del("Cookie")
		return
	}
	req.Headers.Set("Cookie", RenderCookieHeader(matches))
}

// UpdateCookieJar ingests every Set-Cookie header value in responseHeaders
// against the responding host/path/scheme and returns the updated jar.
// The caller passes the request's host/path, not the response's:
// Set-Cookie domain/path defaults are always relative to the request
// that produced the response, per RFC 6265 §5.3.
func UpdateCookieJar(jar Jar, requestHost, requestPath string, secure bool, responseHeaders urlmodel.Header, now time.Time) Jar {
	setCookies := responseHeaders.Values("Set-Cookie")
	if len(setCookies) == 0 {
		return jar
	}
	return jar.IngestAll(setCookies, requestHost, effectivePath(requestPath), secure, now, DefaultOptions)
}

// EvictExpiredCookies removes every cookie with Expiry before now.
func EvictExpiredCookies(jar Jar, now time.Time) Jar {
	return jar.Evict(now)
}
