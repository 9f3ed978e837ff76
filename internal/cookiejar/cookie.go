// Package cookiejar implements an RFC 6265 cookie store: parsing,
// domain/path matching, eviction, and the Cookie/Set-Cookie
// request/response hooks. The parsing is hand-rolled rather than reused
// from net/http: the jar here is an immutable value threaded through
// request calls, a shape net/http/cookiejar's locked in-place store
// can't provide.
package cookiejar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cookie is one stored cookie. Equality for jar storage purposes is
// (Name, Domain, Path).
type Cookie struct {
	Name  string
	Value string

	Expiry time.Time
	Domain string
	Path   string

	CreationTime   time.Time
	LastAccessTime time.Time

	Persistent bool
	HostOnly   bool
	SecureOnly bool
	HTTPOnly   bool
}

func (c Cookie) id() string {
	return c.Domain + ";" + c.Path + ";" + c.Name
}

// setCookie is a raw parsed Set-Cookie line before it has been resolved
// against a request host/path (i.e. before the default-domain,
// default-path, and public-suffix steps have been applied).
type setCookie struct {
	name, value string
	expiry      time.Time
	hasExpiry   bool
	maxAge      int
	hasMaxAge   bool
	domain      string
	path        string
	secure      bool
	httpOnly    bool
}

// parseSetCookie parses one Set-Cookie header value per RFC 6265 §5.2.
// It returns ok=false only when the name=value pair itself is malformed;
// unrecognized or malformed attributes are simply ignored; lenient on
// attributes, strict only on the cookie-pair.
func parseSetCookie(line string) (setCookie, bool) {
	parts := strings.Split(strings.TrimSpace(line), ";")
	if len(parts) == 0 {
		return setCookie{}, false
	}
	nameValue := strings.TrimSpace(parts[0])
	eq := strings.IndexByte(nameValue, '=')
	if eq < 0 {
		return setCookie{}, false
	}
	name, value := nameValue[:eq], nameValue[eq+1:]
	if !isValidCookieName(name) {
		return setCookie{}, false
	}
	value, ok := unquoteCookieValue(value)
	if !ok {
		return setCookie{}, false
	}

	sc := setCookie{name: name, value: value}
	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		k, v := attr, ""
		if i := strings.IndexByte(attr, '='); i >= 0 {
			k, v = attr[:i], strings.TrimSpace(attr[i+1:])
		}
		switch strings.ToLower(k) {
		case "secure":
			sc.secure = true
		case "httponly":
			sc.httpOnly = true
		case "domain":
			sc.domain = v
		case "path":
			sc.path = v
		case "max-age":
			if n, err := strconv.Atoi(v); err == nil {
				sc.maxAge, sc.hasMaxAge = n, true
			}
		case "expires":
			if t, err := parseCookieTime(v); err == nil {
				sc.expiry, sc.hasExpiry = t.UTC(), true
			}
		}
	}
	return sc, true
}

func parseCookieTime(v string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC1123,
		time.RFC1123Z,
		"Mon, 02-Jan-2006 15:04:05 MST",
		"Monday, 02-Jan-06 15:04:05 MST",
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid cookie Expires value: %q", v)
}

func isValidCookieName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= 0x20 || c >= 0x7f || strings.IndexByte("()<>@,;:\\\"/[]?={} \t", c) >= 0 {
			return false
		}
	}
	return true
}

func unquoteCookieValue(v string) (string, bool) {
	if len(v) > 1 && v[0] == '"' && v[len(v)-1] == '"' {
		v = v[1 : len(v)-1]
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c < 0x21 || c == 0x22 || c == 0x2c || c == 0x3b || c == 0x5c || c >= 0x7f {
			return "", false
		}
	}
	return v, true
}

// RenderCookieHeader concatenates cookies as "name=value; ..." in the
// order given (the caller is responsible for having already sorted them
// into emission order).
func RenderCookieHeader(cookies []Cookie) string {
	var b strings.Builder
	for i, c := range cookies {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	return b.String()
}
