package urlmodel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gopherhttp/httpclient/internal/httperr"
	"golang.org/x/net/idna"
)

// ParseURL accepts an "http://" or "https://" URL and returns a Request
// with method GET, an empty body, and RedirectCount left at 0 (caller
// enables redirect following explicitly). Host, port (default 80/443),
// path (at least "/"), and the opaque query string are extracted. An
// unknown scheme or malformed port fails with InvalidURL.
func ParseURL(raw string) (*Request, error) {
	scheme, rest, ok := cutScheme(raw)
	if !ok {
		return nil, httperr.InvalidURL(raw, "unknown scheme")
	}
	secure := scheme == "https"

	hostport, pathAndQuery := rest, "/"
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		hostport, pathAndQuery = rest[:i], rest[i:]
	}
	if hostport == "" {
		return nil, httperr.InvalidURL(raw, "missing host")
	}

	host, portStr, hasPort := splitHostPort(hostport)
	if host == "" {
		return nil, httperr.InvalidURL(raw, "missing host")
	}
	host, err := toASCIIHost(host)
	if err != nil {
		return nil, httperr.InvalidURL(raw, "invalid internationalized host: "+err.Error())
	}

	port := 80
	if secure {
		port = 443
	}
	if hasPort {
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 1 || p > 65535 {
			return nil, httperr.InvalidURL(raw, fmt.Sprintf("malformed port %q", portStr))
		}
		port = p
	}

	path, query := "/", ""
	if pathAndQuery != "" {
		if i := strings.IndexByte(pathAndQuery, '?'); i >= 0 {
			path, query = pathAndQuery[:i], pathAndQuery[i+1:]
		} else {
			path = pathAndQuery
		}
	}
	if path == "" {
		path = "/"
	}

	return &Request{
		Method:        "GET",
		Secure:        secure,
		Host:          host,
		Port:          port,
		Path:          path,
		Query:         query,
		Headers:       NewHeader(),
		Body:          NoBody,
		HTTPVersion:   "HTTP/1.1",
		RedirectCount: 0,
	}, nil
}

// toASCIIHost normalizes an internationalized hostname to its ASCII
// (punycode) form, leaving already-ASCII hosts untouched. Bracketed IPv6
// literals are passed through as-is; idna only applies to DNS names.
func toASCIIHost(host string) (string, error) {
	if isASCII(host) {
		return host, nil
	}
	if strings.HasPrefix(host, "[") {
		return host, nil
	}
	return idna.Lookup.ToASCII(host)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func cutScheme(raw string) (scheme, rest string, ok bool) {
	const httpPrefix = "http://"
	const httpsPrefix = "https://"
	switch {
	case strings.HasPrefix(raw, httpsPrefix):
		return "https", raw[len(httpsPrefix):], true
	case strings.HasPrefix(raw, httpPrefix):
		return "http", raw[len(httpPrefix):], true
	default:
		return "", "", false
	}
}

// splitHostPort splits "host:port" without requiring a well-formed
// net.JoinHostPort value (bracketed IPv6 literals are supported).
func splitHostPort(hostport string) (host, port string, hasPort bool) {
	if strings.HasPrefix(hostport, "[") {
		if i := strings.IndexByte(hostport, ']'); i >= 0 {
			host = hostport[1:i]
			remainder := hostport[i+1:]
			if strings.HasPrefix(remainder, ":") {
				return host, remainder[1:], true
			}
			return host, "", false
		}
	}
	if i := strings.LastIndexByte(hostport, ':'); i >= 0 && !strings.Contains(hostport[i+1:], ":") {
		return hostport[:i], hostport[i+1:], true
	}
	return hostport, "", false
}

// RenderURL reconstructs the URL a Request was parsed from (or points at),
// for use as the "effective URL" in redirect resolution and cookie
// scoping. Default ports are omitted.
func RenderURL(r *Request) string {
	var b strings.Builder
	if r.Secure {
		b.WriteString("https://")
	} else {
		b.WriteString("http://")
	}
	b.WriteString(r.Host)
	if (r.Secure && r.Port != 443) || (!r.Secure && r.Port != 80) {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(r.Port))
	}
	if r.Path == "" {
		b.WriteByte('/')
	} else {
		b.WriteString(r.Path)
	}
	if r.Query != "" {
		b.WriteByte('?')
		b.WriteString(r.Query)
	}
	return b.String()
}

const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_.~"

// EncodeQueryValue percent-encodes s for use in a query string: unreserved
// characters pass through, space becomes '+', everything else becomes
// "%HH" uppercase hex. It is idempotent on the unreserved alphabet and
// injective on bytes.
func EncodeQueryValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case strings.IndexByte(unreserved, c) >= 0:
			b.WriteByte(c)
		case c == ' ':
			b.WriteByte('+')
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
