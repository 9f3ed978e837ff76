// Package proxyenv resolves proxies from the environment:
// http_proxy/https_proxy/no_proxy, case-insensitive. Unlike the request
// URL model in internal/urlmodel, proxy URLs carry optional userinfo and
// come from an external system (the process environment), so this
// package parses them with net/url.
package proxyenv

import (
	"encoding/base64"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gopherhttp/httpclient/internal/httperr"
	"github.com/gopherhttp/httpclient/internal/proxycfg"
)

// Resolved is the outcome of resolving a proxy for one request.
type Resolved struct {
	HTTPProxy *proxycfg.HTTPProxy
}

// Lookup reads the environment: http_proxy for plain requests,
// https_proxy for TLS requests (case-insensitive names), skipped
// entirely when host matches a no_proxy suffix. explicit, when non-nil,
// always wins over the environment.
func Lookup(secure bool, host string, explicit *proxycfg.HTTPProxy) (*proxycfg.HTTPProxy, error) {
	if explicit != nil {
		return explicit, nil
	}
	if noProxyMatches(host, getenvFold("no_proxy")) {
		return nil, nil
	}

	varName := "http_proxy"
	if secure {
		varName = "https_proxy"
	}
	raw := getenvFold(varName)
	if raw == "" {
		return nil, nil
	}
	return parseProxyURL(raw)
}

// getenvFold looks up name case-insensitively, preferring the lowercase
// form when both exist (matching the common shell convention).
func getenvFold(name string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return os.Getenv(strings.ToUpper(name))
}

// parseProxyURL accepts only "http://host[:port]" with no path beyond
// "/" and no query/fragment; userinfo becomes basic proxy auth.
func parseProxyURL(raw string) (*proxycfg.HTTPProxy, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errInvalidProxyURL(raw, err.Error())
	}
	if u.Scheme != "http" {
		return nil, errInvalidProxyURL(raw, "scheme must be http")
	}
	if u.Path != "" && u.Path != "/" {
		return nil, errInvalidProxyURL(raw, "must not have a path")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, errInvalidProxyURL(raw, "must not have a query or fragment")
	}
	host := u.Hostname()
	if host == "" {
		return nil, errInvalidProxyURL(raw, "missing host")
	}

	port := 80
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return nil, errInvalidProxyURL(raw, "malformed port")
		}
		port = n
	}

	proxy := &proxycfg.HTTPProxy{Host: host, Port: port}
	if u.User != nil {
		proxy.Username = u.User.Username()
		proxy.Password, _ = u.User.Password()
	}
	return proxy, nil
}

// noProxyMatches treats no_proxy as a comma-separated
// list of domain suffixes, each matched after prefixing with "."; so
// "example.com" matches "example.com" and "api.example.com" but not
// "notexample.com".
func noProxyMatches(host, list string) bool {
	if list == "" {
		return false
	}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		entry = strings.TrimPrefix(entry, ".")
		if strings.EqualFold(host, entry) {
			return true
		}
		if strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(entry)) {
			return true
		}
	}
	return false
}

// BasicAuthHeader renders the Proxy-Authorization header value for a
// proxy with Username set, or "" if no auth is configured.
func BasicAuthHeader(p *proxycfg.HTTPProxy) string {
	if p == nil || p.Username == "" {
		return ""
	}
	return "Basic " + basicAuthEncode(p.Username, p.Password)
}

func basicAuthEncode(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

func errInvalidProxyURL(url, reason string) error {
	return httperr.InvalidURL(url, reason)
}
