// Package redirect implements the method/body/header rewrite rules for
// following 3xx responses. The caller drives the hop loop (it owns
// connection execution); this package only computes, given one response,
// what the next request should look like, or that there is no next
// request.
package redirect

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gopherhttp/httpclient/internal/httperr"
	"github.com/gopherhttp/httpclient/internal/urlmodel"
)

// Options configures how 301 and 302 responses are followed, the one
// place where HTTP practice and the RFCs have historically disagreed.
type Options struct {
	// RewriteMethodOn301302 switches 301/302 handling to the legacy
	// browser behavior (non-GET/HEAD methods are rewritten to GET and
	// the body is dropped). The default, false, preserves the original
	// method and body on 301/302 exactly as it does for 307/308. Set
	// this to recover the net/http-style legacy behavior.
	RewriteMethodOn301302 bool
}

// ShouldFollow reports whether status is one of the five redirect codes
// this package understands.
func ShouldFollow(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// NextRequest computes the request for the next hop given the response
// that triggered it, or returns (nil, nil) when status isn't a redirect
// status or the response carries no Location header. prev is the request
// that produced the response; it is not mutated. A malformed or
// unsupported Location header is reported as UnparseableRedirect.
func NextRequest(status int, headers urlmodel.Header, prev *urlmodel.Request, opts Options) (*urlmodel.Request, error) {
	if !ShouldFollow(status) {
		return nil, nil
	}
	loc := headers.Get("Location")
	if loc == "" {
		return nil, nil
	}

	resolved, err := resolveLocation(loc, prev)
	if err != nil {
		return nil, httperr.UnparseableRedirect(err.Error())
	}

	next := cloneForHop(prev)
	next.Host, next.Port, next.Secure = resolved.Host, resolved.Port, resolved.Secure
	next.Path, next.Query = resolved.Path, resolved.Query

	switch status {
	case 303:
		if next.Method != "HEAD" {
			next.Method = "GET"
		}
		next.Body = urlmodel.NoBody
	case 301, 302:
		if opts.RewriteMethodOn301302 && next.Method != "GET" && next.Method != "HEAD" {
			next.Method = "GET"
			next.Body = urlmodel.NoBody
		}
	case 307, 308:
		// method and body are preserved unconditionally.
	}

	if crossHost(prev, next) {
		stripCrossHostHeaders(&next.Headers)
	}

	return next, nil
}

// cloneForHop copies prev's fields the next hop inherits unless a rewrite
// rule above overrides them. RedirectCount is copied unchanged; the
// caller's Budget tracks how many hops remain.
func cloneForHop(prev *urlmodel.Request) *urlmodel.Request {
	next := *prev
	next.Headers = prev.Headers.Clone()
	return &next
}

// resolveLocation resolves loc (absolute or relative) against prev's
// effective URL using net/url, then re-parses the absolute result with
// urlmodel.ParseURL so the rest of the engine only ever sees the
// library's own Request shape. RFC 3986 reference resolution against a
// base URL is the one sub-task here genuinely suited to net/url rather
// than this library's own parser.
func resolveLocation(loc string, prev *urlmodel.Request) (*urlmodel.Request, error) {
	base, err := url.Parse(urlmodel.RenderURL(prev))
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return nil, err
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil, httperr.InvalidURL(abs.String(), "unsupported redirect scheme "+strconv.Quote(abs.Scheme))
	}
	return urlmodel.ParseURL(abs.String())
}

func crossHost(prev, next *urlmodel.Request) bool {
	return !strings.EqualFold(prev.Host, next.Host) || prev.Port != next.Port || prev.Secure != next.Secure
}

// stripCrossHostHeaders removes headers that must not follow a request
// to a different origin. Jar-managed cookies are re-injected for the new
// host separately; only the directly-set headers are dropped here.
func stripCrossHostHeaders(h *urlmodel.Header) {
	h.Del("Authorization")
	h.Del("Cookie")
	h.Del("Proxy-Authorization")
	h.Del("WWW-Authenticate")
}

// Budget tracks the remaining redirect hops for one top-level request.
// History accumulates the status/headers pairs seen so far, oldest first,
// for use in a TooManyRedirects error.
type Budget struct {
	Remaining int
	History   []Hop
}

// Hop is one followed redirect response, kept for TooManyRedirects
// reporting and for a caller-visible response history.
type Hop struct {
	Request *urlmodel.Request
	Status  int
	Headers urlmodel.Header
}

// NewBudget starts a budget with n remaining hops (the request's
// RedirectCount).
func NewBudget(n int) *Budget {
	return &Budget{Remaining: n}
}

// Record consumes one unit of budget for a hop about to be followed and
// appends it to History. Once Remaining has reached zero, it instead
// returns TooManyRedirects with the History accumulated so far: the
// hops already followed, not including the one that overran the budget,
// so a budget of 10 reports exactly 10 prior responses.
func (b *Budget) Record(req *urlmodel.Request, status int, headers urlmodel.Header) error {
	if b.Remaining <= 0 {
		return httperr.TooManyRedirects(hopsToAny(b.History))
	}
	b.History = append(b.History, Hop{Request: req, Status: status, Headers: headers})
	b.Remaining--
	return nil
}

func hopsToAny(hops []Hop) []any {
	out := make([]any, len(hops))
	for i, h := range hops {
		out[i] = h
	}
	return out
}
