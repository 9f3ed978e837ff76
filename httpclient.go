// Package httpclient is a pooled, streaming HTTP/1.1 client: connection
// reuse with a background reaper, request/response body streaming
// (fixed-length, chunked, builder, lazy-source), HTTP/SOCKS proxy dialing
// with CONNECT tunneling, redirect following with an auditable history,
// and an RFC 6265 cookie jar.
//
// The subsystems that carry the engineering weight (the connection
// manager in internal/pool, the request/response engine in
// internal/engine, internal/body, and internal/wire, and the cookie jar
// in internal/cookiejar) live in internal packages; this file wires them
// together behind the public surface: NewManager, CloseManager,
// WithResponse, HTTPLbs, ParseURL, and the cookie jar hooks.
package httpclient

import (
	"context"
	"io"
	"time"

	"github.com/gopherhttp/httpclient/internal/buffer"
	"github.com/gopherhttp/httpclient/internal/constants"
	"github.com/gopherhttp/httpclient/internal/cookiejar"
	"github.com/gopherhttp/httpclient/internal/engine"
	"github.com/gopherhttp/httpclient/internal/httperr"
	"github.com/gopherhttp/httpclient/internal/pool"
	"github.com/gopherhttp/httpclient/internal/proxycfg"
	"github.com/gopherhttp/httpclient/internal/redirect"
	"github.com/gopherhttp/httpclient/internal/timingx"
	"github.com/gopherhttp/httpclient/internal/urlmodel"
)

// Re-export the types a caller needs to build a Request and read a
// Response without reaching into internal packages.
type (
	// Request is the value callers build (directly, or via ParseURL) and
	// pass to WithResponse/HTTPLbs.
	Request = urlmodel.Request

	// RequestBody is the tagged body variant a Request carries.
	RequestBody = urlmodel.RequestBody

	// BytesBody, BuilderBody, StreamBody, and StreamChunkedBody are the
	// four concrete RequestBody shapes.
	BytesBody         = urlmodel.BytesBody
	BuilderBody       = urlmodel.BuilderBody
	StreamBody        = urlmodel.StreamBody
	StreamChunkedBody = urlmodel.StreamChunkedBody

	// Source is a restartable lazy byte sequence backing a streaming body.
	Source      = urlmodel.Source
	BytesSource = urlmodel.BytesSource

	// Header is the ordered, case-insensitive-lookup header list used by
	// both requests and responses.
	Header = urlmodel.Header

	// CheckStatusFunc and DecompressFunc are the two caller-supplied
	// predicates a Request may carry.
	CheckStatusFunc = urlmodel.CheckStatusFunc
	DecompressFunc  = urlmodel.DecompressFunc

	// ManagerSettings configures a Manager's pool sizing, idle timeout,
	// and TLS policy.
	ManagerSettings = pool.Settings
	TLSSettings     = pool.TLSSettings

	// HTTPProxy and SOCKSProxy configure an explicit per-request proxy.
	HTTPProxy  = proxycfg.HTTPProxy
	SOCKSProxy = proxycfg.SOCKSProxy

	// ConnMetadata is the connection metadata (peer address, TLS
	// parameters, proxy use, connection ID) a Response carries for
	// observability; whether the connection was reused is reported
	// separately in Response.ConnectionReused.
	ConnMetadata = pool.Metadata

	// Metrics carries the timing for one hop. TCPConnect spans the whole
	// connection acquisition (DNS lookup, TCP connect and any TLS
	// handshake, or the pool lookup of a reused connection), TTFB the wait
	// for the status line and headers, and TotalTime the hop up to its
	// headers. DNSLookup and TLSHandshake are not timed separately and
	// stay zero.
	Metrics = timingx.Metrics

	// RedirectOptions configures the 301/302 method-rewrite choice.
	RedirectOptions = redirect.Options

	// Hop is one followed redirect response, oldest first in
	// Response.History.
	Hop = redirect.Hop

	// PoolStats is a point-in-time snapshot of the Manager's pool.
	PoolStats = pool.Stats

	// Cookie and CookieJar are the RFC 6265 cookie value and store.
	Cookie    = cookiejar.Cookie
	CookieJar = cookiejar.Jar
)

// NoBody is the zero-length request body (GET, HEAD, ...).
var NoBody = urlmodel.NoBody

// ParseURL accepts an "http://" or "https://" URL and returns a GET
// Request with an empty body and redirect following disabled.
func ParseURL(raw string) (*Request, error) {
	return urlmodel.ParseURL(raw)
}

// NewCookieJar returns an empty cookie jar.
func NewCookieJar() CookieJar { return cookiejar.New() }

// InsertCookiesIntoRequest rewrites req's Cookie header to jar's eligible
// cookies for req.Host/req.Path/req.Secure.
func InsertCookiesIntoRequest(jar CookieJar, req *Request, now time.Time) {
	cookiejar.InsertCookiesIntoRequest(jar, req, now)
}

// UpdateCookieJar ingests every Set-Cookie header in responseHeaders
// against requestHost/requestPath/secure and returns the updated jar.
func UpdateCookieJar(jar CookieJar, requestHost, requestPath string, secure bool, responseHeaders Header, now time.Time) CookieJar {
	return cookiejar.UpdateCookieJar(jar, requestHost, requestPath, secure, responseHeaders, now)
}

// EvictExpiredCookies removes every cookie with an expiry before now.
func EvictExpiredCookies(jar CookieJar, now time.Time) CookieJar {
	return cookiejar.EvictExpiredCookies(jar, now)
}

// Manager owns the pooled connections shared by every request run
// through it. Create one with NewManager and close it exactly once with
// CloseManager (or Manager.Close) when done.
type Manager struct {
	pool     *pool.Manager
	redirect redirect.Options
	modify   func(*Request)
}

// NewManager starts a Manager with its reaper goroutine running.
// RedirectOptions picks the 301/302 method-rewrite behavior (zero value:
// preserve method and body, this library's documented default).
func NewManager(settings ManagerSettings, opts ...RedirectOptions) (*Manager, error) {
	p, err := pool.NewManager(settings)
	if err != nil {
		return nil, err
	}
	m := &Manager{pool: p}
	if len(opts) > 0 {
		m.redirect = opts[0]
	}
	return m, nil
}

// CloseManager closes m, evicting every pooled connection. Any acquire
// attempted after this point fails with httperr.ManagerClosed.
func CloseManager(m *Manager) error { return m.Close() }

// Close evicts every pooled connection and stops the reaper. Call it
// exactly once, after every in-flight request has finished.
func (m *Manager) Close() error { return m.pool.Close() }

// Stats returns a point-in-time snapshot of pool occupancy and
// lifetime reuse counters.
func (m *Manager) Stats() PoolStats { return m.pool.Stats() }

// SetModifyRequest installs a hook the engine runs on (a clone of) every
// request just before it is sent. Call it before sharing m across
// goroutines.
func (m *Manager) SetModifyRequest(fn func(*Request)) { m.modify = fn }

// Response is a streaming response from one top-level call: the final
// hop's status/headers/body, the prior hops in chronological order
// (empty unless redirects were followed), and the cookie jar updated
// with every Set-Cookie header seen along the way.
type Response struct {
	Status  int
	Reason  string
	Version string
	Headers Header
	Body    io.ReadCloser

	History []Hop
	Jar     CookieJar

	ConnectionMetadata ConnMetadata
	ConnectionReused   bool
	Metrics            Metrics
}

// WithResponse runs req to completion (following redirects per
// req.RedirectCount) and passes the still-open Response to action. When
// action returns the body is closed: the connection goes back to the
// Manager's pool if action drained the body, and is closed otherwise.
func WithResponse(ctx context.Context, req *Request, m *Manager, jar CookieJar, action func(*Response) error) (CookieJar, error) {
	resp, newJar, err := runToCompletion(ctx, m, req, jar)
	if err != nil {
		return jar, err
	}
	defer resp.Body.Close()
	return newJar, action(resp)
}

// HTTPLbs runs req to completion and returns the fully buffered response
// body instead of a stream. The accumulation goes through
// internal/buffer: in memory up to constants.DefaultBodyMemLimit,
// spilling to a temp file beyond it, and failing once the total passes
// constants.MaxContentLength. The returned slice holds the whole body, so
// a spilled body is read back into memory in full.
func HTTPLbs(ctx context.Context, req *Request, m *Manager, jar CookieJar) (*Response, []byte, CookieJar, error) {
	resp, newJar, err := runToCompletion(ctx, m, req, jar)
	if err != nil {
		return nil, nil, jar, err
	}
	defer resp.Body.Close()

	buf := buffer.New(constants.DefaultBodyMemLimit)
	defer buf.Close()
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, nil, newJar, httperr.InternalIOException("read_body", err)
	}

	if !buf.IsSpilled() {
		data := append([]byte(nil), buf.Bytes()...)
		return resp, data, newJar, nil
	}
	r, err := buf.Reader()
	if err != nil {
		return nil, nil, newJar, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, newJar, httperr.InternalIOException("read_spilled_body", err)
	}
	return resp, data, newJar, nil
}

// runToCompletion drives the redirect hop loop: PerformRequest one hop,
// decide whether the response is a redirect with budget remaining, and
// if so drain+close it and compute the next request via
// internal/redirect before looping. Each intermediate response is fully
// drained before the next hop so its connection can go back to the pool.
func runToCompletion(ctx context.Context, m *Manager, req *Request, jar CookieJar) (*Response, CookieJar, error) {
	// RedirectCount 0 disables following outright: a 3xx comes back to the
	// caller as a normal response. Exhausting a non-zero budget mid-chain
	// is the error case, not this one.
	follow := req.RedirectCount > 0
	budget := redirect.NewBudget(req.RedirectCount)
	cur := req

	for {
		hopResp, newJar, err := engine.PerformRequest(ctx, m.pool, cur, jar, engine.Hooks{ModifyRequest: m.modify})
		if err != nil {
			return nil, jar, err
		}
		jar = newJar

		if !follow || !redirect.ShouldFollow(hopResp.Status) {
			return &Response{
				Status:             hopResp.Status,
				Reason:             hopResp.Reason,
				Version:            hopResp.Version,
				Headers:            hopResp.Headers,
				Body:               hopResp.Body,
				History:            budget.History,
				Jar:                jar,
				ConnectionMetadata: hopResp.ConnectionMetadata,
				ConnectionReused:   hopResp.ConnectionReused,
				Metrics:            hopResp.Metrics,
			}, jar, nil
		}

		next, rerr := redirect.NextRequest(hopResp.Status, hopResp.Headers, cur, m.redirect)
		if rerr != nil {
			hopResp.Body.Close()
			return nil, jar, rerr
		}
		if next == nil {
			// A redirect status with no Location header is not actually
			// a redirect to follow; surface it as a normal response.
			return &Response{
				Status:             hopResp.Status,
				Reason:             hopResp.Reason,
				Version:            hopResp.Version,
				Headers:            hopResp.Headers,
				Body:               hopResp.Body,
				History:            budget.History,
				Jar:                jar,
				ConnectionMetadata: hopResp.ConnectionMetadata,
				ConnectionReused:   hopResp.ConnectionReused,
				Metrics:            hopResp.Metrics,
			}, jar, nil
		}

		if berr := budget.Record(cur, hopResp.Status, hopResp.Headers); berr != nil {
			hopResp.Body.Close()
			return nil, jar, berr
		}
		io.Copy(io.Discard, hopResp.Body)
		hopResp.Body.Close()
		cur = next
	}
}
