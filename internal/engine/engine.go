// Package engine implements PerformRequest, the single-hop request
// pipeline (proxy resolution, cookie injection, connection acquisition,
// request serialization, response parsing, status checking, and cookie
// extraction), plus the release-disposition computation that decides
// whether a drained connection goes back to the pool. The redirect
// rewrite rules live in internal/redirect; the hop loop that drives
// PerformRequest across hops lives in the root httpclient package.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/gopherhttp/httpclient/internal/body"
	"github.com/gopherhttp/httpclient/internal/cookiejar"
	"github.com/gopherhttp/httpclient/internal/httperr"
	"github.com/gopherhttp/httpclient/internal/pool"
	"github.com/gopherhttp/httpclient/internal/proxycfg"
	"github.com/gopherhttp/httpclient/internal/proxyenv"
	"github.com/gopherhttp/httpclient/internal/timingx"
	"github.com/gopherhttp/httpclient/internal/urlmodel"
	"github.com/gopherhttp/httpclient/internal/wire"
)

// Hooks lets a caller observe/rewrite a request just before it is sent.
type Hooks struct {
	ModifyRequest func(*urlmodel.Request)
}

// Response is what one successful hop produces: status line, headers,
// a streaming body, and the connection metadata/timing the caller may
// want to report.
type Response struct {
	Status  int
	Reason  string
	Version string
	Headers urlmodel.Header
	Body    *body.Response

	ConnectionMetadata pool.Metadata
	ConnectionReused   bool
	Metrics            timingx.Metrics
}

// PerformRequest runs one full request/response cycle against req and
// returns the response plus the cookie jar updated with any Set-Cookie
// headers. On a retryable I/O error against a reused connection, it is
// retried exactly once through another Acquire, which hands back another
// idle pooled connection for the same key when one exists and dials a
// new one otherwise; if that attempt fails too, the error is
// TooManyRetries.
func PerformRequest(ctx context.Context, mgr *pool.Manager, req *urlmodel.Request, jar cookiejar.Jar, hooks Hooks) (*Response, cookiejar.Jar, error) {
	resp, newJar, reused, err := performOnce(ctx, mgr, req, jar, hooks)
	if err == nil {
		return resp, newJar, nil
	}
	if !reused || !httperr.IsRetryable(err) {
		return nil, jar, err
	}

	resp, newJar, _, err2 := performOnce(ctx, mgr, req, jar, hooks)
	if err2 != nil {
		return nil, jar, httperr.TooManyRetries(err2)
	}
	return resp, newJar, nil
}

func performOnce(ctx context.Context, mgr *pool.Manager, reqIn *urlmodel.Request, jar cookiejar.Jar, hooks Hooks) (*Response, cookiejar.Jar, bool, error) {
	timer := timingx.NewTimer()
	req := cloneRequest(reqIn)
	if hooks.ModifyRequest != nil {
		hooks.ModifyRequest(req)
	}

	// Step 2: proxy resolution. An explicit req.HTTPProxy always
	// wins over the environment, and a configured SOCKS proxy suppresses
	// environment HTTP-proxy discovery entirely. For a TLS target the
	// dialer applies proxy auth on the CONNECT tunnel; for a plain target
	// the request itself is relayed, so the Proxy-Authorization header
	// rides with it below.
	var proxy *proxycfg.HTTPProxy
	if req.SOCKSProxy == nil {
		var perr error
		proxy, perr = proxyenv.Lookup(req.Secure, req.Host, req.HTTPProxy)
		if perr != nil {
			return nil, jar, false, perr
		}
	}
	viaPlainProxy := proxy != nil && !req.Secure

	now := time.Now()

	// Step 3: cookie injection.
	cookiejar.InsertCookiesIntoRequest(jar, req, now)

	headers := req.Headers.Clone()
	body.PrepareHeaders(&headers, req.Body)
	if req.ExpectContinue {
		headers.Set("Expect", "100-continue")
	} else {
		headers.Del("Expect")
	}
	if viaPlainProxy {
		if auth := proxyenv.BasicAuthHeader(proxy); auth != "" {
			headers.Set("Proxy-Authorization", auth)
		}
	}

	spec := pool.DialSpec{
		Host:       req.Host,
		Port:       req.Port,
		Secure:     req.Secure,
		TLSConfig:  mgr.BaseTLSConfig(),
		HTTPProxy:  proxy,
		SOCKSProxy: req.SOCKSProxy,
	}

	dialCtx := ctx
	if req.ResponseTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, req.ResponseTimeout)
		defer cancel()
	}

	// Step 4: acquire connection.
	timer.StartTCP()
	mc, err := mgr.Acquire(dialCtx, spec)
	timer.EndTCP()
	if err != nil {
		if req.ResponseTimeout > 0 && httperr.IsTimeoutError(err) {
			return nil, jar, false, httperr.ConnectionTimeout(req.Host, req.Port, req.ResponseTimeout)
		}
		return nil, jar, false, err
	}
	reused := !mc.Fresh

	if req.ResponseTimeout > 0 {
		if derr := mc.Conn.SetDeadline(time.Now().Add(req.ResponseTimeout)); derr != nil {
			mc.Release(pool.DontReuse)
			return nil, jar, reused, httperr.InternalIOException("set_deadline", derr)
		}
	}

	// Step 5: write request line + headers.
	if werr := wire.WriteRequestLine(mc.Conn, req, headers, viaPlainProxy); werr != nil {
		mc.Release(pool.DontReuse)
		return nil, jar, reused, headerPhaseErr(req, werr)
	}

	var early *wire.StatusHeaders
	if req.ExpectContinue {
		var cerr error
		early, cerr = body.AwaitContinue(mc.Conn)
		if cerr != nil {
			mc.Release(pool.DontReuse)
			return nil, jar, reused, cerr
		}
		if req.ResponseTimeout > 0 {
			mc.Conn.SetDeadline(time.Now().Add(req.ResponseTimeout))
		}
	}

	if early == nil {
		if werr := body.WriteBody(mc.Conn, req.Body); werr != nil {
			swallow := req.OnBodyWriteError != nil && req.OnBodyWriteError(werr)
			if !swallow {
				mc.Release(pool.DontReuse)
				return nil, jar, reused, headerPhaseErr(req, werr)
			}
		}
	}

	// Step 6: parse status + headers (skipped if AwaitContinue already
	// received the final response early).
	timer.StartTTFB()
	sh := early
	if sh == nil {
		var rerr error
		sh, rerr = wire.ReadStatusHeaders(mc.Conn)
		if rerr != nil {
			mc.Release(pool.DontReuse)
			return nil, jar, reused, headerPhaseErr(req, rerr)
		}
	}
	timer.EndTTFB()

	if req.ResponseTimeout > 0 {
		// Body reads do not inherit the connect+send+receive-headers budget.
		mc.Conn.SetDeadline(time.Time{})
	}

	// Step 7: attach response body stream.
	notify := func(dr body.DrainResult) {
		mc.Release(disposition(sh.Version, sh.Headers, dr))
	}
	respBody, outHeaders, berr := body.NewResponseBody(mc.Conn, req.Method, sh.Status, sh.Headers, req.RawBody, req.Decompress, notify)
	if berr != nil {
		mc.Release(pool.DontReuse)
		return nil, jar, reused, berr
	}

	// Step 8: checkStatus.
	if req.CheckStatus != nil {
		if cserr := req.CheckStatus(sh.Status, outHeaders); cserr != nil {
			respBody.Close()
			return nil, jar, reused, httperr.StatusCodeException(sh.Status, outHeaders.ToMap(), outHeaders.Get("Set-Cookie"))
		}
	}

	// Step 9: extract Set-Cookie into the jar.
	newJar := cookiejar.UpdateCookieJar(jar, req.Host, req.Path, req.Secure, outHeaders, now)

	return &Response{
		Status:             sh.Status,
		Reason:             sh.Reason,
		Version:            sh.Version,
		Headers:            outHeaders,
		Body:               respBody,
		ConnectionMetadata: mc.Metadata,
		ConnectionReused:   reused,
		Metrics:            timer.GetMetrics(),
	}, newJar, reused, nil
}

// headerPhaseErr retypes an I/O failure inside the connect+send+
// receive-headers budget as ResponseTimeout when the request's deadline
// is what fired; anything else passes through untouched.
func headerPhaseErr(req *urlmodel.Request, err error) error {
	if req.ResponseTimeout > 0 && httperr.IsTimeoutError(err) {
		return httperr.ResponseTimeout(req.ResponseTimeout)
	}
	return err
}

// cloneRequest copies req shallowly except for Headers, which is deep
// copied so ModifyRequest and cookie injection never mutate the caller's
// original Request value.
func cloneRequest(req *urlmodel.Request) *urlmodel.Request {
	next := *req
	next.Headers = req.Headers.Clone()
	return &next
}

// disposition decides the pool release: Reuse only if the body drained
// cleanly, the framing wasn't until-close, the response isn't HTTP/1.0
// without keep-alive, and the peer didn't send Connection: close.
func disposition(version string, headers urlmodel.Header, dr body.DrainResult) pool.Disposition {
	if dr.ForceDontReuse || dr.FramingAnomaly || !dr.Drained {
		return pool.DontReuse
	}
	conn := strings.ToLower(headers.Get("Connection"))
	if strings.Contains(conn, "close") {
		return pool.DontReuse
	}
	if !atLeastHTTP11(version) && !strings.Contains(conn, "keep-alive") {
		return pool.DontReuse
	}
	return pool.Reuse
}

func atLeastHTTP11(version string) bool {
	return version != "HTTP/1.0" && version != "HTTP/0.9"
}
