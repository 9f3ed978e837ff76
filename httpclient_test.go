package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gopherhttp/httpclient/internal/httperr"
	"github.com/gopherhttp/httpclient/internal/urlmodel"
)

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	hp := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	parts := strings.SplitN(hp, ":", 2)
	if len(parts) != 2 {
		t.Fatalf("unexpected test server URL %q", rawURL)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		t.Fatalf("bad port in %q: %v", rawURL, err)
	}
	return parts[0], port
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(ManagerSettings{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func newRequest(t *testing.T, server *httptest.Server, method, path string) *Request {
	t.Helper()
	host, port := hostPort(t, server.URL)
	return &Request{
		Method:        method,
		Secure:        false,
		Host:          host,
		Port:          port,
		Path:          path,
		Headers:       urlmodel.NewHeader(),
		Body:          NoBody,
		HTTPVersion:   "HTTP/1.1",
		RedirectCount: 10,
	}
}

func TestHTTPLbsBasicGET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello world"))
	}))
	defer server.Close()

	m := newTestManager(t)
	req := newRequest(t, server, "GET", "/hello")

	resp, data, _, err := HTTPLbs(context.Background(), req, m, NewCookieJar())
	if err != nil {
		t.Fatalf("HTTPLbs: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("Status = %d, want 200", resp.Status)
	}
	if string(data) != "hello world" {
		t.Fatalf("body = %q, want %q", data, "hello world")
	}
}

// TestHTTPLbsOverTLSTeapot exercises the TLS dial path end to end: a GET
// against a TLS fixture answering 418.
func TestHTTPLbsOverTLSTeapot(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	m, err := NewManager(ManagerSettings{TLS: TLSSettings{InsecureSkipVerify: true}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	req := newRequest(t, server, "GET", "/status/418")
	req.Secure = true

	resp, _, _, err := HTTPLbs(context.Background(), req, m, NewCookieJar())
	if err != nil {
		t.Fatalf("HTTPLbs: %v", err)
	}
	if resp.Status != http.StatusTeapot {
		t.Fatalf("Status = %d, want 418", resp.Status)
	}
	if resp.ConnectionMetadata.TLSVersion == "" {
		t.Fatalf("ConnectionMetadata.TLSVersion is empty for a TLS request")
	}
}

// TestHTTPLbsRedirectCountZeroReturnsRedirect pins the "0 disables"
// contract: a 3xx with following disabled is a normal response, not an
// error.
func TestHTTPLbsRedirectCountZeroReturnsRedirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer server.Close()

	m := newTestManager(t)
	req := newRequest(t, server, "GET", "/start")
	req.RedirectCount = 0

	resp, _, _, err := HTTPLbs(context.Background(), req, m, NewCookieJar())
	if err != nil {
		t.Fatalf("HTTPLbs with RedirectCount=0: %v", err)
	}
	if resp.Status != http.StatusFound {
		t.Fatalf("Status = %d, want 302 returned as-is", resp.Status)
	}
	if got := resp.Headers.Get("Location"); got != "/elsewhere" {
		t.Fatalf("Location = %q, want /elsewhere", got)
	}
}

func TestWithResponseStreamsAndReleases(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("streamed"))
	}))
	defer server.Close()

	m := newTestManager(t)
	req := newRequest(t, server, "GET", "/x")

	var seen string
	_, err := WithResponse(context.Background(), req, m, NewCookieJar(), func(r *Response) error {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		seen = string(buf[:n])
		return nil
	})
	if err != nil {
		t.Fatalf("WithResponse: %v", err)
	}
	if !strings.Contains(seen, "stream") {
		t.Fatalf("body excerpt = %q, want it to contain 'stream'", seen)
	}
	if got := m.Stats().ActiveConns; got != 0 {
		t.Fatalf("ActiveConns after WithResponse = %d, want 0 (connection released)", got)
	}
}

// TestHTTPLbsFollowsRedirectChain: a chain well within budget completes
// with the final hop's body and a History entry per hop followed.
func TestHTTPLbsFollowsRedirectChain(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/c", http.StatusFound)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("final"))
	})
	server := httptest.NewServer(&mux)
	defer server.Close()

	m := newTestManager(t)
	req := newRequest(t, server, "GET", "/a")

	resp, data, _, err := HTTPLbs(context.Background(), req, m, NewCookieJar())
	if err != nil {
		t.Fatalf("HTTPLbs: %v", err)
	}
	if string(data) != "final" {
		t.Fatalf("body = %q, want final", data)
	}
	if len(resp.History) != 2 {
		t.Fatalf("History has %d hops, want 2", len(resp.History))
	}
}

// TestHTTPLbsTooManyRedirects: an 11-redirect chain with RedirectCount=10
// fails with TooManyRedirects and exactly 10 prior responses recorded.
func TestHTTPLbsTooManyRedirects(t *testing.T) {
	var mux http.ServeMux
	const hops = 11
	for i := 0; i < hops; i++ {
		i := i
		mux.HandleFunc(fmt.Sprintf("/hop%d", i), func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, fmt.Sprintf("/hop%d", i+1), http.StatusFound)
		})
	}
	mux.HandleFunc(fmt.Sprintf("/hop%d", hops), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(&mux)
	defer server.Close()

	m := newTestManager(t)
	req := newRequest(t, server, "GET", "/hop0")
	req.RedirectCount = 10

	_, _, _, err := HTTPLbs(context.Background(), req, m, NewCookieJar())
	if httperr.GetErrorType(err) != httperr.ErrorTypeTooManyRedirects {
		t.Fatalf("err = %v, want ErrorTypeTooManyRedirects", err)
	}
	herr, ok := err.(*httperr.Error)
	if !ok {
		t.Fatalf("err is not *httperr.Error: %T", err)
	}
	if len(herr.History) != 10 {
		t.Fatalf("History has %d entries, want 10", len(herr.History))
	}
}

// TestHTTPLbsCookieJarPersistsAcrossCalls exercises the jar returned from
// one call being threaded into the next, the pattern a caller issuing
// several top-level requests against the same Manager follows.
func TestHTTPLbsCookieJarPersistsAcrossCalls(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/set", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "xyz"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/check", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("sid")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(c.Value))
	})
	server := httptest.NewServer(&mux)
	defer server.Close()

	m := newTestManager(t)

	setReq := newRequest(t, server, "GET", "/set")
	_, _, jar, err := HTTPLbs(context.Background(), setReq, m, NewCookieJar())
	if err != nil {
		t.Fatalf("set request: %v", err)
	}

	checkReq := newRequest(t, server, "GET", "/check")
	_, data, _, err := HTTPLbs(context.Background(), checkReq, m, jar)
	if err != nil {
		t.Fatalf("check request: %v", err)
	}
	if string(data) != "xyz" {
		t.Fatalf("server saw cookie %q, want xyz", data)
	}
}

func TestHTTPLbsCheckStatusRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	m := newTestManager(t)
	req := newRequest(t, server, "GET", "/missing")
	req.CheckStatus = func(status int, headers Header) error {
		if status >= 400 {
			return fmt.Errorf("rejected status %d", status)
		}
		return nil
	}

	_, _, _, err := HTTPLbs(context.Background(), req, m, NewCookieJar())
	if httperr.GetErrorType(err) != httperr.ErrorTypeStatusCode {
		t.Fatalf("err = %v, want ErrorTypeStatusCode", err)
	}
}

func TestCloseManagerRejectsFurtherUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := newTestManager(t)
	if err := CloseManager(m); err != nil {
		t.Fatalf("CloseManager: %v", err)
	}

	req := newRequest(t, server, "GET", "/")
	_, _, _, err := HTTPLbs(context.Background(), req, m, NewCookieJar())
	if httperr.GetErrorType(err) != httperr.ErrorTypeManagerClosed {
		t.Fatalf("err = %v, want ErrorTypeManagerClosed", err)
	}
}
