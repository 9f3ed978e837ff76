package body

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gopherhttp/httpclient/internal/httperr"
	"github.com/gopherhttp/httpclient/internal/urlmodel"
)

// recordingConn is a minimal connio.Connection that records writes and
// serves a fixed read sequence, for exercising WriteBody/AwaitContinue
// without a real socket.
type recordingConn struct {
	written  bytes.Buffer
	reads    [][]byte
	pushback []byte
	deadline time.Time
}

func (c *recordingConn) Read() ([]byte, error) {
	if len(c.pushback) > 0 {
		b := c.pushback
		c.pushback = nil
		return b, nil
	}
	if len(c.reads) == 0 {
		return nil, nil
	}
	next := c.reads[0]
	c.reads = c.reads[1:]
	return next, nil
}

func (c *recordingConn) ReadExactly(n int) ([]byte, error) {
	var out []byte
	for len(out) < n {
		b, err := c.Read()
		if err != nil {
			return out, err
		}
		if len(b) == 0 {
			return out, httperr.ConnectionClosed("read_exactly", io.EOF)
		}
		out = append(out, b...)
	}
	if len(out) > n {
		c.Unread(out[n:])
		out = out[:n]
	}
	return out, nil
}

func (c *recordingConn) Unread(b []byte) {
	c.pushback = append(append([]byte(nil), b...), c.pushback...)
}

func (c *recordingConn) Write(b []byte) (int, error) {
	return c.written.Write(b)
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) SetDeadline(t time.Time) error {
	c.deadline = t
	return nil
}

func (c *recordingConn) LocalAddr() net.Addr  { return nil }
func (c *recordingConn) RemoteAddr() net.Addr { return nil }

func TestNeedsNoBody(t *testing.T) {
	cases := []struct {
		method string
		status int
		want   bool
	}{
		{"GET", 200, false},
		{"HEAD", 200, true},
		{"head", 404, true},
		{"GET", 100, true},
		{"GET", 204, true},
		{"GET", 304, true},
		{"GET", 201, false},
	}
	for _, c := range cases {
		if got := NeedsNoBody(c.method, c.status); got != c.want {
			t.Errorf("NeedsNoBody(%q, %d) = %v, want %v", c.method, c.status, got, c.want)
		}
	}
}

func TestSelectFramingBothPresentIsAnError(t *testing.T) {
	h := urlmodel.NewHeader()
	h.Set("Content-Length", "5")
	h.Set("Transfer-Encoding", "chunked")
	_, _, err := SelectFraming("GET", 200, h)
	if httperr.GetErrorType(err) != httperr.ErrorTypeLengthAndChunkingBoth {
		t.Fatalf("err = %v, want ErrorTypeLengthAndChunkingBoth", err)
	}
}

func TestSelectFramingChunked(t *testing.T) {
	h := urlmodel.NewHeader()
	h.Set("Transfer-Encoding", "chunked")
	framing, _, err := SelectFraming("GET", 200, h)
	if err != nil || framing != FramingChunked {
		t.Fatalf("got (%v, %v), want FramingChunked", framing, err)
	}
}

func TestSelectFramingContentLength(t *testing.T) {
	h := urlmodel.NewHeader()
	h.Set("Content-Length", "42")
	framing, n, err := SelectFraming("GET", 200, h)
	if err != nil || framing != FramingContentLength || n != 42 {
		t.Fatalf("got (%v, %d, %v), want (FramingContentLength, 42, nil)", framing, n, err)
	}
}

func TestSelectFramingInvalidContentLength(t *testing.T) {
	h := urlmodel.NewHeader()
	h.Set("Content-Length", "-1")
	if _, _, err := SelectFraming("GET", 200, h); httperr.GetErrorType(err) != httperr.ErrorTypeInvalidHeader {
		t.Fatalf("err = %v, want ErrorTypeInvalidHeader", err)
	}
}

func TestSelectFramingUntilClose(t *testing.T) {
	framing, _, err := SelectFraming("GET", 200, urlmodel.NewHeader())
	if err != nil || framing != FramingUntilClose {
		t.Fatalf("got (%v, %v), want FramingUntilClose", framing, err)
	}
}

func TestSelectFramingEmptyForHeadAnd204(t *testing.T) {
	h := urlmodel.NewHeader()
	h.Set("Content-Length", "10")
	framing, _, err := SelectFraming("HEAD", 200, h)
	if err != nil || framing != FramingEmpty {
		t.Fatalf("HEAD with Content-Length: got (%v, %v), want FramingEmpty", framing, err)
	}
	framing, _, err = SelectFraming("GET", 204, h)
	if err != nil || framing != FramingEmpty {
		t.Fatalf("204: got (%v, %v), want FramingEmpty", framing, err)
	}
}

func TestPrepareHeadersBytesBody(t *testing.T) {
	h := urlmodel.NewHeader()
	PrepareHeaders(&h, urlmodel.BytesBody{Data: []byte("hello")})
	if h.Get("Content-Length") != "5" {
		t.Errorf("Content-Length = %q, want 5", h.Get("Content-Length"))
	}
	if h.Has("Transfer-Encoding") {
		t.Errorf("unexpected Transfer-Encoding for a BytesBody")
	}
}

func TestPrepareHeadersStreamChunkedBody(t *testing.T) {
	h := urlmodel.NewHeader()
	h.Set("Content-Length", "999") // stale value from a prior attempt
	PrepareHeaders(&h, urlmodel.StreamChunkedBody{})
	if h.Has("Content-Length") {
		t.Errorf("Content-Length should be cleared for a chunked body")
	}
	if h.Get("Transfer-Encoding") != "chunked" {
		t.Errorf("Transfer-Encoding = %q, want chunked", h.Get("Transfer-Encoding"))
	}
}

func TestWriteBodyBytesBody(t *testing.T) {
	conn := &recordingConn{}
	if err := WriteBody(conn, urlmodel.BytesBody{Data: []byte("payload")}); err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	if conn.written.String() != "payload" {
		t.Errorf("written = %q, want %q", conn.written.String(), "payload")
	}
}

func TestWriteBodyStreamChunkedBody(t *testing.T) {
	conn := &recordingConn{}
	src := urlmodel.BytesSource([]byte("abc"))
	if err := WriteBody(conn, urlmodel.StreamChunkedBody{Source: src}); err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	want := "3\r\nabc\r\n0\r\n\r\n"
	if conn.written.String() != want {
		t.Errorf("written = %q, want %q", conn.written.String(), want)
	}
}

func TestWriteBodyStreamChunkedNilSource(t *testing.T) {
	conn := &recordingConn{}
	if err := WriteBody(conn, urlmodel.StreamChunkedBody{}); err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	if conn.written.String() != "0\r\n\r\n" {
		t.Errorf("written = %q, want final chunk only", conn.written.String())
	}
}

func TestWriteBodyBuilderBody(t *testing.T) {
	conn := &recordingConn{}
	body := urlmodel.BuilderBody{Len: 2, Writer: func(w io.Writer) error {
		_, err := w.Write([]byte("ok"))
		return err
	}}
	if err := WriteBody(conn, body); err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	if conn.written.String() != "ok" {
		t.Errorf("written = %q, want ok", conn.written.String())
	}
}

func TestAwaitContinueReturnsOnStatus100(t *testing.T) {
	conn := &recordingConn{reads: [][]byte{[]byte("HTTP/1.1 100 Continue\r\n\r\n")}}
	early, err := AwaitContinue(conn)
	if err != nil {
		t.Fatalf("AwaitContinue: %v", err)
	}
	if early != nil {
		t.Fatalf("AwaitContinue returned an early response for a 100 Continue")
	}
}

func TestAwaitContinueReturnsEarlyOnRejection(t *testing.T) {
	conn := &recordingConn{reads: [][]byte{[]byte("HTTP/1.1 417 Expectation Failed\r\n\r\n")}}
	early, err := AwaitContinue(conn)
	if err != nil {
		t.Fatalf("AwaitContinue: %v", err)
	}
	if early == nil || early.Status != 417 {
		t.Fatalf("AwaitContinue early = %+v, want status 417", early)
	}
}

func TestIsTimeoutErrUnwraps(t *testing.T) {
	base := errors.New("i/o timeout")
	wrapped := httperr.InternalIOException("read", &timeoutErr{})
	if !isTimeoutErr(wrapped) {
		t.Errorf("isTimeoutErr did not detect a wrapped net.Error timeout")
	}
	if isTimeoutErr(base) {
		t.Errorf("isTimeoutErr flagged a plain error as a timeout")
	}
}

type timeoutErr struct{}

func (*timeoutErr) Error() string   { return "i/o timeout" }
func (*timeoutErr) Timeout() bool   { return true }
func (*timeoutErr) Temporary() bool { return true }
