// Package wire parses the HTTP/1.1 status line, headers, and body framing
// off a connio.Connection. All memory it uses is bounded: the header
// phase stops reading once it holds more than the fixed cap, so it
// buffers at most the cap plus one read chunk.
package wire

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/gopherhttp/httpclient/internal/connio"
	"github.com/gopherhttp/httpclient/internal/constants"
	"github.com/gopherhttp/httpclient/internal/httperr"
	"github.com/gopherhttp/httpclient/internal/urlmodel"
)

// StatusHeaders is the result of parsing the status line and headers off
// the wire.
type StatusHeaders struct {
	Version string
	Status  int
	Reason  string
	Headers urlmodel.Header
}

// ReadStatusHeaders reads from conn until the first "\r\n\r\n", parses the
// status line and folds header continuation lines, and pushes any bytes
// read past the boundary back onto conn. The accumulated header bytes
// must not exceed constants.MaxHeaderBytes.
func ReadStatusHeaders(conn connio.Connection) (*StatusHeaders, error) {
	var buf []byte
	for {
		if idx := bytes.Index(buf, []byte("\r\n\r\n")); idx >= 0 {
			if idx+4 > constants.MaxHeaderBytes {
				return nil, httperr.OverlongHeaders(constants.MaxHeaderBytes)
			}
			head := buf[:idx+4]
			leftover := buf[idx+4:]
			if len(leftover) > 0 {
				conn.Unread(leftover)
			}
			return parseStatusHeaders(head)
		}

		if len(buf) > constants.MaxHeaderBytes {
			return nil, httperr.OverlongHeaders(constants.MaxHeaderBytes)
		}

		chunk, err := conn.Read()
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			return nil, httperr.ConnectionClosed("read_status_headers", nil)
		}
		buf = append(buf, chunk...)
	}
}

func parseStatusHeaders(data []byte) (*StatusHeaders, error) {
	text := string(data)
	lineEnd := strings.Index(text, "\r\n")
	if lineEnd < 0 {
		return nil, httperr.InvalidStatusLine(text)
	}
	statusLine := text[:lineEnd]
	rest := text[lineEnd+2:]

	sh, err := parseStatusLine(statusLine)
	if err != nil {
		return nil, err
	}

	headers, err := parseHeaderLines(rest)
	if err != nil {
		return nil, err
	}
	sh.Headers = headers
	return sh, nil
}

func parseStatusLine(line string) (*StatusHeaders, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, httperr.InvalidStatusLine(line)
	}
	version := parts[0]
	if !strings.HasPrefix(version, "HTTP/") {
		return nil, httperr.InvalidStatusLine(line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, httperr.InvalidStatusLine(line)
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	return &StatusHeaders{Version: version, Status: code, Reason: reason}, nil
}

// parseHeaderLines parses the header block (everything after the status
// line, through the terminating blank line). Continuation
// lines (leading SP/HT) are folded into the prior value with a single
// joining space (RFC 7230 §3.2.4).
func parseHeaderLines(block string) (urlmodel.Header, error) {
	h := urlmodel.NewHeader()
	lines := strings.Split(block, "\r\n")
	// The split leaves a trailing "" for the final "\r\n" before the
	// blank-line terminator, and the terminator itself contributes one
	// more ""; drop a trailing empty line if present.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	lastName := ""
	for _, line := range lines {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if lastName == "" {
				continue
			}
			appendContinuation(&h, lastName, strings.TrimSpace(line))
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return urlmodel.Header{}, httperr.InvalidHeader(line)
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		h.Add(name, value)
		lastName = name
	}
	return h, nil
}

// appendContinuation joins a continuation line onto the last value stored
// under name with a single space, matching the header's original order.
func appendContinuation(h *urlmodel.Header, name, cont string) {
	values := h.Values(name)
	if len(values) == 0 {
		h.Add(name, cont)
		return
	}
	// Rebuild with the last occurrence of name extended; other fields and
	// order are preserved.
	rebuilt := urlmodel.NewHeader()
	replaced := false
	lastIdx := len(values) - 1
	seen := -1
	h.Each(func(n, v string) {
		if strings.EqualFold(n, name) {
			seen++
			if seen == lastIdx && !replaced {
				rebuilt.Add(n, v+" "+cont)
				replaced = true
				return
			}
		}
		rebuilt.Add(n, v)
	})
	*h = rebuilt
}
