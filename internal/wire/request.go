package wire

import (
	"strconv"
	"strings"

	"github.com/gopherhttp/httpclient/internal/connio"
	"github.com/gopherhttp/httpclient/internal/urlmodel"
)

// WriteRequestLine writes the request line and header block for req onto
// conn: "METHOD target HTTP/1.1\r\nName: value\r\n...\r\n\r\n". Host is
// always taken from req.Host/req.Port, never from a caller-supplied Host
// header. absoluteTarget switches the request-target to absolute-URI
// form, which a plain-HTTP request relayed through a forward proxy
// requires.
func WriteRequestLine(conn connio.Connection, req *urlmodel.Request, headers urlmodel.Header, absoluteTarget bool) error {
	target := req.RequestTarget()
	if absoluteTarget {
		target = urlmodel.RenderURL(req)
	}

	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(target)
	b.WriteByte(' ')
	b.WriteString(req.EffectiveHTTPVersion())
	b.WriteString("\r\n")

	b.WriteString("Host: ")
	b.WriteString(hostHeaderValue(req))
	b.WriteString("\r\n")

	headers.Each(func(name, value string) {
		if strings.EqualFold(name, "Host") {
			return
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	})
	b.WriteString("\r\n")

	_, err := conn.Write([]byte(b.String()))
	return err
}

// hostHeaderValue omits the port when it matches the scheme's default, the
// same convention urlmodel.RenderURL uses for the URL's host:port form.
func hostHeaderValue(req *urlmodel.Request) string {
	if (req.Secure && req.Port == 443) || (!req.Secure && req.Port == 80) {
		return req.Host
	}
	return req.Host + ":" + strconv.Itoa(req.Port)
}
