package httpmsg

import (
	"net"
	"strings"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/connio"
)

// Send serializes m and writes it to conn: the header line (CRLF-terminated
// if not already), each header as "key: value\r\n", a blank line, then the
// body bytes or the body file's contents.
func (m *Message) Send(conn net.Conn) error {
	m.reconcileContentLength()

	var b strings.Builder
	b.WriteString(m.HeaderLine)
	if !strings.HasSuffix(m.HeaderLine, "\r\n") {
		b.WriteString("\r\n")
	}
	m.Headers.Each(func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	})
	b.WriteString("\r\n")

	if err := connio.SendAll(conn, []byte(b.String())); err != nil {
		return err
	}

	if m.BodyFile != nil {
		if m.bodyLen > 0 {
			return connio.SendFileRange(conn, m.BodyFile, m.bodyLen)
		}
		return nil
	}
	if len(m.Body) > 0 {
		return connio.SendAll(conn, m.Body)
	}
	return nil
}

// Bytes serializes m into a single in-memory buffer. It is used to persist
// a message to the cache and may not be called on a message with a
// file-backed body (callers that fetched into a file should stream it
// with Send instead).
func (m *Message) Bytes() []byte {
	m.reconcileContentLength()

	var b strings.Builder
	b.WriteString(m.HeaderLine)
	if !strings.HasSuffix(m.HeaderLine, "\r\n") {
		b.WriteString("\r\n")
	}
	m.Headers.Each(func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	})
	b.WriteString("\r\n")
	out := []byte(b.String())
	out = append(out, m.Body...)
	return out
}
