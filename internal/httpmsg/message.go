// Package httpmsg implements the proxy's HTTP message engine: an
// incremental, poll-bounded reader that extracts a header line, an
// ordered header set, and a Content-Length-delimited body from a stream
// socket, plus a serializer that reassembles a (possibly modified)
// message for forwarding. It deliberately does not use net/http — the
// subsystem's entire purpose is to own this wire-level mechanics itself.
package httpmsg

import (
	"bytes"
	"os"
	"strconv"
	"strings"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/perr"
)

const (
	// Chunk is the read granularity used while draining a socket.
	Chunk = 1024
	// MaxHeader caps the header region (through the terminating blank
	// line), inclusive.
	MaxHeader = 8192
	// MaxBody caps an accepted Content-Length.
	MaxBody = 4 << 30
)

// Message is a parsed (or freshly built) HTTP message: a header line, an
// ordered header set, and a body that is either owned in memory or backed
// by an open file (for large or cache-resident bodies).
type Message struct {
	HeaderLine string
	Headers    *Headers

	Body     []byte   // in-memory body bytes, mutually exclusive with BodyFile
	BodyFile *os.File // file-backed body; caller owns closing it
	bodyLen  int64    // authoritative length when BodyFile is set
}

// New returns an empty message with an initialized header set.
func New(headerLine string) *Message {
	return &Message{HeaderLine: headerLine, Headers: NewHeaders()}
}

// ContentLength returns the authoritative body length: the in-memory
// body's length, or the length recorded for a file-backed body.
func (m *Message) ContentLength() int64 {
	if m.BodyFile != nil {
		return m.bodyLen
	}
	return int64(len(m.Body))
}

// SetBodyFile attaches a file-backed body of length n. The Message takes
// no ownership of f; the caller must close it once the message is no
// longer needed.
func (m *Message) SetBodyFile(f *os.File, n int64) {
	m.BodyFile = f
	m.Body = nil
	m.bodyLen = n
}

// SetBody attaches an in-memory body.
func (m *Message) SetBody(b []byte) {
	m.Body = b
	m.BodyFile = nil
	m.bodyLen = 0
}

// reconcileContentLength overwrites the Content-Length header with the
// body's actual extent, as spec.md §4.2 "Send" requires ("reconcile
// Content-Length with the actual body extent... before sending").
func (m *Message) reconcileContentLength() {
	m.Headers.Set("Content-Length", strconv.FormatInt(m.ContentLength(), 10))
}

// ParseBytes parses a complete in-memory buffer consisting of a header
// region (terminated by CRLFCRLF) followed by exactly its body. It is
// used to re-parse raw bytes previously stored on disk by the cache;
// Receive does its own framing and calls parseHeaderRegion directly.
func ParseBytes(buf []byte) (*Message, error) {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx < 0 {
		return nil, perr.Wrapf(perr.KindParseError, "no header terminator found")
	}
	headerLen := idx + 4
	if headerLen > MaxHeader {
		return nil, perr.Wrapf(perr.KindHeaderTooLarge, "header region %d bytes exceeds %d", headerLen, MaxHeader)
	}
	headerRegion := buf[:headerLen]
	bodyRegion := buf[headerLen:]

	m, err := parseHeaderRegion(headerRegion)
	if err != nil {
		return nil, err
	}

	declared := int64(0)
	if cl, ok := m.Headers.Get("Content-Length"); ok {
		n, perr2 := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if perr2 != nil {
			return nil, perr.Wrapf(perr.KindParseError, "invalid Content-Length %q", cl)
		}
		declared = n
	} else {
		m.Headers.Set("Content-Length", "0")
	}
	if declared > MaxBody {
		return nil, perr.Wrapf(perr.KindBodyTooLarge, "Content-Length %d exceeds %d", declared, MaxBody)
	}
	if int64(len(bodyRegion)) != declared {
		return nil, perr.Wrapf(perr.KindFramingError, "body region %d bytes, Content-Length declared %d", len(bodyRegion), declared)
	}
	m.SetBody(bodyRegion)
	return m, nil
}

// parseHeaderRegion parses the header-line-plus-headers-plus-blank-line
// region exactly as spec.md §4.2 describes: the first CRLF-terminated
// line is the header line; each subsequent line splits on the first ':',
// its value left-trimmed; malformed lines (no colon) are skipped; an
// empty key is never stored; duplicates are last-write-wins while
// landing at their first-seen position (insertion order is replayed on
// serialize, per spec.md §9's note on the header container).
func parseHeaderRegion(region []byte) (*Message, error) {
	text := string(region)
	lines := strings.Split(text, "\r\n")
	// Split on \r\n produces a trailing "" for the terminating blank
	// line and a final "" from the CRLFCRLF boundary; both are harmless
	// to skip below.
	if len(lines) == 0 || lines[0] == "" {
		return nil, perr.Wrapf(perr.KindParseError, "empty header line")
	}
	m := New(lines[0])

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue // malformed line, skipped silently
		}
		key := line[:colon]
		value := strings.TrimLeft(line[colon+1:], " \t")
		if key == "" {
			continue
		}
		m.Headers.Set(key, value)
	}
	return m, nil
}
