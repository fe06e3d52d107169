package httpmsg

import (
	"bytes"
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/perr"
)

// KeepAliveTimeout bounds how long Receive will wait for data on an idle
// socket before aborting, the Go equivalent of the original's
// poll(..., KEEP_ALIVE_TIMEOUT_MS). It is a var rather than a const so
// tests can shrink it instead of sleeping through the real 10s default.
var KeepAliveTimeout = 10 * time.Second

// Receive incrementally reads a single HTTP message (request or response)
// from conn: it polls for readability with a bounded idle timeout, reads
// in Chunk-sized bursts, and scans for the header terminator before
// framing the body against Content-Length.
func Receive(conn net.Conn) (*Message, error) {
	buf := make([]byte, 0, Chunk)
	headerEnd := -1
	firstRead := true

	for headerEnd < 0 {
		if len(buf) > MaxHeader {
			return nil, perr.Wrapf(perr.KindHeaderTooLarge, "header region exceeds %d bytes before terminator found", MaxHeader)
		}
		if err := conn.SetReadDeadline(time.Now().Add(KeepAliveTimeout)); err != nil {
			return nil, perr.New(perr.KindTransportError, err)
		}
		chunk := make([]byte, Chunk)
		n, err := conn.Read(chunk)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, perr.Wrapf(perr.KindIdleTimeout, "idle timeout waiting for header")
			}
			if errors.Is(err, os.ErrClosed) || n == 0 {
				if firstRead {
					return nil, perr.Wrapf(perr.KindPeerClosed, "peer closed before sending any bytes")
				}
			}
			return nil, perr.New(perr.KindTransportError, err)
		}
		if n == 0 {
			if firstRead {
				return nil, perr.Wrapf(perr.KindPeerClosed, "peer closed before sending any bytes")
			}
			return nil, perr.New(perr.KindTransportError, errors.New("zero-length read"))
		}
		firstRead = false
		buf = append(buf, chunk[:n]...)
		headerEnd = bytes.Index(buf, []byte("\r\n\r\n"))
	}

	headerLen := headerEnd + 4
	if headerLen > MaxHeader {
		return nil, perr.Wrapf(perr.KindHeaderTooLarge, "header region %d bytes exceeds %d", headerLen, MaxHeader)
	}

	m, err := parseHeaderRegion(buf[:headerLen])
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

	want := headerLen + int(declared)
	for len(buf) < want {
		if err := conn.SetReadDeadline(time.Now().Add(KeepAliveTimeout)); err != nil {
			return nil, perr.New(perr.KindTransportError, err)
		}
		chunk := make([]byte, Chunk)
		n, err := conn.Read(chunk)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, perr.Wrapf(perr.KindIdleTimeout, "idle timeout waiting for body")
			}
			return nil, perr.New(perr.KindTransportError, err)
		}
		if n == 0 {
			return nil, perr.New(perr.KindTransportError, errors.New("zero-length read"))
		}
		buf = append(buf, chunk[:n]...)
	}
	if len(buf) > want {
		return nil, perr.Wrapf(perr.KindFramingError, "received %d bytes beyond Content-Length-framed message of %d", len(buf)-want, want)
	}

	// Re-point the body view at the (possibly reallocated) buffer, per
	// spec.md §4.2's closing note.
	m.SetBody(buf[headerLen:want])
	return m, nil
}
