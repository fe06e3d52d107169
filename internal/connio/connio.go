// Package connio implements the proxy's connection I/O primitives: dialing
// an origin, bounded full-length sends, and exactly-once close, per
// spec.md §4.1.
package connio

import (
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"sync"

	"golang.org/x/net/idna"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/perr"
)

// Connection is an open TCP endpoint owned by exactly one worker. It is
// closed exactly once on any exit path.
type Connection struct {
	net.Conn
	RemoteIP string

	closeOnce sync.Once
	closeErr  error
}

// ConnectToHost resolves host (normalizing an internationalized hostname
// to ASCII first, then falling back to the host as given if it is already
// a dotted-quad or resolution otherwise proceeds unchanged) and dials a
// TCP connection to host:port.
func ConnectToHost(ctx context.Context, host string, port int) (*Connection, error) {
	normalized := host
	if asciiHost, err := idna.Lookup.ToASCII(host); err == nil {
		normalized = asciiHost
	}

	addr := net.JoinHostPort(normalized, strconv.Itoa(port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if _, ok := err.(*net.DNSError); ok {
			return nil, perr.New(perr.KindDNSError, err)
		}
		return nil, perr.New(perr.KindConnectError, err)
	}

	remoteIP := ""
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		remoteIP = tcpAddr.IP.String()
	}
	return &Connection{Conn: conn, RemoteIP: remoteIP}, nil
}

// Wrap adapts an already-open net.Conn (e.g. one handed to a worker by
// the supervisor's Accept loop) into a Connection.
func Wrap(conn net.Conn) *Connection {
	remoteIP := ""
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		remoteIP = tcpAddr.IP.String()
	}
	return &Connection{Conn: conn, RemoteIP: remoteIP}
}

// SendAll writes b to conn in full, looping over partial writes. A write
// that succeeds with zero bytes is treated as a transport error, mirroring
// a send() returning 0 in the original implementation.
func SendAll(conn net.Conn, b []byte) error {
	total := 0
	for total < len(b) {
		n, err := conn.Write(b[total:])
		if err != nil {
			return perr.New(perr.KindTransportError, err)
		}
		if n == 0 {
			return perr.Wrapf(perr.KindTransportError, "write returned 0 bytes")
		}
		total += n
	}
	return nil
}

// SendFileRange streams n bytes from f's current offset to conn.
func SendFileRange(conn net.Conn, f *os.File, n int64) error {
	_, err := io.CopyN(conn, f, n)
	if err != nil {
		return perr.New(perr.KindTransportError, err)
	}
	return nil
}

// Close releases the connection's socket exactly once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}
