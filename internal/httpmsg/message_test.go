package httpmsg

import (
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/perr"
)

func TestParseBytes_RoundTrip(t *testing.T) {
	raw := "GET /index.html HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\nContent-Length: 5\r\n\r\nhello"
	m, err := ParseBytes([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "GET /index.html HTTP/1.1", m.HeaderLine)
	host, ok := m.Headers.Get("Host")
	require.True(t, ok)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, []byte("hello"), m.Body)

	out := m.Bytes()
	m2, err := ParseBytes(out)
	require.NoError(t, err)
	assert.Equal(t, m.HeaderLine, m2.HeaderLine)
	assert.Equal(t, m.Body, m2.Body)
	h1, _ := m.Headers.Get("Accept")
	h2, _ := m2.Headers.Get("Accept")
	assert.Equal(t, h1, h2)
}

func TestParseBytes_MissingContentLengthIsZero(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"
	m, err := ParseBytes([]byte(raw))
	require.NoError(t, err)
	cl, ok := m.Headers.Get("Content-Length")
	require.True(t, ok)
	assert.Equal(t, "0", cl)
	assert.Empty(t, m.Body)
}

func TestParseBytes_DuplicateHeaderLastWriteWins(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nX-Thing: one\r\nX-Thing: two\r\n\r\n"
	m, err := ParseBytes([]byte(raw))
	require.NoError(t, err)
	v, ok := m.Headers.Get("X-Thing")
	require.True(t, ok)
	assert.Equal(t, "two", v)
	assert.Equal(t, 2, m.Headers.Len()) // X-Thing + synthesized Content-Length
}

func TestParseBytes_MalformedLineSkipped(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nnotaheader\r\nHost: example.com\r\n\r\n"
	m, err := ParseBytes([]byte(raw))
	require.NoError(t, err)
	_, ok := m.Headers.Get("notaheader")
	assert.False(t, ok)
	host, ok := m.Headers.Get("Host")
	require.True(t, ok)
	assert.Equal(t, "example.com", host)
}

func TestParseBytes_FramingErrorOnTrailingBytes(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nContent-Length: 2\r\n\r\nhelloextra"
	_, err := ParseBytes([]byte(raw))
	require.Error(t, err)
	assert.True(t, perr.Is(err, perr.KindFramingError))
}

func TestParseBytes_HeaderTooLarge(t *testing.T) {
	var b strings.Builder
	b.WriteString("GET / HTTP/1.1\r\n")
	for i := 0; i < 1000; i++ {
		b.WriteString("X-Pad-" + strconv.Itoa(i) + ": aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\r\n")
	}
	b.WriteString("\r\n")
	_, err := ParseBytes([]byte(b.String()))
	require.Error(t, err)
	assert.True(t, perr.Is(err, perr.KindHeaderTooLarge))
}

func TestReceive_IdleTimeout(t *testing.T) {
	old := KeepAliveTimeout
	KeepAliveTimeout = 50 * time.Millisecond
	defer func() { KeepAliveTimeout = old }()

	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		_, err := Receive(server)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, perr.Is(err, perr.KindIdleTimeout))
	case <-time.After(5 * time.Second):
		t.Fatal("Receive did not return after idle timeout")
	}
}

func TestReceive_PeerClosedWithNoBytes(t *testing.T) {
	server, client := net.Pipe()
	_ = client.Close()

	_, err := Receive(server)
	require.Error(t, err)
	assert.True(t, perr.Is(err, perr.KindPeerClosed) || perr.Is(err, perr.KindTransportError))
}

func TestHeaders_SetRemoveCompare(t *testing.T) {
	h := NewHeaders()
	h.Set("A", "1")
	h.Set("B", "2")
	h.Set("A", "3")
	assert.Equal(t, 2, h.Len())
	v, _ := h.Get("A")
	assert.Equal(t, "3", v)

	assert.Equal(t, Equal, h.Compare("A", "3"))
	assert.Equal(t, NotEqual, h.Compare("A", "x"))
	assert.Equal(t, Absent, h.Compare("Z", "x"))

	h.Remove("A")
	_, ok := h.Get("A")
	assert.False(t, ok)
	v, _ = h.Get("B")
	assert.Equal(t, "2", v)
}
