package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/httpmsg"
)

func mustMessage(t *testing.T, raw string) *httpmsg.Message {
	t.Helper()
	m, err := httpmsg.ParseBytes([]byte(raw))
	require.NoError(t, err)
	return m
}

func TestParse_AbsoluteForm(t *testing.T) {
	m := mustMessage(t, "GET http://example.com/index.html HTTP/1.1\r\nHost: example.com\r\n\r\n")
	r, err := Parse(m, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "GET", r.Method)
	assert.Equal(t, "example.com", r.Host)
	assert.Equal(t, "/index.html", r.Path)
	assert.Equal(t, DefaultPort, r.Port)
	assert.Equal(t, "HTTP/1.1", r.Version)
}

func TestParse_AbsoluteFormWithPortAndQuery(t *testing.T) {
	m := mustMessage(t, "GET http://example.com:8080/search?q=go HTTP/1.1\r\nHost: example.com:8080\r\n\r\n")
	r, err := Parse(m, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", r.Host)
	assert.Equal(t, 8080, r.Port)
	assert.Equal(t, "/search", r.Path)
	assert.Equal(t, "q=go", r.Query)
}

func TestParse_RecoversHostFromHeaderWhenURIBare(t *testing.T) {
	m := mustMessage(t, "GET /path HTTP/1.1\r\nHost: recovered.example\r\n\r\n")
	r, err := Parse(m, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "recovered.example", r.Host)
	assert.Equal(t, "/path", r.Path)
}

func TestParse_HostHeaderOverridesDisagreeingURIHost(t *testing.T) {
	m := mustMessage(t, "GET http://uri-host.example/path HTTP/1.1\r\nHost: header-host.example\r\n\r\n")
	r, err := Parse(m, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "header-host.example", r.Host)
}

func TestParse_MalformedHeaderLineErrors(t *testing.T) {
	m := mustMessage(t, "POST /path HTTP/1.1\r\nHost: example.com\r\n\r\n")
	_, err := Parse(m, "10.0.0.1")
	require.Error(t, err)
}

func TestCacheableAndKey(t *testing.T) {
	m := mustMessage(t, "GET http://example.com/a/b HTTP/1.1\r\nHost: example.com\r\n\r\n")
	r, err := Parse(m, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, r.Cacheable())
	assert.Equal(t, "example.com/a/b", r.Key())
}

func TestRewrite_SetsAndStripsHeaders(t *testing.T) {
	m := mustMessage(t, "GET http://example.com/a HTTP/1.1\r\nHost: example.com\r\nProxy-Connection: keep-alive\r\nProxy-Authorization: Basic xyz\r\n\r\n")
	r, err := Parse(m, "203.0.113.7")
	require.NoError(t, err)

	r.Rewrite("proxy-1")

	conn, ok := m.Headers.Get("Connection")
	require.True(t, ok)
	assert.Equal(t, "close", conn)

	fwd, ok := m.Headers.Get("Forwarded")
	require.True(t, ok)
	assert.Equal(t, "203.0.113.7", fwd)

	via, ok := m.Headers.Get("Via")
	require.True(t, ok)
	assert.Equal(t, "1.1 proxy-1", via)

	_, ok = m.Headers.Get("Proxy-Connection")
	assert.False(t, ok)
	_, ok = m.Headers.Get("Proxy-Authorization")
	assert.False(t, ok)

	host, ok := m.Headers.Get("Host")
	require.True(t, ok)
	assert.Equal(t, "example.com", host)
}

func TestRewrite_HostIncludesNonDefaultPort(t *testing.T) {
	m := mustMessage(t, "GET http://example.com:8080/a HTTP/1.1\r\nHost: example.com:8080\r\n\r\n")
	r, err := Parse(m, "203.0.113.7")
	require.NoError(t, err)

	r.Rewrite("proxy-1")

	host, ok := m.Headers.Get("Host")
	require.True(t, ok)
	assert.Equal(t, "example.com:8080", host)
}
