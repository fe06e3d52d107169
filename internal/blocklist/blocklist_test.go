package blocklist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_IPv4LiteralsAndBlankLinesSkipped(t *testing.T) {
	bl := &Blocklist{ips: make(map[string]struct{})}
	err := bl.loadFrom(strings.NewReader("127.0.0.1\n\n  \n10.0.0.5\n"))
	require.NoError(t, err)

	assert.True(t, bl.Check("127.0.0.1"))
	assert.True(t, bl.Check("10.0.0.5"))
	assert.False(t, bl.Check("10.0.0.6"))
}

func TestLoadFrom_UnresolvableLineSkippedNotFatal(t *testing.T) {
	bl := &Blocklist{ips: make(map[string]struct{})}
	err := bl.loadFrom(strings.NewReader("127.0.0.1\nthis.host.does.not.exist.invalid\n"))
	require.NoError(t, err)
	assert.True(t, bl.Check("127.0.0.1"))
}

func TestLoad_MissingFileYieldsEmptyBlocklist(t *testing.T) {
	bl, err := Load("/nonexistent/path/blocklist")
	require.NoError(t, err)
	assert.False(t, bl.Check("127.0.0.1"))
}

func TestCheck_UncheckableHostNeverBlocked(t *testing.T) {
	bl := &Blocklist{ips: make(map[string]struct{})}
	assert.False(t, bl.Check("this.host.does.not.exist.invalid"))
}
