package urlutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "standard", input: "http://example.com/path", want: "http://example.com/path"},
		{name: "uppercase scheme and host", input: "HTTPS://EXAMPLE.COM/Path", want: "https://example.com/Path"},
		{name: "default http port", input: "http://example.com:80/path", want: "http://example.com/path"},
		{name: "default https port", input: "https://example.com:443/path", want: "https://example.com/path"},
		{name: "custom port", input: "http://example.com:8080/path", want: "http://example.com:8080/path"},
		{name: "fragment", input: "http://example.com/path#section1", want: "http://example.com/path"},
		{name: "trailing slash", input: "http://example.com/path/", want: "http://example.com/path"},
		{name: "root with trailing slash", input: "http://example.com/", want: "http://example.com"},
		{name: "surrounding whitespace", input: "  https://example.com  ", want: "https://example.com"},
		{name: "query kept", input: "https://example.com/s?q=1", want: "https://example.com/s?q=1"},
		{name: "unparseable", input: "://example.com", wantErr: true},
		{name: "relative", input: "/path/to/resource", wantErr: true},
		{name: "unsupported scheme", input: "ftp://example.com", wantErr: true},
		{name: "no host", input: "http://", wantErr: true},
		{name: "bare word", input: "not-a-url", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseExtractsHost(t *testing.T) {
	addr, err := Parse("HTTPS://Status.Example.com:8443/health/")
	require.NoError(t, err)
	assert.Equal(t, "status.example.com", addr.Host)
	assert.Equal(t, "https://status.example.com:8443/health", addr.Canonical)
	assert.Equal(t, "HTTPS://Status.Example.com:8443/health/", addr.Raw)
}

func TestCacheBust(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	got, err := CacheBust("https://example.com/app?x=1", now)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/app?__cb=1700000000123&x=1", got)
}

func TestImageProbeURL(t *testing.T) {
	root, err := ImageProbeURL("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/favicon.ico", root)

	rootSlash, err := ImageProbeURL("https://example.com/?a=b")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/favicon.ico", rootSlash)

	deep, err := ImageProbeURL("https://example.com/logo.png")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/logo.png", deep)
}
