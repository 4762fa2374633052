package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"host:port", "10.0.0.5:8188", "10.0.0.5:8188", false},
		{"surrounding space", "  gpu-1:8188 \n", "gpu-1:8188", false},
		{"hostname only", "gpu-1", "gpu-1", false},
		{"http scheme kept", "http://gpu-1:8188/", "http://gpu-1:8188", false},
		{"https scheme kept", "https://gpu-1.example.com", "https://gpu-1.example.com", false},
		{"ipv6", "[::1]:8188", "[::1]:8188", false},
		{"empty", "   ", "", true},
		{"bad port", "gpu-1:abc", "", true},
		{"path not allowed", "gpu-1:8188/queue", "", true},
		{"missing host", ":8188", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAddress(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBaseURL(t *testing.T) {
	base, err := BaseURL("10.0.0.5:8188")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8188", base)

	base, err = BaseURL("https://gpu-1:8443")
	require.NoError(t, err)
	assert.Equal(t, "https://gpu-1:8443", base)
}
