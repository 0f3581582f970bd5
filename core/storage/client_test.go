package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "Plain", cfg: Config{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"}},
		{name: "HTTPScheme", cfg: Config{Endpoint: "http://minio.site.local:9000"}},
		{name: "HTTPSScheme", cfg: Config{Endpoint: "https://s3.amazonaws.com", UseSSL: true, Region: "us-east-1"}},
		{name: "Empty", cfg: Config{}, wantErr: "endpoint is empty"},
		{name: "PathNotAllowed", cfg: Config{Endpoint: "localhost:9000/evidence"}, wantErr: "failed to create minio client"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}

func TestConfigTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, Config{}.timeout())
	assert.Equal(t, 5*time.Second, Config{Timeout: 5 * time.Second}.timeout())

	tr := newTransport(5 * time.Second)
	assert.Equal(t, 5*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, 5*time.Second, tr.TLSHandshakeTimeout)
}
