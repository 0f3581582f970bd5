package storage

import "time"

// Config holds the connection settings of the evidence store.
type Config struct {
	// Endpoint is host:port of the S3 compatible service. An http:// or
	// https:// scheme is accepted and stripped.
	Endpoint string `mapstructure:"endpoint" default:"localhost:9000"`
	// AccessKey and SecretKey are static V4 credentials.
	AccessKey string `mapstructure:"access_key" default:"minioadmin"`
	SecretKey string `mapstructure:"secret_key" default:"minioadmin"`
	// UseSSL selects https.
	UseSSL bool `mapstructure:"use_ssl" default:"false"`
	// Bucket holds the evidence objects, keyed attestation/<machine>/<device>.
	Bucket string `mapstructure:"bucket" default:"attestation-evidence"`
	// Region is optional for MinIO.
	Region string `mapstructure:"region" default:""`
	// Timeout bounds dialing, the TLS handshake and waiting for response headers.
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}
