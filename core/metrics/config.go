package metrics

// Config holds configuration for the Prometheus endpoint.
type Config struct {
	// Enabled exposes the metrics endpoint on the HTTP server.
	Enabled bool `mapstructure:"enabled" default:"true"`
	// Path is the HTTP path of the metrics endpoint.
	Path string `mapstructure:"path" default:"/metrics"`
	// Public skips API key authentication on the metrics endpoint.
	Public bool `mapstructure:"public" default:"true"`
}
