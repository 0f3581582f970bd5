package tracing

// Config holds configuration for OpenTelemetry tracing.
type Config struct {
	// Enabled turns on span export. When false a no-op tracer is used.
	Enabled bool `mapstructure:"enabled" default:"false"`
	// Endpoint is the OTLP collector address (host:port).
	Endpoint string `mapstructure:"endpoint" default:"localhost:4317"`
	// Protocol is the OTLP transport (grpc, http).
	Protocol string `mapstructure:"protocol" default:"grpc"`
	// Insecure disables TLS towards the collector.
	Insecure bool `mapstructure:"insecure" default:"true"`
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `mapstructure:"service_name" default:"site-controller"`
}
