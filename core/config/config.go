package config

import (
	"reflect"
	"strings"
	"time"

	"site-controller/core/controller"
	"site-controller/core/database"
	"site-controller/core/logger"
	"site-controller/core/metrics"
	"site-controller/core/server"
	"site-controller/core/storage"
	"site-controller/core/tracing"
	"site-controller/feature/attestation"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the site controller.
// It is divided into partial configurations, one per component.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the object storage holding attestation evidence.
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the database connection.
	Database database.Config `mapstructure:"database"`
	// Controller holds the iteration settings shared by every controller.
	Controller controller.Config `mapstructure:"controller"`
	// Tracing holds configuration for the OpenTelemetry exporter.
	Tracing tracing.Config `mapstructure:"tracing"`
	// Metrics holds configuration for the Prometheus endpoint.
	Metrics metrics.Config `mapstructure:"metrics"`
	// Attestation holds the evidence appraisal settings.
	Attestation attestation.Config `mapstructure:"attestation"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// A missing .env file is normal in production.
	_ = godotenv.Overload(envPath)

	v := viper.New()
	bindValues(v, Config{}, "")

	// CONTROLLER_ITERATION_TIME -> controller.iteration_time
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// bindValues walks the struct and registers every 'mapstructure' key with its
// 'default' tag value, so AutomaticEnv can resolve it.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		if defaultValue == "" && field.Type == durationType {
			defaultValue = "0s"
		}
		v.SetDefault(key, defaultValue)
	}
}
