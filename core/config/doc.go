// Package config provides configuration management for the site controller.
//
// It uses Viper for loading configuration from environment variables and an
// optional .env file. Defaults come from the 'default' struct tags of each
// component's Config.
//
// # Configuration Structure
//
// The Config struct is divided into subsections:
//   - Server: HTTP port, API key and site name
//   - Database: MySQL or SQLite connection details
//   - Storage: S3/MinIO credentials for attestation evidence
//   - Log: logging level and format
//   - Controller: iteration cadence, concurrency and recovery settings
//   - Tracing: OTLP exporter settings
//   - Metrics: Prometheus endpoint
//
// Nested keys map to environment variables by replacing dots with
// underscores, so controller.iteration_time is set by CONTROLLER_ITERATION_TIME.
// Durations use Go syntax ("30s", "5m") and lists are comma separated.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Controller.IterationTime)
package config
