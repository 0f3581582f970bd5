// Package server holds the HTTP server configuration.
//
// While the start command handles the server startup, this package
// defines the configuration structure and its validation.
//
// # Configuration
//
// The Config struct defines the HTTP port, the API key, the site name attached
// to logs and the graceful shutdown timeout.
package server
