// Package middleware groups the Fiber middleware of the site controller API.
//
// rayid tags each request with an id that is echoed in the response and
// attached to log lines. auth checks the API key; the metrics endpoint can be
// exempted through auth.Config.Skip.
package middleware
