// Package resource serves the object collections the controllers reconcile.
//
// Operators create objects and mark them deleted through these routes; the
// controllers own every later change. A Store reads and writes one gorm model,
// Routes exposes it over fiber:
//
//	GET    /<collection>       list, ?deleted=true includes deleted objects
//	GET    /<collection>/:id   one object
//	POST   /<collection>       create, the body is decoded by the kind
//	DELETE /<collection>/:id   mark deleted
package resource
