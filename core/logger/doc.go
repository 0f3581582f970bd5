// Package logger builds the zap logger shared by the server and the
// controllers, and derives request and iteration scoped children from it.
//
// WithRayID tags a logger with the ray id of a Fiber request. ForController
// names a logger after an object kind and ForIteration adds the iteration id
// and span name, so every line a handler writes can be traced back to the
// iteration that produced it:
//
//	log := logger.ForIteration(logger.ForController(base, "rack"), 42, "rack_controller")
//	log.Info("Object handled", zap.String("object_id", id))
//
// Level accepts any zap level name. Format is json or console.
package logger
