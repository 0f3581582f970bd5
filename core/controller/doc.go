// Package controller implements the generic reconciliation loop shared by
// every object kind of the site controller.
//
// A Controller repeatedly claims an iteration, snapshots the list of objects
// of its kind, runs the kind's StateHandler for each of them and publishes the
// aggregated metrics. Kind specific code only provides three pieces:
//   - an ObjectAdapter that loads objects and persists their controller state,
//   - a StateHandler that decides the next step for one object,
//   - a MetricsEmitter that turns per-object metrics into Prometheus series.
//
// # Iterations
//
// Iteration ids are allocated from a per-kind counter row which is locked
// FOR UPDATE while the worklist is written to the queue table. Entries left
// pending by a crashed process are carried into the next iteration. When
// another process holds a young claim, ErrIterationInProgress is returned and
// the pass is skipped.
//
// # Optimistic concurrency
//
// Every controller state carries a configversion.ConfigVersion. Persisting a
// transition only succeeds if the stored version still matches the version the
// handler saw; otherwise the transition and its WriteBatch are discarded and
// the object is retried in the next iteration.
//
// # Usage
//
//	ctrl := controller.New(adapter, handler, emitter, controller.Dependencies{
//	    Config:   cfg.Controller,
//	    Services: services,
//	    Logger:   log,
//	})
//	registry := controller.NewRegistry()
//	_ = registry.Register(ctrl)
//	go registry.RunAll(ctx)
package controller
