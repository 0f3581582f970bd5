// Package metrics holds the building blocks shared by the controller metric collectors.
//
// SharedHolder decouples the reconciliation loop, which produces a complete
// metrics snapshot at the end of every iteration, from Prometheus scrapes,
// which may arrive at any time. Snapshots expire after a hold period so a
// stalled controller stops reporting instead of reporting stale numbers forever.
package metrics
