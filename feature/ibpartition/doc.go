// Package ibpartition reconciles InfiniBand partitions.
//
// A partition becomes ready once it carries a usable pkey. Partitions without
// one end in the error state and stay there until they are deleted.
package ibpartition
