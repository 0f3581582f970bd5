// Package switches reconciles the network switches of a site.
//
// A switch is created by an operator in the initializing state. The
// controller records what it observes in the status column, validates the
// configuration and parks the switch in ready or error. Marking a switch
// deleted moves it to deleting; the row is removed in the same transaction
// that ends its lifecycle.
//
//	initializing -> fetching_data -> configuring -> ready | error
//	ready | error (marked deleted) -> deleting -> (row removed)
package switches
