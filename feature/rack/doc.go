// Package rack reconciles racks and tracks the discovery of their devices.
//
// A rack moves from expected to discovering and waits there until the
// configured number of compute trays, switches and power shelves is present.
// Switches and power shelves are counted by their rack_id; compute trays are
// reported through PUT /racks/:id/compute-trays. An operator can request
// maintenance, which parks a ready rack until the request is cleared.
package rack
