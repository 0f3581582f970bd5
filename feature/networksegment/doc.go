// Package networksegment reconciles network segments and their address pools.
//
// A segment is provisioned once its prefix parses. Ready segments hand out
// addresses through POST /network-segments/:id/addresses and export
// site_network_segment_{total,reserved,available}_ips per segment.
//
// Deleting a segment is two-phased. In drain_allocated_ips the segment waits
// until every address is released and the drain period has passed; in
// db_delete the segment and its address rows are removed in one transaction.
package networksegment
