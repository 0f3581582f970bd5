// Package attestation reconciles device attestation sessions.
//
// Every machine under attestation has a machine session keyed by its machine
// id. Once the machine is known to support attestation the controller lists
// its evidence objects under "attestation/<machine>/" in object storage and
// creates one device session per object, keyed "machine/device".
//
// A device session downloads its evidence, records its BLAKE3 digest, compares
// the digest with the golden measurement stored for the device and finally
// applies the appraisal policy:
//
//	fetch_data -> verification -> apply_evidence_result_appraisal_policy -> completed
//
// Completed sessions are exported as site_attestation_sessions_by_result.
package attestation
