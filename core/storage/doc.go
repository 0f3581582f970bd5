// Package storage is the object storage layer of the attestation controller.
//
// Machine agents upload SPDM evidence through the API; the controller lists
// and downloads it during an attestation session. Any S3 compatible service
// works, MinIO being the usual choice on site.
//
// Client is a narrow view of *minio.Client so that controllers can be tested
// with the mock in core/storage/mocks. The package level helpers are what
// callers use:
//
//   - EnsureBucket creates the evidence bucket at startup.
//   - ListKeys collects all keys under a prefix.
//   - ReadObject downloads an object, rejecting oversized ones.
//   - WriteObject uploads an object.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	keys, err := storage.ListKeys(ctx, client, cfg.Storage.Bucket, "attestation/m1/")
//	data, err := storage.ReadObject(ctx, client, cfg.Storage.Bucket, keys[0], 4<<20)
package storage
