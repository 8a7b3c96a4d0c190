// Package objectstore defines the put-only object store that file content and
// metadata envelopes are uploaded to.
//
// Backends live in subpackages:
//
//   - s3: Amazon S3 (or any S3 endpoint) through aws-sdk-go-v2
//   - minio: S3-compatible servers through minio-go
//   - badger: a local BadgerDB directory or in-memory store, used for dry runs,
//     offline staging and tests
//
// All backends are safe for concurrent use.
package objectstore
