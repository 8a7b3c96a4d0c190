// Package catalog is a client for the archive's REST catalog.
//
// The catalog organizes content as collections holding ingestions. The
// Client creates both idempotently before an upload run, checks whether a
// resource hash is already known, and lists or deletes blobs.
//
// Every response may carry a replacement auth token in the
// X-Offer-Authorization header. The Client switches to it for all later
// requests and saves it to its TokenStore.
package catalog
