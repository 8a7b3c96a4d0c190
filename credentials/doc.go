// Package credentials stores catalog auth tokens on disk, one file per
// server, under ~/.giant-utils by default.
package credentials
