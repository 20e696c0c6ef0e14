// Package report exports dashboard snapshots to S3-compatible object storage.
//
// The daily platform report is stored as indented JSON under
// <prefix>/platform/YYYY-MM-DD.json, with the SHA-256 of the body in the
// checksum-sha256 object metadata.
package report
