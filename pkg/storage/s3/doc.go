// Package s3 stores account avatar images in S3-compatible object storage.
//
// Avatars are written under avatars/{account-id}/ with a content-derived
// name, so re-uploading identical bytes is idempotent. Reads are served
// through presigned GET URLs rather than proxying the bytes through the API.
package s3
