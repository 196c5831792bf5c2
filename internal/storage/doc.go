// Package storage moves captured media into object-store buckets.
//
// The Store wraps the AWS S3 client and the multipart upload manager behind
// two operations the camera daemon needs:
//
//   - Put uploads a local file, applies tags, and removes the local copy so
//     the capture directory never fills the card on a long-running device.
//   - Tag merges additional tags into an existing object, replacing tags
//     with the same key so redelivered commands never corrupt the tag set.
//
// Credentials come from the ambient chain (instance profile, environment,
// shared config); only the region is configured explicitly.
package storage
