// Package vision runs cloud image analysis on stored captures.
//
// The Analyzer wraps two services behind the camera daemon's needs:
//
//   - DetectLabels asks Rekognition what is in a stored image, filtered by
//     a confidence floor. HasPerson checks the result for a person sighting
//     so the daemon can decide whether to run face identification.
//   - Identify searches a face collection for matches and resolves each
//     matched face id to a name through a DynamoDB lookup table.
//
// Results are flattened into "+"-joined object-tag values (TagValue) and
// attached to the analyzed object by the caller.
package vision
