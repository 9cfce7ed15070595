// Package types defines the value types shared by every monitor package:
// telemetry samples, alerts, and the small enums (connection state,
// freshness, severity band) exposed to the presentation layer.
//
// Samples and alerts are immutable once decoded. DecodeSample and
// DecodeAlert accept the upstream JSON records and coerce loosely-typed
// numeric fields; a record whose timestamp cannot be parsed is rejected with
// an error wrapping ErrMalformed and must not be committed anywhere.
package types
