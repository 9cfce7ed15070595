// Package compute derives operator-facing classifications from raw samples.
//
// bands.go maps metric values to green/yellow/red severity bands. Speed,
// density and dynamic pressure use ascending ceilings (value ≥ yellow ceiling
// is red, ≥ green ceiling is yellow). Bz uses an inverted rule: southward
// (negative) field is dangerous, so bz ≤ -10 is red and bz ≤ -5 is yellow.
// Ceilings are held in Thresholds so a config reload can swap them.
//
// freshness.go classifies the age of the last observed sample:
// LIVE < 5m ≤ PENDING < 6m ≤ STALE. A zero timestamp is STALE. There is no
// hysteresis; boundaries are inclusive on the lower side exactly as listed.
package compute
