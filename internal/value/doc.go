// Package value provides the closed value model that crosses every service
// boundary in kiln, plus its canonical encoding.
//
// A Value is one of Null, Bool, Number, String, Array or Object. Service
// inputs and outputs are Values; target configs may be anything, but whatever
// an input function hands to a service must reduce to a Value.
//
// Encode is deterministic: structurally equal values always produce the same
// bytes, which is what the build cache compares. Object keys are written in
// UTF-16 code unit order and HTML characters are not escaped.
//
// This package imports nothing internal.
package value
