// Package embedding provides the text-to-vector provider abstraction used by
// the memory store and case base.
//
// Providers may fail or time out; callers are expected to substitute a zero
// vector of the configured dimensionality and continue, never failing a store
// operation solely because an embedding could not be generated.
package embedding
