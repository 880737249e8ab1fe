// Package run defines the submission and topic documents consumed by the
// validator, and the loaders that turn external JSON into them.
//
// Loading is strict. A run document is first checked for its required
// top-level keys, then unified with the closed CUE definition #Run
// (schema.cue), and only then decoded into Go structs. Unknown fields, wrong
// types and missing required keys surface as *LoadError and are never
// coerced.
//
// Topic files carry the authoritative cardinalities: the number of topics and
// the aggregate number of turns must match the configured expectations or the
// load fails.
package run
