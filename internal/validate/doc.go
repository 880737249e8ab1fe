// Package validate checks a loaded run against the reference topic set.
//
// The Engine is a fixed pipeline: run-level checks, turn cardinality
// checks, then per-turn validation in run order. Findings are either
// warnings, which accumulate toward Config.MaxWarnings, or fatal
// conditions, which stop validation at once and come back as *FatalError.
//
// Abort policy:
//   - The warning ceiling is checked after each turn and trips when the
//     count is strictly greater than MaxWarnings. The turn that trips it
//     counts as validated.
//   - Warnings from run-level checks count toward the ceiling.
//   - An unparsable turn id is always fatal.
//   - Any existence oracle failure is fatal. Passing a nil Checker skips
//     existence checks altogether.
//
// PTKB provenance is checked by a PTKBCheck chosen at configuration time:
// StrictPTKB or PermissivePTKB.
package validate
