// Package flows contains pure-function orchestrators for the Engine
// operations: refresh rotation, login, one-time-code redemption and
// password reset.
//
// Each Run function takes a dependency struct of closures and returns a
// result carrying either the outcome or a failure kind. The Engine maps
// failure kinds onto its public error taxonomy, metrics and audit events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import otcAuth (to avoid import cycles).
//   - Perform I/O directly. All I/O goes through the dependency closures.
package flows
