// Package injector implements the replacement engine that substitutes
// reference tokens in a structured document with values from value sources.
//
// ARCHITECTURE:
//
// Per-entry serial, cross-entry concurrent:
// Each string entry carrying tokens gets its own goroutine. Inside that
// goroutine the entry's distinct tokens are attempted one at a time in
// first-seen order, and the first token that resolves wins. Different
// entries address different keys, so their goroutines never coordinate.
// ReplaceAllIn returns once every entry goroutine has finished.
//
// Resolution Flow (one token):
// 1. Find the source registered for the token prefix (none: unresolved)
// 2. Fetch the value for the full token string
// 3. Apply the token's modifiers through the Translator (nothing: unresolved)
// 4. Write the result over the entry's whole value and log it
//
// Unresolved tokens are normal: they are logged at debug level and leave the
// entry untouched. Errors from a source, the translator or the document abort
// only the entry they occur in. All entries still run to completion and the
// failures are returned together as a *PassError alongside the document.
//
// INVARIANTS:
//   - An entry is updated at most once per pass
//   - Tokens within an entry are never attempted concurrently
//   - A resolved value is not re-scanned for tokens in the same pass
//   - The engine holds no entry state; the document owns storage
//
// Injectors declare a priority (lower runs earlier). Ordering between
// injectors is the Pipeline's job, never the injector's.
package injector
