// Package ir defines the canonical records of mementer: values, entries,
// actions, links and the content addresses that identify them.
//
// This package has no internal imports; every other internal package builds
// on it.
//
// Key constraints:
//   - no float types anywhere; numbers are int64
//   - every hash is SHA-256 over RFC 8785 canonical JSON with a domain prefix
//   - all JSON tags use snake_case
//   - timestamps are writer-local and only ever compared together with the
//     action hash (see CompareLinks)
package ir
