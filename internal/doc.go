// Package internal holds engine plumbing that is not part of the public
// API surface: one-time password generation and the bounded worker pool
// that keeps CPU-bound hashing off unrelated request paths.
package internal
