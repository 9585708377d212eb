// Package internal holds identifier generation and hashing helpers shared by
// the signet engine and its stores.
//
// # Architecture boundaries
//
// This package owns random token/ID generation and the one-way hashing of
// fingerprints and one-time codes. It performs no I/O and imports no sibling
// package.
package internal
