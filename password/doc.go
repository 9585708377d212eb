// Package password provides Argon2id hashing in PHC string format, with
// constant-time verification and a fixed-cost decoy target for
// unknown-identifier timing equalization.
//
// # Design
//
// Hashes are self-describing PHC strings
// ($argon2id$v=19$m=...,t=...,p=...$salt$hash), so parameters can be raised
// over time and old hashes detected via [Argon2.NeedsUpgrade]. VerifyDummy
// runs a real Argon2id derivation against a hash generated at construction,
// making the "no such user" path computationally indistinguishable from a
// wrong password.
package password
