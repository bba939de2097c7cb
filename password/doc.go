// Package password provides Argon2id hashing and verification for local
// credentials and generated one-time passwords.
//
// Hashes use the PHC string format, so the parameters each hash was created
// with travel with it. Verification is constant-time and returns a binary
// outcome only.
package password
