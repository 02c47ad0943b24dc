// Package password implements the credential verifier: Argon2id hashing with
// constant-time verification.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Hashes in bcrypt format imported from older deployments still verify, and
// [Argon2.NeedsUpgrade] reports them so the caller can re-hash after the next
// successful login.
//
// # What this package must NOT do
//
//   - Enforce password strength. Hash accepts any input.
//   - Store or retrieve passwords.
//   - Import any other otcAuth package.
package password
