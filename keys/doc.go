// Package keys provides sender identity, signing, and digest helpers for BEAP.
//
// Stable:
//   - Pure, deterministic primitives: sender-key formatting, role-seed
//     derivation, digests, and the Signer/Verifier implementations.
//
// Experimental:
//   - Filesystem-backed key storage (KeyStore and related functions). These are
//     local-first utilities and are not part of the long-term protocol contract.
package keys
