// Package crypto provides the cryptographic primitives of the SecureBank
// client. Everything here is stateless; key lifetimes are managed by the
// callers.
//
// # Algorithm Suite
//
//   - ECDSA P-384 over SHA-384 for request signatures. Signatures use the
//     IEEE P1363 encoding (r || s, 96 bytes) that WebCrypto produces.
//
//   - PBKDF2-HMAC-SHA256 (100,000 iterations, 16-byte salt) to derive the
//     AES-256 key that wraps the PKCS#8 signing key at rest.
//
//   - Ephemeral ECDH P-384 plus HKDF-SHA384 (empty salt, info
//     "securebank-session-v1") for per-request session keys.
//
//   - AES-256-GCM with 12-byte random IVs for every encryption. Ciphertexts
//     carry the 16-byte tag appended; IVs travel separately.
//
// # Encodings
//
// Public keys are SPKI, in PEM for long-lived keys and in standard base64
// DER for ephemeral keys. All binary wire fields use standard base64 with
// padding ([ToBase64]/[FromBase64]).
//
// Secret byte slices (wrapping keys, shared secrets, decrypted PKCS#8) are
// zeroed once they are no longer needed. Go's garbage collector may still
// leave copies in memory; this is best effort.
package crypto
