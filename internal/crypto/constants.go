package crypto

const (
	// SessionInfo is the HKDF info string for session keys. It versions the
	// secure channel: a server derives keys with the same string, so changing
	// it breaks interoperability with every deployed gateway.
	SessionInfo = "securebank-session-v1"

	// PBKDF2Iterations is the PBKDF2-HMAC-SHA256 work factor for PIN-derived
	// wrapping keys.
	PBKDF2Iterations = 100_000
	// MaxPBKDF2Iterations bounds the work factor accepted from a stored record.
	MaxPBKDF2Iterations = 10 * PBKDF2Iterations

	// SaltSize is the size of the PBKDF2 salt in bytes.
	SaltSize = 16

	// AESKeySize is the size of an AES-256 key in bytes.
	AESKeySize = 32
	// AESNonceSize is the size of an AES-GCM nonce in bytes.
	AESNonceSize = 12
	// AESTagSize is the size of an AES-GCM authentication tag in bytes.
	AESTagSize = 16

	// P384ScalarSize is the byte length of a P-384 scalar and field element.
	P384ScalarSize = 48
	// SignatureSize is the size of an IEEE P1363 ECDSA P-384 signature (r || s).
	SignatureSize = 2 * P384ScalarSize
	// SharedSecretSize is the size of a P-384 ECDH shared secret in bytes.
	SharedSecretSize = P384ScalarSize

	// KeyRecordVersion is the version of the EncryptedKeyRecord format.
	KeyRecordVersion = 1
	// KeyRecordKDF names the wrapping-key derivation stored in a record.
	KeyRecordKDF = "pbkdf2-sha256"

	// PublicKeyPEMType is the PEM block type for SPKI public keys.
	PublicKeyPEMType = "PUBLIC KEY"
)
