package crypto

import (
	"errors"

	"github.com/securebank/client-go/internal/apierrors"
)

var (
	// ErrDecode is returned for malformed Base64 or PEM input.
	ErrDecode = apierrors.ErrDecode

	// ErrCryptoProvider is returned when the random source or a curve
	// operation is unavailable.
	ErrCryptoProvider = apierrors.ErrCryptoProvider

	// ErrInvalidPIN is returned when a key record cannot be opened with the PIN.
	ErrInvalidPIN = apierrors.ErrInvalidPIN

	// ErrCorruptRecord is returned when a key record is structurally invalid.
	ErrCorruptRecord = apierrors.ErrCorruptRecord

	// ErrDecryption is returned when AES-GCM authentication fails.
	ErrDecryption = apierrors.ErrDecryption

	// ErrInvalidKeySize is returned when the AES key size is invalid.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when the nonce size is invalid.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrInvalidPublicKey is returned when a public key is not a P-384 key.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidPrivateKey is returned when PKCS#8 bytes do not hold a P-384
	// ECDSA private key.
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("signature verification failed")
)
