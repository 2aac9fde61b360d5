package crypto

import (
	"crypto/ecdh"
	"crypto/sha512"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/securebank/client-go/canonical"
)

// Sealed is an AES-256-GCM ciphertext (with tag) and its IV.
type Sealed struct {
	Ciphertext []byte
	IV         []byte
}

// GenerateEphemeralKey creates a single-use P-384 ECDH key.
func GenerateEphemeralKey() (*ecdh.PrivateKey, error) {
	priv, err := ecdh.P384().GenerateKey(randReader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate ephemeral key: %v", ErrCryptoProvider, err)
	}
	return priv, nil
}

// MarshalEphemeralPublicKey returns the base64 SPKI DER encoding of pub, the
// form sent as "ephemeral_pubkey".
func MarshalEphemeralPublicKey(pub *ecdh.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal ephemeral key: %w", err)
	}
	return ToBase64(der), nil
}

// DeriveSharedSecret performs ECDH between the ephemeral key and the
// server's public key. The result is the 48-byte x-coordinate.
func DeriveSharedSecret(eph *ecdh.PrivateKey, serverPub *ecdh.PublicKey) ([]byte, error) {
	secret, err := eph.ECDH(serverPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(secret) != SharedSecretSize {
		zeroBytes(secret)
		return nil, fmt.Errorf("%w: shared secret length %d", ErrCryptoProvider, len(secret))
	}
	return secret, nil
}

// DeriveSessionKey expands a shared secret with HKDF-SHA384 (empty salt,
// info SessionInfo) into an AES-256 key.
func DeriveSessionKey(shared []byte) ([]byte, error) {
	r := hkdf.New(sha512.New384, shared, nil, []byte(SessionInfo))
	key := make([]byte, AESKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf expand failed: %w", err)
	}
	return key, nil
}

// AgreeSessionKey runs DeriveSharedSecret and DeriveSessionKey, zeroing the
// shared secret afterwards.
func AgreeSessionKey(eph *ecdh.PrivateKey, serverPub *ecdh.PublicKey) ([]byte, error) {
	shared, err := DeriveSharedSecret(eph, serverPub)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(shared)
	return DeriveSessionKey(shared)
}

// Seal encrypts plaintext under key with a fresh random IV.
func Seal(key, plaintext []byte) (*Sealed, error) {
	iv, err := randomBytes(AESNonceSize)
	if err != nil {
		return nil, err
	}
	ciphertext, err := EncryptAES(key, iv, plaintext)
	if err != nil {
		return nil, err
	}
	return &Sealed{Ciphertext: ciphertext, IV: iv}, nil
}

// Open decrypts a Sealed value.
func Open(key []byte, s *Sealed) ([]byte, error) {
	if s == nil {
		return nil, ErrDecryption
	}
	return DecryptAES(key, s.IV, s.Ciphertext)
}

// EncryptJSON encrypts the canonical JSON form of v.
func EncryptJSON(key []byte, v any) (*Sealed, error) {
	plaintext, err := canonical.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	defer zeroBytes(plaintext)
	return Seal(key, plaintext)
}

// DecryptJSON decrypts s and decodes the JSON plaintext into out.
func DecryptJSON(key []byte, s *Sealed, out any) error {
	plaintext, err := Open(key, s)
	if err != nil {
		return err
	}
	defer zeroBytes(plaintext)

	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("%w: decode payload: %v", ErrDecode, err)
	}
	return nil
}
