package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// EncryptedKeyRecord is the at-rest form of a PIN-wrapped signing key.
// Binary fields are standard base64 in JSON.
//
// Records written before the v/kdf/iterations fields existed carry only
// ciphertext, salt and iv; they are read with the current defaults.
type EncryptedKeyRecord struct {
	Version    int    `json:"v,omitempty"`
	KDF        string `json:"kdf,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
	Ciphertext []byte `json:"ciphertext"`
	Salt       []byte `json:"salt"`
	IV         []byte `json:"iv"`
}

// Validate checks the structure of the record without touching the PIN.
func (r *EncryptedKeyRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrCorruptRecord)
	}
	if r.Version != 0 && r.Version != KeyRecordVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptRecord, r.Version)
	}
	if r.KDF != "" && r.KDF != KeyRecordKDF {
		return fmt.Errorf("%w: unsupported kdf %q", ErrCorruptRecord, r.KDF)
	}
	if r.Iterations != 0 && (r.Iterations < PBKDF2Iterations || r.Iterations > MaxPBKDF2Iterations) {
		return fmt.Errorf("%w: iteration count %d", ErrCorruptRecord, r.Iterations)
	}
	if len(r.Salt) != SaltSize {
		return fmt.Errorf("%w: salt length %d", ErrCorruptRecord, len(r.Salt))
	}
	if len(r.IV) != AESNonceSize {
		return fmt.Errorf("%w: iv length %d", ErrCorruptRecord, len(r.IV))
	}
	if len(r.Ciphertext) <= AESTagSize {
		return fmt.Errorf("%w: ciphertext too short", ErrCorruptRecord)
	}
	return nil
}

func (r *EncryptedKeyRecord) iterations() int {
	if r.Iterations == 0 {
		return PBKDF2Iterations
	}
	return r.Iterations
}

// MarshalKeyRecord encodes a record as JSON.
func MarshalKeyRecord(r *EncryptedKeyRecord) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// ParseKeyRecord decodes and validates a JSON record.
func ParseKeyRecord(data []byte) (*EncryptedKeyRecord, error) {
	var r EncryptedKeyRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeriveWrappingKey derives the AES-256 key that wraps the signing key.
func DeriveWrappingKey(pin string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(pin), salt, iterations, AESKeySize, sha256.New)
}

// EncryptPrivateKey wraps priv under a key derived from pin. Each call draws
// a fresh salt and IV.
func EncryptPrivateKey(priv *ecdsa.PrivateKey, pin string) (*EncryptedKeyRecord, error) {
	der, err := MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(der)

	salt, err := randomBytes(SaltSize)
	if err != nil {
		return nil, err
	}
	iv, err := randomBytes(AESNonceSize)
	if err != nil {
		return nil, err
	}

	key := DeriveWrappingKey(pin, salt, PBKDF2Iterations)
	defer zeroBytes(key)

	ciphertext, err := EncryptAES(key, iv, der)
	if err != nil {
		return nil, err
	}

	return &EncryptedKeyRecord{
		Version:    KeyRecordVersion,
		KDF:        KeyRecordKDF,
		Iterations: PBKDF2Iterations,
		Ciphertext: ciphertext,
		Salt:       salt,
		IV:         iv,
	}, nil
}

// DecryptPrivateKey opens a record with pin. A wrong PIN and a tampered
// ciphertext are indistinguishable and both yield ErrInvalidPIN.
func DecryptPrivateKey(r *EncryptedKeyRecord, pin string) (*ecdsa.PrivateKey, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	key := DeriveWrappingKey(pin, r.Salt, r.iterations())
	defer zeroBytes(key)

	der, err := DecryptAES(key, r.IV, r.Ciphertext)
	if err != nil {
		return nil, ErrInvalidPIN
	}
	defer zeroBytes(der)

	priv, err := ParsePrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return priv, nil
}
