package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha512"
	"crypto/x509"
	"fmt"
	"math/big"
)

// GenerateSigningKey creates a new ECDSA P-384 signing key.
func GenerateSigningKey() (*ecdsa.PrivateKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), randReader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate signing key: %v", ErrCryptoProvider, err)
	}
	return priv, nil
}

// MarshalPrivateKey serializes a signing key as PKCS#8 DER.
func MarshalPrivateKey(priv *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return der, nil
}

// ParsePrivateKey parses PKCS#8 DER bytes. Only P-384 ECDSA keys are accepted.
func ParsePrivateKey(der []byte) (*ecdsa.PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	priv, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected key type %T", ErrInvalidPrivateKey, parsed)
	}
	if priv.Curve != elliptic.P384() {
		return nil, fmt.Errorf("%w: curve %s, want P-384", ErrInvalidPrivateKey, priv.Curve.Params().Name)
	}
	return priv, nil
}

// Sign signs SHA-384(message) and returns the IEEE P1363 encoding r || s,
// each left-padded to 48 bytes. This is the format WebCrypto produces and
// expects.
func Sign(priv *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	digest := sha512.Sum384(message)
	r, s, err := ecdsa.Sign(randReader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %v", ErrCryptoProvider, err)
	}

	sig := make([]byte, SignatureSize)
	r.FillBytes(sig[:P384ScalarSize])
	s.FillBytes(sig[P384ScalarSize:])
	return sig, nil
}

// Verify checks an IEEE P1363 signature over SHA-384(message).
func Verify(pub *ecdsa.PublicKey, message, sig []byte) error {
	if len(sig) != SignatureSize {
		return fmt.Errorf("%w: signature length %d, want %d", ErrInvalidSignature, len(sig), SignatureSize)
	}

	digest := sha512.Sum384(message)
	r := new(big.Int).SetBytes(sig[:P384ScalarSize])
	s := new(big.Int).SetBytes(sig[P384ScalarSize:])
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return ErrInvalidSignature
	}
	return nil
}
