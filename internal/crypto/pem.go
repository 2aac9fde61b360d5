package crypto

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
)

// EncodePEM wraps DER bytes in a PEM block of the given type.
func EncodePEM(blockType string, der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}))
}

// DecodePEM extracts the DER bytes of the first PEM block in text. The block
// must have the expected type and complete BEGIN/END markers.
func DecodePEM(text, blockType string) ([]byte, error) {
	data := []byte(strings.TrimSpace(text))
	if !bytes.HasPrefix(data, []byte("-----BEGIN ")) {
		return nil, fmt.Errorf("%w: missing PEM BEGIN marker", ErrDecode)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: truncated or malformed PEM block", ErrDecode)
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("%w: PEM type %q, want %q", ErrDecode, block.Type, blockType)
	}
	return block.Bytes, nil
}

// PublicKeyToPEM serializes an ECDSA or ECDH public key as an SPKI
// "PUBLIC KEY" PEM block.
func PublicKeyToPEM(pub any) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return EncodePEM(PublicKeyPEMType, der), nil
}

// ParseVerifyingKeyPEM parses an SPKI PEM public key for signature
// verification. Only P-384 keys are accepted.
func ParseVerifyingKeyPEM(text string) (*ecdsa.PublicKey, error) {
	der, err := DecodePEM(text, PublicKeyPEMType)
	if err != nil {
		return nil, err
	}
	pub, err := parseSPKI(der)
	if err != nil {
		return nil, err
	}

	ecdhPub, err := pub.ECDH()
	if err != nil || ecdhPub.Curve() != ecdh.P384() {
		return nil, fmt.Errorf("%w: not a P-384 key", ErrInvalidPublicKey)
	}
	return pub, nil
}

// ParseKeyAgreementPEM parses an SPKI PEM public key for ECDH. WebCrypto
// exports ECDH keys with the id-ecPublicKey algorithm, the same as ECDSA keys.
func ParseKeyAgreementPEM(text string) (*ecdh.PublicKey, error) {
	der, err := DecodePEM(text, PublicKeyPEMType)
	if err != nil {
		return nil, err
	}
	return ParseKeyAgreementSPKI(der)
}

// ParseKeyAgreementSPKI parses DER-encoded SPKI bytes as a P-384 ECDH key.
func ParseKeyAgreementSPKI(der []byte) (*ecdh.PublicKey, error) {
	pub, err := parseSPKI(der)
	if err != nil {
		return nil, err
	}

	ecdhPub, err := pub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if ecdhPub.Curve() != ecdh.P384() {
		return nil, fmt.Errorf("%w: not a P-384 key", ErrInvalidPublicKey)
	}
	return ecdhPub, nil
}

func parseSPKI(der []byte) (*ecdsa.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected key type %T", ErrInvalidPublicKey, parsed)
	}
	return pub, nil
}
