package api

import (
	"fmt"

	"github.com/securebank/client-go/internal/apierrors"
	"github.com/securebank/client-go/internal/crypto"
)

// SecureEnvelope is the wire object exchanged with the secure gateway.
// Responses carry no ephemeral key; they are sealed with the request's
// session key.
type SecureEnvelope struct {
	EphemeralPubKey string `json:"ephemeral_pubkey,omitempty"`
	Ciphertext      string `json:"ciphertext"`
	IV              string `json:"iv"`
}

// NewSecureEnvelope encodes a sealed payload for the wire.
func NewSecureEnvelope(ephemeralPubKey string, sealed *crypto.Sealed) *SecureEnvelope {
	return &SecureEnvelope{
		EphemeralPubKey: ephemeralPubKey,
		Ciphertext:      crypto.ToBase64(sealed.Ciphertext),
		IV:              crypto.ToBase64(sealed.IV),
	}
}

// Sealed decodes the Base64 fields. Padding is optional, since gateways
// built on other stacks may strip it.
func (e *SecureEnvelope) Sealed() (*crypto.Sealed, error) {
	if e == nil || e.Ciphertext == "" || e.IV == "" {
		return nil, fmt.Errorf("%w: envelope is missing ciphertext or iv", apierrors.ErrDecode)
	}
	ciphertext, err := crypto.DecodeBase64(e.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("ciphertext: %w", err)
	}
	iv, err := crypto.DecodeBase64(e.IV)
	if err != nil {
		return nil, fmt.Errorf("iv: %w", err)
	}
	return &crypto.Sealed{Ciphertext: ciphertext, IV: iv}, nil
}

// serverKeyResponse is the JSON form of the server public key endpoint.
type serverKeyResponse struct {
	PublicKey      string `json:"public_key"`
	PublicKeyCamel string `json:"publicKey"`
}
