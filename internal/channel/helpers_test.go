package channel

import (
	"crypto/ecdh"
	"testing"

	"github.com/securebank/client-go/internal/crypto"
)

func newServerKey(t *testing.T) (*ecdh.PrivateKey, string) {
	t.Helper()
	priv, err := crypto.GenerateEphemeralKey()
	if err != nil {
		t.Fatal(err)
	}
	pemText, err := crypto.PublicKeyToPEM(priv.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	return priv, pemText
}

func serverDerive(t *testing.T, priv *ecdh.PrivateKey, ephemeralB64 string) []byte {
	t.Helper()
	der, err := crypto.FromBase64(ephemeralB64)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := crypto.ParseKeyAgreementSPKI(der)
	if err != nil {
		t.Fatal(err)
	}
	key, err := crypto.AgreeSessionKey(priv, pub)
	if err != nil {
		t.Fatal(err)
	}
	return key
}
