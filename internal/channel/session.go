package channel

import (
	"errors"

	"github.com/securebank/client-go/internal/crypto"
)

// ErrSessionDestroyed is returned by a Session after Destroy.
var ErrSessionDestroyed = errors.New("session destroyed")

// Session encrypts one request and decrypts its response. It must not be
// reused for another request.
type Session struct {
	key          []byte
	ephemeralPub string
	serverKey    *ServerKey
}

// NewSession generates an ephemeral key and derives the session key against
// serverKey.
func NewSession(serverKey *ServerKey) (*Session, error) {
	eph, err := crypto.GenerateEphemeralKey()
	if err != nil {
		return nil, err
	}

	key, err := crypto.AgreeSessionKey(eph, serverKey.PublicKey)
	if err != nil {
		return nil, err
	}

	pub, err := crypto.MarshalEphemeralPublicKey(eph.PublicKey())
	if err != nil {
		return nil, err
	}

	return &Session{key: key, ephemeralPub: pub, serverKey: serverKey}, nil
}

// EphemeralPublicKey returns the base64 SPKI of this session's ephemeral key.
func (s *Session) EphemeralPublicKey() string {
	return s.ephemeralPub
}

// ServerKey returns the server key snapshot the session was agreed with.
func (s *Session) ServerKey() *ServerKey {
	return s.serverKey
}

// Seal encrypts the canonical JSON form of v.
func (s *Session) Seal(v any) (*crypto.Sealed, error) {
	if s.key == nil {
		return nil, ErrSessionDestroyed
	}
	return crypto.EncryptJSON(s.key, v)
}

// Open decrypts sealed into out. Authentication failures match ErrDecryption.
func (s *Session) Open(sealed *crypto.Sealed, out any) error {
	if s.key == nil {
		return ErrSessionDestroyed
	}
	return crypto.DecryptJSON(s.key, sealed, out)
}

// Destroy zeroes the session key.
func (s *Session) Destroy() {
	for i := range s.key {
		s.key[i] = 0
	}
	s.key = nil
}
