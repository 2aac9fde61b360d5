package securebank

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"

	"github.com/securebank/client-go/internal/crypto"
)

// SigningKey is an unlocked signing key held in process memory. It stays
// usable until Destroy; nothing re-locks it in the background.
type SigningKey struct {
	mu        sync.RWMutex
	priv      *ecdsa.PrivateKey
	publicPEM string
}

func newSigningKey(priv *ecdsa.PrivateKey) (*SigningKey, error) {
	pemText, err := crypto.PublicKeyToPEM(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &SigningKey{priv: priv, publicPEM: pemText}, nil
}

// PublicKeyPEM returns the SPKI PEM of the public half. It is safe to log
// and transmit, and remains available after Destroy.
func (k *SigningKey) PublicKeyPEM() string {
	return k.publicPEM
}

// PublicKey returns the public half, or nil after Destroy.
func (k *SigningKey) PublicKey() *ecdsa.PublicKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.priv == nil {
		return nil
	}
	pub := k.priv.PublicKey
	return &pub
}

// Sign returns the P1363 ECDSA/SHA-384 signature of message.
func (k *SigningKey) Sign(message []byte) ([]byte, error) {
	if k == nil {
		return nil, ErrKeyLocked
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.priv == nil {
		return nil, ErrKeyLocked
	}
	return crypto.Sign(k.priv, message)
}

// Destroy clears the private scalar. Later Sign calls fail with ErrKeyLocked.
func (k *SigningKey) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.priv == nil {
		return
	}
	k.priv.D.SetInt64(0)
	k.priv = nil
}

// validatePIN enforces the PIN policy: exactly pinLength ASCII digits.
func (c *Client) validatePIN(pin string) error {
	if len(pin) != c.pinLength {
		return ErrInvalidPINFormat
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPINFormat
		}
	}
	return nil
}

// SetUpKey generates a new signing key, stores it wrapped under pin and
// returns it unlocked. An existing key record is replaced.
func (c *Client) SetUpKey(ctx context.Context, pin string) (*SigningKey, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := c.validatePIN(pin); err != nil {
		return nil, err
	}

	priv, err := crypto.GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	record, err := crypto.EncryptPrivateKey(priv, pin)
	if err != nil {
		return nil, err
	}
	if err := c.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("store key record: %w", err)
	}

	key, err := newSigningKey(priv)
	if err != nil {
		return nil, err
	}
	c.logger.Info().Msg("signing key set up")
	return key, nil
}

// Unlock loads the stored key record and decrypts it with pin.
//
// It returns ErrNoKey when no key is set up, ErrInvalidPIN for a wrong PIN
// or a tampered record, ErrCorruptRecord for a damaged record, and
// ErrTooManyAttempts when attempts come faster than the unlock rate limit.
func (c *Client) Unlock(ctx context.Context, pin string) (*SigningKey, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	priv, err := c.unlock(ctx, pin)
	if err != nil {
		return nil, err
	}
	return newSigningKey(priv)
}

func (c *Client) unlock(ctx context.Context, pin string) (*ecdsa.PrivateKey, error) {
	if err := c.validatePIN(pin); err != nil {
		c.metrics.observeUnlockFailure("format")
		return nil, err
	}
	if c.unlockLimiter != nil && !c.unlockLimiter.AllowN(c.now(), 1) {
		c.metrics.observeUnlockFailure("rate_limited")
		c.logger.Warn().Msg("unlock attempt throttled")
		return nil, ErrTooManyAttempts
	}

	record, err := c.loadRecord(ctx)
	if err != nil {
		return nil, err
	}

	priv, err := crypto.DecryptPrivateKey(record, pin)
	switch {
	case err == nil:
		return priv, nil
	case errors.Is(err, ErrInvalidPIN):
		c.metrics.observeUnlockFailure("invalid_pin")
		c.logger.Warn().Msg("unlock failed: invalid PIN")
	case errors.Is(err, ErrCorruptRecord):
		c.metrics.observeUnlockFailure("corrupt_record")
		c.logger.Warn().Err(err).Msg("unlock failed: corrupt key record")
	}
	return nil, err
}

// loadRecord reads the key record, mapping an absent record to ErrNoKey.
func (c *Client) loadRecord(ctx context.Context) (*KeyRecord, error) {
	record, err := c.store.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrNoKey
		}
		if errors.Is(err, ErrCorruptRecord) {
			return nil, err
		}
		return nil, fmt.Errorf("load key record: %w", err)
	}
	return record, nil
}

// IsKeySet reports whether a key record exists. A record that exists but
// cannot be read is reported as an error, not as absent.
func (c *Client) IsKeySet(ctx context.Context) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	_, err := c.loadRecord(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNoKey):
		return false, nil
	}
	return false, err
}

// ChangePIN re-wraps the stored key under newPIN with a fresh salt and IV.
// The old record is replaced only after the new one is built.
func (c *Client) ChangePIN(ctx context.Context, oldPIN, newPIN string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.validatePIN(newPIN); err != nil {
		return err
	}

	priv, err := c.unlock(ctx, oldPIN)
	if err != nil {
		return err
	}
	defer priv.D.SetInt64(0)

	record, err := crypto.EncryptPrivateKey(priv, newPIN)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, record); err != nil {
		return fmt.Errorf("store key record: %w", err)
	}
	c.logger.Info().Msg("PIN changed")
	return nil
}

// ResetKey deletes the stored key record. The account must be registered
// again with a new key afterwards.
func (c *Client) ResetKey(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.store.Delete(ctx); err != nil {
		return fmt.Errorf("delete key record: %w", err)
	}
	c.logger.Info().Msg("signing key reset")
	return nil
}
