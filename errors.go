package securebank

import (
	"github.com/securebank/client-go/internal/apierrors"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrCryptoProvider is returned when the random source or a curve
	// operation is unavailable. It is not retryable.
	ErrCryptoProvider = apierrors.ErrCryptoProvider

	// ErrInvalidPIN is returned when the stored key cannot be unlocked with
	// the supplied PIN. A tampered record produces the same error.
	ErrInvalidPIN = apierrors.ErrInvalidPIN

	// ErrInvalidPINFormat is returned when a PIN violates the PIN policy.
	ErrInvalidPINFormat = apierrors.ErrInvalidPINFormat

	// ErrCorruptRecord is returned when the stored key record is damaged.
	// Recovery requires ResetKey and re-registration.
	ErrCorruptRecord = apierrors.ErrCorruptRecord

	// ErrNoKey is returned when no signing key has been set up on this device.
	ErrNoKey = apierrors.ErrNoKey

	// ErrKeyLocked is returned when a secure call is made with a destroyed
	// or missing SigningKey.
	ErrKeyLocked = apierrors.ErrKeyLocked

	// ErrServerKeyUnavailable is returned when the server public key cannot
	// be fetched or parsed.
	ErrServerKeyUnavailable = apierrors.ErrServerKeyUnavailable

	// ErrDecryption is returned when a gateway response fails authentication.
	ErrDecryption = apierrors.ErrDecryption

	// ErrDecode is returned for malformed Base64 or PEM input.
	ErrDecode = apierrors.ErrDecode

	// ErrValidation is returned when a request fails validation before signing.
	ErrValidation = apierrors.ErrValidation

	// ErrGateway is returned when the secure gateway answers with an error status.
	ErrGateway = apierrors.ErrGateway

	// ErrUnauthorized is returned when the gateway rejects the access token.
	ErrUnauthorized = apierrors.ErrUnauthorized

	// ErrRateLimited is returned when the gateway rate limit is exceeded.
	ErrRateLimited = apierrors.ErrRateLimited

	// ErrTooManyAttempts is returned when Unlock is called too often.
	ErrTooManyAttempts = apierrors.ErrTooManyAttempts

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = apierrors.ErrClientClosed
)

// SecureBankError is implemented by all typed client errors.
type SecureBankError interface {
	error
	SecureBankError() // marker method
}

// APIError represents a non-2xx HTTP answer from the SecureBank API.
type APIError = apierrors.APIError

// NetworkError represents a network-level failure.
type NetworkError = apierrors.NetworkError

// ServerKeyError wraps the cause of a failed server key lookup.
type ServerKeyError = apierrors.ServerKeyError

// DecryptionError represents a gateway payload that failed to decrypt.
type DecryptionError = apierrors.DecryptionError

// ValidationError lists the problems found in a request.
type ValidationError = apierrors.ValidationError

// GatewayError is an error answer from the secure gateway.
type GatewayError = apierrors.GatewayError
