// Package apierrors provides shared error types for the SecureBank client.
package apierrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrCryptoProvider is returned when the platform crypto provider (random
	// source, curve implementation) cannot serve a request. Not retryable.
	ErrCryptoProvider = errors.New("crypto provider unavailable")

	// ErrInvalidPIN is returned when the stored key record cannot be opened
	// with the supplied PIN. A tampered record produces the same error.
	ErrInvalidPIN = errors.New("invalid PIN")

	// ErrInvalidPINFormat is returned when a PIN does not satisfy the PIN policy.
	ErrInvalidPINFormat = errors.New("PIN must consist of digits only and have the configured length")

	// ErrCorruptRecord is returned when the stored key record is structurally damaged.
	ErrCorruptRecord = errors.New("stored key record is corrupt")

	// ErrNoKey is returned when no key record exists on this device.
	ErrNoKey = errors.New("no signing key on this device")

	// ErrKeyLocked is returned when a secure call is attempted without an unlocked key.
	ErrKeyLocked = errors.New("signing key is locked")

	// ErrServerKeyUnavailable is returned when the server public key cannot be
	// fetched or parsed.
	ErrServerKeyUnavailable = errors.New("server public key unavailable")

	// ErrDecryption is returned when an authenticated decryption fails.
	ErrDecryption = errors.New("decryption failed")

	// ErrDecode is returned for malformed Base64 or PEM input.
	ErrDecode = errors.New("malformed encoded data")

	// ErrValidation is returned when a request fails validation before signing.
	ErrValidation = errors.New("request validation failed")

	// ErrGateway is returned when the secure gateway answers with an error status.
	ErrGateway = errors.New("secure gateway error")

	// ErrUnauthorized is returned when the gateway rejects the access token.
	ErrUnauthorized = errors.New("authorization expired or invalid")

	// ErrRateLimited is returned when the gateway rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrTooManyAttempts is returned when local unlock attempts are throttled.
	ErrTooManyAttempts = errors.New("too many unlock attempts, try again later")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")
)

// APIError represents a non-2xx HTTP answer from the SecureBank API.
// Body holds the raw response body; for the secure gateway it is usually an
// encrypted envelope that only the request's session can open.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		if e.Message != "" {
			return fmt.Sprintf("API error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
		}
		return fmt.Sprintf("API error %d (request_id: %s)", e.StatusCode, e.RequestID)
	}
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// SecureBankError implements the SecureBankError interface.
func (e *APIError) SecureBankError() {}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 401:
		return target == ErrUnauthorized
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SecureBankError implements the SecureBankError interface.
func (e *NetworkError) SecureBankError() {}

// ServerKeyError indicates the server public key could not be obtained.
type ServerKeyError struct {
	Err error
}

func (e *ServerKeyError) Error() string {
	return fmt.Sprintf("server public key unavailable: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ServerKeyError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *ServerKeyError) Is(target error) bool {
	return target == ErrServerKeyUnavailable
}

// SecureBankError implements the SecureBankError interface.
func (e *ServerKeyError) SecureBankError() {}

// DecryptionError represents a failure to open a session-encrypted payload.
// The message never distinguishes a wrong key from tampered data.
type DecryptionError struct {
	Stage string // "response", "error-body"
	Err   error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed at %s", e.Stage)
}

// Unwrap returns the underlying error.
func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryption
}

// SecureBankError implements the SecureBankError interface.
func (e *DecryptionError) SecureBankError() {}

// ValidationError contains the validation failures of a request.
type ValidationError struct {
	Target string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %v", e.Target, e.Errors)
}

// Is implements errors.Is for sentinel error matching.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// SecureBankError implements the SecureBankError interface.
func (e *ValidationError) SecureBankError() {}

// GatewayError is an error answer from the secure gateway. When Encrypted is
// true, Message was recovered from the encrypted error body; otherwise it is
// a generic description.
type GatewayError struct {
	StatusCode int
	Message    string
	Encrypted  bool
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

// Is implements errors.Is for sentinel error matching.
func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrGateway:
		return true
	case ErrUnauthorized:
		return e.StatusCode == 401
	case ErrRateLimited:
		return e.StatusCode == 429
	}
	return false
}

// SecureBankError implements the SecureBankError interface.
func (e *GatewayError) SecureBankError() {}
