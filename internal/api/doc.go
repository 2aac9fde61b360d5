// Package api provides the HTTP transport for the SecureBank API. It handles
// request/response serialization and retry with exponential backoff for
// transient failures of idempotent requests.
//
// # Client Creation
//
//   - [NewClient]: Struct-based configuration for explicit, type-safe setup.
//   - [New]: Functional options pattern for flexible configuration.
//
// # Endpoints
//
//   - [Client.FetchServerPublicKey]: GET /api/security/server-public-key.
//   - [Client.PostSecure]: POST /api/secure with a [SecureEnvelope].
//
// # Retry Behavior
//
// Only the server key fetch is retried, up to 3 times by default, for these
// HTTP status codes and for network errors:
//
//   - 408 Request Timeout
//   - 429 Too Many Requests
//   - 500 Internal Server Error
//   - 502 Bad Gateway
//   - 503 Service Unavailable
//   - 504 Gateway Timeout
//
// A Retry-After header given in seconds raises the delay for that attempt.
// The secure gateway POST is sent exactly once.
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use.
package api
