package securebank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/securebank/client-go/canonical"
	"github.com/securebank/client-go/internal/api"
	"github.com/securebank/client-go/internal/apierrors"
	"github.com/securebank/client-go/internal/channel"
	"github.com/securebank/client-go/internal/crypto"
)

// State is a step of a secure call.
type State int

const (
	StateIdle State = iota
	StateSigning
	StateKeyAgreement
	StateEncrypting
	StateTransmitted
	StateAwaitingResponse
	StateDecrypted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateSigning:          "signing",
	StateKeyAgreement:     "key_agreement",
	StateEncrypting:       "encrypting",
	StateTransmitted:      "transmitted",
	StateAwaitingResponse: "awaiting_response",
	StateDecrypted:        "decrypted",
	StateFailed:           "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StateChange describes one transition of a secure call.
type StateChange struct {
	Target string
	Nonce  string // identifies the attempt; a token refresh starts a new one
	From   State
	To     State
	Err    error // set when To is StateFailed
}

// StateHook observes secure call transitions. It runs synchronously on the
// calling goroutine and must not block.
type StateHook func(StateChange)

// signedContent is the exact value whose canonical form is signed.
type signedContent struct {
	Target          string         `json:"target"`
	URLParams       map[string]any `json:"url_params"`
	TransactionData map[string]any `json:"transaction_data"`
	Timestamp       int64          `json:"timestamp"`
	Nonce           string         `json:"nonce"`
}

// requestPayload is the plaintext sealed into the request envelope.
type requestPayload struct {
	Target          string         `json:"target"`
	URLParams       map[string]any `json:"url_params"`
	TransactionData map[string]any `json:"transaction_data"`
	ClientSignature string         `json:"client_signature"`
	ClientPublicKey string         `json:"client_public_key"`
	Timestamp       int64          `json:"timestamp"`
	Nonce           string         `json:"nonce"`
}

// errorPayload is the plaintext of an encrypted error body.
type errorPayload struct {
	Error string `json:"error"`
}

// tracker drives the state machine of one attempt.
type tracker struct {
	c      *Client
	target string
	nonce  string
	state  State
}

func (t *tracker) to(next State) {
	t.emit(next, nil)
}

func (t *tracker) fail(err error) {
	t.emit(StateFailed, err)
	t.c.logger.Warn().
		Err(err).
		Str("target", t.target).
		Str("nonce", t.nonce).
		Msg("secure call failed")
}

func (t *tracker) emit(next State, err error) {
	prev := t.state
	t.state = next
	t.c.logger.Debug().
		Str("target", t.target).
		Str("nonce", t.nonce).
		Stringer("from", prev).
		Stringer("to", next).
		Msg("secure call state")
	if t.c.stateHook != nil {
		t.c.stateHook(StateChange{Target: t.target, Nonce: t.nonce, From: prev, To: next, Err: err})
	}
}

// SecureCall signs req with key, sends it to the secure gateway in a fresh
// encrypted session and returns the decrypted answer.
//
// Every call uses a new nonce, timestamp and ephemeral key. If the gateway
// answers 401 and a TokenRefresher is configured, the token is refreshed
// and the call is rebuilt and sent once more; no other failure is retried.
func (c *Client) SecureCall(ctx context.Context, key *SigningKey, req Request) (*Response, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, &ValidationError{Target: "", Errors: []string{"request is required"}}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.attempt(ctx, key, req, c.AccessToken())
	if err != nil && c.tokenRefresher != nil && isExpiredAuthorization(err) {
		c.logger.Debug().Str("target", req.Target()).Msg("access token rejected, refreshing")
		token, rerr := c.tokenRefresher.RefreshToken(ctx)
		if rerr != nil {
			err = fmt.Errorf("refresh access token: %w (after %w)", rerr, err)
		} else {
			c.SetAccessToken(token)
			resp, err = c.attempt(ctx, key, req, token)
		}
	}
	c.metrics.observeCall(req.Target(), outcomeLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	if resp.Access != "" {
		c.SetAccessToken(resp.Access)
	}
	return resp, nil
}

func isExpiredAuthorization(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusUnauthorized
}

// attempt runs the state machine once.
func (c *Client) attempt(ctx context.Context, key *SigningKey, req Request, token string) (_ *Response, err error) {
	t := &tracker{c: c, target: req.Target(), nonce: uuid.NewString(), state: StateIdle}
	defer func() {
		if err != nil {
			t.fail(err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.to(StateSigning)
	content := signedContent{
		Target:          req.Target(),
		URLParams:       req.urlParams(),
		TransactionData: req.transactionData(),
		Timestamp:       c.now().Unix(),
		Nonce:           t.nonce,
	}
	signature, err := signContent(key, content)
	if err != nil {
		return nil, err
	}

	t.to(StateKeyAgreement)
	session, err := c.channel.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Destroy()

	t.to(StateEncrypting)
	sealed, err := session.Seal(requestPayload{
		Target:          content.Target,
		URLParams:       content.URLParams,
		TransactionData: content.TransactionData,
		ClientSignature: crypto.ToBase64(signature),
		ClientPublicKey: key.PublicKeyPEM(),
		Timestamp:       content.Timestamp,
		Nonce:           content.Nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("encrypt request: %w", err)
	}
	env := api.NewSecureEnvelope(session.EphemeralPublicKey(), sealed)

	t.to(StateTransmitted)
	respEnv, err := c.apiClient.PostSecure(ctx, env, token)
	if err != nil {
		return nil, c.gatewayError(session, err)
	}

	t.to(StateAwaitingResponse)
	resp, err := c.openResponse(session, respEnv)
	if err != nil {
		return nil, err
	}

	t.to(StateDecrypted)
	return resp, nil
}

// signContent signs the canonical form of content.
func signContent(key *SigningKey, content signedContent) ([]byte, error) {
	message, err := canonical.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("canonicalize request: %w", err)
	}
	return key.Sign(message)
}

// openResponse decrypts a success envelope. An authentication failure is
// the usual sign of a rotated server key, so the session's server key is
// dropped from the cache.
func (c *Client) openResponse(session *channel.Session, env *api.SecureEnvelope) (*Response, error) {
	sealed, err := env.Sealed()
	if err != nil {
		return nil, fmt.Errorf("gateway response: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := session.Open(sealed, &fields); err != nil {
		if errors.Is(err, ErrDecryption) {
			c.channel.Reject(session.ServerKey())
			return nil, &DecryptionError{Stage: "response", Err: err}
		}
		return nil, fmt.Errorf("gateway response: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: gateway response is not an object", ErrDecode)
	}

	resp := &Response{Fields: fields}
	if raw, ok := fields["access"]; ok {
		var access string
		if err := json.Unmarshal(raw, &access); err == nil {
			resp.Access = access
		}
	}
	return resp, nil
}

// gatewayError converts a transport error. Error statuses become
// *GatewayError, with the message recovered from the encrypted body when the
// session can open it; other errors pass through unchanged.
func (c *Client) gatewayError(session *channel.Session, err error) error {
	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	gwErr := &GatewayError{StatusCode: apiErr.StatusCode, Message: genericGatewayMessage(apiErr.StatusCode)}
	env, perr := api.ParseEnvelope(apiErr.Body)
	if perr != nil {
		return gwErr
	}
	sealed, perr := env.Sealed()
	if perr != nil {
		return gwErr
	}
	var payload errorPayload
	if perr := session.Open(sealed, &payload); perr != nil {
		c.logger.Debug().Int("status", apiErr.StatusCode).Msg("gateway error body could not be decrypted")
		return gwErr
	}
	if msg := strings.TrimSpace(payload.Error); msg != "" {
		gwErr.Message = msg
		gwErr.Encrypted = true
	}
	return gwErr
}

func genericGatewayMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return "request failed: " + strings.ToLower(text)
	}
	return "request failed"
}
