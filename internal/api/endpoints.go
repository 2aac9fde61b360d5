package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/securebank/client-go/internal/apierrors"
)

const (
	// PathServerPublicKey serves the gateway's long-term ECDH public key.
	PathServerPublicKey = "/api/security/server-public-key"
	// PathSecure is the secure gateway endpoint.
	PathSecure = "/api/secure"
)

// FetchServerPublicKey returns the server's public key as PEM text. The
// endpoint may answer with {"public_key": "<PEM>"} or with the bare PEM.
// Transient failures are retried.
func (c *Client) FetchServerPublicKey(ctx context.Context) (string, error) {
	resp, err := c.doWithRetry(ctx, request{
		method: "GET",
		path:   PathServerPublicKey,
		accept: "application/json, application/x-pem-file",
	})
	if err != nil {
		return "", err
	}

	body := bytes.TrimSpace(resp.body)
	if bytes.HasPrefix(body, []byte("-----BEGIN")) {
		return string(body), nil
	}

	var result serverKeyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: server key response: %v", apierrors.ErrDecode, err)
	}
	switch {
	case result.PublicKey != "":
		return result.PublicKey, nil
	case result.PublicKeyCamel != "":
		return result.PublicKeyCamel, nil
	}
	return "", fmt.Errorf("%w: server key response has no public_key", apierrors.ErrDecode)
}

// PostSecure sends an envelope to the secure gateway. It is never retried:
// the gateway is not idempotent and a replayed envelope carries a used nonce.
// A non-2xx answer is returned as *apierrors.APIError with the raw body.
func (c *Client) PostSecure(ctx context.Context, env *SecureEnvelope, token string) (*SecureEnvelope, error) {
	resp, err := c.send(ctx, request{method: "POST", path: PathSecure, body: env, token: token})
	if err != nil {
		return nil, &apierrors.NetworkError{Err: err, URL: c.baseURL + PathSecure, Attempt: 1}
	}
	if resp.status < 200 || resp.status >= 300 {
		return nil, parseErrorResponse(resp)
	}

	var out SecureEnvelope
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("%w: gateway response: %v", apierrors.ErrDecode, err)
	}
	return &out, nil
}

// ParseEnvelope decodes a raw body as a SecureEnvelope. Used for encrypted
// error bodies carried by *apierrors.APIError.
func ParseEnvelope(body []byte) (*SecureEnvelope, error) {
	var env SecureEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", apierrors.ErrDecode, err)
	}
	if env.Ciphertext == "" || env.IV == "" {
		return nil, fmt.Errorf("%w: envelope is missing ciphertext or iv", apierrors.ErrDecode)
	}
	return &env, nil
}
