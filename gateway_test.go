package securebank

import (
	"crypto/ecdh"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/securebank/client-go/canonical"
	"github.com/securebank/client-go/internal/api"
	"github.com/securebank/client-go/internal/crypto"
)

// receivedRequest is a request as the fake gateway saw it after decryption.
type receivedRequest struct {
	Payload    requestPayload
	Token      string
	Ephemeral  string
	SessionKey []byte
}

// replyFunc decides the gateway answer. body is sealed with the request's
// session key unless it is a rawBody.
type replyFunc func(r *receivedRequest) (status int, body any)

// rawBody is written to the client unencrypted.
type rawBody string

// fakeGateway implements the server side of the secure channel.
type fakeGateway struct {
	t      *testing.T
	server *httptest.Server
	priv   *ecdh.PrivateKey
	pem    string

	mu         sync.Mutex
	reply      replyFunc
	keyStatus  int
	keyFetches int
	requests   []*receivedRequest
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	priv, err := crypto.GenerateEphemeralKey()
	if err != nil {
		t.Fatal(err)
	}
	pemText, err := crypto.PublicKeyToPEM(priv.PublicKey())
	if err != nil {
		t.Fatal(err)
	}

	g := &fakeGateway{t: t, priv: priv, pem: pemText, keyStatus: http.StatusOK}
	g.reply = func(*receivedRequest) (int, any) {
		return http.StatusOK, map[string]any{"ok": true}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(api.PathServerPublicKey, g.handleServerKey)
	mux.HandleFunc(api.PathSecure, g.handleSecure)
	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGateway) URL() string { return g.server.URL }

func (g *fakeGateway) setReply(fn replyFunc) {
	g.mu.Lock()
	g.reply = fn
	g.mu.Unlock()
}

func (g *fakeGateway) setKeyStatus(status int) {
	g.mu.Lock()
	g.keyStatus = status
	g.mu.Unlock()
}

func (g *fakeGateway) fetches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keyFetches
}

func (g *fakeGateway) received() []*receivedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*receivedRequest(nil), g.requests...)
}

// rotateKey replaces the server key, as a server key rotation would.
func (g *fakeGateway) rotateKey() {
	g.t.Helper()
	priv, err := crypto.GenerateEphemeralKey()
	if err != nil {
		g.t.Fatal(err)
	}
	pemText, err := crypto.PublicKeyToPEM(priv.PublicKey())
	if err != nil {
		g.t.Fatal(err)
	}
	g.mu.Lock()
	g.priv, g.pem = priv, pemText
	g.mu.Unlock()
}

func (g *fakeGateway) handleServerKey(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.keyFetches++
	status, pemText := g.keyStatus, g.pem
	g.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"public_key": pemText})
}

func (g *fakeGateway) handleSecure(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var env api.SecureEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		g.t.Errorf("gateway: bad envelope: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	priv := g.priv
	g.mu.Unlock()

	sessionKey := serverSessionKey(g.t, priv, env.EphemeralPubKey)
	sealed, err := env.Sealed()
	if err != nil {
		g.t.Errorf("gateway: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rec := &receivedRequest{
		Token:      strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		Ephemeral:  env.EphemeralPubKey,
		SessionKey: sessionKey,
	}
	if err := crypto.DecryptJSON(sessionKey, sealed, &rec.Payload); err != nil {
		g.t.Errorf("gateway: decrypt request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	g.requests = append(g.requests, rec)
	reply := g.reply
	g.mu.Unlock()

	status, out := http.StatusBadRequest, any(map[string]string{"error": "invalid signature"})
	if verifyPayload(&rec.Payload) == nil {
		status, out = reply(rec)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if raw, ok := out.(rawBody); ok {
		io.WriteString(w, string(raw))
		return
	}
	replySealed, err := crypto.EncryptJSON(sessionKey, out)
	if err != nil {
		g.t.Errorf("gateway: encrypt reply: %v", err)
		return
	}
	json.NewEncoder(w).Encode(api.NewSecureEnvelope("", replySealed))
}

// serverSessionKey derives the session key the way the gateway does.
func serverSessionKey(t *testing.T, priv *ecdh.PrivateKey, ephemeralB64 string) []byte {
	t.Helper()
	der, err := crypto.FromBase64(ephemeralB64)
	if err != nil {
		t.Fatalf("gateway: ephemeral key: %v", err)
	}
	pub, err := crypto.ParseKeyAgreementSPKI(der)
	if err != nil {
		t.Fatalf("gateway: ephemeral key: %v", err)
	}
	key, err := crypto.AgreeSessionKey(priv, pub)
	if err != nil {
		t.Fatalf("gateway: agree: %v", err)
	}
	return key
}

// verifyPayload checks the client signature over the canonical content.
func verifyPayload(p *requestPayload) error {
	pub, err := crypto.ParseVerifyingKeyPEM(p.ClientPublicKey)
	if err != nil {
		return err
	}
	sig, err := crypto.FromBase64(p.ClientSignature)
	if err != nil {
		return err
	}
	message, err := canonical.Marshal(signedContent{
		Target:          p.Target,
		URLParams:       p.URLParams,
		TransactionData: p.TransactionData,
		Timestamp:       p.Timestamp,
		Nonce:           p.Nonce,
	})
	if err != nil {
		return err
	}
	return crypto.Verify(pub, message, sig)
}

// newTestKey returns an unlocked key without going through the PIN
// derivation.
func newTestKey(t *testing.T) *SigningKey {
	t.Helper()
	priv, err := crypto.GenerateSigningKey()
	if err != nil {
		t.Fatal(err)
	}
	key, err := newSigningKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func newTestClient(t *testing.T, g *fakeGateway, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithRetries(0)}, opts...)
	c, err := New(g.URL(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
