package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/securebank/client-go/internal/apierrors"
	"github.com/securebank/client-go/internal/crypto"
)

const testPEM = "-----BEGIN PUBLIC KEY-----\nMHYwEAYHKoZIzj0CAQYFK4EEACIDYgAE\n-----END PUBLIC KEY-----\n"

func TestFetchServerPublicKey(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"json snake case", "application/json", `{"public_key":` + jsonString(testPEM) + `}`},
		{"json camel case", "application/json", `{"publicKey":` + jsonString(testPEM) + `}`},
		{"bare pem", "application/x-pem-file", testPEM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != "GET" {
					t.Errorf("method = %s, want GET", r.Method)
				}
				if r.URL.Path != PathServerPublicKey {
					t.Errorf("path = %s, want %s", r.URL.Path, PathServerPublicKey)
				}
				w.Header().Set("Content-Type", tt.contentType)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, _ := New(server.URL, WithRetries(0))
			got, err := client.FetchServerPublicKey(context.Background())
			if err != nil {
				t.Fatalf("FetchServerPublicKey() error = %v", err)
			}
			if got != testPEM && got+"\n" != testPEM {
				t.Errorf("FetchServerPublicKey() = %q, want %q", got, testPEM)
			}
		})
	}
}

func TestFetchServerPublicKey_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"not json", `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, _ := New(server.URL, WithRetries(0))
			if _, err := client.FetchServerPublicKey(context.Background()); !errors.Is(err, apierrors.ErrDecode) {
				t.Errorf("FetchServerPublicKey() error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestFetchServerPublicKey_Retries(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(testPEM))
	}))
	defer server.Close()

	client, _ := New(server.URL, WithRetries(2), WithRetryDelay(time.Millisecond))
	if _, err := client.FetchServerPublicKey(context.Background()); err != nil {
		t.Fatalf("FetchServerPublicKey() error = %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestPostSecure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != PathSecure {
			t.Errorf("request = %s %s, want POST %s", r.Method, r.URL.Path, PathSecure)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want Bearer tok-1", got)
		}

		var env map[string]string
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		for _, k := range []string{"ephemeral_pubkey", "ciphertext", "iv"} {
			if env[k] == "" {
				t.Errorf("envelope field %q missing", k)
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"ciphertext": "Y3Q=", "iv": "aXY="})
	}))
	defer server.Close()

	client, _ := New(server.URL)
	env := NewSecureEnvelope("ZXBo", &crypto.Sealed{Ciphertext: []byte("ct"), IV: []byte("iv")})

	resp, err := client.PostSecure(context.Background(), env, "tok-1")
	if err != nil {
		t.Fatalf("PostSecure() error = %v", err)
	}
	sealed, err := resp.Sealed()
	if err != nil {
		t.Fatalf("Sealed() error = %v", err)
	}
	if string(sealed.Ciphertext) != "ct" || string(sealed.IV) != "iv" {
		t.Errorf("sealed = %q/%q", sealed.Ciphertext, sealed.IV)
	}
}

func TestPostSecure_NoRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"ciphertext":"Y3Q=","iv":"aXY="}`))
	}))
	defer server.Close()

	client, _ := New(server.URL, WithRetries(3), WithRetryDelay(time.Millisecond))
	env := NewSecureEnvelope("ZXBo", &crypto.Sealed{Ciphertext: []byte("ct"), IV: []byte("iv")})

	_, err := client.PostSecure(context.Background(), env, "")
	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("PostSecure() error = %v, want APIError", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}

	// The encrypted error body is preserved for the caller's session.
	errEnv, err := ParseEnvelope(apiErr.Body)
	if err != nil {
		t.Fatalf("ParseEnvelope() error = %v", err)
	}
	if errEnv.Ciphertext != "Y3Q=" {
		t.Errorf("Ciphertext = %q", errEnv.Ciphertext)
	}
}

func TestPostSecure_NoToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("Authorization header should be absent without a token")
		}
		w.Write([]byte(`{"ciphertext":"Y3Q=","iv":"aXY="}`))
	}))
	defer server.Close()

	client, _ := New(server.URL)
	env := NewSecureEnvelope("ZXBo", &crypto.Sealed{Ciphertext: []byte("ct"), IV: []byte("iv")})
	if _, err := client.PostSecure(context.Background(), env, ""); err != nil {
		t.Fatalf("PostSecure() error = %v", err)
	}
}

func TestParseEnvelope_Invalid(t *testing.T) {
	tests := []string{`not json`, `{}`, `{"ciphertext":"Y3Q="}`}
	for _, body := range tests {
		if _, err := ParseEnvelope([]byte(body)); !errors.Is(err, apierrors.ErrDecode) {
			t.Errorf("ParseEnvelope(%s) error = %v, want ErrDecode", body, err)
		}
	}
}

func TestSecureEnvelope_Sealed_BadBase64(t *testing.T) {
	env := &SecureEnvelope{Ciphertext: "!!", IV: "aXY="}
	if _, err := env.Sealed(); !errors.Is(err, apierrors.ErrDecode) {
		t.Errorf("Sealed() error = %v, want ErrDecode", err)
	}
}

func TestSecureEnvelope_Sealed_Unpadded(t *testing.T) {
	env := &SecureEnvelope{Ciphertext: "Y2lwaGVydGV4dA", IV: "aXY"}
	sealed, err := env.Sealed()
	if err != nil {
		t.Fatalf("Sealed() error = %v", err)
	}
	if string(sealed.Ciphertext) != "ciphertext" || string(sealed.IV) != "iv" {
		t.Errorf("Sealed() = %q, %q", sealed.Ciphertext, sealed.IV)
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
