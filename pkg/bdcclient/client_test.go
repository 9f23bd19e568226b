package bdcclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSignature_BracketedTrimmedPathPlusCompactBody(t *testing.T) {
	c := NewClient("http://example", "id", "secret", "signing-key")
	body := []byte(`{"originId":"abc","body":{"amount":123.45}}`)

	got := c.signature("/movements/transfer-request", body)

	mac := hmac.New(sha256.New, []byte("signing-key"))
	mac.Write([]byte("[movements/transfer-request]" + string(body)))
	want := hex.EncodeToString(mac.Sum(nil))

	if got != want {
		t.Fatalf("expected signature %s, got %s", want, got)
	}
}

func TestSubmitTransfer_AuthenticatesThenSignsAndPosts(t *testing.T) {
	var gotAuthBody string
	var gotToken, gotSignature string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth":
			buf, _ := io.ReadAll(r.Body)
			gotAuthBody = string(buf)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":{"accessToken":"tok-123"}}`))
		case "/movements/transfer-request":
			gotToken = r.Header.Get("Authorization")
			gotSignature = r.Header.Get("X-SIGNATURE")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"statusCode":0,"dest_ori_trx_id":"prov-1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "client-id", "client-secret", "signing-key")
	payload := map[string]any{"originId": "abc"}

	resp, err := c.SubmitTransfer(context.Background(), payload)
	if err != nil {
		t.Fatalf("SubmitTransfer returned error: %v", err)
	}

	if gotAuthBody != `{"clientId":"client-id","clientSecret":"client-secret"}` {
		t.Fatalf("unexpected auth body: %s", gotAuthBody)
	}
	if gotToken != "Bearer tok-123" {
		t.Fatalf("expected bearer token header, got %q", gotToken)
	}
	wantSig := c.signature("/movements/transfer-request", []byte(`{"originId":"abc"}`))
	if gotSignature != wantSig {
		t.Fatalf("expected signature %s, got %s", wantSig, gotSignature)
	}
	if resp["statusCode"] != float64(0) {
		t.Fatalf("expected statusCode 0 in decoded payload, got %v", resp["statusCode"])
	}
}

func TestSubmitTransfer_AuthFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "id", "bad-secret", "key")
	_, err := c.SubmitTransfer(context.Background(), map[string]any{})

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.Op != "auth" || transportErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected transport error detail: %+v", transportErr)
	}
}

func TestSubmitTransfer_Non2xxTransferIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			w.Write([]byte(`{"data":{"accessToken":"tok"}}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "id", "secret", "key")
	_, err := c.SubmitTransfer(context.Background(), map[string]any{})

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.Op != "transfer" || transportErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("unexpected transport error detail: %+v", transportErr)
	}
}
