/**
 * @description
 * This package provides a client for the Banco de Comercio transfer API.
 * It encapsulates the two provider calls a transfer execution needs: the
 * credential exchange that yields a short-lived bearer token, and the signed
 * transfer submission itself.
 *
 * Every transfer submission re-authenticates; the provider's tokens are
 * short-lived and no caching is performed between calls.
 *
 * @dependencies
 * - bytes, context, crypto/hmac, crypto/sha256, encoding/json, net/http: Standard Go libraries.
 */
package bdcclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	authPath     = "/auth"
	transferPath = "/movements/transfer-request"

	authTimeout = 10 * time.Second
)

// TransportError signals a network or HTTP failure talking to the provider:
// an authentication failure, a non-2xx transfer response, or a timeout.
// The provider never produced an interpretable transfer payload, so callers
// must not translate it into a domain FAILED state.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("bdc %s failed: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("bdc %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client is a client for the Banco de Comercio API.
type Client struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	SecretKey    string
	HTTPClient   *http.Client
}

// NewClient creates a new Banco de Comercio API client.
func NewClient(baseURL, clientID, clientSecret, secretKey string) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		SecretKey:    secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type authRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type authResponse struct {
	Data struct {
		AccessToken string `json:"accessToken"`
	} `json:"data"`
}

// Authenticate exchanges the client credentials for a short-lived bearer token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(authRequest{ClientID: c.ClientID, ClientSecret: c.ClientSecret})
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+authPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: "auth", Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: "auth", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=bdc_client op=auth status=%d msg=\"non-2xx auth response\"", resp.StatusCode)
		return "", &TransportError{Op: "auth", StatusCode: resp.StatusCode, Err: fmt.Errorf("authentication rejected")}
	}

	var parsed authResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return "", &TransportError{Op: "auth", StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode auth response: %w", err)}
	}
	if parsed.Data.AccessToken == "" {
		return "", &TransportError{Op: "auth", StatusCode: resp.StatusCode, Err: fmt.Errorf("auth response missing access token")}
	}
	return parsed.Data.AccessToken, nil
}

// SubmitTransfer authenticates, signs the compact-JSON payload and posts it to
// the transfer endpoint. It returns the provider's decoded JSON payload on any
// 2xx response; everything else is a TransportError.
func (c *Client) SubmitTransfer(ctx context.Context, payload any) (map[string]any, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+transferPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-SIGNATURE", c.signature(transferPath, body))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "transfer", Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "transfer", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=bdc_client op=transfer status=%d msg=\"non-2xx transfer response\"", resp.StatusCode)
		return nil, &TransportError{Op: "transfer", StatusCode: resp.StatusCode, Err: fmt.Errorf("transfer submission rejected")}
	}

	var parsed map[string]any
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, &TransportError{Op: "transfer", StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode transfer response: %w", err)}
	}
	return parsed, nil
}

// signature computes the HMAC-SHA256 hex digest over the bracketed,
// slash-trimmed request path concatenated with the compact JSON body,
// keyed with the pre-shared secret.
func (c *Client) signature(path string, compactBody []byte) string {
	message := "[" + strings.Trim(path, "/") + "]" + string(compactBody)
	mac := hmac.New(sha256.New, []byte(c.SecretKey))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
