package cryptor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudshield/eqlproxy/internal/eql"
)

// HTTPClient is the one concrete Cryptor the proxy ships: it batches
// encrypt/decrypt calls to a keyset service over HTTP, the way the
// teacher's health checker and pool dialed out to a single configured
// endpoint rather than discovering peers. DefaultKeyset is attached to
// every request so the service can pick the right key material when a
// PlaintextTarget/Ciphertext doesn't carry its own keyset id.
type HTTPClient struct {
	Endpoint      string
	DefaultKeyset string
	HTTPClient    *http.Client
}

// NewHTTPClient builds an HTTPClient from the proxy's Cryptor config
// section (§6). A zero-value timeout falls back to 5s.
func NewHTTPClient(cfg Config, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		Endpoint:      cfg.Endpoint,
		DefaultKeyset: cfg.DefaultKeyset,
		HTTPClient:    &http.Client{Timeout: timeout},
	}
}

type encryptRequest struct {
	Keyset  string                 `json:"keyset"`
	Targets []eql.PlaintextTarget  `json:"targets"`
}

type encryptResponse struct {
	Records []eql.Ciphertext `json:"records"`
}

type decryptRequest struct {
	Keyset  string            `json:"keyset"`
	Records []eql.Ciphertext  `json:"records"`
}

type decryptResponse struct {
	Targets []eql.PlaintextTarget `json:"targets"`
}

// Encrypt batches targets to the keyset service's /encrypt endpoint,
// preserving order (§6).
func (c *HTTPClient) Encrypt(ctx context.Context, targets []eql.PlaintextTarget) ([]eql.Ciphertext, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	var resp encryptResponse
	if err := c.call(ctx, "/encrypt", encryptRequest{Keyset: c.DefaultKeyset, Targets: targets}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Records) != len(targets) {
		return nil, fmt.Errorf("cryptor: encrypt returned %d records for %d targets", len(resp.Records), len(targets))
	}
	return resp.Records, nil
}

// Decrypt batches records to the keyset service's /decrypt endpoint,
// preserving order (§6).
func (c *HTTPClient) Decrypt(ctx context.Context, records []eql.Ciphertext) ([]eql.PlaintextTarget, error) {
	if len(records) == 0 {
		return nil, nil
	}
	var resp decryptResponse
	if err := c.call(ctx, "/decrypt", decryptRequest{Keyset: c.DefaultKeyset, Records: records}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Targets) != len(records) {
		return nil, fmt.Errorf("cryptor: decrypt returned %d targets for %d records", len(resp.Targets), len(records))
	}
	return resp.Targets, nil
}

func (c *HTTPClient) call(ctx context.Context, path string, body, out any) error {
	if c.Endpoint == "" {
		return ErrUnconfigured
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("cryptor: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("cryptor: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("cryptor: calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("cryptor: reading response from %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cryptor: %s returned %d: %s", path, resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("cryptor: decoding response from %s: %w", path, err)
	}
	return nil
}
