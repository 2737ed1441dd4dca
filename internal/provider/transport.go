package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "stockai-router/0.1"
	maxErrorBody    = 64 * 1024
)

// Endpoint describes the vendor-specific half of a JSON round trip.
type Endpoint struct {
	Provider string
	EnvKey   string
	URL      string
	Headers  map[string]string

	// ErrorMessage extracts the human-readable message from an error body.
	// When it returns "" the raw body is used.
	ErrorMessage func(body []byte) string
}

// DoJSON posts payload to the endpoint and decodes a 2xx body into target.
// Non-2xx statuses and transport failures come back as *VendorCallError and
// are logged before returning.
func DoJSON(ctx context.Context, client *http.Client, ep Endpoint, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		callErr := NewTransportError(ep.Provider, err)
		slog.Error("provider request failed", "provider", ep.Provider, "err", err)
		return callErr
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		callErr := parseErrorResponse(ep, resp)
		slog.Error("provider returned error",
			"provider", ep.Provider,
			"status", resp.StatusCode,
			"kind", callErr.Kind.String(),
			"message", callErr.Message,
		)
		return callErr
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s response: %w", ep.Provider, err)
	}
	return nil
}

func parseErrorResponse(ep Endpoint, resp *http.Response) *VendorCallError {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return NewVendorCallError(ep.Provider, ep.EnvKey, resp.StatusCode,
			fmt.Sprintf("failed to read error body: %v", err))
	}

	message := ""
	if ep.ErrorMessage != nil {
		message = ep.ErrorMessage(body)
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return NewVendorCallError(ep.Provider, ep.EnvKey, resp.StatusCode, message)
}
