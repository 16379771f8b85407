package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
)

const maxResponseBytes = 32 << 20

// doRequest sends req and returns the body of a 2xx response. Anything else is a provider error.
func doRequest(client *http.Client, req *http.Request, op string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.Provider(op, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.Provider(op, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.Provider(op, fmt.Sprintf("status=%d body=%s", resp.StatusCode, truncate(body, 512)), nil)
	}
	return body, nil
}

func newJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// decodeJSON fills out and also returns the body as a generic map for the audit trail.
func decodeJSON(body []byte, out any, op string) (map[string]any, error) {
	if err := json.Unmarshal(body, out); err != nil {
		return nil, apperrors.Provider(op, "unparseable response", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.Provider(op, "unparseable response", err)
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
