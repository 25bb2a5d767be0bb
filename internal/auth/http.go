package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"launcher-core/internal/launcher"
)

// HTTPVerifier delegates credential checks to an external endpoint.
//
// The endpoint receives POST {"login": ..., "password": ...} and answers 200
// with {"name": ..., "uuid": ...} on success, or 401/403 when the credentials
// are rejected.
type HTTPVerifier struct {
	endpoint string
	client   *http.Client
}

var _ launcher.CredentialVerifier = (*HTTPVerifier)(nil)

// NewHTTPVerifier creates a verifier posting to endpoint.
func NewHTTPVerifier(endpoint string, timeout time.Duration) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPVerifier{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type verifyRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type verifyResponse struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, login, secret string) (*launcher.VerifiedIdentity, error) {
	body, err := json.Marshal(verifyRequest{Login: login, Password: secret})
	if err != nil {
		return nil, fmt.Errorf("encoding auth request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling auth endpoint: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return nil, launcher.ErrAuthenticationFailed
	default:
		return nil, fmt.Errorf("auth endpoint returned %s", resp.Status)
	}

	var out verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding auth response: %w", err)
	}
	if out.Name == "" {
		out.Name = login
	}
	return &launcher.VerifiedIdentity{Name: out.Name, UUID: out.UUID}, nil
}
