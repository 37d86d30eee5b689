package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnauthorized is returned when the identity service rejects a token.
var ErrUnauthorized = errors.New("invalid token")

// ErrNotConfigured is returned when no identity service URL is set.
var ErrNotConfigured = errors.New("auth service not configured")

// Identity is the user record returned by the passkey service.
type Identity struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Verifier validates bearer tokens against the external passkey identity
// service. It keeps no session state of its own.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// PasskeyVerifier calls GET {base}/api/auth/me with the caller's token.
type PasskeyVerifier struct {
	BaseURL string
	Client  *http.Client
}

// NewPasskeyVerifier builds a verifier for the given service base URL.
func NewPasskeyVerifier(baseURL string) *PasskeyVerifier {
	return &PasskeyVerifier{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify checks the token with the identity service and returns the
// authenticated identity.
func (v *PasskeyVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if v.BaseURL == "" {
		return Identity{}, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.BaseURL+"/api/auth/me", nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.Client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, ErrUnauthorized
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if id.ID == "" {
		return Identity{}, ErrUnauthorized
	}
	return id, nil
}
