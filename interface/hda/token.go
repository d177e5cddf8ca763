package hda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/wekeo/hda-ingester/service"
)

// tokenSlack: the token is refreshed slightly before the declared expiry so
// that a request started near the boundary is never rejected.
const tokenSlack = 2 * time.Minute

// tokenManager exchanges the long-lived credentials for a short-lived bearer
// token (~1 hour) and refreshes it when it expires. It talks to the token
// endpoint with a plain http client: the bearer transport must not apply there.
type tokenManager struct {
	tokenEndpoint string
	username      string
	password      string
	hclient       *http.Client

	mu     sync.Mutex
	token  string
	expire time.Time
}

func newTokenManager(tokenEndpoint, username, password string) *tokenManager {
	return &tokenManager{
		tokenEndpoint: tokenEndpoint,
		username:      username,
		password:      password,
		hclient:       &http.Client{},
	}
}

// Get returns a valid token, authenticating again if the cached one expired
func (t *tokenManager) Get(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.expire.Add(-tokenSlack)) {
		return t.token, nil
	}

	token, validity, err := t.authenticate(ctx)
	if err != nil {
		return "", err
	}
	t.token = token
	t.expire = time.Now().Add(validity)
	return t.token, nil
}

func (t *tokenManager) authenticate(ctx context.Context) (string, time.Duration, error) {
	payload, err := json.Marshal(map[string]string{
		"username": t.username,
		"password": t.password,
	})
	if err != nil {
		return "", 0, fmt.Errorf("authenticate.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("authenticate.NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.hclient.Do(req)
	if err != nil {
		return "", 0, service.MakeTemporary(fmt.Errorf("authenticate: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := service.ErrAuth{StatusCode: resp.StatusCode, Reason: string(body)}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			// rejected credentials fail every later call: no point retrying
			return "", 0, service.MakeFatal(err)
		}
		return "", 0, err
	}

	token := struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", 0, service.ErrAuth{Reason: fmt.Sprintf("malformed token response: %v", err)}
	}
	if token.AccessToken == "" {
		return "", 0, service.ErrAuth{Reason: "token not found in response"}
	}

	validity := time.Duration(token.ExpiresIn) * time.Second
	if validity == 0 {
		validity = time.Hour
	}
	return token.AccessToken, validity, nil
}

// transportBearer injects the bearer token in every request of the client
type transportBearer struct {
	originalTransport http.RoundTripper
	tokens            *tokenManager
}

func (t *transportBearer) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.tokens.Get(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return t.originalTransport.RoundTrip(req)
}
