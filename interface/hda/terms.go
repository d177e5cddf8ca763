package hda

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Authenticate eagerly exchanges the credentials for a token.
// The other calls refresh the token on their own; calling Authenticate first
// only makes a credential problem surface before any job is submitted.
func (c *Client) Authenticate(ctx context.Context) error {
	if _, err := c.tokens.Get(ctx); err != nil {
		return fmt.Errorf("Authenticate: %w", err)
	}
	return nil
}

// AcceptTerms ensures the current user has accepted the licence attached to
// the dataset. Already-accepted and just-accepted are the same success: the
// call is idempotent and safe to run before every workflow.
func (c *Client) AcceptTerms(ctx context.Context, licence string) error {
	url := c.endpoint + "/termsaccepted/" + licence
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, strings.NewReader(`{"accepted":true}`))
	if err != nil {
		return fmt.Errorf("AcceptTerms.NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hclient.Do(req)
	if err != nil {
		return fmt.Errorf("AcceptTerms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("AcceptTerms[%s]: %s: %s", licence, resp.Status, body)
	}
	return nil
}
