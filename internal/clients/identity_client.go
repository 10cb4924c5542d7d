// internal/clients/identity_client.go
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"anybook/internal/identity"
)

// IdentityClient talks to the identity service over HTTP.
type IdentityClient struct {
	baseURL string
	client  *http.Client
}

func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{baseURL: baseURL, client: http.DefaultClient}
}

// GetProfile fetches one profile by internal id.
func (c *IdentityClient) GetProfile(ctx context.Context, id uuid.UUID) (*identity.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/profiles/%s", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, identity.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var profile identity.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// MemberExists is the identity slice the circulation service consumes.
func (c *IdentityClient) MemberExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := c.GetProfile(ctx, id)
	if err == identity.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
