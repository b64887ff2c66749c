// Package crowd implements directory.Directory against the REST surface of
// a JIRA Server instance with an embedded Crowd directory. User management
// lives under /rest/usermanagement/1, the invoker identity comes from the
// JIRA /rest/api/2/myself resource.
package crowd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"identity-sweeper/internal/directory"
)

// lastLoginAttr is where the embedded Crowd directory records the most
// recent successful authentication, as epoch milliseconds.
const lastLoginAttr = "login.lastLoginMillis"

type Client struct {
	baseURL  string
	username string
	token    string
	http     *http.Client
	limiter  *rate.Limiter
	log      *slog.Logger
}

func NewClient(log *slog.Logger, baseURL, username, token string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		token:    token,
		http:     NewHTTPClient(),
		// pace backend calls; an admin sweep has no reason to hammer
		// the instance it is cleaning up
		limiter: rate.NewLimiter(rate.Limit(10), 5),
		log:     log,
	}
}

type searchResponse struct {
	Users []crowdUser `json:"users"`
}

// crowdUser is the usermanagement REST representation of a user entity.
// The full entity round-trips through DeactivateUser, so every field the
// PUT requires is carried.
type crowdUser struct {
	Name        string `json:"name"`
	FirstName   string `json:"first-name,omitempty"`
	LastName    string `json:"last-name,omitempty"`
	DisplayName string `json:"display-name,omitempty"`
	Email       string `json:"email,omitempty"`
	Active      bool   `json:"active"`
}

type attributesResponse struct {
	Attributes []struct {
		Name   string   `json:"name"`
		Values []string `json:"values"`
	} `json:"attributes"`
}

func (c *Client) ListActiveUsers(ctx context.Context) ([]directory.User, error) {
	q := url.Values{}
	q.Set("entity-type", "user")
	q.Set("expand", "user")
	q.Set("restriction", "active=true")

	var resp searchResponse
	if err := c.get(ctx, "/rest/usermanagement/1/search", q, &resp); err != nil {
		return nil, fmt.Errorf("failed to search active users: %w", err)
	}

	users := make([]directory.User, 0, len(resp.Users))
	for _, u := range resp.Users {
		if !u.Active {
			// the restriction should already exclude these
			continue
		}
		users = append(users, directory.User{
			Name:        u.Name,
			DisplayName: u.DisplayName,
			Email:       u.Email,
			Active:      true,
		})
	}
	return users, nil
}

func (c *Client) LastLogin(ctx context.Context, username string) (time.Time, bool, error) {
	q := url.Values{}
	q.Set("username", username)

	var resp attributesResponse
	if err := c.get(ctx, "/rest/usermanagement/1/user/attribute", q, &resp); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to fetch attributes for %s: %w", username, err)
	}

	for _, attr := range resp.Attributes {
		if attr.Name != lastLoginAttr || len(attr.Values) == 0 {
			continue
		}
		millis, err := strconv.ParseInt(strings.TrimSpace(attr.Values[0]), 10, 64)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("malformed %s value %q for %s", lastLoginAttr, attr.Values[0], username)
		}
		return time.UnixMilli(millis).UTC(), true, nil
	}

	// user exists but never authenticated
	return time.Time{}, false, nil
}

// DeactivateUser flips the active flag. The usermanagement PUT replaces the
// whole entity, so the current representation is fetched first.
func (c *Client) DeactivateUser(ctx context.Context, username string) error {
	q := url.Values{}
	q.Set("username", username)

	var u crowdUser
	if err := c.get(ctx, "/rest/usermanagement/1/user", q, &u); err != nil {
		return fmt.Errorf("failed to fetch user %s: %w", username, err)
	}

	u.Active = false

	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode user %s: %w", username, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/rest/usermanagement/1/user?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", username, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("deactivate %s: unexpected status %d: %s", username, resp.StatusCode, string(payload))
	}
	return nil
}

func (c *Client) CurrentUsername(ctx context.Context) (string, error) {
	var me struct {
		Name string `json:"name"`
	}
	if err := c.get(ctx, "/rest/api/2/myself", nil, &me); err != nil {
		return "", fmt.Errorf("failed to resolve invoker: %w", err)
	}
	if me.Name == "" {
		return "", fmt.Errorf("backend returned empty invoker username")
	}
	return me.Name, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(payload))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
