// Package invite grants a buyer access to the purchased resource by adding
// them as a read-only collaborator on a GitHub repository.
package invite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the user or repository does not exist.
	ErrNotFound = errors.New("github user or repository not found")

	// ErrAlreadyInvited indicates the grant was rejected as a validation
	// conflict, typically because the user is already a collaborator or has
	// a pending invitation.
	ErrAlreadyInvited = errors.New("github invitation validation conflict")
)

// Inviter is the access-grant capability consumed by the reconciliation
// engine. Implementations must tolerate repeated grants for the same
// identity/resource pair.
type Inviter interface {
	Invite(ctx context.Context, username, owner, repo string) error
}

// GitHubInviter implements Inviter against the GitHub REST API.
type GitHubInviter struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewGitHubInviter constructs a client with sane defaults. baseURL may be
// empty for api.github.com.
func NewGitHubInviter(baseURL, token string) *GitHubInviter {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubInviter{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Invite adds username as a pull-permission collaborator on owner/repo.
func (c *GitHubInviter) Invite(ctx context.Context, username, owner, repo string) error {
	if c == nil {
		return fmt.Errorf("github inviter not configured")
	}
	if strings.TrimSpace(c.token) == "" {
		return fmt.Errorf("github token not configured")
	}
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("github username required")
	}
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(repo) == "" {
		return fmt.Errorf("repository owner and name required")
	}
	body, err := json.Marshal(map[string]string{"permission": "pull"})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/repos/%s/%s/collaborators/%s", c.baseURL, owner, repo, username)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("github invite request: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s/%s user %s", ErrNotFound, owner, repo, username)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrAlreadyInvited, apiMessage(resp.Body))
	default:
		return fmt.Errorf("github invite failed: status=%d %s", resp.StatusCode, apiMessage(resp.Body))
	}
}

func apiMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err != nil {
		return ""
	}
	return payload.Message
}
