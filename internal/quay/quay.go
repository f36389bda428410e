// Package quay implements the registry permission client. It fetches a team's
// current repository permissions and grants or revokes individual entries via
// the Quay.io REST API.
package quay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/opsglue/permsync/internal/config"
	"github.com/opsglue/permsync/internal/rest"
)

var (
	// ErrTeamNotFound indicates the registry does not know the team identifier.
	ErrTeamNotFound = errors.New("team not found")

	// ErrPermissionDenied indicates the acting credential lacks rights over
	// the team or repository.
	ErrPermissionDenied = errors.New("permission denied")
)

// Client manages team repository permissions in the registry
type Client interface {
	// TeamPermissions returns the team's current permission entries as a
	// repository-name to role map.
	TeamPermissions(ctx context.Context, teamID string) (map[string]string, error)

	// SetPermission idempotently grants (grant=true) or revokes (grant=false)
	// the configured role on a single repository for the team.
	SetPermission(ctx context.Context, teamID, repository string, grant bool) error
}

// HTTPClient implements Client against the Quay.io REST API
type HTTPClient struct {
	baseURL      string
	token        string
	organization string
	role         string
	retry        rest.RetryPolicy
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewHTTPClient creates a registry client from configuration and credentials
func NewHTTPClient(cfg *config.Config, creds *config.Credentials, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:      strings.TrimRight(cfg.Registry.BaseURL, "/"),
		token:        creds.QuayToken,
		organization: cfg.Registry.Organization,
		role:         cfg.Registry.Role,
		retry:        rest.RetryPolicy{Attempts: cfg.Retry.Attempts, Backoff: cfg.Retry.Backoff.Std()},
		httpClient:   &http.Client{Timeout: cfg.HTTP.Timeout.Std()},
		logger:       logger,
	}
}

// permissionsResponse mirrors the team permission listing wire format
type permissionsResponse struct {
	Permissions []struct {
		Role       string `json:"role"`
		Repository struct {
			Name string `json:"name"`
		} `json:"repository"`
	} `json:"permissions"`
}

// TeamPermissions fetches the team's current repository permission entries
func (c *HTTPClient) TeamPermissions(ctx context.Context, teamID string) (map[string]string, error) {
	endpoint := fmt.Sprintf("%s/organization/%s/team/%s/permissions",
		c.baseURL, url.PathEscape(c.organization), url.PathEscape(teamID))

	var perms map[string]string
	err := rest.Do(ctx, c.logger, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create permissions request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return rest.NewAPIError(0, "permissions request failed", err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return rest.NewAPIError(resp.StatusCode, fmt.Sprintf("team %s", teamID), ErrTeamNotFound)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return rest.NewAPIError(resp.StatusCode, fmt.Sprintf("team %s", teamID), ErrPermissionDenied)
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(resp.Body)
			return rest.NewAPIError(resp.StatusCode, fmt.Sprintf("permissions request failed: %s", strings.TrimSpace(string(body))), nil)
		}

		var payload permissionsResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("failed to decode permissions response: %w", err)
		}

		perms = make(map[string]string, len(payload.Permissions))
		for _, entry := range payload.Permissions {
			if entry.Repository.Name == "" {
				continue
			}
			perms[entry.Repository.Name] = entry.Role
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return perms, nil
}

// SetPermission grants or revokes the team's permission on one repository.
// Granting an already-present permission and revoking an absent one both
// succeed; only the postcondition matters.
func (c *HTTPClient) SetPermission(ctx context.Context, teamID, repository string, grant bool) error {
	endpoint := fmt.Sprintf("%s/repository/%s/%s/permissions/team/%s",
		c.baseURL, url.PathEscape(c.organization), url.PathEscape(repository), url.PathEscape(teamID))

	return rest.Do(ctx, c.logger, c.retry, func(ctx context.Context) error {
		var req *http.Request
		var err error
		if grant {
			payload, marshalErr := json.Marshal(map[string]string{"role": c.role})
			if marshalErr != nil {
				return fmt.Errorf("failed to encode permission payload: %w", marshalErr)
			}
			req, err = http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
		} else {
			req, err = http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
		}
		if err != nil {
			return fmt.Errorf("failed to create permission request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return rest.NewAPIError(0, "permission request failed", err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		switch {
		case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
			return nil
		case resp.StatusCode == http.StatusNotFound && !grant:
			// Already absent; the desired postcondition holds.
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return rest.NewAPIError(resp.StatusCode, fmt.Sprintf("repository %s, team %s", repository, teamID), ErrPermissionDenied)
		default:
			body, _ := io.ReadAll(resp.Body)
			return rest.NewAPIError(resp.StatusCode, fmt.Sprintf("permission request failed: %s", strings.TrimSpace(string(body))), nil)
		}
	})
}

// setHeaders applies the bearer token and content headers
func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
