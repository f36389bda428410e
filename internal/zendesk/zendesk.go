// Package zendesk implements the organization directory client. It lists
// Zendesk organizations carrying the active-customer tag and extracts each
// organization's registry team identifier from a custom field.
package zendesk

import (
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
	// ErrAuthentication indicates the Zendesk API rejected the credentials.
	ErrAuthentication = errors.New("zendesk authentication failed")

	// ErrMalformedTeamID indicates an organization's team identifier custom
	// field is present but not a well-formed team code.
	ErrMalformedTeamID = errors.New("malformed team identifier")
)

// teamIDLength is the fixed length of registry team codes.
const teamIDLength = 10

// Client lists active customer organizations from the directory
type Client interface {
	// ListActiveOrganizations returns every organization carrying the
	// active-customer tag, following pagination until exhausted.
	ListActiveOrganizations(ctx context.Context) ([]Organization, error)
}

// Organization is a directory record relevant to permission reconciliation.
// TeamID is empty when the custom field is absent; TeamIDError is set when the
// field is present but unusable.
type Organization struct {
	ID          int64
	Name        string
	Tags        []string
	TeamID      string
	TeamIDError error
}

// HasTag reports whether the organization carries the given tag
func (o Organization) HasTag(tag string) bool {
	for _, t := range o.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ValidTeamID reports whether s is a well-formed team code: exactly ten
// alphanumeric characters.
func ValidTeamID(s string) bool {
	if len(s) != teamIDLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// HTTPClient implements Client against the Zendesk REST API
type HTTPClient struct {
	baseURL     string
	email       string
	token       string
	customerTag string
	teamIDField string
	pageSize    int
	retry       rest.RetryPolicy
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewHTTPClient creates a directory client from configuration and credentials
func NewHTTPClient(cfg *config.Config, creds *config.Credentials, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:     cfg.ZendeskBaseURL(creds.ZendeskSubdomain),
		email:       creds.ZendeskEmail,
		token:       creds.ZendeskToken,
		customerTag: cfg.Zendesk.CustomerTag,
		teamIDField: cfg.Zendesk.TeamIDField,
		pageSize:    cfg.Zendesk.PageSize,
		retry:       rest.RetryPolicy{Attempts: cfg.Retry.Attempts, Backoff: cfg.Retry.Backoff.Std()},
		httpClient:  &http.Client{Timeout: cfg.HTTP.Timeout.Std()},
		logger:      logger,
	}
}

// organizationRecord mirrors the wire format of a directory record
type organizationRecord struct {
	ID                 int64          `json:"id"`
	Name               string         `json:"name"`
	Tags               []string       `json:"tags"`
	OrganizationFields map[string]any `json:"organization_fields"`
}

// organizationsPage mirrors one page of the cursor-paginated listing
type organizationsPage struct {
	Organizations []organizationRecord `json:"organizations"`
	Meta          struct {
		HasMore     bool   `json:"has_more"`
		AfterCursor string `json:"after_cursor"`
	} `json:"meta"`
}

// ListActiveOrganizations pages through the directory and returns every
// organization carrying the active-customer tag.
func (c *HTTPClient) ListActiveOrganizations(ctx context.Context) ([]Organization, error) {
	var orgs []Organization
	cursor := ""

	for {
		var page *organizationsPage
		err := rest.Do(ctx, c.logger, c.retry, func(ctx context.Context) error {
			var fetchErr error
			page, fetchErr = c.fetchPage(ctx, cursor)
			return fetchErr
		})
		if err != nil {
			return nil, err
		}

		for _, record := range page.Organizations {
			org := c.toOrganization(record)
			if !org.HasTag(c.customerTag) {
				c.logger.Debug("skipping organization without customer tag", "org", org.Name)
				continue
			}
			orgs = append(orgs, org)
		}

		if !page.Meta.HasMore {
			break
		}
		cursor = page.Meta.AfterCursor
	}

	c.logger.Info("listed active organizations", "count", len(orgs))
	return orgs, nil
}

// fetchPage retrieves one page of the organization listing
func (c *HTTPClient) fetchPage(ctx context.Context, cursor string) (*organizationsPage, error) {
	params := url.Values{}
	params.Set("page[size]", fmt.Sprintf("%d", c.pageSize))
	if cursor != "" {
		params.Set("page[after]", cursor)
	}
	endpoint := fmt.Sprintf("%s/api/v2/organizations.json?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create organizations request: %w", err)
	}
	req.SetBasicAuth(c.email+"/token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, rest.NewAPIError(0, "organizations request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, rest.NewAPIError(resp.StatusCode, "organizations request rejected", ErrAuthentication)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, rest.NewAPIError(resp.StatusCode, fmt.Sprintf("organizations request failed: %s", strings.TrimSpace(string(body))), nil)
	}

	var page organizationsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode organizations response: %w", err)
	}

	return &page, nil
}

// toOrganization converts a wire record, validating the team identifier field
// at the client boundary so malformed payloads never propagate inward.
func (c *HTTPClient) toOrganization(record organizationRecord) Organization {
	org := Organization{
		ID:   record.ID,
		Name: record.Name,
		Tags: record.Tags,
	}

	raw, ok := record.OrganizationFields[c.teamIDField]
	if !ok || raw == nil {
		return org
	}

	value, ok := raw.(string)
	if !ok {
		org.TeamIDError = fmt.Errorf("%w: field %q is not a string", ErrMalformedTeamID, c.teamIDField)
		return org
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return org
	}
	if !ValidTeamID(value) {
		org.TeamIDError = fmt.Errorf("%w: %q", ErrMalformedTeamID, value)
		return org
	}

	org.TeamID = value
	return org
}
