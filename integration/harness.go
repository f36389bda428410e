//go:build integration

// Package integration exercises the full reconciliation path: real HTTP
// clients and the engine running against in-process fakes of the Zendesk and
// Quay APIs.
package integration

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opsglue/permsync/internal/config"
)

// fakeOrg is one directory record served by the fake Zendesk API
type fakeOrg struct {
	ID     int64
	Name   string
	Tags   []string
	TeamID any // placed verbatim into organization_fields
}

// fakeZendesk serves a cursor-paginated organization listing
type fakeZendesk struct {
	orgs     []fakeOrg
	pageSize int
	requests int
}

func (f *fakeZendesk) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.requests++
		if !strings.HasSuffix(r.URL.Path, "/api/v2/organizations.json") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		start := 0
		if cursor := r.URL.Query().Get("page[after]"); cursor != "" {
			var err error
			if start, err = parseCursor(cursor); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		end := start + f.pageSize
		if end > len(f.orgs) {
			end = len(f.orgs)
		}

		records := make([]map[string]any, 0, end-start)
		for _, org := range f.orgs[start:end] {
			fields := map[string]any{}
			if org.TeamID != nil {
				fields["quay_io_team_id"] = org.TeamID
			}
			records = append(records, map[string]any{
				"id":                  org.ID,
				"name":                org.Name,
				"tags":                org.Tags,
				"organization_fields": fields,
			})
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"organizations": records,
			"meta": map[string]any{
				"has_more":     end < len(f.orgs),
				"after_cursor": formatCursor(end),
			},
		})
	}
}

func parseCursor(s string) (int, error) {
	return strconv.Atoi(s)
}

func formatCursor(n int) string {
	return strconv.Itoa(n)
}

// fakeQuay serves the team permission listing and grant/revoke endpoints,
// keeping live state so successive runs observe earlier mutations.
type fakeQuay struct {
	mu sync.Mutex

	role      string
	perms     map[string]map[string]string // teamID -> repository -> role
	mutations int
}

func newFakeQuay(role string) *fakeQuay {
	return &fakeQuay{role: role, perms: make(map[string]map[string]string)}
}

func (f *fakeQuay) teamPerms(teamID string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := make(map[string]string, len(f.perms[teamID]))
	for repo, role := range f.perms[teamID] {
		snapshot[repo] = role
	}
	return snapshot
}

func (f *fakeQuay) seed(teamID string, repos ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.perms[teamID] == nil {
		f.perms[teamID] = make(map[string]string)
	}
	for _, repo := range repos {
		f.perms[teamID][repo] = f.role
	}
}

func (f *fakeQuay) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		// organization/{org}/team/{team}/permissions
		case r.Method == http.MethodGet && len(parts) == 5 && parts[0] == "organization" && parts[4] == "permissions":
			f.servePermissions(w, parts[3])

		// repository/{org}/{repo}/permissions/team/{team}
		case len(parts) == 6 && parts[0] == "repository" && parts[3] == "permissions" && parts[4] == "team":
			f.serveMutation(w, r.Method, parts[5], parts[2])

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (f *fakeQuay) servePermissions(w http.ResponseWriter, teamID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repos, ok := f.perms[teamID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	entries := make([]map[string]any, 0, len(repos))
	for name, role := range repos {
		entries = append(entries, map[string]any{
			"role":       role,
			"repository": map[string]any{"name": name},
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"permissions": entries})
}

func (f *fakeQuay) serveMutation(w http.ResponseWriter, method, teamID, repo string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++

	switch method {
	case http.MethodPut:
		if f.perms[teamID] == nil {
			f.perms[teamID] = make(map[string]string)
		}
		f.perms[teamID][repo] = f.role
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		if _, ok := f.perms[teamID][repo]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.perms[teamID], repo)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// testConfig wires a config at the two fake servers
func testConfig(t *testing.T, zendeskURL, quayURL string) (*config.Config, *config.Credentials) {
	t.Helper()

	cfg := config.Default()
	cfg.Zendesk.BaseURL = zendeskURL
	cfg.Zendesk.PageSize = 2 // force pagination
	cfg.Registry.BaseURL = quayURL
	cfg.Registry.Organization = "acme"
	cfg.Retry.Attempts = 2
	cfg.Retry.Backoff = config.Duration(time.Millisecond)

	creds := &config.Credentials{
		ZendeskEmail:     "ops@example.com",
		ZendeskToken:     "ztok",
		ZendeskSubdomain: "example",
		QuayToken:        "qtok",
	}
	return cfg, creds
}

func startServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
