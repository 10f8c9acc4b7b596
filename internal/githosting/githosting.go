// Package githosting looks up open pull/merge requests for workspace project
// branches. Lookups are read-only, cached, and degrade to empty results on
// failure.
package githosting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/mufancom/remote-workspace/internal/config"
)

// PullRequest is one open pull or merge request targeting a project branch.
type PullRequest struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	State string `json:"state"`
}

// Service lists pull requests for one git hosting provider.
type Service interface {
	// Matches reports whether this service handles the given repository
	// host.
	Matches(host string) bool
	// ListPullRequests returns open requests whose source branch equals
	// branch for the repository at path ("org/repo").
	ListPullRequests(ctx context.Context, path, branch string) ([]PullRequest, error)
}

// cacheTTL bounds how stale the status view may be.
const cacheTTL = time.Minute

type cacheEntry struct {
	requests []PullRequest
	expires  time.Time
}

// Registry routes lookup requests to the configured services and caches
// results.
type Registry struct {
	services []Service

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewRegistry builds a registry from the configured git services. The public
// github.com and gitlab.com endpoints are always present as fallbacks.
func NewRegistry(configs []config.GitServiceConfig, client *http.Client) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	var services []Service
	hasGitHub, hasPublicGitLab := false, false

	for _, cfg := range configs {
		switch cfg.Type {
		case "github":
			services = append(services, &GitHub{client: client, token: cfg.AccessToken})
			hasGitHub = true
		case "gitlab":
			host := cfg.Host
			if host == "" {
				host = "gitlab.com"
			}
			url := cfg.URL
			if url == "" {
				url = "https://" + host
			}
			services = append(services, &GitLab{client: client, host: host, baseURL: url, token: cfg.AccessToken})
			if host == "gitlab.com" {
				hasPublicGitLab = true
			}
		}
	}

	if !hasGitHub {
		services = append(services, &GitHub{client: client})
	}
	if !hasPublicGitLab {
		services = append(services, &GitLab{client: client, host: "gitlab.com", baseURL: "https://gitlab.com"})
	}

	return &Registry{
		services: services,
		cache:    make(map[string]cacheEntry),
		now:      time.Now,
	}
}

// ListPullRequests resolves the hosting service for repoURL and returns the
// open requests for branch. Unknown hosts and empty branches yield an empty
// result, not an error.
func (r *Registry) ListPullRequests(ctx context.Context, repoURL, branch string) ([]PullRequest, error) {
	if branch == "" {
		return nil, nil
	}

	host, path, err := parseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	var service Service
	for _, candidate := range r.services {
		if candidate.Matches(host) {
			service = candidate
			break
		}
	}
	if service == nil {
		return nil, nil
	}

	key := host + "/" + path + "@" + branch

	r.mu.Lock()
	entry, ok := r.cache[key]
	if ok && r.now().Before(entry.expires) {
		r.mu.Unlock()
		return entry.requests, nil
	}
	r.mu.Unlock()

	requests, err := service.ListPullRequests(ctx, path, branch)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{requests: requests, expires: r.now().Add(cacheTTL)}
	r.mu.Unlock()

	return requests, nil
}

// parseRepoURL extracts host and "org/repo" path from any git URL form.
func parseRepoURL(repoURL string) (host, path string, err error) {
	endpoint, err := transport.NewEndpoint(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse repository url: %w", err)
	}

	path = strings.TrimPrefix(endpoint.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	return endpoint.Host, path, nil
}

// decodeJSON reads and decodes a response body, surfacing non-2xx statuses.
func decodeJSON(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
