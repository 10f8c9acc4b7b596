package githosting

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// GitLab lists open merge requests via the GitLab v4 REST API. It serves
// both gitlab.com and self-hosted instances.
type GitLab struct {
	client  *http.Client
	host    string
	baseURL string
	token   string
}

// Matches implements Service.
func (g *GitLab) Matches(host string) bool {
	return host == g.host
}

// ListPullRequests implements Service.
func (g *GitLab) ListPullRequests(ctx context.Context, path, branch string) ([]PullRequest, error) {
	endpoint := fmt.Sprintf("%s/api/v4/projects/%s/merge_requests?state=opened&source_branch=%s",
		g.baseURL, url.PathEscape(path), url.QueryEscape(branch))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if g.token != "" {
		req.Header.Set("PRIVATE-TOKEN", g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}

	var payload []struct {
		IID    int    `json:"iid"`
		Title  string `json:"title"`
		WebURL string `json:"web_url"`
		State  string `json:"state"`
	}
	if err := decodeJSON(resp, &payload); err != nil {
		return nil, err
	}

	var requests []PullRequest
	for _, mr := range payload {
		requests = append(requests, PullRequest{
			ID:    mr.IID,
			Title: mr.Title,
			URL:   mr.WebURL,
			State: mr.State,
		})
	}
	return requests, nil
}
