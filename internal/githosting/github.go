package githosting

import (
	"context"
	"fmt"
	"net/http"
)

// GitHub lists open pull requests via the github.com REST API.
type GitHub struct {
	client *http.Client
	token  string
}

// Matches implements Service.
func (g *GitHub) Matches(host string) bool {
	return host == "github.com"
}

// ListPullRequests implements Service.
func (g *GitHub) ListPullRequests(ctx context.Context, path, branch string) ([]PullRequest, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/pulls?state=open&per_page=100", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}

	var payload []struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
		State   string `json:"state"`
		Head    struct {
			Ref string `json:"ref"`
		} `json:"head"`
	}
	if err := decodeJSON(resp, &payload); err != nil {
		return nil, err
	}

	var requests []PullRequest
	for _, pr := range payload {
		if pr.Head.Ref != branch {
			continue
		}
		requests = append(requests, PullRequest{
			ID:    pr.Number,
			Title: pr.Title,
			URL:   pr.HTMLURL,
			State: pr.State,
		})
	}
	return requests, nil
}
