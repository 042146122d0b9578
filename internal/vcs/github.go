package vcs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// GitHubClient lists the repositories of an organization.
type GitHubClient struct {
	http    *http.Client
	token   string
	baseURL string
}

func (c *GitHubClient) Platform() string { return "github" }

func (c *GitHubClient) base() string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return "https://api.github.com"
}

// Discover pages through /orgs/<org>/repos.
func (c *GitHubClient) Discover(ctx context.Context, org string) ([]RepoDescriptor, error) {
	var repos []RepoDescriptor
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/orgs/%s/repos?per_page=100&page=%d&type=all", c.base(), org, page)
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, &Error{Platform: "github", Target: org, Err: err}
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		var batch []struct {
			Name          string `json:"name"`
			FullName      string `json:"full_name"`
			CloneURL      string `json:"clone_url"`
			DefaultBranch string `json:"default_branch"`
			Archived      bool   `json:"archived"`
		}
		err = doJSON(ctx, c.http, req, func(resp *http.Response) error {
			return json.NewDecoder(resp.Body).Decode(&batch)
		})
		if err != nil {
			return nil, &Error{Platform: "github", Target: org, Err: err}
		}
		for _, r := range batch {
			if r.Archived {
				continue
			}
			repos = append(repos, RepoDescriptor{
				Name:          r.Name,
				FullName:      r.FullName,
				CloneURL:      r.CloneURL,
				DefaultBranch: r.DefaultBranch,
				Platform:      "github",
			})
		}
		if len(batch) < 100 {
			return repos, nil
		}
	}
}
