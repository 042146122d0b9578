package vcs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// GitLabClient lists the projects of a group, subgroups included.
type GitLabClient struct {
	http    *http.Client
	token   string
	baseURL string
}

func (c *GitLabClient) Platform() string { return "gitlab" }

func (c *GitLabClient) base() string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return "https://gitlab.com/api/v4"
}

// Discover pages through /groups/<group>/projects.
func (c *GitLabClient) Discover(ctx context.Context, group string) ([]RepoDescriptor, error) {
	var repos []RepoDescriptor
	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("%s/groups/%s/projects?include_subgroups=true&per_page=100&page=%d&archived=false",
			c.base(), url.PathEscape(group), page)
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, &Error{Platform: "gitlab", Target: group, Err: err}
		}
		if c.token != "" {
			req.Header.Set("PRIVATE-TOKEN", c.token)
		}

		var batch []struct {
			Path              string `json:"path"`
			PathWithNamespace string `json:"path_with_namespace"`
			HTTPURLToRepo     string `json:"http_url_to_repo"`
			DefaultBranch     string `json:"default_branch"`
		}
		err = doJSON(ctx, c.http, req, func(resp *http.Response) error {
			return json.NewDecoder(resp.Body).Decode(&batch)
		})
		if err != nil {
			return nil, &Error{Platform: "gitlab", Target: group, Err: err}
		}
		for _, r := range batch {
			repos = append(repos, RepoDescriptor{
				Name:          r.Path,
				FullName:      r.PathWithNamespace,
				CloneURL:      r.HTTPURLToRepo,
				DefaultBranch: r.DefaultBranch,
				Platform:      "gitlab",
			})
		}
		if len(batch) < 100 {
			return repos, nil
		}
	}
}
