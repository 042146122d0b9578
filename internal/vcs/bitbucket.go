package vcs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// BitbucketClient lists the repositories of a workspace.
type BitbucketClient struct {
	http    *http.Client
	token   string
	baseURL string
}

func (c *BitbucketClient) Platform() string { return "bitbucket" }

func (c *BitbucketClient) base() string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return "https://api.bitbucket.org/2.0"
}

// Discover follows the paginated /repositories/<workspace> listing.
func (c *BitbucketClient) Discover(ctx context.Context, workspace string) ([]RepoDescriptor, error) {
	var repos []RepoDescriptor
	next := fmt.Sprintf("%s/repositories/%s?pagelen=100", c.base(), workspace)
	for next != "" {
		req, err := http.NewRequest(http.MethodGet, next, nil)
		if err != nil {
			return nil, &Error{Platform: "bitbucket", Target: workspace, Err: err}
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		var doc struct {
			Values []struct {
				Name       string `json:"name"`
				FullName   string `json:"full_name"`
				MainBranch struct {
					Name string `json:"name"`
				} `json:"mainbranch"`
				Links struct {
					Clone []struct {
						Name string `json:"name"`
						Href string `json:"href"`
					} `json:"clone"`
				} `json:"links"`
			} `json:"values"`
			Next string `json:"next"`
		}
		err = doJSON(ctx, c.http, req, func(resp *http.Response) error {
			return json.NewDecoder(resp.Body).Decode(&doc)
		})
		if err != nil {
			return nil, &Error{Platform: "bitbucket", Target: workspace, Err: err}
		}

		for _, r := range doc.Values {
			cloneURL := ""
			for _, link := range r.Links.Clone {
				if link.Name == "https" {
					cloneURL = link.Href
				}
			}
			repos = append(repos, RepoDescriptor{
				Name:          r.Name,
				FullName:      r.FullName,
				CloneURL:      cloneURL,
				DefaultBranch: r.MainBranch.Name,
				Platform:      "bitbucket",
			})
		}
		next = doc.Next
	}
	return repos, nil
}
