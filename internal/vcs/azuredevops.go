package vcs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// AzureDevOpsClient lists the repositories of an org or org/project target.
type AzureDevOpsClient struct {
	http    *http.Client
	token   string
	baseURL string
}

func (c *AzureDevOpsClient) Platform() string { return "ado" }

func (c *AzureDevOpsClient) base() string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return "https://dev.azure.com"
}

// Discover accepts "org/project" or bare "org"; the latter enumerates every
// project first.
func (c *AzureDevOpsClient) Discover(ctx context.Context, target string) ([]RepoDescriptor, error) {
	org, project, hasProject := strings.Cut(target, "/")

	projects := []string{project}
	if !hasProject {
		var err error
		projects, err = c.listProjects(ctx, org)
		if err != nil {
			return nil, err
		}
	}

	var repos []RepoDescriptor
	for _, proj := range projects {
		batch, err := c.listRepos(ctx, org, proj)
		if err != nil {
			return nil, err
		}
		repos = append(repos, batch...)
	}
	return repos, nil
}

func (c *AzureDevOpsClient) listProjects(ctx context.Context, org string) ([]string, error) {
	url := fmt.Sprintf("%s/%s/_apis/projects?api-version=7.0", c.base(), org)
	var doc struct {
		Value []struct {
			Name string `json:"name"`
		} `json:"value"`
	}
	if err := c.get(ctx, org, url, &doc); err != nil {
		return nil, err
	}
	names := make([]string, len(doc.Value))
	for i, p := range doc.Value {
		names[i] = p.Name
	}
	return names, nil
}

func (c *AzureDevOpsClient) listRepos(ctx context.Context, org, project string) ([]RepoDescriptor, error) {
	url := fmt.Sprintf("%s/%s/%s/_apis/git/repositories?api-version=7.0", c.base(), org, project)
	var doc struct {
		Value []struct {
			Name          string `json:"name"`
			RemoteURL     string `json:"remoteUrl"`
			DefaultBranch string `json:"defaultBranch"`
			IsDisabled    bool   `json:"isDisabled"`
		} `json:"value"`
	}
	if err := c.get(ctx, org+"/"+project, url, &doc); err != nil {
		return nil, err
	}

	var repos []RepoDescriptor
	for _, r := range doc.Value {
		if r.IsDisabled {
			continue
		}
		repos = append(repos, RepoDescriptor{
			Name:          r.Name,
			FullName:      org + "/" + project + "/" + r.Name,
			CloneURL:      r.RemoteURL,
			DefaultBranch: strings.TrimPrefix(r.DefaultBranch, "refs/heads/"),
			Platform:      "ado",
		})
	}
	return repos, nil
}

func (c *AzureDevOpsClient) get(ctx context.Context, target, url string, out any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return &Error{Platform: "ado", Target: target, Err: err}
	}
	if c.token != "" {
		// PAT auth: basic with empty user.
		cred := base64.StdEncoding.EncodeToString([]byte(":" + c.token))
		req.Header.Set("Authorization", "Basic "+cred)
	}
	err = doJSON(ctx, c.http, req, func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(out)
	})
	if err != nil {
		return &Error{Platform: "ado", Target: target, Err: err}
	}
	return nil
}
