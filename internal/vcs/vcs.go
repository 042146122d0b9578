// Package vcs discovers repositories on the supported hosting platforms and
// materializes working trees through the repository cache. Discovery is a
// thin REST listing; cloning is delegated to go-getter with depth=1.
package vcs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	cleanhttp "github.com/hashicorp/go-cleanhttp"
)

// DefaultTimeout bounds one VCS operation per repository.
const DefaultTimeout = 2 * time.Minute

// RepoDescriptor identifies one remote repository.
type RepoDescriptor struct {
	Name          string
	FullName      string
	CloneURL      string
	DefaultBranch string
	Platform      string
}

// Client lists repositories of one org/group/workspace.
type Client interface {
	Platform() string
	Discover(ctx context.Context, target string) ([]RepoDescriptor, error)
}

// Error is a typed VCS failure; under continue_on_error it degrades to a
// scan warning instead of aborting.
type Error struct {
	Platform string
	Target   string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewClient builds the client for a platform name.
func NewClient(platform, token string) (Client, error) {
	httpClient := cleanhttp.DefaultPooledClient()
	switch platform {
	case "github":
		return &GitHubClient{http: httpClient, token: token}, nil
	case "gitlab":
		return &GitLabClient{http: httpClient, token: token}, nil
	case "ado":
		return &AzureDevOpsClient{http: httpClient, token: token}, nil
	case "bitbucket":
		return &BitbucketClient{http: httpClient, token: token}, nil
	default:
		return nil, &Error{Platform: platform, Err: fmt.Errorf("unknown platform")}
	}
}

// FilterRepos applies include then exclude glob patterns to repository
// names. Empty include means everything.
func FilterRepos(repos []RepoDescriptor, include, exclude []string) []RepoDescriptor {
	match := func(patterns []string, name string) bool {
		for _, p := range patterns {
			if ok, err := doublestar.Match(p, name); err == nil && ok {
				return true
			}
		}
		return false
	}

	var out []RepoDescriptor
	for _, r := range repos {
		if len(include) > 0 && !match(include, r.Name) {
			continue
		}
		if match(exclude, r.Name) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func doJSON(ctx context.Context, client *http.Client, req *http.Request, decode func(*http.Response) error) error {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("authentication failed (%s)", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return decode(resp)
}
