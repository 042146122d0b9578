package vcs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewClientPlatforms(t *testing.T) {
	for _, platform := range []string{"github", "gitlab", "ado", "bitbucket"} {
		c, err := NewClient(platform, "")
		if err != nil {
			t.Errorf("NewClient(%s): %v", platform, err)
			continue
		}
		if c.Platform() != platform {
			t.Errorf("Platform() = %s", c.Platform())
		}
	}
	if _, err := NewClient("sourcehut", ""); err == nil {
		t.Error("unknown platform must error")
	}
}

func TestGitHubDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orgs/acme/repos" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"name": "infra", "full_name": "acme/infra", "clone_url": "https://github.com/acme/infra.git", "default_branch": "main"},
			{"name": "old", "full_name": "acme/old", "clone_url": "https://github.com/acme/old.git", "default_branch": "main", "archived": true},
		})
	}))
	defer srv.Close()

	c := &GitHubClient{http: srv.Client(), token: "tok", baseURL: srv.URL}
	repos, err := c.Discover(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 1 || repos[0].Name != "infra" {
		t.Errorf("repos = %+v", repos)
	}
}

func TestGitHubDiscoverAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &GitHubClient{http: srv.Client(), baseURL: srv.URL}
	_, err := c.Discover(context.Background(), "acme")
	if err == nil {
		t.Fatal("expected auth error")
	}
	var vcsErr *Error
	if !errors.As(err, &vcsErr) {
		t.Errorf("error type = %T", err)
	}
}

func TestFilterRepos(t *testing.T) {
	repos := []RepoDescriptor{
		{Name: "terraform-core"},
		{Name: "terraform-modules"},
		{Name: "frontend"},
	}
	got := FilterRepos(repos, []string{"terraform-*"}, []string{"*-modules"})
	if len(got) != 1 || got[0].Name != "terraform-core" {
		t.Errorf("filtered = %+v", got)
	}
	got = FilterRepos(repos, nil, nil)
	if len(got) != 3 {
		t.Errorf("no patterns must keep all, got %d", len(got))
	}
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(CacheOptions{
		Directory:             t.TempDir(),
		TTLHours:              1,
		FreshThresholdMinutes: 10,
		MaxSizeMB:             1,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCacheStateTransitions(t *testing.T) {
	c := newTestCache(t)
	url := "https://github.com/acme/infra.git"

	if got := c.State(url); got != CacheMiss {
		t.Errorf("state = %v, want miss", got)
	}

	if err := os.MkdirAll(c.EntryPath(url), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := c.Touch(url); err != nil {
		t.Fatal(err)
	}
	if got := c.State(url); got != CacheFresh {
		t.Errorf("state = %v, want fresh", got)
	}

	// Age the stamp past the fresh threshold but inside the TTL.
	old := time.Now().Add(-30 * time.Minute)
	if err := os.Chtimes(c.stampPath(url), old, old); err != nil {
		t.Fatal(err)
	}
	if got := c.State(url); got != CacheValid {
		t.Errorf("state = %v, want valid", got)
	}

	// Age it past the TTL.
	old = time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(c.stampPath(url), old, old); err != nil {
		t.Fatal(err)
	}
	if got := c.State(url); got != CacheStale {
		t.Errorf("state = %v, want stale", got)
	}
}

func TestCacheLockExcludes(t *testing.T) {
	c := newTestCache(t)
	c.lockAcquireTimeout = 300 * time.Millisecond
	url := "https://github.com/acme/infra.git"

	unlock, err := c.Lock(url)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Lock(url); err == nil {
		t.Error("second lock must time out while held")
	}
	unlock()
	unlock2, err := c.Lock(url)
	if err != nil {
		t.Errorf("lock after release: %v", err)
	} else {
		unlock2()
	}
}

func TestCacheEvictOldest(t *testing.T) {
	c := newTestCache(t)

	write := func(url string, size int, age time.Duration) {
		dir := c.EntryPath(url)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "blob"), make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := c.Touch(url); err != nil {
			t.Fatal(err)
		}
		stamp := time.Now().Add(-age)
		if err := os.Chtimes(c.stampPath(url), stamp, stamp); err != nil {
			t.Fatal(err)
		}
	}

	// Two entries over the 1 MB limit; the older one must go.
	write("https://example.com/old.git", 700*1024, time.Hour)
	write("https://example.com/new.git", 700*1024, time.Minute)

	if err := c.Evict(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(c.EntryPath("https://example.com/old.git")); !os.IsNotExist(err) {
		t.Error("oldest entry not evicted")
	}
	if _, err := os.Stat(c.EntryPath("https://example.com/new.git")); err != nil {
		t.Error("newest entry must survive")
	}
}

func TestGetterSource(t *testing.T) {
	src, err := getterSource("https://github.com/acme/infra.git", "main", "tok")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"git::", "depth=1", "ref=main", "oauth2:tok@"} {
		if !strings.Contains(src, want) {
			t.Errorf("source %q missing %q", src, want)
		}
	}

	src, err = getterSource("ssh://git@github.com/acme/infra.git", "", "tok")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(src, "oauth2") {
		t.Error("token must not be injected into ssh URLs")
	}
}

