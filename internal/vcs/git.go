package vcs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	getter "github.com/hashicorp/go-getter"
)

// Cloner materializes shallow working trees through the cache.
type Cloner struct {
	cache   *Cache
	timeout time.Duration
}

// NewCloner wires a Cloner to a cache. timeout bounds one clone or fetch;
// zero means DefaultTimeout.
func NewCloner(cache *Cache, timeout time.Duration) *Cloner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Cloner{cache: cache, timeout: timeout}
}

// CloneOrUpdate returns a working-tree root for the URL, fetching only when
// the cache entry is missing or stale. Fresh entries are returned without
// touching the network.
func (c *Cloner) CloneOrUpdate(ctx context.Context, repoURL, branch, token string) (string, error) {
	dest := c.cache.EntryPath(repoURL)

	switch c.cache.State(repoURL) {
	case CacheFresh, CacheValid:
		return dest, nil
	}

	unlock, err := c.cache.Lock(repoURL)
	if err != nil {
		return "", err
	}
	defer unlock()

	// Re-check after the lock: a concurrent scan may have fetched already.
	if state := c.cache.State(repoURL); state == CacheFresh || state == CacheValid {
		return dest, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	src, err := getterSource(repoURL, branch, token)
	if err != nil {
		return "", &Error{Platform: "git", Target: repoURL, Err: err}
	}

	// go-getter updates in place; a stale entry is replaced wholesale to
	// keep the tree consistent with the remote.
	if err := os.RemoveAll(dest); err != nil {
		return "", err
	}
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dest,
		Mode: getter.ClientModeDir,
	}
	if err := client.Get(); err != nil {
		return "", &Error{Platform: "git", Target: repoURL, Err: err}
	}

	if err := c.cache.Touch(repoURL); err != nil {
		return "", err
	}
	if err := c.cache.Evict(); err != nil {
		return "", err
	}
	return dest, nil
}

// getterSource builds the go-getter source string: forced git protocol,
// shallow clone, optional ref, token injected as URL credentials.
func getterSource(repoURL, branch, token string) (string, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("bad repository url: %w", err)
	}
	if token != "" && (u.Scheme == "https" || u.Scheme == "http") {
		u.User = url.UserPassword("oauth2", token)
	}

	q := u.Query()
	q.Set("depth", "1")
	if branch != "" {
		q.Set("ref", branch)
	}
	u.RawQuery = q.Encode()
	return "git::" + u.String(), nil
}
