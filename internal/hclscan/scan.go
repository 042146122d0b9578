package hclscan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// skipDirs are directory names never descended into.
var skipDirs = map[string]bool{
	".terraform":        true,
	".terragrunt-cache": true,
	".git":              true,
}

// scanExtensions are the file suffixes the scanner visits.
var scanExtensions = []string{".tf", ".tf.json", ".tofu", ".tofu.json"}

// Options configures a Scanner.
type Options struct {
	// ExcludePatterns are doublestar globs matched against the relative
	// path and the base name.
	ExcludePatterns []string
	// MaxDepth bounds directory recursion; 0 means unlimited.
	MaxDepth int
	// ContinueOnError turns per-file failures into parse issues instead of
	// aborting the walk.
	ContinueOnError bool
	// Workers sizes the per-file worker pool; 0 means GOMAXPROCS.
	Workers int
}

// Scanner extracts declarations from one working tree.
type Scanner struct {
	opts Options
}

// NewScanner creates a Scanner with the given options.
func NewScanner(opts Options) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Scanner{opts: opts}
}

// Scan walks root, extracts every visited file on the worker pool and
// returns the merged inventory in (path, line) order. repoLabel stamps the
// refs; when empty the root's basename is used.
func (s *Scanner) Scan(ctx context.Context, root, repoLabel string) (*Inventory, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s: not a directory", root)
	}
	if repoLabel == "" {
		repoLabel = filepath.Base(root)
	}

	files, err := s.collectFiles(root)
	if err != nil {
		return nil, err
	}

	results := make([]fileRefs, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, rel := range files {
		i, rel := i, rel
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				if s.opts.ContinueOnError {
					results[i] = fileRefs{issue: &ParseIssue{File: rel, Message: err.Error()}}
					return nil
				}
				return fmt.Errorf("read %s: %w", rel, err)
			}
			refs := extractFile(src, rel, repoLabel)
			if refs.issue != nil && !s.opts.ContinueOnError {
				return fmt.Errorf("parse %s: %s", refs.issue.File, refs.issue.Message)
			}
			results[i] = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	inv := &Inventory{Repository: repoLabel, Files: files}
	for _, r := range results {
		inv.Modules = append(inv.Modules, r.modules...)
		inv.Providers = append(inv.Providers, r.providers...)
		inv.Runtimes = append(inv.Runtimes, r.runtimes...)
		if r.issue != nil {
			inv.Issues = append(inv.Issues, *r.issue)
		}
	}
	sortInventory(inv)
	return inv, nil
}

// collectFiles walks the tree and returns relative slash paths of visitable
// files in lexicographic order.
func (s *Scanner) collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if s.opts.ContinueOnError {
				return nil
			}
			return err
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			name := d.Name()
			if skipDirs[name] || strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			if s.opts.MaxDepth > 0 && strings.Count(rel, "/")+1 >= s.opts.MaxDepth {
				return fs.SkipDir
			}
			if s.excluded(rel + "/") {
				return fs.SkipDir
			}
			return nil
		}

		if !hasScanExtension(d.Name()) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if s.excluded(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (s *Scanner) excluded(rel string) bool {
	rel = strings.TrimSuffix(rel, "/")
	base := rel
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		base = rel[i+1:]
	}
	for _, pattern := range s.opts.ExcludePatterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

func hasScanExtension(name string) bool {
	for _, ext := range scanExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// sortInventory fixes the deterministic (path, line) order the analyzer and
// reporters rely on.
func sortInventory(inv *Inventory) {
	sort.SliceStable(inv.Modules, func(i, j int) bool {
		if inv.Modules[i].File != inv.Modules[j].File {
			return inv.Modules[i].File < inv.Modules[j].File
		}
		return inv.Modules[i].Line < inv.Modules[j].Line
	})
	sort.SliceStable(inv.Providers, func(i, j int) bool {
		if inv.Providers[i].File != inv.Providers[j].File {
			return inv.Providers[i].File < inv.Providers[j].File
		}
		return inv.Providers[i].Line < inv.Providers[j].Line
	})
	sort.SliceStable(inv.Runtimes, func(i, j int) bool {
		if inv.Runtimes[i].File != inv.Runtimes[j].File {
			return inv.Runtimes[i].File < inv.Runtimes[j].File
		}
		return inv.Runtimes[i].Line < inv.Runtimes[j].Line
	})
	sort.SliceStable(inv.Issues, func(i, j int) bool {
		return inv.Issues[i].File < inv.Issues[j].File
	})
}
