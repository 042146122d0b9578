package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/monphare/monphare/internal/analyzer"
	"github.com/monphare/monphare/internal/config"
	"github.com/monphare/monphare/internal/graph"
	"github.com/monphare/monphare/internal/hclscan"
	"github.com/monphare/monphare/internal/report"
	"github.com/monphare/monphare/internal/vcs"
)

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan local paths or remote repositories and report findings",
		ArgsUsage: "[paths...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "repo", Usage: "Git repository URL to clone and scan (repeatable)"},
			&cli.StringFlag{Name: "github", Usage: "GitHub organization to discover"},
			&cli.StringFlag{Name: "gitlab", Usage: "GitLab group to discover"},
			&cli.StringFlag{Name: "ado", Usage: "Azure DevOps org or org/project to discover"},
			&cli.StringFlag{Name: "bitbucket", Usage: "Bitbucket workspace to discover"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation prompt for discovered repositories"},
			&cli.StringFlag{Name: "format", Value: "text", Usage: "Report format: text, json or html"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the report to a file instead of stdout"},
			&cli.BoolFlag{Name: "strict", Usage: "Exit non-zero on warnings"},
			&cli.BoolFlag{Name: "continue-on-error", Usage: "Keep scanning when a file or repository fails"},
			&cli.IntFlag{Name: "max-depth", Usage: "Maximum directory depth"},
			&cli.StringSliceFlag{Name: "exclude", Usage: "Glob pattern to exclude (repeatable)"},
			&cli.StringFlag{Name: "branch", Usage: "Branch to check out for remote repositories"},
			&cli.StringFlag{Name: "git-token", Usage: "Token for the selected platform", EnvVars: []string{"MONPHARE_GIT_TOKEN"}},
		},
		Action: runScan,
	}
}

func runScan(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	applyScanFlags(c, cfg)

	paths := c.Args().Slice()
	repoURLs := c.StringSlice("repo")
	platform, target := orgTarget(c)

	if platform != "" && (len(paths) > 0 || len(repoURLs) > 0) {
		return cli.Exit("organization flags are mutually exclusive with paths and --repo", 1)
	}
	if n := countOrgFlags(c); n > 1 {
		return cli.Exit("only one of --github, --gitlab, --ado, --bitbucket may be given", 1)
	}
	if platform == "" && len(paths) == 0 && len(repoURLs) == 0 {
		paths = []string{"."}
	}

	roots, cleanupWarnings, err := resolveRoots(c.Context, c, cfg, paths, repoURLs, platform, target)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	scanner := hclscan.NewScanner(hclscan.Options{
		ExcludePatterns: cfg.Scan.ExcludePatterns,
		MaxDepth:        cfg.Scan.MaxDepth,
		ContinueOnError: cfg.Scan.ContinueOnError,
	})
	an := analyzer.NewAnalyzer(cfg.AnalyzerOptions(), cfg.AnalyzerPolicies(), cfg.Deprecations)

	var repoResults []report.RepoResult
	var inventories []*hclscan.Inventory
	for _, root := range roots {
		inv, err := scanner.Scan(c.Context, root.dir, root.label)
		if err != nil {
			if c.Context.Err() != nil {
				return cli.Exit("cancelled", 1)
			}
			if cfg.Scan.ContinueOnError {
				slog.Warn("repository scan failed", "repository", root.label, "error", err)
				continue
			}
			return cli.Exit(err.Error(), 1)
		}
		repoResults = append(repoResults, report.RepoResult{
			Label:     root.label,
			Inventory: inv,
			Findings:  an.Analyze(inv),
		})
		inventories = append(inventories, inv)
	}

	g := graph.NewBuilder().Build(inventories...)
	res := report.Assemble(repoResults, g, report.AssembleOptions{
		ToolVersion: version,
		Strict:      c.Bool("strict"),
		Now:         time.Now().UTC(),
	})
	for _, w := range cleanupWarnings {
		slog.Warn("vcs warning", "warning", w)
	}

	out, closeFn, err := openOutput(c.String("output"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer closeFn()

	if err := writeReport(out, res, c.String("format"), cfg); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if res.Status.ExitCode != 0 {
		return cli.Exit("", res.Status.ExitCode)
	}
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path != "" {
		return config.Load(path, true)
	}
	return config.Load(config.DefaultFileName, false)
}

func applyScanFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("continue-on-error") {
		cfg.Scan.ContinueOnError = c.Bool("continue-on-error")
	}
	if c.IsSet("max-depth") {
		cfg.Scan.MaxDepth = c.Int("max-depth")
	}
	cfg.Scan.ExcludePatterns = append(cfg.Scan.ExcludePatterns, c.StringSlice("exclude")...)
	if c.IsSet("branch") {
		cfg.Git.Branch = c.String("branch")
	}
}

func orgTarget(c *cli.Context) (platform, target string) {
	for _, p := range []string{"github", "gitlab", "ado", "bitbucket"} {
		if v := c.String(p); v != "" {
			return p, v
		}
	}
	return "", ""
}

func countOrgFlags(c *cli.Context) int {
	n := 0
	for _, p := range []string{"github", "gitlab", "ado", "bitbucket"} {
		if c.String(p) != "" {
			n++
		}
	}
	return n
}

// scanRoot pairs a working-tree directory with its report label.
type scanRoot struct {
	dir   string
	label string
}

// resolveRoots turns paths, --repo URLs or a discovery target into local
// working trees. Remote sources go through the cache; per-repo VCS failures
// degrade to warnings under continue_on_error.
func resolveRoots(ctx context.Context, c *cli.Context, cfg *config.Config, paths, repoURLs []string, platform, target string) ([]scanRoot, []string, error) {
	var roots []scanRoot
	var warnings []string

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, nil, err
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, nil, fmt.Errorf("path does not exist: %s", p)
		}
		roots = append(roots, scanRoot{dir: abs, label: filepath.Base(abs)})
	}

	if len(repoURLs) == 0 && platform == "" {
		return roots, nil, nil
	}

	cache, err := vcs.NewCache(vcs.CacheOptions{
		Directory:             cfg.Cache.Directory,
		TTLHours:              cfg.Cache.TTLHours,
		FreshThresholdMinutes: cfg.Cache.FreshThresholdMinutes,
		MaxSizeMB:             cfg.Cache.MaxSizeMB,
	})
	if err != nil {
		return nil, nil, err
	}
	cloner := vcs.NewCloner(cache, 0)

	clone := func(url, label string) error {
		dir, err := cloner.CloneOrUpdate(ctx, url, cfg.Git.Branch, cfg.TokenFor(platform, c.String("git-token")))
		if err != nil {
			if cfg.Scan.ContinueOnError {
				warnings = append(warnings, err.Error())
				return nil
			}
			return err
		}
		roots = append(roots, scanRoot{dir: dir, label: label})
		return nil
	}

	for _, url := range repoURLs {
		if err := clone(url, repoLabel(url)); err != nil {
			return nil, nil, err
		}
	}

	if platform != "" {
		client, err := vcs.NewClient(platform, cfg.TokenFor(platform, c.String("git-token")))
		if err != nil {
			return nil, nil, err
		}
		repos, err := client.Discover(ctx, target)
		if err != nil {
			return nil, nil, err
		}
		repos = vcs.FilterRepos(repos, cfg.Git.IncludePatterns, cfg.Git.ExcludePatterns)
		if len(repos) == 0 {
			return nil, nil, fmt.Errorf("no repositories found for %s %s", platform, target)
		}
		if !c.Bool("yes") && !confirm(fmt.Sprintf("Scan %d repositories from %s %s?", len(repos), platform, target)) {
			return nil, nil, fmt.Errorf("aborted")
		}
		for _, r := range repos {
			if err := clone(r.CloneURL, r.Name); err != nil {
				return nil, nil, err
			}
		}
	}

	if len(roots) == 0 && len(warnings) > 0 {
		return nil, nil, fmt.Errorf("all repositories failed: %s", strings.Join(warnings, "; "))
	}
	return roots, warnings, nil
}

func repoLabel(url string) string {
	label := strings.TrimSuffix(url, ".git")
	if i := strings.LastIndexAny(label, "/:"); i >= 0 {
		label = label[i+1:]
	}
	return label
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func writeReport(w io.Writer, res *report.ScanResult, format string, cfg *config.Config) error {
	switch format {
	case "text":
		return report.TextReporter{Verbose: cfg.Output.Verbose}.Write(w, res)
	case "json":
		pretty := cfg.Output.Pretty == nil || *cfg.Output.Pretty
		return report.JSONReporter{Pretty: pretty}.Write(w, res)
	case "html":
		return report.HTMLReporter{}.Write(w, res)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
