// Package config loads and validates the YAML configuration and resolves
// platform tokens. String values expand ${VAR}/$VAR references; unset
// variables pass through unchanged so the file stays inspectable.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/monphare/monphare/internal/analyzer"
)

// DefaultFileName is looked up in the working directory when no --config
// flag is given.
const DefaultFileName = "monphare.yaml"

// Scan options.
type Scan struct {
	ExcludePatterns []string `yaml:"exclude_patterns"`
	ContinueOnError bool     `yaml:"continue_on_error"`
	MaxDepth        int      `yaml:"max_depth"`
}

// Analysis toggles.
type Analysis struct {
	CheckExactVersions *bool `yaml:"check_exact_versions"`
	CheckPrerelease    *bool `yaml:"check_prerelease"`
	CheckUpperBound    *bool `yaml:"check_upper_bound"`
	MaxAgeMonths       int   `yaml:"max_age_months"`
}

// Output options.
type Output struct {
	Colored *bool `yaml:"colored"`
	Verbose bool  `yaml:"verbose"`
	Pretty  *bool `yaml:"pretty"`
}

// Git options, including per-platform tokens.
type Git struct {
	GitHubToken      string   `yaml:"github_token"`
	GitLabToken      string   `yaml:"gitlab_token"`
	AzureDevOpsToken string   `yaml:"azure_devops_token"`
	BitbucketToken   string   `yaml:"bitbucket_token"`
	Branch           string   `yaml:"branch"`
	IncludePatterns  []string `yaml:"include_patterns"`
	ExcludePatterns  []string `yaml:"exclude_patterns"`
}

// Cache options for the repository cache.
type Cache struct {
	Enabled               *bool  `yaml:"enabled"`
	Directory             string `yaml:"directory"`
	TTLHours              int    `yaml:"ttl_hours"`
	FreshThresholdMinutes int    `yaml:"fresh_threshold_minutes"`
	MaxSizeMB             int    `yaml:"max_size_mb"`
}

// Policies mirror analyzer.Policies in YAML form.
type Policies struct {
	RequireVersionConstraint *bool             `yaml:"require_version_constraint"`
	RequireUpperBound        bool              `yaml:"require_upper_bound"`
	AllowedProviders         []string          `yaml:"allowed_providers"`
	BlockedModules           []string          `yaml:"blocked_modules"`
	SeverityOverrides        map[string]string `yaml:"severity_overrides"`
}

// Config is the whole file.
type Config struct {
	Scan         Scan                  `yaml:"scan"`
	Analysis     Analysis              `yaml:"analysis"`
	Output       Output                `yaml:"output"`
	Git          Git                   `yaml:"git"`
	Cache        Cache                 `yaml:"cache"`
	Policies     Policies              `yaml:"policies"`
	Deprecations analyzer.Deprecations `yaml:"deprecations"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scan: Scan{
			ContinueOnError: true,
			MaxDepth:        100,
		},
		Cache: Cache{
			TTLHours:              24,
			FreshThresholdMinutes: 10,
			MaxSizeMB:             2048,
		},
	}
}

// Load reads, expands and validates a config file. A missing path with
// mustExist=false yields the defaults.
func Load(path string, mustExist bool) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Default(), nil
		}
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	expanded := ExpandEnv(string(raw))
	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnv substitutes ${VAR} and $VAR with the environment value. Unset
// variables keep the original reference text.
func ExpandEnv(s string) string {
	return envRefRe.ReplaceAllStringFunc(s, func(ref string) string {
		name := strings.Trim(ref, "${}")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return ref
	})
}

// Validate rejects unknown severities and override codes. It runs at load
// time so the analyzer never sees invalid tables.
func (c *Config) Validate() error {
	for code, sev := range c.Policies.SeverityOverrides {
		if !analyzer.KnownCode(analyzer.Code(code)) {
			return fmt.Errorf("severity_overrides: unknown finding code %q", code)
		}
		if !analyzer.Severity(sev).Valid() {
			return fmt.Errorf("severity_overrides[%s]: unknown severity %q", code, sev)
		}
	}

	check := func(section string, table map[string][]analyzer.Rule) error {
		for key, rules := range table {
			for i, rule := range rules {
				if rule.Constraint == "" && rule.GitRef == "" {
					return fmt.Errorf("deprecations.%s[%s][%d]: rule needs version or git_ref", section, key, i)
				}
				if rule.Severity != "" && !rule.Severity.Valid() {
					return fmt.Errorf("deprecations.%s[%s][%d]: unknown severity %q", section, key, i, rule.Severity)
				}
			}
		}
		return nil
	}
	if err := check("runtime", c.Deprecations.Runtime); err != nil {
		return err
	}
	if err := check("modules", c.Deprecations.Modules); err != nil {
		return err
	}
	if err := check("providers", c.Deprecations.Providers); err != nil {
		return err
	}

	if c.Scan.MaxDepth < 0 {
		return fmt.Errorf("scan.max_depth must not be negative")
	}
	return nil
}

// AnalyzerOptions converts the analysis section, defaulting each check on.
func (c *Config) AnalyzerOptions() analyzer.Options {
	opts := analyzer.DefaultOptions()
	if c.Analysis.CheckExactVersions != nil {
		opts.CheckExactVersions = *c.Analysis.CheckExactVersions
	}
	if c.Analysis.CheckPrerelease != nil {
		opts.CheckPrerelease = *c.Analysis.CheckPrerelease
	}
	if c.Analysis.CheckUpperBound != nil {
		opts.CheckUpperBound = *c.Analysis.CheckUpperBound
	}
	return opts
}

// AnalyzerPolicies converts the policies section.
func (c *Config) AnalyzerPolicies() analyzer.Policies {
	pol := analyzer.Policies{
		RequireVersionConstraint: true,
		RequireUpperBound:        c.Policies.RequireUpperBound,
		AllowedProviders:         c.Policies.AllowedProviders,
		BlockedModules:           c.Policies.BlockedModules,
	}
	if c.Policies.RequireVersionConstraint != nil {
		pol.RequireVersionConstraint = *c.Policies.RequireVersionConstraint
	}
	if len(c.Policies.SeverityOverrides) > 0 {
		pol.SeverityOverrides = make(map[analyzer.Code]analyzer.Severity, len(c.Policies.SeverityOverrides))
		for code, sev := range c.Policies.SeverityOverrides {
			pol.SeverityOverrides[analyzer.Code(code)] = analyzer.Severity(sev)
		}
	}
	return pol
}

// CacheEnabled defaults to true.
func (c *Config) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}

// Token resolution: platform env var, generic env var, then the config
// file. The CLI flag slots in between the generic var and the file; the
// caller passes it as flagToken.
func (c *Config) TokenFor(platform, flagToken string) string {
	platformVars := map[string]string{
		"github":    "MONPHARE_GITHUB_TOKEN",
		"gitlab":    "MONPHARE_GITLAB_TOKEN",
		"ado":       "MONPHARE_AZURE_DEVOPS_TOKEN",
		"bitbucket": "MONPHARE_BITBUCKET_TOKEN",
	}
	if v := os.Getenv(platformVars[platform]); v != "" {
		return v
	}
	if v := os.Getenv("MONPHARE_GIT_TOKEN"); v != "" {
		return v
	}
	if flagToken != "" {
		return flagToken
	}
	switch platform {
	case "github":
		return c.Git.GitHubToken
	case "gitlab":
		return c.Git.GitLabToken
	case "ado":
		return c.Git.AzureDevOpsToken
	case "bitbucket":
		return c.Git.BitbucketToken
	}
	return ""
}

// Starter is the annotated config written by "monphare init".
const Starter = `# monphare configuration

scan:
  exclude_patterns:
    - "**/examples/**"
    - "**/test/**"
  continue_on_error: true
  max_depth: 100

analysis:
  check_exact_versions: true
  check_prerelease: true
  check_upper_bound: true

output:
  colored: true
  verbose: false
  pretty: true

git:
  # github_token: ${GITHUB_TOKEN}
  branch: main

cache:
  enabled: true
  ttl_hours: 24
  fresh_threshold_minutes: 10
  max_size_mb: 2048

policies:
  require_version_constraint: true
  require_upper_bound: false
  allowed_providers: []
  blocked_modules: []
  severity_overrides: {}

deprecations:
  runtime:
    terraform:
      - version: "< 1.0.0"
        reason: "Terraform releases before 1.0 are unsupported"
        severity: error
        replacement: ">= 1.5.0"
  modules: {}
  providers: {}
`
