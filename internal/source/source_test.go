package source

import (
	"testing"
)

func TestClassifyRegistry(t *testing.T) {
	s := Classify("terraform-aws-modules/vpc/aws")
	r, ok := s.(Registry)
	if !ok {
		t.Fatalf("got %T, want Registry", s)
	}
	if r.Namespace != "terraform-aws-modules" || r.Name != "vpc" || r.Provider != "aws" {
		t.Errorf("unexpected triplet: %+v", r)
	}
	if got := r.CanonicalID(); got != "terraform-aws-modules/vpc/aws" {
		t.Errorf("CanonicalID = %q", got)
	}
}

func TestClassifyRegistryWithHost(t *testing.T) {
	s := Classify("app.terraform.io/my-org/vpc/aws")
	r, ok := s.(Registry)
	if !ok {
		t.Fatalf("got %T, want Registry", s)
	}
	if r.Host != "app.terraform.io" {
		t.Errorf("Host = %q", r.Host)
	}
	if got := r.CanonicalID(); got != "app.terraform.io/my-org/vpc/aws" {
		t.Errorf("CanonicalID = %q", got)
	}
}

func TestClassifyGit(t *testing.T) {
	cases := []struct {
		raw       string
		wantURL   string
		wantRef   string
		wantSub   string
		canonical string
	}{
		{
			raw:       "git::https://github.com/example/module.git",
			wantURL:   "https://github.com/example/module.git",
			canonical: "github.com/example/module",
		},
		{
			raw:       "git::https://github.com/example/module.git?ref=v1.0.0",
			wantURL:   "https://github.com/example/module.git",
			wantRef:   "v1.0.0",
			canonical: "github.com/example/module",
		},
		{
			raw:       "git::https://github.com/example/module.git//modules/vpc",
			wantURL:   "https://github.com/example/module.git",
			wantSub:   "modules/vpc",
			canonical: "github.com/example/module//modules/vpc",
		},
		{
			raw:       "git@github.com:example/module.git?ref=v2.1.0",
			wantURL:   "git@github.com:example/module.git",
			wantRef:   "v2.1.0",
			canonical: "github.com/example/module",
		},
		{
			raw:       "github.com/example/terraform-module",
			wantURL:   "github.com/example/terraform-module",
			canonical: "github.com/example/terraform-module",
		},
		{
			raw:       "ssh://git@ssh.dev.azure.com/v3/org/Terraform/mod-network?ref=refs/tags/3.0.0",
			wantURL:   "ssh://git@ssh.dev.azure.com/v3/org/Terraform/mod-network",
			wantRef:   "refs/tags/3.0.0",
			canonical: "ssh.dev.azure.com/v3/org/Terraform/mod-network",
		},
	}
	for _, c := range cases {
		s := Classify(c.raw)
		g, ok := s.(Git)
		if !ok {
			t.Errorf("Classify(%q) = %T, want Git", c.raw, s)
			continue
		}
		if g.URL != c.wantURL {
			t.Errorf("Classify(%q).URL = %q, want %q", c.raw, g.URL, c.wantURL)
		}
		if g.Ref != c.wantRef {
			t.Errorf("Classify(%q).Ref = %q, want %q", c.raw, g.Ref, c.wantRef)
		}
		if g.Subdir != c.wantSub {
			t.Errorf("Classify(%q).Subdir = %q, want %q", c.raw, g.Subdir, c.wantSub)
		}
		if got := g.CanonicalID(); got != c.canonical {
			t.Errorf("Classify(%q).CanonicalID() = %q, want %q", c.raw, got, c.canonical)
		}
	}
}

func TestClassifyLocal(t *testing.T) {
	for _, raw := range []string{"./modules/vpc", "../modules/vpc", "/opt/tf/modules/vpc", "~/modules/vpc"} {
		s := Classify(raw)
		if _, ok := s.(Local); !ok {
			t.Errorf("Classify(%q) = %T, want Local", raw, s)
		}
	}
	l := Classify("../modules/vpc").(Local)
	if got := l.CanonicalID(); got != "local://../modules/vpc" {
		t.Errorf("CanonicalID = %q", got)
	}
}

func TestClassifyS3(t *testing.T) {
	for _, raw := range []string{
		"s3::https://s3-eu-west-1.amazonaws.com/bucket/vpc.zip",
		"s3://bucket/modules/vpc.zip",
	} {
		if _, ok := Classify(raw).(S3); !ok {
			t.Errorf("Classify(%q): want S3", raw)
		}
	}
}

func TestClassifyUnknown(t *testing.T) {
	for _, raw := range []string{"${var.module_source}", "not a source", "justoneword"} {
		if _, ok := Classify(raw).(Unknown); !ok {
			t.Errorf("Classify(%q): want Unknown", raw)
		}
	}
}

func TestGitIdentityIgnoresRefAndCase(t *testing.T) {
	a := Classify("git::https://GitHub.com/Example/Module.git?ref=v1").(Git)
	b := Classify("git::https://github.com/Example/Module.git?ref=v2").(Git)
	if a.CanonicalID() != b.CanonicalID() {
		t.Errorf("refs and host case must not change identity: %q vs %q", a.CanonicalID(), b.CanonicalID())
	}
}

func TestDeprecationKeys(t *testing.T) {
	r := Classify("terraform-aws-modules/vpc/aws")
	keys := DeprecationKeys(r)
	want := map[string]bool{
		"terraform-aws-modules/vpc/aws":                       true,
		"registry.terraform.io/terraform-aws-modules/vpc/aws": true,
	}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected key %q", k)
		}
	}

	g := Classify("git::https://github.com/example/module.git?ref=v1.0.0")
	gk := DeprecationKeys(g)
	found := false
	for _, k := range gk {
		if k == "github.com/example/module" {
			found = true
		}
	}
	if !found {
		t.Errorf("git keys missing normalized form: %v", gk)
	}
}
