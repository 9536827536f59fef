package gitrev

import (
	"context"
	"testing"
)

func TestNewDefaultsRemoteAndBranch(t *testing.T) {
	tr := New("/tmp/repo", "", "")
	if tr.Remote != "origin" {
		t.Errorf("expected default remote origin, got %q", tr.Remote)
	}
	if tr.Branch != "main" {
		t.Errorf("expected default branch main, got %q", tr.Branch)
	}
}

func TestNewKeepsExplicitRemoteAndBranch(t *testing.T) {
	tr := New("/tmp/repo", "upstream", "release")
	if tr.Remote != "upstream" || tr.Branch != "release" {
		t.Errorf("expected explicit remote/branch preserved, got %q/%q", tr.Remote, tr.Branch)
	}
}

func TestCheckStatusNotARepo(t *testing.T) {
	tr := New(t.TempDir(), "origin", "main")
	if _, err := tr.CheckStatus(context.Background()); err == nil {
		t.Fatal("expected an error against a non-git directory")
	}
}
