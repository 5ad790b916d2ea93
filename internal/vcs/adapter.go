// SPDX-License-Identifier: MIT

// Package vcs exposes the local git operations RepoFleet relies on behind a
// mockable interface.
package vcs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/skaphos/repofleet/internal/gitx"
	"github.com/skaphos/repofleet/internal/model"
)

// Adapter defines the local repository operations used by the planner and
// the applier.
type Adapter interface {
	Name() string
	// Inspect gathers the observed state of the working tree at path. A
	// non-nil error means the record is partial; it is still returned.
	Inspect(ctx context.Context, path string) (model.LocalRepoRecord, error)
	Fetch(ctx context.Context, dir string) error
	IsClean(ctx context.Context, dir string) (bool, error)
	OriginURL(ctx context.Context, dir string) (string, error)
	Pull(ctx context.Context, dir string) error
	Push(ctx context.Context, dir string) error
	Clone(ctx context.Context, source, dest string) error
	RemoteBranchExists(ctx context.Context, dir, branch string) bool
	LocalBranchExists(ctx context.Context, dir, branch string) bool
	Checkout(ctx context.Context, dir, branch string) error
	CheckoutTracking(ctx context.Context, dir, branch string) error
	NormalizeURL(rawURL string) string
}

// GitAdapter implements Adapter using the git CLI via gitx.
type GitAdapter struct {
	Runner gitx.Runner
}

func NewGitAdapter(runner gitx.Runner) *GitAdapter {
	if runner == nil {
		runner = &gitx.GitRunner{}
	}
	return &GitAdapter{Runner: runner}
}

func (g *GitAdapter) Name() string { return "git" }

// Inspect reads every field it can. A failing git call does not stop the
// others; the first error is returned with the partial record.
func (g *GitAdapter) Inspect(ctx context.Context, path string) (model.LocalRepoRecord, error) {
	rec := model.LocalRepoRecord{Name: filepath.Base(path), Path: path}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	branch, err := gitx.CurrentBranch(ctx, g.Runner, path)
	keep(err)
	if err == nil {
		rec.Branch = branch
		if upstream := gitx.Upstream(ctx, g.Runner, path); upstream != "" {
			rec.UpstreamRef = upstream
			ahead, behind, err := gitx.AheadBehind(ctx, g.Runner, path, "HEAD", upstream)
			if err == nil {
				rec.UpstreamAhead = &ahead
				rec.UpstreamBehind = &behind
			}
		}
	}

	refs, err := gitx.DefaultRefs(ctx, g.Runner, path)
	keep(err)
	rec.DefaultRefs = refs
	if ref := gitx.PreferredDefaultRef(refs); ref != "" && branch != "" {
		rec.DefaultRef = ref
		ahead, behind, err := gitx.AheadBehind(ctx, g.Runner, path, "HEAD", ref)
		if err == nil {
			rec.DefaultAhead = &ahead
			rec.DefaultBehind = &behind
		}
	}

	origin, err := gitx.OriginURL(ctx, g.Runner, path)
	keep(err)
	rec.OriginURL = origin

	clean, err := gitx.IsClean(ctx, g.Runner, path)
	if err != nil {
		keep(fmt.Errorf("inspect %s: %w", path, err))
	} else {
		rec.Clean = clean
	}
	return rec, firstErr
}

func (g *GitAdapter) Fetch(ctx context.Context, dir string) error {
	return gitx.Fetch(ctx, g.Runner, dir)
}

func (g *GitAdapter) IsClean(ctx context.Context, dir string) (bool, error) {
	return gitx.IsClean(ctx, g.Runner, dir)
}

func (g *GitAdapter) OriginURL(ctx context.Context, dir string) (string, error) {
	return gitx.OriginURL(ctx, g.Runner, dir)
}

func (g *GitAdapter) Pull(ctx context.Context, dir string) error {
	return gitx.PullFastForward(ctx, g.Runner, dir)
}

func (g *GitAdapter) Push(ctx context.Context, dir string) error {
	return gitx.Push(ctx, g.Runner, dir)
}

func (g *GitAdapter) Clone(ctx context.Context, source, dest string) error {
	return gitx.Clone(ctx, g.Runner, source, dest)
}

func (g *GitAdapter) RemoteBranchExists(ctx context.Context, dir, branch string) bool {
	return gitx.RefExists(ctx, g.Runner, dir, "origin/"+branch)
}

func (g *GitAdapter) LocalBranchExists(ctx context.Context, dir, branch string) bool {
	return gitx.LocalBranchExists(ctx, g.Runner, dir, branch)
}

func (g *GitAdapter) Checkout(ctx context.Context, dir, branch string) error {
	return gitx.Checkout(ctx, g.Runner, dir, branch)
}

func (g *GitAdapter) CheckoutTracking(ctx context.Context, dir, branch string) error {
	return gitx.CheckoutTracking(ctx, g.Runner, dir, branch)
}

func (g *GitAdapter) NormalizeURL(rawURL string) string {
	return gitx.NormalizeURL(rawURL)
}
