// Package gitx provides helpers for executing git commands and parsing
// their output. It shells out to the installed git binary.
package gitx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DetachedBranch is reported when HEAD does not point at a branch.
const DetachedBranch = "detached"

// Runner executes git commands in a given repo directory.
// This interface allows mocking in tests.
type Runner interface {
	// Run executes a git command in the given directory and returns its
	// trimmed stdout. Failures carry stderr in the error text.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// GitRunner is the default Runner implementation that shells out to git.
type GitRunner struct {
	// GitBin is the path to the git binary. Defaults to "git".
	GitBin string
}

// Run executes a git command. Credential prompts are disabled so that a
// missing credential fails fast instead of blocking the batch.
func (g *GitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.GitBin
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	if strings.TrimSpace(dir) != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
		}
		errText := strings.TrimSpace(stderr.String())
		if errText != "" {
			return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), errText, err)
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CurrentBranch returns the checked-out branch name, or DetachedBranch.
func CurrentBranch(ctx context.Context, r Runner, dir string) (string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		// An unborn branch has no commit to resolve but HEAD still names it.
		if name, symErr := r.Run(ctx, dir, "symbolic-ref", "-q", "--short", "HEAD"); symErr == nil && strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name), nil
		}
		return "", fmt.Errorf("current branch: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" || out == "HEAD" {
		return DetachedBranch, nil
	}
	return out, nil
}

// Upstream returns the upstream ref of the current branch, or "" when none
// is configured.
func Upstream(ctx context.Context, r Runner, dir string) string {
	out, err := r.Run(ctx, dir, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// AheadBehind counts commits on left not on right (ahead) and on right not
// on left (behind).
func AheadBehind(ctx context.Context, r Runner, dir, left, right string) (int, int, error) {
	out, err := r.Run(ctx, dir, "rev-list", "--left-right", "--count", left+"..."+right)
	if err != nil {
		return 0, 0, fmt.Errorf("rev-list %s...%s: %w", left, right, err)
	}
	ahead, behind, ok := ParseRevListCount(out)
	if !ok {
		return 0, 0, fmt.Errorf("rev-list %s...%s: unexpected output %q", left, right, out)
	}
	return ahead, behind, nil
}

// RemoteNames lists configured remotes.
func RemoteNames(ctx context.Context, r Runner, dir string) ([]string, error) {
	out, err := r.Run(ctx, dir, "remote")
	if err != nil {
		return nil, fmt.Errorf("git remote: %w", err)
	}
	return ParseLines(out), nil
}

// RemoteDefaultRef resolves the default branch ref of one remote. It prefers
// the remote HEAD symref and falls back to <remote>/main then <remote>/master.
func RemoteDefaultRef(ctx context.Context, r Runner, dir, remote string) string {
	out, err := r.Run(ctx, dir, "symbolic-ref", "-q", "--short", "refs/remotes/"+remote+"/HEAD")
	if err == nil && strings.TrimSpace(out) != "" {
		return strings.TrimSpace(out)
	}
	for _, branch := range []string{"main", "master"} {
		ref := remote + "/" + branch
		if RefExists(ctx, r, dir, ref) {
			return ref
		}
	}
	return ""
}

// DefaultRefs returns the default ref of every remote that has one, in
// remote listing order.
func DefaultRefs(ctx context.Context, r Runner, dir string) ([]string, error) {
	remotes, err := RemoteNames(ctx, r, dir)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, remote := range remotes {
		if ref := RemoteDefaultRef(ctx, r, dir, remote); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// PreferredDefaultRef picks the default ref of the primary remote.
func PreferredDefaultRef(refs []string) string {
	byRemote := make(map[string]string, len(refs))
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		remote, _, _ := strings.Cut(ref, "/")
		if _, seen := byRemote[remote]; seen {
			continue
		}
		byRemote[remote] = ref
		names = append(names, remote)
	}
	return byRemote[PrimaryRemote(names)]
}

// OriginURL returns the fetch URL of origin, or "" when there is no origin.
func OriginURL(ctx context.Context, r Runner, dir string) (string, error) {
	out, err := r.Run(ctx, dir, "remote", "get-url", "origin")
	if err != nil {
		if ClassifyError(err) == "missing_remote" {
			return "", nil
		}
		return "", fmt.Errorf("origin url: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// GitDir returns the absolute git directory of the working tree at dir.
func GitDir(ctx context.Context, r Runner, dir string) (string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--git-dir")
	if err != nil {
		return "", fmt.Errorf("git dir: %w", err)
	}
	gitDir := strings.TrimSpace(out)
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(dir, gitDir)
	}
	return filepath.Clean(gitDir), nil
}

// inProgressMarkers are git-dir entries that exist only while an operation
// is unfinished.
var inProgressMarkers = []string{
	"MERGE_HEAD",
	"REBASE_HEAD",
	"CHERRY_PICK_HEAD",
	"REVERT_HEAD",
	"BISECT_LOG",
	"rebase-merge",
	"rebase-apply",
}

// InProgressOperation returns the first in-progress marker found in gitDir,
// or "" when none exists.
func InProgressOperation(gitDir string) string {
	for _, marker := range inProgressMarkers {
		if _, err := os.Stat(filepath.Join(gitDir, marker)); err == nil {
			return marker
		}
	}
	return ""
}

// IsClean reports whether no merge, rebase, cherry-pick, revert or bisect is
// in progress. Uncommitted changes do not make a repo unclean.
func IsClean(ctx context.Context, r Runner, dir string) (bool, error) {
	gitDir, err := GitDir(ctx, r, dir)
	if err != nil {
		return false, err
	}
	return InProgressOperation(gitDir) == "", nil
}

// RefExists reports whether ref resolves to an object.
func RefExists(ctx context.Context, r Runner, dir, ref string) bool {
	_, err := r.Run(ctx, dir, "rev-parse", "--verify", "--quiet", ref)
	return err == nil
}

// LocalBranchExists reports whether refs/heads/<branch> exists.
func LocalBranchExists(ctx context.Context, r Runner, dir, branch string) bool {
	_, err := r.Run(ctx, dir, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// Fetch updates remote-tracking refs, pruning deleted branches.
func Fetch(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "fetch", "--prune")
	return err
}

// PullFastForward merges upstream only when it is a fast-forward.
func PullFastForward(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "pull", "--ff-only")
	return err
}

// Push pushes the current branch to its upstream. It never forces.
func Push(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "push")
	return err
}

// Checkout switches to an existing local branch.
func Checkout(ctx context.Context, r Runner, dir, branch string) error {
	_, err := r.Run(ctx, dir, "checkout", branch)
	return err
}

// CheckoutTracking creates branch tracking origin/<branch> and switches to it.
func CheckoutTracking(ctx context.Context, r Runner, dir, branch string) error {
	_, err := r.Run(ctx, dir, "checkout", "-b", branch, "--track", "origin/"+branch)
	return err
}

// Clone clones source into dest. The parent of dest must exist.
func Clone(ctx context.Context, r Runner, source, dest string) error {
	_, err := r.Run(ctx, filepath.Dir(dest), "clone", source, dest)
	return err
}
