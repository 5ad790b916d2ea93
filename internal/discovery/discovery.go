// Package discovery walks a workspace root to find git working trees.
package discovery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxDepth bounds the walk when no depth is configured.
const DefaultMaxDepth = 6

// Result represents a discovered git working tree.
type Result struct {
	Path   string // absolute path to the working tree root
	Name   string // directory basename
	GitDir string // resolved git directory
	Linked bool   // true when .git is a gitdir: file
}

// Options configures the discovery scan.
type Options struct {
	Roots []string
	// MaxDepth stops descending below this many levels under a root.
	// Zero or negative means unlimited.
	MaxDepth       int
	IncludeHidden  bool
	Exclude        []string // glob patterns to skip
	FollowSymlinks bool
}

// Scan walks all roots and returns discovered working trees sorted by
// lowercase name, then path. It does not descend into a repository once
// found, so nested repositories and submodules are never reported.
func Scan(ctx context.Context, opts Options) ([]Result, error) {
	visited := make(map[string]struct{})
	seen := make(map[string]struct{})
	var results []Result

	for _, root := range opts.Roots {
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		if err := walkRoot(ctx, absRoot, 0, opts, visited, seen, &results); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		li, lj := strings.ToLower(results[i].Name), strings.ToLower(results[j].Name)
		if li != lj {
			return li < lj
		}
		return strings.ToLower(results[i].Path) < strings.ToLower(results[j].Path)
	})
	return results, nil
}

// MatchesExclude checks whether a path matches any of the given exclude
// glob patterns.
func MatchesExclude(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	slashPath := filepath.ToSlash(path)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		match, err := doublestar.Match(pattern, slashPath)
		if err != nil {
			continue
		}
		if match {
			return true
		}
	}
	return false
}

// Depth returns how many directory levels path sits below root.
func Depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(filepath.ToSlash(rel), "/") + 1
}

func walkRoot(ctx context.Context, root string, baseDepth int, opts Options, visited, seen map[string]struct{}, results *[]Result) error {
	realRoot := root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		realRoot = resolved
	}
	if _, ok := visited[realRoot]; ok {
		return nil
	}
	visited[realRoot] = struct{}{}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subdirectories are skipped rather than failing the scan.
			return nil
		}

		depth := baseDepth + Depth(root, path)
		isSymlink := d.Type()&os.ModeSymlink != 0
		if !d.IsDir() && !isSymlink {
			return nil
		}

		if path != root {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			if !opts.IncludeHidden && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if MatchesExclude(path, opts.Exclude) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
		}

		if isSymlink {
			if !opts.FollowSymlinks {
				return nil
			}
			target, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			info, err := os.Stat(target)
			if err != nil || !info.IsDir() {
				return nil
			}
			if opts.MaxDepth > 0 && depth > opts.MaxDepth {
				return nil
			}
			if res, ok := DetectRepo(target); ok {
				res.Path = path
				res.Name = filepath.Base(path)
				appendUnique(results, seen, res)
				return nil
			}
			if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
				return nil
			}
			return walkRoot(ctx, target, depth, opts, visited, seen, results)
		}

		if res, ok := DetectRepo(path); ok {
			appendUnique(results, seen, res)
			return fs.SkipDir
		}

		if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
			return fs.SkipDir
		}
		return nil
	})
}

func appendUnique(results *[]Result, seen map[string]struct{}, res Result) {
	if _, ok := seen[res.Path]; ok {
		return
	}
	seen[res.Path] = struct{}{}
	*results = append(*results, res)
}

// DetectRepo reports whether dir is the root of a git working tree. A .git
// directory qualifies, as does a .git file whose gitdir: line points outside
// a parent repository's modules directory.
func DetectRepo(dir string) (Result, bool) {
	gitPath := filepath.Join(dir, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return Result{}, false
	}
	res := Result{Path: dir, Name: filepath.Base(dir)}
	if info.IsDir() {
		res.GitDir = gitPath
		return res, true
	}
	if !info.Mode().IsRegular() {
		return Result{}, false
	}
	gitdir, ok := gitdirFromFile(gitPath)
	if !ok {
		return Result{}, false
	}
	if strings.Contains(filepath.ToSlash(gitdir), ".git/modules/") {
		return Result{}, false
	}
	res.GitDir = gitdir
	res.Linked = true
	return res, true
}

func gitdirFromFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	first = strings.TrimSpace(first)
	if !strings.HasPrefix(strings.ToLower(first), "gitdir:") {
		return "", false
	}
	raw := strings.TrimSpace(first[len("gitdir:"):])
	if raw == "" {
		return "", false
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw), true
	}
	return filepath.Clean(filepath.Join(filepath.Dir(path), raw)), true
}
