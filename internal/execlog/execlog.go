// SPDX-License-Identifier: MIT

// Package execlog builds, persists and summarizes the audit log of an apply
// run.
package execlog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/valyala/fasttemplate"

	"github.com/skaphos/repofleet/internal/fileutil"
	"github.com/skaphos/repofleet/internal/model"
)

const (
	// Command is recorded in every log produced by apply.
	Command = "fleet apply"
	// DirName is the log directory relative to the fleet root.
	DirName = "data/fleet-logs"

	timestampLayout = "20060102T150405Z"
	digestListLimit = 15
)

var fileNameTemplate = fasttemplate.New("fleet-apply-{ts}.json", "{", "}")

// ErrInvalidLog is returned when a file does not hold an execution log.
var ErrInvalidLog = errors.New("invalid fleet log")

// Build aggregates per-repo results into an execution log.
func Build(results []model.RepoResult, opts model.LogOptions, targeted int, now time.Time) model.ExecutionLog {
	totals := make(map[string]int)
	for _, res := range results {
		for _, rec := range res.Actions {
			totals[string(rec.Action)+":"+string(rec.Status)]++
		}
	}
	updated, branchUpdates := changes(results)
	if results == nil {
		results = []model.RepoResult{}
	}
	if opts.Repos == nil {
		opts.Repos = []string{}
	}
	return model.ExecutionLog{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Command:     Command,
		Options:     opts,
		Summary: model.LogSummary{
			ReposTargeted:  targeted,
			ReposProcessed: len(results),
			ReposUpdated:   len(updated),
			BranchUpdates:  len(branchUpdates),
			ActionTotals:   totals,
		},
		BranchUpdates: branchUpdates,
		Results:       results,
	}
}

// changes returns the repos with at least one successful or dry-run clone,
// pull, push or checkout, and the branch of every such checkout.
func changes(results []model.RepoResult) ([]string, []model.BranchUpdate) {
	var updated []string
	branchUpdates := make([]model.BranchUpdate, 0)
	for _, res := range results {
		changed := false
		for _, rec := range res.Actions {
			if !rec.Status.Succeeded() {
				continue
			}
			switch rec.Action {
			case model.KindClone, model.KindPull, model.KindPush:
				changed = true
			case model.KindCheckout:
				changed = true
				if rec.Branch != "" {
					branchUpdates = append(branchUpdates, model.BranchUpdate{Repo: res.Repo, Branch: rec.Branch})
				}
			}
		}
		if changed {
			updated = append(updated, res.Repo)
		}
	}
	return updated, branchUpdates
}

// Write persists log at path atomically.
func Write(path string, log model.ExecutionLog) error {
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fleet log: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write fleet log %s: %w", path, err)
	}
	return nil
}

// Read loads a log written by Write.
func Read(path string) (*model.ExecutionLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLog, path)
	}
	var log model.ExecutionLog
	if err := json.Unmarshal(trimmed, &log); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidLog, path, err)
	}
	return &log, nil
}

// Dir returns the log directory under root.
func Dir(root string) string {
	return filepath.Join(root, filepath.FromSlash(DirName))
}

// DefaultPath returns the timestamped log path for a run started at now.
func DefaultPath(root string, now time.Time) string {
	name := fileNameTemplate.ExecuteString(map[string]interface{}{
		"ts": now.UTC().Format(timestampLayout),
	})
	return filepath.Join(Dir(root), name)
}

// Entry is one log file found on disk.
type Entry struct {
	Name    string
	Path    string
	ModTime time.Time
}

// List returns the JSON logs in dir, newest first. A missing directory yields
// no entries.
func List(dir string) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.IsDir() || !strings.HasSuffix(item.Name(), ".json") {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    item.Name(),
			Path:    filepath.Join(dir, item.Name()),
			ModTime: info.ModTime(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].Name > entries[j].Name
		}
		return entries[i].ModTime.After(entries[j].ModTime)
	})
	return entries, nil
}

// Digest renders the short post-apply summary shown to the operator. Counts
// come from the log summary so the digest agrees with the persisted log.
func Digest(log model.ExecutionLog, path string) string {
	updated, _ := changes(log.Results)
	branches := make([]string, 0, len(log.BranchUpdates))
	for _, u := range log.BranchUpdates {
		branches = append(branches, u.Repo+":"+u.Branch)
	}

	var b strings.Builder
	b.WriteString("Fleet apply summary:\n")
	fmt.Fprintf(&b, "Total repos processed: %d\n", log.Summary.ReposProcessed)
	fmt.Fprintf(&b, "Repos updated: %d\n", log.Summary.ReposUpdated)
	fmt.Fprintf(&b, "Branch updates: %d\n\n", log.Summary.BranchUpdates)
	writeCapped(&b, "Updated repos:", updated)
	writeCapped(&b, "Branch changes:", branches)
	if path != "" {
		fmt.Fprintf(&b, "Full log: %s\n", path)
	}
	return b.String()
}

func writeCapped(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(title + "\n")
	for i, item := range items {
		if i == digestListLimit {
			fmt.Fprintf(b, "- ... and %d more\n", len(items)-digestListLimit)
			break
		}
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}
