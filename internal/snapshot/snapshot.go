// SPDX-License-Identifier: MIT

// Package snapshot persists forge repository listings so that plans can be
// built offline.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/skaphos/repofleet/internal/fileutil"
	"github.com/skaphos/repofleet/internal/gitx"
	"github.com/skaphos/repofleet/internal/model"
)

// Snapshot is the remote repository list of one forge account.
type Snapshot struct {
	Server      string                   `json:"server"`
	Provider    string                   `json:"provider"`
	BaseURL     string                   `json:"base_url,omitempty"`
	User        string                   `json:"user,omitempty"`
	GeneratedAt *time.Time               `json:"generated_at,omitempty"`
	Repos       []model.RemoteRepoRecord `json:"repos"`
}

// Source yields the remote side of a plan.
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Load reads a snapshot file. A bare JSON array is accepted as the repos list.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses snapshot JSON.
func Decode(data []byte) (*Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("snapshot is empty")
	}
	if trimmed[0] == '[' {
		var repos []model.RemoteRepoRecord
		if err := json.Unmarshal(trimmed, &repos); err != nil {
			return nil, fmt.Errorf("parse snapshot: %w", err)
		}
		return &Snapshot{Repos: repos}, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

// Save writes the snapshot to path atomically.
func Save(snap *Snapshot, path string) error {
	if snap == nil {
		return errors.New("snapshot is nil")
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, append(data, '\n'), 0o644)
}

// Upsert adds repo, replacing an existing entry that shares any normalized
// URL key or, for URL-less records, the same name.
func (s *Snapshot) Upsert(repo model.RemoteRepoRecord) {
	keys := Keys(repo)
	for i := range s.Repos {
		existing := s.Repos[i]
		if sharesKey(keys, Keys(existing)) || (len(keys) == 0 && existing.Name == repo.Name) {
			s.Repos[i] = repo
			return
		}
	}
	s.Repos = append(s.Repos, repo)
}

// Keys returns the normalized URL keys of a remote record.
func Keys(repo model.RemoteRepoRecord) map[string]struct{} {
	keys := make(map[string]struct{}, 3)
	for _, u := range repo.URLs() {
		if key := gitx.NormalizeURL(u); key != "" {
			keys[key] = struct{}{}
		}
	}
	return keys
}

func sharesKey(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

// FileSource loads a snapshot from disk each time it is asked.
type FileSource struct {
	Path string
}

func (f FileSource) Snapshot(_ context.Context) (*Snapshot, error) {
	snap, err := Load(f.Path)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", f.Path, err)
	}
	return snap, nil
}

// Static serves an in-memory snapshot.
type Static struct {
	Snap *Snapshot
}

func (s Static) Snapshot(_ context.Context) (*Snapshot, error) {
	if s.Snap == nil {
		return &Snapshot{}, nil
	}
	return s.Snap, nil
}
