// SPDX-License-Identifier: MIT

// Package remotemismatch finds local checkouts that carry the name of a forge
// repository but track a different remote, typically a fork or a repository
// that moved hosts.
package remotemismatch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/skaphos/repofleet/internal/model"
)

// Mismatch pairs a local-only checkout with the missing-local forge
// repository of the same name.
type Mismatch struct {
	Repo      string `json:"repo"`
	LocalPath string `json:"local_path"`
	LocalURL  string `json:"local_url,omitempty"`
	ForgeURL  string `json:"forge_url,omitempty"`
	// Collides is true when cloning the forge repository would target the
	// directory the local checkout already occupies.
	Collides bool `json:"collides"`
}

func (m Mismatch) String() string {
	local := m.LocalURL
	if local == "" {
		local = "no origin"
	}
	msg := fmt.Sprintf("%s at %s tracks %s but the forge lists %s", m.Repo, m.LocalPath, local, m.ForgeURL)
	if m.Collides {
		msg += "; cloning it would collide with the existing directory"
	}
	return msg
}

// Detect returns one mismatch per local-only row whose name matches a
// missing-local row, case-insensitively, in row order.
func Detect(rows []model.PlanRow) []Mismatch {
	missing := make(map[string]model.PlanRow)
	for _, row := range rows {
		if row.State != model.StateMissingLocal {
			continue
		}
		key := strings.ToLower(row.Repo)
		if _, seen := missing[key]; !seen {
			missing[key] = row
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var out []Mismatch
	for _, row := range rows {
		if row.State != model.StateLocalOnly {
			continue
		}
		remote, ok := missing[strings.ToLower(row.Repo)]
		if !ok {
			continue
		}
		out = append(out, Mismatch{
			Repo:      row.Repo,
			LocalPath: row.Path,
			LocalURL:  row.OriginURL,
			ForgeURL:  forgeURL(remote),
			Collides:  filepath.Clean(row.Path) == filepath.Clean(remote.Path),
		})
	}
	return out
}

// Colliding filters mismatches down to those that would break a clone.
func Colliding(mismatches []Mismatch) []Mismatch {
	var out []Mismatch
	for _, m := range mismatches {
		if m.Collides {
			out = append(out, m)
		}
	}
	return out
}

func forgeURL(row model.PlanRow) string {
	if row.Remote == nil {
		return ""
	}
	if src := row.Remote.CloneSource(); src != "" {
		return src
	}
	if urls := row.Remote.URLs(); len(urls) > 0 {
		return urls[0]
	}
	return ""
}
