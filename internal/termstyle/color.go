// SPDX-License-Identifier: MIT
package termstyle

import (
	"github.com/liggitt/tabwriter"

	"github.com/skaphos/repofleet/internal/model"
)

const (
	Reset = "\x1b[0m"
	Green = "\x1b[32m"
	Brown = "\x1b[33m"
	Red   = "\x1b[31m"
	Blue  = "\x1b[34m"

	// Semantic aliases used by plan and apply tables.
	Healthy = Green
	Warn    = Brown
	Error   = Red
	Info    = Blue
)

// Colorize wraps a value in ANSI escapes when color output is enabled.
func Colorize(enabled bool, value, color string) string {
	if !enabled || value == "" || color == "" {
		return value
	}
	// Hide ANSI sequences from tabwriter width calculations so columns align.
	esc := string([]byte{tabwriter.Escape})
	return esc + color + esc + value + esc + Reset + esc
}

// ForState picks the color of a sync state. Local-only rows stay plain.
func ForState(state model.SyncState) string {
	switch state {
	case model.StateInSync:
		return Healthy
	case model.StateBehindRemote, model.StateAheadRemote:
		return Warn
	case model.StateDiverged:
		return Error
	case model.StateMissingLocal:
		return Info
	default:
		return ""
	}
}

// ForStatus picks the color of an action outcome: green for ok, red for
// fail, yellow for policy skips and lookups that found nothing.
func ForStatus(status model.ActionStatus) string {
	switch status {
	case model.StatusOK:
		return Healthy
	case model.StatusFail:
		return Error
	case model.StatusDryRun, model.StatusNone, "":
		return ""
	default:
		return Warn
	}
}
