// Package model defines the core data types used throughout RepoFleet.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SyncState classifies the relationship between a local checkout and the
// forge's record of the same repository.
type SyncState string

const (
	StateInSync       SyncState = "in-sync"
	StateBehindRemote SyncState = "behind-remote"
	StateAheadRemote  SyncState = "ahead-remote"
	StateDiverged     SyncState = "diverged"
	StateLocalOnly    SyncState = "local-only"
	StateMissingLocal SyncState = "missing-local"
)

// PlanAction is the suggested remedy for a plan row.
type PlanAction string

const (
	ActionPull   PlanAction = "pull"
	ActionPush   PlanAction = "push"
	ActionManual PlanAction = "manual"
	ActionClone  PlanAction = "clone"
	ActionNone   PlanAction = "-"
)

// CleanState renders the in-progress-operation check for display.
type CleanState string

const (
	CleanYes     CleanState = "yes"
	CleanNo      CleanState = "no"
	CleanUnknown CleanState = "-"
)

// CleanStateFor converts a boolean clean flag to its display value.
func CleanStateFor(clean bool) CleanState {
	if clean {
		return CleanYes
	}
	return CleanNo
}

// ErrInvalidRecord is wrapped by record validation failures.
var ErrInvalidRecord = errors.New("invalid record")

// LocalRepoRecord is the observed state of one local checkout.
type LocalRepoRecord struct {
	// Name is the directory basename.
	Name string `json:"name"`
	// Path is the absolute filesystem path of the working tree.
	Path string `json:"path"`
	// Branch is the checked-out branch, or "detached".
	Branch string `json:"branch"`
	// UpstreamRef is the tracked upstream (for example "origin/main"), empty when none.
	UpstreamRef string `json:"upstream_ref,omitempty"`
	// UpstreamAhead is nil when there is no upstream.
	UpstreamAhead *int `json:"upstream_ahead,omitempty"`
	// UpstreamBehind is nil when there is no upstream.
	UpstreamBehind *int   `json:"upstream_behind,omitempty"`
	DefaultRef     string `json:"default_ref,omitempty"`
	DefaultAhead   *int   `json:"default_ahead,omitempty"`
	DefaultBehind  *int   `json:"default_behind,omitempty"`
	// DefaultRefs lists the default ref of every remote that advertises one.
	DefaultRefs []string `json:"default_refs,omitempty"`
	OriginURL   string   `json:"origin_url,omitempty"`
	// Clean is true when no merge, rebase, cherry-pick, revert or bisect is in
	// progress. It says nothing about uncommitted changes.
	Clean bool `json:"clean"`
	// Error records an inspection failure; the record is still planned.
	Error      string `json:"error,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
}

// Validate checks the fields required by the planner.
func (r LocalRepoRecord) Validate() error {
	if strings.TrimSpace(r.Path) == "" {
		return fmt.Errorf("%w: local repo %q has no path", ErrInvalidRecord, r.Name)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: local repo at %q has no name", ErrInvalidRecord, r.Path)
	}
	return nil
}

// HasUpstream reports whether both upstream counts are known.
func (r LocalRepoRecord) HasUpstream() bool {
	return r.UpstreamAhead != nil && r.UpstreamBehind != nil
}

// RemoteRepoRecord is one repository as listed by a forge.
type RemoteRepoRecord struct {
	Name          string `json:"name"`
	SSHURL        string `json:"ssh_url,omitempty"`
	CloneURL      string `json:"clone_url,omitempty"`
	HTMLURL       string `json:"html_url,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty"`
	Private       bool   `json:"private"`
	Owner         string `json:"owner,omitempty"`
	OrgLabel      string `json:"org_label,omitempty"`
	Fork          bool   `json:"fork,omitempty"`
}

// URLs returns the non-empty URL fields in ssh, clone, html order.
func (r RemoteRepoRecord) URLs() []string {
	out := make([]string, 0, 3)
	for _, u := range []string{r.SSHURL, r.CloneURL, r.HTMLURL} {
		if strings.TrimSpace(u) != "" {
			out = append(out, u)
		}
	}
	return out
}

// CloneSource prefers the SSH URL and falls back to the HTTPS clone URL.
func (r RemoteRepoRecord) CloneSource() string {
	if s := strings.TrimSpace(r.SSHURL); s != "" {
		return s
	}
	return strings.TrimSpace(r.CloneURL)
}

// Plannable reports whether the record carries enough data to take part in
// planning at all.
func (r RemoteRepoRecord) Plannable() bool {
	return strings.TrimSpace(r.Name) != "" || len(r.URLs()) > 0
}

// PlanRow is a single line of a reconciliation plan.
type PlanRow struct {
	Repo         string     `json:"repo"`
	State        SyncState  `json:"state"`
	Up           string     `json:"up"`
	Clean        CleanState `json:"clean"`
	Action       PlanAction `json:"action"`
	LatestBranch string     `json:"latest_branch,omitempty"`
	PRs          string     `json:"prs,omitempty"`
	Path         string     `json:"path"`
	OriginURL    string     `json:"origin_url,omitempty"`
	// Remote is the matched forge record, nil for local-only rows.
	Remote *RemoteRepoRecord `json:"remote,omitempty"`
}

// UpSummary renders upstream divergence for display.
func UpSummary(ahead, behind *int) string {
	if ahead == nil || behind == nil {
		return "-"
	}
	if *ahead == 0 && *behind == 0 {
		return "≡"
	}
	return strconv.Itoa(*ahead) + "↑/" + strconv.Itoa(*behind) + "↓"
}

// PlanMeta summarizes the inputs of a plan.
type PlanMeta struct {
	Server      string `json:"server"`
	Provider    string `json:"provider,omitempty"`
	RemoteCount int    `json:"remote_count"`
	LocalCount  int    `json:"local_count"`
}

// Plan is the full output of the planner.
type Plan struct {
	Rows []PlanRow `json:"rows"`
	Meta PlanMeta  `json:"meta"`
}

// ActionKind names a step the applier can take.
type ActionKind string

const (
	KindClone      ActionKind = "clone"
	KindPull       ActionKind = "pull"
	KindPush       ActionKind = "push"
	KindCheckout   ActionKind = "checkout"
	KindCheckoutPR ActionKind = "checkout-pr"
	KindSkip       ActionKind = "skip"
)

// ActionStatus is the outcome of one applier step.
type ActionStatus string

const (
	StatusOK             ActionStatus = "ok"
	StatusFail           ActionStatus = "fail"
	StatusDryRun         ActionStatus = "dry-run"
	StatusSkipDirty      ActionStatus = "skip-dirty"
	StatusSkipNoUpstream ActionStatus = "skip-no-upstream"
	StatusSkipNotCloned  ActionStatus = "skip-not-cloned"
	StatusSkipNoRemote   ActionStatus = "skip-no-remote"
	StatusMissingURL     ActionStatus = "missing-url"
	StatusNotFound       ActionStatus = "not-found"
	StatusUnsupported    ActionStatus = "unsupported"
	StatusNone           ActionStatus = "none"
)

// Succeeded reports whether the status counts as a change (real or simulated).
func (s ActionStatus) Succeeded() bool {
	return s == StatusOK || s == StatusDryRun
}

// ActionRecord is the structured outcome of one step for one repo.
type ActionRecord struct {
	Action     ActionKind   `json:"action"`
	Status     ActionStatus `json:"status"`
	Branch     string       `json:"branch,omitempty"`
	PR         string       `json:"pr,omitempty"`
	Error      string       `json:"error,omitempty"`
	ErrorClass string       `json:"error_class,omitempty"`
}

// String renders the compact display form, for example "pull:ok" or
// "checkout:main:dry-run".
func (a ActionRecord) String() string {
	if a.Action == KindSkip && a.Status == StatusNone {
		return string(KindSkip)
	}
	parts := []string{string(a.Action)}
	switch a.Action {
	case KindCheckout:
		if a.Branch != "" {
			parts = append(parts, a.Branch)
		}
	case KindCheckoutPR:
		if a.PR != "" {
			parts = append(parts, a.PR)
		}
	}
	parts = append(parts, string(a.Status))
	return strings.Join(parts, ":")
}

// RepoResult is everything the applier did for one plan row.
type RepoResult struct {
	Repo           string         `json:"repo"`
	State          SyncState      `json:"state"`
	Path           string         `json:"path"`
	Clean          CleanState     `json:"clean"`
	PlannedActions []string       `json:"planned_actions"`
	Actions        []ActionRecord `json:"actions"`
	Result         string         `json:"result"`
}

// ResultString joins the display forms of all records.
func ResultString(records []ActionRecord) string {
	parts := make([]string, 0, len(records))
	for _, rec := range records {
		parts = append(parts, rec.String())
	}
	return strings.Join(parts, " ")
}

// BranchUpdate records a checkout that changed (or would change) a branch.
type BranchUpdate struct {
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
}

// LogOptions echoes the options an apply run was invoked with.
type LogOptions struct {
	Root           string   `json:"root"`
	Server         string   `json:"server"`
	Repos          []string `json:"repos"`
	CloneMissing   bool     `json:"clone_missing"`
	PullBehind     bool     `json:"pull_behind"`
	PushAhead      bool     `json:"push_ahead"`
	CheckoutBranch string   `json:"checkout_branch"`
	CheckoutPR     *int     `json:"checkout_pr"`
	DryRun         bool     `json:"dry_run"`
	OnlyClean      bool     `json:"only_clean"`
	Fetch          bool     `json:"fetch"`
	IncludeHidden  bool     `json:"include_hidden"`
	MaxDepth       int      `json:"max_depth"`
}

// LogSummary aggregates an apply run.
type LogSummary struct {
	ReposTargeted  int            `json:"repos_targeted"`
	ReposProcessed int            `json:"repos_processed"`
	ReposUpdated   int            `json:"repos_updated"`
	BranchUpdates  int            `json:"branch_updates"`
	ActionTotals   map[string]int `json:"action_totals"`
}

// ExecutionLog is the persisted audit trail of one apply run.
type ExecutionLog struct {
	GeneratedAt   string         `json:"generated_at"`
	Command       string         `json:"command"`
	Options       LogOptions     `json:"options"`
	Summary       LogSummary     `json:"summary"`
	BranchUpdates []BranchUpdate `json:"branch_updates"`
	Results       []RepoResult   `json:"results"`
}
