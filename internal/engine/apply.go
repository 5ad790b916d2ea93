package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skaphos/repofleet/internal/execlog"
	"github.com/skaphos/repofleet/internal/forge"
	"github.com/skaphos/repofleet/internal/gitx"
	"github.com/skaphos/repofleet/internal/model"
	"github.com/skaphos/repofleet/internal/sortutil"
	"github.com/skaphos/repofleet/internal/strutil"
)

// ApplyOptions configures an apply operation.
type ApplyOptions struct {
	// Repos restricts the run to these repo names. Empty means every row.
	Repos          []string
	CloneMissing   bool
	PullBehind     bool
	PushAhead      bool
	CheckoutBranch string
	CheckoutPR     *int
	DryRun         bool
	// OnlyClean skips mutations on rows whose clean flag is not "yes".
	OnlyClean   bool
	Concurrency int
	Timeout     time.Duration
	// PullRequests resolves pull request heads. Nil means the forge cannot.
	PullRequests forge.PullRequestSource
	// LogContext carries the plan-side options echoed into the execution log.
	LogContext model.LogOptions
	OnStart    ProgressFunc
}

// Normalize strips an "origin/" prefix from the checkout branch and, when no
// action at all was requested, enables clone, pull and push.
func (o ApplyOptions) Normalize() ApplyOptions {
	o.CheckoutBranch = strings.TrimSpace(o.CheckoutBranch)
	o.CheckoutBranch = strings.TrimPrefix(o.CheckoutBranch, "origin/")
	if !o.CloneMissing && !o.PullBehind && !o.PushAhead && o.CheckoutBranch == "" && o.CheckoutPR == nil {
		o.CloneMissing = true
		o.PullBehind = true
		o.PushAhead = true
	}
	return o
}

// ApplyOutcome holds the per-repo results and the execution log built from
// them.
type ApplyOutcome struct {
	Results []model.RepoResult
	Log     model.ExecutionLog
}

// PlannedActions lists what opts would attempt for row, for display before
// the run and for the log.
func PlannedActions(row model.PlanRow, opts ApplyOptions) []string {
	var parts []string
	switch {
	case row.State == model.StateMissingLocal && opts.CloneMissing:
		parts = append(parts, string(model.KindClone))
	case row.State == model.StateBehindRemote && opts.PullBehind:
		parts = append(parts, string(model.KindPull))
	case row.State == model.StateAheadRemote && opts.PushAhead:
		parts = append(parts, string(model.KindPush))
	}
	switch {
	case opts.CheckoutPR != nil:
		parts = append(parts, string(model.KindCheckoutPR)+":"+strconv.Itoa(*opts.CheckoutPR))
	case opts.CheckoutBranch != "":
		parts = append(parts, string(model.KindCheckout)+":"+opts.CheckoutBranch)
	}
	if len(parts) == 0 {
		parts = append(parts, string(model.KindSkip))
	}
	return parts
}

// SelectRows filters rows to the allow-list, keeping plan order.
func SelectRows(rows []model.PlanRow, repos []string) []model.PlanRow {
	allow := strutil.SetOf(repos)
	if allow == nil {
		return rows
	}
	out := make([]model.PlanRow, 0, len(rows))
	for _, row := range rows {
		if _, ok := allow[row.Repo]; ok {
			out = append(out, row)
		}
	}
	return out
}

// Apply executes the requested actions against the selected plan rows. A
// failure in one repository never stops the others. When ctx is cancelled
// the remaining rows are not started; the outcome still covers every
// processed row and the context error is returned alongside it.
func (e *Engine) Apply(ctx context.Context, rows []model.PlanRow, opts ApplyOptions) (*ApplyOutcome, error) {
	opts = opts.Normalize()
	targets := SelectRows(rows, opts.Repos)

	results := make([]model.RepoResult, len(targets))
	done := make([]bool, len(targets))
	label := func(i int) string {
		return fmt.Sprintf("fleet-apply: %s [%s]", targets[i].Repo, targets[i].State)
	}
	stopErr := runBounded(ctx, len(targets), opts.Concurrency, label, opts.OnStart, func(ctx context.Context, i int) {
		repoCtx, cancel := repoContext(ctx, opts.Timeout)
		defer cancel()
		results[i] = e.applyRow(repoCtx, targets[i], opts)
		done[i] = true
	})

	processed := make([]model.RepoResult, 0, len(targets))
	for i, res := range results {
		if done[i] {
			processed = append(processed, res)
		}
	}
	sortutil.SortRepoResults(processed)

	logOpts := opts.LogContext
	logOpts.Repos = append([]string{}, opts.Repos...)
	logOpts.CloneMissing = opts.CloneMissing
	logOpts.PullBehind = opts.PullBehind
	logOpts.PushAhead = opts.PushAhead
	logOpts.CheckoutBranch = opts.CheckoutBranch
	logOpts.CheckoutPR = opts.CheckoutPR
	logOpts.DryRun = opts.DryRun
	logOpts.OnlyClean = opts.OnlyClean

	return &ApplyOutcome{
		Results: processed,
		Log:     execlog.Build(processed, logOpts, len(targets), e.now()),
	}, stopErr
}

func (e *Engine) applyRow(ctx context.Context, row model.PlanRow, opts ApplyOptions) model.RepoResult {
	var records []model.ActionRecord
	cloneOK := row.State != model.StateMissingLocal

	switch {
	case row.State == model.StateMissingLocal && opts.CloneMissing:
		var rec model.ActionRecord
		rec, cloneOK = e.applyClone(ctx, row, opts.DryRun)
		records = append(records, rec)
	case row.State == model.StateBehindRemote && opts.PullBehind:
		records = append(records, e.applyUpdate(ctx, row, opts, model.KindPull, e.adapter.Pull))
	case row.State == model.StateAheadRemote && opts.PushAhead:
		records = append(records, e.applyUpdate(ctx, row, opts, model.KindPush, e.adapter.Push))
	}

	branch := opts.CheckoutBranch
	if opts.CheckoutPR != nil {
		resolved, rec, ok := e.resolvePullRequest(ctx, row, *opts.CheckoutPR, opts.PullRequests)
		if ok {
			branch = resolved
		} else {
			branch = ""
			records = append(records, rec)
		}
	}
	if branch != "" {
		records = append(records, e.applyCheckout(ctx, row, branch, cloneOK, opts))
	}

	if len(records) == 0 {
		records = append(records, model.ActionRecord{Action: model.KindSkip, Status: model.StatusNone})
	}
	for _, rec := range records {
		if rec.Status == model.StatusFail {
			e.logger.Warn("action failed",
				zap.String("repo", row.Repo),
				zap.String("action", string(rec.Action)),
				zap.String("class", rec.ErrorClass),
				zap.String("error", rec.Error))
		}
	}
	return model.RepoResult{
		Repo:           row.Repo,
		State:          row.State,
		Path:           row.Path,
		Clean:          row.Clean,
		PlannedActions: PlannedActions(row, opts),
		Actions:        records,
		Result:         model.ResultString(records),
	}
}

func (e *Engine) applyClone(ctx context.Context, row model.PlanRow, dryRun bool) (model.ActionRecord, bool) {
	rec := model.ActionRecord{Action: model.KindClone}
	source := ""
	if row.Remote != nil {
		source = row.Remote.CloneSource()
	}
	switch {
	case dryRun:
		rec.Status = model.StatusDryRun
		return rec, false
	case source == "":
		rec.Status = model.StatusMissingURL
		return rec, false
	}
	if err := os.MkdirAll(filepath.Dir(row.Path), 0o755); err != nil {
		return failed(rec, err), false
	}
	if err := e.adapter.Clone(ctx, source, row.Path); err != nil {
		return failed(rec, err), false
	}
	rec.Status = model.StatusOK
	return rec, true
}

func (e *Engine) applyUpdate(ctx context.Context, row model.PlanRow, opts ApplyOptions, kind model.ActionKind, op func(context.Context, string) error) model.ActionRecord {
	rec := model.ActionRecord{Action: kind}
	switch {
	case opts.OnlyClean && row.Clean != model.CleanYes:
		rec.Status = model.StatusSkipDirty
	case opts.DryRun:
		rec.Status = model.StatusDryRun
	default:
		if err := op(ctx, row.Path); err != nil {
			return failed(rec, err)
		}
		rec.Status = model.StatusOK
	}
	return rec
}

// resolvePullRequest returns the head branch of pull request number. When
// the branch cannot be resolved it returns the record explaining why.
func (e *Engine) resolvePullRequest(ctx context.Context, row model.PlanRow, number int, prs forge.PullRequestSource) (string, model.ActionRecord, bool) {
	rec := model.ActionRecord{Action: model.KindCheckoutPR, PR: strconv.Itoa(number)}
	owner, repo, ok := e.ownerRepoFor(ctx, row)
	if prs == nil || !ok {
		rec.Status = model.StatusUnsupported
		return "", rec, false
	}
	branch, err := prs.PullRequestBranch(ctx, owner, repo, number)
	if err != nil || branch == "" {
		rec.Status = model.StatusNotFound
		if err != nil {
			rec.Error = err.Error()
			if !errors.Is(err, forge.ErrNotFound) {
				rec.ErrorClass = gitx.ClassifyError(err)
			}
		}
		return "", rec, false
	}
	return branch, rec, true
}

// ownerRepoFor prefers the live origin of the working tree, then the origin
// seen at plan time, then the matched forge record.
func (e *Engine) ownerRepoFor(ctx context.Context, row model.PlanRow) (string, string, bool) {
	candidates := make([]string, 0, 5)
	if row.State != model.StateMissingLocal {
		if live, err := e.adapter.OriginURL(ctx, row.Path); err == nil {
			candidates = append(candidates, live)
		}
	}
	candidates = append(candidates, row.OriginURL)
	if row.Remote != nil {
		candidates = append(candidates, row.Remote.URLs()...)
	}
	for _, c := range candidates {
		if owner, repo, ok := gitx.OwnerRepo(c); ok {
			return owner, repo, true
		}
	}
	if row.Remote != nil && row.Remote.Owner != "" && row.Remote.Name != "" {
		return row.Remote.Owner, row.Remote.Name, true
	}
	return "", "", false
}

func (e *Engine) applyCheckout(ctx context.Context, row model.PlanRow, branch string, cloneOK bool, opts ApplyOptions) model.ActionRecord {
	rec := model.ActionRecord{Action: model.KindCheckout, Branch: branch}
	switch {
	case opts.OnlyClean && row.Clean != model.CleanYes:
		rec.Status = model.StatusSkipDirty
		return rec
	case !cloneOK && !opts.DryRun:
		rec.Status = model.StatusSkipNotCloned
		return rec
	case opts.DryRun:
		rec.Status = model.StatusDryRun
		return rec
	}

	if err := e.adapter.Fetch(ctx, row.Path); err != nil {
		e.logger.Debug("fetch before checkout failed", zap.String("repo", row.Repo), zap.Error(err))
	}
	if !e.adapter.RemoteBranchExists(ctx, row.Path, branch) {
		rec.Status = model.StatusSkipNoRemote
		return rec
	}
	checkout := e.adapter.CheckoutTracking
	if e.adapter.LocalBranchExists(ctx, row.Path, branch) {
		checkout = e.adapter.Checkout
	}
	if err := checkout(ctx, row.Path, branch); err != nil {
		return failed(rec, err)
	}
	if err := e.adapter.Pull(ctx, row.Path); err != nil {
		return failed(rec, err)
	}
	rec.Status = model.StatusOK
	return rec
}

func failed(rec model.ActionRecord, err error) model.ActionRecord {
	rec.Status = model.StatusFail
	rec.Error = err.Error()
	rec.ErrorClass = gitx.ClassifyError(err)
	return rec
}
