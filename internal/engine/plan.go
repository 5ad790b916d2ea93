package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skaphos/repofleet/internal/discovery"
	"github.com/skaphos/repofleet/internal/forge"
	"github.com/skaphos/repofleet/internal/gitx"
	"github.com/skaphos/repofleet/internal/model"
	"github.com/skaphos/repofleet/internal/snapshot"
	"github.com/skaphos/repofleet/internal/sortutil"
)

// maxPRNumbers caps the pull request numbers shown per plan row.
const maxPRNumbers = 8

// PlanOptions configures a plan operation.
type PlanOptions struct {
	Root           string
	MaxDepth       int
	IncludeHidden  bool
	Exclude        []string
	FollowSymlinks bool
	// Fetch runs "git fetch --prune" before inspecting each repository.
	Fetch       bool
	Concurrency int
	// Timeout bounds the git work of one repository.
	Timeout time.Duration
	// ServerName labels the plan when the snapshot does not name its server.
	ServerName string
	OnStart    ProgressFunc
}

// Plan discovers local repositories under opts.Root, inspects them, joins
// them with the remote listing from source and classifies every pair.
// Per-repository git failures are carried on the rows; only a failing remote
// source or discovery error fails the plan.
func (e *Engine) Plan(ctx context.Context, opts PlanOptions, source snapshot.Source) (*model.Plan, error) {
	if source == nil {
		return nil, errors.New("no remote source configured")
	}
	root, err := filepath.Abs(strings.TrimSpace(opts.Root))
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	locals, err := e.InspectFleet(ctx, root, opts)
	if err != nil {
		return nil, err
	}

	snap, err := source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	rows := BuildRows(root, locals, snap.Repos, e.adapter.NormalizeURL)
	sortutil.SortPlanRows(rows)

	server := snap.Server
	if server == "" {
		server = opts.ServerName
	}
	e.logger.Debug("plan built",
		zap.String("server", server),
		zap.Int("local", len(locals)),
		zap.Int("remote", len(snap.Repos)),
		zap.Int("rows", len(rows)))
	return &model.Plan{
		Rows: rows,
		Meta: model.PlanMeta{
			Server:      server,
			Provider:    snap.Provider,
			RemoteCount: len(snap.Repos),
			LocalCount:  len(locals),
		},
	}, nil
}

// InspectFleet discovers and inspects the local repositories under root, in
// discovery order.
func (e *Engine) InspectFleet(ctx context.Context, root string, opts PlanOptions) ([]model.LocalRepoRecord, error) {
	found, err := discovery.Scan(ctx, discovery.Options{
		Roots:          []string{root},
		MaxDepth:       opts.MaxDepth,
		IncludeHidden:  opts.IncludeHidden,
		Exclude:        opts.Exclude,
		FollowSymlinks: opts.FollowSymlinks,
	})
	if err != nil {
		return nil, fmt.Errorf("discover repositories: %w", err)
	}

	records := make([]model.LocalRepoRecord, len(found))
	done := make([]bool, len(found))
	label := func(i int) string { return "Scanning " + found[i].Name }
	stopErr := runBounded(ctx, len(found), opts.Concurrency, label, opts.OnStart, func(ctx context.Context, i int) {
		repoCtx, cancel := repoContext(ctx, opts.Timeout)
		defer cancel()
		records[i] = e.inspectRepo(repoCtx, found[i], opts.Fetch)
		done[i] = true
	})
	if stopErr != nil {
		return nil, stopErr
	}

	out := records[:0]
	for i, rec := range records {
		if done[i] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (e *Engine) inspectRepo(ctx context.Context, res discovery.Result, fetch bool) model.LocalRepoRecord {
	var fetchErr error
	if fetch {
		fetchErr = e.adapter.Fetch(ctx, res.Path)
		if fetchErr != nil {
			e.logger.Warn("fetch failed", zap.String("path", res.Path), zap.Error(fetchErr))
		}
	}
	rec, err := e.adapter.Inspect(ctx, res.Path)
	rec.Path = res.Path
	if res.Name != "" {
		rec.Name = res.Name
	}
	if rec.Name == "" {
		rec.Name = filepath.Base(res.Path)
	}
	if err == nil {
		err = fetchErr
	}
	if err != nil {
		rec.Error = err.Error()
		rec.ErrorClass = gitx.ClassifyError(err)
		e.logger.Debug("inspect incomplete", zap.String("path", res.Path), zap.String("class", rec.ErrorClass), zap.Error(err))
	}
	return rec
}

// Classify maps a local record's upstream divergence to a sync state and the
// suggested action. matched reports whether the record joined a forge record;
// without a match the repository is local-only regardless of its counts.
func Classify(matched bool, ahead, behind *int) (model.SyncState, model.PlanAction) {
	if !matched {
		return model.StateLocalOnly, model.ActionNone
	}
	a, b := derefCount(ahead), derefCount(behind)
	switch {
	case a > 0 && b > 0:
		return model.StateDiverged, model.ActionManual
	case b > 0:
		return model.StateBehindRemote, model.ActionPull
	case a > 0:
		return model.StateAheadRemote, model.ActionPush
	default:
		return model.StateInSync, model.ActionNone
	}
}

func derefCount(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// BuildRows joins local records with remote records. A remote matches a local
// repository when any of its normalized URLs equals the normalized origin.
// Every remote left unclaimed yields exactly one missing-local row rooted at
// root/<name>.
func BuildRows(root string, locals []model.LocalRepoRecord, remotes []model.RemoteRepoRecord, normalize func(string) string) []model.PlanRow {
	index := make(map[string]int)
	for i, remote := range remotes {
		if !remote.Plannable() {
			continue
		}
		for key := range snapshot.Keys(remote) {
			index[key] = i
		}
	}

	claimed := make(map[string]struct{})
	rows := make([]model.PlanRow, 0, len(locals)+len(remotes))
	for _, rec := range locals {
		var remote *model.RemoteRepoRecord
		if key := normalize(rec.OriginURL); key != "" {
			if i, ok := index[key]; ok {
				r := remotes[i]
				remote = &r
				claimed[key] = struct{}{}
			}
		}
		state, action := Classify(remote != nil, rec.UpstreamAhead, rec.UpstreamBehind)
		rows = append(rows, model.PlanRow{
			Repo:      rec.Name,
			State:     state,
			Up:        model.UpSummary(rec.UpstreamAhead, rec.UpstreamBehind),
			Clean:     model.CleanStateFor(rec.Clean),
			Action:    action,
			Path:      rec.Path,
			OriginURL: rec.OriginURL,
			Remote:    remote,
		})
	}

	for _, remote := range remotes {
		name := strings.TrimSpace(remote.Name)
		if name == "" {
			continue
		}
		keys := snapshot.Keys(remote)
		if len(keys) == 0 {
			keys = map[string]struct{}{"name:" + strings.ToLower(name): {}}
		}
		if anyKey(keys, claimed) {
			continue
		}
		for key := range keys {
			claimed[key] = struct{}{}
		}
		r := remote
		rows = append(rows, model.PlanRow{
			Repo:   name,
			State:  model.StateMissingLocal,
			Up:     "-",
			Clean:  model.CleanUnknown,
			Action: model.ActionClone,
			Path:   filepath.Join(root, name),
			Remote: &r,
		})
	}
	return rows
}

func anyKey(keys, set map[string]struct{}) bool {
	for k := range keys {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}

// EnrichWithPullRequests decorates rows of local repositories with their open
// pull requests. Lookups are cached per owner/repo and any failure leaves the
// row without pull request data.
func (e *Engine) EnrichWithPullRequests(ctx context.Context, plan *model.Plan, prs forge.PullRequestSource, staleDays int) {
	if plan == nil || prs == nil {
		return
	}
	cache := make(map[string][]forge.PullRequest)
	for i := range plan.Rows {
		row := &plan.Rows[i]
		if row.State == model.StateMissingLocal {
			continue
		}
		owner, repo, ok := gitx.OwnerRepo(row.OriginURL)
		if !ok {
			continue
		}
		key := owner + "/" + repo
		list, seen := cache[key]
		if !seen {
			var err error
			list, err = prs.OpenPullRequests(ctx, owner, repo, staleDays)
			if err != nil {
				e.logger.Debug("pull request lookup failed", zap.String("repo", key), zap.Error(err))
				list = nil
			}
			cache[key] = list
		}
		if len(list) == 0 {
			continue
		}
		row.LatestBranch = list[0].HeadRef
		numbers := make([]string, 0, maxPRNumbers)
		for _, pr := range list {
			if len(numbers) == maxPRNumbers {
				break
			}
			numbers = append(numbers, strconv.Itoa(pr.Number))
		}
		row.PRs = strings.Join(numbers, ",")
	}
}
