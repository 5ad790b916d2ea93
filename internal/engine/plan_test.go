package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/repofleet/internal/engine"
	"github.com/skaphos/repofleet/internal/forge"
	"github.com/skaphos/repofleet/internal/gitx"
	"github.com/skaphos/repofleet/internal/model"
	"github.com/skaphos/repofleet/internal/snapshot"
)

func makeRepoDirs(root string, names ...string) {
	for _, name := range names {
		Expect(os.MkdirAll(filepath.Join(root, name, ".git"), 0o755)).To(Succeed())
	}
}

func local(name, origin string, ahead, behind int, clean bool) model.LocalRepoRecord {
	return model.LocalRepoRecord{
		Name:           name,
		Branch:         "main",
		UpstreamRef:    "origin/main",
		UpstreamAhead:  intPtr(ahead),
		UpstreamBehind: intPtr(behind),
		OriginURL:      origin,
		Clean:          clean,
	}
}

func rowsByRepo(plan *model.Plan) map[string]model.PlanRow {
	out := map[string]model.PlanRow{}
	for _, row := range plan.Rows {
		out[row.Repo+"|"+string(row.State)] = row
	}
	return out
}

var _ = Describe("Plan", func() {
	var (
		root    string
		adapter *fakeAdapter
		eng     *engine.Engine
		remote  *snapshot.Snapshot
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		makeRepoDirs(root, "api", "web", "scratch", "tool", "orphan")
		adapter = newFakeAdapter()
		adapter.repos["api"] = local("api", "git@github.com:acme/api.git", 0, 3, true)
		adapter.repos["web"] = local("web", "https://github.com/acme/web", 0, 0, true)
		adapter.repos["scratch"] = model.LocalRepoRecord{Name: "scratch", Branch: "main", Clean: true}
		adapter.repos["tool"] = local("tool", "git@github.com:acme/tool.git", 2, 1, false)
		adapter.repos["orphan"] = local("orphan", "git@github.com:acme/orphan.git", 0, 0, true)
		eng = engine.New(adapter, nil)
		remote = &snapshot.Snapshot{
			Server:   "github.com",
			Provider: "github",
			Repos: []model.RemoteRepoRecord{
				{Name: "api", CloneURL: "https://github.com/acme/api.git"},
				{Name: "web", SSHURL: "git@github.com:acme/web.git"},
				{Name: "tool", HTMLURL: "https://github.com/acme/tool"},
				{Name: "docs", SSHURL: "git@github.com:acme/docs.git"},
				{Name: "docs", CloneURL: "https://github.com/acme/docs.git", HTMLURL: "https://github.com/acme/docs"},
				{Name: "", SSHURL: "git@github.com:acme/ghost.git"},
				{Name: "wiki", HTMLURL: "https://github.com/acme/wiki"},
			},
		}
	})

	It("classifies and joins local and remote repositories", func() {
		plan, err := eng.Plan(context.Background(), engine.PlanOptions{Root: root}, snapshot.Static{Snap: remote})
		Expect(err).NotTo(HaveOccurred())

		rows := rowsByRepo(plan)
		Expect(rows).To(HaveLen(7))
		Expect(rows["api|behind-remote"].Action).To(Equal(model.ActionPull))
		Expect(rows["api|behind-remote"].Up).To(Equal("0↑/3↓"))
		Expect(rows["api|behind-remote"].Clean).To(Equal(model.CleanYes))
		Expect(rows["web|in-sync"].Action).To(Equal(model.ActionNone))
		Expect(rows["web|in-sync"].Up).To(Equal("≡"))
		Expect(rows["tool|diverged"].Action).To(Equal(model.ActionManual))
		Expect(rows["tool|diverged"].Clean).To(Equal(model.CleanNo))
		Expect(rows["scratch|local-only"].Remote).To(BeNil())
		Expect(rows["orphan|local-only"].Action).To(Equal(model.ActionNone))

		docs := rows["docs|missing-local"]
		Expect(docs.Action).To(Equal(model.ActionClone))
		Expect(docs.Path).To(Equal(filepath.Join(root, "docs")))
		Expect(docs.Clean).To(Equal(model.CleanUnknown))
		Expect(rows).To(HaveKey("wiki|missing-local"))

		Expect(plan.Meta).To(Equal(model.PlanMeta{Server: "github.com", Provider: "github", RemoteCount: 7, LocalCount: 5}))
	})

	It("sorts rows by lowercase name then state", func() {
		plan, err := eng.Plan(context.Background(), engine.PlanOptions{Root: root}, snapshot.Static{Snap: remote})
		Expect(err).NotTo(HaveOccurred())
		var names []string
		for _, row := range plan.Rows {
			names = append(names, row.Repo)
		}
		Expect(names).To(Equal([]string{"api", "docs", "orphan", "scratch", "tool", "web", "wiki"}))
	})

	It("keeps inspection failures on the row instead of failing the plan", func() {
		adapter.inspectErr["web"] = errors.New("fatal: could not read from remote repository: timed out")
		plan, err := eng.Plan(context.Background(), engine.PlanOptions{Root: root}, snapshot.Static{Snap: remote})
		Expect(err).NotTo(HaveOccurred())
		Expect(rowsByRepo(plan)).To(HaveKey("web|in-sync"))
	})

	It("joins a partially inspected repository to its remote", func() {
		makeRepoDirs(root, "docs")
		adapter.repos["docs"] = model.LocalRepoRecord{Name: "docs", OriginURL: "git@github.com:acme/docs.git"}
		adapter.inspectErr["docs"] = errors.New("current branch: fatal: ambiguous argument 'HEAD'")
		plan, err := eng.Plan(context.Background(), engine.PlanOptions{Root: root}, snapshot.Static{Snap: remote})
		Expect(err).NotTo(HaveOccurred())
		rows := rowsByRepo(plan)
		Expect(rows).To(HaveKey("docs|in-sync"))
		Expect(rows).NotTo(HaveKey("docs|missing-local"))
		Expect(rows["docs|in-sync"].Remote).NotTo(BeNil())
	})

	It("fetches before inspecting when asked", func() {
		_, err := eng.Plan(context.Background(), engine.PlanOptions{Root: root, Fetch: true, Concurrency: 3}, snapshot.Static{Snap: remote})
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.fetches).To(ConsistOf("api", "web", "scratch", "tool", "orphan"))
		Expect(adapter.Mutations()).To(BeEmpty())
	})

	It("reports progress for every repository", func() {
		var labels []string
		opts := engine.PlanOptions{Root: root, OnStart: func(i, total int, label string) {
			Expect(total).To(Equal(5))
			labels = append(labels, label)
		}}
		_, err := eng.Plan(context.Background(), opts, snapshot.Static{Snap: remote})
		Expect(err).NotTo(HaveOccurred())
		Expect(labels).To(HaveLen(5))
		Expect(labels[0]).To(Equal("Scanning api"))
	})

	It("fails when the remote source fails", func() {
		_, err := eng.Plan(context.Background(), engine.PlanOptions{Root: root}, failingSource{})
		Expect(err).To(MatchError(forge.ErrMissingUser))
	})

	It("stops before starting when cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := eng.Plan(ctx, engine.PlanOptions{Root: root}, snapshot.Static{Snap: remote})
		Expect(err).To(MatchError(context.Canceled))
	})
})

type failingSource struct{}

func (failingSource) Snapshot(context.Context) (*snapshot.Snapshot, error) {
	return nil, forge.ErrMissingUser
}

var _ = Describe("BuildRows", func() {
	It("matches a remote through any of its URLs regardless of field", func() {
		origin := "git@github.com:acme/widgets.git"
		for _, remote := range []model.RemoteRepoRecord{
			{Name: "widgets", SSHURL: origin},
			{Name: "widgets", CloneURL: "https://github.com/acme/widgets.git"},
			{Name: "widgets", HTMLURL: "https://github.com/Acme/Widgets/"},
		} {
			rows := engine.BuildRows("/w", []model.LocalRepoRecord{local("widgets", origin, 0, 0, true)}, []model.RemoteRepoRecord{remote}, gitx.NormalizeURL)
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].State).To(Equal(model.StateInSync))
			Expect(rows[0].Remote).NotTo(BeNil())
		}
	})

	It("emits exactly one missing-local row per unclaimed remote", func() {
		remotes := []model.RemoteRepoRecord{
			{Name: "a", SSHURL: "git@github.com:acme/a.git"},
			{Name: "a", CloneURL: "https://github.com/acme/a.git"},
			{Name: "b", SSHURL: "git@github.com:acme/b.git"},
			{Name: "c"},
			{Name: "c"},
		}
		rows := engine.BuildRows("/w", nil, remotes, gitx.NormalizeURL)
		Expect(rows).To(HaveLen(3))
		for _, row := range rows {
			Expect(row.State).To(Equal(model.StateMissingLocal))
		}
	})

	It("matches a local record that carries an inspection error", func() {
		rec := model.LocalRepoRecord{Name: "a", Path: "/w/a", OriginURL: "git@github.com:acme/a.git", Error: "current branch: exit status 128"}
		rows := engine.BuildRows("/w", []model.LocalRepoRecord{rec}, []model.RemoteRepoRecord{{Name: "a", CloneURL: "https://github.com/acme/a.git"}}, gitx.NormalizeURL)
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].State).To(Equal(model.StateInSync))
		Expect(rows[0].Path).To(Equal("/w/a"))
	})

	It("does not emit a missing-local row for a claimed remote", func() {
		remotes := []model.RemoteRepoRecord{{Name: "a", SSHURL: "git@github.com:acme/a.git", HTMLURL: "https://github.com/acme/a"}}
		rows := engine.BuildRows("/w", []model.LocalRepoRecord{local("a", "https://github.com/acme/a.git", 1, 0, true)}, remotes, gitx.NormalizeURL)
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].State).To(Equal(model.StateAheadRemote))
	})
})

var _ = Describe("Classify", func() {
	DescribeTable("returns one state per combination",
		func(matched bool, ahead, behind *int, state model.SyncState, action model.PlanAction) {
			gotState, gotAction := engine.Classify(matched, ahead, behind)
			Expect(gotState).To(Equal(state))
			Expect(gotAction).To(Equal(action))
		},
		Entry("unmatched and level", false, intPtr(0), intPtr(0), model.StateLocalOnly, model.ActionNone),
		Entry("unmatched and behind", false, intPtr(0), intPtr(4), model.StateLocalOnly, model.ActionNone),
		Entry("matched and level", true, intPtr(0), intPtr(0), model.StateInSync, model.ActionNone),
		Entry("matched without upstream", true, nil, nil, model.StateInSync, model.ActionNone),
		Entry("behind", true, intPtr(0), intPtr(3), model.StateBehindRemote, model.ActionPull),
		Entry("ahead", true, intPtr(2), intPtr(0), model.StateAheadRemote, model.ActionPush),
		Entry("diverged", true, intPtr(2), intPtr(1), model.StateDiverged, model.ActionManual),
	)

	It("is total over small counts", func() {
		valid := map[model.SyncState]bool{
			model.StateInSync: true, model.StateBehindRemote: true, model.StateAheadRemote: true,
			model.StateDiverged: true, model.StateLocalOnly: true,
		}
		for _, matched := range []bool{false, true} {
			for a := 0; a < 4; a++ {
				for b := 0; b < 4; b++ {
					state, _ := engine.Classify(matched, intPtr(a), intPtr(b))
					Expect(valid).To(HaveKey(state))
					Expect(state == model.StateDiverged).To(Equal(matched && a > 0 && b > 0))
				}
			}
		}
	})
})

var _ = Describe("EnrichWithPullRequests", func() {
	It("attaches the latest branch and up to eight numbers", func() {
		var open []forge.PullRequest
		for n := 20; n > 10; n-- {
			open = append(open, forge.PullRequest{Number: n, HeadRef: "feat/" + string(rune('a'+n-11))})
		}
		prs := &fakePRs{open: map[string][]forge.PullRequest{"acme/api": open}}
		plan := &model.Plan{Rows: []model.PlanRow{
			{Repo: "api", State: model.StateInSync, OriginURL: "git@github.com:acme/api.git"},
			{Repo: "api-copy", State: model.StateBehindRemote, OriginURL: "https://github.com/acme/api.git"},
			{Repo: "docs", State: model.StateMissingLocal},
		}}

		engine.New(newFakeAdapter(), nil).EnrichWithPullRequests(context.Background(), plan, prs, 30)

		Expect(plan.Rows[0].LatestBranch).To(Equal("feat/j"))
		Expect(plan.Rows[0].PRs).To(Equal("20,19,18,17,16,15,14,13"))
		Expect(plan.Rows[1].PRs).To(Equal(plan.Rows[0].PRs))
		Expect(plan.Rows[2].PRs).To(BeEmpty())
		Expect(prs.calls).To(Equal(1))
	})

	It("degrades lookup failures to no data", func() {
		prs := &fakePRs{openErr: errors.New("rate limited")}
		plan := &model.Plan{Rows: []model.PlanRow{{Repo: "api", State: model.StateInSync, OriginURL: "git@github.com:acme/api.git"}}}
		engine.New(newFakeAdapter(), nil).EnrichWithPullRequests(context.Background(), plan, prs, 30)
		Expect(plan.Rows[0].LatestBranch).To(BeEmpty())
		Expect(plan.Rows[0].PRs).To(BeEmpty())
	})
})
