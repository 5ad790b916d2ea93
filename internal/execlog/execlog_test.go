// SPDX-License-Identifier: MIT
package execlog_test

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/repofleet/internal/execlog"
	"github.com/skaphos/repofleet/internal/model"
)

var _ = Describe("Build", func() {
	now := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)

	It("aggregates totals, updated repos and branch updates", func() {
		results := []model.RepoResult{
			{Repo: "api", Actions: []model.ActionRecord{
				{Action: model.KindPull, Status: model.StatusOK},
				{Action: model.KindCheckout, Status: model.StatusOK, Branch: "release"},
			}},
			{Repo: "web", Actions: []model.ActionRecord{{Action: model.KindPush, Status: model.StatusFail}}},
			{Repo: "docs", Actions: []model.ActionRecord{{Action: model.KindClone, Status: model.StatusDryRun}}},
			{Repo: "misc", Actions: []model.ActionRecord{{Action: model.KindSkip, Status: model.StatusNone}}},
		}
		log := execlog.Build(results, model.LogOptions{Root: "/w"}, 5, now)

		Expect(log.Command).To(Equal("fleet apply"))
		Expect(log.GeneratedAt).To(Equal("2026-05-04T03:02:01Z"))
		Expect(log.Summary.ReposTargeted).To(Equal(5))
		Expect(log.Summary.ReposProcessed).To(Equal(4))
		Expect(log.Summary.ReposUpdated).To(Equal(2))
		Expect(log.Summary.BranchUpdates).To(Equal(1))
		Expect(log.Summary.ActionTotals).To(Equal(map[string]int{
			"pull:ok": 1, "checkout:ok": 1, "push:fail": 1, "clone:dry-run": 1, "skip:none": 1,
		}))
		Expect(log.BranchUpdates).To(ConsistOf(model.BranchUpdate{Repo: "api", Branch: "release"}))
		Expect(log.Options.Repos).NotTo(BeNil())
	})

	It("produces empty collections for an empty run", func() {
		log := execlog.Build(nil, model.LogOptions{}, 0, now)
		Expect(log.Results).NotTo(BeNil())
		Expect(log.BranchUpdates).NotTo(BeNil())
		Expect(log.Summary.ActionTotals).To(BeEmpty())
	})
})

var _ = Describe("persistence", func() {
	var root string

	BeforeEach(func() {
		root = GinkgoT().TempDir()
	})

	It("builds the timestamped default path", func() {
		p := execlog.DefaultPath(root, time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600)))
		Expect(p).To(Equal(filepath.Join(root, "data", "fleet-logs", "fleet-apply-20260102T020405Z.json")))
	})

	It("round-trips a log through Write and Read", func() {
		pr := 42
		in := execlog.Build([]model.RepoResult{{
			Repo: "api", State: model.StateBehindRemote, Path: "/w/api", Clean: model.CleanYes,
			PlannedActions: []string{"pull"},
			Actions:        []model.ActionRecord{{Action: model.KindPull, Status: model.StatusOK}},
			Result:         "pull:ok",
		}}, model.LogOptions{Root: "/w", CheckoutPR: &pr}, 1, time.Now())
		path := execlog.DefaultPath(root, time.Now())

		Expect(execlog.Write(path, in)).To(Succeed())
		out, err := execlog.Read(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Summary).To(Equal(in.Summary))
		Expect(out.Results).To(Equal(in.Results))
		Expect(*out.Options.CheckoutPR).To(Equal(42))

		leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp.*"))
		Expect(leftovers).To(BeEmpty())
	})

	It("rejects non-object payloads", func() {
		path := filepath.Join(root, "bad.json")
		Expect(os.WriteFile(path, []byte(`[1,2]`), 0o644)).To(Succeed())
		_, err := execlog.Read(path)
		Expect(err).To(MatchError(execlog.ErrInvalidLog))
	})

	It("lists logs newest first and ignores other files", func() {
		dir := execlog.Dir(root)
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		base := time.Now().Add(-time.Hour)
		for i, name := range []string{"a.json", "b.json", "c.json"} {
			p := filepath.Join(dir, name)
			Expect(os.WriteFile(p, []byte("{}"), 0o644)).To(Succeed())
			stamp := base.Add(time.Duration(i) * time.Minute)
			Expect(os.Chtimes(p, stamp, stamp)).To(Succeed())
		}
		Expect(os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644)).To(Succeed())

		entries, err := execlog.List(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(3))
		Expect(entries[0].Name).To(Equal("c.json"))
		Expect(entries[2].Name).To(Equal("a.json"))
	})

	It("treats a missing log directory as empty", func() {
		entries, err := execlog.List(filepath.Join(root, "nope"))
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})
})

var _ = Describe("Digest", func() {
	now := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)

	It("summarizes updated repos and branch changes", func() {
		log := execlog.Build([]model.RepoResult{
			{Repo: "api", Actions: []model.ActionRecord{{Action: model.KindPull, Status: model.StatusOK}}},
			{Repo: "web", Actions: []model.ActionRecord{{Action: model.KindCheckout, Status: model.StatusDryRun, Branch: "dev"}}},
			{Repo: "ops", Actions: []model.ActionRecord{{Action: model.KindPush, Status: model.StatusFail}}},
		}, model.LogOptions{}, 3, now)
		out := execlog.Digest(log, "/tmp/x.json")
		Expect(out).To(ContainSubstring("Total repos processed: 3"))
		Expect(out).To(ContainSubstring("Repos updated: 2"))
		Expect(out).To(ContainSubstring("Branch updates: 1"))
		Expect(out).To(ContainSubstring("- web:dev"))
		Expect(out).To(ContainSubstring("Full log: /tmp/x.json"))
		Expect(out).NotTo(ContainSubstring("- ops"))
	})

	It("agrees with the summary for a checkout without a branch name", func() {
		log := execlog.Build([]model.RepoResult{
			{Repo: "api", Actions: []model.ActionRecord{{Action: model.KindCheckout, Status: model.StatusOK}}},
		}, model.LogOptions{}, 1, now)
		Expect(log.Summary.ReposUpdated).To(Equal(1))
		out := execlog.Digest(log, "")
		Expect(out).To(ContainSubstring("Repos updated: 1"))
		Expect(out).To(ContainSubstring("Branch updates: 0"))
		Expect(out).To(ContainSubstring("- api"))
	})

	It("lists branch changes from the persisted branch updates", func() {
		log := model.ExecutionLog{
			Summary:       model.LogSummary{ReposProcessed: 1, ReposUpdated: 1, BranchUpdates: 1},
			BranchUpdates: []model.BranchUpdate{{Repo: "api", Branch: "release"}},
		}
		out := execlog.Digest(log, "")
		Expect(out).To(ContainSubstring("Branch updates: 1"))
		Expect(out).To(ContainSubstring("- api:release"))
	})

	It("caps long lists", func() {
		var results []model.RepoResult
		for i := 0; i < 20; i++ {
			results = append(results, model.RepoResult{
				Repo:    fmt.Sprintf("r%02d", i),
				Actions: []model.ActionRecord{{Action: model.KindPull, Status: model.StatusOK}},
			})
		}
		out := execlog.Digest(execlog.Build(results, model.LogOptions{}, 20, now), "")
		Expect(out).To(ContainSubstring("Repos updated: 20"))
		Expect(out).To(ContainSubstring("- ... and 5 more"))
		Expect(out).NotTo(ContainSubstring("Full log"))
	})
})
