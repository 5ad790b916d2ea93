package gitx_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/repofleet/internal/gitx"
)

var _ = Describe("GitRunner.Run", func() {
	var runner *gitx.GitRunner

	BeforeEach(func() {
		runner = &gitx.GitRunner{}
	})

	It("runs git version successfully", func() {
		out, err := runner.Run(context.Background(), "", "version")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("git version"))
	})

	It("errors for nonexistent directory", func() {
		_, err := runner.Run(context.Background(), "/nonexistent/path/xyz", "status")
		Expect(err).To(HaveOccurred())
	})

	It("includes stderr in the error", func() {
		_, err := runner.Run(context.Background(), GinkgoT().TempDir(), "rev-parse", "--git-dir")
		Expect(err).To(HaveOccurred())
		Expect(gitx.ClassifyError(err)).To(Equal("corrupt"))
	})

	It("respects context cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := runner.Run(ctx, "", "version")
		Expect(err).To(HaveOccurred())
		Expect(gitx.ClassifyError(err)).To(Equal("timeout"))
	})
})

var _ = Describe("CurrentBranch", func() {
	It("returns the branch name", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rev-parse --abbrev-ref HEAD": {Output: "main"},
		}}
		branch, err := gitx.CurrentBranch(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(branch).To(Equal("main"))
	})

	It("reports detached HEAD", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rev-parse --abbrev-ref HEAD": {Output: "HEAD"},
		}}
		branch, err := gitx.CurrentBranch(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(branch).To(Equal(gitx.DetachedBranch))
	})

	It("names the unborn branch of a repository without commits", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rev-parse --abbrev-ref HEAD":  {Output: "HEAD", Err: errors.New("fatal: ambiguous argument 'HEAD': unknown revision")},
			"/repo:symbolic-ref -q --short HEAD": {Output: "main\n"},
		}}
		branch, err := gitx.CurrentBranch(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(branch).To(Equal("main"))
	})

	It("propagates failures", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rev-parse --abbrev-ref HEAD": {Err: errors.New("fatal: not a git repository")},
		}}
		_, err := gitx.CurrentBranch(context.Background(), mock, "/repo")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Upstream and AheadBehind", func() {
	It("returns empty upstream when none is configured", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rev-parse --abbrev-ref --symbolic-full-name @{u}": {Err: errors.New("fatal: no upstream configured")},
		}}
		Expect(gitx.Upstream(context.Background(), mock, "/repo")).To(BeEmpty())
	})

	It("counts ahead and behind commits", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rev-list --left-right --count HEAD...origin/main": {Output: "2\t5"},
		}}
		ahead, behind, err := gitx.AheadBehind(context.Background(), mock, "/repo", "HEAD", "origin/main")
		Expect(err).NotTo(HaveOccurred())
		Expect(ahead).To(Equal(2))
		Expect(behind).To(Equal(5))
	})

	It("rejects unparsable output", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:rev-list --left-right --count HEAD...origin/main": {Output: "garbage"},
		}}
		_, _, err := gitx.AheadBehind(context.Background(), mock, "/repo", "HEAD", "origin/main")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("DefaultRefs", func() {
	It("uses the remote HEAD symref and falls back to main or master", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:remote": {Output: "origin\nupstream\nmirror"},
			"/repo:symbolic-ref -q --short refs/remotes/origin/HEAD":   {Output: "origin/develop"},
			"/repo:symbolic-ref -q --short refs/remotes/upstream/HEAD": {Err: errors.New("not a symref")},
			"/repo:rev-parse --verify --quiet upstream/main":           {Err: errors.New("missing")},
			"/repo:rev-parse --verify --quiet upstream/master":         {Output: "abc123"},
			"/repo:symbolic-ref -q --short refs/remotes/mirror/HEAD":   {Err: errors.New("not a symref")},
			"/repo:rev-parse --verify --quiet mirror/main":             {Err: errors.New("missing")},
			"/repo:rev-parse --verify --quiet mirror/master":           {Err: errors.New("missing")},
		}}
		refs, err := gitx.DefaultRefs(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(refs).To(Equal([]string{"origin/develop", "upstream/master"}))
		Expect(gitx.PreferredDefaultRef(refs)).To(Equal("origin/develop"))
	})

	It("prefers the alphabetically first remote without origin", func() {
		Expect(gitx.PreferredDefaultRef([]string{"zeta/main", "alpha/main"})).To(Equal("alpha/main"))
		Expect(gitx.PreferredDefaultRef(nil)).To(BeEmpty())
	})
})

var _ = Describe("OriginURL", func() {
	It("returns the origin URL", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:remote get-url origin": {Output: "git@github.com:o/r.git"},
		}}
		url, err := gitx.OriginURL(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(url).To(Equal("git@github.com:o/r.git"))
	})

	It("treats a missing origin as empty", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:remote get-url origin": {Err: errors.New("error: No such remote 'origin'")},
		}}
		url, err := gitx.OriginURL(context.Background(), mock, "/repo")
		Expect(err).NotTo(HaveOccurred())
		Expect(url).To(BeEmpty())
	})

	It("surfaces other failures", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:remote get-url origin": {Err: errors.New("fatal: not a git repository")},
		}}
		_, err := gitx.OriginURL(context.Background(), mock, "/repo")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("IsClean", func() {
	var repo string

	BeforeEach(func() {
		repo = GinkgoT().TempDir()
		Expect(os.MkdirAll(filepath.Join(repo, ".git"), 0o755)).To(Succeed())
	})

	It("is clean without in-progress markers", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			repo + ":rev-parse --git-dir": {Output: ".git"},
		}}
		clean, err := gitx.IsClean(context.Background(), mock, repo)
		Expect(err).NotTo(HaveOccurred())
		Expect(clean).To(BeTrue())
	})

	DescribeTable("is not clean while an operation is in progress",
		func(marker string, isDir bool) {
			target := filepath.Join(repo, ".git", marker)
			if isDir {
				Expect(os.MkdirAll(target, 0o755)).To(Succeed())
			} else {
				Expect(os.WriteFile(target, []byte("x"), 0o644)).To(Succeed())
			}
			mock := &MockRunner{Responses: map[string]MockResponse{
				repo + ":rev-parse --git-dir": {Output: ".git"},
			}}
			clean, err := gitx.IsClean(context.Background(), mock, repo)
			Expect(err).NotTo(HaveOccurred())
			Expect(clean).To(BeFalse())
			Expect(gitx.InProgressOperation(filepath.Join(repo, ".git"))).To(Equal(marker))
		},
		Entry("merge", "MERGE_HEAD", false),
		Entry("rebase head", "REBASE_HEAD", false),
		Entry("cherry-pick", "CHERRY_PICK_HEAD", false),
		Entry("revert", "REVERT_HEAD", false),
		Entry("bisect", "BISECT_LOG", false),
		Entry("interactive rebase", "rebase-merge", true),
		Entry("am rebase", "rebase-apply", true),
	)

	It("accepts absolute git dirs from linked worktrees", func() {
		external := GinkgoT().TempDir()
		mock := &MockRunner{Responses: map[string]MockResponse{
			repo + ":rev-parse --git-dir": {Output: external},
		}}
		gitDir, err := gitx.GitDir(context.Background(), mock, repo)
		Expect(err).NotTo(HaveOccurred())
		Expect(gitDir).To(Equal(filepath.Clean(external)))
	})
})

var _ = Describe("mutating wrappers", func() {
	It("issues the expected git commands", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:fetch --prune":                           {},
			"/repo:pull --ff-only":                          {},
			"/repo:push":                                    {},
			"/repo:checkout main":                           {},
			"/repo:checkout -b feat --track origin/feat":    {},
			"/work:clone git@github.com:o/r.git /work/r":    {},
			"/repo:show-ref --verify --quiet refs/heads/main": {},
		}}
		ctx := context.Background()
		Expect(gitx.Fetch(ctx, mock, "/repo")).To(Succeed())
		Expect(gitx.PullFastForward(ctx, mock, "/repo")).To(Succeed())
		Expect(gitx.Push(ctx, mock, "/repo")).To(Succeed())
		Expect(gitx.Checkout(ctx, mock, "/repo", "main")).To(Succeed())
		Expect(gitx.CheckoutTracking(ctx, mock, "/repo", "feat")).To(Succeed())
		Expect(gitx.Clone(ctx, mock, "git@github.com:o/r.git", "/work/r")).To(Succeed())
		Expect(gitx.LocalBranchExists(ctx, mock, "/repo", "main")).To(BeTrue())
		Expect(gitx.LocalBranchExists(ctx, mock, "/repo", "other")).To(BeFalse())
	})

	It("propagates push failures", func() {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"/repo:push": {Err: errors.New("push failed")},
		}}
		Expect(gitx.Push(context.Background(), mock, "/repo")).NotTo(Succeed())
	})
})
