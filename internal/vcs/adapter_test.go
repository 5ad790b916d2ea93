package vcs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/repofleet/internal/vcs"
)

type runnerStub struct {
	responses map[string]struct {
		out string
		err error
	}
	calls []string
}

func (r *runnerStub) Run(_ context.Context, dir string, args ...string) (string, error) {
	key := dir + ":" + strings.Join(args, " ")
	r.calls = append(r.calls, key)
	if resp, ok := r.responses[key]; ok {
		return resp.out, resp.err
	}
	return "", errors.New("unexpected " + key)
}

func (r *runnerStub) set(key, out string, err error) {
	if r.responses == nil {
		r.responses = map[string]struct {
			out string
			err error
		}{}
	}
	r.responses[key] = struct {
		out string
		err error
	}{out: out, err: err}
}

var _ = Describe("GitAdapter.Inspect", func() {
	var (
		repo string
		r    *runnerStub
	)

	BeforeEach(func() {
		repo = filepath.Join(GinkgoT().TempDir(), "tool")
		Expect(os.MkdirAll(filepath.Join(repo, ".git"), 0o755)).To(Succeed())
		r = &runnerStub{}
		r.set(repo+":rev-parse --abbrev-ref HEAD", "main", nil)
		r.set(repo+":rev-parse --abbrev-ref --symbolic-full-name @{u}", "origin/main", nil)
		r.set(repo+":rev-list --left-right --count HEAD...origin/main", "1\t2", nil)
		r.set(repo+":remote", "origin", nil)
		r.set(repo+":symbolic-ref -q --short refs/remotes/origin/HEAD", "origin/main", nil)
		r.set(repo+":remote get-url origin", "git@github.com:alice/tool.git", nil)
		r.set(repo+":rev-parse --git-dir", ".git", nil)
	})

	It("builds a full record", func() {
		rec, err := vcs.NewGitAdapter(r).Inspect(context.Background(), repo)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Name).To(Equal("tool"))
		Expect(rec.Branch).To(Equal("main"))
		Expect(rec.UpstreamRef).To(Equal("origin/main"))
		Expect(*rec.UpstreamAhead).To(Equal(1))
		Expect(*rec.UpstreamBehind).To(Equal(2))
		Expect(rec.DefaultRef).To(Equal("origin/main"))
		Expect(rec.DefaultRefs).To(Equal([]string{"origin/main"}))
		Expect(rec.OriginURL).To(Equal("git@github.com:alice/tool.git"))
		Expect(rec.Clean).To(BeTrue())
	})

	It("leaves upstream counts nil without an upstream", func() {
		r.set(repo+":rev-parse --abbrev-ref --symbolic-full-name @{u}", "", errors.New("fatal: no upstream configured"))
		rec, err := vcs.NewGitAdapter(r).Inspect(context.Background(), repo)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.UpstreamAhead).To(BeNil())
		Expect(rec.UpstreamBehind).To(BeNil())
		Expect(rec.HasUpstream()).To(BeFalse())
	})

	It("returns a partial record when the branch cannot be read", func() {
		r.set(repo+":rev-parse --abbrev-ref HEAD", "", errors.New("fatal: bad object HEAD"))
		rec, err := vcs.NewGitAdapter(r).Inspect(context.Background(), repo)
		Expect(err).To(HaveOccurred())
		Expect(rec.Path).To(Equal(repo))
		Expect(rec.Name).To(Equal("tool"))
		Expect(rec.Branch).To(BeEmpty())
		Expect(rec.UpstreamRef).To(BeEmpty())
		Expect(rec.OriginURL).To(Equal("git@github.com:alice/tool.git"))
		Expect(rec.DefaultRefs).To(Equal([]string{"origin/main"}))
		Expect(rec.Clean).To(BeTrue())
	})

	It("reads the origin of a repository with no commits yet", func() {
		r.set(repo+":rev-parse --abbrev-ref HEAD", "HEAD", errors.New("fatal: ambiguous argument 'HEAD': unknown revision"))
		r.set(repo+":symbolic-ref -q --short HEAD", "main", nil)
		r.set(repo+":rev-parse --abbrev-ref --symbolic-full-name @{u}", "", errors.New("fatal: no upstream configured"))
		r.set(repo+":rev-list --left-right --count HEAD...origin/main", "", errors.New("fatal: bad revision"))
		rec, err := vcs.NewGitAdapter(r).Inspect(context.Background(), repo)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Branch).To(Equal("main"))
		Expect(rec.OriginURL).To(Equal("git@github.com:alice/tool.git"))
		Expect(rec.DefaultAhead).To(BeNil())
		Expect(rec.HasUpstream()).To(BeFalse())
	})

	It("keeps reading after the remote list fails", func() {
		r.set(repo+":remote", "", errors.New("fatal: bad config"))
		rec, err := vcs.NewGitAdapter(r).Inspect(context.Background(), repo)
		Expect(err).To(HaveOccurred())
		Expect(rec.Branch).To(Equal("main"))
		Expect(rec.OriginURL).To(Equal("git@github.com:alice/tool.git"))
		Expect(rec.Clean).To(BeTrue())
	})
})

var _ = Describe("GitAdapter mutations", func() {
	It("delegates to git", func() {
		r := &runnerStub{}
		r.set("/repo:pull --ff-only", "", nil)
		r.set("/repo:push", "", nil)
		r.set("/repo:fetch --prune", "", nil)
		r.set("/repo:rev-parse --verify --quiet origin/feat", "abc", nil)
		r.set("/repo:checkout -b feat --track origin/feat", "", nil)
		r.set("/src:clone https://example.com/o/r.git /src/r", "", nil)

		a := vcs.NewGitAdapter(r)
		ctx := context.Background()
		Expect(a.Name()).To(Equal("git"))
		Expect(a.Pull(ctx, "/repo")).To(Succeed())
		Expect(a.Push(ctx, "/repo")).To(Succeed())
		Expect(a.Fetch(ctx, "/repo")).To(Succeed())
		Expect(a.RemoteBranchExists(ctx, "/repo", "feat")).To(BeTrue())
		Expect(a.RemoteBranchExists(ctx, "/repo", "gone")).To(BeFalse())
		Expect(a.CheckoutTracking(ctx, "/repo", "feat")).To(Succeed())
		Expect(a.Clone(ctx, "https://example.com/o/r.git", "/src/r")).To(Succeed())
		Expect(a.NormalizeURL("https://Example.com/O/R.git")).To(Equal("example.com/o/r"))
	})
})
