package forge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"
	"go.uber.org/zap"

	"github.com/skaphos/repofleet/internal/config"
	"github.com/skaphos/repofleet/internal/model"
)

const githubPerPage = 100

// GitHubClient lists repositories and pull requests through the GitHub REST
// API.
type GitHubClient struct {
	client *gh.Client
	server config.Server
	opts   clientOptions
	now    func() time.Time
}

func newGitHubClient(server config.Server, o clientOptions) (*GitHubClient, error) {
	client, err := githubAPI(server, server.Token, o)
	if err != nil {
		return nil, err
	}
	return &GitHubClient{client: client, server: server, opts: o, now: time.Now}, nil
}

func githubAPI(server config.Server, token string, o clientOptions) (*gh.Client, error) {
	client := gh.NewClient(o.httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if base := strings.TrimSpace(server.BaseURL); base != "" {
		u, err := url.Parse(strings.TrimRight(base, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github base url %q: %w", base, err)
		}
		client.BaseURL = u
	}
	return client, nil
}

func (c *GitHubClient) Provider() string { return config.ProviderGitHub }

// ListRepos returns repositories owned by the configured user, plus those of
// any configured organizations. With a token the authenticated listing is
// used so private repositories are included.
func (c *GitHubClient) ListRepos(ctx context.Context, opts ListOptions) ([]model.RemoteRepoRecord, error) {
	user := strings.TrimSpace(c.server.User)
	if user == "" && !c.server.SkipUserRepos {
		return nil, fmt.Errorf("github: %w", ErrMissingUser)
	}
	seen := make(map[string]struct{})
	var out []model.RemoteRepoRecord
	appendRepo := func(repo *gh.Repository, ownerFilter, orgLabel string) {
		owner := repo.GetOwner().GetLogin()
		if ownerFilter != "" && !strings.EqualFold(owner, ownerFilter) {
			return
		}
		if !opts.IncludeForks && repo.GetFork() {
			return
		}
		fullName := repo.GetFullName()
		if fullName == "" {
			fullName = owner + "/" + repo.GetName()
		}
		if _, ok := seen[fullName]; ok {
			return
		}
		seen[fullName] = struct{}{}
		out = append(out, model.RemoteRepoRecord{
			Name:          repo.GetName(),
			SSHURL:        repo.GetSSHURL(),
			CloneURL:      repo.GetCloneURL(),
			HTMLURL:       repo.GetHTMLURL(),
			DefaultBranch: repo.GetDefaultBranch(),
			Private:       repo.GetPrivate(),
			Owner:         owner,
			OrgLabel:      orgLabel,
			Fork:          repo.GetFork(),
		})
	}

	if !c.server.SkipUserRepos {
		if c.server.Token != "" {
			listOpts := &gh.RepositoryListByAuthenticatedUserOptions{
				Affiliation: "owner",
				ListOptions: gh.ListOptions{PerPage: githubPerPage},
			}
			for {
				repos, resp, err := c.client.Repositories.ListByAuthenticatedUser(ctx, listOpts)
				if err != nil {
					return nil, fmt.Errorf("github list user repos: %w", err)
				}
				for _, repo := range repos {
					appendRepo(repo, user, "")
				}
				c.opts.logger.Debug("github page fetched", zap.String("user", user), zap.Int("page", listOpts.Page), zap.Int("count", len(repos)))
				if resp == nil || resp.NextPage == 0 {
					break
				}
				listOpts.Page = resp.NextPage
			}
		} else {
			listOpts := &gh.RepositoryListByUserOptions{
				Type:        "owner",
				ListOptions: gh.ListOptions{PerPage: githubPerPage},
			}
			for {
				repos, resp, err := c.client.Repositories.ListByUser(ctx, user, listOpts)
				if err != nil {
					return nil, fmt.Errorf("github list repos of %s: %w", user, err)
				}
				for _, repo := range repos {
					appendRepo(repo, user, "")
				}
				if resp == nil || resp.NextPage == 0 {
					break
				}
				listOpts.Page = resp.NextPage
			}
		}
	}

	for _, org := range c.server.Organizations {
		name := strings.TrimSpace(org.Name)
		if name == "" {
			continue
		}
		client := c.client
		if org.Token != "" && org.Token != c.server.Token {
			var err error
			client, err = githubAPI(c.server, org.Token, c.opts)
			if err != nil {
				return nil, err
			}
		}
		listOpts := &gh.RepositoryListByOrgOptions{
			Type:        "all",
			ListOptions: gh.ListOptions{PerPage: githubPerPage},
		}
		for {
			repos, resp, err := client.Repositories.ListByOrg(ctx, name, listOpts)
			if err != nil {
				return nil, fmt.Errorf("github list repos of org %s: %w", name, err)
			}
			for _, repo := range repos {
				appendRepo(repo, name, name)
			}
			if resp == nil || resp.NextPage == 0 {
				break
			}
			listOpts.Page = resp.NextPage
		}
	}
	return out, nil
}

func (c *GitHubClient) OpenPullRequests(ctx context.Context, owner, repo string, staleDays int) ([]PullRequest, error) {
	if err := validateOwnerRepo(owner, repo); err != nil {
		return nil, err
	}
	prs, _, err := c.client.PullRequests.List(ctx, owner, repo, &gh.PullRequestListOptions{
		State:       "open",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: githubPerPage},
	})
	if err != nil {
		return nil, fmt.Errorf("github list pull requests of %s/%s: %w", owner, repo, mapGitHubError(err))
	}
	if staleDays < 0 {
		staleDays = 0
	}
	cutoff := c.now().UTC().Add(-time.Duration(staleDays) * 24 * time.Hour)
	out := make([]PullRequest, 0, len(prs))
	for _, pr := range prs {
		updated := pr.GetUpdatedAt().Time
		if !updated.IsZero() && updated.Before(cutoff) {
			continue
		}
		out = append(out, PullRequest{
			Number:    pr.GetNumber(),
			Title:     pr.GetTitle(),
			HeadRef:   pr.GetHead().GetRef(),
			HTMLURL:   pr.GetHTMLURL(),
			UpdatedAt: updated,
		})
	}
	return out, nil
}

func (c *GitHubClient) PullRequestBranch(ctx context.Context, owner, repo string, number int) (string, error) {
	if err := validateOwnerRepo(owner, repo); err != nil {
		return "", err
	}
	pr, _, err := c.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return "", fmt.Errorf("github pull request %s/%s#%d: %w", owner, repo, number, mapGitHubError(err))
	}
	branch := strings.TrimSpace(pr.GetHead().GetRef())
	if branch == "" {
		return "", fmt.Errorf("github pull request %s/%s#%d has no head branch: %w", owner, repo, number, ErrNotFound)
	}
	return branch, nil
}

func validateOwnerRepo(owner, repo string) error {
	if err := ValidateRepoComponent(owner); err != nil {
		return err
	}
	return ValidateRepoComponent(repo)
}

func mapGitHubError(err error) error {
	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, errResp.Message)
	}
	return err
}
