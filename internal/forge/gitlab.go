package forge

import (
	"context"
	"fmt"
	"strings"

	gl "gitlab.com/gitlab-org/api/client-go"
	"go.uber.org/zap"

	"github.com/skaphos/repofleet/internal/config"
	"github.com/skaphos/repofleet/internal/model"
)

// GitLabClient lists projects through the GitLab REST API.
type GitLabClient struct {
	client *gl.Client
	server config.Server
	logger *zap.Logger
}

func newGitLabClient(server config.Server, o clientOptions) (*GitLabClient, error) {
	client, err := gl.NewClient(
		server.Token,
		gl.WithBaseURL(BaseURL(server)),
		gl.WithHTTPClient(o.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("gitlab client: %w", err)
	}
	return &GitLabClient{client: client, server: server, logger: o.logger}, nil
}

func (c *GitLabClient) Provider() string { return config.ProviderGitLab }

// ListRepos lists the projects the token is a member of when no user is
// configured, otherwise the user's own projects.
func (c *GitLabClient) ListRepos(ctx context.Context, opts ListOptions) ([]model.RemoteRepoRecord, error) {
	user := strings.TrimSpace(c.server.User)
	if user == "" && c.server.Token == "" {
		return nil, fmt.Errorf("gitlab: %w without a token", ErrMissingUser)
	}

	listOpts := &gl.ListProjectsOptions{ListOptions: gl.ListOptions{PerPage: 100}}
	membership := c.server.Token != "" && user == ""
	if membership {
		listOpts.Membership = gl.Ptr(true)
	}

	var out []model.RemoteRepoRecord
	for {
		var (
			projects []*gl.Project
			resp     *gl.Response
			err      error
		)
		if membership {
			projects, resp, err = c.client.Projects.ListProjects(listOpts, gl.WithContext(ctx))
		} else {
			projects, resp, err = c.client.Projects.ListUserProjects(user, listOpts, gl.WithContext(ctx))
		}
		if err != nil {
			return nil, fmt.Errorf("gitlab list projects: %w", err)
		}
		for _, p := range projects {
			if p == nil {
				continue
			}
			if !opts.IncludeForks && p.ForkedFromProject != nil {
				continue
			}
			rec := model.RemoteRepoRecord{
				Name:          p.Path,
				SSHURL:        p.SSHURLToRepo,
				CloneURL:      p.HTTPURLToRepo,
				HTMLURL:       p.WebURL,
				DefaultBranch: p.DefaultBranch,
				Private:       p.Visibility != gl.PublicVisibility,
				Fork:          p.ForkedFromProject != nil,
			}
			if p.Namespace != nil {
				rec.Owner = p.Namespace.FullPath
			}
			out = append(out, rec)
		}
		c.logger.Debug("gitlab page fetched", zap.Int("count", len(projects)))
		if resp == nil || resp.NextPage == 0 {
			break
		}
		listOpts.Page = resp.NextPage
	}
	return out, nil
}
