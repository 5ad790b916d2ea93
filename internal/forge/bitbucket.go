package forge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/skaphos/repofleet/internal/config"
	"github.com/skaphos/repofleet/internal/model"
)

// BitbucketClient lists repositories through the Bitbucket Cloud 2.0 API.
type BitbucketClient struct {
	http    *http.Client
	baseURL string
	server  config.Server
	logger  *zap.Logger
}

type bitbucketLink struct {
	Name string `json:"name"`
	Href string `json:"href"`
}

type bitbucketRepo struct {
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	IsPrivate bool   `json:"is_private"`
	Parent    *struct {
		FullName string `json:"full_name"`
	} `json:"parent"`
	MainBranch *struct {
		Name string `json:"name"`
	} `json:"mainbranch"`
	Owner *struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	} `json:"owner"`
	Links struct {
		Clone []bitbucketLink `json:"clone"`
		HTML  bitbucketLink   `json:"html"`
	} `json:"links"`
}

type bitbucketPage struct {
	Values []bitbucketRepo `json:"values"`
	Next   string          `json:"next"`
}

func newBitbucketClient(server config.Server, o clientOptions) (*BitbucketClient, error) {
	return &BitbucketClient{
		http:    o.httpClient,
		baseURL: BaseURL(server),
		server:  server,
		logger:  o.logger,
	}, nil
}

func (c *BitbucketClient) Provider() string { return config.ProviderBitbucket }

// ListRepos walks repositories/{workspace} following the next links.
func (c *BitbucketClient) ListRepos(ctx context.Context, opts ListOptions) ([]model.RemoteRepoRecord, error) {
	user := strings.TrimSpace(c.server.User)
	if user == "" {
		return nil, fmt.Errorf("bitbucket: %w", ErrMissingUser)
	}
	next := c.baseURL + "/repositories/" + url.PathEscape(user) + "?pagelen=100"

	var out []model.RemoteRepoRecord
	for next != "" {
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, repo := range page.Values {
			if !opts.IncludeForks && repo.Parent != nil {
				continue
			}
			rec := model.RemoteRepoRecord{
				Name:    repo.Name,
				Private: repo.IsPrivate,
				HTMLURL: repo.Links.HTML.Href,
				Fork:    repo.Parent != nil,
			}
			if rec.Name == "" {
				rec.Name = repo.Slug
			}
			for _, link := range repo.Links.Clone {
				switch link.Name {
				case "ssh":
					rec.SSHURL = link.Href
				case "https":
					rec.CloneURL = link.Href
				}
			}
			if repo.MainBranch != nil {
				rec.DefaultBranch = repo.MainBranch.Name
			}
			if repo.Owner != nil {
				rec.Owner = repo.Owner.Username
			}
			out = append(out, rec)
		}
		c.logger.Debug("bitbucket page fetched", zap.Int("count", len(page.Values)))
		next = page.Next
	}
	return out, nil
}

func (c *BitbucketClient) fetchPage(ctx context.Context, pageURL string) (*bitbucketPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bitbucket build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bitbucket request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bitbucket read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("bitbucket %s: %w", pageURL, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("bitbucket %s: unexpected status %d", pageURL, resp.StatusCode)
	}
	var page bitbucketPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("bitbucket decode response: %w", err)
	}
	return &page, nil
}

func (c *BitbucketClient) authorize(req *http.Request) {
	token := c.server.Token
	if token == "" {
		return
	}
	if strings.EqualFold(c.server.Auth.Type, "basic") {
		if c.server.User != "" {
			req.SetBasicAuth(c.server.User, token)
		}
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}
