// Package forge lists repositories and pull requests from remote git
// hosting services.
package forge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skaphos/repofleet/internal/config"
	"github.com/skaphos/repofleet/internal/model"
	"github.com/skaphos/repofleet/internal/snapshot"
)

// DefaultTimeout bounds every forge HTTP call.
const DefaultTimeout = 20 * time.Second

// Default API endpoints per provider.
var DefaultBaseURLs = map[string]string{
	config.ProviderGitHub:    "https://api.github.com",
	config.ProviderGitLab:    "https://gitlab.com/api/v4",
	config.ProviderBitbucket: "https://api.bitbucket.org/2.0",
}

var (
	// ErrNotFound is returned when a forge object does not exist.
	ErrNotFound = errors.New("not found on forge")
	// ErrMissingUser is returned when a provider needs a user that was not configured.
	ErrMissingUser = errors.New("forge user is required")
	// ErrUnsupportedProvider is returned for providers without a client.
	ErrUnsupportedProvider = errors.New("unsupported forge provider")
	// ErrInvalidRepoComponent rejects owner or repo names that are unsafe in an API path.
	ErrInvalidRepoComponent = errors.New("invalid owner or repository name")
)

// ListOptions filters repository listings.
type ListOptions struct {
	IncludeForks bool
}

// Client lists the repositories of one forge account.
type Client interface {
	Provider() string
	ListRepos(ctx context.Context, opts ListOptions) ([]model.RemoteRepoRecord, error)
}

// PullRequest is the subset of an open pull request RepoFleet uses.
type PullRequest struct {
	Number    int
	Title     string
	HeadRef   string
	HTMLURL   string
	UpdatedAt time.Time
}

// PullRequestSource is implemented by forges that can resolve pull requests.
type PullRequestSource interface {
	// OpenPullRequests lists open pull requests, most recently updated first,
	// dropping those not updated within staleDays.
	OpenPullRequests(ctx context.Context, owner, repo string, staleDays int) ([]PullRequest, error)
	// PullRequestBranch returns the head branch of a pull request.
	PullRequestBranch(ctx context.Context, owner, repo string, number int) (string, error)
}

// PullRequests returns the pull request capability of c, if any.
func PullRequests(c Client) (PullRequestSource, bool) {
	src, ok := c.(PullRequestSource)
	return src, ok
}

type clientOptions struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// Option customizes client construction.
type Option func(*clientOptions)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *clientOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) clientOptions {
	o := clientOptions{timeout: DefaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}
	return o
}

// NewClient builds the client for server's provider.
func NewClient(server config.Server, opts ...Option) (Client, error) {
	o := buildOptions(opts)
	switch strings.ToLower(server.Provider) {
	case config.ProviderGitHub:
		return newGitHubClient(server, o)
	case config.ProviderGitLab:
		return newGitLabClient(server, o)
	case config.ProviderBitbucket:
		return newBitbucketClient(server, o)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, server.Provider)
	}
}

// BaseURL returns the configured API endpoint or the provider default.
func BaseURL(server config.Server) string {
	if u := strings.TrimSpace(server.BaseURL); u != "" {
		return strings.TrimRight(u, "/")
	}
	return DefaultBaseURLs[strings.ToLower(server.Provider)]
}

var unsafeComponent = regexp.MustCompile(`[^A-Za-z0-9._/-]`)

// ValidateRepoComponent rejects names that could escape an API path.
func ValidateRepoComponent(value string) error {
	v := strings.TrimSpace(value)
	if v == "" || unsafeComponent.MatchString(v) || strings.HasPrefix(v, "/") || strings.HasSuffix(v, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidRepoComponent, value)
	}
	for _, part := range strings.Split(v, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidRepoComponent, value)
		}
	}
	return nil
}

// LiveSource fetches a snapshot from a forge on demand.
type LiveSource struct {
	Client  Client
	Server  config.Server
	Options ListOptions
	Now     func() time.Time
}

func (s LiveSource) Snapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	repos, err := s.Client.ListRepos(ctx, s.Options)
	if err != nil {
		return nil, fmt.Errorf("list repositories on %s: %w", s.Server.Name, err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	generated := now().UTC()
	return &snapshot.Snapshot{
		Server:      s.Server.Name,
		Provider:    s.Client.Provider(),
		BaseURL:     BaseURL(s.Server),
		User:        s.Server.User,
		GeneratedAt: &generated,
		Repos:       repos,
	}, nil
}
