// SPDX-License-Identifier: MIT
package repofleet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skaphos/repofleet/internal/config"
	"github.com/skaphos/repofleet/internal/engine"
	"github.com/skaphos/repofleet/internal/forge"
	"github.com/skaphos/repofleet/internal/snapshot"
	"github.com/skaphos/repofleet/internal/vcs"
)

// newAdapter is overridable in tests.
var newAdapter = func() vcs.Adapter { return vcs.NewGitAdapter(nil) }

// newForgeClient is overridable in tests.
var newForgeClient = forge.NewClient

// fleetContext is everything a fleet command resolves before doing work.
type fleetContext struct {
	cfg    *config.Config
	server config.Server
	root   string
	// source yields the remote listing; client is nil when it is a snapshot file.
	source snapshot.Source
	client forge.Client
	engine *engine.Engine
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, _, err := loadConfigWithPath(cmd)
	return cfg, err
}

// loadConfigWithPath also returns the resolved path, which need not exist.
func loadConfigWithPath(cmd *cobra.Command) (*config.Config, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	if err := config.LoadDotEnv(config.DotEnvPath(cwd)); err != nil {
		return nil, "", fmt.Errorf("load .env: %w", err)
	}
	cfgPath, err := config.ResolveConfigPath(flagConfig, cwd)
	if err != nil {
		return nil, "", err
	}
	debugf(cmd, "using config %s", cfgPath)
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, cfgPath, nil
}

// resolveServer loads config and applies the credential precedence for the
// selected server.
func resolveServer(cmd *cobra.Command) (*config.Config, config.Server, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, config.Server{}, err
	}
	server, err := cfg.ResolveServer(getStringFlag(cmd, "server"), getStringFlag(cmd, "user"), getStringFlag(cmd, "token"))
	if err != nil {
		return nil, config.Server{}, err
	}
	return cfg, server, nil
}

func forgeOptions(cfg *config.Config) []forge.Option {
	return []forge.Option{
		forge.WithTimeout(time.Duration(cfg.Defaults.NetworkTimeoutSeconds) * time.Second),
		forge.WithLogger(logger.Named("forge")),
	}
}

func newFleetContext(cmd *cobra.Command) (*fleetContext, error) {
	cfg, server, err := resolveServer(cmd)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(getStringFlag(cmd, "root"))
	if err != nil {
		return nil, err
	}
	fc := &fleetContext{
		cfg:    cfg,
		server: server,
		root:   root,
		engine: engine.New(newAdapter(), logger.Named("engine")),
	}

	// A forge client is still built for snapshot input so that pull request
	// lookups keep working offline from the listing.
	client, err := newForgeClient(server, forgeOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	fc.client = client

	if input := getStringFlag(cmd, "input"); input != "" {
		debugf(cmd, "reading remote list from %s", input)
		fc.source = snapshot.FileSource{Path: input}
	} else {
		fc.source = forge.LiveSource{
			Client:  client,
			Server:  server,
			Options: forge.ListOptions{IncludeForks: getBoolFlag(cmd, "include-forks")},
		}
	}
	return fc, nil
}

func (fc *fleetContext) planOptions(cmd *cobra.Command, progress engine.ProgressFunc) engine.PlanOptions {
	maxDepth := getIntFlag(cmd, "max-depth")
	if maxDepth <= 0 {
		maxDepth = fc.cfg.Defaults.MaxDepth
	}
	concurrency := getIntFlag(cmd, "concurrency")
	if concurrency <= 0 {
		concurrency = fc.cfg.Defaults.Concurrency
	}
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	return engine.PlanOptions{
		Root:           fc.root,
		MaxDepth:       maxDepth,
		IncludeHidden:  getBoolFlag(cmd, "include-hidden"),
		Exclude:        append(append([]string{}, fc.cfg.Exclude...), exclude...),
		FollowSymlinks: getBoolFlag(cmd, "follow-symlinks"),
		Fetch:          getBoolFlag(cmd, "fetch"),
		Concurrency:    concurrency,
		Timeout:        fc.timeout(cmd),
		ServerName:     fc.server.Name,
		OnStart:        progress,
	}
}

func (fc *fleetContext) timeout(cmd *cobra.Command) time.Duration {
	seconds := getIntFlag(cmd, "timeout")
	if seconds <= 0 {
		seconds = fc.cfg.Defaults.TimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

func (fc *fleetContext) staleDays(cmd *cobra.Command) int {
	if days := getIntFlag(cmd, "pr-stale-days"); days > 0 {
		return days
	}
	return fc.cfg.Defaults.PRStaleDays
}

// pullRequests returns the pull request capability of the configured forge,
// or nil when the provider has none.
func (fc *fleetContext) pullRequests() forge.PullRequestSource {
	if fc.client == nil {
		return nil
	}
	prs, ok := forge.PullRequests(fc.client)
	if !ok {
		return nil
	}
	return prs
}

// progressPrinter mirrors per-repository progress on stderr. On a terminal
// the line is rewritten in place.
func progressPrinter(cmd *cobra.Command) engine.ProgressFunc {
	if flagQuiet {
		return nil
	}
	tty := writerIsTerminal(cmd.ErrOrStderr())
	return func(index, total int, label string) {
		logger.Debug("progress", zap.Int("index", index), zap.Int("total", total), zap.String("label", label))
		if tty {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "\r[%d/%d] %-60s", index, total, label)
			return
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s\n", index, total, label)
	}
}

func progressDone(cmd *cobra.Command) {
	if !flagQuiet && writerIsTerminal(cmd.ErrOrStderr()) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
	}
}

func dashIfEmpty(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
