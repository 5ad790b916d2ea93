// Package config handles loading, saving, and resolving the RepoFleet
// configuration file, including forge server definitions.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

const (
	// LocalConfigFilename is the per-directory RepoFleet config file.
	LocalConfigFilename = ".repofleet.yaml"
	// ConfigAPIVersion is the current config schema apiVersion.
	ConfigAPIVersion = "skaphos.io/repofleet/v1beta1"
	// ConfigKind is the current config schema kind.
	ConfigKind = "RepoFleetConfig"

	// EnvConfig overrides the config file location.
	EnvConfig = "REPOFLEET_CONFIG"
	// EnvServer selects the server when no --server flag is given.
	EnvServer = "REPOFLEET_SERVER"
	// EnvDotEnv overrides the .env file location.
	EnvDotEnv = "REPOFLEET_ENV"

	// DefaultServerName is used when nothing else selects a server.
	DefaultServerName = "github.com"
)

// Supported forge providers.
const (
	ProviderGitHub    = "github"
	ProviderGitLab    = "gitlab"
	ProviderBitbucket = "bitbucket"
)

// redactedToken replaces secrets in displayed or exported config.
const redactedToken = "***"

// ErrUnknownProvider is returned when a server names a provider RepoFleet
// cannot talk to.
var ErrUnknownProvider = errors.New("unknown forge provider")

// Auth selects how credentials are presented to a forge. Only Bitbucket
// distinguishes "basic" from the default "bearer".
type Auth struct {
	Type string `yaml:"type,omitempty"`
}

// Organization is an extra GitHub organization whose repositories are
// listed alongside the user's own. Token falls back to the server token.
type Organization struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token,omitempty"`
}

// Server is one configured forge endpoint.
type Server struct {
	Name          string         `yaml:"-"`
	Provider      string         `yaml:"provider,omitempty"`
	BaseURL       string         `yaml:"base_url,omitempty"`
	User          string         `yaml:"user,omitempty"`
	Token         string         `yaml:"token,omitempty"`
	Auth          Auth           `yaml:"auth,omitempty"`
	Organizations []Organization `yaml:"organizations,omitempty"`
	// SkipUserRepos lists only the organizations.
	SkipUserRepos bool `yaml:"skip_user_repos,omitempty"`
}

// Redacted returns a copy safe for display.
func (s Server) Redacted() Server {
	if s.Token != "" {
		s.Token = redactedToken
	}
	if len(s.Organizations) > 0 {
		orgs := make([]Organization, len(s.Organizations))
		for i, org := range s.Organizations {
			if org.Token != "" {
				org.Token = redactedToken
			}
			orgs[i] = org
		}
		s.Organizations = orgs
	}
	return s
}

// Defaults holds default values for operations.
type Defaults struct {
	MaxDepth              int    `yaml:"max_depth"`
	Concurrency           int    `yaml:"concurrency"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	NetworkTimeoutSeconds int    `yaml:"network_timeout_seconds"`
	PRStaleDays           int    `yaml:"pr_stale_days"`
	LogDir                string `yaml:"log_dir,omitempty"`
}

// Config represents the RepoFleet configuration.
type Config struct {
	APIVersion    string            `yaml:"apiVersion"`
	Kind          string            `yaml:"kind"`
	DefaultServer string            `yaml:"default_server,omitempty"`
	Servers       map[string]Server `yaml:"servers,omitempty"`
	Exclude       []string          `yaml:"exclude"`
	Defaults      Defaults          `yaml:"defaults"`
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() Config {
	return Config{
		APIVersion: ConfigAPIVersion,
		Kind:       ConfigKind,
		Exclude:    []string{"**/node_modules/**", "**/.terraform/**", "**/dist/**", "**/vendor/**"},
		Defaults: Defaults{
			MaxDepth:              6,
			Concurrency:           1,
			TimeoutSeconds:        60,
			NetworkTimeoutSeconds: 20,
			PRStaleDays:           30,
		},
	}
}

// ConfigPath resolves the config file path from override/env/defaults.
func ConfigPath(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return override, nil
		}
		return filepath.Join(override, "config.yaml"), nil
	}

	if env := os.Getenv(EnvConfig); env != "" {
		if isConfigFilePath(env) {
			return env, nil
		}
		return filepath.Join(env, "config.yaml"), nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "repofleet", "config.yaml"), nil
}

// ResolveConfigPath resolves config for runtime commands.
// Order: explicit override, REPOFLEET_CONFIG, nearest local dotfile in cwd/parents,
// then global platform config path.
func ResolveConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv(EnvConfig) != "" {
		return ConfigPath(override)
	}

	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}

	localPath, err := FindNearestConfigPath(cwd)
	if err != nil {
		return "", err
	}
	if localPath != "" {
		return localPath, nil
	}

	return ConfigPath("")
}

// FindNearestConfigPath searches cwd and each parent directory for .repofleet.yaml.
// It returns an empty string when no local config file is found.
func FindNearestConfigPath(cwd string) (string, error) {
	dir := cwd
	for {
		candidate := filepath.Join(dir, LocalConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads the config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyConfigGVK(&cfg)
	if err := validateConfigGVK(&cfg); err != nil {
		return nil, err
	}
	fillDefaults(&cfg)
	for name, server := range cfg.Servers {
		if server.Provider != "" && !KnownProvider(server.Provider) {
			return nil, fmt.Errorf("server %q: %w %q", name, ErrUnknownProvider, server.Provider)
		}
	}
	return &cfg, nil
}

// LoadOrDefault reads path, returning DefaultConfig when the file does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		def := DefaultConfig()
		return &def, nil
	}
	return nil, err
}

// Save writes the config to the given path.
func Save(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	applyConfigGVK(cfg)
	if err := validateConfigGVK(cfg); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ServerName picks the server to use: the explicit name, REPOFLEET_SERVER,
// default_server, then github.com.
func (c *Config) ServerName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if env := strings.TrimSpace(os.Getenv(EnvServer)); env != "" {
		return env
	}
	if c != nil && strings.TrimSpace(c.DefaultServer) != "" {
		return strings.TrimSpace(c.DefaultServer)
	}
	return DefaultServerName
}

// ResolveServer returns the effective server definition. Credentials come
// from the explicit user/token arguments first, then the <PROVIDER>_USER and
// <PROVIDER>_TOKEN environment variables, then the config file.
func (c *Config) ResolveServer(name, user, token string) (Server, error) {
	name = c.ServerName(name)
	var server Server
	if c != nil {
		server = c.Servers[name]
	}
	server.Name = name
	server.Provider = strings.ToLower(strings.TrimSpace(server.Provider))
	if server.Provider == "" {
		server.Provider = InferProvider(name)
	}
	if !KnownProvider(server.Provider) {
		return Server{}, fmt.Errorf("server %q: %w %q", name, ErrUnknownProvider, server.Provider)
	}
	prefix := strings.ToUpper(server.Provider)
	server.User = firstNonEmpty(user, os.Getenv(prefix+"_USER"), server.User)
	server.Token = firstNonEmpty(token, os.Getenv(prefix+"_TOKEN"), server.Token)
	return server, nil
}

// ListServers returns configured servers sorted by name with tokens redacted.
func (c *Config) ListServers() []Server {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Server, 0, len(names))
	for _, name := range names {
		server := c.Servers[name]
		server.Name = name
		if server.Provider == "" {
			server.Provider = InferProvider(name)
		}
		out = append(out, server.Redacted())
	}
	return out
}

// Redacted returns a copy with every server and organization token masked.
func (c Config) Redacted() Config {
	if len(c.Servers) == 0 {
		return c
	}
	servers := make(map[string]Server, len(c.Servers))
	for name, server := range c.Servers {
		servers[name] = server.Redacted()
	}
	c.Servers = servers
	return c
}

// HasSecrets reports whether any server or organization carries a token.
func (c *Config) HasSecrets() bool {
	if c == nil {
		return false
	}
	for _, server := range c.Servers {
		if server.Token != "" {
			return true
		}
		for _, org := range server.Organizations {
			if org.Token != "" {
				return true
			}
		}
	}
	return false
}

// ImportServers merges the servers of other into c. Same-named servers are
// overwritten; with replace, servers missing from other are dropped. A
// redacted token keeps the token already configured. A default_server set in
// other wins.
func (c *Config) ImportServers(other *Config, replace bool) {
	if other == nil {
		return
	}
	previous := c.Servers
	if replace || c.Servers == nil {
		c.Servers = make(map[string]Server, len(other.Servers))
	}
	for name, server := range other.Servers {
		if server.Token == redactedToken {
			server.Token = previous[name].Token
		}
		c.Servers[name] = server
	}
	if other.DefaultServer != "" {
		c.DefaultServer = other.DefaultServer
	}
}

// InferProvider guesses the provider from a server name.
func InferProvider(name string) string {
	lowered := strings.ToLower(name)
	switch {
	case strings.Contains(lowered, "gitlab"):
		return ProviderGitLab
	case strings.Contains(lowered, "bitbucket"):
		return ProviderBitbucket
	default:
		return ProviderGitHub
	}
}

// KnownProvider reports whether provider is supported.
func KnownProvider(provider string) bool {
	switch strings.ToLower(provider) {
	case ProviderGitHub, ProviderGitLab, ProviderBitbucket:
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func fillDefaults(cfg *Config) {
	def := DefaultConfig().Defaults
	if cfg.Defaults.MaxDepth == 0 {
		cfg.Defaults.MaxDepth = def.MaxDepth
	}
	if cfg.Defaults.Concurrency <= 0 {
		cfg.Defaults.Concurrency = def.Concurrency
	}
	if cfg.Defaults.TimeoutSeconds <= 0 {
		cfg.Defaults.TimeoutSeconds = def.TimeoutSeconds
	}
	if cfg.Defaults.NetworkTimeoutSeconds <= 0 {
		cfg.Defaults.NetworkTimeoutSeconds = def.NetworkTimeoutSeconds
	}
	if cfg.Defaults.PRStaleDays == 0 {
		cfg.Defaults.PRStaleDays = def.PRStaleDays
	}
}

func isConfigFilePath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyConfigGVK(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = ConfigAPIVersion
	}
	if strings.TrimSpace(cfg.Kind) == "" {
		cfg.Kind = ConfigKind
	}
}

func validateConfigGVK(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.APIVersion != ConfigAPIVersion {
		return fmt.Errorf("unsupported config apiVersion %q (expected %q)", cfg.APIVersion, ConfigAPIVersion)
	}
	if cfg.Kind != ConfigKind {
		return fmt.Errorf("unsupported config kind %q (expected %q)", cfg.Kind, ConfigKind)
	}
	return nil
}
