package repofleet

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skaphos/repofleet/internal/cliio"
	"github.com/skaphos/repofleet/internal/discovery"
	"github.com/skaphos/repofleet/internal/vcs"
)

// localRepo is a discovered working tree and its origin, read without a
// forge listing.
type localRepo struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Origin string `json:"origin,omitempty"`
}

// scanLocal discovers the repositories under --root and reads each origin.
func scanLocal(cmd *cobra.Command, adapter vcs.Adapter) ([]localRepo, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	root, err := filepath.Abs(getStringFlag(cmd, "root"))
	if err != nil {
		return nil, "", err
	}
	maxDepth := getIntFlag(cmd, "max-depth")
	if maxDepth <= 0 {
		maxDepth = cfg.Defaults.MaxDepth
	}
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	found, err := discovery.Scan(cmd.Context(), discovery.Options{
		Roots:          []string{root},
		MaxDepth:       maxDepth,
		IncludeHidden:  getBoolFlag(cmd, "include-hidden"),
		Exclude:        append(append([]string{}, cfg.Exclude...), exclude...),
		FollowSymlinks: getBoolFlag(cmd, "follow-symlinks"),
	})
	if err != nil {
		return nil, "", err
	}

	repos := make([]localRepo, 0, len(found))
	for _, res := range found {
		origin, err := adapter.OriginURL(cmd.Context(), res.Path)
		if err != nil {
			debugf(cmd, "read origin of %s: %v", res.Path, err)
		}
		repos = append(repos, localRepo{Name: res.Name, Path: res.Path, Origin: origin})
	}
	return repos, root, nil
}

func newFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find local repositories by name or origin",
		Args:  cobra.NoArgs,
		RunE:  runFind,
	}
	addDiscoveryFlags(cmd)
	cmd.Flags().String("name", "", "keep repositories whose name contains this text")
	cmd.Flags().String("remote", "", "keep repositories whose origin URL contains this text")
	addFormatFlag(cmd)
	addNoHeadersFlag(cmd)
	return cmd
}

func runFind(cmd *cobra.Command, _ []string) error {
	format := getFormatFlag(cmd)
	setColorOutputMode(cmd, format)
	repos, root, err := scanLocal(cmd, newAdapter())
	if err != nil {
		return err
	}
	name := strings.ToLower(getStringFlag(cmd, "name"))
	remote := strings.ToLower(getStringFlag(cmd, "remote"))
	matches := make([]localRepo, 0, len(repos))
	for _, repo := range repos {
		if name != "" && !strings.Contains(strings.ToLower(repo.Name), name) {
			continue
		}
		if remote != "" && !strings.Contains(strings.ToLower(repo.Origin), remote) {
			continue
		}
		matches = append(matches, repo)
	}

	if format != formatTable {
		return writeStructured(cmd, format, matches)
	}
	table := cliio.NewTable("NAME", "PATH", "ORIGIN")
	table.NoHeaders = getBoolFlag(cmd, "no-headers")
	for _, repo := range matches {
		table.Append(repo.Name, displayPath(repo.Path, root), dashIfEmpty(repo.Origin))
	}
	return table.Render(cmd.OutOrStdout())
}

// duplicateGroup is a set of working trees sharing one normalized origin.
type duplicateGroup struct {
	Origin string   `json:"origin"`
	Count  int      `json:"count"`
	Paths  []string `json:"paths"`
}

func newDuplicatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "List local repositories that share an origin",
		Long: "Groups the local repositories by normalized origin URL, so SSH and HTTPS clones " +
			"of the same forge repository land in one group.",
		Args: cobra.NoArgs,
		RunE: runDuplicates,
	}
	addDiscoveryFlags(cmd)
	addFormatFlag(cmd)
	addNoHeadersFlag(cmd)
	return cmd
}

func runDuplicates(cmd *cobra.Command, _ []string) error {
	format := getFormatFlag(cmd)
	setColorOutputMode(cmd, format)
	adapter := newAdapter()
	repos, root, err := scanLocal(cmd, adapter)
	if err != nil {
		return err
	}
	groups := findDuplicates(repos, adapter.NormalizeURL)

	if format != formatTable {
		return writeStructured(cmd, format, groups)
	}
	if len(groups) == 0 {
		infof(cmd, "no duplicate origins under %s", root)
		return nil
	}
	table := cliio.NewTable("COUNT", "ORIGIN", "PATHS")
	table.NoHeaders = getBoolFlag(cmd, "no-headers")
	for _, g := range groups {
		paths := make([]string, 0, len(g.Paths))
		for _, p := range g.Paths {
			paths = append(paths, displayPath(p, root))
		}
		table.Append(strconv.Itoa(g.Count), g.Origin, strings.Join(paths, ", "))
	}
	return table.Render(cmd.OutOrStdout())
}

// findDuplicates groups repos by normalized origin and keeps groups of two or
// more, ordered by origin. Repos without an origin are ignored.
func findDuplicates(repos []localRepo, normalize func(string) string) []duplicateGroup {
	byOrigin := make(map[string][]string)
	for _, repo := range repos {
		key := normalize(repo.Origin)
		if key == "" {
			continue
		}
		byOrigin[key] = append(byOrigin[key], repo.Path)
	}
	groups := make([]duplicateGroup, 0)
	for origin, paths := range byOrigin {
		if len(paths) < 2 {
			continue
		}
		sort.Strings(paths)
		groups = append(groups, duplicateGroup{Origin: origin, Count: len(paths), Paths: paths})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Origin < groups[j].Origin })
	return groups
}
