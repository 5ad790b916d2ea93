package repofleet

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const noHeadersUsage = "when using table format, do not print headers"

// outputFormat is the --format flag value.
type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
	formatYAML  outputFormat = "yaml"
)

var _ pflag.Value = (*outputFormat)(nil)

func (f *outputFormat) String() string { return string(*f) }

func (f *outputFormat) Set(value string) error {
	switch v := outputFormat(strings.ToLower(strings.TrimSpace(value))); v {
	case formatTable, formatJSON, formatYAML:
		*f = v
		return nil
	case "":
		*f = formatTable
		return nil
	default:
		return fmt.Errorf("unsupported format %q (want table, json or yaml)", value)
	}
}

func (f *outputFormat) Type() string { return "format" }

func addFormatFlag(cmd *cobra.Command) {
	format := formatTable
	cmd.Flags().VarP(&format, "format", "o", "output format: table, json or yaml")
}

func getFormatFlag(cmd *cobra.Command) outputFormat {
	flag := cmd.Flags().Lookup("format")
	if flag == nil {
		return formatTable
	}
	if v, ok := flag.Value.(*outputFormat); ok {
		return *v
	}
	return formatTable
}

func addNoHeadersFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("no-headers", false, noHeadersUsage)
}

// addServerFlags registers the flags that select a forge account.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "configured server name (default: REPOFLEET_SERVER, default_server, github.com)")
	cmd.Flags().String("user", "", "forge user (overrides <PROVIDER>_USER and config)")
	cmd.Flags().String("token", "", "forge token (overrides <PROVIDER>_TOKEN and config)")
	cmd.Flags().Bool("include-forks", false, "include forked repositories in the remote listing")
}

// addDiscoveryFlags registers the flags that control the local walk.
func addDiscoveryFlags(cmd *cobra.Command) {
	cmd.Flags().String("root", ".", "workspace root holding the fleet")
	cmd.Flags().Int("max-depth", 0, "maximum directory depth to search below root (default from config)")
	cmd.Flags().Bool("include-hidden", false, "descend into hidden directories")
	cmd.Flags().StringSlice("exclude", nil, "additional glob patterns to skip (repeatable)")
	cmd.Flags().Bool("follow-symlinks", false, "follow symlinked directories during discovery")
}

// addFleetFlags registers the flags shared by plan and apply.
func addFleetFlags(cmd *cobra.Command) {
	addServerFlags(cmd)
	addDiscoveryFlags(cmd)
	cmd.Flags().Bool("fetch", false, "run git fetch --prune in each repository before inspecting it")
	cmd.Flags().String("input", "", "read the remote repository list from a snapshot file instead of the forge")
	cmd.Flags().Bool("with-prs", false, "show open pull requests per repository (GitHub only)")
	cmd.Flags().Int("pr-stale-days", 0, "ignore pull requests not updated within this many days (default from config)")
	cmd.Flags().Int("concurrency", 0, "repositories processed in parallel (default from config)")
	cmd.Flags().Int("timeout", 0, "timeout in seconds per repository (default from config)")
}

func getStringFlag(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return strings.TrimSpace(v)
}

func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

func getIntFlag(cmd *cobra.Command, name string) int {
	v, _ := cmd.Flags().GetInt(name)
	return v
}
