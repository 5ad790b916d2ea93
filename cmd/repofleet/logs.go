package repofleet

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skaphos/repofleet/internal/cliio"
	"github.com/skaphos/repofleet/internal/execlog"
)

const defaultLogListLimit = 10

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List or show fleet apply execution logs",
		Args:  cobra.NoArgs,
		RunE:  runLogs,
	}
	cmd.Flags().String("root", ".", "workspace root whose logs to read")
	cmd.Flags().String("input", "", "show this log file")
	cmd.Flags().Bool("latest", false, "show the most recent log")
	cmd.Flags().Int("limit", defaultLogListLimit, "maximum number of logs to list (0 lists all)")
	cmd.Flags().Bool("show-results", false, "include per-repository results when showing a log")
	addFormatFlag(cmd)
	addNoHeadersFlag(cmd)
	return cmd
}

func runLogs(cmd *cobra.Command, _ []string) error {
	format := getFormatFlag(cmd)
	setColorOutputMode(cmd, format)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	root, err := filepath.Abs(getStringFlag(cmd, "root"))
	if err != nil {
		return err
	}

	if input := getStringFlag(cmd, "input"); input != "" {
		return showLog(cmd, input, format)
	}

	dir := logDir(cfg, root)
	entries, err := execlog.List(dir)
	if err != nil {
		return fmt.Errorf("list logs in %s: %w", dir, err)
	}
	if len(entries) == 0 {
		infof(cmd, "no fleet logs found in %s", dir)
		return nil
	}
	if getBoolFlag(cmd, "latest") {
		return showLog(cmd, entries[0].Path, format)
	}

	if limit := getIntFlag(cmd, "limit"); limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if format != formatTable {
		return writeStructured(cmd, format, logEntryViews(entries))
	}
	table := cliio.NewTable("NAME", "MODIFIED", "PATH")
	table.NoHeaders = getBoolFlag(cmd, "no-headers")
	for _, entry := range entries {
		table.Append(entry.Name, entry.ModTime.UTC().Format(time.RFC3339), entry.Path)
	}
	return table.Render(cmd.OutOrStdout())
}

type logEntryView struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Modified string `json:"modified"`
}

func logEntryViews(entries []execlog.Entry) []logEntryView {
	out := make([]logEntryView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, logEntryView{
			Name:     entry.Name,
			Path:     entry.Path,
			Modified: entry.ModTime.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func showLog(cmd *cobra.Command, path string, format outputFormat) error {
	log, err := execlog.Read(path)
	if err != nil {
		return err
	}
	if format != formatTable {
		return writeStructured(cmd, format, log)
	}
	out := cmd.OutOrStdout()
	_, err = fmt.Fprintf(out, "generated_at=%s command=%q dry_run=%t targeted=%d\n",
		log.GeneratedAt, log.Command, log.Options.DryRun, log.Summary.ReposTargeted)
	logOutputWriteFailure(cmd, "log header", err)
	_, err = fmt.Fprintf(out, "actions: %s\n", actionTotalsLine(log.Summary.ActionTotals))
	logOutputWriteFailure(cmd, "log totals", err)
	_, err = fmt.Fprint(out, execlog.Digest(*log, path))
	logOutputWriteFailure(cmd, "log digest", err)
	if !getBoolFlag(cmd, "show-results") {
		return nil
	}
	return writeResultsTable(cmd, log.Results, log.Options.Root, getBoolFlag(cmd, "no-headers"))
}

// actionTotalsLine renders the action totals in stable order.
func actionTotalsLine(totals map[string]int) string {
	if len(totals) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(totals))
	for key := range totals {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, totals[key]))
	}
	return strings.Join(parts, " ")
}
