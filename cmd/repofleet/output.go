package repofleet

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/skaphos/repofleet/internal/cliio"
	"github.com/skaphos/repofleet/internal/model"
	"github.com/skaphos/repofleet/internal/termstyle"
)

// logOutputWriteFailure records non-fatal output write/flush failures.
// CLI consumers frequently pipe to tools that close early (for example `head`),
// so we log and continue instead of treating these as command failures.
func logOutputWriteFailure(cmd *cobra.Command, context string, err error) {
	if err == nil {
		return
	}
	debugf(cmd, "ignored output write failure (%s): %v", context, err)
}

// writeStructured prints value as JSON or YAML. YAML keys follow the JSON
// field names.
func writeStructured(cmd *cobra.Command, format outputFormat, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	if format == formatYAML {
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		data, err = yaml.Marshal(generic)
		if err != nil {
			return err
		}
		data = []byte(strings.TrimRight(string(data), "\n"))
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	logOutputWriteFailure(cmd, string(format), err)
	return nil
}

// displayPath shows paths below root relative to it.
func displayPath(path, root string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

func colorize(value, color string) string {
	return termstyle.Colorize(colorOutputEnabled, value, color)
}

func writePlanTable(cmd *cobra.Command, plan *model.Plan, root string, withPRs, noHeaders bool) error {
	headers := []string{"REPO", "STATE", "UP", "CLEAN", "ACTION"}
	if withPRs {
		headers = append(headers, "LATEST_BRANCH", "PRS")
	}
	table := cliio.NewTable(append(headers, "PATH")...)
	table.NoHeaders = noHeaders
	pathLimit := adaptiveCellLimit(cmd, 0, 48, 32)

	for _, row := range plan.Rows {
		cells := []string{
			row.Repo,
			colorize(string(row.State), termstyle.ForState(row.State)),
			row.Up,
			string(row.Clean),
			string(row.Action),
		}
		if withPRs {
			cells = append(cells, dashIfEmpty(row.LatestBranch), dashIfEmpty(row.PRs))
		}
		table.Append(append(cells, truncateLeft(displayPath(row.Path, root), pathLimit))...)
	}
	return table.Render(cmd.OutOrStdout())
}

func writeResultsTable(cmd *cobra.Command, results []model.RepoResult, root string, noHeaders bool) error {
	table := cliio.NewTable("REPO", "STATE", "RESULT", "PATH")
	table.NoHeaders = noHeaders
	pathLimit := adaptiveCellLimit(cmd, 0, 40, 28)
	for _, res := range results {
		parts := make([]string, 0, len(res.Actions))
		for _, rec := range res.Actions {
			parts = append(parts, colorize(rec.String(), termstyle.ForStatus(rec.Status)))
		}
		table.Append(
			res.Repo,
			colorize(string(res.State), termstyle.ForState(res.State)),
			strings.Join(parts, " "),
			truncateLeft(displayPath(res.Path, root), pathLimit),
		)
	}
	return table.Render(cmd.OutOrStdout())
}
