package repofleet

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaphos/repofleet/internal/model"
	"github.com/skaphos/repofleet/internal/remotemismatch"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compare local repositories with the forge and suggest actions",
		Long: "Discovers git repositories under --root, joins them with the repositories the " +
			"selected forge account owns, and classifies every pair. Nothing is modified.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format := getFormatFlag(cmd)
			setColorOutputMode(cmd, format)

			fc, err := newFleetContext(cmd)
			if err != nil {
				return err
			}
			plan, err := buildPlan(cmd, fc)
			if err != nil {
				return err
			}

			if format != formatTable {
				return writeStructured(cmd, format, plan)
			}
			if err := writePlanTable(cmd, plan, fc.root, getBoolFlag(cmd, "with-prs"), getBoolFlag(cmd, "no-headers")); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), planFooter(plan))
			logOutputWriteFailure(cmd, "plan footer", err)
			return nil
		},
	}
	addFleetFlags(cmd)
	addFormatFlag(cmd)
	addNoHeadersFlag(cmd)
	return cmd
}

// buildPlan runs the planner for cmd's flags and, with --with-prs, annotates
// rows with open pull requests.
func buildPlan(cmd *cobra.Command, fc *fleetContext) (*model.Plan, error) {
	debugf(cmd, "planning %s against %s", fc.root, fc.server.Name)
	plan, err := fc.engine.Plan(cmd.Context(), fc.planOptions(cmd, progressPrinter(cmd)), fc.source)
	progressDone(cmd)
	if err != nil {
		return nil, err
	}
	if getBoolFlag(cmd, "with-prs") {
		prs := fc.pullRequests()
		if prs == nil {
			infof(cmd, "pull requests are not supported for provider %s", fc.server.Provider)
		} else {
			fc.engine.EnrichWithPullRequests(cmd.Context(), plan, prs, fc.staleDays(cmd))
		}
	}
	for _, mismatch := range remotemismatch.Detect(plan.Rows) {
		infof(cmd, "warning: %s", mismatch)
	}
	return plan, nil
}

func planFooter(plan *model.Plan) string {
	return fmt.Sprintf("server=%s local=%d remote=%d total=%d",
		plan.Meta.Server, plan.Meta.LocalCount, plan.Meta.RemoteCount, len(plan.Rows))
}
