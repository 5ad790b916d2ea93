// SPDX-License-Identifier: MIT
package repofleet

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skaphos/repofleet/internal/cliio"
	"github.com/skaphos/repofleet/internal/config"
	"github.com/skaphos/repofleet/internal/engine"
	"github.com/skaphos/repofleet/internal/execlog"
	"github.com/skaphos/repofleet/internal/model"
	"github.com/skaphos/repofleet/internal/strutil"
)

// logPathAuto asks for the default timestamped log location.
const logPathAuto = "auto"

// timeNow is overridable in tests.
var timeNow = time.Now

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Clone, pull, push or switch branches across the fleet",
		Long: "Builds a plan exactly like `repofleet plan`, then performs the requested actions. " +
			"With no action flags, clone, pull and push are all enabled. Pulls are fast-forward " +
			"only and pushes never force.",
		Args: cobra.NoArgs,
		RunE: runApply,
	}
	addFleetFlags(cmd)
	cmd.Flags().String("repos", "", "comma-separated repository names to act on (default: all)")
	cmd.Flags().Bool("clone-missing", false, "clone repositories that exist only on the forge")
	cmd.Flags().Bool("pull-behind", false, "fast-forward repositories that are behind their upstream")
	cmd.Flags().Bool("push-ahead", false, "push repositories that are ahead of their upstream")
	cmd.Flags().String("checkout-branch", "", "switch every selected repository to this branch")
	cmd.Flags().String("checkout-pr", "", "switch every selected repository to the head branch of this pull request")
	cmd.Flags().Bool("dry-run", false, "report what would happen without changing anything")
	cmd.Flags().Bool("only-clean", false, "skip repositories with a merge, rebase or similar operation in progress")
	cmd.Flags().String("log-json", "", "write the execution log to this path (\"auto\" for the default location)")
	cmd.Flags().Lookup("log-json").NoOptDefVal = logPathAuto
	cmd.Flags().Bool("yes", false, "do not ask for confirmation")
	addFormatFlag(cmd)
	addNoHeadersFlag(cmd)
	return cmd
}

func runApply(cmd *cobra.Command, _ []string) error {
	format := getFormatFlag(cmd)
	setColorOutputMode(cmd, format)

	checkoutPR, err := parseCheckoutPR(getStringFlag(cmd, "checkout-pr"))
	if err != nil {
		return err
	}
	fc, err := newFleetContext(cmd)
	if err != nil {
		return err
	}
	plan, err := buildPlan(cmd, fc)
	if err != nil {
		return err
	}

	planOpts := fc.planOptions(cmd, nil)
	opts := engine.ApplyOptions{
		Repos:          strutil.SplitCSV(getStringFlag(cmd, "repos")),
		CloneMissing:   getBoolFlag(cmd, "clone-missing"),
		PullBehind:     getBoolFlag(cmd, "pull-behind"),
		PushAhead:      getBoolFlag(cmd, "push-ahead"),
		CheckoutBranch: getStringFlag(cmd, "checkout-branch"),
		CheckoutPR:     checkoutPR,
		DryRun:         getBoolFlag(cmd, "dry-run"),
		OnlyClean:      getBoolFlag(cmd, "only-clean"),
		Concurrency:    planOpts.Concurrency,
		Timeout:        planOpts.Timeout,
		PullRequests:   fc.pullRequests(),
		LogContext: model.LogOptions{
			Root:          fc.root,
			Server:        plan.Meta.Server,
			Fetch:         planOpts.Fetch,
			IncludeHidden: planOpts.IncludeHidden,
			MaxDepth:      planOpts.MaxDepth,
		},
		OnStart: progressPrinter(cmd),
	}.Normalize()

	targets := engine.SelectRows(plan.Rows, opts.Repos)
	if len(targets) == 0 {
		infof(cmd, "no repositories matched")
	}
	if needsConfirmation(cmd, targets, opts) {
		confirmed, err := confirmApply(cmd, targets, opts)
		if err != nil {
			return err
		}
		if !confirmed {
			infof(cmd, "apply cancelled")
			return nil
		}
	}

	outcome, applyErr := fc.engine.Apply(cmd.Context(), plan.Rows, opts)
	progressDone(cmd)
	if outcome == nil {
		return applyErr
	}

	logPath := resolveLogPath(getStringFlag(cmd, "log-json"), fc)
	if logPath != "" {
		if err := execlog.Write(logPath, outcome.Log); err != nil {
			infof(cmd, "failed to write execution log %s: %v", logPath, err)
			logPath = ""
		} else {
			debugf(cmd, "wrote execution log %s", logPath)
		}
	}

	if format != formatTable {
		if err := writeStructured(cmd, format, outcome.Log); err != nil {
			return err
		}
		infof(cmd, "%s", strings.TrimRight(execlog.Digest(outcome.Log, logPath), "\n"))
		return applyErr
	}
	if err := writeResultsTable(cmd, outcome.Results, fc.root, getBoolFlag(cmd, "no-headers")); err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), "\n"+execlog.Digest(outcome.Log, logPath))
	logOutputWriteFailure(cmd, "apply digest", err)
	return applyErr
}

// parseCheckoutPR validates the --checkout-pr value. Empty means unset.
func parseCheckoutPR(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(raw, "#"))
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid --checkout-pr %q: want a positive pull request number", raw)
	}
	return &n, nil
}

// resolveLogPath maps the --log-json value to a file path. "auto" uses
// defaults.log_dir when configured, else the default location under root.
func resolveLogPath(raw string, fc *fleetContext) string {
	if raw == "" {
		return ""
	}
	if raw != logPathAuto {
		return raw
	}
	path := execlog.DefaultPath(fc.root, timeNow())
	return filepath.Join(logDir(fc.cfg, fc.root), filepath.Base(path))
}

// logDir is where execution logs live for root.
func logDir(cfg *config.Config, root string) string {
	if dir := strings.TrimSpace(cfg.Defaults.LogDir); dir != "" {
		return dir
	}
	return execlog.Dir(root)
}

func needsConfirmation(cmd *cobra.Command, targets []model.PlanRow, opts engine.ApplyOptions) bool {
	if opts.DryRun || getBoolFlag(cmd, "yes") || !readerIsTerminal(cmd.InOrStdin()) {
		return false
	}
	for _, row := range targets {
		for _, action := range engine.PlannedActions(row, opts) {
			if action != string(model.KindSkip) {
				return true
			}
		}
	}
	return false
}

func confirmApply(cmd *cobra.Command, targets []model.PlanRow, opts engine.ApplyOptions) (bool, error) {
	table := cliio.NewTable("REPO", "STATE", "PLANNED")
	for _, row := range targets {
		table.Append(row.Repo, string(row.State), strings.Join(engine.PlannedActions(row, opts), " "))
	}
	if err := table.Render(cmd.ErrOrStderr()); err != nil {
		return false, err
	}
	return cliio.PromptYesNo(cmd.ErrOrStderr(), cmd.InOrStdin(), "Proceed with these actions? [y/N]: ")
}
