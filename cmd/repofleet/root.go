// Package repofleet contains the Cobra command tree for the RepoFleet CLI.
package repofleet

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/skaphos/repofleet/internal/logging"
)

var (
	// Global flags
	flagVerbose   int
	flagQuiet     bool
	flagConfig    string
	flagNoColor   bool
	flagLogLevel  logging.Level
	flagLogFormat = logging.FormatConsole
	// colorOutputEnabled is set per command execution based on output format and TTY detection.
	colorOutputEnabled bool
	// logger is rebuilt for every command execution from the log flags.
	logger = zap.NewNop()
	// isTerminalFD is overridable in tests.
	isTerminalFD = term.IsTerminal
	// exitFunc is overridable in tests.
	exitFunc = os.Exit
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	flagLogFormat = logging.FormatConsole
	flagLogLevel = ""
	cmd := &cobra.Command{
		Use:   "repofleet",
		Short: "Plan and apply sync actions across a fleet of git repositories",
		Long: "RepoFleet compares the git repositories under a workspace root with the repositories " +
			"an account owns on GitHub, GitLab or Bitbucket, then clones, fast-forwards, pushes or " +
			"switches branches in bulk. Nothing is ever force-pushed or rebased.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// `NO_COLOR` is a standard opt-out and should behave like --no-color.
			if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
				flagNoColor = true
			}
			return setupLogger(cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase output verbosity (repeatable)")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-essential output")
	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "override config file path")
	cmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().Var(&flagLogLevel, "log-level", "diagnostic log level: debug, info, warn, error (default derived from -v/-q)")
	cmd.PersistentFlags().Var(&flagLogFormat, "log-format", "diagnostic log format: console or structured")

	cmd.AddCommand(
		newPlanCmd(),
		newApplyCmd(),
		newLogsCmd(),
		newForgeCmd(),
		newServersCmd(),
		newConfigCmd(),
		newFindCmd(),
		newDuplicatesCmd(),
		newVersionCmd(),
	)
	return cmd
}

func setupLogger(out io.Writer) error {
	level := logging.LevelFor(flagVerbose > 0, flagQuiet, flagLogLevel)
	built, err := logging.NewFactory(out).CreateLogger(level, flagLogFormat)
	if err != nil {
		return err
	}
	logger = built
	return nil
}

// Execute runs the root command.
func Execute() {
	exitFunc(ExecuteWithExitCode())
}

// ExecuteWithExitCode runs the root command and returns a shell-friendly exit code.
func ExecuteWithExitCode() int {
	return execute(rootCmd, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// run executes a fresh command tree against the given streams.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return execute(newRootCmd(), args, stdin, stdout, stderr)
}

func execute(cmd *cobra.Command, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	colorOutputEnabled = false
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	_ = logger.Sync()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func infof(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func debugf(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet || flagVerbose <= 0 {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func setColorOutputMode(cmd *cobra.Command, format outputFormat) {
	colorOutputEnabled = shouldUseColorOutput(cmd, format)
}

func shouldUseColorOutput(cmd *cobra.Command, format outputFormat) bool {
	if flagNoColor || format != formatTable {
		return false
	}
	return writerIsTerminal(cmd.OutOrStdout())
}

func writerIsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isTerminalFD(int(file.Fd()))
}

func readerIsTerminal(r io.Reader) bool {
	file, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isTerminalFD(int(file.Fd()))
}
