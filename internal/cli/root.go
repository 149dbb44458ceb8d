// Package cli provides the command-line interface for cutover.
package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/tui"
)

// BuildInfo contains version information set at build time via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// globalLogger stores the initialized logger for use by subcommands.
// It is set during PersistentPreRunE and read through GetLogger.
var (
	globalLogger   zerolog.Logger //nolint:gochecknoglobals // CLI logger requires global access
	globalLoggerMu sync.RWMutex   //nolint:gochecknoglobals // Protects globalLogger
)

// GetLogger returns the logger initialized by the root command.
//
// IMPORTANT: This function MUST only be called after the root command's
// PersistentPreRunE has executed. Before that it returns a zero-value logger
// that discards all output.
func GetLogger() zerolog.Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// newRootCmd creates the root command for the cutover CLI.
func newRootCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "cutover",
		Short: "Progressive blue/green deployments with automatic rollback",
		Long: `cutover deploys a new revision to the idle environment of a blue/green pair,
gates it on health checks and smoke tests, then shifts traffic to it in stages
while watching error rate and latency. A breach at any stage moves all traffic
back to the previous environment and records an incident.

Exit codes:
  0  completed
  1  gate failure, validation error, conflict or rolled back
  2  environment could not be resolved, infrastructure failure,
     critical escalation or frozen service`,
		Version: formatVersion(info),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := BindGlobalFlags(v, cmd); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}

			if !IsValidOutputFormat(flags.Output) {
				return errors.Mark(fmt.Errorf("%w: %q must be one of %v",
					errors.ErrInvalidOutputFormat, flags.Output, ValidOutputFormats()), errors.ErrValidation)
			}

			globalLoggerMu.Lock()
			globalLogger = InitLogger(flags.Verbose, flags.Quiet)
			globalLoggerMu.Unlock()

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	AddGlobalFlags(cmd, flags)

	AddRunCommand(cmd, flags, info)
	AddRollbackCommand(cmd, flags, info)
	AddCancelCommand(cmd, flags, info)
	AddStatusCommand(cmd, flags, info)
	AddIncidentsCommand(cmd, flags, info)
	AddConfigCommand(cmd, flags)
	AddVersionCommand(cmd, flags, info)

	return cmd
}

// formatVersion creates the version string from build info.
func formatVersion(info BuildInfo) string {
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
}

// Execute runs the root command and prints any error in the selected output
// format. The returned error decides the exit code (see ExitCodeForError).
func Execute(ctx context.Context, info BuildInfo) error {
	return execute(ctx, info, nil, nil, nil)
}

// execute is Execute with injectable args and writers for tests.
func execute(ctx context.Context, info BuildInfo, args []string, stdout, stderr io.Writer) error {
	flags := &GlobalFlags{}
	//nolint:contextcheck // Cobra command pattern uses cmd.Context() internally
	cmd := newRootCmd(flags, info)
	if args != nil {
		cmd.SetArgs(args)
	}
	if stdout != nil {
		cmd.SetOut(stdout)
	}
	if stderr != nil {
		cmd.SetErr(stderr)
	}

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		printError(tui.NewOutput(cmd.ErrOrStderr(), flags.Output), err)
	}
	return err
}

// printError writes err with its operator-facing hint.
func printError(out tui.Output, err error) {
	out.Error(err)
	if msg, action := errors.Actionable(err); action != "" {
		out.Info(msg + " " + action)
	}
}
