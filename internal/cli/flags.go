package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrz1836/cutover/internal/config"
	"github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/tui"
)

// Exit codes for the CLI.
const (
	ExitSuccess     = errors.ExitSuccess
	ExitGateFailure = errors.ExitGateFailure
	ExitFatal       = errors.ExitFatal
)

// GlobalFlags holds flags available to all commands.
type GlobalFlags struct {
	// Output specifies the output format (text or json).
	Output string
	// Verbose enables debug-level logging.
	Verbose bool
	// Quiet suppresses non-essential output (warn level only).
	Quiet bool
	// ConfigPath is an explicit config file replacing .cutover/config.yaml.
	ConfigPath string
}

// AddGlobalFlags adds global flags to a command.
func AddGlobalFlags(cmd *cobra.Command, flags *GlobalFlags) {
	cmd.PersistentFlags().StringVarP(&flags.Output, "output", "o", tui.FormatText, "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress non-essential output")
	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file (default .cutover/config.yaml)")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// BindGlobalFlags binds global flags to Viper so CUTOVER_OUTPUT,
// CUTOVER_VERBOSE and CUTOVER_QUIET work like the flags.
func BindGlobalFlags(v *viper.Viper, cmd *cobra.Command) error {
	rootFlags := cmd.Root().PersistentFlags()
	for _, name := range []string{"output", "verbose", "quiet"} {
		if err := v.BindPFlag(name, rootFlags.Lookup(name)); err != nil {
			return err
		}
	}
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	// Flags given on the command line win; otherwise the environment does.
	for _, name := range []string{"output", "verbose", "quiet"} {
		f := rootFlags.Lookup(name)
		if f.Changed {
			continue
		}
		if val := v.GetString(name); val != f.Value.String() {
			if err := f.Value.Set(val); err != nil {
				return fmt.Errorf("invalid %s_%s: %w", config.EnvPrefix, strings.ToUpper(name), err)
			}
		}
	}
	return nil
}

// ValidOutputFormats returns the list of valid output format values.
func ValidOutputFormats() []string {
	return []string{tui.FormatText, tui.FormatJSON}
}

// IsValidOutputFormat checks if the given format is a valid output format.
func IsValidOutputFormat(format string) bool {
	for _, valid := range ValidOutputFormats() {
		if format == valid {
			return true
		}
	}
	return false
}

// ExitCodeForError returns the process exit code for err.
// Cobra flag and argument errors are usage errors and exit 1 like any other
// rejected request.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if isInvalidInputError(err.Error()) {
		return ExitGateFailure
	}
	return errors.ExitCode(err)
}

// isInvalidInputError catches Cobra's built-in flag validation errors.
func isInvalidInputError(errMsg string) bool {
	patterns := []string{
		"unknown flag",
		"unknown shorthand flag",
		"flag needs an argument",
		"invalid argument",
		"if any flags in the group",
		"required flag",
		"unknown command",
		"accepts ",
	}
	for _, p := range patterns {
		if strings.Contains(errMsg, p) {
			return true
		}
	}
	return false
}
