package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/cutover/internal/tui"
)

// AddCancelCommand adds the cancel command to the root command.
func AddCancelCommand(root *cobra.Command, flags *GlobalFlags, info BuildInfo) {
	root.AddCommand(newCancelCmd(flags, info))
}

func newCancelCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <service>",
		Short: "Ask a running attempt to stop and roll back",
		Long: `File an abort request against the attempt currently holding the service's
lease. The attempt notices it at its next checkpoint, moves traffic back and
records a rollback incident.

Examples:
  cutover cancel checkout
  cutover cancel checkout --reason "wrong revision"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(cmd.Context(), cmd.OutOrStdout(), flags, info, args[0], reason)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the attempt is being cancelled")

	return cmd
}

func runCancel(ctx context.Context, w io.Writer, flags *GlobalFlags, info BuildInfo, serviceID, reason string) error {
	services, err := openServices(ctx, flags, info, ServiceOptions{})
	if err != nil {
		return err
	}
	defer closeServices(ctx, services)

	if err := services.Executor.Cancel(ctx, serviceID, reason); err != nil {
		return err
	}

	out := tui.NewOutput(w, flags.Output)
	if flags.Output == tui.FormatJSON {
		return out.JSON(map[string]any{"service_id": serviceID, "abort_requested": true})
	}
	out.Success(fmt.Sprintf("abort requested for %s", serviceID))
	return nil
}
