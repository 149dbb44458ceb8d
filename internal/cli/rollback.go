package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/cutover/internal/rollout"
	"github.com/mrz1836/cutover/internal/tui"
)

// AddRollbackCommand adds the rollback command to the root command.
func AddRollbackCommand(root *cobra.Command, flags *GlobalFlags, info BuildInfo) {
	root.AddCommand(newRollbackCmd(flags, info))
}

func newRollbackCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	var (
		req   rollout.ManualRequest
		inits string
	)

	cmd := &cobra.Command{
		Use:   "rollback <service>",
		Short: "Move all traffic back to the previous environment",
		Long: `Move all traffic for a service back to the source environment of its latest
attempt, verify that environment and record a rollback incident. Without an
archived attempt the environment currently holding less traffic is used.

A successful manual rollback lifts the freeze left by a critical escalation.

When another attempt is running, --force files an abort request instead so
that attempt rolls itself back at its next checkpoint.

Examples:
  cutover rollback checkout --reason "elevated 5xx"
  cutover rollback checkout --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ServiceID = args[0]
			req.Initiator = initiator(inits)
			return runRollback(cmd.Context(), cmd.OutOrStdout(), flags, info, req)
		},
	}

	cmd.Flags().StringVar(&req.Reason, "reason", "", "Why traffic is being rolled back")
	cmd.Flags().BoolVar(&req.Force, "force", false, "Abort a running attempt instead of failing on its lease")
	cmd.Flags().StringVar(&inits, "initiator", "", "Who is rolling back (default: operator:$USER)")

	return cmd
}

func runRollback(ctx context.Context, w io.Writer, flags *GlobalFlags, info BuildInfo, req rollout.ManualRequest) error {
	services, err := openServices(ctx, flags, info, ServiceOptions{})
	if err != nil {
		return err
	}
	defer closeServices(ctx, services)

	res, err := services.Executor.ManualRollback(ctx, req)
	if err != nil {
		return err
	}

	out := tui.NewOutput(w, flags.Output)
	if flags.Output == tui.FormatJSON {
		return out.JSON(res)
	}
	if res.AbortFiled {
		out.Warning(fmt.Sprintf("%s has a running attempt; abort requested, it will roll back at its next checkpoint", req.ServiceID))
		return nil
	}
	out.Success(fmt.Sprintf("%s traffic moved to %s", req.ServiceID, res.To))
	if res.Incident != nil {
		_, _ = fmt.Fprint(w, tui.IncidentDetail(res.Incident))
	}
	return nil
}
