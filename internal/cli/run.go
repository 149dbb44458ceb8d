package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/rollout"
	"github.com/mrz1836/cutover/internal/signal"
	"github.com/mrz1836/cutover/internal/tui"
)

// runOptions contains the flags of the run command.
type runOptions struct {
	revision    string
	environment string
	dryRun      bool
	force       bool
	initiator   string
}

// AddRunCommand adds the run command to the root command.
func AddRunCommand(root *cobra.Command, flags *GlobalFlags, info BuildInfo) {
	root.AddCommand(newRunCmd(flags, info))
}

func newRunCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <service>",
		Short: "Deploy a revision and shift traffic to it in stages",
		Long: `Deploy a revision to the idle environment of a service, verify it with
health checks and smoke tests, then shift traffic to it stage by stage.

Each stage is held for the configured dwell while error rate and p95 latency
are sampled. A breach moves all traffic back to the previous environment and
records an incident. Ctrl+C stops the attempt at its next checkpoint and rolls
back any traffic already shifted; a second Ctrl+C cancels immediately.

Examples:
  cutover run checkout -r 1.4.2
  cutover run checkout -r ghcr.io/acme/checkout:1.4.2 -e green
  cutover run checkout -r 1.4.2 --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), cmd.OutOrStdout(), flags, info, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.revision, "revision", "r", "", "Image or tag to deploy (required)")
	cmd.Flags().StringVarP(&opts.environment, "environment", "e", "", "Target environment (blue or green); defaults to the idle one")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Simulate the rollout without touching infrastructure")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Run even if the service is frozen after a critical escalation")
	cmd.Flags().StringVar(&opts.initiator, "initiator", "", "Who is running the deployment (default: operator:$USER)")
	_ = cmd.MarkFlagRequired("revision")

	return cmd
}

func runRun(ctx context.Context, w io.Writer, flags *GlobalFlags, info BuildInfo, serviceID string, opts runOptions) error {
	target := constants.EnvID(opts.environment)
	if target != "" && !target.Valid() {
		return errors.Mark(fmt.Errorf("environment %q: %w", opts.environment, errors.ErrUnknownEnvironment), errors.ErrValidation)
	}

	handler := signal.NewHandler(ctx)
	defer handler.Stop()
	ctx = handler.Context()

	sopts := ServiceOptions{Interrupt: handler.Interrupted()}
	if opts.dryRun {
		sopts.DryRun = true
		sopts.DryRunService = serviceID
		if target != "" {
			sopts.DryRunActive = target.Other()
		}
	}
	services, err := openServices(ctx, flags, info, sopts)
	if err != nil {
		return err
	}
	defer closeServices(ctx, services)
	if _, err := lookupService(services.Config, serviceID); err != nil {
		return err
	}

	result, runErr := services.Executor.Run(ctx, rollout.RunRequest{
		ServiceID:   serviceID,
		Environment: target,
		Revision:    opts.revision,
		Force:       opts.force,
		DryRun:      opts.dryRun,
		Initiator:   initiator(opts.initiator),
	})
	if result == nil {
		return runErr
	}

	out := tui.NewOutput(w, flags.Output)
	if flags.Output == tui.FormatJSON {
		if err := out.JSON(result); err != nil {
			return err
		}
		return runErr
	}

	_, _ = fmt.Fprint(w, tui.AttemptSummary(result.Attempt))
	if inc := result.Incident; inc != nil && inc.ID != "" && !opts.dryRun {
		msg := fmt.Sprintf("incident %s recorded", inc.ID)
		if inc.Type == constants.IncidentDeploymentSucceeded {
			out.Info(msg)
		} else {
			out.Warning(msg)
		}
	}
	if runErr == nil {
		out.Success(fmt.Sprintf("%s is now serving %s", serviceID, result.Attempt.TargetEnv))
	}
	return runErr
}
