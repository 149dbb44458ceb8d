package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/incident"
	"github.com/mrz1836/cutover/internal/tui"
)

// AddIncidentsCommand adds the incidents command group to the root command.
func AddIncidentsCommand(root *cobra.Command, flags *GlobalFlags, info BuildInfo) {
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "Inspect recorded incidents",
		Long: `Inspect the write-once incident log. Incidents are recorded for every
rollback, deployment failure, critical escalation and completed deployment.`,
	}
	cmd.AddCommand(newIncidentsListCmd(flags, info), newIncidentsShowCmd(flags, info))
	root.AddCommand(cmd)
}

func newIncidentsListCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	var (
		filter  incident.Filter
		typeArg string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List incidents, newest first",
		Long: `List incidents, newest first.

Examples:
  cutover incidents list
  cutover incidents list --service checkout --type rollback --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if typeArg != "" {
				t, err := parseIncidentType(typeArg)
				if err != nil {
					return err
				}
				filter.Type = t
			}
			return runIncidentsList(cmd.Context(), cmd.OutOrStdout(), flags, info, filter)
		},
	}

	cmd.Flags().StringVar(&filter.ServiceID, "service", "", "Only incidents for this service")
	cmd.Flags().StringVar(&typeArg, "type", "", "Only incidents of this type (rollback, deployment_failure, critical_escalation, deployment_succeeded)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum number of incidents (0 for all)")

	return cmd
}

func newIncidentsShowCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "show <incident-id>",
		Short: "Show one incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIncidentsShow(cmd.Context(), cmd.OutOrStdout(), flags, info, args[0])
		},
	}
}

func parseIncidentType(s string) (constants.IncidentType, error) {
	for _, t := range constants.AllIncidentTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", errors.Mark(fmt.Errorf("incident type %q: %w", s, errors.ErrInvalidArgument), errors.ErrValidation)
}

func runIncidentsList(ctx context.Context, w io.Writer, flags *GlobalFlags, info BuildInfo, filter incident.Filter) error {
	if filter.Limit < 0 {
		return errors.Mark(fmt.Errorf("limit %d: %w", filter.Limit, errors.ErrInvalidArgument), errors.ErrValidation)
	}
	services, err := openServices(ctx, flags, info, ServiceOptions{})
	if err != nil {
		return err
	}
	defer closeServices(ctx, services)

	incs, err := services.Store.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list incidents: %w", err)
	}

	out := tui.NewOutput(w, flags.Output)
	if flags.Output == tui.FormatJSON {
		return out.JSON(incs)
	}
	if len(incs) == 0 {
		out.Info("no incidents recorded")
		return nil
	}
	out.Table(tui.IncidentHeaders(), tui.IncidentRows(incs))
	return nil
}

func runIncidentsShow(ctx context.Context, w io.Writer, flags *GlobalFlags, info BuildInfo, id string) error {
	services, err := openServices(ctx, flags, info, ServiceOptions{})
	if err != nil {
		return err
	}
	defer closeServices(ctx, services)

	inc, err := services.Store.Get(ctx, id)
	if err != nil {
		return err
	}

	if flags.Output == tui.FormatJSON {
		return tui.NewOutput(w, flags.Output).JSON(inc)
	}
	_, _ = fmt.Fprint(w, tui.IncidentDetail(inc))
	return nil
}
