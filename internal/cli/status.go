package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	"github.com/mrz1836/cutover/internal/health"
	"github.com/mrz1836/cutover/internal/lease"
	"github.com/mrz1836/cutover/internal/tui"
)

// serviceStatus is the status of one service.
type serviceStatus struct {
	ServiceID      string                    `json:"service_id"`
	Routing        domain.Weights            `json:"routing,omitempty"`
	RoutingError   string                    `json:"routing_error,omitempty"`
	Environments   []domain.Environment      `json:"environments"`
	Lease          *lease.Lease              `json:"lease,omitempty"`
	AbortRequested bool                      `json:"abort_requested"`
	AbortReason    string                    `json:"abort_reason,omitempty"`
	Frozen         bool                      `json:"frozen"`
	LatestIncident *domain.Incident          `json:"latest_incident,omitempty"`
	LatestAttempt  *domain.DeploymentAttempt `json:"latest_attempt,omitempty"`
}

// AddStatusCommand adds the status command to the root command.
func AddStatusCommand(root *cobra.Command, flags *GlobalFlags, info BuildInfo) {
	root.AddCommand(newStatusCmd(flags, info))
}

func newStatusCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	var checkHealth bool

	cmd := &cobra.Command{
		Use:   "status [service]",
		Short: "Show routing, lease and incident state",
		Long: `Show the current traffic split, the attempt holding the lease, any pending
abort request, the freeze state and the latest attempt and incident.

Without a service every configured service is shown. --check-health runs
the configured health checks against both environments.

Examples:
  cutover status
  cutover status checkout --check-health -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), flags, info, args, checkHealth)
		},
	}

	cmd.Flags().BoolVar(&checkHealth, "check-health", false, "Probe both environments with the configured health checks")

	return cmd
}

func runStatus(ctx context.Context, w io.Writer, flags *GlobalFlags, info BuildInfo, args []string, checkHealth bool) error {
	services, err := openServices(ctx, flags, info, ServiceOptions{})
	if err != nil {
		return err
	}
	defer closeServices(ctx, services)

	ids := args
	if len(ids) == 0 {
		ids = lo.Keys(services.Config.Services)
		sort.Strings(ids)
	} else if _, err := lookupService(services.Config, ids[0]); err != nil {
		return err
	}

	statuses := make([]serviceStatus, 0, len(ids))
	for _, id := range ids {
		st, err := collectStatus(ctx, services, id)
		if err != nil {
			return err
		}
		if checkHealth {
			probeEnvironments(ctx, services, &st)
		}
		statuses = append(statuses, st)
	}

	out := tui.NewOutput(w, flags.Output)
	if flags.Output == tui.FormatJSON {
		return out.JSON(statuses)
	}
	if len(statuses) == 0 {
		out.Info("no services configured")
		return nil
	}
	for i, st := range statuses {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		renderStatus(w, st)
	}
	return nil
}

// collectStatus gathers state for one service. An unreachable orchestrator
// is reported in the status rather than failing the command.
func collectStatus(ctx context.Context, s *Services, serviceID string) (serviceStatus, error) {
	st := serviceStatus{ServiceID: serviceID}

	if routing, err := s.Client.GetRouting(ctx, serviceID); err != nil {
		st.RoutingError = err.Error()
	} else {
		st.Routing = routing.Weights
	}
	svc, _ := s.Config.Service(serviceID)
	for _, env := range constants.AllEnvs() {
		st.Environments = append(st.Environments, domain.Environment{
			ID:            env,
			WorkloadRef:   svc.WorkloadName(serviceID, env),
			TrafficWeight: st.Routing[env],
			HealthStatus:  constants.HealthUnknown,
		})
	}

	var err error
	if st.Lease, err = s.Leases.Holder(ctx, serviceID); err != nil {
		return st, fmt.Errorf("failed to read lease for service '%s': %w", serviceID, err)
	}
	if st.AbortReason, st.AbortRequested, err = s.Leases.AbortRequested(ctx, serviceID); err != nil {
		return st, fmt.Errorf("failed to read abort request for service '%s': %w", serviceID, err)
	}
	if st.Frozen, st.LatestIncident, err = s.Recorder.Frozen(ctx, serviceID); err != nil {
		return st, err
	}
	if st.LatestAttempt, err = s.Recorder.LatestAttempt(ctx, serviceID); err != nil {
		return st, err
	}
	return st, nil
}

// probeEnvironments verifies both environments and records the result.
func probeEnvironments(ctx context.Context, s *Services, st *serviceStatus) {
	verifier := health.NewVerifier(s.Logger)
	targets := Addresser(s.Config)
	for i := range st.Environments {
		env := &st.Environments[i]
		target, err := targets(st.ServiceID, env.ID)
		if err != nil {
			continue
		}
		report := verifier.Verify(ctx, target, HealthChecks(s.Config), HealthOptions(s.Config))
		now := time.Now().UTC()
		env.LastVerifiedAt = &now
		env.HealthStatus = report.Status()
	}
}

func renderStatus(w io.Writer, st serviceStatus) {
	title := cases.Title(language.English)
	label := func(name string) string {
		return tui.StyleDim.Render(fmt.Sprintf("%-9s", title.String(name)+":"))
	}

	_, _ = fmt.Fprintln(w, tui.StyleBold.Render(st.ServiceID))
	if st.RoutingError != "" {
		_, _ = fmt.Fprintf(w, "  %s unavailable (%s)\n", label("routing"), st.RoutingError)
	} else {
		_, _ = fmt.Fprintf(w, "  %s %s\n", label("routing"), tui.RoutingBar(st.Routing))
	}

	for _, env := range st.Environments {
		if env.HealthStatus == constants.HealthUnknown {
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s %s %s\n", label(env.ID.String()), env.WorkloadRef, env.HealthStatus)
	}

	holder := "none"
	if st.Lease != nil {
		holder = fmt.Sprintf("%s (since %s)", st.Lease.Holder, tui.RelativeTime(st.Lease.AcquiredAt))
	}
	_, _ = fmt.Fprintf(w, "  %s %s\n", label("lease"), holder)
	if st.AbortRequested {
		_, _ = fmt.Fprintf(w, "  %s %s\n", label("abort"), st.AbortReason)
	}
	if st.Frozen {
		_, _ = fmt.Fprintf(w, "  %s %s\n", label("frozen"), "yes, run 'cutover rollback' or pass --force")
	}
	if a := st.LatestAttempt; a != nil {
		_, _ = fmt.Fprintf(w, "  %s %s %s %s (%s)\n", label("attempt"), a.ID, tui.FormatState(a.State), a.Revision, tui.RelativeTime(a.StartedAt))
	}
	if inc := st.LatestIncident; inc != nil {
		_, _ = fmt.Fprintf(w, "  %s %s %s (%s)\n", label("incident"), inc.ID,
			tui.FormatIncidentType(inc.Type, inc.Severity()), tui.RelativeTime(inc.Timestamp))
	}
}
