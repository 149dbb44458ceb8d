// Package incident persists the audit trail of deployment attempts.
//
// Incidents and archived attempts are append-only: a record is written once
// and never modified. A second write with the same id fails with
// errors.ErrIncidentExists. Two backends are provided: FileStore keeps one
// JSON file per record under the state directory, and SQLStore keeps them in
// a sqlite database through gorm.
package incident

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// validIDRegex restricts ids and service names used in file paths and queries.
var validIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	ServiceID string
	Type      constants.IncidentType

	// Limit caps the number of results. 0 means no limit.
	Limit int
}

// Store persists incidents and finalized attempts.
type Store interface {
	// Append commits inc. It fails with ErrIncidentExists if the id is taken.
	Append(ctx context.Context, inc *domain.Incident) error

	// Get returns the incident with id or ErrIncidentNotFound.
	Get(ctx context.Context, id string) (*domain.Incident, error)

	// List returns incidents matching f, newest first.
	List(ctx context.Context, f Filter) ([]*domain.Incident, error)

	// SaveAttempt archives a finalized attempt. Attempts are immutable too.
	SaveAttempt(ctx context.Context, a *domain.DeploymentAttempt) error

	// GetAttempt returns the archived attempt with id or ErrAttemptNotFound.
	GetAttempt(ctx context.Context, id string) (*domain.DeploymentAttempt, error)

	// ListAttempts returns archived attempts for serviceID, newest first.
	ListAttempts(ctx context.Context, serviceID string, limit int) ([]*domain.DeploymentAttempt, error)

	Close() error
}

func validateIncident(inc *domain.Incident) error {
	if inc == nil {
		return fmt.Errorf("failed to append incident: incident %w", cerrors.ErrEmptyValue)
	}
	if err := validateID("incident id", inc.ID); err != nil {
		return err
	}
	return validateID("service id", inc.ServiceID)
}

func validateAttempt(a *domain.DeploymentAttempt) error {
	if a == nil {
		return fmt.Errorf("failed to archive attempt: attempt %w", cerrors.ErrEmptyValue)
	}
	if err := validateID("attempt id", a.ID); err != nil {
		return err
	}
	return validateID("service id", a.ServiceID)
}

func validateID(what, id string) error {
	if id == "" {
		return cerrors.Mark(fmt.Errorf("%s %w", what, cerrors.ErrEmptyValue), cerrors.ErrValidation)
	}
	if !validIDRegex.MatchString(id) {
		return cerrors.Mark(fmt.Errorf("%s '%s' contains invalid characters: %w", what, id, cerrors.ErrInvalidArgument), cerrors.ErrValidation)
	}
	return nil
}

func matches(inc *domain.Incident, f Filter) bool {
	if f.ServiceID != "" && inc.ServiceID != f.ServiceID {
		return false
	}
	if f.Type != "" && inc.Type != f.Type {
		return false
	}
	return true
}

// sortIncidents orders newest first, breaking ties by id.
func sortIncidents(incs []*domain.Incident) {
	sort.SliceStable(incs, func(i, j int) bool {
		if !incs[i].Timestamp.Equal(incs[j].Timestamp) {
			return incs[i].Timestamp.After(incs[j].Timestamp)
		}
		return incs[i].ID > incs[j].ID
	})
}

func sortAttempts(as []*domain.DeploymentAttempt) {
	sort.SliceStable(as, func(i, j int) bool {
		if !as[i].StartedAt.Equal(as[j].StartedAt) {
			return as[i].StartedAt.After(as[j].StartedAt)
		}
		return as[i].ID > as[j].ID
	})
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
