package incident

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// Directory and file permission constants.
const (
	dirPerm = 0o750

	// Committed records are read-only.
	recordPerm = 0o400
)

// FileStore implements Store with one JSON file per record:
//
//	<stateDir>/incidents/<service>/<incident-id>.json
//	<stateDir>/attempts/<service>/<attempt-id>.json
//
// A record is written to a temp file, synced, and hard-linked to its final
// name. The link fails if the name exists, so a committed file is never replaced.
type FileStore struct {
	stateDir string
}

// NewFileStore creates a FileStore rooted at stateDir.
func NewFileStore(stateDir string) (*FileStore, error) {
	if stateDir == "" {
		return nil, fmt.Errorf("failed to create incident store: state dir %w", cerrors.ErrEmptyValue)
	}
	for _, dir := range []string{constants.IncidentsDir, constants.AttemptsDir} {
		if err := os.MkdirAll(filepath.Join(stateDir, dir), dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	return &FileStore{stateDir: stateDir}, nil
}

// Append implements Store.
func (s *FileStore) Append(ctx context.Context, inc *domain.Incident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateIncident(inc); err != nil {
		return err
	}
	data, err := json.MarshalIndent(inc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode incident '%s': %w", inc.ID, err)
	}
	path := filepath.Join(s.stateDir, constants.IncidentsDir, inc.ServiceID, inc.ID+".json")
	if err := writeOnce(path, data); err != nil {
		return fmt.Errorf("failed to append incident '%s': %w", inc.ID, err)
	}
	return nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, id string) (*domain.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateID("incident id", id); err != nil {
		return nil, err
	}
	path, err := s.find(constants.IncidentsDir, id)
	if err != nil {
		return nil, fmt.Errorf("incident '%s': %w", id, cerrors.ErrIncidentNotFound)
	}
	var inc domain.Incident
	if err := readJSON(path, &inc); err != nil {
		return nil, err
	}
	return &inc, nil
}

// List implements Store.
func (s *FileStore) List(ctx context.Context, f Filter) ([]*domain.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paths, err := s.records(constants.IncidentsDir, f.ServiceID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Incident, 0, len(paths))
	for _, path := range paths {
		var inc domain.Incident
		if err := readJSON(path, &inc); err != nil {
			return nil, err
		}
		if matches(&inc, f) {
			out = append(out, &inc)
		}
	}
	sortIncidents(out)
	return limit(out, f.Limit), nil
}

// SaveAttempt implements Store.
func (s *FileStore) SaveAttempt(ctx context.Context, a *domain.DeploymentAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateAttempt(a); err != nil {
		return err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode attempt '%s': %w", a.ID, err)
	}
	path := filepath.Join(s.stateDir, constants.AttemptsDir, a.ServiceID, a.ID+".json")
	if err := writeOnce(path, data); err != nil {
		return fmt.Errorf("failed to archive attempt '%s': %w", a.ID, err)
	}
	return nil
}

// GetAttempt implements Store.
func (s *FileStore) GetAttempt(ctx context.Context, id string) (*domain.DeploymentAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateID("attempt id", id); err != nil {
		return nil, err
	}
	path, err := s.find(constants.AttemptsDir, id)
	if err != nil {
		return nil, fmt.Errorf("attempt '%s': %w", id, cerrors.ErrAttemptNotFound)
	}
	var a domain.DeploymentAttempt
	if err := readJSON(path, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAttempts implements Store.
func (s *FileStore) ListAttempts(ctx context.Context, serviceID string, n int) ([]*domain.DeploymentAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paths, err := s.records(constants.AttemptsDir, serviceID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.DeploymentAttempt, 0, len(paths))
	for _, path := range paths {
		var a domain.DeploymentAttempt
		if err := readJSON(path, &a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	sortAttempts(out)
	return limit(out, n), nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// find locates <kind>/<any service>/<id>.json.
func (s *FileStore) find(kind, id string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.stateDir, kind, "*", id+".json"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fs.ErrNotExist
	}
	return matches[0], nil
}

// records lists record files of kind, for one service or all of them.
func (s *FileStore) records(kind, serviceID string) ([]string, error) {
	service := "*"
	if serviceID != "" {
		if err := validateID("service id", serviceID); err != nil {
			return nil, err
		}
		service = serviceID
	}
	paths, err := filepath.Glob(filepath.Join(s.stateDir, kind, service, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	return paths, nil
}

// writeOnce commits data to path unless path already exists.
func writeOnce(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp-" + uuid.NewString()[:8]
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, recordPerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", filepath.Base(path), cerrors.ErrIncidentExists)
		}
		return fmt.Errorf("failed to commit file: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", strings.TrimSuffix(filepath.Base(path), ".json"), err)
	}
	return nil
}
