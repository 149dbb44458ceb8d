package incident

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// incidentRecord is the incidents table row.
type incidentRecord struct {
	ID              string `gorm:"primaryKey"`
	Type            string `gorm:"index"`
	ServiceID       string `gorm:"index"`
	AttemptID       string
	Reason          string
	FromEnv         string
	ToEnv           string
	TimestampNs     int64 `gorm:"index"`
	DurationSeconds float64
	Initiator       string
	Revision        string
	Status          string
}

func (incidentRecord) TableName() string { return "incidents" }

func (r *incidentRecord) fromIncident(inc *domain.Incident) {
	r.ID = inc.ID
	r.Type = string(inc.Type)
	r.ServiceID = inc.ServiceID
	r.AttemptID = inc.AttemptID
	r.Reason = inc.Reason
	r.FromEnv = string(inc.FromEnv)
	r.ToEnv = string(inc.ToEnv)
	r.TimestampNs = inc.Timestamp.UnixNano()
	r.DurationSeconds = inc.DurationSeconds
	r.Initiator = inc.Initiator
	r.Revision = inc.Revision
	r.Status = string(inc.Status)
}

func (r incidentRecord) toIncident() *domain.Incident {
	return &domain.Incident{
		ID:              r.ID,
		Type:            constants.IncidentType(r.Type),
		ServiceID:       r.ServiceID,
		AttemptID:       r.AttemptID,
		Reason:          r.Reason,
		FromEnv:         constants.EnvID(r.FromEnv),
		ToEnv:           constants.EnvID(r.ToEnv),
		Timestamp:       time.Unix(0, r.TimestampNs).UTC(),
		DurationSeconds: r.DurationSeconds,
		Initiator:       r.Initiator,
		Revision:        r.Revision,
		Status:          constants.Outcome(r.Status),
	}
}

// attemptRecord keeps the archived attempt as a JSON document with the
// columns needed for lookup.
type attemptRecord struct {
	ID          string `gorm:"primaryKey"`
	ServiceID   string `gorm:"index"`
	StartedAtNs int64  `gorm:"index"`
	Body        []byte
}

func (attemptRecord) TableName() string { return "attempts" }

// SQLStore implements Store on a sqlite database.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore opens (or creates) the sqlite database at path and migrates it.
func NewSQLStore(path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("failed to open incident database: path %w", cerrors.ErrEmptyValue)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open incident database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to open incident database: %w", err)
	}
	// sqlite serializes writers; one connection keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&incidentRecord{}, &attemptRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate incident database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Append implements Store.
func (s *SQLStore) Append(ctx context.Context, inc *domain.Incident) error {
	if err := validateIncident(inc); err != nil {
		return err
	}
	var rec incidentRecord
	rec.fromIncident(inc)
	if err := gorm.G[incidentRecord](s.db).Create(ctx, &rec); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("incident '%s': %w", inc.ID, cerrors.ErrIncidentExists)
		}
		return fmt.Errorf("failed to append incident '%s': %w", inc.ID, err)
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, id string) (*domain.Incident, error) {
	if err := validateID("incident id", id); err != nil {
		return nil, err
	}
	rec, err := gorm.G[incidentRecord](s.db).Where("id = ?", id).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("incident '%s': %w", id, cerrors.ErrIncidentNotFound)
		}
		return nil, fmt.Errorf("failed to load incident '%s': %w", id, err)
	}
	return rec.toIncident(), nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context, f Filter) ([]*domain.Incident, error) {
	q := gorm.G[incidentRecord](s.db).Order("timestamp_ns DESC, id DESC")
	if f.ServiceID != "" {
		q = q.Where("service_id = ?", f.ServiceID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	recs, err := q.Find(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	return lo.Map(recs, func(r incidentRecord, _ int) *domain.Incident { return r.toIncident() }), nil
}

// SaveAttempt implements Store.
func (s *SQLStore) SaveAttempt(ctx context.Context, a *domain.DeploymentAttempt) error {
	if err := validateAttempt(a); err != nil {
		return err
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode attempt '%s': %w", a.ID, err)
	}
	rec := attemptRecord{ID: a.ID, ServiceID: a.ServiceID, StartedAtNs: a.StartedAt.UnixNano(), Body: body}
	if err := gorm.G[attemptRecord](s.db).Create(ctx, &rec); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("attempt '%s': %w", a.ID, cerrors.ErrIncidentExists)
		}
		return fmt.Errorf("failed to archive attempt '%s': %w", a.ID, err)
	}
	return nil
}

// GetAttempt implements Store.
func (s *SQLStore) GetAttempt(ctx context.Context, id string) (*domain.DeploymentAttempt, error) {
	if err := validateID("attempt id", id); err != nil {
		return nil, err
	}
	rec, err := gorm.G[attemptRecord](s.db).Where("id = ?", id).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("attempt '%s': %w", id, cerrors.ErrAttemptNotFound)
		}
		return nil, fmt.Errorf("failed to load attempt '%s': %w", id, err)
	}
	return decodeAttempt(rec)
}

// ListAttempts implements Store.
func (s *SQLStore) ListAttempts(ctx context.Context, serviceID string, n int) ([]*domain.DeploymentAttempt, error) {
	q := gorm.G[attemptRecord](s.db).Order("started_at_ns DESC, id DESC")
	if serviceID != "" {
		q = q.Where("service_id = ?", serviceID)
	}
	if n > 0 {
		q = q.Limit(n)
	}
	recs, err := q.Find(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	out := make([]*domain.DeploymentAttempt, 0, len(recs))
	for _, rec := range recs {
		a, err := decodeAttempt(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func decodeAttempt(rec attemptRecord) (*domain.DeploymentAttempt, error) {
	var a domain.DeploymentAttempt
	if err := json.Unmarshal(rec.Body, &a); err != nil {
		return nil, fmt.Errorf("failed to decode attempt '%s': %w", rec.ID, err)
	}
	return &a, nil
}
