package lease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mrz1836/cutover/internal/clock"
	"github.com/mrz1836/cutover/internal/constants"
	cerrors "github.com/mrz1836/cutover/internal/errors"
	"github.com/mrz1836/cutover/internal/flock"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// File is a Manager backed by flock(2) on <dir>/leases/<service>.lock.
// It excludes other processes on the same host. The lock file body holds the
// lease as JSON so that status commands can show the holder. Leases do not
// expire: the kernel drops the lock when the holding process exits.
type File struct {
	dir   string
	clock clock.Clock

	mu   sync.Mutex
	held map[string]*heldLease
}

type heldLease struct {
	lease Lease
	lock  *flock.Lock
}

// NewFile creates a file lease manager rooted at stateDir.
func NewFile(stateDir string) (*File, error) {
	if stateDir == "" {
		return nil, fmt.Errorf("state dir: %w", cerrors.ErrEmptyValue)
	}
	dir := filepath.Join(stateDir, constants.LeasesDir)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create lease directory: %w", err)
	}
	return &File{dir: dir, clock: clock.RealClock{}, held: make(map[string]*heldLease)}, nil
}

func (f *File) lockPath(serviceID string) string {
	return filepath.Join(f.dir, sanitize(serviceID)+".lock")
}

func (f *File) abortPath(serviceID string) string {
	return filepath.Join(f.dir, sanitize(serviceID)+".abort")
}

// Acquire implements Manager.
func (f *File) Acquire(ctx context.Context, serviceID, holder string) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateArgs(serviceID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.held[serviceID]; ok {
		current := h.lease
		return nil, heldError(serviceID, &current)
	}

	lock, err := flock.TryAcquire(f.lockPath(serviceID))
	if err != nil {
		if errors.Is(err, cerrors.ErrLockTimeout) {
			current, _ := readLeaseFile(f.lockPath(serviceID))
			return nil, heldError(serviceID, current)
		}
		return nil, err
	}

	l := Lease{ServiceID: serviceID, Holder: holder, Token: newToken(), AcquiredAt: f.clock.Now()}
	if err := writeLeaseFile(lock.File(), &l); err != nil {
		_ = lock.Release()
		return nil, err
	}
	f.held[serviceID] = &heldLease{lease: l, lock: lock}

	if err := os.Remove(f.abortPath(serviceID)); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to clear stale abort request: %w", err)
	}

	copied := l
	return &copied, nil
}

// Renew implements Manager. File leases never expire, so it only validates.
func (f *File) Renew(ctx context.Context, l *Lease) error {
	return f.Validate(ctx, l)
}

// Release implements Manager.
func (f *File) Release(_ context.Context, l *Lease) error {
	if l == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	h, ok := f.held[l.ServiceID]
	if !ok || h.lease.Token != l.Token {
		return nil
	}
	delete(f.held, l.ServiceID)

	if err := h.lock.File().Truncate(0); err != nil {
		_ = h.lock.Release()
		return fmt.Errorf("failed to clear lease file: %w", err)
	}
	return h.lock.Release()
}

// Validate implements Manager.
func (f *File) Validate(ctx context.Context, l *Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if l == nil {
		return notHeldError(nil)
	}
	h, ok := f.held[l.ServiceID]
	if !ok || h.lease.Token != l.Token {
		return notHeldError(l)
	}
	return nil
}

// Holder implements Manager.
func (f *File) Holder(_ context.Context, serviceID string) (*Lease, error) {
	f.mu.Lock()
	if h, ok := f.held[serviceID]; ok {
		copied := h.lease
		f.mu.Unlock()
		return &copied, nil
	}
	f.mu.Unlock()

	probe, err := flock.TryAcquire(f.lockPath(serviceID))
	if err == nil {
		_ = probe.Release()
		return nil, nil
	}
	if !errors.Is(err, cerrors.ErrLockTimeout) {
		return nil, err
	}
	return readLeaseFile(f.lockPath(serviceID))
}

// RequestAbort implements Manager.
func (f *File) RequestAbort(_ context.Context, serviceID, reason string) error {
	if err := validateArgs(serviceID); err != nil {
		return err
	}
	if err := os.WriteFile(f.abortPath(serviceID), []byte(reason), filePerm); err != nil {
		return fmt.Errorf("failed to write abort request: %w", err)
	}
	return nil
}

// AbortRequested implements Manager.
func (f *File) AbortRequested(_ context.Context, serviceID string) (string, bool, error) {
	data, err := os.ReadFile(f.abortPath(serviceID))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read abort request: %w", err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// ClearAbort implements Manager.
func (f *File) ClearAbort(_ context.Context, serviceID string) error {
	if err := os.Remove(f.abortPath(serviceID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear abort request: %w", err)
	}
	return nil
}

func writeLeaseFile(file *os.File, l *Lease) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal lease: %w", err)
	}
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate lease file: %w", err)
	}
	if _, err := file.WriteAt(data, 0); err != nil {
		return fmt.Errorf("failed to write lease file: %w", err)
	}
	return file.Sync()
}

func readLeaseFile(path string) (*Lease, error) {
	file, err := os.Open(path) //#nosec G304 -- path is constructed internally
	if err != nil {
		return nil, fmt.Errorf("failed to open lease file: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read lease file: %w", err)
	}
	if len(data) == 0 {
		return &Lease{}, nil
	}
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse lease file: %w", err)
	}
	return &l, nil
}

// sanitize keeps service ids usable as file names.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}

var _ Manager = (*File)(nil)
