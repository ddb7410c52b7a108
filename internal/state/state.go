// Package state persists the dependent value store and progress counters between CLI runs.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/codex-k8s/depconfctl/internal/recommend"
)

// DefaultPath is used when no state file is configured.
const DefaultPath = ".depconfctl-state.json"

const formatVersion = 1

const (
	lockTimeout    = 10 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// Snapshot is the persisted content of a state file.
type Snapshot struct {
	// Version is the file format version.
	Version int `json:"version"`
	// Stack is "<name>-<version>" of the session the records belong to.
	Stack string `json:"stack,omitempty"`
	// UpdatedAt is the time of the last save.
	UpdatedAt time.Time          `json:"updatedAt"`
	Counters  recommend.Counters `json:"counters"`
	Records   []recommend.Record `json:"records"`
}

// CorruptStateError indicates that the state file exists but cannot be decoded.
type CorruptStateError struct {
	// Path is the state file path.
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	if e == nil {
		return "corrupt state file"
	}
	return fmt.Sprintf("corrupt state file %q: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsCorruptStateError reports whether err indicates an unreadable state file.
func IsCorruptStateError(err error) bool {
	var target *CorruptStateError
	return errors.As(err, &target)
}

// SupersededError is returned by Commit when a request numbered above the
// snapshot's sequence was issued against the same state file.
type SupersededError struct {
	Path     string
	Sequence uint64
	Latest   uint64
}

func (e *SupersededError) Error() string {
	return fmt.Sprintf("state %q was superseded: request %d is newer than %d", e.Path, e.Latest, e.Sequence)
}

// IsSuperseded reports whether err is a SupersededError.
func IsSuperseded(err error) bool {
	var target *SupersededError
	return errors.As(err, &target)
}

// Store reads and writes a JSON state file.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore constructs a Store for path; an empty path selects DefaultPath.
func NewStore(path string, logger *slog.Logger) *Store {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{path: path, logger: logger}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file yields an empty snapshot.
func (s *Store) Load() (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("state file not found, starting empty", "path", s.path)
		return Snapshot{Version: formatVersion}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read state %q: %w", s.path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, &CorruptStateError{Path: s.path, Err: err}
	}
	if snap.Version != formatVersion {
		return Snapshot{}, &CorruptStateError{Path: s.path, Err: fmt.Errorf("unsupported format version %d", snap.Version)}
	}
	s.logger.Debug("state loaded", "path", s.path, "records", len(snap.Records), "settled", snap.Counters.Settled)
	return snap, nil
}

// LoadFor reads the snapshot and discards it when it belongs to another stack.
func (s *Store) LoadFor(stack string) (Snapshot, error) {
	snap, err := s.Load()
	if err != nil {
		return Snapshot{}, err
	}
	if snap.Stack != "" && snap.Stack != stack {
		s.logger.Warn("state belongs to another stack, ignoring it", "path", s.path, "state_stack", snap.Stack, "stack", stack)
		return Snapshot{Version: formatVersion, Stack: stack}, nil
	}
	snap.Stack = stack
	return snap, nil
}

// Reserve allocates the next request sequence number for stack and records it
// in the state file, so that a concurrent run committing an older request is
// rejected.
func (s *Store) Reserve(ctx context.Context, stack string) (uint64, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	snap, err := s.LoadFor(stack)
	if err != nil {
		return 0, err
	}
	snap.Counters.Sequence++
	if err := s.Save(snap); err != nil {
		return 0, err
	}
	s.logger.Debug("request sequence reserved", "path", s.path, "seq", snap.Counters.Sequence)
	return snap.Counters.Sequence, nil
}

// Commit saves snap unless the state file already records a newer request
// sequence, in which case it returns SupersededError and leaves the file
// untouched. publish, when set, runs under the same lock after the check and
// before the save; its error aborts the commit.
func (s *Store) Commit(ctx context.Context, snap Snapshot, publish func() error) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.LoadFor(snap.Stack)
	if err != nil {
		return err
	}
	if current.Counters.Sequence > snap.Counters.Sequence {
		return &SupersededError{Path: s.path, Sequence: snap.Counters.Sequence, Latest: current.Counters.Sequence}
	}
	if publish != nil {
		if err := publish(); err != nil {
			return err
		}
	}
	return s.Save(snap)
}

func (s *Store) lock(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	fl := flock.New(s.path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock state %q: %w", s.path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock state %q: not acquired", s.path)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("unlock state", "path", s.path, "error", err)
		}
	}, nil
}

// Save atomically replaces the state file with snap.
func (s *Store) Save(snap Snapshot) error {
	snap.Version = formatVersion
	snap.UpdatedAt = time.Now().UTC()
	if snap.Records == nil {
		snap.Records = []recommend.Record{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".depconfctl-state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state %q: %w", s.path, err)
	}
	s.logger.Debug("state saved", "path", s.path, "records", len(snap.Records))
	return nil
}

// Remove deletes the state file; a missing file is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state %q: %w", s.path, err)
	}
	return nil
}
