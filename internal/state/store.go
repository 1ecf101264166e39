package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/domain-tracker/internal/core"
)

var (
	// ErrAlreadyTracked is returned by Add for a domain that is already
	// monitored. Callers treat it as a no-op, not a fault.
	ErrAlreadyTracked = errors.New("domain is already tracked")

	// ErrNotTracked is returned by Remove and Reset for an unknown domain.
	ErrNotTracked = errors.New("domain is not tracked")
)

// Store owns the tracker state. All writes go through Mutate/MutateDomain
// under a single mutex, so cycle processing and control-plane commands never
// interleave destructively. Persistence is an atomic replace: marshal to a
// sibling temp file, then rename over the previous copy.
type Store struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	state *core.TrackerState
}

// Open loads the state document at path. A missing or unparsable file is
// logged and replaced with a fresh state; it is never fatal.
func Open(path string, logger *zap.Logger) *Store {
	s := &Store{
		path:   path,
		logger: logger,
		state:  core.NewTrackerState(),
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("no state file found, starting fresh", zap.String("path", s.path))
		} else {
			s.logger.Error("failed to read state file, starting fresh",
				zap.String("path", s.path), zap.Error(err))
		}
		return
	}

	loaded := core.NewTrackerState()
	if err := json.Unmarshal(data, loaded); err != nil {
		s.logger.Error("state file is malformed, starting fresh",
			zap.String("path", s.path), zap.Error(err))
		return
	}
	if loaded.Domains == nil {
		loaded.Domains = make(map[string]*core.DomainRecord)
	}
	for name, rec := range loaded.Domains {
		if rec == nil {
			loaded.Domains[name] = core.NewDomainRecord()
		}
	}

	s.state = loaded
	s.logger.Info("state loaded",
		zap.String("path", s.path),
		zap.Int("domains", len(loaded.Domains)),
	)
}

// Save persists the current state atomically. On failure it retries once
// immediately, then logs a critical condition; the in-memory state stays
// authoritative until the next successful save.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	now := time.Now().UTC()
	s.state.LastUpdated = &now

	err := s.writeAtomic()
	if err != nil {
		s.logger.Warn("state save failed, retrying", zap.Error(err))
		err = s.writeAtomic()
	}
	if err != nil {
		s.logger.Error("state save failed after retry, in-memory state remains authoritative",
			zap.String("path", s.path), zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) writeAtomic() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Mutate applies fn to the state under the write lock and persists the
// result. Control-plane operations use this path.
func (s *Store) Mutate(fn func(*core.TrackerState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.state); err != nil {
		return err
	}
	return s.saveLocked()
}

// MutateNoSave applies fn under the write lock without persisting. The
// scheduler uses it to apply a whole cycle of results and then persist once
// at the cycle boundary.
func (s *Store) MutateNoSave(fn func(*core.TrackerState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// MutateDomain applies fn to one record under the write lock, creating the
// record if the domain is not yet tracked. It does not persist.
func (s *Store) MutateDomain(domain string, fn func(*core.DomainRecord)) {
	name := core.NormalizeDomain(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.state.Domains[name]
	if !ok {
		rec = core.NewDomainRecord()
		s.state.Domains[name] = rec
	}
	fn(rec)
}

// Snapshot returns a deep copy for readers; they may observe the pre- or
// post-mutation state but never a torn one.
func (s *Store) Snapshot() *core.TrackerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Domains returns the sorted list of tracked domain names.
func (s *Store) Domains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.state.Domains))
	for name := range s.state.Domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Record returns a copy of one record, or nil if the domain is not tracked.
func (s *Store) Record(domain string) *core.DomainRecord {
	name := core.NormalizeDomain(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Domains[name].Clone()
}

// Add starts tracking a domain. Adding an existing domain is a no-op
// reported as ErrAlreadyTracked.
func (s *Store) Add(domain string) error {
	name := core.NormalizeDomain(domain)
	return s.Mutate(func(st *core.TrackerState) error {
		if _, ok := st.Domains[name]; ok {
			return ErrAlreadyTracked
		}
		st.Domains[name] = core.NewDomainRecord()
		return nil
	})
}

// Remove stops tracking a domain and deletes its record.
func (s *Store) Remove(domain string) error {
	name := core.NormalizeDomain(domain)
	return s.Mutate(func(st *core.TrackerState) error {
		if _, ok := st.Domains[name]; !ok {
			return ErrNotTracked
		}
		delete(st.Domains, name)
		return nil
	})
}

// Reset re-arms notification for a domain: status back to unknown, episode
// markers cleared, so the next unregistered observation notifies again.
func (s *Store) Reset(domain string) error {
	name := core.NormalizeDomain(domain)
	return s.Mutate(func(st *core.TrackerState) error {
		rec, ok := st.Domains[name]
		if !ok {
			return ErrNotTracked
		}
		now := time.Now().UTC()
		rec.Status = core.StatusUnknown
		rec.NotificationSent = false
		rec.FirstUnregistered = nil
		rec.LastStatusChange = &now
		rec.ConsecutiveErrors = 0
		return nil
	})
}

// Stats computes the aggregate counts for status reports.
func (s *Store) Stats() core.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := core.Stats{
		Total:       len(s.state.Domains),
		TotalChecks: s.state.TotalChecks,
		LastUpdated: s.state.LastUpdated,
	}
	for _, rec := range s.state.Domains {
		switch rec.Status {
		case core.StatusUnregistered:
			stats.Unregistered++
		case core.StatusRegistered:
			stats.Registered++
		default:
			stats.Unknown++
		}
	}
	return stats
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}
