// Package state remembers what was last delivered per exchange and asset and
// decides whether a new record is different enough to send again.
package state

import (
	"context"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/funding-collector/internal/config"
	"github.com/irfndi/funding-collector/internal/models"
)

// Persister loads and saves last-sent state outside the process.
type Persister interface {
	Load(ctx context.Context) (map[string]models.LastSentState, error)
	// Store saves one updated key. all is a snapshot of every known key for
	// backends that rewrite the whole document.
	Store(ctx context.Context, key string, state models.LastSentState, all map[string]models.LastSentState) error
}

// Policy holds the change-detection tolerances.
type Policy struct {
	Enabled           bool
	FundingAbsEps     float64
	FundingRelEps     float64
	NextFundingEpsMs  int64
	MinSendIntervalMs int64
}

// PolicyFromConfig converts the loaded change-detection settings.
func PolicyFromConfig(cfg config.ChangeDetectionConfig) Policy {
	return Policy{
		Enabled:           cfg.Enabled,
		FundingAbsEps:     cfg.FundingAbsEps,
		FundingRelEps:     cfg.FundingRelEps,
		NextFundingEpsMs:  cfg.NextFundingEpsMS,
		MinSendIntervalMs: cfg.MinSendIntervalMS,
	}
}

// LastSentStore is the in-memory last-sent map with optional persistence.
type LastSentStore struct {
	mu        sync.RWMutex
	policy    Policy
	entries   map[string]models.LastSentState
	persister Persister
	logger    *logrus.Logger
}

// NewLastSentStore creates an empty store. A nil persister keeps state in memory only.
func NewLastSentStore(policy Policy, persister Persister, logger *logrus.Logger) *LastSentStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LastSentStore{
		policy:    policy,
		entries:   make(map[string]models.LastSentState),
		persister: persister,
		logger:    logger,
	}
}

// Load replaces the in-memory map with the persisted one.
func (s *LastSentStore) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	loaded, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = make(map[string]models.LastSentState, len(loaded))
	for key, state := range loaded {
		s.entries[key] = state
	}
	s.mu.Unlock()

	s.logger.WithField("entries", len(loaded)).Info("Loaded last-sent state")
	return nil
}

// ShouldSkip reports whether record is close enough to what was last sent
// for key that sending it again is pointless.
func (s *LastSentStore) ShouldSkip(key string, record models.CanonicalFundingRecord, nowMs int64) bool {
	if !s.policy.Enabled {
		return false
	}

	s.mu.RLock()
	last, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	if s.policy.MinSendIntervalMs > 0 && nowMs-last.TimestampMs < s.policy.MinSendIntervalMs {
		return true
	}

	return WithinTolerance(record.FundingRate, last.FundingRate, s.policy.FundingAbsEps, s.policy.FundingRelEps) &&
		absInt64(record.NextFundingAtMs-last.NextFundingAtMs) <= s.policy.NextFundingEpsMs
}

// Remember records that record was sent for key at nowMs. Persistence
// failures are logged and never undo the in-memory update.
func (s *LastSentStore) Remember(ctx context.Context, key string, record models.CanonicalFundingRecord, nowMs int64) {
	state := models.LastSentState{
		TimestampMs:     nowMs,
		FundingRate:     record.FundingRate,
		NextFundingAtMs: record.NextFundingAtMs,
	}

	s.mu.Lock()
	s.entries[key] = state
	snapshot := s.copyLocked()
	s.mu.Unlock()

	if s.persister == nil {
		return
	}
	if err := s.persister.Store(ctx, key, state, snapshot); err != nil {
		s.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Failed to persist last-sent state")
	}
}

// Get returns the state stored for key.
func (s *LastSentStore) Get(key string) (models.LastSentState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.entries[key]
	return state, ok
}

// Snapshot returns a copy of every stored entry.
func (s *LastSentStore) Snapshot() map[string]models.LastSentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *LastSentStore) copyLocked() map[string]models.LastSentState {
	out := make(map[string]models.LastSentState, len(s.entries))
	for key, state := range s.entries {
		out[key] = state
	}
	return out
}

// WithinTolerance reports |a-b| <= max(absEps, relEps*max(|a|,|b|)).
// With both tolerances at zero only identical values match.
func WithinTolerance(a, b, absEps, relEps float64) bool {
	tolerance := math.Max(absEps, relEps*math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= tolerance
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
