package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/alienxp03/rpgen/internal/core"
	"github.com/alienxp03/rpgen/internal/provider"
)

const (
	healthFilename = "rpgen-health.json"
	healthTTL      = 30 * time.Minute

	characterAIKey = "characterai"
)

// CharacterCheck verifies that Character.AI accepts the configured token.
type CharacterCheck func(ctx context.Context) error

// healthRecord is one persisted probe result.
type healthRecord struct {
	Key    string                `json:"key"`
	Status provider.HealthStatus `json:"status"`
}

type healthFile struct {
	UpdatedAt time.Time      `json:"updated_at"`
	Checks    []healthRecord `json:"checks"`
}

// healthStore keeps the last successful probe of each collaborator, keyed by
// completionKey or characterAIKey. Failed probes are never reused.
type healthStore struct {
	mu      sync.Mutex
	path    string
	ttl     time.Duration
	records map[string]provider.HealthStatus
}

func newHealthStore(path string, ttl time.Duration) *healthStore {
	if ttl <= 0 {
		ttl = healthTTL
	}
	s := &healthStore{path: path, ttl: ttl, records: make(map[string]provider.HealthStatus)}
	s.read()
	return s
}

func defaultHealthPath() string {
	return filepath.Join(os.TempDir(), healthFilename)
}

// completionKey distinguishes models of the same backend, since a key can be
// valid for one model and not another.
func completionKey(spec core.BackendSpec) string {
	return "completion:" + spec.String()
}

// probe returns a reusable result for key, or runs check and records it.
// The bool reports whether the result came from the store.
func (s *healthStore) probe(ctx context.Context, key string, refresh bool, check func(context.Context) provider.HealthStatus) (provider.HealthStatus, bool) {
	if !refresh {
		if st, ok := s.lookup(key); ok {
			return st, true
		}
	}
	st := check(ctx)
	s.record(key, st)
	return st, false
}

func (s *healthStore) lookup(key string) (provider.HealthStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.records[key]
	if !ok || !s.usable(st) {
		return provider.HealthStatus{}, false
	}
	return st, true
}

func (s *healthStore) record(key string, st provider.HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.CheckedAt.IsZero() {
		st.CheckedAt = time.Now()
	}
	s.records[key] = st
	s.write()
}

func (s *healthStore) usable(st provider.HealthStatus) bool {
	return st.Available && !st.CheckedAt.IsZero() && time.Since(st.CheckedAt) <= s.ttl
}

func (s *healthStore) read() {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		slog.Warn("Failed to read health file", "path", s.path, "error", err)
		return
	}
	var f healthFile
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("Ignoring unreadable health file", "path", s.path, "error", err)
		return
	}
	for _, rec := range f.Checks {
		s.records[rec.Key] = rec.Status
	}
}

// write persists the usable records only; expired and failed ones are
// dropped from the file.
func (s *healthStore) write() {
	f := healthFile{UpdatedAt: time.Now(), Checks: []healthRecord{}}
	for key, st := range s.records {
		if s.usable(st) {
			f.Checks = append(f.Checks, healthRecord{Key: key, Status: st})
		}
	}
	sort.Slice(f.Checks, func(i, j int) bool { return f.Checks[i].Key < f.Checks[j].Key })

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		slog.Warn("Failed to encode health file", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		slog.Warn("Failed to create health file directory", "path", s.path, "error", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Warn("Failed to write health file", "path", s.path, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		slog.Warn("Failed to replace health file", "path", s.path, "error", err)
		_ = os.Remove(tmp)
	}
}

// checkCharacterAI turns a CharacterCheck into a timed status.
func checkCharacterAI(check CharacterCheck) func(context.Context) provider.HealthStatus {
	return func(ctx context.Context) provider.HealthStatus {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		start := time.Now()
		err := check(ctx)
		st := provider.HealthStatus{
			Available:    err == nil,
			ResponseTime: time.Since(start),
			CheckedAt:    time.Now(),
		}
		if err != nil {
			st.Error = err.Error()
		}
		return st
	}
}
