// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/patrickjcash/sump-pump-logger/pkg/errors"
	"github.com/patrickjcash/sump-pump-logger/pkg/logger"
	"github.com/patrickjcash/sump-pump-logger/pkg/metrics"
	"github.com/patrickjcash/sump-pump-logger/pump"
)

const stateFileMode = 0o644

// stateDocument is the on-disk layout of the learner state. The field
// names and shapes are a compatibility contract with earlier releases;
// do not rename them.
type stateDocument struct {
	Thresholds      map[string]thresholdRecord `json:"thresholds"`
	DistanceHistory map[string][]pump.Reading  `json:"distanceHistory"`
}

type thresholdRecord struct {
	OnDistance       *float64   `json:"onDistance"`
	OffDistance      *float64   `json:"offDistance"`
	OnEventCount     int        `json:"onEventCount"`
	OffEventCount    int        `json:"offEventCount"`
	LastOnEventTime  *time.Time `json:"lastOnEventTime"`
	LastOffEventTime *time.Time `json:"lastOffEventTime"`
}

// StateStore persists learner state to a single JSON file.
//
// Saves are dispatched on a goroutine so the caller's update cycle never
// blocks on disk; the in-memory state stays authoritative and a failed
// write is only logged. Writes go through a temp file and rename so a
// crash mid-write cannot corrupt the previous state.
type StateStore struct {
	path string
	mu   sync.Mutex
	wg   sync.WaitGroup
}

// NewStateStore creates a store writing to the given path, creating the
// parent directory if needed.
func NewStateStore(path string) (*StateStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &StateStore{path: path}, nil
}

// Load reads the persisted state. A missing file is a cold start, not an
// error: it returns an empty state.
func (s *StateStore) Load() (pump.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info().Str("path", s.path).Msg("No persisted state found, starting cold")
			return emptyState(), nil
		}
		return emptyState(), apperrors.NewStorageError("load state", "", err)
	}

	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return emptyState(), apperrors.NewStorageError("parse state", "", err)
	}

	state := emptyState()
	for id, rec := range doc.Thresholds {
		state.Thresholds[id] = pump.ThresholdState{
			OnDistance:       rec.OnDistance,
			OffDistance:      rec.OffDistance,
			OnEventCount:     rec.OnEventCount,
			OffEventCount:    rec.OffEventCount,
			LastOnEventTime:  rec.LastOnEventTime,
			LastOffEventTime: rec.LastOffEventTime,
		}
	}
	for id, readings := range doc.DistanceHistory {
		state.History[id] = readings
	}

	logger.Info().
		Str("path", s.path).
		Int("devices", len(state.Thresholds)).
		Msg("Loaded persisted learner state")

	return state, nil
}

// Save persists the state asynchronously. It satisfies pump.Saver.
func (s *StateStore) Save(state pump.State) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.write(state); err != nil {
			logger.Error().Err(err).Str("path", s.path).Msg("Failed to persist learner state")
			metrics.StateSaveErrors.Inc()
			return
		}
		metrics.StateSavesTotal.Inc()
	}()
}

// Flush blocks until all in-flight saves have completed.
func (s *StateStore) Flush() {
	s.wg.Wait()
}

// write serializes and atomically replaces the state file. Concurrent
// saves are serialized; the last writer wins, which is correct because
// each Save carries the full state.
func (s *StateStore) write(state pump.State) error {
	doc := stateDocument{
		Thresholds:      make(map[string]thresholdRecord, len(state.Thresholds)),
		DistanceHistory: make(map[string][]pump.Reading, len(state.History)),
	}
	for id, ts := range state.Thresholds {
		doc.Thresholds[id] = thresholdRecord{
			OnDistance:       ts.OnDistance,
			OffDistance:      ts.OffDistance,
			OnEventCount:     ts.OnEventCount,
			OffEventCount:    ts.OffEventCount,
			LastOnEventTime:  ts.LastOnEventTime,
			LastOffEventTime: ts.LastOffEventTime,
		}
	}
	for id, readings := range state.History {
		doc.DistanceHistory[id] = readings
	}

	data, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, stateFileMode); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

func emptyState() pump.State {
	return pump.State{
		Thresholds: make(map[string]pump.ThresholdState),
		History:    make(map[string][]pump.Reading),
	}
}
