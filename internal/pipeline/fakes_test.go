package pipeline_test

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/wx-station-etl/internal/domain"
	"github.com/couchcryptid/wx-station-etl/internal/pipeline"
)

// --- file source ---

type fakeSource struct {
	files   map[string]string
	readErr map[string]error
}

func (s *fakeSource) Open(_ context.Context, f pipeline.StationFile) (io.ReadCloser, error) {
	if err, ok := s.readErr[f.Path]; ok {
		return io.NopCloser(&failingReader{err: err}), nil
	}
	body, ok := s.files[f.Path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

// --- record and stats store ---

type obsKey struct {
	station string
	date    time.Time
}

type memStore struct {
	mu       sync.Mutex
	rows     map[obsKey]domain.Observation
	stats    map[domain.StatKey]domain.AnnualStat
	beginErr error
	// insertErr fails inserts for the named station.
	insertErr map[string]error
	scanErr   error
	replaceN  int
}

func newMemStore() *memStore {
	return &memStore{
		rows:  make(map[obsKey]domain.Observation),
		stats: make(map[domain.StatKey]domain.AnnualStat),
	}
}

func (s *memStore) BeginBatch(context.Context) (pipeline.ObservationBatch, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &memBatch{store: s, pending: make(map[obsKey]domain.Observation)}, nil
}

func (s *memStore) observations() []domain.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Observation, 0, len(s.rows))
	for _, o := range s.rows {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StationID != out[j].StationID {
			return out[i].StationID < out[j].StationID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

func (s *memStore) add(obs ...domain.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range obs {
		s.rows[obsKey{o.StationID, o.Date}] = o
	}
}

func (s *memStore) Stations(context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, o := range s.observations() {
		if !seen[o.StationID] {
			seen[o.StationID] = true
			out = append(out, o.StationID)
		}
	}
	return out, nil
}

func (s *memStore) ObservationsForStation(_ context.Context, station string) iter.Seq2[domain.Observation, error] {
	return func(yield func(domain.Observation, error) bool) {
		if s.scanErr != nil {
			yield(domain.Observation{}, s.scanErr)
			return
		}
		for _, o := range s.observations() {
			if o.StationID != station {
				continue
			}
			if !yield(o, nil) {
				return
			}
		}
	}
}

func (s *memStore) ReplaceAnnualStats(_ context.Context, stats []domain.AnnualStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceN++
	for _, st := range stats {
		s.stats[st.Key()] = st
	}
	return nil
}

func (s *memStore) stat(station string, year int) (domain.AnnualStat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[domain.StatKey{StationID: station, Year: year}]
	return st, ok
}

type memBatch struct {
	store   *memStore
	pending map[obsKey]domain.Observation
}

func (b *memBatch) Insert(_ context.Context, obs domain.Observation) error {
	if err := b.store.insertErr[obs.StationID]; err != nil {
		return err
	}
	key := obsKey{obs.StationID, obs.Date}
	b.store.mu.Lock()
	_, exists := b.store.rows[key]
	b.store.mu.Unlock()
	if _, staged := b.pending[key]; exists || staged {
		return domain.ErrDuplicateObservation
	}
	b.pending[key] = obs
	return nil
}

func (b *memBatch) Commit() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for k, o := range b.pending {
		b.store.rows[k] = o
	}
	b.pending = nil
	return nil
}

func (b *memBatch) Rollback() error {
	b.pending = nil
	return nil
}

// --- publisher ---

type recordingPublisher struct {
	mu    sync.Mutex
	runs  []string
	stats []domain.AnnualStat
	err   error
}

func (p *recordingPublisher) PublishStats(_ context.Context, runID string, stats []domain.AnnualStat) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.runs = append(p.runs, runID)
	p.stats = append(p.stats, stats...)
	return nil
}

var errBoom = errors.New("boom")
