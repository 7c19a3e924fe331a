// Package job is the in-memory, capacity-bounded job store.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/seqsearch/internal/domain"
	domjob "github.com/kailas-cloud/seqsearch/internal/domain/job"
)

// Eviction reasons used as metric labels.
const (
	ReasonCapacity = "capacity"
	ReasonAge      = "age"
)

// Store maps job ids to records with least-recently-accessed eviction.
// Every operation, including the LRU touch on reads, runs under one mutex.
type Store struct {
	mu        sync.Mutex
	lru       *simplelru.LRU[string, *domjob.Job]
	capacity  int
	now       func() time.Time
	evictions *prometheus.CounterVec
	logger    *zap.Logger
}

// New creates a store holding at most capacity jobs.
// evictions may be nil.
func New(capacity int, evictions *prometheus.CounterVec, logger *zap.Logger) (*Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("job store capacity must be positive, got %d", capacity)
	}
	l, err := simplelru.NewLRU[string, *domjob.Job](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Store{
		lru:       l,
		capacity:  capacity,
		now:       time.Now,
		evictions: evictions,
		logger:    logger,
	}, nil
}

// WithClock replaces the time source (tests).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Put inserts or replaces a job and marks it most recently used.
// Inserting a new id into a full store evicts the least recently accessed job.
func (s *Store) Put(j domjob.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lru.Contains(j.ID) && s.lru.Len() >= s.capacity {
		if id, old, ok := s.lru.RemoveOldest(); ok {
			s.observeEviction(ReasonCapacity)
			s.logger.Info("Job evicted",
				zap.String("job_id", id),
				zap.String("status", string(old.Status)),
				zap.String("reason", ReasonCapacity),
			)
		}
	}

	j.LastAccessed = s.now()
	s.lru.Add(j.ID, &j)
}

// Get returns a copy of the job and marks it most recently used.
func (s *Store) Get(id string) (domjob.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.lru.Get(id)
	if !ok {
		return domjob.Job{}, false
	}
	p.LastAccessed = s.now()
	return *p, true
}

// Update applies fn to the stored job atomically with respect to other store operations.
// Returns domain.ErrNotFound if the job was evicted or never stored.
func (s *Store) Update(id string, fn func(j *domjob.Job) error) (domjob.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.lru.Get(id)
	if !ok {
		return domjob.Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	next := *p
	if err := fn(&next); err != nil {
		return *p, err
	}
	next.LastAccessed = s.now()
	*p = next
	return next, nil
}

// Delete removes a job. Missing ids are ignored.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Remove(id)
}

// SweepOlderThan removes jobs started before now-maxAge and returns how many were removed.
func (s *Store) SweepOlderThan(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, id := range s.lru.Keys() {
		p, ok := s.lru.Peek(id)
		if !ok || !p.StartTime.Before(cutoff) {
			continue
		}
		s.lru.Remove(id)
		removed++
	}
	if removed > 0 && s.evictions != nil {
		s.evictions.WithLabelValues(ReasonAge).Add(float64(removed))
	}
	return removed
}

// Stats returns occupancy counts per status.
func (s *Store) Stats() domjob.StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domjob.StoreStats{
		Total:    s.lru.Len(),
		Capacity: s.capacity,
		ByStatus: make(map[domjob.Status]int, len(domjob.Statuses)),
	}
	for _, status := range domjob.Statuses {
		st.ByStatus[status] = 0
	}
	for _, id := range s.lru.Keys() {
		if p, ok := s.lru.Peek(id); ok {
			st.ByStatus[p.Status]++
		}
	}
	return st
}

// List returns copies of all jobs, most recently used first, without touching recency.
func (s *Store) List() []domjob.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.lru.Keys()
	out := make([]domjob.Job, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if p, ok := s.lru.Peek(keys[i]); ok {
			out = append(out, *p)
		}
	}
	return out
}

// RunSweeper calls SweepOlderThan every interval until ctx is done.
// It returns at once when interval is not positive.
func (s *Store) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		s.logger.Warn("Job sweeper disabled", zap.Duration("interval", interval))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepOlderThan(maxAge); n > 0 {
				s.logger.Info("Swept expired jobs",
					zap.Int("removed", n),
					zap.Duration("max_age", maxAge),
				)
			}
		}
	}
}

func (s *Store) observeEviction(reason string) {
	if s.evictions != nil {
		s.evictions.WithLabelValues(reason).Inc()
	}
}
