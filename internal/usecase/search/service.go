package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/seqsearch/internal/domain"
	domjob "github.com/kailas-cloud/seqsearch/internal/domain/job"
	"github.com/kailas-cloud/seqsearch/internal/logger"
	"github.com/kailas-cloud/seqsearch/internal/metrics"
)

// Config holds runner settings.
type Config struct {
	// MaxConcurrent caps simultaneously running aligner processes. Zero means runtime.NumCPU().
	MaxConcurrent int
	// JobTimeout bounds a whole pipeline run, queue wait excluded. Zero disables it.
	JobTimeout time.Duration
	Limits     domjob.Limits
	DBPath     string
	TmpDir     string
	// MaxReportBytes caps how much of the aligner report is read.
	MaxReportBytes int64
}

// Service accepts search requests and drives each job through the alignment pipeline.
type Service struct {
	cfg      Config
	store    JobStore
	aligner  Aligner
	identity Identity
	index    IndexChecker
	logger   *zap.Logger

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	base   context.Context
	cancel context.CancelFunc

	now   func() time.Time
	newID func() string
}

// New creates a Service. identity and index may be nil.
func New(
	cfg Config, store JobStore, aligner Aligner, identity Identity, index IndexChecker, logger *zap.Logger,
) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = runtime.NumCPU()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg,
		store:    store,
		aligner:  aligner,
		identity: identity,
		index:    index,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		base:     base,
		cancel:   cancel,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Submit validates req, stores a pending job and starts its pipeline in the
// background. It returns the job id without waiting for the pipeline.
// Invalid requests return an error wrapping domain.ErrValidation and create no job.
func (s *Service) Submit(ctx context.Context, req domjob.Request) (string, error) {
	params, err := domjob.NewParams(req, s.cfg.Limits)
	if err != nil {
		metrics.JobsRejectedTotal.WithLabelValues("validation").Inc()
		return "", err
	}

	if s.index != nil {
		if err := s.index.Check(ctx); err != nil {
			metrics.JobsRejectedTotal.WithLabelValues("index").Inc()
			return "", fmt.Errorf("pre-flight: %w", err)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		metrics.JobsRejectedTotal.WithLabelValues("shutdown").Inc()
		return "", domain.ErrShuttingDown
	}
	id := s.newID()
	s.store.Put(domjob.New(id, params, s.now()))
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.JobsSubmittedTotal.WithLabelValues(string(params.Algorithm())).Inc()
	logger.FromContext(ctx).Info("Job submitted",
		zap.String("job_id", id),
		zap.String("algorithm", string(params.Algorithm())),
		zap.Int("query_length", len(params.Sequence())),
	)

	go s.run(id, params)
	return id, nil
}

// Status returns the job and refreshes its recency.
func (s *Service) Status(id string) (domjob.Job, bool) {
	return s.store.Get(id)
}

// List returns all jobs, most recently used first, with store occupancy.
func (s *Service) List() ([]domjob.Job, domjob.StoreStats) {
	return s.store.List(), s.store.Stats()
}

// Shutdown stops accepting jobs and waits for queued and running jobs.
// When ctx expires first, running aligner processes are killed and their
// jobs fail.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

func (s *Service) run(id string, params domjob.Params) {
	defer s.wg.Done()

	algo := string(params.Algorithm())
	ctx := logger.WithJob(s.base, s.logger, id)
	log := logger.FromContext(ctx)

	metrics.JobsQueued.Inc()
	err := s.sem.Acquire(ctx, 1)
	metrics.JobsQueued.Dec()
	if err != nil {
		s.transition(ctx, id, func(j *domjob.Job) error { return j.Begin(s.now()) })
		s.finish(ctx, id, algo, fmt.Errorf("not started: %w", domain.ErrShuttingDown))
		return
	}
	defer s.sem.Release(1)

	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	if !s.transition(ctx, id, func(j *domjob.Job) error { return j.Begin(s.now()) }) {
		return
	}
	log.Debug("Job started")

	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Pipeline panic", zap.Any("panic", r), zap.Stack("stack"))
			s.finish(ctx, id, algo, fmt.Errorf("internal error: %v", r))
		}
	}()

	res, err := s.pipeline(ctx, id, params)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("job exceeded deadline of %s: %w", s.cfg.JobTimeout, err)
		}
		s.finish(ctx, id, algo, err)
		return
	}

	ok := s.transition(ctx, id, func(j *domjob.Job) error { return j.Complete(res, s.now()) })
	if !ok {
		return
	}
	job, _ := s.store.Get(id)
	metrics.JobsFinishedTotal.WithLabelValues(algo, string(domjob.StatusCompleted)).Inc()
	metrics.JobDuration.WithLabelValues(algo).Observe(job.Duration(s.now()).Seconds())
	metrics.JobHits.Observe(float64(res.TotalHits))
	log.Info("Job completed",
		zap.Int("hits", res.TotalHits),
		zap.Duration("took", job.Duration(s.now())),
	)
}

// finish marks the job failed with err's message.
func (s *Service) finish(ctx context.Context, id, algo string, err error) {
	if !s.transition(ctx, id, func(j *domjob.Job) error { return j.Fail(err.Error(), s.now()) }) {
		return
	}
	metrics.JobsFinishedTotal.WithLabelValues(algo, string(domjob.StatusFailed)).Inc()
	logger.FromContext(ctx).Warn("Job failed", zap.Error(err))
}

// transition applies fn to the stored job. It reports false when the job
// is gone (evicted) or the transition is not allowed.
func (s *Service) transition(ctx context.Context, id string, fn func(j *domjob.Job) error) bool {
	if _, err := s.store.Update(id, fn); err != nil {
		logger.FromContext(ctx).Warn("Job state change dropped", zap.Error(err))
		return false
	}
	return true
}

func (s *Service) advance(id string, progress int) {
	_, _ = s.store.Update(id, func(j *domjob.Job) error {
		j.Advance(progress)
		return nil
	})
}
