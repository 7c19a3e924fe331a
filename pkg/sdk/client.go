package seqsearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	dbRedis "github.com/kailas-cloud/seqsearch/internal/db/redis"
	domjob "github.com/kailas-cloud/seqsearch/internal/domain/job"
	jobrepo "github.com/kailas-cloud/seqsearch/internal/repository/job"
	identityrepo "github.com/kailas-cloud/seqsearch/internal/repository/identity"
	"github.com/kailas-cloud/seqsearch/internal/transport/blast"
	healthuc "github.com/kailas-cloud/seqsearch/internal/usecase/health"
	identityuc "github.com/kailas-cloud/seqsearch/internal/usecase/identity"
	indexuc "github.com/kailas-cloud/seqsearch/internal/usecase/index"
	searchuc "github.com/kailas-cloud/seqsearch/internal/usecase/search"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	minSweepInterval        = time.Second
)

// Internal interfaces, replaced in tests.
type searchUseCase interface {
	Submit(ctx context.Context, req domjob.Request) (string, error)
	Status(id string) (domjob.Job, bool)
	Shutdown(ctx context.Context) error
}

type identityUseCase interface {
	Refresh(ctx context.Context) error
	Size() int
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Client is the seqsearch SDK entry point.
type Client struct {
	search       searchUseCase
	identity     identityUseCase
	health       healthUseCase
	pollInterval time.Duration
	obs          *observer
	stop         context.CancelFunc
	closers      []func()
}

// New creates a Client, verifies the search index and loads the identity
// table when one is configured. An unavailable identity table is logged and
// hits fall back to header parsing.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.dbPath == "" {
		return nil, errors.New("seqsearch: index path required (use WithIndex)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	c := &Client{pollInterval: cfg.pollInterval, obs: obs}
	if err := c.wire(ctx, cfg); err != nil {
		c.release()
		return nil, err
	}
	return c, nil
}

func (c *Client) wire(ctx context.Context, cfg *clientConfig) error {
	nop := zap.NewNop()

	runner := blast.NewRunner(blast.Config{
		BinDir:    cfg.binDir,
		Timeout:   cfg.toolTimeout,
		MaxOutput: cfg.maxOutput,
		Threads:   cfg.threads,
	})

	idx := indexuc.New(indexuc.Config{
		DBPath:      cfg.dbPath,
		SourceFasta: cfg.sourceFasta,
		DBType:      string(cfg.dbType),
	}, runner, nop)
	if cfg.sourceFasta != "" {
		if err := idx.EnsureReady(ctx); err != nil {
			return fmt.Errorf("seqsearch: %w", err)
		}
	} else if err := idx.Check(ctx); err != nil {
		return fmt.Errorf("seqsearch: %w", err)
	}

	src, pinger, err := c.identitySource(ctx, cfg)
	if err != nil {
		return err
	}
	mapper := identityuc.New(src, cfg.identityPage, nop)
	var state healthuc.IdentityState
	if src != nil {
		state = mapper
		if err := mapper.Load(ctx); err != nil {
			c.obs.warn("identity table not loaded, using header fallback", err)
		}
	}

	store, err := jobrepo.New(cfg.jobCapacity, nil, nop)
	if err != nil {
		return fmt.Errorf("seqsearch: %w", err)
	}
	sweepCtx, stop := context.WithCancel(context.Background())
	c.stop = stop
	if cfg.jobRetention > 0 {
		go store.RunSweeper(sweepCtx, sweepInterval(cfg.jobRetention), cfg.jobRetention)
	}

	c.search = searchuc.New(searchuc.Config{
		MaxConcurrent:  cfg.maxConcurrent,
		JobTimeout:     cfg.jobTimeout,
		Limits:         domjob.Limits{MinLength: cfg.minLength, MaxLength: cfg.maxLength},
		DBPath:         cfg.dbPath,
		TmpDir:         cfg.tmpDir,
		MaxReportBytes: cfg.maxOutput,
	}, store, runner, mapper, idx, nop)
	c.identity = mapper
	c.health = healthuc.New(idx, state, pinger)
	return nil
}

func (c *Client) identitySource(ctx context.Context, cfg *clientConfig) (identityuc.Source, healthuc.DBPinger, error) {
	switch {
	case cfg.identity != nil:
		return sourceAdapter{inner: cfg.identity}, nil, nil

	case cfg.postgresDSN != "":
		pool, err := pgxpool.New(ctx, cfg.postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("seqsearch: connect postgres: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		table := cfg.postgresTable
		if table == "" {
			table = "protein_identity"
		}
		return identityrepo.NewPostgresSource(pool, table), pool, nil

	case cfg.redisAddr != "":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    []string{cfg.redisAddr},
			Password: cfg.redisPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("seqsearch: create redis store: %w", err)
		}
		c.closers = append(c.closers, store.Close)
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			return nil, nil, fmt.Errorf("seqsearch: redis not ready: %w", err)
		}
		return identityrepo.NewRedisSource(store, cfg.redisPrefix), store, nil

	default:
		return nil, nil, nil
	}
}

// Close waits for running jobs until ctx expires, then releases all resources.
func (c *Client) Close(ctx context.Context) error {
	err := c.search.Shutdown(ctx)
	c.release()
	if err != nil {
		return fmt.Errorf("seqsearch: %w", err)
	}
	return nil
}

func (c *Client) release() {
	if c.stop != nil {
		c.stop()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Submit validates req and starts a job. It returns without waiting.
func (c *Client) Submit(ctx context.Context, req SearchRequest) (id string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("submit", start, err) }()

	id, err = c.search.Submit(ctx, req.toDomain())
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	return id, nil
}

// Status returns a snapshot of job id or ErrNotFound.
func (c *Client) Status(id string) (Job, error) {
	j, ok := c.search.Status(id)
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return jobFromDomain(j), nil
}

// Wait polls job id until it finishes or ctx is done.
func (c *Client) Wait(ctx context.Context, id string) (res Result, err error) {
	start := time.Now()
	defer func() { c.obs.observe("wait", start, err) }()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.Status(id)
		if err != nil {
			return Result{}, err
		}
		switch job.Status {
		case StatusCompleted:
			c.obs.outcome(job.Status)
			if job.Result == nil {
				return Result{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
			}
			return *job.Result, nil
		case StatusFailed:
			c.obs.outcome(job.Status)
			return Result{}, fmt.Errorf("%w: %s", ErrJobFailed, job.Error)
		}

		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("wait for job %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Search submits req and waits for its result.
func (c *Client) Search(ctx context.Context, req SearchRequest) (Result, error) {
	id, err := c.Submit(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return c.Wait(ctx, id)
}

// RefreshIdentity reloads the identity table and returns its size.
// On failure the previous table stays in use.
func (c *Client) RefreshIdentity(ctx context.Context) (n int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("refresh_identity", start, err) }()

	if err := c.identity.Refresh(ctx); err != nil {
		return 0, fmt.Errorf("refresh identity: %w", err)
	}
	return c.identity.Size(), nil
}

// Health checks the health of all system components.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.health.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status:          string(report.Status),
		Checks:          checks,
		IdentityRecords: report.IdentityRecords,
	}
}

// sweepInterval runs the age sweep four times per retention period,
// but never more often than minSweepInterval.
func sweepInterval(retention time.Duration) time.Duration {
	return max(retention/4, minSweepInterval)
}
