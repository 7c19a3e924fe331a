package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kailas-cloud/seqsearch/internal/config"
	dbRedis "github.com/kailas-cloud/seqsearch/internal/db/redis"
	logpkg "github.com/kailas-cloud/seqsearch/internal/logger"
	"github.com/kailas-cloud/seqsearch/internal/metrics"
	identityrepo "github.com/kailas-cloud/seqsearch/internal/repository/identity"
	"github.com/kailas-cloud/seqsearch/internal/transport/blast"
	healthuc "github.com/kailas-cloud/seqsearch/internal/usecase/health"
	identityuc "github.com/kailas-cloud/seqsearch/internal/usecase/identity"
	indexuc "github.com/kailas-cloud/seqsearch/internal/usecase/index"
)

// app is the composition root shared by all commands.
type app struct {
	env     string
	cfg     config.Config
	logger  *zap.Logger
	closers []func()
}

func newApp(cmd *cobra.Command) (*app, error) {
	env, _ := cmd.Flags().GetString("env")
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	// Explicit registration (no init()) so tests can build the app repeatedly.
	metrics.RegisterSearchMetrics()

	return &app{env: env, cfg: cfg, logger: logger}, nil
}

// close releases connections in reverse order of creation.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func (a *app) runner() *blast.Runner {
	return blast.NewRunner(blast.Config{
		BinDir:    a.cfg.Blast.BinDir,
		Timeout:   time.Duration(a.cfg.Blast.TimeoutSec) * time.Second,
		MaxOutput: a.cfg.Blast.MaxOutputBytes,
		Threads:   a.cfg.Runner.ToolThreads,
		Logger:    a.logger,
	})
}

func (a *app) index(tools indexuc.Tools) *indexuc.Service {
	return indexuc.New(indexuc.Config{
		DBPath:           a.cfg.Index.DBPath,
		SourceFasta:      a.cfg.Index.SourceFasta,
		DBType:           a.cfg.Index.DBType,
		Title:            a.cfg.Index.Title,
		RequireInspector: a.cfg.Index.RequireInspector,
	}, tools, a.logger)
}

// identitySource opens the configured identity backend. Both results are
// nil for the "none" driver.
func (a *app) identitySource(ctx context.Context) (identityuc.Source, healthuc.DBPinger, error) {
	ic := a.cfg.Identity
	switch ic.Driver {
	case config.IdentityPostgres:
		pool, err := pgxpool.New(ctx, ic.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		return identityrepo.NewPostgresSource(pool, ic.Postgres.Table), pool, nil

	case config.IdentityRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    ic.Redis.Addrs,
			Password: ic.Redis.Password,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		timeout := time.Duration(ic.Redis.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, timeout); err != nil {
			return nil, nil, fmt.Errorf("redis not ready: %w", err)
		}
		return identityrepo.NewRedisSource(store, ic.Redis.KeyPrefix), store, nil

	case config.IdentitySQLite:
		if _, err := os.Stat(ic.SQLite.Path); err != nil {
			return nil, nil, fmt.Errorf("open identity snapshot: %w", err)
		}
		db, err := sql.Open("sqlite", ic.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open identity snapshot: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		return identityrepo.NewSQLSource(db, ic.SQLite.Table), sqlPinger{db}, nil

	default:
		return nil, nil, nil
	}
}

// mapper builds the identity mapper and attempts the initial load. A failed
// load is logged and leaves the mapper in header-fallback mode.
func (a *app) mapper(ctx context.Context) (*identityuc.Mapper, healthuc.IdentityState, healthuc.DBPinger) {
	src, pinger, err := a.identitySource(ctx)
	m := identityuc.New(src, a.cfg.Identity.PageSize, a.logger).
		WithMetrics(metrics.IdentityRecords, metrics.IdentityLoadsTotal)
	if err != nil {
		a.logger.Warn("Identity source unavailable, using header fallback",
			zap.String("driver", a.cfg.Identity.Driver),
			zap.Error(err),
		)
		return m, m, nil
	}
	if src == nil {
		return m, nil, nil
	}

	if err := m.Load(ctx); err != nil {
		a.logger.Warn("Identity table not loaded, using header fallback", zap.Error(err))
	}
	return m, m, pinger
}

// sqlPinger adapts *sql.DB to the health check contract.
type sqlPinger struct{ db *sql.DB }

func (p sqlPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
