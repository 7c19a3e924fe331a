package seqsearch

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DBType selects the residue alphabet of the search index.
type DBType string

// Index types.
const (
	Protein    DBType = "prot"
	Nucleotide DBType = "nucl"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	dbPath      string
	dbType      DBType
	sourceFasta string

	binDir      string
	toolTimeout time.Duration
	maxOutput   int64
	threads     int

	maxConcurrent int
	jobTimeout    time.Duration
	minLength     int
	maxLength     int
	tmpDir        string

	jobCapacity  int
	jobRetention time.Duration
	pollInterval time.Duration

	identity      IdentitySource
	identityPage  int
	redisAddr     string
	redisPassword string
	redisPrefix   string
	postgresDSN   string
	postgresTable string

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		dbType:       Protein,
		toolTimeout:  5 * time.Minute,
		maxOutput:    64 << 20,
		threads:      1,
		jobTimeout:   10 * time.Minute,
		minLength:    10,
		maxLength:    10000,
		jobCapacity:  1000,
		jobRetention: 24 * time.Hour,
		pollInterval: 500 * time.Millisecond,
		identityPage: 1000,
		redisPrefix:  "seqsearch:",
	}
}

// WithIndex sets the BLAST database path prefix and its type. Required.
func WithIndex(dbPath string, dbType DBType) Option {
	return optionFunc(func(c *clientConfig) {
		c.dbPath = dbPath
		c.dbType = dbType
	})
}

// WithSourceFasta makes New build the index from fasta when its files are missing.
func WithSourceFasta(fasta string) Option {
	return optionFunc(func(c *clientConfig) {
		c.sourceFasta = fasta
	})
}

// WithBlastBinDir sets the directory holding the BLAST+ binaries.
// Defaults to resolving them from PATH.
func WithBlastBinDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.binDir = dir
	})
}

// WithToolLimits bounds a single BLAST+ process. Defaults: 5m, 64 MiB, 1 thread.
func WithToolLimits(timeout time.Duration, maxOutputBytes int64, threads int) Option {
	return optionFunc(func(c *clientConfig) {
		c.toolTimeout = timeout
		c.maxOutput = maxOutputBytes
		c.threads = threads
	})
}

// WithMaxConcurrent caps concurrently running alignments. Defaults to the number of CPUs.
func WithMaxConcurrent(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxConcurrent = n
	})
}

// WithJobTimeout bounds a whole job, queue wait excluded. Default: 10m.
func WithJobTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.jobTimeout = d
	})
}

// WithSequenceLimits sets the accepted query length. Defaults: 10 to 10000.
func WithSequenceLimits(minLength, maxLength int) Option {
	return optionFunc(func(c *clientConfig) {
		c.minLength = minLength
		c.maxLength = maxLength
	})
}

// WithTmpDir sets where per-job working directories are created.
func WithTmpDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.tmpDir = dir
	})
}

// WithJobStore sets how many jobs are kept and for how long. Defaults: 1000, 24h.
// A non-positive retention disables the age sweep.
func WithJobStore(capacity int, retention time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.jobCapacity = capacity
		c.jobRetention = retention
	})
}

// WithPollInterval sets how often Search and Wait poll job status. Default: 500ms.
// Non-positive values keep the default.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	})
}

// WithIdentitySource enriches hits from a custom identity table.
func WithIdentitySource(src IdentitySource) Option {
	return optionFunc(func(c *clientConfig) {
		c.identity = src
	})
}

// WithRedisIdentity reads the identity table mirrored into Redis or Valkey.
func WithRedisIdentity(addr, password, keyPrefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.redisAddr = addr
		c.redisPassword = password
		if keyPrefix != "" {
			c.redisPrefix = keyPrefix
		}
	})
}

// WithPostgresIdentity reads the identity table from PostgreSQL.
func WithPostgresIdentity(dsn, table string) Option {
	return optionFunc(func(c *clientConfig) {
		c.postgresDSN = dsn
		c.postgresTable = table
	})
}

// WithIdentityPageSize sets the identity load page size. Default: 1000.
func WithIdentityPageSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.identityPage = n
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
