package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Identity source drivers.
const (
	IdentityPostgres = "postgres"
	IdentityRedis    = "redis"
	IdentitySQLite   = "sqlite"
	IdentityNone     = "none"
)

// Config holds the seqsearch service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Identity IdentityConfig `yaml:"identity"`
	Blast    BlastConfig    `yaml:"blast"`
	Index    IndexConfig    `yaml:"index"`
	Runner   RunnerConfig   `yaml:"runner"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// IdentityConfig selects and configures the identity table source.
type IdentityConfig struct {
	Driver   string         `yaml:"driver"` // postgres, redis, sqlite, none (default: none)
	PageSize int            `yaml:"page_size"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig holds the identity table connection for the postgres driver.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// RedisConfig holds the identity table connection for the redis driver.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SQLiteConfig holds the identity snapshot file for the sqlite driver.
type SQLiteConfig struct {
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

// BlastConfig holds BLAST+ tool settings.
type BlastConfig struct {
	BinDir         string `yaml:"bin_dir"` // empty: resolve from PATH
	TimeoutSec     int    `yaml:"timeout_sec"`
	MaxOutputBytes int64  `yaml:"max_output_bytes"`
}

// IndexConfig holds the search index location and verification policy.
type IndexConfig struct {
	DBPath           string `yaml:"db_path"`
	SourceFasta      string `yaml:"source_fasta"`
	DBType           string `yaml:"db_type"` // prot, nucl (default: prot)
	Title            string `yaml:"title"`
	RequireInspector bool   `yaml:"require_inspector"`
	EnsureOnStart    bool   `yaml:"ensure_on_start"`
}

// RunnerConfig holds job execution settings.
type RunnerConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent"` // 0: number of CPUs
	JobTimeoutSec int    `yaml:"job_timeout_sec"`
	MinSeqLength  int    `yaml:"min_sequence_length"`
	MaxSeqLength  int    `yaml:"max_sequence_length"`
	TmpDir        string `yaml:"tmp_dir"`
	ToolThreads   int    `yaml:"tool_threads"`
}

// JobsConfig holds job store settings.
type JobsConfig struct {
	Capacity         int `yaml:"capacity"`
	SweepIntervalSec int `yaml:"sweep_interval_sec"`
	MaxAgeSec        int `yaml:"max_age_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML config data, expanding ${VAR} references, then applies
// defaults and validates the result.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 30
	}

	if c.Identity.Driver == "" {
		c.Identity.Driver = IdentityNone
	}
	if c.Identity.PageSize <= 0 {
		c.Identity.PageSize = 1000
	}
	if c.Identity.Postgres.Table == "" {
		c.Identity.Postgres.Table = "protein_identity"
	}
	if c.Identity.SQLite.Table == "" {
		c.Identity.SQLite.Table = "protein_identity"
	}
	if c.Identity.Redis.KeyPrefix == "" {
		c.Identity.Redis.KeyPrefix = "seqsearch:"
	}
	if c.Identity.Redis.ReadinessTimeout <= 0 {
		c.Identity.Redis.ReadinessTimeout = 10
	}

	if c.Blast.TimeoutSec <= 0 {
		c.Blast.TimeoutSec = 300
	}
	if c.Blast.MaxOutputBytes <= 0 {
		c.Blast.MaxOutputBytes = 64 << 20
	}

	if c.Index.DBType == "" {
		c.Index.DBType = "prot"
	}

	if c.Runner.MaxConcurrent <= 0 {
		c.Runner.MaxConcurrent = runtime.NumCPU()
	}
	if c.Runner.JobTimeoutSec <= 0 {
		c.Runner.JobTimeoutSec = 600
	}
	if c.Runner.MinSeqLength <= 0 {
		c.Runner.MinSeqLength = 10
	}
	if c.Runner.MaxSeqLength <= 0 {
		c.Runner.MaxSeqLength = 10000
	}
	if c.Runner.TmpDir == "" {
		c.Runner.TmpDir = os.TempDir()
	}
	if c.Runner.ToolThreads <= 0 {
		c.Runner.ToolThreads = 1
	}

	if c.Jobs.Capacity <= 0 {
		c.Jobs.Capacity = 1000
	}
	if c.Jobs.SweepIntervalSec <= 0 {
		c.Jobs.SweepIntervalSec = 3600
	}
	if c.Jobs.MaxAgeSec <= 0 {
		c.Jobs.MaxAgeSec = 86400
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Identity.Driver {
	case IdentityNone:
	case IdentityPostgres:
		if c.Identity.Postgres.DSN == "" {
			return fmt.Errorf("identity.postgres.dsn is required for driver %q", c.Identity.Driver)
		}
	case IdentityRedis:
		if len(c.Identity.Redis.Addrs) == 0 {
			return fmt.Errorf("identity.redis.addrs is required for driver %q", c.Identity.Driver)
		}
	case IdentitySQLite:
		if c.Identity.SQLite.Path == "" {
			return fmt.Errorf("identity.sqlite.path is required for driver %q", c.Identity.Driver)
		}
	default:
		return fmt.Errorf(
			"identity.driver must be one of postgres, redis, sqlite, none, got %q",
			c.Identity.Driver,
		)
	}

	if c.Index.DBPath == "" {
		return fmt.Errorf("index.db_path is required")
	}
	switch c.Index.DBType {
	case "prot", "nucl":
	default:
		return fmt.Errorf("index.db_type must be \"prot\" or \"nucl\", got %q", c.Index.DBType)
	}

	if c.Runner.MinSeqLength > c.Runner.MaxSeqLength {
		return fmt.Errorf(
			"runner.min_sequence_length (%d) exceeds runner.max_sequence_length (%d)",
			c.Runner.MinSeqLength, c.Runner.MaxSeqLength,
		)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
