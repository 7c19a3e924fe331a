package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/seqsearch/internal/domain"
	"github.com/kailas-cloud/seqsearch/internal/transport/blast"
)

// Config describes the index on disk and how it is verified.
type Config struct {
	DBPath      string
	SourceFasta string
	DBType      string // blast.DBProtein or blast.DBNucleotide
	Title       string
	// RequireInspector makes Verify fail unless the inspector exits cleanly.
	// When false, present artifact files are enough and inspector failures
	// are only logged.
	RequireInspector bool
}

// Service verifies and builds the search index.
type Service struct {
	cfg    Config
	tools  Tools
	logger *zap.Logger
}

// New creates a Service.
func New(cfg Config, tools Tools, logger *zap.Logger) *Service {
	if cfg.DBType == "" {
		cfg.DBType = blast.DBProtein
	}
	return &Service{cfg: cfg, tools: tools, logger: logger}
}

// DBPath returns the index path passed to the aligner.
func (s *Service) DBPath() string {
	return s.cfg.DBPath
}

// MissingFiles lists the expected artifact files that do not exist.
// Multi-volume databases are accepted through their alias file.
func (s *Service) MissingFiles() []string {
	var missing []string
	for _, ext := range blast.ArtifactExtensions(s.cfg.DBType) {
		path := s.cfg.DBPath + ext
		if fileExists(path) {
			continue
		}
		if fileExists(s.cfg.DBPath + aliasExtension(s.cfg.DBType)) {
			continue
		}
		missing = append(missing, path)
	}
	return missing
}

// Verify reports whether the index is usable.
func (s *Service) Verify(ctx context.Context) bool {
	return s.verify(ctx) == nil
}

func (s *Service) verify(ctx context.Context) error {
	if missing := s.MissingFiles(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrIndexNotReady, strings.Join(missing, ", "))
	}

	out, err := s.tools.InspectDB(ctx, s.cfg.DBPath, s.cfg.DBType)
	switch {
	case err == nil:
		s.logger.Info("Search index verified",
			zap.String("db", s.cfg.DBPath),
			zap.String("info", firstLines(out, 3)),
		)
		return nil
	case s.cfg.RequireInspector:
		return fmt.Errorf("%w: inspector: %w", domain.ErrIndexNotReady, err)
	default:
		s.logger.Warn("Index inspector failed, accepting index on file presence",
			zap.String("db", s.cfg.DBPath),
			zap.Bool("inspector_output", strings.TrimSpace(out) != ""),
			zap.Error(err),
		)
		return nil
	}
}

// Build runs the index builder against the source FASTA file.
func (s *Service) Build(ctx context.Context) error {
	if s.cfg.SourceFasta == "" {
		return fmt.Errorf("%w: no source FASTA configured", domain.ErrIndexNotReady)
	}
	if !fileExists(s.cfg.SourceFasta) {
		return fmt.Errorf("%w: source FASTA %s not found", domain.ErrIndexNotReady, s.cfg.SourceFasta)
	}
	if dir := filepath.Dir(s.cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create index dir: %w", err)
		}
	}

	s.logger.Info("Building search index",
		zap.String("source", s.cfg.SourceFasta),
		zap.String("db", s.cfg.DBPath),
		zap.String("db_type", s.cfg.DBType),
	)
	err := s.tools.MakeDB(ctx, blast.MakeDB{
		SourceFasta: s.cfg.SourceFasta,
		DBPath:      s.cfg.DBPath,
		DBType:      s.cfg.DBType,
		Title:       s.cfg.Title,
	})
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	return nil
}

// EnsureReady verifies an existing index, or builds one and then verifies it.
func (s *Service) EnsureReady(ctx context.Context) error {
	if len(s.MissingFiles()) == 0 {
		return s.verify(ctx)
	}
	if err := s.Build(ctx); err != nil {
		return err
	}
	return s.verify(ctx)
}

// Check implements the health probe.
func (s *Service) Check(_ context.Context) error {
	if missing := s.MissingFiles(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %d files", domain.ErrIndexNotReady, len(missing))
	}
	return nil
}

func aliasExtension(dbType string) string {
	if dbType == blast.DBNucleotide {
		return ".nal"
	}
	return ".pal"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func firstLines(s string, n int) string {
	lines := strings.SplitN(strings.TrimSpace(s), "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "; ")
}
