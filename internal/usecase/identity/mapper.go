package identity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/seqsearch/internal/domain"
	domid "github.com/kailas-cloud/seqsearch/internal/domain/identity"
)

// DefaultPageSize matches the row cap of the hosted identity table API.
const DefaultPageSize = 1000

// Mapper resolves accessions to identity records from an in-memory table.
// Readers see either the previous or the next table, never a partial one:
// Load builds a fresh map and publishes it with a single pointer swap.
// A failed reload keeps the previous table.
type Mapper struct {
	source   Source
	pageSize int
	records  atomic.Pointer[map[string]domid.Record]
	loadMu   sync.Mutex
	logger   *zap.Logger

	recordsGauge prometheus.Gauge
	loadsTotal   *prometheus.CounterVec
}

// New creates a Mapper. source may be nil when no identity table is configured;
// Load then always reports the mapping as unavailable.
func New(source Source, pageSize int, logger *zap.Logger) *Mapper {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Mapper{source: source, pageSize: pageSize, logger: logger}
}

// WithMetrics attaches table size and load outcome metrics. Either may be nil.
func (m *Mapper) WithMetrics(records prometheus.Gauge, loads *prometheus.CounterVec) *Mapper {
	m.recordsGauge = records
	m.loadsTotal = loads
	return m
}

// Load fetches every row of the identity table page by page and publishes the
// resulting map. Rows without an accession are skipped. Any page error aborts
// the load without touching the published map and returns an error wrapping
// domain.ErrMappingUnavailable.
func (m *Mapper) Load(ctx context.Context) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if m.source == nil {
		m.observeLoad("disabled")
		return fmt.Errorf("%w: no identity source configured", domain.ErrMappingUnavailable)
	}

	start := time.Now()
	table := make(map[string]domid.Record)
	var accepted, skipped, duplicates, pages int

	for offset := 0; ; {
		rows, hasMore, err := m.source.FetchPage(ctx, offset, m.pageSize)
		if err != nil {
			m.observeLoad("error")
			m.logger.Warn("Identity table load failed",
				zap.Int("offset", offset),
				zap.Int("pages", pages),
				zap.Error(err),
			)
			return fmt.Errorf("%w: page at offset %d: %w", domain.ErrMappingUnavailable, offset, err)
		}
		pages++

		for _, r := range rows {
			if r.Accession == "" {
				skipped++
				continue
			}
			if _, dup := table[r.Accession]; dup {
				duplicates++
			}
			table[r.Accession] = r
			accepted++
		}

		if !hasMore || len(rows) == 0 {
			break
		}
		offset += len(rows)
	}

	m.records.Store(&table)
	m.observeLoad("ok")
	if m.recordsGauge != nil {
		m.recordsGauge.Set(float64(len(table)))
	}

	m.logger.Info("Identity table loaded",
		zap.Int("records", len(table)),
		zap.Int("accepted", accepted),
		zap.Int("skipped_no_accession", skipped),
		zap.Int("duplicates", duplicates),
		zap.Int("pages", pages),
		zap.Int("page_size", m.pageSize),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Refresh reloads the table. Concurrent refreshes are serialised; resolves
// during a refresh keep using the previous table.
func (m *Mapper) Refresh(ctx context.Context) error {
	return m.Load(ctx)
}

// Loaded reports whether a table has been published.
func (m *Mapper) Loaded() bool {
	return m.records.Load() != nil
}

// Size returns the number of published records.
func (m *Mapper) Size() int {
	t := m.records.Load()
	if t == nil {
		return 0
	}
	return len(*t)
}

// Resolve returns the record for accession, or a placeholder carrying the
// accession with unknown names. It never fails.
func (m *Mapper) Resolve(accession string) domid.Record {
	if t := m.records.Load(); t != nil {
		if r, ok := (*t)[accession]; ok {
			return r
		}
	}
	return domid.Unknown(accession)
}

// ExtractAccession returns the accession of a raw header line.
func (m *Mapper) ExtractAccession(header string) string {
	return domid.ExtractAccession(header)
}

func (m *Mapper) observeLoad(result string) {
	if m.loadsTotal != nil {
		m.loadsTotal.WithLabelValues(result).Inc()
	}
}
