package seqsearch

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/seqsearch/internal/domain/alignment"
	domid "github.com/kailas-cloud/seqsearch/internal/domain/identity"
	domjob "github.com/kailas-cloud/seqsearch/internal/domain/job"
)

// SearchRequest is one query. Nil optional fields use the aligner defaults.
type SearchRequest struct {
	Sequence              string
	Algorithm             string // blastp, blastn, blastx, tblastn, tblastx
	SignificanceThreshold *float64
	MaxResults            *int
	Matrix                *string
	WordSize              *int
	GapOpen               *int
	GapExtend             *int
}

// JobStatus is a job lifecycle state.
type JobStatus string

// Job states.
const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job is a snapshot of a submitted search.
type Job struct {
	ID          string
	Status      JobStatus
	Progress    int
	SubmittedAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Result      *Result
	Error       string
}

// Result is a completed search. Hits are ordered by ascending e-value.
type Result struct {
	QueryLength     int
	DatabaseSize    int
	DatabaseLetters int64
	TotalHits       int
	Hits            []Hit
	Program         string
	Database        string
	Kappa           float64
	Lambda          float64
}

// Hit is one aligned reference sequence.
type Hit struct {
	ID           string
	Accession    string
	GeneName     string
	ProteinName  string
	Description  string
	EValue       float64
	BitScore     float64
	Score        int
	Identity     float64
	Positives    float64
	Gaps         int
	QueryStart   int
	QueryEnd     int
	SubjectStart int
	SubjectEnd   int
	QuerySeq     string
	SubjectSeq   string
	Midline      string
	AlignLength  int
}

// IdentityRecord is one row of the identity table.
type IdentityRecord struct {
	ID          string
	Accession   string
	GeneName    string
	ProteinName string
}

// IdentitySource pages through an identity table. hasMore reports whether
// another page follows.
type IdentitySource interface {
	FetchPage(ctx context.Context, offset, limit int) (rows []IdentityRecord, hasMore bool, err error)
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status          string            // "ok", "degraded", "error"
	Checks          map[string]string // component → "ok"/"error"/"fallback"
	IdentityRecords int
}

// sourceAdapter wraps a public IdentitySource to satisfy the internal contract.
type sourceAdapter struct {
	inner IdentitySource
}

func (a sourceAdapter) FetchPage(ctx context.Context, offset, limit int) ([]domid.Record, bool, error) {
	rows, more, err := a.inner.FetchPage(ctx, offset, limit)
	if err != nil {
		return nil, false, fmt.Errorf("fetch identity page: %w", err)
	}
	out := make([]domid.Record, len(rows))
	for i, r := range rows {
		out[i] = domid.Record(r)
	}
	return out, more, nil
}

func (r SearchRequest) toDomain() domjob.Request {
	return domjob.Request{
		Sequence:   r.Sequence,
		Algorithm:  r.Algorithm,
		EValue:     r.SignificanceThreshold,
		MaxResults: r.MaxResults,
		Matrix:     r.Matrix,
		WordSize:   r.WordSize,
		GapOpen:    r.GapOpen,
		GapExtend:  r.GapExtend,
	}
}

func jobFromDomain(j domjob.Job) Job {
	out := Job{
		ID:          j.ID,
		Status:      JobStatus(j.Status),
		Progress:    j.Progress,
		SubmittedAt: j.SubmitTime,
		Error:       j.Error,
	}
	if j.Status != domjob.StatusPending {
		out.StartedAt = j.StartTime
	}
	if j.Status.Terminal() {
		out.CompletedAt = j.CompletedTime
	}
	if j.Result != nil {
		r := resultFromDomain(*j.Result)
		out.Result = &r
	}
	return out
}

func resultFromDomain(r alignment.Result) Result {
	hits := make([]Hit, len(r.Hits))
	for i, h := range r.Hits {
		hits[i] = Hit{
			ID:           h.RecordID,
			Accession:    h.Accession,
			GeneName:     h.GeneName,
			ProteinName:  h.ProteinName,
			Description:  h.Description,
			EValue:       h.EValue,
			BitScore:     h.BitScore,
			Score:        h.Score,
			Identity:     h.Identity,
			Positives:    h.Positives,
			Gaps:         h.Gaps,
			QueryStart:   h.QueryStart,
			QueryEnd:     h.QueryEnd,
			SubjectStart: h.SubjectStart,
			SubjectEnd:   h.SubjectEnd,
			QuerySeq:     h.QuerySeq,
			SubjectSeq:   h.SubjectSeq,
			Midline:      h.Midline,
			AlignLength:  h.AlignLength,
		}
	}
	return Result{
		QueryLength:     r.QueryLength,
		DatabaseSize:    r.DatabaseSize,
		DatabaseLetters: r.DatabaseLetters,
		TotalHits:       r.TotalHits,
		Hits:            hits,
		Program:         r.Stats.Program,
		Database:        r.Stats.Database,
		Kappa:           r.Stats.Kappa,
		Lambda:          r.Stats.Lambda,
	}
}
