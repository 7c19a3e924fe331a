package chi

import (
	"time"

	"github.com/kailas-cloud/seqsearch/internal/domain/alignment"
	domjob "github.com/kailas-cloud/seqsearch/internal/domain/job"
)

// Error codes returned in ErrorResponse.Code.
const (
	codeBadRequest          = "bad_request"
	codeUnauthorized        = "unauthorized"
	codeValidationFailed    = "validation_failed"
	codeJobNotFound         = "job_not_found"
	codeJobFailed           = "job_failed"
	codeIndexNotReady       = "index_not_ready"
	codeShuttingDown        = "shutting_down"
	codeIdentityUnavailable = "identity_unavailable"
	codeInternalError       = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// SubmitRequest is the body of POST /search/submit.
type SubmitRequest struct {
	Sequence              string   `json:"sequence"`
	Algorithm             string   `json:"algorithm"`
	SignificanceThreshold *float64 `json:"significanceThreshold,omitempty"`
	MaxResults            *int     `json:"maxResults,omitempty"`
	Matrix                *string  `json:"matrix,omitempty"`
	WordSize              *int     `json:"wordSize,omitempty"`
	GapOpen               *int     `json:"gapOpen,omitempty"`
	GapExtend             *int     `json:"gapExtend,omitempty"`
}

func (r SubmitRequest) toDomain() domjob.Request {
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

// SubmitResponse is returned with 202 Accepted.
type SubmitResponse struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// StatusResponse describes a job without its results.
type StatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Algorithm   string     `json:"algorithm"`
	QueryLength int        `json:"queryLength"`
	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	QueueWaitMs int64      `json:"queueWaitMs"`
	DurationMs  int64      `json:"durationMs"`
	TotalHits   *int       `json:"totalHits,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ResultsResponse is returned once a job completed.
type ResultsResponse struct {
	JobID   string       `json:"jobId"`
	Status  string       `json:"status"`
	Results SearchResult `json:"results"`
}

// PendingResponse is returned with 202 while a job has no results yet.
type PendingResponse struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// FailedResponse is returned with 400 for a failed job.
type FailedResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// SearchResult is the wire form of alignment.Result.
type SearchResult struct {
	QueryLength     int        `json:"queryLength"`
	DatabaseSize    int        `json:"databaseSize"`
	DatabaseLetters int64      `json:"databaseLetters"`
	TotalHits       int        `json:"totalHits"`
	Hits            []Hit      `json:"hits"`
	Statistics      Statistics `json:"statistics"`
}

// Hit is the wire form of alignment.Hit.
type Hit struct {
	ID           string  `json:"id"`
	Accession    string  `json:"accession"`
	GeneName     string  `json:"geneName"`
	ProteinName  string  `json:"proteinName"`
	Description  string  `json:"description"`
	EValue       float64 `json:"evalue"`
	BitScore     float64 `json:"bitScore"`
	Score        int     `json:"score"`
	Identity     float64 `json:"identity"`
	Positives    float64 `json:"positives"`
	Gaps         int     `json:"gaps"`
	QueryStart   int     `json:"queryStart"`
	QueryEnd     int     `json:"queryEnd"`
	SubjectStart int     `json:"subjectStart"`
	SubjectEnd   int     `json:"subjectEnd"`
	QuerySeq     string  `json:"querySeq"`
	SubjectSeq   string  `json:"subjectSeq"`
	Midline      string  `json:"midline"`
	AlignLength  int     `json:"alignLength"`
}

// Statistics is the wire form of alignment.Stats.
type Statistics struct {
	Program        string  `json:"program,omitempty"`
	Version        string  `json:"version,omitempty"`
	Database       string  `json:"database,omitempty"`
	Kappa          float64 `json:"kappa"`
	Lambda         float64 `json:"lambda"`
	Entropy        float64 `json:"entropy"`
	EffectiveSpace float64 `json:"effectiveSpace"`
}

// JobsResponse is the body of GET /search/jobs.
type JobsResponse struct {
	Jobs  []StatusResponse `json:"jobs"`
	Stats StoreStats       `json:"stats"`
}

// StoreStats is the wire form of job.StoreStats.
type StoreStats struct {
	Total    int            `json:"total"`
	Capacity int            `json:"capacity"`
	ByStatus map[string]int `json:"byStatus"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string            `json:"status"`
	Version         string            `json:"version"`
	Commit          string            `json:"commit"`
	Checks          map[string]string `json:"checks"`
	IdentityRecords int               `json:"identityRecords"`
}

// RefreshResponse is the body of POST /admin/identity/refresh.
type RefreshResponse struct {
	Records int `json:"records"`
}

func statusToResponse(j domjob.Job, now time.Time) StatusResponse {
	resp := StatusResponse{
		JobID:       j.ID,
		Status:      string(j.Status),
		Progress:    j.Progress,
		Algorithm:   string(j.Params.Algorithm()),
		QueryLength: len(j.Params.Sequence()),
		SubmittedAt: j.SubmitTime.UTC(),
		QueueWaitMs: j.QueueWait(now).Milliseconds(),
		DurationMs:  j.Duration(now).Milliseconds(),
		Error:       j.Error,
	}
	if j.Status != domjob.StatusPending {
		started := j.StartTime.UTC()
		resp.StartedAt = &started
	}
	if j.Status.Terminal() {
		completed := j.CompletedTime.UTC()
		resp.CompletedAt = &completed
	}
	if j.Result != nil {
		total := j.Result.TotalHits
		resp.TotalHits = &total
	}
	return resp
}

func resultToResponse(r alignment.Result) SearchResult {
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
	return SearchResult{
		QueryLength:     r.QueryLength,
		DatabaseSize:    r.DatabaseSize,
		DatabaseLetters: r.DatabaseLetters,
		TotalHits:       r.TotalHits,
		Hits:            hits,
		Statistics: Statistics{
			Program:        r.Stats.Program,
			Version:        r.Stats.Version,
			Database:       r.Stats.Database,
			Kappa:          r.Stats.Kappa,
			Lambda:         r.Stats.Lambda,
			Entropy:        r.Stats.Entropy,
			EffectiveSpace: r.Stats.EffectiveSpace,
		},
	}
}

func statsToResponse(s domjob.StoreStats) StoreStats {
	by := make(map[string]int, len(domjob.Statuses))
	for _, st := range domjob.Statuses {
		by[string(st)] = s.ByStatus[st]
	}
	return StoreStats{Total: s.Total, Capacity: s.Capacity, ByStatus: by}
}
