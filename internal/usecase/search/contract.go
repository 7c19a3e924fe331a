package search

import (
	"context"

	domid "github.com/kailas-cloud/seqsearch/internal/domain/identity"
	domjob "github.com/kailas-cloud/seqsearch/internal/domain/job"
	"github.com/kailas-cloud/seqsearch/internal/transport/blast"
)

// JobStore holds job records. All methods must be safe for concurrent use.
type JobStore interface {
	Put(j domjob.Job)
	Get(id string) (domjob.Job, bool)
	Update(id string, fn func(j *domjob.Job) error) (domjob.Job, error)
	List() []domjob.Job
	Stats() domjob.StoreStats
}

// Aligner runs one alignment and leaves the XML report at s.OutPath.
type Aligner interface {
	Run(ctx context.Context, s blast.Search) error
}

// Identity resolves hit headers to identity records.
type Identity interface {
	Loaded() bool
	ExtractAccession(header string) string
	Resolve(accession string) domid.Record
}

// IndexChecker is the pre-flight index probe run on submit.
type IndexChecker interface {
	Check(ctx context.Context) error
}
