package chi

import (
	"context"

	domjob "github.com/kailas-cloud/seqsearch/internal/domain/job"
	healthuc "github.com/kailas-cloud/seqsearch/internal/usecase/health"
)

// SearchService runs and tracks search jobs.
type SearchService interface {
	Submit(ctx context.Context, req domjob.Request) (string, error)
	Status(id string) (domjob.Job, bool)
	List() ([]domjob.Job, domjob.StoreStats)
}

// IdentityRefresher reloads the identity table.
type IdentityRefresher interface {
	Refresh(ctx context.Context) error
	Size() int
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
