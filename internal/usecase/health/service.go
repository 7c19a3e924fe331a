package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates searches run but identity enrichment falls back to header parsing.
	Degraded Status = "degraded"
	// Unhealthy indicates searches cannot run.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckFallback indicates the identity table is not loaded.
	CheckFallback CheckResult = "fallback"
)

// Report aggregates health check results.
type Report struct {
	Status          Status
	Checks          map[string]CheckResult
	IdentityRecords int
}

// Service coordinates health checks.
type Service struct {
	index    IndexChecker
	identity IdentityState
	db       DBPinger
}

// New creates a Service. identity and db can be nil.
func New(index IndexChecker, identity IdentityState, db DBPinger) *Service {
	return &Service{index: index, identity: identity, db: db}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.index.Check(ctx); err != nil {
		checks["index"] = CheckError
		status = Unhealthy
	} else {
		checks["index"] = CheckOK
	}

	var records int
	if s.identity != nil {
		if s.identity.Loaded() {
			checks["identity"] = CheckOK
			records = s.identity.Size()
		} else {
			checks["identity"] = CheckFallback
			status = worst(status, Degraded)
		}
	}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			checks["identity_db"] = CheckError
			status = worst(status, Degraded)
		} else {
			checks["identity_db"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks, IdentityRecords: records}
}

func worst(a, b Status) Status {
	rank := map[Status]int{Healthy: 0, Degraded: 1, Unhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
