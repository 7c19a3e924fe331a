package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	gochi "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/seqsearch/internal/domain"
	domjob "github.com/kailas-cloud/seqsearch/internal/domain/job"
	"github.com/kailas-cloud/seqsearch/internal/logger"
	healthuc "github.com/kailas-cloud/seqsearch/internal/usecase/health"
	"github.com/kailas-cloud/seqsearch/internal/version"
)

// maxSubmitBody caps the submit request body.
const maxSubmitBody = 1 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the search job API.
type Server struct {
	search        SearchService
	identity      IdentityRefresher
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
	now           func() time.Time
}

// NewServer creates an HTTP API server. identity may be nil.
func NewServer(search SearchService, identity IdentityRefresher, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		search:   search,
		identity: identity,
		health:   health,
		logger:   logger,
		now:      time.Now,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeJobNotFound),
		sentinelHandler(domain.ErrIndexNotReady, http.StatusServiceUnavailable, codeIndexNotReady),
		sentinelHandler(domain.ErrShuttingDown, http.StatusServiceUnavailable, codeShuttingDown),
		sentinelHandler(domain.ErrMappingUnavailable, http.StatusServiceUnavailable, codeIdentityUnavailable),
	}
	return s
}

// Routes registers all handlers on r.
func (s *Server) Routes(r gochi.Router) {
	r.Post("/search/submit", s.SubmitSearch)
	r.Get("/search/status/{jobId}", s.GetStatus)
	r.Get("/search/results/{jobId}", s.GetResults)
	r.Get("/search/jobs", s.ListJobs)
	r.Post("/admin/identity/refresh", s.RefreshIdentity)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
	})
}

// SubmitSearch handles POST /search/submit.
func (s *Server) SubmitSearch(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := s.search.Submit(r.Context(), req.toDomain())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		JobID:   id,
		Message: "search job submitted",
	})
}

// GetStatus handles GET /search/status/{jobId}.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusToResponse(j, s.now()))
}

// GetResults handles GET /search/results/{jobId}.
func (s *Server) GetResults(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(w, r)
	if !ok {
		return
	}

	switch j.Status {
	case domjob.StatusCompleted:
		if j.Result == nil {
			writeError(w, http.StatusNotFound, codeJobNotFound, "no results for job")
			return
		}
		writeJSON(w, http.StatusOK, ResultsResponse{
			JobID:   j.ID,
			Status:  string(j.Status),
			Results: resultToResponse(*j.Result),
		})
	case domjob.StatusFailed:
		writeJSON(w, http.StatusBadRequest, FailedResponse{
			JobID:  j.ID,
			Status: string(j.Status),
			Error:  j.Error,
		})
	default:
		writeJSON(w, http.StatusAccepted, PendingResponse{
			JobID:    j.ID,
			Status:   string(j.Status),
			Progress: j.Progress,
		})
	}
}

// ListJobs handles GET /search/jobs.
func (s *Server) ListJobs(w http.ResponseWriter, _ *http.Request) {
	jobs, stats := s.search.List()
	now := s.now()

	resp := JobsResponse{
		Jobs:  make([]StatusResponse, len(jobs)),
		Stats: statsToResponse(stats),
	}
	for i, j := range jobs {
		resp.Jobs[i] = statusToResponse(j, now)
	}
	writeJSON(w, http.StatusOK, resp)
}

// RefreshIdentity handles POST /admin/identity/refresh.
func (s *Server) RefreshIdentity(w http.ResponseWriter, r *http.Request) {
	if s.identity == nil {
		writeError(w, http.StatusServiceUnavailable, codeIdentityUnavailable, domain.ErrMappingUnavailable.Error())
		return
	}
	if err := s.identity.Refresh(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Records: s.identity.Size()})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:          string(report.Status),
		Version:         version.Version,
		Commit:          version.Commit,
		Checks:          checks,
		IdentityRecords: report.IdentityRecords,
	})
}

// lookup binds the jobId path parameter and fetches the job.
// It writes 400 for a malformed id and 404 for an unknown one.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (domjob.Job, bool) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "jobId", gochi.URLParam(r, "jobId"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid job id")
		return domjob.Job{}, false
	}

	j, ok := s.search.Status(id.String())
	if !ok {
		writeError(w, http.StatusNotFound, codeJobNotFound, "job not found")
		return domjob.Job{}, false
	}
	return j, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// safeDomainMessage returns a client-facing message without exposing internals.
// Validation errors are returned verbatim since they describe the request.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrValidation) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrIndexNotReady,
		domain.ErrShuttingDown,
		domain.ErrMappingUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error",
		zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
