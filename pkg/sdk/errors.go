package seqsearch

import (
	"errors"

	"github.com/kailas-cloud/seqsearch/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound           = domain.ErrNotFound
	ErrValidation         = domain.ErrValidation
	ErrIndexNotReady      = domain.ErrIndexNotReady
	ErrShuttingDown       = domain.ErrShuttingDown
	ErrMappingUnavailable = domain.ErrMappingUnavailable
)

// ErrJobFailed is returned by Wait and Search when the job ended in failure.
// The wrapped message is the job's error.
var ErrJobFailed = errors.New("search job failed")
