package index

import (
	"context"

	"github.com/kailas-cloud/seqsearch/internal/transport/blast"
)

// Tools runs the external index builder and inspector.
type Tools interface {
	MakeDB(ctx context.Context, m blast.MakeDB) error
	InspectDB(ctx context.Context, dbPath, dbType string) (string, error)
}
