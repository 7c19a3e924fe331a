package identity

import (
	"context"

	domid "github.com/kailas-cloud/seqsearch/internal/domain/identity"
)

// Source pages through the remote identity table.
// hasMore is false once the page returned is the last one.
type Source interface {
	FetchPage(ctx context.Context, offset, limit int) (rows []domid.Record, hasMore bool, err error)
}
