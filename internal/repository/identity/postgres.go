package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	domid "github.com/kailas-cloud/seqsearch/internal/domain/identity"
)

// querier is the consumer interface satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads the identity table with LIMIT/OFFSET pages.
type PostgresSource struct {
	db    querier
	query string
}

// NewPostgresSource creates a source over table, e.g. "public.protein_identity".
func NewPostgresSource(db querier, table string) *PostgresSource {
	return &PostgresSource{
		db:    db,
		query: fmt.Sprintf(selectPage, qualifiedIdent(table), "$1", "$2"),
	}
}

// FetchPage returns up to limit rows starting at offset. One extra row is
// requested to learn whether another page exists.
func (p *PostgresSource) FetchPage(ctx context.Context, offset, limit int) ([]domid.Record, bool, error) {
	if limit <= 0 {
		return nil, false, fmt.Errorf("page limit must be positive, got %d", limit)
	}

	rows, err := p.db.Query(ctx, p.query, limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("query identity page at %d: %w", offset, err)
	}
	defer rows.Close()

	out := make([]domid.Record, 0, limit)
	for rows.Next() {
		var id string
		var acc, gene, protein *string
		if err := rows.Scan(&id, &acc, &gene, &protein); err != nil {
			return nil, false, fmt.Errorf("scan identity row: %w", err)
		}
		out = append(out, domid.Record{
			ID:          id,
			Accession:   deref(acc),
			GeneName:    deref(gene),
			ProteinName: deref(protein),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("read identity page at %d: %w", offset, err)
	}

	return trimPage(out, limit)
}

func qualifiedIdent(table string) string {
	return pgx.Identifier(splitQualified(table)).Sanitize()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
