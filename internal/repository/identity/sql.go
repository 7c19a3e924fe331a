package identity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	domid "github.com/kailas-cloud/seqsearch/internal/domain/identity"
)

// selectPage orders by id so that offsets are stable between pages.
const selectPage = `SELECT CAST(id AS TEXT), accession, gene_name, protein_name FROM %s ORDER BY id LIMIT %s OFFSET %s`

// SQLSource reads the identity table through database/sql (SQLite snapshot files).
type SQLSource struct {
	db    *sql.DB
	query string
}

// NewSQLSource creates a source over table.
func NewSQLSource(db *sql.DB, table string) *SQLSource {
	parts := splitQualified(table)
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return &SQLSource{
		db:    db,
		query: fmt.Sprintf(selectPage, strings.Join(parts, "."), "?", "?"),
	}
}

// FetchPage returns up to limit rows starting at offset.
func (s *SQLSource) FetchPage(ctx context.Context, offset, limit int) ([]domid.Record, bool, error) {
	if limit <= 0 {
		return nil, false, fmt.Errorf("page limit must be positive, got %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, s.query, limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("query identity page at %d: %w", offset, err)
	}
	defer rows.Close()

	out := make([]domid.Record, 0, limit)
	for rows.Next() {
		var id string
		var acc, gene, protein sql.NullString
		if err := rows.Scan(&id, &acc, &gene, &protein); err != nil {
			return nil, false, fmt.Errorf("scan identity row: %w", err)
		}
		out = append(out, domid.Record{
			ID:          id,
			Accession:   acc.String,
			GeneName:    gene.String,
			ProteinName: protein.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("read identity page at %d: %w", offset, err)
	}

	return trimPage(out, limit)
}

func trimPage(rows []domid.Record, limit int) ([]domid.Record, bool, error) {
	if len(rows) > limit {
		return rows[:limit], true, nil
	}
	return rows, false, nil
}

func splitQualified(table string) []string {
	return strings.Split(strings.TrimSpace(table), ".")
}
