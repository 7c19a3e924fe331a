// Package identity reads the reference identity table from its remote store
// one page at a time.
package identity

import (
	"context"
	"fmt"

	domid "github.com/kailas-cloud/seqsearch/internal/domain/identity"
)

// Hash field names of an identity record.
const (
	fieldID          = "id"
	fieldAccession   = "accession"
	fieldGeneName    = "gene_name"
	fieldProteinName = "protein_name"
)

// store is the consumer interface for the Redis-backed table (ISP).
type store interface {
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// RedisSource reads identity rows mirrored into Redis/Valkey: a sorted set
// <prefix>identity:index ranks row keys, each row is a hash at <prefix>identity:<member>.
type RedisSource struct {
	store  store
	prefix string
}

// NewRedisSource creates a Redis-backed identity source.
func NewRedisSource(s store, keyPrefix string) *RedisSource {
	return &RedisSource{store: s, prefix: keyPrefix}
}

func (r *RedisSource) indexKey() string {
	return r.prefix + "identity:index"
}

func (r *RedisSource) rowKey(member string) string {
	return r.prefix + "identity:" + member
}

// FetchPage returns up to limit rows starting at rank offset.
func (r *RedisSource) FetchPage(ctx context.Context, offset, limit int) ([]domid.Record, bool, error) {
	if limit <= 0 {
		return nil, false, fmt.Errorf("page limit must be positive, got %d", limit)
	}

	total, err := r.store.ZCard(ctx, r.indexKey())
	if err != nil {
		return nil, false, fmt.Errorf("count identity rows: %w", err)
	}

	members, err := r.store.ZRange(ctx, r.indexKey(), int64(offset), int64(offset+limit-1))
	if err != nil {
		return nil, false, fmt.Errorf("range identity index at %d: %w", offset, err)
	}
	if len(members) == 0 {
		return nil, false, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = r.rowKey(m)
	}
	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, false, fmt.Errorf("load identity rows at %d: %w", offset, err)
	}

	rows := make([]domid.Record, 0, len(hashes))
	for i, h := range hashes {
		id := h[fieldID]
		if id == "" {
			id = members[i]
		}
		rows = append(rows, domid.Record{
			ID:          id,
			Accession:   h[fieldAccession],
			GeneName:    h[fieldGeneName],
			ProteinName: h[fieldProteinName],
		})
	}

	return rows, int64(offset+len(members)) < total, nil
}
