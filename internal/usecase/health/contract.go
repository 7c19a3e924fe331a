package health

import "context"

// DBPinger checks identity database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// IndexChecker checks that the search index is present.
type IndexChecker interface {
	Check(ctx context.Context) error
}

// IdentityState reports whether the identity table is loaded.
type IdentityState interface {
	Loaded() bool
	Size() int
}
