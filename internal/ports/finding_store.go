package ports

import (
	"context"

	"tesa/internal/domain/finding"
)

// FindingStore is the persistence capability for normalized findings.
//
// Two adapters implement it: an ephemeral in-process store and a durable
// relational store. Init must be called once before first use; on the
// durable adapter it runs the schema migration, on the ephemeral one it is
// a no-op.
type FindingStore interface {
	Init(ctx context.Context) error
	// Add persists the batch, deduplicating by finding UID: an already
	// stored UID is updated in place. The durable adapter applies the
	// whole batch in one transaction.
	Add(ctx context.Context, findings []finding.SecurityFinding) error
	// List returns at most limit findings in ascending time order (oldest
	// of the returned window first). limit <= 0 returns none.
	List(ctx context.Context, limit int) ([]finding.SecurityFinding, error)
	Summary(ctx context.Context) (finding.RiskSummary, error)
}
