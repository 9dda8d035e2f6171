package memory

import (
	"context"
	"sync"

	"tesa/internal/domain/finding"
	"tesa/internal/ports"
)

// FindingStore is the ephemeral store variant: an append-only slice behind
// one mutex. Nothing survives a process restart; intended for
// non-persistent and test deployments.
type FindingStore struct {
	mu       sync.Mutex
	findings []finding.SecurityFinding
}

var _ ports.FindingStore = (*FindingStore)(nil)

func NewFindingStore() *FindingStore {
	return &FindingStore{}
}

// Init is a no-op; there is no schema to prepare.
func (s *FindingStore) Init(_ context.Context) error {
	return nil
}

// Add appends without deduplication.
func (s *FindingStore) Add(_ context.Context, findings []finding.SecurityFinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.findings = append(s.findings, findings...)
	return nil
}

// List returns the last limit entries in insertion order.
func (s *FindingStore) List(_ context.Context, limit int) ([]finding.SecurityFinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}

	start := len(s.findings) - limit
	if start < 0 {
		start = 0
	}

	window := make([]finding.SecurityFinding, len(s.findings)-start)
	copy(window, s.findings[start:])
	return window, nil
}

// Summary recomputes bucket counts over the full in-memory set.
func (s *FindingStore) Summary(_ context.Context) (finding.RiskSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return finding.SummarizeScores(s.findings), nil
}
