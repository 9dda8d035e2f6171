package findings

import (
	"context"
	"errors"
	"log/slog"

	"tesa/internal/bootstrap/logging"
	"tesa/internal/domain/finding"
	"tesa/internal/errs"
	"tesa/internal/ports"
)

// DefaultListLimit bounds List calls that do not specify their own limit.
const DefaultListLimit = 100

// Service exposes the ingestion and query usecases over the finding store.
type Service struct {
	store ports.FindingStore
}

func NewService(store ports.FindingStore) *Service {
	return &Service{store: store}
}

// Init prepares the store; on the durable variant this runs the schema
// migration and must complete before any other call.
func (s *Service) Init(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.findings"))
	if err := s.store.Init(logCtx); err != nil {
		return errs.Wrap(err, "init finding store")
	}
	return nil
}

// IngestSignals normalizes each raw signal into a canonical finding and
// persists the batch. Normalization never fails; storage errors fail the
// whole batch.
func (s *Service) IngestSignals(ctx context.Context, signals []finding.ThreatSignal) ([]finding.SecurityFinding, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	items := make([]finding.SecurityFinding, 0, len(signals))
	for _, signal := range signals {
		items = append(items, finding.BuildFinding(signal))
	}

	if err := s.store.Add(ctx, items); err != nil {
		return nil, errs.Wrap(err, "store findings")
	}

	logging.Info(ctx, "signals ingested",
		slog.String("component", "usecase.findings"),
		slog.Int("count", len(items)))
	return items, nil
}

// IngestFindings persists already normalized findings as-is.
func (s *Service) IngestFindings(ctx context.Context, items []finding.SecurityFinding) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	if err := s.store.Add(ctx, items); err != nil {
		return errs.Wrap(err, "store findings")
	}
	return nil
}

// List returns at most limit findings, oldest of the returned window first.
func (s *Service) List(ctx context.Context, limit int) ([]finding.SecurityFinding, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	items, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, errs.Wrap(err, "list findings")
	}
	return items, nil
}

// Summary aggregates stored findings into risk buckets.
func (s *Service) Summary(ctx context.Context) (finding.RiskSummary, error) {
	if ctx == nil {
		return finding.RiskSummary{}, errors.New("context is required")
	}

	summary, err := s.store.Summary(ctx)
	if err != nil {
		return finding.RiskSummary{}, errs.Wrap(err, "summarize findings")
	}
	return summary, nil
}
