package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/jnana/internal/adapters/repository"
	"github.com/okian/jnana/internal/domain/agreement"
	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/internal/domain/types"
	"github.com/okian/jnana/pkg/logger"
	"github.com/okian/jnana/pkg/metrics"
)

// ImportResult counts what an import stored.
type ImportResult struct {
	Inserted int `json:"inserted"`
	Existing int `json:"existing"`
	Invalid  int `json:"invalid"`
}

// Import stores new items. Ids already present keep their content; items
// failing validation are reported and skipped.
func (s *Service) Import(ctx context.Context, items []model.Item) (ImportResult, error) {
	var res ImportResult
	valid := make([]model.Item, 0, len(items))
	for _, it := range items {
		if err := it.Validate(); err != nil {
			res.Invalid++
			s.logger.Warn(ctx, "import: skipping invalid item",
				logger.String("item_id", it.ID), logger.Error(err))
			continue
		}
		valid = append(valid, it)
	}
	n, err := s.store.PutItems(ctx, valid)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	res.Inserted = n
	res.Existing = len(valid) - n
	if s.cached != nil {
		s.cached.InvalidateIDs()
	}
	s.logger.Info(ctx, "items imported",
		logger.Int("inserted", res.Inserted),
		logger.Int("existing", res.Existing),
		logger.Int("invalid", res.Invalid))
	return res, nil
}

type scored struct {
	judgments []model.Judgment
	doubts    []model.Doubt
	scores    []agreement.SubItemScore
}

func (s *Service) score(ctx context.Context) (scored, error) {
	js, err := s.store.ListJudgments(ctx)
	if err != nil {
		return scored{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	ds, err := s.store.ListDoubts(ctx)
	if err != nil {
		return scored{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return scored{judgments: js, doubts: ds, scores: s.scorer.Aggregate(js, ds)}, nil
}

// Export returns the accepted sub-items: those with a majority and an
// agreement score at or above the threshold.
func (s *Service) Export(ctx context.Context) ([]agreement.ExportRecord, error) {
	sc, err := s.score(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	byID := make(map[string]model.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	out := s.scorer.Export(ctx, sc.scores, byID)
	metrics.UpdateExportedRecords(len(out))
	return out, nil
}

// Report builds the admin overview.
func (s *Service) Report(ctx context.Context) (types.Report, error) {
	now := s.now()
	counts, err := s.store.Counts(ctx, now)
	if err != nil {
		return types.Report{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	ov, err := s.overview(ctx, now, counts)
	if err != nil {
		return types.Report{}, err
	}
	sc, err := s.score(ctx)
	if err != nil {
		return types.Report{}, err
	}
	pending, err := s.store.ListEditRequests(ctx, model.EditPending)
	if err != nil {
		return types.Report{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	summary := s.scorer.Summarize(sc.judgments, sc.scores)
	metrics.UpdateAgreementAverage(summary.AverageScore)
	metrics.UpdateActiveReservations(counts.ActiveReservations)

	doubts := sc.doubts
	if doubts == nil {
		doubts = []model.Doubt{}
	}
	return types.Report{
		GeneratedAt: now,
		Quota:       s.cfg.Quota,
		Threshold:   s.cfg.AcceptanceThreshold,
		Overview:    ov,
		Agreement:   summary,
		Leaderboard: types.Rank(s.scorer.WorkerQuality(sc.judgments, sc.doubts, sc.scores)),
		Doubts:      doubts,
		EditQueue:   len(pending),
	}, nil
}

// overview classifies items: complete at Q workers, in progress when
// judged or reserved below that.
func (s *Service) overview(ctx context.Context, now time.Time, counts repository.Counts) (types.Overview, error) {
	byItem, err := s.store.CountWorkersByItem(ctx)
	if err != nil {
		return types.Overview{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	active, err := s.store.CountActiveByItem(ctx, now)
	if err != nil {
		return types.Overview{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	ids, err := s.store.ListItemIDs(ctx)
	if err != nil {
		return types.Overview{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	ov := types.Overview{
		TotalItems:         counts.Items,
		RetiredItems:       counts.Retired,
		Judgments:          counts.Judgments,
		ActiveReservations: counts.ActiveReservations,
		Workers:            counts.Workers,
	}
	for _, id := range ids {
		n := byItem[id]
		switch {
		case n >= s.cfg.Quota:
			ov.CompletedItems++
		case n > 0 || active[id] > 0:
			ov.InProgressItems++
		}
	}
	return ov, nil
}

// EditQueue lists edit requests; an empty status lists all.
func (s *Service) EditQueue(ctx context.Context, status string) ([]model.EditRequest, error) {
	switch status {
	case "", model.EditPending, model.EditDone:
	default:
		return nil, fmt.Errorf("%w: unknown edit status %q", ErrInvalidRequest, status)
	}
	out, err := s.store.ListEditRequests(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return out, nil
}

// MarkEditDone closes the edit request of an item.
func (s *Service) MarkEditDone(ctx context.Context, itemID string) error {
	err := s.store.MarkEditDone(ctx, itemID, s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: no edit request for %s", ErrUnknownItem, itemID)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}
