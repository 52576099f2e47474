package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/jnana/internal/domain/allocation"
	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/internal/domain/types"
	"github.com/okian/jnana/pkg/logger"
	"github.com/okian/jnana/pkg/metrics"
)

// Next returns the worker's current assignment while it is live. Otherwise
// it converts timed-out reservations and reserves a new item.
func (s *Service) Next(ctx context.Context, workerID string) (types.WorkView, error) {
	sess, err := s.session(ctx, workerID)
	if err != nil {
		return types.WorkView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	timedOut, err := s.engine.ExpireStale(ctx, workerID)
	if err != nil {
		return types.WorkView{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	for _, id := range timedOut {
		s.enqueue(ctx, workerID, id, model.ActionTimeout, nil)
	}

	now := s.now()
	if sess.Current != nil && !now.Before(sess.Current.Deadline) {
		sess.Current = nil
	}
	if sess.Current == nil {
		a, ok, err := s.resume(ctx, workerID)
		if err != nil {
			return types.WorkView{}, err
		}
		if ok {
			sess.Current = &a
		}
	}
	if sess.Current != nil {
		return types.NewWorkView(*sess.Current, now, timedOut), nil
	}

	a, err := s.allocate(ctx, sess)
	if errors.Is(err, allocation.ErrNoneAvailable) {
		return types.WorkView{Status: types.StatusNoneAvailable, TimedOut: timedOut}, nil
	}
	if err != nil {
		return types.WorkView{}, err
	}

	sess.Current = &a
	s.enqueue(ctx, workerID, a.Item.ID, model.ActionAllocated, map[string]string{
		"deadline": a.Deadline.Format(time.RFC3339),
	})
	return types.NewWorkView(a, s.now(), timedOut), nil
}

// resume picks up a live reservation the session does not know about, e.g.
// after a restart.
func (s *Service) resume(ctx context.Context, workerID string) (model.Assignment, bool, error) {
	rows, err := s.store.ReservationsFor(ctx, workerID)
	if err != nil {
		return model.Assignment{}, false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	now := s.now()
	timer := s.cfg.Timer()
	for _, r := range rows {
		if r.Expired(now, timer) {
			continue
		}
		it, err := s.items.GetItem(ctx, r.ItemID)
		if err != nil {
			s.logger.Warn(ctx, "cannot resume reservation",
				logger.String("worker_id", workerID),
				logger.String("item_id", r.ItemID),
				logger.Error(err))
			continue
		}
		return model.Assignment{Item: it, ReservedAt: r.ReservedAt, Deadline: r.Deadline(timer)}, true, nil
	}
	return model.Assignment{}, false, nil
}

// allocate serves from the session's candidate memo and rebuilds it once
// when the memo is stale or runs dry.
func (s *Service) allocate(ctx context.Context, sess *Session) (model.Assignment, error) {
	fromMemo := sess.candidatesFresh(s.now(), s.cfg.CandidateTTL())
	for {
		if !fromMemo {
			cands, err := s.engine.BuildCandidates(ctx, sess.WorkerID)
			if err != nil {
				s.logger.Error(ctx, "failed to build candidates",
					logger.String("worker_id", sess.WorkerID), logger.Error(err))
				sess.dropCandidates()
				return model.Assignment{}, allocation.ErrNoneAvailable
			}
			sess.Candidates = cands
			sess.BuiltAt = s.now()
		}

		a, rest, err := s.engine.Allocate(ctx, sess.WorkerID, sess.Candidates)
		sess.Candidates = rest
		switch {
		case err == nil:
			return a, nil
		case errors.Is(err, allocation.ErrNoneAvailable) && fromMemo:
			fromMemo = false
			continue
		case errors.Is(err, allocation.ErrNoneAvailable):
			return model.Assignment{}, err
		default:
			sess.dropCandidates()
			return model.Assignment{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
}

// held finds the worker's reservation on itemID. An expired one is
// converted into a timeout skip and reported as ErrReservationExpired.
func (s *Service) held(ctx context.Context, sess *Session, itemID string) (model.Assignment, error) {
	now := s.now()
	var a model.Assignment
	switch {
	case sess.Current != nil && sess.Current.Item.ID == itemID:
		a = *sess.Current
	default:
		rows, err := s.store.ReservationsFor(ctx, sess.WorkerID)
		if err != nil {
			return model.Assignment{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		found := false
		for _, r := range rows {
			if r.ItemID != itemID {
				continue
			}
			it, err := s.items.GetItem(ctx, itemID)
			if err != nil {
				return model.Assignment{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
			}
			a = model.Assignment{Item: it, ReservedAt: r.ReservedAt, Deadline: r.Deadline(s.cfg.Timer())}
			found = true
			break
		}
		if !found {
			return model.Assignment{}, s.missingReservation(ctx, sess.WorkerID, itemID)
		}
	}

	if !now.Before(a.Deadline) {
		expired, err := s.engine.ExpireStale(ctx, sess.WorkerID)
		if err != nil {
			return model.Assignment{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if sess.Current != nil && sess.Current.Item.ID == itemID {
			sess.Current = nil
		}
		for _, id := range expired {
			s.enqueue(ctx, sess.WorkerID, id, model.ActionTimeout, nil)
		}
		return model.Assignment{}, fmt.Errorf("%w: %s", ErrReservationExpired, itemID)
	}
	return a, nil
}

// missingReservation tells an expired reservation apart from one that never
// existed.
func (s *Service) missingReservation(ctx context.Context, workerID, itemID string) error {
	skipped, err := s.store.ItemsSkippedBy(ctx, workerID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	for _, id := range skipped {
		if id == itemID {
			return fmt.Errorf("%w: %s", ErrReservationExpired, itemID)
		}
	}
	return fmt.Errorf("%w: %s", ErrNoReservation, itemID)
}

// Submit stores one label per sub-item for the worker's reserved item and
// releases the reservation. Submitting an item twice stores nothing new.
func (s *Service) Submit(ctx context.Context, workerID string, req types.SubmitRequest) (types.SubmitResult, error) {
	if req.ItemID == "" {
		return types.SubmitResult{}, fmt.Errorf("%w: item_id is required", ErrInvalidRequest)
	}
	sess, err := s.session(ctx, workerID)
	if err != nil {
		return types.SubmitResult{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if res, done, err := s.alreadySubmitted(ctx, workerID, req); err != nil || done {
		return res, err
	}

	a, err := s.held(ctx, sess, req.ItemID)
	if err != nil {
		return types.SubmitResult{}, err
	}

	labels, err := parseLabels(req.Labels, len(a.Item.SubItems))
	if err != nil {
		return types.SubmitResult{}, err
	}

	key := workerID + "/" + req.ItemID
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordJudgmentDuplicate()
		return types.SubmitResult{}, fmt.Errorf("%w: %s", ErrSubmissionInFlight, req.ItemID)
	}

	now := s.now()
	judgments := make([]model.Judgment, len(labels))
	var doubts []model.Doubt
	for i, l := range labels {
		judgments[i] = model.Judgment{
			ItemID:      req.ItemID,
			WorkerID:    workerID,
			SubIndex:    i,
			Label:       l,
			SubmittedAt: now,
			ReservedAt:  a.ReservedAt,
			Latency:     now.Sub(a.ReservedAt),
		}
		if l == model.LabelDoubt {
			sub := a.Item.SubItems[i]
			doubts = append(doubts, model.Doubt{
				ItemID:   req.ItemID,
				SubIndex: i,
				WorkerID: workerID,
				Question: sub.Question,
				Answer:   sub.Answer,
				RaisedAt: now,
			})
		}
	}

	recorded, err := s.store.AppendJudgments(ctx, judgments)
	if err != nil {
		s.deduper.Unrecord(ctx, key)
		s.logger.Error(ctx, "failed to store judgments",
			logger.String("worker_id", workerID), logger.String("item_id", req.ItemID), logger.Error(err))
		return types.SubmitResult{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(doubts) > 0 {
		if _, err := s.store.AppendDoubts(ctx, doubts); err != nil {
			s.deduper.Unrecord(ctx, key)
			return types.SubmitResult{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	if err := s.engine.Release(ctx, workerID, req.ItemID, model.ReasonSubmitted); err != nil {
		s.deduper.Unrecord(ctx, key)
		return types.SubmitResult{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	sess.Current = nil

	for i := 0; i < len(judgments)-recorded; i++ {
		metrics.RecordJudgmentDuplicate()
	}
	for _, j := range judgments {
		metrics.RecordJudgment(string(j.Label))
	}
	metrics.RecordSubmission(now.Sub(a.ReservedAt).Seconds())

	res := types.SubmitResult{
		ItemID:     req.ItemID,
		Recorded:   recorded,
		Duplicates: len(judgments) - recorded,
		Doubts:     len(doubts),
	}
	res.Completed = s.afterSubmit(ctx, req.ItemID)

	s.enqueue(ctx, workerID, req.ItemID, model.ActionSubmitted, map[string]string{
		"labels":     strconv.Itoa(len(labels)),
		"doubts":     strconv.Itoa(len(doubts)),
		"latency_ms": strconv.FormatInt(now.Sub(a.ReservedAt).Milliseconds(), 10),
	})
	return res, nil
}

// alreadySubmitted answers a repeated submission without touching the store.
func (s *Service) alreadySubmitted(ctx context.Context, workerID string, req types.SubmitRequest) (types.SubmitResult, bool, error) {
	workers, err := s.store.DistinctWorkers(ctx, req.ItemID)
	if err != nil {
		return types.SubmitResult{}, false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	for _, w := range workers {
		if w == workerID {
			metrics.RecordJudgmentDuplicate()
			return types.SubmitResult{
				ItemID:     req.ItemID,
				Duplicates: len(req.Labels),
				Completed:  len(workers) >= s.cfg.Quota,
			}, true, nil
		}
	}
	return types.SubmitResult{}, false, nil
}

func parseLabels(raw []string, want int) ([]model.Label, error) {
	if len(raw) != want {
		return nil, fmt.Errorf("%w: got %d labels for %d sub-items", ErrIncompleteSubmission, len(raw), want)
	}
	out := make([]model.Label, len(raw))
	for i, r := range raw {
		l, err := model.ParseLabel(r)
		if err != nil {
			return nil, fmt.Errorf("%w: sub-item %d: %w", ErrInvalidRequest, i, err)
		}
		out[i] = l
	}
	return out, nil
}

// afterSubmit queues an edit request once the item has Q workers and some
// sub-items were judged Incorrect by majority. It reports whether the item
// is complete.
func (s *Service) afterSubmit(ctx context.Context, itemID string) bool {
	workers, err := s.store.DistinctWorkers(ctx, itemID)
	if err != nil {
		s.logger.Warn(ctx, "completion check failed", logger.String("item_id", itemID), logger.Error(err))
		return false
	}
	if len(workers) < s.cfg.Quota {
		return false
	}

	js, err := s.store.JudgmentsFor(ctx, itemID)
	if err != nil {
		s.logger.Warn(ctx, "edit queue check failed", logger.String("item_id", itemID), logger.Error(err))
		return true
	}
	all, err := s.store.ListDoubts(ctx)
	if err != nil {
		s.logger.Warn(ctx, "edit queue check failed", logger.String("item_id", itemID), logger.Error(err))
		return true
	}
	var doubts []model.Doubt
	for _, d := range all {
		if d.ItemID == itemID {
			doubts = append(doubts, d)
		}
	}

	var incorrect []int
	for _, sc := range s.scorer.Aggregate(js, doubts) {
		if sc.Majority == model.LabelIncorrect {
			incorrect = append(incorrect, sc.SubIndex)
		}
	}
	if len(incorrect) == 0 {
		return true
	}
	err = s.store.UpsertEditRequest(ctx, model.EditRequest{
		ItemID:     itemID,
		SubIndexes: incorrect,
		Status:     model.EditPending,
		UpdatedAt:  s.now(),
	})
	if err != nil {
		s.logger.Warn(ctx, "failed to queue edit request", logger.String("item_id", itemID), logger.Error(err))
		return true
	}
	metrics.RecordEditRequest()
	s.logger.Info(ctx, "edit request queued", logger.String("item_id", itemID), logger.Int("sub_items", len(incorrect)))
	return true
}

// Skip releases the worker's reservation with a manual or invalid-content
// reason. Manual skips count toward retirement.
func (s *Service) Skip(ctx context.Context, workerID string, req types.SkipRequest) error {
	reason, err := model.ParseSkipReason(req.Reason)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.ItemID == "" {
		return fmt.Errorf("%w: item_id is required", ErrInvalidRequest)
	}
	sess, err := s.session(ctx, workerID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, err := s.held(ctx, sess, req.ItemID); err != nil {
		return err
	}
	if err := s.engine.Release(ctx, workerID, req.ItemID, reason); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if sess.Current != nil && sess.Current.Item.ID == req.ItemID {
		sess.Current = nil
	}
	s.enqueue(ctx, workerID, req.ItemID, model.ActionSkipped, map[string]string{"reason": string(reason)})
	return nil
}

// ReleaseSession forgets the worker's session. Reservations stay in the
// ledger and expire on their own.
func (s *Service) ReleaseSession(workerID string) {
	s.sessions.Delete(workerID)
}
