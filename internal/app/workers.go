package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/okian/jnana/internal/adapters/repository"
	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/internal/domain/onboarding"
	"github.com/okian/jnana/internal/domain/types"
	"github.com/okian/jnana/pkg/logger"
)

const (
	maxNoteLength   = 2000
	defaultActivity = 50
	maxActivity     = 500
)

// Onboard registers a worker under a six-letter intern id.
func (s *Service) Onboard(ctx context.Context, req types.OnboardRequest) (model.Worker, error) {
	w := model.Worker{
		ID:          strings.TrimSpace(req.ID),
		AuthSubject: strings.TrimSpace(req.AuthSubject),
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Phone:       strings.TrimSpace(req.Phone),
		Email:       strings.TrimSpace(req.Email),
		CreatedAt:   s.now(),
	}
	if err := w.Validate(); err != nil {
		return model.Worker{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !onboarding.Valid(w.ID) {
		return model.Worker{}, fmt.Errorf("%w: id must be %d lowercase letters", ErrInvalidRequest, onboarding.IDLength)
	}

	err := s.store.CreateWorker(ctx, w)
	switch {
	case errors.Is(err, repository.ErrWorkerExists):
		return model.Worker{}, fmt.Errorf("%w: %s", ErrWorkerExists, w.ID)
	case err != nil:
		return model.Worker{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.logger.Info(ctx, "worker onboarded", logger.String("worker_id", w.ID))
	s.enqueue(ctx, w.ID, "", model.ActionOnboarded, nil)
	return w, nil
}

// IDOptions suggests free intern ids for a name.
func (s *Service) IDOptions(ctx context.Context, first, last string) (types.IDOptions, error) {
	if strings.TrimSpace(first) == "" || strings.TrimSpace(last) == "" {
		return types.IDOptions{}, fmt.Errorf("%w: first and last name are required", ErrInvalidRequest)
	}
	ids, err := s.store.WorkerIDs(ctx)
	if err != nil {
		return types.IDOptions{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	taken := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		taken[id] = struct{}{}
	}

	s.rngMu.Lock()
	opts := onboarding.Suggest(first, last, taken, s.rng)
	s.rngMu.Unlock()
	return types.IDOptions{Options: opts}, nil
}

// AddNote attaches a note to an item or one of its sub-items.
func (s *Service) AddNote(ctx context.Context, workerID string, req types.NoteRequest) (model.Note, error) {
	if err := s.requireWorker(ctx, workerID); err != nil {
		return model.Note{}, err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return model.Note{}, fmt.Errorf("%w: note text is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(text) > maxNoteLength {
		return model.Note{}, fmt.Errorf("%w: note longer than %d characters", ErrInvalidRequest, maxNoteLength)
	}

	item, err := s.items.GetItem(ctx, req.ItemID)
	switch {
	case errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidArgument):
		return model.Note{}, fmt.Errorf("%w: %s", ErrUnknownItem, req.ItemID)
	case err != nil:
		return model.Note{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	idx := -1
	if req.SubIndex != nil {
		if _, ok := item.SubItem(*req.SubIndex); !ok {
			return model.Note{}, fmt.Errorf("%w: sub_item_index %d out of range", ErrInvalidRequest, *req.SubIndex)
		}
		idx = *req.SubIndex
	}

	n := model.Note{
		ItemID:    item.ID,
		SubIndex:  idx,
		WorkerID:  workerID,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.store.AddNote(ctx, n); err != nil {
		return model.Note{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	s.enqueue(ctx, workerID, item.ID, model.ActionNote, nil)
	return n, nil
}

// Notes lists the notes of an item.
func (s *Service) Notes(ctx context.Context, itemID string) ([]model.Note, error) {
	if _, err := s.items.GetItem(ctx, itemID); err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidArgument) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	notes, err := s.store.NotesFor(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return notes, nil
}

// Activity returns the worker's latest activity, newest first. limit is
// clamped to a sane range.
func (s *Service) Activity(ctx context.Context, workerID string, limit int) ([]model.Activity, error) {
	if err := s.requireWorker(ctx, workerID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultActivity
	case limit > maxActivity:
		limit = maxActivity
	}
	out, err := s.store.ActivityFor(ctx, workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return out, nil
}

// Workers lists every onboarded worker.
func (s *Service) Workers(ctx context.Context) ([]model.Worker, error) {
	ws, err := s.store.ListWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return ws, nil
}
