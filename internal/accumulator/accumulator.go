package accumulator

import (
	"context"

	"service-intake/internal/common/errors"
	"service-intake/internal/common/logger"
	"service-intake/internal/models"
)

// Accumulator is the only writer of stored RequestInfo. Turns of the same
// user run one at a time in arrival order. Ordering is per process; with a
// Locker, turns of other replicas are excluded as well.
type Accumulator struct {
	store  Store
	locks  *keyLock
	shared Locker
	logger logger.Logger
}

type Option func(*Accumulator)

// WithLocker adds a lock shared by every replica writing the same store.
func WithLocker(l Locker) Option {
	return func(a *Accumulator) { a.shared = l }
}

func New(store Store, log logger.Logger, opts ...Option) *Accumulator {
	a := &Accumulator{
		store:  store,
		locks:  newKeyLock(),
		logger: logger.Component(log, "accumulator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Session is the locked state of one user for the duration of a turn.
type Session struct {
	acc    *Accumulator
	userID string
}

func (s *Session) UserID() string { return s.userID }

// Current returns the stored state.
func (s *Session) Current(ctx context.Context) (models.RequestInfo, error) {
	return s.acc.store.Get(ctx, s.userID)
}

// Merge folds incoming into the stored state and saves the result.
func (s *Session) Merge(ctx context.Context, incoming models.RequestInfo) (models.RequestInfo, error) {
	current, err := s.acc.store.Get(ctx, s.userID)
	if err != nil {
		return models.RequestInfo{}, err
	}
	merged := Merge(current, incoming)
	if err := s.acc.store.Put(ctx, s.userID, merged); err != nil {
		return current, err
	}

	s.acc.logger.Debug("request state merged", map[string]interface{}{
		"userId":   s.userID,
		"complete": IsComplete(merged),
		"missing":  MissingFields(merged),
	})
	return merged, nil
}

// WithSession runs fn while holding the user's turn lock. A later call for
// the same user waits until fn returns.
func (a *Accumulator) WithSession(ctx context.Context, userID string, fn func(*Session) error) error {
	if userID == "" {
		return errors.NewValidationError("user id is required")
	}
	unlock, err := a.locks.Lock(ctx, userID)
	if err != nil {
		return errors.NewTimeoutError("accumulator", err)
	}
	defer unlock()

	if a.shared != nil {
		release, err := a.shared.Acquire(ctx, userID)
		if err != nil {
			return err
		}
		defer release()
	}
	return fn(&Session{acc: a, userID: userID})
}

// Accumulate merges incoming into the user's state and returns the result.
func (a *Accumulator) Accumulate(ctx context.Context, userID string, incoming models.RequestInfo) (models.RequestInfo, error) {
	var merged models.RequestInfo
	err := a.WithSession(ctx, userID, func(s *Session) error {
		var err error
		merged, err = s.Merge(ctx, incoming)
		return err
	})
	return merged, err
}

// Get reads the state without taking the turn lock.
func (a *Accumulator) Get(ctx context.Context, userID string) (models.RequestInfo, error) {
	return a.store.Get(ctx, userID)
}

// Clear drops the user's state, after cancellation or once the request was
// handed over.
func (a *Accumulator) Clear(ctx context.Context, userID string) error {
	return a.WithSession(ctx, userID, func(s *Session) error {
		if err := a.store.Delete(ctx, userID); err != nil {
			return err
		}
		a.logger.Info("request state cleared", map[string]interface{}{"userId": userID})
		return nil
	})
}
