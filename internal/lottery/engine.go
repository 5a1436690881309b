package lottery

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"eventdraw/internal/events"
	"eventdraw/internal/waitlist"
	"eventdraw/pkg/logger"
	"eventdraw/pkg/metrics"
)

// Service is the organizer-facing lottery API
type Service interface {
	SelectWinners(ctx context.Context, eventID string, n int) (*SelectionResult, error)
	DrawReplacement(ctx context.Context, eventID string, n int) (*SelectionResult, error)
	CloseDraw(ctx context.Context, eventID string) (*CloseResult, error)
}

// Invalidator is told when a round changed an event so cached views can be dropped
type Invalidator interface {
	InvalidateEvent(ctx context.Context, eventID string)
}

// Engine runs lottery rounds. Status writes for one event happen under that event's
// lock; notifications go out after the lock is released.
type Engine struct {
	store         events.Store
	locker        events.Locker
	dispatcher    NotificationDispatcher
	log           *logger.Logger
	metrics       *metrics.Manager
	invalidator   Invalidator
	newRand       func() *rand.Rand
	notifyTimeout time.Duration
}

// Option configures an Engine
type Option func(*Engine)

// WithRandSource replaces the per-round generator factory. Tests use seeded sources.
func WithRandSource(newRand func() *rand.Rand) Option {
	return func(e *Engine) {
		if newRand != nil {
			e.newRand = newRand
		}
	}
}

// WithMetrics records round and notification outcomes.
func WithMetrics(m *metrics.Manager) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithInvalidator registers the cache invalidation hook.
func WithInvalidator(inv Invalidator) Option {
	return func(e *Engine) {
		e.invalidator = inv
	}
}

// WithNotifyTimeout bounds each individual notification hand-off.
func WithNotifyTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.notifyTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func NewEngine(store events.Store, locker events.Locker, dispatcher NotificationDispatcher, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		locker:        locker,
		dispatcher:    dispatcher,
		log:           logger.GetDefault(),
		newRand:       newSecureRand,
		notifyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SelectWinners draws up to n Pending entrants as winners.
func (e *Engine) SelectWinners(ctx context.Context, eventID string, n int) (*SelectionResult, error) {
	return e.Select(ctx, SelectionRequest{EventID: eventID, RequestedCount: n})
}

// DrawReplacement fills spots freed by declines or cancellations. It runs the same
// round as SelectWinners and only changes the message sent to winners.
func (e *Engine) DrawReplacement(ctx context.Context, eventID string, n int) (*SelectionResult, error) {
	return e.Select(ctx, SelectionRequest{EventID: eventID, RequestedCount: n, IsReplacement: true})
}

// Select runs one round described by req.
func (e *Engine) Select(ctx context.Context, req SelectionRequest) (*SelectionResult, error) {
	if req.EventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidArgument)
	}
	if req.RequestedCount <= 0 {
		return nil, fmt.Errorf("%w: requested count must be positive, got %d", ErrInvalidArgument, req.RequestedCount)
	}

	start := time.Now()
	kind := req.kind()

	var (
		result    *SelectionResult
		eventName string
	)
	err := e.withLock(ctx, req.EventID, func() error {
		event, err := e.store.GetEvent(ctx, req.EventID)
		if err != nil {
			return storageErr(err)
		}
		eventName = event.Name

		result = &SelectionResult{EventID: req.EventID, Winners: []string{}}
		remaining := event.RemainingCapacity()
		if remaining == 0 {
			result.Info = InfoNoCapacity
			return nil
		}
		pending := event.Waitlist.Pending()
		if len(pending) == 0 {
			result.RemainingCapacity = remaining
			result.Info = InfoNoPending
			return nil
		}

		take := min(req.RequestedCount, remaining, len(pending))
		updates := make([]events.StatusUpdate, 0, take)
		for _, i := range sample(e.newRand(), len(pending), take) {
			result.Winners = append(result.Winners, pending[i].UserID)
			updates = append(updates, events.StatusUpdate{UserID: pending[i].UserID, Status: waitlist.StatusWon})
		}

		// Last point at which the caller can back out with nothing written.
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.store.UpdateEntryStatuses(ctx, req.EventID, updates); err != nil {
			return storageErr(err)
		}

		result.WinnersAdded = take
		result.RemainingCapacity = remaining - take
		return nil
	})
	if err != nil {
		e.metrics.RecordDraw(string(kind), "error", 0, time.Since(start))
		return nil, err
	}

	if result.WinnersAdded > 0 {
		e.invalidate(ctx, req.EventID)
		result.NotificationFailures = e.notifyAll(ctx, req.EventID, eventName, kind, result.Winners)
	}

	outcome := "ok"
	if result.Info != "" {
		outcome = "empty"
	}
	e.metrics.RecordDraw(string(kind), outcome, result.WinnersAdded, time.Since(start))
	e.log.LogDraw(ctx, req.EventID, string(kind), req.RequestedCount, result.WinnersAdded, result.RemainingCapacity, result.Info)
	return result, nil
}

// CloseDraw moves every entrant still Pending to NotSelected and tells each of them.
func (e *Engine) CloseDraw(ctx context.Context, eventID string) (*CloseResult, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidArgument)
	}

	start := time.Now()
	result := &CloseResult{EventID: eventID, NotSelected: []string{}}
	var eventName string

	err := e.withLock(ctx, eventID, func() error {
		event, err := e.store.GetEvent(ctx, eventID)
		if err != nil {
			return storageErr(err)
		}
		eventName = event.Name

		pending := event.Waitlist.Pending()
		if len(pending) == 0 {
			return nil
		}
		updates := make([]events.StatusUpdate, 0, len(pending))
		for _, p := range pending {
			updates = append(updates, events.StatusUpdate{UserID: p.UserID, Status: waitlist.StatusNotSelected})
			result.NotSelected = append(result.NotSelected, p.UserID)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.store.UpdateEntryStatuses(ctx, eventID, updates); err != nil {
			return storageErr(err)
		}
		return nil
	})
	if err != nil {
		e.metrics.RecordDraw(string(KindNotSelected), "error", 0, time.Since(start))
		return nil, err
	}

	if len(result.NotSelected) > 0 {
		e.invalidate(ctx, eventID)
		result.NotificationFailures = e.notifyAll(ctx, eventID, eventName, KindNotSelected, result.NotSelected)
	}

	e.metrics.RecordDraw(string(KindNotSelected), "ok", 0, time.Since(start))
	e.log.LogDraw(ctx, eventID, string(KindNotSelected), 0, len(result.NotSelected), 0, "")
	return result, nil
}

// notifyAll sends one message per recipient. A failed send never affects the others
// and never undoes the status write. Once ctx is done the remaining sends are dropped
// and reported as failures.
func (e *Engine) notifyAll(ctx context.Context, eventID, eventName string, kind MessageKind, recipients []string) []NotificationFailure {
	var failures []NotificationFailure
	text := MessageText(kind, eventName)

	for i, userID := range recipients {
		if err := ctx.Err(); err != nil {
			for _, skipped := range recipients[i:] {
				failures = append(failures, NotificationFailure{UserID: skipped, Error: err.Error()})
				e.metrics.RecordNotification(string(kind), err)
			}
			e.log.LogNotificationFailure(ctx, eventID, userID, string(kind), err)
			break
		}

		err := e.send(ctx, Notification{UserID: userID, EventID: eventID, Kind: kind, Text: text})
		e.metrics.RecordNotification(string(kind), err)
		if err != nil {
			e.log.LogNotificationFailure(ctx, eventID, userID, string(kind), err)
			failures = append(failures, NotificationFailure{UserID: userID, Error: err.Error()})
		}
	}
	return failures
}

func (e *Engine) send(ctx context.Context, n Notification) (err error) {
	if e.dispatcher == nil {
		return errors.New("no notification dispatcher configured")
	}
	sendCtx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panic: %v", r)
		}
	}()
	return e.dispatcher.Notify(sendCtx, n)
}

func (e *Engine) withLock(ctx context.Context, eventID string, fn func() error) error {
	start := time.Now()
	unlock, err := e.locker.Lock(ctx, eventID)
	e.metrics.RecordLockWait(time.Since(start), errors.Is(err, events.ErrLockTimeout))
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func (e *Engine) invalidate(ctx context.Context, eventID string) {
	if e.invalidator != nil {
		e.invalidator.InvalidateEvent(ctx, eventID)
	}
}

// storageErr keeps caller-facing errors as they are and marks everything else as a
// storage failure.
func storageErr(err error) error {
	switch {
	case errors.Is(err, events.ErrNotFound),
		errors.Is(err, events.ErrStorage),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", events.ErrStorage, err)
	}
}
