package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventdraw/internal/shared/constants"
	"eventdraw/internal/waitlist"
	"eventdraw/pkg/cache"
	"eventdraw/pkg/logger"
	"eventdraw/pkg/metrics"

	"github.com/google/uuid"
)

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

type Service interface {
	SetCacheService(cacheService cache.Service)
	SetMetrics(m *metrics.Manager)
	SetClock(clock Clock)

	CreateEvent(ctx context.Context, organizerID string, req CreateEventRequest) (*EventResponse, error)
	GetEvent(ctx context.Context, eventID string) (*EventResponse, error)
	GetSummary(ctx context.Context, eventID string) (*Summary, error)
	JoinWaitlist(ctx context.Context, eventID, userID string) (waitlist.AdmissionResult, error)
	LeaveWaitlist(ctx context.Context, eventID, userID string) (bool, error)
	RespondToInvitation(ctx context.Context, eventID, userID string, accept bool) (*waitlist.Entry, error)
	CancelEntry(ctx context.Context, eventID, userID, reason string) (*waitlist.Entry, error)
	ListEntries(ctx context.Context, eventID string, status waitlist.Status) ([]waitlist.Entry, error)

	// InvalidateEvent drops cached views of the event after a write made elsewhere.
	InvalidateEvent(ctx context.Context, eventID string)
}

type service struct {
	store        Store
	locker       Locker
	log          *logger.Logger
	clock        Clock
	metrics      *metrics.Manager
	cacheService cache.Service
}

func NewService(store Store, locker Locker, log *logger.Logger) Service {
	if log == nil {
		log = logger.GetDefault()
	}
	return &service{
		store:  store,
		locker: locker,
		log:    log,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// SetCacheService injects the cache service dependency
func (s *service) SetCacheService(cacheService cache.Service) {
	s.cacheService = cacheService
}

func (s *service) SetMetrics(m *metrics.Manager) {
	s.metrics = m
}

func (s *service) SetClock(clock Clock) {
	if clock != nil {
		s.clock = clock
	}
}

func (s *service) CreateEvent(ctx context.Context, organizerID string, req CreateEventRequest) (*EventResponse, error) {
	if req.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidEvent)
	}

	id := uuid.NewString()
	w, err := waitlist.New(id, req.Opening.UTC(), req.Deadline.UTC(), req.WaitlistCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	event := &Event{
		ID:        id,
		Name:      req.Name,
		Capacity:  req.Capacity,
		Attendees: append([]string(nil), req.Attendees...),
		Waitlist:  w,
		CreatedBy: organizerID,
		CreatedAt: s.clock(),
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	s.log.LogEventCreated(ctx, id, organizerID, req.Capacity)
	return toEventResponse(event, s.clock()), nil
}

func (s *service) GetEvent(ctx context.Context, eventID string) (*EventResponse, error) {
	key := constants.BuildEventDetailKey(eventID)
	var cached EventResponse
	if s.getCache(ctx, key, &cached) == nil {
		now := s.clock()
		cached.IsActive = !now.Before(cached.Opening) && !now.After(cached.Deadline)
		return &cached, nil
	}

	var resp *EventResponse
	err := s.withLock(ctx, eventID, func() error {
		event, err := s.store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		resp = toEventResponse(event, s.clock())
		s.setCache(ctx, key, resp, constants.TTL_EVENT_DETAIL)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *service) GetSummary(ctx context.Context, eventID string) (*Summary, error) {
	key := constants.BuildWaitlistSummaryKey(eventID)
	var cached Summary
	if s.getCache(ctx, key, &cached) == nil {
		now := s.clock()
		cached.IsActive = !now.Before(cached.Opening) && !now.After(cached.Deadline)
		return &cached, nil
	}

	// Filling under the event lock means a writer's invalidation always lands after the fill.
	var summary *Summary
	err := s.withLock(ctx, eventID, func() error {
		event, err := s.store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		summary = Summarize(event, s.clock())
		s.setCache(ctx, key, summary, constants.TTL_WAITLIST_SUMMARY)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// JoinWaitlist admits userID when the event exists, the window is open, the user is
// not already listed and the cap has room. Rejections are results, not errors.
func (s *service) JoinWaitlist(ctx context.Context, eventID, userID string) (waitlist.AdmissionResult, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}

	var result waitlist.AdmissionResult
	err := s.withLock(ctx, eventID, func() error {
		event, err := s.store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}

		now := s.clock()
		result = event.Waitlist.Admit(userID, now)
		if !result.OK() {
			return nil
		}

		entry := waitlist.Entry{UserID: userID, RegisteredAt: now, Status: waitlist.StatusPending}
		err = s.store.AddEntry(ctx, eventID, entry)
		if errors.Is(err, ErrConflict) {
			// Another writer got there first; report what the stored state says now.
			fresh, getErr := s.store.GetEvent(ctx, eventID)
			if getErr != nil {
				return getErr
			}
			result = fresh.Waitlist.Admit(userID, now)
			if result.OK() {
				return err
			}
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}

	s.log.LogAdmission(ctx, eventID, userID, string(result))
	s.metrics.RecordAdmission(string(result))
	if result.OK() {
		s.InvalidateEvent(ctx, eventID)
	}
	return result, nil
}

func (s *service) LeaveWaitlist(ctx context.Context, eventID, userID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}

	var removed bool
	err := s.withLock(ctx, eventID, func() error {
		var err error
		removed, err = s.store.RemoveEntry(ctx, eventID, userID)
		return err
	})
	if err != nil {
		return false, err
	}

	if removed {
		s.log.LogStatusChange(ctx, eventID, userID, "LEFT")
		s.InvalidateEvent(ctx, eventID)
	}
	return removed, nil
}

// RespondToInvitation records a winner's answer.
func (s *service) RespondToInvitation(ctx context.Context, eventID, userID string, accept bool) (*waitlist.Entry, error) {
	target := waitlist.StatusDeclined
	if accept {
		target = waitlist.StatusAccepted
	}
	return s.transition(ctx, eventID, userID, target, "")
}

// CancelEntry withdraws a Pending or Won entrant and keeps the reason on the entry.
func (s *service) CancelEntry(ctx context.Context, eventID, userID, reason string) (*waitlist.Entry, error) {
	return s.transition(ctx, eventID, userID, waitlist.StatusCancelled, reason)
}

func (s *service) ListEntries(ctx context.Context, eventID string, status waitlist.Status) ([]waitlist.Entry, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	entries := event.Waitlist.Filter(status)
	if entries == nil {
		entries = []waitlist.Entry{}
	}
	return entries, nil
}

func (s *service) InvalidateEvent(ctx context.Context, eventID string) {
	if s.cacheService == nil {
		return
	}
	keys := []string{constants.BuildWaitlistSummaryKey(eventID), constants.BuildEventDetailKey(eventID)}
	if err := s.cacheService.Delete(ctx, keys...); err != nil {
		s.log.ErrorWithContext(ctx, "cache invalidation failed", err, map[string]interface{}{"event_id": eventID})
	}
}

func (s *service) transition(ctx context.Context, eventID, userID string, target waitlist.Status, reason string) (*waitlist.Entry, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}

	var updated waitlist.Entry
	err := s.withLock(ctx, eventID, func() error {
		event, err := s.store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := event.Waitlist.SetStatus(userID, target, reason); err != nil {
			return err
		}
		if err := s.store.UpdateEntryStatuses(ctx, eventID, []StatusUpdate{{UserID: userID, Status: target, Reason: reason}}); err != nil {
			return err
		}
		updated, _ = event.Waitlist.Entry(userID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.LogStatusChange(ctx, eventID, userID, string(target))
	s.metrics.RecordStatusChange(string(target))
	s.InvalidateEvent(ctx, eventID)
	return &updated, nil
}

func (s *service) withLock(ctx context.Context, eventID string, fn func() error) error {
	start := time.Now()
	unlock, err := s.locker.Lock(ctx, eventID)
	s.metrics.RecordLockWait(time.Since(start), errors.Is(err, ErrLockTimeout))
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// Cache helper methods

func (s *service) getCache(ctx context.Context, key string, dest interface{}) error {
	if s.cacheService == nil {
		return cache.ErrCacheMiss
	}
	return s.cacheService.Get(ctx, key, dest)
}

func (s *service) setCache(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if s.cacheService == nil {
		return
	}
	if err := s.cacheService.Set(ctx, key, value, ttl); err != nil {
		s.log.ErrorWithContext(ctx, "cache set failed", err, map[string]interface{}{"key": key})
	}
}
