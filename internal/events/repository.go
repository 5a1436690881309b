package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventdraw/internal/waitlist"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// repository implements Store on PostgreSQL through GORM. Every write runs in a
// transaction that first takes a row lock on the owning event, so writes for one
// event are serialised in the database even across processes.
type repository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed Store
func NewRepository(db *gorm.DB) Store {
	return &repository{db: db}
}

// CreateEvent inserts the event row. Any entries already on the waitlist are inserted too.
func (r *repository) CreateEvent(ctx context.Context, event *Event) error {
	record := toEventRecord(event)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: event %s already exists", ErrConflict, event.ID)
			}
			return err
		}
		for _, e := range event.Waitlist.Entries() {
			row := toEntryRecord(event.ID, e)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return wrapStorage("create event", err)
}

// GetEvent loads the event and all of its entries in join order.
func (r *repository) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	var record EventRecord
	err := r.db.WithContext(ctx).Where("id = ?", eventID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrapStorage("get event", err)
	}

	var rows []WaitlistEntryRecord
	err = r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("registered_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStorage("list waitlist entries", err)
	}

	return fromRecords(record, rows)
}

// AddEntry inserts a new entry while holding the event row lock.
func (r *repository) AddEntry(ctx context.Context, eventID string, entry waitlist.Entry) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := lockEvent(tx, eventID)
		if err != nil {
			return err
		}

		if record.WaitlistCapacity != nil {
			var count int64
			if err := tx.Model(&WaitlistEntryRecord{}).Where("event_id = ?", eventID).Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(*record.WaitlistCapacity) {
				return fmt.Errorf("%w: waitlist is full", ErrConflict)
			}
		}

		row := toEntryRecord(eventID, entry)
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: user %s already on waitlist", ErrConflict, entry.UserID)
			}
			return err
		}
		return bumpVersion(tx, eventID)
	})
	return wrapStorage("add waitlist entry", err)
}

// RemoveEntry deletes the entry and reports whether a row was removed.
func (r *repository) RemoveEntry(ctx context.Context, eventID, userID string) (bool, error) {
	var removed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockEvent(tx, eventID); err != nil {
			return err
		}
		res := tx.Where("event_id = ? AND user_id = ?", eventID, userID).Delete(&WaitlistEntryRecord{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		if !removed {
			return nil
		}
		return bumpVersion(tx, eventID)
	})
	if err != nil {
		return false, wrapStorage("remove waitlist entry", err)
	}
	return removed, nil
}

// UpdateEntryStatuses writes the whole batch or nothing. Each row is only updated when
// its current status may legally move to the target, and a batch that hands out spots
// must leave Won plus Accepted within the event's capacity. Either violation rolls the
// transaction back with ErrConflict.
func (r *repository) UpdateEntryStatuses(ctx context.Context, eventID string, updates []StatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := lockEvent(tx, eventID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		claims := false
		for _, u := range updates {
			claims = claims || u.Status.ConsumesCapacity()
			reason := ""
			if u.Status == waitlist.StatusCancelled {
				reason = u.Reason
			}
			res := tx.Model(&WaitlistEntryRecord{}).
				Where("event_id = ? AND user_id = ? AND status IN ?", eventID, u.UserID, waitlist.Predecessors(u.Status)).
				Updates(map[string]interface{}{
					"status":              u.Status,
					"cancellation_reason": reason,
					"updated_at":          now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("%w: user %s cannot move to %s", ErrConflict, u.UserID, u.Status)
			}
		}
		if claims {
			if err := checkCapacity(tx, record); err != nil {
				return err
			}
		}
		return bumpVersion(tx, eventID)
	})
	return wrapStorage("update entry statuses", err)
}

func lockEvent(tx *gorm.DB, eventID string) (*EventRecord, error) {
	var record EventRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", eventID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// checkCapacity fails the transaction when more entrants hold a spot than the event has.
// It runs after the batch so it sees the rows this transaction just changed.
func checkCapacity(tx *gorm.DB, record *EventRecord) error {
	var used int64
	err := tx.Model(&WaitlistEntryRecord{}).
		Where("event_id = ? AND status IN ?", record.ID, []waitlist.Status{waitlist.StatusWon, waitlist.StatusAccepted}).
		Count(&used).Error
	if err != nil {
		return err
	}
	if used > int64(record.Capacity) {
		return fmt.Errorf("%w: %d spots taken, capacity is %d", ErrConflict, used, record.Capacity)
	}
	return nil
}

func bumpVersion(tx *gorm.DB, eventID string) error {
	return tx.Model(&EventRecord{}).
		Where("id = ?", eventID).
		UpdateColumn("version", gorm.Expr("version + 1")).Error
}

// wrapStorage passes domain errors through and marks everything else as ErrStorage.
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

func toEventRecord(e *Event) EventRecord {
	return EventRecord{
		ID:               e.ID,
		Name:             e.Name,
		Capacity:         e.Capacity,
		Attendees:        e.Attendees,
		Opening:          e.Waitlist.Opening,
		Deadline:         e.Waitlist.Deadline,
		WaitlistCapacity: e.Waitlist.Capacity,
		Version:          e.Version,
		CreatedBy:        e.CreatedBy,
		CreatedAt:        e.CreatedAt,
	}
}

func toEntryRecord(eventID string, e waitlist.Entry) WaitlistEntryRecord {
	return WaitlistEntryRecord{
		EventID:            eventID,
		UserID:             e.UserID,
		Status:             e.Status,
		CancellationReason: e.CancellationReason,
		RegisteredAt:       e.RegisteredAt,
	}
}

func fromRecords(record EventRecord, rows []WaitlistEntryRecord) (*Event, error) {
	entries := make([]waitlist.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, waitlist.Entry{
			UserID:             row.UserID,
			RegisteredAt:       row.RegisteredAt,
			Status:             row.Status,
			CancellationReason: row.CancellationReason,
		})
	}
	w, err := waitlist.Restore(record.ID, record.Opening, record.Deadline, record.WaitlistCapacity, entries)
	if err != nil {
		return nil, fmt.Errorf("%w: restore waitlist: %v", ErrStorage, err)
	}
	return &Event{
		ID:        record.ID,
		Name:      record.Name,
		Capacity:  record.Capacity,
		Attendees: record.Attendees,
		Waitlist:  w,
		Version:   record.Version,
		CreatedBy: record.CreatedBy,
		CreatedAt: record.CreatedAt,
	}, nil
}
