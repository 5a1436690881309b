package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"eventdraw/internal/events"
	"eventdraw/internal/shared/config"
	"eventdraw/internal/shared/database"
	"eventdraw/internal/shared/middleware"
	"eventdraw/pkg/logger"
)

const (
	entrantsPerEvent = 25
	tokenTTL         = 24 * time.Hour
	organizerID      = "organizer-demo"
)

type Seeder struct {
	db      *database.DB
	service events.Service
}

func main() {
	fmt.Println("🌱 Starting eventdraw seeder...")

	cfg := config.Load()
	cfg.StoreDriver = config.StoreDriverPostgres
	ctx := context.Background()

	db, err := database.InitDB(ctx, cfg, logger.Discard())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{
		db:      db,
		service: events.NewService(events.NewRepository(db.PostgreSQL), events.NewLocalLocker(), logger.Discard()),
	}

	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}

	fmt.Println("\n🌱 Seeding events...")
	eventIDs, err := seeder.SeedEvents(ctx)
	if err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	if db.Redis != nil {
		if err := db.Redis.FlushDB(ctx).Err(); err != nil {
			log.Printf("Warning: Failed to clear Redis cache: %v", err)
		}
	}

	fmt.Println("\n🔑 Development tokens")
	if err := printTokens(cfg.JWT.Secret); err != nil {
		log.Fatalf("Failed to issue tokens: %v", err)
	}

	fmt.Printf("\n🎉 Seeding completed: %d events ready for drawing.\n", len(eventIDs))
}

// CleanDatabase empties the waitlist tables
func (s *Seeder) CleanDatabase() error {
	return s.db.PostgreSQL.Exec("TRUNCATE TABLE waitlist_entries, events RESTART IDENTITY CASCADE").Error
}

// SeedEvents creates one open, one full and one closed event, each with entrants
// admitted through the normal join rules.
func (s *Seeder) SeedEvents(ctx context.Context) ([]string, error) {
	now := time.Now().UTC()
	small := 10

	fixtures := []struct {
		req   events.CreateEventRequest
		label string
	}{
		{
			label: "open",
			req: events.CreateEventRequest{
				Name:     "Open Studio Night",
				Capacity: 5,
				Opening:  now.Add(-time.Hour),
				Deadline: now.Add(7 * 24 * time.Hour),
			},
		},
		{
			label: "capped waitlist",
			req: events.CreateEventRequest{
				Name:             "Chef's Table",
				Capacity:         2,
				Opening:          now.Add(-time.Hour),
				Deadline:         now.Add(48 * time.Hour),
				WaitlistCapacity: &small,
			},
		},
		{
			label: "registration closing soon",
			req: events.CreateEventRequest{
				Name:      "Rooftop Screening",
				Capacity:  8,
				Opening:   now.Add(-24 * time.Hour),
				Deadline:  now.Add(10 * time.Minute),
				Attendees: []string{"speaker-1", "speaker-2"},
			},
		},
	}

	ids := make([]string, 0, len(fixtures))
	for _, f := range fixtures {
		event, err := s.service.CreateEvent(ctx, organizerID, f.req)
		if err != nil {
			return nil, fmt.Errorf("failed to create event %q: %w", f.req.Name, err)
		}

		admitted := 0
		for i := 1; i <= entrantsPerEvent; i++ {
			result, err := s.service.JoinWaitlist(ctx, event.ID, fmt.Sprintf("user-%02d", i))
			if err != nil {
				return nil, fmt.Errorf("failed to join %s: %w", event.ID, err)
			}
			if result.OK() {
				admitted++
			}
		}

		ids = append(ids, event.ID)
		fmt.Printf("    ✅ %s (%s): id=%s, %d entrants\n", f.req.Name, f.label, event.ID, admitted)
	}
	return ids, nil
}

func printTokens(secret string) error {
	identities := []struct{ id, role string }{
		{organizerID, middleware.RoleOrganizer},
		{"user-01", middleware.RoleUser},
		{"user-02", middleware.RoleUser},
	}
	for _, ident := range identities {
		token, err := middleware.IssueAccessToken(secret, ident.id, ident.role, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Printf("  %-16s %-9s %s\n", ident.id, ident.role, token)
	}
	return nil
}
