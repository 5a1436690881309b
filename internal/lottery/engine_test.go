package lottery_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eventdraw/internal/events"
	"eventdraw/internal/lottery"
	"eventdraw/internal/waitlist"
	"eventdraw/pkg/logger"

	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

type recordingDispatcher struct {
	mu     sync.Mutex
	sent   []lottery.Notification
	failOn map[string]bool
	hook   func(n lottery.Notification)
}

func (d *recordingDispatcher) Notify(_ context.Context, n lottery.Notification) error {
	if d.hook != nil {
		d.hook(n)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOn[n.UserID] {
		return errors.New("push gateway unavailable")
	}
	d.sent = append(d.sent, n)
	return nil
}

func (d *recordingDispatcher) recipients(kind lottery.MessageKind) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, n := range d.sent {
		if n.Kind == kind {
			out = append(out, n.UserID)
		}
	}
	return out
}

// faultyStore lets a test break or observe individual store calls.
type faultyStore struct {
	events.Store
	updateErr error
	onGet     func()
	updates   int32
}

func (s *faultyStore) GetEvent(ctx context.Context, id string) (*events.Event, error) {
	e, err := s.Store.GetEvent(ctx, id)
	if s.onGet != nil {
		s.onGet()
	}
	return e, err
}

func (s *faultyStore) UpdateEntryStatuses(ctx context.Context, id string, u []events.StatusUpdate) error {
	atomic.AddInt32(&s.updates, 1)
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.Store.UpdateEntryStatuses(ctx, id, u)
}

func seedEvent(store events.Store, id string, capacity, pending int) {
	w, _ := waitlist.New(id, t0.Add(-time.Hour), t0.Add(time.Hour), nil)
	for i := 0; i < pending; i++ {
		w.Join(fmt.Sprintf("u%02d", i), t0)
	}
	err := store.CreateEvent(context.Background(), &events.Event{ID: id, Name: "Harbour Run", Capacity: capacity, Waitlist: w})
	if err != nil {
		panic(err)
	}
}

func seeded(seed uint64) lottery.Option {
	var calls uint64
	return lottery.WithRandSource(func() *rand.Rand {
		return rand.New(rand.NewPCG(seed, atomic.AddUint64(&calls, 1)))
	})
}

func newEngine(store events.Store, d lottery.NotificationDispatcher, opts ...lottery.Option) *lottery.Engine {
	opts = append([]lottery.Option{seeded(99), lottery.WithLogger(logger.Discard())}, opts...)
	return lottery.NewEngine(store, events.NewLocalLocker(), d, opts...)
}

func statuses(store events.Store, id string) *waitlist.Waitlist {
	e, err := store.GetEvent(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return e.Waitlist
}

func TestSelectWinnersScenarios(t *testing.T) {
	Convey("Given an event with capacity 3 and 5 pending entrants", t, func() {
		ctx := context.Background()
		store := events.NewMemoryStore()
		seedEvent(store, "evt", 3, 5)
		d := &recordingDispatcher{}
		engine := newEngine(store, d)

		Convey("When 10 winners are requested", func() {
			res, err := engine.SelectWinners(ctx, "evt", 10)

			Convey("Then exactly the capacity is drawn", func() {
				So(err, ShouldBeNil)
				So(res.WinnersAdded, ShouldEqual, 3)
				So(res.Winners, ShouldHaveLength, 3)
				So(res.RemainingCapacity, ShouldEqual, 0)
				So(res.Info, ShouldBeEmpty)
				So(statuses(store, "evt").CountByStatus(waitlist.StatusWon), ShouldEqual, 3)
			})

			Convey("Then each winner is told once", func() {
				So(d.recipients(lottery.KindSelected), ShouldResemble, res.Winners)
			})

			Convey("And another winner is requested", func() {
				again, err := engine.SelectWinners(ctx, "evt", 1)

				Convey("Then there is no capacity left", func() {
					So(err, ShouldBeNil)
					So(again.WinnersAdded, ShouldEqual, 0)
					So(again.Info, ShouldEqual, lottery.InfoNoCapacity)
					So(again.Winners, ShouldBeEmpty)
				})
			})
		})
	})

	Convey("Given an event with capacity 3 and nobody waiting", t, func() {
		store := events.NewMemoryStore()
		seedEvent(store, "evt", 3, 0)
		engine := newEngine(store, &recordingDispatcher{})

		Convey("When 2 winners are requested", func() {
			res, err := engine.SelectWinners(context.Background(), "evt", 2)

			Convey("Then nothing is drawn", func() {
				So(err, ShouldBeNil)
				So(res.WinnersAdded, ShouldEqual, 0)
				So(res.RemainingCapacity, ShouldEqual, 3)
				So(res.Info, ShouldEqual, lottery.InfoNoPending)
			})
		})
	})

	Convey("Given bad requests", t, func() {
		store := events.NewMemoryStore()
		seedEvent(store, "evt", 3, 3)
		engine := newEngine(store, &recordingDispatcher{})
		ctx := context.Background()

		Convey("Then a non-positive count is a caller error", func() {
			_, err := engine.SelectWinners(ctx, "evt", 0)
			So(errors.Is(err, lottery.ErrInvalidArgument), ShouldBeTrue)
			_, err = engine.DrawReplacement(ctx, "evt", -1)
			So(errors.Is(err, lottery.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("Then an unknown event is not found", func() {
			_, err := engine.SelectWinners(ctx, "nope", 1)
			So(errors.Is(err, events.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then an empty event id is a caller error", func() {
			_, err := engine.SelectWinners(ctx, "", 1)
			So(errors.Is(err, lottery.ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestDrawReplacement(t *testing.T) {
	Convey("Given a full draw where one winner declines", t, func() {
		ctx := context.Background()
		store := events.NewMemoryStore()
		seedEvent(store, "evt", 2, 6)
		d := &recordingDispatcher{}
		engine := newEngine(store, d)

		first, err := engine.SelectWinners(ctx, "evt", 2)
		So(err, ShouldBeNil)
		decliner := first.Winners[0]
		So(store.UpdateEntryStatuses(ctx, "evt", []events.StatusUpdate{{UserID: decliner, Status: waitlist.StatusDeclined}}), ShouldBeNil)

		Convey("When a replacement is drawn", func() {
			res, err := engine.DrawReplacement(ctx, "evt", 5)

			Convey("Then exactly the freed spot is filled by someone new", func() {
				So(err, ShouldBeNil)
				So(res.WinnersAdded, ShouldEqual, 1)
				So(res.RemainingCapacity, ShouldEqual, 0)
				So(first.Winners, ShouldNotContain, res.Winners[0])
				So(res.Winners[0], ShouldNotEqual, decliner)
			})

			Convey("Then the new winner gets the replacement message", func() {
				So(d.recipients(lottery.KindReplacement), ShouldResemble, res.Winners)
			})
		})
	})
}

func TestSelectionProperties(t *testing.T) {
	Convey("Given random sequences of draws, declines and cancellations", t, func() {
		ctx := context.Background()
		rng := rand.New(rand.NewPCG(2026, 6))

		violations := 0
		for trial := 0; trial < 40; trial++ {
			id := fmt.Sprintf("evt-%d", trial)
			capacity := 1 + rng.IntN(6)
			store := events.NewMemoryStore()
			seedEvent(store, id, capacity, rng.IntN(15))
			engine := newEngine(store, &recordingDispatcher{}, seeded(uint64(trial)))
			everWon := map[string]bool{}

			for step := 0; step < 12; step++ {
				before := statuses(store, id)
				remainingBefore := max(0, capacity-before.CapacityUsed())
				pendingBefore := len(before.Pending())
				n := 1 + rng.IntN(5)

				var res *lottery.SelectionResult
				var err error
				if rng.IntN(2) == 0 {
					res, err = engine.SelectWinners(ctx, id, n)
				} else {
					res, err = engine.DrawReplacement(ctx, id, n)
				}
				if err != nil {
					violations++
					continue
				}

				if res.WinnersAdded > min(n, remainingBefore, pendingBefore) {
					violations++
				}
				for _, w := range res.Winners {
					if everWon[w] {
						violations++
					}
					everWon[w] = true
				}

				after := statuses(store, id)
				if after.CapacityUsed() > capacity {
					violations++
				}

				// Free some spots the way entrants and organizers would.
				for _, e := range after.Filter(waitlist.StatusWon) {
					switch rng.IntN(4) {
					case 0:
						_ = store.UpdateEntryStatuses(ctx, id, []events.StatusUpdate{{UserID: e.UserID, Status: waitlist.StatusDeclined}})
					case 1:
						_ = store.UpdateEntryStatuses(ctx, id, []events.StatusUpdate{{UserID: e.UserID, Status: waitlist.StatusCancelled, Reason: "no show"}})
					case 2:
						_ = store.UpdateEntryStatuses(ctx, id, []events.StatusUpdate{{UserID: e.UserID, Status: waitlist.StatusAccepted}})
					}
				}
			}
		}

		Convey("Then capacity, boundedness and single selection always hold", func() {
			So(violations, ShouldEqual, 0)
		})
	})
}

func TestSelectionFailures(t *testing.T) {
	Convey("Given an event with 4 pending entrants", t, func() {
		ctx := context.Background()
		mem := events.NewMemoryStore()
		seedEvent(mem, "evt", 3, 4)
		store := &faultyStore{Store: mem}
		d := &recordingDispatcher{}

		Convey("When the status write fails", func() {
			store.updateErr = errors.New("connection reset")
			res, err := newEngine(store, d).SelectWinners(ctx, "evt", 2)

			Convey("Then a storage error is returned and nothing changed", func() {
				So(res, ShouldBeNil)
				So(errors.Is(err, events.ErrStorage), ShouldBeTrue)
				So(statuses(mem, "evt").CountByStatus(waitlist.StatusWon), ShouldEqual, 0)
				So(d.recipients(lottery.KindSelected), ShouldBeEmpty)
			})
		})

		Convey("When the store reports a conflict", func() {
			store.updateErr = fmt.Errorf("%w: stale", events.ErrConflict)
			_, err := newEngine(store, d).SelectWinners(ctx, "evt", 2)

			Convey("Then it surfaces as a storage failure", func() {
				So(errors.Is(err, events.ErrStorage), ShouldBeTrue)
				So(errors.Is(err, events.ErrConflict), ShouldBeTrue)
			})
		})

		Convey("When the caller cancels before the write", func() {
			cctx, cancel := context.WithCancel(ctx)
			store.onGet = cancel
			_, err := newEngine(store, d).SelectWinners(cctx, "evt", 2)

			Convey("Then no status changes", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(atomic.LoadInt32(&store.updates), ShouldEqual, 0)
				So(statuses(mem, "evt").CountByStatus(waitlist.StatusPending), ShouldEqual, 4)
			})
		})

		Convey("When one winner cannot be notified", func() {
			engine := newEngine(store, d)
			snapshot, _ := mem.GetEvent(ctx, "evt")
			d.failOn = map[string]bool{}
			for _, e := range snapshot.Waitlist.Entries() {
				d.failOn[e.UserID] = e.UserID == "u00" || e.UserID == "u01"
			}
			res, err := engine.SelectWinners(ctx, "evt", 3)

			Convey("Then the draw stands and the failures are reported", func() {
				So(err, ShouldBeNil)
				So(res.WinnersAdded, ShouldEqual, 3)
				So(statuses(mem, "evt").CountByStatus(waitlist.StatusWon), ShouldEqual, 3)
				So(len(res.NotificationFailures)+len(d.recipients(lottery.KindSelected)), ShouldEqual, 3)
				for _, f := range res.NotificationFailures {
					So(d.failOn[f.UserID], ShouldBeTrue)
				}
			})
		})

		Convey("When the caller cancels while notifications go out", func() {
			cctx, cancel := context.WithCancel(ctx)
			d.hook = func(lottery.Notification) { cancel() }
			res, err := newEngine(store, d).SelectWinners(cctx, "evt", 3)

			Convey("Then the winners stay written and unsent messages are reported", func() {
				So(err, ShouldBeNil)
				So(statuses(mem, "evt").CountByStatus(waitlist.StatusWon), ShouldEqual, 3)
				So(res.NotificationFailures, ShouldHaveLength, 2)
			})
		})

		Convey("When the dispatcher panics", func() {
			panicky := lottery.DispatcherFunc(func(context.Context, lottery.Notification) error { panic("boom") })
			res, err := newEngine(store, panicky).SelectWinners(ctx, "evt", 1)

			Convey("Then the draw still succeeds", func() {
				So(err, ShouldBeNil)
				So(res.NotificationFailures, ShouldHaveLength, 1)
			})
		})
	})
}

func TestConcurrentDraws(t *testing.T) {
	Convey("Given capacity 5 and 30 pending entrants", t, func() {
		ctx := context.Background()
		store := events.NewMemoryStore()
		seedEvent(store, "evt", 5, 30)
		engine := lottery.NewEngine(store, events.NewLocalLocker(), &recordingDispatcher{}, lottery.WithLogger(logger.Discard()))

		Convey("When 20 organizers draw one winner at the same time", func() {
			var wg sync.WaitGroup
			var added int32
			var mu sync.Mutex
			seen := map[string]int{}
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := engine.SelectWinners(ctx, "evt", 1)
					if err != nil {
						return
					}
					atomic.AddInt32(&added, int32(res.WinnersAdded))
					mu.Lock()
					for _, w := range res.Winners {
						seen[w]++
					}
					mu.Unlock()
				}()
			}
			wg.Wait()

			Convey("Then exactly the capacity is filled with distinct winners", func() {
				So(atomic.LoadInt32(&added), ShouldEqual, 5)
				So(len(seen), ShouldEqual, 5)
				So(statuses(store, "evt").CountByStatus(waitlist.StatusWon), ShouldEqual, 5)
			})
		})
	})
}

// gatedStore holds the first two readers until both have loaded the event.
type gatedStore struct {
	events.Store
	arrived sync.WaitGroup
	readers int32
}

func newGatedStore(inner events.Store) *gatedStore {
	s := &gatedStore{Store: inner}
	s.arrived.Add(2)
	return s
}

func (s *gatedStore) GetEvent(ctx context.Context, id string) (*events.Event, error) {
	e, err := s.Store.GetEvent(ctx, id)
	if atomic.AddInt32(&s.readers, 1) <= 2 {
		s.arrived.Done()
		s.arrived.Wait()
	}
	return e, err
}

func TestDrawsWithSeparateLockers(t *testing.T) {
	Convey("Given two engines that share a store but not a locker", t, func() {
		ctx := context.Background()
		base := events.NewMemoryStore()
		seedEvent(base, "evt", 2, 20)
		store := newGatedStore(base)
		first := lottery.NewEngine(store, events.NewLocalLocker(), &recordingDispatcher{}, seeded(1), lottery.WithLogger(logger.Discard()))
		second := lottery.NewEngine(store, events.NewLocalLocker(), &recordingDispatcher{}, seeded(2), lottery.WithLogger(logger.Discard()))

		Convey("When both draw the full capacity from the same snapshot", func() {
			var wg sync.WaitGroup
			var added int32
			errs := make([]error, 2)
			for i, engine := range []*lottery.Engine{first, second} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := engine.SelectWinners(ctx, "evt", 2)
					errs[i] = err
					if err == nil {
						atomic.AddInt32(&added, int32(res.WinnersAdded))
					}
				}()
			}
			wg.Wait()

			Convey("Then the store keeps winners within capacity", func() {
				So(statuses(base, "evt").CountByStatus(waitlist.StatusWon), ShouldEqual, 2)
				So(atomic.LoadInt32(&added), ShouldEqual, 2)
			})

			Convey("Then the losing draw reports a conflict", func() {
				conflicts := 0
				for _, err := range errs {
					if err != nil {
						So(errors.Is(err, events.ErrConflict), ShouldBeTrue)
						So(errors.Is(err, events.ErrStorage), ShouldBeTrue)
						conflicts++
					}
				}
				So(conflicts, ShouldEqual, 1)
			})
		})
	})
}

func TestUniformSelectionThroughEngine(t *testing.T) {
	Convey("Given a fixed pool of 8 entrants and 2 spots", t, func() {
		const trials = 4000
		counts := map[string]int{}
		var calls uint64
		src := lottery.WithRandSource(func() *rand.Rand {
			calls++
			return rand.New(rand.NewPCG(7, calls))
		})

		for i := 0; i < trials; i++ {
			store := events.NewMemoryStore()
			seedEvent(store, "evt", 2, 8)
			res, err := newEngine(store, &recordingDispatcher{}, src).SelectWinners(context.Background(), "evt", 2)
			if err != nil {
				continue
			}
			for _, w := range res.Winners {
				counts[w]++
			}
		}

		Convey("Then each entrant wins about a quarter of the time", func() {
			So(counts, ShouldHaveLength, 8)
			for _, c := range counts {
				So(float64(c)/trials, ShouldAlmostEqual, 0.25, 0.04)
			}
		})
	})
}

func TestCloseDraw(t *testing.T) {
	Convey("Given a draw with winners and leftover entrants", t, func() {
		ctx := context.Background()
		store := events.NewMemoryStore()
		seedEvent(store, "evt", 2, 5)
		d := &recordingDispatcher{}
		engine := newEngine(store, d)
		_, err := engine.SelectWinners(ctx, "evt", 2)
		So(err, ShouldBeNil)

		Convey("When the draw is closed", func() {
			res, err := engine.CloseDraw(ctx, "evt")

			Convey("Then every leftover entrant is not selected and told so", func() {
				So(err, ShouldBeNil)
				So(res.NotSelected, ShouldHaveLength, 3)
				w := statuses(store, "evt")
				So(w.CountByStatus(waitlist.StatusNotSelected), ShouldEqual, 3)
				So(w.CountByStatus(waitlist.StatusWon), ShouldEqual, 2)
				So(d.recipients(lottery.KindNotSelected), ShouldResemble, res.NotSelected)
			})

			Convey("And a winner later declines", func() {
				won := statuses(store, "evt").Filter(waitlist.StatusWon)
				So(store.UpdateEntryStatuses(ctx, "evt", []events.StatusUpdate{{UserID: won[0].UserID, Status: waitlist.StatusDeclined}}), ShouldBeNil)

				Convey("Then a replacement finds nobody pending", func() {
					rep, err := engine.DrawReplacement(ctx, "evt", 1)
					So(err, ShouldBeNil)
					So(rep.Info, ShouldEqual, lottery.InfoNoPending)
				})
			})

			Convey("And it is closed again", func() {
				again, err := engine.CloseDraw(ctx, "evt")

				Convey("Then nothing else changes", func() {
					So(err, ShouldBeNil)
					So(again.NotSelected, ShouldBeEmpty)
				})
			})
		})
	})
}
