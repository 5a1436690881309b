package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"eventdraw/internal/shared/constants"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serialises read-modify-write sequences on one event. The returned unlock
// func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, eventID string) (unlock func(), err error)
}

// LocalLocker is a keyed lock for a single process. Keys are released from the map
// once nobody holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyedLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, eventID string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[eventID]
	if !ok {
		kl = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[eventID] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(eventID, kl)
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(eventID, kl)
		})
	}, nil
}

func (l *LocalLocker) release(eventID string, kl *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, eventID)
	}
}

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a lease-based lock shared by every instance talking to the same redis.
// The lease expires after ttl so a crashed holder cannot block an event forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		retry:  25 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, eventID string) (func(), error) {
	key := constants.BuildEventLockKey(eventID)
	token := uuid.NewString()

	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: acquire lock: %v", ErrStorage, err)
		}
		if acquired {
			break
		}
		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, waitCtx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be done; release with a short fresh one.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = unlockScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		})
	}, nil
}
