package rdx

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a key stays held past the wait deadline.
var ErrLockTimeout = errors.New("lock wait timed out")

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the lease out only if we still own it.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker is a Redis lease lock (SET NX PX) shared by every instance. A held
// lease is renewed every ttl/3 until released.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	lost   func(key string)
}

// NewLocker returns a Locker whose leases expire after ttl. Lock gives up
// after wait.
func NewLocker(client *redis.Client, ttl, wait time.Duration) *Locker {
	return &Locker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		retry:  25 * time.Millisecond,
		lost:   logLostLease,
	}
}

func logLostLease(key string) {
	log.Printf("[Locker] lease on %s was lost while held", key)
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s: %w", key, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	var lostEarly bool
	go func() {
		lostEarly = l.keepAlive(key, token, stop)
		close(renewed)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-renewed
			// The caller's ctx may already be done; release must still run.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			n, err := releaseScript.Run(rctx, l.client, []string{key}, token).Int64()
			if err != nil {
				log.Printf("[Locker] release %s failed: %v", key, err)
				return
			}
			if n == 0 && !lostEarly {
				l.lost(key)
			}
		})
	}, nil
}

// keepAlive renews the lease until stop closes. It reports whether the lease
// was found to belong to someone else.
func (l *Locker) keepAlive(key, token string, stop <-chan struct{}) bool {
	every := l.ttl / 3
	if every <= 0 {
		<-stop
		return false
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return false
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), every)
		n, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			log.Printf("[Locker] renew %s failed: %v", key, err)
			continue
		}
		if n == 0 {
			l.lost(key)
			return true
		}
	}
}
