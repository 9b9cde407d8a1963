package reservation

import (
	"context"
	"errors"
	"sort"
	"sync"

	"gameplace/models"
)

// Store is the persistence port. Lookups of missing records return ErrNotFound.
type Store interface {
	FindByID(ctx context.Context, id string) (*models.Reservation, error)
	FindByNumber(ctx context.Context, number string) (*models.Reservation, error)
	Save(ctx context.Context, r *models.Reservation) error
	Update(ctx context.Context, r *models.Reservation) error
	// FindByDeviceAndTimeSlot returns active reservations of the device that may
	// share an instant with slot on date. The result may be a superset; callers
	// apply the exact overlap test.
	FindByDeviceAndTimeSlot(ctx context.Context, deviceID, date string, slot models.TimeSlot) ([]models.Reservation, error)
	FindAvailableDevicesByType(ctx context.Context, deviceTypeID string) ([]models.Device, error)
	ListDevices(ctx context.Context, deviceTypeID string) ([]models.Device, error)
	FindDevice(ctx context.Context, id string) (*models.Device, error)
	UpdateDeviceStatus(ctx context.Context, id string, status models.DeviceStatus) error
	// NextSequence returns the next per-day counter value, starting at 1.
	NextSequence(ctx context.Context, day string) (int, error)
	List(ctx context.Context, f models.ReservationFilter) ([]models.Reservation, int64, error)
	// WithTx runs fn so that all writes inside commit together or not at all.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier is the notification port. Delivery is best effort.
type Notifier interface {
	Send(ctx context.Context, ev models.ReservationEvent) error
}

// Notifiers fans an event out to every notifier and joins their errors.
type Notifiers []Notifier

func (ns Notifiers) Send(ctx context.Context, ev models.ReservationEvent) error {
	var errs []error
	for _, n := range ns {
		if err := n.Send(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Locker serialises writers on a key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// lockAll takes every key in sorted order and returns one release func that
// is safe to call more than once.
func lockAll(ctx context.Context, l Locker, keys []string) (func(), error) {
	keys = append([]string(nil), keys...)
	sort.Strings(keys)
	var held []func()
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}
	return sync.OnceFunc(release), nil
}

// Actor is the user on whose behalf an operation runs.
type Actor struct {
	UserID  string
	IsAdmin bool
}
