// Package memstore is an in-process reservation.Store for local runs and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gameplace/models"
	"gameplace/reservation"
)

type Store struct {
	mu           sync.RWMutex
	txMu         sync.Mutex
	reservations map[string]models.Reservation
	devices      map[string]models.Device
	types        map[string]models.DeviceType
	counters     map[string]int
}

func New() *Store {
	return &Store{
		reservations: make(map[string]models.Reservation),
		devices:      make(map[string]models.Device),
		types:        make(map[string]models.DeviceType),
		counters:     make(map[string]int),
	}
}

func (s *Store) CreateDeviceType(ctx context.Context, t *models.DeviceType) error {
	defer s.writeLock(ctx)()
	if _, ok := s.types[t.ID]; ok {
		return errDuplicate("device type " + t.ID)
	}
	s.types[t.ID] = *t
	return nil
}

func (s *Store) ListDeviceTypes(ctx context.Context) ([]models.DeviceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DeviceType, 0, len(s.types))
	for _, t := range s.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) FindDeviceType(ctx context.Context, id string) (*models.DeviceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.types[id]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	return &t, nil
}

// CreateDevice registers a unit. Device numbers are unique per type.
func (s *Store) CreateDevice(ctx context.Context, d *models.Device) error {
	defer s.writeLock(ctx)()
	if _, ok := s.devices[d.ID]; ok {
		return errDuplicate("device id " + d.ID)
	}
	for _, existing := range s.devices {
		if existing.DeviceTypeID == d.DeviceTypeID && existing.DeviceNumber == d.DeviceNumber {
			return errDuplicate(fmt.Sprintf("device number %d", d.DeviceNumber))
		}
	}
	s.devices[d.ID] = *d
	return nil
}

// ListDevices returns every unit of deviceTypeID (all types when empty),
// ordered by type then number.
func (s *Store) ListDevices(ctx context.Context, deviceTypeID string) ([]models.Device, error) {
	return s.devicesOfType(deviceTypeID), nil
}

func (s *Store) devicesOfType(deviceTypeID string) []models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Device
	for _, d := range s.devices {
		if deviceTypeID == "" || d.DeviceTypeID == deviceTypeID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceTypeID != out[j].DeviceTypeID {
			return out[i].DeviceTypeID < out[j].DeviceTypeID
		}
		return out[i].DeviceNumber < out[j].DeviceNumber
	})
	return out
}

func (s *Store) FindByID(ctx context.Context, id string) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	return &r, nil
}

func (s *Store) FindByNumber(ctx context.Context, number string) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reservations {
		if r.ReservationNumber == number {
			r := r
			return &r, nil
		}
	}
	return nil, reservation.ErrNotFound
}

func (s *Store) Save(ctx context.Context, r *models.Reservation) error {
	defer s.writeLock(ctx)()
	if _, ok := s.reservations[r.ID]; ok {
		return errDuplicate("reservation id " + r.ID)
	}
	for _, existing := range s.reservations {
		if existing.ReservationNumber == r.ReservationNumber {
			return errDuplicate("reservation number " + r.ReservationNumber)
		}
	}
	s.reservations[r.ID] = *r
	return nil
}

func (s *Store) Update(ctx context.Context, r *models.Reservation) error {
	defer s.writeLock(ctx)()
	if _, ok := s.reservations[r.ID]; !ok {
		return reservation.ErrNotFound
	}
	s.reservations[r.ID] = *r
	return nil
}

func (s *Store) FindByDeviceAndTimeSlot(ctx context.Context, deviceID, date string, slot models.TimeSlot) ([]models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.DeviceID != deviceID || !r.Status.IsActive() {
			continue
		}
		if reservation.SlotsOverlap(date, slot, r.Date, r.TimeSlot) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindAvailableDevicesByType(ctx context.Context, deviceTypeID string) ([]models.Device, error) {
	var out []models.Device
	for _, d := range s.devicesOfType(deviceTypeID) {
		if d.Status == models.DeviceAvailable {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) FindDevice(ctx context.Context, id string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	return &d, nil
}

func (s *Store) UpdateDeviceStatus(ctx context.Context, id string, status models.DeviceStatus) error {
	defer s.writeLock(ctx)()
	d, ok := s.devices[id]
	if !ok {
		return reservation.ErrNotFound
	}
	d.Status = status
	s.devices[id] = d
	return nil
}

func (s *Store) NextSequence(ctx context.Context, day string) (int, error) {
	defer s.writeLock(ctx)()
	s.counters[day]++
	return s.counters[day], nil
}

func (s *Store) List(ctx context.Context, f models.ReservationFilter) ([]models.Reservation, int64, error) {
	s.mu.RLock()
	var matched []models.Reservation
	for _, r := range s.reservations {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.DeviceTypeID != "" && r.DeviceTypeID != f.DeviceTypeID {
			continue
		}
		if f.From != "" && r.Date < f.From {
			continue
		}
		if f.To != "" && r.Date > f.To {
			continue
		}
		matched = append(matched, r)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		if a.TimeSlot.StartHour != b.TimeSlot.StartHour {
			return a.TimeSlot.StartHour < b.TimeSlot.StartHour
		}
		return a.ReservationNumber < b.ReservationNumber
	})
	total := int64(len(matched))
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		return matched, total, nil
	}
	from := (page - 1) * limit
	if from >= len(matched) {
		return []models.Reservation{}, total, nil
	}
	to := min(from+limit, len(matched))
	return matched[from:to], total, nil
}

type txKey struct{}

// WithTx serialises transactions and rolls every map back if fn fails. Writes
// made outside fn wait for it to finish, so a rollback never drops them.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	ctx = context.WithValue(ctx, txKey{}, s)

	s.mu.RLock()
	snapshot := s.snapshot()
	s.mu.RUnlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.reservations, s.devices, s.counters = snapshot.reservations, snapshot.devices, snapshot.counters
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// writeLock takes mu for a write, and txMu too unless ctx belongs to this
// store's running transaction.
func (s *Store) writeLock(ctx context.Context) (unlock func()) {
	if s.inTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

type state struct {
	reservations map[string]models.Reservation
	devices      map[string]models.Device
	counters     map[string]int
}

func (s *Store) snapshot() state {
	st := state{
		reservations: make(map[string]models.Reservation, len(s.reservations)),
		devices:      make(map[string]models.Device, len(s.devices)),
		counters:     make(map[string]int, len(s.counters)),
	}
	for k, v := range s.reservations {
		st.reservations[k] = v
	}
	for k, v := range s.devices {
		st.devices[k] = v
	}
	for k, v := range s.counters {
		st.counters[k] = v
	}
	return st
}

func errDuplicate(what string) error {
	return fmt.Errorf("%s: %w", what, reservation.ErrDuplicate)
}
