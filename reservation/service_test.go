package reservation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gameplace/memstore"
	"gameplace/models"
	"gameplace/reservation"
)

var (
	admin = reservation.Actor{UserID: "admin-1", IsAdmin: true}
	alice = reservation.Actor{UserID: "alice"}
	bob   = reservation.Actor{UserID: "bob"}

	t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

const (
	typeID = "ps5"
	day    = "2026-03-05"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []models.ReservationEvent
	err    error
}

func (r *recorder) Send(_ context.Context, ev models.ReservationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store *memstore.Store
	svc   *reservation.Service
	clock *fakeClock
	sent  *recorder
}

// newFixture registers units ps5-1..ps5-n of one device type.
func newFixture(t *testing.T, units int) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memstore.New(), units)
}

func newFixtureWithStore(t *testing.T, store reservation.Store, units int) *fixture {
	t.Helper()
	mem := memstoreOf(store)
	ctx := context.Background()
	if err := mem.CreateDeviceType(ctx, &models.DeviceType{ID: typeID, Name: "PlayStation 5"}); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= units; i++ {
		d := &models.Device{ID: deviceID(i), DeviceTypeID: typeID, DeviceNumber: i, Status: models.DeviceAvailable}
		if err := mem.CreateDevice(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	clock := &fakeClock{t: t0}
	sent := &recorder{}
	svc := reservation.NewService(store, sent, nil,
		reservation.WithClock(clock.Now),
		reservation.WithLocation(time.UTC),
	)
	return &fixture{store: mem, svc: svc, clock: clock, sent: sent}
}

func memstoreOf(s reservation.Store) *memstore.Store {
	switch v := s.(type) {
	case *memstore.Store:
		return v
	case *injectingStore:
		return v.Store
	}
	panic(fmt.Sprintf("unexpected store %T", s))
}

func deviceID(n int) string { return fmt.Sprintf("ps5-%d", n) }

func (f *fixture) create(t *testing.T, actor reservation.Actor, req reservation.CreateRequest) *models.Reservation {
	t.Helper()
	r, err := f.svc.Create(context.Background(), actor, req)
	if err != nil {
		t.Fatalf("create %+v: %v", req, err)
	}
	return r
}

func (f *fixture) status(t *testing.T, id string) models.ReservationStatus {
	t.Helper()
	r, err := f.store.FindByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return r.Status
}

func onDevice(n int, date string, start, end int) reservation.CreateRequest {
	return reservation.CreateRequest{DeviceID: deviceID(n), Date: date, Slot: models.TimeSlot{StartHour: start, EndHour: end}}
}

func ofType(date string, start, end int) reservation.CreateRequest {
	return reservation.CreateRequest{DeviceTypeID: typeID, Date: date, Slot: models.TimeSlot{StartHour: start, EndHour: end}}
}

func wantKind(t *testing.T, err error, kind reservation.Kind) {
	t.Helper()
	if got := reservation.KindOf(err); got != kind {
		t.Fatalf("got %v (%s), want %s", err, got, kind)
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	r := f.create(t, alice, onDevice(1, day, 14, 16))
	if r.Status != models.StatusPending || r.UserID != "alice" || r.CreatedByUserID != "alice" {
		t.Errorf("unexpected reservation %+v", r)
	}
	if r.DeviceTypeID != typeID {
		t.Errorf("device type not derived from device: %q", r.DeviceTypeID)
	}
	if r.ReservationNumber != "GP-20260301-0001" {
		t.Errorf("number = %q", r.ReservationNumber)
	}

	second := f.create(t, bob, onDevice(1, day, 16, 18))
	if second.ReservationNumber != "GP-20260301-0002" {
		t.Errorf("second number = %q", second.ReservationNumber)
	}

	_, err := f.svc.Create(ctx, bob, onDevice(1, day, 15, 17))
	wantKind(t, err, reservation.KindTimeSlotConflict)
	var derr *reservation.Error
	if !errors.As(err, &derr) || len(derr.Conflicts) != 2 {
		t.Errorf("conflicts = %v, want both existing ids", err)
	}
	if derr != nil && derr.Retryable {
		t.Error("create-time conflict should not be retryable")
	}

	// Type-only bookings stay unassigned and do not block each other.
	a := f.create(t, alice, ofType(day, 14, 16))
	b := f.create(t, bob, ofType(day, 14, 16))
	if a.DeviceID != "" || b.DeviceID != "" {
		t.Error("type-only booking got a device before approval")
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	if err := f.store.UpdateDeviceStatus(ctx, deviceID(2), models.DeviceMaintenance); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		actor reservation.Actor
		req   reservation.CreateRequest
		want  reservation.Kind
	}{
		{"anonymous", reservation.Actor{}, onDevice(1, day, 14, 16), reservation.KindPermissionDenied},
		{"inverted slot", alice, onDevice(1, day, 16, 14), reservation.KindValidation},
		{"beyond timeline", alice, onDevice(1, day, 28, 31), reservation.KindValidation},
		{"bad date", alice, onDevice(1, "5 March", 14, 16), reservation.KindValidation},
		{"already started", alice, onDevice(1, "2026-03-01", 10, 12), reservation.KindValidation},
		{"no target", alice, reservation.CreateRequest{Date: day, Slot: models.TimeSlot{StartHour: 1, EndHour: 2}}, reservation.KindValidation},
		{"unknown device", alice, reservation.CreateRequest{DeviceID: "nope", Date: day, Slot: models.TimeSlot{StartHour: 1, EndHour: 2}}, reservation.KindNotFound},
		{"device in maintenance", alice, onDevice(2, day, 14, 16), reservation.KindValidation},
		{"proxy booking by user", reservation.Actor{UserID: "alice"}, reservation.CreateRequest{UserID: "bob", DeviceID: deviceID(1), Date: day, Slot: models.TimeSlot{StartHour: 1, EndHour: 2}}, reservation.KindPermissionDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.actor, tc.req)
			wantKind(t, err, tc.want)
		})
	}

	req := onDevice(1, day, 14, 16)
	req.UserID = "bob"
	r := f.create(t, admin, req)
	if r.UserID != "bob" || r.CreatedByUserID != admin.UserID {
		t.Errorf("proxy booking recorded user=%q createdBy=%q", r.UserID, r.CreatedByUserID)
	}
}

func TestApproveTwiceFails(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	r := f.create(t, alice, onDevice(1, day, 14, 16))

	got, err := f.svc.Approve(ctx, admin, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusApproved || got.DeviceID != deviceID(1) {
		t.Errorf("approve = %+v", got)
	}

	_, err = f.svc.Approve(ctx, admin, r.ID)
	wantKind(t, err, reservation.KindInvalidTransition)
	if !strings.Contains(reservation.Message(err), "approved") {
		t.Errorf("message should name the current state: %q", reservation.Message(err))
	}
	if f.status(t, r.ID) != models.StatusApproved {
		t.Error("failed approve changed state")
	}

	_, err = f.svc.Approve(ctx, alice, r.ID)
	wantKind(t, err, reservation.KindPermissionDenied)

	_, err = f.svc.Approve(ctx, admin, "missing")
	wantKind(t, err, reservation.KindNotFound)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	r := f.create(t, alice, onDevice(1, day, 14, 16))

	_, err := f.svc.Reject(ctx, admin, r.ID, "   ")
	wantKind(t, err, reservation.KindValidation)
	if f.status(t, r.ID) != models.StatusPending {
		t.Fatal("empty reason changed state")
	}

	got, err := f.svc.Reject(ctx, admin, r.ID, "venue closed")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusRejected || got.RejectionReason != "venue closed" {
		t.Errorf("reject = %+v", got)
	}

	// The slot is free again.
	f.create(t, bob, onDevice(1, day, 14, 16))
}

func TestCancelCutoff(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	// t0 is 2026-03-01 10:00; these start 24h and 23h later.
	onTime := f.create(t, alice, onDevice(1, "2026-03-02", 10, 12))
	late := f.create(t, alice, onDevice(1, "2026-03-02", 9, 10))

	_, err := f.svc.Cancel(ctx, bob, onTime.ID, "")
	wantKind(t, err, reservation.KindPermissionDenied)

	got, err := f.svc.Cancel(ctx, alice, onTime.ID, "plans changed")
	if err != nil {
		t.Fatalf("cancel at exactly 24h: %v", err)
	}
	if got.Status != models.StatusCancelled || got.CancelledAt == nil || got.CancellationReason != "plans changed" {
		t.Errorf("cancel = %+v", got)
	}

	_, err = f.svc.Cancel(ctx, alice, late.ID, "")
	wantKind(t, err, reservation.KindCancellationExpired)
	_, err = f.svc.Cancel(ctx, admin, late.ID, "")
	wantKind(t, err, reservation.KindCancellationExpired)
	if f.status(t, late.ID) != models.StatusPending {
		t.Error("expired cancel changed state")
	}

	_, err = f.svc.Cancel(ctx, alice, onTime.ID, "")
	wantKind(t, err, reservation.KindInvalidTransition)
}

func TestCheckInLifecycle(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	r := f.create(t, alice, onDevice(1, "2026-03-01", 12, 14))
	if _, err := f.svc.Approve(ctx, admin, r.ID); err != nil {
		t.Fatal(err)
	}

	cash := reservation.Payment{Method: "cash", Amount: 3000}

	_, err := f.svc.CheckIn(ctx, admin, r.ID, cash)
	wantKind(t, err, reservation.KindCheckInWindow)

	_, err = f.svc.CheckIn(ctx, admin, r.ID, reservation.Payment{Method: "barter"})
	wantKind(t, err, reservation.KindValidation)
	_, err = f.svc.CheckIn(ctx, admin, r.ID, reservation.Payment{Method: "card", Amount: -1})
	wantKind(t, err, reservation.KindValidation)

	f.clock.Set(time.Date(2026, 3, 1, 11, 45, 0, 0, time.UTC))
	got, err := f.svc.CheckIn(ctx, admin, r.ID, cash)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCheckedIn || got.CheckInTime == nil || got.PaymentMethod != "cash" || got.PaymentAmount != 3000 {
		t.Errorf("check-in = %+v", got)
	}
	if d, _ := f.store.FindDevice(ctx, deviceID(1)); d.Status != models.DeviceRental {
		t.Errorf("device status after check-in = %s", d.Status)
	}

	_, err = f.svc.MarkNoShow(ctx, admin, r.ID)
	wantKind(t, err, reservation.KindInvalidTransition)
	_, err = f.svc.CheckIn(ctx, admin, r.ID, cash)
	wantKind(t, err, reservation.KindInvalidTransition)

	f.clock.Set(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC))
	done, err := f.svc.Complete(ctx, admin, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != models.StatusCompleted || done.CompletedAt == nil {
		t.Errorf("complete = %+v", done)
	}
	if d, _ := f.store.FindDevice(ctx, deviceID(1)); d.Status != models.DeviceAvailable {
		t.Errorf("device status after complete = %s", d.Status)
	}
	_, err = f.svc.Complete(ctx, admin, r.ID)
	wantKind(t, err, reservation.KindInvalidTransition)
}

func TestNoShowAfterGrace(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	r := f.create(t, alice, onDevice(1, "2026-03-01", 12, 14))

	_, err := f.svc.MarkNoShow(ctx, admin, r.ID)
	wantKind(t, err, reservation.KindInvalidTransition)

	if _, err := f.svc.Approve(ctx, admin, r.ID); err != nil {
		t.Fatal(err)
	}
	f.clock.Set(time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC))
	_, err = f.svc.MarkNoShow(ctx, admin, r.ID)
	wantKind(t, err, reservation.KindCheckInWindow)

	f.clock.Set(time.Date(2026, 3, 1, 12, 16, 0, 0, time.UTC))
	got, err := f.svc.MarkNoShow(ctx, admin, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusNoShow {
		t.Errorf("status = %s", got.Status)
	}
}

func TestAllocationAcrossUnits(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	for _, n := range []int{1, 2} {
		r := f.create(t, alice, onDevice(n, day, 14, 16))
		if _, err := f.svc.Approve(ctx, admin, r.ID); err != nil {
			t.Fatal(err)
		}
	}

	third := f.create(t, bob, ofType(day, 14, 16))
	got, err := f.svc.Approve(ctx, admin, third.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DeviceID != deviceID(3) {
		t.Errorf("allocated %q, want %q", got.DeviceID, deviceID(3))
	}

	fourth := f.create(t, bob, ofType(day, 14, 16))
	_, err = f.svc.Approve(ctx, admin, fourth.ID)
	wantKind(t, err, reservation.KindNoDeviceAvailable)
	if f.status(t, fourth.ID) != models.StatusPending {
		t.Error("failed allocation changed state")
	}

	// A non-overlapping slot goes to the lowest-numbered unit.
	later := f.create(t, bob, ofType(day, 16, 18))
	got, err = f.svc.Approve(ctx, admin, later.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DeviceID != deviceID(1) {
		t.Errorf("allocated %q, want %q", got.DeviceID, deviceID(1))
	}
}

func TestAllocationSkipsUnavailableUnits(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	if err := f.store.UpdateDeviceStatus(ctx, deviceID(1), models.DeviceDisabled); err != nil {
		t.Fatal(err)
	}
	r := f.create(t, alice, ofType(day, 10, 12))
	got, err := f.svc.Approve(ctx, admin, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DeviceID != deviceID(2) {
		t.Errorf("allocated %q, want %q", got.DeviceID, deviceID(2))
	}
}

func TestOvernightConflict(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	// Hours 24-28 on D are hours 0-4 on D+1; slots on one date never wrap.
	f.create(t, alice, onDevice(1, day, 24, 28))
	_, err := f.svc.Create(ctx, bob, onDevice(1, "2026-03-06", 0, 4))
	wantKind(t, err, reservation.KindTimeSlotConflict)

	f.create(t, bob, onDevice(1, "2026-03-06", 4, 6))

	f.create(t, alice, onDevice(1, "2026-03-07", 22, 26))
	_, err = f.svc.Create(ctx, bob, onDevice(1, "2026-03-08", 1, 2))
	wantKind(t, err, reservation.KindTimeSlotConflict)
}

func TestOvernightAllocation(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	r := f.create(t, alice, onDevice(1, "2026-03-06", 1, 3))
	if _, err := f.svc.Approve(ctx, admin, r.ID); err != nil {
		t.Fatal(err)
	}
	night := f.create(t, bob, ofType(day, 23, 27))
	got, err := f.svc.Approve(ctx, admin, night.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DeviceID != deviceID(2) {
		t.Errorf("allocated %q, want %q", got.DeviceID, deviceID(2))
	}
}

func TestConcurrentApprovalsOnLastUnit(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, 1)
		a := f.create(t, alice, ofType(day, 14, 16))
		b := f.create(t, bob, ofType(day, 15, 17))

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j, id := range []string{a.ID, b.ID} {
			j, id := j, id
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[j] = f.svc.Approve(context.Background(), admin, id)
			}()
		}
		wg.Wait()

		ok, noDevice := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case reservation.KindOf(err) == reservation.KindNoDeviceAvailable:
				noDevice++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 1 || noDevice != 1 {
			t.Fatalf("round %d: %d approved, %d NoDeviceAvailable", i, ok, noDevice)
		}
	}
}

func TestConcurrentCreatesOnOneDevice(t *testing.T) {
	f := newFixture(t, 1)
	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor := reservation.Actor{UserID: fmt.Sprintf("user-%d", i)}
			_, errs[i] = f.svc.Create(context.Background(), actor, onDevice(1, day, 10+i%3, 12+i%3))
		}()
	}
	wg.Wait()

	page, err := f.svc.List(context.Background(), admin, models.ReservationFilter{})
	if err != nil {
		t.Fatal(err)
	}
	rs := page.Reservations
	for i := range rs {
		for j := i + 1; j < len(rs); j++ {
			if reservation.SlotsOverlap(rs[i].Date, rs[i].TimeSlot, rs[j].Date, rs[j].TimeSlot) {
				t.Errorf("%s and %s overlap", rs[i].ID, rs[j].ID)
			}
		}
	}
	for _, err := range errs {
		if err != nil && reservation.KindOf(err) != reservation.KindTimeSlotConflict {
			t.Errorf("unexpected error: %v", err)
		}
	}
}

// injectingStore slips a competing reservation in between allocation and the
// final pre-commit check.
type injectingStore struct {
	*memstore.Store
	mu    sync.Mutex
	calls int
	rival models.Reservation
}

func (s *injectingStore) FindByDeviceAndTimeSlot(ctx context.Context, deviceID, date string, slot models.TimeSlot) ([]models.Reservation, error) {
	s.mu.Lock()
	s.calls++
	inject := s.calls == 2
	s.mu.Unlock()
	if inject {
		rival := s.rival
		rival.DeviceID = deviceID
		if err := s.Store.Save(ctx, &rival); err != nil {
			return nil, err
		}
	}
	return s.Store.FindByDeviceAndTimeSlot(ctx, deviceID, date, slot)
}

func TestLateConflictIsRetryable(t *testing.T) {
	store := &injectingStore{
		Store: memstore.New(),
		rival: models.Reservation{
			ID:                "rival",
			UserID:            "mallory",
			DeviceTypeID:      typeID,
			Date:              day,
			TimeSlot:          models.TimeSlot{StartHour: 14, EndHour: 16},
			Status:            models.StatusApproved,
			ReservationNumber: "GP-20260301-9999",
		},
	}
	f := newFixtureWithStore(t, store, 1)
	r, err := f.svc.Create(context.Background(), alice, ofType(day, 14, 16))
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Approve(context.Background(), admin, r.ID)
	wantKind(t, err, reservation.KindTimeSlotConflict)
	if !reservation.IsRetryable(err) {
		t.Error("late conflict should be retryable")
	}
	if f.status(t, r.ID) != models.StatusPending {
		t.Error("late conflict changed state")
	}
}

func TestApproveBulkIsIndependent(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	first := f.create(t, alice, ofType(day, 14, 16))
	clash := f.create(t, bob, ofType(day, 14, 16))
	other := f.create(t, bob, ofType(day, 18, 20))

	results := f.svc.ApproveBulk(ctx, admin, []string{first.ID, "missing", clash.ID, other.ID})
	if len(results) != 4 {
		t.Fatalf("%d results", len(results))
	}
	if results[0].Err != nil || results[0].Reservation.Status != models.StatusApproved {
		t.Errorf("first: %+v", results[0])
	}
	wantKind(t, results[1].Err, reservation.KindNotFound)
	wantKind(t, results[2].Err, reservation.KindNoDeviceAvailable)
	if results[3].Err != nil {
		t.Errorf("other: %v", results[3].Err)
	}

	for _, res := range f.svc.ApproveBulk(ctx, alice, []string{clash.ID}) {
		wantKind(t, res.Err, reservation.KindPermissionDenied)
	}
}

// stallingNotifier blocks on its first event until released and ignores ctx.
type stallingNotifier struct {
	once    sync.Once
	stalled chan struct{}
	release chan struct{}
}

func (n *stallingNotifier) Send(_ context.Context, ev models.ReservationEvent) error {
	first := false
	n.once.Do(func() { first = true })
	if first {
		close(n.stalled)
		<-n.release
	}
	return nil
}

func TestStalledNotifierDoesNotBlockWriters(t *testing.T) {
	f := newFixture(t, 1)
	n := &stallingNotifier{stalled: make(chan struct{}), release: make(chan struct{})}
	svc := reservation.NewService(f.store, n, nil,
		reservation.WithClock(f.clock.Now),
		reservation.WithLocation(time.UTC),
	)
	ctx := context.Background()
	defer close(n.release)

	go svc.Create(ctx, alice, onDevice(1, day, 14, 16))
	select {
	case <-n.stalled:
	case <-time.After(2 * time.Second):
		t.Fatal("first create never notified")
	}

	done := make(chan error, 1)
	go func() {
		r, err := svc.Create(ctx, bob, onDevice(1, day, 16, 18))
		if err == nil {
			_, err = svc.Approve(ctx, admin, r.ID)
		}
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("writer on the same type and date blocked behind a stalled notifier")
	}
}

func TestApproveRechecksDeviceStatus(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	r := f.create(t, alice, onDevice(1, day, 14, 16))
	if err := f.store.UpdateDeviceStatus(ctx, deviceID(1), models.DeviceMaintenance); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.Approve(ctx, admin, r.ID)
	wantKind(t, err, reservation.KindValidation)
	if got := f.status(t, r.ID); got != models.StatusPending {
		t.Errorf("status = %s, want pending", got)
	}

	// A unit in use right now can still take a later device-specific booking.
	if err := f.store.UpdateDeviceStatus(ctx, deviceID(2), models.DeviceRental); err != nil {
		t.Fatal(err)
	}
	later := f.create(t, bob, onDevice(2, day, 18, 20))
	if _, err := f.svc.Approve(ctx, admin, later.ID); err != nil {
		t.Fatal(err)
	}
}

func TestNotificationFailureKeepsTransition(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	r := f.create(t, alice, onDevice(1, day, 14, 16))

	f.sent.err = errors.New("broker down")
	got, err := f.svc.Approve(ctx, admin, r.ID)
	if err != nil {
		t.Fatalf("notification failure leaked: %v", err)
	}
	if got.Status != models.StatusApproved || f.status(t, r.ID) != models.StatusApproved {
		t.Error("transition rolled back")
	}

	want := []string{"reservation.created", "reservation.approved"}
	if got := f.sent.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
	ev := f.sent.events[1]
	if ev.UserID != "alice" || ev.ReservationID != r.ID || ev.Payload["previousStatus"] != models.StatusPending {
		t.Errorf("event = %+v", ev)
	}
}

func TestFailedTransitionWritesNothing(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	r := f.create(t, alice, onDevice(1, "2026-03-01", 12, 14))
	if _, err := f.svc.Approve(ctx, admin, r.ID); err != nil {
		t.Fatal(err)
	}
	f.clock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	// Point the reservation at a unit that does not exist so the device side
	// effect fails inside the transaction.
	broken := *r
	broken.DeviceID = "gone"
	broken.Status = models.StatusApproved
	if err := f.store.Update(ctx, &broken); err != nil {
		t.Fatal(err)
	}
	before := len(f.sent.types())
	_, err := f.svc.CheckIn(ctx, admin, r.ID, reservation.Payment{Method: "none"})
	wantKind(t, err, reservation.KindInternal)
	if f.status(t, r.ID) != models.StatusApproved {
		t.Error("partial check-in was persisted")
	}
	if len(f.sent.types()) != before {
		t.Error("event emitted for a failed transition")
	}
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	mine := f.create(t, alice, onDevice(1, day, 10, 12))
	f.create(t, alice, onDevice(1, "2026-03-06", 10, 12))
	theirs := f.create(t, bob, onDevice(2, day, 10, 12))
	if _, err := f.svc.Approve(ctx, admin, theirs.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Get(ctx, alice, mine.ID); err != nil {
		t.Errorf("owner get: %v", err)
	}
	_, err := f.svc.Get(ctx, alice, theirs.ID)
	wantKind(t, err, reservation.KindPermissionDenied)
	if _, err := f.svc.Get(ctx, admin, theirs.ID); err != nil {
		t.Errorf("admin get: %v", err)
	}

	byNumber, err := f.svc.GetByNumber(ctx, alice, mine.ReservationNumber)
	if err != nil || byNumber.ID != mine.ID {
		t.Errorf("GetByNumber = %v, %v", byNumber, err)
	}
	_, err = f.svc.GetByNumber(ctx, alice, "GP-1")
	wantKind(t, err, reservation.KindValidation)

	page, err := f.svc.List(ctx, alice, models.ReservationFilter{UserID: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 {
		t.Errorf("alice sees %d reservations, want her own 2", page.Total)
	}
	for _, r := range page.Reservations {
		if r.UserID != "alice" {
			t.Errorf("alice sees %s of %s", r.ID, r.UserID)
		}
	}
	if page.Reservations[0].Date != "2026-03-06" {
		t.Errorf("listing not newest first: %v", page.Reservations[0].Date)
	}

	page, err = f.svc.List(ctx, admin, models.ReservationFilter{Status: models.StatusApproved, From: day, To: day})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Reservations[0].ID != theirs.ID {
		t.Errorf("admin filter = %+v", page)
	}

	page, err = f.svc.List(ctx, admin, models.ReservationFilter{Limit: 1, Page: 2})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Reservations) != 1 || page.Limit != 1 {
		t.Errorf("paging = %+v", page)
	}

	_, err = f.svc.List(ctx, admin, models.ReservationFilter{Status: "lost"})
	wantKind(t, err, reservation.KindValidation)
	_, err = f.svc.List(ctx, admin, models.ReservationFilter{From: "2026-03-06", To: day})
	wantKind(t, err, reservation.KindValidation)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.create(t, alice, onDevice(1, "2026-03-04", 22, 26))
	f.create(t, bob, onDevice(1, day, 14, 16))
	cancelled := f.create(t, bob, onDevice(2, day, 14, 16))
	if _, err := f.svc.Cancel(ctx, bob, cancelled.ID, ""); err != nil {
		t.Fatal(err)
	}

	avail, err := f.svc.Availability(ctx, typeID, day)
	if err != nil {
		t.Fatal(err)
	}
	if len(avail) != 2 {
		t.Fatalf("%d devices", len(avail))
	}
	busy := avail[0].Busy
	if avail[0].Device.ID != deviceID(1) || len(busy) != 2 {
		t.Fatalf("device 1 availability = %+v", avail[0])
	}
	if busy[0] != (models.TimeSlot{StartHour: 0, EndHour: 2}) || busy[1] != (models.TimeSlot{StartHour: 14, EndHour: 16}) {
		t.Errorf("busy = %v", busy)
	}
	if len(avail[1].Busy) != 0 {
		t.Errorf("cancelled booking still busy: %v", avail[1].Busy)
	}

	// Rental units stay listed; maintenance units drop out.
	if err := f.store.UpdateDeviceStatus(ctx, deviceID(1), models.DeviceRental); err != nil {
		t.Fatal(err)
	}
	if err := f.store.UpdateDeviceStatus(ctx, deviceID(2), models.DeviceMaintenance); err != nil {
		t.Fatal(err)
	}
	avail, err = f.svc.Availability(ctx, typeID, day)
	if err != nil {
		t.Fatal(err)
	}
	if len(avail) != 1 || avail[0].Device.ID != deviceID(1) {
		t.Errorf("availability = %+v", avail)
	}

	_, err = f.svc.Availability(ctx, typeID, "tomorrow")
	wantKind(t, err, reservation.KindValidation)
}
