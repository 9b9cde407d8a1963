package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gameplace/models"

	"github.com/google/uuid"
)

const notifyTimeout = 5 * time.Second

// Service orchestrates reservation commands: load, guard, transition, persist, notify.
type Service struct {
	store     Store
	notifier  Notifier
	locker    Locker
	resolver  *ConflictResolver
	allocator *Allocator
	policy    Policy
	loc       *time.Location
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

func WithPolicy(p Policy) Option { return func(s *Service) { s.policy = p } }

// WithLocation sets the venue time zone used to turn dates and hours into instants.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(gen func() string) Option { return func(s *Service) { s.newID = gen } }

func NewService(store Store, notifier Notifier, locker Locker, opts ...Option) *Service {
	resolver := NewConflictResolver(store)
	s := &Service{
		store:     store,
		notifier:  notifier,
		locker:    locker,
		resolver:  resolver,
		allocator: NewAllocator(store, resolver),
		policy:    DefaultPolicy,
		loc:       time.Local,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = NewKeyedMutex()
	}
	return s
}

// CreateRequest books either a specific device or, with DeviceID empty, any unit
// of DeviceTypeID to be assigned at approval.
type CreateRequest struct {
	UserID       string          `json:"userId"`
	DeviceID     string          `json:"deviceId"`
	DeviceTypeID string          `json:"deviceTypeId"`
	Date         string          `json:"date"`
	Slot         models.TimeSlot `json:"timeSlot"`
	Notes        string          `json:"notes"`
}

// Payment is captured at check-in.
type Payment struct {
	Method string `json:"paymentMethod"`
	Amount int64  `json:"paymentAmount"`
}

var paymentMethods = map[string]bool{"cash": true, "card": true, "ewallet": true, "none": true}

// BulkResult is the outcome of one id in ApproveBulk.
type BulkResult struct {
	ID          string
	Reservation *models.Reservation
	Err         error
}

func (s *Service) Create(ctx context.Context, actor Actor, req CreateRequest) (*models.Reservation, error) {
	if actor.UserID == "" {
		return nil, permissionDenied("authentication required")
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = actor.UserID
	}
	if userID != actor.UserID && !actor.IsAdmin {
		return nil, permissionDenied("only admins can book on behalf of another user")
	}
	if err := ValidateSlot(req.Slot); err != nil {
		return nil, err
	}
	start, err := SlotStart(req.Date, req.Slot, s.loc)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !start.After(now) {
		return nil, validationError("slot %s %02d:00 has already started", req.Date, req.Slot.StartHour)
	}
	if req.DeviceID == "" && req.DeviceTypeID == "" {
		return nil, validationError("deviceId or deviceTypeId is required")
	}

	typeID := req.DeviceTypeID
	if req.DeviceID != "" {
		device, err := s.store.FindDevice(ctx, req.DeviceID)
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("device", req.DeviceID)
		}
		if err != nil {
			return nil, fmt.Errorf("load device %s: %w", req.DeviceID, err)
		}
		if typeID != "" && typeID != device.DeviceTypeID {
			return nil, validationError("device %s is not of type %s", device.ID, typeID)
		}
		if !bookable(device) {
			return nil, validationError("device %d is %s", device.DeviceNumber, device.Status)
		}
		typeID = device.DeviceTypeID
	}

	unlock, err := lockAll(ctx, s.locker, lockKeys(typeID, req.Date, req.Slot))
	if err != nil {
		return nil, fmt.Errorf("lock %s/%s: %w", typeID, req.Date, err)
	}
	defer unlock()

	if req.DeviceID != "" {
		conflicts, err := s.resolver.FindConflicts(ctx, req.DeviceID, req.Date, req.Slot, "")
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return nil, conflictError(false, reservationIDs(conflicts))
		}
	}

	number, err := s.nextNumber(ctx, now)
	if err != nil {
		return nil, err
	}
	r := &models.Reservation{
		ID:                s.newID(),
		UserID:            userID,
		CreatedByUserID:   actor.UserID,
		DeviceID:          req.DeviceID,
		DeviceTypeID:      typeID,
		Date:              req.Date,
		TimeSlot:          req.Slot,
		Status:            models.StatusPending,
		ReservationNumber: number,
		Notes:             strings.TrimSpace(req.Notes),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save reservation: %w", err)
	}
	unlock()
	s.notify(ctx, "reservation.created", r, "", nil)
	return r, nil
}

func (s *Service) Approve(ctx context.Context, actor Actor, id string) (*models.Reservation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.approve(ctx, id)
}

func (s *Service) approve(ctx context.Context, id string) (*models.Reservation, error) {
	var deviceID string
	return s.run(ctx, id, step{
		action: ActionApprove,
		prepare: func(ctx context.Context, r *models.Reservation, g *GuardContext) error {
			deviceID = r.DeviceID
			allocated := false
			if deviceID != "" {
				if err := s.checkBookable(ctx, deviceID); err != nil {
					return err
				}
			} else {
				d, err := s.allocator.Allocate(ctx, r.DeviceTypeID, r.Date, r.TimeSlot, r.ID)
				if err != nil {
					return err
				}
				deviceID, allocated = d.ID, true
			}
			// Final check right before the commit.
			conflicts, err := s.resolver.FindConflicts(ctx, deviceID, r.Date, r.TimeSlot, r.ID)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return conflictError(allocated, reservationIDs(conflicts))
			}
			g.DeviceID = deviceID
			return nil
		},
		apply: func(ctx context.Context, r *models.Reservation, now time.Time) error {
			r.DeviceID = deviceID
			return nil
		},
	})
}

// ApproveBulk approves each id independently, in order.
func (s *Service) ApproveBulk(ctx context.Context, actor Actor, ids []string) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	adminErr := requireAdmin(actor)
	for _, id := range ids {
		if adminErr != nil {
			results = append(results, BulkResult{ID: id, Err: adminErr})
			continue
		}
		r, err := s.approve(ctx, id)
		results = append(results, BulkResult{ID: id, Reservation: r, Err: err})
	}
	return results
}

func (s *Service) Reject(ctx context.Context, actor Actor, id, reason string) (*models.Reservation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("rejection reason is required")
	}
	return s.run(ctx, id, step{
		action: ActionReject,
		prepare: func(ctx context.Context, r *models.Reservation, g *GuardContext) error {
			g.Reason = reason
			return nil
		},
		apply: func(ctx context.Context, r *models.Reservation, now time.Time) error {
			r.RejectionReason = reason
			return nil
		},
		payload: map[string]any{"reason": reason},
	})
}

func (s *Service) CheckIn(ctx context.Context, actor Actor, id string, p Payment) (*models.Reservation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	p.Method = strings.ToLower(strings.TrimSpace(p.Method))
	if !paymentMethods[p.Method] {
		return nil, validationError("unknown payment method %q", p.Method)
	}
	if p.Amount < 0 {
		return nil, validationError("payment amount must not be negative")
	}
	return s.run(ctx, id, step{
		action: ActionCheckIn,
		apply: func(ctx context.Context, r *models.Reservation, now time.Time) error {
			t := now
			r.CheckInTime = &t
			r.PaymentMethod = p.Method
			r.PaymentAmount = p.Amount
			return s.store.UpdateDeviceStatus(ctx, r.DeviceID, models.DeviceRental)
		},
		payload: map[string]any{"paymentMethod": p.Method, "paymentAmount": p.Amount},
	})
}

func (s *Service) MarkNoShow(ctx context.Context, actor Actor, id string) (*models.Reservation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.run(ctx, id, step{action: ActionNoShow})
}

// Complete closes a checked-in session and frees its device.
func (s *Service) Complete(ctx context.Context, actor Actor, id string) (*models.Reservation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.run(ctx, id, step{
		action: ActionComplete,
		apply: func(ctx context.Context, r *models.Reservation, now time.Time) error {
			t := now
			r.CompletedAt = &t
			return s.store.UpdateDeviceStatus(ctx, r.DeviceID, models.DeviceAvailable)
		},
	})
}

// Cancel is open to the owner of the reservation and to admins.
func (s *Service) Cancel(ctx context.Context, actor Actor, id, reason string) (*models.Reservation, error) {
	if actor.UserID == "" {
		return nil, permissionDenied("authentication required")
	}
	reason = strings.TrimSpace(reason)
	return s.run(ctx, id, step{
		action: ActionCancel,
		authorize: func(r *models.Reservation) error {
			if !actor.IsAdmin && r.UserID != actor.UserID {
				return permissionDenied("only the owner or an admin can cancel this reservation")
			}
			return nil
		},
		apply: func(ctx context.Context, r *models.Reservation, now time.Time) error {
			t := now
			r.CancelledAt = &t
			r.CancellationReason = reason
			return nil
		},
		payload: map[string]any{"reason": reason, "cancelledBy": actor.UserID},
	})
}

type step struct {
	action    Action
	authorize func(r *models.Reservation) error
	prepare   func(ctx context.Context, r *models.Reservation, g *GuardContext) error
	apply     func(ctx context.Context, r *models.Reservation, now time.Time) error
	payload   map[string]any
}

// run executes one state transition under the reservation's type/date lock.
func (s *Service) run(ctx context.Context, id string, st step) (*models.Reservation, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.authorize != nil {
		if err := st.authorize(r); err != nil {
			return nil, err
		}
	}
	if err := Allowed(r.Status, st.action); err != nil {
		return nil, err
	}

	unlock, err := lockAll(ctx, s.locker, lockKeys(r.DeviceTypeID, r.Date, r.TimeSlot))
	if err != nil {
		return nil, fmt.Errorf("lock %s/%s: %w", r.DeviceTypeID, r.Date, err)
	}
	defer unlock()

	// Reload: another writer may have moved it while we waited.
	r, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	start, err := SlotStart(r.Date, r.TimeSlot, s.loc)
	if err != nil {
		return nil, err
	}
	now := s.now()
	g := GuardContext{
		Now:       now,
		Start:     start,
		Policy:    s.policy,
		DeviceID:  r.DeviceID,
		CheckedIn: r.CheckInTime != nil,
	}
	if st.prepare != nil && Allowed(r.Status, st.action) == nil {
		if err := st.prepare(ctx, r, &g); err != nil {
			return nil, err
		}
	}
	next, err := Transition(r.Status, st.action, g)
	if err != nil {
		return nil, err
	}

	prev := r.Status
	updated := *r
	updated.Status = next
	updated.UpdatedAt = now
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		if st.apply != nil {
			if err := st.apply(ctx, &updated, now); err != nil {
				return err
			}
		}
		return s.store.Update(ctx, &updated)
	})
	if err != nil {
		return nil, fmt.Errorf("%s reservation %s: %w", st.action, id, err)
	}
	// Subscribers must never hold up writers on this type and date.
	unlock()
	s.notify(ctx, "reservation."+string(next), &updated, prev, st.payload)
	return &updated, nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Reservation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationError("reservation id is required")
	}
	r, err := s.store.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("reservation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation %s: %w", id, err)
	}
	return r, nil
}

// notify is best effort: the transition is already committed and its lock
// released.
func (s *Service) notify(ctx context.Context, typ string, r *models.Reservation, prev models.ReservationStatus, extra map[string]any) {
	if s.notifier == nil {
		return
	}
	payload := map[string]any{
		"reservationNumber": r.ReservationNumber,
		"status":            r.Status,
		"date":              r.Date,
		"startHour":         r.TimeSlot.StartHour,
		"endHour":           r.TimeSlot.EndHour,
	}
	if prev != "" {
		payload["previousStatus"] = prev
	}
	if r.DeviceID != "" {
		payload["deviceId"] = r.DeviceID
	}
	for k, v := range extra {
		payload[k] = v
	}
	ev := models.ReservationEvent{
		Type:          typ,
		ReservationID: r.ID,
		UserID:        r.UserID,
		DeviceTypeID:  r.DeviceTypeID,
		Payload:       payload,
		OccurredAt:    s.now(),
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Send(nctx, ev); err != nil {
		log.Printf("[Reservation] notify %s for %s failed: %v", typ, r.ID, err)
	}
}

// checkBookable reloads a device booked by id; it may have been taken out of
// service since the reservation was made.
func (s *Service) checkBookable(ctx context.Context, id string) error {
	device, err := s.store.FindDevice(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return notFound("device", id)
	}
	if err != nil {
		return fmt.Errorf("load device %s: %w", id, err)
	}
	if !bookable(device) {
		return validationError("device %d is %s", device.DeviceNumber, device.Status)
	}
	return nil
}

func bookable(d *models.Device) bool {
	return d.Status != models.DeviceMaintenance && d.Status != models.DeviceDisabled
}

func requireAdmin(actor Actor) error {
	if actor.UserID == "" {
		return permissionDenied("authentication required")
	}
	if !actor.IsAdmin {
		return permissionDenied("admin only")
	}
	return nil
}

// lockKeys covers every calendar day the slot occupies, keyed by device type so
// device-specific and type-only bookings contend on the same lock.
func lockKeys(typeID, date string, slot models.TimeSlot) []string {
	var keys []string
	for _, d := range touchedDates(date, slot) {
		keys = append(keys, "lock:gp:type:"+typeID+":"+d)
	}
	return keys
}
