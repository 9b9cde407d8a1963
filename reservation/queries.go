package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gameplace/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Service) Get(ctx context.Context, actor Actor, id string) (*models.Reservation, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && r.UserID != actor.UserID {
		return nil, permissionDenied("reservation belongs to another user")
	}
	return r, nil
}

// GetByNumber resolves a GP-YYYYMMDD-NNNN reservation number.
func (s *Service) GetByNumber(ctx context.Context, actor Actor, number string) (*models.Reservation, error) {
	if !ValidNumber(number) {
		return nil, validationError("malformed reservation number %q", number)
	}
	r, err := s.store.FindByNumber(ctx, number)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("reservation", number)
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation %s: %w", number, err)
	}
	if !actor.IsAdmin && r.UserID != actor.UserID {
		return nil, permissionDenied("reservation belongs to another user")
	}
	return r, nil
}

// Page is one page of a reservation listing.
type Page struct {
	Reservations []models.Reservation `json:"reservations"`
	Total        int64                `json:"total"`
	Page         int                  `json:"page"`
	Limit        int                  `json:"limit"`
}

// List returns reservations matching f. Non-admins only ever see their own.
func (s *Service) List(ctx context.Context, actor Actor, f models.ReservationFilter) (*Page, error) {
	if actor.UserID == "" {
		return nil, permissionDenied("authentication required")
	}
	if !actor.IsAdmin {
		f.UserID = actor.UserID
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, validationError("unknown status %q", f.Status)
	}
	for _, d := range []string{f.From, f.To} {
		if d == "" {
			continue
		}
		if _, err := ParseDate(d); err != nil {
			return nil, err
		}
	}
	if f.From != "" && f.To != "" && f.From > f.To {
		return nil, validationError("from %s is after to %s", f.From, f.To)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}

	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	if items == nil {
		items = []models.Reservation{}
	}
	return &Page{Reservations: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// DeviceAvailability lists the busy slots of one bookable unit, relative to the
// requested date (so a previous-day overnight booking shows as hours from 0).
// Units in rental right now are listed; only maintenance and disabled units
// are left out.
type DeviceAvailability struct {
	Device models.Device     `json:"device"`
	Busy   []models.TimeSlot `json:"busy"`
}

func (s *Service) Availability(ctx context.Context, deviceTypeID, date string) ([]DeviceAvailability, error) {
	if deviceTypeID == "" {
		return nil, validationError("deviceTypeId is required")
	}
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	devices, err := s.store.ListDevices(ctx, deviceTypeID)
	if err != nil {
		return nil, fmt.Errorf("load devices of type %s: %w", deviceTypeID, err)
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].DeviceNumber < devices[j].DeviceNumber
	})

	day := models.TimeSlot{StartHour: 0, EndHour: MaxHour}
	out := make([]DeviceAvailability, 0, len(devices))
	for _, d := range devices {
		if !bookable(&d) {
			continue
		}
		rs, err := s.resolver.FindConflicts(ctx, d.ID, date, day, "")
		if err != nil {
			return nil, err
		}
		busy := make([]models.TimeSlot, 0, len(rs))
		for _, r := range rs {
			shift := dayOffset(date, r.Date) * 24
			busy = append(busy, models.TimeSlot{
				StartHour: max(r.TimeSlot.StartHour+shift, 0),
				EndHour:   min(r.TimeSlot.EndHour+shift, MaxHour),
			})
		}
		sort.Slice(busy, func(i, j int) bool { return busy[i].StartHour < busy[j].StartHour })
		out = append(out, DeviceAvailability{Device: d, Busy: busy})
	}
	return out, nil
}
