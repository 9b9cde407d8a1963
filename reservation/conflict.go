package reservation

import (
	"context"
	"fmt"

	"gameplace/models"
)

// ConflictResolver finds active reservations overlapping a candidate slot.
type ConflictResolver struct {
	store Store
}

func NewConflictResolver(store Store) *ConflictResolver {
	return &ConflictResolver{store: store}
}

// FindConflicts returns the active reservations on deviceID whose slot overlaps
// slot on date. excludeID skips the reservation being re-checked.
func (c *ConflictResolver) FindConflicts(ctx context.Context, deviceID, date string, slot models.TimeSlot, excludeID string) ([]models.Reservation, error) {
	candidates, err := c.store.FindByDeviceAndTimeSlot(ctx, deviceID, date, slot)
	if err != nil {
		return nil, fmt.Errorf("load reservations for device %s: %w", deviceID, err)
	}
	var out []models.Reservation
	for _, r := range candidates {
		if r.ID == excludeID || r.DeviceID != deviceID || !r.Status.IsActive() {
			continue
		}
		if SlotsOverlap(date, slot, r.Date, r.TimeSlot) {
			out = append(out, r)
		}
	}
	return out, nil
}

func reservationIDs(rs []models.Reservation) []string {
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}
