package reservation

import (
	"context"
	"fmt"
	"sort"

	"gameplace/models"
)

// Allocator picks a concrete unit of a device type for a slot.
type Allocator struct {
	store    Store
	resolver *ConflictResolver
}

func NewAllocator(store Store, resolver *ConflictResolver) *Allocator {
	return &Allocator{store: store, resolver: resolver}
}

// Allocate returns the lowest-numbered available unit of deviceTypeID with no
// overlapping active reservation. Callers hold the type/date lock.
func (a *Allocator) Allocate(ctx context.Context, deviceTypeID, date string, slot models.TimeSlot, excludeID string) (*models.Device, error) {
	devices, err := a.store.FindAvailableDevicesByType(ctx, deviceTypeID)
	if err != nil {
		return nil, fmt.Errorf("load devices of type %s: %w", deviceTypeID, err)
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].DeviceNumber < devices[j].DeviceNumber
	})
	for i := range devices {
		d := devices[i]
		if d.Status != models.DeviceAvailable {
			continue
		}
		conflicts, err := a.resolver.FindConflicts(ctx, d.ID, date, slot, excludeID)
		if err != nil {
			return nil, err
		}
		if len(conflicts) == 0 {
			return &d, nil
		}
	}
	return nil, newError(KindNoDeviceAvailable,
		"no %s unit is free on %s for %02d:00-%02d:00", deviceTypeID, date, slot.StartHour, slot.EndHour)
}
