package models

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusApproved  ReservationStatus = "approved"
	StatusRejected  ReservationStatus = "rejected"
	StatusCheckedIn ReservationStatus = "checked_in"
	StatusCompleted ReservationStatus = "completed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusNoShow    ReservationStatus = "no_show"
)

// ActiveStatuses hold a device for their slot.
var ActiveStatuses = []ReservationStatus{StatusPending, StatusApproved, StatusCheckedIn}

func (s ReservationStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCheckedIn:
		return true
	}
	return false
}

func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s ReservationStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

// TimeSlot is the half-open hour range [StartHour, EndHour) on a reservation date.
// Hours 24-29 continue into the next calendar day.
type TimeSlot struct {
	StartHour int `json:"startHour" bson:"startHour"`
	EndHour   int `json:"endHour" bson:"endHour"`
}

type Reservation struct {
	ID                 string            `json:"id" bson:"id"`
	UserID             string            `json:"userId" bson:"userId"`
	CreatedByUserID    string            `json:"createdByUserId" bson:"createdByUserId"`
	DeviceID           string            `json:"deviceId,omitempty" bson:"deviceId,omitempty"`
	DeviceTypeID       string            `json:"deviceTypeId" bson:"deviceTypeId"`
	Date               string            `json:"date" bson:"date"` // YYYY-MM-DD
	TimeSlot           TimeSlot          `json:"timeSlot" bson:"timeSlot"`
	Status             ReservationStatus `json:"status" bson:"status"`
	ReservationNumber  string            `json:"reservationNumber" bson:"reservationNumber"`
	Notes              string            `json:"notes,omitempty" bson:"notes,omitempty"`
	RejectionReason    string            `json:"rejectionReason,omitempty" bson:"rejectionReason,omitempty"`
	CancellationReason string            `json:"cancellationReason,omitempty" bson:"cancellationReason,omitempty"`
	PaymentMethod      string            `json:"paymentMethod,omitempty" bson:"paymentMethod,omitempty"`
	PaymentAmount      int64             `json:"paymentAmount,omitempty" bson:"paymentAmount,omitempty"`
	CheckInTime        *time.Time        `json:"checkInTime,omitempty" bson:"checkInTime,omitempty"`
	CompletedAt        *time.Time        `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	CancelledAt        *time.Time        `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	CreatedAt          time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt" bson:"updatedAt"`
}

type DeviceStatus string

const (
	DeviceAvailable   DeviceStatus = "available"
	DeviceRental      DeviceStatus = "rental"
	DeviceMaintenance DeviceStatus = "maintenance"
	DeviceDisabled    DeviceStatus = "disabled"
)

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceAvailable, DeviceRental, DeviceMaintenance, DeviceDisabled:
		return true
	}
	return false
}

// Device is one numbered unit of a device type.
type Device struct {
	ID           string       `json:"id" bson:"id"`
	DeviceTypeID string       `json:"deviceTypeId" bson:"deviceTypeId"`
	DeviceNumber int          `json:"deviceNumber" bson:"deviceNumber"`
	Status       DeviceStatus `json:"status" bson:"status"`
	CreatedAt    time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt" bson:"updatedAt"`
}

type DeviceType struct {
	ID        string    `json:"id" bson:"id"`
	Name      string    `json:"name" bson:"name"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// ReservationEvent describes one committed lifecycle transition.
type ReservationEvent struct {
	Type          string         `json:"type"`
	ReservationID string         `json:"reservationId"`
	UserID        string         `json:"userId"`
	DeviceTypeID  string         `json:"deviceTypeId,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	OccurredAt    time.Time      `json:"occurredAt"`
}

// ReservationFilter narrows reservation listings. Zero values mean "any".
type ReservationFilter struct {
	Status       ReservationStatus
	UserID       string
	DeviceTypeID string
	From         string // inclusive date
	To           string // inclusive date
	Page         int
	Limit        int
}
