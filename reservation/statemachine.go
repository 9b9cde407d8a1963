package reservation

import (
	"strings"
	"time"

	"gameplace/models"
)

// Action is an operation requested against a reservation.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionCancel   Action = "cancel"
	ActionCheckIn  Action = "check_in"
	ActionNoShow   Action = "no_show"
	ActionComplete Action = "complete"
)

// Policy holds the temporal guard parameters.
type Policy struct {
	CancelCutoff  time.Duration
	CheckInBefore time.Duration
	CheckInAfter  time.Duration
}

var DefaultPolicy = Policy{
	CancelCutoff:  24 * time.Hour,
	CheckInBefore: 30 * time.Minute,
	CheckInAfter:  15 * time.Minute,
}

// GuardContext carries everything the guards look at. Only the fields of the
// requested action are read.
type GuardContext struct {
	Now    time.Time
	Start  time.Time
	Policy Policy

	// approve
	DeviceID  string
	Conflicts []string

	// reject
	Reason string

	// check_in, no_show
	CheckedIn bool
}

type rule struct {
	to    models.ReservationStatus
	guard func(GuardContext) error
}

var transitions = map[models.ReservationStatus]map[Action]rule{
	models.StatusPending: {
		ActionApprove: {to: models.StatusApproved, guard: guardApprove},
		ActionReject:  {to: models.StatusRejected, guard: guardReject},
		ActionCancel:  {to: models.StatusCancelled, guard: guardCancel},
	},
	models.StatusApproved: {
		ActionCancel:  {to: models.StatusCancelled, guard: guardCancel},
		ActionCheckIn: {to: models.StatusCheckedIn, guard: guardCheckIn},
		ActionNoShow:  {to: models.StatusNoShow, guard: guardNoShow},
	},
	models.StatusCheckedIn: {
		ActionComplete: {to: models.StatusCompleted},
	},
}

// Allowed reports whether action is defined from the given state, ignoring guards.
func Allowed(from models.ReservationStatus, action Action) error {
	if _, ok := transitions[from][action]; !ok {
		return newError(KindInvalidTransition, "cannot %s a reservation in state %s", action, from)
	}
	return nil
}

// Transition validates action against the table and its guard and returns the
// resulting state. It performs no I/O.
func Transition(from models.ReservationStatus, action Action, g GuardContext) (models.ReservationStatus, error) {
	r, ok := transitions[from][action]
	if !ok {
		return from, newError(KindInvalidTransition, "cannot %s a reservation in state %s", action, from)
	}
	if r.guard != nil {
		if err := r.guard(g); err != nil {
			return from, err
		}
	}
	return r.to, nil
}

func guardApprove(g GuardContext) error {
	if len(g.Conflicts) > 0 {
		return conflictError(false, g.Conflicts)
	}
	if g.DeviceID == "" {
		return newError(KindNoDeviceAvailable, "no device assigned")
	}
	return nil
}

func guardReject(g GuardContext) error {
	if strings.TrimSpace(g.Reason) == "" {
		return validationError("rejection reason is required")
	}
	return nil
}

func guardCancel(g GuardContext) error {
	if left := g.Start.Sub(g.Now); left < g.Policy.CancelCutoff {
		return newError(KindCancellationExpired,
			"cancellation closes %s before start, %.1f hours left",
			g.Policy.CancelCutoff, left.Hours())
	}
	return nil
}

func guardCheckIn(g GuardContext) error {
	if g.CheckedIn {
		return newError(KindInvalidTransition, "reservation already checked in")
	}
	opens := g.Start.Add(-g.Policy.CheckInBefore)
	closes := g.Start.Add(g.Policy.CheckInAfter)
	if g.Now.Before(opens) || g.Now.After(closes) {
		return newError(KindCheckInWindow, "check-in is open from %s to %s",
			opens.Format(time.RFC3339), closes.Format(time.RFC3339))
	}
	return nil
}

func guardNoShow(g GuardContext) error {
	if g.CheckedIn {
		return newError(KindInvalidTransition, "reservation already checked in")
	}
	if closes := g.Start.Add(g.Policy.CheckInAfter); !g.Now.After(closes) {
		return newError(KindCheckInWindow, "check-in grace period runs until %s", closes.Format(time.RFC3339))
	}
	return nil
}
