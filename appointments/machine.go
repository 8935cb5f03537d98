// Package appointments owns the appointment lifecycle. It is the only code
// that writes the state column.
package appointments

import (
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/jobs"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
)

type Event string

const (
	EventPreConfirm Event = "pre_confirm"
	EventConfirm    Event = "confirm"
	EventExecute    Event = "execute"
	EventCancel     Event = "cancel"
)

var Events = []Event{EventPreConfirm, EventConfirm, EventExecute, EventCancel}

// Effect is a command emitted by a transition. The service carries effects
// out inside the transaction, except EnqueueJob which runs after commit.
type Effect interface {
	effect()
}

type DebitCredits struct {
	UserID uint
	Amount int
}

type RefundCredits struct {
	UserID uint
	Amount int
}

type ClaimSlot struct{}

type ReleaseSlot struct{}

type EnqueueJob struct {
	Name    string
	Payload map[string]interface{}
	Delay   time.Duration
}

func (DebitCredits) effect()  {}
func (RefundCredits) effect() {}
func (ClaimSlot) effect()     {}
func (ReleaseSlot) effect()   {}
func (EnqueueJob) effect()    {}

// Env is everything a transition may depend on besides the appointment.
type Env struct {
	Now           time.Time
	Actor         tenant.Actor
	PreConfirmTTL time.Duration
	RefundWindow  time.Duration
	ReminderLead  time.Duration
	// Charged is the net amount the appointment currently holds in the
	// ledger.
	Charged  int
	Metadata map[string]interface{}
}

// Step is a planned transition: the column changes to write with the state
// compare-and-set and the effects to run alongside it.
type Step struct {
	From    models.AppointmentState
	To      models.AppointmentState
	Event   Event
	Changes map[string]interface{}
	Effects []Effect
	// Revalidate asks for an availability and conflict re-check under the
	// professional's lock before the write.
	Revalidate bool
}

type transition struct {
	to         models.AppointmentState
	revalidate bool
	guard      func(a models.Appointment, env Env) error
	effects    func(a models.Appointment, env Env, step *Step)
}

var table = map[models.AppointmentState]map[Event]transition{
	models.StateDraft: {
		EventPreConfirm: {to: models.StatePreConfirmed, revalidate: true, guard: inFuture, effects: preConfirmEffects},
		EventCancel:     {to: models.StateCancelled, effects: cancelEffects},
	},
	models.StatePreConfirmed: {
		EventConfirm: {to: models.StateConfirmed, revalidate: true, guard: notExpired, effects: confirmEffects},
		EventCancel:  {to: models.StateCancelled, effects: cancelEffects},
	},
	models.StateConfirmed: {
		EventExecute: {to: models.StateExecuted, guard: started, effects: executeEffects},
		EventCancel:  {to: models.StateCancelled, effects: cancelEffects},
	},
}

// CanTransition reports whether (from, event) is in the table.
func CanTransition(from models.AppointmentState, event Event) bool {
	_, ok := table[from][event]
	return ok
}

// Allowed lists the events legal from a state, in a fixed order.
func Allowed(from models.AppointmentState) []Event {
	var out []Event
	for _, e := range Events {
		if CanTransition(from, e) {
			out = append(out, e)
		}
	}
	return out
}

// Plan evaluates the pure part of a transition: the table lookup, the guard
// and the effects. It touches no storage.
func Plan(a models.Appointment, event Event, env Env) (*Step, error) {
	t, ok := table[a.State][event]
	if !ok {
		return nil, apperrors.InvalidStateTransition{From: string(a.State), Event: string(event)}
	}
	if t.guard != nil {
		if err := t.guard(a, env); err != nil {
			return nil, err
		}
	}

	step := &Step{
		From:       a.State,
		To:         t.to,
		Event:      event,
		Changes:    map[string]interface{}{"state": t.to},
		Revalidate: t.revalidate,
	}
	t.effects(a, env, step)
	return step, nil
}

func inFuture(a models.Appointment, env Env) error {
	if !a.ScheduledAt.After(env.Now) {
		return apperrors.Invalid("scheduled_at", "is no longer in the future")
	}
	return nil
}

func notExpired(a models.Appointment, env Env) error {
	if a.Expired(env.Now) {
		return apperrors.Invalid("expires_at", "pre-confirmation has expired")
	}
	return nil
}

func started(a models.Appointment, env Env) error {
	if a.ScheduledAt.After(env.Now) {
		return apperrors.Invalid("scheduled_at", "session has not started yet")
	}
	return nil
}

func jobPayload(a models.Appointment, extra map[string]interface{}) map[string]interface{} {
	p := map[string]interface{}{
		"organization_id": a.OrganizationID,
		"appointment_id":  a.ID,
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func preConfirmEffects(a models.Appointment, env Env, step *Step) {
	step.Changes["expires_at"] = env.Now.Add(env.PreConfirmTTL).UTC()

	delay := a.ScheduledAt.Add(-env.ReminderLead).Sub(env.Now)
	if delay < 0 {
		delay = 0
	}
	step.Effects = append(step.Effects,
		ClaimSlot{},
		EnqueueJob{Name: jobs.Reminder, Payload: jobPayload(a, nil), Delay: delay},
	)
}

func confirmEffects(a models.Appointment, env Env, step *Step) {
	step.Changes["confirmed_at"] = env.Now.UTC()
	if a.UsesCredits && a.CreditsUsed > 0 {
		step.Effects = append(step.Effects, DebitCredits{UserID: a.ClientID, Amount: a.CreditsUsed})
	}
	step.Effects = append(step.Effects,
		EnqueueJob{Name: jobs.Notification, Payload: jobPayload(a, map[string]interface{}{"event": "confirmed"})},
	)
}

func executeEffects(a models.Appointment, env Env, step *Step) {
	step.Changes["executed_at"] = env.Now.UTC()
	step.Effects = append(step.Effects,
		EnqueueJob{Name: jobs.SessionSummary, Payload: jobPayload(a, nil)},
	)
}

// cancelEffects refunds the net charge when the cancellation happens at
// least the refund window before the session.
func cancelEffects(a models.Appointment, env Env, step *Step) {
	step.Changes["cancelled_at"] = env.Now.UTC()
	if env.Actor.UserID != 0 {
		step.Changes["cancelled_by"] = env.Actor.UserID
	} else {
		step.Changes["cancelled_by"] = nil
	}
	reason, _ := env.Metadata["reason"].(string)
	step.Changes["cancellation_reason"] = reason

	if env.Charged > 0 && !env.Now.After(a.ScheduledAt.Add(-env.RefundWindow)) {
		step.Effects = append(step.Effects, RefundCredits{UserID: a.ClientID, Amount: env.Charged})
	}
	step.Effects = append(step.Effects,
		ReleaseSlot{},
		EnqueueJob{Name: jobs.Notification, Payload: jobPayload(a, map[string]interface{}{"event": "cancelled"})},
	)
}
