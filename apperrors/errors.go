// Package apperrors holds the error taxonomy shared by the booking core.
// Every error is returned per operation; none of them is fatal to the process.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTenantRequired is returned when a unit of work has no organization.
	ErrTenantRequired = errors.New("tenant context required")
	// ErrTenantMismatch is returned when the actor does not belong to the
	// organization the operation runs under.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrNotFound is also what cross-tenant lookups return, so callers cannot
	// learn whether a record exists in another organization.
	ErrNotFound = errors.New("record not found")
)

type AuthorizationDenied struct {
	Action string
	Reason string
}

func (e AuthorizationDenied) Error() string {
	return fmt.Sprintf("authorization denied for %s: %s", e.Action, e.Reason)
}

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

type InvalidStateTransition struct {
	From  string
	Event string
}

func (e InvalidStateTransition) Error() string {
	return fmt.Sprintf("cannot %s an appointment in state %s", e.Event, e.From)
}

type SchedulingConflict struct {
	ConflictingIDs []uint
	Reason         string
}

func (e SchedulingConflict) Error() string {
	if len(e.ConflictingIDs) == 0 {
		return "scheduling conflict: " + e.Reason
	}
	ids := make([]string, len(e.ConflictingIDs))
	for i, id := range e.ConflictingIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("scheduling conflict with appointments %s", strings.Join(ids, ", "))
}

type InsufficientCredits struct {
	Available int
	Requested int
}

func (e InsufficientCredits) Error() string {
	return fmt.Sprintf("insufficient credits: %d available, %d requested", e.Available, e.Requested)
}

// Invalid is a shorthand for building a ValidationError.
func Invalid(field, message string) error {
	return ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

func IsDenied(err error) bool {
	var d AuthorizationDenied
	return errors.As(err, &d)
}

func IsInvalidTransition(err error) bool {
	var t InvalidStateTransition
	return errors.As(err, &t)
}

func IsConflict(err error) bool {
	var c SchedulingConflict
	return errors.As(err, &c)
}

func IsInsufficientCredits(err error) bool {
	var c InsufficientCredits
	return errors.As(err, &c)
}
