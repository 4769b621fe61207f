package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"as-service/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type ValidationKind string

const (
	KindDuplicateInBatch ValidationKind = "duplicate_in_batch"
	KindActiveConflict   ValidationKind = "active_conflict"
	KindMissingField     ValidationKind = "missing_field"
	KindUnknownTool      ValidationKind = "unknown_tool"
)

// UnitError names one offending (tool, serial) pair.
type UnitError struct {
	ToolID       uuid.UUID `json:"tool_id"`
	ToolLabel    string    `json:"tool"`
	SerialNumber string    `json:"serial_number"`
}

func (u UnitError) String() string {
	if u.SerialNumber == "" {
		return u.ToolLabel
	}
	return fmt.Sprintf("%s (S/N: %s)", u.ToolLabel, u.SerialNumber)
}

// ValidationError rejects a whole request and lists every pair that caused
// it. It matches ErrInvalidInput under errors.Is.
type ValidationError struct {
	Kind    ValidationKind
	Message string
	Fields  []string
	Pairs   []UnitError
}

func (e *ValidationError) Error() string {
	if len(e.Pairs) == 0 {
		if len(e.Fields) > 0 {
			return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
		}
		return e.Message
	}
	items := make([]string, 0, len(e.Pairs))
	for _, p := range e.Pairs {
		items = append(items, p.String())
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(items, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func missingFields(fields ...string) *ValidationError {
	return &ValidationError{
		Kind:    KindMissingField,
		Message: "required field missing",
		Fields:  fields,
	}
}

// TransitionError lists the tickets a requested status change cannot apply
// to. It matches ErrInvalidTransition under errors.Is.
type TransitionError struct {
	Target    model.TicketStatus
	TicketIDs []uuid.UUID
}

func (e *TransitionError) Error() string {
	if len(e.TicketIDs) == 0 {
		return fmt.Sprintf("%s: cannot move tickets to %s", ErrInvalidTransition, e.Target)
	}
	ids := make([]string, 0, len(e.TicketIDs))
	for _, id := range e.TicketIDs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("%s: cannot move %s to %s", ErrInvalidTransition, strings.Join(ids, ", "), e.Target)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
