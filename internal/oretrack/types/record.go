package types

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for Record.Date on the wire
// and in storage.
const DateLayout = "2006-01-02"

// Field names a mutable record column as it appears on the wire.
type Field string

const (
	FieldShift  Field = "SHIFT"
	FieldStatus Field = "STOCK_STATUS"
)

const (
	ShiftDay   = "DAY"
	ShiftNight = "NIGHT"
)

const (
	StatusBuilding   = "BUILDING"
	StatusComplete   = "COMPLETE"
	StatusReclaiming = "RECLAIMING"
	StatusDepleted   = "DEPLETED"
)

// Shifts lists the accepted shift values in display order.
var Shifts = []string{ShiftDay, ShiftNight}

// Statuses lists the accepted status values in lifecycle order.
var Statuses = []string{StatusBuilding, StatusComplete, StatusReclaiming, StatusDepleted}

// Record is one tracked ore stockpile (TOS). Only Shift and Status change
// after creation.
type Record struct {
	ID         int64  `json:"ID" yaml:"id"`
	Contractor string `json:"CONTRACTOR" yaml:"contractor"`
	Date       string `json:"DATE" yaml:"date"`
	Shift      string `json:"SHIFT" yaml:"shift"`
	StockID    string `json:"STOCK_ID" yaml:"stock_id"`
	Status     string `json:"STOCK_STATUS" yaml:"status"`
}

// Value returns the current value of a mutable field.
func (r Record) Value(f Field) string {
	switch f {
	case FieldShift:
		return r.Shift
	case FieldStatus:
		return r.Status
	}
	return ""
}

// With returns a copy of r with field f set to v. Unknown fields leave the
// record untouched; callers validate with ParseField first.
func (r Record) With(f Field, v string) Record {
	switch f {
	case FieldShift:
		r.Shift = v
	case FieldStatus:
		r.Status = v
	}
	return r
}

// Validate checks the immutable columns of a record about to be ingested.
func (r Record) Validate() error {
	ve := &ValidationError{Fields: map[string]string{}}
	if r.ID <= 0 {
		ve.Fields["ID"] = "must be positive"
	}
	if strings.TrimSpace(r.StockID) == "" {
		ve.Fields["STOCK_ID"] = "required"
	}
	if strings.TrimSpace(r.Contractor) == "" {
		ve.Fields["CONTRACTOR"] = "required"
	}
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		ve.Fields["DATE"] = "must be YYYY-MM-DD"
	}
	if err := ValidateValue(FieldShift, r.Shift); err != nil {
		ve.Fields["SHIFT"] = "must be one of " + strings.Join(Shifts, ", ")
	}
	if err := ValidateValue(FieldStatus, r.Status); err != nil {
		ve.Fields["STOCK_STATUS"] = "must be one of " + strings.Join(Statuses, ", ")
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// ParseField normalises a client-supplied field name. Only the two mutable
// fields are accepted; everything else is ErrInvalidField.
func ParseField(name string) (Field, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "SHIFT":
		return FieldShift, nil
	case "STOCK_STATUS", "STATUS", "STOCKSTATUS":
		return FieldStatus, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidField, name)
}

// ValidateValue reports whether v is an accepted value for f.
func ValidateValue(f Field, v string) error {
	var allowed []string
	switch f {
	case FieldShift:
		allowed = Shifts
	case FieldStatus:
		allowed = Statuses
	default:
		return fmt.Errorf("%w: %q", ErrInvalidField, f)
	}
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %s", ErrInvalidValue, f, strings.Join(allowed, ", "))
}
