/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package recurrence turns a bounded recurrence rule into the concrete
// occurrences a booking series is made of.
package recurrence

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnboundedRecurrence is returned for a repeating rule with neither an
	// until date nor a count.
	ErrUnboundedRecurrence = errors.New("recurrence: rule has no termination condition")

	// ErrInvalidRule is returned for a structurally invalid rule.
	ErrInvalidRule = errors.New("recurrence: invalid rule")
)

// Frequency enumerates the supported recurrence kinds.
type Frequency string

const (
	FreqNone    Frequency = "none"
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
)

// Rule describes how an anchor interval repeats.
//
// A repeating rule carries exactly one termination condition: Until (inclusive
// of an occurrence starting exactly at the bound) or Count. A monthly rule on
// a day a month lacks skips that month entirely; it never rolls over to the
// next valid day.
type Rule struct {
	Freq Frequency `json:"freq"`

	// Interval is the step between periods (every N days/weeks/months).
	// Zero means 1.
	Interval int `json:"interval,omitempty"`

	// DaysOfWeek selects weekdays for weekly rules. Required for FreqWeekly.
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`

	// DayOfMonth selects the day for monthly rules. Zero means the anchor's day.
	DayOfMonth int `json:"day_of_month,omitempty"`

	Until *time.Time `json:"until,omitempty"`
	Count *int       `json:"count,omitempty"`
}

// IsRecurring reports whether the rule produces more than a single occurrence
// by construction.
func (r Rule) IsRecurring() bool {
	return r.Freq != FreqNone && r.Freq != ""
}

// Validate checks the rule invariants. It is called before any registry
// access so invalid input never touches stored state.
func (r Rule) Validate() error {
	switch r.Freq {
	case FreqNone, "":
		return nil
	case FreqDaily, FreqWeekly, FreqMonthly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, r.Freq)
	}

	if r.Until == nil && r.Count == nil {
		return ErrUnboundedRecurrence
	}
	if r.Until != nil && r.Count != nil {
		return fmt.Errorf("%w: until and count are mutually exclusive", ErrInvalidRule)
	}
	if r.Count != nil && *r.Count <= 0 {
		return fmt.Errorf("%w: count must be positive, got %d", ErrInvalidRule, *r.Count)
	}
	if r.Interval < 0 {
		return fmt.Errorf("%w: interval must not be negative, got %d", ErrInvalidRule, r.Interval)
	}

	if r.Freq == FreqWeekly {
		if len(r.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: weekly rule requires at least one weekday", ErrInvalidRule)
		}
		for _, d := range r.DaysOfWeek {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, d)
			}
		}
	}

	if r.Freq == FreqMonthly && (r.DayOfMonth < 0 || r.DayOfMonth > 31) {
		return fmt.Errorf("%w: day of month %d out of range", ErrInvalidRule, r.DayOfMonth)
	}

	return nil
}

func (r Rule) step() int {
	if r.Interval <= 0 {
		return 1
	}
	return r.Interval
}
