/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/friendsincode/paddock/internal/interval"
)

// maxOccurrences caps a single expansion. A year of daily bookings is 366;
// anything past this bound is a caller mistake, not a schedule.
const maxOccurrences = 5000

// Occurrence is one concrete time-bounded instance produced from a rule.
// SeriesID is assigned by the scheduler once the series is committed.
type Occurrence struct {
	SeriesID      string            `json:"series_id,omitempty"`
	SequenceIndex int               `json:"sequence_index"`
	Interval      interval.Interval `json:"interval"`
}

// Cursor pulls occurrences one at a time in strictly increasing sequence and
// start order. A Cursor is single-use; calling Expand again with the same
// inputs yields an identical fresh sequence.
type Cursor struct {
	next     func() (time.Time, bool)
	duration time.Duration
	seq      int
}

// Next returns the next occurrence, or ok=false when the sequence is done.
func (c *Cursor) Next() (Occurrence, bool) {
	start, ok := c.next()
	if !ok {
		return Occurrence{}, false
	}
	occ := Occurrence{
		SequenceIndex: c.seq,
		Interval:      interval.Interval{Start: start, End: start.Add(c.duration)},
	}
	c.seq++
	return occ, true
}

// Expand validates the rule and returns a cursor over the occurrences of
// anchor repeated per rule. Every occurrence keeps the anchor's duration.
func Expand(anchor interval.Interval, rule Rule) (*Cursor, error) {
	if _, err := interval.New(anchor.Start, anchor.End); err != nil {
		return nil, err
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if !rule.IsRecurring() {
		fired := false
		return &Cursor{
			duration: anchor.Duration(),
			next: func() (time.Time, bool) {
				if fired {
					return time.Time{}, false
				}
				fired = true
				return anchor.Start, true
			},
		}, nil
	}

	rr, err := compile(anchor, rule)
	if err != nil {
		return nil, err
	}

	return &Cursor{next: rr.Iterator(), duration: anchor.Duration()}, nil
}

// Occurrences materializes the full bounded sequence.
func Occurrences(anchor interval.Interval, rule Rule) ([]Occurrence, error) {
	cursor, err := Expand(anchor, rule)
	if err != nil {
		return nil, err
	}

	var out []Occurrence
	for {
		occ, ok := cursor.Next()
		if !ok {
			return out, nil
		}
		if len(out) >= maxOccurrences {
			return nil, fmt.Errorf("%w: rule expands to more than %d occurrences", ErrInvalidRule, maxOccurrences)
		}
		out = append(out, occ)
	}
}

// compile maps a Rule onto an rrule. rrule's BYMONTHDAY already skips months
// lacking the day, and a weekly rule starts from the first selected weekday at
// or after DTSTART, which are exactly the semantics the engine mandates.
func compile(anchor interval.Interval, rule Rule) (*rrule.RRule, error) {
	opt := rrule.ROption{
		Interval: rule.step(),
		Dtstart:  anchor.Start,
	}

	switch rule.Freq {
	case FreqDaily:
		opt.Freq = rrule.DAILY
	case FreqWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = make([]rrule.Weekday, 0, len(rule.DaysOfWeek))
		for _, d := range rule.DaysOfWeek {
			opt.Byweekday = append(opt.Byweekday, rruleWeekday(d))
		}
	case FreqMonthly:
		opt.Freq = rrule.MONTHLY
		day := rule.DayOfMonth
		if day == 0 {
			day = anchor.Start.Day()
		}
		opt.Bymonthday = []int{day}
	}

	if rule.Count != nil {
		opt.Count = *rule.Count
	}
	if rule.Until != nil {
		opt.Until = *rule.Until
	}

	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return rr, nil
}

func rruleWeekday(d time.Weekday) rrule.Weekday {
	switch d {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}
