/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"errors"
	"fmt"

	"github.com/friendsincode/paddock/internal/conflict"
)

// ErrNotReschedulable is returned when a completed or cancelled booking
// is asked to move.
var ErrNotReschedulable = errors.New("scheduler: booking is terminal and cannot be rescheduled")

// ConflictError is returned when a scheduling request cannot commit.
// It carries every conflict found across the whole request, so a
// recurring request with three blocked occurrences reports all three.
type ConflictError struct {
	ResourceID string
	Conflicts  []conflict.Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 1 {
		return fmt.Sprintf("scheduler: %s", e.Conflicts[0])
	}
	return fmt.Sprintf("scheduler: %d conflicts on resource %s", len(e.Conflicts), e.ResourceID)
}
