package models

import (
	"fmt"
	"time"

	dErrors "safereport/pkg/domain-errors"
)

// State is the lifecycle position of an incident.
type State string

const (
	StateActive            State = "active"
	StateArchived          State = "archived"
	StateScheduledDeletion State = "scheduled_deletion"
	StateSoftDeleted       State = "soft_deleted"
	StatePurged            State = "purged"
)

// ArchiveReasonAutomatic is recorded by the archival job.
const ArchiveReasonAutomatic = "automatic_archival_after_1_year"

// DeletedReasonPrefix marks a soft-deleted record's archive reason.
const DeletedReasonPrefix = "DELETED: "

var transitions = map[State][]State{
	StateActive:            {StateArchived, StateSoftDeleted},
	StateArchived:          {StateScheduledDeletion, StateSoftDeleted},
	StateScheduledDeletion: {StateSoftDeleted, StatePurged},
	StateSoftDeleted:       {StatePurged},
}

func (s State) IsValid() bool {
	_, ok := transitions[s]
	return ok || s == StatePurged
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (i *Incident) transition(next State) error {
	if !i.State.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("invalid lifecycle transition %s -> %s", i.State, next)).
			WithDetail("from", string(i.State)).
			WithDetail("to", string(next))
	}
	i.State = next
	return nil
}

// Archive freezes the record.
func (i *Incident) Archive(reason string, now time.Time) error {
	if err := i.transition(StateArchived); err != nil {
		return err
	}
	i.IsArchived = true
	i.IsReadOnly = true
	i.ArchivedAt = &now
	i.ArchiveReason = reason
	return nil
}

// ScheduleDeletion sets the retention deadline on an archived record.
func (i *Incident) ScheduleDeletion(now time.Time) error {
	if err := i.transition(StateScheduledDeletion); err != nil {
		return err
	}
	i.setRetentionDeadline(now)
	return nil
}

// SoftDelete hides the record and starts the retention clock. A record that
// already has a retention deadline keeps the earlier of the two.
func (i *Incident) SoftDelete(reason string, now time.Time) error {
	if err := i.transition(StateSoftDeleted); err != nil {
		return err
	}
	i.IsArchived = true
	i.IsReadOnly = true
	if i.ArchivedAt == nil {
		i.ArchivedAt = &now
	}
	i.ArchiveReason = DeletedReasonPrefix + reason
	prior := i.ScheduledDeletionAt
	i.setRetentionDeadline(now)
	if prior != nil && prior.Before(*i.ScheduledDeletionAt) {
		i.ScheduledDeletionAt = prior
	}
	return nil
}

// MarkPurged is the terminal transition taken just before the hard delete.
func (i *Incident) MarkPurged() error {
	return i.transition(StatePurged)
}

// IsExpired reports whether the retention deadline has passed.
func (i *Incident) IsExpired(now time.Time) bool {
	return i.ScheduledDeletionAt != nil && !i.ScheduledDeletionAt.After(now)
}

func (i *Incident) setRetentionDeadline(now time.Time) {
	years := i.RetentionPeriodYears
	if years <= 0 {
		years = RetentionPeriodYears
		i.RetentionPeriodYears = years
	}
	at := now.AddDate(years, 0, 0)
	i.ScheduledDeletionAt = &at
}
