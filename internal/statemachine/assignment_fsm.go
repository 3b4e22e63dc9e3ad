package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/sjperalta/schoolfees-api/internal/models"
)

// Assignment events
const (
	EventPayPartial  = "pay_partial"
	EventPayFull     = "pay_full"
	EventMarkOverdue = "mark_overdue"
	EventCancel      = "cancel"
)

// AssignmentFSM wraps a student fee assignment with its state machine
type AssignmentFSM struct {
	assignment *models.StudentFeeAssignment
	fsm        *fsm.FSM
}

// NewAssignmentFSM creates a new assignment state machine
func NewAssignmentFSM(assignment *models.StudentFeeAssignment) *AssignmentFSM {
	afsm := &AssignmentFSM{
		assignment: assignment,
	}

	open := []string{
		models.AssignmentStatusPending,
		models.AssignmentStatusPartial,
		models.AssignmentStatusOverdue,
	}

	afsm.fsm = fsm.NewFSM(
		assignment.Status,
		fsm.Events{
			// pending/partial/overdue → partial (money received, balance remains)
			{Name: EventPayPartial, Src: open, Dst: models.AssignmentStatusPartial},

			// pending/partial/overdue → paid
			{Name: EventPayFull, Src: open, Dst: models.AssignmentStatusPaid},

			// pending/partial → overdue
			{Name: EventMarkOverdue, Src: []string{models.AssignmentStatusPending, models.AssignmentStatusPartial}, Dst: models.AssignmentStatusOverdue},

			// pending/partial/overdue → cancelled
			{Name: EventCancel, Src: open, Dst: models.AssignmentStatusCancelled},
		},
		fsm.Callbacks{},
	)

	return afsm
}

// CanCollect reports whether the assignment accepts a payment in its current state
func (a *AssignmentFSM) CanCollect() bool {
	return a.assignment.IsActive && a.fsm.Can(EventPayFull)
}

// Cancel transitions the assignment to cancelled and deactivates it
func (a *AssignmentFSM) Cancel(ctx context.Context) error {
	if !a.fsm.Can(EventCancel) {
		return fmt.Errorf("assignment cannot be cancelled in current state: %s", a.assignment.Status)
	}

	if err := a.fsm.Event(ctx, EventCancel); err != nil {
		return fmt.Errorf("failed to cancel assignment: %w", err)
	}

	a.assignment.Status = a.fsm.Current()
	a.assignment.IsActive = false
	return nil
}

// Current returns the current state
func (a *AssignmentFSM) Current() string {
	return a.fsm.Current()
}

// Can checks if a transition is possible
func (a *AssignmentFSM) Can(event string) bool {
	return a.fsm.Can(event)
}
