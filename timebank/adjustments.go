/*
adjustments.go - Manual correction workflow

PURPOSE:
  State machine for manually proposed time corrections. States:
  pending -> approved | rejected, no further transitions. Only approved
  adjustments contribute to balances.

WHY NO UN-APPROVE:
  Rejecting an approved adjustment would rewrite history. The correction
  path is a new, opposite-sign adjustment, which keeps the trail
  append-only.

SEE ALSO:
  - balance.go: consumes approved adjustments
  - closure.go: Decide's closed-period gate
*/
package timebank

import (
	"context"
	"fmt"
	"time"
)

// DecisionAction is a terminal review outcome.
type DecisionAction string

const (
	DecisionApprove DecisionAction = "approve"
	DecisionReject  DecisionAction = "reject"
)

// AdjustmentWorkflow owns Adjustment rows and their transitions.
type AdjustmentWorkflow struct {
	store    Store
	closures *ClosureManager
	now      func() time.Time
}

func NewAdjustmentWorkflow(store Store, closures *ClosureManager) *AdjustmentWorkflow {
	return &AdjustmentWorkflow{
		store:    store,
		closures: closures,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Propose creates a pending adjustment. The delta must be non-zero and within
// ±24h. A frozen effective date is fine here: a pending row moves no balance,
// and Decide holds the closed-period gate.
func (w *AdjustmentWorkflow) Propose(ctx context.Context, employeeID EmployeeID, effectiveDate Date, secondsDelta int64, reason, createdBy string) (*Adjustment, error) {
	if secondsDelta == 0 || secondsDelta > MaxAdjustmentSeconds || secondsDelta < -MaxAdjustmentSeconds {
		return nil, &InvalidDeltaError{SecondsDelta: secondsDelta}
	}

	emp, err := w.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, ErrEmployeeNotFound
	}

	adj := Adjustment{
		ID:            AdjustmentID(NewID()),
		EmployeeID:    employeeID,
		EffectiveDate: effectiveDate,
		SecondsDelta:  secondsDelta,
		Reason:        reason,
		Status:        AdjustmentPending,
		CreatedBy:     createdBy,
		CreatedAt:     w.now(),
	}
	if err := w.store.InsertAdjustment(ctx, adj); err != nil {
		return nil, err
	}
	return &adj, nil
}

// Decide transitions a pending adjustment to its terminal state, stamping
// reviewer and review time. overrideClosed lets HR decide inside a frozen
// range.
func (w *AdjustmentWorkflow) Decide(ctx context.Context, id AdjustmentID, action DecisionAction, reviewNote, reviewer string, overrideClosed bool) (*Adjustment, error) {
	if action != DecisionApprove && action != DecisionReject {
		return nil, fmt.Errorf("invalid decision action %q", action)
	}

	adj, err := w.store.GetAdjustment(ctx, id)
	if err != nil {
		return nil, err
	}
	if adj == nil {
		return nil, ErrAdjustmentNotFound
	}
	if adj.Status != AdjustmentPending {
		return nil, ErrAlreadyReviewed
	}

	apply := func() error {
		now := w.now()
		if action == DecisionApprove {
			adj.Status = AdjustmentApproved
		} else {
			adj.Status = AdjustmentRejected
		}
		adj.ReviewNote = reviewNote
		adj.Reviewer = reviewer
		adj.ReviewedAt = &now
		return w.store.UpdateAdjustment(ctx, *adj)
	}

	if overrideClosed {
		// Skips only the frozen-date check; the write still serializes
		// against a racing Close.
		if err := w.closures.GuardOverride(apply); err != nil {
			return nil, err
		}
		return adj, nil
	}

	if err := w.closures.GuardWrite(ctx, adj.EffectiveDate, apply); err != nil {
		return nil, err
	}
	return adj, nil
}

// List returns adjustments matching the filter, most recent first.
func (w *AdjustmentWorkflow) List(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, ErrInvalidRange
	}
	return w.store.ListAdjustments(ctx, filter)
}
