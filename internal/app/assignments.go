package app

import (
	"context"
	"log"

	"carelink/api/internal/store"
)

type AssignmentUpdateResult struct {
	Plan        store.CarePlan          `json:"plan"`
	Added       []string                `json:"added"`
	Removed     []string                `json:"removed"`
	Unchanged   []string                `json:"unchanged"`
	Assignments []store.StaffAssignment `json:"assignments"`
}

// UpdateCarePlanAssignments replaces the plan's staff list with staffIDs. The
// first id in the list becomes the primary carer. The operation is re-entrant:
// submitting the same list twice yields an empty diff and changes nothing.
//
// The reconciliation itself is transactional; everything after it (staff
// notifications, profile sync, revision snapshot, export invalidation) is
// best-effort and never rolls the assignment change back.
func (s *Service) UpdateCarePlanAssignments(ctx context.Context, session Session, carePlanID string, staffIDs []string) (AssignmentUpdateResult, error) {
	plan, err := s.loadScopedPlan(ctx, session, carePlanID)
	if err != nil {
		return AssignmentUpdateResult{}, err
	}

	desired := dedupe(staffIDs)
	if err := s.validateStaffIDs(ctx, plan.BranchID, desired); err != nil {
		return AssignmentUpdateResult{}, err
	}

	diff, err := s.store.SyncStaffAssignments(ctx, carePlanID, desired, session.UserName)
	if err != nil {
		return AssignmentUpdateResult{}, err
	}

	// Reload: the sync mirrors the primary staff id onto the plan row.
	if reloaded, err := s.store.GetCarePlan(ctx, carePlanID); err == nil {
		plan = reloaded
	} else {
		log.Printf("care plan %s: reload after assignment sync: %v", carePlanID, err)
	}

	_ = s.dispatchAssignmentNotifications(ctx, plan, diff, true)

	if err := s.store.SyncClientProfile(ctx, plan); err != nil {
		log.Printf("care plan %s: sync client profile: %v", plan.ID, err)
	}
	s.snapshotPlan(ctx, plan, session.UserName, "Update staff assignments")
	s.export.Invalidate(plan.ID)
	s.indexPlan(plan)

	assignments, err := s.store.ListAssignments(ctx, carePlanID)
	if err != nil {
		return AssignmentUpdateResult{}, err
	}

	return AssignmentUpdateResult{
		Plan:        plan,
		Added:       nonNilIDs(diff.Added),
		Removed:     nonNilIDs(diff.Removed),
		Unchanged:   nonNilIDs(diff.Unchanged),
		Assignments: assignments,
	}, nil
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
