package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) ListAssignments(ctx context.Context, carePlanID string) ([]StaffAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT care_plan_id, staff_id, is_primary, assigned_at, COALESCE(assigned_by, '')
		FROM care_plan_assignments
		WHERE care_plan_id=$1
		ORDER BY is_primary DESC, assigned_at ASC
	`, carePlanID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	items := make([]StaffAssignment, 0)
	for rows.Next() {
		var item StaffAssignment
		if err := rows.Scan(&item.CarePlanID, &item.StaffID, &item.IsPrimary, &item.AssignedAt, &item.AssignedBy); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return items, nil
}

// SyncStaffAssignments reconciles the join table with the desired staff list.
// desired is ordered: the first id becomes the primary assignment. The whole
// sequence (delete removed, insert added, repoint primary, mirror the primary
// id onto the care plan row) runs in one transaction so a mid-sequence
// failure cannot strand the join table half-updated.
//
// An empty desired list removes every assignment and clears the mirrored
// staff id; no primary promotion runs since there is nothing to promote.
func (s *PostgresStore) SyncStaffAssignments(ctx context.Context, carePlanID string, desired []string, assignedBy string) (AssignmentDiff, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AssignmentDiff{}, fmt.Errorf("begin assignment sync: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT staff_id
		FROM care_plan_assignments
		WHERE care_plan_id=$1
		ORDER BY assigned_at ASC
	`, carePlanID)
	if err != nil {
		return AssignmentDiff{}, fmt.Errorf("read current assignments: %w", err)
	}
	current := make([]string, 0)
	for rows.Next() {
		var staffID string
		if err := rows.Scan(&staffID); err != nil {
			rows.Close()
			return AssignmentDiff{}, fmt.Errorf("scan current assignment: %w", err)
		}
		current = append(current, staffID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return AssignmentDiff{}, fmt.Errorf("iterate current assignments: %w", err)
	}
	rows.Close()

	diff := diffAssignments(current, desired)
	firstEver := len(current) == 0

	for _, staffID := range diff.Removed {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM care_plan_assignments
			WHERE care_plan_id=$1 AND staff_id=$2
		`, carePlanID, staffID); err != nil {
			return AssignmentDiff{}, fmt.Errorf("remove assignment %s: %w", staffID, err)
		}
	}

	for i, staffID := range diff.Added {
		isPrimary := firstEver && i == 0
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO care_plan_assignments (care_plan_id, staff_id, is_primary, assigned_by)
			VALUES ($1, $2, $3, $4)
		`, carePlanID, staffID, isPrimary, assignedBy); err != nil {
			return AssignmentDiff{}, fmt.Errorf("add assignment %s: %w", staffID, err)
		}
	}

	if len(desired) > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE care_plan_assignments
			SET is_primary = (staff_id = $2)
			WHERE care_plan_id=$1
		`, carePlanID, desired[0]); err != nil {
			return AssignmentDiff{}, fmt.Errorf("repoint primary assignment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE care_plans SET staff_id=$2, updated_at=NOW() WHERE id=$1
		`, carePlanID, desired[0]); err != nil {
			return AssignmentDiff{}, fmt.Errorf("mirror primary staff id: %w", err)
		}
	} else if len(diff.Removed) > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE care_plans SET staff_id=NULL, updated_at=NOW() WHERE id=$1
		`, carePlanID); err != nil {
			return AssignmentDiff{}, fmt.Errorf("clear mirrored staff id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return AssignmentDiff{}, fmt.Errorf("commit assignment sync: %w", err)
	}
	return diff, nil
}
