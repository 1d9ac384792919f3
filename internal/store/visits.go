package store

import (
	"context"
	"fmt"
	"time"
)

const visitColumns = `id, branch_id, care_plan_id, client_id, staff_id, scheduled_start, scheduled_end, status, COALESCE(notes, ''), created_at, updated_at`

func scanVisit(scan func(dest ...any) error) (Visit, error) {
	var item Visit
	err := scan(
		&item.ID,
		&item.BranchID,
		&item.CarePlanID,
		&item.ClientID,
		&item.StaffID,
		&item.ScheduledStart,
		&item.ScheduledEnd,
		&item.Status,
		&item.Notes,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) GetVisit(ctx context.Context, visitID string) (Visit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+visitColumns+` FROM visits WHERE id=$1`, visitID)
	return scanVisit(row.Scan)
}

func (s *PostgresStore) ListVisitsByCarePlan(ctx context.Context, carePlanID string) ([]Visit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE care_plan_id=$1
		ORDER BY scheduled_start ASC
	`, carePlanID)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	items := make([]Visit, 0)
	for rows.Next() {
		item, err := scanVisit(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}
	return items, nil
}

// ListVisitsByStaff returns a carer's visits in the half-open window [from, to).
func (s *PostgresStore) ListVisitsByStaff(ctx context.Context, staffID string, from, to time.Time) ([]Visit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE staff_id=$1 AND scheduled_start >= $2 AND scheduled_start < $3
		ORDER BY scheduled_start ASC
	`, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list staff visits: %w", err)
	}
	defer rows.Close()

	items := make([]Visit, 0)
	for rows.Next() {
		item, err := scanVisit(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan staff visit: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staff visits: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertVisit(ctx context.Context, item Visit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visits (id, branch_id, care_plan_id, client_id, staff_id, scheduled_start, scheduled_end, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`, item.ID, item.BranchID, item.CarePlanID, item.ClientID, item.StaffID, item.ScheduledStart, item.ScheduledEnd, item.Status, item.Notes)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateVisitStatus(ctx context.Context, visitID, status, notes string) (Visit, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE visits
		SET status=$2, notes=COALESCE(NULLIF($3, ''), notes), updated_at=NOW()
		WHERE id=$1
		RETURNING `+visitColumns+`
	`, visitID, status, notes)
	return scanVisit(row.Scan)
}
