package store

import (
	"context"
	"fmt"

	"carelink/api/internal/export"
)

// The export renderer reads through these projections rather than the full
// row types so it stays decoupled from schema churn.

func (s *PostgresStore) GetPlanInfo(ctx context.Context, carePlanID string) (export.PlanInfo, error) {
	var info export.PlanInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT cp.id, cp.display_id, cp.title, cp.status, cp.client_id,
			TRIM(c.first_name || ' ' || c.last_name),
			COALESCE(cp.provider_name, ''), b.name, cp.updated_at
		FROM care_plans cp
		JOIN clients c ON c.id = cp.client_id
		JOIN branches b ON b.id = cp.branch_id
		WHERE cp.id=$1
	`, carePlanID).Scan(
		&info.ID,
		&info.DisplayID,
		&info.Title,
		&info.Status,
		&info.ClientID,
		&info.ClientName,
		&info.ProviderName,
		&info.BranchName,
		&info.UpdatedAt,
	)
	if err != nil {
		return export.PlanInfo{}, err
	}
	return info, nil
}

func (s *PostgresStore) ListAssignedStaff(ctx context.Context, carePlanID string) ([]export.StaffInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT TRIM(st.first_name || ' ' || st.last_name), st.role, a.is_primary
		FROM care_plan_assignments a
		JOIN staff st ON st.id = a.staff_id
		WHERE a.care_plan_id=$1
		ORDER BY a.is_primary DESC, a.assigned_at ASC
	`, carePlanID)
	if err != nil {
		return nil, fmt.Errorf("list assigned staff: %w", err)
	}
	defer rows.Close()

	items := make([]export.StaffInfo, 0)
	for rows.Next() {
		var item export.StaffInfo
		if err := rows.Scan(&item.Name, &item.Role, &item.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan assigned staff: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assigned staff: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListVisitInfo(ctx context.Context, carePlanID string) ([]export.VisitInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.scheduled_start, v.scheduled_end,
			COALESCE(TRIM(st.first_name || ' ' || st.last_name), ''),
			v.status, COALESCE(v.notes, '')
		FROM visits v
		LEFT JOIN staff st ON st.id = v.staff_id
		WHERE v.care_plan_id=$1
		ORDER BY v.scheduled_start ASC
	`, carePlanID)
	if err != nil {
		return nil, fmt.Errorf("list visit info: %w", err)
	}
	defer rows.Close()

	items := make([]export.VisitInfo, 0)
	for rows.Next() {
		var item export.VisitInfo
		if err := rows.Scan(&item.Start, &item.End, &item.StaffName, &item.Status, &item.Notes); err != nil {
			return nil, fmt.Errorf("scan visit info: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visit info: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListRiskInfo(ctx context.Context, clientID string) ([]export.RiskInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, severity, summary
		FROM risk_assessments
		WHERE client_id=$1
		ORDER BY created_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list risk info: %w", err)
	}
	defer rows.Close()

	items := make([]export.RiskInfo, 0)
	for rows.Next() {
		var item export.RiskInfo
		if err := rows.Scan(&item.Category, &item.Severity, &item.Summary); err != nil {
			return nil, fmt.Errorf("scan risk info: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk info: %w", err)
	}
	return items, nil
}
