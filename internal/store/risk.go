package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertRiskAssessment(ctx context.Context, item RiskAssessment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, branch_id, client_id, category, severity, summary, next_review_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.BranchID, item.ClientID, item.Category, item.Severity, item.Summary, item.NextReviewAt, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert risk assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRiskAssessmentsByClient(ctx context.Context, clientID string) ([]RiskAssessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, client_id, category, severity, summary, next_review_at, created_by, created_at, updated_at
		FROM risk_assessments
		WHERE client_id=$1
		ORDER BY created_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list risk assessments: %w", err)
	}
	defer rows.Close()

	items := make([]RiskAssessment, 0)
	for rows.Next() {
		var item RiskAssessment
		if err := rows.Scan(&item.ID, &item.BranchID, &item.ClientID, &item.Category, &item.Severity,
			&item.Summary, &item.NextReviewAt, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan risk assessment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk assessments: %w", err)
	}
	return items, nil
}
