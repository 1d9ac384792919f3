package store

import (
	"context"
	"database/sql"
	"fmt"
)

const carePlanColumns = `id, display_id, branch_id, organization_id, client_id, title, status, staff_id,
	COALESCE(provider_name, ''), monitoring_enabled,
	client_acknowledged_at, COALESCE(client_signature_data, ''), COALESCE(client_comments, ''), COALESCE(acknowledgment_method, ''),
	change_requested_at, COALESCE(change_requested_by, ''), COALESCE(change_request_comments, ''),
	created_by, created_at, updated_at`

func scanCarePlan(scan func(dest ...any) error) (CarePlan, error) {
	var item CarePlan
	err := scan(
		&item.ID,
		&item.DisplayID,
		&item.BranchID,
		&item.OrganizationID,
		&item.ClientID,
		&item.Title,
		&item.Status,
		&item.StaffID,
		&item.ProviderName,
		&item.MonitoringEnabled,
		&item.ClientAcknowledgedAt,
		&item.ClientSignatureData,
		&item.ClientComments,
		&item.AcknowledgmentMethod,
		&item.ChangeRequestedAt,
		&item.ChangeRequestedBy,
		&item.ChangeRequestComments,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) GetCarePlan(ctx context.Context, carePlanID string) (CarePlan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+carePlanColumns+` FROM care_plans WHERE id=$1`, carePlanID)
	return scanCarePlan(row.Scan)
}

func (s *PostgresStore) ListCarePlansByClient(ctx context.Context, clientID string) ([]CarePlan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+carePlanColumns+`
		FROM care_plans
		WHERE client_id=$1
		ORDER BY created_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list care plans: %w", err)
	}
	defer rows.Close()

	items := make([]CarePlan, 0)
	for rows.Next() {
		item, err := scanCarePlan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan care plan: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate care plans: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertCarePlan(ctx context.Context, item CarePlan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO care_plans (id, display_id, branch_id, client_id, title, status, staff_id, provider_name, monitoring_enabled, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
	`, item.ID, item.DisplayID, item.BranchID, item.ClientID, item.Title, item.Status, item.StaffID, item.ProviderName, item.MonitoringEnabled, item.CreatedBy)
	if err != nil {
		return classifyConstraint(fmt.Errorf("insert care plan: %w", err))
	}
	return nil
}

// CarePlanStatusUpdate is the core finalize write. ClearAcknowledgment is set
// on transitions into pending_client_approval so a re-submitted plan requires
// fresh client approval.
type CarePlanStatusUpdate struct {
	CarePlanID         string
	Status             string
	Title              string
	StaffID            *string
	ProviderName       string
	MonitoringEnabled  bool
	ClearAcknowledgment bool
	ClearChangeRequest  bool
}

func (s *PostgresStore) UpdateCarePlanStatus(ctx context.Context, update CarePlanStatusUpdate) (CarePlan, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE care_plans
		SET status=$2,
			title=COALESCE(NULLIF($3, ''), title),
			staff_id=$4,
			provider_name=NULLIF($5, ''),
			monitoring_enabled=$6,
			client_acknowledged_at=CASE WHEN $7 THEN NULL ELSE client_acknowledged_at END,
			client_signature_data=CASE WHEN $7 THEN NULL ELSE client_signature_data END,
			client_comments=CASE WHEN $7 THEN NULL ELSE client_comments END,
			acknowledgment_method=CASE WHEN $7 THEN NULL ELSE acknowledgment_method END,
			change_requested_at=CASE WHEN $8 THEN NULL ELSE change_requested_at END,
			change_requested_by=CASE WHEN $8 THEN NULL ELSE change_requested_by END,
			change_request_comments=CASE WHEN $8 THEN NULL ELSE change_request_comments END,
			updated_at=NOW()
		WHERE id=$1
		RETURNING `+carePlanColumns+`
	`,
		update.CarePlanID,
		update.Status,
		update.Title,
		update.StaffID,
		update.ProviderName,
		update.MonitoringEnabled,
		update.ClearAcknowledgment,
		update.ClearChangeRequest,
	)
	item, err := scanCarePlan(row.Scan)
	if err != nil {
		return CarePlan{}, classifyConstraint(err)
	}
	return item, nil
}

func (s *PostgresStore) AcknowledgeCarePlan(ctx context.Context, carePlanID, signatureData, comments, method string) (CarePlan, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE care_plans
		SET client_acknowledged_at=NOW(),
			client_signature_data=NULLIF($2, ''),
			client_comments=NULLIF($3, ''),
			acknowledgment_method=$4,
			status=CASE WHEN status=$5 THEN $6 ELSE status END,
			updated_at=NOW()
		WHERE id=$1
		RETURNING `+carePlanColumns+`
	`, carePlanID, signatureData, comments, method, PlanStatusPendingApproval, PlanStatusApproved)
	return scanCarePlan(row.Scan)
}

func (s *PostgresStore) RequestCarePlanChanges(ctx context.Context, carePlanID, requestedBy, comments string) (CarePlan, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE care_plans
		SET change_requested_at=NOW(),
			change_requested_by=$2,
			change_request_comments=$3,
			updated_at=NOW()
		WHERE id=$1
		RETURNING `+carePlanColumns+`
	`, carePlanID, requestedBy, comments)
	return scanCarePlan(row.Scan)
}

func (s *PostgresStore) InsertApprovalEvent(ctx context.Context, carePlanID, status, actor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO care_plan_approval_events (care_plan_id, status, actor)
		VALUES ($1, $2, $3)
	`, carePlanID, status, actor)
	if err != nil {
		return fmt.Errorf("insert approval event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListApprovalEvents(ctx context.Context, carePlanID string) ([]ApprovalEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, care_plan_id, status, actor, created_at
		FROM care_plan_approval_events
		WHERE care_plan_id=$1
		ORDER BY created_at DESC
	`, carePlanID)
	if err != nil {
		return nil, fmt.Errorf("list approval events: %w", err)
	}
	defer rows.Close()

	items := make([]ApprovalEvent, 0)
	for rows.Next() {
		var item ApprovalEvent
		if err := rows.Scan(&item.ID, &item.CarePlanID, &item.Status, &item.Actor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan approval event: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approval events: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetActiveMonitoring(ctx context.Context, clientID string) (*MonitoringRecord, error) {
	var item MonitoringRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, care_plan_id, active, enrolled_at, deactivated_at
		FROM monitoring_records
		WHERE client_id=$1 AND active=TRUE
		ORDER BY enrolled_at DESC
		LIMIT 1
	`, clientID).Scan(&item.ID, &item.ClientID, &item.CarePlanID, &item.Active, &item.EnrolledAt, &item.DeactivatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active monitoring: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) CreateMonitoring(ctx context.Context, record MonitoringRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitoring_records (id, client_id, care_plan_id, active)
		VALUES ($1, $2, $3, TRUE)
	`, record.ID, record.ClientID, record.CarePlanID)
	if err != nil {
		return fmt.Errorf("create monitoring: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivateMonitoring(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE monitoring_records
		SET active=FALSE, deactivated_at=NOW()
		WHERE client_id=$1 AND active=TRUE
	`, clientID)
	if err != nil {
		return fmt.Errorf("deactivate monitoring: %w", err)
	}
	return nil
}

// SyncClientProfile replicates selected care-plan fields into the
// denormalized client profile row read by the portal dashboard.
func (s *PostgresStore) SyncClientProfile(ctx context.Context, plan CarePlan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_profiles (client_id, care_plan_id, care_plan_title, care_plan_status, primary_staff_id, provider_name, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NOW())
		ON CONFLICT (client_id) DO UPDATE SET
			care_plan_id=EXCLUDED.care_plan_id,
			care_plan_title=EXCLUDED.care_plan_title,
			care_plan_status=EXCLUDED.care_plan_status,
			primary_staff_id=EXCLUDED.primary_staff_id,
			provider_name=EXCLUDED.provider_name,
			updated_at=NOW()
	`, plan.ClientID, plan.ID, plan.Title, plan.Status, plan.StaffID, plan.ProviderName)
	if err != nil {
		return fmt.Errorf("sync client profile: %w", err)
	}
	return nil
}
