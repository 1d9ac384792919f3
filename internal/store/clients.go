package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const clientColumns = `id, branch_id, user_id, first_name, last_name, date_of_birth, COALESCE(address, ''), COALESCE(phone, ''), status, created_at, updated_at`

func scanClient(scan func(dest ...any) error) (Client, error) {
	var item Client
	err := scan(
		&item.ID,
		&item.BranchID,
		&item.UserID,
		&item.FirstName,
		&item.LastName,
		&item.DateOfBirth,
		&item.Address,
		&item.Phone,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) GetClient(ctx context.Context, clientID string) (Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=$1`, clientID)
	return scanClient(row.Scan)
}

func (s *PostgresStore) ListClients(ctx context.Context, branchID string) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE branch_id=$1
		ORDER BY last_name ASC, first_name ASC
	`, branchID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	items := make([]Client, 0)
	for rows.Next() {
		item, err := scanClient(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertClient(ctx context.Context, item Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, branch_id, user_id, first_name, last_name, date_of_birth, address, phone, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, item.ID, item.BranchID, item.UserID, item.FirstName, item.LastName, item.DateOfBirth, item.Address, item.Phone, item.Status)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateClient(ctx context.Context, item Client) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET first_name=$2, last_name=$3, date_of_birth=$4, address=$5, phone=$6, status=$7, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.FirstName, item.LastName, item.DateOfBirth, item.Address, item.Phone, item.Status)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return nil
}

// GetClientSummary resolves the projection the notification dispatcher needs.
func (s *PostgresStore) GetClientSummary(ctx context.Context, clientID string) (ClientSummary, error) {
	var item ClientSummary
	var first, last string
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.first_name, c.last_name, c.branch_id, b.organization_id
		FROM clients c
		LEFT JOIN branches b ON b.id = c.branch_id
		WHERE c.id=$1
	`, clientID).Scan(&item.ID, &first, &last, &item.BranchID, &item.OrganizationID)
	if err != nil {
		return ClientSummary{}, err
	}
	item.Name = strings.TrimSpace(first + " " + last)
	return item, nil
}

const staffColumns = `id, branch_id, user_id, first_name, last_name, role, COALESCE(email, ''), COALESCE(phone, ''), status, created_at, updated_at`

func scanStaff(scan func(dest ...any) error) (Staff, error) {
	var item Staff
	err := scan(
		&item.ID,
		&item.BranchID,
		&item.UserID,
		&item.FirstName,
		&item.LastName,
		&item.Role,
		&item.Email,
		&item.Phone,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) GetStaff(ctx context.Context, staffID string) (Staff, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE id=$1`, staffID)
	return scanStaff(row.Scan)
}

func (s *PostgresStore) ListStaff(ctx context.Context, branchID string) ([]Staff, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+staffColumns+`
		FROM staff
		WHERE branch_id=$1
		ORDER BY last_name ASC, first_name ASC
	`, branchID)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	items := make([]Staff, 0)
	for rows.Next() {
		item, err := scanStaff(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan staff: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staff: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertStaff(ctx context.Context, item Staff) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff (id, branch_id, user_id, first_name, last_name, role, email, phone, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, item.ID, item.BranchID, item.UserID, item.FirstName, item.LastName, item.Role, item.Email, item.Phone, item.Status)
	if err != nil {
		return fmt.Errorf("insert staff: %w", err)
	}
	return nil
}

// ResolveStaffUserIDs maps staff ids to their portal user ids in one batched
// query. Staff without a linked user are simply absent from the result.
func (s *PostgresStore) ResolveStaffUserIDs(ctx context.Context, staffIDs []string) (map[string]string, error) {
	if len(staffIDs) == 0 {
		return map[string]string{}, nil
	}

	placeholders := make([]string, len(staffIDs))
	args := make([]any, len(staffIDs))
	for i, id := range staffIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, user_id
		FROM staff
		WHERE id IN (%s) AND user_id IS NOT NULL
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("resolve staff user ids: %w", err)
	}
	defer rows.Close()

	resolved := make(map[string]string, len(staffIDs))
	for rows.Next() {
		var staffID string
		var userID sql.NullString
		if err := rows.Scan(&staffID, &userID); err != nil {
			return nil, fmt.Errorf("scan staff user id: %w", err)
		}
		if userID.Valid {
			resolved[staffID] = userID.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staff user ids: %w", err)
	}
	return resolved, nil
}
