package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"carelink/api/internal/rbac"
	"carelink/api/internal/search"
	"carelink/api/internal/store"
	"carelink/api/internal/util"
)

type ClientInput struct {
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	DateOfBirth *string `json:"dateOfBirth"`
	Address     string  `json:"address"`
	Phone       string  `json:"phone"`
	Status      string  `json:"status"`
	UserID      *string `json:"userId"`
}

// loadScopedClient enforces the same tenancy rules as loadScopedPlan: staff
// stay inside their branch, clients only reach their own record.
func (s *Service) loadScopedClient(ctx context.Context, session Session, clientID string) (store.Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return store.Client{}, err
	}
	switch rbac.Normalize(session.Role) {
	case rbac.RoleAdmin:
	case rbac.RoleClient:
		if client.UserID == nil || *client.UserID != session.UserID {
			return store.Client{}, errNotFound()
		}
	default:
		if client.BranchID != session.BranchID {
			return store.Client{}, errNotFound()
		}
	}
	return client, nil
}

func (s *Service) ListClients(ctx context.Context, session Session) ([]store.Client, error) {
	return s.store.ListClients(ctx, session.BranchID)
}

func (s *Service) GetClient(ctx context.Context, session Session, clientID string) (store.Client, error) {
	return s.loadScopedClient(ctx, session, clientID)
}

func (s *Service) CreateClient(ctx context.Context, session Session, input ClientInput) (store.Client, error) {
	if strings.TrimSpace(input.FirstName) == "" && strings.TrimSpace(input.LastName) == "" {
		return store.Client{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a name is required", nil)
	}
	status := input.Status
	if status == "" {
		status = "active"
	}
	client := store.Client{
		ID:          util.NewID("cli"),
		BranchID:    session.BranchID,
		UserID:      input.UserID,
		FirstName:   strings.TrimSpace(input.FirstName),
		LastName:    strings.TrimSpace(input.LastName),
		DateOfBirth: parseDate(input.DateOfBirth),
		Address:     strings.TrimSpace(input.Address),
		Phone:       strings.TrimSpace(input.Phone),
		Status:      status,
	}
	if err := s.store.InsertClient(ctx, client); err != nil {
		return store.Client{}, err
	}
	s.indexClient(client)
	return client, nil
}

func (s *Service) UpdateClient(ctx context.Context, session Session, clientID string, input ClientInput) (store.Client, error) {
	client, err := s.loadScopedClient(ctx, session, clientID)
	if err != nil {
		return store.Client{}, err
	}
	if input.FirstName != "" {
		client.FirstName = strings.TrimSpace(input.FirstName)
	}
	if input.LastName != "" {
		client.LastName = strings.TrimSpace(input.LastName)
	}
	if input.DateOfBirth != nil {
		client.DateOfBirth = parseDate(input.DateOfBirth)
	}
	if input.Address != "" {
		client.Address = strings.TrimSpace(input.Address)
	}
	if input.Phone != "" {
		client.Phone = strings.TrimSpace(input.Phone)
	}
	if input.Status != "" {
		client.Status = input.Status
	}
	if err := s.store.UpdateClient(ctx, client); err != nil {
		return store.Client{}, err
	}
	s.indexClient(client)
	return client, nil
}

type StaffInput struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Role      string  `json:"role"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	UserID    *string `json:"userId"`
}

func (s *Service) ListStaff(ctx context.Context, session Session) ([]store.Staff, error) {
	return s.store.ListStaff(ctx, session.BranchID)
}

func (s *Service) CreateStaff(ctx context.Context, session Session, input StaffInput) (store.Staff, error) {
	if strings.TrimSpace(input.FirstName) == "" && strings.TrimSpace(input.LastName) == "" {
		return store.Staff{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a name is required", nil)
	}
	role := input.Role
	if role == "" {
		role = "carer"
	}
	member := store.Staff{
		ID:        util.NewID("sta"),
		BranchID:  session.BranchID,
		UserID:    input.UserID,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Role:      role,
		Email:     strings.TrimSpace(input.Email),
		Phone:     strings.TrimSpace(input.Phone),
		Status:    "active",
	}
	if err := s.store.InsertStaff(ctx, member); err != nil {
		return store.Staff{}, err
	}
	return member, nil
}

func (s *Service) ListBranches(ctx context.Context, organizationID string) ([]store.Branch, error) {
	return s.store.ListBranches(ctx, organizationID)
}

func (s *Service) GetBranch(ctx context.Context, branchID string) (store.Branch, error) {
	return s.store.GetBranch(ctx, branchID)
}

func parseDate(value *string) *time.Time {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(*value))
	if err != nil {
		return nil
	}
	return &parsed
}

func (s *Service) indexClient(client store.Client) {
	s.search.IndexClient(search.ClientRecord{
		ID:       client.ID,
		Name:     client.DisplayName(),
		Address:  client.Address,
		BranchID: client.BranchID,
		Status:   client.Status,
	})
}
