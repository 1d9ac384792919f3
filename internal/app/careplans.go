package app

import (
	"context"
	"log"
	"net/http"
	"strings"

	"carelink/api/internal/export"
	"carelink/api/internal/planrepo"
	"carelink/api/internal/rbac"
	"carelink/api/internal/search"
	"carelink/api/internal/store"
	"carelink/api/internal/util"
)

type CreateCarePlanInput struct {
	ClientID          string   `json:"clientId"`
	DisplayID         string   `json:"displayId"`
	Title             string   `json:"title"`
	ProviderName      string   `json:"providerName"`
	StaffIDs          []string `json:"staffIds"`
	MonitoringEnabled bool     `json:"monitoringEnabled"`
}

type CarePlanDetail struct {
	Plan        store.CarePlan          `json:"plan"`
	Assignments []store.StaffAssignment `json:"assignments"`
	Approvals   []store.ApprovalEvent   `json:"approvals"`
}

// loadScopedPlan loads a plan and enforces tenant scope. Staff see plans in
// their own branch, clients only their own plans, admins everything. Scope
// misses read as 404 so existence is not leaked across tenants.
func (s *Service) loadScopedPlan(ctx context.Context, session Session, carePlanID string) (store.CarePlan, error) {
	plan, err := s.store.GetCarePlan(ctx, carePlanID)
	if err != nil {
		return store.CarePlan{}, err
	}
	switch rbac.Normalize(session.Role) {
	case rbac.RoleAdmin:
	case rbac.RoleClient:
		client, err := s.store.GetClient(ctx, plan.ClientID)
		if err != nil {
			return store.CarePlan{}, err
		}
		if client.UserID == nil || *client.UserID != session.UserID {
			return store.CarePlan{}, errNotFound()
		}
	default:
		if plan.BranchID != session.BranchID {
			return store.CarePlan{}, errNotFound()
		}
	}
	return plan, nil
}

func (s *Service) CreateCarePlan(ctx context.Context, session Session, input CreateCarePlanInput) (CarePlanDetail, error) {
	if strings.TrimSpace(input.Title) == "" {
		return CarePlanDetail{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if strings.TrimSpace(input.ProviderName) == "" {
		return CarePlanDetail{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "providerName is required", nil)
	}

	client, err := s.store.GetClient(ctx, input.ClientID)
	if err != nil {
		return CarePlanDetail{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown client", nil)
	}
	if rbac.Normalize(session.Role) != rbac.RoleAdmin && client.BranchID != session.BranchID {
		return CarePlanDetail{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "client belongs to another branch", nil)
	}

	displayID := strings.TrimSpace(input.DisplayID)
	if displayID == "" {
		displayID = "CP-" + strings.ToUpper(util.NewID("")[:8])
	}

	plan := store.CarePlan{
		ID:                util.NewID("cpl"),
		DisplayID:         displayID,
		BranchID:          client.BranchID,
		ClientID:          client.ID,
		Title:             strings.TrimSpace(input.Title),
		Status:            store.PlanStatusDraft,
		ProviderName:      strings.TrimSpace(input.ProviderName),
		MonitoringEnabled: input.MonitoringEnabled,
		CreatedBy:         session.UserName,
	}
	if err := s.store.InsertCarePlan(ctx, plan); err != nil {
		return CarePlanDetail{}, err
	}

	if len(input.StaffIDs) > 0 {
		if err := s.validateStaffIDs(ctx, plan.BranchID, input.StaffIDs); err != nil {
			return CarePlanDetail{}, err
		}
		if _, err := s.store.SyncStaffAssignments(ctx, plan.ID, dedupe(input.StaffIDs), session.UserName); err != nil {
			return CarePlanDetail{}, err
		}
	}

	plan, err = s.store.GetCarePlan(ctx, plan.ID)
	if err != nil {
		return CarePlanDetail{}, err
	}
	assignments, err := s.store.ListAssignments(ctx, plan.ID)
	if err != nil {
		return CarePlanDetail{}, err
	}

	if err := s.plans.EnsurePlanRepo(plan.ID, snapshotContent(plan, assignments), session.UserName); err != nil {
		log.Printf("care plan %s: init plan repo: %v", plan.ID, err)
	}
	s.indexPlan(plan)

	return CarePlanDetail{Plan: plan, Assignments: assignments, Approvals: []store.ApprovalEvent{}}, nil
}

func (s *Service) GetCarePlanDetail(ctx context.Context, session Session, carePlanID string) (CarePlanDetail, error) {
	plan, err := s.loadScopedPlan(ctx, session, carePlanID)
	if err != nil {
		return CarePlanDetail{}, err
	}
	assignments, err := s.store.ListAssignments(ctx, plan.ID)
	if err != nil {
		return CarePlanDetail{}, err
	}
	approvals, err := s.store.ListApprovalEvents(ctx, plan.ID)
	if err != nil {
		return CarePlanDetail{}, err
	}
	return CarePlanDetail{Plan: plan, Assignments: assignments, Approvals: approvals}, nil
}

func (s *Service) ListClientCarePlans(ctx context.Context, session Session, clientID string) ([]store.CarePlan, error) {
	if _, err := s.loadScopedClient(ctx, session, clientID); err != nil {
		return nil, err
	}
	return s.store.ListCarePlansByClient(ctx, clientID)
}

// AcknowledgeCarePlan records the client's sign-off. Only the plan's own
// client can acknowledge, and only while the plan awaits their approval.
func (s *Service) AcknowledgeCarePlan(ctx context.Context, session Session, carePlanID, signatureData, comments, method string) (store.CarePlan, error) {
	plan, err := s.loadScopedPlan(ctx, session, carePlanID)
	if err != nil {
		return store.CarePlan{}, err
	}
	if rbac.Normalize(session.Role) != rbac.RoleClient {
		return store.CarePlan{}, domainError(http.StatusForbidden, "FORBIDDEN", "Only the client can acknowledge a plan", nil)
	}
	if plan.Status != store.PlanStatusPendingApproval {
		return store.CarePlan{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"plan is not awaiting client approval", map[string]any{"status": plan.Status})
	}
	if method == "" {
		method = "portal"
	}

	plan, err = s.store.AcknowledgeCarePlan(ctx, carePlanID, signatureData, comments, method)
	if err != nil {
		return store.CarePlan{}, err
	}
	if err := s.store.InsertApprovalEvent(ctx, plan.ID, plan.Status, session.UserName); err != nil {
		log.Printf("care plan %s: record approval event: %v", plan.ID, err)
	}
	if err := s.store.SyncClientProfile(ctx, plan); err != nil {
		log.Printf("care plan %s: sync client profile: %v", plan.ID, err)
	}
	s.snapshotPlan(ctx, plan, session.UserName, "Client acknowledged plan")
	s.export.Invalidate(plan.ID)
	s.indexPlan(plan)
	return plan, nil
}

func (s *Service) RequestCarePlanChanges(ctx context.Context, session Session, carePlanID, comments string) (store.CarePlan, error) {
	plan, err := s.loadScopedPlan(ctx, session, carePlanID)
	if err != nil {
		return store.CarePlan{}, err
	}
	if rbac.Normalize(session.Role) != rbac.RoleClient {
		return store.CarePlan{}, domainError(http.StatusForbidden, "FORBIDDEN", "Only the client can request changes", nil)
	}
	if strings.TrimSpace(comments) == "" {
		return store.CarePlan{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comments are required", nil)
	}

	plan, err = s.store.RequestCarePlanChanges(ctx, carePlanID, session.UserName, comments)
	if err != nil {
		return store.CarePlan{}, err
	}
	if err := s.store.InsertApprovalEvent(ctx, plan.ID, "changes_requested", session.UserName); err != nil {
		log.Printf("care plan %s: record change request event: %v", plan.ID, err)
	}

	// Tell the assigned staff; the change request is already saved, so a
	// notification failure is only logged.
	assignments, err := s.store.ListAssignments(ctx, plan.ID)
	if err != nil {
		log.Printf("care plan %s: list assignments for change request: %v", plan.ID, err)
		return plan, nil
	}
	diff := store.AssignmentDiff{Unchanged: staffIDsOf(assignments)}
	_ = s.dispatchAssignmentNotifications(ctx, plan, diff, true)
	return plan, nil
}

func (s *Service) PlanHistory(ctx context.Context, session Session, carePlanID string, limit int) ([]planrepo.Revision, error) {
	if _, err := s.loadScopedPlan(ctx, session, carePlanID); err != nil {
		return nil, err
	}
	return s.plans.History(carePlanID, limit)
}

func (s *Service) PlanRevision(ctx context.Context, session Session, carePlanID, hash string) (planrepo.PlanContent, planrepo.Revision, error) {
	if _, err := s.loadScopedPlan(ctx, session, carePlanID); err != nil {
		return planrepo.PlanContent{}, planrepo.Revision{}, err
	}
	return s.plans.GetRevision(carePlanID, hash)
}

func (s *Service) ExportCarePlan(ctx context.Context, session Session, carePlanID string, format export.Format, includeVisits, includeRisks bool) (*export.Result, error) {
	if _, err := s.loadScopedPlan(ctx, session, carePlanID); err != nil {
		return nil, err
	}
	return s.export.Export(ctx, export.Request{
		CarePlanID:    carePlanID,
		Format:        format,
		IncludeVisits: includeVisits,
		IncludeRisks:  includeRisks,
	})
}

func (s *Service) validateStaffIDs(ctx context.Context, branchID string, staffIDs []string) error {
	invalid := make([]string, 0)
	for _, staffID := range dedupe(staffIDs) {
		member, err := s.store.GetStaff(ctx, staffID)
		if err != nil || member.BranchID != branchID {
			invalid = append(invalid, staffID)
		}
	}
	if len(invalid) > 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"unknown staff in this branch", map[string]any{"staffIds": invalid})
	}
	return nil
}

// snapshotPlan commits the current plan state to its revision history.
// Best-effort: the database is the source of truth, the repo is the audit log.
func (s *Service) snapshotPlan(ctx context.Context, plan store.CarePlan, author, message string) {
	assignments, err := s.store.ListAssignments(ctx, plan.ID)
	if err != nil {
		log.Printf("care plan %s: load assignments for snapshot: %v", plan.ID, err)
		return
	}
	if err := s.plans.EnsurePlanRepo(plan.ID, snapshotContent(plan, assignments), author); err != nil {
		log.Printf("care plan %s: ensure plan repo: %v", plan.ID, err)
		return
	}
	if _, err := s.plans.CommitSnapshot(plan.ID, snapshotContent(plan, assignments), author, message); err != nil {
		log.Printf("care plan %s: commit snapshot: %v", plan.ID, err)
	}
}

func snapshotContent(plan store.CarePlan, assignments []store.StaffAssignment) planrepo.PlanContent {
	content := planrepo.PlanContent{
		Title:        plan.Title,
		Status:       plan.Status,
		ProviderName: plan.ProviderName,
		StaffIDs:     staffIDsOf(assignments),
		Monitoring:   plan.MonitoringEnabled,
	}
	for _, assignment := range assignments {
		if assignment.IsPrimary {
			content.PrimaryStaff = assignment.StaffID
			break
		}
	}
	return content
}

func (s *Service) indexPlan(plan store.CarePlan) {
	s.search.IndexCarePlan(search.CarePlanRecord{
		ID:           plan.ID,
		DisplayID:    plan.DisplayID,
		Title:        plan.Title,
		ProviderName: plan.ProviderName,
		ClientID:     plan.ClientID,
		BranchID:     plan.BranchID,
		Status:       plan.Status,
	})
}

func staffIDsOf(assignments []store.StaffAssignment) []string {
	ids := make([]string, 0, len(assignments))
	for _, assignment := range assignments {
		ids = append(ids, assignment.StaffID)
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
