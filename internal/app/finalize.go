package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"carelink/api/internal/store"
	"carelink/api/internal/util"
)

type FinalizeInput struct {
	Status            string   `json:"status"`
	Title             string   `json:"title"`
	ProviderName      string   `json:"providerName"`
	StaffIDs          []string `json:"staffIds"`
	MonitoringEnabled bool     `json:"monitoringEnabled"`
	// ClearChangeRequest wipes an open change request alongside the
	// transition. Left false, the request stays visible on the plan.
	ClearChangeRequest bool `json:"clearChangeRequest"`
}

// SideEffectResult reports one post-write step of a finalize. Err is nil when
// the step succeeded or was skipped as not applicable.
type SideEffectResult struct {
	Name string
	Err  error
}

func (r SideEffectResult) OK() bool {
	return r.Err == nil
}

// FinalizeOutcome is what a finalize returns: the updated plan plus a report
// of every side effect that ran. Side-effect failures do not fail the
// finalize; the caller sees exactly which steps need attention.
type FinalizeOutcome struct {
	Plan        store.CarePlan
	SideEffects []SideEffectResult
}

func (o FinalizeOutcome) Failed() []string {
	names := make([]string, 0)
	for _, effect := range o.SideEffects {
		if !effect.OK() {
			names = append(names, effect.Name)
		}
	}
	return names
}

var finalizeStatuses = map[string]struct{}{
	store.PlanStatusPendingApproval: {},
	store.PlanStatusApproved:        {},
	store.PlanStatusActive:          {},
	store.PlanStatusOnHold:          {},
	store.PlanStatusArchived:        {},
}

// FinalizeCarePlan moves a plan out of draft (or between live statuses).
// Only validation and the core plan update can fail the call; everything
// after the update is a side effect, run individually and collected into the
// outcome report.
//
// A transition into pending_client_approval wipes any previous client
// acknowledgment so a re-submitted plan needs fresh approval.
func (s *Service) FinalizeCarePlan(ctx context.Context, session Session, carePlanID string, input FinalizeInput) (FinalizeOutcome, error) {
	plan, err := s.loadScopedPlan(ctx, session, carePlanID)
	if err != nil {
		return FinalizeOutcome{}, err
	}

	if _, ok := finalizeStatuses[input.Status]; !ok {
		return FinalizeOutcome{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"invalid target status", map[string]any{"status": input.Status})
	}
	providerName := strings.TrimSpace(input.ProviderName)
	if providerName == "" {
		providerName = plan.ProviderName
	}
	if providerName == "" {
		return FinalizeOutcome{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"providerName is required", nil)
	}

	desired := dedupe(input.StaffIDs)
	syncStaff := input.StaffIDs != nil
	if !syncStaff && plan.StaffID != nil {
		// No explicit list given: reconcile the join table against the
		// legacy single staff id so older plans stay consistent.
		desired = []string{*plan.StaffID}
		syncStaff = true
	}
	if len(desired) > 0 {
		if err := s.validateStaffIDs(ctx, plan.BranchID, desired); err != nil {
			return FinalizeOutcome{}, err
		}
	}

	// An empty explicit staff list means an external provider delivers the
	// care; the plan row carries no staff id in that case.
	var staffID *string
	if len(desired) > 0 {
		staffID = &desired[0]
	}

	plan, err = s.store.UpdateCarePlanStatus(ctx, store.CarePlanStatusUpdate{
		CarePlanID:          carePlanID,
		Status:              input.Status,
		Title:               strings.TrimSpace(input.Title),
		StaffID:             staffID,
		ProviderName:        providerName,
		MonitoringEnabled:   input.MonitoringEnabled,
		ClearAcknowledgment: input.Status == store.PlanStatusPendingApproval,
		ClearChangeRequest:  input.ClearChangeRequest,
	})
	if err != nil {
		return FinalizeOutcome{}, err
	}

	outcome := FinalizeOutcome{Plan: plan}
	record := func(name string, err error) {
		if err != nil {
			log.Printf("finalize %s: side effect %s: %v", plan.ID, name, err)
		}
		outcome.SideEffects = append(outcome.SideEffects, SideEffectResult{Name: name, Err: err})
	}

	if syncStaff {
		diff, syncErr := s.store.SyncStaffAssignments(ctx, plan.ID, desired, session.UserName)
		record("staff_assignment_sync", syncErr)
		if syncErr == nil {
			// Announce the actual change set; a finalize does not re-ping
			// carers whose assignment stayed the same.
			record("staff_notifications", s.dispatchAssignmentNotifications(ctx, plan, diff, false))
		}
	}

	if plan.Status == store.PlanStatusPendingApproval {
		record("approval_event", s.store.InsertApprovalEvent(ctx, plan.ID, plan.Status, session.UserName))
	}

	record("organization_assignment", s.assignOrganizationWithRetry(ctx, plan.ID))
	record("client_profile_sync", s.store.SyncClientProfile(ctx, plan))
	record("monitoring", s.reconcileMonitoring(ctx, plan))

	if plan.Status == store.PlanStatusApproved || plan.Status == store.PlanStatusActive {
		record("client_notification", s.notifyClientPlanAvailable(ctx, plan))
	}

	s.snapshotPlan(ctx, plan, session.UserName, fmt.Sprintf("Finalize plan as %s", plan.Status))
	s.export.Invalidate(plan.ID)
	s.indexPlan(plan)

	return outcome, nil
}

// assignOrganizationWithRetry stamps the owning organization onto the plan.
// The update races branch provisioning in fresh tenants, so it retries a few
// times with a linear backoff before reporting failure.
func (s *Service) assignOrganizationWithRetry(ctx context.Context, carePlanID string) error {
	const attempts = 3
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = s.store.AssignCarePlanOrganization(ctx, carePlanID); err == nil {
			return nil
		}
		if attempt < attempts {
			s.sleep(time.Duration(attempt) * time.Second)
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

// reconcileMonitoring enrolls or withdraws the client from remote monitoring
// to match the plan. Enrollment is idempotent: an already-active record for
// the client is left alone.
func (s *Service) reconcileMonitoring(ctx context.Context, plan store.CarePlan) error {
	live := plan.Status == store.PlanStatusApproved || plan.Status == store.PlanStatusActive
	if plan.MonitoringEnabled && live {
		existing, err := s.store.GetActiveMonitoring(ctx, plan.ClientID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		return s.store.CreateMonitoring(ctx, store.MonitoringRecord{
			ID:         util.NewID("mon"),
			ClientID:   plan.ClientID,
			CarePlanID: plan.ID,
		})
	}
	if !plan.MonitoringEnabled {
		return s.store.DeactivateMonitoring(ctx, plan.ClientID)
	}
	return nil
}
