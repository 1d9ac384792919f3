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

type VisitInput struct {
	StaffID        string    `json:"staffId"`
	ScheduledStart time.Time `json:"scheduledStart"`
	ScheduledEnd   time.Time `json:"scheduledEnd"`
	Notes          string    `json:"notes"`
}

var visitStatuses = map[string]struct{}{
	"scheduled":   {},
	"in_progress": {},
	"completed":   {},
	"missed":      {},
	"cancelled":   {},
}

func (s *Service) ListCarePlanVisits(ctx context.Context, session Session, carePlanID string) ([]store.Visit, error) {
	if _, err := s.loadScopedPlan(ctx, session, carePlanID); err != nil {
		return nil, err
	}
	return s.store.ListVisitsByCarePlan(ctx, carePlanID)
}

// StaffDayVisits returns a carer's schedule for one calendar day (UTC).
// date is "2006-01-02"; empty means today.
func (s *Service) StaffDayVisits(ctx context.Context, session Session, staffID, date string) ([]store.Visit, error) {
	staff, err := s.store.GetStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if rbac.Normalize(session.Role) != rbac.RoleAdmin && staff.BranchID != session.BranchID {
		return nil, errNotFound()
	}

	day := time.Now().UTC()
	if strings.TrimSpace(date) != "" {
		day, err = time.Parse("2006-01-02", date)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				"date must be YYYY-MM-DD", map[string]any{"date": date})
		}
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return s.store.ListVisitsByStaff(ctx, staff.ID, from, from.Add(24*time.Hour))
}

func (s *Service) ScheduleVisit(ctx context.Context, session Session, carePlanID string, input VisitInput) (store.Visit, error) {
	plan, err := s.loadScopedPlan(ctx, session, carePlanID)
	if err != nil {
		return store.Visit{}, err
	}
	if input.ScheduledStart.IsZero() || input.ScheduledEnd.IsZero() || !input.ScheduledEnd.After(input.ScheduledStart) {
		return store.Visit{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"scheduledEnd must be after scheduledStart", nil)
	}
	if err := s.validateStaffIDs(ctx, plan.BranchID, []string{input.StaffID}); err != nil {
		return store.Visit{}, err
	}

	visit := store.Visit{
		ID:             util.NewID("vis"),
		BranchID:       plan.BranchID,
		CarePlanID:     plan.ID,
		ClientID:       plan.ClientID,
		StaffID:        input.StaffID,
		ScheduledStart: input.ScheduledStart,
		ScheduledEnd:   input.ScheduledEnd,
		Status:         "scheduled",
		Notes:          strings.TrimSpace(input.Notes),
	}
	if err := s.store.InsertVisit(ctx, visit); err != nil {
		return store.Visit{}, err
	}
	s.indexVisit(visit)
	return visit, nil
}

func (s *Service) UpdateVisitStatus(ctx context.Context, session Session, visitID, status, notes string) (store.Visit, error) {
	if _, ok := visitStatuses[status]; !ok {
		return store.Visit{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"invalid visit status", map[string]any{"status": status})
	}
	visit, err := s.store.GetVisit(ctx, visitID)
	if err != nil {
		return store.Visit{}, err
	}
	if _, err := s.loadScopedPlan(ctx, session, visit.CarePlanID); err != nil {
		return store.Visit{}, err
	}

	visit, err = s.store.UpdateVisitStatus(ctx, visitID, status, strings.TrimSpace(notes))
	if err != nil {
		return store.Visit{}, err
	}
	s.indexVisit(visit)
	return visit, nil
}

type RiskInput struct {
	Category     string     `json:"category"`
	Severity     string     `json:"severity"`
	Summary      string     `json:"summary"`
	NextReviewAt *time.Time `json:"nextReviewAt"`
}

func (s *Service) ListClientRisks(ctx context.Context, session Session, clientID string) ([]store.RiskAssessment, error) {
	if _, err := s.loadScopedClient(ctx, session, clientID); err != nil {
		return nil, err
	}
	return s.store.ListRiskAssessmentsByClient(ctx, clientID)
}

func (s *Service) RecordRiskAssessment(ctx context.Context, session Session, clientID string, input RiskInput) (store.RiskAssessment, error) {
	client, err := s.loadScopedClient(ctx, session, clientID)
	if err != nil {
		return store.RiskAssessment{}, err
	}
	if strings.TrimSpace(input.Category) == "" || strings.TrimSpace(input.Summary) == "" {
		return store.RiskAssessment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"category and summary are required", nil)
	}
	severity := strings.ToLower(strings.TrimSpace(input.Severity))
	switch severity {
	case "low", "medium", "high":
	default:
		return store.RiskAssessment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"severity must be low, medium or high", nil)
	}

	item := store.RiskAssessment{
		ID:           util.NewID("rsk"),
		BranchID:     client.BranchID,
		ClientID:     client.ID,
		Category:     strings.TrimSpace(input.Category),
		Severity:     severity,
		Summary:      strings.TrimSpace(input.Summary),
		NextReviewAt: input.NextReviewAt,
		CreatedBy:    session.UserName,
	}
	if err := s.store.InsertRiskAssessment(ctx, item); err != nil {
		return store.RiskAssessment{}, err
	}
	return item, nil
}

func (s *Service) indexVisit(visit store.Visit) {
	s.search.IndexVisit(search.VisitRecord{
		ID:       visit.ID,
		Notes:    visit.Notes,
		ClientID: visit.ClientID,
		BranchID: visit.BranchID,
		Status:   visit.Status,
	})
}
