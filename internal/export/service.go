package export

import (
	"context"
	"fmt"
	"time"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetPlanInfo(ctx context.Context, carePlanID string) (PlanInfo, error)
	ListAssignedStaff(ctx context.Context, carePlanID string) ([]StaffInfo, error)
	ListVisitInfo(ctx context.Context, carePlanID string) ([]VisitInfo, error)
	ListRiskInfo(ctx context.Context, clientID string) ([]RiskInfo, error)
}

// PlanInfo holds the care plan metadata needed for an export
type PlanInfo struct {
	ID           string
	DisplayID    string
	Title        string
	Status       string
	ClientID     string
	ClientName   string
	ProviderName string
	BranchName   string
	UpdatedAt    time.Time
}

// StaffInfo holds one assigned staff member
type StaffInfo struct {
	Name      string
	Role      string
	IsPrimary bool
}

// VisitInfo holds one scheduled visit
type VisitInfo struct {
	Start     time.Time
	End       time.Time
	StaffName string
	Status    string
	Notes     string
}

// RiskInfo holds one risk assessment
type RiskInfo struct {
	Category string
	Severity string
	Summary  string
}

// Service provides care plan export functionality
type Service struct {
	store     DataStore
	coalescer *Coalescer
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{
		store:     store,
		coalescer: NewCoalescer(2*time.Minute, 128),
	}
}

// Export generates an export in the requested format. Concurrent requests
// for the same plan and format share a single generation.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	key := fmt.Sprintf("%s|%s|%t|%t", req.CarePlanID, req.Format, req.IncludeVisits, req.IncludeRisks)
	return s.coalescer.Do(key, func() (*Result, error) {
		return s.generate(ctx, req)
	})
}

// Invalidate drops cached exports for a plan after it changes.
func (s *Service) Invalidate(carePlanID string) {
	for _, format := range []Format{FormatPDF, FormatDOCX} {
		for _, visits := range []bool{true, false} {
			for _, risks := range []bool{true, false} {
				s.coalescer.Invalidate(fmt.Sprintf("%s|%s|%t|%t", carePlanID, format, visits, risks))
			}
		}
	}
}

func (s *Service) generate(ctx context.Context, req Request) (*Result, error) {
	plan, err := s.store.GetPlanInfo(ctx, req.CarePlanID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	staff, err := s.store.ListAssignedStaff(ctx, req.CarePlanID)
	if err != nil {
		return nil, fmt.Errorf("list assigned staff: %w", err)
	}

	data := TemplateData{
		Title:        plan.Title,
		DisplayID:    plan.DisplayID,
		Status:       plan.Status,
		ClientName:   plan.ClientName,
		ProviderName: plan.ProviderName,
		BranchName:   plan.BranchName,
		UpdatedAt:    plan.UpdatedAt,
		Staff:        []TemplateStaff{},
		Visits:       []TemplateVisit{},
		Risks:        []TemplateRisk{},
	}
	for _, member := range staff {
		data.Staff = append(data.Staff, TemplateStaff{
			Name:      member.Name,
			Role:      member.Role,
			IsPrimary: member.IsPrimary,
		})
	}

	if req.IncludeVisits {
		visits, err := s.store.ListVisitInfo(ctx, req.CarePlanID)
		if err != nil {
			return nil, fmt.Errorf("list visits: %w", err)
		}
		for _, visit := range visits {
			data.Visits = append(data.Visits, TemplateVisit{
				Start:  visit.Start,
				End:    visit.End,
				Staff:  visit.StaffName,
				Status: visit.Status,
				Notes:  visit.Notes,
			})
		}
	}

	if req.IncludeRisks {
		risks, err := s.store.ListRiskInfo(ctx, plan.ClientID)
		if err != nil {
			return nil, fmt.Errorf("list risk assessments: %w", err)
		}
		for _, risk := range risks {
			data.Risks = append(data.Risks, TemplateRisk{
				Category: risk.Category,
				Severity: risk.Severity,
				Summary:  risk.Summary,
			})
		}
	}

	html, err := RenderPlanHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, plan.Title)
	case FormatDOCX:
		return exportDOCX(html, plan.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
