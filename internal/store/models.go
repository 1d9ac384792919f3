package store

import "time"

// Care plan lifecycle statuses.
const (
	PlanStatusDraft           = "draft"
	PlanStatusPendingApproval = "pending_client_approval"
	PlanStatusApproved        = "approved"
	PlanStatusActive          = "active"
	PlanStatusOnHold          = "on_hold"
	PlanStatusArchived        = "archived"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	BranchID              string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Organization struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Branch struct {
	ID             string
	OrganizationID string
	Name           string
	Slug           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Client struct {
	ID          string
	BranchID    string
	UserID      *string
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Address     string
	Phone       string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayName is the name shown in notifications and exports.
func (c Client) DisplayName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type Staff struct {
	ID        string
	BranchID  string
	UserID    *string
	FirstName string
	LastName  string
	Role      string
	Email     string
	Phone     string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s Staff) DisplayName() string {
	if s.FirstName == "" {
		return s.LastName
	}
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

type CarePlan struct {
	ID                    string
	DisplayID             string
	BranchID              string
	OrganizationID        *string
	ClientID              string
	Title                 string
	Status                string
	StaffID               *string
	ProviderName          string
	MonitoringEnabled     bool
	ClientAcknowledgedAt  *time.Time
	ClientSignatureData   string
	ClientComments        string
	AcknowledgmentMethod  string
	ChangeRequestedAt     *time.Time
	ChangeRequestedBy     string
	ChangeRequestComments string
	CreatedBy             string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// StaffAssignment is one row in the care plan / staff join table. The join
// table is the source of truth for multi-staff assignment; CarePlan.StaffID
// mirrors the primary row.
type StaffAssignment struct {
	CarePlanID string
	StaffID    string
	IsPrimary  bool
	AssignedAt time.Time
	AssignedBy string
}

// AssignmentDiff is the result of reconciling a desired staff list against
// the join table.
type AssignmentDiff struct {
	Added     []string
	Removed   []string
	Unchanged []string
}

type Notification struct {
	ID             string
	UserID         string
	BranchID       string
	OrganizationID *string
	Type           string
	Category       string
	Priority       string
	Title          string
	Message        string
	Data           map[string]any
	ReadAt         *time.Time
	CreatedAt      time.Time
}

// ClientSummary is the minimal client projection the notification dispatcher
// needs: display name plus tenant scoping.
type ClientSummary struct {
	ID             string
	Name           string
	BranchID       string
	OrganizationID *string
}

type MonitoringRecord struct {
	ID            string
	ClientID      string
	CarePlanID    string
	Active        bool
	EnrolledAt    time.Time
	DeactivatedAt *time.Time
}

type ApprovalEvent struct {
	ID         int64
	CarePlanID string
	Status     string
	Actor      string
	CreatedAt  time.Time
}

type Visit struct {
	ID             string
	BranchID       string
	CarePlanID     string
	ClientID       string
	StaffID        string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	Status         string
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type RiskAssessment struct {
	ID           string
	BranchID     string
	ClientID     string
	Category     string
	Severity     string
	Summary      string
	NextReviewAt *time.Time
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
