package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"carelink/api/internal/config"
	"carelink/api/internal/email"
	"carelink/api/internal/export"
	"carelink/api/internal/planrepo"
	"carelink/api/internal/search"
	"carelink/api/internal/store"
)

// fakeStore implements dataStore with overridable function fields. Unset
// fields fall back to inert defaults so each test only wires what it checks.
type fakeStore struct {
	PingFn                        func(ctx context.Context) error
	GetUserByIDFn                 func(ctx context.Context, id string) (store.User, error)
	RevokeAccessTokenFn           func(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevokedFn        func(ctx context.Context, jti string) (bool, error)
	GetBranchFn                   func(ctx context.Context, id string) (store.Branch, error)
	ListBranchesFn                func(ctx context.Context, orgID string) ([]store.Branch, error)
	GetClientFn                   func(ctx context.Context, id string) (store.Client, error)
	ListClientsFn                 func(ctx context.Context, branchID string) ([]store.Client, error)
	InsertClientFn                func(ctx context.Context, item store.Client) error
	UpdateClientFn                func(ctx context.Context, item store.Client) error
	GetClientSummaryFn            func(ctx context.Context, id string) (store.ClientSummary, error)
	GetStaffFn                    func(ctx context.Context, id string) (store.Staff, error)
	ListStaffFn                   func(ctx context.Context, branchID string) ([]store.Staff, error)
	InsertStaffFn                 func(ctx context.Context, item store.Staff) error
	ResolveStaffUserIDsFn         func(ctx context.Context, staffIDs []string) (map[string]string, error)
	GetCarePlanFn                 func(ctx context.Context, id string) (store.CarePlan, error)
	ListCarePlansByClientFn       func(ctx context.Context, clientID string) ([]store.CarePlan, error)
	InsertCarePlanFn              func(ctx context.Context, item store.CarePlan) error
	UpdateCarePlanStatusFn        func(ctx context.Context, update store.CarePlanStatusUpdate) (store.CarePlan, error)
	AcknowledgeCarePlanFn         func(ctx context.Context, id, sig, comments, method string) (store.CarePlan, error)
	RequestCarePlanChangesFn      func(ctx context.Context, id, by, comments string) (store.CarePlan, error)
	InsertApprovalEventFn         func(ctx context.Context, id, status, actor string) error
	ListApprovalEventsFn          func(ctx context.Context, id string) ([]store.ApprovalEvent, error)
	GetActiveMonitoringFn         func(ctx context.Context, clientID string) (*store.MonitoringRecord, error)
	CreateMonitoringFn            func(ctx context.Context, record store.MonitoringRecord) error
	DeactivateMonitoringFn        func(ctx context.Context, clientID string) error
	SyncClientProfileFn           func(ctx context.Context, plan store.CarePlan) error
	AssignCarePlanOrganizationFn  func(ctx context.Context, id string) error
	ListAssignmentsFn             func(ctx context.Context, id string) ([]store.StaffAssignment, error)
	SyncStaffAssignmentsFn        func(ctx context.Context, id string, desired []string, by string) (store.AssignmentDiff, error)
	InsertNotificationsFn         func(ctx context.Context, items []store.Notification) error
	ListNotificationsFn           func(ctx context.Context, userID string, limit int) ([]store.Notification, error)
	MarkNotificationReadFn        func(ctx context.Context, userID, id string) error
	UnreadNotificationCountFn     func(ctx context.Context, userID string) (int, error)
	GetVisitFn                    func(ctx context.Context, id string) (store.Visit, error)
	ListVisitsByCarePlanFn        func(ctx context.Context, id string) ([]store.Visit, error)
	ListVisitsByStaffFn           func(ctx context.Context, staffID string, from, to time.Time) ([]store.Visit, error)
	InsertVisitFn                 func(ctx context.Context, item store.Visit) error
	UpdateVisitStatusFn           func(ctx context.Context, id, status, notes string) (store.Visit, error)
	InsertRiskAssessmentFn        func(ctx context.Context, item store.RiskAssessment) error
	ListRiskAssessmentsByClientFn func(ctx context.Context, clientID string) ([]store.RiskAssessment, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.PingFn != nil {
		return f.PingFn(ctx)
	}
	return nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.GetUserByIDFn != nil {
		return f.GetUserByIDFn(ctx, id)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	if f.RevokeAccessTokenFn != nil {
		return f.RevokeAccessTokenFn(ctx, jti, exp)
	}
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.IsAccessTokenRevokedFn != nil {
		return f.IsAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}

func (f *fakeStore) GetBranch(ctx context.Context, id string) (store.Branch, error) {
	if f.GetBranchFn != nil {
		return f.GetBranchFn(ctx, id)
	}
	return store.Branch{}, sql.ErrNoRows
}

func (f *fakeStore) ListBranches(ctx context.Context, orgID string) ([]store.Branch, error) {
	if f.ListBranchesFn != nil {
		return f.ListBranchesFn(ctx, orgID)
	}
	return []store.Branch{}, nil
}

func (f *fakeStore) GetClient(ctx context.Context, id string) (store.Client, error) {
	if f.GetClientFn != nil {
		return f.GetClientFn(ctx, id)
	}
	return store.Client{}, sql.ErrNoRows
}

func (f *fakeStore) ListClients(ctx context.Context, branchID string) ([]store.Client, error) {
	if f.ListClientsFn != nil {
		return f.ListClientsFn(ctx, branchID)
	}
	return []store.Client{}, nil
}

func (f *fakeStore) InsertClient(ctx context.Context, item store.Client) error {
	if f.InsertClientFn != nil {
		return f.InsertClientFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) UpdateClient(ctx context.Context, item store.Client) error {
	if f.UpdateClientFn != nil {
		return f.UpdateClientFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) GetClientSummary(ctx context.Context, id string) (store.ClientSummary, error) {
	if f.GetClientSummaryFn != nil {
		return f.GetClientSummaryFn(ctx, id)
	}
	return store.ClientSummary{}, sql.ErrNoRows
}

func (f *fakeStore) GetStaff(ctx context.Context, id string) (store.Staff, error) {
	if f.GetStaffFn != nil {
		return f.GetStaffFn(ctx, id)
	}
	return store.Staff{}, sql.ErrNoRows
}

func (f *fakeStore) ListStaff(ctx context.Context, branchID string) ([]store.Staff, error) {
	if f.ListStaffFn != nil {
		return f.ListStaffFn(ctx, branchID)
	}
	return []store.Staff{}, nil
}

func (f *fakeStore) InsertStaff(ctx context.Context, item store.Staff) error {
	if f.InsertStaffFn != nil {
		return f.InsertStaffFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) ResolveStaffUserIDs(ctx context.Context, staffIDs []string) (map[string]string, error) {
	if f.ResolveStaffUserIDsFn != nil {
		return f.ResolveStaffUserIDsFn(ctx, staffIDs)
	}
	return map[string]string{}, nil
}

func (f *fakeStore) GetCarePlan(ctx context.Context, id string) (store.CarePlan, error) {
	if f.GetCarePlanFn != nil {
		return f.GetCarePlanFn(ctx, id)
	}
	return store.CarePlan{}, sql.ErrNoRows
}

func (f *fakeStore) ListCarePlansByClient(ctx context.Context, clientID string) ([]store.CarePlan, error) {
	if f.ListCarePlansByClientFn != nil {
		return f.ListCarePlansByClientFn(ctx, clientID)
	}
	return []store.CarePlan{}, nil
}

func (f *fakeStore) InsertCarePlan(ctx context.Context, item store.CarePlan) error {
	if f.InsertCarePlanFn != nil {
		return f.InsertCarePlanFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) UpdateCarePlanStatus(ctx context.Context, update store.CarePlanStatusUpdate) (store.CarePlan, error) {
	if f.UpdateCarePlanStatusFn != nil {
		return f.UpdateCarePlanStatusFn(ctx, update)
	}
	return store.CarePlan{}, sql.ErrNoRows
}

func (f *fakeStore) AcknowledgeCarePlan(ctx context.Context, id, sig, comments, method string) (store.CarePlan, error) {
	if f.AcknowledgeCarePlanFn != nil {
		return f.AcknowledgeCarePlanFn(ctx, id, sig, comments, method)
	}
	return store.CarePlan{}, sql.ErrNoRows
}

func (f *fakeStore) RequestCarePlanChanges(ctx context.Context, id, by, comments string) (store.CarePlan, error) {
	if f.RequestCarePlanChangesFn != nil {
		return f.RequestCarePlanChangesFn(ctx, id, by, comments)
	}
	return store.CarePlan{}, sql.ErrNoRows
}

func (f *fakeStore) InsertApprovalEvent(ctx context.Context, id, status, actor string) error {
	if f.InsertApprovalEventFn != nil {
		return f.InsertApprovalEventFn(ctx, id, status, actor)
	}
	return nil
}

func (f *fakeStore) ListApprovalEvents(ctx context.Context, id string) ([]store.ApprovalEvent, error) {
	if f.ListApprovalEventsFn != nil {
		return f.ListApprovalEventsFn(ctx, id)
	}
	return []store.ApprovalEvent{}, nil
}

func (f *fakeStore) GetActiveMonitoring(ctx context.Context, clientID string) (*store.MonitoringRecord, error) {
	if f.GetActiveMonitoringFn != nil {
		return f.GetActiveMonitoringFn(ctx, clientID)
	}
	return nil, nil
}

func (f *fakeStore) CreateMonitoring(ctx context.Context, record store.MonitoringRecord) error {
	if f.CreateMonitoringFn != nil {
		return f.CreateMonitoringFn(ctx, record)
	}
	return nil
}

func (f *fakeStore) DeactivateMonitoring(ctx context.Context, clientID string) error {
	if f.DeactivateMonitoringFn != nil {
		return f.DeactivateMonitoringFn(ctx, clientID)
	}
	return nil
}

func (f *fakeStore) SyncClientProfile(ctx context.Context, plan store.CarePlan) error {
	if f.SyncClientProfileFn != nil {
		return f.SyncClientProfileFn(ctx, plan)
	}
	return nil
}

func (f *fakeStore) AssignCarePlanOrganization(ctx context.Context, id string) error {
	if f.AssignCarePlanOrganizationFn != nil {
		return f.AssignCarePlanOrganizationFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) ListAssignments(ctx context.Context, id string) ([]store.StaffAssignment, error) {
	if f.ListAssignmentsFn != nil {
		return f.ListAssignmentsFn(ctx, id)
	}
	return []store.StaffAssignment{}, nil
}

func (f *fakeStore) SyncStaffAssignments(ctx context.Context, id string, desired []string, by string) (store.AssignmentDiff, error) {
	if f.SyncStaffAssignmentsFn != nil {
		return f.SyncStaffAssignmentsFn(ctx, id, desired, by)
	}
	return store.AssignmentDiff{}, nil
}

func (f *fakeStore) InsertNotifications(ctx context.Context, items []store.Notification) error {
	if f.InsertNotificationsFn != nil {
		return f.InsertNotificationsFn(ctx, items)
	}
	return nil
}

func (f *fakeStore) ListNotifications(ctx context.Context, userID string, limit int) ([]store.Notification, error) {
	if f.ListNotificationsFn != nil {
		return f.ListNotificationsFn(ctx, userID, limit)
	}
	return []store.Notification{}, nil
}

func (f *fakeStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	if f.MarkNotificationReadFn != nil {
		return f.MarkNotificationReadFn(ctx, userID, id)
	}
	return nil
}

func (f *fakeStore) UnreadNotificationCount(ctx context.Context, userID string) (int, error) {
	if f.UnreadNotificationCountFn != nil {
		return f.UnreadNotificationCountFn(ctx, userID)
	}
	return 0, nil
}

func (f *fakeStore) GetVisit(ctx context.Context, id string) (store.Visit, error) {
	if f.GetVisitFn != nil {
		return f.GetVisitFn(ctx, id)
	}
	return store.Visit{}, sql.ErrNoRows
}

func (f *fakeStore) ListVisitsByCarePlan(ctx context.Context, id string) ([]store.Visit, error) {
	if f.ListVisitsByCarePlanFn != nil {
		return f.ListVisitsByCarePlanFn(ctx, id)
	}
	return []store.Visit{}, nil
}

func (f *fakeStore) ListVisitsByStaff(ctx context.Context, staffID string, from, to time.Time) ([]store.Visit, error) {
	if f.ListVisitsByStaffFn != nil {
		return f.ListVisitsByStaffFn(ctx, staffID, from, to)
	}
	return []store.Visit{}, nil
}

func (f *fakeStore) InsertVisit(ctx context.Context, item store.Visit) error {
	if f.InsertVisitFn != nil {
		return f.InsertVisitFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) UpdateVisitStatus(ctx context.Context, id, status, notes string) (store.Visit, error) {
	if f.UpdateVisitStatusFn != nil {
		return f.UpdateVisitStatusFn(ctx, id, status, notes)
	}
	return store.Visit{}, sql.ErrNoRows
}

func (f *fakeStore) InsertRiskAssessment(ctx context.Context, item store.RiskAssessment) error {
	if f.InsertRiskAssessmentFn != nil {
		return f.InsertRiskAssessmentFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) ListRiskAssessmentsByClient(ctx context.Context, clientID string) ([]store.RiskAssessment, error) {
	if f.ListRiskAssessmentsByClientFn != nil {
		return f.ListRiskAssessmentsByClientFn(ctx, clientID)
	}
	return []store.RiskAssessment{}, nil
}

// fakeSessions is an in-memory session.Store.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]store.User
}

func (f *fakeSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions == nil {
		f.sessions = make(map[string]store.User)
	}
	f.sessions[tokenHash] = user
	return nil
}

func (f *fakeSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.sessions[tokenHash]
	if !ok {
		return store.User{}, errors.New("token not found")
	}
	return user, nil
}

func (f *fakeSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

// fakePlanRepo records snapshot commits.
type fakePlanRepo struct {
	mu       sync.Mutex
	ensured  []string
	commits  []string
	failNext bool
}

func (f *fakePlanRepo) EnsurePlanRepo(carePlanID string, initial planrepo.PlanContent, author string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, carePlanID)
	return nil
}

func (f *fakePlanRepo) CommitSnapshot(carePlanID string, content planrepo.PlanContent, author, message string) (planrepo.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return planrepo.Revision{}, errors.New("repo unavailable")
	}
	f.commits = append(f.commits, message)
	return planrepo.Revision{Hash: "abc1234", Message: message, Author: author}, nil
}

func (f *fakePlanRepo) GetHeadContent(carePlanID string) (planrepo.PlanContent, planrepo.Revision, error) {
	return planrepo.PlanContent{}, planrepo.Revision{}, errors.New("not implemented")
}

func (f *fakePlanRepo) GetRevision(carePlanID, hash string) (planrepo.PlanContent, planrepo.Revision, error) {
	return planrepo.PlanContent{}, planrepo.Revision{}, errors.New("not implemented")
}

func (f *fakePlanRepo) History(carePlanID string, limit int) ([]planrepo.Revision, error) {
	return []planrepo.Revision{}, nil
}

// exportStoreStub satisfies export.DataStore; export generation is not
// exercised by these tests.
type exportStoreStub struct{}

func (exportStoreStub) GetPlanInfo(ctx context.Context, carePlanID string) (export.PlanInfo, error) {
	return export.PlanInfo{}, errors.New("unavailable")
}

func (exportStoreStub) ListAssignedStaff(ctx context.Context, carePlanID string) ([]export.StaffInfo, error) {
	return nil, errors.New("unavailable")
}

func (exportStoreStub) ListVisitInfo(ctx context.Context, carePlanID string) ([]export.VisitInfo, error) {
	return nil, errors.New("unavailable")
}

func (exportStoreStub) ListRiskInfo(ctx context.Context, clientID string) ([]export.RiskInfo, error) {
	return nil, errors.New("unavailable")
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Minute,
			RefreshTTL: time.Hour,
			PortalURL:  "http://portal.test",
		},
		store:    fs,
		sessions: &fakeSessions{},
		plans:    &fakePlanRepo{},
		search:   search.NewService(nil, nil),
		export:   export.NewService(exportStoreStub{}),
		email:    email.NewService(email.Config{}),
		sleep:    func(time.Duration) {},
	}
}

func testUser() store.User {
	return store.User{
		ID:          "usr_mgr",
		DisplayName: "Priya Shah",
		Email:       "priya@example.org",
		Role:        "manager",
		BranchID:    "brn_1",
	}
}

func jsonBody(body string) io.Reader {
	return strings.NewReader(body)
}

func managerSession() Session {
	return Session{
		UserID:   "usr_mgr",
		UserName: "Priya Shah",
		Role:     "manager",
		BranchID: "brn_1",
		JTI:       "jti_1",
		ExpiresAt: time.Now().Add(time.Minute),
	}
}
