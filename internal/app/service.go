package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"carelink/api/internal/auth"
	"carelink/api/internal/authpw"
	"carelink/api/internal/config"
	"carelink/api/internal/docs"
	"carelink/api/internal/email"
	"carelink/api/internal/export"
	"carelink/api/internal/planrepo"
	"carelink/api/internal/rbac"
	"carelink/api/internal/search"
	"carelink/api/internal/session"
	"carelink/api/internal/store"
	"carelink/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	BranchID     string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	GetBranch(context.Context, string) (store.Branch, error)
	ListBranches(context.Context, string) ([]store.Branch, error)

	GetClient(context.Context, string) (store.Client, error)
	ListClients(context.Context, string) ([]store.Client, error)
	InsertClient(context.Context, store.Client) error
	UpdateClient(context.Context, store.Client) error
	GetClientSummary(context.Context, string) (store.ClientSummary, error)

	GetStaff(context.Context, string) (store.Staff, error)
	ListStaff(context.Context, string) ([]store.Staff, error)
	InsertStaff(context.Context, store.Staff) error
	ResolveStaffUserIDs(context.Context, []string) (map[string]string, error)

	GetCarePlan(context.Context, string) (store.CarePlan, error)
	ListCarePlansByClient(context.Context, string) ([]store.CarePlan, error)
	InsertCarePlan(context.Context, store.CarePlan) error
	UpdateCarePlanStatus(context.Context, store.CarePlanStatusUpdate) (store.CarePlan, error)
	AcknowledgeCarePlan(context.Context, string, string, string, string) (store.CarePlan, error)
	RequestCarePlanChanges(context.Context, string, string, string) (store.CarePlan, error)
	InsertApprovalEvent(context.Context, string, string, string) error
	ListApprovalEvents(context.Context, string) ([]store.ApprovalEvent, error)
	GetActiveMonitoring(context.Context, string) (*store.MonitoringRecord, error)
	CreateMonitoring(context.Context, store.MonitoringRecord) error
	DeactivateMonitoring(context.Context, string) error
	SyncClientProfile(context.Context, store.CarePlan) error
	AssignCarePlanOrganization(context.Context, string) error

	ListAssignments(context.Context, string) ([]store.StaffAssignment, error)
	SyncStaffAssignments(context.Context, string, []string, string) (store.AssignmentDiff, error)

	InsertNotifications(context.Context, []store.Notification) error
	ListNotifications(context.Context, string, int) ([]store.Notification, error)
	MarkNotificationRead(context.Context, string, string) error
	UnreadNotificationCount(context.Context, string) (int, error)

	GetVisit(context.Context, string) (store.Visit, error)
	ListVisitsByCarePlan(context.Context, string) ([]store.Visit, error)
	ListVisitsByStaff(context.Context, string, time.Time, time.Time) ([]store.Visit, error)
	InsertVisit(context.Context, store.Visit) error
	UpdateVisitStatus(context.Context, string, string, string) (store.Visit, error)

	InsertRiskAssessment(context.Context, store.RiskAssessment) error
	ListRiskAssessmentsByClient(context.Context, string) ([]store.RiskAssessment, error)
}

type planRepoService interface {
	EnsurePlanRepo(carePlanID string, initial planrepo.PlanContent, author string) error
	CommitSnapshot(carePlanID string, content planrepo.PlanContent, author, message string) (planrepo.Revision, error)
	GetHeadContent(carePlanID string) (planrepo.PlanContent, planrepo.Revision, error)
	GetRevision(carePlanID, hash string) (planrepo.PlanContent, planrepo.Revision, error)
	History(carePlanID string, limit int) ([]planrepo.Revision, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions session.Store
	plans    planRepoService
	search   *search.Service
	export   *export.Service
	docs     *docs.Service
	email    *email.Service
	authpw   *authpw.Service
	// sleep is swapped out in tests so side-effect retries do not stall them.
	sleep func(time.Duration)
}

func New(
	cfg config.Config,
	dataStore *store.PostgresStore,
	sessions session.Store,
	planRepos *planrepo.Service,
	searchSvc *search.Service,
	exportSvc *export.Service,
	docsSvc *docs.Service,
	emailSvc *email.Service,
	authSvc *authpw.Service,
) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		plans:    planRepos,
		search:   searchSvc,
		export:   exportSvc,
		docs:     docsSvc,
		email:    emailSvc,
		authpw:   authSvc,
		sleep:    time.Sleep,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// SignUp registers an account and emails the verification link when SMTP is
// configured. A failed email never fails the signup; the token can be resent.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.SignUpResponse, error) {
	resp, err := s.authpw.SignUp(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.email != nil && s.email.IsConfigured() {
		verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.cfg.PortalURL, resp.VerificationToken)
		if err := s.email.SendVerificationEmail(req.Email, req.DisplayName, verifyURL); err != nil {
			log.Printf("signup: send verification email to %s: %v", req.Email, err)
		}
	}
	return resp, nil
}

func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, bool, error) {
	resp, err := s.authpw.SignIn(ctx, authpw.SignInRequest{Email: emailAddr, Password: password})
	if err != nil {
		return Session{}, false, err
	}
	if resp.RequiresVerify {
		return Session{}, true, nil
	}
	issued, err := s.issueSession(ctx, resp.User)
	if err != nil {
		return Session{}, false, err
	}
	return issued, false, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	return s.authpw.VerifyEmail(ctx, token)
}

// RequestPasswordReset always reports success to the caller; whether the email
// exists is not revealed.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	token, err := s.authpw.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	if s.email != nil && s.email.IsConfigured() {
		resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.PortalURL, token)
		if err := s.email.SendPasswordResetEmail(emailAddr, "", resetURL); err != nil {
			log.Printf("password reset: send email to %s: %v", emailAddr, err)
		}
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.authpw.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword})
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:    user.ID,
		Name:   user.DisplayName,
		Role:   user.Role,
		Branch: user.BranchID,
		JTI:    jti,
		Exp:    expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, err := randomToken()
	if err != nil {
		return Session{}, fmt.Errorf("issue refresh token: %w", err)
	}
	refreshExpiry := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user, refreshExpiry); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		BranchID:     user.BranchID,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates the refresh token: the presented token is revoked and a new
// pair is issued, so a replayed token fails on the second use.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      claims.Role,
		BranchID:  claims.Branch,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			return fmt.Errorf("revoke access token: %w", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return fmt.Errorf("revoke refresh session: %w", err)
		}
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
