package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"blupi/api/internal/auth"
	"blupi/api/internal/authpw"
	"blupi/api/internal/board"
	"blupi/api/internal/config"
	"blupi/api/internal/email"
	"blupi/api/internal/export"
	"blupi/api/internal/importer"
	"blupi/api/internal/notify"
	"blupi/api/internal/rbac"
	"blupi/api/internal/search"
	"blupi/api/internal/store"
	"blupi/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// OrgContext is the caller's resolved tenant: the active organization and
// the caller's role in it.
type OrgContext struct {
	Org  store.Organization
	Role rbac.Role
}

// tenantStore is the slice of the store bound to one organization.
type tenantStore interface {
	OrgID() string

	ListProjects(ctx context.Context) ([]store.Project, error)
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	InsertProject(ctx context.Context, item store.Project) error
	UpdateProject(ctx context.Context, projectID, name, color, status string) error
	DeleteProject(ctx context.Context, projectID string) error
	ProjectBoardCount(ctx context.Context, projectID string) (int, error)
	ListProjectMembers(ctx context.Context, projectID string) ([]store.ProjectMember, error)
	UpsertProjectMember(ctx context.Context, member store.ProjectMember) error
	GetProjectMemberRole(ctx context.Context, projectID, userID string) (string, error)

	ListBoards(ctx context.Context) ([]store.Board, error)
	ListBoardsByProject(ctx context.Context, projectID string) ([]store.Board, error)
	GetBoard(ctx context.Context, boardID string) (store.Board, error)
	InsertBoard(ctx context.Context, item store.Board) error
	UpdateBoardMeta(ctx context.Context, boardID, name, description, status, updatedBy string) error
	UpdateBoardContent(ctx context.Context, boardID string, content board.Content, updatedBy string) error
	MutateBoardContent(ctx context.Context, boardID, updatedBy string, fn func(board.Content) (board.Content, error)) (board.Content, error)
	SetBoardPublic(ctx context.Context, boardID string, isPublic bool, publicRole, shareToken string) error
	DeleteBoard(ctx context.Context, boardID string) error

	ListComments(ctx context.Context, boardID string) ([]store.Comment, error)
	InsertComment(ctx context.Context, item store.Comment) error
}

type dataStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)

	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	CreateOrganization(ctx context.Context, org store.Organization, ownerID string) error
	OrganizationSlugExists(ctx context.Context, slug string) (bool, error)
	ListOrganizationsForUser(ctx context.Context, userID string) ([]store.Organization, error)
	ActivateOrganization(ctx context.Context, userID, orgID string) error
	ActiveOrganization(ctx context.Context, userID string) (store.Organization, string, error)
	ListOrganizationMembers(ctx context.Context, orgID string) ([]store.Membership, error)
	AddOrganizationMember(ctx context.Context, orgID, userID, role string) error

	InsertNotification(ctx context.Context, n store.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error

	GetBoardByShareToken(ctx context.Context, token string) (store.Board, error)

	Tenant(orgID string) tenantStore
	Ping(ctx context.Context) error
}

// refreshStore holds refresh sessions; Redis when configured, PostgreSQL
// otherwise.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type searcher interface {
	Search(q search.Query) search.Response
	IndexBoard(b search.BoardRecord)
	IndexComment(c search.CommentRecord)
	DeleteBoard(id string)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	authpw   *authpw.Service
	email    *email.Service
	notify   *notify.Service
	search   searcher
	export   *export.Service
}

func New(cfg config.Config, ds dataStore, sessions refreshStore, authSvc *authpw.Service, emailSvc *email.Service, notifySvc *notify.Service, searchSvc searcher, exportSvc *export.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    ds,
		sessions: sessions,
		authpw:   authSvc,
		email:    emailSvc,
		notify:   notifySvc,
		search:   searchSvc,
		export:   exportSvc,
	}
}

// pgStore adapts the concrete PostgresStore to the service interfaces.
type pgStore struct {
	*store.PostgresStore
}

func (p pgStore) Tenant(orgID string) tenantStore {
	return p.PostgresStore.Tenant(orgID)
}

// WrapStore adapts a PostgresStore for use with New.
func WrapStore(s *store.PostgresStore) dataStore {
	return pgStore{s}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// Sessions

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, jti, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SignUp(ctx context.Context, emailAddr, password, displayName string) (string, error) {
	resp, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       emailAddr,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		if errors.Is(err, authpw.ErrEmailExists) {
			return "", domainError(http.StatusConflict, "An account with that email already exists")
		}
		return "", domainError(http.StatusBadRequest, err.Error())
	}

	if s.email != nil && s.email.IsConfigured() {
		data := email.VerificationData{
			UserName:        displayName,
			VerificationURL: s.cfg.AppBaseURL + "/verify-email?token=" + resp.VerificationToken,
		}
		if err := s.email.SendVerificationEmail(emailAddr, data); err != nil {
			log.Printf("signup: verification email to %s: %v", emailAddr, err)
		}
	}
	return resp.UserID, nil
}

func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	token, err := s.authpw.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		return err
	}
	// Empty token means no such account; the response is identical either
	// way so the endpoint cannot probe for accounts.
	if token == "" || s.email == nil || !s.email.IsConfigured() {
		return nil
	}
	user, err := s.store.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		return nil
	}
	data := email.PasswordResetData{
		UserName: user.DisplayName,
		ResetURL: s.cfg.AppBaseURL + "/reset-password?token=" + token,
	}
	if err := s.email.SendPasswordResetEmail(user.Email, data); err != nil {
		log.Printf("reset: email to %s: %v", user.Email, err)
	}
	return nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	resp, err := s.authpw.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "Invalid email or password")
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "Email address not verified")
	}
	return s.issueSession(ctx, resp.User)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "Refresh token invalid")
	}
	// The session store may only carry the user id.
	full, err := s.store.GetUserByID(ctx, user.ID)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "Refresh token invalid")
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, full)
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.ID,
		ExpiresAt: expiresAt,
	}, nil
}

// Organizations

// ActiveOrg resolves the caller's tenant. Callers with no active
// organization are forbidden on organization-scoped endpoints.
func (s *Service) ActiveOrg(ctx context.Context, userID string) (OrgContext, error) {
	org, role, err := s.store.ActiveOrganization(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OrgContext{}, domainError(http.StatusForbidden, "No active organization")
		}
		return OrgContext{}, err
	}
	return OrgContext{Org: org, Role: rbac.Normalize(role)}, nil
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	slug := strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "org"
	}
	return slug
}

func (s *Service) ListOrganizations(ctx context.Context, session Session) ([]map[string]any, error) {
	orgs, err := s.store.ListOrganizationsForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	activeID := ""
	if active, _, err := s.store.ActiveOrganization(ctx, session.UserID); err == nil {
		activeID = active.ID
	}

	items := make([]map[string]any, 0, len(orgs))
	for _, org := range orgs {
		items = append(items, map[string]any{
			"id":     org.ID,
			"name":   org.Name,
			"slug":   org.Slug,
			"active": org.ID == activeID,
		})
	}
	return items, nil
}

func (s *Service) CreateOrganization(ctx context.Context, session Session, name string) (store.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Organization{}, domainError(http.StatusBadRequest, "Organization name is required")
	}

	slug := slugify(name)
	exists, err := s.store.OrganizationSlugExists(ctx, slug)
	if err != nil {
		return store.Organization{}, err
	}
	if exists {
		return store.Organization{}, domainError(http.StatusConflict, "An organization with that name already exists")
	}

	org := store.Organization{
		ID:   util.NewID("org"),
		Name: name,
		Slug: slug,
	}
	if err := s.store.CreateOrganization(ctx, org, session.UserID); err != nil {
		return store.Organization{}, err
	}
	return org, nil
}

func (s *Service) ActivateOrganization(ctx context.Context, session Session, orgID string) error {
	err := s.store.ActivateOrganization(ctx, session.UserID, orgID)
	if errors.Is(err, store.ErrNotMember) {
		return domainError(http.StatusForbidden, "Not a member of that organization")
	}
	return err
}

func (s *Service) ListOrganizationMembers(ctx context.Context, orgCtx OrgContext) ([]store.Membership, error) {
	if !rbac.Can(orgCtx.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "Admin role required")
	}
	return s.store.ListOrganizationMembers(ctx, orgCtx.Org.ID)
}

func (s *Service) InviteOrganizationMember(ctx context.Context, orgCtx OrgContext, session Session, email, role string) error {
	if !rbac.Can(orgCtx.Role, rbac.ActionAdmin) {
		return domainError(http.StatusForbidden, "Admin role required")
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domainError(http.StatusNotFound, "No account exists for that email")
	}
	return s.store.AddOrganizationMember(ctx, orgCtx.Org.ID, user.ID, string(rbac.Normalize(role)))
}

// Projects

type ProjectInput struct {
	Name   string `json:"name"`
	Color  string `json:"color"`
	Status string `json:"status"`
}

func (s *Service) ListProjects(ctx context.Context, orgCtx OrgContext) ([]store.Project, error) {
	return s.store.Tenant(orgCtx.Org.ID).ListProjects(ctx)
}

func (s *Service) GetProject(ctx context.Context, orgCtx OrgContext, projectID string) (store.Project, error) {
	return s.store.Tenant(orgCtx.Org.ID).GetProject(ctx, projectID)
}

func (s *Service) CreateProject(ctx context.Context, orgCtx OrgContext, session Session, input ProjectInput) (store.Project, error) {
	if !rbac.Can(orgCtx.Role, rbac.ActionWrite) {
		return store.Project{}, domainError(http.StatusForbidden, "Editor role required")
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return store.Project{}, domainError(http.StatusBadRequest, "Project name is required")
	}
	if input.Status == "" {
		input.Status = "active"
	}

	project := store.Project{
		ID:             util.NewID("prj"),
		OrganizationID: orgCtx.Org.ID,
		Name:           input.Name,
		Color:          input.Color,
		Status:         input.Status,
		CreatedBy:      session.UserID,
	}
	if err := s.store.Tenant(orgCtx.Org.ID).InsertProject(ctx, project); err != nil {
		return store.Project{}, err
	}
	return project, nil
}

func (s *Service) UpdateProject(ctx context.Context, orgCtx OrgContext, projectID string, input ProjectInput) (store.Project, error) {
	if !rbac.Can(orgCtx.Role, rbac.ActionWrite) {
		return store.Project{}, domainError(http.StatusForbidden, "Editor role required")
	}
	tenant := s.store.Tenant(orgCtx.Org.ID)
	current, err := tenant.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if input.Name == "" {
		input.Name = current.Name
	}
	if input.Color == "" {
		input.Color = current.Color
	}
	if input.Status == "" {
		input.Status = current.Status
	}
	if err := tenant.UpdateProject(ctx, projectID, input.Name, input.Color, input.Status); err != nil {
		return store.Project{}, err
	}
	return tenant.GetProject(ctx, projectID)
}

func (s *Service) DeleteProject(ctx context.Context, orgCtx OrgContext, projectID string) error {
	if !rbac.Can(orgCtx.Role, rbac.ActionAdmin) {
		return domainError(http.StatusForbidden, "Admin role required")
	}
	tenant := s.store.Tenant(orgCtx.Org.ID)
	count, err := tenant.ProjectBoardCount(ctx, projectID)
	if err != nil {
		return err
	}
	if count > 0 {
		return domainError(http.StatusConflict, "Project still contains boards")
	}
	return tenant.DeleteProject(ctx, projectID)
}

func (s *Service) ListProjectMembers(ctx context.Context, orgCtx OrgContext, projectID string) ([]store.ProjectMember, error) {
	tenant := s.store.Tenant(orgCtx.Org.ID)
	if _, err := tenant.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return tenant.ListProjectMembers(ctx, projectID)
}

func (s *Service) InviteProjectMember(ctx context.Context, orgCtx OrgContext, session Session, projectID, email, role string) error {
	if !rbac.Can(orgCtx.Role, rbac.ActionWrite) {
		return domainError(http.StatusForbidden, "Editor role required")
	}
	tenant := s.store.Tenant(orgCtx.Org.ID)
	project, err := tenant.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domainError(http.StatusNotFound, "No account exists for that email")
	}

	normalized := string(rbac.Normalize(role))
	if err := tenant.UpsertProjectMember(ctx, store.ProjectMember{
		ProjectID: projectID,
		UserID:    user.ID,
		Role:      normalized,
		InvitedBy: session.UserID,
	}); err != nil {
		return err
	}

	if s.notify != nil {
		s.notify.ProjectInvite(ctx, user.ID, user.DisplayName, user.Email, session.UserName,
			project.ID, project.Name, normalized, s.cfg.AppBaseURL+"/project/"+project.ID)
	}
	return nil
}

// Boards

// boardRole resolves the caller's effective role for one board: a project
// membership overrides the organization role, except that organization
// admins stay admins.
func (s *Service) boardRole(ctx context.Context, orgCtx OrgContext, session Session, b store.Board) rbac.Role {
	if orgCtx.Role == rbac.RoleAdmin || b.ProjectID == nil {
		return orgCtx.Role
	}
	role, err := s.store.Tenant(orgCtx.Org.ID).GetProjectMemberRole(ctx, *b.ProjectID, session.UserID)
	if err != nil {
		return orgCtx.Role
	}
	return rbac.Normalize(role)
}

type BoardInput struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	ProjectID   *string        `json:"projectId"`
	Content     *board.Content `json:"content"`
}

func (s *Service) ListBoards(ctx context.Context, orgCtx OrgContext, projectID string) ([]store.Board, error) {
	tenant := s.store.Tenant(orgCtx.Org.ID)
	if projectID != "" {
		return tenant.ListBoardsByProject(ctx, projectID)
	}
	return tenant.ListBoards(ctx)
}

func (s *Service) CreateBoard(ctx context.Context, orgCtx OrgContext, session Session, input BoardInput) (store.Board, error) {
	if !rbac.Can(orgCtx.Role, rbac.ActionWrite) {
		return store.Board{}, domainError(http.StatusForbidden, "Editor role required")
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return store.Board{}, domainError(http.StatusBadRequest, "Board name is required")
	}
	if input.Status == "" {
		input.Status = "draft"
	}

	content := board.Empty()
	if input.Content != nil {
		content = *input.Content
		if err := board.Validate(content); err != nil {
			return store.Board{}, domainError(http.StatusUnprocessableEntity, err.Error())
		}
	}

	tenant := s.store.Tenant(orgCtx.Org.ID)
	if input.ProjectID != nil {
		if _, err := tenant.GetProject(ctx, *input.ProjectID); err != nil {
			return store.Board{}, domainError(http.StatusNotFound, "Project not found")
		}
	}

	item := store.Board{
		ID:          util.NewID("brd"),
		ProjectID:   input.ProjectID,
		Name:        input.Name,
		Description: input.Description,
		Status:      input.Status,
		Content:     content,
		PublicRole:  string(rbac.RoleViewer),
		CreatedBy:   session.UserID,
		UpdatedBy:   session.UserID,
	}
	if err := tenant.InsertBoard(ctx, item); err != nil {
		return store.Board{}, err
	}

	created, err := tenant.GetBoard(ctx, item.ID)
	if err != nil {
		return store.Board{}, err
	}
	s.indexBoard(created)
	return created, nil
}

func (s *Service) GetBoard(ctx context.Context, orgCtx OrgContext, boardID string) (store.Board, error) {
	return s.store.Tenant(orgCtx.Org.ID).GetBoard(ctx, boardID)
}

func (s *Service) UpdateBoardMeta(ctx context.Context, orgCtx OrgContext, session Session, boardID string, input BoardInput) (store.Board, error) {
	tenant := s.store.Tenant(orgCtx.Org.ID)
	current, err := tenant.GetBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, err
	}
	if !rbac.Can(s.boardRole(ctx, orgCtx, session, current), rbac.ActionWrite) {
		return store.Board{}, domainError(http.StatusForbidden, "Editor role required")
	}

	name := current.Name
	if strings.TrimSpace(input.Name) != "" {
		name = strings.TrimSpace(input.Name)
	}
	description := current.Description
	if input.Description != "" {
		description = input.Description
	}
	status := current.Status
	if input.Status != "" {
		status = input.Status
	}
	if err := tenant.UpdateBoardMeta(ctx, boardID, name, description, status, session.UserID); err != nil {
		return store.Board{}, err
	}

	// Content in the same PATCH replaces the board body wholesale; the
	// last writer wins on this path.
	if input.Content != nil {
		if err := board.Validate(*input.Content); err != nil {
			return store.Board{}, domainError(http.StatusUnprocessableEntity, err.Error())
		}
		if err := tenant.UpdateBoardContent(ctx, boardID, *input.Content, session.UserID); err != nil {
			return store.Board{}, err
		}
	}

	updated, err := tenant.GetBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, err
	}
	s.indexBoard(updated)
	return updated, nil
}

func (s *Service) UpdateBoardContent(ctx context.Context, orgCtx OrgContext, session Session, boardID string, content board.Content) (store.Board, error) {
	tenant := s.store.Tenant(orgCtx.Org.ID)
	current, err := tenant.GetBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, err
	}
	if !rbac.Can(s.boardRole(ctx, orgCtx, session, current), rbac.ActionWrite) {
		return store.Board{}, domainError(http.StatusForbidden, "Editor role required")
	}
	if err := board.Validate(content); err != nil {
		return store.Board{}, domainError(http.StatusUnprocessableEntity, err.Error())
	}
	if err := tenant.UpdateBoardContent(ctx, boardID, content, session.UserID); err != nil {
		return store.Board{}, err
	}
	return tenant.GetBoard(ctx, boardID)
}

func (s *Service) DeleteBoard(ctx context.Context, orgCtx OrgContext, session Session, boardID string) error {
	tenant := s.store.Tenant(orgCtx.Org.ID)
	current, err := tenant.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if !rbac.Can(s.boardRole(ctx, orgCtx, session, current), rbac.ActionWrite) {
		return domainError(http.StatusForbidden, "Editor role required")
	}
	if err := tenant.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteBoard(boardID)
	}
	return nil
}

// Block-level operations

func (s *Service) AddBlock(ctx context.Context, orgCtx OrgContext, session Session, boardID string, block board.Block) (board.Content, error) {
	if strings.TrimSpace(block.ID) == "" {
		block.ID = util.NewID("blk")
	}
	return s.mutateBlocks(ctx, orgCtx, session, boardID, func(c board.Content) (board.Content, error) {
		return board.AddBlock(c, block)
	})
}

func (s *Service) UpdateBlock(ctx context.Context, orgCtx OrgContext, session Session, boardID, blockID string, patch board.BlockPatch) (board.Content, error) {
	return s.mutateBlocks(ctx, orgCtx, session, boardID, func(c board.Content) (board.Content, error) {
		return board.UpdateBlock(c, blockID, patch)
	})
}

func (s *Service) RemoveBlock(ctx context.Context, orgCtx OrgContext, session Session, boardID, blockID string) (board.Content, error) {
	return s.mutateBlocks(ctx, orgCtx, session, boardID, func(c board.Content) (board.Content, error) {
		return board.RemoveBlock(c, blockID)
	})
}

func (s *Service) mutateBlocks(ctx context.Context, orgCtx OrgContext, session Session, boardID string, fn func(board.Content) (board.Content, error)) (board.Content, error) {
	tenant := s.store.Tenant(orgCtx.Org.ID)
	current, err := tenant.GetBoard(ctx, boardID)
	if err != nil {
		return board.Content{}, err
	}
	if !rbac.Can(s.boardRole(ctx, orgCtx, session, current), rbac.ActionWrite) {
		return board.Content{}, domainError(http.StatusForbidden, "Editor role required")
	}

	updated, err := tenant.MutateBoardContent(ctx, boardID, session.UserID, fn)
	if err != nil {
		if errors.Is(err, board.ErrInvalid) {
			return board.Content{}, domainError(http.StatusUnprocessableEntity, err.Error())
		}
		return board.Content{}, err
	}
	return updated, nil
}

// Public sharing

type PublicInput struct {
	IsPublic   *bool  `json:"isPublic"`
	PublicRole string `json:"publicRole"`
}

func (s *Service) SetBoardPublic(ctx context.Context, orgCtx OrgContext, session Session, boardID string, input PublicInput) (store.Board, error) {
	tenant := s.store.Tenant(orgCtx.Org.ID)
	current, err := tenant.GetBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, err
	}
	if !rbac.Can(s.boardRole(ctx, orgCtx, session, current), rbac.ActionWrite) {
		return store.Board{}, domainError(http.StatusForbidden, "Editor role required")
	}

	isPublic := current.IsPublic
	if input.IsPublic != nil {
		isPublic = *input.IsPublic
	}
	publicRole := current.PublicRole
	if input.PublicRole != "" {
		publicRole = string(rbac.PublicRole(input.PublicRole))
	}

	shareToken := current.ShareToken
	if isPublic && shareToken == "" {
		shareToken = util.NewID("shr")
	}
	if !isPublic {
		shareToken = ""
	}

	if err := tenant.SetBoardPublic(ctx, boardID, isPublic, publicRole, shareToken); err != nil {
		return store.Board{}, err
	}
	return tenant.GetBoard(ctx, boardID)
}

// PublicBoard resolves a board by its share token. This is the one read
// path that crosses tenant boundaries, and only for boards marked public.
func (s *Service) PublicBoard(ctx context.Context, token string) (store.Board, error) {
	return s.store.GetBoardByShareToken(ctx, token)
}

func (s *Service) CreatePublicComment(ctx context.Context, token, authorName, body string, blockID *string) (store.Comment, error) {
	b, err := s.store.GetBoardByShareToken(ctx, token)
	if err != nil {
		return store.Comment{}, err
	}
	if !rbac.Can(rbac.PublicRole(b.PublicRole), rbac.ActionComment) {
		return store.Comment{}, domainError(http.StatusForbidden, "This board does not accept comments")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, domainError(http.StatusBadRequest, "Comment body is required")
	}
	authorName = strings.TrimSpace(authorName)
	if authorName == "" {
		authorName = "Guest"
	}

	// Guests have no users row; AuthorID stays empty and is stored as NULL.
	comment := store.Comment{
		ID:         util.NewID("cmt"),
		BoardID:    b.ID,
		BlockID:    blockID,
		Body:       body,
		AuthorName: authorName,
	}
	if err := s.store.Tenant(b.OrganizationID).InsertComment(ctx, comment); err != nil {
		return store.Comment{}, err
	}
	return comment, nil
}

// Comments

type CommentInput struct {
	Body    string  `json:"body"`
	BlockID *string `json:"blockId"`
}

func (s *Service) ListComments(ctx context.Context, orgCtx OrgContext, boardID string) ([]store.Comment, error) {
	tenant := s.store.Tenant(orgCtx.Org.ID)
	if _, err := tenant.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}
	return tenant.ListComments(ctx, boardID)
}

func (s *Service) CreateComment(ctx context.Context, orgCtx OrgContext, session Session, boardID string, input CommentInput) (store.Comment, error) {
	tenant := s.store.Tenant(orgCtx.Org.ID)
	b, err := tenant.GetBoard(ctx, boardID)
	if err != nil {
		return store.Comment{}, err
	}
	if !rbac.Can(s.boardRole(ctx, orgCtx, session, b), rbac.ActionComment) {
		return store.Comment{}, domainError(http.StatusForbidden, "Commenter role required")
	}
	input.Body = strings.TrimSpace(input.Body)
	if input.Body == "" {
		return store.Comment{}, domainError(http.StatusBadRequest, "Comment body is required")
	}

	comment := store.Comment{
		ID:         util.NewID("cmt"),
		BoardID:    boardID,
		BlockID:    input.BlockID,
		Body:       input.Body,
		AuthorID:   session.UserID,
		AuthorName: session.UserName,
	}
	if err := tenant.InsertComment(ctx, comment); err != nil {
		return store.Comment{}, err
	}

	if s.search != nil {
		projectID := ""
		if b.ProjectID != nil {
			projectID = *b.ProjectID
		}
		s.search.IndexComment(search.CommentRecord{
			ID:         comment.ID,
			Body:       comment.Body,
			AuthorName: comment.AuthorName,
			BoardID:    boardID,
			OrgID:      orgCtx.Org.ID,
			ProjectID:  projectID,
		})
	}

	if s.notify != nil {
		recipients := s.commentRecipients(ctx, orgCtx, b, session.UserID)
		excerpt := commentExcerpt(input.Body)
		s.notify.CommentPosted(ctx, boardID, b.Name, session.UserName, excerpt,
			s.cfg.AppBaseURL+"/board/"+boardID, recipients)
	}
	return comment, nil
}

// commentExcerpt shortens a comment body for notifications, cutting on a
// rune boundary so multi-byte characters are never split.
func commentExcerpt(body string) string {
	const max = 140
	if len(body) <= max {
		return body
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "…"
}

// commentRecipients picks who hears about a new comment: project members
// when the board belongs to a project, otherwise organization admins.
// The author never notifies themselves.
func (s *Service) commentRecipients(ctx context.Context, orgCtx OrgContext, b store.Board, authorID string) []store.Membership {
	var members []store.Membership
	if b.ProjectID != nil {
		projectMembers, err := s.store.Tenant(orgCtx.Org.ID).ListProjectMembers(ctx, *b.ProjectID)
		if err == nil {
			for _, pm := range projectMembers {
				members = append(members, store.Membership{
					UserID:    pm.UserID,
					UserName:  pm.UserName,
					UserEmail: pm.UserEmail,
				})
			}
		}
	} else {
		orgMembers, err := s.store.ListOrganizationMembers(ctx, orgCtx.Org.ID)
		if err == nil {
			for _, m := range orgMembers {
				if rbac.Normalize(m.Role) == rbac.RoleAdmin {
					members = append(members, m)
				}
			}
		}
	}

	recipients := members[:0]
	for _, m := range members {
		if m.UserID != authorID {
			recipients = append(recipients, m)
		}
	}
	return recipients
}

// Import

func (s *Service) ImportCSVBoard(ctx context.Context, orgCtx OrgContext, session Session, name, csvText string, projectID *string) (store.Board, error) {
	if !rbac.Can(orgCtx.Role, rbac.ActionWrite) {
		return store.Board{}, domainError(http.StatusForbidden, "Editor role required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Board{}, domainError(http.StatusBadRequest, "Board name is required")
	}
	content, err := importer.FromCSV(name, csvText)
	if err != nil {
		return store.Board{}, domainError(http.StatusBadRequest, fmt.Sprintf("Could not parse CSV: %v", err))
	}
	return s.CreateBoard(ctx, orgCtx, session, BoardInput{
		Name:      name,
		ProjectID: projectID,
		Content:   &content,
	})
}

// ImportPDFWorkflow synthesizes phases and blocks from an uploaded PDF and
// appends them to an existing board.
func (s *Service) ImportPDFWorkflow(ctx context.Context, orgCtx OrgContext, session Session, boardID string, pdfData []byte) (board.Content, error) {
	tenant := s.store.Tenant(orgCtx.Org.ID)
	current, err := tenant.GetBoard(ctx, boardID)
	if err != nil {
		return board.Content{}, err
	}
	if !rbac.Can(s.boardRole(ctx, orgCtx, session, current), rbac.ActionWrite) {
		return board.Content{}, domainError(http.StatusForbidden, "Editor role required")
	}

	generated, err := importer.FromPDF(current.Name, pdfData)
	if err != nil {
		return board.Content{}, domainError(http.StatusBadRequest, fmt.Sprintf("Could not read PDF: %v", err))
	}

	return tenant.MutateBoardContent(ctx, boardID, session.UserID, func(c board.Content) (board.Content, error) {
		c.Phases = append(c.Phases, generated.Phases...)
		c.Blocks = append(c.Blocks, generated.Blocks...)
		return c, nil
	})
}

// Export

func (s *Service) ExportBoard(ctx context.Context, orgCtx OrgContext, boardID string, format export.Format) (*export.Result, error) {
	tenant := s.store.Tenant(orgCtx.Org.ID)
	b, err := tenant.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}

	projectName := ""
	if b.ProjectID != nil {
		if project, err := tenant.GetProject(ctx, *b.ProjectID); err == nil {
			projectName = project.Name
		}
	}

	return s.export.Export(export.Deck{
		BoardName:   b.Name,
		ProjectName: projectName,
		OrgName:     orgCtx.Org.Name,
		Content:     b.Content,
	}, format)
}

// Search

func (s *Service) Search(ctx context.Context, orgCtx OrgContext, q search.Query) search.Response {
	q.OrgID = orgCtx.Org.ID
	return s.search.Search(q)
}

func (s *Service) indexBoard(b store.Board) {
	if s.search == nil {
		return
	}
	projectID := ""
	if b.ProjectID != nil {
		projectID = *b.ProjectID
	}
	s.search.IndexBoard(search.BoardRecord{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		OrgID:       b.OrganizationID,
		ProjectID:   projectID,
		Status:      b.Status,
	})
}

// Notifications

func (s *Service) ListNotifications(ctx context.Context, session Session) ([]store.Notification, error) {
	return s.store.ListNotifications(ctx, session.UserID, 50)
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	return s.store.MarkNotificationRead(ctx, session.UserID, notificationID)
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, session Session) error {
	return s.store.MarkAllNotificationsRead(ctx, session.UserID)
}
