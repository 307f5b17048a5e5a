package app

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"blupi/api/internal/authpw"
	"blupi/api/internal/board"
	"blupi/api/internal/config"
	"blupi/api/internal/export"
	"blupi/api/internal/notify"
	"blupi/api/internal/search"
	"blupi/api/internal/store"
)

// memStore is an in-memory stand-in for the PostgreSQL store. It backs
// the service interfaces, the password-auth user store, and refresh
// sessions so HTTP tests can run the full stack without a database.
type memStore struct {
	mu sync.Mutex

	users         map[string]store.User
	resets        map[string]string // reset token -> user id
	orgs          map[string]store.Organization
	memberships   []store.Membership
	projects      map[string]store.Project
	projectRoles  map[string][]store.ProjectMember
	boards        map[string]store.Board
	comments      map[string][]store.Comment
	notifications []store.Notification
	revoked       map[string]bool
	refresh       map[string]refreshEntry
}

type refreshEntry struct {
	userID    string
	expiresAt time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[string]store.User),
		resets:       make(map[string]string),
		orgs:         make(map[string]store.Organization),
		projects:     make(map[string]store.Project),
		projectRoles: make(map[string][]store.ProjectMember),
		boards:       make(map[string]store.Board),
		comments:     make(map[string][]store.Comment),
		revoked:      make(map[string]bool),
		refresh:      make(map[string]refreshEntry),
	}
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

// Users (also satisfies authpw.UserStore)

func (m *memStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) CreateUser(ctx context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *memStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	m.users[userID] = user
	return nil
}

func (m *memStore) VerifyUserEmail(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, user := range m.users {
		if user.VerificationToken == token && token != "" {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			m.users[id] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *memStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[token] = userID
	return nil
}

func (m *memStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (m *memStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resets, token)
	return nil
}

// Access tokens

func (m *memStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

// Refresh sessions (satisfies the refreshStore interface)

func (m *memStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[tokenHash] = refreshEntry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	m.mu.Lock()
	entry, ok := m.refresh[tokenHash]
	m.mu.Unlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	return m.GetUserByID(ctx, entry.userID)
}

func (m *memStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, tokenHash)
	return nil
}

// Organizations

func (m *memStore) CreateOrganization(ctx context.Context, org store.Organization, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[org.ID] = org
	for i := range m.memberships {
		if m.memberships[i].UserID == ownerID {
			m.memberships[i].Active = false
		}
	}
	m.memberships = append(m.memberships, store.Membership{
		OrganizationID: org.ID,
		UserID:         ownerID,
		Role:           "admin",
		Active:         true,
	})
	return nil
}

func (m *memStore) OrganizationSlugExists(ctx context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, org := range m.orgs {
		if org.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListOrganizationsForUser(ctx context.Context, userID string) ([]store.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orgs []store.Organization
	for _, membership := range m.memberships {
		if membership.UserID == userID {
			orgs = append(orgs, m.orgs[membership.OrganizationID])
		}
	}
	return orgs, nil
}

func (m *memStore) ActivateOrganization(ctx context.Context, userID, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for i := range m.memberships {
		if m.memberships[i].UserID == userID && m.memberships[i].OrganizationID == orgID {
			found = true
		}
	}
	if !found {
		return store.ErrNotMember
	}
	for i := range m.memberships {
		if m.memberships[i].UserID == userID {
			m.memberships[i].Active = m.memberships[i].OrganizationID == orgID
		}
	}
	return nil
}

func (m *memStore) ActiveOrganization(ctx context.Context, userID string) (store.Organization, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, membership := range m.memberships {
		if membership.UserID == userID && membership.Active {
			return m.orgs[membership.OrganizationID], membership.Role, nil
		}
	}
	return store.Organization{}, "", sql.ErrNoRows
}

func (m *memStore) ListOrganizationMembers(ctx context.Context, orgID string) ([]store.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var members []store.Membership
	for _, membership := range m.memberships {
		if membership.OrganizationID == orgID {
			user := m.users[membership.UserID]
			membership.UserName = user.DisplayName
			membership.UserEmail = user.Email
			members = append(members, membership)
		}
	}
	return members, nil
}

func (m *memStore) AddOrganizationMember(ctx context.Context, orgID, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, membership := range m.memberships {
		if membership.OrganizationID == orgID && membership.UserID == userID {
			return nil
		}
	}
	m.memberships = append(m.memberships, store.Membership{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
	})
	return nil
}

// Notifications

func (m *memStore) InsertNotification(ctx context.Context, n store.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.CreatedAt = time.Now()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *memStore) ListNotifications(ctx context.Context, userID string, limit int) ([]store.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].UserID == userID && m.notifications[i].ID == notificationID {
			now := time.Now()
			m.notifications[i].ReadAt = &now
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memStore) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for i := range m.notifications {
		if m.notifications[i].UserID == userID && m.notifications[i].ReadAt == nil {
			m.notifications[i].ReadAt = &now
		}
	}
	return nil
}

// Sharing

func (m *memStore) GetBoardByShareToken(ctx context.Context, token string) (store.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.boards {
		if b.ShareToken == token && b.IsPublic {
			return b, nil
		}
	}
	return store.Board{}, sql.ErrNoRows
}

func (m *memStore) Tenant(orgID string) tenantStore {
	return &memTenant{store: m, orgID: orgID}
}

// memTenant scopes a memStore to one organization, mirroring the way
// TenantStore filters every query by organization id.
type memTenant struct {
	store *memStore
	orgID string
}

func (t *memTenant) OrgID() string { return t.orgID }

func (t *memTenant) ListProjects(ctx context.Context) ([]store.Project, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []store.Project
	for _, p := range t.store.projects {
		if p.OrganizationID == t.orgID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memTenant) GetProject(ctx context.Context, projectID string) (store.Project, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	p, ok := t.store.projects[projectID]
	if !ok || p.OrganizationID != t.orgID {
		return store.Project{}, sql.ErrNoRows
	}
	return p, nil
}

func (t *memTenant) InsertProject(ctx context.Context, item store.Project) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	item.OrganizationID = t.orgID
	t.store.projects[item.ID] = item
	return nil
}

func (t *memTenant) UpdateProject(ctx context.Context, projectID, name, color, status string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	p, ok := t.store.projects[projectID]
	if !ok || p.OrganizationID != t.orgID {
		return sql.ErrNoRows
	}
	p.Name, p.Color, p.Status = name, color, status
	t.store.projects[projectID] = p
	return nil
}

func (t *memTenant) DeleteProject(ctx context.Context, projectID string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	p, ok := t.store.projects[projectID]
	if !ok || p.OrganizationID != t.orgID {
		return sql.ErrNoRows
	}
	delete(t.store.projects, projectID)
	return nil
}

func (t *memTenant) ProjectBoardCount(ctx context.Context, projectID string) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	count := 0
	for _, b := range t.store.boards {
		if b.OrganizationID == t.orgID && b.ProjectID != nil && *b.ProjectID == projectID {
			count++
		}
	}
	return count, nil
}

func (t *memTenant) ListProjectMembers(ctx context.Context, projectID string) ([]store.ProjectMember, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.projectRoles[projectID], nil
}

func (t *memTenant) UpsertProjectMember(ctx context.Context, member store.ProjectMember) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	members := t.store.projectRoles[member.ProjectID]
	for i := range members {
		if members[i].UserID == member.UserID {
			members[i].Role = member.Role
			return nil
		}
	}
	t.store.projectRoles[member.ProjectID] = append(members, member)
	return nil
}

func (t *memTenant) GetProjectMemberRole(ctx context.Context, projectID, userID string) (string, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, member := range t.store.projectRoles[projectID] {
		if member.UserID == userID {
			return member.Role, nil
		}
	}
	return "", sql.ErrNoRows
}

func (t *memTenant) ListBoards(ctx context.Context) ([]store.Board, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []store.Board
	for _, b := range t.store.boards {
		if b.OrganizationID == t.orgID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTenant) ListBoardsByProject(ctx context.Context, projectID string) ([]store.Board, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []store.Board
	for _, b := range t.store.boards {
		if b.OrganizationID == t.orgID && b.ProjectID != nil && *b.ProjectID == projectID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTenant) GetBoard(ctx context.Context, boardID string) (store.Board, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	b, ok := t.store.boards[boardID]
	if !ok || b.OrganizationID != t.orgID {
		return store.Board{}, sql.ErrNoRows
	}
	return b, nil
}

func (t *memTenant) InsertBoard(ctx context.Context, item store.Board) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	item.OrganizationID = t.orgID
	t.store.boards[item.ID] = item
	return nil
}

func (t *memTenant) UpdateBoardMeta(ctx context.Context, boardID, name, description, status, updatedBy string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	b, ok := t.store.boards[boardID]
	if !ok || b.OrganizationID != t.orgID {
		return sql.ErrNoRows
	}
	b.Name, b.Description, b.Status, b.UpdatedBy = name, description, status, updatedBy
	t.store.boards[boardID] = b
	return nil
}

func (t *memTenant) UpdateBoardContent(ctx context.Context, boardID string, content board.Content, updatedBy string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	b, ok := t.store.boards[boardID]
	if !ok || b.OrganizationID != t.orgID {
		return sql.ErrNoRows
	}
	b.Content = content
	b.UpdatedBy = updatedBy
	t.store.boards[boardID] = b
	return nil
}

func (t *memTenant) MutateBoardContent(ctx context.Context, boardID, updatedBy string, fn func(board.Content) (board.Content, error)) (board.Content, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	b, ok := t.store.boards[boardID]
	if !ok || b.OrganizationID != t.orgID {
		return board.Content{}, sql.ErrNoRows
	}
	updated, err := fn(b.Content)
	if err != nil {
		return board.Content{}, err
	}
	b.Content = updated
	b.UpdatedBy = updatedBy
	t.store.boards[boardID] = b
	return updated, nil
}

func (t *memTenant) SetBoardPublic(ctx context.Context, boardID string, isPublic bool, publicRole, shareToken string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	b, ok := t.store.boards[boardID]
	if !ok || b.OrganizationID != t.orgID {
		return sql.ErrNoRows
	}
	b.IsPublic, b.PublicRole, b.ShareToken = isPublic, publicRole, shareToken
	t.store.boards[boardID] = b
	return nil
}

func (t *memTenant) DeleteBoard(ctx context.Context, boardID string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	b, ok := t.store.boards[boardID]
	if !ok || b.OrganizationID != t.orgID {
		return sql.ErrNoRows
	}
	delete(t.store.boards, boardID)
	return nil
}

func (t *memTenant) ListComments(ctx context.Context, boardID string) ([]store.Comment, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.comments[boardID], nil
}

func (t *memTenant) InsertComment(ctx context.Context, item store.Comment) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	item.OrganizationID = t.orgID
	t.store.comments[item.BoardID] = append(t.store.comments[item.BoardID], item)
	return nil
}

// fakeSearcher records index traffic and answers queries from it.
type fakeSearcher struct {
	mu       sync.Mutex
	boards   map[string]search.BoardRecord
	comments map[string]search.CommentRecord
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		boards:   make(map[string]search.BoardRecord),
		comments: make(map[string]search.CommentRecord),
	}
}

func (f *fakeSearcher) Search(q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := []search.Result{}
	for _, b := range f.boards {
		if b.OrgID == q.OrgID {
			results = append(results, search.Result{Type: search.ResultBoard, ID: b.ID, Title: b.Name})
		}
	}
	return search.Response{Results: results, Total: len(results), Query: q.Text}
}

func (f *fakeSearcher) IndexBoard(b search.BoardRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[b.ID] = b
}

func (f *fakeSearcher) IndexComment(c search.CommentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[c.ID] = c
}

func (f *fakeSearcher) DeleteBoard(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.boards, id)
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		CORSOrigin: "*",
		AppBaseURL: "http://localhost:5173",
	}
}

func newTestService(ms *memStore) *Service {
	cfg := testConfig()
	return New(cfg, ms, ms, authpw.NewService(ms), nil, notify.NewService(ms, nil), newFakeSearcher(), export.NewService())
}
