package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"blupi/api/internal/board"
)

// TenantStore is a store bound to a single organization. Every query it
// issues filters by that organization id; call sites cannot forget the
// tenant clause because they never write it.
type TenantStore struct {
	db    *sql.DB
	orgID string
}

func (t *TenantStore) OrgID() string {
	return t.orgID
}

// Projects

func (t *TenantStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, organization_id, name, color, status, created_by, created_at, updated_at
		FROM projects
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`, t.orgID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.Name, &item.Color, &item.Status, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (t *TenantStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := t.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, color, status, created_by, created_at, updated_at
		FROM projects
		WHERE id=$1 AND organization_id=$2
	`, projectID, t.orgID).Scan(&item.ID, &item.OrganizationID, &item.Name, &item.Color, &item.Status, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (t *TenantStore) InsertProject(ctx context.Context, item Project) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO projects (id, organization_id, name, color, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, t.orgID, item.Name, item.Color, item.Status, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (t *TenantStore) UpdateProject(ctx context.Context, projectID, name, color, status string) error {
	result, err := t.db.ExecContext(ctx, `
		UPDATE projects SET name=$3, color=$4, status=$5, updated_at=NOW()
		WHERE id=$1 AND organization_id=$2
	`, projectID, t.orgID, name, color, status)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return requireRow(result)
}

func (t *TenantStore) DeleteProject(ctx context.Context, projectID string) error {
	result, err := t.db.ExecContext(ctx, `
		DELETE FROM projects WHERE id=$1 AND organization_id=$2
	`, projectID, t.orgID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireRow(result)
}

func (t *TenantStore) ProjectBoardCount(ctx context.Context, projectID string) (int, error) {
	var count int
	err := t.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM boards WHERE project_id=$1 AND organization_id=$2
	`, projectID, t.orgID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count project boards: %w", err)
	}
	return count, nil
}

func (t *TenantStore) ListProjectMembers(ctx context.Context, projectID string) ([]ProjectMember, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT pm.project_id, pm.user_id, pm.role, pm.invited_by, pm.created_at, u.display_name, u.email
		FROM project_members pm
		JOIN projects p ON p.id = pm.project_id
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1 AND p.organization_id = $2
		ORDER BY pm.created_at ASC
	`, projectID, t.orgID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	defer rows.Close()

	items := make([]ProjectMember, 0)
	for rows.Next() {
		var item ProjectMember
		if err := rows.Scan(&item.ProjectID, &item.UserID, &item.Role, &item.InvitedBy, &item.CreatedAt, &item.UserName, &item.UserEmail); err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project members: %w", err)
	}
	return items, nil
}

func (t *TenantStore) UpsertProjectMember(ctx context.Context, member ProjectMember) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, invited_by)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (SELECT 1 FROM projects WHERE id=$1 AND organization_id=$5)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, member.ProjectID, member.UserID, member.Role, member.InvitedBy, t.orgID)
	if err != nil {
		return fmt.Errorf("upsert project member: %w", err)
	}
	return nil
}

func (t *TenantStore) GetProjectMemberRole(ctx context.Context, projectID, userID string) (string, error) {
	var role string
	err := t.db.QueryRowContext(ctx, `
		SELECT pm.role
		FROM project_members pm
		JOIN projects p ON p.id = pm.project_id
		WHERE pm.project_id=$1 AND pm.user_id=$2 AND p.organization_id=$3
	`, projectID, userID, t.orgID).Scan(&role)
	if err != nil {
		return "", err
	}
	return role, nil
}

// Boards

const boardColumns = `id, organization_id, project_id, name, description, status, blocks, phases,
	is_public, public_role, share_token, created_by, updated_by, created_at, updated_at`

func (t *TenantStore) ListBoards(ctx context.Context) ([]Board, error) {
	return t.queryBoards(ctx, `
		SELECT `+boardColumns+` FROM boards
		WHERE organization_id = $1
		ORDER BY updated_at DESC
	`, t.orgID)
}

func (t *TenantStore) ListBoardsByProject(ctx context.Context, projectID string) ([]Board, error) {
	return t.queryBoards(ctx, `
		SELECT `+boardColumns+` FROM boards
		WHERE organization_id = $1 AND project_id = $2
		ORDER BY updated_at DESC
	`, t.orgID, projectID)
}

func (t *TenantStore) queryBoards(ctx context.Context, query string, args ...any) ([]Board, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	items := make([]Board, 0)
	for rows.Next() {
		item, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return items, nil
}

func (t *TenantStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT `+boardColumns+` FROM boards
		WHERE id=$1 AND organization_id=$2
	`, boardID, t.orgID)
	return scanBoard(row)
}

func (t *TenantStore) InsertBoard(ctx context.Context, item Board) error {
	blocks, phases, err := marshalContent(item.Content)
	if err != nil {
		return err
	}
	_, err = t.db.ExecContext(ctx, `
		INSERT INTO boards (id, organization_id, project_id, name, description, status, blocks, phases, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, item.ID, t.orgID, item.ProjectID, item.Name, item.Description, item.Status, blocks, phases, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	return nil
}

func (t *TenantStore) UpdateBoardMeta(ctx context.Context, boardID string, name, description, status, updatedBy string) error {
	result, err := t.db.ExecContext(ctx, `
		UPDATE boards SET name=$3, description=$4, status=$5, updated_by=$6, updated_at=NOW()
		WHERE id=$1 AND organization_id=$2
	`, boardID, t.orgID, name, description, status, updatedBy)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	return requireRow(result)
}

// UpdateBoardContent replaces blocks and phases wholesale. Last writer wins
// at this level; block-level edits go through MutateBoardContent.
func (t *TenantStore) UpdateBoardContent(ctx context.Context, boardID string, content board.Content, updatedBy string) error {
	blocks, phases, err := marshalContent(content)
	if err != nil {
		return err
	}
	result, err := t.db.ExecContext(ctx, `
		UPDATE boards SET blocks=$3, phases=$4, updated_by=$5, updated_at=NOW()
		WHERE id=$1 AND organization_id=$2
	`, boardID, t.orgID, blocks, phases, updatedBy)
	if err != nil {
		return fmt.Errorf("update board content: %w", err)
	}
	return requireRow(result)
}

// MutateBoardContent applies fn to the current content inside a transaction
// holding a row lock, so concurrent block-level edits serialize instead of
// overwriting each other.
func (t *TenantStore) MutateBoardContent(ctx context.Context, boardID, updatedBy string, fn func(board.Content) (board.Content, error)) (board.Content, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return board.Content{}, fmt.Errorf("begin board mutation: %w", err)
	}
	defer tx.Rollback()

	var blocksRaw, phasesRaw []byte
	err = tx.QueryRowContext(ctx, `
		SELECT blocks, phases FROM boards
		WHERE id=$1 AND organization_id=$2
		FOR UPDATE
	`, boardID, t.orgID).Scan(&blocksRaw, &phasesRaw)
	if err != nil {
		return board.Content{}, err
	}

	current, err := decodeContent(blocksRaw, phasesRaw)
	if err != nil {
		return board.Content{}, err
	}

	updated, err := fn(current)
	if err != nil {
		return board.Content{}, err
	}

	blocks, phases, err := marshalContent(updated)
	if err != nil {
		return board.Content{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE boards SET blocks=$3, phases=$4, updated_by=$5, updated_at=NOW()
		WHERE id=$1 AND organization_id=$2
	`, boardID, t.orgID, blocks, phases, updatedBy); err != nil {
		return board.Content{}, fmt.Errorf("write board content: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return board.Content{}, fmt.Errorf("commit board mutation: %w", err)
	}
	updated.Normalize()
	return updated, nil
}

func (t *TenantStore) SetBoardPublic(ctx context.Context, boardID string, isPublic bool, publicRole, shareToken string) error {
	result, err := t.db.ExecContext(ctx, `
		UPDATE boards SET is_public=$3, public_role=$4, share_token=$5, updated_at=NOW()
		WHERE id=$1 AND organization_id=$2
	`, boardID, t.orgID, isPublic, publicRole, shareToken)
	if err != nil {
		return fmt.Errorf("set board public: %w", err)
	}
	return requireRow(result)
}

func (t *TenantStore) DeleteBoard(ctx context.Context, boardID string) error {
	result, err := t.db.ExecContext(ctx, `
		DELETE FROM boards WHERE id=$1 AND organization_id=$2
	`, boardID, t.orgID)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	return requireRow(result)
}

// Comments

func (t *TenantStore) ListComments(ctx context.Context, boardID string) ([]Comment, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, organization_id, board_id, block_id, body, author_id, author_name, created_at
		FROM board_comments
		WHERE board_id=$1 AND organization_id=$2
		ORDER BY created_at ASC
	`, boardID, t.orgID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		var authorID sql.NullString
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.BoardID, &item.BlockID, &item.Body, &authorID, &item.AuthorName, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		item.AuthorID = authorID.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (t *TenantStore) InsertComment(ctx context.Context, item Comment) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO board_comments (id, organization_id, board_id, block_id, body, author_id, author_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, t.orgID, item.BoardID, item.BlockID, item.Body, nullableAuthorID(item.AuthorID), item.AuthorName)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// nullableAuthorID maps the empty author of a guest comment to SQL NULL.
// author_id references users(id), and guests have no users row.
func nullableAuthorID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func decodeContent(blocksRaw, phasesRaw []byte) (board.Content, error) {
	var c board.Content
	if err := json.Unmarshal(blocksRaw, &c.Blocks); err != nil {
		return board.Content{}, fmt.Errorf("decode blocks: %w", err)
	}
	if err := json.Unmarshal(phasesRaw, &c.Phases); err != nil {
		return board.Content{}, fmt.Errorf("decode phases: %w", err)
	}
	c.Normalize()
	return c, nil
}
