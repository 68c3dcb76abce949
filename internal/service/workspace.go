package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plainer/hub/internal/model"
)

// WorkspaceService manages drive workspaces, one per owner.
type WorkspaceService struct {
	db *sql.DB
}

func NewWorkspaceService(db *sql.DB) *WorkspaceService {
	return &WorkspaceService{db: db}
}

// EnsureDrive returns the owner's drive workspace, creating it on first access.
func (s *WorkspaceService) EnsureDrive(ctx context.Context, ownerID string) (*model.Workspace, error) {
	slug := "drive-" + ownerID
	ws, err := s.getBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if ws != nil {
		return ws, nil
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, owner_id, name, slug, kind, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'drive', ?, ?)`,
		id, ownerID, "My Drive", slug, now, now)
	if err != nil {
		// Concurrent first access can race the insert; the row wins.
		if ws, getErr := s.getBySlug(ctx, slug); getErr == nil && ws != nil {
			return ws, nil
		}
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *WorkspaceService) Get(ctx context.Context, id string) (*model.Workspace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, slug, kind, created_at, updated_at
		FROM workspaces WHERE id = ?`, id)
	ws, err := scanWorkspace(row)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Resource: "workspace", ID: id}
	}
	return ws, err
}

func (s *WorkspaceService) getBySlug(ctx context.Context, slug string) (*model.Workspace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, slug, kind, created_at, updated_at
		FROM workspaces WHERE slug = ?`, slug)
	ws, err := scanWorkspace(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ws, err
}

func scanWorkspace(row rowScanner) (*model.Workspace, error) {
	var ws model.Workspace
	if err := row.Scan(&ws.ID, &ws.OwnerID, &ws.Name, &ws.Slug, &ws.Kind, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
		return nil, err
	}
	return &ws, nil
}

// FolderService manages folder placement inside a workspace.
type FolderService struct {
	db *sql.DB
}

func NewFolderService(db *sql.DB) *FolderService {
	return &FolderService{db: db}
}

// EnsureDefaultFolder gets or creates the root "Files" folder and reparents
// any folderless data files into it. Idempotent.
func (s *FolderService) EnsureDefaultFolder(ctx context.Context, workspaceID string) (*model.Folder, error) {
	folder, err := s.getByName(ctx, workspaceID, nil, model.DefaultFolderName)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		id := uuid.NewString()
		now := time.Now().UTC().Format(time.RFC3339Nano)
		var ownerID string
		if err := s.db.QueryRowContext(ctx,
			`SELECT owner_id FROM workspaces WHERE id = ?`, workspaceID).Scan(&ownerID); err != nil {
			if err == sql.ErrNoRows {
				return nil, &model.NotFoundError{Resource: "workspace", ID: workspaceID}
			}
			return nil, err
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO folders (id, owner_id, workspace_id, parent_id, name, path, created_at, updated_at)
			VALUES (?, ?, ?, NULL, ?, ?, ?, ?)`,
			id, ownerID, workspaceID, model.DefaultFolderName, "/"+model.DefaultFolderName, now, now)
		if err != nil {
			return nil, fmt.Errorf("create default folder: %w", err)
		}
		folder, err = s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	// Migrate orphaned root-level files into the default folder.
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		UPDATE files SET folder_id = ?, updated_at = ?
		WHERE workspace_id = ? AND folder_id IS NULL AND deleted_at IS NULL`,
		folder.ID, now, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("migrate orphaned files: %w", err)
	}
	return folder, nil
}

type CreateFolderInput struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

func (s *FolderService) Create(ctx context.Context, workspaceID, ownerID string, in CreateFolderInput) (*model.Folder, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &model.InvalidReferenceError{Field: "name", Reason: "must not be empty"}
	}

	path := "/" + name
	if in.ParentID != nil {
		parent, err := s.Get(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.WorkspaceID != workspaceID {
			return nil, &model.InvalidReferenceError{Field: "parent_id", Reason: "parent belongs to another workspace"}
		}
		path = parent.Path + "/" + name
	}

	existing, err := s.getByName(ctx, workspaceID, in.ParentID, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &model.InvalidReferenceError{Field: "name", Reason: "folder already exists"}
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO folders (id, owner_id, workspace_id, parent_id, name, path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ownerID, workspaceID, in.ParentID, name, path, now, now)
	if err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *FolderService) Get(ctx context.Context, id string) (*model.Folder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, workspace_id, parent_id, name, path, is_favorite, created_at, updated_at
		FROM folders WHERE id = ?`, id)
	folder, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Resource: "folder", ID: id}
	}
	return folder, err
}

func (s *FolderService) List(ctx context.Context, workspaceID string) ([]model.Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, workspace_id, parent_id, name, path, is_favorite, created_at, updated_at
		FROM folders WHERE workspace_id = ?
		ORDER BY path`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Folder
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *folder)
	}
	return out, rows.Err()
}

func (s *FolderService) ToggleFavorite(ctx context.Context, id string) (*model.Folder, error) {
	folder, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		UPDATE folders SET is_favorite = ?, updated_at = ? WHERE id = ?`,
		!folder.IsFavorite, now, id)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *FolderService) getByName(ctx context.Context, workspaceID string, parentID *string, name string) (*model.Folder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, workspace_id, parent_id, name, path, is_favorite, created_at, updated_at
		FROM folders
		WHERE workspace_id = ? AND COALESCE(parent_id, '') = COALESCE(?, '') AND name = ?`,
		workspaceID, parentID, name)
	folder, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return folder, err
}

func scanFolder(row rowScanner) (*model.Folder, error) {
	var f model.Folder
	var parentID sql.NullString
	if err := row.Scan(&f.ID, &f.OwnerID, &f.WorkspaceID, &parentID, &f.Name, &f.Path,
		&f.IsFavorite, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		f.ParentID = &parentID.String
	}
	return &f, nil
}
