package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plainer/hub/internal/blob"
	"github.com/plainer/hub/internal/cache"
	"github.com/plainer/hub/internal/model"
)

const fileColumns = `
	id, owner_id, workspace_id, folder_id, name, mime_type, size_bytes,
	storage_key, file_type, content_text, is_favorite, created_by_agent,
	is_instance, app_type_id, source_file_id, related_source_ids, instance_config,
	created_at, updated_at, deleted_at`

// ContentService owns the file graph: content, versions, favorites, and the
// soft-delete cascade onto dependent instances.
type ContentService struct {
	db      *sql.DB
	blobs   blob.Store
	cache   cache.ContentCache
	folders *FolderService
	log     zerolog.Logger
}

func NewContentService(db *sql.DB, blobs blob.Store, contentCache cache.ContentCache, folders *FolderService, log zerolog.Logger) *ContentService {
	return &ContentService{db: db, blobs: blobs, cache: contentCache, folders: folders, log: log}
}

type CreateFileInput struct {
	Name           string  `json:"name"`
	Content        string  `json:"content"`
	FolderID       *string `json:"folder_id"`
	CreatedByAgent bool    `json:"-"`
}

// CreateTextFile writes a new text file with version 1. When no folder is
// given the file lands in the workspace's default folder.
func (s *ContentService) CreateTextFile(ctx context.Context, workspaceID, ownerID string, in CreateFileInput) (*model.File, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &model.InvalidReferenceError{Field: "name", Reason: "must not be empty"}
	}

	folderID := in.FolderID
	if folderID == nil {
		folder, err := s.folders.EnsureDefaultFolder(ctx, workspaceID)
		if err != nil {
			return nil, err
		}
		folderID = &folder.ID
	}

	mimeType := model.DetectMimeType(name)
	fileType := model.DetectFileType(mimeType, name)

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (
			id, owner_id, workspace_id, folder_id, name, mime_type, size_bytes,
			file_type, content_text, created_by_agent, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ownerID, workspaceID, folderID, name, mimeType, int64(len(in.Content)),
		fileType, in.Content, in.CreatedByAgent, now, now)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	if err := s.appendVersion(ctx, id, 1, "", int64(len(in.Content)), &in.Content, nil, in.CreatedByAgent); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

type CreateBinaryFileInput struct {
	Name           string
	MimeType       string
	Data           []byte
	FolderID       *string
	CreatedByAgent bool
}

// CreateBinaryFile stores raw bytes in the blob store and records version 1.
func (s *ContentService) CreateBinaryFile(ctx context.Context, workspaceID, ownerID string, in CreateBinaryFileInput) (*model.File, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &model.InvalidReferenceError{Field: "name", Reason: "must not be empty"}
	}

	folderID := in.FolderID
	if folderID == nil {
		folder, err := s.folders.EnsureDefaultFolder(ctx, workspaceID)
		if err != nil {
			return nil, err
		}
		folderID = &folder.ID
	}

	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = model.DetectMimeType(name)
	}
	fileType := model.DetectFileType(mimeType, name)

	id := uuid.NewString()
	key := blobKey(workspaceID, id, 1)
	if err := s.blobs.Put(ctx, key, in.Data); err != nil {
		return nil, fmt.Errorf("store content: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (
			id, owner_id, workspace_id, folder_id, name, mime_type, size_bytes,
			storage_key, file_type, created_by_agent, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ownerID, workspaceID, folderID, name, mimeType, int64(len(in.Data)),
		key, fileType, in.CreatedByAgent, now, now)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	if err := s.appendVersion(ctx, id, 1, key, int64(len(in.Data)), nil, nil, in.CreatedByAgent); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Get returns a file regardless of its soft-delete state.
func (s *ContentService) Get(ctx context.Context, id string) (*model.File, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Resource: "file", ID: id}
	}
	return f, err
}

// GetLive returns a file only when it is not soft-deleted.
func (s *ContentService) GetLive(ctx context.Context, id string) (*model.File, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Deleted() {
		return nil, &model.NotFoundError{Resource: "file", ID: id}
	}
	return f, nil
}

// ListOptions controls workspace listings. Deleted rows are excluded unless
// IncludeDeleted is set.
type ListOptions struct {
	FolderID       *string
	IncludeDeleted bool
}

func (s *ContentService) List(ctx context.Context, workspaceID string, opts ListOptions) ([]model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE workspace_id = ?`
	args := []any{workspaceID}
	if !opts.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if opts.FolderID != nil {
		query += ` AND folder_id = ?`
		args = append(args, *opts.FolderID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// ListRecent returns the workspace's most recently updated live files.
func (s *ContentService) ListRecent(ctx context.Context, workspaceID string, limit int) ([]model.File, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE workspace_id = ? AND deleted_at IS NULL
		ORDER BY updated_at DESC LIMIT ?`, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// InstancesOf lists the live instances rendering the given file, whether it
// is their primary source or one of the related sources.
func (s *ContentService) InstancesOf(ctx context.Context, fileID string) ([]model.File, error) {
	f, err := s.GetLive(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return s.instancesReferencing(ctx, f.WorkspaceID, f.ID)
}

// GetContent returns the file's raw bytes: inline text if present, otherwise
// the cached blob, otherwise the blob store (populating the cache).
func (s *ContentService) GetContent(ctx context.Context, id string) ([]byte, error) {
	f, err := s.GetLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.ContentText != nil {
		return []byte(*f.ContentText), nil
	}
	if f.StorageKey == "" {
		return []byte{}, nil
	}
	if data, ok := s.cache.Get(ctx, f.ID); ok {
		return data, nil
	}
	data, err := s.blobs.Get(ctx, f.StorageKey)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, f.ID, data)
	return data, nil
}

// UpdateContent replaces the file's content in full and appends the next
// version snapshot.
func (s *ContentService) UpdateContent(ctx context.Context, id string, content []byte, changeSummary *string, byAgent bool) (*model.File, error) {
	f, err := s.GetLive(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := s.nextVersionNumber(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if utf8.Valid(content) && f.StorageKey == "" {
		text := string(content)
		_, err = s.db.ExecContext(ctx, `
			UPDATE files SET content_text = ?, size_bytes = ?, updated_at = ?
			WHERE id = ?`, text, int64(len(content)), now, id)
		if err != nil {
			return nil, fmt.Errorf("update content: %w", err)
		}
		if err := s.appendVersion(ctx, id, next, "", int64(len(content)), &text, changeSummary, byAgent); err != nil {
			return nil, err
		}
	} else {
		key := blobKey(f.WorkspaceID, id, next)
		if err := s.blobs.Put(ctx, key, content); err != nil {
			return nil, fmt.Errorf("store content: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `
			UPDATE files SET storage_key = ?, content_text = NULL, size_bytes = ?, updated_at = ?
			WHERE id = ?`, key, int64(len(content)), now, id)
		if err != nil {
			return nil, fmt.Errorf("update content: %w", err)
		}
		if err := s.appendVersion(ctx, id, next, key, int64(len(content)), nil, changeSummary, byAgent); err != nil {
			return nil, err
		}
	}

	s.cache.Invalidate(ctx, id)
	return s.Get(ctx, id)
}

// SoftDelete marks the file deleted and cascades to every instance whose
// primary or related sources reference it. Returns the ids of all files
// that were marked, the target first.
func (s *ContentService) SoftDelete(ctx context.Context, id string) ([]string, error) {
	f, err := s.GetLive(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	deleted := []string{f.ID}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE files SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, f.ID); err != nil {
		return nil, fmt.Errorf("delete file: %w", err)
	}
	s.cache.Invalidate(ctx, f.ID)

	if f.IsInstance {
		return deleted, nil
	}

	instances, err := s.instancesReferencing(ctx, f.WorkspaceID, f.ID)
	if err != nil {
		return nil, err
	}
	for _, inst := range instances {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE files SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, inst.ID); err != nil {
			return nil, fmt.Errorf("cascade delete instance: %w", err)
		}
		s.cache.Invalidate(ctx, inst.ID)
		deleted = append(deleted, inst.ID)
	}
	if len(instances) > 0 {
		s.log.Debug().Str("file_id", f.ID).Int("instances", len(instances)).Msg("cascaded soft delete")
	}
	return deleted, nil
}

// instancesReferencing finds live instances whose source_file_id or
// related_source_ids mention fileID.
func (s *ContentService) instancesReferencing(ctx context.Context, workspaceID, fileID string) ([]model.File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE workspace_id = ? AND is_instance AND deleted_at IS NULL
		  AND (source_file_id = ? OR related_source_ids LIKE ?)`,
		workspaceID, fileID, "%"+fileID+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (s *ContentService) ToggleFavorite(ctx context.Context, id string) (*model.File, error) {
	f, err := s.GetLive(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		UPDATE files SET is_favorite = ?, updated_at = ? WHERE id = ?`,
		!f.IsFavorite, now, id)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

type UpdateFileInput struct {
	Name     *string `json:"name"`
	FolderID *string `json:"folder_id"`
}

// UpdateMeta renames or moves a file without touching its content.
func (s *ContentService) UpdateMeta(ctx context.Context, id string, in UpdateFileInput) (*model.File, error) {
	f, err := s.GetLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.FolderID != nil {
		folder, err := s.folders.Get(ctx, *in.FolderID)
		if err != nil {
			return nil, err
		}
		if folder.WorkspaceID != f.WorkspaceID {
			return nil, &model.InvalidReferenceError{Field: "folder_id", Reason: "folder belongs to another workspace"}
		}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		UPDATE files SET
			name      = COALESCE(?, name),
			folder_id = COALESCE(?, folder_id),
			updated_at = ?
		WHERE id = ?`,
		in.Name, in.FolderID, now, id)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *ContentService) ListVersions(ctx context.Context, fileID string) ([]model.FileVersion, error) {
	if _, err := s.Get(ctx, fileID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, version_number, storage_key, size_bytes, content_text,
		       change_summary, created_by_agent, created_at
		FROM file_versions WHERE file_id = ?
		ORDER BY version_number DESC`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FileVersion
	for rows.Next() {
		var v model.FileVersion
		var contentText, changeSummary sql.NullString
		if err := rows.Scan(&v.ID, &v.FileID, &v.VersionNumber, &v.StorageKey, &v.SizeBytes,
			&contentText, &changeSummary, &v.CreatedByAgent, &v.CreatedAt); err != nil {
			return nil, err
		}
		if contentText.Valid {
			v.ContentText = &contentText.String
		}
		if changeSummary.Valid {
			v.ChangeSummary = &changeSummary.String
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVersionContent returns the content snapshot stored for one version.
func (s *ContentService) GetVersionContent(ctx context.Context, fileID string, versionNumber int) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT storage_key, content_text FROM file_versions
		WHERE file_id = ? AND version_number = ?`, fileID, versionNumber)
	var storageKey string
	var contentText sql.NullString
	if err := row.Scan(&storageKey, &contentText); err != nil {
		if err == sql.ErrNoRows {
			return nil, &model.NotFoundError{Resource: "file version", ID: fmt.Sprintf("%s@%d", fileID, versionNumber)}
		}
		return nil, err
	}
	if contentText.Valid {
		return []byte(contentText.String), nil
	}
	if storageKey == "" {
		return []byte{}, nil
	}
	return s.blobs.Get(ctx, storageKey)
}

// RestoreVersion re-applies an old snapshot as a brand new version.
func (s *ContentService) RestoreVersion(ctx context.Context, fileID string, versionNumber int) (*model.File, error) {
	content, err := s.GetVersionContent(ctx, fileID, versionNumber)
	if err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("Restored from version %d", versionNumber)
	return s.UpdateContent(ctx, fileID, content, &summary, false)
}

func (s *ContentService) nextVersionNumber(ctx context.Context, fileID string) (int, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version_number) FROM file_versions WHERE file_id = ?`, fileID).Scan(&max); err != nil {
		return 0, err
	}
	return int(max.Int64) + 1, nil
}

func (s *ContentService) appendVersion(ctx context.Context, fileID string, number int, storageKey string, size int64, contentText, changeSummary *string, byAgent bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_versions (
			id, file_id, version_number, storage_key, size_bytes,
			content_text, change_summary, created_by_agent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), fileID, number, storageKey, size,
		contentText, changeSummary, byAgent, now)
	if err != nil {
		return fmt.Errorf("append version: %w", err)
	}
	return nil
}

func blobKey(workspaceID, fileID string, version int) string {
	return fmt.Sprintf("%s/%s/v%d", workspaceID, fileID, version)
}

func scanFile(row rowScanner) (*model.File, error) {
	var f model.File
	var folderID, contentText, appTypeID, sourceFileID, instanceConfig, deletedAt sql.NullString
	var relatedRaw string
	if err := row.Scan(
		&f.ID, &f.OwnerID, &f.WorkspaceID, &folderID, &f.Name, &f.MimeType, &f.SizeBytes,
		&f.StorageKey, &f.FileType, &contentText, &f.IsFavorite, &f.CreatedByAgent,
		&f.IsInstance, &appTypeID, &sourceFileID, &relatedRaw, &instanceConfig,
		&f.CreatedAt, &f.UpdatedAt, &deletedAt,
	); err != nil {
		return nil, err
	}
	if folderID.Valid {
		f.FolderID = &folderID.String
	}
	if contentText.Valid {
		f.ContentText = &contentText.String
	}
	if appTypeID.Valid {
		f.AppTypeID = &appTypeID.String
	}
	if sourceFileID.Valid {
		f.SourceFileID = &sourceFileID.String
	}
	if instanceConfig.Valid {
		f.InstanceConfig = &instanceConfig.String
	}
	if deletedAt.Valid {
		f.DeletedAt = &deletedAt.String
	}
	if relatedRaw != "" && relatedRaw != "[]" {
		if err := json.Unmarshal([]byte(relatedRaw), &f.RelatedSourceIDs); err != nil {
			return nil, fmt.Errorf("decode related_source_ids: %w", err)
		}
	}
	return &f, nil
}
