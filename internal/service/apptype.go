package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plainer/hub/internal/model"
)

const appTypeColumns = `
	id, workspace_id, slug, label, icon, renderer, template_content,
	description, created_by_agent, created_at, updated_at`

// AppTypeService manages renderer definitions and the instances that bind
// them onto source files.
type AppTypeService struct {
	db      *sql.DB
	content *ContentService
	log     zerolog.Logger
}

func NewAppTypeService(db *sql.DB, content *ContentService, log zerolog.Logger) *AppTypeService {
	return &AppTypeService{db: db, content: content, log: log}
}

// List returns the app types visible to a workspace: every global type plus
// the workspace's own custom types.
func (s *AppTypeService) List(ctx context.Context, workspaceID string) ([]model.AppType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+appTypeColumns+` FROM app_types
		WHERE workspace_id IS NULL OR workspace_id = ?
		ORDER BY CASE WHEN workspace_id IS NULL THEN 0 ELSE 1 END, label`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AppType
	for rows.Next() {
		at, err := scanAppType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *at)
	}
	return out, rows.Err()
}

func (s *AppTypeService) Get(ctx context.Context, id string) (*model.AppType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+appTypeColumns+` FROM app_types WHERE id = ?`, id)
	at, err := scanAppType(row)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Resource: "app type", ID: id}
	}
	return at, err
}

// Resolve looks an app type up by id or slug within a workspace's visibility.
// On a slug collision the global definition wins; a workspace-scoped custom
// type is only reachable by a slug no global type uses.
func (s *AppTypeService) Resolve(ctx context.Context, workspaceID, idOrSlug string) (*model.AppType, error) {
	if at, err := s.Get(ctx, idOrSlug); err == nil {
		if at.WorkspaceID == nil || *at.WorkspaceID == workspaceID {
			return at, nil
		}
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+appTypeColumns+` FROM app_types
		WHERE slug = ? AND (workspace_id IS NULL OR workspace_id = ?)
		ORDER BY CASE WHEN workspace_id IS NULL THEN 0 ELSE 1 END
		LIMIT 1`, idOrSlug, workspaceID)
	at, err := scanAppType(row)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Resource: "app type", ID: idOrSlug}
	}
	return at, err
}

type CreateAppTypeInput struct {
	Slug            string  `json:"slug"`
	Label           string  `json:"label"`
	Icon            string  `json:"icon"`
	Renderer        string  `json:"renderer"`
	TemplateContent *string `json:"template_content"`
	Description     *string `json:"description"`
	CreatedByAgent  bool    `json:"-"`
}

// Create inserts a workspace-scoped app type. Duplicate slugs across
// workspaces are allowed; the unique index only guards within one scope.
func (s *AppTypeService) Create(ctx context.Context, workspaceID string, in CreateAppTypeInput) (*model.AppType, error) {
	slug := strings.TrimSpace(in.Slug)
	label := strings.TrimSpace(in.Label)
	if slug == "" || label == "" {
		return nil, &model.InvalidReferenceError{Field: "slug", Reason: "slug and label must not be empty"}
	}

	renderer := in.Renderer
	if renderer == "" {
		renderer = model.RendererHTMLTemplate
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_types (
			id, workspace_id, slug, label, icon, renderer, template_content,
			description, created_by_agent, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, workspaceID, slug, label, in.Icon, renderer, in.TemplateContent,
		in.Description, in.CreatedByAgent, now, now)
	if err != nil {
		return nil, fmt.Errorf("create app type: %w", err)
	}
	return s.Get(ctx, id)
}

type CreateInstanceInput struct {
	SourceFileID     string         `json:"source_file_id"`
	RelatedSourceIDs []string       `json:"related_source_ids"`
	AppType          string         `json:"app_type"` // id or slug
	Name             string         `json:"name"`
	Config           map[string]any `json:"config"`
	Content          *string        `json:"content"`
	CreatedByAgent   bool           `json:"-"`
}

// CreateInstance binds an app type onto a live source file. The instance is
// placed in the source file's folder; when no name is given one is derived
// from the source's base name and the app type label.
func (s *AppTypeService) CreateInstance(ctx context.Context, workspaceID, ownerID string, in CreateInstanceInput) (*model.File, error) {
	if in.SourceFileID == "" {
		return nil, &model.InvalidReferenceError{Field: "source_file_id", Reason: "must not be empty"}
	}
	source, err := s.content.GetLive(ctx, in.SourceFileID)
	if err != nil {
		return nil, err
	}
	if source.WorkspaceID != workspaceID {
		return nil, &model.InvalidReferenceError{Field: "source_file_id", Reason: "source belongs to another workspace"}
	}

	at, err := s.Resolve(ctx, workspaceID, in.AppType)
	if err != nil {
		return nil, err
	}

	for _, relID := range in.RelatedSourceIDs {
		if relID == in.SourceFileID {
			continue
		}
		if _, err := s.content.GetLive(ctx, relID); err != nil {
			return nil, err
		}
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = model.BaseName(source.Name) + " " + at.Label
		if at.Renderer == model.RendererHTMLTemplate {
			name += ".html"
		}
	}

	mimeType := "application/json"
	var contentText, instanceConfig *string
	if at.Renderer == model.RendererHTMLTemplate {
		mimeType = "text/html"
		switch {
		case in.Content != nil:
			contentText = in.Content
		case at.TemplateContent != nil:
			contentText = at.TemplateContent
		}
	} else {
		cfg := in.Config
		if cfg == nil {
			cfg = map[string]any{}
		}
		raw, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("encode config: %w", err)
		}
		encoded := string(raw)
		instanceConfig = &encoded
	}

	related := "[]"
	if len(in.RelatedSourceIDs) > 0 {
		raw, err := json.Marshal(in.RelatedSourceIDs)
		if err != nil {
			return nil, fmt.Errorf("encode related_source_ids: %w", err)
		}
		related = string(raw)
	}

	var size int64
	if contentText != nil {
		size = int64(len(*contentText))
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO files (
			id, owner_id, workspace_id, folder_id, name, mime_type, size_bytes,
			file_type, content_text, created_by_agent,
			is_instance, app_type_id, source_file_id, related_source_ids, instance_config,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE, ?, ?, ?, ?, ?, ?)`,
		id, ownerID, workspaceID, source.FolderID, name, mimeType, size,
		model.FileTypeInstance, contentText, in.CreatedByAgent,
		at.ID, source.ID, related, instanceConfig, now, now)
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	return s.content.Get(ctx, id)
}

type UpdateInstanceInput struct {
	Config  map[string]any `json:"config"`
	Content *string        `json:"content"`
}

// UpdateInstance rewrites an instance's stored config or template content.
func (s *AppTypeService) UpdateInstance(ctx context.Context, id string, in UpdateInstanceInput) (*model.File, error) {
	f, err := s.content.GetLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if !f.IsInstance {
		return nil, &model.InvalidReferenceError{Field: "instance_id", Reason: "file is not an instance"}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if in.Config != nil {
		raw, err := json.Marshal(in.Config)
		if err != nil {
			return nil, fmt.Errorf("encode config: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `
			UPDATE files SET instance_config = ?, updated_at = ? WHERE id = ?`,
			string(raw), now, id); err != nil {
			return nil, err
		}
	}
	if in.Content != nil {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE files SET content_text = ?, size_bytes = ?, updated_at = ? WHERE id = ?`,
			*in.Content, int64(len(*in.Content)), now, id); err != nil {
			return nil, err
		}
	}
	return s.content.Get(ctx, id)
}

type PromoteInstanceInput struct {
	Slug        string  `json:"slug"`
	Label       string  `json:"label"`
	Icon        string  `json:"icon"`
	Description *string `json:"description"`
}

// PromoteInstanceToApp copies an instance's current config or template
// content into a new workspace-scoped app type. The instance is unchanged.
func (s *AppTypeService) PromoteInstanceToApp(ctx context.Context, workspaceID, instanceID string, in PromoteInstanceInput) (*model.AppType, error) {
	f, err := s.content.GetLive(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if !f.IsInstance {
		return nil, &model.InvalidReferenceError{Field: "instance_id", Reason: "file is not an instance"}
	}
	if f.AppTypeID == nil {
		return nil, &model.InvalidReferenceError{Field: "instance_id", Reason: "instance has no app type"}
	}
	origin, err := s.Get(ctx, *f.AppTypeID)
	if err != nil {
		return nil, err
	}

	var template *string
	if origin.Renderer == model.RendererHTMLTemplate {
		template = f.ContentText
	} else if f.InstanceConfig != nil {
		template = f.InstanceConfig
	}

	return s.Create(ctx, workspaceID, CreateAppTypeInput{
		Slug:            in.Slug,
		Label:           in.Label,
		Icon:            in.Icon,
		Renderer:        origin.Renderer,
		TemplateContent: template,
		Description:     in.Description,
		CreatedByAgent:  true,
	})
}

// AutoCreateInstances derives default viewers for a freshly created data
// file: one matching its content category plus a generic text editor.
func (s *AppTypeService) AutoCreateInstances(ctx context.Context, f *model.File, byAgent bool) []*model.File {
	if f.IsInstance || f.FileType == model.FileTypeView {
		return nil
	}

	var slugs []string
	switch f.FileType {
	case model.FileTypeSpreadsheet:
		slugs = append(slugs, "table")
	case model.FileTypeDocument:
		slugs = append(slugs, "document")
	}
	slugs = append(slugs, "text-editor")

	var out []*model.File
	for _, slug := range slugs {
		inst, err := s.CreateInstance(ctx, f.WorkspaceID, f.OwnerID, CreateInstanceInput{
			SourceFileID:   f.ID,
			AppType:        slug,
			CreatedByAgent: byAgent,
		})
		if err != nil {
			// A missing built-in type is not fatal to file creation.
			s.log.Warn().Err(err).Str("file_id", f.ID).Str("slug", slug).Msg("auto instance skipped")
			continue
		}
		out = append(out, inst)
	}
	return out
}

func scanAppType(row rowScanner) (*model.AppType, error) {
	var at model.AppType
	var workspaceID, templateContent, description sql.NullString
	if err := row.Scan(&at.ID, &workspaceID, &at.Slug, &at.Label, &at.Icon, &at.Renderer,
		&templateContent, &description, &at.CreatedByAgent, &at.CreatedAt, &at.UpdatedAt); err != nil {
		return nil, err
	}
	if workspaceID.Valid {
		at.WorkspaceID = &workspaceID.String
	}
	if templateContent.Valid {
		at.TemplateContent = &templateContent.String
	}
	if description.Valid {
		at.Description = &description.String
	}
	return &at, nil
}
