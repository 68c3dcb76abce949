package model

// FileType buckets used for viewer selection and listings.
const (
	FileTypeCode        = "code"
	FileTypeDocument    = "document"
	FileTypeImage       = "image"
	FileTypePDF         = "pdf"
	FileTypeSpreadsheet = "spreadsheet"
	FileTypeView        = "view"
	FileTypeInstance    = "instance"
	FileTypeOther       = "other"
)

// Renderer kinds carried by AppType. Built-in renderers are implemented by
// the client; html-template renderers ship their own self-contained HTML.
const (
	RendererHTMLTemplate = "html-template"
)

// File is one content unit in a workspace. A File is either a data file or,
// when IsInstance is set, a renderer binding onto another File.
type File struct {
	ID             string  `json:"id"`
	OwnerID        string  `json:"owner_id"`
	WorkspaceID    string  `json:"workspace_id"`
	FolderID       *string `json:"folder_id,omitempty"`
	Name           string  `json:"name"`
	MimeType       string  `json:"mime_type"`
	SizeBytes      int64   `json:"size_bytes"`
	StorageKey     string  `json:"-"`
	FileType       string  `json:"file_type"`
	ContentText    *string `json:"-"`
	IsFavorite     bool    `json:"is_favorite"`
	CreatedByAgent bool    `json:"created_by_agent"`

	// Instance fields; only meaningful when IsInstance is true.
	IsInstance       bool     `json:"is_instance"`
	AppTypeID        *string  `json:"app_type_id,omitempty"`
	SourceFileID     *string  `json:"source_file_id,omitempty"`
	RelatedSourceIDs []string `json:"related_source_ids,omitempty"`
	InstanceConfig   *string  `json:"instance_config,omitempty"`

	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	DeletedAt *string `json:"deleted_at,omitempty"`
}

// Deleted reports whether the soft-delete marker is set.
func (f *File) Deleted() bool {
	return f != nil && f.DeletedAt != nil
}

// FileVersion is one append-only content snapshot of a File.
type FileVersion struct {
	ID             string  `json:"id"`
	FileID         string  `json:"file_id"`
	VersionNumber  int     `json:"version_number"`
	StorageKey     string  `json:"-"`
	SizeBytes      int64   `json:"size_bytes"`
	ContentText    *string `json:"-"`
	ChangeSummary  *string `json:"change_summary,omitempty"`
	CreatedByAgent bool    `json:"created_by_agent"`
	CreatedAt      string  `json:"created_at"`
}

// Folder is a hierarchical container. Name is unique per (workspace, parent).
type Folder struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	WorkspaceID string  `json:"workspace_id"`
	ParentID    *string `json:"parent_id,omitempty"`
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	IsFavorite  bool    `json:"is_favorite"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// AppType is a reusable renderer descriptor. Global types have no workspace
// and are visible everywhere; custom types are scoped to one workspace.
type AppType struct {
	ID              string  `json:"id"`
	WorkspaceID     *string `json:"workspace_id,omitempty"`
	Slug            string  `json:"slug"`
	Label           string  `json:"label"`
	Icon            string  `json:"icon"`
	Renderer        string  `json:"renderer"`
	TemplateContent *string `json:"template_content,omitempty"`
	Description     *string `json:"description,omitempty"`
	CreatedByAgent  bool    `json:"created_by_agent"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// Global reports whether the type is visible to every workspace.
func (a *AppType) Global() bool {
	return a != nil && a.WorkspaceID == nil
}
