package model

// DefaultFolderName is the well-known root folder that holds data files.
// It is lazily created and orphaned root-level files are migrated into it.
const DefaultFolderName = "Files"

// Workspace is the top-level content container ("drive"), one per owner.
type Workspace struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Kind      string `json:"kind"`
	OwnerID   string `json:"owner_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}
