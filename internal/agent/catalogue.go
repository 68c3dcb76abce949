package agent

// Catalogue returns the fixed tool set offered to the model on every turn.
func Catalogue() []ToolSpec {
	return []ToolSpec{
		{
			Name:        "create_file",
			Description: "Create a new file in the workspace with the given name and text content. Data files get default viewers automatically.",
			InputSchema: schemaObject(map[string]any{
				"name":    schemaString("File name including extension, e.g. 'budget.csv'"),
				"content": schemaString("Full text content of the file"),
			}, "name", "content"),
		},
		{
			Name:        "edit_file",
			Description: "Replace the full content of an existing file. A new version is recorded.",
			InputSchema: schemaObject(map[string]any{
				"file_id":        schemaString("ID of the file to edit"),
				"new_content":    schemaString("Complete replacement content"),
				"change_summary": schemaString("Optional one-line description of the change"),
			}, "file_id", "new_content"),
		},
		{
			Name:        "read_file",
			Description: "Read the current content of a file by ID.",
			InputSchema: schemaObject(map[string]any{
				"file_id": schemaString("ID of the file to read"),
			}, "file_id"),
		},
		{
			Name:        "list_files",
			Description: "List all files in the workspace, split into data files and views/instances.",
			InputSchema: schemaObject(map[string]any{}),
		},
		{
			Name:        "delete_file",
			Description: "Delete a file. Views bound to it are deleted as well.",
			InputSchema: schemaObject(map[string]any{
				"file_id": schemaString("ID of the file to delete"),
			}, "file_id"),
		},
		{
			Name:        "create_instance",
			Description: "Create a view of a source file using an app type. Use app type slugs like 'table', 'board', 'calendar', 'document' or a custom app type id.",
			InputSchema: schemaObject(map[string]any{
				"source_file_id": schemaString("ID of the primary source file"),
				"source_file_ids": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Source file IDs for multi-file views. The first is the primary source; the rest are related. Use this instead of source_file_id for multi-file views.",
				},
				"app_type_slug": schemaString("Slug of the app type to render with"),
				"app_type_id":   schemaString("ID of the app type, alternative to the slug"),
				"name":          schemaString("Optional explicit view name"),
				"config": map[string]any{
					"type":        "object",
					"description": "Renderer configuration for built-in renderers",
				},
				"content": schemaString("Self-contained HTML for html-template renderers"),
			}),
		},
		{
			Name:        "create_app_type",
			Description: "Define a new reusable app type for this workspace.",
			InputSchema: schemaObject(map[string]any{
				"slug":             schemaString("Unique lookup key, e.g. 'invoice-viewer'"),
				"label":            schemaString("Human-readable name"),
				"icon":             schemaString("Optional icon name"),
				"template_content": schemaString("Self-contained HTML template"),
				"description":      schemaString("Optional description"),
			}, "slug", "label"),
		},
		{
			Name:        "update_instance",
			Description: "Update an existing view's configuration or HTML content.",
			InputSchema: schemaObject(map[string]any{
				"instance_id": schemaString("ID of the view to update"),
				"config": map[string]any{
					"type":        "object",
					"description": "Replacement renderer configuration",
				},
				"content": schemaString("Replacement HTML content"),
			}, "instance_id"),
		},
		{
			Name:        "promote_instance_to_app",
			Description: "Turn an existing view into a reusable app type without changing the view.",
			InputSchema: schemaObject(map[string]any{
				"instance_id": schemaString("ID of the view to promote"),
				"slug":        schemaString("Slug for the new app type"),
				"label":       schemaString("Label for the new app type"),
				"icon":        schemaString("Optional icon name"),
				"description": schemaString("Optional description"),
			}, "instance_id", "slug", "label"),
		},
		{
			Name:        "toggle_favorite",
			Description: "Star or unstar a file.",
			InputSchema: schemaObject(map[string]any{
				"file_id": schemaString("ID of the file to toggle"),
			}, "file_id"),
		},
	}
}

func schemaObject(props map[string]any, required ...string) map[string]any {
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func schemaString(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
