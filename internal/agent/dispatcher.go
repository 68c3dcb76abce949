package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/plainer/hub/internal/hub"
	"github.com/plainer/hub/internal/model"
	"github.com/plainer/hub/internal/service"
)

// toolKind is the closed set of catalogue tools. Dispatch is by kind, not
// by string, so every handler is an exhaustive switch arm; the string
// fallback exists only at the boundary where the model names a tool.
type toolKind int

const (
	toolCreateFile toolKind = iota
	toolEditFile
	toolReadFile
	toolListFiles
	toolDeleteFile
	toolCreateInstance
	toolCreateAppType
	toolUpdateInstance
	toolPromoteInstanceToApp
	toolToggleFavorite
)

var toolKinds = map[string]toolKind{
	"create_file":             toolCreateFile,
	"edit_file":               toolEditFile,
	"read_file":               toolReadFile,
	"list_files":              toolListFiles,
	"delete_file":             toolDeleteFile,
	"create_instance":         toolCreateInstance,
	"create_app_type":         toolCreateAppType,
	"update_instance":         toolUpdateInstance,
	"promote_instance_to_app": toolPromoteInstanceToApp,
	"toggle_favorite":         toolToggleFavorite,
}

// Dispatcher executes catalogue tools against one workspace and announces
// every mutation on the broadcast hub. Results are plain strings; failures
// use an "Error: ..." prefix and are fed back to the model, never raised.
type Dispatcher struct {
	content  *service.ContentService
	appTypes *service.AppTypeService

	broadcaster *hub.BroadcastHub
	workspaceID string
	ownerID     string
	log         zerolog.Logger
}

func NewDispatcher(content *service.ContentService, appTypes *service.AppTypeService, broadcaster *hub.BroadcastHub, workspaceID, ownerID string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		content:     content,
		appTypes:    appTypes,
		broadcaster: broadcaster,
		workspaceID: workspaceID,
		ownerID:     ownerID,
		log:         log,
	}
}

// Execute runs one tool call and returns its result string.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any) string {
	kind, ok := toolKinds[name]
	if !ok {
		return "Unknown tool: " + name
	}

	switch kind {
	case toolCreateFile:
		return d.createFile(ctx, args)
	case toolEditFile:
		return d.editFile(ctx, args)
	case toolReadFile:
		return d.readFile(ctx, args)
	case toolListFiles:
		return d.listFiles(ctx)
	case toolDeleteFile:
		return d.deleteFile(ctx, args)
	case toolCreateInstance:
		return d.createInstance(ctx, args)
	case toolCreateAppType:
		return d.createAppType(ctx, args)
	case toolUpdateInstance:
		return d.updateInstance(ctx, args)
	case toolPromoteInstanceToApp:
		return d.promoteInstanceToApp(ctx, args)
	case toolToggleFavorite:
		return d.toggleFavorite(ctx, args)
	}
	return "Unknown tool: " + name
}

// Label derives a short human-readable activity label from a tool call.
// Pure function, no side effects.
func Label(name string, args map[string]any) string {
	kind, ok := toolKinds[name]
	if !ok {
		return "Running " + name
	}
	switch kind {
	case toolCreateFile:
		return "Creating " + stringArg(args, "name")
	case toolEditFile:
		return "Editing file"
	case toolReadFile:
		return "Reading file"
	case toolListFiles:
		return "Listing files"
	case toolDeleteFile:
		return "Deleting file"
	case toolCreateInstance:
		if n := stringArg(args, "name"); n != "" {
			return "Linking view: " + n
		}
		if slug := stringArg(args, "app_type_slug"); slug != "" {
			return "Linking view: " + slug
		}
		return "Linking view"
	case toolCreateAppType:
		return "Creating app: " + stringArg(args, "label")
	case toolUpdateInstance:
		return "Updating view"
	case toolPromoteInstanceToApp:
		return "Publishing app: " + stringArg(args, "label")
	case toolToggleFavorite:
		return "Toggling favorite"
	}
	return "Running " + name
}

type createFileArgs struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (d *Dispatcher) createFile(ctx context.Context, args map[string]any) string {
	var in createFileArgs
	if err := decodeArgs(args, &in); err != nil {
		return "Error: " + err.Error()
	}

	f, err := d.content.CreateTextFile(ctx, d.workspaceID, d.ownerID, service.CreateFileInput{
		Name:           in.Name,
		Content:        in.Content,
		CreatedByAgent: true,
	})
	if err != nil {
		return "Error: " + err.Error()
	}
	d.announceFile(model.EventFileCreated, f)

	instances := d.appTypes.AutoCreateInstances(ctx, f, true)
	for _, inst := range instances {
		d.announceFile(model.EventFileCreated, inst)
	}

	result := fmt.Sprintf("Created file '%s' with ID: %s", f.Name, f.ID)
	if len(instances) > 0 {
		names := make([]string, 0, len(instances))
		for _, inst := range instances {
			names = append(names, inst.Name)
		}
		result += " (views: " + strings.Join(names, ", ") + ")"
	}
	return result
}

type editFileArgs struct {
	FileID        string  `json:"file_id"`
	NewContent    string  `json:"new_content"`
	ChangeSummary *string `json:"change_summary"`
}

func (d *Dispatcher) editFile(ctx context.Context, args map[string]any) string {
	var in editFileArgs
	if err := decodeArgs(args, &in); err != nil {
		return "Error: " + err.Error()
	}

	f, err := d.content.UpdateContent(ctx, in.FileID, []byte(in.NewContent), in.ChangeSummary, true)
	if err != nil {
		return "Error: " + err.Error()
	}
	d.announceFile(model.EventFileUpdated, f)
	return fmt.Sprintf("Updated file '%s'", f.Name)
}

type fileIDArgs struct {
	FileID string `json:"file_id"`
}

func (d *Dispatcher) readFile(ctx context.Context, args map[string]any) string {
	var in fileIDArgs
	if err := decodeArgs(args, &in); err != nil {
		return "Error: " + err.Error()
	}
	data, err := d.content.GetContent(ctx, in.FileID)
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(data)
}

func (d *Dispatcher) listFiles(ctx context.Context) string {
	files, err := d.content.List(ctx, d.workspaceID, service.ListOptions{})
	if err != nil {
		return "Error: " + err.Error()
	}
	if len(files) == 0 {
		return "No files in workspace."
	}

	var data, views []string
	for _, f := range files {
		line := fmt.Sprintf("- %s (id: %s, type: %s, %d bytes)", f.Name, f.ID, f.FileType, f.SizeBytes)
		if f.IsInstance || f.FileType == model.FileTypeView {
			views = append(views, line)
		} else {
			data = append(data, line)
		}
	}

	var b strings.Builder
	b.WriteString("Data files:\n")
	if len(data) == 0 {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(strings.Join(data, "\n") + "\n")
	}
	b.WriteString("\nViews & instances:\n")
	if len(views) == 0 {
		b.WriteString("(none)")
	} else {
		b.WriteString(strings.Join(views, "\n"))
	}
	return b.String()
}

func (d *Dispatcher) deleteFile(ctx context.Context, args map[string]any) string {
	var in fileIDArgs
	if err := decodeArgs(args, &in); err != nil {
		return "Error: " + err.Error()
	}
	f, err := d.content.GetLive(ctx, in.FileID)
	if err != nil {
		return "Error: " + err.Error()
	}
	deleted, err := d.content.SoftDelete(ctx, in.FileID)
	if err != nil {
		return "Error: " + err.Error()
	}
	for _, id := range deleted {
		d.broadcaster.Broadcast(d.workspaceID, model.Envelope{
			Type:    model.EventFileDeleted,
			Payload: map[string]any{"file_id": id},
		}, nil)
	}
	if len(deleted) > 1 {
		return fmt.Sprintf("Deleted file '%s' and %d linked view(s)", f.Name, len(deleted)-1)
	}
	return fmt.Sprintf("Deleted file '%s'", f.Name)
}

type createInstanceArgs struct {
	SourceFileID  string         `json:"source_file_id"`
	SourceFileIDs []string       `json:"source_file_ids"`
	AppTypeSlug   string         `json:"app_type_slug"`
	AppTypeID     string         `json:"app_type_id"`
	Name          string         `json:"name"`
	Config        map[string]any `json:"config"`
	Content       *string        `json:"content"`
}

func (d *Dispatcher) createInstance(ctx context.Context, args map[string]any) string {
	var in createInstanceArgs
	if err := decodeArgs(args, &in); err != nil {
		return "Error: " + err.Error()
	}

	appType := in.AppTypeID
	if appType == "" {
		appType = in.AppTypeSlug
	}
	if appType == "" {
		return "Error: app_type_slug or app_type_id is required"
	}

	// source_file_ids alone is also valid: the first entry is the primary
	// source, the rest are related.
	primary := in.SourceFileID
	related := in.SourceFileIDs
	if primary == "" && len(related) > 0 {
		primary = related[0]
		related = related[1:]
	}

	inst, err := d.appTypes.CreateInstance(ctx, d.workspaceID, d.ownerID, service.CreateInstanceInput{
		SourceFileID:     primary,
		RelatedSourceIDs: related,
		AppType:          appType,
		Name:             in.Name,
		Config:           in.Config,
		Content:          in.Content,
		CreatedByAgent:   true,
	})
	if err != nil {
		return "Error: " + err.Error()
	}
	d.announceFile(model.EventFileCreated, inst)
	return fmt.Sprintf("Created view '%s' with ID: %s", inst.Name, inst.ID)
}

type createAppTypeArgs struct {
	Slug            string  `json:"slug"`
	Label           string  `json:"label"`
	Icon            string  `json:"icon"`
	TemplateContent *string `json:"template_content"`
	Description     *string `json:"description"`
}

func (d *Dispatcher) createAppType(ctx context.Context, args map[string]any) string {
	var in createAppTypeArgs
	if err := decodeArgs(args, &in); err != nil {
		return "Error: " + err.Error()
	}
	at, err := d.appTypes.Create(ctx, d.workspaceID, service.CreateAppTypeInput{
		Slug:            in.Slug,
		Label:           in.Label,
		Icon:            in.Icon,
		TemplateContent: in.TemplateContent,
		Description:     in.Description,
		CreatedByAgent:  true,
	})
	if err != nil {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("Created app type '%s' (slug: %s, id: %s)", at.Label, at.Slug, at.ID)
}

type updateInstanceArgs struct {
	InstanceID string         `json:"instance_id"`
	Config     map[string]any `json:"config"`
	Content    *string        `json:"content"`
}

func (d *Dispatcher) updateInstance(ctx context.Context, args map[string]any) string {
	var in updateInstanceArgs
	if err := decodeArgs(args, &in); err != nil {
		return "Error: " + err.Error()
	}
	inst, err := d.appTypes.UpdateInstance(ctx, in.InstanceID, service.UpdateInstanceInput{
		Config:  in.Config,
		Content: in.Content,
	})
	if err != nil {
		return "Error: " + err.Error()
	}
	d.announceFile(model.EventFileUpdated, inst)
	return fmt.Sprintf("Updated view '%s'", inst.Name)
}

type promoteInstanceArgs struct {
	InstanceID  string  `json:"instance_id"`
	Slug        string  `json:"slug"`
	Label       string  `json:"label"`
	Icon        string  `json:"icon"`
	Description *string `json:"description"`
}

func (d *Dispatcher) promoteInstanceToApp(ctx context.Context, args map[string]any) string {
	var in promoteInstanceArgs
	if err := decodeArgs(args, &in); err != nil {
		return "Error: " + err.Error()
	}
	at, err := d.appTypes.PromoteInstanceToApp(ctx, d.workspaceID, in.InstanceID, service.PromoteInstanceInput{
		Slug:        in.Slug,
		Label:       in.Label,
		Icon:        in.Icon,
		Description: in.Description,
	})
	if err != nil {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("Promoted view to app type '%s' (id: %s)", at.Label, at.ID)
}

func (d *Dispatcher) toggleFavorite(ctx context.Context, args map[string]any) string {
	var in fileIDArgs
	if err := decodeArgs(args, &in); err != nil {
		return "Error: " + err.Error()
	}
	f, err := d.content.ToggleFavorite(ctx, in.FileID)
	if err != nil {
		return "Error: " + err.Error()
	}
	d.announceFile(model.EventFileUpdated, f)
	if f.IsFavorite {
		return fmt.Sprintf("Starred '%s'", f.Name)
	}
	return fmt.Sprintf("Unstarred '%s'", f.Name)
}

func (d *Dispatcher) announceFile(eventType string, f *model.File) {
	d.broadcaster.Broadcast(d.workspaceID, model.Envelope{
		Type:    eventType,
		Payload: map[string]any{"file": f},
	}, nil)
}

// decodeArgs maps loosely-typed tool arguments onto a typed payload.
func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
