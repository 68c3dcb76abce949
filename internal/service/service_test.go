package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/plainer/hub/internal/blob"
	"github.com/plainer/hub/internal/cache"
	"github.com/plainer/hub/internal/db"
	"github.com/plainer/hub/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// In-memory sqlite is per-connection.
	conn.SetMaxOpenConns(1)
	if err := db.Migrate(conn, "sqlite"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type testEnv struct {
	db         *sql.DB
	workspaces *WorkspaceService
	folders    *FolderService
	content    *ContentService
	appTypes   *AppTypeService
	chat       *ChatService
	ws         *model.Workspace
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn := setupTestDB(t)
	log := zerolog.Nop()
	folders := NewFolderService(conn)
	content := NewContentService(conn, blob.NewMemoryStore(), cache.NoopCache{}, folders, log)

	env := &testEnv{
		db:         conn,
		workspaces: NewWorkspaceService(conn),
		folders:    folders,
		content:    content,
		appTypes:   NewAppTypeService(conn, content, log),
		chat:       NewChatService(conn),
	}

	ws, err := env.workspaces.EnsureDrive(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ensure drive: %v", err)
	}
	env.ws = ws
	return env
}

func TestEnsureDriveIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	again, err := env.workspaces.EnsureDrive(ctx, "user-1")
	if err != nil {
		t.Fatalf("ensure drive again: %v", err)
	}
	if again.ID != env.ws.ID {
		t.Errorf("second EnsureDrive made a new workspace: %s != %s", again.ID, env.ws.ID)
	}
	if env.ws.Slug != "drive-user-1" {
		t.Errorf("slug = %q, want drive-user-1", env.ws.Slug)
	}
}

func TestEnsureDefaultFolderMigratesOrphans(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	// Seed a folderless file directly.
	if _, err := env.db.Exec(`
		INSERT INTO files (id, owner_id, workspace_id, name, created_at, updated_at)
		VALUES ('orphan', 'user-1', ?, 'stray.txt', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`,
		env.ws.ID); err != nil {
		t.Fatalf("seed orphan: %v", err)
	}

	folder, err := env.folders.EnsureDefaultFolder(ctx, env.ws.ID)
	if err != nil {
		t.Fatalf("ensure default folder: %v", err)
	}
	if folder.Name != model.DefaultFolderName {
		t.Errorf("folder name = %q, want %q", folder.Name, model.DefaultFolderName)
	}

	f, err := env.content.Get(ctx, "orphan")
	if err != nil {
		t.Fatalf("get orphan: %v", err)
	}
	if f.FolderID == nil || *f.FolderID != folder.ID {
		t.Errorf("orphan not migrated into default folder: folder_id = %v", f.FolderID)
	}

	again, err := env.folders.EnsureDefaultFolder(ctx, env.ws.ID)
	if err != nil {
		t.Fatalf("ensure default folder again: %v", err)
	}
	if again.ID != folder.ID {
		t.Errorf("second call made a new folder: %s != %s", again.ID, folder.ID)
	}
}

func TestCreateTextFileWritesVersionOne(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	f, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name:    "notes.md",
		Content: "# Notes",
	})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if f.FileType != model.FileTypeDocument {
		t.Errorf("file type = %q, want document", f.FileType)
	}
	if f.FolderID == nil {
		t.Error("file has no folder, want default folder placement")
	}

	versions, err := env.content.ListVersions(ctx, f.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 1 || versions[0].VersionNumber != 1 {
		t.Fatalf("versions = %+v, want single version 1", versions)
	}
}

func TestUpdateContentRoundTripAndVersionCount(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	f, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name:    "todo.txt",
		Content: "first",
	})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	if _, err := env.content.UpdateContent(ctx, f.ID, []byte("second"), nil, true); err != nil {
		t.Fatalf("update content: %v", err)
	}

	data, err := env.content.GetContent(ctx, f.ID)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want second", data)
	}

	versions, err := env.content.ListVersions(ctx, f.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("version count = %d, want 2", len(versions))
	}
	if versions[0].VersionNumber != 2 {
		t.Errorf("latest version = %d, want 2", versions[0].VersionNumber)
	}
}

func TestBinaryFileContentServedThroughBlobStore(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	payload := []byte{0x89, 0x50, 0x4e, 0x47, 0x00}
	f, err := env.content.CreateBinaryFile(ctx, env.ws.ID, "user-1", CreateBinaryFileInput{
		Name:     "logo.png",
		MimeType: "image/png",
		Data:     payload,
	})
	if err != nil {
		t.Fatalf("create binary file: %v", err)
	}
	if f.FileType != model.FileTypeImage {
		t.Errorf("file type = %q, want image", f.FileType)
	}

	data, err := env.content.GetContent(ctx, f.ID)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if len(data) != len(payload) {
		t.Errorf("content length = %d, want %d", len(data), len(payload))
	}
}

func TestSoftDeleteCascadesToInstances(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	src, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name:    "budget.csv",
		Content: "a,b\n1,2",
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	inst1, err := env.appTypes.CreateInstance(ctx, env.ws.ID, "user-1", CreateInstanceInput{
		SourceFileID: src.ID,
		AppType:      "table",
	})
	if err != nil {
		t.Fatalf("create instance 1: %v", err)
	}
	inst2, err := env.appTypes.CreateInstance(ctx, env.ws.ID, "user-1", CreateInstanceInput{
		SourceFileID: src.ID,
		AppType:      "board",
	})
	if err != nil {
		t.Fatalf("create instance 2: %v", err)
	}

	deleted, err := env.content.SoftDelete(ctx, src.ID)
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if len(deleted) != 3 {
		t.Errorf("deleted ids = %v, want source plus both instances", deleted)
	}

	files, err := env.content.List(ctx, env.ws.ID, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, f := range files {
		if f.ID == src.ID || f.ID == inst1.ID || f.ID == inst2.ID {
			t.Errorf("deleted file %s still visible in listing", f.ID)
		}
	}

	for _, id := range []string{src.ID, inst1.ID, inst2.ID} {
		f, err := env.content.Get(ctx, id)
		if err != nil {
			t.Fatalf("get %s after delete: %v", id, err)
		}
		if !f.Deleted() {
			t.Errorf("file %s has no deleted marker", id)
		}
	}
}

func TestSoftDeleteCascadesViaRelatedSources(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	primary, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name: "a.csv", Content: "x",
	})
	if err != nil {
		t.Fatalf("create primary: %v", err)
	}
	related, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name: "b.csv", Content: "y",
	})
	if err != nil {
		t.Fatalf("create related: %v", err)
	}

	inst, err := env.appTypes.CreateInstance(ctx, env.ws.ID, "user-1", CreateInstanceInput{
		SourceFileID:     primary.ID,
		RelatedSourceIDs: []string{related.ID},
		AppType:          "table",
	})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}

	if _, err := env.content.SoftDelete(ctx, related.ID); err != nil {
		t.Fatalf("soft delete related: %v", err)
	}

	got, err := env.content.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if !got.Deleted() {
		t.Error("instance referencing deleted related source was not cascaded")
	}
}

func TestInstanceNameDerivation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	src, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name: "budget.csv", Content: "a,b",
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	inst, err := env.appTypes.CreateInstance(ctx, env.ws.ID, "user-1", CreateInstanceInput{
		SourceFileID: src.ID,
		AppType:      "board",
	})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if inst.Name != "budget Board" {
		t.Errorf("instance name = %q, want %q", inst.Name, "budget Board")
	}
	if inst.MimeType != "application/json" {
		t.Errorf("config instance mime = %q, want application/json", inst.MimeType)
	}
	if inst.FolderID == nil || src.FolderID == nil || *inst.FolderID != *src.FolderID {
		t.Error("instance not placed in its source's folder")
	}

	custom, err := env.appTypes.Create(ctx, env.ws.ID, CreateAppTypeInput{
		Slug: "dashboard", Label: "Dashboard", Renderer: model.RendererHTMLTemplate,
	})
	if err != nil {
		t.Fatalf("create app type: %v", err)
	}
	htmlInst, err := env.appTypes.CreateInstance(ctx, env.ws.ID, "user-1", CreateInstanceInput{
		SourceFileID: src.ID,
		AppType:      custom.ID,
	})
	if err != nil {
		t.Fatalf("create html instance: %v", err)
	}
	if htmlInst.Name != "budget Dashboard.html" {
		t.Errorf("html instance name = %q, want %q", htmlInst.Name, "budget Dashboard.html")
	}
	if htmlInst.MimeType != "text/html" {
		t.Errorf("html instance mime = %q, want text/html", htmlInst.MimeType)
	}
}

func TestInstancesOfListsLiveViews(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	source, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name:    "tasks.csv",
		Content: "title,status\n",
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	inst, err := env.appTypes.CreateInstance(ctx, env.ws.ID, "user-1", CreateInstanceInput{
		SourceFileID: source.ID,
		AppType:      "board",
	})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}

	instances, err := env.content.InstancesOf(ctx, source.ID)
	if err != nil {
		t.Fatalf("instances of: %v", err)
	}
	if len(instances) != 1 || instances[0].ID != inst.ID {
		t.Fatalf("instances = %+v, want just %s", instances, inst.ID)
	}

	if _, err := env.content.SoftDelete(ctx, inst.ID); err != nil {
		t.Fatalf("delete instance: %v", err)
	}
	instances, err = env.content.InstancesOf(ctx, source.ID)
	if err != nil {
		t.Fatalf("instances of after delete: %v", err)
	}
	if len(instances) != 0 {
		t.Fatalf("deleted instance still listed: %+v", instances)
	}
}

func TestListRecentOrdersByUpdate(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	first, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name:    "a.txt",
		Content: "a",
	})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name:    "b.txt",
		Content: "b",
	}); err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := env.content.UpdateContent(ctx, first.ID, []byte("a2"), nil, false); err != nil {
		t.Fatalf("update a: %v", err)
	}

	recent, err := env.content.ListRecent(ctx, env.ws.ID, 1)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != first.ID {
		t.Fatalf("recent = %+v, want just the freshly updated file", recent)
	}
}

func TestResolvePrefersGlobalOnSlugCollision(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	custom, err := env.appTypes.Create(ctx, env.ws.ID, CreateAppTypeInput{
		Slug: "table", Label: "My Table", Renderer: model.RendererHTMLTemplate,
	})
	if err != nil {
		t.Fatalf("create shadowing app type: %v", err)
	}

	resolved, err := env.appTypes.Resolve(ctx, env.ws.ID, "table")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolved.Global() {
		t.Errorf("resolve(table) = workspace-scoped %s, want the global definition", resolved.ID)
	}

	// The custom copy stays reachable by id.
	byID, err := env.appTypes.Resolve(ctx, env.ws.ID, custom.ID)
	if err != nil {
		t.Fatalf("resolve by id: %v", err)
	}
	if byID.ID != custom.ID {
		t.Errorf("resolve by id = %s, want %s", byID.ID, custom.ID)
	}
}

func TestAutoCreateInstances(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	src, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name: "data.csv", Content: "a,b",
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	instances := env.appTypes.AutoCreateInstances(ctx, src, false)
	if len(instances) != 2 {
		t.Fatalf("auto instances = %d, want table viewer plus text editor", len(instances))
	}

	slugs := map[string]bool{}
	for _, inst := range instances {
		at, err := env.appTypes.Get(ctx, *inst.AppTypeID)
		if err != nil {
			t.Fatalf("get app type: %v", err)
		}
		slugs[at.Slug] = true
	}
	if !slugs["table"] || !slugs["text-editor"] {
		t.Errorf("auto instance slugs = %v, want table and text-editor", slugs)
	}
}

func TestCreateInstanceRejectsDeletedSource(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	src, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name: "gone.txt", Content: "x",
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	if _, err := env.content.SoftDelete(ctx, src.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	if _, err := env.appTypes.CreateInstance(ctx, env.ws.ID, "user-1", CreateInstanceInput{
		SourceFileID: src.ID,
		AppType:      "table",
	}); err == nil {
		t.Fatal("expected instance on deleted source to be rejected")
	}
}

func TestPromoteInstanceToApp(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	src, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name: "tasks.csv", Content: "a,b",
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	inst, err := env.appTypes.CreateInstance(ctx, env.ws.ID, "user-1", CreateInstanceInput{
		SourceFileID: src.ID,
		AppType:      "board",
		Config:       map[string]any{"group_by": "status"},
	})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}

	promoted, err := env.appTypes.PromoteInstanceToApp(ctx, env.ws.ID, inst.ID, PromoteInstanceInput{
		Slug: "status-board", Label: "Status Board",
	})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted.Global() {
		t.Error("promoted app type should be workspace-scoped")
	}
	if promoted.TemplateContent == nil || *promoted.TemplateContent == "" {
		t.Error("promoted app type lost the instance config")
	}

	// Source instance unchanged.
	after, err := env.content.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if after.InstanceConfig == nil || *after.InstanceConfig != *inst.InstanceConfig {
		t.Error("promotion altered the source instance")
	}
}

func TestToggleFavoriteFlips(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	f, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name: "fav.txt", Content: "x",
	})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	on, err := env.content.ToggleFavorite(ctx, f.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !on.IsFavorite {
		t.Error("first toggle did not set favorite")
	}
	off, err := env.content.ToggleFavorite(ctx, f.ID)
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if off.IsFavorite {
		t.Error("second toggle did not clear favorite")
	}
}

func TestChatTranscriptOrder(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	conv, err := env.chat.EnsureConversation(ctx, env.ws.ID, "user-1", "conv-1")
	if err != nil {
		t.Fatalf("ensure conversation: %v", err)
	}

	userID := "user-1"
	if _, err := env.chat.AppendMessage(ctx, conv.ID, model.SenderUser, &userID, "hello"); err != nil {
		t.Fatalf("append user message: %v", err)
	}
	if _, err := env.chat.AppendMessage(ctx, conv.ID, model.SenderAssistant, nil, "hi there"); err != nil {
		t.Fatalf("append assistant message: %v", err)
	}

	history, err := env.chat.History(ctx, conv.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].SenderType != model.SenderUser || history[1].SenderType != model.SenderAssistant {
		t.Errorf("history order wrong: %s then %s", history[0].SenderType, history[1].SenderType)
	}
}

func TestRestoreVersion(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	f, err := env.content.CreateTextFile(ctx, env.ws.ID, "user-1", CreateFileInput{
		Name: "doc.md", Content: "v1",
	})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if _, err := env.content.UpdateContent(ctx, f.ID, []byte("v2"), nil, false); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := env.content.RestoreVersion(ctx, f.ID, 1); err != nil {
		t.Fatalf("restore: %v", err)
	}
	data, err := env.content.GetContent(ctx, f.ID)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("content after restore = %q, want v1", data)
	}
	versions, err := env.content.ListVersions(ctx, f.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 3 {
		t.Errorf("version count = %d, want restore to append a third version", len(versions))
	}
}
