package handler

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/plainer/hub/internal/blob"
	"github.com/plainer/hub/internal/cache"
	"github.com/plainer/hub/internal/db"
	"github.com/plainer/hub/internal/hub"
	"github.com/plainer/hub/internal/model"
	"github.com/plainer/hub/internal/service"
)

func setupDriveServer(t *testing.T) *httptest.Server {
	t.Helper()

	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	conn.SetMaxOpenConns(1)
	if err := db.Migrate(conn, "sqlite"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	log := zerolog.Nop()
	folders := service.NewFolderService(conn)
	content := service.NewContentService(conn, blob.NewMemoryStore(), cache.NoopCache{}, folders, log)
	appTypes := service.NewAppTypeService(conn, content, log)
	chat := service.NewChatService(conn)
	workspaces := service.NewWorkspaceService(conn)

	h := NewDriveHandler(workspaces, folders, content, appTypes, chat, hub.NewBroadcastHub(log))

	r := chi.NewRouter()
	r.Get("/v1/drive", h.GetDrive)
	r.Post("/v1/workspaces/{workspace_id}/files", h.CreateFile)
	r.Get("/v1/workspaces/{workspace_id}/files", h.ListFiles)
	r.Get("/v1/workspaces/{workspace_id}/app-types", h.ListAppTypes)
	r.Get("/v1/files/{file_id}/content", h.GetContent)
	r.Put("/v1/files/{file_id}/content", h.PutContent)
	r.Delete("/v1/files/{file_id}", h.DeleteFile)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func TestGetDriveCreatesWorkspaceAndDefaultFolder(t *testing.T) {
	srv := setupDriveServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/drive", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["slug"] != "drive-local" {
		t.Errorf("slug = %v, want drive-local", body["slug"])
	}
}

func TestFileLifecycleOverREST(t *testing.T) {
	srv := setupDriveServer(t)

	_, drive := doJSON(t, http.MethodGet, srv.URL+"/v1/drive", "")
	wsID, _ := drive["id"].(string)
	if wsID == "" {
		t.Fatal("no workspace id")
	}

	resp, created := doJSON(t, http.MethodPost, srv.URL+"/v1/workspaces/"+wsID+"/files",
		`{"name":"notes.txt","content":"v1"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	fileID, _ := created["id"].(string)

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/v1/files/"+fileID+"/content",
		`{"content":"v2"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put content status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/files/"+fileID+"/content", nil)
	getResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	defer getResp.Body.Close()
	var buf strings.Builder
	if _, err := io.Copy(&buf, getResp.Body); err != nil {
		t.Fatalf("read content: %v", err)
	}
	if buf.String() != "v2" {
		t.Errorf("content = %q, want v2", buf.String())
	}

	resp, deleted := doJSON(t, http.MethodDelete, srv.URL+"/v1/files/"+fileID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	ids, _ := deleted["deleted_ids"].([]any)
	if len(ids) < 1 {
		t.Errorf("deleted_ids = %v, want at least the file itself", deleted["deleted_ids"])
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/files/"+fileID+"/content", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("content after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestListAppTypesIncludesBuiltins(t *testing.T) {
	srv := setupDriveServer(t)

	_, drive := doJSON(t, http.MethodGet, srv.URL+"/v1/drive", "")
	wsID, _ := drive["id"].(string)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/workspaces/"+wsID+"/app-types", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	raw, _ := json.Marshal(body["app_types"])
	var appTypes []model.AppType
	if err := json.Unmarshal(raw, &appTypes); err != nil {
		t.Fatalf("decode app types: %v", err)
	}
	slugs := map[string]bool{}
	for _, at := range appTypes {
		slugs[at.Slug] = true
	}
	for _, want := range []string{"table", "board", "calendar", "document", "text-editor", "custom-view"} {
		if !slugs[want] {
			t.Errorf("built-in app type %q missing from listing", want)
		}
	}
}
