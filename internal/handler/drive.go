package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/plainer/hub/internal/hub"
	"github.com/plainer/hub/internal/model"
	"github.com/plainer/hub/internal/service"
)

// DriveHandler exposes the workspace content surface over REST. Mutations
// made here are announced on the broadcast hub just like agent mutations.
type DriveHandler struct {
	workspaces  *service.WorkspaceService
	folders     *service.FolderService
	content     *service.ContentService
	appTypes    *service.AppTypeService
	chat        *service.ChatService
	broadcaster *hub.BroadcastHub
}

func NewDriveHandler(workspaces *service.WorkspaceService, folders *service.FolderService, content *service.ContentService, appTypes *service.AppTypeService, chat *service.ChatService, broadcaster *hub.BroadcastHub) *DriveHandler {
	return &DriveHandler{
		workspaces:  workspaces,
		folders:     folders,
		content:     content,
		appTypes:    appTypes,
		chat:        chat,
		broadcaster: broadcaster,
	}
}

// GetDrive returns the caller's drive workspace, creating it on first use.
func (h *DriveHandler) GetDrive(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspaces.EnsureDrive(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// Default folder creation and orphan migration happen on access.
	if _, err := h.folders.EnsureDefaultFolder(r.Context(), ws.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *DriveHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.folders.List(r.Context(), chi.URLParam(r, "workspace_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

func (h *DriveHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var in service.CreateFolderInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	folder, err := h.folders.Create(r.Context(), chi.URLParam(r, "workspace_id"), userID(r), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

func (h *DriveHandler) ToggleFolderFavorite(w http.ResponseWriter, r *http.Request) {
	folder, err := h.folders.ToggleFavorite(r.Context(), chi.URLParam(r, "folder_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

func (h *DriveHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	opts := service.ListOptions{}
	if v := r.URL.Query().Get("folder_id"); v != "" {
		opts.FolderID = &v
	}
	if r.URL.Query().Get("include_deleted") == "true" {
		opts.IncludeDeleted = true
	}
	files, err := h.content.List(r.Context(), chi.URLParam(r, "workspace_id"), opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h *DriveHandler) CreateFile(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspace_id")
	var in service.CreateFileInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	f, err := h.content.CreateTextFile(r.Context(), workspaceID, userID(r), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.announce(workspaceID, model.EventFileCreated, f)
	for _, inst := range h.appTypes.AutoCreateInstances(r.Context(), f, false) {
		h.announce(workspaceID, model.EventFileCreated, inst)
	}
	writeJSON(w, http.StatusCreated, f)
}

// UploadFile accepts multipart form data with a single "file" part.
func (h *DriveHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspace_id")
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart body")
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "missing file part")
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "read upload")
		return
	}

	var folderID *string
	if v := r.FormValue("folder_id"); v != "" {
		folderID = &v
	}

	f, err := h.content.CreateBinaryFile(r.Context(), workspaceID, userID(r), service.CreateBinaryFileInput{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
		FolderID: folderID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.announce(workspaceID, model.EventFileCreated, f)
	for _, inst := range h.appTypes.AutoCreateInstances(r.Context(), f, false) {
		h.announce(workspaceID, model.EventFileCreated, inst)
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *DriveHandler) ListRecentFiles(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	files, err := h.content.ListRecent(r.Context(), chi.URLParam(r, "workspace_id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h *DriveHandler) ListFileInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.content.InstancesOf(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instances": instances})
}

func (h *DriveHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.content.Get(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *DriveHandler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateFileInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	f, err := h.content.UpdateMeta(r.Context(), chi.URLParam(r, "file_id"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.announce(f.WorkspaceID, model.EventFileUpdated, f)
	writeJSON(w, http.StatusOK, f)
}

func (h *DriveHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.content.GetLive(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	deleted, err := h.content.SoftDelete(r.Context(), f.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	for _, id := range deleted {
		h.broadcaster.Broadcast(f.WorkspaceID, model.Envelope{
			Type:    model.EventFileDeleted,
			Payload: map[string]any{"file_id": id},
		}, nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_ids": deleted})
}

func (h *DriveHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	f, err := h.content.GetLive(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	data, err := h.content.GetContent(r.Context(), f.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", f.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *DriveHandler) PutContent(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content       string  `json:"content"`
		ChangeSummary *string `json:"change_summary"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	f, err := h.content.UpdateContent(r.Context(), chi.URLParam(r, "file_id"), []byte(in.Content), in.ChangeSummary, false)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.announce(f.WorkspaceID, model.EventFileUpdated, f)
	writeJSON(w, http.StatusOK, f)
}

func (h *DriveHandler) ToggleFileFavorite(w http.ResponseWriter, r *http.Request) {
	f, err := h.content.ToggleFavorite(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.announce(f.WorkspaceID, model.EventFileUpdated, f)
	writeJSON(w, http.StatusOK, f)
}

func (h *DriveHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.content.ListVersions(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (h *DriveHandler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "version_number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid version number")
		return
	}
	f, err := h.content.RestoreVersion(r.Context(), chi.URLParam(r, "file_id"), number)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.announce(f.WorkspaceID, model.EventFileUpdated, f)
	writeJSON(w, http.StatusOK, f)
}

func (h *DriveHandler) ListAppTypes(w http.ResponseWriter, r *http.Request) {
	appTypes, err := h.appTypes.List(r.Context(), chi.URLParam(r, "workspace_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"app_types": appTypes})
}

func (h *DriveHandler) CreateAppType(w http.ResponseWriter, r *http.Request) {
	var in service.CreateAppTypeInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	at, err := h.appTypes.Create(r.Context(), chi.URLParam(r, "workspace_id"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, at)
}

func (h *DriveHandler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspace_id")
	var in service.CreateInstanceInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	inst, err := h.appTypes.CreateInstance(r.Context(), workspaceID, userID(r), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.announce(workspaceID, model.EventFileCreated, inst)
	writeJSON(w, http.StatusCreated, inst)
}

func (h *DriveHandler) UpdateInstance(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateInstanceInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	inst, err := h.appTypes.UpdateInstance(r.Context(), chi.URLParam(r, "instance_id"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.announce(inst.WorkspaceID, model.EventFileUpdated, inst)
	writeJSON(w, http.StatusOK, inst)
}

func (h *DriveHandler) PromoteInstance(w http.ResponseWriter, r *http.Request) {
	var in service.PromoteInstanceInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	at, err := h.appTypes.PromoteInstanceToApp(r.Context(), chi.URLParam(r, "workspace_id"), chi.URLParam(r, "instance_id"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, at)
}

func (h *DriveHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.chat.ListConversations(r.Context(), chi.URLParam(r, "workspace_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (h *DriveHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chat.History(r.Context(), chi.URLParam(r, "conversation_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *DriveHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &in); err != nil || in.Content == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	conv, err := h.chat.Get(r.Context(), chi.URLParam(r, "conversation_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sender := userID(r)
	msg, err := h.chat.AppendMessage(r.Context(), conv.ID, model.SenderUser, &sender, in.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.broadcaster.Broadcast(conv.WorkspaceID, model.Envelope{
		Type:    model.EventChatMessage,
		Payload: map[string]any{"message": msg},
	}, nil)
	writeJSON(w, http.StatusCreated, msg)
}

func (h *DriveHandler) announce(workspaceID, eventType string, f *model.File) {
	h.broadcaster.Broadcast(workspaceID, model.Envelope{
		Type:    eventType,
		Payload: map[string]any{"file": f},
	}, nil)
}
