package router

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/plainer/hub/internal/agent"
	"github.com/plainer/hub/internal/blob"
	"github.com/plainer/hub/internal/cache"
	"github.com/plainer/hub/internal/config"
	"github.com/plainer/hub/internal/handler"
	"github.com/plainer/hub/internal/hub"
	"github.com/plainer/hub/internal/service"
)

// Deps are the shared singletons main constructs once.
type Deps struct {
	DB          *sql.DB
	Blobs       blob.Store
	Cache       cache.ContentCache
	Broadcaster *hub.BroadcastHub
	Streamer    agent.Streamer
	Log         zerolog.Logger
}

// New builds the HTTP router.
func New(cfg *config.Config, deps Deps) http.Handler {
	workspaceSvc := service.NewWorkspaceService(deps.DB)
	folderSvc := service.NewFolderService(deps.DB)
	contentSvc := service.NewContentService(deps.DB, deps.Blobs, deps.Cache, folderSvc, deps.Log)
	appTypeSvc := service.NewAppTypeService(deps.DB, contentSvc, deps.Log)
	chatSvc := service.NewChatService(deps.DB)

	orchestrator := agent.NewOrchestrator(deps.Streamer, contentSvc, appTypeSvc, chatSvc, deps.Broadcaster, cfg.AgentMaxIterations, deps.Log)
	runner := agent.NewRunner(agent.NewTaskRegistry(), orchestrator, chatSvc, deps.Broadcaster, deps.Log)

	healthH := handler.NewHealthHandler("0.1.0")
	driveH := handler.NewDriveHandler(workspaceSvc, folderSvc, contentSvc, appTypeSvc, chatSvc, deps.Broadcaster)
	wsH := handler.NewWSHandler(workspaceSvc, chatSvc, deps.Broadcaster, runner, deps.Log)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/v1/health", healthH.Health)
	r.Get("/v1/version", healthH.Version)

	r.Get("/v1/ws", wsH.Serve)

	r.Get("/v1/drive", driveH.GetDrive)

	r.Route("/v1/workspaces/{workspace_id}", func(r chi.Router) {
		r.Get("/folders", driveH.ListFolders)
		r.Post("/folders", driveH.CreateFolder)

		r.Get("/files", driveH.ListFiles)
		r.Post("/files", driveH.CreateFile)
		r.Post("/files/upload", driveH.UploadFile)
		r.Get("/files/recent", driveH.ListRecentFiles)

		r.Get("/app-types", driveH.ListAppTypes)
		r.Post("/app-types", driveH.CreateAppType)

		r.Post("/instances", driveH.CreateInstance)
		r.Post("/instances/{instance_id}/promote", driveH.PromoteInstance)

		r.Get("/conversations", driveH.ListConversations)
	})

	r.Route("/v1/files/{file_id}", func(r chi.Router) {
		r.Get("/", driveH.GetFile)
		r.Patch("/", driveH.UpdateFile)
		r.Delete("/", driveH.DeleteFile)
		r.Get("/content", driveH.GetContent)
		r.Put("/content", driveH.PutContent)
		r.Post("/favorite", driveH.ToggleFileFavorite)
		r.Get("/instances", driveH.ListFileInstances)
		r.Get("/versions", driveH.ListVersions)
		r.Post("/versions/{version_number}/restore", driveH.RestoreVersion)
	})

	r.Post("/v1/folders/{folder_id}/favorite", driveH.ToggleFolderFavorite)
	r.Patch("/v1/instances/{instance_id}", driveH.UpdateInstance)
	r.Get("/v1/conversations/{conversation_id}/messages", driveH.GetHistory)
	r.Post("/v1/conversations/{conversation_id}/messages", driveH.PostMessage)

	return r
}
