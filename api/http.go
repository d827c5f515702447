package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/files"
	"github.com/zhuguadundan/videowhisper/handlers"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/middleware"
	"github.com/zhuguadundan/videowhisper/pipeline"
	"github.com/zhuguadundan/videowhisper/registry"
)

func ListenAndServe(ctx context.Context, cli config.Cli, cfg config.AppConfig, reg *registry.Registry, engine *pipeline.Coordinator, fileStore *files.Manager) error {
	router := NewVideoWhisperRouter(cli, cfg, reg, engine, fileStore)
	server := http.Server{Addr: cli.Addr(), Handler: router}
	ctx, cancel := context.WithCancel(ctx)

	useTLS := cli.TLSCertFile != "" && cli.TLSKeyFile != ""
	log.LogNoRequestID(
		"Starting VideoWhisper API!",
		"version", config.Version,
		"host", cli.Addr(),
		"tls", useTLS,
	)

	var err error
	go func() {
		if useTLS {
			err = server.ListenAndServeTLS(cli.TLSCertFile, cli.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		cancel()
	}()

	<-ctx.Done()
	if err != nil {
		return err
	}

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func NewVideoWhisperRouter(cli config.Cli, cfg config.AppConfig, reg *registry.Registry, engine *pipeline.Coordinator, fileStore *files.Manager) *httprouter.Router {
	router := httprouter.New()
	withLogging := middleware.LogRequest()
	withCORS := middleware.AllowCORS()
	withAuth := middleware.IsAuthorized
	capacity := &middleware.CapacityMiddleware{}

	// Tasks count against capacity from creation until they leave the
	// pending/processing states, so the ceiling is workers plus queue.
	maxActive := cfg.System.MaxConcurrentTasks + cfg.System.MaxQueuedTasks

	apiHandlers := &handlers.HandlersCollection{
		Config:    cfg,
		Cli:       cli,
		Registry:  reg,
		Engine:    engine,
		FileStore: fileStore,
	}

	// Browser preflight for the CORS-enabled API.
	router.GlobalOPTIONS = middleware.PreflightHandler()

	router.GET("/api/health", withLogging(withCORS(apiHandlers.Healthcheck())))
	router.Handler("GET", "/metrics", promhttp.Handler())

	// Submission endpoints create work; they are the only ones gated on
	// capacity.
	router.POST("/api/process",
		withLogging(
			withCORS(
				capacity.HasCapacity(reg, maxActive,
					apiHandlers.ProcessVideo(),
				),
			),
		),
	)
	router.POST("/api/upload",
		withLogging(
			withCORS(
				capacity.HasCapacity(reg, maxActive,
					apiHandlers.Upload(),
				),
			),
		),
	)
	router.POST("/api/process-upload",
		withLogging(
			withCORS(
				capacity.HasCapacity(reg, maxActive,
					apiHandlers.ProcessUpload(),
				),
			),
		),
	)

	router.GET("/api/progress/:id", withLogging(withCORS(apiHandlers.Progress())))
	router.GET("/api/result/:id", withLogging(withCORS(apiHandlers.Result())))
	router.GET("/api/download/:id/:kind", withLogging(withCORS(apiHandlers.Download())))
	router.GET("/api/tasks", withLogging(withCORS(apiHandlers.Tasks())))
	router.POST("/api/translate", withLogging(withCORS(apiHandlers.Translate())))

	router.GET("/api/files", withLogging(withCORS(apiHandlers.Files())))
	router.GET("/api/files/download/:token", withLogging(withCORS(apiHandlers.FileDownload())))

	// Destructive endpoints require the admin token.
	router.POST("/api/stop-all-tasks",
		withLogging(
			withCORS(
				withAuth(cli,
					apiHandlers.StopAll(),
				),
			),
		),
	)
	router.POST("/api/files/delete",
		withLogging(
			withCORS(
				withAuth(cli,
					apiHandlers.FilesDelete(),
				),
			),
		),
	)
	router.DELETE("/api/files/task/:id",
		withLogging(
			withCORS(
				withAuth(cli,
					apiHandlers.DeleteTask(),
				),
			),
		),
	)

	return router
}
