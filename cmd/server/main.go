package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llm-finetune/api/rest/handlers"
	"llm-finetune/api/rest/routes"
	"llm-finetune/config"
	"llm-finetune/core/datasets"
	"llm-finetune/core/executor"
	"llm-finetune/core/monitoring"
	"llm-finetune/core/ops"
	"llm-finetune/core/recovery"
	"llm-finetune/core/registry"
	"llm-finetune/core/repository"
	"llm-finetune/core/status"
	"llm-finetune/providers/ollama"
	"llm-finetune/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// journal is what the supervisor writes to and the events endpoint reads from
type journal interface {
	executor.EventRecorder
	handlers.EventReader
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the event journal
	var events journal = repository.NoopRecorder{}
	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(); err != nil {
			log.Fatalf("Failed to prepare database: %v", err)
		}
		events = repository.NewEventRepository(db)
		log.Println("Event journal connected")
	} else {
		log.Println("DATABASE_URL not set; job events are not journaled")
	}

	store, err := datasets.NewStore(cfg.DatasetsRoot())
	if err != nil {
		log.Fatalf("Failed to open dataset store: %v", err)
	}

	// Initialize training supervisor
	supervisor := executor.NewSupervisor(executor.SupervisorConfig{
		ContentRoot:    cfg.ContentRoot,
		RunsRoot:       cfg.RunsRoot(),
		TrainerCommand: cfg.TrainerCommand,
		TrainerArgs:    cfg.TrainerArgs(),
		TailBytes:      cfg.LogTailBytes,
	}, store, registry.New(), events)

	disk := recovery.NewReader(supervisor.RunsRoot(), cfg.LogTailBytes)
	projector := status.NewProjector(supervisor, disk)
	if ids, err := disk.ListJobIDs(); err == nil && len(ids) > 0 {
		log.Printf("Found %d run directories from earlier runs", len(ids))
	}

	daemon := ollama.NewClient(cfg.OllamaURL)
	registrar := executor.NewModelRegistrar(supervisor.RunsRoot(), cfg.RegisterCommand)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobMonitor := monitoring.NewJobMonitor(supervisor, cfg.MonitorInterval)
	go jobMonitor.Start(ctx)

	metricsRegistry, err := monitoring.NewMetricsExporter(projector, store, supervisor).Registry()
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	// Setup routes
	r := mux.NewRouter()
	routes.SetupRoutes(r, routes.Handlers{
		Datasets:  handlers.NewDatasetHandler(store),
		Jobs:      handlers.NewJobHandler(supervisor, projector, disk, events, storage.NewArtifactManager(supervisor.RunsRoot())),
		Models:    handlers.NewModelHandler(registrar, daemon),
		Tools:     handlers.NewToolHandler(ops.NewDispatcher(supervisor, projector, daemon, store)),
		Dashboard: handlers.NewDashboardHandler(projector, store, supervisor),
	}, promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))

	// Start server
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Starting server on port %s (content root %s)", cfg.ServerPort, cfg.ContentRoot)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Trainers keep running; their status is recovered from disk on the next start.
	cancel()
	supervisor.Close()
	log.Println("Server exited")
}
