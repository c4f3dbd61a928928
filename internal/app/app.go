package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/services/documents"
	"github.com/ternarybob/lectern/internal/services/embeddings"
	"github.com/ternarybob/lectern/internal/services/generator"
	"github.com/ternarybob/lectern/internal/services/llm"
	"github.com/ternarybob/lectern/internal/services/rag"
	"github.com/ternarybob/lectern/internal/services/scheduler"
	"github.com/ternarybob/lectern/internal/services/sessions"
	"github.com/ternarybob/lectern/internal/services/tools"
	"github.com/ternarybob/lectern/internal/services/vectorstore"
	"github.com/ternarybob/lectern/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Retrieval
	EmbeddingService interfaces.EmbeddingService
	Processor        *documents.Processor
	VectorStore      *vectorstore.Store
	ToolManager      *tools.Manager

	// Generation
	ChatModel interfaces.ChatModel
	Generator *generator.Generator
	Sessions  interfaces.SessionManager

	RAGService       *rag.Service
	SchedulerService *scheduler.Service
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info().
		Str("chat_model", app.ChatModel.ModelName()).
		Str("embedding_model", app.EmbeddingService.ModelName()).
		Int("courses", len(app.VectorStore.CourseTitles(context.Background()))).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the Badger vector record store
func (a *App) initDatabase() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager
	return nil
}

func (a *App) initServices() error {
	var err error

	// 1. Embeddings
	a.EmbeddingService, err = embeddings.NewService(&a.Config.Embeddings, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}

	// 2. Document processor
	a.Processor, err = documents.NewProcessor(&a.Config.Documents, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create document processor: %w", err)
	}

	// 3. Vector store, restored from persisted records
	a.VectorStore = vectorstore.NewStore(a.EmbeddingService, a.StorageManager.CourseStorage(), &a.Config.Search, a.Logger)
	if err := a.VectorStore.Load(context.Background()); err != nil {
		return fmt.Errorf("failed to load vector store: %w", err)
	}

	// 4. Tools, in the order they are offered to the model
	a.ToolManager = tools.NewManager(a.Logger)
	if err := a.ToolManager.Register(tools.NewCourseSearchTool(a.VectorStore)); err != nil {
		return err
	}
	if err := a.ToolManager.Register(tools.NewCourseOutlineTool(a.VectorStore)); err != nil {
		return err
	}

	// 5. Chat model and generator
	a.ChatModel, err = llm.NewClaudeService(&a.Config.Claude, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create chat model: %w", err)
	}
	a.Generator = generator.NewGenerator(a.ChatModel, &a.Config.LLM, a.Logger)

	// 6. Sessions and orchestrator
	a.Sessions = sessions.NewManager(a.Config.Sessions.MaxHistory, a.Logger)
	a.RAGService = rag.NewService(a.Processor, a.VectorStore, a.ToolManager, a.Generator, a.Sessions, a.Logger)

	// 7. Rescan scheduler (started by Start when a schedule is configured)
	a.SchedulerService = scheduler.NewService(a.RAGService, a.Config.Documents.Dir, a.Logger)

	return nil
}

// Start ingests the documents directory and starts the rescan schedule if configured
func (a *App) Start(ctx context.Context) (*models.IngestSummary, error) {
	summary, err := a.RAGService.IngestDocuments(ctx, a.Config.Documents.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to ingest documents: %w", err)
	}

	if schedule := a.Config.Ingest.RescanSchedule; schedule != "" {
		if err := a.SchedulerService.Start(schedule); err != nil {
			return summary, fmt.Errorf("failed to start rescan scheduler: %w", err)
		}
	}

	return summary, nil
}

// Close stops background work and closes storage
func (a *App) Close() error {
	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
