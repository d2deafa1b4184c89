package cli

import (
	"context"
	"path/filepath"

	"awakener/pkg/adapter"
	"awakener/pkg/repository"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// config holds configuration values shared across commands
type config struct {
	// Paths
	dataDir   string
	agentHome string
	logLevel  string

	// Repository
	firestoreProject  string
	firestoreDatabase string

	// Storage
	bucket string

	// Adapters
	geminiAPIKey  string
	geminiModel   string
	snapshotModel string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "data-dir",
			Aliases:     []string{"d"},
			Usage:       "Directory for timeline, notebook and snapshot data",
			Value:       "data",
			Sources:     cli.EnvVars("AWAKENER_DATA_DIR"),
			Destination: &cfg.dataDir,
		},
		&cli.StringFlag{
			Name:        "agent-home",
			Usage:       "Working directory handed to the agent",
			Value:       "agent_home",
			Sources:     cli.EnvVars("AWAKENER_AGENT_HOME"),
			Destination: &cfg.agentHome,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("AWAKENER_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model for the activation loop",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("AWAKENER_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "snapshot-model",
			Usage:       "Cheaper model for the snapshot auditor",
			Value:       "gemini-2.5-flash-lite",
			Sources:     cli.EnvVars("AWAKENER_SNAPSHOT_MODEL"),
			Destination: &cfg.snapshotModel,
		},
	}
}

// repositoryFlags selects the persistence backend. Firestore when a project
// is set, local files otherwise.
func repositoryFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID for Firestore persistence",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "GCS bucket for raw action logs (local files when empty)",
			Sources:     cli.EnvVars("AWAKENER_BUCKET"),
			Destination: &cfg.bucket,
		},
	}
}

// newRepository creates the persistence backend
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.firestoreProject != "" {
		repo, err := repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create firestore repository")
		}
		return repo, nil
	}

	repo, err := repository.NewLocal(cfg.dataDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create local repository")
	}
	return repo, nil
}

// newGemini creates the main Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	gemini, err := adapter.NewGemini(ctx, cfg.geminiAPIKey, adapter.WithModel(cfg.geminiModel))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini adapter")
	}
	return gemini, nil
}

// newSnapshotGemini creates the auditor model client
func (cfg *config) newSnapshotGemini(ctx context.Context) (adapter.Gemini, error) {
	gemini, err := adapter.NewGemini(ctx, cfg.geminiAPIKey, adapter.WithModel(cfg.snapshotModel))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create snapshot adapter")
	}
	return gemini, nil
}

// newStorage creates the action-log blob store
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket != "" {
		storage, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create storage")
		}
		return storage, nil
	}

	storage, err := adapter.NewLocalStorage(filepath.Join(cfg.dataDir, "blobs"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create local storage")
	}
	return storage, nil
}
