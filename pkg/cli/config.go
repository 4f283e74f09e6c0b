package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marketmind/marketmind/pkg/adapter"
	"github.com/marketmind/marketmind/pkg/quota"
	"github.com/marketmind/marketmind/pkg/repository"
	"github.com/marketmind/marketmind/pkg/usecase/agent"
	"github.com/marketmind/marketmind/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Adapters
	geminiProject  string
	geminiLocation string
	geminiModel    string
	searchRegion   string
	offline        bool

	// Storage
	dbPath           string
	qdrantHost       string
	qdrantPort       int64
	qdrantCollection string

	// Quota
	hourlyLimit int64
	dailyLimit  int64
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("MARKETMIND_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("MARKETMIND_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Generative model name",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// searchFlags returns flags for the live market search adapter
func searchFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "search-region",
			Usage:       "News search region code",
			Value:       "wt-wt",
			Sources:     cli.EnvVars("MARKETMIND_SEARCH_REGION"),
			Destination: &cfg.searchRegion,
		},
		&cli.BoolFlag{
			Name:        "offline",
			Usage:       "Skip live market search and answer from existing knowledge",
			Sources:     cli.EnvVars("MARKETMIND_OFFLINE"),
			Destination: &cfg.offline,
		},
	}
}

// storageFlags returns flags for the chat store and the vector memory
func storageFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "Path to the SQLite chat database",
			Value:       "marketmind.db",
			Sources:     cli.EnvVars("MARKETMIND_DB_PATH"),
			Destination: &cfg.dbPath,
		},
		&cli.StringFlag{
			Name:        "qdrant-host",
			Usage:       "Qdrant host for conversation memory",
			Value:       "localhost",
			Sources:     cli.EnvVars("QDRANT_HOST"),
			Destination: &cfg.qdrantHost,
		},
		&cli.IntFlag{
			Name:        "qdrant-port",
			Usage:       "Qdrant gRPC port",
			Value:       6334,
			Sources:     cli.EnvVars("QDRANT_PORT"),
			Destination: &cfg.qdrantPort,
		},
		&cli.StringFlag{
			Name:        "qdrant-collection",
			Usage:       "Qdrant collection name",
			Value:       "marketmind_memory",
			Sources:     cli.EnvVars("QDRANT_COLLECTION"),
			Destination: &cfg.qdrantCollection,
		},
	}
}

// quotaFlags returns flags for the per-identity request quota
func quotaFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "hourly-limit",
			Usage:       "Maximum requests per identity per hour",
			Value:       30,
			Sources:     cli.EnvVars("MARKETMIND_HOURLY_LIMIT"),
			Destination: &cfg.hourlyLimit,
		},
		&cli.IntFlag{
			Name:        "daily-limit",
			Usage:       "Maximum requests per identity per day",
			Value:       200,
			Sources:     cli.EnvVars("MARKETMIND_DAILY_LIMIT"),
			Destination: &cfg.dailyLimit,
		},
	}
}

// setupLogging installs the default logger from the global flags.
func (cfg *config) setupLogging() {
	logging.SetDefault(logging.New(cfg.logLevel, cfg.logFormat, os.Stderr))
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithGenerativeModel(cfg.geminiModel),
	)
}

// newSearch creates the live market search adapter, or nil in offline mode
func (cfg *config) newSearch() adapter.MarketSearch {
	if cfg.offline {
		return nil
	}
	return adapter.NewDuckDuckGo(adapter.WithRegion(cfg.searchRegion))
}

// newChatRepo opens the SQLite chat repository
func (cfg *config) newChatRepo() (repository.ChatRepository, error) {
	if cfg.dbPath == "" {
		return nil, goerr.New("db-path is required")
	}
	repo, err := repository.NewSQLite(cfg.dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open chat repository")
	}
	return repo, nil
}

// newMemory connects to Qdrant. The memory store is optional: callers are
// expected to treat a failure here as a degraded start, not a fatal one.
func (cfg *config) newMemory(ctx context.Context, embedder repository.Embedder) (repository.MemoryStore, error) {
	if cfg.qdrantHost == "" {
		return nil, goerr.New("qdrant-host is required")
	}
	return repository.NewQdrantMemory(ctx, repository.QdrantConfig{
		Host:       cfg.qdrantHost,
		Port:       int(cfg.qdrantPort),
		Collection: cfg.qdrantCollection,
		VectorSize: 768,
	}, embedder)
}

// newLimiter creates the per-identity request quota
func (cfg *config) newLimiter() *quota.Limiter {
	return quota.New(int(cfg.hourlyLimit), int(cfg.dailyLimit))
}

// newAgent wires the full response pipeline from the configured adapters.
func (cfg *config) newAgent(ctx context.Context) (*agent.Agent, error) {
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	memory, err := cfg.newMemory(ctx, gemini)
	if err != nil {
		logging.From(ctx).Warn("conversation memory unavailable, continuing without it", "error", err)
		memory = nil
	}

	return agent.New(agent.NewInput{
		Gemini:  gemini,
		Search:  cfg.newSearch(),
		Memory:  memory,
		Offline: cfg.offline,
	})
}
