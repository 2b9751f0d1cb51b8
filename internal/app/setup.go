package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatviz/chatviz/db"
	"github.com/chatviz/chatviz/internal/agent"
	"github.com/chatviz/chatviz/internal/charts"
	"github.com/chatviz/chatviz/internal/config"
	"github.com/chatviz/chatviz/internal/credentials"
	"github.com/chatviz/chatviz/internal/database"
	"github.com/chatviz/chatviz/internal/extract"
	"github.com/chatviz/chatviz/internal/log"
	"github.com/chatviz/chatviz/internal/observability"
	"github.com/chatviz/chatviz/internal/session"
)

// Agent token environment variables. A static token wins over a helper
// command; the helper output is cached on disk by the credentials package.
const (
	envAgentToken        = "CHATVIZ_AGENT_TOKEN"
	envAgentTokenCommand = "CHATVIZ_AGENT_TOKEN_COMMAND"
)

// helperTokenTTL is assumed for tokens minted by a helper command that
// reports no expiry of its own.
const helperTokenTTL = time.Hour

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.otelShutdown = shutdown

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.Sessions = session.NewStore(pool, logger)

	tokens := provideTokenSource(logger)
	a.Transport = agent.NewClient(cfg.AgentURL, tokens, logger)

	extractor, g, err := provideExtractor(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Extractor = extractor
	a.Genkit = g

	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	return a, nil
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// provideTokenSource resolves how the agent transport authenticates.
// A static token from the environment is used directly; a token helper
// command goes through the flock-guarded credential cache so concurrent
// chatviz processes share one minted token. Neither set means the agent
// endpoint is unauthenticated.
func provideTokenSource(logger log.Logger) agent.TokenSource {
	if token := os.Getenv(envAgentToken); token != "" {
		return agent.StaticToken(token)
	}

	helper := os.Getenv(envAgentTokenCommand)
	if helper == "" {
		return nil
	}

	refresh := func(ctx context.Context) (credentials.Token, error) {
		out, err := exec.CommandContext(ctx, "sh", "-c", helper).Output()
		if err != nil {
			return credentials.Token{}, fmt.Errorf("token helper %q: %w", helper, err)
		}
		value := strings.TrimSpace(string(out))
		if value == "" {
			return credentials.Token{}, errors.New("token helper returned empty output")
		}
		return credentials.Token{
			Value:     value,
			ExpiresAt: time.Now().Add(helperTokenTTL),
		}, nil
	}
	return credentials.NewCache(refresh, logger)
}

// provideExtractor builds the extraction orchestrator, with the Genkit-backed
// semantic fallback when enabled.
func provideExtractor(ctx context.Context, cfg *config.Config, logger log.Logger) (*extract.Orchestrator, *genkit.Genkit, error) {
	detectorCfg := charts.DefaultDetectorConfig()
	if cfg.ConfidenceFloor > 0 {
		detectorCfg.ConfidenceFloor = cfg.ConfidenceFloor
	}
	if cfg.MaxPatterns > 0 {
		detectorCfg.MaxPatterns = cfg.MaxPatterns
	}
	detector := charts.NewDetector(detectorCfg)

	var (
		fallback extract.Fallback
		g        *genkit.Genkit
	)
	if cfg.EnableFallback {
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with googleai provider")
		}
		llm, err := extract.NewLLMExtractor(g, cfg.ModelName, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating semantic extractor: %w", err)
		}
		fallback = llm
		logger.Info("semantic fallback enabled", "model", cfg.ModelName)
	}

	orchestrator := extract.New(detector, fallback, extract.Config{
		EnableFallback:  cfg.EnableFallback,
		ConfidenceFloor: cfg.ConfidenceFloor,
		FallbackTimeout: cfg.FallbackTimeout,
	}, logger)

	return orchestrator, g, nil
}
