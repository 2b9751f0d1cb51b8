// Package app provides application initialization and dependency wiring.
//
// App is the container that assembles the transport, the extraction
// orchestrator, the session store, and observability, with embedded cleanup.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatviz/chatviz/internal/agent"
	"github.com/chatviz/chatviz/internal/config"
	"github.com/chatviz/chatviz/internal/extract"
	"github.com/chatviz/chatviz/internal/log"
	"github.com/chatviz/chatviz/internal/session"
)

// closeTimeout bounds the observability flush during shutdown.
const closeTimeout = 5 * time.Second

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool      *pgxpool.Pool
	Sessions  *session.Store
	Transport *agent.Client
	Extractor *extract.Orchestrator
	Genkit    *genkit.Genkit

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}

	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Debug("database pool closed")
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Logger.Warn("shutting down tracer provider", "error", err)
		}
	}

	return nil
}
