package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/plugcast/cmd/forecaster/config"
	"github.com/HatiCode/plugcast/pkg/adapters"
	"github.com/HatiCode/plugcast/pkg/httpx"
)

const adapterTimeout = 30 * time.Second

// buildAdapter creates the history adapter for watch mode. HTTP-based
// adapters share one client that honors the TLS settings.
func buildAdapter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (adapters.Adapter, error) {
	adapter, err := adapters.New(ctx, cfg.Adapter, cfg.AdapterConfig, cfg.Resource)
	if err != nil {
		return nil, err
	}

	client, err := httpx.NewClient(cfg.TLS, adapterTimeout)
	if err != nil {
		return nil, fmt.Errorf("adapter http client: %w", err)
	}

	switch a := adapter.(type) {
	case *adapters.HTTPAdapter:
		a.HTTPClient = client
		logger.Info("using HTTP adapter", "url", a.URL, "method", a.Method)
	case *adapters.PrometheusAdapter:
		a.HTTPClient = client
		logger.Info("using Prometheus-compatible adapter", "kind", a.Name(), "url", a.ServerURL, "query", a.Query)
	case *adapters.FileAdapter:
		logger.Info("using file adapter", "path", a.Path)
	case *adapters.PostgresAdapter:
		logger.Info("using postgres adapter", "table", a.Table)
	}

	return adapter, nil
}
