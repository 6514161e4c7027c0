package celldiag

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cognicore/celldiag/pkg/celldiag/config"
	"github.com/cognicore/celldiag/pkg/celldiag/metrics"
	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
	"github.com/cognicore/celldiag/pkg/celldiag/store"
	"github.com/cognicore/celldiag/pkg/celldiag/store/memstore"
	"github.com/cognicore/celldiag/pkg/celldiag/store/neo4j"
	"github.com/cognicore/celldiag/pkg/celldiag/store/sqlite"
)

// Open builds an App from settings: the configured schema source, the
// SQLite or in-memory history and, when reg is non-nil, metrics registered
// with reg.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var closers []func(context.Context) error

	src, err := SchemaSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := src.(interface{ Close(context.Context) error }); ok {
		closers = append(closers, c.Close)
	}

	hist, err := HistoryStore(ctx, cfg)
	if err != nil {
		closeAll(ctx, closers)
		return nil, err
	}

	var m *metrics.Metrics
	if reg != nil {
		if m, err = metrics.New(reg); err != nil {
			hist.Close()
			closeAll(ctx, closers)
			return nil, err
		}
	}

	app, err := New(ctx, Options{
		Loader:    config.NewLoader(cfg, src),
		History:   hist,
		Gate:      cfg.Gate,
		Reasoning: cfg.Reasoning,
		Metrics:   m,
		Logger:    logger,
		Closers:   closers,
	})
	if err != nil {
		hist.Close()
		closeAll(ctx, closers)
		return nil, err
	}
	return app, nil
}

// SchemaSource returns the schema source selected by cfg.Schema.Source.
func SchemaSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ontology.Source, error) {
	switch cfg.Schema.Source {
	case config.SourceNeo4j:
		src, err := neo4j.NewSchemaSource(ctx, neo4j.Options{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
			Logger:   logger.Named("neo4j"),
		})
		if err != nil {
			return nil, fmt.Errorf("open neo4j schema source: %w", err)
		}
		return src, nil
	default:
		return ontology.FileSource{Path: cfg.Schema.Path}, nil
	}
}

// HistoryStore opens the SQLite history when a path is configured and an
// in-memory one otherwise.
func HistoryStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.History.SQLitePath == "" {
		return memstore.New(), nil
	}
	st, err := sqlite.OpenSQLite(ctx, cfg.History.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", cfg.History.SQLitePath, err)
	}
	return st, nil
}

func closeAll(ctx context.Context, closers []func(context.Context) error) {
	for _, c := range closers {
		_ = c(ctx)
	}
}
