package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	cache "github.com/driftdetect/backend/internal/cache/redis"
	"github.com/driftdetect/backend/internal/detector"
	"github.com/driftdetect/backend/internal/kg/neo4j"
	"github.com/driftdetect/backend/internal/runner"
	"github.com/driftdetect/backend/internal/storage/sqlite"
	"github.com/driftdetect/backend/pkg/config"
	"github.com/driftdetect/backend/pkg/logger"
)

// services holds the external connections a run or server needs.
type services struct {
	graph *neo4j.Client
	store *sqlite.Client
	cache *cache.Client
}

func openServices(ctx context.Context, cfg *config.Config) (*services, error) {
	s := &services{}

	graph, err := neo4j.NewClient(ctx, cfg.Neo4j)
	if err != nil {
		return nil, err
	}
	s.graph = graph

	if cfg.SQLite.Enabled {
		store, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.store = store
		if err := store.InitSchema(); err != nil {
			s.Close()
			return nil, err
		}
	}

	if cfg.Redis.Enabled {
		c, err := cache.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.cache = c
	}

	return s, nil
}

// sinks returns the delivery sinks backed by the open services.
func (s *services) sinks(cfg *config.Config) []runner.Sink {
	sinks := []runner.Sink{runner.LogSink{Logger: logger.GetLogger()}}
	if s.store != nil {
		sinks = append(sinks, runner.StoreSink{Store: s.store})
	}
	if s.cache != nil {
		sinks = append(sinks, runner.PublishSink{Publisher: s.cache, TTL: cfg.Redis.TTL()})
	}
	return sinks
}

func (s *services) sessionFactory() runner.SessionFactory {
	return func(ctx context.Context) runner.Session {
		return s.graph.NewSession(ctx)
	}
}

func (s *services) Close() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Warn("Failed to close sqlite client", zap.Error(err))
		}
	}
	if s.graph != nil {
		if err := s.graph.Close(context.Background()); err != nil {
			logger.Warn("Failed to close neo4j client", zap.Error(err))
		}
	}
}

// loadCatalog loads definitions from path, falling back to the configured path.
func loadCatalog(path string, cfg *config.Config) (*detector.Catalog, error) {
	if path == "" {
		path = cfg.Detectors.Path
	}
	defs, err := detector.Load(path)
	if err != nil {
		return nil, err
	}
	catalog, err := detector.NewCatalog(defs)
	if err != nil {
		return nil, fmt.Errorf("invalid detector set in %s: %w", path, err)
	}
	return catalog, nil
}
