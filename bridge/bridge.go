// Package bridge provides the results bridge: an HTTP service that serves
// campaign metadata and decrypted summaries, running decryptions on a Redis
// backed task queue.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cosmossdk.io/log"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/ChapmaBeerbohm/crypticscore/bridge/handlers"
	"github.com/ChapmaBeerbohm/crypticscore/bridge/server"
	"github.com/ChapmaBeerbohm/crypticscore/bridge/tasks"
	"github.com/ChapmaBeerbohm/crypticscore/client"
)

// Service encapsulates the bridge setup and lifecycle.
type Service struct {
	config       *Config
	client       *asynq.Client
	inspector    *asynq.Inspector
	httpServer   *server.Server
	queueManager *QueueManager
	logger       log.Logger
}

// NewService wires the HTTP server and task queue around sdk.
func NewService(config *Config, sdk *client.SDK, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.With("module", "bridge")

	redis := asynq.RedisClientOpt{Addr: config.RedisAddr}
	queue := asynq.NewClient(redis)
	inspector := asynq.NewInspector(redis)
	cache := tasks.NewResultCache()

	health := handlers.NewHealthChecker(client.Version(), sdk.Instance().ChainID(), sdk.Instance().Mode(),
		map[string]handlers.Check{
			"redis": func(context.Context) error {
				_, err := inspector.Queues()
				return err
			},
		})
	campaigns := handlers.NewCampaignHandlers(sdk.Ledger(), cache, queue, logger)

	return &Service{
		config:    config,
		client:    queue,
		inspector: inspector,
		httpServer: server.NewServer(&server.Config{
			HTTPAddr:  fmt.Sprintf(":%d", config.HTTPPort),
			JWTSecret: config.JWTSecret,
		}, campaigns, health, logger),
		queueManager: NewQueueManager(config, sdk, cache, logger),
		logger:       logger,
	}
}

// Run serves until ctx is done, then shuts every component down.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Starting results bridge", "redis", s.config.RedisAddr, "port", s.config.HTTPPort)

	if err := s.queueManager.Start(); err != nil {
		return fmt.Errorf("failed to start task server: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return s.shutdown()
	})
	return g.Wait()
}

func (s *Service) shutdown() error {
	s.logger.Info("Shutting down results bridge")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)

	s.queueManager.Shutdown()
	_ = s.client.Close()
	_ = s.inspector.Close()
	return err
}
