package bridge

import (
	"fmt"
	"os"

	"cosmossdk.io/log"
	"github.com/hibiken/asynq"

	"github.com/ChapmaBeerbohm/crypticscore/bridge/tasks"
)

// QueueManager handles Asynq server setup and task registration
type QueueManager struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger log.Logger
}

// NewQueueManager creates a queue manager running decryptions with d.
func NewQueueManager(config *Config, d tasks.Decrypter, cache *tasks.ResultCache, logger log.Logger) *QueueManager {
	cfg := config.AsynqConfig
	cfg.Logger = asynqLogger{logger.With("module", "asynq")}

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: config.RedisAddr}, cfg)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeCampaignDecrypt, tasks.NewDecryptProcessor(d, cache, logger))

	return &QueueManager{
		server: srv,
		mux:    mux,
		logger: logger,
	}
}

// Start begins processing tasks in the background.
func (qm *QueueManager) Start() error {
	return qm.server.Start(qm.mux)
}

// Shutdown gracefully shuts down the Asynq server
func (qm *QueueManager) Shutdown() {
	qm.server.Shutdown()
}

// asynqLogger routes asynq's logs into the service logger.
type asynqLogger struct {
	log.Logger
}

func (l asynqLogger) Debug(args ...any) { l.Logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.Logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.Logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.Logger.Error(fmt.Sprint(args...)) }

func (l asynqLogger) Fatal(args ...any) {
	l.Logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
