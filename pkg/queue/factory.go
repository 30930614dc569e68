package queue

import (
	"fmt"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/queue/asynq"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/queue/redis"
)

// CreateQueueProvider creates the configured ingestion queue provider.
// "none" (and an empty provider) disables task ingestion: a nil provider
// is returned and the coordinator skips the dispatcher.
func CreateQueueProvider(cfg *config.Config) (interfaces.QueueProvider, error) {
	switch cfg.Queue.Provider {
	case "asynq":
		return asynq.NewManager(cfg)
	case "redis":
		return redis.NewProvider(cfg)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported queue provider type: %s", cfg.Queue.Provider)
	}
}
