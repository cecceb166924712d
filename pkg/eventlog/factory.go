package eventlog

import (
	"fmt"

	"github.com/lumenex/matcher/pkg/config"
)

// Open selects and opens the Log implementation named by
// cfg.EventsQueueType. localPath is used for EventsQueueLocal;
// kafkaCfg is used for EventsQueueKafka.
func Open(cfg config.Config, localPath string, kafkaCfg KafkaConfig) (Log, error) {
	switch cfg.EventsQueueType {
	case config.EventsQueueLocal, "":
		return OpenLocal(localPath)
	case config.EventsQueueKafka:
		return NewKafka(kafkaCfg), nil
	default:
		return nil, fmt.Errorf("eventlog: unknown events-queue.type %q", cfg.EventsQueueType)
	}
}
