package bus

import (
	"fmt"
	"strings"

	"github.com/ricesearch/cisi-search/internal/config"
	"github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
)

// NewBus creates a new Bus instance based on the configuration.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewMemoryBus(log), nil

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}
		return NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: "cisi-search",
			ClientID:      "cisi-search-bus",
		}, log)

	case "nats":
		return NewNatsBus(NatsConfig{URL: cfg.NatsURL}, log)

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}
}
