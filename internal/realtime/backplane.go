package realtime

import (
	"context"
	"fmt"

	"github.com/dpup/hazards.ersn.net/server/internal/config"
)

// Backplane fans alert events out across server instances. Every instance,
// including the publisher, receives each published payload.
type Backplane interface {
	// Publish sends payload to all subscribers
	Publish(ctx context.Context, payload []byte) error

	// Subscribe starts delivering payloads to handler until ctx is done or
	// the backplane is closed. It returns once the subscription is live.
	Subscribe(ctx context.Context, handler func(payload []byte)) error

	Close() error
}

// NewBackplane connects the backplane selected by cfg.Backplane. "none"
// returns nil and the hub delivers locally.
func NewBackplane(ctx context.Context, cfg config.RealtimeConfig) (Backplane, error) {
	var (
		bp  Backplane
		err error
	)
	switch cfg.Backplane {
	case "", "none":
		return nil, nil
	case "redis":
		bp, err = OpenRedisBackplane(ctx, cfg.Redis)
	case "kafka":
		bp = NewKafkaBackplane(cfg.Kafka)
	case "amqp":
		bp, err = DialAMQPBackplane(cfg.AMQP)
	case "mqtt":
		bp, err = ConnectMQTTBackplane(cfg.MQTT)
	default:
		return nil, fmt.Errorf("unknown realtime backplane %q", cfg.Backplane)
	}
	if err != nil {
		return nil, err
	}
	return bp, nil
}
