package realtime

import (
	"context"
	"fmt"

	"github.com/dpup/prefab/logging"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dpup/hazards.ersn.net/server/internal/config"
)

// MQTTBackplane fans events out over an MQTT topic
type MQTTBackplane struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// ConnectMQTTBackplane connects to the broker
func ConnectMQTTBackplane(cfg config.MQTTBus) (*MQTTBackplane, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "hazards-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return NewMQTTBackplane(client, cfg.Topic, byte(cfg.QoS)), nil
}

// NewMQTTBackplane wraps a connected client
func NewMQTTBackplane(client mqtt.Client, topic string, qos byte) *MQTTBackplane {
	return &MQTTBackplane{client: client, topic: topic, qos: qos}
}

// Publish sends payload to the topic
func (b *MQTTBackplane) Publish(ctx context.Context, payload []byte) error {
	token := b.client.Publish(b.topic, b.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe delivers topic messages to handler
func (b *MQTTBackplane) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	token := b.client.Subscribe(b.topic, b.qos, func(_ mqtt.Client, msg mqtt.Message) {
		if ctx.Err() != nil {
			return
		}
		handler(msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}

	logging.Infow(ctx, "Subscribed to MQTT alert topic", "topic", b.topic)
	return nil
}

// Close disconnects from the broker
func (b *MQTTBackplane) Close() error {
	b.client.Disconnect(250)
	return nil
}
