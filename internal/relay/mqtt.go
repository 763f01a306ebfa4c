package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"scalebridge/internal/config"
	"scalebridge/internal/models"
)

const mqttWait = 5 * time.Second

// MQTTClient is the subset of the paho client the publisher needs.
type MQTTClient interface {
	IsConnected() bool
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes capture payloads to a broker topic.
type MQTTPublisher struct {
	mu     sync.Mutex
	client MQTTClient
	topic  string
	qos    byte
}

// NewMQTTPublisher returns nil when no broker is configured.
func NewMQTTPublisher(cfg config.MQTTConfig) *MQTTPublisher {
	if cfg.Broker == "" {
		return nil
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "scalebridge"
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttWait)
	return newMQTTPublisher(mqtt.NewClient(opts), cfg)
}

func newMQTTPublisher(client MQTTClient, cfg config.MQTTConfig) *MQTTPublisher {
	qos := cfg.QOS
	switch {
	case qos < 0:
		qos = 0
	case qos > 2:
		qos = 2
	}
	return &MQTTPublisher{client: client, topic: cfg.Topic, qos: byte(qos)}
}

func (p *MQTTPublisher) Push(ctx context.Context, res models.CaptureResult) error {
	if p == nil || p.client == nil {
		return nil
	}
	if err := p.ensureConnected(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(NewPayload(res, ""))
	if err != nil {
		return fmt.Errorf("encode mqtt payload: %w", err)
	}
	return wait(ctx, p.client.Publish(p.topic, p.qos, false, body), "publish "+p.topic)
}

// Close disconnects from the broker, waiting briefly for in-flight messages.
func (p *MQTTPublisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

func (p *MQTTPublisher) ensureConnected(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client.IsConnected() {
		return nil
	}
	return wait(ctx, p.client.Connect(), "connect mqtt")
}

func wait(ctx context.Context, tok mqtt.Token, op string) error {
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	case <-time.After(mqttWait):
		return fmt.Errorf("%s: timed out", op)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
