package commandapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/obstacle-panel/backend/internal/model"
)

// MQTTConfig configures the command mirror.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic may contain {subject}, e.g. "devices/{subject}/command".
	Topic string
}

// MQTTMirror republishes committed commands on the device's MQTT topic so
// firmware subscribed to the broker sees them without waiting for the API.
type MQTTMirror struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]mqtt.MessageHandler
}

func NewMQTTMirror(cfg MQTTConfig, logger *slog.Logger) (*MQTTMirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MQTTMirror{topic: cfg.Topic, logger: logger, subs: make(map[string]mqtt.MessageHandler)}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
		m.resubscribe(c)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "err", err)
	})

	m.client = mqtt.NewClient(opts)
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return m, nil
}

// Publish sends cmd with QoS 1 and waits up to five seconds for the broker.
func (m *MQTTMirror) Publish(cmd model.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	topic := formatTopic(m.topic, cmd.Subject)
	token := m.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	m.logger.Debug("command mirrored", "topic", topic, "command_id", cmd.ID)
	return nil
}

// SubscribeEvents calls onEvent for every message on topic. The device
// backend publishes there whenever it appends to the event log, which lets
// the poller refresh without waiting for the next tick.
func (m *MQTTMirror) SubscribeEvents(topic string, onEvent func()) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		m.logger.Debug("device event notification", "topic", msg.Topic())
		onEvent()
	}
	m.mu.Lock()
	m.subs[topic] = handler
	m.mu.Unlock()

	token := m.client.Subscribe(topic, 0, handler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	m.logger.Info("subscribed to device events", "topic", topic)
	return nil
}

// resubscribe restores subscriptions after an automatic reconnect.
func (m *MQTTMirror) resubscribe(c mqtt.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for topic, handler := range m.subs {
		c.Subscribe(topic, 0, handler)
	}
}

func (m *MQTTMirror) Close() {
	m.client.Disconnect(250)
}

func formatTopic(pattern, subject string) string {
	return strings.ReplaceAll(pattern, "{subject}", strings.ToLower(subject))
}
