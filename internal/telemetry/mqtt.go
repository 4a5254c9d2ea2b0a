// Package telemetry mirrors console snapshots and log lines to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"ptz-console/internal/activity"
	"ptz-console/internal/status"
)

// Config holds MQTT publisher configuration.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // prefix, e.g. "ptz/studio-a"
	Logger   zerolog.Logger
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher sends each changed snapshot to <topic>/status (retained) and
// each log line to <topic>/log. It implements session.Observer.
type Publisher struct {
	client publisher
	conn   mqtt.Client
	topic  string
	log    zerolog.Logger

	mu   sync.Mutex
	last *status.Snapshot
}

// Dial connects to the broker.
func Dial(cfg Config) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("ptz-console-%d", time.Now().UnixNano())
	}
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	log := cfg.Logger.With().Str("component", "telemetry").Logger()
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Info().Str("broker", cfg.Broker).Msg("connected to MQTT broker")

	p := newPublisher(client, cfg.Topic, log)
	p.conn = client
	return p, nil
}

func newPublisher(client publisher, topic string, log zerolog.Logger) *Publisher {
	if topic == "" {
		topic = "ptz"
	}
	return &Publisher{client: client, topic: topic, log: log}
}

func (p *Publisher) send(suffix string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal telemetry")
		return
	}
	topic := p.topic + "/" + suffix
	token := p.client.Publish(topic, 0, retained, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			p.log.Warn().Err(token.Error()).Str("topic", topic).Msg("publish failed")
		}
	}()
}

// SnapshotPublished publishes s when it differs from the previous snapshot
// in anything but its capture time.
func (p *Publisher) SnapshotPublished(s status.Snapshot) {
	p.mu.Lock()
	cmp := s
	if p.last != nil {
		cmp.CapturedAt = p.last.CapturedAt
		if cmp == *p.last {
			p.mu.Unlock()
			return
		}
	}
	p.last = &s
	p.mu.Unlock()
	p.send("status", true, s)
}

func (p *Publisher) Logged(e activity.Entry) {
	p.send("log", false, e)
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}
