package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/khariha/ferris-wheel/internal/calendar"
	"github.com/khariha/ferris-wheel/internal/config"
)

// ErrNotStarted is returned by [Publisher.EventChanged] before
// [Publisher.Start] has created the connection.
var ErrNotStarted = errors.New("mqtt publisher not started")

// EventMessage is the JSON payload of an event notification.
type EventMessage struct {
	ClientUUID string          `json:"clientUUID"`
	Change     calendar.Change `json:"change"`
	Event      calendar.Event  `json:"event"`
	At         time.Time       `json:"at"`
}

type sendFunc func(ctx context.Context, pb *paho.Publish) error

// Publisher manages the MQTT connection and publishes calendar changes.
// It implements [calendar.Notifier].
type Publisher struct {
	cfg      config.MQTTConfig
	clientID string
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	cm   *autopaho.ConnectionManager
	send sendFunc
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to open the connection. instanceID, when set, is appended to the
// configured client ID.
func New(cfg config.MQTTConfig, instanceID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	clientID := cfg.ClientID
	if instanceID != "" {
		clientID += "-" + instanceID
	}
	return &Publisher{
		cfg:      cfg,
		clientID: clientID,
		logger:   logger.With("component", "mqtt"),
		now:      time.Now,
	}
}

// Start connects to the MQTT broker and waits up to 30 seconds for the
// first connection. A slow broker is not an error: autopaho keeps
// retrying in the background until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.clientID,
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.mu.Lock()
	p.cm = cm
	p.send = func(ctx context.Context, pb *paho.Publish) error {
		_, err := cm.Publish(ctx, pb)
		return err
	}
	p.mu.Unlock()

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop publishes an "offline" availability message and disconnects.
// The provided context bounds both steps.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.RLock()
	cm := p.cm
	p.mu.RUnlock()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, "offline")
	return cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is up or ctx
// expires.
func (p *Publisher) AwaitConnection(ctx context.Context) error {
	p.mu.RLock()
	cm := p.cm
	p.mu.RUnlock()
	if cm == nil {
		return ErrNotStarted
	}
	return cm.AwaitConnection(ctx)
}

// EventChanged publishes one event mutation. It implements
// [calendar.Notifier].
func (p *Publisher) EventChanged(ctx context.Context, clientID string, change calendar.Change, e calendar.Event) error {
	topic, err := p.EventTopic(clientID, change)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(EventMessage{
		ClientUUID: clientID,
		Change:     change,
		Event:      e,
		At:         p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event message: %w", err)
	}

	if err := p.publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.Debug("event change published",
		"client_id", clientID, "event_id", e.ID, "change", change, "topic", topic)
	return nil
}

func (p *Publisher) publish(ctx context.Context, pb *paho.Publish) error {
	p.mu.RLock()
	send := p.send
	p.mu.RUnlock()
	if send == nil {
		return ErrNotStarted
	}
	return send(ctx, pb)
}

func (p *Publisher) publishAvailability(ctx context.Context, status string) {
	if err := p.publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// --- Topic helpers ---

func (p *Publisher) availabilityTopic() string {
	return p.cfg.TopicPrefix + "/availability"
}

// EventTopic returns the topic for a change to one of clientID's events.
// Client IDs that would change the topic structure are rejected.
func (p *Publisher) EventTopic(clientID string, change calendar.Change) (string, error) {
	if clientID == "" || strings.ContainsAny(clientID, "/+#") {
		return "", fmt.Errorf("client id %q cannot be used in an mqtt topic", clientID)
	}
	return p.cfg.TopicPrefix + "/clients/" + clientID + "/events/" + string(change), nil
}
