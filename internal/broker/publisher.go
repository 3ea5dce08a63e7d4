// Package broker publishes event snapshots to an outgoing MQTT topic
// after every transition, decoupling the manager from whatever consumes
// those updates downstream.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/semyonkozlov/teave-eventmanager/internal/event"
	"github.com/semyonkozlov/teave-eventmanager/internal/teaveerr"
)

// Config configures the broker connection.
type Config struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
}

// Publisher maintains an MQTT connection and publishes event snapshots.
type Publisher struct {
	cfg Config
	log *slog.Logger
	cm  *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call Start to connect.
func New(cfg Config, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{cfg: cfg, log: log}
}

// Start connects to the broker, waiting up to 30s for the initial
// connection before returning. autopaho keeps retrying in the background
// if that window expires, so a slow broker delays but does not fail
// startup.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parse broker url: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{brokerURL},
		KeepAlive:  30,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.log.Info("broker connected", "broker", p.cfg.BrokerURL)
		},
		OnConnectError: func(err error) {
			p.log.Warn("broker connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	p.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.log.Warn("broker initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop disconnects from the broker. A no-op if Start was never called.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	return p.cm.Disconnect(ctx)
}

func (p *Publisher) topic(id string) string {
	return p.cfg.TopicPrefix + "/" + id
}

// Publish JSON-encodes e and publishes it at QoS 1, the closest MQTT
// equivalent of a durable, at-least-once delivery guarantee.
func (p *Publisher) Publish(ctx context.Context, e *event.Event) error {
	if p.cm == nil {
		return &teaveerr.TransportError{Op: "publish", Err: fmt.Errorf("broker not started")}
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}

	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.topic(e.ID),
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return &teaveerr.TransportError{Op: "publish", Err: err}
	}
	return nil
}
