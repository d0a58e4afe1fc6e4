// Package mqttingest is a reference ingest plugin that subscribes to an
// MQTT broker and upserts one hub message per topic from each published
// value. It does not feed values to the rule engine. It is a
// small reference integration, not a production MQTT bridge. It uses
// autopaho.ConnectionManager with an OnConnectionUp resubscribe, since
// autopaho does not resubscribe automatically on reconnect.
package mqttingest

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/msghub/internal/factory"
	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/pluginhost"
)

// Config configures a Plugin instance.
type Config struct {
	ID       string
	Broker   string // e.g. "mqtt://broker.local:1883" or "mqtts://..."
	Username string
	Password string
	Topics   []string // topic filters subscribed on every (re-)connect
	Origin   string   // factory.Raw.Origin stamped on created messages
}

// Plugin subscribes to Config.Topics and creates/patches one message per
// topic (Ref "mqtt:<topic>") for every payload received, whatever the
// topic's name. Payloads are not reported to the rule engine.
type Plugin struct {
	cfg Config

	mu  sync.Mutex
	cm  *autopaho.ConnectionManager
	ctx pluginhost.Ctx
}

// New creates a Plugin. It does not connect until Start.
func New(cfg Config) *Plugin {
	if cfg.Origin == "" {
		cfg.Origin = "mqtt"
	}
	return &Plugin{cfg: cfg}
}

func (p *Plugin) PluginID() string { return p.cfg.ID }

// Start connects to the broker in the background; it does not block the
// registry. A blocking connect doesn't fit the host's synchronous
// RegisterIngest call, so connection happens on an internal goroutine
// instead and errors surface via logged reconnect attempts).
func (p *Plugin) Start(ctx pluginhost.Ctx) error {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()

	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("mqttingest: parse broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		ClientConfig: paho.ClientConfig{
			ClientID: "msghub-" + p.cfg.ID,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			ctx.API.Log.Info("mqttingest connected", "plugin", p.cfg.ID, "broker", p.cfg.Broker)
			p.subscribe(cm)
		},
		OnConnectError: func(err error) {
			ctx.API.Log.Warn("mqttingest connection error", "plugin", p.cfg.ID, "error", err)
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	connCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cm, err := autopaho.NewConnection(connCtx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqttingest: connect: %w", err)
	}

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		p.handleMessage(pr.Packet.Topic, pr.Packet.Payload)
		return true, nil
	})

	p.mu.Lock()
	p.cm = cm
	p.mu.Unlock()
	return nil
}

func (p *Plugin) subscribe(cm *autopaho.ConnectionManager) {
	if len(p.cfg.Topics) == 0 {
		return
	}
	opts := make([]paho.SubscribeOptions, 0, len(p.cfg.Topics))
	for _, t := range p.cfg.Topics {
		opts = append(opts, paho.SubscribeOptions{Topic: t, QoS: 0})
	}
	if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{Subscriptions: opts}); err != nil {
		p.ctx.API.Log.Error("mqttingest subscribe failed", "plugin", p.cfg.ID, "error", err)
	}
}

// handleMessage normalizes one MQTT payload into a message and upserts
// it into the store. Every payload, numeric or not, becomes the message
// text verbatim; no metrics are set.
func (p *Plugin) handleMessage(topic string, payload []byte) {
	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	if ctx.API.Store == nil {
		return
	}

	raw := factory.Raw{
		Ref:    "mqtt:" + topic,
		Kind:   hub.KindStatus,
		Level:  hub.LevelInfo,
		Origin: p.cfg.Origin,
		Title:  topic,
		Text:   string(payload),
	}

	msg, reason := ctx.API.Factory.CreateMessage(raw)
	if msg == nil {
		ctx.API.Log.Warn("mqttingest: normalize failed", "topic", topic, "reason", reason)
		return
	}
	if _, err := ctx.API.Store.AddOrUpdateMessage(*msg); err != nil {
		ctx.API.Log.Warn("mqttingest: store upsert failed", "topic", topic, "error", err)
	}
}

// Stop disconnects from the broker.
func (p *Plugin) Stop(ctx pluginhost.Ctx) error {
	p.mu.Lock()
	cm := p.cm
	p.cm = nil
	p.mu.Unlock()
	if cm == nil {
		return nil
	}
	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return cm.Disconnect(disconnectCtx)
}
