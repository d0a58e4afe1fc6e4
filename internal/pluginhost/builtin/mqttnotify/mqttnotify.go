// Package mqttnotify is a reference notify plugin that publishes due and
// updated messages to an MQTT broker, one retained message per ref under
// a configurable topic prefix. It carries only the subset an outbound
// sink needs: no discovery, no sensor polling loop.
package mqttnotify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/pluginhost"
)

// Config configures a Plugin instance.
type Config struct {
	ID          string
	Broker      string
	Username    string
	Password    string
	TopicPrefix string // default "msghub"
}

// payload is the JSON body published for each notified message.
type payload struct {
	Event hub.NotifyEvent `json:"event"`
	Ref   string          `json:"ref"`
	Title string          `json:"title"`
	Text  string          `json:"text"`
	Level hub.Level       `json:"level"`
}

// Plugin publishes one retained MQTT message per notified ref.
type Plugin struct {
	cfg Config

	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

// New creates a Plugin. It does not connect until Start.
func New(cfg Config) *Plugin {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "msghub"
	}
	return &Plugin{cfg: cfg}
}

func (p *Plugin) PluginID() string { return p.cfg.ID }

func (p *Plugin) Start(ctx pluginhost.Ctx) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("mqttnotify: parse broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		ClientConfig: paho.ClientConfig{
			ClientID: "msghub-notify-" + p.cfg.ID,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			ctx.API.Log.Info("mqttnotify connected", "plugin", p.cfg.ID, "broker", p.cfg.Broker)
		},
		OnConnectError: func(err error) {
			ctx.API.Log.Warn("mqttnotify connection error", "plugin", p.cfg.ID, "error", err)
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	connCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cm, err := autopaho.NewConnection(connCtx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqttnotify: connect: %w", err)
	}

	p.mu.Lock()
	p.cm = cm
	p.mu.Unlock()
	return nil
}

// OnNotifications publishes one retained message per notified ref.
func (p *Plugin) OnNotifications(ctx pluginhost.Ctx, event hub.NotifyEvent, messages []hub.Message) {
	p.mu.Lock()
	cm := p.cm
	p.mu.Unlock()
	if cm == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, m := range messages {
		body, err := json.Marshal(payload{Event: event, Ref: m.Ref, Title: m.Title, Text: m.Text, Level: m.Level})
		if err != nil {
			ctx.API.Log.Warn("mqttnotify: marshal failed", "ref", m.Ref, "error", err)
			continue
		}
		topic := p.cfg.TopicPrefix + "/" + m.Ref
		if _, err := cm.Publish(pubCtx, &paho.Publish{
			Topic:   topic,
			Payload: body,
			QoS:     0,
			Retain:  true,
		}); err != nil {
			ctx.API.Log.Warn("mqttnotify: publish failed", "topic", topic, "error", err)
		}
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
