// Package wsfeed is a reference notify plugin that broadcasts due/expired
// messages to any connected websocket client, and serves a QR code image
// encoding the feed's pairing URL so a phone can subscribe without
// typing an address.
package wsfeed

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/pluginhost"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feedMessage is the JSON envelope broadcast to every connected client.
type feedMessage struct {
	Event    hub.NotifyEvent `json:"event"`
	Messages []hub.Message   `json:"messages"`
}

// Config configures a Plugin instance.
type Config struct {
	ID string
	// Addr is the address the feed HTTP server listens on, e.g. ":8089".
	Addr string
	// PairingURL is the URL encoded into the QR code served at /pair.png
	// (typically Addr's externally-reachable equivalent, e.g.
	// "ws://hub.local:8089/feed").
	PairingURL string
}

// Plugin runs a tiny HTTP server exposing a websocket feed at /feed and a
// QR pairing image at /pair.png, broadcasting every OnNotifications batch
// to all currently-connected clients.
type Plugin struct {
	cfg Config

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	server *http.Server
}

// New creates a Plugin. It does not listen until Start.
func New(cfg Config) *Plugin {
	return &Plugin{cfg: cfg, clients: make(map[*websocket.Conn]bool)}
}

func (p *Plugin) PluginID() string { return p.cfg.ID }

func (p *Plugin) Start(ctx pluginhost.Ctx) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", p.handleFeed(ctx))
	mux.HandleFunc("/pair.png", p.handlePairing(ctx))

	p.server = &http.Server{Addr: p.cfg.Addr, Handler: mux}
	go func() {
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ctx.API.Log.Error("wsfeed: server error", "plugin", p.cfg.ID, "error", err)
		}
	}()
	return nil
}

func (p *Plugin) handleFeed(ctx pluginhost.Ctx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			ctx.API.Log.Warn("wsfeed: upgrade failed", "error", err)
			return
		}

		p.mu.Lock()
		p.clients[conn] = true
		p.mu.Unlock()

		// Drain inbound frames (pings, close) until the client disconnects;
		// the feed is one-directional so anything received is discarded.
		go func() {
			defer func() {
				p.mu.Lock()
				delete(p.clients, conn)
				p.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

func (p *Plugin) handlePairing(ctx pluginhost.Ctx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		png, err := qrcode.Encode(p.cfg.PairingURL, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "failed to render pairing code", http.StatusInternalServerError)
			ctx.API.Log.Warn("wsfeed: qrcode encode failed", "error", err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// OnNotifications broadcasts the batch to every connected client,
// dropping (and disconnecting) any client whose write fails.
func (p *Plugin) OnNotifications(ctx pluginhost.Ctx, event hub.NotifyEvent, messages []hub.Message) {
	body, err := json.Marshal(feedMessage{Event: event, Messages: messages})
	if err != nil {
		ctx.API.Log.Warn("wsfeed: marshal failed", "error", err)
		return
	}

	p.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(p.clients))
	for c := range p.clients {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, body); err != nil {
			ctx.API.Log.Debug("wsfeed: write failed, dropping client", "error", err)
			p.mu.Lock()
			delete(p.clients, c)
			p.mu.Unlock()
			c.Close()
		}
	}
}

// Stop closes the HTTP server and every connected client.
func (p *Plugin) Stop(ctx pluginhost.Ctx) error {
	p.mu.Lock()
	for c := range p.clients {
		c.Close()
	}
	p.clients = make(map[*websocket.Conn]bool)
	p.mu.Unlock()

	if p.server == nil {
		return nil
	}
	return p.server.Close()
}
