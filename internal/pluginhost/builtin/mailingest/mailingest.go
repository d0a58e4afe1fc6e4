// Package mailingest is a reference ingest plugin that polls an IMAP
// mailbox for unseen messages and creates one hub message per email.
// It carries only what an ingest poller needs: unseen-search, envelope
// fetch, and a peek of the body's first text part for the message text —
// no folder navigation. HTML-only mail is converted to readable plain
// text.
package mailingest

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/nugget/msghub/internal/factory"
	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/pluginhost"
	"github.com/nugget/msghub/internal/render"
)

// maxBodyChars caps how much extracted body text lands in message.text;
// mail bodies can be arbitrarily large and the hub only needs an excerpt.
const maxBodyChars = 4000

// Config configures a Plugin instance.
type Config struct {
	ID       string
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	// PollInterval between unseen-message sweeps; defaults to 60s.
	PollInterval time.Duration
	Origin       string
}

// Plugin polls INBOX for unseen messages on a timer and upserts one hub
// message per message UID, keyed so re-polling the same mail is a no-op
// patch rather than a duplicate create.
type Plugin struct {
	cfg Config

	mu     sync.Mutex
	client *imapclient.Client
	cancel context.CancelFunc
}

// New creates a Plugin. It does not connect until Start.
func New(cfg Config) *Plugin {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.Origin == "" {
		cfg.Origin = "mail"
	}
	return &Plugin{cfg: cfg}
}

func (p *Plugin) PluginID() string { return p.cfg.ID }

func (p *Plugin) Start(ctx pluginhost.Ctx) error {
	runCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	go p.pollLoop(runCtx, ctx)
	return nil
}

func (p *Plugin) pollLoop(runCtx context.Context, pctx pluginhost.Ctx) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.pollOnce(pctx)
	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			p.pollOnce(pctx)
		}
	}
}

func (p *Plugin) connect() (*imapclient.Client, error) {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	var opts imapclient.Options
	if p.cfg.TLS {
		opts.TLSConfig = &tls.Config{ServerName: p.cfg.Host}
	}

	var client *imapclient.Client
	var err error
	if p.cfg.TLS {
		client, err = imapclient.DialTLS(addr, &opts)
	} else {
		client, err = imapclient.DialInsecure(addr, &opts)
	}
	if err != nil {
		return nil, fmt.Errorf("dial IMAP %s: %w", addr, err)
	}

	if err := client.Login(p.cfg.Username, p.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("login as %s: %w", p.cfg.Username, err)
	}
	return client, nil
}

func (p *Plugin) ensureConnected() (*imapclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		if err := p.client.Noop().Wait(); err == nil {
			return p.client, nil
		}
		_ = p.client.Close()
		p.client = nil
	}
	client, err := p.connect()
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *Plugin) pollOnce(ctx pluginhost.Ctx) {
	client, err := p.ensureConnected()
	if err != nil {
		ctx.API.Log.Warn("mailingest: connect failed", "plugin", p.cfg.ID, "error", err)
		return
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		ctx.API.Log.Warn("mailingest: select INBOX failed", "plugin", p.cfg.ID, "error", err)
		return
	}

	searchCmd := client.UIDSearch(&imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}, nil)
	data, err := searchCmd.Wait()
	if err != nil {
		ctx.API.Log.Warn("mailingest: search failed", "plugin", p.cfg.ID, "error", err)
		return
	}

	uids := data.AllUIDs()
	if len(uids) == 0 {
		return
	}

	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(uid)
	}

	// Peek keeps the \Seen flag untouched, so a message the user never
	// acted on is swept again next poll and the upsert stays a no-op.
	fetchCmd := client.Fetch(uidSet, &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{{Peek: true}},
	})
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		p.createMessage(ctx, msg)
	}
	if err := fetchCmd.Close(); err != nil {
		ctx.API.Log.Warn("mailingest: fetch close failed", "plugin", p.cfg.ID, "error", err)
	}
}

// createMessage consumes one fetch response's items, extracting UID,
// envelope, and body, and upserts a hub message for it.
func (p *Plugin) createMessage(ctx pluginhost.Ctx, msg *imapclient.FetchMessageData) {
	var uid imap.UID
	var env *imap.Envelope
	var body []byte

	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			uid = data.UID
		case imapclient.FetchItemDataEnvelope:
			env = data.Envelope
		case imapclient.FetchItemDataBodySection:
			b, err := io.ReadAll(data.Literal)
			if err != nil {
				ctx.API.Log.Warn("mailingest: body read failed", "plugin", p.cfg.ID, "error", err)
				continue
			}
			body = b
		}
	}

	if uid == 0 || env == nil {
		return
	}

	from := ""
	if len(env.From) > 0 {
		from = formatAddress(env.From[0])
	}

	text := "from " + from
	if excerpt := bodyText(body); excerpt != "" {
		text += "\n\n" + excerpt
	}

	raw := factory.Raw{
		Ref:    fmt.Sprintf("mail:%d", uid),
		Kind:   hub.KindTask,
		Level:  hub.LevelInfo,
		Origin: p.cfg.Origin,
		Title:  env.Subject,
		Text:   text,
	}

	normalized, reason := ctx.API.Factory.CreateMessage(raw)
	if normalized == nil {
		ctx.API.Log.Warn("mailingest: normalize failed", "uid", uid, "reason", reason)
		return
	}
	if _, err := ctx.API.Store.AddOrUpdateMessage(*normalized); err != nil {
		ctx.API.Log.Warn("mailingest: store upsert failed", "uid", uid, "error", err)
	}
}

// bodyText walks raw's MIME parts and returns the first text part as
// plain text, converting an HTML-only body via render.HTMLToText. A body
// that fails to parse yields "" — the envelope line is still enough to
// populate the message.
func bodyText(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	htmlFallback := ""
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, err := h.ContentType()
		if err != nil {
			continue
		}
		switch ct {
		case "text/plain":
			b, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			return truncate(strings.TrimSpace(string(b)))
		case "text/html":
			if htmlFallback != "" {
				continue
			}
			b, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			htmlFallback = render.HTMLToText(string(b))
		}
	}
	return truncate(htmlFallback)
}

func truncate(s string) string {
	if len(s) <= maxBodyChars {
		return s
	}
	cut := s[:maxBodyChars]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "…"
}

// formatAddress renders an IMAP address as "Name <addr>" or just the
// address.
func formatAddress(addr imap.Address) string {
	email := addr.Addr()
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, email)
	}
	return email
}

// Stop cancels the poll loop and closes the IMAP connection.
func (p *Plugin) Stop(ctx pluginhost.Ctx) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client != nil {
		return client.Close()
	}
	return nil
}
