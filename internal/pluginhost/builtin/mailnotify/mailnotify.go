// Package mailnotify is a reference notify plugin that emails due/expired
// messages as a multipart/alternative (text+html) message per
// notification batch, built on go-message/mail's header + multipart
// writer and a net/smtp dial/EHLO/STARTTLS/AUTH/send sequence. The
// markdown rendering half is shared via internal/render rather than
// reimplemented here.
package mailnotify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/pluginhost"
	"github.com/nugget/msghub/internal/render"
)

// Config configures a Plugin instance.
type Config struct {
	ID       string
	Host     string
	Port     int
	StartTLS bool // true for port 587, false for implicit TLS (465)
	Username string
	Password string
	From     string
	To       []string
}

// Plugin emails one composed message per OnNotifications batch.
type Plugin struct {
	cfg Config
}

// New creates a Plugin.
func New(cfg Config) *Plugin {
	return &Plugin{cfg: cfg}
}

func (p *Plugin) PluginID() string { return p.cfg.ID }

// OnNotifications composes and sends one email summarizing the batch.
// A connection is opened and closed per call — a notify batch is
// infrequent enough that connection pooling isn't worth the complexity.
func (p *Plugin) OnNotifications(ctx pluginhost.Ctx, event hub.NotifyEvent, messages []hub.Message) {
	if len(messages) == 0 {
		return
	}

	body := composeBody(event, messages)
	msg, err := composeMessage(p.cfg.From, p.cfg.To, subjectFor(event, messages), body)
	if err != nil {
		ctx.API.Log.Warn("mailnotify: compose failed", "error", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.sendMail(sendCtx, p.cfg.From, p.cfg.To, msg); err != nil {
		ctx.API.Log.Warn("mailnotify: send failed", "error", err)
	}
}

func subjectFor(event hub.NotifyEvent, messages []hub.Message) string {
	return fmt.Sprintf("[msghub] %s (%d)", event, len(messages))
}

func composeBody(event hub.NotifyEvent, messages []hub.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", event)
	for _, m := range messages {
		fmt.Fprintf(&b, "- **%s**: %s\n", m.Title, m.Text)
	}
	return b.String()
}

// composeMessage builds a complete RFC 5322 multipart/alternative message
// with text/plain and text/html parts, the html rendered from markdown
// via goldmark. No reply-threading headers — a notification never needs
// them.
func composeMessage(from string, to []string, subject, mdBody string) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(subject)

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", from, err)
	}
	h.SetAddressList("From", []*mail.Address{fromAddr})

	toAddrs := make([]*mail.Address, 0, len(to))
	for _, addr := range to {
		parsed, err := mail.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("parse to address %q: %w", addr, err)
		}
		toAddrs = append(toAddrs, parsed)
	}
	h.SetAddressList("To", toAddrs)

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}

	var ph mail.InlineHeader
	ph.Set("Content-Type", "text/plain; charset=utf-8")
	pw, err := tw.CreatePart(ph)
	if err != nil {
		return nil, fmt.Errorf("create plain text part: %w", err)
	}
	if _, err := io.WriteString(pw, render.ToPlain(mdBody)); err != nil {
		return nil, fmt.Errorf("write plain text: %w", err)
	}
	if err := pw.Close(); err != nil {
		return nil, fmt.Errorf("close plain text part: %w", err)
	}

	htmlBody, err := render.Fragment(mdBody)
	if err != nil {
		return nil, fmt.Errorf("render markdown to HTML: %w", err)
	}

	var hh mail.InlineHeader
	hh.Set("Content-Type", "text/html; charset=utf-8")
	hw, err := tw.CreatePart(hh)
	if err != nil {
		return nil, fmt.Errorf("create html part: %w", err)
	}
	if _, err := io.WriteString(hw, htmlBody); err != nil {
		return nil, fmt.Errorf("write html: %w", err)
	}
	if err := hw.Close(); err != nil {
		return nil, fmt.Errorf("close html part: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}

	return buf.Bytes(), nil
}

// sendMail runs the connect/EHLO/STARTTLS-or-implicit-TLS/AUTH/send
// sequence over a single ephemeral connection.
func (p *Plugin) sendMail(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialer.Timeout {
			dialer.Timeout = remaining
		}
	}

	var client *smtp.Client
	var err error
	if !p.cfg.StartTLS {
		conn, dialErr := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: p.cfg.Host})
		if dialErr != nil {
			return fmt.Errorf("dial SMTPS %s: %w", addr, dialErr)
		}
		client, err = smtp.NewClient(conn, p.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create SMTP client on %s: %w", addr, err)
		}
	} else {
		conn, dialErr := dialer.DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			return fmt.Errorf("dial SMTP %s: %w", addr, dialErr)
		}
		client, err = smtp.NewClient(conn, p.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create SMTP client on %s: %w", addr, err)
		}
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("EHLO: %w", err)
	}
	if p.cfg.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: p.cfg.Host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}
	if p.cfg.Username != "" && p.cfg.Password != "" {
		auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}
	return client.Quit()
}
