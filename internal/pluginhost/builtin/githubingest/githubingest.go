// Package githubingest is a reference ingest plugin that polls a GitHub
// repository's open issues on a timer and upserts one hub message per
// issue. It carries only the read-only subset an ingest poller needs:
// go-github client construction, owner/repo splitting, ListByRepo
// pagination, and a rate-limit warning.
package githubingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v69/github"

	"github.com/nugget/msghub/internal/factory"
	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/pluginhost"
)

// rateLimitWarningThreshold is the remaining-call count below which each
// poll logs a warning.
const rateLimitWarningThreshold = 100

// Config configures a Plugin instance.
type Config struct {
	ID    string
	Token string
	Repo  string // "owner/repo"
	// PollInterval between issue list sweeps; defaults to 5 minutes.
	PollInterval time.Duration
	Origin       string
}

// Plugin polls Config.Repo's open issues and upserts one hub message per
// issue number, re-running CreateMessage on every poll so a patched
// title/body is reflected without creating duplicates (Ref is stable
// across polls: "github:<repo>#<number>").
type Plugin struct {
	cfg    Config
	client *github.Client

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Plugin. It does not connect until Start.
func New(cfg Config) *Plugin {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.Origin == "" {
		cfg.Origin = "github"
	}
	return &Plugin{cfg: cfg}
}

func (p *Plugin) PluginID() string { return p.cfg.ID }

func (p *Plugin) Start(ctx pluginhost.Ctx) error {
	p.client = github.NewClient(http.DefaultClient).WithAuthToken(p.cfg.Token)

	runCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	go p.pollLoop(runCtx, ctx)
	return nil
}

func (p *Plugin) pollLoop(runCtx context.Context, ctx pluginhost.Ctx) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q, expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}

func (p *Plugin) checkRate(ctx pluginhost.Ctx, resp *github.Response) {
	if resp == nil {
		return
	}
	remaining := resp.Rate.Remaining
	if remaining > 0 && remaining < rateLimitWarningThreshold {
		ctx.API.Log.Warn("githubingest rate limit low",
			"plugin", p.cfg.ID, "remaining", remaining, "limit", resp.Rate.Limit)
	}
}

func (p *Plugin) pollOnce(ctx pluginhost.Ctx) {
	owner, name, err := splitRepo(p.cfg.Repo)
	if err != nil {
		ctx.API.Log.Error("githubingest: bad repo config", "plugin", p.cfg.ID, "error", err)
		return
	}

	opts := &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 50},
	}

	reqCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	issues, resp, err := p.client.Issues.ListByRepo(reqCtx, owner, name, opts)
	if err != nil {
		ctx.API.Log.Warn("githubingest: list issues failed", "plugin", p.cfg.ID, "error", err)
		return
	}
	p.checkRate(ctx, resp)

	for _, gi := range issues {
		if gi.PullRequestLinks != nil {
			continue // ListByRepo also returns PRs; skip them
		}
		p.upsertIssue(ctx, gi)
	}
}

func (p *Plugin) upsertIssue(ctx pluginhost.Ctx, gi *github.Issue) {
	raw := factory.Raw{
		Ref:    fmt.Sprintf("github:%s#%d", p.cfg.Repo, gi.GetNumber()),
		Kind:   hub.KindTask,
		Level:  hub.LevelInfo,
		Origin: p.cfg.Origin,
		Title:  gi.GetTitle(),
		Text:   gi.GetBody(),
	}

	msg, reason := ctx.API.Factory.CreateMessage(raw)
	if msg == nil {
		ctx.API.Log.Warn("githubingest: normalize failed", "issue", gi.GetNumber(), "reason", reason)
		return
	}
	if _, err := ctx.API.Store.AddOrUpdateMessage(*msg); err != nil {
		ctx.API.Log.Warn("githubingest: store upsert failed", "issue", gi.GetNumber(), "error", err)
	}
}

// Stop cancels the poll loop.
func (p *Plugin) Stop(ctx pluginhost.Ctx) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	return nil
}
