// Package main is a reference wiring binary for the message hub: it
// constructs the core engine (store, factory, archive, notification
// scheduler, rule engine, plugin host), registers whichever built-in
// plugins have credentials in the environment, and exposes the admin
// command surface over a thin HTTP surface for manual exercise. None of
// this is a production transport — an embedding host wires the same
// packages into its own UI/HTTP/WS layer instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/msghub/internal/action"
	"github.com/nugget/msghub/internal/admin"
	"github.com/nugget/msghub/internal/archive"
	"github.com/nugget/msghub/internal/config"
	"github.com/nugget/msghub/internal/factory"
	"github.com/nugget/msghub/internal/hostapi"
	"github.com/nugget/msghub/internal/hub"
	"github.com/nugget/msghub/internal/hublog"
	"github.com/nugget/msghub/internal/kvstate"
	"github.com/nugget/msghub/internal/llm"
	"github.com/nugget/msghub/internal/notify"
	"github.com/nugget/msghub/internal/pluginhost"
	"github.com/nugget/msghub/internal/pluginhost/builtin/githubingest"
	"github.com/nugget/msghub/internal/pluginhost/builtin/mailingest"
	"github.com/nugget/msghub/internal/pluginhost/builtin/mailnotify"
	"github.com/nugget/msghub/internal/pluginhost/builtin/mqttingest"
	"github.com/nugget/msghub/internal/pluginhost/builtin/mqttnotify"
	"github.com/nugget/msghub/internal/pluginhost/builtin/wsfeed"
	"github.com/nugget/msghub/internal/rules"
	"github.com/nugget/msghub/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	addr := flag.String("addr", ":8080", "admin HTTP surface listen address")
	flag.Parse()

	logger := hublog.New(slog.LevelInfo)

	if err := run(logger, *configPath, *addr); err != nil {
		logger.Error("msghubd exiting", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, addr string) error {
	cfgPath, err := config.FindConfig(configPath)
	var cfg *config.Config
	if err != nil {
		logger.Warn("no config file found, using defaults", "error", err)
		cfg = config.Default()
	} else {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		logger.Info("config loaded", "path", cfgPath)
	}

	if cfg.LogLevel != "" {
		level, err := hublog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log_level in config: %w", err)
		}
		logger = hublog.New(level)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	effective := cfg.Normalize()

	presets, err := kvstate.OpenFile(cfg.DataDir + "/presets.db")
	if err != nil {
		return fmt.Errorf("open presets db: %w", err)
	}
	defer presets.Close()

	constants := hub.NewConstants()
	constants.Freeze()

	st := store.New(logger)
	f := factory.New(constants, logger)

	ar, err := archive.New(archive.Config{
		BaseDir:           effective.Archive.BaseDir,
		FileExtension:     effective.Archive.FileExtension,
		StrategyLock:      archive.StrategyLock(effective.Archive.StrategyLock),
		KeepPreviousWeeks: effective.Archive.KeepPreviousWeeks,
	}, nil, logger)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	ar.Subscribe(st.Bus())
	logger.Info("archive backend selected", "effective", ar.EffectiveStrategy())

	act := action.New(st, ar, logger)

	writer := rules.NewTargetMessageWriter(st, f, presets, logger)
	engine := rules.NewEngine(writer, logger)

	// The AI façade is optional; plugins check for nil before using it.
	// BaseURL doubles as the provider endpoint for either backend.
	var ai *hostapi.AI
	if cfg.AI.Configured() {
		var client llm.Client
		switch cfg.AI.Provider {
		case "ollama":
			client = llm.NewOllamaClient(cfg.AI.OpenAI.BaseURL, logger)
		default:
			client = llm.NewAnthropicClient(llm.AnthropicConfig{
				APIKey:  cfg.AI.OpenAI.APIKey,
				BaseURL: cfg.AI.OpenAI.BaseURL,
			}, logger)
		}
		model := cfg.AI.OpenAI.ModelsByQuality["default"]
		ai = hostapi.NewAI(client, model)
		logger.Info("ai completion enabled", "provider", cfg.AI.Provider, "model", model)
	}

	host := pluginhost.New(pluginhost.Deps{
		Store:     st,
		Factory:   f,
		Constants: constants,
		Action:    act,
		AI:        ai,
		Logger:    logger,
		Engine:    engine,
	})

	var quietHours *notify.QuietHours
	if qh := effective.QuietHours; qh != nil {
		quietHours = &notify.QuietHours{
			StartMin: qh.StartMin,
			EndMin:   qh.EndMin,
			MaxLevel: qh.MaxLevel,
			SpreadMs: int64(qh.SpreadMs),
		}
	}

	sched := notify.New(st, host, notify.Config{
		TickInterval: time.Duration(cfg.Scheduler.TickIntervalMs) * time.Millisecond,
		QuietHours:   quietHours,
	}, logger)
	sched.SubscribeUpdates(st.Bus())

	registerBuiltinPlugins(host, logger)

	dispatcher := &admin.Dispatcher{
		Store:     st,
		Archive:   ar,
		Scheduler: sched,
		Constants: constants,
		Presets:   presets,
		Engine:    engine,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go ar.Run(ctx)
	sched.Start(ctx)
	defer sched.Stop()

	server := newAdminServer(addr, dispatcher, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
		ar.Close()
		_ = server.Shutdown(context.Background())
	}()

	logger.Info("msghubd serving admin surface", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	logger.Info("msghubd stopped")
	return nil
}

// registerBuiltinPlugins wires each reference plugin whose credentials are
// present in the environment — these are reference integrations, not
// production configuration owned by this module, so env vars stand in
// for the host's own plugin configuration surface.
func registerBuiltinPlugins(host *pluginhost.Host, logger *slog.Logger) {
	if broker := os.Getenv("MSGHUB_MQTT_BROKER"); broker != "" {
		host.RegisterIngest("mqttingest", mqttingest.New(mqttingest.Config{
			ID:       "mqttingest",
			Broker:   broker,
			Username: os.Getenv("MSGHUB_MQTT_USERNAME"),
			Password: os.Getenv("MSGHUB_MQTT_PASSWORD"),
			Topics:   []string{"msghub/#"},
		}))
		host.RegisterNotify("mqttnotify", mqttnotify.New(mqttnotify.Config{
			ID:       "mqttnotify",
			Broker:   broker,
			Username: os.Getenv("MSGHUB_MQTT_USERNAME"),
			Password: os.Getenv("MSGHUB_MQTT_PASSWORD"),
		}))
		logger.Info("mqtt plugins registered", "broker", broker)
	}

	if smtpHost, port := os.Getenv("MSGHUB_SMTP_HOST"), os.Getenv("MSGHUB_SMTP_PORT"); smtpHost != "" && port != "" {
		var portNum int
		fmt.Sscanf(port, "%d", &portNum)
		host.RegisterNotify("mailnotify", mailnotify.New(mailnotify.Config{
			ID:       "mailnotify",
			Host:     smtpHost,
			Port:     portNum,
			StartTLS: os.Getenv("MSGHUB_SMTP_STARTTLS") == "true",
			Username: os.Getenv("MSGHUB_SMTP_USERNAME"),
			Password: os.Getenv("MSGHUB_SMTP_PASSWORD"),
			From:     os.Getenv("MSGHUB_SMTP_FROM"),
			To:       []string{os.Getenv("MSGHUB_SMTP_TO")},
		}))
		logger.Info("mailnotify registered", "host", smtpHost)
	}

	if imapHost, port := os.Getenv("MSGHUB_IMAP_HOST"), os.Getenv("MSGHUB_IMAP_PORT"); imapHost != "" && port != "" {
		var portNum int
		fmt.Sscanf(port, "%d", &portNum)
		host.RegisterIngest("mailingest", mailingest.New(mailingest.Config{
			ID:       "mailingest",
			Host:     imapHost,
			Port:     portNum,
			TLS:      os.Getenv("MSGHUB_IMAP_TLS") != "false",
			Username: os.Getenv("MSGHUB_IMAP_USERNAME"),
			Password: os.Getenv("MSGHUB_IMAP_PASSWORD"),
		}))
		logger.Info("mailingest registered", "host", imapHost)
	}

	if token, repo := os.Getenv("MSGHUB_GITHUB_TOKEN"), os.Getenv("MSGHUB_GITHUB_REPO"); token != "" && repo != "" {
		host.RegisterIngest("githubingest", githubingest.New(githubingest.Config{
			ID:    "githubingest",
			Token: token,
			Repo:  repo,
		}))
		logger.Info("githubingest registered", "repo", repo)
	}

	if wsAddr := os.Getenv("MSGHUB_WSFEED_ADDR"); wsAddr != "" {
		host.RegisterNotify("wsfeed", wsfeed.New(wsfeed.Config{
			ID:         "wsfeed",
			Addr:       wsAddr,
			PairingURL: os.Getenv("MSGHUB_WSFEED_PAIRING_URL"),
		}))
		logger.Info("wsfeed registered", "addr", wsAddr)
	}
}

// newAdminServer builds the thin reference HTTP surface exposing
// admin.Dispatcher.Dispatch: one route, since production hosts
// reproduce the DTOs over whatever transport they already run.
func newAdminServer(addr string, d *admin.Dispatcher, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /admin/{command}", func(w http.ResponseWriter, r *http.Request) {
		command := r.PathValue("command")
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, admin.Response{})
			return
		}
		var raw json.RawMessage
		if len(payload) > 0 {
			raw = payload
		}
		resp := d.Dispatch(r.Context(), "admin."+command, raw)
		writeJSON(w, resp)
	})

	return &http.Server{
		Addr:         addr,
		Handler:      withLogging(logger, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
