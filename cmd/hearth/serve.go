package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/hearthai/hearth/internal/channels"
	"github.com/hearthai/hearth/internal/channels/discord"
	"github.com/hearthai/hearth/internal/channels/matrix"
	"github.com/hearthai/hearth/internal/channels/mattermost"
	"github.com/hearthai/hearth/internal/channels/slack"
	"github.com/hearthai/hearth/internal/channels/socket"
	"github.com/hearthai/hearth/internal/channels/telegram"
	"github.com/hearthai/hearth/internal/channels/whatsapp"
	"github.com/hearthai/hearth/internal/config"
	"github.com/hearthai/hearth/internal/eventbus"
	"github.com/hearthai/hearth/internal/mcp"
	"github.com/hearthai/hearth/internal/memory"
	"github.com/hearthai/hearth/internal/memory/flatindex"
	"github.com/hearthai/hearth/internal/memory/pgvectorindex"
	"github.com/hearthai/hearth/internal/memory/rowstore"
	"github.com/hearthai/hearth/internal/memory/sqlitevecindex"
	"github.com/hearthai/hearth/internal/messagestore"
	"github.com/hearthai/hearth/internal/observability"
	"github.com/hearthai/hearth/internal/planner"
	"github.com/hearthai/hearth/internal/planner/llm/anthropic"
	"github.com/hearthai/hearth/internal/planner/llm/bedrock"
	"github.com/hearthai/hearth/internal/planner/llm/gemini"
	"github.com/hearthai/hearth/internal/planner/llm/openai"
	"github.com/hearthai/hearth/internal/scheduler"
	"github.com/hearthai/hearth/internal/schedulestore"
	"github.com/hearthai/hearth/internal/supervisor"
	"github.com/hearthai/hearth/internal/toolbox"
	"github.com/hearthai/hearth/internal/toolexec"
	"github.com/hearthai/hearth/internal/workqueue"
	"github.com/hearthai/hearth/pkg/models"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Hearth gateway server",
		Long: `Start the Hearth gateway with all configured channels, LLM providers,
memory recall, scheduled tasks, and tool execution.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "hearth.yaml", "Path to YAML configuration file")
	return cmd
}

// runtime bundles every long-lived component runServe starts, so
// shutdown can stop them in a single, reverse-of-startup pass.
type runtime struct {
	log        *observability.Logger
	bus        *eventbus.Bus
	db         *sql.DB
	scheduler  *scheduler.Scheduler
	queue      *workqueue.Queue
	supervisor *supervisor.Supervisor
	channels   *channels.Registry
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := observability.NewLogger(observability.LogConfig{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		AddSource:      cfg.Logging.AddSource,
		RedactPatterns: cfg.Logging.RedactPatterns,
	})
	log.Info(ctx, "starting hearth gateway", "version", version, "commit", commit, "config", configPath)

	rt, err := bootstrap(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rt.supervisor.Start(ctx); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}
	if err := rt.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	if err := rt.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	log.Info(ctx, "hearth gateway started")

	<-ctx.Done()
	log.Info(ctx, "shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := rt.channels.StopAll(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "channel shutdown error", "error", err)
	}
	if err := rt.scheduler.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "scheduler shutdown error", "error", err)
	}
	rt.queue.Wait()
	rt.supervisor.Stop()
	if rt.db != nil {
		_ = rt.db.Close()
	}

	log.Info(shutdownCtx, "hearth gateway stopped gracefully")
	return nil
}

// bootstrap wires every collaborator named in the runtime struct,
// following the teacher's own storage -> memory -> LLM -> toolbox ->
// scheduler -> supervisor -> channels -> planner sequence.
func bootstrap(ctx context.Context, cfg *config.Config, log *observability.Logger) (*runtime, error) {
	bus := eventbus.New(log)

	db, messages, schedules, jobs, err := buildStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	memEngine, err := buildMemoryEngine(ctx, cfg, db, log)
	if err != nil {
		return nil, err
	}

	llmClient, err := buildLLMClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var embedder planner.Embedder
	if oc, ok := llmClient.(interface {
		Embed(ctx context.Context, text string) ([]float32, error)
	}); ok {
		embedder = oc
	} else {
		embedder, err = buildEmbedder(cfg)
		if err != nil {
			return nil, err
		}
	}

	registry := buildToolbox(cfg, log)
	if err := registry.Register(ctx, buildSystemToolSet(cfg)); err != nil {
		return nil, fmt.Errorf("register system tool set: %w", err)
	}

	queue := workqueue.New(jobs, bus, log)
	toolSvc := toolexec.New(registry, bus, queue, log)
	toolSvc.WithConcurrency(cfg.Toolbox.Execution.Parallelism)
	if err := toolSvc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start tool execution service: %w", err)
	}

	sched := scheduler.New(schedules, bus, queue, log)
	if cfg.Scheduler.TickInterval > 0 {
		sched = sched.WithTickInterval(cfg.Scheduler.TickInterval)
	}

	plannerCfg := planner.Config{}
	pl := planner.New(messages, memEngine, llmClient, embedder, registry, bus, log, plannerCfg)

	sup := supervisor.New(log)
	if cfg.Auth.CallbackSecret != "" {
		sup.SetCallbackAuth(supervisor.NewTokenIssuer(cfg.Auth.CallbackSecret, cfg.Auth.TokenExpiry))
	}

	chanRegistry, err := buildChannels(cfg, log)
	if err != nil {
		return nil, err
	}

	wireInbound(ctx, chanRegistry, pl, log)
	wireOutbound(bus, chanRegistry, log)

	return &runtime{
		log:        log,
		bus:        bus,
		db:         db,
		scheduler:  sched,
		queue:      queue,
		supervisor: sup,
		channels:   chanRegistry,
	}, nil
}

func buildStorage(ctx context.Context, cfg *config.Config) (*sql.DB, messagestore.Store, schedulestore.Store, workqueue.Store, error) {
	if cfg.Storage.Driver == "memory" {
		return nil, messagestore.NewMemoryStore(), schedulestore.NewMemoryStore(), workqueue.NewMemoryStore(), nil
	}

	db, err := sql.Open("postgres", cfg.Storage.DSN)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open storage database: %w", err)
	}
	if cfg.Storage.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
	}
	if cfg.Storage.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)
	}
	if cfg.Storage.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Storage.ConnMaxLifetime)
	}

	connectCtx := ctx
	if cfg.Storage.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.Storage.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(connectCtx); err != nil {
		_ = db.Close()
		return nil, nil, nil, nil, fmt.Errorf("ping storage database: %w", err)
	}

	migrator, err := newMigrator(cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, nil, fmt.Errorf("init migrator: %w", err)
	}
	if _, err := migrator.Up(ctx, 0); err != nil {
		_ = db.Close()
		return nil, nil, nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	messages, err := messagestore.NewPostgresStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, nil, fmt.Errorf("init message store: %w", err)
	}
	schedules, err := schedulestore.NewPostgresStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, nil, fmt.Errorf("init schedule store: %w", err)
	}
	jobs, err := workqueue.NewPostgresStore(cfg.Storage.DSN, workqueue.PostgresConfig{
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
		ConnectTimeout:  cfg.Storage.ConnectTimeout,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, nil, fmt.Errorf("init job store: %w", err)
	}

	return db, messages, schedules, jobs, nil
}

func buildMemoryEngine(ctx context.Context, cfg *config.Config, db *sql.DB, log *observability.Logger) (*memory.Engine, error) {
	var rows memory.RowStore
	if cfg.Storage.Driver == "postgres" {
		pgRows, err := rowstore.NewPostgresStore(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("init memory row store: %w", err)
		}
		rows = pgRows
	} else {
		rows = rowstore.NewMemoryStore()
	}

	var (
		vectors memory.VectorIndex
		err     error
	)
	switch cfg.Vector.Backend {
	case "flat":
		vectors, err = flatindex.New(cfg.Vector.FlatPath)
	case "sqlite":
		vectors, err = sqlitevecindex.New(sqlitevecindex.Config{
			Path:      cfg.Vector.SQLitePath,
			Dimension: cfg.Vector.Dimension,
		})
	case "pgvector":
		dsn := cfg.Vector.PgvectorDSN
		if dsn == "" {
			dsn = cfg.Storage.DSN
		}
		vectors, err = pgvectorindex.New(ctx, pgvectorindex.Config{
			DSN:           dsn,
			DB:            db,
			Dimension:     cfg.Vector.Dimension,
			RunMigrations: true,
		})
	default:
		return nil, fmt.Errorf("vector.backend %q is not supported", cfg.Vector.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init vector index: %w", err)
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	return memory.New(rows, vectors, embedder, log), nil
}

// buildEmbedder resolves the configured embedding provider. Only the
// OpenAI adapter implements Embed today; other providers are rejected
// with a clear error rather than silently degrading recall.
func buildEmbedder(cfg *config.Config) (memory.Embedder, error) {
	provider := cfg.Embedding.Provider
	if provider == "" {
		provider = cfg.LLM.DefaultProvider
	}
	if provider != "openai" {
		return nil, fmt.Errorf("embedding.provider %q is not supported; only openai implements embeddings", provider)
	}
	providerCfg, ok := cfg.LLM.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("embedding provider %q is not configured under llm.providers", provider)
	}
	client, err := openai.New(openai.Config{
		APIKey:         providerCfg.APIKey,
		BaseURL:        providerCfg.BaseURL,
		ChatModel:      providerCfg.DefaultModel,
		EmbeddingModel: cfg.Embedding.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("init embedding client: %w", err)
	}
	return client, nil
}

// chainLLMClient tries each configured provider in order, falling
// through to the next on error, mirroring the planner's own
// layered-fallback posture one level below plan generation.
type chainLLMClient struct {
	clients []planner.LLMClient
}

func (c *chainLLMClient) Complete(ctx context.Context, req planner.CompletionRequest) (planner.CompletionResponse, error) {
	var lastErr error
	for _, client := range c.clients {
		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return planner.CompletionResponse{}, fmt.Errorf("all llm providers failed: %w", lastErr)
}

func buildLLMClient(ctx context.Context, cfg *config.Config) (planner.LLMClient, error) {
	order := append([]string{cfg.LLM.DefaultProvider}, cfg.LLM.FallbackChain...)
	seen := map[string]bool{}

	var clients []planner.LLMClient
	for _, name := range order {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		client, err := buildLLMProvider(ctx, cfg, name)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("llm.default_provider is required")
	}
	if len(clients) == 1 {
		return clients[0], nil
	}
	return &chainLLMClient{clients: clients}, nil
}

func buildLLMProvider(ctx context.Context, cfg *config.Config, name string) (planner.LLMClient, error) {
	providerCfg := cfg.LLM.Providers[name]
	switch name {
	case "openai":
		return openai.New(openai.Config{
			APIKey:         providerCfg.APIKey,
			BaseURL:        providerCfg.BaseURL,
			ChatModel:      providerCfg.DefaultModel,
			EmbeddingModel: cfg.Embedding.Model,
		})
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:  providerCfg.APIKey,
			BaseURL: providerCfg.BaseURL,
			Model:   providerCfg.DefaultModel,
		})
	case "gemini":
		return gemini.New(ctx, gemini.Config{
			APIKey: providerCfg.APIKey,
			Model:  providerCfg.DefaultModel,
		})
	case "bedrock":
		return bedrock.New(ctx, bedrock.Config{
			Region:          providerCfg.Region,
			AccessKeyID:     providerCfg.AccessKeyID,
			SecretAccessKey: providerCfg.SecretAccessKey,
			Model:           providerCfg.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("llm provider %q is not recognized", name)
	}
}

// buildSystemToolSet assembles the always-on System ToolSet: the
// echo/datetime diagnostics plus the calendar tool when the operator
// has configured OAuth2 credentials for it.
func buildSystemToolSet(cfg *config.Config) *toolbox.SystemSet {
	set := toolbox.NewSystemSet("system")
	set.Add(toolbox.EchoTool())
	set.Add(toolbox.DatetimeTool())
	if cfg.Toolbox.Calendar.Enabled {
		set.Add(toolbox.CalendarTool(toolbox.CalendarConfig{
			ClientID:     cfg.Toolbox.Calendar.ClientID,
			ClientSecret: cfg.Toolbox.Calendar.ClientSecret,
			RefreshToken: cfg.Toolbox.Calendar.RefreshToken,
			CalendarID:   cfg.Toolbox.Calendar.CalendarID,
		}))
	}
	return set
}

func buildToolbox(cfg *config.Config, log *observability.Logger) *toolbox.Registry {
	registry := toolbox.New(log, cfg.Toolbox.HealthTTL)
	if cfg.MCP.Enabled {
		mcpCfg := &mcp.Config{Enabled: cfg.MCP.Enabled}
		for _, entry := range cfg.MCP.Servers {
			mcpCfg.Servers = append(mcpCfg.Servers, &mcp.ServerConfig{
				ID:        entry.Name,
				Name:      entry.Name,
				Transport: mcp.TransportType(entry.Transport),
				Command:   entry.Command,
				Args:      entry.Args,
				URL:       entry.URL,
				AutoStart: entry.AutoStart,
			})
		}
		_ = registry.Register(context.Background(), toolbox.NewExternalSet("external", mcpCfg, nil))
	}
	return registry
}

// buildChannels constructs and registers every enabled channel
// adapter. A provider whose credentials fail to construct is skipped
// with a logged warning rather than aborting the whole gateway.
func buildChannels(cfg *config.Config, log *observability.Logger) (*channels.Registry, error) {
	registry := channels.NewRegistry()
	slogger := slog.Default()

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.New(telegram.Config{BotToken: cfg.Channels.Telegram.BotToken, Logger: slogger})
		if err != nil {
			log.Error(context.Background(), "telegram adapter unavailable", "error", err)
		} else {
			registry.Register(adapter)
		}
	}
	if cfg.Channels.Slack.Enabled {
		adapter, err := slack.New(slack.Config{
			BotToken: cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
			Logger:   slogger,
		})
		if err != nil {
			log.Error(context.Background(), "slack adapter unavailable", "error", err)
		} else {
			registry.Register(adapter)
		}
	}
	if cfg.Channels.Discord.Enabled {
		adapter, err := discord.New(discord.Config{Token: cfg.Channels.Discord.BotToken, Logger: slogger})
		if err != nil {
			log.Error(context.Background(), "discord adapter unavailable", "error", err)
		} else {
			registry.Register(adapter)
		}
	}
	if cfg.Channels.WhatsApp.Enabled {
		adapter, err := whatsapp.New(whatsapp.Config{SessionPath: cfg.Channels.WhatsApp.SessionPath, Logger: slogger})
		if err != nil {
			log.Error(context.Background(), "whatsapp adapter unavailable", "error", err)
		} else {
			registry.Register(adapter)
		}
	}
	if cfg.Channels.Matrix.Enabled {
		adapter, err := matrix.New(matrix.Config{
			Homeserver:  cfg.Channels.Matrix.Homeserver,
			UserID:      cfg.Channels.Matrix.UserID,
			AccessToken: cfg.Channels.Matrix.AccessToken,
			Logger:      slogger,
		})
		if err != nil {
			log.Error(context.Background(), "matrix adapter unavailable", "error", err)
		} else {
			registry.Register(adapter)
		}
	}
	if cfg.Channels.Mattermost.Enabled {
		adapter, err := mattermost.New(mattermost.Config{
			ServerURL: cfg.Channels.Mattermost.ServerURL,
			Token:     cfg.Channels.Mattermost.Token,
			Logger:    slogger,
		})
		if err != nil {
			log.Error(context.Background(), "mattermost adapter unavailable", "error", err)
		} else {
			registry.Register(adapter)
		}
	}
	if cfg.Channels.GUI.Enabled {
		adapter, err := socket.New(socket.Config{
			ListenAddr: cfg.Channels.GUI.ListenAddr,
			AuthToken:  cfg.Channels.GUI.AuthToken,
			Logger:     slogger,
		})
		if err != nil {
			log.Error(context.Background(), "gui socket adapter unavailable", "error", err)
		} else {
			registry.Register(adapter)
		}
	}

	return registry, nil
}

// sourceKindByPrefix maps a ConversationID's "<provider>:" prefix to
// the SourceKind tagged onto its inbound messages, and the inverse for
// routing an outbound reply back to its owning channel adapter.
var sourceKindByPrefix = map[string]models.SourceKind{
	"telegram":   models.SourceTelegram,
	"slack":      models.SourceSlack,
	"discord":    models.SourceDiscord,
	"whatsapp":   models.SourceWhatsApp,
	"matrix":     models.SourceMatrix,
	"mattermost": models.SourceMattermost,
	"api":        models.SourceGUI,
}

var channelTypeByPrefix = map[string]models.ChannelType{
	"telegram":   models.ChannelTelegram,
	"slack":      models.ChannelSlack,
	"discord":    models.ChannelDiscord,
	"whatsapp":   models.ChannelWhatsApp,
	"matrix":     models.ChannelMatrix,
	"mattermost": models.ChannelMattermost,
	"api":        models.ChannelAPI,
}

func conversationPrefix(conversationID string) string {
	if idx := strings.IndexByte(conversationID, ':'); idx >= 0 {
		return conversationID[:idx]
	}
	return ""
}

// wireInbound drains every registered channel adapter's aggregated
// inbound stream into the planner, tagging each message's source kind
// from its ConversationID provider prefix.
func wireInbound(ctx context.Context, registry *channels.Registry, pl *planner.Planner, log *observability.Logger) {
	inbound := registry.AggregateMessages(ctx)
	go func() {
		for msg := range inbound {
			prefix := conversationPrefix(msg.ConversationID)
			kind, ok := sourceKindByPrefix[prefix]
			if !ok {
				kind = models.SourceOther
			}
			source := models.SourceDescriptor{ID: msg.UserID, Kind: kind}
			if _, err := pl.ProcessMessage(ctx, msg.ConversationID, msg.UserID, msg.Content, source); err != nil {
				log.Error(ctx, "process inbound message failed", "conversation", msg.ConversationID, "error", err)
			}
		}
	}()
}

// wireOutbound subscribes to the planner's assistant-message event and
// routes each reply back out through the channel adapter its
// ConversationID prefix names.
func wireOutbound(bus *eventbus.Bus, registry *channels.Registry, log *observability.Logger) {
	bus.Subscribe(models.EventMessageCreated, func(ctx context.Context, event models.Event) error {
		msg, ok := event.Payload.(*models.Message)
		if !ok || msg.Role != models.RoleAssistant {
			return nil
		}
		prefix := conversationPrefix(msg.ConversationID)
		channelType, ok := channelTypeByPrefix[prefix]
		if !ok {
			return nil
		}
		outbound, ok := registry.GetOutbound(channelType)
		if !ok {
			log.Warn(ctx, "no outbound adapter for channel", "channel", channelType)
			return nil
		}
		return outbound.Send(ctx, msg)
	})
}
