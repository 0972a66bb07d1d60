package main

import (
	"context"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/internal/providers/google"
	"github.com/sandevgo/brain/internal/providers/llm"
	"github.com/sandevgo/brain/internal/providers/rag"
	"github.com/sandevgo/brain/internal/service/agenda"
	"github.com/sandevgo/brain/internal/service/assembler"
	"github.com/sandevgo/brain/internal/service/command"
	"github.com/sandevgo/brain/internal/service/intent"
	"github.com/sandevgo/brain/internal/service/memory"
	"github.com/sandevgo/brain/internal/service/notify"
	"github.com/sandevgo/brain/internal/service/token"
	"github.com/sandevgo/brain/internal/storage/sqldb"
	"github.com/sandevgo/brain/internal/storage/vector"
	httptransport "github.com/sandevgo/brain/internal/transport/http"
	"github.com/sandevgo/brain/internal/transport/telegram"
	"github.com/sandevgo/brain/pkg/log"
	"github.com/sandevgo/brain/pkg/retry"
	"github.com/sandevgo/brain/pkg/srv"
	"github.com/sashabaranov/go-openai"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	if err := config.LoadEnv(ctx, config.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	memCfg := config.NewMemoryConfig(ctx)
	oauthCfg := config.NewOAuthConfig(ctx)
	aiCfg := config.NewOpenAIConfig(ctx)
	notifyCfg := config.NewNotifyConfig(ctx)

	// 2. Storage
	db, err := openStorage(ctx, appCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup("database", db.Close))

	users := sqldb.NewUserRepo(db)
	tokenRepo := sqldb.NewTokenRepo(db)
	memoryRepo := sqldb.NewMemoryRepo(db)

	// 3. Model providers
	retrier := retry.NewRetrier(oauthCfg.RetryConfig())

	var client *openai.Client
	if aiCfg.Enabled() {
		client = llm.NewClient(aiCfg)
	}
	chat := llm.NewProvider(ctx, aiCfg, client, retrier)

	embedder, closeEmbedder, err := rag.NewFromConfig(memCfg, client, retrier)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize embedder")
	}
	services = append(services, srv.NewCleanup("embedder", closeEmbedder))

	// 4. Google
	oauth := google.NewOAuth(oauthCfg, nil)
	if !oauthCfg.Configured() {
		logger.Warn().Msg("GOOGLE_CLIENT_ID not set, calendar and tasks stay disconnected")
	}
	workspace := google.NewWorkspace(oauthCfg, nil)
	tokens := token.NewManager(tokenRepo, oauth, oauthCfg)

	// 5. Memory
	engine := memory.NewEngine(memoryRepo, vector.NewChromemIndex(), embedder, memCfg)
	if err := engine.Reindex(ctx); err != nil {
		// retrieval degrades to nothing until the worker catches up
		logger.Error().Err(err).Msg("failed to rebuild memory index")
	}
	services = append(services, memory.NewIndexWorker(engine))

	// 6. Assembler
	loc := appCfg.Location()
	asm, err := assembler.New(
		intent.NewRouter(),
		tokens,
		engine,
		assembler.DefaultHandlers(assembler.Dependencies{
			Workspace:     workspace,
			Memory:        engine,
			Chat:          chat,
			Prompt:        assembler.NewSysPrompt(appCfg.GetRuntimePath()),
			Location:      loc,
			EventDuration: appCfg.EventDuration,
		}),
		assembler.Options{
			RetrievalK:     memCfg.RetrievalK,
			HandlerTimeout: appCfg.HandlerTimeout,
			WriteTimeout:   appCfg.WriteTimeout,
			ConsentURL:     oauth.ConsentURL,
		},
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize assembler")
	}

	desk := agenda.New(tokens, workspace, loc, appCfg.EventDuration)
	commands := command.New(command.NewCommands(oauth, tokens, engine, desk))

	// 7. Transports and notifications
	transports, err := initTransports(ctx, appCfg, transportDeps{
		assembler: asm,
		commands:  commands,
		tokens:    tokens,
		memory:    engine,
		users:     users,
		consent:   oauth,
		agenda:    desk,
		cron: func(notifier notify.Notifier) *notify.Scheduler {
			if !notifyCfg.Enabled {
				return nil
			}
			return notify.NewScheduler(tokenRepo, desk, notifier, engine, notifyCfg, loc)
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize transports")
	}
	if len(transports) == 0 {
		logger.Warn().Msg("no transport enabled, set ENABLE_HTTP or ENABLE_TELEGRAM")
	}
	services = append(services, transports...)

	return services
}

func openStorage(ctx context.Context, cfg *config.AppConfig) (*sqldb.DB, error) {
	dialect := sqldb.DialectSQLite
	if cfg.DBDriver == config.DriverPostgres {
		dialect = sqldb.DialectPostgres
	}
	return sqldb.Open(ctx, dialect, cfg.GetDSN())
}

type transportDeps struct {
	assembler *assembler.Assembler
	commands  core.CmdRouter
	tokens    *token.Manager
	memory    *memory.Engine
	users     *sqldb.UserRepo
	consent   core.ConsentFlow
	agenda    *agenda.Service
	// cron builds the scheduler once the push channel is known. It returns
	// nil when notifications are off.
	cron func(notify.Notifier) *notify.Scheduler
}

// initTransports starts Telegram first because it is the only channel
// the scheduler can push through.
func initTransports(ctx context.Context, cfg *config.AppConfig, d transportDeps) ([]srv.Service, error) {
	var services []srv.Service

	var notifier notify.Notifier = notify.Unreachable{}
	if cfg.EnableTelegram {
		tgCfg := config.NewTelegramConfig(ctx)
		bot, err := telegram.NewBot(ctx, tgCfg, d.assembler, d.commands)
		if err != nil {
			return nil, err
		}
		services = append(services, bot)
		notifier = bot
	}

	var cron httptransport.CronService
	if scheduler := d.cron(notifier); scheduler != nil {
		services = append(services, scheduler)
		cron = scheduler
	}

	if cfg.EnableHTTP {
		httpCfg := config.NewHTTPConfig(ctx)
		services = append(services, httptransport.NewServer(ctx, httpCfg, httptransport.Deps{
			Messages: d.assembler,
			Commands: d.commands,
			Tokens:   d.tokens,
			Memory:   d.memory,
			Users:    d.users,
			Consent:  d.consent,
			Agenda:   d.agenda,
			Cron:     cron,
		}))
	}

	return services, nil
}
