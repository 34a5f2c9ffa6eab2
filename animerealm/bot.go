package animerealm

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/animerealm/animerealm/animerealm/conversation"
	"github.com/animerealm/animerealm/animerealm/database"
	"github.com/animerealm/animerealm/animerealm/database/repositories"
	"github.com/animerealm/animerealm/animerealm/economy/delivery"
	"github.com/animerealm/animerealm/animerealm/economy/premium"
	"github.com/animerealm/animerealm/animerealm/economy/tokens"
	"github.com/animerealm/animerealm/animerealm/handlers"
	"github.com/animerealm/animerealm/animerealm/requests"
	"github.com/animerealm/animerealm/animerealm/services"
	"github.com/animerealm/animerealm/animerealm/settings"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

type Bot struct {
	Cfg     Config
	Version string
	Commit  string

	API      *tgbotapi.BotAPI
	DB       *database.DB
	Cell     *settings.Cell
	Router   *handlers.Router
	Sweeper  *premium.Sweeper
	Janitor  *services.Janitor
	Registry *conversation.Registry

	UserRepository     repositories.UserRepository
	TokenRepository    repositories.TokenRepository
	AnimeRepository    repositories.AnimeRepository
	RequestRepository  repositories.RequestRepository
	ActivityRepository repositories.ActivityRepository
	SettingsRepository repositories.SettingsRepository
}

// Setup connects everything: bot API, database, repositories, services,
// conversation flows and the router. Nothing starts polling yet.
func (b *Bot) Setup(ctx context.Context) error {
	api, err := tgbotapi.NewBotAPI(b.Cfg.Bot.Token)
	if err != nil {
		return fmt.Errorf("failed to connect to the bot api: %w", err)
	}
	b.API = api
	if b.Cfg.Economy.BotUsername == "" {
		b.Cfg.Economy.BotUsername = api.Self.UserName
	}

	db, err := database.New(ctx, b.Cfg.DB)
	if err != nil {
		return err
	}
	b.DB = db
	if err := db.EnsureIndexes(ctx); err != nil {
		return err
	}

	b.UserRepository = repositories.NewUserRepository(db)
	b.TokenRepository = repositories.NewTokenRepository(db)
	b.AnimeRepository = repositories.NewAnimeRepository(db)
	b.RequestRepository = repositories.NewRequestRepository(db)
	b.ActivityRepository = repositories.NewActivityRepository(db)
	b.SettingsRepository = repositories.NewSettingsRepository(db)

	b.Cell = settings.NewCell(
		b.Cfg.Channels.RequestLogChannelID,
		b.Cfg.Channels.ActivityLogChannelID,
		b.Cfg.Channels.ErrorLogChannelID,
	)
	if err := b.Cell.Load(ctx, b.SettingsRepository); err != nil {
		return err
	}

	telegram := handlers.NewTelegram(api)
	shortener := services.NewShortener(b.Cfg.Shortener)
	audit := services.NewAudit(b.Cell, telegram)
	broadcaster := services.NewBroadcaster(b.UserRepository, telegram, b.Cfg.Bot.BroadcastPerSecond)
	search, err := services.NewSearch(b.AnimeRepository)
	if err != nil {
		return err
	}

	tokenRegistry := tokens.NewRegistry(b.Cfg.Economy, b.TokenRepository, b.UserRepository, b.ActivityRepository, shortener)
	gate := delivery.NewGate(b.Cfg.Delivery, b.UserRepository, b.AnimeRepository, telegram)
	tracker := requests.NewTracker(b.RequestRepository, telegram)
	b.Sweeper = premium.NewSweeper(b.UserRepository)
	b.Janitor = services.NewJanitor(b.AnimeRepository)

	b.Registry = conversation.NewRegistry()
	conversation.NewPremiumFlows(b.UserRepository, telegram).RegisterOn(b.Registry)
	conversation.NewBroadcastFlow(broadcaster, telegram).RegisterOn(b.Registry)
	conversation.NewWipeFlow(db).RegisterOn(b.Registry)
	conversation.NewChannelFlow(b.SettingsRepository, b.Cell, telegram).RegisterOn(b.Registry)
	conversation.NewAuthoringFlows(b.AnimeRepository, search, telegram).RegisterOn(b.Registry)

	b.Router = handlers.NewRouter(
		b.Cfg.Access, api, telegram,
		b.UserRepository, b.AnimeRepository, b.RequestRepository,
		b.TokenRepository, b.ActivityRepository,
		b.Registry, gate, tokenRegistry, tracker, search, audit,
	)

	slog.Info("AnimeRealm is ready",
		slog.String("type", "sys"),
		slog.String("version", b.Version),
		slog.String("commit", b.Commit),
		slog.String("bot", api.Self.UserName))
	return nil
}

// Run starts the premium sweeper and consumes updates until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Sweeper.Start(ctx); err != nil {
		return err
	}
	defer b.Sweeper.Stop()
	if err := b.Janitor.Start(ctx); err != nil {
		return err
	}
	defer b.Janitor.Stop()

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := b.API.GetUpdatesChan(updateCfg)

	for {
		select {
		case <-ctx.Done():
			b.API.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.Router.HandleUpdate(ctx, update)
		}
	}
}

// Close releases the database connection.
func (b *Bot) Close(ctx context.Context) {
	if b.DB != nil {
		if err := b.DB.Close(ctx); err != nil {
			slog.Error("Failed to close database",
				slog.String("type", "db"),
				slog.Any("error", err))
		}
	}
}
