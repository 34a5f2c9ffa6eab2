package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/animerealm/animerealm/animerealm/conversation"
	"github.com/animerealm/animerealm/animerealm/database/models"
	"github.com/animerealm/animerealm/animerealm/database/repositories"
	"github.com/animerealm/animerealm/animerealm/economy/delivery"
	"github.com/animerealm/animerealm/animerealm/economy/tokens"
	"github.com/animerealm/animerealm/animerealm/logger"
	"github.com/animerealm/animerealm/animerealm/requests"
	"github.com/animerealm/animerealm/animerealm/services"
)

// Callback data prefixes for the browse-and-download keyboard tree.
const (
	cbAnime    = "a"  // a:<animeID> -> list seasons
	cbSeason   = "s"  // s:<seasonID> -> list episodes
	cbEpisode  = "e"  // e:<seasonID>:<num> -> list variants
	cbDownload = "dl" // dl:<episodeID> -> deliver after re-validation
	cbWatch    = "w"  // w:<animeID> -> toggle watchlist
)

// AccessConfig lists who may use the admin console and who owns the bot.
type AccessConfig struct {
	AdminIDs []int64 `toml:"admin_ids"`
	OwnerID  int64   `toml:"owner_id"`
}

// Router dispatches every incoming update: admin conversations first, then
// commands, then callbacks from browse keyboards.
type Router struct {
	access   AccessConfig
	api      *tgbotapi.BotAPI
	telegram *Telegram

	users     repositories.UserRepository
	animes    repositories.AnimeRepository
	requests  repositories.RequestRepository
	tokenRepo repositories.TokenRepository
	activity  repositories.ActivityRepository

	registry *conversation.Registry
	gate     *delivery.Gate
	tokens   *tokens.Registry
	tracker  *requests.Tracker
	search   *services.Search
	audit    *services.Audit
}

func NewRouter(
	access AccessConfig,
	api *tgbotapi.BotAPI,
	telegram *Telegram,
	users repositories.UserRepository,
	animes repositories.AnimeRepository,
	requestRepo repositories.RequestRepository,
	tokenRepo repositories.TokenRepository,
	activity repositories.ActivityRepository,
	registry *conversation.Registry,
	gate *delivery.Gate,
	tokenRegistry *tokens.Registry,
	tracker *requests.Tracker,
	search *services.Search,
	audit *services.Audit,
) *Router {
	return &Router{
		access:    access,
		api:       api,
		telegram:  telegram,
		users:     users,
		animes:    animes,
		requests:  requestRepo,
		tokenRepo: tokenRepo,
		activity:  activity,
		registry:  registry,
		gate:      gate,
		tokens:    tokenRegistry,
		tracker:   tracker,
		search:    search,
		audit:     audit,
	}
}

func (r *Router) isAdmin(userID int64) bool {
	if userID == r.access.OwnerID {
		return true
	}
	for _, id := range r.access.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HandleUpdate is the single entry point for the long-poll loop.
func (r *Router) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		r.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		r.handleCallback(ctx, update.CallbackQuery)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	userID := msg.From.ID

	if _, err := r.users.EnsureUser(ctx, userID, msg.From.UserName, msg.From.FirstName); err != nil {
		slog.Error("Failed to ensure user",
			slog.String("type", "db"),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		return
	}

	// An admin with a task in flight gets their input routed to it before any
	// command handling; NotMine falls through.
	if r.isAdmin(userID) && r.registry.Active(userID) {
		out := r.registry.HandleInput(ctx, userID, conversationInput(msg))
		if out.Status != conversation.NotMine {
			r.reply(ctx, msg.Chat.ID, out.Reply)
			return
		}
	}

	if msg.IsCommand() {
		r.handleCommand(ctx, msg)
		return
	}
}

// conversationInput lifts a Telegram message into the engine's input shape,
// carrying along any attached media.
func conversationInput(msg *tgbotapi.Message) conversation.Input {
	in := conversation.Input{Text: msg.Text}
	switch {
	case msg.Video != nil:
		in.File = &conversation.FileInfo{
			FileID:       msg.Video.FileID,
			FileUniqueID: msg.Video.FileUniqueID,
			SizeBytes:    int64(msg.Video.FileSize),
			Kind:         "video",
		}
	case msg.Document != nil:
		in.File = &conversation.FileInfo{
			FileID:       msg.Document.FileID,
			FileUniqueID: msg.Document.FileUniqueID,
			SizeBytes:    int64(msg.Document.FileSize),
			Kind:         "document",
		}
	}
	return in
}

func (r *Router) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())
	start := time.Now()
	cmd := msg.Command()

	switch cmd {
	case "start":
		r.cmdStart(ctx, chatID, userID, args)
	case "help":
		r.reply(ctx, chatID, r.helpText(userID))
	case "earn":
		r.cmdEarn(ctx, chatID, userID)
	case "balance":
		r.cmdBalance(ctx, chatID, userID)
	case "search":
		r.cmdSearch(ctx, chatID, args)
	case "popular":
		r.cmdTopList(ctx, chatID, "Most downloaded", r.animes.PopularAnimes)
	case "latest":
		r.cmdTopList(ctx, chatID, "Recently added", r.animes.LatestAnimes)
	case "browse":
		r.cmdBrowse(ctx, chatID, args)
	case "request":
		r.cmdRequest(ctx, chatID, userID, args)
	case "myrequests":
		r.cmdMyRequests(ctx, chatID, userID)
	case "watchlist":
		r.cmdWatchlist(ctx, chatID, userID)
	case "settings":
		r.cmdSettings(ctx, chatID, userID, args)
	case "cancel":
		if r.isAdmin(userID) {
			if r.registry.Cancel(userID) {
				r.reply(ctx, chatID, "Operation cancelled.")
			} else {
				r.reply(ctx, chatID, "Nothing to cancel.")
			}
		}
	default:
		if r.isAdmin(userID) {
			r.handleAdminCommand(ctx, msg, cmd, args)
		} else {
			r.reply(ctx, chatID, "Unknown command. Try /help.")
		}
	}

	logger.LogCommand(cmd, msg.From.UserName, time.Since(start))
}

func (r *Router) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message, cmd, args string) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	seed := map[string]any{conversation.SeedAdminID: userID}

	switch cmd {
	case "grant":
		r.startFlow(ctx, chatID, userID, conversation.KindGrantPremium, seed)
	case "revoke":
		r.startFlow(ctx, chatID, userID, conversation.KindRevokePremium, seed)
	case "broadcast":
		r.startFlow(ctx, chatID, userID, conversation.KindBroadcast, seed)
	case "addseries":
		r.startFlow(ctx, chatID, userID, conversation.KindAddSeries, seed)
	case "addepisodes":
		r.startFlow(ctx, chatID, userID, conversation.KindAddEpisodes, seed)
	case "deleteseries":
		r.startFlow(ctx, chatID, userID, conversation.KindDeleteSeries, seed)
	case "setchannel":
		key, ok := channelKeyFor(args)
		if !ok {
			r.reply(ctx, chatID, "Usage: /setchannel request|activity|error")
			return
		}
		seed[conversation.SeedSettingKey] = key
		r.startFlow(ctx, chatID, userID, conversation.KindConfigureChannel, seed)
	case "wipedata":
		if userID != r.access.OwnerID {
			r.reply(ctx, chatID, "Only the owner can do that.")
			return
		}
		r.startFlow(ctx, chatID, userID, conversation.KindWipeData, seed)
	case "requests":
		r.cmdListRequests(ctx, chatID, args)
	case "setstatus":
		r.cmdSetStatus(ctx, chatID, userID, args)
	case "adjust":
		r.cmdAdjust(ctx, chatID, args)
	case "activity":
		r.cmdActivity(ctx, chatID, args)
	case "seriesstatus":
		r.cmdSeriesStatus(ctx, chatID, args)
	case "stats":
		r.cmdStats(ctx, chatID)
	default:
		r.reply(ctx, chatID, "Unknown command. Try /help.")
	}
}

func (r *Router) startFlow(ctx context.Context, chatID, userID int64, kind string, seed map[string]any) {
	out := r.registry.Start(ctx, userID, kind, seed)
	r.reply(ctx, chatID, out.Reply)
}

func channelKeyFor(arg string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "request":
		return repositories.SettingRequestLogChannel, true
	case "activity":
		return repositories.SettingActivityLogChannel, true
	case "error":
		return repositories.SettingErrorLogChannel, true
	}
	return "", false
}

func (r *Router) cmdStart(ctx context.Context, chatID, userID int64, payload string) {
	if payload != "" {
		r.redeem(ctx, chatID, userID, payload)
		return
	}
	r.reply(ctx, chatID,
		"Welcome! Browse the catalog with /search, earn download tokens with /earn, and check /help for everything else.")
}

func (r *Router) redeem(ctx context.Context, chatID, userID int64, value string) {
	result, err := r.tokens.Redeem(ctx, userID, value)
	if err != nil {
		logger.LogError("Token redemption failed", err, slog.Int64("user_id", userID))
		r.reply(ctx, chatID, "Something went wrong, try the link again.")
		return
	}

	switch result.Status {
	case tokens.RedeemGranted:
		r.reply(ctx, chatID, fmt.Sprintf(
			"+%d token(s)! Your balance is now %d.", result.Granted, result.NewBalance))
		r.audit.Activity(ctx, fmt.Sprintf("User %d redeemed %d token(s).", userID, result.Granted))
	case tokens.RedeemNotYours:
		r.reply(ctx, chatID, "That link belongs to someone else. Get your own with /earn.")
	case tokens.RedeemAlreadyUsed:
		r.reply(ctx, chatID, "That link was already used.")
	case tokens.RedeemExpired:
		r.reply(ctx, chatID, "That link has expired. Get a fresh one with /earn.")
	default:
		r.reply(ctx, chatID, "That link is not valid.")
	}
}

func (r *Router) cmdEarn(ctx context.Context, chatID, userID int64) {
	link, err := r.tokens.CreateEarnLink(ctx, userID)
	if errors.Is(err, tokens.ErrEarnCapReached) {
		r.reply(ctx, chatID, "You have hit today's earn limit. Come back tomorrow!")
		return
	}
	if err != nil {
		logger.LogError("Failed to create earn link", err, slog.Int64("user_id", userID))
		r.reply(ctx, chatID, "Could not create a link right now, try again shortly.")
		return
	}
	r.reply(ctx, chatID, "Open this link to earn download tokens:\n"+link)
}

func (r *Router) cmdBalance(ctx context.Context, chatID, userID int64) {
	user, err := r.users.Get(ctx, userID)
	if err != nil {
		r.reply(ctx, chatID, "Could not load your account right now.")
		return
	}

	if user.PremiumActive(time.Now().UTC()) {
		until := "forever"
		if user.PremiumExpiryDate != nil {
			until = user.PremiumExpiryDate.Format("2 Jan 2006")
		}
		r.reply(ctx, chatID, fmt.Sprintf(
			"You are premium until %s: unlimited downloads, no tokens needed.", until))
		return
	}
	r.reply(ctx, chatID, fmt.Sprintf(
		"Balance: %d token(s). Each download costs one; top up with /earn.", user.DownloadTokens))
}

func (r *Router) cmdSearch(ctx context.Context, chatID int64, query string) {
	if query == "" {
		r.reply(ctx, chatID, "Usage: /search <title>")
		return
	}

	results, err := r.search.Query(ctx, query, 8)
	if err != nil {
		logger.LogError("Search failed", err)
		r.reply(ctx, chatID, "Search is unavailable right now.")
		return
	}
	if len(results) == 0 {
		r.reply(ctx, chatID, "Nothing matched. You can /request a title we are missing.")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, res := range results {
		label := fmt.Sprintf("%s (%d)", res.Anime.Title, res.Anime.Year)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbAnime+":"+res.Anime.ID.Hex())))
	}

	out := tgbotapi.NewMessage(chatID, "Pick a series:")
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	r.send(out)
}

func (r *Router) cmdTopList(ctx context.Context, chatID int64, header string, fetch func(context.Context, int64) ([]models.Anime, error)) {
	animes, err := fetch(ctx, 10)
	if err != nil || len(animes) == 0 {
		r.reply(ctx, chatID, "The catalog is empty right now.")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, a := range animes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s (%d)", a.Title, a.Year), cbAnime+":"+a.ID.Hex())))
	}
	out := tgbotapi.NewMessage(chatID, header+":")
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	r.send(out)
}

// cmdBrowse lists the catalog filtered by genre, status, year or first letter.
func (r *Router) cmdBrowse(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		r.reply(ctx, chatID, "Usage: /browse genre|status|year|az <value>")
		return
	}

	var filter bson.M
	switch strings.ToLower(fields[0]) {
	case "genre":
		filter = bson.M{"genres": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(fields[1]) + "$", Options: "i"}}
	case "status":
		filter = bson.M{"status": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(fields[1]) + "$", Options: "i"}}
	case "year":
		year, err := strconv.Atoi(fields[1])
		if err != nil {
			r.reply(ctx, chatID, "The year must be a number.")
			return
		}
		filter = bson.M{"year": year}
	case "az":
		letter := strings.ToLower(fields[1])
		if len(letter) != 1 {
			r.reply(ctx, chatID, "Give a single letter, e.g. /browse az k")
			return
		}
		filter = bson.M{"title_searchable": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(letter)}}
	default:
		r.reply(ctx, chatID, "Usage: /browse genre|status|year|az <value>")
		return
	}

	animes, err := r.animes.Find(ctx, filter, 15)
	if err != nil {
		r.reply(ctx, chatID, "Browsing is unavailable right now.")
		return
	}
	if len(animes) == 0 {
		r.reply(ctx, chatID, "Nothing matched that filter.")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, a := range animes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s (%d)", a.Title, a.Year), cbAnime+":"+a.ID.Hex())))
	}
	out := tgbotapi.NewMessage(chatID, "Matches:")
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	r.send(out)
}

func (r *Router) cmdRequest(ctx context.Context, chatID, userID int64, args string) {
	if args == "" {
		r.reply(ctx, chatID, "Usage: /request <title> [| language]")
		return
	}

	title, language := args, "any"
	if idx := strings.Index(args, "|"); idx >= 0 {
		title = strings.TrimSpace(args[:idx])
		language = strings.TrimSpace(args[idx+1:])
	}
	if title == "" {
		r.reply(ctx, chatID, "The request needs a title.")
		return
	}

	if _, err := r.tracker.Submit(ctx, userID, title, language); err != nil {
		logger.LogError("Failed to submit request", err)
		r.reply(ctx, chatID, "Could not file the request, try again later.")
		return
	}
	r.audit.Request(ctx, fmt.Sprintf("New request from %d: %s (%s)", userID, title, language))
	r.reply(ctx, chatID, fmt.Sprintf("Request for %q filed. We will let you know how it goes.", title))
}

func (r *Router) cmdMyRequests(ctx context.Context, chatID, userID int64) {
	open, err := r.requests.OpenByUser(ctx, userID)
	if err != nil {
		r.reply(ctx, chatID, "Could not load your requests right now.")
		return
	}
	if len(open) == 0 {
		r.reply(ctx, chatID, "You have no open requests.")
		return
	}

	var b strings.Builder
	b.WriteString("Your open requests:\n")
	for _, req := range open {
		fmt.Fprintf(&b, "- %s [%s]\n", req.AnimeTitle, req.Status)
	}
	r.reply(ctx, chatID, b.String())
}

func (r *Router) cmdWatchlist(ctx context.Context, chatID, userID int64) {
	user, err := r.users.Get(ctx, userID)
	if err != nil {
		r.reply(ctx, chatID, "Could not load your watchlist right now.")
		return
	}
	if len(user.Watchlist) == 0 {
		r.reply(ctx, chatID, "Your watchlist is empty. Add series from their detail view.")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, id := range user.Watchlist {
		anime, err := r.animes.GetAnime(ctx, id)
		if err != nil {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(anime.Title, cbAnime+":"+anime.ID.Hex())))
	}
	out := tgbotapi.NewMessage(chatID, "Your watchlist:")
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	r.send(out)
}

func (r *Router) cmdSettings(ctx context.Context, chatID, userID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		user, err := r.users.Get(ctx, userID)
		if err != nil {
			r.reply(ctx, chatID, "Could not load your settings right now.")
			return
		}
		r.reply(ctx, chatID, fmt.Sprintf(
			"Quality: %s\nAudio: %s\nWatchlist notifications: %t\n\nChange with /settings quality|audio|notifications <value>",
			user.Settings.PreferredQuality, user.Settings.PreferredAudio, user.Settings.WatchlistNotifications))
		return
	}

	var key string
	var value any
	switch strings.ToLower(fields[0]) {
	case "quality":
		if pickChoiceText(fields[1], []string{"480p", "720p", "1080p"}) == "" {
			r.reply(ctx, chatID, "Quality must be 480p, 720p or 1080p.")
			return
		}
		key, value = "preferred_quality", strings.ToLower(fields[1])
	case "audio":
		choice := pickChoiceText(fields[1], []string{"SUB", "DUB", "DUAL"})
		if choice == "" {
			r.reply(ctx, chatID, "Audio must be SUB, DUB or DUAL.")
			return
		}
		key, value = "preferred_audio", choice
	case "notifications":
		on, err := strconv.ParseBool(fields[1])
		if err != nil {
			r.reply(ctx, chatID, "Notifications must be true or false.")
			return
		}
		key, value = "watchlist_notifications", on
	default:
		r.reply(ctx, chatID, "Change with /settings quality|audio|notifications <value>")
		return
	}

	if err := r.users.UpdateSetting(ctx, userID, key, value); err != nil {
		r.reply(ctx, chatID, "Saving failed, try again.")
		return
	}
	r.reply(ctx, chatID, "Saved.")
}

func (r *Router) cmdListRequests(ctx context.Context, chatID int64, args string) {
	status := strings.TrimSpace(args)
	if status == "" {
		status = models.RequestStatusPending
	}
	if !models.KnownRequestStatus(status) {
		r.reply(ctx, chatID, "Unknown status. Use pending, investigating, fulfilled, rejected or unavailable.")
		return
	}

	reqs, err := r.requests.ByStatus(ctx, status, 20)
	if err != nil {
		r.reply(ctx, chatID, "Could not load requests right now.")
		return
	}
	if len(reqs) == 0 {
		r.reply(ctx, chatID, "No "+status+" requests.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Requests (%s):\n", status)
	for _, req := range reqs {
		fmt.Fprintf(&b, "- %s | %q from %d | %s\n",
			req.ID.Hex(), req.AnimeTitle, req.UserID, req.RequestedAt.Format("2 Jan"))
	}
	b.WriteString("\nResolve with /setstatus <id> <status> [note]")
	r.reply(ctx, chatID, b.String())
}

func (r *Router) cmdSetStatus(ctx context.Context, chatID, adminID int64, args string) {
	fields := strings.SplitN(args, " ", 3)
	if len(fields) < 2 {
		r.reply(ctx, chatID, "Usage: /setstatus <id> <status> [note]")
		return
	}

	id, err := primitive.ObjectIDFromHex(fields[0])
	if err != nil {
		r.reply(ctx, chatID, "That is not a request id.")
		return
	}
	note := ""
	if len(fields) == 3 {
		note = strings.TrimSpace(fields[2])
	}

	status, err := r.tracker.Transition(ctx, id, fields[1], adminID, note)
	if err != nil {
		r.reply(ctx, chatID, "Transition failed, check the logs.")
		return
	}
	switch status {
	case requests.TransitionOK:
		r.reply(ctx, chatID, "Request updated.")
	case requests.TransitionNotFound:
		r.reply(ctx, chatID, "No request with that id.")
	case requests.TransitionAlreadyInStatus:
		r.reply(ctx, chatID, "The request is already in that status.")
	case requests.TransitionRefused:
		r.reply(ctx, chatID, "Requests only move forward: pending, investigating, then a final outcome.")
	case requests.TransitionUnknownStatus:
		r.reply(ctx, chatID, "Unknown status. Use pending, investigating, fulfilled, rejected or unavailable.")
	}
}

func (r *Router) cmdAdjust(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		r.reply(ctx, chatID, "Usage: /adjust <user_id> <delta>")
		return
	}
	userID, err1 := strconv.ParseInt(fields[0], 10, 64)
	delta, err2 := strconv.ParseInt(fields[1], 10, 64)
	if err1 != nil || err2 != nil {
		r.reply(ctx, chatID, "Both arguments must be numbers.")
		return
	}

	balance, err := r.users.AdjustTokens(ctx, userID, delta)
	if errors.Is(err, repositories.ErrNotFound) {
		r.reply(ctx, chatID, "No such user.")
		return
	}
	if err != nil {
		r.reply(ctx, chatID, "Adjustment failed, check the logs.")
		return
	}
	r.reply(ctx, chatID, fmt.Sprintf("Done. New balance: %d.", balance))
}

// cmdActivity shows the most recent entries of one user's activity log.
func (r *Router) cmdActivity(ctx context.Context, chatID int64, args string) {
	userID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		r.reply(ctx, chatID, "Usage: /activity <user_id>")
		return
	}

	entries, err := r.activity.RecentByUser(ctx, userID, 10)
	if err != nil {
		r.reply(ctx, chatID, "Could not load the activity log right now.")
		return
	}
	if len(entries) == 0 {
		r.reply(ctx, chatID, "No recorded activity for that user.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d action(s) of %d:\n", len(entries), userID)
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s %s\n", e.Timestamp.Format("2 Jan 15:04"), e.Action)
	}
	r.reply(ctx, chatID, b.String())
}

// cmdSeriesStatus re-labels a series (e.g. Ongoing -> Completed) without the
// full authoring wizard.
func (r *Router) cmdSeriesStatus(ctx context.Context, chatID int64, args string) {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(fields) != 2 {
		r.reply(ctx, chatID, "Usage: /seriesstatus <status> <title>")
		return
	}
	status := pickChoiceText(fields[0], models.AnimeStatuses)
	if status == "" {
		r.reply(ctx, chatID, "Status must be one of: "+strings.Join(models.AnimeStatuses, ", "))
		return
	}

	results, err := r.search.Query(ctx, fields[1], 1)
	if err != nil || len(results) == 0 {
		r.reply(ctx, chatID, "No series matched that title.")
		return
	}
	anime := results[0].Anime

	if err := r.animes.UpdateAnime(ctx, anime.ID, bson.M{"status": status}); err != nil {
		r.reply(ctx, chatID, "Update failed, check the logs.")
		return
	}
	r.search.Invalidate()
	r.reply(ctx, chatID, fmt.Sprintf("%q is now marked %s.", anime.Title, status))
}

func (r *Router) cmdStats(ctx context.Context, chatID int64) {
	catalog, err := r.animes.Stats(ctx)
	if err != nil {
		r.reply(ctx, chatID, "Could not load stats right now.")
		return
	}
	userCount, _ := r.users.Count(ctx)
	premiumCount, _ := r.users.CountPremium(ctx)
	pending, _ := r.requests.CountByStatus(ctx, models.RequestStatusPending)
	redeemed, _ := r.tokenRepo.CountByStatus(ctx, models.TokenStatusUsed)
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	downloadsToday, _ := r.activity.CountSince(ctx, models.ActivityDownload, midnight)

	r.reply(ctx, chatID, fmt.Sprintf(
		"Users: %d (%d premium)\nSeries: %d, seasons: %d, episodes: %d\nTotal downloads: %d (%d today)\nTokens redeemed: %d\nLibrary size: %.1f GB\nPending requests: %d",
		userCount, premiumCount,
		catalog.Series, catalog.Seasons, catalog.Episodes,
		catalog.TotalDownloads, downloadsToday,
		redeemed,
		float64(catalog.TotalFileBytes)/(1<<30),
		pending))
}

func (r *Router) helpText(userID int64) string {
	var b strings.Builder
	b.WriteString("/search <title> - find a series\n")
	b.WriteString("/popular, /latest - browse the catalog\n")
	b.WriteString("/browse genre|status|year|az <value> - filtered listing\n")
	b.WriteString("/earn - get download tokens\n")
	b.WriteString("/balance - tokens and premium status\n")
	b.WriteString("/request <title> - ask for a missing series\n")
	b.WriteString("/myrequests - your open requests\n")
	b.WriteString("/watchlist - series you follow\n")
	b.WriteString("/settings - delivery preferences\n")
	if r.isAdmin(userID) {
		b.WriteString("\nAdmin:\n")
		b.WriteString("/grant, /revoke - premium management\n")
		b.WriteString("/addseries, /addepisodes, /deleteseries - catalog\n")
		b.WriteString("/requests, /setstatus - request queue\n")
		b.WriteString("/seriesstatus - relabel a series\n")
		b.WriteString("/broadcast - message all users\n")
		b.WriteString("/adjust - change a balance\n")
		b.WriteString("/activity - a user's recent actions\n")
		b.WriteString("/setchannel - log channels\n")
		b.WriteString("/stats - totals\n")
		b.WriteString("/cancel - abort the current operation\n")
	}
	if userID == r.access.OwnerID {
		b.WriteString("/wipedata - full reset (owner only)\n")
	}
	return b.String()
}

func (r *Router) reply(_ context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	r.send(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) send(c tgbotapi.Chattable) {
	if _, err := r.api.Send(c); err != nil {
		slog.Warn("Send failed",
			slog.String("type", "sys"),
			slog.Any("error", err))
	}
}

func pickChoiceText(text string, choices []string) string {
	for _, c := range choices {
		if strings.EqualFold(c, strings.TrimSpace(text)) {
			return c
		}
	}
	return ""
}
