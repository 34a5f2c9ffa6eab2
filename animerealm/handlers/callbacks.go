package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/animerealm/animerealm/animerealm/economy/delivery"
)

// handleCallback dispatches inline-keyboard presses. Every callback carries
// the full identity of what it acts on, so a press is valid regardless of how
// stale the message it sits under is.
func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	defer r.ackCallback(cb.ID)

	if cb.From == nil || cb.Message == nil {
		return
	}
	userID := cb.From.ID
	chatID := cb.Message.Chat.ID

	parts := strings.Split(cb.Data, ":")
	switch parts[0] {
	case cbAnime:
		if len(parts) == 2 {
			r.showSeries(ctx, chatID, parts[1])
		}
	case cbSeason:
		if len(parts) == 2 {
			r.showSeason(ctx, chatID, parts[1])
		}
	case cbEpisode:
		if len(parts) == 3 {
			r.showVariants(ctx, chatID, parts[1], parts[2])
		}
	case cbDownload:
		if len(parts) == 2 {
			r.download(ctx, chatID, userID, parts[1])
		}
	case cbWatch:
		if len(parts) == 2 {
			r.toggleWatch(ctx, chatID, userID, parts[1])
		}
	}
}

func (r *Router) ackCallback(id string) {
	if _, err := r.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		slog.Debug("Callback ack failed",
			slog.String("type", "sys"),
			slog.Any("error", err))
	}
}

func (r *Router) showSeries(ctx context.Context, chatID int64, hexID string) {
	id, err := primitive.ObjectIDFromHex(hexID)
	if err != nil {
		return
	}
	anime, err := r.animes.GetAnime(ctx, id)
	if err != nil {
		r.reply(ctx, chatID, "That series is no longer in the catalog.")
		return
	}
	seasons, err := r.animes.SeasonsOf(ctx, id)
	if err != nil {
		r.reply(ctx, chatID, "Could not load seasons right now.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d) - %s\n", anime.Title, anime.Year, anime.Status)
	if len(anime.Genres) > 0 {
		b.WriteString(strings.Join(anime.Genres, ", ") + "\n")
	}
	if anime.Synopsis != "" {
		b.WriteString("\n" + anime.Synopsis + "\n")
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, season := range seasons {
		label := fmt.Sprintf("Season %d", season.SeasonNumber)
		if season.SeasonNumber == 0 {
			label = "Specials"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbSeason+":"+season.ID.Hex())))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Toggle watchlist", cbWatch+":"+anime.ID.Hex())))

	out := tgbotapi.NewMessage(chatID, b.String())
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	r.send(out)
}

func (r *Router) showSeason(ctx context.Context, chatID int64, hexID string) {
	id, err := primitive.ObjectIDFromHex(hexID)
	if err != nil {
		return
	}
	episodes, err := r.animes.EpisodesOf(ctx, id)
	if err != nil || len(episodes) == 0 {
		r.reply(ctx, chatID, "No episodes here yet.")
		return
	}

	// One button per logical episode; variants come next.
	seen := map[int]bool{}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, ep := range episodes {
		if seen[ep.EpisodeNumber] {
			continue
		}
		seen[ep.EpisodeNumber] = true
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("Episode %d", ep.EpisodeNumber),
				fmt.Sprintf("%s:%s:%d", cbEpisode, hexID, ep.EpisodeNumber))))
	}

	out := tgbotapi.NewMessage(chatID, "Pick an episode:")
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	r.send(out)
}

func (r *Router) showVariants(ctx context.Context, chatID int64, hexSeasonID, numText string) {
	seasonID, err := primitive.ObjectIDFromHex(hexSeasonID)
	if err != nil {
		return
	}
	number, err := strconv.Atoi(numText)
	if err != nil {
		return
	}

	variants, err := r.animes.EpisodeVariants(ctx, seasonID, number)
	if err != nil || len(variants) == 0 {
		r.reply(ctx, chatID, "That episode is gone.")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, v := range variants {
		label := fmt.Sprintf("%s %s (%.0f MB)", v.Quality, v.AudioType,
			float64(v.FileSizeBytes)/(1<<20))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbDownload+":"+v.ID.Hex())))
	}

	out := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"Episode %d. One download costs one token (free for premium).", number))
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	r.send(out)
}

// download runs the gate for the pressed variant. The episode id in the
// callback is re-validated from scratch, so old buttons stay safe to press.
func (r *Router) download(ctx context.Context, chatID, userID int64, hexID string) {
	episodeID, err := primitive.ObjectIDFromHex(hexID)
	if err != nil {
		return
	}

	episode, err := r.animes.GetEpisode(ctx, episodeID)
	if err != nil {
		r.reply(ctx, chatID, "That file is no longer available.")
		return
	}
	anime, err := r.animes.GetAnime(ctx, episode.AnimeID)
	if err != nil {
		r.reply(ctx, chatID, "That file is no longer available.")
		return
	}
	caption := fmt.Sprintf("%s S%02dE%02d [%s %s]",
		anime.Title, episode.SeasonNumber, episode.EpisodeNumber,
		episode.Quality, episode.AudioType)

	result, err := r.gate.Deliver(ctx, userID, episodeID, caption)
	if err != nil {
		slog.Error("Delivery errored",
			slog.String("type", "error"),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		r.reply(ctx, chatID, "Something went wrong, nothing was charged.")
		return
	}

	switch {
	case result.Delivered:
		r.audit.Activity(ctx, fmt.Sprintf("User %d downloaded %s", userID, caption))
	case result.Reason == delivery.DenyQuotaReached:
		r.reply(ctx, chatID, "You have reached today's download limit. Premium removes it entirely.")
	case result.Reason == delivery.DenyNoTokens:
		r.reply(ctx, chatID, "You are out of tokens. Earn more with /earn.")
	case result.Reason == delivery.DenySendFailed:
		if result.Refunded {
			r.reply(ctx, chatID, "Sending the file failed; your token was returned.")
		} else {
			r.reply(ctx, chatID, "Sending the file failed.")
		}
		r.audit.Error(ctx, fmt.Sprintf("Delivery of %s to user %d failed at %s",
			caption, userID, time.Now().UTC().Format(time.RFC3339)))
	}
}

func (r *Router) toggleWatch(ctx context.Context, chatID, userID int64, hexID string) {
	animeID, err := primitive.ObjectIDFromHex(hexID)
	if err != nil {
		return
	}
	anime, err := r.animes.GetAnime(ctx, animeID)
	if err != nil {
		r.reply(ctx, chatID, "That series is no longer in the catalog.")
		return
	}

	added, err := r.users.AddToWatchlist(ctx, userID, animeID)
	if err != nil {
		r.reply(ctx, chatID, "Could not update your watchlist right now.")
		return
	}
	if added {
		r.reply(ctx, chatID, fmt.Sprintf("%q added to your watchlist.", anime.Title))
		return
	}

	if _, err := r.users.RemoveFromWatchlist(ctx, userID, animeID); err != nil {
		r.reply(ctx, chatID, "Could not update your watchlist right now.")
		return
	}
	r.reply(ctx, chatID, fmt.Sprintf("%q removed from your watchlist.", anime.Title))
}
