package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/animerealm/animerealm/animerealm/database/models"
	"github.com/animerealm/animerealm/animerealm/database/repositories"
	"github.com/animerealm/animerealm/animerealm/services"
)

// Episode variant choices offered during authoring.
var (
	qualityChoices = []string{"480p", "720p", "1080p"}
	audioChoices   = []string{"SUB", "DUB", "DUAL"}
)

// AuthoringFlows implements the catalog wizards: creating a series from
// scratch (optionally looping straight into seasons and episodes), appending
// episodes to an existing series, and deleting a series with its cascade.
type AuthoringFlows struct {
	animes   repositories.AnimeRepository
	search   *services.Search
	notifier Notifier
}

func NewAuthoringFlows(animes repositories.AnimeRepository, search *services.Search, notifier Notifier) *AuthoringFlows {
	return &AuthoringFlows{animes: animes, search: search, notifier: notifier}
}

func (f *AuthoringFlows) RegisterOn(r *Registry) {
	episodeLoop := map[string]StepFunc{
		"season_prompt":   f.seasonPromptStep,
		"season_number":   f.seasonNumberStep,
		"episode_number":  f.episodeNumberStep,
		"episode_file":    f.episodeFileStep,
		"episode_quality": f.episodeQualityStep,
		"episode_audio":   f.episodeAudioStep,
	}

	addSeries := map[string]StepFunc{
		"title":          f.titleStep,
		"original_title": f.originalTitleStep,
		"synopsis":       f.synopsisStep,
		"year":           f.yearStep,
		"status":         f.statusStep,
		"genres":         f.genresStep,
		"poster":         f.posterStep,
		"aliases":        f.aliasesStep,
		"confirm_series": f.confirmSeriesStep,
	}
	for step, fn := range episodeLoop {
		addSeries[step] = fn
	}
	r.Register(KindAddSeries, &FlowSpec{Start: f.startAddSeries, Steps: addSeries})

	addEpisodes := map[string]StepFunc{
		"series_query":   f.seriesQueryStep,
		"series_confirm": f.seriesConfirmStep,
	}
	for step, fn := range episodeLoop {
		addEpisodes[step] = fn
	}
	r.Register(KindAddEpisodes, &FlowSpec{Start: f.startAddEpisodes, Steps: addEpisodes})

	r.Register(KindDeleteSeries, &FlowSpec{
		Start: f.startDeleteSeries,
		Steps: map[string]StepFunc{
			"series_query":   f.seriesQueryStep,
			"series_confirm": f.seriesConfirmStep,
			"delete_scope":   f.deleteScopeStep,
			"confirm_delete": f.confirmDeleteStep,
		},
	})
}

func (f *AuthoringFlows) startAddSeries(_ context.Context, task *Task) Outcome {
	task.Step = "title"
	return Outcome{Status: Advance, Reply: "Adding a new series. Send the title."}
}

func (f *AuthoringFlows) titleStep(_ context.Context, task *Task, in Input) Outcome {
	title := strings.TrimSpace(in.Text)
	if title == "" {
		return Outcome{Status: Retry, Reply: "The title cannot be empty."}
	}
	task.Data["title"] = title
	task.Step = "original_title"
	return Outcome{Status: Advance, Reply: "Original (romaji/native) title? /skip if there is none."}
}

func (f *AuthoringFlows) originalTitleStep(_ context.Context, task *Task, in Input) Outcome {
	if !in.Skip {
		task.Data["original_title"] = strings.TrimSpace(in.Text)
	}
	task.Step = "synopsis"
	return Outcome{Status: Advance, Reply: "Send the synopsis."}
}

func (f *AuthoringFlows) synopsisStep(_ context.Context, task *Task, in Input) Outcome {
	synopsis := strings.TrimSpace(in.Text)
	if synopsis == "" {
		return Outcome{Status: Retry, Reply: "The synopsis cannot be empty."}
	}
	task.Data["synopsis"] = synopsis
	task.Step = "year"
	return Outcome{Status: Advance, Reply: "Release year?"}
}

func (f *AuthoringFlows) yearStep(_ context.Context, task *Task, in Input) Outcome {
	year, err := strconv.Atoi(strings.TrimSpace(in.Text))
	if err != nil || year < 1900 || year > 2100 {
		return Outcome{Status: Retry, Reply: "Send a four-digit year."}
	}
	task.Data["year"] = year
	task.Step = "status"
	return Outcome{Status: Advance, Reply: "Status? One of: " + strings.Join(models.AnimeStatuses, ", ")}
}

func (f *AuthoringFlows) statusStep(_ context.Context, task *Task, in Input) Outcome {
	want := strings.TrimSpace(in.Text)
	for _, s := range models.AnimeStatuses {
		if strings.EqualFold(s, want) {
			task.Data["status"] = s
			task.Data["genres"] = []string{}
			task.Step = "genres"
			return Outcome{Status: Advance, Reply: fmt.Sprintf(
				"Now the genres. Send one at a time to toggle it, then 'done'.\nAvailable: %s",
				strings.Join(models.Genres, ", "))}
		}
	}
	return Outcome{Status: Retry, Reply: "Pick one of: " + strings.Join(models.AnimeStatuses, ", ")}
}

func (f *AuthoringFlows) genresStep(_ context.Context, task *Task, in Input) Outcome {
	selected := task.Data["genres"].([]string)
	text := strings.TrimSpace(in.Text)

	if strings.EqualFold(text, "done") {
		if len(selected) == 0 {
			return Outcome{Status: Retry, Reply: "Pick at least one genre before 'done'."}
		}
		task.Step = "poster"
		return Outcome{Status: Advance, Reply: "Poster image URL? /skip if there is none."}
	}

	var canonical string
	for _, g := range models.Genres {
		if strings.EqualFold(g, text) {
			canonical = g
			break
		}
	}
	if canonical == "" {
		return Outcome{Status: Retry, Reply: "Not a known genre. Available: " + strings.Join(models.Genres, ", ")}
	}

	// Toggle: sending a selected genre again removes it.
	removed := false
	for i, g := range selected {
		if g == canonical {
			selected = append(selected[:i], selected[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		selected = append(selected, canonical)
	}
	task.Data["genres"] = selected

	if len(selected) == 0 {
		return Outcome{Status: Retry, Reply: "No genres selected. Keep toggling, then 'done'."}
	}
	return Outcome{Status: Retry, Reply: "Selected: " + strings.Join(selected, ", ") + ". Keep toggling or send 'done'."}
}

func (f *AuthoringFlows) posterStep(_ context.Context, task *Task, in Input) Outcome {
	if !in.Skip {
		url := strings.TrimSpace(in.Text)
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return Outcome{Status: Retry, Reply: "That does not look like a URL. Send one or /skip."}
		}
		task.Data["poster_url"] = url
	}
	task.Step = "aliases"
	return Outcome{Status: Advance, Reply: "Alternate titles, comma separated? /skip if none."}
}

func (f *AuthoringFlows) aliasesStep(_ context.Context, task *Task, in Input) Outcome {
	if !in.Skip {
		var aliases []string
		for _, a := range strings.Split(in.Text, ",") {
			if a = strings.TrimSpace(a); a != "" {
				aliases = append(aliases, a)
			}
		}
		task.Data["aliases"] = aliases
	}
	task.Step = "confirm_series"
	return Outcome{Status: Advance, Reply: f.seriesSummary(task) + "\n\nCreate it? (yes/no)"}
}

func (f *AuthoringFlows) seriesSummary(task *Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", task.Data["title"])
	if v, ok := task.Data["original_title"].(string); ok && v != "" {
		fmt.Fprintf(&b, "Original title: %s\n", v)
	}
	fmt.Fprintf(&b, "Year: %d\nStatus: %s\nGenres: %s\n",
		task.Data["year"], task.Data["status"],
		strings.Join(task.Data["genres"].([]string), ", "))
	if v, ok := task.Data["poster_url"].(string); ok && v != "" {
		fmt.Fprintf(&b, "Poster: %s\n", v)
	}
	if aliases, ok := task.Data["aliases"].([]string); ok && len(aliases) > 0 {
		fmt.Fprintf(&b, "Aliases: %s\n", strings.Join(aliases, ", "))
	}
	fmt.Fprintf(&b, "Synopsis: %s", task.Data["synopsis"])
	return b.String()
}

func (f *AuthoringFlows) confirmSeriesStep(ctx context.Context, task *Task, in Input) Outcome {
	switch parseYesNo(in.Text) {
	case yesAnswer:
	case noAnswer:
		return Outcome{Status: Aborted, Reply: "Series discarded."}
	default:
		return Outcome{Status: Retry, Reply: "Answer yes or no."}
	}

	title := task.Data["title"].(string)
	anime := &models.Anime{
		Title:           title,
		TitleSearchable: services.Normalize(title),
		Synopsis:        task.Data["synopsis"].(string),
		Year:            task.Data["year"].(int),
		Status:          task.Data["status"].(string),
		Genres:          task.Data["genres"].([]string),
		AddedByUserID:   taskAdminID(task),
	}
	if v, ok := task.Data["original_title"].(string); ok {
		anime.OriginalTitle = v
	}
	if v, ok := task.Data["poster_url"].(string); ok {
		anime.PosterURL = v
	}
	if aliases, ok := task.Data["aliases"].([]string); ok {
		anime.Aliases = aliases
		for _, a := range aliases {
			anime.AliasesSearchable = append(anime.AliasesSearchable, services.Normalize(a))
		}
	}

	id, err := f.animes.CreateAnime(ctx, anime)
	if err != nil {
		slog.Error("Failed to create series",
			slog.String("type", "db"),
			slog.String("title", title),
			slog.Any("error", err))
		return Outcome{Status: Aborted, Reply: "Creating the series failed, check the logs."}
	}
	f.search.Invalidate()

	task.Data["anime_id"] = id
	task.Data["anime_title"] = title
	task.Step = "season_prompt"
	return Outcome{Status: Advance, Reply: fmt.Sprintf("%q created. Add a season now? (yes/no)", title)}
}

func (f *AuthoringFlows) seasonPromptStep(ctx context.Context, task *Task, in Input) Outcome {
	switch parseYesNo(in.Text) {
	case yesAnswer:
		task.Step = "season_number"
		return Outcome{Status: Advance, Reply: "Season number? 0 means specials."}
	case noAnswer:
		f.notifyWatchers(ctx, task)
		return Outcome{Status: Complete, Reply: "Done."}
	}
	return Outcome{Status: Retry, Reply: "Answer yes or no."}
}

// notifyWatchers pings everyone following the series once an authoring
// session lands new episodes. Failures only log; the session outcome is
// unaffected.
func (f *AuthoringFlows) notifyWatchers(ctx context.Context, task *Task) {
	added, _ := task.Data["episodes_added"].(int)
	if added == 0 {
		return
	}
	animeID, ok := task.Data["anime_id"].(primitive.ObjectID)
	if !ok {
		return
	}
	title, _ := task.Data["anime_title"].(string)

	watchers, err := f.animes.WatchersOf(ctx, animeID)
	if err != nil {
		slog.Error("Failed to load watchers",
			slog.String("type", "db"),
			slog.String("anime_id", animeID.Hex()),
			slog.Any("error", err))
		return
	}

	text := fmt.Sprintf("%q just got %d new episode file(s).", title, added)
	for _, userID := range watchers {
		if err := f.notifier.SendText(ctx, userID, text); err != nil {
			slog.Warn("Failed to notify watcher",
				slog.String("type", "sys"),
				slog.Int64("user_id", userID),
				slog.Any("error", err))
		}
	}
}

func (f *AuthoringFlows) seasonNumberStep(ctx context.Context, task *Task, in Input) Outcome {
	number, err := strconv.Atoi(strings.TrimSpace(in.Text))
	if err != nil || number < 0 {
		return Outcome{Status: Retry, Reply: "Send a season number, 0 or higher."}
	}

	animeID := task.Data["anime_id"].(primitive.ObjectID)

	// Reuse an existing season so appending to season 1 twice does not fork it.
	season, err := f.animes.SeasonByNumber(ctx, animeID, number)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		id, createErr := f.animes.CreateSeason(ctx, &models.Season{
			AnimeID:       animeID,
			SeasonNumber:  number,
			AddedByUserID: taskAdminID(task),
		})
		if createErr != nil {
			slog.Error("Failed to create season",
				slog.String("type", "db"),
				slog.Any("error", createErr))
			return Outcome{Status: Aborted, Reply: "Creating the season failed, check the logs."}
		}
		task.Data["season_id"] = id
	case err != nil:
		return Outcome{Status: Retry, Reply: "Lookup failed, try again."}
	default:
		task.Data["season_id"] = season.ID
	}

	task.Data["season_number"] = number
	task.Step = "episode_number"
	return Outcome{Status: Advance, Reply: fmt.Sprintf(
		"Season %d. Send an episode number, or /done to finish this season.", number)}
}

func (f *AuthoringFlows) episodeNumberStep(_ context.Context, task *Task, in Input) Outcome {
	if strings.TrimSpace(in.Text) == "/done" {
		task.Step = "season_prompt"
		return Outcome{Status: Advance, Reply: "Season finished. Add another season? (yes/no)"}
	}

	number, err := strconv.Atoi(strings.TrimSpace(in.Text))
	if err != nil || number < 1 {
		return Outcome{Status: Retry, Reply: "Send an episode number, or /done."}
	}

	task.Data["episode_number"] = number
	task.Step = "episode_file"
	return Outcome{Status: Advance, Reply: fmt.Sprintf(
		"Episode %d. Forward or upload the file.", number)}
}

func (f *AuthoringFlows) episodeFileStep(_ context.Context, task *Task, in Input) Outcome {
	if in.File == nil {
		return Outcome{Status: Retry, Reply: "I need a video or document file for this episode."}
	}

	task.Data["file_id"] = in.File.FileID
	task.Data["file_unique_id"] = in.File.FileUniqueID
	task.Data["file_size"] = in.File.SizeBytes
	task.Data["file_type"] = in.File.Kind
	task.Step = "episode_quality"
	return Outcome{Status: Advance, Reply: "Quality? One of: " + strings.Join(qualityChoices, ", ")}
}

func (f *AuthoringFlows) episodeQualityStep(_ context.Context, task *Task, in Input) Outcome {
	choice := pickChoice(in.Text, qualityChoices)
	if choice == "" {
		return Outcome{Status: Retry, Reply: "Pick one of: " + strings.Join(qualityChoices, ", ")}
	}
	task.Data["quality"] = choice
	task.Step = "episode_audio"
	return Outcome{Status: Advance, Reply: "Audio? One of: " + strings.Join(audioChoices, ", ")}
}

func (f *AuthoringFlows) episodeAudioStep(ctx context.Context, task *Task, in Input) Outcome {
	choice := pickChoice(in.Text, audioChoices)
	if choice == "" {
		return Outcome{Status: Retry, Reply: "Pick one of: " + strings.Join(audioChoices, ", ")}
	}

	number := task.Data["episode_number"].(int)
	episode := &models.Episode{
		AnimeID:       task.Data["anime_id"].(primitive.ObjectID),
		SeasonID:      task.Data["season_id"].(primitive.ObjectID),
		SeasonNumber:  task.Data["season_number"].(int),
		EpisodeNumber: number,
		FileID:        task.Data["file_id"].(string),
		FileUniqueID:  task.Data["file_unique_id"].(string),
		FileSizeBytes: task.Data["file_size"].(int64),
		FileType:      task.Data["file_type"].(string),
		Quality:       task.Data["quality"].(string),
		AudioType:     choice,
		AddedByUserID: taskAdminID(task),
	}

	// Re-uploading a variant that already exists replaces the old file
	// instead of forking a duplicate button.
	replaced := false
	if variants, err := f.animes.EpisodeVariants(ctx, episode.SeasonID, number); err == nil {
		for _, v := range variants {
			if v.Quality == episode.Quality && v.AudioType == episode.AudioType {
				if delErr := f.animes.DeleteEpisode(ctx, v.ID); delErr == nil {
					replaced = true
				}
				break
			}
		}
	}

	if _, err := f.animes.CreateEpisode(ctx, episode); err != nil {
		slog.Error("Failed to create episode",
			slog.String("type", "db"),
			slog.Any("error", err))
		return Outcome{Status: Aborted, Reply: "Saving the episode failed, check the logs."}
	}

	added, _ := task.Data["episodes_added"].(int)
	task.Data["episodes_added"] = added + 1

	verb := "saved"
	if replaced {
		verb = "replaced"
	}
	task.Step = "episode_number"
	return Outcome{Status: Advance, Reply: fmt.Sprintf(
		"Episode %d (%s %s) %s. Next episode number, or /done.",
		number, episode.Quality, episode.AudioType, verb)}
}

func (f *AuthoringFlows) startAddEpisodes(_ context.Context, task *Task) Outcome {
	task.Step = "series_query"
	return Outcome{Status: Advance, Reply: "Which series are we adding to? Send its title."}
}

func (f *AuthoringFlows) startDeleteSeries(_ context.Context, task *Task) Outcome {
	task.Step = "series_query"
	return Outcome{Status: Advance, Reply: "Which series should be deleted? Send its title."}
}

func (f *AuthoringFlows) seriesQueryStep(ctx context.Context, task *Task, in Input) Outcome {
	results, err := f.search.Query(ctx, in.Text, 1)
	if err != nil {
		slog.Error("Series search failed",
			slog.String("type", "db"),
			slog.Any("error", err))
		return Outcome{Status: Retry, Reply: "Search failed, try again."}
	}
	if len(results) == 0 {
		return Outcome{Status: Retry, Reply: "No series matched. Try another title or /cancel."}
	}

	match := results[0].Anime
	task.Data["anime_id"] = match.ID
	task.Data["anime_title"] = match.Title
	task.Step = "series_confirm"
	return Outcome{Status: Advance, Reply: fmt.Sprintf("Did you mean %q (%d)? (yes/no)", match.Title, match.Year)}
}

func (f *AuthoringFlows) seriesConfirmStep(_ context.Context, task *Task, in Input) Outcome {
	switch parseYesNo(in.Text) {
	case yesAnswer:
		if task.Kind == KindDeleteSeries {
			task.Step = "delete_scope"
			return Outcome{Status: Advance, Reply: "Delete everything, or just one season? Send 'all' or a season number."}
		}
		task.Step = "season_number"
		return Outcome{Status: Advance, Reply: "Season number? 0 means specials."}
	case noAnswer:
		task.Step = "series_query"
		return Outcome{Status: Advance, Reply: "Send the title again."}
	}
	return Outcome{Status: Retry, Reply: "Answer yes or no."}
}

func (f *AuthoringFlows) deleteScopeStep(ctx context.Context, task *Task, in Input) Outcome {
	text := strings.TrimSpace(in.Text)
	if strings.EqualFold(text, "all") {
		task.Step = "confirm_delete"
		return Outcome{Status: Advance, Reply: fmt.Sprintf(
			"This deletes %q with every season and episode. Type DELETE to confirm.",
			task.Data["anime_title"])}
	}

	number, err := strconv.Atoi(text)
	if err != nil || number < 0 {
		return Outcome{Status: Retry, Reply: "Send 'all' or a season number."}
	}
	season, err := f.animes.SeasonByNumber(ctx, task.Data["anime_id"].(primitive.ObjectID), number)
	if errors.Is(err, repositories.ErrNotFound) {
		return Outcome{Status: Retry, Reply: fmt.Sprintf("%q has no season %d.", task.Data["anime_title"], number)}
	}
	if err != nil {
		return Outcome{Status: Retry, Reply: "Lookup failed, try again."}
	}

	task.Data["delete_season_id"] = season.ID
	task.Data["delete_season_number"] = number
	task.Step = "confirm_delete"
	return Outcome{Status: Advance, Reply: fmt.Sprintf(
		"This deletes season %d of %q with its episodes. Type DELETE to confirm.",
		number, task.Data["anime_title"])}
}

func (f *AuthoringFlows) confirmDeleteStep(ctx context.Context, task *Task, in Input) Outcome {
	if in.Text != "DELETE" {
		return Outcome{Status: Aborted, Reply: "That did not match. Nothing was deleted."}
	}

	if seasonID, ok := task.Data["delete_season_id"].(primitive.ObjectID); ok {
		episodes, err := f.animes.DeleteSeason(ctx, seasonID)
		if errors.Is(err, repositories.ErrNotFound) {
			return Outcome{Status: Aborted, Reply: "The season is already gone."}
		}
		if err != nil {
			slog.Error("Failed to delete season",
				slog.String("type", "db"),
				slog.String("season_id", seasonID.Hex()),
				slog.Any("error", err))
			return Outcome{Status: Aborted, Reply: "Delete failed, check the logs."}
		}
		return Outcome{Status: Complete, Reply: fmt.Sprintf(
			"Season %d of %q deleted along with %d episode(s).",
			task.Data["delete_season_number"], task.Data["anime_title"], episodes)}
	}

	animeID := task.Data["anime_id"].(primitive.ObjectID)
	result, err := f.animes.DeleteSeries(ctx, animeID)
	if errors.Is(err, repositories.ErrNotFound) {
		return Outcome{Status: Aborted, Reply: "The series is already gone."}
	}
	if err != nil {
		slog.Error("Failed to delete series",
			slog.String("type", "db"),
			slog.String("anime_id", animeID.Hex()),
			slog.Any("error", err))
		return Outcome{Status: Aborted, Reply: "Delete failed, check the logs."}
	}
	f.search.Invalidate()

	return Outcome{Status: Complete, Reply: fmt.Sprintf(
		"%q deleted along with %d season(s) and %d episode(s).",
		task.Data["anime_title"], result.Seasons, result.Episodes)}
}

func pickChoice(text string, choices []string) string {
	want := strings.TrimSpace(text)
	for _, c := range choices {
		if strings.EqualFold(c, want) {
			return c
		}
	}
	return ""
}
