package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/animerealm/animerealm/animerealm/database/models"
	"github.com/animerealm/animerealm/animerealm/database/repositories"
	"github.com/animerealm/animerealm/animerealm/services"
)

type fakeCatalog struct {
	repositories.AnimeRepository

	animes   []models.Anime
	seasons  []*models.Season
	episodes []*models.Episode
	watchers []int64
}

func (f *fakeCatalog) AllAnimes(context.Context) ([]models.Anime, error) {
	return f.animes, nil
}

func (f *fakeCatalog) CreateAnime(_ context.Context, anime *models.Anime) (primitive.ObjectID, error) {
	anime.ID = primitive.NewObjectID()
	f.animes = append(f.animes, *anime)
	return anime.ID, nil
}

func (f *fakeCatalog) SeasonByNumber(_ context.Context, animeID primitive.ObjectID, number int) (*models.Season, error) {
	for _, s := range f.seasons {
		if s.AnimeID == animeID && s.SeasonNumber == number {
			return s, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeCatalog) CreateSeason(_ context.Context, season *models.Season) (primitive.ObjectID, error) {
	season.ID = primitive.NewObjectID()
	f.seasons = append(f.seasons, season)
	return season.ID, nil
}

func (f *fakeCatalog) CreateEpisode(_ context.Context, episode *models.Episode) (primitive.ObjectID, error) {
	episode.ID = primitive.NewObjectID()
	f.episodes = append(f.episodes, episode)
	return episode.ID, nil
}

func (f *fakeCatalog) EpisodeVariants(_ context.Context, seasonID primitive.ObjectID, number int) ([]models.Episode, error) {
	var out []models.Episode
	for _, e := range f.episodes {
		if e.SeasonID == seasonID && e.EpisodeNumber == number {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeCatalog) DeleteEpisode(_ context.Context, id primitive.ObjectID) error {
	for i, e := range f.episodes {
		if e.ID == id {
			f.episodes = append(f.episodes[:i], f.episodes[i+1:]...)
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (f *fakeCatalog) DeleteSeason(_ context.Context, id primitive.ObjectID) (int64, error) {
	for i, s := range f.seasons {
		if s.ID == id {
			f.seasons = append(f.seasons[:i], f.seasons[i+1:]...)
			var removed int64
			kept := f.episodes[:0]
			for _, e := range f.episodes {
				if e.SeasonID == id {
					removed++
					continue
				}
				kept = append(kept, e)
			}
			f.episodes = kept
			return removed, nil
		}
	}
	return 0, repositories.ErrNotFound
}

func (f *fakeCatalog) WatchersOf(context.Context, primitive.ObjectID) ([]int64, error) {
	return f.watchers, nil
}

func (f *fakeCatalog) DeleteSeries(_ context.Context, id primitive.ObjectID) (repositories.DeleteSeriesResult, error) {
	for i, a := range f.animes {
		if a.ID == id {
			f.animes = append(f.animes[:i], f.animes[i+1:]...)
			return repositories.DeleteSeriesResult{Seasons: 1, Episodes: 12}, nil
		}
	}
	return repositories.DeleteSeriesResult{}, repositories.ErrNotFound
}

func authoringRegistry(t *testing.T, catalog *fakeCatalog, notifier Notifier) *Registry {
	t.Helper()
	search, err := services.NewSearch(catalog)
	require.NoError(t, err)
	r := NewRegistry()
	NewAuthoringFlows(catalog, search, notifier).RegisterOn(r)
	return r
}

func TestAddSeries_FullWizardWithEpisodeLoop(t *testing.T) {
	catalog := &fakeCatalog{watchers: []int64{7, 8}}
	notifier := &fakeNotifier{}
	r := authoringRegistry(t, catalog, notifier)
	ctx := context.Background()
	seed := map[string]any{SeedAdminID: int64(1)}

	r.Start(ctx, 1, KindAddSeries, seed)
	steps := []struct {
		in   Input
		want OutcomeStatus
	}{
		{Input{Text: "Frieren"}, Advance},
		{Input{Skip: true}, Advance}, // original title
		{Input{Text: "A mage outlives her party."}, Advance},
		{Input{Text: "2023"}, Advance},
		{Input{Text: "ongoing"}, Advance},
		{Input{Text: "Fantasy"}, Retry}, // genre toggle echoes selection
		{Input{Text: "Adventure"}, Retry},
		{Input{Text: "done"}, Advance},
		{Input{Skip: true}, Advance}, // poster
		{Input{Text: "Sousou no Frieren"}, Advance}, // aliases
		{Input{Text: "yes"}, Advance},               // create, then season prompt
		{Input{Text: "yes"}, Advance},               // add a season
		{Input{Text: "1"}, Advance},                 // season number
		{Input{Text: "1"}, Advance},                 // episode number
		{Input{File: &FileInfo{FileID: "f1", FileUniqueID: "u1", SizeBytes: 9000, Kind: "video"}}, Advance},
		{Input{Text: "1080p"}, Advance},
		{Input{Text: "SUB"}, Advance}, // episode saved, loop continues
		{Input{Text: "/done"}, Advance},
		{Input{Text: "no"}, Complete},
	}
	for i, step := range steps {
		out := r.HandleInput(ctx, 1, step.in)
		require.Equal(t, step.want, out.Status, "step %d reply %q", i, out.Reply)
	}

	require.Len(t, catalog.animes, 1)
	created := catalog.animes[0]
	assert.Equal(t, "Frieren", created.Title)
	assert.Equal(t, "frieren", created.TitleSearchable)
	assert.Equal(t, "Ongoing", created.Status)
	assert.ElementsMatch(t, []string{"Fantasy", "Adventure"}, created.Genres)
	assert.Equal(t, []string{"sousou no frieren"}, created.AliasesSearchable)

	require.Len(t, catalog.seasons, 1)
	require.Len(t, catalog.episodes, 1)
	ep := catalog.episodes[0]
	assert.Equal(t, "f1", ep.FileID)
	assert.Equal(t, "1080p", ep.Quality)
	assert.Equal(t, "SUB", ep.AudioType)
	assert.Equal(t, catalog.seasons[0].ID, ep.SeasonID)

	// Both watchers hear about the new episode once the session wraps up.
	require.Len(t, notifier.sent, 2)
	assert.Contains(t, notifier.sent[7][0], "Frieren")
	assert.Contains(t, notifier.sent[7][0], "1 new episode file(s)")
}

func TestAddSeries_GenreToggleRemovesOnSecondSend(t *testing.T) {
	catalog := &fakeCatalog{}
	r := authoringRegistry(t, catalog, &fakeNotifier{})
	ctx := context.Background()

	r.Start(ctx, 1, KindAddSeries, map[string]any{SeedAdminID: int64(1)})
	r.HandleInput(ctx, 1, Input{Text: "X"})
	r.HandleInput(ctx, 1, Input{Skip: true})
	r.HandleInput(ctx, 1, Input{Text: "synopsis"})
	r.HandleInput(ctx, 1, Input{Text: "2020"})
	r.HandleInput(ctx, 1, Input{Text: "Movie"})

	r.HandleInput(ctx, 1, Input{Text: "Action"})
	r.HandleInput(ctx, 1, Input{Text: "Action"}) // toggles back off
	out := r.HandleInput(ctx, 1, Input{Text: "done"})
	assert.Equal(t, Retry, out.Status, "empty selection cannot finish")

	r.HandleInput(ctx, 1, Input{Text: "Drama"})
	out = r.HandleInput(ctx, 1, Input{Text: "done"})
	assert.Equal(t, Advance, out.Status)
}

func TestDeleteSeries_RequiresExactConfirmation(t *testing.T) {
	catalog := &fakeCatalog{animes: []models.Anime{{
		ID:              primitive.NewObjectID(),
		Title:           "Old Show",
		TitleSearchable: "old show",
	}}}
	r := authoringRegistry(t, catalog, &fakeNotifier{})
	ctx := context.Background()

	r.Start(ctx, 1, KindDeleteSeries, map[string]any{SeedAdminID: int64(1)})
	out := r.HandleInput(ctx, 1, Input{Text: "old show"})
	require.Equal(t, Advance, out.Status)
	out = r.HandleInput(ctx, 1, Input{Text: "yes"})
	require.Equal(t, Advance, out.Status)
	out = r.HandleInput(ctx, 1, Input{Text: "all"})
	require.Equal(t, Advance, out.Status)

	out = r.HandleInput(ctx, 1, Input{Text: "delete"})
	assert.Equal(t, Aborted, out.Status, "lowercase must not delete")
	assert.Len(t, catalog.animes, 1)
}

func TestAddEpisodes_ReuploadReplacesVariant(t *testing.T) {
	animeID := primitive.NewObjectID()
	seasonID := primitive.NewObjectID()
	catalog := &fakeCatalog{
		animes:  []models.Anime{{ID: animeID, Title: "Show", TitleSearchable: "show"}},
		seasons: []*models.Season{{ID: seasonID, AnimeID: animeID, SeasonNumber: 1}},
		episodes: []*models.Episode{{
			ID: primitive.NewObjectID(), AnimeID: animeID, SeasonID: seasonID,
			EpisodeNumber: 1, FileID: "old", Quality: "1080p", AudioType: "SUB",
		}},
	}
	r := authoringRegistry(t, catalog, &fakeNotifier{})
	ctx := context.Background()

	r.Start(ctx, 1, KindAddEpisodes, map[string]any{SeedAdminID: int64(1)})
	r.HandleInput(ctx, 1, Input{Text: "show"})
	r.HandleInput(ctx, 1, Input{Text: "yes"})
	r.HandleInput(ctx, 1, Input{Text: "1"}) // season
	r.HandleInput(ctx, 1, Input{Text: "1"}) // episode
	r.HandleInput(ctx, 1, Input{File: &FileInfo{FileID: "new", FileUniqueID: "u2", SizeBytes: 1, Kind: "video"}})
	r.HandleInput(ctx, 1, Input{Text: "1080p"})
	out := r.HandleInput(ctx, 1, Input{Text: "SUB"})

	require.Equal(t, Advance, out.Status)
	assert.Contains(t, out.Reply, "replaced")
	require.Len(t, catalog.episodes, 1, "the old variant must be gone")
	assert.Equal(t, "new", catalog.episodes[0].FileID)
}

func TestDeleteSeries_SingleSeasonScope(t *testing.T) {
	animeID := primitive.NewObjectID()
	s1 := primitive.NewObjectID()
	s2 := primitive.NewObjectID()
	catalog := &fakeCatalog{
		animes: []models.Anime{{ID: animeID, Title: "Show", TitleSearchable: "show"}},
		seasons: []*models.Season{
			{ID: s1, AnimeID: animeID, SeasonNumber: 1},
			{ID: s2, AnimeID: animeID, SeasonNumber: 2},
		},
		episodes: []*models.Episode{
			{ID: primitive.NewObjectID(), SeasonID: s1, EpisodeNumber: 1},
			{ID: primitive.NewObjectID(), SeasonID: s2, EpisodeNumber: 1},
		},
	}
	r := authoringRegistry(t, catalog, &fakeNotifier{})
	ctx := context.Background()

	r.Start(ctx, 1, KindDeleteSeries, map[string]any{SeedAdminID: int64(1)})
	r.HandleInput(ctx, 1, Input{Text: "show"})
	r.HandleInput(ctx, 1, Input{Text: "yes"})

	out := r.HandleInput(ctx, 1, Input{Text: "3"})
	require.Equal(t, Retry, out.Status, "missing season cannot be picked")

	out = r.HandleInput(ctx, 1, Input{Text: "2"})
	require.Equal(t, Advance, out.Status)
	out = r.HandleInput(ctx, 1, Input{Text: "DELETE"})

	assert.Equal(t, Complete, out.Status)
	assert.Contains(t, out.Reply, "Season 2")
	assert.Len(t, catalog.animes, 1, "the series itself survives")
	require.Len(t, catalog.seasons, 1)
	assert.Equal(t, 1, catalog.seasons[0].SeasonNumber)
	require.Len(t, catalog.episodes, 1)
	assert.Equal(t, s1, catalog.episodes[0].SeasonID)
}

func TestDeleteSeries_CascadeReported(t *testing.T) {
	catalog := &fakeCatalog{animes: []models.Anime{{
		ID:              primitive.NewObjectID(),
		Title:           "Old Show",
		TitleSearchable: "old show",
	}}}
	r := authoringRegistry(t, catalog, &fakeNotifier{})
	ctx := context.Background()

	r.Start(ctx, 1, KindDeleteSeries, map[string]any{SeedAdminID: int64(1)})
	r.HandleInput(ctx, 1, Input{Text: "old show"})
	r.HandleInput(ctx, 1, Input{Text: "yes"})
	r.HandleInput(ctx, 1, Input{Text: "all"})
	out := r.HandleInput(ctx, 1, Input{Text: "DELETE"})

	assert.Equal(t, Complete, out.Status)
	assert.Contains(t, out.Reply, "1 season(s)")
	assert.Contains(t, out.Reply, "12 episode(s)")
	assert.Empty(t, catalog.animes)
}
