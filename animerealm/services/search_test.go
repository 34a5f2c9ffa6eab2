package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animerealm/animerealm/animerealm/database/models"
	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Attack on Titan", "attack on titan"},
		{"  Re:ZERO -Starting Life-  ", "re zero starting life"},
		{"STEINS;GATE", "steins gate"},
		{"!!!", ""},
		{"K-On!!", "k on"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

type fakeCatalog struct {
	repositories.AnimeRepository

	animes []models.Anime
	reads  int
}

func (f *fakeCatalog) AllAnimes(context.Context) ([]models.Anime, error) {
	f.reads++
	return f.animes, nil
}

func catalogWith(titles ...string) *fakeCatalog {
	f := &fakeCatalog{}
	for _, title := range titles {
		f.animes = append(f.animes, models.Anime{
			Title:           title,
			TitleSearchable: Normalize(title),
		})
	}
	return f
}

func TestSearch_FindsApproximateTitles(t *testing.T) {
	catalog := catalogWith("Attack on Titan", "Death Note", "One Piece")
	s, err := NewSearch(catalog)
	require.NoError(t, err)

	results, err := s.Query(context.Background(), "attack titan", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Attack on Titan", results[0].Anime.Title)
}

func TestSearch_MatchesAliases(t *testing.T) {
	catalog := catalogWith("Attack on Titan")
	catalog.animes[0].Aliases = []string{"Shingeki no Kyojin"}
	catalog.animes[0].AliasesSearchable = []string{Normalize("Shingeki no Kyojin")}
	s, err := NewSearch(catalog)
	require.NoError(t, err)

	results, err := s.Query(context.Background(), "shingeki", 5)
	require.NoError(t, err)
	require.Len(t, results, 1, "alias and title hits collapse to one result")
	assert.Equal(t, "Attack on Titan", results[0].Anime.Title)
}

func TestSearch_CachesUntilInvalidated(t *testing.T) {
	catalog := catalogWith("Death Note")
	s, err := NewSearch(catalog)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Query(ctx, "death note", 5)
	require.NoError(t, err)
	_, err = s.Query(ctx, "Death Note!", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.reads, "same normalized query hits the cache")

	s.Invalidate()
	_, err = s.Query(ctx, "death note", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.reads)
}

func TestSearch_EmptyQueryReturnsNothing(t *testing.T) {
	s, err := NewSearch(catalogWith("Death Note"))
	require.NoError(t, err)

	results, err := s.Query(context.Background(), "???", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
