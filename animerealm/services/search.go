package services

import (
	"context"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sahilm/fuzzy"

	"github.com/animerealm/animerealm/animerealm/database/models"
	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

const searchCacheSize = 256

// Normalize lowercases s and strips everything but letters, digits and single
// spaces. Stored searchable fields and incoming queries both pass through
// this, so matching is insensitive to case and punctuation.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// SearchResult pairs a matched series with its match score.
type SearchResult struct {
	Anime models.Anime
	Score int
}

// searchCorpus adapts the catalog to the fuzzy matcher. Each series
// contributes its normalized title and each normalized alias as separate
// match targets pointing back at the same index.
type searchCorpus struct {
	targets []string
	owner   []int
}

func (c *searchCorpus) String(i int) string { return c.targets[i] }
func (c *searchCorpus) Len() int            { return len(c.targets) }

// Search finds catalog entries by approximate title or alias match. The full
// catalog snapshot is cached per normalized query; any authoring change
// invalidates the whole cache.
type Search struct {
	animes repositories.AnimeRepository
	cache  *lru.Cache
}

func NewSearch(animes repositories.AnimeRepository) (*Search, error) {
	cache, err := lru.New(searchCacheSize)
	if err != nil {
		return nil, err
	}
	return &Search{animes: animes, cache: cache}, nil
}

// Query returns matches for q ordered by descending score, capped at limit.
func (s *Search) Query(ctx context.Context, q string, limit int) ([]SearchResult, error) {
	norm := Normalize(q)
	if norm == "" {
		return nil, nil
	}

	if cached, ok := s.cache.Get(norm); ok {
		return truncate(cached.([]SearchResult), limit), nil
	}

	all, err := s.animes.AllAnimes(ctx)
	if err != nil {
		return nil, err
	}

	corpus := &searchCorpus{}
	for i, a := range all {
		corpus.targets = append(corpus.targets, a.TitleSearchable)
		corpus.owner = append(corpus.owner, i)
		for _, alias := range a.AliasesSearchable {
			corpus.targets = append(corpus.targets, alias)
			corpus.owner = append(corpus.owner, i)
		}
	}

	matches := fuzzy.FindFrom(norm, corpus)

	// An alias and the title of the same series can both match; keep only the
	// best score per series.
	best := make(map[int]int)
	for _, m := range matches {
		idx := corpus.owner[m.Index]
		if cur, ok := best[idx]; !ok || m.Score > cur {
			best[idx] = m.Score
		}
	}

	results := make([]SearchResult, 0, len(best))
	for _, m := range matches {
		idx := corpus.owner[m.Index]
		score, ok := best[idx]
		if !ok || score != m.Score {
			continue
		}
		delete(best, idx)
		results = append(results, SearchResult{Anime: all[idx], Score: m.Score})
	}

	s.cache.Add(norm, results)
	return truncate(results, limit), nil
}

// Invalidate drops all cached results. Called after any authoring mutation.
func (s *Search) Invalidate() {
	s.cache.Purge()
}

func truncate(results []SearchResult, limit int) []SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
