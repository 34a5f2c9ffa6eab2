package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ShortenerConfig points at a link-monetization service with a GET api. An
// empty APIKey disables shortening entirely.
type ShortenerConfig struct {
	APIURL string `toml:"api_url"`
	APIKey string `toml:"api_key"`
}

// Shortener wraps the external link shortener. Every failure degrades to the
// original long URL; earn links must keep working when the service is down.
type Shortener struct {
	cfg    ShortenerConfig
	client *http.Client
}

func NewShortener(cfg ShortenerConfig) *Shortener {
	return &Shortener{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Shorten returns the short form of longURL, or longURL itself when the
// shortener is unconfigured or misbehaves.
func (s *Shortener) Shorten(ctx context.Context, longURL string) string {
	if s.cfg.APIKey == "" || s.cfg.APIURL == "" {
		return longURL
	}

	endpoint := fmt.Sprintf("%s?api=%s&url=%s",
		s.cfg.APIURL, url.QueryEscape(s.cfg.APIKey), url.QueryEscape(longURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return longURL
	}

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Warn("Link shortener unreachable",
			slog.String("type", "sys"),
			slog.Any("error", err))
		return longURL
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Link shortener returned non-200",
			slog.String("type", "sys"),
			slog.Int("status", resp.StatusCode))
		return longURL
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return longURL
	}

	// Most of these services answer {"status":"success","shortenedUrl":"..."},
	// some answer with the bare URL as text.
	var parsed struct {
		Status       string `json:"status"`
		ShortenedURL string `json:"shortenedUrl"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.ShortenedURL != "" {
		return parsed.ShortenedURL
	}

	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		return text
	}
	return longURL
}
