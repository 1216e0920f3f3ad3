// Package sonarr implémente le catalogue d'épisodes sur l'API v3 de Sonarr.
package sonarr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/resilience"
)

const maxErrorBodySize = 64 * 1024

var ErrNotConfigured = errors.New("sonarr not configured")

type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Débit maximal vers Sonarr (requêtes/s) et rafale autorisée.
	RequestsPerSecond float64
	Burst             int

	Breaker resilience.BreakerOptions
}

func DefaultOptions() Options {
	return Options{
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             1,
		Breaker:           resilience.DefaultBreakerOptions(),
	}
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

func New(logger zerolog.Logger, opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" || strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	return &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(opts.APIKey),
		http:    &http.Client{Timeout: opts.Timeout},
		logger:  logger,
		limiter: rate.NewLimiter(limit, opts.Burst),
		breaker: resilience.NewBreaker("sonarr", logger, opts.Breaker),
	}, nil
}

type series struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type episode struct {
	ID            int64  `json:"id"`
	SeriesID      int64  `json:"seriesId"`
	SeasonNumber  int    `json:"seasonNumber"`
	EpisodeNumber *int   `json:"episodeNumber"`
	AirDateUTC    string `json:"airDateUtc"`
	HasFile       bool   `json:"hasFile"`
	Monitored     bool   `json:"monitored"`
}

type monitorRequest struct {
	EpisodeIDs []int64 `json:"episodeIds"`
	Monitored  bool    `json:"monitored"`
}

// ListShows renvoie titre -> id pour toutes les séries.
func (c *Client) ListShows(ctx context.Context) (map[string]int64, error) {
	var out []series
	if err := c.do(ctx, http.MethodGet, "/api/v3/series", nil, &out); err != nil {
		return nil, err
	}
	shows := make(map[string]int64, len(out))
	for _, s := range out {
		if s.Title == "" {
			continue
		}
		shows[s.Title] = s.ID
	}
	return shows, nil
}

func (c *Client) ListEpisodes(ctx context.Context, showID int64) ([]domain.CatalogEpisode, error) {
	var out []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v3/episode?seriesId="+strconv.FormatInt(showID, 10), nil, &out); err != nil {
		return nil, err
	}
	eps := make([]domain.CatalogEpisode, 0, len(out))
	for i, raw := range out {
		var e episode
		if err := json.Unmarshal(raw, &e); err != nil {
			// Number=0 : le planificateur l'ignore et le compte dans Skipped.
			c.logger.Warn().Err(err).Int64("series_id", showID).Int("index", i).Msg("malformed episode skipped")
			eps = append(eps, domain.CatalogEpisode{ShowID: showID})
			continue
		}
		eps = append(eps, toCatalogEpisode(e))
	}
	return eps, nil
}

// toCatalogEpisode garde Number=0 pour un épisode sans numéro (ignoré par le planificateur)
// et AirDate=nil pour une date absente ou illisible.
func toCatalogEpisode(e episode) domain.CatalogEpisode {
	ep := domain.CatalogEpisode{
		ID:        e.ID,
		ShowID:    e.SeriesID,
		HasFile:   e.HasFile,
		Monitored: e.Monitored,
	}
	if e.EpisodeNumber != nil {
		ep.Number = *e.EpisodeNumber
	}
	if e.AirDateUTC != "" {
		if t, err := time.Parse(time.RFC3339, e.AirDateUTC); err == nil {
			t = t.UTC()
			ep.AirDate = &t
		}
	}
	return ep
}

func (c *Client) SetMonitored(ctx context.Context, episodeIDs []int64, monitored bool) error {
	if len(episodeIDs) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPut, "/api/v3/episode/monitor", monitorRequest{EpisodeIDs: episodeIDs, Monitored: monitored}, nil)
}

// Ping vérifie la connectivité via /api/v3/system/status.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v3/system/status", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	return c.breaker.Do(func() error {
		var reader io.Reader = http.NoBody
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("sonarr %s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
			return fmt.Errorf("sonarr %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("sonarr %s %s: decode: %w", method, path, err)
		}
		return nil
	})
}
