// Package tautulli lit l'historique de lecture Plex via l'API v2 de Tautulli.
package tautulli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/Rolling-Window/internal/domain"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/metrics"
	"github.com/Guilhem-Bonnet/Rolling-Window/internal/resilience"
)

// maxErrorBodySize borne la lecture d'un corps d'erreur.
const maxErrorBodySize = 64 * 1024

var ErrNotConfigured = errors.New("tautulli not configured")

type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Relances sur HTTP 429, avec backoff exponentiel depuis RetryBaseDelay.
	MaxRetries     int
	RetryBaseDelay time.Duration

	Breaker resilience.BreakerOptions
}

func DefaultOptions() Options {
	return Options{
		Timeout:        30 * time.Second,
		MaxRetries:     5,
		RetryBaseDelay: time.Second,
		Breaker:        resilience.DefaultBreakerOptions(),
	}
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger
	breaker *resilience.Breaker

	maxRetries     int
	retryBaseDelay time.Duration
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
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = def.RetryBaseDelay
	}
	return &Client{
		baseURL:        base,
		apiKey:         strings.TrimSpace(opts.APIKey),
		http:           &http.Client{Timeout: opts.Timeout},
		logger:         logger,
		breaker:        resilience.NewBreaker("tautulli", logger, opts.Breaker),
		maxRetries:     opts.MaxRetries,
		retryBaseDelay: opts.RetryBaseDelay,
	}, nil
}

// HistoryPage renvoie une page d'historique d'épisodes, plus récents d'abord.
// La page a toujours autant d'éléments que Tautulli a renvoyé de lignes.
//
// "after" est passé à la journée près, un jour plus tôt que since : le filtrage
// exact par horodatage est fait par l'appelant.
func (c *Client) HistoryPage(ctx context.Context, since time.Time, start, length int) ([]domain.PlaybackEvent, error) {
	params := url.Values{}
	params.Set("start", strconv.Itoa(start))
	params.Set("length", strconv.Itoa(length))
	params.Set("order_column", "date")
	params.Set("order_dir", "desc")
	params.Set("media_type", "episode")
	params.Set("grouping", "0")
	if !since.IsZero() {
		params.Set("after", since.UTC().AddDate(0, 0, -1).Format("2006-01-02"))
	}

	var out historyResponse
	if err := c.call(ctx, "get_history", params, &out); err != nil {
		return nil, err
	}
	if out.Response.Result != "success" {
		return nil, fmt.Errorf("get_history failed: %s", message(out.Response.Message))
	}

	// Décodage enregistrement par enregistrement : une ligne illisible est
	// écartée sans perdre le reste de la page.
	records := out.Response.Data.Data
	events := make([]domain.PlaybackEvent, 0, len(records))
	for i, raw := range records {
		var r historyRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			c.logger.Warn().Err(err).Int("index", start+i).Msg("malformed history record skipped")
			metrics.SkippedRecords.WithLabelValues("history").Inc()
			// Garde la longueur de la page pour la pagination ; WatchedAt nul,
			// l'événement tombe hors rétention.
			events = append(events, domain.PlaybackEvent{})
			continue
		}
		events = append(events, toEvent(r))
	}
	return events, nil
}

func toEvent(r historyRecord) domain.PlaybackEvent {
	ev := domain.PlaybackEvent{
		Viewer:    r.User,
		Episode:   int(r.MediaIndex),
		WatchedAt: time.Unix(r.Date, 0).UTC(),
	}
	if ev.Viewer == "" {
		ev.Viewer = r.FriendlyName
	}
	if r.GrandparentTitle != nil {
		ev.Show = strings.TrimSpace(*r.GrandparentTitle)
	}
	return ev
}

// Ping vérifie la connectivité (cmd=arnold).
func (c *Client) Ping(ctx context.Context) error {
	var out pingResponse
	if err := c.call(ctx, "arnold", nil, &out); err != nil {
		return fmt.Errorf("failed to ping tautulli: %w", err)
	}
	if out.Response.Result != "success" {
		return fmt.Errorf("tautulli ping failed: %s", message(out.Response.Message))
	}
	return nil
}

func (c *Client) call(ctx context.Context, cmd string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	params.Set("cmd", cmd)
	reqURL := c.baseURL + "/api/v2?" + params.Encode()

	return c.breaker.Do(func() error {
		resp, err := c.doWithRetry(ctx, reqURL)
		if err != nil {
			return fmt.Errorf("%s request: %w", cmd, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
			return fmt.Errorf("%s request failed with status %d: %s", cmd, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", cmd, err)
		}
		return nil
	})
}

// doWithRetry relance sur HTTP 429 (1s, 2s, 4s...) en respectant Retry-After.
func (c *Client) doWithRetry(ctx context.Context, reqURL string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		_ = resp.Body.Close()

		if attempt >= c.maxRetries {
			return nil, fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
				delay = time.Duration(secs) * time.Second
			}
		}
		c.logger.Debug().Int("attempt", attempt+1).Dur("delay", delay).Msg("tautulli rate limited, backing off")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func message(m *string) string {
	if m == nil || *m == "" {
		return "unknown error"
	}
	return *m
}
