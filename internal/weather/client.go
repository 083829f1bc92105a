// Package weather looks up current conditions for a user's location.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smallbiznis/plantcare/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("weather",
	fx.Provide(NewClient),
)

const cacheSize = 256

var (
	ErrMissingLocation = errors.New("missing_location")
	ErrUpstream        = errors.New("weather_unavailable")
)

// Report is the subset of the current-weather payload the dashboard shows.
type Report struct {
	Location    string    `json:"location"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feels_like"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	Description string    `json:"description"`
	Units       string    `json:"units"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type upstreamResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Message string `json:"message"`
}

type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	units   string
	cache   *expirable.LRU[string, Report]
	log     *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	timeout := cfg.Weather.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ttl := cfg.Weather.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	units := strings.TrimSpace(cfg.Weather.Units)
	if units == "" {
		units = "metric"
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.Weather.BaseURL, "/"),
		apiKey:  cfg.Weather.APIKey,
		units:   units,
		cache:   expirable.NewLRU[string, Report](cacheSize, nil, ttl),
		log:     log.Named("weather"),
	}
}

// Current returns cached conditions when fresh, otherwise asks the upstream API.
func (c *Client) Current(ctx context.Context, location string) (Report, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return Report{}, ErrMissingLocation
	}
	key := strings.ToLower(location)
	if report, ok := c.cache.Get(key); ok {
		return report, nil
	}

	report, err := c.fetch(ctx, location)
	if err != nil {
		c.log.Warn("weather lookup failed", zap.String("location", location), zap.Error(err))
		return Report{}, err
	}
	c.cache.Add(key, report)
	return report, nil
}

func (c *Client) fetch(ctx context.Context, location string) (Report, error) {
	query := url.Values{}
	query.Set("q", location)
	query.Set("appid", c.apiKey)
	query.Set("units", c.units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/weather?"+query.Encode(), nil)
	if err != nil {
		return Report{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	var payload upstreamResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Report{}, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(payload.Message)
		if msg == "" {
			msg = resp.Status
		}
		return Report{}, fmt.Errorf("%w: %s", ErrUpstream, msg)
	}

	report := Report{
		Location:    payload.Name,
		Temperature: payload.Main.Temp,
		FeelsLike:   payload.Main.FeelsLike,
		Humidity:    payload.Main.Humidity,
		WindSpeed:   payload.Wind.Speed,
		Units:       c.units,
		FetchedAt:   time.Now().UTC(),
	}
	if report.Location == "" {
		report.Location = location
	}
	if len(payload.Weather) > 0 {
		report.Description = payload.Weather[0].Description
	}
	return report, nil
}
