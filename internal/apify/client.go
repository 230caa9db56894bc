// Package apify implements the client for the external place-search crawl
// service. The service runs an opaque long-lived actor job per search; this
// client exposes start, accumulated-item listing, abort and account-limit
// operations against its REST API.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/growthsignal/leadscout/internal/leadgen"
)

// ErrMissingToken is returned when the client is constructed without the
// crawl-service access token. This is fatal: no run can proceed without it.
var ErrMissingToken = errors.New("crawl service token is not set")

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 32 << 20
)

// Config carries the connection parameters for the crawl service.
type Config struct {
	BaseURL  string
	ActorID  string
	Token    string
	Language string
	Timeout  time.Duration
	Client   *http.Client
}

// Client talks to the crawl-service REST API. It implements
// leadgen.CrawlService and leadgen.CreditSource.
type Client struct {
	baseURL  string
	actorID  string
	token    string
	language string
	http     *http.Client
}

// New constructs a Client, failing when the token is absent.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	httpClient := cfg.Client
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		actorID:  cfg.ActorID,
		token:    cfg.Token,
		language: language,
		http:     httpClient,
	}, nil
}

// actorRunInput is the job configuration submitted to the place-search
// actor. Reviews, images and web-result augmentation stay disabled and
// automatic zoom-out is forbidden so a run can never expand beyond the
// immediate target area.
type actorRunInput struct {
	SearchStringsArray        []string `json:"searchStringsArray"`
	MaxCrawledPlacesPerSearch int      `json:"maxCrawledPlacesPerSearch"`
	Language                  string   `json:"language"`
	CountryCode               string   `json:"countryCode,omitempty"`
	IncludeWebResults         bool     `json:"includeWebResults"`
	MaxReviews                int      `json:"maxReviews"`
	MaxImages                 int      `json:"maxImages"`
	MaxAutomaticZoomOut       int      `json:"maxAutomaticZoomOut"`
}

type runEnvelope struct {
	Data struct {
		ID               string `json:"id"`
		DefaultDatasetID string `json:"defaultDatasetId"`
		Status           string `json:"status"`
	} `json:"data"`
}

// StartCrawl submits a non-blocking actor run and returns its handle.
func (c *Client) StartCrawl(ctx context.Context, req leadgen.CrawlRequest) (leadgen.CrawlJob, error) {
	input := actorRunInput{
		SearchStringsArray:        req.SearchStrings,
		MaxCrawledPlacesPerSearch: req.MaxPlacesPerSearch,
		Language:                  c.language,
		CountryCode:               strings.ToLower(req.CountryCode),
	}
	if req.Language != "" {
		input.Language = req.Language
	}
	body, err := json.Marshal(input)
	if err != nil {
		return leadgen.CrawlJob{}, fmt.Errorf("marshal run input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/runs?token=%s",
		c.baseURL, url.PathEscape(c.actorID), url.QueryEscape(c.token))
	payload, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return leadgen.CrawlJob{}, fmt.Errorf("start crawl: %w", err)
	}

	var envelope runEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return leadgen.CrawlJob{}, fmt.Errorf("start crawl: decode response: %w", err)
	}
	if envelope.Data.ID == "" || envelope.Data.DefaultDatasetID == "" {
		return leadgen.CrawlJob{}, errors.New("start crawl: response missing run or dataset id")
	}
	return leadgen.CrawlJob{
		ID:        envelope.Data.ID,
		DatasetID: envelope.Data.DefaultDatasetID,
	}, nil
}

// ListItems fetches the full accumulated item snapshot for a dataset. The
// snapshot grows monotonically while the job runs.
func (c *Client) ListItems(ctx context.Context, datasetID string) ([]leadgen.RawItem, error) {
	endpoint := fmt.Sprintf("%s/v2/datasets/%s/items?token=%s&clean=true&format=json",
		c.baseURL, url.PathEscape(datasetID), url.QueryEscape(c.token))
	payload, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	var items []leadgen.RawItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("list items: decode response: %w", err)
	}
	return items, nil
}

// Abort requests termination of a running job. The operation is idempotent
// from the caller's perspective; a job that already finished aborts cleanly.
func (c *Client) Abort(ctx context.Context, runID string) error {
	endpoint := fmt.Sprintf("%s/v2/actor-runs/%s/abort?token=%s",
		c.baseURL, url.PathEscape(runID), url.QueryEscape(c.token))
	if _, err := c.do(ctx, http.MethodPost, endpoint, nil); err != nil {
		return fmt.Errorf("abort run %s: %w", runID, err)
	}
	return nil
}

type limitsEnvelope struct {
	Data struct {
		Current struct {
			MonthlyUsageUSD float64 `json:"monthlyUsageUsd"`
		} `json:"current"`
		Limits struct {
			MaxMonthlyUsageUSD float64 `json:"maxMonthlyUsageUsd"`
		} `json:"limits"`
	} `json:"data"`
}

// RemainingCredits reports the unspent monthly USD allowance on the account.
func (c *Client) RemainingCredits(ctx context.Context) (float64, error) {
	endpoint := fmt.Sprintf("%s/v2/users/me/limits?token=%s", c.baseURL, url.QueryEscape(c.token))
	payload, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("account limits: %w", err)
	}

	var envelope limitsEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return 0, fmt.Errorf("account limits: decode response: %w", err)
	}
	remaining := envelope.Data.Limits.MaxMonthlyUsageUSD - envelope.Data.Current.MonthlyUsageUSD
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(payload, 256))
	}
	return payload, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
