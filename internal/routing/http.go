package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"lastmile/internal/metrics"
	"lastmile/internal/model"
)

// Config holds provider connection settings.
type Config struct {
	BaseURL           string        `yaml:"baseUrl"`
	APIKey            string        `yaml:"apiKey"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
}

// Client talks HTTP/JSON to the routing provider. Requests are rate
// limited client-side and retried on transient failures.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient builds a provider client from config.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log.With().Str("component", "routing").Logger(),
	}
}

type routeRequest struct {
	Origin model.GeoPoint   `json:"origin"`
	Stops  []model.GeoPoint `json:"stops"`
}

type routeResponse struct {
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds int64   `json:"durationSeconds"`
	Polyline        string  `json:"polyline"`
	Stops           []struct {
		ID string `json:"id"`
	} `json:"stops"`
}

// Resolve implements Resolver.
func (c *Client) Resolve(ctx context.Context, origin model.GeoPoint, stops []model.Stop) (model.RouteMetrics, error) {
	if len(stops) == 0 {
		metrics.ResolveCalls.WithLabelValues("empty").Inc()
		return model.RouteMetrics{}, nil
	}
	points := make([]model.GeoPoint, len(stops))
	for i, s := range stops {
		points[i] = s.GeoPoint
	}
	body, err := json.Marshal(routeRequest{Origin: origin, Stops: points})
	if err != nil {
		return model.RouteMetrics{}, err
	}

	start := time.Now()
	var out routeResponse
	err = c.postJSON(ctx, c.baseURL+"/v1/route", body, &out)
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ResolveCalls.WithLabelValues("error").Inc()
		return model.RouteMetrics{}, err
	}
	metrics.ResolveCalls.WithLabelValues("ok").Inc()

	m := model.RouteMetrics{
		DistanceMeters:  out.DistanceMeters,
		DurationSeconds: out.DurationSeconds,
		Polyline:        []byte(out.Polyline),
	}
	for _, s := range out.Stops {
		m.OrderedStopIDs = append(m.OrderedStopIDs, s.ID)
	}
	return m, nil
}

// postJSON sends the payload with retry and decodes the response,
// mapping failures onto the engine's provider error kinds.
func (c *Client) postJSON(ctx context.Context, url string, body []byte, out any) error {
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", c.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return mapProviderError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &model.ProviderRejectedError{Reason: "malformed response: " + err.Error()}
	}
	return nil
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// doWithRetry retries transient failures (429/5xx, network errors)
// with exponential backoff while respecting context cancellation.
func (c *Client) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	const maxAttempts = 4
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := makeReq()
		if err != nil {
			return nil, err
		}
		resp, err := c.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case http.StatusTooManyRequests, 500, 502, 503, 504:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}
		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("provider call failed, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// mapProviderError folds transport-level failures into the engine's
// error taxonomy: 4xx become rejections, everything else means the
// provider is unavailable.
func mapProviderError(err error) error {
	var he *httpStatusError
	if errors.As(err, &he) && he.Code >= 400 && he.Code < 500 && he.Code != http.StatusTooManyRequests {
		return &model.ProviderRejectedError{Reason: he.Body, Status: he.Code}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrProviderUnavailable, err)
}
