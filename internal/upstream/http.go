package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lastmile/internal/model"
)

// HTTPSource reads the stop source over HTTP/JSON.
type HTTPSource struct {
	baseURL string
	http    *http.Client
}

// NewHTTPSource builds a source client for the given base URL.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) GetLinkedStops(ctx context.Context, batchID string) ([]model.Stop, error) {
	var out struct {
		Stops []model.Stop `json:"stops"`
	}
	u := fmt.Sprintf("%s/v1/batches/%s/stops", s.baseURL, url.PathEscape(batchID))
	if err := s.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out.Stops, nil
}

func (s *HTTPSource) GetOrderLinkage(ctx context.Context, orderNumbers []string) (map[string]string, error) {
	if len(orderNumbers) == 0 {
		return map[string]string{}, nil
	}
	body, err := json.Marshal(map[string]any{"orderNumbers": orderNumbers})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/orders/linkage", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out struct {
		Linkage map[string]string `json:"linkage"`
	}
	if err := s.doJSON(req, &out); err != nil {
		return nil, err
	}
	if out.Linkage == nil {
		out.Linkage = map[string]string{}
	}
	return out.Linkage, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return s.doJSON(req, out)
}

func (s *HTTPSource) doJSON(req *http.Request, out any) error {
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("upstream %s: status %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
