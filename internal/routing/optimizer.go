package routing

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"lastmile/internal/model"
)

// OptimizerClient calls the external sequence-optimization service.
// It shares the provider client's transport, retry, and rate limiting.
type OptimizerClient struct {
	*Client
}

// NewOptimizerClient builds an optimizer client from config.
func NewOptimizerClient(cfg Config, log zerolog.Logger) *OptimizerClient {
	c := NewClient(cfg, log)
	c.log = log.With().Str("component", "optimizer").Logger()
	return &OptimizerClient{Client: c}
}

type optimizeRequest struct {
	Origin            model.GeoPoint   `json:"origin"`
	DeliveryLocations []model.GeoPoint `json:"deliveryLocations"`
}

type optimizeResponse struct {
	OptimizedStops []struct {
		ID string `json:"id"`
	} `json:"optimizedStops"`
}

// OptimizeOrder implements Optimizer. The returned ids are the
// service's suggested visiting order; the caller applies them.
func (c *OptimizerClient) OptimizeOrder(ctx context.Context, origin model.GeoPoint, stops []model.Stop) ([]string, error) {
	if len(stops) == 0 {
		return nil, nil
	}
	points := make([]model.GeoPoint, len(stops))
	for i, s := range stops {
		points[i] = s.GeoPoint
	}
	body, err := json.Marshal(optimizeRequest{Origin: origin, DeliveryLocations: points})
	if err != nil {
		return nil, err
	}
	var out optimizeResponse
	if err := c.postJSON(ctx, c.baseURL+"/v1/optimize", body, &out); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.OptimizedStops))
	for _, s := range out.OptimizedStops {
		ids = append(ids, s.ID)
	}
	return ids, nil
}
