package model

import "time"

// DeliveryStatus tracks the outcome of a single stop after dispatch.
type DeliveryStatus string

const (
	DeliveryNone      DeliveryStatus = "none"
	DeliveryCompleted DeliveryStatus = "completed"
	DeliveryFailed    DeliveryStatus = "failed"
)

// RouteStatus is the lifecycle state of a committed route.
type RouteStatus string

const (
	RouteDraft      RouteStatus = "draft"
	RouteDispatched RouteStatus = "dispatched"
	RouteInProgress RouteStatus = "in_progress"
	RouteCompleted  RouteStatus = "completed"
)

// GeoPoint is an immutable geocoded location. ID is stable for the
// lifetime of the point (upstream place id or a generated token).
type GeoPoint struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindow is a delivery window, normalized to time.Time at the
// ingestion boundary regardless of the upstream timestamp shape.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Stop is a delivery location plus the customer/order metadata needed
// to dispatch it. OrderNumber, when present, is a secondary unique key:
// two stops sharing an order number are the same logical delivery even
// if their ids differ (re-geocoding, re-import).
type Stop struct {
	GeoPoint
	OrderNumber    string         `json:"orderNumber,omitempty"`
	CustomerName   string         `json:"customerName,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	Address        string         `json:"address,omitempty"`
	DeliveryStatus DeliveryStatus `json:"deliveryStatus,omitempty"`
	TimeWindow     *TimeWindow    `json:"timeWindow,omitempty"`
}

// HasCoordinates reports whether the stop was geocoded. Upstream
// writes loose stops with zeroed coordinates when geocoding failed.
func (s Stop) HasCoordinates() bool {
	return s.Lat != 0 && s.Lng != 0
}

// RouteMetrics is the output of one routing-provider call for an
// ordered stop sequence.
type RouteMetrics struct {
	DistanceMeters  float64  `json:"distanceMeters"`
	DurationSeconds int64    `json:"durationSeconds"`
	Polyline        []byte   `json:"polyline,omitempty"`
	OrderedStopIDs  []string `json:"orderedStopIds,omitempty"`
}

// RouteSegment is an in-progress grouping of stops forming one
// driver's route. Owned exclusively by a session until committed.
// Stop order is the delivery sequence and survives recomputation
// unless explicitly reordered.
type RouteSegment struct {
	Key             string  `json:"key"`
	Name            string  `json:"name"`
	OriginID        string  `json:"originId"`
	Stops           []Stop  `json:"stops"`
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds int64   `json:"durationSeconds"`
	// MetricsStale is true while the metrics above describe a previous
	// stop order (recomputation pending or failed).
	MetricsStale bool   `json:"metricsStale"`
	Polyline     []byte `json:"polyline,omitempty"`
	Color           string  `json:"color,omitempty"`
	Visible         bool    `json:"visible"`
}

// DriverInfo identifies the driver assigned to a committed route.
type DriverInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// CommittedRoute is a persisted, dispatched route. UnassignedStops
// are stops placed loose on the route by out-of-band actors; the
// reconciler folds them into Stops or evicts them. Version guards
// optimistic patches against concurrent external writers.
type CommittedRoute struct {
	ID              string      `json:"id"`
	Code            string      `json:"code"`
	BatchID         string      `json:"batchId"`
	Stops           []Stop      `json:"stops"`
	DistanceMeters  float64     `json:"distanceMeters"`
	DurationSeconds int64       `json:"durationSeconds"`
	Polyline        []byte      `json:"polyline,omitempty"`
	DriverID        string      `json:"driverId,omitempty"`
	Driver          *DriverInfo `json:"driver,omitempty"`
	Status          RouteStatus `json:"status"`
	UnassignedStops []Stop      `json:"unassignedStops,omitempty"`
	Version         int         `json:"version"`
}

// RoutePatch is a partial update for a committed route. Nil fields are
// left untouched by the store.
type RoutePatch struct {
	Stops           *[]Stop
	UnassignedStops *[]Stop
	DistanceMeters  *float64
	DurationSeconds *int64
	Polyline        *[]byte
	Status          *RouteStatus
	DriverID        *string
	Driver          *DriverInfo
}

// IsEmpty reports whether the patch would touch nothing.
func (p RoutePatch) IsEmpty() bool {
	return p.Stops == nil && p.UnassignedStops == nil && p.DistanceMeters == nil &&
		p.DurationSeconds == nil && p.Polyline == nil && p.Status == nil &&
		p.DriverID == nil && p.Driver == nil
}
