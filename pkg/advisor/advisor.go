// Package advisor exposes the LLM-backed advisory capabilities consumed by
// the dashboard: health summaries, deviation alerts, alert digests,
// forward-looking insights, and power recommendations. Each capability is
// independent; a failure in one must not block the others.
package advisor

import (
	"context"

	"github.com/batteryview/batteryview/pkg/types"
)

// Snapshot is the reading-like payload sent with health and alert requests.
// Cell-voltage fields stay nullable end to end: the model is instructed to
// treat null (or zero) cell voltages as missing sensor data, never as a real
// imbalance.
type Snapshot struct {
	BatteryID          string   `json:"batteryId"`
	SOC                float64  `json:"soc"`
	Voltage            float64  `json:"voltage"`
	Current            float64  `json:"current"`
	MaxCellVoltage     *float64 `json:"maxCellVoltage"`
	MinCellVoltage     *float64 `json:"minCellVoltage"`
	AverageCellVoltage *float64 `json:"averageCellVoltage"`
	CycleCount         float64  `json:"cycleCount"`
}

// InsightsRequest asks for forward-looking dashboard insights.
type InsightsRequest struct {
	SOC      float64 `json:"soc"`
	Power    float64 `json:"power"`
	Location string  `json:"location"`
}

// RecommendationRequest asks for a power usage recommendation.
type RecommendationRequest struct {
	SOC      float64 `json:"soc"`
	Power    float64 `json:"power"`
	Location string  `json:"location"`
}

// Service defines the interface for the advisory collaborator.
type Service interface {
	// HealthSummary returns a concise summary of the battery's health.
	HealthSummary(ctx context.Context, snap Snapshot) (string, error)

	// DeviationAlerts returns alerts for significant data deviations. An
	// empty list means no issues.
	DeviationAlerts(ctx context.Context, snap Snapshot) ([]string, error)

	// AlertSummary condenses multiple alerts into a summary and a
	// recommendation.
	AlertSummary(ctx context.Context, alerts []string) (types.AlertDigest, error)

	// Insights generates forward-looking insights for fresh data.
	Insights(ctx context.Context, req InsightsRequest) ([]types.Insight, error)

	// PowerRecommendation returns usage advice based on the current state of
	// charge and power draw.
	PowerRecommendation(ctx context.Context, req RecommendationRequest) (string, error)
}
