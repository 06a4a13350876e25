package advisor

import (
	"context"

	"github.com/batteryview/batteryview/pkg/types"

	"github.com/stretchr/testify/mock"
)

// Mock implements Service for tests.
type Mock struct {
	mock.Mock
}

func (m *Mock) HealthSummary(ctx context.Context, snap Snapshot) (string, error) {
	args := m.Called(ctx, snap)
	return args.String(0), args.Error(1)
}

func (m *Mock) DeviationAlerts(ctx context.Context, snap Snapshot) ([]string, error) {
	args := m.Called(ctx, snap)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *Mock) AlertSummary(ctx context.Context, alerts []string) (types.AlertDigest, error) {
	args := m.Called(ctx, alerts)
	return args.Get(0).(types.AlertDigest), args.Error(1)
}

func (m *Mock) Insights(ctx context.Context, req InsightsRequest) ([]types.Insight, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Insight), args.Error(1)
}

func (m *Mock) PowerRecommendation(ctx context.Context, req RecommendationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}
