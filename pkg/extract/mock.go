package extract

import (
	"context"

	"github.com/batteryview/batteryview/pkg/types"

	"github.com/stretchr/testify/mock"
)

// Mock implements Service for tests.
type Mock struct {
	mock.Mock
}

func (m *Mock) Validate() error {
	return m.Called().Error(0)
}

func (m *Mock) Extract(ctx context.Context, payload Payload) (types.Reading, error) {
	args := m.Called(ctx, payload)
	return args.Get(0).(types.Reading), args.Error(1)
}
