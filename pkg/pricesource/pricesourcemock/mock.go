package pricesourcemock

import (
	"context"
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/pricesource"
	"github.com/spreadpilot/spreadpilot/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
}

var _ pricesource.Provider = (*MockProvider)(nil)

func (m *MockProvider) GetDayAheadPrices(ctx context.Context, day time.Time) ([]types.RawPrice, error) {
	args := m.Called(ctx, day)
	if len(args) > 0 {
		if prices, ok := args.Get(0).([]types.RawPrice); ok {
			return prices, args.Error(1)
		}
		return nil, args.Error(1)
	}
	return nil, nil
}
