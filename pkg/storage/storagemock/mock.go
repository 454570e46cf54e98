package storagemock

import (
	"context"

	"github.com/spreadpilot/spreadpilot/pkg/storage"
	"github.com/spreadpilot/spreadpilot/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetSettings(ctx context.Context) (types.Settings, int, error) {
	args := m.Called(ctx)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.Settings), args.Int(1), args.Error(2)
	}
	return types.Settings{}, 0, nil
}

func (m *MockDatabase) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	args := m.Called(ctx, settings, version)
	return args.Error(0)
}

func (m *MockDatabase) UpsertPriceSnapshot(ctx context.Context, day string, prices []types.RawPrice) error {
	args := m.Called(ctx, day, prices)
	return args.Error(0)
}

func (m *MockDatabase) GetPriceSnapshot(ctx context.Context, day string) ([]types.RawPrice, error) {
	args := m.Called(ctx, day)
	if len(args) > 0 {
		if prices, ok := args.Get(0).([]types.RawPrice); ok {
			return prices, args.Error(1)
		}
		return nil, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) PrunePriceSnapshots(ctx context.Context, beforeDay string) (int, error) {
	args := m.Called(ctx, beforeDay)
	if len(args) > 0 {
		return args.Int(0), args.Error(1)
	}
	return 0, nil
}

func (m *MockDatabase) SetLatestEvaluation(ctx context.Context, result types.EvaluationResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockDatabase) GetLatestEvaluation(ctx context.Context) (types.EvaluationResult, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).(types.EvaluationResult), args.Error(1)
	}
	return types.EvaluationResult{}, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
