package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/toricodesthings/resume-analysis-service/internal/extract"
)

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, path string) extract.Result {
	args := m.Called(ctx, path)

	return args.Get(0).(extract.Result)
}

func (m *MockExtractor) SupportedExtensions() []string {
	args := m.Called()

	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).([]string)
}

func (m *MockExtractor) Name() string {
	args := m.Called()

	return args.String(0)
}
