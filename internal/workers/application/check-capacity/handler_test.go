// internal/workers/application/check-capacity/handler_test.go
package checkcapacity

import (
	"context"
	"encoding/json"
	"testing"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/lifecycle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CheckCapacity(ctx context.Context, offeringRef string) (lifecycle.CapacityReport, error) {
	args := m.Called(ctx, offeringRef)
	return args.Get(0).(lifecycle.CapacityReport), args.Error(1)
}

func TestHandler_ParseInput(t *testing.T) {
	_, err := parseInput(map[string]interface{}{"offeringRef": "  "})
	assert.ErrorIs(t, err, errors.ErrValidation)

	input, err := parseInput(map[string]interface{}{"offeringRef": "fablab-monthly"})
	require.NoError(t, err)
	assert.Equal(t, "fablab-monthly", input.OfferingRef)
}

func TestHandler_Execute_Consistent(t *testing.T) {
	svc := &MockService{}
	handler, err := NewHandler(HandlerOptions{Logger: logger.NewTestLogger(t), Service: svc})
	require.NoError(t, err)

	limit := int64(20)
	svc.On("CheckCapacity", mock.Anything, "fablab-monthly").Return(lifecycle.CapacityReport{
		OfferingRef: "fablab-monthly",
		Enrolled:    4,
		Recount:     4,
		Cap:         &limit,
	}, nil)

	output, err := handler.Execute(context.Background(), &Input{OfferingRef: "fablab-monthly"})
	require.NoError(t, err)

	data, err := json.Marshal(output.Variables())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"offeringRef": "fablab-monthly",
		"enrolled": 4,
		"recount": 4,
		"cap": 20,
		"drift": 0,
		"consistent": true,
		"missing": [],
		"extra": []
	}`, string(data))
}

func TestHandler_Execute_Drift(t *testing.T) {
	svc := &MockService{}
	handler, err := NewHandler(HandlerOptions{Logger: logger.NewTestLogger(t), Service: svc})
	require.NoError(t, err)

	svc.On("CheckCapacity", mock.Anything, "licence-info").Return(lifecycle.CapacityReport{
		OfferingRef: "licence-info",
		Enrolled:    3,
		Recount:     3,
		Missing:     []string{"app-7"},
		Extra:       []string{"ghost"},
	}, nil)

	output, err := handler.Execute(context.Background(), &Input{OfferingRef: "licence-info"})
	require.NoError(t, err)
	assert.Zero(t, output.Drift)
	assert.False(t, output.Consistent)
	assert.NotContains(t, output.Variables(), "cap")
	assert.Equal(t, []string{"app-7"}, output.Variables()["missing"])
}
