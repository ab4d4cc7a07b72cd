// internal/workers/application/resend-notification/handler_test.go
package resendnotification

import (
	"context"
	"testing"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ResendNotification(ctx context.Context, id string, kind models.NotificationKind, actor string) error {
	return m.Called(ctx, id, kind, actor).Error(0)
}

func TestHandler_ParseInput(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]interface{}
		want    *Input
		wantErr bool
	}{
		{
			name: "credential resend",
			vars: map[string]interface{}{"applicationId": "app-1", "kind": "credential", "actor": "support"},
			want: &Input{ApplicationID: "app-1", Kind: models.NotificationCredential, Actor: "support"},
		},
		{
			name:    "kind required",
			vars:    map[string]interface{}{"applicationId": "app-1"},
			wantErr: true,
		},
		{
			name:    "id required",
			vars:    map[string]interface{}{"kind": "approval"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := parseInput(tt.vars)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, input)
		})
	}
}

func TestHandler_Execute(t *testing.T) {
	svc := &MockService{}
	handler, err := NewHandler(HandlerOptions{Logger: logger.NewTestLogger(t), Service: svc})
	require.NoError(t, err)

	svc.On("ResendNotification", mock.Anything, "app-1", models.NotificationApproval, "support").Return(nil)
	svc.On("ResendNotification", mock.Anything, "app-1", models.NotificationRejection, "support").
		Return(errors.NewInvalidTransitionError("app-1", "approved", "notify:rejection"))
	svc.On("ResendNotification", mock.Anything, "app-1", models.NotificationKind("reminder"), "support").
		Return(errors.NewValidationError("kind: must be one of approval, rejection, credential"))

	output, err := handler.Execute(context.Background(), &Input{ApplicationID: "app-1", Kind: models.NotificationApproval, Actor: "support"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"applicationId":      "app-1",
		"notificationKind":   "approval",
		"notificationQueued": true,
	}, output.Variables())

	_, err = handler.Execute(context.Background(), &Input{ApplicationID: "app-1", Kind: models.NotificationRejection, Actor: "support"})
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)

	_, err = handler.Execute(context.Background(), &Input{ApplicationID: "app-1", Kind: "reminder", Actor: "support"})
	assert.ErrorIs(t, err, errors.ErrValidation)

	svc.AssertExpectations(t)
}
