// internal/workers/application/submit-application/handler_test.go
package submitapplication

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"admissions-engine/internal/common/camunda"
	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Service Implementation
// ==========================

type MockService struct {
	mock.Mock
}

func (m *MockService) Submit(ctx context.Context, sub *models.Submission) (*models.ApplicationRecord, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ApplicationRecord), args.Error(1)
}

// ==========================
// Test Helpers
// ==========================

func createMockJob(key int64, variablesJSON string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "admission-process",
		ElementId:          "Activity_SubmitApplication",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            3,
		Variables:          variablesJSON,
	}}
}

func createTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()
	handler, err := NewHandler(HandlerOptions{
		CustomConfig: &camunda.JobConfig{Enabled: true, MaxJobsActive: 10, Timeout: 15 * time.Second},
		Logger:       logger.NewTestLogger(t),
		Service:      svc,
	})
	require.NoError(t, err)
	return handler
}

// ==========================
// Handler Tests
// ==========================

func TestHandler_NewHandler_RequiresService(t *testing.T) {
	_, err := NewHandler(HandlerOptions{})
	assert.ErrorContains(t, err, "service is required")

	handler, err := NewHandler(HandlerOptions{Service: &MockService{}})
	require.NoError(t, err)
	assert.Equal(t, TaskType, handler.GetTaskType())
	assert.Equal(t, 10, handler.config.MaxJobsActive)
}

func TestHandler_ParseInput(t *testing.T) {
	job := createMockJob(1, `{
		"submission": {
			"category": "fablab_subscription",
			"applicant": {"name": "Fatou Sow", "email": "fatou@example.org", "phone": "+221 77 000 00 00"},
			"offeringRef": "fablab-quarterly",
			"plan": "quarterly",
			"paymentProof": "receipt-0099"
		}
	}`)
	vars, err := job.GetVariablesAsMap()
	require.NoError(t, err)

	input, err := parseInput(vars)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryFabLabSubscription, input.Submission.Category)
	assert.Equal(t, "Fatou Sow", input.Submission.Applicant.Name)
	assert.Equal(t, "+221 77 000 00 00", input.Submission.Applicant.Phone)
	assert.Equal(t, "quarterly", input.Submission.Plan)
	assert.Equal(t, "receipt-0099", input.Submission.PaymentProof)
}

func TestHandler_ParseInput_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing submission": `{"applicationId": "x"}`,
		"wrong shape":        `{"submission": "university"}`,
		"documents not list": `{"submission": {"category": "university", "documents": {"name": "cv"}}}`,
	}

	for name, variables := range tests {
		t.Run(name, func(t *testing.T) {
			job := createMockJob(2, variables)
			vars, err := job.GetVariablesAsMap()
			require.NoError(t, err)

			_, err = parseInput(vars)
			assert.ErrorIs(t, err, errors.ErrValidation)
		})
	}
}

func TestHandler_Execute(t *testing.T) {
	svc := &MockService{}
	handler := createTestHandler(t, svc)

	sub := models.Submission{
		Category:    models.CategoryUniversity,
		Applicant:   models.Applicant{Name: "Amina Diallo", Email: "amina@example.org"},
		OfferingRef: "licence-informatique",
		Documents:   []models.Document{{Name: "transcript", Kind: "pdf"}},
	}
	createdAt := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	svc.On("Submit", mock.Anything, &sub).Return(&models.ApplicationRecord{
		ID:           "app-1",
		Category:     models.CategoryUniversity,
		OfferingRef:  "licence-informatique",
		Status:       models.StatusPending,
		PaymentState: models.PaymentUnpaid,
		CreatedAt:    createdAt,
	}, nil)

	output, err := handler.Execute(context.Background(), &Input{Submission: sub})
	require.NoError(t, err)

	vars := output.Variables()
	assert.Equal(t, "app-1", vars["applicationId"])
	assert.Equal(t, "pending", vars["applicationStatus"])
	assert.Equal(t, "unpaid", vars["paymentState"])
	assert.Equal(t, "2024-03-04T10:00:00Z", vars["submittedAt"])
	assert.NotContains(t, vars, "plan")
	svc.AssertExpectations(t)
}

func TestHandler_Execute_ValidationErrorIsThrown(t *testing.T) {
	svc := &MockService{}
	handler := createTestHandler(t, svc)
	svc.On("Submit", mock.Anything, mock.Anything).
		Return(nil, errors.NewValidationError("applicant.email: Does not match format 'email'"))

	_, err := handler.Execute(context.Background(), &Input{})
	require.Error(t, err)

	bpmnErr := errors.ConvertToBPMNError(errors.Normalize(err))
	assert.Equal(t, "VALIDATION_ERROR", bpmnErr.Code)
	assert.Contains(t, bpmnErr.Details, "applicant.email")
	assert.False(t, bpmnErr.Retryable)
}

func TestOutput_VariablesRoundTrip(t *testing.T) {
	output := &Output{
		ApplicationID: "app-9",
		Status:        "pending",
		PaymentState:  "submitted",
		Plan:          "workshop",
		SubmittedAt:   time.Date(2024, 12, 28, 9, 30, 0, 0, time.UTC),
	}

	data, err := json.Marshal(output.Variables())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"applicationId": "app-9",
		"applicationStatus": "pending",
		"paymentState": "submitted",
		"plan": "workshop",
		"submittedAt": "2024-12-28T09:30:00Z"
	}`, string(data))
}
