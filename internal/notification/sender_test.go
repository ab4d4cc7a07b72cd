package notification

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/models"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	calls         int
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.calls++
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       int
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls++
	return m.PublishFunc(ctx, params, optFns...)
}

// ==========================
// Test Helper Functions
// ==========================

func credentialNotification() *models.Notification {
	return &models.Notification{
		ID:            "n-1",
		Kind:          models.NotificationCredential,
		ApplicationID: "app-1",
		Category:      models.CategoryFabLabSubscription,
		OfferingRef:   "fablab-quarterly",
		Recipient:     models.Applicant{Name: "Amina", Email: "amina@example.org", Phone: "+221770000000"},
		Decision:      models.StatusApproved,
		Credential: &models.Credential{
			Key:       "K3Y12345",
			Plan:      models.PlanQuarterly,
			IssuedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			ExpiresAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestAWSSender_SendsEmailAndSMS(t *testing.T) {
	mockSES := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			assert.Equal(t, "amina@example.org", params.Destination.ToAddresses[0])
			assert.Equal(t, "admissions@example.org", *params.Source)
			assert.Contains(t, *params.Message.Body.Text.Data, "K3Y12345")
			assert.Contains(t, *params.Message.Body.Text.Data, "2024-04-01")
			return &ses.SendEmailOutput{}, nil
		},
	}
	mockSNS := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			assert.Equal(t, "+221770000000", *params.PhoneNumber)
			return &sns.PublishOutput{}, nil
		},
	}

	sender := NewAWSSender(AWSSenderConfig{EmailEnabled: true, SMSEnabled: true, FromEmail: "admissions@example.org"},
		mockSES, mockSNS, logger.NewTestLogger(t))

	require.NoError(t, sender.Send(context.Background(), credentialNotification()))
	assert.Equal(t, 1, mockSES.calls)
	assert.Equal(t, 1, mockSNS.calls)
}

func TestAWSSender_SkipsSMSWithoutPhone(t *testing.T) {
	mockSES := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			assert.Contains(t, *params.Message.Body.Text.Data, "Reason: missing prerequisites")
			return &ses.SendEmailOutput{}, nil
		},
	}
	mockSNS := &MockSNSService{}

	n := credentialNotification()
	n.Kind = models.NotificationRejection
	n.Notes = "missing prerequisites"
	n.Credential = nil
	n.Recipient.Phone = ""

	sender := NewAWSSender(AWSSenderConfig{EmailEnabled: true, SMSEnabled: true}, mockSES, mockSNS, logger.NewTestLogger(t))
	require.NoError(t, sender.Send(context.Background(), n))
	assert.Equal(t, 0, mockSNS.calls)
}

// ==========================
// Error Handling Tests
// ==========================

func TestAWSSender_TransportFailureIsRetryable(t *testing.T) {
	mockSES := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, stderrors.New("throttled")
		},
	}

	sender := NewAWSSender(AWSSenderConfig{EmailEnabled: true}, mockSES, &MockSNSService{}, logger.NewTestLogger(t))
	err := sender.Send(context.Background(), credentialNotification())

	assert.ErrorIs(t, err, errors.ErrInfrastructure)
	assert.True(t, errors.IsRetryable(err))
}

func TestAWSSender_UnknownKind(t *testing.T) {
	n := credentialNotification()
	n.Kind = "reminder"

	sender := NewAWSSender(AWSSenderConfig{EmailEnabled: true}, &MockSESService{}, &MockSNSService{}, logger.NewTestLogger(t))
	err := sender.Send(context.Background(), n)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestRenderTemplate_DropsMissingPlaceholders(t *testing.T) {
	out := renderTemplate("Hi {{name}}, key {{key}}.", map[string]string{"name": "Sam"})
	assert.Equal(t, "Hi Sam, key .", out)
}
