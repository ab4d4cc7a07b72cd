// internal/notification/sender.go
package notification

import (
	"context"
	"fmt"
	"strings"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Sender delivers a single notification.
type Sender interface {
	Send(ctx context.Context, n *models.Notification) error
}

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type AWSSenderConfig struct {
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
}

// AWSSender sends email through SES and, when the applicant left a phone number, SMS through SNS.
type AWSSender struct {
	config    AWSSenderConfig
	sesClient SESService
	snsClient SNSService
	templates map[models.NotificationKind]template
	logger    logger.Logger
}

type template struct {
	subject string
	body    string
}

func NewAWSSender(cfg AWSSenderConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *AWSSender {
	return &AWSSender{
		config:    cfg,
		sesClient: sesClient,
		snsClient: snsClient,
		templates: defaultTemplates(),
		logger:    log.WithFields(map[string]interface{}{"component": "aws-sender"}),
	}
}

func (s *AWSSender) Send(ctx context.Context, n *models.Notification) error {
	tmpl, ok := s.templates[n.Kind]
	if !ok {
		return errors.NewValidationError(fmt.Sprintf("no template for notification kind %q", n.Kind))
	}

	data := templateData(n)
	subject := renderTemplate(tmpl.subject, data)
	body := renderTemplate(tmpl.body, data)

	delivered := false
	if s.config.EmailEnabled && n.Recipient.Email != "" {
		if err := s.sendEmail(ctx, n.Recipient.Email, subject, body); err != nil {
			return errors.NewInfrastructureError("notification.ses", err)
		}
		delivered = true
	}

	if s.config.SMSEnabled && n.Recipient.Phone != "" {
		if err := s.sendSMS(ctx, n.Recipient.Phone, body); err != nil {
			return errors.NewInfrastructureError("notification.sns", err)
		}
		delivered = true
	}

	if !delivered {
		s.logger.Warn("notification has no enabled channel", map[string]interface{}{
			"notificationId": n.ID,
			"kind":           string(n.Kind),
			"applicationId":  n.ApplicationID,
		})
	}
	return nil
}

func (s *AWSSender) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := s.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.config.FromEmail),
	})
	return err
}

func (s *AWSSender) sendSMS(ctx context.Context, to, message string) error {
	_, err := s.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
}

// Wording is owned by the communications team; these are delivery placeholders.
func defaultTemplates() map[models.NotificationKind]template {
	return map[models.NotificationKind]template{
		models.NotificationApproval: {
			subject: "Your application has been approved",
			body:    "Hello {{name}}, your application {{applicationId}} for {{offeringRef}} has been approved.",
		},
		models.NotificationRejection: {
			subject: "Your application has been reviewed",
			body:    "Hello {{name}}, your application {{applicationId}} for {{offeringRef}} was not accepted. Reason: {{notes}}",
		},
		models.NotificationCredential: {
			subject: "Your access key",
			body:    "Hello {{name}}, your access key is {{key}}. It is valid until {{expiresAt}}.",
		},
	}
}

func templateData(n *models.Notification) map[string]string {
	data := map[string]string{
		"name":          n.Recipient.Name,
		"applicationId": n.ApplicationID,
		"offeringRef":   n.OfferingRef,
		"decision":      string(n.Decision),
		"notes":         n.Notes,
	}
	if n.Credential != nil {
		data["key"] = n.Credential.Key
		data["expiresAt"] = n.Credential.ExpiresAt.Format("2006-01-02")
	}
	return data
}

// renderTemplate substitutes {{placeholders}} and drops any left without a value.
func renderTemplate(tmpl string, data map[string]string) string {
	result := tmpl
	for k, v := range data {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}
