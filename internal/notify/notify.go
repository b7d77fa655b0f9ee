// Package notify sends best-effort notifications for expense report
// activity: an email per created report, plus an SMS alert when the
// amount crosses the configured threshold. Send failures are logged
// and never surfaced to the command pipeline.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"crm-assistant/internal/common/config"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/models"
)

// Interfaces for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Notifier struct {
	config config.NotificationConfig
	ses    SESService
	sns    SNSService
	logger logger.Logger
}

func New(cfg config.NotificationConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		config: cfg,
		ses:    sesClient,
		sns:    snsClient,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

// ExpenseReportCreated fans out the configured channels for a newly
// created report. Safe to call on a nil notifier.
func (n *Notifier) ExpenseReportCreated(ctx context.Context, report *models.ExpenseReport) {
	if n == nil || report == nil {
		return
	}

	if n.config.Email.Enabled && n.ses != nil {
		if err := n.sendEmail(ctx, report); err != nil {
			n.logger.Error("expense report email failed", map[string]interface{}{
				"reportId": report.ID,
				"error":    err.Error(),
			})
		}
	}

	if n.config.SMS.Enabled && n.sns != nil && report.Amount >= n.config.SMS.AmountThreshold {
		if err := n.sendSMS(ctx, report); err != nil {
			n.logger.Error("expense report SMS failed", map[string]interface{}{
				"reportId": report.ID,
				"error":    err.Error(),
			})
		}
	}
}

func (n *Notifier) sendEmail(ctx context.Context, report *models.ExpenseReport) error {
	subject := fmt.Sprintf("Expense report #%d created: %s", report.Number, report.Title)
	body := fmt.Sprintf(
		"Expense report #%d (%s) was created by %s for $%.2f, dated %s.",
		report.Number, report.Title, report.Submitter,
		report.Amount, report.ReportDate.Format("2006-01-02"),
	)

	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{n.config.Email.Recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.Email.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, report *models.ExpenseReport) error {
	message := fmt.Sprintf("High expense alert: report #%d (%s) for $%.2f by %s",
		report.Number, report.Title, report.Amount, report.Submitter)

	_, err := n.sns.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(n.config.SMS.Recipient),
		Message:     aws.String(message),
	})
	return err
}
