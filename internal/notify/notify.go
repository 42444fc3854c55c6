// Package notify delivers escalation alerts and improvement reports.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	commonaws "service-intake/internal/common/aws"
	"service-intake/internal/common/logger"
	"service-intake/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, record models.EscalationRecord) error
}

type ReportMailer interface {
	SendReport(ctx context.Context, subject, body string) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) NotifyEscalation(context.Context, models.EscalationRecord) error { return nil }
func (Nop) SendReport(context.Context, string, string) error                { return nil }

// SNSNotifier publishes escalation records as JSON to a topic.
type SNSNotifier struct {
	publisher commonaws.Publisher
	topicARN  string
	logger    logger.Logger
}

func NewSNSNotifier(p commonaws.Publisher, topicARN string, log logger.Logger) *SNSNotifier {
	return &SNSNotifier{
		publisher: p,
		topicARN:  topicARN,
		logger:    logger.Component(log, "notify"),
	}
}

func (n *SNSNotifier) NotifyEscalation(ctx context.Context, record models.EscalationRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}

	out, err := n.publisher.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(fmt.Sprintf("Intake escalation: %s", record.Kind)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(record.Kind)),
			},
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.Reason),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish escalation %s: %w", record.ErrorID, err)
	}

	n.logger.Info("escalation published", map[string]interface{}{
		"errorId":   record.ErrorID,
		"kind":      string(record.Kind),
		"messageId": aws.ToString(out.MessageId),
	})
	return nil
}

// SESReporter mails plain text reports to a fixed recipient list.
type SESReporter struct {
	sender commonaws.EmailSender
	from   string
	to     []string
	logger logger.Logger
}

func NewSESReporter(s commonaws.EmailSender, from string, to []string, log logger.Logger) *SESReporter {
	return &SESReporter{
		sender: s,
		from:   from,
		to:     to,
		logger: logger.Component(log, "notify"),
	}
}

func (r *SESReporter) SendReport(ctx context.Context, subject, body string) error {
	if len(r.to) == 0 {
		return fmt.Errorf("no report recipients configured")
	}
	out, err := r.sender.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(r.from),
		Destination: &sestypes.Destination{ToAddresses: r.to},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}

	r.logger.Info("report sent", map[string]interface{}{
		"recipients": len(r.to),
		"messageId":  aws.ToString(out.MessageId),
	})
	return nil
}
