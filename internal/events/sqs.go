package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/wolfman30/clinic-intake/internal/booking"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// SQSAPI is the subset of the SQS client the publisher uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends booking events to an SQS queue as JSON envelopes. FIFO
// queues get one message group per aggregate and content-independent dedup.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
	fifo     bool
	logger   *logging.Logger
}

// NewSQSPublisher creates a publisher around the provided SQS client.
func NewSQSPublisher(client SQSAPI, queueURL string, logger *logging.Logger) *SQSPublisher {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		logger:   logger,
	}
}

// Publish wraps evt in an envelope and sends it.
func (p *SQSPublisher) Publish(ctx context.Context, aggregate, correlationID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	env, err := NewEnvelope(aggregate, correlationID, evt, opts...)
	if err != nil {
		return Envelope{}, err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(env.EventType)},
			"source":     {DataType: aws.String("String"), StringValue: aws.String(env.Source)},
		},
	}
	if p.fifo {
		input.MessageGroupId = aws.String(env.Aggregate)
		input.MessageDeduplicationId = aws.String(env.DedupKey())
	}
	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	p.logger.Debug("event published", "event_type", env.EventType, "event_id", env.EventID, "message_id", aws.ToString(out.MessageId))
	return env, nil
}

// PublishAppointmentBooked announces a persisted appointment.
func (p *SQSPublisher) PublishAppointmentBooked(ctx context.Context, record booking.AppointmentRecord) error {
	_, err := p.Publish(ctx, "appointment:"+record.ID, record.ConversationID, NewAppointmentBooked(record))
	return err
}

var _ booking.EventPublisher = (*SQSPublisher)(nil)
