// Package events moves payment events through SQS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

// SQSAPI is the part of *sqs.Client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

const eventTypeAttribute = "event_type"

// Publisher sends payment events to a queue.
type Publisher struct {
	client   SQSAPI
	queueURL string
}

func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

func (p *Publisher) Publish(ctx context.Context, evt models.PaymentEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			eventTypeAttribute: {DataType: aws.String("String"), StringValue: aws.String(evt.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("send payment event %s: %w", evt.ExternalID, err)
	}
	return nil
}

// Noop drops events. Used when no queue is configured.
type Noop struct{}

func (Noop) Publish(context.Context, models.PaymentEvent) error { return nil }

// ErrPermanent marks a handler failure that retrying cannot fix. The
// message is deleted instead of being redelivered.
var ErrPermanent = errors.New("permanent failure")

// Handler processes one event.
type Handler func(ctx context.Context, evt models.PaymentEvent) error

// Consumer long-polls a queue and hands each event to a Handler.
type Consumer struct {
	client         SQSAPI
	queueURL       string
	handle         Handler
	log            zerolog.Logger
	handlerTimeout time.Duration
	idleSleep      time.Duration
	errorSleep     time.Duration
}

func NewConsumer(client SQSAPI, queueURL string, handle Handler, log zerolog.Logger) *Consumer {
	return &Consumer{
		client:         client,
		queueURL:       queueURL,
		handle:         handle,
		log:            log.With().Str("component", "events").Logger(),
		handlerTimeout: 30 * time.Second,
		idleSleep:      2 * time.Second,
		errorSleep:     5 * time.Second,
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Str("queue_url", c.queueURL).Msg("consumer started")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := c.Poll(ctx)
		switch {
		case err != nil:
			c.log.Error().Err(err).Msg("receive messages")
			sleep(ctx, c.errorSleep)
		case n == 0:
			sleep(ctx, c.idleSleep)
		}
	}
}

// Poll receives one batch and handles it. It returns the batch size.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	recvCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	resp, err := c.client.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	cancel()
	if err != nil {
		return 0, err
	}

	for _, m := range resp.Messages {
		c.handleMessage(ctx, m)
	}
	return len(resp.Messages), nil
}

func (c *Consumer) handleMessage(ctx context.Context, m sqstypes.Message) {
	if m.Body == nil {
		c.log.Warn().Msg("message with empty body")
		c.delete(ctx, m)
		return
	}

	var evt models.PaymentEvent
	if err := json.Unmarshal([]byte(*m.Body), &evt); err != nil {
		c.log.Error().Err(err).Str("body", *m.Body).Msg("undecodable payment event, dropping")
		c.delete(ctx, m)
		return
	}

	hctx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	err := c.handle(hctx, evt)
	cancel()
	switch {
	case err == nil:
		c.delete(ctx, m)
	case errors.Is(err, ErrPermanent):
		c.log.Error().Err(err).Str("external_id", evt.ExternalID).Msg("dropping payment event")
		c.delete(ctx, m)
	default:
		// Left on the queue; it becomes visible again after the visibility timeout.
		c.log.Warn().Err(err).Str("external_id", evt.ExternalID).Msg("payment event will be retried")
	}
}

func (c *Consumer) delete(ctx context.Context, m sqstypes.Message) {
	if m.ReceiptHandle == nil {
		return
	}
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		c.log.Error().Err(err).Msg("delete message")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
