package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

// SQSAPI is the subset of the SQS client used by the account queue.
type SQSAPI interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSClient sends account entries to, and receives them from, one SQS queue.
type SQSClient struct {
	api         SQSAPI
	queueURL    string
	waitSeconds int32
	timeout     time.Duration
	log         *zap.Logger
}

// NewSQSClient creates a client for the queue at queueURL.
func NewSQSClient(cfg aws.Config, queueURL string, waitSeconds int, timeout time.Duration, log *zap.Logger) *SQSClient {
	return NewSQSClientWithAPI(sqs.NewFromConfig(cfg), queueURL, waitSeconds, timeout, log)
}

// NewSQSClientWithAPI wraps an existing SQSAPI implementation.
func NewSQSClientWithAPI(api SQSAPI, queueURL string, waitSeconds int, timeout time.Duration, log *zap.Logger) *SQSClient {
	if waitSeconds < 0 || waitSeconds > 20 {
		waitSeconds = 20
	}
	return &SQSClient{
		api:         api,
		queueURL:    queueURL,
		waitSeconds: int32(waitSeconds),
		timeout:     timeout,
		log:         log.Named("sqs"),
	}
}

// SendBatch submits up to 10 entries in one call and returns the per-entry breakdown.
func (c *SQSClient) SendBatch(ctx context.Context, entries []models.QueueEntry) (models.BatchResult, error) {
	if len(entries) == 0 {
		return models.BatchResult{}, nil
	}
	if len(entries) > 10 {
		return models.BatchResult{}, fmt.Errorf("SQS batch holds at most 10 entries, got %d", len(entries))
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	batch := make([]types.SendMessageBatchRequestEntry, len(entries))
	for i, e := range entries {
		batch[i] = types.SendMessageBatchRequestEntry{
			Id:          aws.String(e.ID),
			MessageBody: aws.String(e.Body),
		}
	}

	out, err := c.api.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(c.queueURL),
		Entries:  batch,
	})
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("failed to send message batch to %s: %w", c.queueURL, err)
	}

	var result models.BatchResult
	for _, s := range out.Successful {
		result.Successful = append(result.Successful, aws.ToString(s.Id))
	}
	for _, f := range out.Failed {
		result.Failed = append(result.Failed, models.EntryFailure{
			ID:      aws.ToString(f.Id),
			Code:    aws.ToString(f.Code),
			Message: aws.ToString(f.Message),
		})
	}
	return result, nil
}

// Poll long-polls the queue until ctx is done and calls handler with each
// message body. A message is deleted only when its handler returns nil;
// otherwise it becomes visible again after the queue's visibility timeout.
func (c *SQSClient) Poll(ctx context.Context, handler func(ctx context.Context, body string) error) error {
	c.log.Info("started polling", zap.String("queue", c.queueURL))
	for {
		out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     c.waitSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("polling stopped")
				return nil
			}
			c.log.Error("failed to receive messages", zap.Error(err))
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}

		for _, msg := range out.Messages {
			body := aws.ToString(msg.Body)
			if err := handler(ctx, body); err != nil {
				c.log.Error("handler error, message left for redelivery", zap.String("message_id", aws.ToString(msg.MessageId)), zap.Error(err))
				continue
			}
			if err := c.delete(ctx, msg.ReceiptHandle); err != nil {
				c.log.Error("failed to delete message", zap.String("message_id", aws.ToString(msg.MessageId)), zap.Error(err))
			}
		}

		if ctx.Err() != nil {
			c.log.Info("polling stopped")
			return nil
		}
	}
}

func (c *SQSClient) delete(ctx context.Context, receipt *string) error {
	if receipt == nil {
		return errors.New("message has no receipt handle")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receipt,
	})
	return err
}

func (c *SQSClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
