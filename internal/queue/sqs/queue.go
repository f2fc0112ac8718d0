package sqs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"notif/internal/queue"
)

// Queue is the shared SQS FIFO plumbing behind every typed queue in this
// package: enqueue with dedup id, long-poll receive, ack-by-delete. It is
// the teacher's Producer+Consumer split collapsed into one type since every
// pipeline stage both enqueues for its downstream and receives for itself.
type Queue struct {
	SQS      *sqs.Client
	QueueURL string

	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
}

func str(s string) *string { return &s }

// Enqueue sends payload FIFO-ordered within dedupID's message group,
// deduplicated by dedupID for the standard 5-minute SQS dedup window.
func (q *Queue) Enqueue(ctx context.Context, dedupID string, payload []byte) error {
	_, err := q.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               &q.QueueURL,
		MessageBody:            str(string(payload)),
		MessageGroupId:         str(dedupID),
		MessageDeduplicationId: str(dedupID),
	})
	return err
}

// EnqueueDelayed is Enqueue plus SQS's native DelaySeconds, the delayed-
// delivery feature the original JmsClient exposed directly.
func (q *Queue) EnqueueDelayed(ctx context.Context, payload []byte, delaySeconds int32) error {
	_, err := q.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     &q.QueueURL,
		MessageBody:  str(string(payload)),
		DelaySeconds: delaySeconds,
	})
	return err
}

// EnqueueDeadLetter is a plain, non-FIFO-grouped send for the DLQ.
func (q *Queue) EnqueueDeadLetter(ctx context.Context, payload []byte) error {
	_, err := q.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &q.QueueURL,
		MessageBody: str(string(payload)),
	})
	return err
}

// Receive long-polls up to max messages and wraps each with an ack handle
// and its ApproximateReceiveCount. Matching the teacher's consumer: a
// message is never deleted here, only by the caller's explicit Ack after
// every side effect for it has succeeded ("if err != nil: do NOT delete =>
// SQS redrive/DLQ handles it").
func (q *Queue) Receive(ctx context.Context, max int32) ([]queue.Message, error) {
	out, err := q.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              &q.QueueURL,
		MaxNumberOfMessages:   max,
		WaitTimeSeconds:       q.WaitTimeSeconds,
		VisibilityTimeout:     q.VisibilityTimeout,
		MessageAttributeNames: []string{"All"},
		AttributeNames:        []types.QueueAttributeName{types.QueueAttributeName(types.MessageSystemAttributeNameApproximateReceiveCount)},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}

	msgs := make([]queue.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		if m.Body == nil {
			continue
		}
		receiveCount := 0
		if raw, ok := m.Attributes[string(types.QueueAttributeName(types.MessageSystemAttributeNameApproximateReceiveCount))]; ok {
			if n, convErr := strconv.Atoi(raw); convErr == nil {
				receiveCount = n
			}
		}
		receiptHandle := m.ReceiptHandle
		msgs = append(msgs, queue.Message{
			Body:                    []byte(*m.Body),
			ApproximateReceiveCount: receiveCount,
			Ack: func(ctx context.Context) error {
				_, err := q.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
					QueueUrl:      &q.QueueURL,
					ReceiptHandle: receiptHandle,
				})
				if err != nil {
					slog.Error("sqs delete message failed", "err", err)
				}
				return err
			},
		})
	}
	return msgs, nil
}

// VariantJobQueue, BatchQueue, MetricsQueue, TriggerQueue and DeadLetterQueue
// are thin named wrappers over Queue so each pipeline stage's dependency
// type documents which queue it is (the queue.* interfaces are satisfied
// directly by *Queue for the first three; Trigger and DeadLetter need their
// own Enqueue signatures).

type VariantJobQueue struct{ *Queue }

type BatchQueueImpl struct{ *Queue }

type MetricsQueueImpl struct{ *Queue }

// TriggerQueueImpl adapts Queue to queue.TriggerQueue (delayed enqueue only).
type TriggerQueueImpl struct{ *Queue }

func (t TriggerQueueImpl) EnqueueDelayed(ctx context.Context, payload []byte, delaySeconds int32) error {
	return t.Queue.EnqueueDelayed(ctx, payload, delaySeconds)
}

// DeadLetterQueueImpl adapts Queue to queue.DeadLetterQueue.
type DeadLetterQueueImpl struct{ *Queue }

func (d DeadLetterQueueImpl) Enqueue(ctx context.Context, payload []byte) error {
	return d.Queue.EnqueueDeadLetter(ctx, payload)
}

var (
	_ queue.VariantJobQueue  = VariantJobQueue{}
	_ queue.BatchQueue       = BatchQueueImpl{}
	_ queue.MetricsQueue     = MetricsQueueImpl{}
	_ queue.TriggerQueue     = TriggerQueueImpl{}
	_ queue.DeadLetterQueue  = DeadLetterQueueImpl{}
)
