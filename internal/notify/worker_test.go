package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
	done chan struct{}
}

func (s *countingSender) Send(ctx context.Context, msg EmailMessage) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	if s.done != nil {
		s.done <- struct{}{}
	}
	return s.err
}

func encodeJob(t *testing.T, msg EmailMessage) string {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return string(raw)
}

func TestWorkerDeliversQueuedEmails(t *testing.T) {
	q := NewMemoryQueue(8)
	sender := &countingSender{done: make(chan struct{}, 8)}
	worker := NewWorker(q, sender, nil).WithWorkers(1)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(stopped)
	}()

	require.NoError(t, q.Send(context.Background(), encodeJob(t, EmailMessage{To: "a@x.com", Template: "one"})))
	require.NoError(t, q.Send(context.Background(), "not json"))
	require.NoError(t, q.Send(context.Background(), encodeJob(t, EmailMessage{To: "b@x.com", Template: "two"})))

	for i := 0; i < 2; i++ {
		select {
		case <-sender.done:
		case <-time.After(2 * time.Second):
			t.Fatal("email not delivered")
		}
	}
	cancel()
	<-stopped

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "one", sender.sent[0].Template)
	assert.Equal(t, "two", sender.sent[1].Template)
}

func TestWorkerSwallowsSenderFailures(t *testing.T) {
	q := NewMemoryQueue(8)
	sender := &countingSender{err: errors.New("gave up"), done: make(chan struct{}, 8)}
	worker := NewWorker(q, sender, nil).WithWorkers(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	require.NoError(t, q.Send(context.Background(), encodeJob(t, EmailMessage{To: "a@x.com"})))
	require.NoError(t, q.Send(context.Background(), encodeJob(t, EmailMessage{To: "b@x.com"})))

	for i := 0; i < 2; i++ {
		select {
		case <-sender.done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker stopped after a failed send")
		}
	}
}

func TestMemoryQueueReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)
	msgs, err := q.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryQueueReceiveBatches(t *testing.T) {
	q := NewMemoryQueue(4)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Send(context.Background(), "x"))
	}
	msgs, err := q.Receive(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, 1, q.Len())
}

type fakeSQS struct {
	sent     []string
	deleted  []string
	messages []sqstypes.Message
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, aws.ToString(params.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	out := &sqs.ReceiveMessageOutput{Messages: f.messages}
	f.messages = nil
	return out, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueueRoundTrip(t *testing.T) {
	api := &fakeSQS{messages: []sqstypes.Message{{
		MessageId:     aws.String("m-1"),
		Body:          aws.String(`{"to":"a@x.com"}`),
		ReceiptHandle: aws.String("rh-1"),
	}}}
	q := newSQSQueue(api, "https://sqs.local/emails")
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "payload"))
	assert.Equal(t, []string{"payload"}, api.sent)

	msgs, err := q.Receive(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-1", msgs[0].ID)

	require.NoError(t, q.Delete(ctx, msgs[0].ReceiptHandle))
	require.NoError(t, q.Delete(ctx, ""))
	assert.Equal(t, []string{"rh-1"}, api.deleted)
}
