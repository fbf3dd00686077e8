package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/clinic-crm/pkg/logging"
)

const (
	defaultWorkers     = 2
	receiveBatch       = 10
	receiveWaitSeconds = 20
	sendTimeout        = time.Minute
)

// Worker drains a Queue and hands each email to the sender. A job is deleted
// from the queue once it has been attempted, whether or not the sender
// eventually succeeded: the sender owns retries.
type Worker struct {
	queue   Queue
	sender  EmailSender
	workers int
	logger  *logging.Logger
}

func NewWorker(queue Queue, sender EmailSender, logger *logging.Logger) *Worker {
	if queue == nil || sender == nil {
		panic("notify: worker needs a queue and a sender")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{queue: queue, sender: sender, workers: defaultWorkers, logger: logger}
}

func (w *Worker) WithWorkers(n int) *Worker {
	if n > 0 {
		w.workers = n
	}
	return w
}

// Run blocks until ctx is cancelled and all consumers have stopped.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.consume(ctx, id)
		}(i)
	}
	w.logger.Info("email worker started", "workers", w.workers)
	wg.Wait()
	w.logger.Info("email worker stopped")
}

func (w *Worker) consume(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := w.queue.Receive(ctx, receiveBatch, receiveWaitSeconds)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.logger.Error("email queue receive failed", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range messages {
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg QueueMessage) {
	var email EmailMessage
	if err := json.Unmarshal([]byte(msg.Body), &email); err != nil {
		w.logger.Error("dropping undecodable email job", "message_id", msg.ID, "error", err)
		w.delete(ctx, msg)
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := w.sender.Send(sendCtx, email); err != nil {
		w.logger.Error("email delivery gave up", "message_id", msg.ID, "template", email.Template, "error", err)
	}
	w.delete(ctx, msg)
}

func (w *Worker) delete(ctx context.Context, msg QueueMessage) {
	if err := w.queue.Delete(context.WithoutCancel(ctx), msg.ReceiptHandle); err != nil {
		w.logger.Warn("email queue delete failed", "message_id", msg.ID, "error", err)
	}
}
