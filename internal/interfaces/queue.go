package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/investiq/internal/models"
)

// QueueManager is one at-least-once message queue (one per resource class).
// Receive hands back a delete function the worker calls only after terminal
// handling - late acknowledgment is what makes crashed workers recoverable.
type QueueManager interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	EnqueueWithDelay(ctx context.Context, msg models.QueueMessage, delay time.Duration) error
	Receive(ctx context.Context) (*models.QueueMessage, func() error, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// Dispatcher submits stage invocations onto their resource-class queue.
// Fire-and-forget with at-least-once delivery semantics.
type Dispatcher interface {
	Submit(ctx context.Context, inv *models.StageInvocation) error
}

// CompletionHandler receives terminal invocation transitions. The run
// coordinator implements this; the dispatcher's workers call it.
type CompletionHandler interface {
	OnInvocationComplete(ctx context.Context, inv *models.StageInvocation)
}
