package queue

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/investiq/internal/models"
)

func testDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testMessage(step models.StepName, class models.QueueClass) models.QueueMessage {
	return models.QueueMessage{
		InvocationID: "inv_test",
		RunID:        "run_test",
		Step:         step,
		Class:        class,
	}
}

func TestBadgerManager_EnqueueReceive(t *testing.T) {
	db := testDB(t)
	mgr, err := NewBadgerManager(db, "test_queue", time.Minute, 3, nil)
	if err != nil {
		t.Fatalf("NewBadgerManager failed: %v", err)
	}

	ctx := context.Background()
	sent := testMessage(models.StepFetchNews, models.QueueClassFetch)
	if err := mgr.Enqueue(ctx, sent); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	got, deleteFn, err := mgr.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if got.InvocationID != sent.InvocationID {
		t.Errorf("invocation id = %s, want %s", got.InvocationID, sent.InvocationID)
	}
	if got.Step != sent.Step {
		t.Errorf("step = %s, want %s", got.Step, sent.Step)
	}

	if err := deleteFn(); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	n, err := mgr.Len(ctx)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 0 {
		t.Errorf("queue length after delete = %d, want 0", n)
	}
}

func TestBadgerManager_EmptyQueueReturnsErrNoMessage(t *testing.T) {
	db := testDB(t)
	mgr, _ := NewBadgerManager(db, "test_queue", time.Minute, 3, nil)

	_, _, err := mgr.Receive(context.Background())
	if err != ErrNoMessage {
		t.Fatalf("expected ErrNoMessage, got %v", err)
	}
}

func TestBadgerManager_VisibilityTimeoutHidesInFlightMessage(t *testing.T) {
	db := testDB(t)
	mgr, _ := NewBadgerManager(db, "test_queue", time.Minute, 3, nil)
	ctx := context.Background()

	if err := mgr.Enqueue(ctx, testMessage(models.StepFetchPriceData, models.QueueClassFetch)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	_, _, err := mgr.Receive(ctx)
	if err != nil {
		t.Fatalf("first Receive failed: %v", err)
	}

	// In flight now; a second receive must not see it
	_, _, err = mgr.Receive(ctx)
	if err != ErrNoMessage {
		t.Fatalf("in-flight message redelivered: %v", err)
	}
}

func TestBadgerManager_UnacknowledgedMessageReappears(t *testing.T) {
	db := testDB(t)
	mgr, _ := NewBadgerManager(db, "test_queue", 50*time.Millisecond, 3, nil)
	ctx := context.Background()

	if err := mgr.Enqueue(ctx, testMessage(models.StepAnalyzeSentiment, models.QueueClassLLM)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Receive without acknowledging, simulating a crashed worker
	if _, _, err := mgr.Receive(ctx); err != nil {
		t.Fatalf("first Receive failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	got, deleteFn, err := mgr.Receive(ctx)
	if err != nil {
		t.Fatalf("message did not reappear after visibility timeout: %v", err)
	}
	if got.Step != models.StepAnalyzeSentiment {
		t.Errorf("redelivered step = %s, want %s", got.Step, models.StepAnalyzeSentiment)
	}
	deleteFn()
}

func TestBadgerManager_EnqueueWithDelayDefersVisibility(t *testing.T) {
	db := testDB(t)
	mgr, _ := NewBadgerManager(db, "test_queue", time.Minute, 3, nil)
	ctx := context.Background()

	if err := mgr.EnqueueWithDelay(ctx, testMessage(models.StepSummarizeNews, models.QueueClassLLM), 80*time.Millisecond); err != nil {
		t.Fatalf("EnqueueWithDelay failed: %v", err)
	}

	if _, _, err := mgr.Receive(ctx); err != ErrNoMessage {
		t.Fatalf("delayed message visible too early: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	_, deleteFn, err := mgr.Receive(ctx)
	if err != nil {
		t.Fatalf("delayed message never became visible: %v", err)
	}
	deleteFn()
}

func TestBadgerManager_PoisonMessageEvicted(t *testing.T) {
	db := testDB(t)

	var poisonedMsg models.QueueMessage
	var poisonedCount int
	var invocations int
	handler := func(msg models.QueueMessage, receiveCount int) {
		poisonedMsg = msg
		poisonedCount = receiveCount
		invocations++
	}

	mgr, _ := NewBadgerManager(db, "test_queue", 10*time.Millisecond, 2, handler)
	ctx := context.Background()

	if err := mgr.Enqueue(ctx, testMessage(models.StepGenerateInsights, models.QueueClassLLM)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Two deliveries without acknowledgment exhaust maxReceive
	for i := 0; i < 2; i++ {
		if _, _, err := mgr.Receive(ctx); err != nil {
			t.Fatalf("Receive %d failed: %v", i+1, err)
		}
		time.Sleep(30 * time.Millisecond)
	}

	// Third receive evicts the message through the poison path
	if _, _, err := mgr.Receive(ctx); err != ErrNoMessage {
		t.Fatalf("expected ErrNoMessage after poison eviction, got %v", err)
	}

	if poisonedMsg.InvocationID != "inv_test" {
		t.Errorf("poison handler not invoked with message, got %+v", poisonedMsg)
	}
	if poisonedCount != 2 {
		t.Errorf("poison receive count = %d, want 2", poisonedCount)
	}

	n, _ := mgr.Len(ctx)
	if n != 0 {
		t.Errorf("poisoned message still in queue, length = %d", n)
	}

	// The eviction must survive the empty-queue commit; a later poll must not
	// find the message again or re-run the poison handler.
	if _, _, err := mgr.Receive(ctx); err != ErrNoMessage {
		t.Fatalf("expected ErrNoMessage on poll after eviction, got %v", err)
	}
	if invocations != 1 {
		t.Errorf("poison handler invoked %d times, want 1", invocations)
	}
}

func TestBadgerManager_FIFOWithinQueue(t *testing.T) {
	db := testDB(t)
	mgr, _ := NewBadgerManager(db, "test_queue", time.Minute, 3, nil)
	ctx := context.Background()

	first := testMessage(models.StepFetchPriceData, models.QueueClassFetch)
	first.InvocationID = "inv_first"
	second := testMessage(models.StepFetchNews, models.QueueClassFetch)
	second.InvocationID = "inv_second"

	if err := mgr.Enqueue(ctx, first); err != nil {
		t.Fatalf("Enqueue first failed: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := mgr.Enqueue(ctx, second); err != nil {
		t.Fatalf("Enqueue second failed: %v", err)
	}

	got, deleteFn, err := mgr.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if got.InvocationID != "inv_first" {
		t.Errorf("received %s first, want inv_first", got.InvocationID)
	}
	deleteFn()
}

func TestBadgerManager_QueuesAreIsolated(t *testing.T) {
	db := testDB(t)
	fetchQ, _ := NewBadgerManager(db, "fetch_queue", time.Minute, 3, nil)
	llmQ, _ := NewBadgerManager(db, "llm_queue", time.Minute, 3, nil)
	ctx := context.Background()

	if err := fetchQ.Enqueue(ctx, testMessage(models.StepFetchNews, models.QueueClassFetch)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if _, _, err := llmQ.Receive(ctx); err != ErrNoMessage {
		t.Fatalf("llm queue saw fetch queue's message: %v", err)
	}

	_, deleteFn, err := fetchQ.Receive(ctx)
	if err != nil {
		t.Fatalf("fetch queue lost its message: %v", err)
	}
	deleteFn()
}
