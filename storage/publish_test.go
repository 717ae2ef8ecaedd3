package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"kanban-api/domain"
)

type fakeQueue struct {
	mu       sync.Mutex
	inFlight int
	max      int
	count    int
	failAt   int
	sleep    time.Duration
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{failAt: -1, sleep: 1 * time.Millisecond}
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	idx := f.count
	f.count++
	f.inFlight++
	if f.inFlight > f.max {
		f.max = f.inFlight
	}
	f.mu.Unlock()

	if f.sleep > 0 {
		select {
		case <-time.After(f.sleep):
		case <-ctx.Done():
			f.mu.Lock()
			f.inFlight--
			f.mu.Unlock()
			return azqueue.EnqueueMessagesResponse{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.failAt >= 0 && idx == f.failAt {
		return azqueue.EnqueueMessagesResponse{}, errors.New("enqueue failure")
	}

	return azqueue.EnqueueMessagesResponse{}, nil
}

func (f *fakeQueue) GetProperties(ctx context.Context, o *azqueue.GetQueuePropertiesOptions) (azqueue.GetQueuePropertiesResponse, error) {
	return azqueue.GetQueuePropertiesResponse{}, nil
}

func makeEvents(n int) []domain.BoardEvent {
	events := make([]domain.BoardEvent, n)
	for i := range events {
		events[i] = domain.BoardEvent{Project: "p1", Op: domain.EventTaskAdded, TaskID: "t1"}
	}
	return events
}

func TestPublishEventsUsesConcurrency(t *testing.T) {
	fq := newFakeQueue()
	store := &Storage{
		eventQueue:       fq,
		queueConcurrency: 4,
	}

	if err := store.PublishEvents(context.Background(), makeEvents(8)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fq.max < 2 {
		t.Fatalf("expected concurrent sends, max in flight: %d", fq.max)
	}
	if fq.count != 8 {
		t.Fatalf("expected 8 sends, got %d", fq.count)
	}
}

func TestPublishEventsPropagatesErrors(t *testing.T) {
	fq := newFakeQueue()
	fq.failAt = 2
	store := &Storage{
		eventQueue:       fq,
		queueConcurrency: 3,
	}

	if err := store.PublishEvents(context.Background(), makeEvents(6)); err == nil {
		t.Fatal("expected error")
	}
}

func TestPublishEventsSequentialWhenConfigured(t *testing.T) {
	fq := newFakeQueue()
	store := &Storage{
		eventQueue:       fq,
		queueConcurrency: 1,
	}

	if err := store.PublishEvents(context.Background(), makeEvents(5)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fq.max != 1 {
		t.Fatalf("expected sequential sends, observed max in flight: %d", fq.max)
	}
}

func TestPublishEventsEmptyBatch(t *testing.T) {
	store := &Storage{eventQueue: newFakeQueue(), queueConcurrency: 4}
	if err := store.PublishEvents(context.Background(), nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestStoragePing(t *testing.T) {
	store := &Storage{eventQueue: newFakeQueue()}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
