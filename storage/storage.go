package storage

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"kanban-api/domain"
)

const (
	queuePerCPU             = 10
	defaultQueueConcurrency = 10
	maxQueueConcurrency     = 64
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	GetProperties(ctx context.Context, o *azqueue.GetQueuePropertiesOptions) (azqueue.GetQueuePropertiesResponse, error)
}

// Storage persists board snapshots in Azure Table Storage, one entity per
// project, and publishes board events to an Azure Storage queue.
type Storage struct {
	boardTable       *aztables.Client
	eventQueue       queueClient
	queueConcurrency int
}

// New creates a Storage instance from the given connection string.
func New(connStr, boardsTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	bt := svc.NewClient(boardsTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		boardTable:       bt,
		eventQueue:       eq,
		queueConcurrency: queueConcurrencyForCPU(runtime.NumCPU()),
	}, nil
}

// queueConcurrencyForCPU sizes the event send fan-out from the CPU count.
func queueConcurrencyForCPU(cpu int) int {
	if cpu < 1 {
		return defaultQueueConcurrency
	}
	n := cpu * queuePerCPU
	if n > maxQueueConcurrency {
		return maxQueueConcurrency
	}
	return n
}

type boardEntity struct {
	aztables.Entity
	Document string `json:"Document"`
}

// LoadSnapshot retrieves the snapshot document stored for the project. It
// returns domain.ErrSnapshotNotFound when the project has never been saved.
func (s *Storage) LoadSnapshot(ctx context.Context, projectID string) ([]byte, error) {
	ent, err := s.boardTable.GetEntity(ctx, projectID, projectID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, err
	}
	return decodeBoardEntity(ent.Value)
}

func decodeBoardEntity(data []byte) ([]byte, error) {
	var ent boardEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	return []byte(ent.Document), nil
}

// SaveSnapshot creates or replaces the project's snapshot entity.
func (s *Storage) SaveSnapshot(ctx context.Context, projectID string, data []byte) error {
	ent := boardEntity{
		Entity:   aztables.Entity{PartitionKey: projectID, RowKey: projectID},
		Document: string(data),
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = s.boardTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

// PublishEvents sends the given events to the events queue. Sends run with
// bounded concurrency and the first failure aborts the remainder.
func (s *Storage) PublishEvents(ctx context.Context, events []domain.BoardEvent) error {
	if len(events) == 0 {
		return nil
	}
	workers := s.queueConcurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(events) {
		workers = len(events)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	jobs := make(chan domain.BoardEvent)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range jobs {
				data, err := json.Marshal(ev)
				if err != nil {
					fail(err)
					return
				}
				if _, err := s.eventQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
					fail(err)
					return
				}
			}
		}()
	}

feed:
	for _, ev := range events {
		select {
		case jobs <- ev:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return firstErr
}

// Ping verifies the events queue is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.eventQueue.GetProperties(ctx, nil)
	return err
}
