package api

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

type eventJob struct {
	events []domain.BoardEvent
}

var (
	once           sync.Once
	jobs           chan eventJob
	workerCount    int
	jobBuf         int
	publishTimeout time.Duration
	handoffTimeout time.Duration
	bg             = context.Background()
	globalStore    EventPublisher
	globalLog      *log.Logger
	workerWG       sync.WaitGroup

	deliveredEvents atomic.Uint64
	droppedEvents   atomic.Uint64
	senderStarted   time.Time
)

const (
	minSenderWorkers = 8
	workersPerCPU    = 4
	maxSenderWorkers = 64
	bufferPerWorker  = 64
)

// computeSenderDefaults sizes the publish pool from the CPU count. Event
// publishing is network bound, so workers scale past NumCPU but stay capped.
func computeSenderDefaults(cpu int) (workers, buffer int) {
	workers = minSenderWorkers
	if cpu > 0 && cpu*workersPerCPU > workers {
		workers = cpu * workersPerCPU
	}
	if workers > maxSenderWorkers {
		workers = maxSenderWorkers
	}
	return workers, workers * bufferPerWorker
}

// shutdownEventSender stops worker goroutines and clears shared state. It is intended for tests.
func shutdownEventSender() {
	if jobs != nil {
		close(jobs)
		jobs = nil
	}

	workerWG.Wait()

	globalStore = nil
	globalLog = nil
	workerCount = 0
	jobBuf = 0
	publishTimeout = 0
	handoffTimeout = 0
	deliveredEvents.Store(0)
	droppedEvents.Store(0)
	senderStarted = time.Time{}
	once = sync.Once{}
	workerWG = sync.WaitGroup{}
}

func initEventSender(store EventPublisher, log *log.Logger) {
	once.Do(func() {
		globalStore = store
		if log == nil {
			panic("Logger is not initialized")
		}
		globalLog = log

		defWorkers, defBuf := computeSenderDefaults(runtime.NumCPU())
		workerCount = envInt("EVENT_WORKERS", defWorkers)
		jobBuf = envInt("EVENT_BUFFER", defBuf)
		publishTimeout = envDur("EVENT_PUBLISH_TIMEOUT", 30*time.Second)
		handoffTimeout = envDur("EVENT_HANDOFF_TIMEOUT", 15*time.Millisecond)

		senderStarted = time.Now().UTC()
		jobs = make(chan eventJob, jobBuf)
		for i := 0; i < workerCount; i++ {
			workerWG.Add(1)
			go worker(i, jobs)
		}
		globalLog.Infof("event sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workerCount, jobBuf, publishTimeout, handoffTimeout)
	})
}

func worker(id int, jobCh <-chan eventJob) {
	defer workerWG.Done()
	for j := range jobCh {
		if len(j.events) == 0 {
			continue
		}
		ctx, cancel := context.WithTimeout(bg, publishTimeout)
		err := globalStore.PublishEvents(ctx, j.events)
		cancel()

		if err != nil {
			globalLog.Errorf("event publish failed, err: %v, project: %s, count: %d, worker: %d", err, j.events[0].Project, len(j.events), id)
			continue
		}
		deliveredEvents.Add(uint64(len(j.events)))
	}
}

// emitBoardEvent notifies live stream subscribers and hands the event to the
// publish pool. Events are advisory, so a saturated pool drops them with a
// warning instead of failing the request.
func emitBoardEvent(broker *updateBroker, ev domain.BoardEvent) {
	if broker != nil {
		broker.notify(ev)
	}
	if !tryPublishJob(eventJob{events: []domain.BoardEvent{ev}}) {
		droppedEvents.Add(1)
		if globalLog != nil {
			globalLog.Warnf("event publish skipped, op: %s, project: %s", ev.Op, ev.Project)
		}
	}
}

type senderStats struct {
	Workers   int       `json:"workers"`
	Capacity  int       `json:"capacity"`
	Buffered  int       `json:"buffered"`
	Delivered uint64    `json:"delivered"`
	Dropped   uint64    `json:"dropped"`
	StartedAt time.Time `json:"startedAt"`
	DrainRate float64   `json:"drainRatePerSecond"`
}

func getSenderStats() senderStats {
	s := senderStats{
		Workers:   workerCount,
		Capacity:  jobBuf,
		Delivered: deliveredEvents.Load(),
		Dropped:   droppedEvents.Load(),
		StartedAt: senderStarted,
	}
	if jobs != nil {
		s.Buffered = len(jobs)
	}
	if elapsed := time.Since(senderStarted); !senderStarted.IsZero() && elapsed > 0 {
		s.DrainRate = float64(s.Delivered) / elapsed.Seconds()
	}
	return s
}

func tryPublishJob(job eventJob) bool {
	if jobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(jobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(jobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan eventJob, job eventJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan eventJob, job eventJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
