package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"kanban-api/domain"
)

const streamKeepalive = 30 * time.Second

// updateBroker fans board events out to server-sent-event subscribers,
// grouped by project.
type updateBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.BoardEvent]struct{}
}

func newUpdateBroker() *updateBroker {
	return &updateBroker{subs: make(map[string]map[chan domain.BoardEvent]struct{})}
}

func (b *updateBroker) subscribe(projectID string) chan domain.BoardEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.BoardEvent, 10)
	if b.subs[projectID] == nil {
		b.subs[projectID] = make(map[chan domain.BoardEvent]struct{})
	}
	b.subs[projectID][ch] = struct{}{}
	return ch
}

func (b *updateBroker) unsubscribe(projectID string, ch chan domain.BoardEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[projectID]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(b.subs, projectID)
		}
	}
}

// notify delivers the event to every subscriber of its project. Subscribers
// with full buffers miss the event rather than blocking the caller.
func (b *updateBroker) notify(ev domain.BoardEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.Project] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *updateBroker) subscriberCount(projectID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[projectID])
}

func streamBoardEvents(broker *updateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("project")
		if err := validateProjectID(projectID); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)

		// Write an initial comment so headers reach the client immediately.
		if _, err := c.Response().Write([]byte(":ok\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

		ch := broker.subscribe(projectID)
		defer broker.unsubscribe(projectID, ch)
		ctx := c.Request().Context()
		ticker := time.NewTicker(streamKeepalive)
		defer ticker.Stop()
		for {
			select {
			case ev := <-ch:
				data, err := sonic.Marshal(ev)
				if err != nil {
					c.Logger().Error(err)
					continue
				}
				if _, err := c.Response().Write([]byte("data: ")); err != nil {
					return nil
				}
				if _, err := c.Response().Write(data); err != nil {
					return nil
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ticker.C:
				// Comment frames keep idle connections open through proxies.
				if _, err := c.Response().Write([]byte(":keepalive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ctx.Done():
				return nil
			}
		}
	}
}
