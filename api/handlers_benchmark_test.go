package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

func BenchmarkGetBoard(b *testing.B) {
	store := newMemStore()
	store.seed("p1", testBoardDoc)
	sessions := newSessionRegistry(store)
	handler := getBoard(sessions, log.New())

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		e := echo.New()
		for pb.Next() {
			req := httptest.NewRequest(http.MethodGet, "/api/projects/p1/board", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("project")
			c.SetParamValues("p1")

			if err := handler(c); err != nil {
				b.Fatalf("handler returned error: %v", err)
			}
			if rec.Code != http.StatusOK {
				b.Fatalf("unexpected status code: %d", rec.Code)
			}
		}
	})
}

func BenchmarkMoveTask(b *testing.B) {
	b.Run("Async", func(b *testing.B) {
		resetEventSenderForTests()
		defer resetEventSenderForTests()
		initEventSender(noopPublisher{}, log.New())

		runMoveTaskBenchmark(b)
	})

	b.Run("NoSender", func(b *testing.B) {
		resetEventSenderForTests()
		defer resetEventSenderForTests()

		runMoveTaskBenchmark(b)
	})
}

func runMoveTaskBenchmark(b *testing.B) {
	b.Helper()

	store := newMemStore()
	store.seed("p1", testBoardDoc)
	sessions := newSessionRegistry(store)
	handler := moveTask(sessions, newUpdateBroker())
	const payload = `{"columnId":"todo","index":0}`

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		e := echo.New()
		for pb.Next() {
			req := httptest.NewRequest(http.MethodPost, "/api/projects/p1/tasks/t-1/move", strings.NewReader(payload))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("project", "id")
			c.SetParamValues("p1", "t-1")

			if err := handler(c); err != nil {
				b.Fatalf("handler returned error: %v", err)
			}
			if rec.Code != http.StatusNoContent {
				b.Fatalf("unexpected status code: %d", rec.Code)
			}
		}
	})
}
