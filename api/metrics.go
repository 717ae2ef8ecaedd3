package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	metricsTracerName  = "kanban-api/api"
	boardSpanName      = "board.request"
	boardEventName     = "board.request"
	boardEventDomain   = "kanban"
	observabilityEvent = "observability.event"
)

// boardRequestMetrics captures timings and outcome facts for one board
// request and emits them both as a span and as a structured log event.
type boardRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time
	route  string

	project        string
	opDuration     time.Duration
	encodeDuration time.Duration
	tasksOnBoard   int
	boardChanged   bool
	errorStage     string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*boardRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(metricsTracerName).Start(ctx, boardSpanName)
	return &boardRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		route:  route,
	}, spanCtx
}

func (m *boardRequestMetrics) ObserveOp(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.opDuration = duration
}

func (m *boardRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *boardRequestMetrics) SetProject(projectID string) {
	m.project = projectID
}

func (m *boardRequestMetrics) SetTasksOnBoard(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksOnBoard = count
}

func (m *boardRequestMetrics) SetBoardChanged(changed bool) {
	m.boardChanged = changed
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	severityText, severityNumber := severityForStatus(status, err)
	totalMs := durationToMillis(time.Since(m.start))

	logAttrs := map[string]any{
		"http.route":            m.route,
		"http.status_code":      status,
		"kanban.board.total_ms": totalMs,
		"kanban.board.tasks":    m.tasksOnBoard,
		"kanban.board.changed":  m.boardChanged,
	}
	spanAttrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64("kanban.board.total_ms", totalMs),
		attribute.Int("kanban.board.tasks", m.tasksOnBoard),
		attribute.Bool("kanban.board.changed", m.boardChanged),
	}

	if m.project != "" {
		logAttrs["kanban.board.project"] = m.project
		spanAttrs = append(spanAttrs, attribute.String("kanban.board.project", m.project))
	}
	if m.opDuration > 0 {
		ms := durationToMillis(m.opDuration)
		logAttrs["kanban.board.op_ms"] = ms
		spanAttrs = append(spanAttrs, attribute.Float64("kanban.board.op_ms", ms))
	}
	if m.encodeDuration > 0 {
		ms := durationToMillis(m.encodeDuration)
		logAttrs["kanban.board.encode_ms"] = ms
		spanAttrs = append(spanAttrs, attribute.Float64("kanban.board.encode_ms", ms))
	}
	if m.errorStage != "" {
		logAttrs["kanban.board.error_stage"] = m.errorStage
		spanAttrs = append(spanAttrs, attribute.String("kanban.board.error_stage", m.errorStage))
	}
	if err != nil {
		logAttrs["error.message"] = err.Error()
		spanAttrs = append(spanAttrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		eventAttrs := make([]attribute.KeyValue, 0, len(spanAttrs)+4)
		eventAttrs = append(eventAttrs,
			attribute.String("event.name", boardEventName),
			attribute.String("event.domain", boardEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		)
		eventAttrs = append(eventAttrs, spanAttrs...)

		m.span.SetAttributes(spanAttrs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		switch {
		case err != nil:
			m.span.SetStatus(codes.Error, err.Error())
		case status >= http.StatusInternalServerError:
			m.span.SetStatus(codes.Error, http.StatusText(status))
		default:
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	fields := log.Fields{
		"event.name":      boardEventName,
		"event.domain":    boardEventDomain,
		"attributes":      logAttrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}

	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
