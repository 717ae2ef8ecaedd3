package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"

	"kanban-api/domain"
)

// Register wires up all API routes on the provided Echo instance. The deduper
// may be nil, which disables idempotency-key replay.
func Register(e *echo.Echo, store Store, deduper Deduper, log *log.Logger) {
	sessions := newSessionRegistry(store)
	broker := newUpdateBroker()

	e.GET("/api/projects/:project/board", getBoard(sessions, log))
	e.GET("/api/projects/:project/board/export", exportBoard(sessions))
	e.POST("/api/projects/:project/board/import", importBoard(sessions, broker))
	e.GET("/api/projects/:project/layout", getLayout(sessions))
	e.POST("/api/projects/:project/reorder", applyReorder(sessions, broker, log))
	e.POST("/api/projects/:project/tasks", postTask(sessions, broker, deduper))
	e.PATCH("/api/projects/:project/tasks/:id", patchTask(sessions, broker))
	e.DELETE("/api/projects/:project/tasks/:id", deleteTask(sessions, broker))
	e.POST("/api/projects/:project/tasks/:id/move", moveTask(sessions, broker))
	e.POST("/api/projects/:project/columns", postColumn(sessions, broker, deduper))
	e.PATCH("/api/projects/:project/columns/:id", renameColumn(sessions, broker))
	e.DELETE("/api/projects/:project/columns/:id", deleteColumn(sessions, broker))
	e.GET("/api/projects/:project/events", streamBoardEvents(broker))
	e.GET("/healthz", healthz())
	e.GET("/readyz", readyz(store))
	e.GET("/debug/sender", senderStatsHandler())

	initEventSender(store, log)
}

func senderStatsHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, getSenderStats())
	}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func readyz(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.Ping(c.Request().Context()); err != nil {
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(sessions *sessionRegistry, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger, "/api/projects/:project/board")
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		projectID := c.Param("project")
		if verr := validateProjectID(projectID); verr != nil {
			metrics.SetErrorStage("invalid_project")
			err = c.String(http.StatusBadRequest, verr.Error())
			return err
		}
		metrics.SetProject(projectID)

		opStart := time.Now()
		board, loadErr := sessions.session(projectID).Load(ctx)
		metrics.ObserveOp(time.Since(opStart))
		if loadErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(loadErr)
			err = c.String(http.StatusInternalServerError, loadErr.Error())
			return err
		}
		metrics.SetTasksOnBoard(len(board.Tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, board)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func exportBoard(sessions *sessionRegistry) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("project")
		if err := validateProjectID(projectID); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		data, err := sessions.session(projectID).Export(c.Request().Context())
		if err != nil {
			return httpError(c, err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="kanban_board.json"`)
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
	}
}

func importBoard(sessions *sessionRegistry, broker *updateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("project")
		if err := validateProjectID(projectID); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		data, err := io.ReadAll(io.LimitReader(c.Request().Body, importMaxSize))
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := sessions.session(projectID).Import(c.Request().Context(), data); err != nil {
			return httpError(c, err)
		}
		emitBoardEvent(broker, domain.BoardEvent{
			Project:   projectID,
			Op:        domain.EventBoardImported,
			Timestamp: nextTimestamp(),
		})
		return c.NoContent(http.StatusNoContent)
	}
}

func getLayout(sessions *sessionRegistry) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("project")
		if err := validateProjectID(projectID); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		layout, err := sessions.session(projectID).Layout(c.Request().Context(), filterFromQuery(c))
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, layoutResponse{Columns: layout.Columns})
	}
}

func applyReorder(sessions *sessionRegistry, broker *updateBroker, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger, "/api/projects/:project/reorder")
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		projectID := c.Param("project")
		if verr := validateProjectID(projectID); verr != nil {
			metrics.SetErrorStage("invalid_project")
			err = c.String(http.StatusBadRequest, verr.Error())
			return err
		}
		metrics.SetProject(projectID)

		var req reorderRequest
		if decErr := decodeJSON(c, mutationMaxSize, &req); decErr != nil {
			metrics.SetErrorStage("decode_request")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}

		opStart := time.Now()
		changed, opErr := sessions.session(projectID).ApplyLayout(ctx, req.Groups)
		metrics.ObserveOp(time.Since(opStart))
		if opErr != nil {
			metrics.SetErrorStage(stageForError(opErr))
			err = httpError(c, opErr)
			return err
		}
		metrics.SetBoardChanged(changed)

		if changed {
			emitBoardEvent(broker, domain.BoardEvent{
				Project:   projectID,
				Op:        domain.EventBoardReordered,
				Timestamp: nextTimestamp(),
			})
		}
		err = c.JSON(http.StatusOK, reorderResponse{Changed: changed})
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTask(sessions *sessionRegistry, broker *updateBroker, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("project")
		if err := validateProjectID(projectID); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if id, ok := replayedID(c, deduper, projectID); ok {
			return c.JSON(http.StatusOK, idResponse{ID: id})
		}
		var req addTaskRequest
		if err := decodeJSON(c, mutationMaxSize, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		id, err := sessions.session(projectID).AddTask(c.Request().Context(), req.ColumnID, req.draft())
		if err != nil {
			return httpError(c, err)
		}
		rememberID(c, deduper, projectID, id)
		emitBoardEvent(broker, domain.BoardEvent{
			Project:   projectID,
			Op:        domain.EventTaskAdded,
			TaskID:    id,
			ColumnID:  req.ColumnID,
			Timestamp: nextTimestamp(),
		})
		return c.JSON(http.StatusCreated, idResponse{ID: id})
	}
}

func patchTask(sessions *sessionRegistry, broker *updateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("project")
		if err := validateProjectID(projectID); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		var patch domain.TaskPatch
		if err := decodeJSON(c, mutationMaxSize, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if patch.Empty() {
			return c.String(http.StatusBadRequest, "empty patch")
		}
		taskID := c.Param("id")
		task, err := sessions.session(projectID).EditTask(c.Request().Context(), taskID, patch)
		if err != nil {
			return httpError(c, err)
		}
		emitBoardEvent(broker, domain.BoardEvent{
			Project:   projectID,
			Op:        domain.EventTaskEdited,
			TaskID:    taskID,
			Timestamp: nextTimestamp(),
		})
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(sessions *sessionRegistry, broker *updateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("project")
		if err := validateProjectID(projectID); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		taskID := c.Param("id")
		removed, err := sessions.session(projectID).DeleteTask(c.Request().Context(), taskID)
		if err != nil {
			return httpError(c, err)
		}
		if removed {
			emitBoardEvent(broker, domain.BoardEvent{
				Project:   projectID,
				Op:        domain.EventTaskDeleted,
				TaskID:    taskID,
				Timestamp: nextTimestamp(),
			})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func moveTask(sessions *sessionRegistry, broker *updateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("project")
		if err := validateProjectID(projectID); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		var req moveTaskRequest
		if err := decodeJSON(c, mutationMaxSize, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		index := -1
		if req.Index != nil {
			index = *req.Index
		}
		taskID := c.Param("id")
		if err := sessions.session(projectID).MoveTask(c.Request().Context(), taskID, req.ColumnID, index); err != nil {
			return httpError(c, err)
		}
		emitBoardEvent(broker, domain.BoardEvent{
			Project:   projectID,
			Op:        domain.EventTaskMoved,
			TaskID:    taskID,
			ColumnID:  req.ColumnID,
			Timestamp: nextTimestamp(),
		})
		return c.NoContent(http.StatusNoContent)
	}
}

func postColumn(sessions *sessionRegistry, broker *updateBroker, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("project")
		if err := validateProjectID(projectID); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if id, ok := replayedID(c, deduper, projectID); ok {
			return c.JSON(http.StatusOK, idResponse{ID: id})
		}
		var req columnRequest
		if err := decodeJSON(c, mutationMaxSize, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		id, err := sessions.session(projectID).AddColumn(c.Request().Context(), req.Name)
		if err != nil {
			return httpError(c, err)
		}
		rememberID(c, deduper, projectID, id)
		emitBoardEvent(broker, domain.BoardEvent{
			Project:   projectID,
			Op:        domain.EventColumnAdded,
			ColumnID:  id,
			Timestamp: nextTimestamp(),
		})
		return c.JSON(http.StatusCreated, idResponse{ID: id})
	}
}

func renameColumn(sessions *sessionRegistry, broker *updateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("project")
		if err := validateProjectID(projectID); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		var req columnRequest
		if err := decodeJSON(c, mutationMaxSize, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		columnID := c.Param("id")
		if err := sessions.session(projectID).RenameColumn(c.Request().Context(), columnID, req.Name); err != nil {
			return httpError(c, err)
		}
		emitBoardEvent(broker, domain.BoardEvent{
			Project:   projectID,
			Op:        domain.EventColumnRenamed,
			ColumnID:  columnID,
			Timestamp: nextTimestamp(),
		})
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteColumn(sessions *sessionRegistry, broker *updateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("project")
		if err := validateProjectID(projectID); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		columnID := c.Param("id")
		moveTasksTo := c.QueryParam("moveTasksTo")
		if err := sessions.session(projectID).DeleteColumn(c.Request().Context(), columnID, moveTasksTo); err != nil {
			return httpError(c, err)
		}
		emitBoardEvent(broker, domain.BoardEvent{
			Project:   projectID,
			Op:        domain.EventColumnDeleted,
			ColumnID:  columnID,
			Timestamp: nextTimestamp(),
		})
		return c.NoContent(http.StatusNoContent)
	}
}

// decodeJSON strictly decodes a size-capped JSON request body into dst.
func decodeJSON(c echo.Context, limit int64, dst any) error {
	lr := io.LimitReader(c.Request().Body, limit)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

const idempotencyKeyHeader = "Idempotency-Key"

// replayedID answers a repeated creation request with the id produced the
// first time. Lookup failures are logged and treated as a miss.
func replayedID(c echo.Context, deduper Deduper, projectID string) (string, bool) {
	if deduper == nil {
		return "", false
	}
	key := c.Request().Header.Get(idempotencyKeyHeader)
	if key == "" {
		return "", false
	}
	id, ok, err := deduper.Recall(c.Request().Context(), projectID, key)
	if err != nil {
		c.Logger().Warnf("idempotency lookup failed: %v", err)
		return "", false
	}
	return id, ok
}

// rememberID records the id produced for the request's idempotency key.
// Failures are logged, the next replay simply recreates.
func rememberID(c echo.Context, deduper Deduper, projectID, id string) {
	if deduper == nil {
		return
	}
	key := c.Request().Header.Get(idempotencyKeyHeader)
	if key == "" {
		return
	}
	if err := deduper.Remember(c.Request().Context(), projectID, key, id); err != nil {
		c.Logger().Warnf("idempotency record failed: %v", err)
	}
}

// filterFromQuery reads the cosmetic board filter from query parameters.
// Repeated priority and tag parameters accumulate.
func filterFromQuery(c echo.Context) domain.Filter {
	f := domain.Filter{Title: strings.TrimSpace(c.QueryParam("title"))}
	for _, p := range c.QueryParams()["priority"] {
		if p = strings.TrimSpace(p); p != "" {
			f.Priorities = append(f.Priorities, domain.Priority(p))
		}
	}
	for _, tag := range c.QueryParams()["tag"] {
		if tag = strings.TrimSpace(tag); tag != "" {
			f.Tags = append(f.Tags, tag)
		}
	}
	return f
}

// httpError maps domain errors onto response statuses. Unrecognized errors are
// treated as storage failures.
func httpError(c echo.Context, err error) error {
	var ve *domain.ValidationError
	var nf *domain.NotFoundError
	var ce *domain.ConflictError
	switch {
	case errors.As(err, &ve):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.As(err, &nf):
		return c.String(http.StatusNotFound, err.Error())
	case errors.As(err, &ce),
		errors.Is(err, domain.ErrNoActiveLayout),
		errors.Is(err, domain.ErrColumnNotEmpty):
		return c.String(http.StatusConflict, err.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

func stageForError(err error) string {
	var ve *domain.ValidationError
	var nf *domain.NotFoundError
	var ce *domain.ConflictError
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &ce),
		errors.Is(err, domain.ErrNoActiveLayout),
		errors.Is(err, domain.ErrColumnNotEmpty):
		return "conflict"
	default:
		return "storage"
	}
}
