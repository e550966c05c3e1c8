package evaluationshandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"

	"evalhub/internal/domain/audit"
	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/evaluation"
	"evalhub/internal/domain/notifications"
	"evalhub/internal/domain/validation"
	"evalhub/internal/platform/metrics"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

const submitEndpoint = "evaluations.submit"

type Handler struct {
	Service     *evaluation.Service
	Perms       middleware.PermissionStore
	Audit       *audit.Service
	Notify      *notifications.Service
	Idempotency *middleware.IdempotencyStore
	Metrics     *metrics.Collector
	// ExportLimit, when set, wraps the export route.
	ExportLimit func(http.Handler) http.Handler
}

func NewHandler(service *evaluation.Service, perms middleware.PermissionStore, auditSvc *audit.Service, notify *notifications.Service, idem *middleware.IdempotencyStore, collector *metrics.Collector) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditSvc, Notify: notify, Idempotency: idem, Metrics: collector}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/settings/evaluations", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermSettingsRead, h.Perms)).Get("/", h.handleGetGate)
		r.With(middleware.RequirePermission(auth.PermSettingsWrite, h.Perms)).Put("/", h.handleSetGate)
		r.With(middleware.RequirePermission(auth.PermSettingsWrite, h.Perms)).Post("/toggle", h.handleToggleGate)
	})
	r.Route("/periods", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermEvaluationsReadAll, h.Perms)).Get("/", h.handleListPeriods)
		r.With(middleware.RequirePermission(auth.PermEvaluationsRead, h.Perms)).Get("/current", h.handleCurrentPeriod)
		r.With(middleware.RequirePermission(auth.PermEvaluationsReadAll, h.Perms)).Get("/{bucketID}/evaluations", h.handleBucketEvaluations)
		export := r.With(middleware.RequirePermission(auth.PermEvaluationsExport, h.Perms))
		if h.ExportLimit != nil {
			export = export.With(h.ExportLimit)
		}
		export.Get("/{bucketID}/export", h.handleExport)
	})
	r.With(middleware.RequirePermission(auth.PermEvaluationsRead, h.Perms)).Get("/evaluations", h.handleListEvaluations)
	r.With(middleware.RequirePermission(auth.PermEvaluationsRead, h.Perms)).Get("/evaluations/{evaluationID}", h.handleGetEvaluation)
	r.With(middleware.RequirePermission(auth.PermEvaluationsSubmit, h.Perms)).Post("/employees/{employeeID}/evaluations", h.handleSubmit)
}

type gateResponse struct {
	Previous bool `json:"previous"`
	Enabled  bool `json:"enabled"`
}

func (h *Handler) handleGetGate(w http.ResponseWriter, r *http.Request) {
	state, err := h.Service.Gate().State(r.Context())
	if err != nil {
		shared.WriteError(w, r, "gate_read_failed", "failed to read evaluation settings", err)
		return
	}
	api.Success(w, state, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSetGate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload struct {
		Enabled *bool `json:"enabled" validate:"required"`
	}
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	prior, err := h.Service.Gate().SetEnabled(r.Context(), user.UserID, *payload.Enabled)
	if err != nil {
		shared.WriteError(w, r, "gate_update_failed", "failed to update evaluation settings", err)
		return
	}
	h.gateChanged(r, user, prior, *payload.Enabled)
	api.Success(w, gateResponse{Previous: prior, Enabled: *payload.Enabled}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleToggleGate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	prior, err := h.Service.Gate().Toggle(r.Context(), user.UserID)
	if err != nil {
		shared.WriteError(w, r, "gate_update_failed", "failed to update evaluation settings", err)
		return
	}
	h.gateChanged(r, user, prior, !prior)
	api.Success(w, gateResponse{Previous: prior, Enabled: !prior}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) gateChanged(r *http.Request, user auth.UserContext, prior, enabled bool) {
	httplog.LogEntry(r.Context()).Info("evaluation gate changed", "previous", prior, "enabled", enabled, "actorId", user.UserID)
	h.Metrics.Inc(metrics.GateToggles)
	action := audit.ActionGateDisabled
	if enabled {
		action = audit.ActionGateEnabled
	}
	if err := h.Audit.Record(r.Context(), user.UserID, action, "evaluation_gate", "1", middleware.GetRequestID(r.Context()), shared.ClientIP(r), gateResponse{Enabled: prior}, gateResponse{Previous: prior, Enabled: enabled}); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
	if !prior && enabled && h.Notify != nil {
		h.Notify.GateOpened(h.Service.CurrentPeriod().Name())
	}
}

func (h *Handler) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.Service.ListBuckets(r.Context())
	if err != nil {
		shared.WriteError(w, r, "period_list_failed", "failed to list periods", err)
		return
	}
	api.Success(w, buckets, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCurrentPeriod(w http.ResponseWriter, r *http.Request) {
	period := h.Service.CurrentPeriod()
	open, err := h.Service.Gate().CanSubmit(r.Context())
	if err != nil {
		shared.WriteError(w, r, "period_read_failed", "failed to read current period", err)
		return
	}
	api.Success(w, map[string]any{
		"year":    period.Year,
		"month":   period.Month,
		"name":    period.Name(),
		"enabled": open,
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleBucketEvaluations(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.QueryByBucket(r.Context(), chi.URLParam(r, "bucketID"))
	if err != nil {
		shared.WriteError(w, r, "evaluation_list_failed", "failed to list evaluations", err)
		return
	}
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	format, err := evaluation.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		shared.WriteError(w, r, "export_failed", "failed to export evaluations", err)
		return
	}
	bucketID := chi.URLParam(r, "bucketID")
	out, err := h.Service.Export(r.Context(), bucketID, format)
	if err != nil {
		shared.WriteError(w, r, "export_failed", "failed to export evaluations", err)
		return
	}
	h.Metrics.Inc(metrics.ExportsRendered)
	if err := h.Audit.Record(r.Context(), user.UserID, audit.ActionEvaluationExport, "period_bucket", bucketID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), nil, map[string]string{"format": string(format)}); err != nil {
		slog.Warn("audit evaluations.export failed", "err", err)
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+out.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Body); err != nil {
		slog.Warn("export write failed", "err", err)
	}
}

func (h *Handler) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	query := r.URL.Query()

	var b validation.Builder
	filter := evaluation.Filter{
		SupervisorID: query.Get("supervisorId"),
		EmployeeID:   query.Get("employeeId"),
		Year:         intParam(&b, "year", query.Get("year")),
		Month:        intParam(&b, "month", query.Get("month")),
	}
	if err := b.Err(); err != nil {
		shared.WriteError(w, r, "evaluation_list_failed", "failed to list evaluations", err)
		return
	}
	if !h.canReadAll(r, user) {
		filter.SupervisorID = user.UserID
	}

	records, err := h.Service.Query(r.Context(), filter)
	if err != nil {
		shared.WriteError(w, r, "evaluation_list_failed", "failed to list evaluations", err)
		return
	}
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	record, err := h.Service.Get(r.Context(), chi.URLParam(r, "evaluationID"))
	if err != nil {
		shared.WriteError(w, r, "evaluation_read_failed", "failed to read evaluation", err)
		return
	}
	if record.SupervisorID != user.UserID && !h.canReadAll(r, user) {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{
		"evaluation":   record,
		"totalScore":   record.TotalScore(),
		"averageScore": averageOrNil(record),
	}, middleware.GetRequestID(r.Context()))
}

type submitRequest struct {
	Notes   string            `json:"notes" validate:"max=1000"`
	Answers map[string]string `json:"answers"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	employeeID := chi.URLParam(r, "employeeID")

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	var payload submitRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}

	subject, err := h.Service.Subject(r.Context(), employeeID)
	if err != nil {
		shared.WriteError(w, r, "evaluation_submit_failed", "failed to submit evaluation", err)
		return
	}
	if !user.IsManager() && subject.SupervisorID != user.UserID {
		api.Fail(w, http.StatusForbidden, "forbidden", "you can only evaluate your own employees", requestID)
		return
	}

	key := r.Header.Get(middleware.IdempotencyHeader)
	hash := middleware.RequestHash(append([]byte(employeeID+"\n"), raw...))
	if key != "" {
		stored, reserved, err := h.Idempotency.Reserve(r.Context(), user.UserID, submitEndpoint, key, hash)
		switch {
		case errors.Is(err, middleware.ErrIdempotencyConflict):
			api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different request", requestID)
			return
		case errors.Is(err, middleware.ErrIdempotencyInProgress):
			w.Header().Set("Retry-After", "1")
			api.Fail(w, http.StatusConflict, "idempotency_in_progress", "a request with this idempotency key is still in progress", requestID)
			return
		case err != nil:
			shared.WriteError(w, r, "evaluation_submit_failed", "failed to submit evaluation", err)
			return
		case !reserved:
			w.Header().Set("Idempotent-Replay", "true")
			api.Created(w, stored, requestID)
			return
		}
	}

	record, err := h.Service.Submit(r.Context(), evaluation.Submission{
		ActorID:   user.UserID,
		SubjectID: employeeID,
		Notes:     payload.Notes,
		Answers:   payload.Answers,
	})
	if err != nil {
		if key != "" {
			if err := h.Idempotency.Release(context.WithoutCancel(r.Context()), user.UserID, submitEndpoint, key); err != nil {
				slog.Warn("idempotency release failed", "err", err)
			}
		}
		if errors.Is(err, evaluation.ErrGateClosed) {
			h.Metrics.Inc(metrics.EvaluationsGateClosed)
		}
		shared.WriteError(w, r, "evaluation_submit_failed", "failed to submit evaluation", err)
		return
	}
	h.Metrics.Inc(metrics.EvaluationsSubmitted)
	httplog.LogEntry(r.Context()).Info("evaluation submitted", "evaluationId", record.ID, "year", record.Year, "month", record.Month)

	if err := h.Audit.Record(r.Context(), user.UserID, audit.ActionEvaluationSubmit, "evaluation", record.ID, requestID, shared.ClientIP(r), nil, record); err != nil {
		slog.Warn("audit evaluations.submit failed", "err", err)
	}
	if key != "" {
		if body, err := json.Marshal(record); err != nil {
			slog.Warn("idempotency encode failed", "err", err)
		} else if err := h.Idempotency.Complete(context.WithoutCancel(r.Context()), user.UserID, submitEndpoint, key, body); err != nil {
			slog.Warn("idempotency complete failed", "err", err)
		}
	}
	api.Created(w, record, requestID)
}

func (h *Handler) canReadAll(r *http.Request, user auth.UserContext) bool {
	allowed, err := h.Perms.HasPermission(r.Context(), user.Role, auth.PermEvaluationsReadAll)
	if err != nil {
		slog.Warn("permission check failed", "err", err)
		return false
	}
	return allowed
}

func intParam(b *validation.Builder, field, raw string) int {
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		b.Add(field, "must be a number")
		return 0
	}
	return v
}

func averageOrNil(record evaluation.Record) *float64 {
	avg, ok := record.AverageScore()
	if !ok {
		return nil
	}
	return &avg
}
