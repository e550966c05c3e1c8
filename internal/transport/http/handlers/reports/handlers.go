package reportshandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/reports"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

type Handler struct {
	Service *reports.Service
	Perms   middleware.PermissionStore
}

func NewHandler(service *reports.Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/dashboard", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/", h.handleDashboard)
		r.With(middleware.RequirePermission(auth.PermEvaluationsReadAll, h.Perms)).Get("/manager", h.handleManagerDashboard)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/supervisor", h.handleSupervisorDashboard)
	})
}

// handleDashboard picks the dashboard matching the caller's role.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	if user.IsManager() {
		h.handleManagerDashboard(w, r)
		return
	}
	h.handleSupervisorDashboard(w, r)
}

func (h *Handler) handleManagerDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.Service.Manager(r.Context())
	if err != nil {
		shared.WriteError(w, r, "dashboard_failed", "failed to load dashboard", err)
		return
	}
	api.Success(w, dashboard, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSupervisorDashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	dashboard, err := h.Service.Supervisor(r.Context(), user.UserID)
	if err != nil {
		shared.WriteError(w, r, "dashboard_failed", "failed to load dashboard", err)
		return
	}
	api.Success(w, dashboard, middleware.GetRequestID(r.Context()))
}
