package notificationshandler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/evaluation"
	"evalhub/internal/domain/notifications"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

// Runner executes a job inline and reports its result. jobs.Service satisfies it.
type Runner interface {
	RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error)
}

type Periods interface {
	CurrentPeriod() evaluation.Period
	Gate() *evaluation.Gate
}

type Handler struct {
	Service *notifications.Service
	Jobs    Runner
	Periods Periods
	Perms   middleware.PermissionStore
}

func NewHandler(service *notifications.Service, jobs Runner, periods Periods, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Jobs: jobs, Periods: periods, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermSettingsWrite, h.Perms)).Post("/gate-opened", h.handleResendGateOpened)
	})
}

// handleResendGateOpened mails every active supervisor again and waits for the
// result. It refuses while the gate is closed.
func (h *Handler) handleResendGateOpened(w http.ResponseWriter, r *http.Request) {
	open, err := h.Periods.Gate().CanSubmit(r.Context())
	if err != nil {
		shared.WriteError(w, r, "notification_failed", "failed to send notification", err)
		return
	}
	if !open {
		shared.WriteError(w, r, "notification_failed", "failed to send notification", evaluation.ErrGateClosed)
		return
	}

	periodName := h.Periods.CurrentPeriod().Name()
	result, err := h.Jobs.RunNow(r.Context(), notifications.JobGateOpened, func(ctx context.Context) (any, error) {
		return h.Service.SendGateOpened(ctx, periodName)
	})
	if err != nil {
		shared.WriteError(w, r, "notification_failed", "failed to send notification", err)
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}
