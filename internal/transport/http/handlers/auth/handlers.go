package authhandler

import (
	"net/http"

	"evalhub/internal/domain/auth"
	"evalhub/internal/requestctx"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

type Handler struct {
	Service *auth.Service
}

func NewHandler(service *auth.Service) *Handler {
	return &Handler{Service: service}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfaCode"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

type mfaCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	session, err := h.Service.Login(r.Context(), payload.Email, payload.Password, payload.MFACode)
	if err != nil {
		shared.WriteError(w, r, "login_failed", "failed to sign in", err)
		return
	}
	api.Success(w, session, requestctx.GetRequestID(r.Context()))
}

// HandleLogout has nothing to revoke; tokens are stateless and expire on their own.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	api.Success(w, map[string]string{"status": "logged_out"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	summary, err := h.Service.Me(r.Context(), user.UserID)
	if err != nil {
		shared.WriteError(w, r, "me_failed", "failed to load profile", err)
		return
	}
	api.Success(w, summary, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload passwordRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	if err := h.Service.ChangeOwnPassword(r.Context(), user.UserID, payload.CurrentPassword, payload.NewPassword); err != nil {
		shared.WriteError(w, r, "password_update_failed", "failed to update password", err)
		return
	}
	api.Success(w, map[string]string{"status": "password_updated"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleMFASetup(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	setup, err := h.Service.SetupMFA(r.Context(), user.UserID)
	if err != nil {
		shared.WriteError(w, r, "mfa_setup_failed", "failed to generate mfa secret", err)
		return
	}
	api.Success(w, setup, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleMFAEnable(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload mfaCodeRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	if err := h.Service.EnableMFA(r.Context(), user.UserID, payload.Code); err != nil {
		shared.WriteError(w, r, "mfa_enable_failed", "failed to enable mfa", err)
		return
	}
	api.Success(w, map[string]string{"status": "enabled"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleMFADisable(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload mfaCodeRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	if err := h.Service.DisableMFA(r.Context(), user.UserID, payload.Code); err != nil {
		shared.WriteError(w, r, "mfa_disable_failed", "failed to disable mfa", err)
		return
	}
	api.Success(w, map[string]string{"status": "disabled"}, requestctx.GetRequestID(r.Context()))
}
