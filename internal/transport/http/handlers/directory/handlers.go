package directoryhandler

import (
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"evalhub/internal/domain/audit"
	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/directory"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

const maxImportMemory = 4 << 20

type Handler struct {
	Service *directory.Service
	Perms   middleware.PermissionStore
	Audit   *audit.Service
}

func NewHandler(service *directory.Service, perms middleware.PermissionStore, auditSvc *audit.Service) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/supervisors", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermSupervisorsRead, h.Perms)).Get("/", h.handleListSupervisors)
		r.With(middleware.RequirePermission(auth.PermSupervisorsWrite, h.Perms)).Post("/", h.handleCreateSupervisor)
		r.Route("/{supervisorID}", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermSupervisorsRead, h.Perms)).Get("/", h.handleGetSupervisor)
			r.With(middleware.RequirePermission(auth.PermSupervisorsWrite, h.Perms)).Put("/", h.handleUpdateSupervisor)
			r.With(middleware.RequirePermission(auth.PermSupervisorsWrite, h.Perms)).Post("/password", h.handleSetPassword)
			r.With(middleware.RequirePermission(auth.PermSupervisorsWrite, h.Perms)).Delete("/", h.handleArchiveSupervisor)
		})
	})
	r.Route("/employees", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermEmployeesRead, h.Perms)).Get("/", h.handleListEmployees)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Post("/", h.handleCreateEmployee)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Post("/import", h.handleImportEmployees)
		r.Route("/{employeeID}", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermEmployeesRead, h.Perms)).Get("/", h.handleGetEmployee)
			r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Put("/", h.handleUpdateEmployee)
			r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Delete("/", h.handleArchiveEmployee)
		})
	})
}

type supervisorRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password"`
}

type passwordRequest struct {
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

type employeeRequest struct {
	Code         string `json:"code" validate:"required,max=50"`
	Name         string `json:"name" validate:"required,max=200"`
	SupervisorID string `json:"supervisorId" validate:"required"`
}

func (h *Handler) record(r *http.Request, action, entityType, entityID string, before, after any) {
	user, _ := middleware.GetUser(r.Context())
	if err := h.Audit.Record(r.Context(), user.UserID, action, entityType, entityID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, after); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}

func (h *Handler) handleListSupervisors(w http.ResponseWriter, r *http.Request) {
	filter := directory.SupervisorFilter{
		Role:            r.URL.Query().Get("role"),
		IncludeArchived: r.URL.Query().Get("includeArchived") == "true",
	}
	list, err := h.Service.ListSupervisors(r.Context(), filter)
	if err != nil {
		shared.WriteError(w, r, "supervisor_list_failed", "failed to list supervisors", err)
		return
	}
	api.Success(w, list, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateSupervisor(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload supervisorRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	sup, err := h.Service.CreateSupervisor(r.Context(), user.UserID, directory.SupervisorInput{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		shared.WriteError(w, r, "supervisor_create_failed", "failed to create supervisor", err)
		return
	}
	h.record(r, audit.ActionSupervisorCreate, "supervisor", sup.ID, nil, sup)
	api.Created(w, sup, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetSupervisor(w http.ResponseWriter, r *http.Request) {
	sup, err := h.Service.GetSupervisor(r.Context(), chi.URLParam(r, "supervisorID"))
	if err != nil {
		shared.WriteError(w, r, "supervisor_read_failed", "failed to read supervisor", err)
		return
	}
	api.Success(w, sup, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateSupervisor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "supervisorID")
	var payload supervisorRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	before, err := h.Service.GetSupervisor(r.Context(), id)
	if err != nil {
		shared.WriteError(w, r, "supervisor_update_failed", "failed to update supervisor", err)
		return
	}
	sup, err := h.Service.UpdateSupervisor(r.Context(), id, directory.SupervisorInput{Name: payload.Name, Email: payload.Email})
	if err != nil {
		shared.WriteError(w, r, "supervisor_update_failed", "failed to update supervisor", err)
		return
	}
	h.record(r, audit.ActionSupervisorUpdate, "supervisor", id, before, sup)
	api.Success(w, sup, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "supervisorID")
	var payload passwordRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	if err := h.Service.SetPassword(r.Context(), id, payload.Password, payload.ConfirmPassword); err != nil {
		shared.WriteError(w, r, "password_update_failed", "failed to update password", err)
		return
	}
	h.record(r, audit.ActionSupervisorPassword, "supervisor", id, nil, nil)
	api.Success(w, map[string]string{"status": "password_updated"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleArchiveSupervisor(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "supervisorID")
	if err := h.Service.ArchiveSupervisor(r.Context(), user.UserID, id); err != nil {
		shared.WriteError(w, r, "supervisor_archive_failed", "failed to archive supervisor", err)
		return
	}
	h.record(r, audit.ActionSupervisorArchive, "supervisor", id, nil, nil)
	api.Success(w, map[string]string{"status": "archived"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	filter := directory.EmployeeFilter{
		SupervisorID:    r.URL.Query().Get("supervisorId"),
		IncludeArchived: r.URL.Query().Get("includeArchived") == "true",
	}
	if !user.IsManager() {
		filter.SupervisorID = user.UserID
	}
	list, err := h.Service.ListEmployees(r.Context(), filter)
	if err != nil {
		shared.WriteError(w, r, "employee_list_failed", "failed to list employees", err)
		return
	}
	api.Success(w, list, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var payload employeeRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	emp, err := h.Service.CreateEmployee(r.Context(), directory.EmployeeInput{
		Code:         payload.Code,
		Name:         payload.Name,
		SupervisorID: payload.SupervisorID,
	})
	if err != nil {
		shared.WriteError(w, r, "employee_create_failed", "failed to create employee", err)
		return
	}
	h.record(r, audit.ActionEmployeeCreate, "employee", emp.ID, nil, emp)
	api.Created(w, emp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	emp, err := h.Service.GetEmployee(r.Context(), chi.URLParam(r, "employeeID"))
	if err != nil {
		shared.WriteError(w, r, "employee_read_failed", "failed to read employee", err)
		return
	}
	if !user.IsManager() && emp.SupervisorID != user.UserID {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, emp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "employeeID")
	var payload employeeRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	before, err := h.Service.GetEmployee(r.Context(), id)
	if err != nil {
		shared.WriteError(w, r, "employee_update_failed", "failed to update employee", err)
		return
	}
	emp, err := h.Service.UpdateEmployee(r.Context(), id, directory.EmployeeInput{
		Code:         payload.Code,
		Name:         payload.Name,
		SupervisorID: payload.SupervisorID,
	})
	if err != nil {
		shared.WriteError(w, r, "employee_update_failed", "failed to update employee", err)
		return
	}
	h.record(r, audit.ActionEmployeeUpdate, "employee", id, before, emp)
	api.Success(w, emp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleArchiveEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "employeeID")
	if err := h.Service.ArchiveEmployee(r.Context(), id); err != nil {
		shared.WriteError(w, r, "employee_archive_failed", "failed to archive employee", err)
		return
	}
	h.record(r, audit.ActionEmployeeArchive, "employee", id, nil, nil)
	api.Success(w, map[string]string{"status": "archived"}, middleware.GetRequestID(r.Context()))
}

// handleImportEmployees accepts either a raw text/csv body or a multipart
// upload in the "file" field.
func (h *Handler) handleImportEmployees(w http.ResponseWriter, r *http.Request) {
	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxImportMemory); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid upload", middleware.GetRequestID(r.Context()))
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "file is required", middleware.GetRequestID(r.Context()))
			return
		}
		defer file.Close()
		src = file
	}

	result, err := h.Service.ImportEmployees(r.Context(), src)
	if err != nil {
		shared.WriteError(w, r, "employee_import_failed", "failed to import employees", err)
		return
	}
	h.record(r, audit.ActionEmployeeImport, "employee", "", nil, result)
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}
