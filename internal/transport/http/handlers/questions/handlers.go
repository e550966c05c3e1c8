package questionshandler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"evalhub/internal/domain/audit"
	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/questions"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

type Handler struct {
	Service *questions.Service
	Perms   middleware.PermissionStore
	Audit   *audit.Service
}

func NewHandler(service *questions.Service, perms middleware.PermissionStore, auditSvc *audit.Service) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/questions", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermQuestionsRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermQuestionsWrite, h.Perms)).Post("/", h.handleCreate)
		r.Route("/{questionID}", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermQuestionsRead, h.Perms)).Get("/", h.handleGet)
			r.With(middleware.RequirePermission(auth.PermQuestionsWrite, h.Perms)).Put("/", h.handleUpdate)
			r.With(middleware.RequirePermission(auth.PermQuestionsWrite, h.Perms)).Delete("/", h.handleDelete)
			r.With(middleware.RequirePermission(auth.PermQuestionsWrite, h.Perms)).Post("/answers", h.handleAddAnswer)
		})
	})
	r.Route("/answers/{answerID}", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermQuestionsWrite, h.Perms)).Put("/", h.handleUpdateAnswer)
		r.With(middleware.RequirePermission(auth.PermQuestionsWrite, h.Perms)).Delete("/", h.handleDeleteAnswer)
	})
}

// Field rules live in questions.Service so HTTP and seed input report the
// same field paths.
type answerRequest struct {
	Text       string `json:"text"`
	Score      *int   `json:"score"`
	OrderIndex int    `json:"orderIndex"`
}

type questionRequest struct {
	Text       string          `json:"text"`
	Active     *bool           `json:"active"`
	OrderIndex int             `json:"orderIndex"`
	Answers    []answerRequest `json:"answers"`
}

func (a answerRequest) input() questions.AnswerInput {
	return questions.AnswerInput{Text: a.Text, Score: a.Score, OrderIndex: a.OrderIndex}
}

func (q questionRequest) input() questions.QuestionInput {
	in := questions.QuestionInput{Text: q.Text, Active: q.Active, OrderIndex: q.OrderIndex}
	for _, a := range q.Answers {
		in.Answers = append(in.Answers, a.input())
	}
	return in
}

func (h *Handler) record(r *http.Request, action, entityType, entityID string, before, after any) {
	user, _ := middleware.GetUser(r.Context())
	if err := h.Audit.Record(r.Context(), user.UserID, action, entityType, entityID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, after); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}

// handleList returns the whole bank to managers unless ?active=true is set.
// Supervisors only ever see active questions.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	activeOnly := !user.IsManager() || r.URL.Query().Get("active") == "true"
	list, err := h.Service.List(r.Context(), activeOnly)
	if err != nil {
		shared.WriteError(w, r, "question_list_failed", "failed to list questions", err)
		return
	}
	api.Success(w, list, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	q, err := h.Service.Get(r.Context(), chi.URLParam(r, "questionID"))
	if err != nil {
		shared.WriteError(w, r, "question_read_failed", "failed to read question", err)
		return
	}
	api.Success(w, q, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload questionRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	q, err := h.Service.Create(r.Context(), payload.input())
	if err != nil {
		shared.WriteError(w, r, "question_create_failed", "failed to create question", err)
		return
	}
	h.record(r, audit.ActionQuestionCreate, "question", q.ID, nil, q)
	api.Created(w, q, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "questionID")
	var payload questionRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	before, err := h.Service.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, r, "question_update_failed", "failed to update question", err)
		return
	}
	q, err := h.Service.Update(r.Context(), id, payload.input())
	if err != nil {
		shared.WriteError(w, r, "question_update_failed", "failed to update question", err)
		return
	}
	h.record(r, audit.ActionQuestionUpdate, "question", id, before, q)
	api.Success(w, q, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "questionID")
	if err := h.Service.Delete(r.Context(), id); err != nil {
		shared.WriteError(w, r, "question_delete_failed", "failed to delete question", err)
		return
	}
	h.record(r, audit.ActionQuestionDelete, "question", id, nil, nil)
	api.Success(w, map[string]string{"status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAddAnswer(w http.ResponseWriter, r *http.Request) {
	var payload answerRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	a, err := h.Service.AddAnswer(r.Context(), chi.URLParam(r, "questionID"), payload.input())
	if err != nil {
		shared.WriteError(w, r, "answer_create_failed", "failed to add answer", err)
		return
	}
	h.record(r, audit.ActionAnswerCreate, "answer", a.ID, nil, a)
	api.Created(w, a, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "answerID")
	var payload answerRequest
	if !shared.DecodeAndValidate(w, r, &payload) {
		return
	}
	a, err := h.Service.UpdateAnswer(r.Context(), id, payload.input())
	if err != nil {
		shared.WriteError(w, r, "answer_update_failed", "failed to update answer", err)
		return
	}
	h.record(r, audit.ActionAnswerUpdate, "answer", id, nil, a)
	api.Success(w, a, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "answerID")
	if err := h.Service.DeleteAnswer(r.Context(), id); err != nil {
		shared.WriteError(w, r, "answer_delete_failed", "failed to delete answer", err)
		return
	}
	h.record(r, audit.ActionAnswerDelete, "answer", id, nil, nil)
	api.Success(w, map[string]string{"status": "deleted"}, middleware.GetRequestID(r.Context()))
}
