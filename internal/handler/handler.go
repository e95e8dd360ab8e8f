package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/drill/internal/catalog"
	"github.com/pavelanni/drill/internal/handler/views"
	"github.com/pavelanni/drill/internal/importer"
	"github.com/pavelanni/drill/internal/library"
	"github.com/pavelanni/drill/internal/model"
	"github.com/pavelanni/drill/internal/practice"
	"github.com/pavelanni/drill/internal/store"
)

// Explainer produces a tutor explanation for a question. selected is nil
// when the question has not been answered.
type Explainer interface {
	Explain(ctx context.Context, q model.Question, selected []int, lang string) (string, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	catalog   *catalog.Catalog
	engine    *practice.Engine
	library   *library.Library
	importer  *importer.Importer
	explainer Explainer
	config    model.AppConfig

	mu       sync.Mutex
	sessions map[int64]*sessionEntry
}

// New creates a new Handler. A nil explainer disables explanations.
func New(s *store.Store, c *catalog.Catalog, e *practice.Engine, explainer Explainer, cfg model.AppConfig) *Handler {
	return &Handler{
		store:     s,
		catalog:   c,
		engine:    e,
		library:   library.New(s, c, cfg.PageSize),
		importer:  importer.New(s, c),
		explainer: explainer,
		config:    cfg,
		sessions:  make(map[int64]*sessionEntry),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/questions", h.handleSearchQuestions)
		r.Route("/questions/{questionID}", func(r chi.Router) {
			r.Get("/", h.handleGetQuestion)
			r.Put("/favorites/{tag}", h.handlePutFavorite)
			r.Delete("/favorites/{tag}", h.handleDeleteFavorite)
		})

		r.Get("/qlists", h.handleListQLists)
		r.Post("/qlists", h.handleCreateQList)
		r.Patch("/qlists/{qlistID}", h.handleUpdateQList)
		r.Delete("/qlists/{qlistID}", h.handleDeleteQList)

		r.Get("/practices", h.handleListPractices)
		r.Post("/practices", h.handleStartPractice)
		r.Post("/practices/custom", h.handleStartCustomPractice)
		r.Route("/practices/{practiceID}", func(r chi.Router) {
			r.Get("/", h.handleGetPractice)
			r.Delete("/", h.handleDeletePractice)
			r.Post("/next", h.handleNext)
			r.Post("/prev", h.handlePrev)
			r.Post("/answer", h.handleAnswer)
			r.Delete("/answers/{questionID}", h.handleCancelAnswer)
			r.Post("/complete", h.handleComplete)
			r.Post("/review", h.handleReview)
			r.Get("/explain", h.handleExplain)
		})

		r.Get("/answers", h.handleListAnswers)

		r.Post("/import/questions", h.handleImportQuestions)
		r.Post("/import/history", h.handleImportHistory)
		r.Get("/export/history", h.handleExportHistory)
	})
}

// BasePathMiddleware makes the configured base path available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	lists, err := h.library.QLists(r.Context(), false, 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	practices, err := h.library.Practices(r.Context(), 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.IndexPage(lists.Items, practices.Items).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := h.store.SchemaVersion(r.Context())
	if err == nil {
		var stored int
		if stored, err = h.store.QuestionCount(r.Context()); err == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":           "ok",
				"schema":           version,
				"questions":        h.catalog.Len(),
				"stored_questions": stored,
			})
			return
		}
	}
	slog.Error("health check failed", "error", err)
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
}
