package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	appI18n "github.com/pavelanni/drill/internal/i18n"
	"github.com/pavelanni/drill/internal/library"
	"github.com/pavelanni/drill/internal/model"
	"github.com/pavelanni/drill/internal/practice"
)

// shuffleRequest carries optional shuffle flags; unset flags take the
// configured defaults.
type shuffleRequest struct {
	ShuffleQuestions *bool `json:"shuffle_questions"`
	ShuffleChoices   *bool `json:"shuffle_choices"`
}

func (h *Handler) options(req shuffleRequest) practice.Options {
	opts := practice.Options{
		ShuffleQuestions: h.config.ShuffleQuestions,
		ShuffleChoices:   h.config.ShuffleChoices,
	}
	if req.ShuffleQuestions != nil {
		opts.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleChoices != nil {
		opts.ShuffleChoices = *req.ShuffleChoices
	}
	return opts
}

type startRequest struct {
	QListID int64 `json:"qlist_id"`
	shuffleRequest
}

func (h *Handler) handleStartPractice(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.QListID <= 0 {
		h.writeError(w, r, fmt.Errorf("%w: qlist_id is required", errBadRequest))
		return
	}
	q, err := h.store.GetQList(r.Context(), req.QListID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.engine.NewSession(r.Context(), q, h.options(req.shuffleRequest))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.keep(s)
	h.respondSession(w, r, http.StatusCreated, s)
}

type customRequest struct {
	Name        string  `json:"name"`
	QuestionIDs []int64 `json:"question_ids"`
	shuffleRequest
}

func (h *Handler) handleStartCustomPractice(w http.ResponseWriter, r *http.Request) {
	var req customRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		h.writeError(w, r, library.ErrEmptyName)
		return
	}
	if len(req.QuestionIDs) == 0 {
		h.writeError(w, r, fmt.Errorf("%w: question_ids is required", errBadRequest))
		return
	}
	s, err := h.engine.NewCustomSession(r.Context(), name, req.QuestionIDs, h.options(req.shuffleRequest))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.keep(s)
	h.respondSession(w, r, http.StatusCreated, s)
}

// sessionAction loads the practice named in the URL, runs fn on its session
// and responds with the resulting view.
func (h *Handler) sessionAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, s *practice.Session) error) {
	id, err := pathID(r, "practiceID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var view sessionView
	err = h.withSession(r.Context(), id, func(s *practice.Session) error {
		if err := fn(r.Context(), s); err != nil {
			return err
		}
		var err error
		view, err = h.present(r.Context(), s)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleGetPractice(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, func(context.Context, *practice.Session) error { return nil })
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, func(_ context.Context, s *practice.Session) error {
		_, err := s.Advance()
		return err
	})
}

func (h *Handler) handlePrev(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, func(_ context.Context, s *practice.Session) error {
		_, err := s.Retreat()
		return err
	})
}

type answerRequest struct {
	Selected []int `json:"selected"`
}

// handleAnswer grades the submitted choices of the current question and
// records the answer.
func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sessionAction(w, r, func(ctx context.Context, s *practice.Session) error {
		cur, ok := s.Current()
		if !ok {
			return practice.ErrEmptySession
		}
		if err := validateSelection(cur.Question, req.Selected); err != nil {
			return err
		}
		_, err := h.engine.RecordAnswer(ctx, s, practice.Grade(cur.Question, req.Selected), req.Selected)
		return err
	})
}

// validateSelection checks that selected names distinct existing choices of q,
// exactly one of them for single-selection questions.
func validateSelection(q model.Question, selected []int) error {
	if len(selected) == 0 {
		return fmt.Errorf("%w: no choice selected", errBadRequest)
	}
	if q.SelectionFormat != model.SelectionMulti && len(selected) != 1 {
		return fmt.Errorf("%w: question %d accepts one choice", errBadRequest, q.ID)
	}
	seen := make(map[int]bool, len(selected))
	for _, c := range selected {
		if c < 0 || c >= len(q.Choices) {
			return fmt.Errorf("%w: choice %d out of range", errBadRequest, c)
		}
		if seen[c] {
			return fmt.Errorf("%w: choice %d selected twice", errBadRequest, c)
		}
		seen[c] = true
	}
	return nil
}

func (h *Handler) handleCancelAnswer(w http.ResponseWriter, r *http.Request) {
	questionID, err := pathID(r, "questionID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sessionAction(w, r, func(ctx context.Context, s *practice.Session) error {
		return h.engine.CancelAnswer(ctx, s, questionID)
	})
}

// handleComplete finalizes a practice and drops it from memory. An
// incomplete practice is refused with the number of questions still
// unanswered.
func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "practiceID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var (
		view       sessionView
		unanswered int
	)
	err = h.withSession(r.Context(), id, func(s *practice.Session) error {
		if err := h.engine.Complete(r.Context(), s); err != nil {
			unanswered = s.Unanswered()
			return err
		}
		var err error
		view, err = h.present(r.Context(), s)
		return err
	})
	switch {
	case errors.Is(err, practice.ErrIncompleteSession):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: appI18n.Tp(r.Context(), "ErrIncomplete", unanswered)})
	case err != nil:
		h.writeError(w, r, err)
	default:
		h.forget(id)
		writeJSON(w, http.StatusOK, view)
	}
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	var req shuffleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "practiceID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var review *practice.Session
	err = h.withSession(r.Context(), id, func(s *practice.Session) error {
		if len(s.IncorrectQuestionIDs()) == 0 {
			return errNothingToReview
		}
		var err error
		review, err = h.engine.SpawnReview(r.Context(), s, h.options(req))
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.keep(review)
	h.respondSession(w, r, http.StatusCreated, review)
}

type explainResponse struct {
	QuestionID  int64  `json:"question_id"`
	Explanation string `json:"explanation"`
}

// handleExplain asks the explainer about the current question. The session
// lock is released before the model is called.
func (h *Handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	if h.explainer == nil {
		h.writeError(w, r, errExplainDisabled)
		return
	}
	id, err := pathID(r, "practiceID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var (
		q        model.Question
		selected []int
	)
	err = h.withSession(r.Context(), id, func(s *practice.Session) error {
		cur, ok := s.Current()
		if !ok {
			return practice.ErrEmptySession
		}
		q = cur.Question
		if cur.Answered() {
			selected = slices.Clone(cur.Answer.SelectedChoices)
		}
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	text, err := h.explainer.Explain(r.Context(), q, selected, appI18n.Lang(r.Context()))
	if err != nil {
		slog.Error("explain failed", "practice_id", id, "question_id", q.ID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: appI18n.T(r.Context(), "ErrInternal")})
		return
	}
	writeJSON(w, http.StatusOK, explainResponse{QuestionID: q.ID, Explanation: text})
}
