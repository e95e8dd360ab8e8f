package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/drill/internal/library"
	"github.com/pavelanni/drill/internal/model"
)

func (h *Handler) handleListQLists(w http.ResponseWriter, r *http.Request) {
	page, err := h.library.QLists(r.Context(), queryBool(r, "standard"), queryPage(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type createQListRequest struct {
	Name        string  `json:"name"`
	QuestionIDs []int64 `json:"question_ids"`
	IsDefault   bool    `json:"is_default"`
}

// handleCreateQList stores a list over chosen catalog questions.
func (h *Handler) handleCreateQList(w http.ResponseWriter, r *http.Request) {
	var req createQListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	q := model.QList{
		UUID:        uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		QuestionIDs: req.QuestionIDs,
		IsDefault:   req.IsDefault,
	}
	if q.Name == "" {
		h.writeError(w, r, library.ErrEmptyName)
		return
	}
	if len(q.QuestionIDs) == 0 {
		h.writeError(w, r, fmt.Errorf("%w: question_ids is required", errBadRequest))
		return
	}
	id, err := h.store.InsertQList(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q.ID = id
	writeJSON(w, http.StatusCreated, q)
}

type updateQListRequest struct {
	Name      string `json:"name"`
	IsDefault *bool  `json:"is_default"`
}

func (h *Handler) handleUpdateQList(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "qlistID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req updateQListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	current, err := h.store.GetQList(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	isDefault := current.IsDefault
	if req.IsDefault != nil {
		isDefault = *req.IsDefault
	}
	q, err := h.library.UpdateQList(r.Context(), id, req.Name, isDefault)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.forgetQList(id)
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleDeleteQList(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "qlistID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.library.DeleteQList(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.forgetQList(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeletePractice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "practiceID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.library.DeletePractice(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.forget(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPractices(w http.ResponseWriter, r *http.Request) {
	page, err := h.library.Practices(r.Context(), queryPage(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleListAnswers(w http.ResponseWriter, r *http.Request) {
	page, err := h.library.Answers(r.Context(), queryPage(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
