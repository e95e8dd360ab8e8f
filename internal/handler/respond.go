package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/drill/internal/i18n"
	"github.com/pavelanni/drill/internal/importer"
	"github.com/pavelanni/drill/internal/library"
	"github.com/pavelanni/drill/internal/model"
	"github.com/pavelanni/drill/internal/practice"
)

var (
	// errBadRequest marks malformed client input.
	errBadRequest      = errors.New("bad request")
	errNothingToReview = errors.New("no incorrect answers to review")
	errExplainDisabled = errors.New("explanations disabled")
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps err to a status code and a localized message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msgID := http.StatusInternalServerError, "ErrInternal"
	switch {
	case errors.Is(err, model.ErrNotFound):
		status, msgID = http.StatusNotFound, "ErrNotFound"
	case errors.Is(err, practice.ErrNothingToCancel):
		status, msgID = http.StatusUnprocessableEntity, "ErrNothingToCancel"
	case errors.Is(err, practice.ErrEmptySession):
		status, msgID = http.StatusUnprocessableEntity, "ErrEmptySession"
	case errors.Is(err, errNothingToReview):
		status, msgID = http.StatusUnprocessableEntity, "ErrNothingToReview"
	case errors.Is(err, errExplainDisabled):
		status, msgID = http.StatusNotImplemented, "ErrExplainDisabled"
	case errors.Is(err, practice.ErrAlreadyAnswered):
		status, msgID = http.StatusConflict, "ErrAlreadyAnswered"
	case errors.Is(err, practice.ErrSessionFinalized):
		status, msgID = http.StatusConflict, "ErrFinalized"
	case errors.Is(err, practice.ErrNoNext):
		status, msgID = http.StatusConflict, "ErrNoNext"
	case errors.Is(err, practice.ErrNoPrevious):
		status, msgID = http.StatusConflict, "ErrNoPrevious"
	case errors.Is(err, library.ErrEmptyName):
		status, msgID = http.StatusBadRequest, "ErrEmptyName"
	case errors.Is(err, library.ErrUnknownTag):
		status, msgID = http.StatusBadRequest, "ErrUnknownTag"
	case errors.Is(err, library.ErrBadQuery):
		status, msgID = http.StatusBadRequest, "ErrBadQuery"
	case errors.Is(err, importer.ErrEmptyCSV), errors.Is(err, importer.ErrBadHeader), errors.Is(err, importer.ErrMalformedCSV):
		status, msgID = http.StatusBadRequest, "ErrBadCSV"
	case errors.Is(err, importer.ErrBadBank), errors.Is(err, errBadRequest):
		status, msgID = http.StatusBadRequest, "ErrBadRequest"
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: appI18n.T(r.Context(), msgID)})
}

// decodeJSON reads a JSON request body into v. An empty body leaves v unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}

// queryPage reads the zero-based page parameter. Missing or invalid values mean page 0.
func queryPage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 0 {
		return 0
	}
	return page
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
