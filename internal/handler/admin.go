package handler

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxUploadSize = 10 << 20

// uploadedFile reads the "file" field of a multipart upload.
func uploadedFile(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return "", nil, fmt.Errorf("%w: parse upload: %v", errBadRequest, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("%w: no file uploaded", errBadRequest)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return header.Filename, data, nil
}

// handleImportQuestions adds an uploaded question bank to the catalog.
// Re-uploading a bank adds nothing: known ids and identical lists are skipped.
func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	name, data, err := uploadedFile(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.importer.ImportQuestions(r.Context(), name, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slog.Info("uploaded questions", "filename", name, "total", res.Total, "added", res.Added)
	writeJSON(w, http.StatusOK, res)
}

// handleImportHistory merges an uploaded history export into the store.
func (h *Handler) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	name, data, err := uploadedFile(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.importer.ImportHistory(r.Context(), bytes.NewReader(data))
	// Even a failed import may have stored part of the file.
	h.forgetAll()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slog.Info("uploaded history", "filename", name, "rows", res.Rows, "answers", res.Answers)
	writeJSON(w, http.StatusOK, res)
}

// handleExportHistory streams the whole history as a CSV attachment.
func (h *Handler) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := h.importer.ExportHistory(r.Context(), &buf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filename := fmt.Sprintf("drill-history-%s.csv", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("write export", "error", err)
		return
	}
	slog.Info("exported history", "rows", n)
}
