// Package importer loads question banks and moves answer history in and out
// as CSV.
package importer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/drill/internal/model"
)

// Store is the persistence the importer writes through.
type Store interface {
	InsertQList(ctx context.Context, q model.QList) (int64, error)
	GetQListByUUID(ctx context.Context, uuid string) (model.QList, error)
	FindQListByNameAndQuestions(ctx context.Context, name string, questionIDs []int64) (model.QList, error)
	InsertPracticeHistory(ctx context.Context, p model.PracticeHistory) (int64, error)
	GetPracticeHistoryByCreatedAt(ctx context.Context, qListID int64, createdAt time.Time) (model.PracticeHistory, error)
	InsertAnsHistory(ctx context.Context, a model.AnsHistory) (int64, error)
	ListAnsHistoriesByPractice(ctx context.Context, practiceHistoryID int64) ([]model.AnsHistory, error)
	ExportHistory(ctx context.Context) ([]model.HistoryRecord, error)
	GetImportedFileHash(ctx context.Context, path string) (string, error)
	SetImportedFileHash(ctx context.Context, path, hash string) error
}

// Catalog receives imported questions.
type Catalog interface {
	Add(ctx context.Context, qs []model.Question) (int, error)
}

// ErrBadBank is returned when a question bank is not valid JSON.
var ErrBadBank = errors.New("invalid question bank")

type Importer struct {
	store   Store
	catalog Catalog
}

func New(store Store, catalog Catalog) *Importer {
	return &Importer{store: store, catalog: catalog}
}

// QuestionResult summarizes one question bank import.
type QuestionResult struct {
	Source  string `json:"source"`
	Total   int    `json:"total"`
	Added   int    `json:"added"`
	QListID int64  `json:"qlist_id,omitempty"`
	// Skipped is set when the file was not imported because it was seen before.
	Skipped bool `json:"skipped,omitempty"`
}

// ImportQuestionFiles imports each bank file once. A file whose content
// changed since it was imported is skipped with a warning.
func (im *Importer) ImportQuestionFiles(ctx context.Context, paths []string) ([]QuestionResult, error) {
	var results []QuestionResult
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return results, fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := im.store.GetImportedFileHash(ctx, path)
		if err != nil {
			return results, fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("questions file unchanged, skipping", "path", path)
			results = append(results, QuestionResult{Source: path, Skipped: true})
			continue
		}
		if storedHash != "" {
			slog.Warn("questions file changed since last import, skipping to keep existing lists stable",
				"path", path)
			results = append(results, QuestionResult{Source: path, Skipped: true})
			continue
		}

		res, err := im.ImportQuestions(ctx, path, data)
		if err != nil {
			return results, err
		}
		if err := im.store.SetImportedFileHash(ctx, path, hash); err != nil {
			return results, fmt.Errorf("record import for %s: %w", path, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// ImportQuestions adds the questions of a bank to the catalog, skipping ids
// that already exist. A named bank also gets a standard list over all of
// its questions unless an identical list exists.
func (im *Importer) ImportQuestions(ctx context.Context, source string, data []byte) (QuestionResult, error) {
	bank, err := parseBank(data)
	if err != nil {
		return QuestionResult{}, fmt.Errorf("parse %s: %w: %w", source, ErrBadBank, err)
	}
	added, err := im.catalog.Add(ctx, bank.Questions)
	if err != nil {
		return QuestionResult{}, fmt.Errorf("add questions from %s: %w", source, err)
	}
	res := QuestionResult{Source: source, Total: len(bank.Questions), Added: added}

	if bank.Name != "" && len(bank.Questions) > 0 {
		ids := make([]int64, len(bank.Questions))
		for i, q := range bank.Questions {
			ids[i] = q.ID
		}
		existing, err := im.store.FindQListByNameAndQuestions(ctx, bank.Name, ids)
		switch {
		case err == nil:
			res.QListID = existing.ID
		case errors.Is(err, model.ErrNotFound):
			id, err := im.store.InsertQList(ctx, model.QList{
				UUID:        uuid.NewString(),
				Name:        bank.Name,
				QuestionIDs: ids,
				IsDefault:   true,
			})
			if err != nil {
				return res, fmt.Errorf("create qlist for %s: %w", source, err)
			}
			res.QListID = id
		default:
			return res, fmt.Errorf("find qlist for %s: %w", source, err)
		}
	}

	slog.Info("imported questions", "source", source, "total", res.Total, "added", res.Added, "qlist_id", res.QListID)
	return res, nil
}

// parseBank accepts either a bank object or a bare array of questions.
func parseBank(data []byte) (model.QuestionBank, error) {
	var bank model.QuestionBank
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err := json.Unmarshal(trimmed, &bank.Questions)
		return bank, err
	}
	err := json.Unmarshal(trimmed, &bank)
	return bank, err
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
