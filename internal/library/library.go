// Package library serves the browsing side of the trainer: question lists,
// question search and practice and answer history.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/drill/internal/model"
)

var (
	// ErrEmptyName is returned when a list is renamed to a blank name.
	ErrEmptyName = errors.New("qlist name is empty")
	// ErrUnknownTag is returned for a favorite tag outside model.FavoriteTags.
	ErrUnknownTag = errors.New("unknown favorite tag")
	// ErrBadQuery is returned for a search query with out of range filters.
	ErrBadQuery = errors.New("invalid search query")
)

// Store is the persistence the library reads and edits.
type Store interface {
	GetQList(ctx context.Context, id int64) (model.QList, error)
	UpdateQList(ctx context.Context, q model.QList) error
	DeleteQList(ctx context.Context, id int64) error
	DeletePracticeHistory(ctx context.Context, id int64) error
	ListQLists(ctx context.Context) ([]model.QList, error)
	ListQListsByDefault(ctx context.Context, isDefault bool) ([]model.QList, error)
	ListPracticeHistories(ctx context.Context) ([]model.PracticeHistory, error)
	ListAnsHistories(ctx context.Context) ([]model.AnsHistory, error)
	ListAnsHistoriesByQuestion(ctx context.Context, questionID int64) ([]model.AnsHistory, error)
	UpsertFavorite(ctx context.Context, questionID int64, tag model.FavoriteTag) error
	DeleteFavorite(ctx context.Context, questionID int64, tag model.FavoriteTag) error
	ListFavoritesByQuestion(ctx context.Context, questionID int64) ([]model.Favorite, error)
	ListFavorites(ctx context.Context) ([]model.Favorite, error)
}

// Catalog finds questions.
type Catalog interface {
	ByID(id int64) (model.Question, bool)
	Search(word string, caseSensitive bool) []model.Question
}

type Library struct {
	store    Store
	catalog  Catalog
	pageSize int
}

// New returns a Library. A pageSize of zero keeps the per-listing defaults.
func New(store Store, catalog Catalog, pageSize int) *Library {
	return &Library{store: store, catalog: catalog, pageSize: pageSize}
}

func (l *Library) size(def int) int {
	if l.pageSize > 0 {
		return l.pageSize
	}
	return def
}

// QLists returns one page of lists, only standard ones when standardOnly is set.
func (l *Library) QLists(ctx context.Context, standardOnly bool, page int) (model.Page[model.QList], error) {
	var (
		lists []model.QList
		err   error
	)
	if standardOnly {
		lists, err = l.store.ListQListsByDefault(ctx, true)
	} else {
		lists, err = l.store.ListQLists(ctx)
	}
	if err != nil {
		return model.Page[model.QList]{}, fmt.Errorf("list qlists: %w", err)
	}
	return model.Paginate(lists, page, l.size(model.QListPageSize)), nil
}

// UpdateQList renames a list and sets whether it is a standard list.
func (l *Library) UpdateQList(ctx context.Context, id int64, name string, isDefault bool) (model.QList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.QList{}, ErrEmptyName
	}
	q, err := l.store.GetQList(ctx, id)
	if err != nil {
		return model.QList{}, fmt.Errorf("get qlist: %w", err)
	}
	q.Name = name
	q.IsDefault = isDefault
	if err := l.store.UpdateQList(ctx, q); err != nil {
		return model.QList{}, fmt.Errorf("update qlist: %w", err)
	}
	slog.Info("updated qlist", "id", id, "name", name, "default", isDefault)
	return q, nil
}

// DeleteQList removes a list with its practices and answers.
func (l *Library) DeleteQList(ctx context.Context, id int64) error {
	if err := l.store.DeleteQList(ctx, id); err != nil {
		return fmt.Errorf("delete qlist: %w", err)
	}
	return nil
}

// DeletePractice removes one practice with its answers. Its list stays.
func (l *Library) DeletePractice(ctx context.Context, id int64) error {
	if err := l.store.DeletePracticeHistory(ctx, id); err != nil {
		return fmt.Errorf("delete practice: %w", err)
	}
	return nil
}

// Practices returns one page of practices, newest first, each with its list.
// Practices whose list is gone are left out.
func (l *Library) Practices(ctx context.Context, page int) (model.Page[model.PracticeSummary], error) {
	practices, err := l.store.ListPracticeHistories(ctx)
	if err != nil {
		return model.Page[model.PracticeSummary]{}, fmt.Errorf("list practice histories: %w", err)
	}
	lists, err := l.qlistsByID(ctx)
	if err != nil {
		return model.Page[model.PracticeSummary]{}, err
	}
	out := make([]model.PracticeSummary, 0, len(practices))
	for _, p := range practices {
		q, ok := lists[p.QListID]
		if !ok {
			continue
		}
		out = append(out, model.PracticeSummary{Practice: p, QList: q})
	}
	return model.Paginate(out, page, l.size(model.HistoryPageSize)), nil
}

// Answers returns one page of answers, newest first, each with its list and
// question. Answers to questions missing from the catalog are left out.
func (l *Library) Answers(ctx context.Context, page int) (model.Page[model.AnswerSummary], error) {
	answers, err := l.store.ListAnsHistories(ctx)
	if err != nil {
		return model.Page[model.AnswerSummary]{}, fmt.Errorf("list answers: %w", err)
	}
	lists, err := l.qlistsByID(ctx)
	if err != nil {
		return model.Page[model.AnswerSummary]{}, err
	}
	practices, err := l.store.ListPracticeHistories(ctx)
	if err != nil {
		return model.Page[model.AnswerSummary]{}, fmt.Errorf("list practice histories: %w", err)
	}
	listOf := make(map[int64]int64, len(practices))
	for _, p := range practices {
		listOf[p.ID] = p.QListID
	}

	out := make([]model.AnswerSummary, 0, len(answers))
	for _, a := range answers {
		question, ok := l.catalog.ByID(a.QuestionID)
		if !ok {
			continue
		}
		out = append(out, model.AnswerSummary{Answer: a, QList: lists[listOf[a.PracticeHistoryID]], Question: question})
	}
	return model.Paginate(out, page, l.size(model.HistoryPageSize)), nil
}

func (l *Library) qlistsByID(ctx context.Context) (map[int64]model.QList, error) {
	lists, err := l.store.ListQLists(ctx)
	if err != nil {
		return nil, fmt.Errorf("list qlists: %w", err)
	}
	m := make(map[int64]model.QList, len(lists))
	for _, q := range lists {
		m[q.ID] = q
	}
	return m, nil
}
