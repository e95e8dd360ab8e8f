// Package catalog keeps every known question in memory for id lookup and search.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/pavelanni/drill/internal/model"
)

// Source is the persistent backing of the catalog.
type Source interface {
	ListQuestions(ctx context.Context) ([]model.Question, error)
	InsertQuestions(ctx context.Context, questions []model.Question) (int, error)
}

// Catalog is a read-through cache of all questions, sorted by id.
// It is safe for concurrent use.
type Catalog struct {
	src Source

	mu        sync.RWMutex
	questions []model.Question
	index     map[int64]int
}

func New(src Source) *Catalog {
	return &Catalog{src: src, index: map[int64]int{}}
}

// Load replaces the cached questions with the contents of the source.
func (c *Catalog) Load(ctx context.Context) error {
	qs, err := c.src.ListQuestions(ctx)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.questions = nil
	c.index = map[int64]int{}
	c.merge(qs)
	slog.Info("question catalog loaded", "count", len(c.questions))
	return nil
}

// ByID returns the question with the given id.
func (c *Catalog) ByID(id int64) (model.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return model.Question{}, false
	}
	return c.questions[i], true
}

// All returns a copy of every question in id order.
func (c *Catalog) All() []model.Question {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.questions)
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.questions)
}

// Search returns the questions whose id, problem, choices or explanation
// contain word. An empty word matches everything.
func (c *Catalog) Search(word string, caseSensitive bool) []model.Question {
	if word == "" {
		return c.All()
	}
	fold := func(s string) string { return s }
	if !caseSensitive {
		fold = strings.ToLower
		word = strings.ToLower(word)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []model.Question
	for _, q := range c.questions {
		if strings.Contains(strconv.FormatInt(q.ID, 10), word) ||
			strings.Contains(fold(q.Problem), word) ||
			strings.Contains(fold(strings.Join(q.Choices, ",")), word) ||
			strings.Contains(fold(q.Explanation), word) {
			out = append(out, q)
		}
	}
	return out
}

// Add persists and caches the questions whose ids are not yet known.
// Duplicate ids, in the catalog or within qs, are skipped. It returns the
// number of questions added.
func (c *Catalog) Add(ctx context.Context, qs []model.Question) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := map[int64]bool{}
	var fresh []model.Question
	for _, q := range qs {
		if _, ok := c.index[q.ID]; ok || seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		if q.SelectionFormat == "" {
			q.SelectionFormat = model.SelectionSingle
		}
		fresh = append(fresh, q)
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if _, err := c.src.InsertQuestions(ctx, fresh); err != nil {
		return 0, fmt.Errorf("insert questions: %w", err)
	}
	c.merge(fresh)
	return len(fresh), nil
}

// merge must be called with mu held for writing.
func (c *Catalog) merge(qs []model.Question) {
	for _, q := range qs {
		if _, ok := c.index[q.ID]; ok {
			continue
		}
		c.questions = append(c.questions, q)
		c.index[q.ID] = -1
	}
	slices.SortFunc(c.questions, func(a, b model.Question) int { return cmp.Compare(a.ID, b.ID) })
	for i, q := range c.questions {
		c.index[q.ID] = i
	}
}
