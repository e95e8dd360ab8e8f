package handler

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pavelanni/drill/internal/model"
	"github.com/pavelanni/drill/internal/practice"
)

// sessionEntry serializes access to one live session. An entry is stale
// once it has been dropped from the cache; its session must not be used.
type sessionEntry struct {
	mu    sync.Mutex
	s     *practice.Session
	stale atomic.Bool
}

// withSession runs fn with exclusive access to the session of a practice,
// resuming it from storage when it is not in memory. An entry dropped while
// waiting for its lock is looked up again, so fn never works on a session
// whose list was edited, deleted or re-imported meanwhile.
func (h *Handler) withSession(ctx context.Context, practiceID int64, fn func(s *practice.Session) error) error {
	for {
		e, err := h.session(ctx, practiceID)
		if err != nil {
			return err
		}
		e.mu.Lock()
		if e.stale.Load() {
			e.mu.Unlock()
			continue
		}
		err = fn(e.s)
		e.mu.Unlock()
		return err
	}
}

func (h *Handler) session(ctx context.Context, practiceID int64) (*sessionEntry, error) {
	h.mu.Lock()
	e, ok := h.sessions[practiceID]
	h.mu.Unlock()
	if ok {
		return e, nil
	}

	s, err := h.engine.Resume(ctx, practiceID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	// Another request may have resumed it meanwhile; keep the first.
	if e, ok := h.sessions[practiceID]; ok {
		return e, nil
	}
	e = &sessionEntry{s: s}
	h.sessions[practiceID] = e
	return e, nil
}

func (h *Handler) keep(s *practice.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID()] = &sessionEntry{s: s}
}

// forget drops the cached session of a practice. Completed practices are
// dropped this way; later requests resume them from storage.
func (h *Handler) forget(practiceID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.sessions[practiceID]; ok {
		e.stale.Store(true)
		delete(h.sessions, practiceID)
	}
}

// forgetQList drops the cached sessions practicing a list.
func (h *Handler) forgetQList(qListID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, e := range h.sessions {
		if e.s.QList.ID == qListID {
			e.stale.Store(true)
			delete(h.sessions, id)
		}
	}
}

// forgetAll drops every cached session so the next request reloads from storage.
func (h *Handler) forgetAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.sessions {
		e.stale.Store(true)
	}
	clear(h.sessions)
}

type choiceView struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Selected bool   `json:"selected,omitempty"`
	Correct  *bool  `json:"correct,omitempty"`
}

type itemView struct {
	Position        int                   `json:"position"`
	QuestionID      int64                 `json:"question_id"`
	URL             string                `json:"url,omitempty"`
	Problem         string                `json:"problem"`
	SelectionFormat model.SelectionFormat `json:"selection_format"`
	Choices         []choiceView          `json:"choices"`
	Answered        bool                  `json:"answered"`
	IsCorrect       *bool                 `json:"is_correct,omitempty"`
	Explanation     string                `json:"explanation,omitempty"`
	Favorites       []model.FavoriteTag   `json:"favorites"`
}

type sessionView struct {
	ID                   int64       `json:"id"`
	QList                model.QList `json:"qlist"`
	State                string      `json:"state"`
	IsReview             bool        `json:"is_review"`
	CreatedAt            time.Time   `json:"created_at"`
	Cursor               int         `json:"cursor"`
	Total                int         `json:"total"`
	Answered             int         `json:"answered"`
	Correct              int         `json:"correct"`
	Accuracy             float64     `json:"accuracy"`
	IncorrectQuestionIDs []int64     `json:"incorrect_question_ids"`
	Current              *itemView   `json:"current,omitempty"`
}

// newSessionView presents s. Choices appear in the session's presentation
// order; which choices are correct is revealed once the question is
// answered or the practice is completed.
func newSessionView(s *practice.Session) sessionView {
	v := sessionView{
		ID:                   s.ID(),
		QList:                s.QList,
		State:                s.State().String(),
		IsReview:             s.History.IsReview,
		CreatedAt:            s.History.CreatedAt,
		Cursor:               s.Cursor,
		Total:                s.Len(),
		Answered:             s.AnsweredCount(),
		Correct:              s.CorrectCount(),
		Accuracy:             s.Accuracy(),
		IncorrectQuestionIDs: s.IncorrectQuestionIDs(),
	}
	if v.IncorrectQuestionIDs == nil {
		v.IncorrectQuestionIDs = []int64{}
	}
	if v.QList.QuestionIDs == nil {
		v.QList.QuestionIDs = []int64{}
	}

	cur, ok := s.Current()
	if !ok {
		return v
	}
	reveal := cur.Answered() || s.State() == practice.StateCompleted
	q := cur.Question
	iv := &itemView{
		Position:        s.Cursor,
		QuestionID:      q.ID,
		URL:             q.URL,
		Problem:         q.Problem,
		SelectionFormat: q.SelectionFormat,
		Choices:         make([]choiceView, 0, len(cur.ChoiceOrder)),
		Answered:        cur.Answered(),
		Favorites:       []model.FavoriteTag{},
	}
	var selected []int
	if cur.Answered() {
		selected = cur.Answer.SelectedChoices
		correct := cur.Answer.IsCorrect
		iv.IsCorrect = &correct
	}
	for _, idx := range cur.ChoiceOrder {
		c := choiceView{Index: idx, Text: q.Choices[idx], Selected: slices.Contains(selected, idx)}
		if reveal {
			correct := slices.Contains(q.Answers, idx)
			c.Correct = &correct
		}
		iv.Choices = append(iv.Choices, c)
	}
	if reveal {
		iv.Explanation = q.Explanation
	}
	v.Current = iv
	return v
}

// present adds the favorite tags of the current question to the view of s.
func (h *Handler) present(ctx context.Context, s *practice.Session) (sessionView, error) {
	v := newSessionView(s)
	if v.Current == nil {
		return v, nil
	}
	tags, err := h.library.Tags(ctx, v.Current.QuestionID)
	if err != nil {
		return v, err
	}
	v.Current.Favorites = tags
	return v, nil
}

func (h *Handler) respondSession(w http.ResponseWriter, r *http.Request, status int, s *practice.Session) {
	view, err := h.present(r.Context(), s)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, view)
}
