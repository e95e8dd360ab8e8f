package practice

import (
	"math"

	"github.com/pavelanni/drill/internal/model"
)

// State is the observable lifecycle state of a Session.
type State int

const (
	StateEmpty State = iota
	StateInProgress
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// Item is one question of a session with its answer, if any.
type Item struct {
	Question model.Question
	Answer   *model.AnsHistory
	// ChoiceOrder is the presentation order of the question's choices as
	// indices into Question.Choices.
	ChoiceOrder []int
}

func (it Item) Answered() bool { return it.Answer != nil }

// Session is the in-memory view of one practice: its history row, the list
// it practices, the materialized items and a cursor. The cursor is
// -1 exactly when Items is empty.
//
// A Session is not safe for concurrent use; callers serialize access.
type Session struct {
	History model.PracticeHistory
	QList   model.QList
	Items   []Item
	Cursor  int
}

func newSession(h model.PracticeHistory, q model.QList, items []Item, cursor int) *Session {
	if len(items) == 0 {
		cursor = -1
	}
	return &Session{History: h, QList: q, Items: items, Cursor: cursor}
}

func (s *Session) ID() int64 { return s.History.ID }

func (s *Session) Len() int { return len(s.Items) }

func (s *Session) State() State {
	switch {
	case len(s.Items) == 0:
		return StateEmpty
	case s.History.IsAnswered:
		return StateCompleted
	}
	return StateInProgress
}

// Current returns the item under the cursor.
func (s *Session) Current() (Item, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Items) {
		return Item{}, false
	}
	return s.Items[s.Cursor], true
}

// Advance moves the cursor forward and returns the new current item.
func (s *Session) Advance() (Item, error) {
	if s.Cursor < 0 || s.Cursor+1 >= len(s.Items) {
		return Item{}, ErrNoNext
	}
	s.Cursor++
	return s.Items[s.Cursor], nil
}

// Retreat moves the cursor back and returns the new current item.
func (s *Session) Retreat() (Item, error) {
	if s.Cursor <= 0 {
		return Item{}, ErrNoPrevious
	}
	s.Cursor--
	return s.Items[s.Cursor], nil
}

func (s *Session) AnsweredCount() int {
	n := 0
	for _, it := range s.Items {
		if it.Answered() {
			n++
		}
	}
	return n
}

func (s *Session) CorrectCount() int {
	n := 0
	for _, it := range s.Items {
		if it.Answered() && it.Answer.IsCorrect {
			n++
		}
	}
	return n
}

// Accuracy is the percentage of correct answers among answered items,
// rounded to two decimals. It is 100 when nothing has been answered.
func (s *Session) Accuracy() float64 {
	answered := s.AnsweredCount()
	if answered == 0 {
		return 100
	}
	pct := float64(s.CorrectCount()) * 100 / float64(answered)
	return math.Round(pct*100) / 100
}

// IncorrectQuestionIDs returns the ids of incorrectly answered questions in
// session order, each once.
func (s *Session) IncorrectQuestionIDs() []int64 {
	var ids []int64
	seen := map[int64]bool{}
	for _, it := range s.Items {
		if !it.Answered() || it.Answer.IsCorrect || seen[it.Question.ID] {
			continue
		}
		seen[it.Question.ID] = true
		ids = append(ids, it.Question.ID)
	}
	return ids
}

// Unanswered returns the number of items without an answer.
func (s *Session) Unanswered() int {
	return len(s.Items) - s.AnsweredCount()
}

// attach sets a on every item of the question. Items listing the same
// question share the answer.
func (s *Session) attach(a *model.AnsHistory) {
	for i := range s.Items {
		if s.Items[i].Question.ID == a.QuestionID {
			s.Items[i].Answer = a
		}
	}
}

func (s *Session) detach(questionID int64) {
	for i := range s.Items {
		if s.Items[i].Question.ID == questionID {
			s.Items[i].Answer = nil
		}
	}
}

// answerFor returns the in-memory answer of a question, if any item has one.
func (s *Session) answerFor(questionID int64) *model.AnsHistory {
	for _, it := range s.Items {
		if it.Question.ID == questionID && it.Answer != nil {
			return it.Answer
		}
	}
	return nil
}
