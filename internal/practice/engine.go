// Package practice builds, resumes, grades and finalizes practice sessions
// and keeps them consistent with the stored answer history.
package practice

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/drill/internal/model"
)

// Catalog resolves question ids.
type Catalog interface {
	ByID(id int64) (model.Question, bool)
}

// QListRepository stores question lists.
type QListRepository interface {
	InsertQList(ctx context.Context, q model.QList) (int64, error)
	GetQList(ctx context.Context, id int64) (model.QList, error)
}

// PracticeHistoryRepository stores one row per practice.
type PracticeHistoryRepository interface {
	InsertPracticeHistory(ctx context.Context, p model.PracticeHistory) (int64, error)
	UpdatePracticeHistory(ctx context.Context, p model.PracticeHistory) error
	GetPracticeHistory(ctx context.Context, id int64) (model.PracticeHistory, error)
}

// AnsHistoryRepository stores submitted answers.
type AnsHistoryRepository interface {
	InsertAnsHistory(ctx context.Context, a model.AnsHistory) (int64, error)
	DeleteAnsHistory(ctx context.Context, id int64) error
	ListAnsHistoriesByPractice(ctx context.Context, practiceHistoryID int64) ([]model.AnsHistory, error)
}

// Repository is everything the engine persists through.
type Repository interface {
	QListRepository
	PracticeHistoryRepository
	AnsHistoryRepository
}

// Metrics receives session lifecycle events.
type Metrics interface {
	QuestionsDropped(n int)
	SessionStarted(review bool)
	SessionResumed()
	AnswerRecorded(correct bool)
	AnswerCancelled()
	SessionCompleted(accuracy float64)
}

type nopMetrics struct{}

func (nopMetrics) QuestionsDropped(int)     {}
func (nopMetrics) SessionStarted(bool)      {}
func (nopMetrics) SessionResumed()          {}
func (nopMetrics) AnswerRecorded(bool)      {}
func (nopMetrics) AnswerCancelled()         {}
func (nopMetrics) SessionCompleted(float64) {}

// ReviewNamer names the list of a review session spawned from origin at t.
type ReviewNamer func(origin string, t time.Time) string

// DefaultReviewName is the review namer used when none is configured.
func DefaultReviewName(origin string, t time.Time) string {
	return fmt.Sprintf("[Review] %s - %s", origin, t.Format("01/02 15:04"))
}

// Options control how a new session is built.
type Options struct {
	ShuffleQuestions bool
	ShuffleChoices   bool
	Review           bool
}

// Engine builds, resumes and mutates sessions, persisting every change
// before it is applied in memory.
type Engine struct {
	catalog Catalog
	repo    Repository

	now        func() time.Time
	rng        *rand.Rand
	metrics    Metrics
	reviewName ReviewNamer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock replaces time.Now for creation and answer timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithRand makes shuffles deterministic. A *rand.Rand is not safe for
// concurrent use, so this is meant for tests and single-session tools.
func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = r }
}

// WithMetrics reports lifecycle events to m.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithReviewNamer sets how review lists are named.
func WithReviewNamer(f ReviewNamer) EngineOption {
	return func(e *Engine) { e.reviewName = f }
}

// New returns an Engine resolving questions through catalog.
func New(catalog Catalog, repo Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:    catalog,
		repo:       repo,
		now:        time.Now,
		metrics:    nopMetrics{},
		reviewName: DefaultReviewName,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewSession starts a practice over qList.
func (e *Engine) NewSession(ctx context.Context, qList model.QList, opts Options) (*Session, error) {
	h := model.PracticeHistory{
		QListID:               qList.ID,
		IsReview:              opts.Review,
		IsRandomQuestionOrder: opts.ShuffleQuestions,
		IsRandomChoiceOrder:   opts.ShuffleChoices,
		CreatedAt:             e.now(),
	}
	id, err := e.repo.InsertPracticeHistory(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("insert practice history: %w", err)
	}
	h.ID = id

	questions := e.resolve(qList)
	if opts.ShuffleQuestions {
		e.shuffle(len(questions), func(i, j int) { questions[i], questions[j] = questions[j], questions[i] })
	}
	items := e.materialize(questions, opts.ShuffleChoices)

	e.metrics.SessionStarted(opts.Review)
	slog.Info("practice started",
		"practice_id", h.ID,
		"qlist_id", qList.ID,
		"questions", len(items),
		"review", opts.Review,
		"shuffle_questions", opts.ShuffleQuestions,
		"shuffle_choices", opts.ShuffleChoices,
	)
	return newSession(h, qList, items, 0), nil
}

// NewCustomSession stores an ad-hoc list over questionIDs and starts a practice on it.
func (e *Engine) NewCustomSession(ctx context.Context, name string, questionIDs []int64, opts Options) (*Session, error) {
	q := model.QList{
		UUID:        uuid.NewString(),
		Name:        name,
		QuestionIDs: slices.Clone(questionIDs),
	}
	id, err := e.repo.InsertQList(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("insert qlist: %w", err)
	}
	q.ID = id
	return e.NewSession(ctx, q, opts)
}

// Resume rebuilds a session from storage. Answered questions come first in
// the order they were answered, followed by the unanswered ones in list
// order, shuffled when the practice was started with random order.
func (e *Engine) Resume(ctx context.Context, practiceHistoryID int64) (*Session, error) {
	h, err := e.repo.GetPracticeHistory(ctx, practiceHistoryID)
	if err != nil {
		return nil, fmt.Errorf("get practice history: %w", err)
	}
	qList, err := e.repo.GetQList(ctx, h.QListID)
	if err != nil {
		return nil, fmt.Errorf("get qlist of practice %d: %w", h.ID, err)
	}
	answers, err := e.repo.ListAnsHistoriesByPractice(ctx, h.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers of practice %d: %w", h.ID, err)
	}
	slices.SortFunc(answers, func(a, b model.AnsHistory) int { return cmp.Compare(a.ID, b.ID) })

	questions := e.resolve(qList)
	occurrences := map[int64][]model.Question{}
	for _, q := range questions {
		occurrences[q.ID] = append(occurrences[q.ID], q)
	}

	var answered []model.Question
	byQuestion := map[int64]*model.AnsHistory{}
	for i := range answers {
		a := &answers[i]
		if _, dup := byQuestion[a.QuestionID]; dup {
			continue
		}
		qs, ok := occurrences[a.QuestionID]
		if !ok {
			continue
		}
		byQuestion[a.QuestionID] = a
		answered = append(answered, qs...)
	}
	var unanswered []model.Question
	for _, q := range questions {
		if _, ok := byQuestion[q.ID]; !ok {
			unanswered = append(unanswered, q)
		}
	}
	if h.IsRandomQuestionOrder {
		e.shuffle(len(unanswered), func(i, j int) { unanswered[i], unanswered[j] = unanswered[j], unanswered[i] })
	}

	items := e.materialize(append(answered, unanswered...), h.IsRandomChoiceOrder)
	for i := range items {
		items[i].Answer = byQuestion[items[i].Question.ID]
	}
	cursor := len(answered)
	if len(unanswered) == 0 {
		cursor = len(answered) - 1
	}

	e.metrics.SessionResumed()
	slog.Info("practice resumed",
		"practice_id", h.ID,
		"qlist_id", qList.ID,
		"questions", len(items),
		"answered", len(answered),
		"cursor", cursor,
	)
	return newSession(h, qList, items, cursor), nil
}

// RecordAnswer stores the first answer to the current question and attaches
// it to the session. It returns the id of the stored answer.
func (e *Engine) RecordAnswer(ctx context.Context, s *Session, isCorrect bool, selected []int) (int64, error) {
	cur, ok := s.Current()
	if !ok {
		return 0, ErrEmptySession
	}
	if s.History.IsAnswered {
		return 0, ErrSessionFinalized
	}
	qid := cur.Question.ID
	if s.answerFor(qid) != nil {
		return 0, fmt.Errorf("question %d: %w", qid, ErrAlreadyAnswered)
	}
	stored, err := e.storedAnswer(ctx, s.History.ID, qid)
	if err != nil {
		return 0, err
	}
	if stored != nil {
		return 0, fmt.Errorf("question %d: %w", qid, ErrAlreadyAnswered)
	}

	a := model.AnsHistory{
		PracticeHistoryID: s.History.ID,
		QuestionID:        qid,
		IsCorrect:         isCorrect,
		SelectedChoices:   slices.Clone(selected),
		AnsweredAt:        e.now(),
	}
	id, err := e.repo.InsertAnsHistory(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("insert answer: %w", err)
	}
	a.ID = id
	s.attach(&a)

	e.metrics.AnswerRecorded(isCorrect)
	slog.Debug("answer recorded", "practice_id", s.History.ID, "question_id", qid, "correct", isCorrect)
	return id, nil
}

// CancelAnswer deletes the stored answer to questionID so it can be answered again.
func (e *Engine) CancelAnswer(ctx context.Context, s *Session, questionID int64) error {
	if s.History.IsAnswered {
		return ErrSessionFinalized
	}
	stored, err := e.storedAnswer(ctx, s.History.ID, questionID)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("question %d: %w", questionID, ErrNothingToCancel)
	}
	if err := e.repo.DeleteAnsHistory(ctx, stored.ID); err != nil {
		return fmt.Errorf("delete answer %d: %w", stored.ID, err)
	}
	s.detach(questionID)

	e.metrics.AnswerCancelled()
	slog.Debug("answer cancelled", "practice_id", s.History.ID, "question_id", questionID)
	return nil
}

// Complete finalizes a fully answered session. A session without questions
// has nothing left to answer and completes too. Completing a completed
// session does nothing.
func (e *Engine) Complete(ctx context.Context, s *Session) error {
	if s.History.IsAnswered {
		return nil
	}
	if n := s.Unanswered(); n > 0 {
		return fmt.Errorf("%w: %d of %d unanswered", ErrIncompleteSession, n, len(s.Items))
	}
	h := s.History
	h.IsAnswered = true
	if err := e.repo.UpdatePracticeHistory(ctx, h); err != nil {
		return fmt.Errorf("update practice history: %w", err)
	}
	s.History.IsAnswered = true

	e.metrics.SessionCompleted(s.Accuracy())
	slog.Info("practice completed",
		"practice_id", s.History.ID,
		"questions", len(s.Items),
		"correct", s.CorrectCount(),
		"accuracy", s.Accuracy(),
	)
	return nil
}

// SpawnReview starts a review practice over the questions answered
// incorrectly in s. With no incorrect answers the review is empty.
func (e *Engine) SpawnReview(ctx context.Context, s *Session, opts Options) (*Session, error) {
	opts.Review = true
	name := e.reviewName(s.QList.Name, e.now())
	return e.NewCustomSession(ctx, name, s.IncorrectQuestionIDs(), opts)
}

// resolve looks up the questions of q in list order. Unknown ids are dropped.
func (e *Engine) resolve(q model.QList) []model.Question {
	out := make([]model.Question, 0, len(q.QuestionIDs))
	var dropped []int64
	for _, id := range q.QuestionIDs {
		question, ok := e.catalog.ByID(id)
		if !ok {
			dropped = append(dropped, id)
			continue
		}
		out = append(out, question)
	}
	if len(dropped) > 0 {
		slog.Warn("dropping unknown question ids", "qlist_id", q.ID, "ids", dropped)
		e.metrics.QuestionsDropped(len(dropped))
	}
	return out
}

func (e *Engine) materialize(questions []model.Question, shuffleChoices bool) []Item {
	items := make([]Item, len(questions))
	for i, q := range questions {
		order := make([]int, len(q.Choices))
		for j := range order {
			order[j] = j
		}
		if shuffleChoices {
			e.shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
		}
		items[i] = Item{Question: q, ChoiceOrder: order}
	}
	return items
}

// shuffle is a Fisher-Yates shuffle over the configured source.
func (e *Engine) shuffle(n int, swap func(i, j int)) {
	if e.rng != nil {
		e.rng.Shuffle(n, swap)
		return
	}
	rand.Shuffle(n, swap)
}

// storedAnswer returns the persisted answer for a question of a practice, or nil.
func (e *Engine) storedAnswer(ctx context.Context, practiceHistoryID, questionID int64) (*model.AnsHistory, error) {
	answers, err := e.repo.ListAnsHistoriesByPractice(ctx, practiceHistoryID)
	if err != nil {
		return nil, fmt.Errorf("list answers of practice %d: %w", practiceHistoryID, err)
	}
	for i := range answers {
		if answers[i].QuestionID == questionID {
			return &answers[i], nil
		}
	}
	return nil, nil
}
