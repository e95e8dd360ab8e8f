package library

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/pavelanni/drill/internal/model"
)

// AnswerStatus picks which side of the history filters a search returns.
type AnswerStatus string

const (
	// StatusInclude returns the questions whose answers pass every history filter.
	StatusInclude AnswerStatus = "include"
	// StatusExclude returns the questions the history filters rule out.
	StatusExclude AnswerStatus = "exclude"
)

// SearchQuery narrows a question search. Zero fields do not filter.
type SearchQuery struct {
	Word          string
	CaseSensitive bool
	// QListIDs keeps questions of any of these lists.
	QListIDs []int64
	// Favorites keeps questions carrying any of these tags.
	Favorites []model.FavoriteTag

	// The filters below look at each question's answers, oldest first.
	// Answers outside [AnsweredFrom, AnsweredTo] are ignored by the later
	// filters, and a question left without answers by them fails.
	AnsweredFrom time.Time
	AnsweredTo   time.Time
	MinAnswers   int
	MaxAnswers   *int
	// RecentWrong fails questions whose last RecentWrong answers are all correct.
	RecentWrong int
	// MinCorrectRate, between 0 and 1, fails answered questions below that rate.
	MinCorrectRate float64
	Status         AnswerStatus
}

// Validate rejects negative counts, rates outside [0, 1], inverted date
// ranges and unknown tags or statuses.
func (q SearchQuery) Validate() error {
	switch {
	case q.MinAnswers < 0, q.MaxAnswers != nil && *q.MaxAnswers < 0, q.RecentWrong < 0:
		return fmt.Errorf("%w: negative count", ErrBadQuery)
	case q.MaxAnswers != nil && *q.MaxAnswers < q.MinAnswers:
		return fmt.Errorf("%w: answer count range %d..%d", ErrBadQuery, q.MinAnswers, *q.MaxAnswers)
	case q.MinCorrectRate < 0 || q.MinCorrectRate > 1:
		return fmt.Errorf("%w: correct rate %v", ErrBadQuery, q.MinCorrectRate)
	case !q.AnsweredFrom.IsZero() && !q.AnsweredTo.IsZero() && q.AnsweredTo.Before(q.AnsweredFrom):
		return fmt.Errorf("%w: date range ends before it starts", ErrBadQuery)
	case q.Status != "" && q.Status != StatusInclude && q.Status != StatusExclude:
		return fmt.Errorf("%w: status %q", ErrBadQuery, q.Status)
	}
	for _, tag := range q.Favorites {
		if !tag.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
		}
	}
	return nil
}

func (q SearchQuery) checksHistory() bool {
	return !q.AnsweredFrom.IsZero() || !q.AnsweredTo.IsZero() ||
		q.MinAnswers > 0 || q.MaxAnswers != nil ||
		q.RecentWrong > 0 || q.MinCorrectRate > 0
}

// passes applies the history filters to the answers of one question.
func (q SearchQuery) passes(answers []model.AnsHistory) bool {
	if !q.AnsweredFrom.IsZero() {
		answers = filter(answers, func(a model.AnsHistory) bool { return !a.AnsweredAt.Before(q.AnsweredFrom) })
		if len(answers) == 0 {
			return false
		}
	}
	if !q.AnsweredTo.IsZero() {
		answers = filter(answers, func(a model.AnsHistory) bool { return !a.AnsweredAt.After(q.AnsweredTo) })
		if len(answers) == 0 {
			return false
		}
	}
	if len(answers) < q.MinAnswers {
		return false
	}
	if q.MaxAnswers != nil && len(answers) > *q.MaxAnswers {
		return false
	}
	if q.RecentWrong > 0 {
		recent := answers[max(0, len(answers)-q.RecentWrong):]
		if !slices.ContainsFunc(recent, func(a model.AnsHistory) bool { return !a.IsCorrect }) {
			return false
		}
	}
	if q.MinCorrectRate > 0 && len(answers) > 0 {
		correct := len(filter(answers, func(a model.AnsHistory) bool { return a.IsCorrect }))
		if float64(correct)/float64(len(answers)) < q.MinCorrectRate {
			return false
		}
	}
	return true
}

// Search returns one page of catalog questions matching q, in catalog order.
// Without history filters Status is ignored.
func (l *Library) Search(ctx context.Context, q SearchQuery, page int) (model.Page[model.Question], error) {
	if err := q.Validate(); err != nil {
		return model.Page[model.Question]{}, err
	}
	questions, err := l.search(ctx, q)
	if err != nil {
		return model.Page[model.Question]{}, err
	}
	return model.Paginate(questions, page, l.size(model.QuestionPageSize)), nil
}

func (l *Library) search(ctx context.Context, q SearchQuery) ([]model.Question, error) {
	questions := l.catalog.Search(q.Word, q.CaseSensitive)

	if len(q.QListIDs) > 0 {
		inList := map[int64]bool{}
		for _, id := range q.QListIDs {
			list, err := l.store.GetQList(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("get qlist: %w", err)
			}
			for _, qid := range list.QuestionIDs {
				inList[qid] = true
			}
		}
		questions = filter(questions, func(x model.Question) bool { return inList[x.ID] })
	}

	if len(q.Favorites) > 0 {
		favorites, err := l.store.ListFavorites(ctx)
		if err != nil {
			return nil, fmt.Errorf("list favorites: %w", err)
		}
		tagged := map[int64]bool{}
		for _, f := range favorites {
			if slices.Contains(q.Favorites, f.Tag) {
				tagged[f.QuestionID] = true
			}
		}
		questions = filter(questions, func(x model.Question) bool { return tagged[x.ID] })
	}

	if !q.checksHistory() {
		return questions, nil
	}

	answers, err := l.store.ListAnsHistories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	// Newest first from the store; oldest first per question here.
	byQuestion := map[int64][]model.AnsHistory{}
	for i := len(answers) - 1; i >= 0; i-- {
		a := answers[i]
		byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], a)
	}

	want := q.Status != StatusExclude
	return filter(questions, func(x model.Question) bool { return q.passes(byQuestion[x.ID]) == want }), nil
}

// Question returns a catalog question with its tags and every answer given
// to it. Accuracy is the percentage of correct answers, 0 when unanswered.
func (l *Library) Question(ctx context.Context, id int64) (model.QuestionDetail, error) {
	question, ok := l.catalog.ByID(id)
	if !ok {
		return model.QuestionDetail{}, fmt.Errorf("question %d: %w", id, model.ErrNotFound)
	}
	answers, err := l.store.ListAnsHistoriesByQuestion(ctx, id)
	if err != nil {
		return model.QuestionDetail{}, fmt.Errorf("list answers of question %d: %w", id, err)
	}
	tags, err := l.Tags(ctx, id)
	if err != nil {
		return model.QuestionDetail{}, err
	}

	d := model.QuestionDetail{Question: question, Favorites: tags, Answers: answers}
	if d.Answers == nil {
		d.Answers = []model.AnsHistory{}
	}
	for _, a := range answers {
		if a.IsCorrect {
			d.Correct++
		}
	}
	if len(answers) > 0 {
		d.Accuracy = math.Round(float64(d.Correct)*10000/float64(len(answers))) / 100
	}
	return d, nil
}

func filter[T any](xs []T, keep func(T) bool) []T {
	out := make([]T, 0, len(xs))
	for _, x := range xs {
		if keep(x) {
			out = append(out, x)
		}
	}
	return out
}
