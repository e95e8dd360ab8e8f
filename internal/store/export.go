package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/drill/internal/model"
)

// ExportHistory flattens every list, practice and answer into history records.
// Practices without answers produce one record with QuestionID 0.
func (s *Store) ExportHistory(ctx context.Context) ([]model.HistoryRecord, error) {
	lists, err := s.ListQLists(ctx)
	if err != nil {
		return nil, fmt.Errorf("list qlists: %w", err)
	}

	var records []model.HistoryRecord
	for _, q := range lists {
		practices, err := s.ListPracticeHistoriesByQList(ctx, q.ID)
		if err != nil {
			return nil, fmt.Errorf("list practices of qlist %d: %w", q.ID, err)
		}
		for _, p := range practices {
			answers, err := s.ListAnsHistoriesByPractice(ctx, p.ID)
			if err != nil {
				return nil, fmt.Errorf("list answers of practice %d: %w", p.ID, err)
			}

			base := model.HistoryRecord{
				PracticeHistoryID:     p.ID,
				QListID:               q.ID,
				IsReview:              p.IsReview,
				IsAnswered:            p.IsAnswered,
				IsRandomQuestionOrder: p.IsRandomQuestionOrder,
				IsRandomChoiceOrder:   p.IsRandomChoiceOrder,
				CreatedAt:             p.CreatedAt,
				QListUUID:             q.UUID,
				QListName:             q.Name,
				QuestionIDs:           q.QuestionIDs,
				IsDefault:             q.IsDefault,
			}
			if len(answers) == 0 {
				records = append(records, base)
				continue
			}
			for _, a := range answers {
				r := base
				r.QuestionID = a.QuestionID
				r.IsCorrect = a.IsCorrect
				r.SelectedChoices = a.SelectedChoices
				answeredAt := a.AnsweredAt
				r.AnsweredAt = &answeredAt
				records = append(records, r)
			}
		}
	}
	return records, nil
}
