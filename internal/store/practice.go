package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/drill/internal/model"
)

const (
	practiceColumns = `id, qlist_id, is_review, is_answered, is_random_q, is_random_c, created_at`
	answerColumns   = `id, practice_history_id, question_id, is_correct, selected_choices, answered_at`
)

// InsertPracticeHistory stores a practice history and returns its ID.
func (s *Store) InsertPracticeHistory(ctx context.Context, p model.PracticeHistory) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO practice_histories (qlist_id, is_review, is_answered, is_random_q, is_random_c, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.QListID, p.IsReview, p.IsAnswered, p.IsRandomQuestionOrder, p.IsRandomChoiceOrder, p.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdatePracticeHistory persists the answered flag of a practice history.
// The other columns are fixed at creation.
func (s *Store) UpdatePracticeHistory(ctx context.Context, p model.PracticeHistory) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE practice_histories SET is_answered = ? WHERE id = ?`, p.IsAnswered, p.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "practice history", p.ID)
}

// GetPracticeHistory returns a practice history by ID.
func (s *Store) GetPracticeHistory(ctx context.Context, id int64) (model.PracticeHistory, error) {
	var p model.PracticeHistory
	err := s.db.QueryRowContext(ctx,
		`SELECT `+practiceColumns+` FROM practice_histories WHERE id = ?`, id,
	).Scan(&p.ID, &p.QListID, &p.IsReview, &p.IsAnswered, &p.IsRandomQuestionOrder, &p.IsRandomChoiceOrder, &p.CreatedAt)
	if err != nil {
		return p, notFound(err, "practice history", id)
	}
	return p, nil
}

// ListPracticeHistoriesByQList returns the practice histories of a list, oldest first.
func (s *Store) ListPracticeHistoriesByQList(ctx context.Context, qListID int64) ([]model.PracticeHistory, error) {
	return s.queryPracticeHistories(ctx,
		`SELECT `+practiceColumns+` FROM practice_histories WHERE qlist_id = ? ORDER BY id`, qListID)
}

// ListPracticeHistories returns all practice histories, newest first.
func (s *Store) ListPracticeHistories(ctx context.Context) ([]model.PracticeHistory, error) {
	return s.queryPracticeHistories(ctx,
		`SELECT `+practiceColumns+` FROM practice_histories ORDER BY created_at DESC, id DESC`)
}

// GetPracticeHistoryByCreatedAt returns the practice of a list started at exactly createdAt.
// Timestamps are compared in Go so that differently formatted stored values still match.
func (s *Store) GetPracticeHistoryByCreatedAt(ctx context.Context, qListID int64, createdAt time.Time) (model.PracticeHistory, error) {
	practices, err := s.ListPracticeHistoriesByQList(ctx, qListID)
	if err != nil {
		return model.PracticeHistory{}, err
	}
	for _, p := range practices {
		if p.CreatedAt.Equal(createdAt) {
			return p, nil
		}
	}
	return model.PracticeHistory{}, fmt.Errorf("practice history of qlist %d at %s: %w",
		qListID, createdAt.Format(time.RFC3339), model.ErrNotFound)
}

func (s *Store) queryPracticeHistories(ctx context.Context, query string, args ...any) ([]model.PracticeHistory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PracticeHistory
	for rows.Next() {
		var p model.PracticeHistory
		if err := rows.Scan(&p.ID, &p.QListID, &p.IsReview, &p.IsAnswered, &p.IsRandomQuestionOrder, &p.IsRandomChoiceOrder, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertAnsHistory stores an answer and returns its ID. A second answer for the
// same practice and question violates a unique index and fails.
func (s *Store) InsertAnsHistory(ctx context.Context, a model.AnsHistory) (int64, error) {
	selected, err := encodeJSON(a.SelectedChoices)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ans_histories (practice_history_id, question_id, is_correct, selected_choices, answered_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.PracticeHistoryID, a.QuestionID, a.IsCorrect, selected, a.AnsweredAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert answer for question %d: %w", a.QuestionID, err)
	}
	return res.LastInsertId()
}

// DeleteAnsHistory removes an answer by ID.
func (s *Store) DeleteAnsHistory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ans_histories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "answer", id)
}

// DeletePracticeHistory removes a practice history together with its answers.
func (s *Store) DeletePracticeHistory(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM ans_histories WHERE practice_history_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	answers, _ := res.RowsAffected()
	res, err = tx.ExecContext(ctx, `DELETE FROM practice_histories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, "practice history", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("deleted practice history", "id", id, "answers", answers)
	return nil
}

// ListAnsHistoriesByPractice returns the answers of a practice in submission order.
func (s *Store) ListAnsHistoriesByPractice(ctx context.Context, practiceHistoryID int64) ([]model.AnsHistory, error) {
	return s.queryAnsHistories(ctx,
		`SELECT `+answerColumns+` FROM ans_histories WHERE practice_history_id = ? ORDER BY id`, practiceHistoryID)
}

// ListAnsHistoriesByQuestion returns every answer ever given to a question, oldest first.
func (s *Store) ListAnsHistoriesByQuestion(ctx context.Context, questionID int64) ([]model.AnsHistory, error) {
	return s.queryAnsHistories(ctx,
		`SELECT `+answerColumns+` FROM ans_histories WHERE question_id = ? ORDER BY id`, questionID)
}

// ListAnsHistories returns all answers, newest first.
func (s *Store) ListAnsHistories(ctx context.Context) ([]model.AnsHistory, error) {
	return s.queryAnsHistories(ctx,
		`SELECT `+answerColumns+` FROM ans_histories ORDER BY answered_at DESC, id DESC`)
}

func (s *Store) queryAnsHistories(ctx context.Context, query string, args ...any) ([]model.AnsHistory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AnsHistory
	for rows.Next() {
		var a model.AnsHistory
		var selected string
		if err := rows.Scan(&a.ID, &a.PracticeHistoryID, &a.QuestionID, &a.IsCorrect, &selected, &a.AnsweredAt); err != nil {
			return nil, err
		}
		if err := decodeJSON(selected, &a.SelectedChoices); err != nil {
			return nil, fmt.Errorf("answer %d selected choices: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
