package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/drill/internal/model"
)

const favoriteColumns = `id, question_id, tag, created_at`

// UpsertFavorite puts tag on a question. Tagging twice keeps the first row.
func (s *Store) UpsertFavorite(ctx context.Context, questionID int64, tag model.FavoriteTag) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO favorites (question_id, tag, created_at) VALUES (?, ?, ?)`,
		questionID, tag, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert favorite %s on question %d: %w", tag, questionID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("tagged question", "question_id", questionID, "tag", tag)
	}
	return nil
}

// DeleteFavorite takes tag off a question. Removing an absent tag is not an error.
func (s *Store) DeleteFavorite(ctx context.Context, questionID int64, tag model.FavoriteTag) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE question_id = ? AND tag = ?`, questionID, tag,
	)
	if err != nil {
		return fmt.Errorf("delete favorite %s on question %d: %w", tag, questionID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("untagged question", "question_id", questionID, "tag", tag)
	}
	return nil
}

// ListFavoritesByQuestion returns the tags of a question in tagging order.
func (s *Store) ListFavoritesByQuestion(ctx context.Context, questionID int64) ([]model.Favorite, error) {
	return s.queryFavorites(ctx,
		`SELECT `+favoriteColumns+` FROM favorites WHERE question_id = ? ORDER BY id`, questionID)
}

// ListFavorites returns every tag on every question.
func (s *Store) ListFavorites(ctx context.Context) ([]model.Favorite, error) {
	return s.queryFavorites(ctx, `SELECT `+favoriteColumns+` FROM favorites ORDER BY id`)
}

func (s *Store) queryFavorites(ctx context.Context, query string, args ...any) ([]model.Favorite, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Favorite
	for rows.Next() {
		var f model.Favorite
		if err := rows.Scan(&f.ID, &f.QuestionID, &f.Tag, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
