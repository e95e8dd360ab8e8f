package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pavelanni/drill/internal/model"
)

const qlistColumns = `id, uuid, name, question_ids, is_default`

// InsertQList stores a question list and returns its ID.
func (s *Store) InsertQList(ctx context.Context, q model.QList) (int64, error) {
	ids, err := encodeJSON(q.QuestionIDs)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO qlists (uuid, name, question_ids, is_default) VALUES (?, ?, ?, ?)`,
		q.UUID, q.Name, ids, q.IsDefault,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created qlist", "id", id, "name", q.Name, "questions", len(q.QuestionIDs), "default", q.IsDefault)
	return id, nil
}

// UpdateQList overwrites the name, questions and standard flag of a list.
func (s *Store) UpdateQList(ctx context.Context, q model.QList) error {
	ids, err := encodeJSON(q.QuestionIDs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE qlists SET uuid = ?, name = ?, question_ids = ?, is_default = ? WHERE id = ?`,
		q.UUID, q.Name, ids, q.IsDefault, q.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "qlist", q.ID)
}

// DeleteQList removes a list together with its practice histories and their answers.
func (s *Store) DeleteQList(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ans_histories WHERE practice_history_id IN
		 (SELECT id FROM practice_histories WHERE qlist_id = ?)`, id,
	); err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM practice_histories WHERE qlist_id = ?`, id); err != nil {
		return fmt.Errorf("delete practice histories: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM qlists WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, "qlist", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("deleted qlist", "id", id)
	return nil
}

// GetQList returns a list by ID.
func (s *Store) GetQList(ctx context.Context, id int64) (model.QList, error) {
	q, err := scanQList(s.db.QueryRowContext(ctx, `SELECT `+qlistColumns+` FROM qlists WHERE id = ?`, id))
	if err != nil {
		return q, notFound(err, "qlist", id)
	}
	return q, nil
}

// GetQListByUUID returns the list with the given uuid.
func (s *Store) GetQListByUUID(ctx context.Context, uuid string) (model.QList, error) {
	q, err := scanQList(s.db.QueryRowContext(ctx,
		`SELECT `+qlistColumns+` FROM qlists WHERE uuid = ? ORDER BY id LIMIT 1`, uuid))
	if err != nil {
		return q, notFound(err, "qlist uuid", uuid)
	}
	return q, nil
}

// FindQListByNameAndQuestions returns the first list with exactly this name and question order.
// Used to match lists exported before uuids existed.
func (s *Store) FindQListByNameAndQuestions(ctx context.Context, name string, questionIDs []int64) (model.QList, error) {
	lists, err := s.queryQLists(ctx, `SELECT `+qlistColumns+` FROM qlists WHERE name = ? ORDER BY id`, name)
	if err != nil {
		return model.QList{}, err
	}
	for _, q := range lists {
		if slices.Equal(q.QuestionIDs, questionIDs) {
			return q, nil
		}
	}
	return model.QList{}, fmt.Errorf("qlist %q: %w", name, model.ErrNotFound)
}

// ListQLists returns all lists ordered by ID.
func (s *Store) ListQLists(ctx context.Context) ([]model.QList, error) {
	return s.queryQLists(ctx, `SELECT `+qlistColumns+` FROM qlists ORDER BY id`)
}

// ListQListsByDefault returns the lists whose standard flag matches isDefault.
func (s *Store) ListQListsByDefault(ctx context.Context, isDefault bool) ([]model.QList, error) {
	return s.queryQLists(ctx, `SELECT `+qlistColumns+` FROM qlists WHERE is_default = ? ORDER BY id`, isDefault)
}

func (s *Store) queryQLists(ctx context.Context, query string, args ...any) ([]model.QList, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lists []model.QList
	for rows.Next() {
		q, err := scanQList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, q)
	}
	return lists, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQList(row scanner) (model.QList, error) {
	var q model.QList
	var ids string
	if err := row.Scan(&q.ID, &q.UUID, &q.Name, &ids, &q.IsDefault); err != nil {
		return q, err
	}
	if err := decodeJSON(ids, &q.QuestionIDs); err != nil {
		return q, fmt.Errorf("qlist %d question ids: %w", q.ID, err)
	}
	return q, nil
}

func requireAffected(res sql.Result, what string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, id, model.ErrNotFound)
	}
	return nil
}
