package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/drill/internal/model"
)

var (
	ErrEmptyCSV     = errors.New("empty csv")
	ErrBadHeader    = errors.New("unexpected csv header")
	ErrMalformedCSV = errors.New("malformed csv")
)

// The byte order mark lets spreadsheet applications detect UTF-8.
const bom = "\uFEFF"

// HistoryResult counts what a history import created.
type HistoryResult struct {
	Rows      int `json:"rows"`
	QLists    int `json:"qlists"`
	Practices int `json:"practices"`
	Answers   int `json:"answers"`
}

// ExportHistory writes every practice and answer as CSV and returns the
// number of data rows.
func (im *Importer) ExportHistory(ctx context.Context, w io.Writer) (int, error) {
	records, err := im.store.ExportHistory(ctx)
	if err != nil {
		return 0, fmt.Errorf("export history: %w", err)
	}
	if _, err := io.WriteString(w, bom); err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(model.HistoryHeader); err != nil {
		return 0, err
	}
	for _, r := range records {
		if err := cw.Write(formatRecord(r)); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return len(records), nil
}

func formatRecord(r model.HistoryRecord) []string {
	answeredAt := ""
	if r.AnsweredAt != nil {
		answeredAt = r.AnsweredAt.UTC().Format(time.RFC3339Nano)
	}
	return []string{
		strconv.FormatInt(r.PracticeHistoryID, 10),
		strconv.FormatInt(r.QuestionID, 10),
		strconv.FormatBool(r.IsCorrect),
		joinInts(r.SelectedChoices),
		answeredAt,
		strconv.FormatInt(r.QListID, 10),
		strconv.FormatBool(r.IsReview),
		strconv.FormatBool(r.IsAnswered),
		strconv.FormatBool(r.IsRandomQuestionOrder),
		strconv.FormatBool(r.IsRandomChoiceOrder),
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.QListUUID,
		r.QListName,
		joinInts(r.QuestionIDs),
		strconv.FormatBool(r.IsDefault),
	}
}

// ReadHistory parses an exported history CSV. Rows with the wrong number of
// columns are skipped.
func ReadHistory(r io.Reader) ([]model.HistoryRecord, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(bom)); err == nil && string(b) == bom {
		_, _ = br.Discard(len(bom))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w: %w", ErrMalformedCSV, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if !slices.Equal(header, model.HistoryHeader) {
		return nil, ErrBadHeader
	}

	var records []model.HistoryRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w: %w", ErrMalformedCSV, err)
		}
		if len(row) != len(model.HistoryHeader) {
			line, _ := cr.FieldPos(0)
			slog.Warn("skipping csv row with wrong column count", "line", line, "columns", len(row))
			continue
		}
		rec, err := parseRecord(row)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w: %w", line, ErrMalformedCSV, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRecord(row []string) (model.HistoryRecord, error) {
	var (
		rec model.HistoryRecord
		err error
	)
	if rec.PracticeHistoryID, err = strconv.ParseInt(row[0], 10, 64); err != nil {
		return rec, fmt.Errorf("practiceHistoryId: %w", err)
	}
	if rec.QuestionID, err = strconv.ParseInt(row[1], 10, 64); err != nil {
		return rec, fmt.Errorf("questionId: %w", err)
	}
	rec.IsCorrect = parseBool(row[2])
	if rec.SelectedChoices, err = splitInts[int](row[3]); err != nil {
		return rec, fmt.Errorf("selectChoice: %w", err)
	}
	if row[4] != "" {
		t, err := time.Parse(time.RFC3339Nano, row[4])
		if err != nil {
			return rec, fmt.Errorf("answerDate: %w", err)
		}
		rec.AnsweredAt = &t
	}
	if rec.QListID, err = strconv.ParseInt(row[5], 10, 64); err != nil {
		return rec, fmt.Errorf("qListId: %w", err)
	}
	rec.IsReview = parseBool(row[6])
	rec.IsAnswered = parseBool(row[7])
	rec.IsRandomQuestionOrder = parseBool(row[8])
	rec.IsRandomChoiceOrder = parseBool(row[9])
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, row[10]); err != nil {
		return rec, fmt.Errorf("createAt: %w", err)
	}
	rec.QListUUID = row[11]
	rec.QListName = row[12]
	if rec.QuestionIDs, err = splitInts[int64](row[13]); err != nil {
		return rec, fmt.Errorf("questions: %w", err)
	}
	rec.IsDefault = parseBool(row[14])
	return rec, nil
}

// practiceGroup is one exported practice with its answers, in file order.
type practiceGroup struct {
	first   model.HistoryRecord
	answers []model.HistoryRecord
}

type qlistGroup struct {
	first     model.HistoryRecord
	practices []*practiceGroup
}

// ImportHistory merges an exported history CSV into the store. Lists are
// matched by uuid, or by name and questions when the uuid is empty; practices
// by list and start time; answers by question within a practice. Anything
// matched is left as is.
func (im *Importer) ImportHistory(ctx context.Context, r io.Reader) (HistoryResult, error) {
	records, err := ReadHistory(r)
	if err != nil {
		return HistoryResult{}, err
	}
	res := HistoryResult{Rows: len(records)}

	var lists []*qlistGroup
	byList := map[int64]*qlistGroup{}
	byPractice := map[[2]int64]*practiceGroup{}
	for _, rec := range records {
		lg, ok := byList[rec.QListID]
		if !ok {
			lg = &qlistGroup{first: rec}
			byList[rec.QListID] = lg
			lists = append(lists, lg)
		}
		key := [2]int64{rec.QListID, rec.PracticeHistoryID}
		pg, ok := byPractice[key]
		if !ok {
			pg = &practiceGroup{first: rec}
			byPractice[key] = pg
			lg.practices = append(lg.practices, pg)
		}
		pg.answers = append(pg.answers, rec)
	}

	for _, lg := range lists {
		qListID, created, err := im.matchQList(ctx, lg.first)
		if err != nil {
			return res, err
		}
		if created {
			res.QLists++
		}
		for _, pg := range lg.practices {
			practiceID, created, err := im.matchPractice(ctx, qListID, pg.first)
			if err != nil {
				return res, err
			}
			if created {
				res.Practices++
			}
			n, err := im.insertAnswers(ctx, practiceID, pg.answers)
			if err != nil {
				return res, err
			}
			res.Answers += n
		}
	}
	slog.Info("imported history", "rows", res.Rows, "qlists", res.QLists, "practices", res.Practices, "answers", res.Answers)
	return res, nil
}

func (im *Importer) matchQList(ctx context.Context, rec model.HistoryRecord) (int64, bool, error) {
	var (
		q   model.QList
		err error
	)
	if rec.QListUUID == "" {
		q, err = im.store.FindQListByNameAndQuestions(ctx, rec.QListName, rec.QuestionIDs)
	} else {
		q, err = im.store.GetQListByUUID(ctx, rec.QListUUID)
	}
	if err == nil {
		return q.ID, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return 0, false, fmt.Errorf("match qlist %q: %w", rec.QListName, err)
	}
	id, err := im.store.InsertQList(ctx, model.QList{
		UUID:        rec.QListUUID,
		Name:        rec.QListName,
		QuestionIDs: rec.QuestionIDs,
		IsDefault:   rec.IsDefault,
	})
	if err != nil {
		return 0, false, fmt.Errorf("insert qlist %q: %w", rec.QListName, err)
	}
	return id, true, nil
}

func (im *Importer) matchPractice(ctx context.Context, qListID int64, rec model.HistoryRecord) (int64, bool, error) {
	p, err := im.store.GetPracticeHistoryByCreatedAt(ctx, qListID, rec.CreatedAt)
	if err == nil {
		return p.ID, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return 0, false, fmt.Errorf("match practice history: %w", err)
	}
	id, err := im.store.InsertPracticeHistory(ctx, model.PracticeHistory{
		QListID:               qListID,
		IsReview:              rec.IsReview,
		IsAnswered:            rec.IsAnswered,
		IsRandomQuestionOrder: rec.IsRandomQuestionOrder,
		IsRandomChoiceOrder:   rec.IsRandomChoiceOrder,
		CreatedAt:             rec.CreatedAt,
	})
	if err != nil {
		return 0, false, fmt.Errorf("insert practice history: %w", err)
	}
	return id, true, nil
}

// insertAnswers stores the answers whose question has no answer yet in the practice.
func (im *Importer) insertAnswers(ctx context.Context, practiceID int64, recs []model.HistoryRecord) (int, error) {
	existing, err := im.store.ListAnsHistoriesByPractice(ctx, practiceID)
	if err != nil {
		return 0, fmt.Errorf("list answers of practice %d: %w", practiceID, err)
	}
	answered := map[int64]bool{}
	for _, a := range existing {
		answered[a.QuestionID] = true
	}

	n := 0
	for _, rec := range recs {
		if !rec.HasAnswer() {
			slog.Debug("skipping placeholder row", "practice_id", practiceID)
			continue
		}
		if answered[rec.QuestionID] {
			continue
		}
		a := model.AnsHistory{
			PracticeHistoryID: practiceID,
			QuestionID:        rec.QuestionID,
			IsCorrect:         rec.IsCorrect,
			SelectedChoices:   rec.SelectedChoices,
			AnsweredAt:        rec.CreatedAt,
		}
		if rec.AnsweredAt != nil {
			a.AnsweredAt = *rec.AnsweredAt
		}
		if _, err := im.store.InsertAnsHistory(ctx, a); err != nil {
			return n, fmt.Errorf("insert answer for question %d: %w", rec.QuestionID, err)
		}
		answered[rec.QuestionID] = true
		n++
	}
	return n, nil
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

func joinInts[T int | int64](xs []T) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatInt(int64(x), 10)
	}
	return strings.Join(parts, ";")
}

func splitInts[T int | int64](s string) ([]T, error) {
	if s == "" {
		return []T{}, nil
	}
	parts := strings.Split(s, ";")
	out := make([]T, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = T(n)
	}
	return out, nil
}
