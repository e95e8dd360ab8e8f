package model

import "time"

// HistoryHeader is the column order of the answer-history CSV.
var HistoryHeader = []string{
	"practiceHistoryId",
	"questionId",
	"isCorrect",
	"selectChoice",
	"answerDate",
	"qListId",
	"isReview",
	"isAnswered",
	"isRandomQ",
	"isRandomC",
	"createAt",
	"questionUuid",
	"name",
	"questions",
	"isUndeliteable",
}

// HistoryRecord is one exported row: an answer together with the practice and list
// it belongs to. A practice without answers is exported as a single record with
// QuestionID 0.
type HistoryRecord struct {
	PracticeHistoryID int64
	QuestionID        int64
	IsCorrect         bool
	SelectedChoices   []int
	AnsweredAt        *time.Time

	QListID               int64
	IsReview              bool
	IsAnswered            bool
	IsRandomQuestionOrder bool
	IsRandomChoiceOrder   bool
	CreatedAt             time.Time

	QListUUID   string
	QListName   string
	QuestionIDs []int64
	IsDefault   bool
}

// HasAnswer reports whether the record carries an answer rather than a bare practice.
func (r HistoryRecord) HasAnswer() bool {
	return r.QuestionID != 0
}
