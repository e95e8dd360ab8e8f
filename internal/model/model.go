package model

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned (wrapped) by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// SelectionFormat tells whether a question accepts one or several choices.
type SelectionFormat string

const (
	SelectionSingle SelectionFormat = "single"
	SelectionMulti  SelectionFormat = "multi"
)

// Question is an immutable catalog entry.
type Question struct {
	ID              int64           `json:"id"`
	URL             string          `json:"url"`
	Problem         string          `json:"problem"`
	Choices         []string        `json:"choice"`
	SelectionFormat SelectionFormat `json:"selectionFormat"`
	Answers         []int           `json:"answer"`
	Explanation     string          `json:"explanation"`
}

// QList is a named, ordered list of question IDs.
type QList struct {
	ID          int64   `json:"id"`
	UUID        string  `json:"uuid"`
	Name        string  `json:"name"`
	QuestionIDs []int64 `json:"question_ids"`
	IsDefault   bool    `json:"is_default"` // standard bank vs custom/review list
}

// PracticeHistory is the durable identity of one practice session.
type PracticeHistory struct {
	ID                    int64     `json:"id"`
	QListID               int64     `json:"qlist_id"`
	IsReview              bool      `json:"is_review"`
	IsAnswered            bool      `json:"is_answered"`
	IsRandomQuestionOrder bool      `json:"is_random_question_order"`
	IsRandomChoiceOrder   bool      `json:"is_random_choice_order"`
	CreatedAt             time.Time `json:"created_at"`
}

// AnsHistory is one submitted answer within a practice session.
type AnsHistory struct {
	ID                int64     `json:"id"`
	PracticeHistoryID int64     `json:"practice_history_id"`
	QuestionID        int64     `json:"question_id"`
	IsCorrect         bool      `json:"is_correct"`
	SelectedChoices   []int     `json:"selected_choices"`
	AnsweredAt        time.Time `json:"answered_at"`
}

// FavoriteTag is a mark a learner puts on a question to find it again.
type FavoriteTag string

const (
	FavoriteTriangle FavoriteTag = "triangle"
	FavoriteStar     FavoriteTag = "star"
	FavoriteHeart    FavoriteTag = "heart"
)

// FavoriteTags lists every tag in display order.
var FavoriteTags = []FavoriteTag{FavoriteTriangle, FavoriteStar, FavoriteHeart}

func (t FavoriteTag) Valid() bool { return slices.Contains(FavoriteTags, t) }

// Favorite is one tag on one question. A question carries each tag at most once.
type Favorite struct {
	ID         int64       `json:"id"`
	QuestionID int64       `json:"question_id"`
	Tag        FavoriteTag `json:"tag"`
	CreatedAt  time.Time   `json:"created_at"`
}

// QuestionDetail is a catalog question with its tags and every answer
// given to it, oldest first.
type QuestionDetail struct {
	Question  Question      `json:"question"`
	Favorites []FavoriteTag `json:"favorites"`
	Answers   []AnsHistory  `json:"answers"`
	Correct   int           `json:"correct"`
	Accuracy  float64       `json:"accuracy"`
}

// QuestionBank is the on-disk JSON format of an importable question bank.
type QuestionBank struct {
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	PageSize         int  // 0 means per-listing defaults
	ShuffleQuestions bool // default for start requests that omit the flag
	ShuffleChoices   bool
	BasePath         string // URL prefix for sub-path deployments (e.g. "/ja")
	Lang             string
}

// PracticeSummary pairs a practice history with its question list for browsing.
type PracticeSummary struct {
	Practice PracticeHistory `json:"practice"`
	QList    QList           `json:"qlist"`
}

// AnswerSummary pairs an answer with the question and list it belongs to.
type AnswerSummary struct {
	Answer   AnsHistory `json:"answer"`
	QList    QList      `json:"qlist"`
	Question Question   `json:"question"`
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}
