package practice

import "errors"

var (
	// ErrIncompleteSession is returned by Complete while questions remain unanswered.
	ErrIncompleteSession = errors.New("session has unanswered questions")
	// ErrNothingToCancel is returned by CancelAnswer when no answer is stored for the question.
	ErrNothingToCancel = errors.New("no answer to cancel")
	// ErrAlreadyAnswered is returned by RecordAnswer for a question that already has an answer.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrSessionFinalized is returned when answers of a completed session would change.
	ErrSessionFinalized = errors.New("session already completed")
	// ErrEmptySession is returned when an operation needs a current question and there is none.
	ErrEmptySession = errors.New("session has no questions")

	ErrNoNext     = errors.New("no next question")
	ErrNoPrevious = errors.New("no previous question")
)
