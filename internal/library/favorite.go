package library

import (
	"context"
	"fmt"
	"slices"

	"github.com/pavelanni/drill/internal/model"
)

// Tags returns the favorite tags on a question in display order.
func (l *Library) Tags(ctx context.Context, questionID int64) ([]model.FavoriteTag, error) {
	favorites, err := l.store.ListFavoritesByQuestion(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("list favorites of question %d: %w", questionID, err)
	}
	tags := make([]model.FavoriteTag, 0, len(favorites))
	for _, tag := range model.FavoriteTags {
		if slices.ContainsFunc(favorites, func(f model.Favorite) bool { return f.Tag == tag }) {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

// SetFavorite puts tag on a catalog question, or takes it off when on is
// false, and returns the question's tags afterwards. Both directions are
// idempotent.
func (l *Library) SetFavorite(ctx context.Context, questionID int64, tag model.FavoriteTag, on bool) ([]model.FavoriteTag, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	if _, ok := l.catalog.ByID(questionID); !ok {
		return nil, fmt.Errorf("question %d: %w", questionID, model.ErrNotFound)
	}
	if on {
		if err := l.store.UpsertFavorite(ctx, questionID, tag); err != nil {
			return nil, err
		}
	} else if err := l.store.DeleteFavorite(ctx, questionID, tag); err != nil {
		return nil, err
	}
	return l.Tags(ctx, questionID)
}
