package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/drill/internal/library"
	"github.com/pavelanni/drill/internal/model"
)

// handleSearchQuestions filters the catalog by the query parameters read in
// parseSearchQuery.
func (h *Handler) handleSearchQuestions(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.library.Search(r.Context(), q, queryPage(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// parseSearchQuery reads
//
//	q, case                      word search
//	qlist (repeatable)           list ids
//	favorite (repeatable)        tag names, or "any" for every tag
//	answered_from, answered_to   RFC 3339 or YYYY-MM-DD (UTC); a bare "to" date covers that whole day
//	min_answers, max_answers     answer count bounds
//	recent_wrong                 a wrong answer among the last n
//	correct_rate                 minimum correct rate in percent
//	status                       include or exclude
func parseSearchQuery(v url.Values) (library.SearchQuery, error) {
	q := library.SearchQuery{
		Word:   v.Get("q"),
		Status: library.AnswerStatus(v.Get("status")),
	}
	q.CaseSensitive, _ = strconv.ParseBool(v.Get("case"))

	for _, s := range v["qlist"] {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return q, fmt.Errorf("%w: qlist %q", errBadRequest, s)
		}
		q.QListIDs = append(q.QListIDs, id)
	}
	for _, s := range v["favorite"] {
		if s == "any" {
			q.Favorites = model.FavoriteTags
			break
		}
		q.Favorites = append(q.Favorites, model.FavoriteTag(s))
	}

	var err error
	if q.AnsweredFrom, err = queryTime(v, "answered_from", false); err != nil {
		return q, err
	}
	if q.AnsweredTo, err = queryTime(v, "answered_to", true); err != nil {
		return q, err
	}
	if q.MinAnswers, err = queryInt(v, "min_answers"); err != nil {
		return q, err
	}
	if v.Has("max_answers") {
		n, err := queryInt(v, "max_answers")
		if err != nil {
			return q, err
		}
		q.MaxAnswers = &n
	}
	if q.RecentWrong, err = queryInt(v, "recent_wrong"); err != nil {
		return q, err
	}
	if s := v.Get("correct_rate"); s != "" {
		pct, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return q, fmt.Errorf("%w: correct_rate %q", errBadRequest, s)
		}
		q.MinCorrectRate = pct / 100
	}
	return q, nil
}

func queryInt(v url.Values, name string) (int, error) {
	s := v.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", errBadRequest, name, s)
	}
	return n, nil
}

// queryTime parses an RFC 3339 instant or a UTC date. With endOfDay a date
// stands for its last instant.
func queryTime(v url.Values, name string, endOfDay bool) (time.Time, error) {
	s := v.Get(name)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q", errBadRequest, name, s)
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return d, nil
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "questionID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := h.library.Question(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type favoritesResponse struct {
	QuestionID int64               `json:"question_id"`
	Favorites  []model.FavoriteTag `json:"favorites"`
}

func (h *Handler) handlePutFavorite(w http.ResponseWriter, r *http.Request) {
	h.setFavorite(w, r, true)
}

func (h *Handler) handleDeleteFavorite(w http.ResponseWriter, r *http.Request) {
	h.setFavorite(w, r, false)
}

func (h *Handler) setFavorite(w http.ResponseWriter, r *http.Request, on bool) {
	id, err := pathID(r, "questionID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tags, err := h.library.SetFavorite(r.Context(), id, model.FavoriteTag(chi.URLParam(r, "tag")), on)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, favoritesResponse{QuestionID: id, Favorites: tags})
}
