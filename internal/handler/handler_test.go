package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/drill/internal/catalog"
	appI18n "github.com/pavelanni/drill/internal/i18n"
	"github.com/pavelanni/drill/internal/importer"
	"github.com/pavelanni/drill/internal/model"
	"github.com/pavelanni/drill/internal/practice"
	"github.com/pavelanni/drill/internal/store"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var testQuestions = []model.Question{
	{ID: 1, Problem: "Capital of France?", Choices: []string{"Paris", "Rome", "Oslo"}, SelectionFormat: model.SelectionSingle, Answers: []int{0}, Explanation: "Paris."},
	{ID: 2, Problem: "2 + 2?", Choices: []string{"3", "4", "5"}, SelectionFormat: model.SelectionSingle, Answers: []int{1}},
	{ID: 3, Problem: "Primes?", Choices: []string{"2", "4", "5", "6"}, SelectionFormat: model.SelectionMulti, Answers: []int{0, 2}},
}

type testServer struct {
	h      *Handler
	router http.Handler
	store  *store.Store
	qlist  model.QList
}

func newTestServer(t *testing.T, explainer Explainer) *testServer {
	t.Helper()
	ctx := context.Background()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cat := catalog.New(st)
	if _, err := cat.Add(ctx, testQuestions); err != nil {
		t.Fatalf("catalog.Add: %v", err)
	}
	q := model.QList{UUID: "uuid-basics", Name: "Basics", QuestionIDs: []int64{1, 2, 3}, IsDefault: true}
	if q.ID, err = st.InsertQList(ctx, q); err != nil {
		t.Fatalf("InsertQList: %v", err)
	}

	h := New(st, cat, practice.New(cat, st), explainer, model.AppConfig{Lang: "en"})
	r := chi.NewRouter()
	r.Use(appI18n.Middleware)
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	return &testServer{h: h, router: r, store: st, qlist: q}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func (ts *testServer) start(t *testing.T) sessionView {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/practices", `{"qlist_id": 1, "shuffle_questions": false, "shuffle_choices": false}`)
	expectStatus(t, rec, http.StatusCreated)
	return decode[sessionView](t, rec)
}

func TestPracticeFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.start(t)
	base := "/api/practices/" + itoa(s.ID)

	if s.State != "in_progress" || s.Cursor != 0 || s.Total != 3 {
		t.Fatalf("new session = %+v", s)
	}
	if s.Current == nil || s.Current.QuestionID != 1 {
		t.Fatalf("current = %+v, want question 1", s.Current)
	}
	for _, c := range s.Current.Choices {
		if c.Correct != nil {
			t.Errorf("choice %d reveals correctness before answering", c.Index)
		}
	}

	rec := ts.do(t, http.MethodPost, base+"/answer", `{"selected": [0]}`)
	expectStatus(t, rec, http.StatusOK)
	s = decode[sessionView](t, rec)
	if !s.Current.Answered || s.Current.IsCorrect == nil || !*s.Current.IsCorrect {
		t.Errorf("answer to question 1 = %+v, want answered correctly", s.Current)
	}
	if c := s.Current.Choices[0]; c.Correct == nil || !*c.Correct || !c.Selected {
		t.Errorf("first choice after answering = %+v", c)
	}
	if s.Current.Explanation != "Paris." {
		t.Errorf("explanation = %q", s.Current.Explanation)
	}

	rec = ts.do(t, http.MethodPost, base+"/answer", `{"selected": [1]}`)
	expectStatus(t, rec, http.StatusConflict)

	expectStatus(t, ts.do(t, http.MethodPost, base+"/next", ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [0]}`), http.StatusOK)

	rec = ts.do(t, http.MethodPost, base+"/complete", "")
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if got := decode[errorBody](t, rec).Error; got != "1 question is still unanswered." {
		t.Errorf("incomplete message = %q", got)
	}

	expectStatus(t, ts.do(t, http.MethodPost, base+"/next", ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [2, 0]}`), http.StatusOK)

	rec = ts.do(t, http.MethodPost, base+"/complete", "")
	expectStatus(t, rec, http.StatusOK)
	s = decode[sessionView](t, rec)
	if s.State != "completed" || s.Accuracy != 66.67 || !slices.Equal(s.IncorrectQuestionIDs, []int64{2}) {
		t.Errorf("completed session = state %s accuracy %v incorrect %v", s.State, s.Accuracy, s.IncorrectQuestionIDs)
	}

	// Completing again is harmless; answering is not.
	expectStatus(t, ts.do(t, http.MethodPost, base+"/complete", ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodDelete, base+"/answers/3", ""), http.StatusConflict)

	rec = ts.do(t, http.MethodPost, base+"/review", `{"shuffle_questions": true}`)
	expectStatus(t, rec, http.StatusCreated)
	review := decode[sessionView](t, rec)
	if !review.IsReview || review.Total != 1 || review.Current.QuestionID != 2 {
		t.Errorf("review = %+v", review)
	}
	if !strings.HasPrefix(review.QList.Name, "[Review] Basics") || review.QList.IsDefault {
		t.Errorf("review qlist = %+v", review.QList)
	}
}

func TestResumeAfterRestart(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.start(t)
	base := "/api/practices/" + itoa(s.ID)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [1]}`), http.StatusOK)

	ts.h.forgetAll()

	rec := ts.do(t, http.MethodGet, base, "")
	expectStatus(t, rec, http.StatusOK)
	got := decode[sessionView](t, rec)
	if got.Cursor != 1 || got.Answered != 1 || got.Correct != 0 {
		t.Errorf("resumed = cursor %d answered %d correct %d, want 1 1 0", got.Cursor, got.Answered, got.Correct)
	}
	if got.Current.QuestionID != 2 {
		t.Errorf("resumed current = %d, want 2", got.Current.QuestionID)
	}
}

func TestAnswerValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.start(t)
	base := "/api/practices/" + itoa(s.ID)

	tests := []struct {
		name string
		body string
	}{
		{"empty selection", `{"selected": []}`},
		{"missing body", ""},
		{"two choices on single question", `{"selected": [0, 1]}`},
		{"out of range", `{"selected": [7]}`},
		{"negative", `{"selected": [-1]}`},
		{"unknown field", `{"choices": [0]}`},
		{"not json", `selected=0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, base+"/answer", tt.body)
			expectStatus(t, rec, http.StatusBadRequest)
		})
	}

	// Duplicates are rejected on multi-selection questions too.
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [0]}`), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/next", ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [1]}`), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/next", ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [0, 0]}`), http.StatusBadRequest)
}

func TestCancelAnswer(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.start(t)
	base := "/api/practices/" + itoa(s.ID)

	rec := ts.do(t, http.MethodDelete, base+"/answers/1", "")
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if got := decode[errorBody](t, rec).Error; got != "There is no answer to cancel." {
		t.Errorf("message = %q", got)
	}

	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [2]}`), http.StatusOK)
	rec = ts.do(t, http.MethodDelete, base+"/answers/1", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[sessionView](t, rec); got.Answered != 0 || got.Current.Answered {
		t.Errorf("after cancel answered = %d, current answered = %v", got.Answered, got.Current.Answered)
	}
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [0]}`), http.StatusOK)
}

func TestNavigationBoundaries(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.start(t)
	base := "/api/practices/" + itoa(s.ID)

	rec := ts.do(t, http.MethodPost, base+"/prev", "")
	expectStatus(t, rec, http.StatusConflict)
	if got := decode[errorBody](t, rec).Error; got != "This is the first question." {
		t.Errorf("message = %q", got)
	}

	expectStatus(t, ts.do(t, http.MethodPost, base+"/next", ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/next", ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/next", ""), http.StatusConflict)

	rec = ts.do(t, http.MethodPost, base+"/prev?lang=ja", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[sessionView](t, rec); got.Cursor != 1 {
		t.Errorf("cursor = %d, want 1", got.Cursor)
	}
}

func TestPracticeErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown practice", http.MethodGet, "/api/practices/999", "", http.StatusNotFound},
		{"bad practice id", http.MethodGet, "/api/practices/abc", "", http.StatusBadRequest},
		{"unknown qlist", http.MethodPost, "/api/practices", `{"qlist_id": 42}`, http.StatusNotFound},
		{"missing qlist", http.MethodPost, "/api/practices", `{}`, http.StatusBadRequest},
		{"custom without name", http.MethodPost, "/api/practices/custom", `{"question_ids": [1]}`, http.StatusBadRequest},
		{"custom without ids", http.MethodPost, "/api/practices/custom", `{"name": "x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, ts.do(t, tt.method, tt.path, tt.body), tt.want)
		})
	}
}

func TestCustomPracticeDropsUnknownQuestions(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodPost, "/api/practices/custom", `{"name": "Mine", "question_ids": [3, 99, 1]}`)
	expectStatus(t, rec, http.StatusCreated)
	s := decode[sessionView](t, rec)
	if s.Total != 2 || s.QList.IsDefault || s.QList.UUID == "" {
		t.Errorf("custom session = %+v", s)
	}
	if !slices.Equal(s.QList.QuestionIDs, []int64{3, 99, 1}) {
		t.Errorf("custom qlist ids = %v", s.QList.QuestionIDs)
	}
}

func TestEmptySession(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodPost, "/api/practices/custom", `{"name": "Ghosts", "question_ids": [98, 99]}`)
	expectStatus(t, rec, http.StatusCreated)
	s := decode[sessionView](t, rec)
	if s.State != "empty" || s.Cursor != -1 || s.Current != nil {
		t.Fatalf("empty session = %+v", s)
	}
	base := "/api/practices/" + itoa(s.ID)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [0]}`), http.StatusUnprocessableEntity)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/next", ""), http.StatusConflict)

	rec = ts.do(t, http.MethodPost, base+"/complete", "")
	expectStatus(t, rec, http.StatusOK)
	if done := decode[sessionView](t, rec); done.Total != 0 || done.Accuracy != 100 {
		t.Errorf("completed empty session = %+v", done)
	}
}

func TestReviewWithoutMistakes(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.start(t)
	base := "/api/practices/" + itoa(s.ID)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [0]}`), http.StatusOK)

	rec := ts.do(t, http.MethodPost, base+"/review", "")
	expectStatus(t, rec, http.StatusUnprocessableEntity)
}

type fakeExplainer struct {
	selected []int
	lang     string
}

func (f *fakeExplainer) Explain(_ context.Context, q model.Question, selected []int, lang string) (string, error) {
	f.selected, f.lang = selected, lang
	return "because of " + q.Problem, nil
}

func TestExplain(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, nil)
		s := ts.start(t)
		expectStatus(t, ts.do(t, http.MethodGet, "/api/practices/"+itoa(s.ID)+"/explain", ""), http.StatusNotImplemented)
	})

	t.Run("enabled", func(t *testing.T) {
		fake := &fakeExplainer{}
		ts := newTestServer(t, fake)
		s := ts.start(t)
		base := "/api/practices/" + itoa(s.ID)

		rec := ts.do(t, http.MethodGet, base+"/explain", "")
		expectStatus(t, rec, http.StatusOK)
		got := decode[explainResponse](t, rec)
		if got.QuestionID != 1 || got.Explanation != "because of Capital of France?" {
			t.Errorf("explain = %+v", got)
		}
		if fake.selected != nil || fake.lang != "en" {
			t.Errorf("unanswered explain got selected %v lang %q", fake.selected, fake.lang)
		}

		expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [2]}`), http.StatusOK)
		expectStatus(t, ts.do(t, http.MethodGet, base+"/explain?lang=ja", ""), http.StatusOK)
		if !slices.Equal(fake.selected, []int{2}) || fake.lang != "ja" {
			t.Errorf("answered explain got selected %v lang %q", fake.selected, fake.lang)
		}
	})
}

func TestQListEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/qlists", `{"name": " Hard ones ", "question_ids": [3, 2]}`)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[model.QList](t, rec)
	if created.Name != "Hard ones" || created.IsDefault || created.UUID == "" {
		t.Errorf("created = %+v", created)
	}
	expectStatus(t, ts.do(t, http.MethodPost, "/api/qlists", `{"name": " ", "question_ids": [1]}`), http.StatusBadRequest)

	rec = ts.do(t, http.MethodGet, "/api/qlists?standard=true", "")
	expectStatus(t, rec, http.StatusOK)
	if page := decode[model.Page[model.QList]](t, rec); page.TotalSize != 1 || page.Items[0].Name != "Basics" {
		t.Errorf("standard lists = %+v", page)
	}
	rec = ts.do(t, http.MethodGet, "/api/qlists", "")
	if page := decode[model.Page[model.QList]](t, rec); page.TotalSize != 2 {
		t.Errorf("all lists total = %d, want 2", page.TotalSize)
	}

	path := "/api/qlists/" + itoa(created.ID)
	rec = ts.do(t, http.MethodPatch, path, `{"name": "Renamed", "is_default": true}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.QList](t, rec); got.Name != "Renamed" || !got.IsDefault {
		t.Errorf("patched = %+v", got)
	}
	rec = ts.do(t, http.MethodPatch, path, `{"name": "Again"}`)
	if got := decode[model.QList](t, rec); !got.IsDefault {
		t.Errorf("patch without is_default changed the flag: %+v", got)
	}
	rec = ts.do(t, http.MethodPatch, path, `{"name": ""}`)
	expectStatus(t, rec, http.StatusBadRequest)
	if got := decode[errorBody](t, rec).Error; got != "The name must not be empty." {
		t.Errorf("message = %q", got)
	}
	expectStatus(t, ts.do(t, http.MethodPatch, "/api/qlists/999", `{"name": "x"}`), http.StatusNotFound)

	// Deleting a list removes its practices, including one held in memory.
	s := ts.start(t)
	expectStatus(t, ts.do(t, http.MethodDelete, "/api/qlists/1", ""), http.StatusNoContent)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/practices/"+itoa(s.ID), ""), http.StatusNotFound)
	expectStatus(t, ts.do(t, http.MethodDelete, "/api/qlists/1", ""), http.StatusNotFound)
}

func TestBrowsing(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.start(t)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/practices/"+itoa(s.ID)+"/answer", `{"selected": [0]}`), http.StatusOK)

	rec := ts.do(t, http.MethodGet, "/api/questions?q=PARIS", "")
	expectStatus(t, rec, http.StatusOK)
	if page := decode[model.Page[model.Question]](t, rec); page.TotalSize != 1 || page.Items[0].ID != 1 {
		t.Errorf("case-insensitive search = %+v", page)
	}
	rec = ts.do(t, http.MethodGet, "/api/questions?q=PARIS&case=true", "")
	if page := decode[model.Page[model.Question]](t, rec); page.TotalSize != 0 {
		t.Errorf("case-sensitive search found %d", page.TotalSize)
	}

	rec = ts.do(t, http.MethodGet, "/api/practices", "")
	expectStatus(t, rec, http.StatusOK)
	if page := decode[model.Page[model.PracticeSummary]](t, rec); page.TotalSize != 1 || page.Items[0].QList.Name != "Basics" {
		t.Errorf("practices = %+v", page)
	}

	rec = ts.do(t, http.MethodGet, "/api/answers", "")
	expectStatus(t, rec, http.StatusOK)
	if page := decode[model.Page[model.AnswerSummary]](t, rec); page.TotalSize != 1 || page.Items[0].Question.ID != 1 {
		t.Errorf("answers = %+v", page)
	}
}

func questionIDs(page model.Page[model.Question]) []int64 {
	out := []int64{}
	for _, q := range page.Items {
		out = append(out, q.ID)
	}
	return out
}

func TestQuestionSearchFilters(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.start(t)
	base := "/api/practices/" + itoa(s.ID)
	// Question 1 right, question 2 wrong, question 3 unanswered.
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [0]}`), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/next", ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [0]}`), http.StatusOK)

	tests := []struct {
		query string
		want  []int64
	}{
		{"qlist=1", []int64{1, 2, 3}},
		{"min_answers=1", []int64{1, 2}},
		{"recent_wrong=1", []int64{2}},
		{"min_answers=1&status=exclude", []int64{3}},
		{"correct_rate=50", []int64{1, 3}},
		{"qlist=1&max_answers=0", []int64{3}},
		{"answered_from=2000-01-01&answered_to=2000-01-02", []int64{}},
		{"q=primes&min_answers=1&status=exclude", []int64{3}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/questions?"+tt.query, "")
			expectStatus(t, rec, http.StatusOK)
			if got := questionIDs(decode[model.Page[model.Question]](t, rec)); !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	bad := []struct {
		query string
		want  int
	}{
		{"min_answers=x", http.StatusBadRequest},
		{"correct_rate=150", http.StatusBadRequest},
		{"status=maybe", http.StatusBadRequest},
		{"favorite=moon", http.StatusBadRequest},
		{"answered_to=yesterday", http.StatusBadRequest},
		{"qlist=99", http.StatusNotFound},
	}
	for _, tt := range bad {
		t.Run(tt.query, func(t *testing.T) {
			expectStatus(t, ts.do(t, http.MethodGet, "/api/questions?"+tt.query, ""), tt.want)
		})
	}
}

func TestQuestionDetail(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.start(t)
	base := "/api/practices/" + itoa(s.ID)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [0]}`), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/next", ""), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [0]}`), http.StatusOK)

	rec := ts.do(t, http.MethodGet, "/api/questions/2", "")
	expectStatus(t, rec, http.StatusOK)
	d := decode[model.QuestionDetail](t, rec)
	if d.Question.ID != 2 || len(d.Answers) != 1 || d.Answers[0].IsCorrect || d.Accuracy != 0 {
		t.Fatalf("detail of question 2 = %+v", d)
	}
	if d.Answers[0].PracticeHistoryID != s.ID || !slices.Equal(d.Answers[0].SelectedChoices, []int{0}) {
		t.Errorf("answer = %+v", d.Answers[0])
	}

	rec = ts.do(t, http.MethodGet, "/api/questions/1", "")
	if d := decode[model.QuestionDetail](t, rec); d.Correct != 1 || d.Accuracy != 100 {
		t.Errorf("detail of question 1 = %+v", d)
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/api/questions/99", ""), http.StatusNotFound)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/questions/abc", ""), http.StatusBadRequest)
}

func TestFavorites(t *testing.T) {
	ts := newTestServer(t, nil)

	tag := func(method, path string, want ...model.FavoriteTag) {
		t.Helper()
		rec := ts.do(t, method, path, "")
		expectStatus(t, rec, http.StatusOK)
		got := decode[favoritesResponse](t, rec)
		if !slices.Equal(got.Favorites, want) {
			t.Errorf("%s %s: favorites = %v, want %v", method, path, got.Favorites, want)
		}
	}
	tag(http.MethodPut, "/api/questions/2/favorites/heart", model.FavoriteHeart)
	tag(http.MethodPut, "/api/questions/2/favorites/star", model.FavoriteStar, model.FavoriteHeart)
	tag(http.MethodPut, "/api/questions/2/favorites/star", model.FavoriteStar, model.FavoriteHeart)

	rec := ts.do(t, http.MethodPut, "/api/questions/2/favorites/moon", "")
	expectStatus(t, rec, http.StatusBadRequest)
	if got := decode[errorBody](t, rec).Error; got != "Unknown favorite tag. Use triangle, star or heart." {
		t.Errorf("message = %q", got)
	}
	expectStatus(t, ts.do(t, http.MethodPut, "/api/questions/99/favorites/star", ""), http.StatusNotFound)

	// The practice view carries the tags of the current question.
	s := ts.start(t)
	if s.Current.Favorites == nil || len(s.Current.Favorites) != 0 {
		t.Errorf("untagged question favorites = %v", s.Current.Favorites)
	}
	rec = ts.do(t, http.MethodPost, "/api/practices/"+itoa(s.ID)+"/next", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[sessionView](t, rec).Current.Favorites; !slices.Equal(got, []model.FavoriteTag{model.FavoriteStar, model.FavoriteHeart}) {
		t.Errorf("current favorites = %v", got)
	}

	tag(http.MethodDelete, "/api/questions/2/favorites/star", model.FavoriteHeart)

	for _, query := range []string{"favorite=heart", "favorite=any", "favorite=triangle&favorite=heart"} {
		rec = ts.do(t, http.MethodGet, "/api/questions?"+query, "")
		expectStatus(t, rec, http.StatusOK)
		if got := questionIDs(decode[model.Page[model.Question]](t, rec)); !slices.Equal(got, []int64{2}) {
			t.Errorf("%s: got %v, want [2]", query, got)
		}
	}
	rec = ts.do(t, http.MethodGet, "/api/questions?favorite=star", "")
	if got := questionIDs(decode[model.Page[model.Question]](t, rec)); len(got) != 0 {
		t.Errorf("favorite=star: got %v, want none", got)
	}
}

func isCached(h *Handler, practiceID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[practiceID]
	return ok
}

func TestCompletedSessionLeavesMemory(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.start(t)
	base := "/api/practices/" + itoa(s.ID)
	for i, sel := range []string{"[0]", "[1]", "[0, 2]"} {
		if i > 0 {
			expectStatus(t, ts.do(t, http.MethodPost, base+"/next", ""), http.StatusOK)
		}
		expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": `+sel+`}`), http.StatusOK)
	}
	if !isCached(ts.h, s.ID) {
		t.Fatal("practice in progress should be cached")
	}

	expectStatus(t, ts.do(t, http.MethodPost, base+"/complete", ""), http.StatusOK)
	if isCached(ts.h, s.ID) {
		t.Error("completed practice is still cached")
	}

	rec := ts.do(t, http.MethodGet, base, "")
	expectStatus(t, rec, http.StatusOK)
	if got := decode[sessionView](t, rec); got.State != "completed" || got.Accuracy != 100 {
		t.Errorf("resumed completed practice = state %s accuracy %v", got.State, got.Accuracy)
	}
}

func TestListDeletedWhileSessionBusy(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.start(t)

	ts.h.mu.Lock()
	e := ts.h.sessions[s.ID]
	ts.h.mu.Unlock()

	// Hold the session while its list is deleted; the waiting answer must
	// not be stored for the deleted practice.
	e.mu.Lock()
	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- ts.do(t, http.MethodPost, "/api/practices/"+itoa(s.ID)+"/answer", `{"selected": [0]}`)
	}()
	expectStatus(t, ts.do(t, http.MethodDelete, "/api/qlists/1", ""), http.StatusNoContent)
	e.mu.Unlock()

	expectStatus(t, <-done, http.StatusNotFound)
	answers, err := ts.store.ListAnsHistories(context.Background())
	if err != nil {
		t.Fatalf("ListAnsHistories: %v", err)
	}
	if len(answers) != 0 {
		t.Errorf("answers stored for a deleted practice: %+v", answers)
	}
}

func TestDeletePractice(t *testing.T) {
	ts := newTestServer(t, nil)
	s := ts.start(t)
	base := "/api/practices/" + itoa(s.ID)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", `{"selected": [0]}`), http.StatusOK)

	expectStatus(t, ts.do(t, http.MethodDelete, base, ""), http.StatusNoContent)
	if isCached(ts.h, s.ID) {
		t.Errorf("deleted practice still cached")
	}
	expectStatus(t, ts.do(t, http.MethodGet, base, ""), http.StatusNotFound)
	expectStatus(t, ts.do(t, http.MethodDelete, base, ""), http.StatusNotFound)

	answers, err := ts.store.ListAnsHistories(context.Background())
	if err != nil {
		t.Fatalf("ListAnsHistories: %v", err)
	}
	if len(answers) != 0 {
		t.Errorf("answers left after delete: %+v", answers)
	}
	if _, err := ts.store.GetQList(context.Background(), ts.qlist.ID); err != nil {
		t.Errorf("list removed with its practice: %v", err)
	}
}

func multipartUpload(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(content)
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImportExport(t *testing.T) {
	ts := newTestServer(t, nil)

	bank := `{"name": "Geography", "questions": [
		{"id": 1, "problem": "dup", "choice": ["a"], "answer": [0]},
		{"id": 10, "problem": "Longest river?", "choice": ["Nile", "Seine"], "answer": [0]}
	]}`
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, multipartUpload(t, "/api/import/questions", "geo.json", []byte(bank)))
	expectStatus(t, rec, http.StatusOK)
	res := decode[importer.QuestionResult](t, rec)
	if res.Total != 2 || res.Added != 1 || res.QListID == 0 {
		t.Errorf("question import = %+v", res)
	}

	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, multipartUpload(t, "/api/import/questions", "bad.json", []byte(`{"questions": 1}`)))
	expectStatus(t, rec, http.StatusBadRequest)

	s := ts.start(t)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/practices/"+itoa(s.ID)+"/answer", `{"selected": [0]}`), http.StatusOK)

	rec = ts.do(t, http.MethodGet, "/api/export/history", "")
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "drill-history-") {
		t.Errorf("content disposition = %q", cd)
	}
	exported := rec.Body.Bytes()
	if !strings.Contains(string(exported), strings.Join(model.HistoryHeader, ",")) {
		t.Fatalf("export lacks header:\n%s", exported)
	}

	// Importing our own export matches everything and adds nothing.
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, multipartUpload(t, "/api/import/history", "history.csv", exported))
	expectStatus(t, rec, http.StatusOK)
	hist := decode[importer.HistoryResult](t, rec)
	if hist.Rows == 0 || hist.QLists != 0 || hist.Practices != 0 || hist.Answers != 0 {
		t.Errorf("history re-import = %+v", hist)
	}

	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, multipartUpload(t, "/api/import/history", "x.csv", []byte("a,b\n1,2\n")))
	expectStatus(t, rec, http.StatusBadRequest)
	if got := decode[errorBody](t, rec).Error; got != "The file is not a valid history export." {
		t.Errorf("message = %q", got)
	}

	expectStatus(t, ts.do(t, http.MethodPost, "/api/import/history", ""), http.StatusBadRequest)
}

func TestIndexAndHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.start(t)

	rec := ts.do(t, http.MethodGet, "/", "")
	expectStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	for _, want := range []string{"<title>Drill</title>", "Basics", "3 questions", "Practice #1", "In progress"} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ja")
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if body := rec.Body.String(); !strings.Contains(body, `lang="ja"`) || !strings.Contains(body, "ドリル") {
		t.Errorf("japanese index page not localized")
	}

	rec = ts.do(t, http.MethodGet, "/healthz", "")
	expectStatus(t, rec, http.StatusOK)
	health := decode[map[string]any](t, rec)
	if health["status"] != "ok" || health["questions"] != float64(3) || health["stored_questions"] != float64(3) {
		t.Errorf("health = %v", health)
	}
}

func TestBasePath(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.h.config.BasePath = "/drill"
	ts.start(t)

	rec := ts.do(t, http.MethodGet, "/", "")
	if body := rec.Body.String(); !strings.Contains(body, `href="/drill/api/practices/1"`) {
		t.Errorf("links do not carry the base path:\n%s", body)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
