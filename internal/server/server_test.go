package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkscotty/autoresearch/internal/auth"
	"github.com/thinkscotty/autoresearch/internal/config"
	"github.com/thinkscotty/autoresearch/internal/database"
	"github.com/thinkscotty/autoresearch/internal/models"
	"github.com/thinkscotty/autoresearch/internal/scheduler"
)

type stubRunner struct{}

func (stubRunner) Run(_ context.Context, topic, customTitle string) models.Result {
	title := customTitle
	if title == "" {
		title = "All About " + topic
	}
	return models.Result{
		Success:       true,
		Topic:         topic,
		Title:         title,
		FinalArticle:  "# " + title + "\n\nBody text.",
		SourcesUsed:   1,
		ResearchFacts: 3,
	}
}

type testServer struct {
	db      *database.DB
	handler http.Handler
	key     string
}

func newTestServer(t *testing.T, withKey bool) *testServer {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := &testServer{db: db}
	if withKey {
		key, hash, err := auth.NewKey()
		require.NoError(t, err)
		require.NoError(t, db.SetSetting(APIKeyHashSetting, hash))
		ts.key = key
	}

	sched := scheduler.New(db, stubRunner{}, time.Hour, 1)
	ts.handler = New(config.DefaultConfig(), db, sched, "test").Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if ts.key != "" {
		req.Header.Set("Authorization", "Bearer "+ts.key)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestAPIKeyRequired(t *testing.T) {
	ts := newTestServer(t, true)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong bearer", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid bearer", header: "Bearer " + ts.key, want: http.StatusOK},
		{name: "valid query", query: "?api_key=" + ts.key, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/articles"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAPIKeyNotConfigured(t *testing.T) {
	ts := newTestServer(t, false)
	ts.key = "anything"
	rec := ts.do(t, http.MethodGet, "/api/v1/articles", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResearchQueuesArticle(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(t, http.MethodPost, "/api/v1/research", `{"topic":"  Perovskite Solar Cells "}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decode[map[string]string](t, rec)
	assert.Equal(t, models.StatusPending, body["status"])
	assert.Equal(t, "/api/v1/articles/"+body["id"], rec.Header().Get("Location"))

	stored, err := ts.db.GetArticle(body["id"])
	require.NoError(t, err)
	assert.Equal(t, "Perovskite Solar Cells", stored.Topic)

	rec = ts.do(t, http.MethodGet, "/api/v1/articles/"+body["id"]+"/markdown", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResearchValidation(t *testing.T) {
	ts := newTestServer(t, true)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "topic=x"},
		{name: "empty topic", body: `{"topic":"   "}`},
		{name: "too long", body: `{"topic":"` + strings.Repeat("a", maxTopicLength+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/research", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestResearchWait(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(t, http.MethodPost, "/api/v1/research", `{"topic":"Tidal Energy","title":"The Pull of the Moon","wait":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		ID     string        `json:"id"`
		Result models.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Result.Success)
	assert.Equal(t, "The Pull of the Moon", body.Result.Title)

	rec = ts.do(t, http.MethodGet, "/api/v1/articles/"+body.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	article := decode[models.Article](t, rec)
	assert.Equal(t, models.StatusComplete, article.Status)
	assert.Equal(t, 3, article.ResearchFacts)

	rec = ts.do(t, http.MethodGet, "/api/v1/articles/"+body.ID+"/markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "# The Pull of the Moon\n\nBody text.", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/articles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]models.Article](t, rec)
	require.Len(t, list["articles"], 1)
	assert.Empty(t, list["articles"][0].FinalArticle)

	rec = ts.do(t, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[models.Stats](t, rec)
	assert.Equal(t, 1, stats.CompleteArticles)
	assert.NotEmpty(t, stats.DatabaseSize)
}

func TestArticleNotFound(t *testing.T) {
	ts := newTestServer(t, true)
	rec := ts.do(t, http.MethodGet, "/api/v1/articles/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Article not found", decode[map[string]string](t, rec)["error"])
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBusyResponseReportsStoredStatus(t *testing.T) {
	ts := newTestServer(t, false)
	srv := New(config.DefaultConfig(), ts.db, nil, "test")

	claimed, err := ts.db.CreateArticle("Ocean Currents", "")
	require.NoError(t, err)
	_, ok, err := ts.db.ClaimArticle(claimed.ID)
	require.NoError(t, err)
	require.True(t, ok)

	queued, err := ts.db.CreateArticle("Ocean Currents", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		id     string
		code   int
		status string
	}{
		{name: "claimed by the scheduler loop", id: claimed.ID, code: http.StatusAccepted, status: models.StatusRunning},
		{name: "topic locked by another run", id: queued.ID, code: http.StatusConflict, status: models.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.busyResponse(rec, tt.id, scheduler.ErrBusy)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.status, decode[map[string]string](t, rec)["status"])
			assert.Equal(t, "/api/v1/articles/"+tt.id, rec.Header().Get("Location"))
		})
	}
}
