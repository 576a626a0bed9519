package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkscotty/autoresearch/internal/models"
)

type mapSettings map[string]string

func (m mapSettings) GetSetting(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestTavilySearch(t *testing.T) {
	var got tavilyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tv-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"results":[
			{"url":"https://a.example","title":"A","content":"alpha","score":0.91},
			{"url":"https://b.example","title":"B","content":"beta"},
			{"url":"","title":"no url"},
			{"url":"https://c.example","title":"C","score":4.2}
		]}`))
	}))
	defer srv.Close()

	tv := NewTavily(mapSettings{"tavily_api_key": "tv-key"}, srv.Client())
	tv.endpoint = srv.URL

	results, err := tv.Search(context.Background(), "solar desalination", 3)
	require.NoError(t, err)
	assert.Equal(t, "solar desalination", got.Query)
	assert.Equal(t, 3, got.MaxResults)

	require.Len(t, results, 3)
	assert.Equal(t, 0.91, results[0].RelevanceScore)
	assert.Equal(t, tavilyDefaultScore, results[1].RelevanceScore)
	assert.Equal(t, 1.0, results[2].RelevanceScore)
	assert.Equal(t, "alpha", results[0].Content)
}

func TestTavilyErrors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := NewTavily(mapSettings{}, http.DefaultClient).Search(context.Background(), "q", 5)
		assert.ErrorContains(t, err, "not configured")
	})

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
		}))
		defer srv.Close()

		tv := NewTavily(mapSettings{"tavily_api_key": "bad"}, srv.Client())
		tv.endpoint = srv.URL
		_, err := tv.Search(context.Background(), "q", 5)
		assert.ErrorContains(t, err, "401")
	})
}

func TestWikipediaSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "search", q.Get("list"))
		assert.Equal(t, "desalination", q.Get("srsearch"))
		assert.Equal(t, "2", q.Get("srlimit"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(`{"query":{"search":[
			{"title":"Solar desalination","snippet":"<span class=\"searchmatch\">Solar</span> desalination &amp; stills"},
			{"title":"Reverse osmosis","snippet":"A  membrane\n process"}
		]}}`))
	}))
	defer srv.Close()

	wp := NewWikipedia(srv.Client(), "test-agent")
	wp.apiURL = srv.URL

	results, err := wp.Search(context.Background(), "desalination", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "https://en.wikipedia.org/wiki/Solar_desalination", results[0].URL)
	assert.Equal(t, "Solar desalination & stills", results[0].Content)
	assert.Equal(t, 1.0, results[0].RelevanceScore)
	assert.Equal(t, 0.5, results[1].RelevanceScore)
	assert.Equal(t, "A membrane process", results[1].Content)
}

func TestClientRoutesBySetting(t *testing.T) {
	settings := mapSettings{"search_provider": "wikipedia"}
	c := NewClient(settings, "")

	stub := &stubProvider{name: "wikipedia"}
	c.Register(stub)
	_, err := c.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.True(t, stub.called)

	settings["search_provider"] = "altavista"
	_, err = c.Search(context.Background(), "q", 1)
	assert.ErrorContains(t, err, "unknown search provider")
}

type stubProvider struct {
	name   string
	called bool
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(context.Context, string, int) ([]models.SearchResult, error) {
	s.called = true
	return nil, nil
}
