package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkscotty/autoresearch/internal/config"
	"github.com/thinkscotty/autoresearch/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetSetting("ai_provider")
	assert.Error(t, err)

	require.NoError(t, db.SetSettings(map[string]string{"ai_provider": "gemini", "ai_model": "gemini-2.5-flash"}))
	require.NoError(t, db.SetSetting("ai_provider", "anthropic"))

	v, err := db.GetSetting("ai_provider")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", v)

	// A second handle on the same file sees the persisted values.
	reopened, err := New(db.path)
	require.NoError(t, err)
	defer reopened.Close()
	v, err = reopened.GetSetting("ai_model")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", v)
}

func TestSetSettingsClearsRemovedConfigValues(t *testing.T) {
	db := openTestDB(t)

	before := config.DefaultConfig()
	before.AI.Provider = "ollama"
	before.AI.Model = "gpt-4o"
	before.AI.BaseURL = "http://localhost:11434/v1"
	require.NoError(t, db.SetSettings(before.Settings()))

	after := config.DefaultConfig()
	after.AI.Provider = "anthropic"
	after.AI.AnthropicAPIKey = "sk-ant"

	reopened, err := New(db.path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.SetSettings(after.Settings()))

	fresh, err := New(db.path)
	require.NoError(t, err)
	defer fresh.Close()

	for name, store := range map[string]*DB{"writer": reopened, "fresh": fresh} {
		v, err := store.GetSetting("ai_provider")
		require.NoError(t, err, name)
		assert.Equal(t, "anthropic", v, name)

		_, err = store.GetSetting("ai_model")
		assert.Error(t, err, name)
		_, err = store.GetSetting("ai_base_url")
		assert.Error(t, err, name)
	}
}

func TestArticleLifecycle(t *testing.T) {
	db := openTestDB(t)

	first, err := db.CreateArticle("Solar Desalination", "")
	require.NoError(t, err)
	assert.Len(t, first.ID, 36)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.Nil(t, first.CompletedAt)

	second, err := db.CreateArticle("Tidal Power", "The Pull of the Moon")
	require.NoError(t, err)

	claimed, err := db.ClaimPending(1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, first.ID, claimed[0].ID)
	assert.Equal(t, models.StatusRunning, claimed[0].Status)

	require.NoError(t, db.SaveResult(first.ID, models.Result{
		Success:       true,
		Topic:         "Solar Desalination",
		Title:         "Fresh Water from Sunlight",
		FinalArticle:  "# Fresh Water from Sunlight\n\nBody.",
		SourcesUsed:   2,
		ResearchFacts: 9,
		DurationMS:    1234,
	}))

	done, err := db.GetArticle(first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, done.Status)
	assert.Equal(t, "Fresh Water from Sunlight", done.Title)
	assert.Equal(t, 2, done.SourcesUsed)
	assert.Equal(t, 9, done.ResearchFacts)
	assert.EqualValues(t, 1234, done.DurationMS)
	assert.NotNil(t, done.CompletedAt)

	claimed, err = db.ClaimPending(5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "The Pull of the Moon", claimed[0].CustomTitle)

	require.NoError(t, db.SaveResult(second.ID, models.Result{Topic: "Tidal Power", Error: "search: context canceled"}))
	failed, err := db.GetArticle(second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "search: context canceled", failed.ErrorMessage)

	list, err := db.ListArticles(10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, a := range list {
		assert.Empty(t, a.FinalArticle)
	}

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalArticles)
	assert.Equal(t, 1, stats.CompleteArticles)
	assert.Equal(t, 1, stats.FailedArticles)
}

func TestMissingArticle(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetArticle("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.SaveResult("does-not-exist", models.Result{Success: true}), ErrNotFound)
}

func TestResetRunning(t *testing.T) {
	db := openTestDB(t)

	a, err := db.CreateArticle("Topic", "")
	require.NoError(t, err)
	_, err = db.ClaimPending(1)
	require.NoError(t, err)

	n, err := db.ResetRunning()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := db.GetArticle(a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestAPIUsage(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.LogAPIUsage(models.APIUsageLog{AIProvider: "openai", AIModel: "gpt-4o", TokensUsed: 100}))
	require.NoError(t, db.LogAPIUsage(models.APIUsageLog{AIProvider: "openai", AIModel: "gpt-4o", ErrorMessage: "rate limited"}))

	logs, err := db.RecentAPIUsage(10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "rate limited", logs[0].ErrorMessage)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalAPICalls)
	assert.Equal(t, 100, stats.TotalTokensUsed)
	assert.Equal(t, 1, stats.FailedAPICalls)
}
