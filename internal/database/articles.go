package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/thinkscotty/autoresearch/internal/models"
)

// ErrNotFound is returned when an article id does not exist.
var ErrNotFound = errors.New("not found")

const articleColumns = `id, topic, custom_title, title, status, final_article,
	sources_used, research_facts, duration_ms, error, created_at, completed_at`

// CreateArticle queues a research run for topic.
func (db *DB) CreateArticle(topic, customTitle string) (models.Article, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(`
		INSERT INTO articles (id, topic, custom_title, status) VALUES (?, ?, ?, ?)`,
		id, topic, customTitle, models.StatusPending)
	if err != nil {
		return models.Article{}, fmt.Errorf("create article: %w", err)
	}
	return db.GetArticle(id)
}

func (db *DB) GetArticle(id string) (models.Article, error) {
	row := db.conn.QueryRow(`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

// ListArticles returns the most recent articles first. The article bodies
// are left empty.
func (db *DB) ListArticles(limit int) ([]models.Article, error) {
	rows, err := db.conn.Query(`
		SELECT id, topic, custom_title, title, status, '',
		       sources_used, research_facts, duration_ms, error, created_at, completed_at
		FROM articles ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// ClaimPending marks up to limit pending articles as running, oldest first,
// and returns them.
func (db *DB) ClaimPending(limit int) ([]models.Article, error) {
	rows, err := db.conn.Query(`
		SELECT id FROM articles WHERE status = ?
		ORDER BY created_at ASC, rowid ASC LIMIT ?`, models.StatusPending, limit)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var claimed []models.Article
	for _, id := range ids {
		a, ok, err := db.ClaimArticle(id)
		if err != nil {
			return claimed, err
		}
		if ok {
			claimed = append(claimed, a)
		}
	}
	return claimed, nil
}

// ClaimArticle marks one pending article as running. It reports false when
// the article is not pending.
func (db *DB) ClaimArticle(id string) (models.Article, bool, error) {
	res, err := db.conn.Exec(`UPDATE articles SET status = ? WHERE id = ? AND status = ?`,
		models.StatusRunning, id, models.StatusPending)
	if err != nil {
		return models.Article{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Article{}, false, nil
	}
	a, err := db.GetArticle(id)
	if err != nil {
		return a, false, err
	}
	return a, true, nil
}

// Requeue returns a running article to the pending queue.
func (db *DB) Requeue(id string) error {
	_, err := db.conn.Exec(`UPDATE articles SET status = ? WHERE id = ? AND status = ?`,
		models.StatusPending, id, models.StatusRunning)
	return err
}

// SaveResult records the outcome of a run.
func (db *DB) SaveResult(id string, res models.Result) error {
	status := models.StatusComplete
	if !res.Success {
		status = models.StatusFailed
	}
	result, err := db.conn.Exec(`
		UPDATE articles
		SET status = ?, title = ?, final_article = ?, sources_used = ?, research_facts = ?,
		    duration_ms = ?, error = ?, completed_at = datetime('now')
		WHERE id = ?`,
		status, res.Title, res.FinalArticle, res.SourcesUsed, res.ResearchFacts,
		res.DurationMS, res.Error, id)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetRunning puts runs interrupted by a restart back in the queue.
func (db *DB) ResetRunning() (int64, error) {
	res, err := db.conn.Exec(`UPDATE articles SET status = ? WHERE status = ?`,
		models.StatusPending, models.StatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (models.Article, error) {
	var a models.Article
	var createdAt string
	var completedAt sql.NullString
	if err := row.Scan(&a.ID, &a.Topic, &a.CustomTitle, &a.Title, &a.Status, &a.FinalArticle,
		&a.SourcesUsed, &a.ResearchFacts, &a.DurationMS, &a.ErrorMessage,
		&createdAt, &completedAt); err != nil {
		return a, err
	}
	a.CreatedAt, _ = parseTime(createdAt)
	if completedAt.Valid {
		parsed, _ := parseTime(completedAt.String)
		a.CompletedAt = &parsed
	}
	return a, nil
}
