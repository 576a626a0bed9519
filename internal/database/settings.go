package database

import (
	"fmt"

	"github.com/thinkscotty/autoresearch/internal/models"
)

// loadSettingsCache populates the in-memory settings cache from the database.
func (db *DB) loadSettingsCache() error {
	rows, err := db.conn.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return err
	}
	defer rows.Close()

	db.cacheMu.Lock()
	defer db.cacheMu.Unlock()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		db.settings[key] = value
	}
	return rows.Err()
}

func (db *DB) GetSetting(key string) (string, error) {
	db.cacheMu.RLock()
	v, ok := db.settings[key]
	db.cacheMu.RUnlock()
	if ok {
		return v, nil
	}
	// Fallback to DB for keys not yet cached
	var value string
	err := db.conn.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	db.cacheMu.Lock()
	db.settings[key] = value
	db.cacheMu.Unlock()
	return value, nil
}

func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))`,
		key, value)
	if err != nil {
		return err
	}
	db.cacheMu.Lock()
	db.settings[key] = value
	db.cacheMu.Unlock()
	return nil
}

// SetSettings writes several settings in one transaction. Keys with an
// empty value are deleted.
func (db *DB) SetSettings(values map[string]string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert, err := tx.Prepare(`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))`)
	if err != nil {
		return err
	}
	defer upsert.Close()

	del, err := tx.Prepare(`DELETE FROM settings WHERE key = ?`)
	if err != nil {
		return err
	}
	defer del.Close()

	for key, value := range values {
		if value == "" {
			_, err = del.Exec(key)
		} else {
			_, err = upsert.Exec(key, value)
		}
		if err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	db.cacheMu.Lock()
	for key, value := range values {
		if value == "" {
			delete(db.settings, key)
		} else {
			db.settings[key] = value
		}
	}
	db.cacheMu.Unlock()
	return nil
}

func (db *DB) LogAPIUsage(log models.APIUsageLog) error {
	_, err := db.conn.Exec(`
		INSERT INTO api_usage_log (ai_provider, ai_model, tokens_used, error_message)
		VALUES (?, ?, ?, ?)`,
		log.AIProvider, log.AIModel, log.TokensUsed, log.ErrorMessage)
	return err
}

func (db *DB) RecentAPIUsage(limit int) ([]models.APIUsageLog, error) {
	rows, err := db.conn.Query(`
		SELECT id, ai_provider, ai_model, tokens_used, error_message, created_at
		FROM api_usage_log
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.APIUsageLog
	for rows.Next() {
		var log models.APIUsageLog
		var createdAt string
		if err := rows.Scan(&log.ID, &log.AIProvider, &log.AIModel, &log.TokensUsed,
			&log.ErrorMessage, &createdAt); err != nil {
			return nil, err
		}
		log.CreatedAt, _ = parseTime(createdAt)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (db *DB) GetStats() (models.Stats, error) {
	var s models.Stats

	err := db.conn.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'complete' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM articles`).Scan(&s.TotalArticles, &s.CompleteArticles, &s.FailedArticles)
	if err != nil {
		return s, err
	}

	err = db.conn.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(tokens_used), 0),
		       COALESCE(SUM(CASE WHEN error_message != '' THEN 1 ELSE 0 END), 0)
		FROM api_usage_log`).Scan(&s.TotalAPICalls, &s.TotalTokensUsed, &s.FailedAPICalls)
	return s, err
}
