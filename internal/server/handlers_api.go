package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/thinkscotty/autoresearch/internal/database"
	"github.com/thinkscotty/autoresearch/internal/models"
	"github.com/thinkscotty/autoresearch/internal/scheduler"
)

const (
	maxRequestBytes = 1 << 20
	maxTopicLength  = 500
)

type researchRequest struct {
	Topic string `json:"topic"`
	Title string `json:"title"`
	Wait  bool   `json:"wait"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	req.Title = strings.TrimSpace(req.Title)
	if req.Topic == "" {
		jsonError(w, "topic is required", http.StatusBadRequest)
		return
	}
	if len(req.Topic) > maxTopicLength {
		jsonError(w, "topic is too long", http.StatusBadRequest)
		return
	}

	article, err := s.db.CreateArticle(req.Topic, req.Title)
	if err != nil {
		slog.Error("API: failed to create article", "topic", req.Topic, "error", err)
		jsonError(w, "Failed to queue research", http.StatusInternalServerError)
		return
	}
	slog.Info("Research queued", "id", article.ID, "topic", article.Topic, "wait", req.Wait)

	if !req.Wait {
		s.sched.Trigger()
		w.Header().Set("Location", "/api/v1/articles/"+article.ID)
		jsonStatus(w, http.StatusAccepted, map[string]string{"id": article.ID, "status": article.Status})
		return
	}

	res, err := s.sched.RunNow(r.Context(), article.ID)
	if errors.Is(err, scheduler.ErrBusy) {
		s.sched.Trigger()
		s.busyResponse(w, article.ID, err)
		return
	}
	if err != nil {
		slog.Error("API: research run failed to start", "id", article.ID, "error", err)
		jsonError(w, "Failed to run research", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]any{"id": article.ID, "result": res})
}

// busyResponse reports an article RunNow could not claim. The scheduler loop
// may have claimed it first (202, running), or another run of the same topic
// holds the lock and it stays queued (409, pending).
func (s *Server) busyResponse(w http.ResponseWriter, id string, busyErr error) {
	status := models.StatusPending
	if stored, err := s.db.GetArticle(id); err == nil {
		status = stored.Status
	}
	w.Header().Set("Location", "/api/v1/articles/"+id)
	if status == models.StatusPending {
		jsonStatus(w, http.StatusConflict, map[string]string{
			"id":     id,
			"status": status,
			"error":  busyErr.Error(),
		})
		return
	}
	jsonStatus(w, http.StatusAccepted, map[string]string{"id": id, "status": status})
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, 100)
		}
	}

	articles, err := s.db.ListArticles(limit)
	if err != nil {
		slog.Error("API: failed to list articles", "error", err)
		jsonError(w, "Failed to list articles", http.StatusInternalServerError)
		return
	}
	if articles == nil {
		articles = []models.Article{}
	}
	jsonResponse(w, map[string]any{"articles": articles})
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	article, ok := s.lookupArticle(w, r)
	if !ok {
		return
	}
	jsonResponse(w, article)
}

func (s *Server) handleArticleMarkdown(w http.ResponseWriter, r *http.Request) {
	article, ok := s.lookupArticle(w, r)
	if !ok {
		return
	}
	if article.Status != models.StatusComplete {
		jsonError(w, "Article is "+article.Status, http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(article.FinalArticle))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		slog.Error("API: failed to load stats", "error", err)
		jsonError(w, "Failed to load stats", http.StatusInternalServerError)
		return
	}
	if size, err := s.db.DatabaseSizeBytes(); err == nil {
		stats.DatabaseBytes = size
		stats.DatabaseSize = humanize.Bytes(uint64(size))
	}
	jsonResponse(w, stats)
}

func (s *Server) lookupArticle(w http.ResponseWriter, r *http.Request) (models.Article, bool) {
	article, err := s.db.GetArticle(r.PathValue("id"))
	if errors.Is(err, database.ErrNotFound) {
		jsonError(w, "Article not found", http.StatusNotFound)
		return article, false
	}
	if err != nil {
		slog.Error("API: failed to load article", "id", r.PathValue("id"), "error", err)
		jsonError(w, "Failed to load article", http.StatusInternalServerError)
		return article, false
	}
	return article, true
}

func jsonResponse(w http.ResponseWriter, data any) {
	jsonStatus(w, http.StatusOK, data)
}

func jsonStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	jsonStatus(w, status, map[string]string{"error": message})
}
