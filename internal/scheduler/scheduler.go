package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/thinkscotty/autoresearch/internal/models"
)

// Store is the slice of the database the scheduler needs.
type Store interface {
	ClaimPending(limit int) ([]models.Article, error)
	ClaimArticle(id string) (models.Article, bool, error)
	Requeue(id string) error
	SaveResult(id string, res models.Result) error
}

// Runner executes one research run.
type Runner interface {
	Run(ctx context.Context, topic, customTitle string) models.Result
}

// ErrBusy is returned by RunNow when the article or its topic is already
// being researched.
var ErrBusy = errors.New("already being researched")

type Scheduler struct {
	store         Store
	runner        Runner
	interval      time.Duration
	maxConcurrent int
	trigger       chan struct{}
	locks         sync.Map // per-topic locks: normalized topic -> *sync.Mutex
}

func New(store Store, runner Runner, interval time.Duration, maxConcurrent int) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		store:         store,
		runner:        runner,
		interval:      interval,
		maxConcurrent: maxConcurrent,
		trigger:       make(chan struct{}, 1),
	}
}

// topicKey normalizes a topic for per-topic locking.
func topicKey(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), " "))
}

// lockTopic acquires a per-topic mutex, creating it if needed.
// Returns the mutex (caller must Unlock) and true if the lock was acquired.
// Returns nil and false if the topic is already locked (non-blocking).
func (s *Scheduler) lockTopic(key string) (*sync.Mutex, bool) {
	val, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := val.(*sync.Mutex)
	if mu.TryLock() {
		return mu, true
	}
	return nil, false
}

// Trigger asks the loop to check the queue now instead of at the next tick.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run starts the scheduler loop. It checks for pending articles every
// interval and whenever Trigger is called.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Scheduler started", "interval", s.interval, "max_concurrent", s.maxConcurrent)

	// Run once immediately at startup
	s.checkAndRun(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.checkAndRun(ctx)
		case <-s.trigger:
			s.checkAndRun(ctx)
		}
	}
}

func (s *Scheduler) checkAndRun(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	articles, err := s.store.ClaimPending(s.maxConcurrent)
	if err != nil {
		slog.Error("Failed to claim pending articles", "error", err)
		return
	}
	if len(articles) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, article := range articles {
		wg.Add(1)
		go func(a models.Article) {
			defer wg.Done()
			mu, ok := s.lockTopic(topicKey(a.Topic))
			if !ok {
				slog.Debug("Topic already being researched, requeueing", "topic", a.Topic, "id", a.ID)
				s.requeue(a.ID)
				return
			}
			defer mu.Unlock()
			s.safeRun(ctx, a)
		}(article)
	}
	wg.Wait()
}

// RunNow claims and runs one pending article synchronously and returns the
// stored result.
func (s *Scheduler) RunNow(ctx context.Context, id string) (models.Result, error) {
	a, ok, err := s.store.ClaimArticle(id)
	if err != nil {
		return models.Result{}, err
	}
	if !ok {
		return models.Result{}, ErrBusy
	}

	mu, ok := s.lockTopic(topicKey(a.Topic))
	if !ok {
		s.requeue(a.ID)
		return models.Result{}, fmt.Errorf("topic %q: %w", a.Topic, ErrBusy)
	}
	defer mu.Unlock()

	return s.safeRun(ctx, a), nil
}

func (s *Scheduler) safeRun(ctx context.Context, a models.Article) (res models.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in research run", "id", a.ID, "topic", a.Topic, "panic", r, "stack", string(debug.Stack()))
			res = models.Result{Success: false, Topic: a.Topic, Error: fmt.Sprintf("panic: %v", r)}
			s.save(a, res)
		}
	}()

	slog.Info("Researching article", "id", a.ID, "topic", a.Topic)
	res = s.runner.Run(ctx, a.Topic, a.CustomTitle)

	if !res.Success && ctx.Err() != nil {
		slog.Info("Run interrupted by shutdown, requeueing", "id", a.ID, "topic", a.Topic)
		s.requeue(a.ID)
		return res
	}
	s.save(a, res)
	return res
}

func (s *Scheduler) save(a models.Article, res models.Result) {
	if err := s.store.SaveResult(a.ID, res); err != nil {
		slog.Error("Failed to save research result", "id", a.ID, "error", err)
		return
	}
	if res.Success {
		slog.Info("Article complete", "id", a.ID, "topic", a.Topic, "sources", res.SourcesUsed, "facts", res.ResearchFacts)
	} else {
		slog.Warn("Article failed", "id", a.ID, "topic", a.Topic, "error", res.Error)
	}
}

func (s *Scheduler) requeue(id string) {
	if err := s.store.Requeue(id); err != nil {
		slog.Error("Failed to requeue article", "id", id, "error", err)
	}
}
