// Package scheduler orchestrates the recurring pipeline jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"briefly/internal/fetcher"
	"briefly/internal/filter"
	"briefly/internal/model"
	"briefly/internal/notify"
	"briefly/internal/storage"
	"briefly/internal/summary"
)

// Job identifiers.
const (
	JobFetch     = "fetch_rss"
	JobSummarize = "ai_summary"
	JobPush      = "webhook_push"
)

const summarizeBatchSize = 20

// The summarize job may overlap itself (I/O-bound, disjoint item sets); the
// fetch job must not, since fetch+write+filter mutates shared counters.
const (
	fetchMaxInstances     = 1
	summarizeMaxInstances = 2
	pushMaxInstances      = 1
)

// Result statuses reported by every triggerable operation.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Result is the structured outcome of one job execution. Jobs never surface
// bare errors to callers.
type Result struct {
	Status  string
	Message string

	NewArticles   int
	FilteredCount int
	FailedSources int
	Total         int
	Succeeded     int
}

// PipelineResult aggregates a full fetch-then-summarize run.
type PipelineResult struct {
	Fetch   Result
	Summary Result
}

// JobStatus describes one scheduled job.
type JobStatus struct {
	ID      string
	Name    string
	NextRun time.Time
	Trigger string
}

// Status describes the scheduler and its jobs.
type Status struct {
	Running bool
	Jobs    []JobStatus
}

// Clock abstracts time for trigger computation.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type job struct {
	id           string
	name         string
	trigger      Trigger
	maxInstances int
	running      int // guarded by Scheduler.mu
	next         time.Time
	run          func(ctx context.Context) Result
}

// Scheduler drives the fetch, summarize, and push jobs on independent
// triggers, guaranteeing per-job instance limits.
type Scheduler struct {
	store      storage.Storage
	fetcher    *fetcher.Fetcher
	engine     *filter.Engine
	aiEngine   *filter.AIEngine
	summarizer *summary.Summarizer
	notifier   *notify.Notifier
	log        *slog.Logger
	clock      Clock

	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	running bool
	stopCh  chan struct{}
	wake    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Scheduler with the fetch and summarize jobs installed. The
// push job is installed from the stored webhook configuration on Start and
// whenever ReloadPushJob is called.
func New(store storage.Storage, f *fetcher.Fetcher, engine *filter.Engine,
	aiEngine *filter.AIEngine, summarizer *summary.Summarizer, notifier *notify.Notifier,
	fetchInterval time.Duration, log *slog.Logger) *Scheduler {

	s := &Scheduler{
		store:      store,
		fetcher:    f,
		engine:     engine,
		aiEngine:   aiEngine,
		summarizer: summarizer,
		notifier:   notifier,
		log:        log,
		clock:      systemClock{},
		jobs:       make(map[string]*job),
		wake:       make(chan struct{}, 1),
	}

	s.addJob(&job{
		id:           JobFetch,
		name:         "RSS Feed Fetcher",
		trigger:      IntervalTrigger{Every: fetchInterval},
		maxInstances: fetchMaxInstances,
		run:          s.fetchTask,
	})
	s.addJob(&job{
		id:           JobSummarize,
		name:         "AI Article Summarizer",
		trigger:      MinutesTrigger{Minutes: []int{5, 35}},
		maxInstances: summarizeMaxInstances,
		run:          s.summarizeTask,
	})

	return s
}

// SetClock overrides the clock used for trigger computation (useful for
// testing).
func (s *Scheduler) SetClock(c Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = c
}

func (s *Scheduler) addJob(j *job) {
	s.jobs[j.id] = j
	s.order = append(s.order, j.id)
}

// Start installs the push job from the current webhook configuration and
// launches the scheduling loop. Starting an already-running scheduler is a
// warned no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("scheduler already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	now := s.clock.Now()
	for _, id := range s.order {
		j := s.jobs[id]
		j.next = j.trigger.Next(now)
	}
	s.mu.Unlock()

	s.ReloadPushJob(ctx)

	s.wg.Add(1)
	go s.loop(ctx)

	s.log.Info("scheduler started")
}

// Stop halts the scheduling loop and waits for in-flight job executions.
// Stopping an already-stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return
		}
		stopCh := s.stopCh
		next := time.Time{}
		for _, j := range s.jobs {
			if next.IsZero() || j.next.Before(next) {
				next = j.next
			}
		}
		s.mu.Unlock()

		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
			s.fireDue(ctx)
		}
	}
}

// fireDue launches every job whose fire time has arrived. A firing that
// would exceed the job's instance limit is skipped outright, never queued.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		j := s.jobs[id]
		if j.next.After(now) {
			continue
		}
		j.next = j.trigger.Next(now)

		if j.running >= j.maxInstances {
			s.log.Warn("job still running, skipping firing", "job", j.id)
			continue
		}
		j.running++
		s.wg.Add(1)
		go func(j *job) {
			defer s.wg.Done()
			result := s.safeRun(ctx, j)
			if result.Status == StatusError {
				s.log.Error("job finished with error", "job", j.id, "message", result.Message)
			}
			s.mu.Lock()
			j.running--
			s.mu.Unlock()
		}(j)
	}
}

// safeRun executes a job body, converting a panic into an error result so
// the scheduler survives for the next firing.
func (s *Scheduler) safeRun(ctx context.Context, j *job) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", "job", j.id, "panic", r)
			result = Result{Status: StatusError, Message: fmt.Sprint(r)}
		}
	}()
	return j.run(ctx)
}

// RunNow executes a job's body immediately, independent of its schedule. The
// job's next fire time is not affected.
func (s *Scheduler) RunNow(ctx context.Context, jobID string) (Result, error) {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("unknown job %q", jobID)
	}
	return s.safeRun(ctx, j), nil
}

// RunAIFilter runs one AI filter pass on demand. Preconditions that make the
// pass impossible come back as skipped results rather than errors.
func (s *Scheduler) RunAIFilter(ctx context.Context) Result {
	marked, err := s.aiEngine.Apply(ctx)
	switch {
	case errors.Is(err, filter.ErrAIFilterDisabled):
		return Result{Status: StatusSkipped, Message: "ai filter disabled"}
	case errors.Is(err, filter.ErrMissingFilterPrompt):
		return Result{Status: StatusSkipped, Message: "filter prompt not set"}
	case errors.Is(err, summary.ErrNotConfigured):
		return Result{Status: StatusSkipped, Message: "ai api key not configured"}
	case err != nil:
		return Result{Status: StatusError, Message: fmt.Sprintf("ai filter: %v", err)}
	}
	return Result{Status: StatusSuccess, FilteredCount: marked}
}

// RunFullPipeline executes the fetch task and then the summarize task.
func (s *Scheduler) RunFullPipeline(ctx context.Context) PipelineResult {
	return PipelineResult{
		Fetch:   s.fetchTask(ctx),
		Summary: s.summarizeTask(ctx),
	}
}

// Status reports each installed job with its computed next fire time.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running}
	for _, id := range s.order {
		j := s.jobs[id]
		st.Jobs = append(st.Jobs, JobStatus{
			ID:      j.id,
			Name:    j.name,
			NextRun: j.next,
			Trigger: j.trigger.Description(),
		})
	}
	return st
}

// ReloadPushJob rebuilds the push job from the stored webhook configuration:
// the old trigger is removed and a fresh one installed. A disabled schedule
// leaves no push job installed.
func (s *Scheduler) ReloadPushJob(ctx context.Context) {
	cfg, err := s.store.GetWebhookConfig(ctx)
	if err != nil {
		s.log.Error("load webhook config", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[JobPush]; ok {
		delete(s.jobs, JobPush)
		for i, id := range s.order {
			if id == JobPush {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}

	if !cfg.ScheduleEnabled {
		s.log.Info("scheduled push disabled")
		s.notifyLoop()
		return
	}

	trigger, err := BuildPushTrigger(cfg)
	if err != nil {
		s.log.Error("build push trigger", "error", err)
		return
	}

	j := &job{
		id:           JobPush,
		name:         "Webhook Push",
		trigger:      trigger,
		maxInstances: pushMaxInstances,
		next:         trigger.Next(s.clock.Now()),
		run:          s.pushTask,
	}
	s.addJob(j)
	s.log.Info("push job installed", "trigger", trigger.Description())
	s.notifyLoop()
}

func (s *Scheduler) notifyLoop() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// fetchTask fetches every enabled source concurrently, persists new
// articles, updates per-source failure counters, and runs a filter pass over
// the result.
func (s *Scheduler) fetchTask(ctx context.Context) Result {
	sources, err := s.store.ListEnabledSources(ctx)
	if err != nil {
		return Result{Status: StatusError, Message: fmt.Sprintf("list sources: %v", err)}
	}
	if len(sources) == 0 {
		return Result{Status: StatusSkipped, Message: "no enabled sources"}
	}

	results := s.fetcher.FetchAll(ctx, sources)

	newTotal := 0
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			s.log.Error("fetch source", "source_id", r.Source.ID, "name", r.Source.Name, "error", r.Err)
			if err := s.store.RecordFetchFailure(ctx, r.Source.ID); err != nil {
				s.log.Error("record fetch failure", "source_id", r.Source.ID, "error", err)
			}
			failed++
			continue
		}

		saved := 0
		if len(r.Entries) > 0 {
			saved, err = s.store.SaveArticles(ctx, r.Source.ID, r.Entries)
			if err != nil {
				s.log.Error("save articles", "source_id", r.Source.ID, "error", err)
				failed++
				continue
			}
		}
		if err := s.store.RecordFetchSuccess(ctx, r.Source.ID); err != nil {
			s.log.Error("record fetch success", "source_id", r.Source.ID, "error", err)
		}
		newTotal += saved
	}

	filteredIDs, err := s.engine.Apply(ctx, nil)
	if err != nil {
		s.log.Error("filter pass", "error", err)
	}

	// The AI filter runs after the keyword pass when set to auto-apply. A
	// misconfigured or failing model must not fail the fetch run.
	if marked, ran, err := s.aiEngine.AutoApply(ctx); err != nil {
		s.log.Error("ai filter pass", "error", err)
	} else if ran {
		s.log.Info("ai filter auto-applied", "marked", marked)
	}

	s.log.Info("fetch task complete",
		"sources", len(sources), "failed", failed, "new_articles", newTotal, "filtered", len(filteredIDs))

	return Result{
		Status:        StatusSuccess,
		NewArticles:   newTotal,
		FilteredCount: len(filteredIDs),
		FailedSources: failed,
	}
}

// summarizeTask summarizes a bounded batch of unfiltered, unsummarized
// articles with non-empty content.
func (s *Scheduler) summarizeTask(ctx context.Context) Result {
	articles, err := s.store.ListSummarizable(ctx, summarizeBatchSize)
	if err != nil {
		return Result{Status: StatusError, Message: fmt.Sprintf("list articles: %v", err)}
	}
	if len(articles) == 0 {
		return Result{Status: StatusSuccess, Message: "no articles pending summarization"}
	}

	n, err := s.summarizer.SummarizeBatch(ctx, articles, summary.DefaultConcurrency)
	if err != nil {
		return Result{Status: StatusError, Message: fmt.Sprintf("summarize batch: %v", err)}
	}

	return Result{Status: StatusSuccess, Total: len(articles), Succeeded: n}
}

// pushTask delivers the favorite and filtered article sets per the two
// independent push toggles.
func (s *Scheduler) pushTask(ctx context.Context) Result {
	cfg, err := s.store.GetWebhookConfig(ctx)
	if err != nil {
		return Result{Status: StatusError, Message: fmt.Sprintf("load webhook config: %v", err)}
	}
	if !cfg.ScheduleEnabled {
		return Result{Status: StatusSkipped, Message: "scheduled push disabled"}
	}
	if !cfg.Enabled || cfg.URL == "" {
		return Result{Status: StatusSkipped, Message: "webhook not configured"}
	}

	pushed := 0
	if cfg.PushFavorites {
		pushed += s.pushSet(ctx, cfg, "Briefly 收藏推送", s.store.ListFavorites)
	}
	if cfg.PushFiltered {
		pushed += s.pushSet(ctx, cfg, "Briefly 过滤推送", s.store.ListFiltered)
	}

	if pushed == 0 {
		return Result{Status: StatusSuccess, Message: "no articles to push"}
	}
	return Result{Status: StatusSuccess, Succeeded: pushed}
}

func (s *Scheduler) pushSet(ctx context.Context, cfg *model.WebhookConfig, title string,
	list func(context.Context) ([]model.Article, error)) int {

	articles, err := list(ctx)
	if err != nil {
		s.log.Error("list articles for push", "error", err)
		return 0
	}
	if len(articles) == 0 {
		return 0
	}
	if err := s.notifier.Push(ctx, cfg, title, notify.Refs(articles)); err != nil {
		s.log.Error("webhook push", "error", err)
		return 0
	}
	return len(articles)
}
