package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/neexbeast/campwatch/internal/availability"
	"github.com/neexbeast/campwatch/internal/difficulty"
	"github.com/neexbeast/campwatch/internal/notify"
	"github.com/neexbeast/campwatch/internal/watcher"
)

const (
	defaultMaxConcurrentTicks = 32
	defaultTickTimeout        = 60 * time.Second
)

// Store is the read side of the watcher store. Get returns nil, nil when the
// watcher does not exist.
type Store interface {
	Get(ctx context.Context, id int64) (*watcher.Watcher, error)
	List(ctx context.Context) ([]*watcher.Watcher, error)
}

// Notifier delivers a notification and never fails.
type Notifier interface {
	Notify(ctx context.Context, address, subject, body string)
}

// Recorder receives tick measurements.
type Recorder interface {
	IncTicks(outcome string)
	ObserveTickDuration(d time.Duration)
	SetScheduledWatchers(n int)
}

type nopRecorder struct{}

func (nopRecorder) IncTicks(string)                   {}
func (nopRecorder) ObserveTickDuration(time.Duration) {}
func (nopRecorder) SetScheduledWatchers(int)          {}

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	Location           *time.Location
	MaxConcurrentTicks int64
	TickTimeout        time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithNow overrides the clock used to pick the query month.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

type entry struct {
	id       cron.EntryID
	clock    watcher.Clock
	schedule cron.Schedule
	gen      uint64
}

// Engine owns the daily trigger of every active watcher and runs ticks.
type Engine struct {
	cron     *cron.Cron
	store    Store
	fetcher  availability.Fetcher
	notifier Notifier
	metrics  Recorder
	log      *slog.Logger
	loc      *time.Location
	now      func() time.Time

	sem         *semaphore.Weighted
	tickTimeout time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup

	mu      sync.Mutex
	entries map[int64]entry
	locks   map[int64]*idLock
	gen     uint64
}

// New constructs an Engine. Triggers do not fire until Start is called.
func New(store Store, fetcher availability.Fetcher, notifier Notifier, cfg Config, opts ...Option) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxConcurrentTicks <= 0 {
		cfg.MaxConcurrentTicks = defaultMaxConcurrentTicks
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = defaultTickTimeout
	}

	e := &Engine{
		store:       store,
		fetcher:     fetcher,
		notifier:    notifier,
		metrics:     nopRecorder{},
		log:         slog.Default(),
		loc:         cfg.Location,
		now:         time.Now,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrentTicks),
		tickTimeout: cfg.TickTimeout,
		entries:     make(map[int64]entry),
		locks:       make(map[int64]*idLock),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.baseCtx, e.cancel = context.WithCancel(context.Background())
	logger := cronLogger{log: e.log}
	e.cron = cron.New(
		cron.WithLocation(e.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)

	return e
}

// ScheduleWatcher parses an "HH:MM" check time and schedules id.
func (e *Engine) ScheduleWatcher(id int64, checkTime string) error {
	c, err := watcher.ParseClock(checkTime)
	if err != nil {
		return fmt.Errorf("scheduling watcher %d: %w", id, err)
	}
	return e.Schedule(id, c)
}

// Schedule registers a daily trigger for id at c, replacing any existing one.
// Scheduling the same id at the same time again is a no-op.
func (e *Engine) Schedule(id int64, c watcher.Clock) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("scheduling watcher %d: %w", id, err)
	}

	sched, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", c.Minute, c.Hour))
	if err != nil {
		return fmt.Errorf("parsing schedule for watcher %d: %w", id, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cur, ok := e.entries[id]; ok {
		if cur.clock == c {
			return nil
		}
		e.cron.Remove(cur.id)
		delete(e.entries, id)
	}

	e.gen++
	gen := e.gen
	entryID := e.cron.Schedule(sched, cron.FuncJob(func() { e.fire(id, gen) }))
	e.entries[id] = entry{id: entryID, clock: c, schedule: sched, gen: gen}
	e.metrics.SetScheduledWatchers(len(e.entries))

	e.log.Info("watcher scheduled", "watcher_id", id, "check_time", c.String())
	return nil
}

// Cancel removes the trigger for id. Cancelling an unscheduled id is a no-op.
func (e *Engine) Cancel(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.entries[id]
	if !ok {
		return
	}
	e.cron.Remove(cur.id)
	delete(e.entries, id)
	e.metrics.SetScheduledWatchers(len(e.entries))

	e.log.Info("watcher cancelled", "watcher_id", id)
}

// Next returns the next fire time for id in the engine's location.
func (e *Engine) Next(id int64) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return cur.schedule.Next(e.now().In(e.loc)), true
}

// Len returns the number of scheduled watchers.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// Recover schedules every stored watcher.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	ws, err := e.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing watchers for recovery: %w", err)
	}
	return e.RecoverSchedules(ws), nil
}

// RecoverSchedules schedules each watcher and returns how many succeeded.
// A watcher with an invalid check time is logged and skipped.
func (e *Engine) RecoverSchedules(ws []*watcher.Watcher) int {
	n := 0
	for _, w := range ws {
		if w == nil {
			continue
		}
		if err := e.Schedule(w.ID, w.CheckTime); err != nil {
			e.log.Error("skipping watcher during recovery", "watcher_id", w.ID, "err", err)
			continue
		}
		n++
	}
	e.log.Info("schedules recovered", "scheduled", n, "stored", len(ws))
	return n
}

// Start begins firing triggers in the background.
func (e *Engine) Start() {
	e.cron.Start()
}

// Stop halts the trigger loop and waits for running ticks. When ctx expires
// first, in-flight ticks are cancelled and ctx's error is returned.
func (e *Engine) Stop(ctx context.Context) error {
	cronDone := e.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		e.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		return fmt.Errorf("waiting for running ticks: %w", ctx.Err())
	}
}

// RunOnce runs one tick for id synchronously, waiting for any tick already
// running for the same id.
func (e *Engine) RunOnce(ctx context.Context, id int64) TickResult {
	e.running.Add(1)
	defer e.running.Done()

	lock := e.acquire(id)
	defer e.release(id, lock)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.tickTimeout)
	defer cancel()

	return e.tick(ctx, id)
}

// fire is the cron job for id. Triggers replaced or cancelled after dispatch
// are ignored, and a firing that finds a tick running for id is skipped.
func (e *Engine) fire(id int64, gen uint64) {
	if !e.current(id, gen) {
		return
	}

	e.running.Add(1)
	defer e.running.Done()

	lock := e.acquire(id)
	defer e.release(id, lock)
	if !lock.mu.TryLock() {
		e.log.Warn("tick already running, skipping", "watcher_id", id)
		e.metrics.IncTicks(string(OutcomeSkipped))
		return
	}
	defer lock.mu.Unlock()

	ctx, cancel := context.WithTimeout(e.baseCtx, e.tickTimeout)
	defer cancel()

	e.tick(ctx, id)
}

func (e *Engine) current(id int64, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.entries[id]
	return ok && cur.gen == gen
}

// idLock serialises ticks for one watcher. refs counts holders and waiters;
// the map entry is dropped when it falls to zero.
type idLock struct {
	mu   sync.Mutex
	refs int
}

func (e *Engine) acquire(id int64) *idLock {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &idLock{}
		e.locks[id] = l
	}
	l.refs++
	return l
}

func (e *Engine) release(id int64, l *idLock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(e.locks, id)
	}
}

// tick looks up the watcher, fetches this month's availability, matches and
// notifies. Every failure ends the tick with an outcome instead of an error.
func (e *Engine) tick(ctx context.Context, id int64) (res TickResult) {
	start := time.Now()
	res.WatcherID = id

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("tick panicked", "watcher_id", id, "recover", r)
			res.Outcome = OutcomePanicked
			res.Err = fmt.Errorf("tick for watcher %d panicked: %v", id, r)
		}
		e.metrics.IncTicks(string(res.Outcome))
		e.metrics.ObserveTickDuration(time.Since(start))
	}()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.log.Warn("no tick slot available", "watcher_id", id, "err", err)
		res.Outcome = OutcomeAborted
		res.Err = err
		return res
	}
	defer e.sem.Release(1)

	w, err := e.store.Get(ctx, id)
	if err != nil {
		e.log.Error("loading watcher failed", "watcher_id", id, "err", err)
		res.Outcome = OutcomeStoreFailed
		res.Err = err
		return res
	}
	if w == nil {
		e.log.Debug("watcher not found, skipping", "watcher_id", id)
		res.Outcome = OutcomeNotFound
		return res
	}

	month := availability.MonthStart(e.now().In(e.loc))
	p, err := e.fetcher.Fetch(ctx, w.CampgroundID, month)
	if err != nil {
		e.log.Warn("fetching availability failed", "watcher_id", id, "campground_id", w.CampgroundID, "err", err)
		res.Outcome = OutcomeFetchFailed
		res.Err = err
		return res
	}

	res.Matches = watcher.Match(*w, p)
	res.Score = difficulty.Score(p)

	if len(res.Matches) == 0 {
		e.log.Info("no availability", "watcher_id", id, "campground_id", w.CampgroundID)
		res.Outcome = OutcomeNoMatches
		return res
	}

	e.log.Info("availability found", "watcher_id", id, "campground_id", w.CampgroundID, "matches", len(res.Matches))
	e.notifier.Notify(ctx, w.Email, notify.Subject, notify.BuildBody(w.CampgroundID, res.Matches, res.Score))
	res.Outcome = OutcomeNotified
	return res
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}

var _ cron.Logger = cronLogger{}
