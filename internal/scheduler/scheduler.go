package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/logging"
	"github.com/scenarr/scenarr/internal/metrics"
)

var (
	// ErrUnknownTask is returned for a task name that was never added.
	ErrUnknownTask = errors.New("unknown task")
	// ErrTaskRunning is returned when a task is asked to run while it already is.
	ErrTaskRunning = errors.New("task is already running")
)

// TaskFunc represents a scheduled task function
type TaskFunc func(ctx context.Context) error

// Observer is told when tasks start and finish.
type Observer interface {
	JobStarted(name, runID string)
	JobCompleted(name, runID string, took time.Duration)
	JobFailed(name, runID string, err error)
}

// Task represents a scheduled task
type Task struct {
	Name     string
	Interval time.Duration
	Func     TaskFunc
	LastRun  time.Time
	Running  bool
	Enabled  bool

	entry cron.EntryID
}

// Scheduler runs tasks on fixed intervals. A task never overlaps with
// itself; a trigger that fires while the previous run is still going is
// skipped.
type Scheduler struct {
	cron     *cron.Cron
	tasks    map[string]*Task
	mutex    sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	observer Observer
	logger   zerolog.Logger
}

// NewScheduler creates a new scheduler. observer may be nil.
func NewScheduler(observer Observer, logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := logging.NewCronLogger(logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		tasks:    make(map[string]*Task),
		ctx:      ctx,
		cancel:   cancel,
		timeout:  30 * time.Minute,
		observer: observer,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// AddTask adds a new scheduled task
func (s *Scheduler) AddTask(name string, interval time.Duration, fn TaskFunc) error {
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("task %s already exists", name)
	}

	task := &Task{
		Name:     name,
		Interval: interval,
		Func:     fn,
		Enabled:  true,
	}
	id, err := s.cron.AddFunc("@every "+interval.String(), func() {
		if err := s.runTask(task, false); err != nil && !errors.Is(err, ErrTaskRunning) {
			s.logger.Debug().Err(err).Str("task", name).Msg("scheduled run ended with error")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule task %s: %w", name, err)
	}
	task.entry = id
	s.tasks[name] = task
	return nil
}

// EnableTask enables a task
func (s *Scheduler) EnableTask(name string) error {
	return s.setEnabled(name, true)
}

// DisableTask disables a task. Manual runs are still allowed.
func (s *Scheduler) DisableTask(name string) error {
	return s.setEnabled(name, false)
}

func (s *Scheduler) setEnabled(name string, enabled bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	task, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	task.Enabled = enabled
	return nil
}

// RunNow runs a task immediately and waits for it to finish.
func (s *Scheduler) RunNow(name string) error {
	s.mutex.RLock()
	task, ok := s.tasks[name]
	s.mutex.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.runTask(task, true)
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("tasks", len(s.GetTasks())).Msg("scheduler started")
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runTask(task *Task, manual bool) error {
	s.mutex.Lock()
	if task.Running {
		s.mutex.Unlock()
		metrics.Default.JobRuns.WithLabelValues(task.Name, "skipped").Inc()
		return ErrTaskRunning
	}
	if !manual && !task.Enabled {
		s.mutex.Unlock()
		return nil
	}
	task.Running = true
	s.mutex.Unlock()

	defer func() {
		s.mutex.Lock()
		task.Running = false
		task.LastRun = time.Now()
		s.mutex.Unlock()
	}()

	runID := uuid.NewString()
	ctx, cancel := context.WithTimeout(WithRunID(s.ctx, runID), s.timeout)
	defer cancel()

	logger := s.logger.With().Str("task", task.Name).Str("run_id", runID).Logger()
	logger.Info().Bool("manual", manual).Msg("task started")
	if s.observer != nil {
		s.observer.JobStarted(task.Name, runID)
	}

	start := time.Now()
	err := task.Func(ctx)
	took := time.Since(start)
	metrics.Default.JobDuration.WithLabelValues(task.Name).Observe(took.Seconds())

	if err != nil {
		metrics.Default.JobRuns.WithLabelValues(task.Name, "failed").Inc()
		logger.Error().Err(err).Dur("took", took).Msg("task failed")
		if s.observer != nil {
			s.observer.JobFailed(task.Name, runID, err)
		}
		return err
	}

	metrics.Default.JobRuns.WithLabelValues(task.Name, "ok").Inc()
	logger.Info().Dur("took", took).Msg("task completed")
	if s.observer != nil {
		s.observer.JobCompleted(task.Name, runID, took)
	}
	return nil
}

// GetTasks returns information about all tasks, sorted by name.
func (s *Scheduler) GetTasks() []TaskInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tasks := make([]TaskInfo, 0, len(s.tasks))
	for _, task := range s.tasks {
		info := TaskInfo{
			Name:     task.Name,
			Interval: task.Interval,
			LastRun:  task.LastRun,
			Running:  task.Running,
			Enabled:  task.Enabled,
		}
		if entry := s.cron.Entry(task.entry); entry.Valid() {
			info.NextRun = entry.Next
		}
		tasks = append(tasks, info)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks
}

// TaskInfo holds information about a task
type TaskInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	LastRun  time.Time     `json:"lastRun"`
	NextRun  time.Time     `json:"nextRun"`
	Running  bool          `json:"running"`
	Enabled  bool          `json:"enabled"`
}

type runIDKey struct{}

// WithRunID tags ctx with a task run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the task run id carried by ctx, or a fresh one.
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
