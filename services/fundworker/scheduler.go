package fundworker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"portfolium/observability"
)

// Task is one periodic unit of worker logic.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// TaskStatus is the last known state of a periodic task.
type TaskStatus struct {
	Name         string    `json:"name"`
	Interval     string    `json:"interval"`
	Runs         uint64    `json:"runs"`
	Failures     uint64    `json:"failures"`
	LastRunID    string    `json:"lastRunId,omitempty"`
	LastStarted  time.Time `json:"lastStarted,omitempty"`
	LastDuration string    `json:"lastDuration,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
}

type job struct {
	task     Task
	interval time.Duration
}

// Scheduler runs periodic tasks concurrently. A failing tick is logged and
// the task runs again on its next tick.
type Scheduler struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.WorkerMetrics

	mu     sync.Mutex
	jobs   []job
	status map[string]*TaskStatus
}

// NewScheduler constructs an empty scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger:  logger,
		tracer:  otel.Tracer("portfolium/fundworker"),
		metrics: observability.Worker(),
		status:  make(map[string]*TaskStatus),
	}
}

// Every registers task to run every interval.
func (s *Scheduler) Every(interval time.Duration, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job{task: task, interval: interval})
	s.status[task.Name()] = &TaskStatus{Name: task.Name(), Interval: interval.String()}
}

// Run blocks until ctx is cancelled. Every task ticks once immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	jobs := append([]job(nil), s.jobs...)
	s.mu.Unlock()
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		_ = s.Tick(ctx, j.task)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs task once, tracing and recording the outcome.
func (s *Scheduler) Tick(ctx context.Context, task Task) error {
	runID := uuid.NewString()
	name := task.Name()
	ctx, span := s.tracer.Start(ctx, "fundworker."+name, trace.WithAttributes(
		attribute.String("task", name),
		attribute.String("run_id", runID),
	))
	defer span.End()
	logger := s.logger.With(slog.String("task", name), slog.String("run_id", runID))
	start := time.Now()
	err := task.Run(ctx)
	duration := time.Since(start)
	s.metrics.ObserveTick(name, duration, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("task failed", slog.Duration("duration", duration), slog.String("error", err.Error()))
	} else {
		logger.Debug("task finished", slog.Duration("duration", duration))
	}
	s.record(name, runID, start, duration, err)
	return err
}

func (s *Scheduler) record(name, runID string, start time.Time, duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[name]
	if !ok {
		st = &TaskStatus{Name: name}
		s.status[name] = st
	}
	st.Runs++
	st.LastRunID = runID
	st.LastStarted = start.UTC()
	st.LastDuration = duration.String()
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
}

// Status returns a snapshot of every registered task, sorted by name.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
