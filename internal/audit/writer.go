package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/teamboard/pkg/metrics"
)

type WriterConfig struct {
	MaxWorkers   int
	QueueSize    int
	WriteTimeout time.Duration
}

type Worker struct {
	ID     int
	Logger *slog.Logger
}

func NewWorker(id int, logger *slog.Logger) *Worker {
	return &Worker{ID: id, Logger: logger}
}

func (w *Worker) Start(queue <-chan Entry, wg *sync.WaitGroup, processFunc func(Entry)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for entry := range queue {
			w.Logger.Debug("audit worker processing entry", "worker_id", w.ID, "action", entry.Action)
			processFunc(entry)
		}
		w.Logger.Debug("audit worker shutting down", "worker_id", w.ID)
	}()
}

// AsyncWriter appends best-effort entries (granted-check telemetry) off the request
// path. Entries are dropped, never retried, when the queue is full or the sink fails.
type AsyncWriter struct {
	sink         Sink
	logger       *slog.Logger
	metrics      *metrics.Metrics
	writeTimeout time.Duration

	queue      chan Entry
	maxWorkers int
	wg         sync.WaitGroup
	once       sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewAsyncWriter(sink Sink, config WriterConfig, logger *slog.Logger, m *metrics.Metrics) *AsyncWriter {
	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	writeTimeout := config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	w := &AsyncWriter{
		sink:         sink,
		logger:       logger,
		metrics:      m,
		writeTimeout: writeTimeout,
		queue:        make(chan Entry, queueSize),
		maxWorkers:   maxWorkers,
	}

	w.startWorkerPool()

	return w
}

func (w *AsyncWriter) startWorkerPool() {
	w.once.Do(func() {
		for i := 0; i < w.maxWorkers; i++ {
			worker := NewWorker(i, w.logger)
			worker.Start(w.queue, &w.wg, w.write)
		}

		w.logger.Info("audit writer pool started",
			"max_workers", w.maxWorkers,
			"queue_size", cap(w.queue))
	})
}

// Submit enqueues without blocking and reports whether the entry was accepted.
func (w *AsyncWriter) Submit(e Entry) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.drop(e, "shutdown")
		return false
	}

	select {
	case w.queue <- e:
		return true
	default:
		w.drop(e, "queue_full")
		return false
	}
}

// Shutdown stops intake and waits for queued entries to be written.
func (w *AsyncWriter) Shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.logger.Info("draining audit writer", "pending", len(w.queue))
	w.wg.Wait()
	w.logger.Info("audit writer shutdown complete")
}

func (w *AsyncWriter) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	_, err := w.sink.Append(ctx, &e)
	w.metrics.RecordAuditAppend(string(e.Action), err)
	if err != nil {
		w.drop(e, "sink_error")
		w.logger.Warn("dropping best-effort audit entry",
			"action", e.Action,
			"user_id", e.UserID,
			"permission", e.PermissionSlug,
			"error", err)
	}
}

func (w *AsyncWriter) drop(e Entry, reason string) {
	w.metrics.RecordAuditDropped(reason)
	if reason != "sink_error" {
		w.logger.Warn("audit entry dropped", "reason", reason, "action", e.Action, "permission", e.PermissionSlug)
	}
}
