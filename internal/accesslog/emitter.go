package accesslog

import (
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// Emitter serializes records and hands them to a single writer goroutine,
// keeping file I/O off the request path.
type Emitter struct {
	writer LogWriter
	logger *pterm.Logger
	queue  chan *Record
	now    func() time.Time
	wg     sync.WaitGroup

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool

	// Statistics
	statsMu sync.Mutex
	written int64
	failed  int64
}

// EmitterStats counts write outcomes
type EmitterStats struct {
	Written int64
	Failed  int64
}

// NewEmitter starts the writer goroutine
func NewEmitter(writer LogWriter, queueSize int, logger *pterm.Logger) *Emitter {
	if queueSize <= 0 {
		queueSize = 1024
	}

	e := &Emitter{
		writer: writer,
		logger: logger,
		queue:  make(chan *Record, queueSize),
		now:    time.Now,
	}

	e.wg.Add(1)
	go e.writeLoop()
	return e
}

// Emit queues rec. It only waits when the queue is full, so no record is dropped.
// After Close the record is written synchronously.
func (e *Emitter) Emit(rec *Record) {
	e.mu.RLock()
	if !e.closed {
		e.queue <- rec
		e.mu.RUnlock()
		return
	}
	e.mu.RUnlock()

	e.write(rec)
}

func (e *Emitter) writeLoop() {
	defer e.wg.Done()
	for rec := range e.queue {
		e.write(rec)
	}
}

func (e *Emitter) write(rec *Record) {
	line := rec.Line(e.now())

	if err := e.writer.Append(line); err != nil {
		e.statsMu.Lock()
		e.failed++
		e.statsMu.Unlock()

		e.logger.WithCaller().Error("Failed to write access log record",
			e.logger.Args("client_ip", rec.ClientIP, "url", rec.URL, "error", err))
		return
	}

	e.statsMu.Lock()
	e.written++
	e.statsMu.Unlock()

	e.logger.Trace("Access log record written",
		e.logger.Args("client_ip", rec.ClientIP, "method", rec.Method, "url", rec.URL))
}

// Close drains queued records and stops the writer goroutine
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.queue)
		e.mu.Unlock()

		e.wg.Wait()

		stats := e.Stats()
		e.logger.Debug("Access log emitter stopped",
			e.logger.Args("written", stats.Written, "failed", stats.Failed))
	})
}

// Stats returns write counters
func (e *Emitter) Stats() EmitterStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return EmitterStats{Written: e.written, Failed: e.failed}
}
