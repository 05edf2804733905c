package logger

import (
	"sync"
	"time"
)

// RowProgress logs throughput for long row-oriented operations such as bulk
// inserts. Progress lines are emitted at most once per log interval so large
// imports do not flood the output.
type RowProgress struct {
	logger      Logger
	operation   string
	total       int
	current     int
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// NewRowProgress creates a tracker for an operation over total rows.
func NewRowProgress(log Logger, operation string, total int) *RowProgress {
	if log == nil {
		log = GetGlobalLogger()
	}

	now := time.Now()
	return &RowProgress{
		logger:      log.WithComponent("progress"),
		operation:   operation,
		total:       total,
		startTime:   now,
		lastLogTime: now,
		logInterval: 5 * time.Second,
	}
}

// Increment advances the row counter by one.
func (p *RowProgress) Increment() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current++
	now := time.Now()
	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logProgress(now)
		p.lastLogTime = now
	}
}

// Add advances the row counter by delta.
func (p *RowProgress) Add(delta int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current += delta
	now := time.Now()
	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logProgress(now)
		p.lastLogTime = now
	}
}

// Complete logs final row counts and elapsed time.
func (p *RowProgress) Complete() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	duration := time.Since(p.startTime)
	p.logger.WithFields(Fields{
		"operation":      p.operation,
		"rows_total":     p.total,
		"rows_processed": p.current,
		"duration":       duration.String(),
	}).Info("Operation completed")
}

func (p *RowProgress) logProgress(now time.Time) {
	elapsed := now.Sub(p.startTime)
	rate := 0.0
	if elapsed.Seconds() > 0 {
		rate = float64(p.current) / elapsed.Seconds()
	}

	fields := Fields{
		"operation":      p.operation,
		"rows_processed": p.current,
		"rows_per_sec":   rate,
	}
	if p.total > 0 {
		fields["rows_total"] = p.total
		fields["percent"] = float64(p.current) / float64(p.total) * 100
	}

	p.logger.WithFields(fields).Info("Operation in progress")
}
