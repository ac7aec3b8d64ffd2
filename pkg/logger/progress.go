package logger

import (
	"fmt"
	"sync"
	"time"

	"github.com/hako/durafmt"
)

// ProgressTracker logs how far a batch run is, with throughput and an
// estimate of the time left. Workers call Increment concurrently.
type ProgressTracker struct {
	log      Logger
	name     string
	total    int64
	done     int64
	failed   int64
	started  time.Time
	lastLog  time.Time
	interval time.Duration
	mu       sync.Mutex
}

// ProgressConfig configures a tracker. Interval defaults to 5s.
type ProgressConfig struct {
	Operation   string
	Total       int64
	LogInterval time.Duration
	Logger      Logger
}

// NewProgressTracker creates a tracker and logs the start of the run
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.LogInterval == 0 {
		config.LogInterval = 5 * time.Second
	}

	now := time.Now()
	p := &ProgressTracker{
		log:      OrGlobal(config.Logger, "progress").WithField("operation", config.Operation),
		name:     config.Operation,
		total:    config.Total,
		started:  now,
		lastLog:  now,
		interval: config.LogInterval,
	}
	p.log.WithField("total", config.Total).Info("Batch started")
	return p
}

// Increment records one finished item
func (p *ProgressTracker) Increment(failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if failed {
		p.failed++
	}

	now := time.Now()
	if now.Sub(p.lastLog) >= p.interval {
		stats := p.statsAt(now)
		fields := Fields{
			"processed": stats.Current,
			"failed":    stats.Failed,
			"rate":      fmt.Sprintf("%.2f/sec", stats.Rate),
		}
		if stats.Total > 0 {
			fields["total"] = stats.Total
			fields["percentage"] = fmt.Sprintf("%.1f%%", stats.Percentage)
			fields["remaining"] = shortDuration(stats.Remaining)
		}
		p.log.WithFields(fields).Info("Batch progress")
		p.lastLog = now
	}
}

// Complete logs the final counts and throughput
func (p *ProgressTracker) Complete() {
	stats := p.Stats()
	p.log.WithFields(Fields{
		"total":     stats.Total,
		"processed": stats.Current,
		"failed":    stats.Failed,
		"duration":  shortDuration(stats.Duration),
		"rate":      fmt.Sprintf("%.2f/sec", stats.Rate),
	}).Info("Batch finished")
}

// Stats returns a snapshot of the run
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsAt(time.Now())
}

func (p *ProgressTracker) statsAt(now time.Time) ProgressStats {
	stats := ProgressStats{
		Operation: p.name,
		Total:     p.total,
		Current:   p.done,
		Failed:    p.failed,
		Duration:  now.Sub(p.started),
	}
	if secs := stats.Duration.Seconds(); secs > 0 {
		stats.Rate = float64(p.done) / secs
	}
	if p.total > 0 {
		stats.Percentage = float64(p.done) / float64(p.total) * 100
		if p.done > 0 && p.done < p.total {
			perItem := stats.Duration / time.Duration(p.done)
			stats.Remaining = perItem * time.Duration(p.total-p.done)
		}
	}
	return stats
}

// ProgressStats is a point-in-time view of a batch run
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total"`
	Current    int64         `json:"current"`
	Failed     int64         `json:"failed"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
	Remaining  time.Duration `json:"remaining"`
	Rate       float64       `json:"rate"`
}

func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d (%.1f%%), %d failed", ps.Operation, ps.Current, ps.Total, ps.Percentage, ps.Failed)
	}
	return fmt.Sprintf("%s: %d processed, %d failed", ps.Operation, ps.Current, ps.Failed)
}

// TimedOperation runs fn and logs its duration and outcome
func TimedOperation(operation string, log Logger, fn func() error) error {
	log = OrGlobal(log, "operation").WithField("operation", operation)
	start := time.Now()

	err := fn()

	log = log.WithField("duration", shortDuration(time.Since(start)))
	if err != nil {
		log.WithError(err).Error("Operation failed")
	} else {
		log.Debug("Operation completed")
	}
	return err
}

// shortDuration renders d with its two largest units, e.g. "1 minute 12 seconds"
func shortDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return durafmt.Parse(d.Round(time.Second)).LimitFirstN(2).String()
}
