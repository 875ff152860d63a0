package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/mawaqit/internal/location"
	"github.com/rewired-gh/mawaqit/internal/logger"
	"github.com/rewired-gh/mawaqit/internal/models"
)

const (
	// DefaultRefreshDays is how many days past today are precomputed.
	DefaultRefreshDays = 7
	// DefaultRefreshInterval is the time between scheduled refresh cycles.
	DefaultRefreshInterval = time.Hour
)

// Refresh triggers.
const (
	TriggerStartup  = "startup"
	TriggerInterval = "interval"
	TriggerSettings = "settings"
	TriggerManual   = "manual"
)

// RefreshError is a per-date failure during a refresh cycle.
type RefreshError struct {
	Date models.Date
	Err  error
}

func (e RefreshError) Error() string {
	return fmt.Sprintf("refresh error for %s: %v", e.Date, e.Err)
}

func (e RefreshError) Unwrap() error {
	return e.Err
}

// RefreshReport summarizes one refresh cycle.
type RefreshReport struct {
	ID          string             `json:"id"`
	Trigger     string             `json:"trigger"`
	StartedAt   time.Time          `json:"started_at"`
	Duration    time.Duration      `json:"duration"`
	Coordinates models.Coordinates `json:"coordinates"`
	Computed    int                `json:"computed"`
	Cached      int                `json:"cached"`
	Errors      []RefreshError     `json:"-"`
	Err         error              `json:"-"`
}

// Failed reports whether the cycle as a whole failed: no location, or no date resolved.
func (r RefreshReport) Failed() bool {
	return r.Err != nil
}

// Alerter is told when refreshing starts failing and when it recovers.
type Alerter interface {
	SendError(err error) error
	SendRecovery(failures int) error
}

// RefreshJob keeps the cache warm for today through RefreshDays ahead. It runs once
// at start, then on every interval tick and whenever it is triggered.
type RefreshJob struct {
	service  *Service
	location location.Provider
	today    func() models.Date
	days     int
	interval time.Duration

	trigger chan string

	mu                  sync.Mutex
	alerter             Alerter
	last                RefreshReport
	consecutiveFailures int
	runs                int
}

func newRefreshJob(service *Service, loc location.Provider, today func() models.Date, days int, interval time.Duration) *RefreshJob {
	if days <= 0 {
		days = DefaultRefreshDays
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &RefreshJob{
		service:  service,
		location: loc,
		today:    today,
		days:     days,
		interval: interval,
		trigger:  make(chan string, 1),
	}
}

// Service returns the shared Service the job refreshes through.
func (j *RefreshJob) Service() *Service { return j.service }

// Interval returns the time between scheduled cycles.
func (j *RefreshJob) Interval() time.Duration { return j.interval }

// Trigger asks a running job for an extra cycle. Triggers arriving while one is
// already queued are merged.
func (j *RefreshJob) Trigger(reason string) {
	select {
	case j.trigger <- reason:
	default:
	}
}

// Run executes the initial cycle and then loops until ctx is done.
func (j *RefreshJob) Run(ctx context.Context) {
	logger.Info("Starting refresh job (interval: %v, days ahead: %d)", j.interval, j.days)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	logger.Debug("Running initial refresh cycle")
	j.RunOnce(ctx, TriggerStartup)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Refresh job stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled refresh cycle")
			j.RunOnce(ctx, TriggerInterval)

		case reason := <-j.trigger:
			logger.Debug("Starting %s refresh cycle", reason)
			j.RunOnce(ctx, reason)
			// A trigger restarts the schedule so a settings change is not followed by
			// a redundant tick moments later.
			ticker.Reset(j.interval)
		}
	}
}

// RunOnce performs one refresh cycle synchronously and records its report.
func (j *RefreshJob) RunOnce(ctx context.Context, trigger string) RefreshReport {
	report := j.cycle(ctx, trigger)
	j.handleResult(report)
	return report
}

func (j *RefreshJob) cycle(ctx context.Context, trigger string) RefreshReport {
	report := RefreshReport{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	coords, err := currentCoordinates(ctx, j.location)
	if err != nil {
		report.Err = err
		return report
	}
	report.Coordinates = coords

	start := j.today()
	for i := 0; i <= j.days; i++ {
		if err := ctx.Err(); err != nil {
			report.Err = err
			return report
		}
		date := start.AddDays(i)
		r, err := j.service.Lookup(ctx, date, coords)
		if err != nil {
			report.Errors = append(report.Errors, RefreshError{Date: date, Err: err})
			continue
		}
		if r.Cached {
			report.Cached++
		} else {
			report.Computed++
		}
	}

	if report.Computed+report.Cached == 0 && len(report.Errors) > 0 {
		report.Err = fmt.Errorf("no date could be resolved: %w", errors.Join(refreshErrs(report.Errors)...))
	}
	return report
}

func refreshErrs(errs []RefreshError) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

// SetAlerter installs an alerter. Only the first failure of a streak and the
// recovery after it are reported.
func (j *RefreshJob) SetAlerter(a Alerter) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.alerter = a
}

func (j *RefreshJob) handleResult(report RefreshReport) {
	j.mu.Lock()
	j.runs++
	j.last = report
	alerter := j.alerter

	for _, e := range report.Errors {
		logger.Warn("Failed to refresh prayer times for %s: %v", e.Date, e.Err)
	}

	if report.Failed() {
		j.consecutiveFailures++
		failures := j.consecutiveFailures
		j.mu.Unlock()

		logger.Error("Refresh cycle %s failed (%d consecutive): %v", report.ID, failures, report.Err)
		if failures == 1 && alerter != nil {
			if err := alerter.SendError(report.Err); err != nil {
				logger.Error("Failed to send error notification: %v", err)
			}
		}
		return
	}

	recovered := j.consecutiveFailures
	j.consecutiveFailures = 0
	j.mu.Unlock()

	if recovered > 0 {
		logger.Info("Refresh recovered after %d failed cycles", recovered)
		if alerter != nil {
			if err := alerter.SendRecovery(recovered); err != nil {
				logger.Error("Failed to send recovery notification: %v", err)
			}
		}
	}
	logger.Info("Refresh cycle completed in %v (%d computed, %d cached, %d failed)",
		report.Duration, report.Computed, report.Cached, len(report.Errors))
}

// Last returns the report of the most recent cycle and whether any cycle has run.
func (j *RefreshJob) Last() (RefreshReport, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last, j.runs > 0
}

// ConsecutiveFailures returns how many cycles in a row have failed.
func (j *RefreshJob) ConsecutiveFailures() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.consecutiveFailures
}

// Runs returns how many cycles have completed.
func (j *RefreshJob) Runs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}
