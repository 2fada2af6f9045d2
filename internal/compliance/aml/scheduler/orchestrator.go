package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/reporting"
	"github.com/Aidin1998/amlwatch/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// UserScanner scans a single user
type UserScanner interface {
	ScanUser(ctx context.Context, userID string) (*aml.ScanSummary, error)
}

// AutoFiler runs one SAR auto-file sweep
type AutoFiler interface {
	AutoFile(ctx context.Context, threshold int) (*reporting.AutoFileResult, error)
}

// Config controls population scans
type Config struct {
	PageSize          int           `mapstructure:"page_size" yaml:"page_size" validate:"min=1,max=10000"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency" validate:"min=1,max=256"`
	UserTimeout       time.Duration `mapstructure:"user_timeout" yaml:"user_timeout" validate:"gt=0"`
	LeaseTTL          time.Duration `mapstructure:"lease_ttl" yaml:"lease_ttl"`
	AutoFileThreshold int           `mapstructure:"auto_file_threshold" yaml:"auto_file_threshold" validate:"min=0,max=100"`
	ScanSchedule      string        `mapstructure:"scan_schedule" yaml:"scan_schedule" validate:"required"`
	AutoFileSchedule  string        `mapstructure:"auto_file_schedule" yaml:"auto_file_schedule" validate:"required"`
}

// DefaultConfig scans hourly and auto-files nightly at 02:00
func DefaultConfig() Config {
	return Config{
		PageSize:          100,
		Concurrency:       10,
		UserTimeout:       30 * time.Second,
		LeaseTTL:          5 * time.Minute,
		AutoFileThreshold: 80,
		ScanSchedule:      "0 * * * *",
		AutoFileSchedule:  "0 2 * * *",
	}
}

// ScanReport summarises a population scan. Failures are counted, never raised.
type ScanReport struct {
	Batches           int           `json:"batches"`
	UsersScanned      int           `json:"users_scanned"`
	UsersFailed       int           `json:"users_failed"`
	UsersSkipped      int           `json:"users_skipped"`
	PatternsDetected  int           `json:"patterns_detected"`
	ActivitiesCreated int           `json:"activities_created"`
	Duration          time.Duration `json:"duration"`
}

// AutoFileReport summarises an auto-file pass
type AutoFileReport struct {
	Threshold int `json:"threshold"`
	Eligible  int `json:"eligible"`
	Filed     int `json:"filed"`
	Failed    int `json:"failed"`
}

var errUserTimeout = errors.New("user scan timed out")

// Orchestrator drives population scans and auto-file passes
type Orchestrator struct {
	users   aml.UserDirectory
	scanner UserScanner
	filer   AutoFiler
	locker  aml.ScanLocker
	cfg     Config
	logger  *zap.Logger
}

func NewOrchestrator(users aml.UserDirectory, scanner UserScanner, filer AutoFiler, locker aml.ScanLocker, cfg Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		users:   users,
		scanner: scanner,
		filer:   filer,
		locker:  locker,
		cfg:     cfg,
		logger:  logger.Named("scheduler"),
	}
}

type tally struct {
	mu  sync.Mutex
	rep *ScanReport
}

func (t *tally) add(fn func(r *ScanReport)) {
	t.mu.Lock()
	fn(t.rep)
	t.mu.Unlock()
}

// RunPopulationScan pages through every active user and scans each one. A
// failing or hung user is counted and the scan moves on. An error is only
// returned when the user directory itself cannot be read; the report still
// covers the batches completed before that.
func (o *Orchestrator) RunPopulationScan(ctx context.Context) (*ScanReport, error) {
	start := time.Now()
	t := &tally{rep: &ScanReport{}}
	defer func() {
		t.rep.Duration = time.Since(start)
		metrics.PopulationScanDuration.Observe(t.rep.Duration.Seconds())
	}()

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return t.rep, err
		}

		ids, err := o.users.ListActiveUserIDs(ctx, after, o.cfg.PageSize)
		if err != nil {
			o.logger.Error("user directory unavailable, aborting population scan",
				zap.String("after", after), zap.Error(err))
			return t.rep, fmt.Errorf("list active users after %q: %w", after, err)
		}
		if len(ids) == 0 {
			break
		}

		o.runBatch(ctx, ids, t)
		t.add(func(r *ScanReport) { r.Batches++ })

		if len(ids) < o.cfg.PageSize {
			break
		}
		after = ids[len(ids)-1]
	}

	o.logger.Info("population scan complete",
		zap.Int("batches", t.rep.Batches),
		zap.Int("scanned", t.rep.UsersScanned),
		zap.Int("failed", t.rep.UsersFailed),
		zap.Int("skipped", t.rep.UsersSkipped),
		zap.Int("patterns", t.rep.PatternsDetected),
		zap.Int("created", t.rep.ActivitiesCreated),
		zap.Duration("elapsed", time.Since(start)))
	return t.rep, nil
}

func (o *Orchestrator) runBatch(ctx context.Context, ids []string, t *tally) {
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			o.scanOne(ctx, id, t)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) scanOne(ctx context.Context, userID string, t *tally) {
	logger := o.logger.With(zap.String("user_id", userID))
	start := time.Now()
	defer func() { metrics.UserScanDuration.Observe(time.Since(start).Seconds()) }()

	var release func(context.Context) error
	if o.locker != nil && o.cfg.LeaseTTL > 0 {
		rel, ok, err := o.locker.TryLock(ctx, "aml:scan:"+userID, o.cfg.LeaseTTL)
		switch {
		case err != nil:
			// lease outages never block scans
			logger.Warn("scan lease unavailable, scanning without it", zap.Error(err))
		case !ok:
			metrics.UserScans.WithLabelValues("skipped").Inc()
			t.add(func(r *ScanReport) { r.UsersSkipped++ })
			return
		default:
			release = rel
		}
	}
	// the lease outlives a timed-out scan until its goroutine returns
	releaseLease := func() {
		if release == nil {
			return
		}
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Debug("scan lease release failed", zap.Error(err))
		}
	}

	summary, err := o.scanWithTimeout(ctx, userID, releaseLease)
	if err != nil {
		result := "failure"
		if errors.Is(err, errUserTimeout) {
			result = "timeout"
		}
		metrics.UserScans.WithLabelValues(result).Inc()
		logger.Warn("user scan failed", zap.String("result", result), zap.Error(err))
		t.add(func(r *ScanReport) { r.UsersFailed++ })
		return
	}

	metrics.UserScans.WithLabelValues("success").Inc()
	t.add(func(r *ScanReport) {
		r.UsersScanned++
		r.PatternsDetected += summary.PatternsDetected
		r.ActivitiesCreated += summary.ActivitiesCreated
	})
}

// scanWithTimeout bounds one user's scan even if the scanner ignores its context.
// onExit runs when the scan goroutine returns, which after a timeout may be
// later than scanWithTimeout itself.
func (o *Orchestrator) scanWithTimeout(ctx context.Context, userID string, onExit func()) (*aml.ScanSummary, error) {
	uctx, cancel := context.WithTimeout(ctx, o.cfg.UserTimeout)

	type result struct {
		summary *aml.ScanSummary
		err     error
	}
	done := make(chan result, 1)
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		defer onExit()
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("panic scanning %s: %v", userID, p)}
			}
		}()
		s, err := o.scanner.ScanUser(uctx, userID)
		done <- result{summary: s, err: err}
	}()

	select {
	case res := <-done:
		<-exited
		return res.summary, res.err
	case <-uctx.Done():
		return nil, fmt.Errorf("%w after %s: %w", errUserTimeout, o.cfg.UserTimeout, uctx.Err())
	}
}

// RunAutoFilePass files SARs for every OPEN activity at or above the configured threshold
func (o *Orchestrator) RunAutoFilePass(ctx context.Context) (*AutoFileReport, error) {
	res, err := o.filer.AutoFile(ctx, o.cfg.AutoFileThreshold)
	if res == nil {
		return nil, err
	}
	return &AutoFileReport{
		Threshold: o.cfg.AutoFileThreshold,
		Eligible:  res.Eligible,
		Filed:     len(res.Reports),
		Failed:    res.Failed,
	}, err
}
