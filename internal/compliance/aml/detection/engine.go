package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/Aidin1998/amlwatch/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("amlwatch/detection")

// Engine loads a user's trade window once and runs every registered detector over it
type Engine struct {
	mu        sync.RWMutex
	trades    aml.TradeReader
	lookback  time.Duration
	detectors []Detector
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDetectors replaces the default detector set
func WithDetectors(ds ...Detector) Option {
	return func(e *Engine) { e.detectors = ds }
}

// NewEngine creates an engine with the default detectors for cfg
func NewEngine(trades aml.TradeReader, cfg aml.DetectionConfig, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		trades:    trades,
		lookback:  cfg.Lookback(),
		detectors: DefaultDetectors(cfg),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.Named("detection"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a detector to the set run on every scan
func (e *Engine) Register(d Detector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detectors = append(e.detectors, d)
}

func (e *Engine) snapshot() ([]Detector, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ds := make([]Detector, len(e.detectors))
	copy(ds, e.detectors)
	needsPrior := false
	for _, d := range ds {
		if p, ok := d.(PriorTradeDetector); ok && p.NeedsPriorTrade() {
			needsPrior = true
		}
	}
	return ds, needsPrior
}

// DetectForUser runs all detectors against the user's recent settled trades.
// A user with no trades in the lookback window costs one query.
func (e *Engine) DetectForUser(ctx context.Context, userID string) ([]aml.DetectedPattern, error) {
	ctx, span := tracer.Start(ctx, "detection.DetectForUser")
	defer span.End()
	span.SetAttributes(attribute.String("aml.user_id", userID))

	start := time.Now()
	defer func() { metrics.DetectionDuration.Observe(time.Since(start).Seconds()) }()

	now := e.now()
	since := now.Add(-e.lookback)

	trades, err := e.trades.FindSettledTrades(ctx, userID, since)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "trade lookup failed")
		return nil, fmt.Errorf("load trade window for %s: %w", userID, err)
	}
	if len(trades) == 0 {
		return nil, nil
	}

	detectors, needsPrior := e.snapshot()
	w := &Window{UserID: userID, Now: now, Since: since, Trades: trades}
	if needsPrior {
		prior, err := e.trades.FindLastSettledTradeBefore(ctx, userID, since)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "prior trade lookup failed")
			return nil, fmt.Errorf("load prior trade for %s: %w", userID, err)
		}
		w.PriorTrade = prior
	}

	patterns := Run(w, detectors)
	span.SetAttributes(
		attribute.Int("aml.trades", len(trades)),
		attribute.Int("aml.patterns", len(patterns)),
	)
	if len(patterns) > 0 {
		e.logger.Debug("patterns detected",
			zap.String("user_id", userID),
			zap.Int("trades", len(trades)),
			zap.Int("patterns", len(patterns)))
	}
	return patterns, nil
}

// Run evaluates detectors in order and concatenates their output
func Run(w *Window, detectors []Detector) []aml.DetectedPattern {
	var out []aml.DetectedPattern
	for _, d := range detectors {
		found := d.Detect(w)
		if len(found) > 0 {
			metrics.PatternsDetected.WithLabelValues(string(d.Reason())).Add(float64(len(found)))
		}
		out = append(out, found...)
	}
	return out
}
