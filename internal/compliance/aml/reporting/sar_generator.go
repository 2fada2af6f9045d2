package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/Aidin1998/amlwatch/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("amlwatch/reporting")

const (
	TriggerManual = "manual"
	TriggerAuto   = "auto"
)

// SarGenerator files Suspicious Activity Reports and issues their references
type SarGenerator struct {
	store     aml.ActivityStore
	publisher aml.EventPublisher
	now       func() time.Time
	logger    *zap.Logger
}

func NewSarGenerator(store aml.ActivityStore, publisher aml.EventPublisher, now func() time.Time, logger *zap.Logger) *SarGenerator {
	if publisher == nil {
		publisher = aml.NopPublisher{}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SarGenerator{store: store, publisher: publisher, now: now, logger: logger.Named("sar")}
}

// SarReference builds the human-readable reference SAR-YYYYMMDD-XXXXXXXX from
// the filing date and the first eight characters of the activity id.
func SarReference(activityID string, filedAt time.Time) string {
	prefix := activityID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("SAR-%s-%s", filedAt.UTC().Format("20060102"), strings.ToUpper(prefix))
}

// GenerateSar files a SAR for the activity and moves it to SAR_FILED.
// Filing twice is rejected so an activity never carries two references.
func (g *SarGenerator) GenerateSar(ctx context.Context, activityID string) (*aml.SarReport, error) {
	return g.generate(ctx, activityID, TriggerManual)
}

func (g *SarGenerator) generate(ctx context.Context, activityID, trigger string) (*aml.SarReport, error) {
	ctx, span := tracer.Start(ctx, "reporting.GenerateSar")
	defer span.End()
	span.SetAttributes(attribute.String("aml.activity_id", activityID), attribute.String("aml.trigger", trigger))

	report, err := g.file(ctx, activityID)
	if err != nil {
		span.RecordError(err)
		metrics.SarFailures.WithLabelValues(trigger).Inc()
		return nil, err
	}
	metrics.SarsFiled.WithLabelValues(trigger).Inc()
	return report, nil
}

func (g *SarGenerator) file(ctx context.Context, activityID string) (*aml.SarReport, error) {
	a, err := g.store.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}

	switch a.Status {
	case aml.StatusSarFiled:
		ref := ""
		if a.SarReference != nil {
			ref = *a.SarReference
		}
		return nil, fmt.Errorf("%w: activity %s already filed as %s", aml.ErrInvalidState, a.ID, ref)
	case aml.StatusDismissed:
		return nil, fmt.Errorf("%w: activity %s was dismissed", aml.ErrInvalidState, a.ID)
	}

	now := g.now()
	ref := SarReference(a.ID, now)
	filed, err := g.store.UpdateIfStatus(ctx, a.ID, a.Status, aml.ActivityUpdate{
		Status:       aml.StatusSarFiled,
		SarReference: &ref,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("file sar for %s: %w", a.ID, err)
	}

	g.logger.Info("sar filed",
		zap.String("activity_id", filed.ID),
		zap.String("user_id", filed.UserID),
		zap.String("reason", string(filed.Reason)),
		zap.String("sar_reference", ref),
		zap.String("previous_status", string(a.Status)))

	ev := aml.NewActivityEvent(aml.EventSarFiled, filed, now)
	ev.PreviousStatus = a.Status
	aml.PublishBestEffort(ctx, g.publisher, ev, g.logger)

	return aml.NewSarReport(filed, ref, now), nil
}

// AutoFileResult summarises one auto-file sweep
type AutoFileResult struct {
	Eligible int
	Reports  []*aml.SarReport
	Failed   int
}

// AutoFile files a SAR for every OPEN activity at or above threshold. A
// failure on one activity is logged and counted; the sweep continues.
func (g *SarGenerator) AutoFile(ctx context.Context, threshold int) (*AutoFileResult, error) {
	candidates, err := g.store.Find(ctx, aml.ActivityFilter{Status: aml.StatusOpen, MinRiskScore: threshold})
	if err != nil {
		return nil, fmt.Errorf("load auto-file candidates: %w", err)
	}

	res := &AutoFileResult{Eligible: len(candidates)}
	for _, a := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		report, err := g.generate(ctx, a.ID, TriggerAuto)
		if err != nil {
			res.Failed++
			g.logger.Warn("auto-file skipped activity",
				zap.String("activity_id", a.ID),
				zap.Int("risk_score", a.RiskScore),
				zap.Error(err))
			continue
		}
		res.Reports = append(res.Reports, report)
	}

	g.logger.Info("auto-file sweep complete",
		zap.Int("threshold", threshold),
		zap.Int("eligible", res.Eligible),
		zap.Int("filed", len(res.Reports)),
		zap.Int("failed", res.Failed))
	return res, nil
}

// AutoFileSarsAboveThreshold returns the reports filed by one AutoFile sweep
func (g *SarGenerator) AutoFileSarsAboveThreshold(ctx context.Context, threshold int) ([]*aml.SarReport, error) {
	res, err := g.AutoFile(ctx, threshold)
	if res == nil {
		return nil, err
	}
	return res.Reports, err
}
