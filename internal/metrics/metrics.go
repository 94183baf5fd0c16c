package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Submissions records completion submits made by the controller.
type Submissions struct {
	submittedCounter  metric.Int64Counter
	completedCounter  metric.Int64Counter
	failedCounter     metric.Int64Counter
	durationHistogram metric.Float64Histogram
	inFlightGauge     metric.Int64UpDownCounter
}

// NewSubmissions registers the instruments on the global meter provider.
func NewSubmissions() (*Submissions, error) {
	return NewSubmissionsWithMeter(otel.Meter("fun-with-ai"))
}

func NewSubmissionsWithMeter(meter metric.Meter) (*Submissions, error) {
	submittedCounter, err := meter.Int64Counter(
		"funwithai.prompts.submitted",
		metric.WithDescription("Total number of prompts submitted"),
		metric.WithUnit("{prompt}"),
	)
	if err != nil {
		return nil, err
	}

	completedCounter, err := meter.Int64Counter(
		"funwithai.prompts.completed",
		metric.WithDescription("Total number of prompts answered and stored"),
		metric.WithUnit("{prompt}"),
	)
	if err != nil {
		return nil, err
	}

	failedCounter, err := meter.Int64Counter(
		"funwithai.prompts.failed",
		metric.WithDescription("Total number of prompts that failed, by error kind"),
		metric.WithUnit("{prompt}"),
	)
	if err != nil {
		return nil, err
	}

	durationHistogram, err := meter.Float64Histogram(
		"funwithai.completion.duration",
		metric.WithDescription("Duration of completion calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	inFlightGauge, err := meter.Int64UpDownCounter(
		"funwithai.prompts.in_flight",
		metric.WithDescription("Number of completion requests outstanding"),
		metric.WithUnit("{prompt}"),
	)
	if err != nil {
		return nil, err
	}

	return &Submissions{
		submittedCounter:  submittedCounter,
		completedCounter:  completedCounter,
		failedCounter:     failedCounter,
		durationHistogram: durationHistogram,
		inFlightGauge:     inFlightGauge,
	}, nil
}

// RecordSubmitted marks the start of a submit.
func (s *Submissions) RecordSubmitted(ctx context.Context, engine string) {
	attrs := metric.WithAttributes(attribute.String("engine", engine))
	s.submittedCounter.Add(ctx, 1, attrs)
	s.inFlightGauge.Add(ctx, 1, attrs)
}

func (s *Submissions) RecordCompleted(ctx context.Context, engine string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("engine", engine))
	s.completedCounter.Add(ctx, 1, attrs)
	s.durationHistogram.Record(ctx, duration.Seconds(), attrs)
	s.inFlightGauge.Add(ctx, -1, attrs)
}

// RecordFailed is called instead of RecordCompleted; kind is the error class.
func (s *Submissions) RecordFailed(ctx context.Context, engine, kind string, duration time.Duration) {
	s.failedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("kind", kind),
	))
	attrs := metric.WithAttributes(attribute.String("engine", engine))
	s.durationHistogram.Record(ctx, duration.Seconds(), attrs)
	s.inFlightGauge.Add(ctx, -1, attrs)
}
