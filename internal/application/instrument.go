package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "UC."

// Instrument carries the span, RED metrics and use_case_done log shared by
// every use case. Build it once in the constructor.
type Instrument struct {
	useCase      string
	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewInstrument(tel observability.Observability, service, useCase string) Instrument {
	tel = observability.OrNop(tel)
	metrics := tel.Metrics()
	return Instrument{
		useCase:      useCase,
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

func (in Instrument) Logger() observability.Logger { return in.log }

// Run is one in-flight execution.
type Run struct {
	in     Instrument
	ctx    context.Context
	span   trace.Span
	logger observability.Logger
	start  time.Time
	status string
	fields []observability.Field
}

// Start opens the use case span and binds a use-case scoped logger into ctx.
func (in Instrument) Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	attrs = append(attrs, attribute.String("use_case", in.useCase))
	ctx, span := in.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", in.useCase))
	ctx = logctx.With(ctx, logger)
	return ctx, &Run{
		in:     in,
		ctx:    ctx,
		span:   span,
		logger: logger,
		start:  time.Now(),
	}
}

func (r *Run) Logger() observability.Logger { return r.logger }
func (r *Run) Span() trace.Span             { return r.span }

// SetStatus overrides the status text reported on completion.
func (r *Run) SetStatus(status string) { r.status = status }

// Annotate adds fields to the use_case_done line.
func (r *Run) Annotate(fields ...observability.Field) { r.fields = append(r.fields, fields...) }

// End records the outcome of the run. Call it from a defer with the named error.
func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()
	outcome, status := "success", "OK"
	if r.status != "" {
		status = r.status
	}
	if err != nil {
		outcome = Outcome(err)
		if r.status == "" {
			status = apperr.Status(err)
		}
	}

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetAttributes(attribute.String("error.kind", string(apperr.KindOf(err))))
			r.span.SetStatus(codes.Error, status)
		} else {
			r.span.SetStatus(codes.Ok, status)
		}
		r.span.End()
	}

	r.in.reqCounter.Add(1,
		observability.L("use_case", r.in.useCase),
		observability.L("outcome", outcome),
	)
	r.in.durHistogram.Observe(lat,
		observability.L("use_case", r.in.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", outcome),
		observability.F("status", status),
		observability.F("latency_seconds", lat),
	}
	fields = append(fields, observability.TraceFields(r.ctx)...)
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}

	switch outcome {
	case "error":
		r.logger.Error("use_case_done", fields...)
	default:
		r.logger.Info("use_case_done", fields...)
	}
}

// Outcome buckets an error for RED metrics: business rejections, timeouts,
// and everything else.
func Outcome(err error) string {
	switch apperr.KindOf(err) {
	case "":
		return "success"
	case apperr.KindTimeout:
		return "timeout"
	case apperr.KindStoreUnavailable, apperr.KindInternal:
		return "error"
	default:
		return "rejected"
	}
}
