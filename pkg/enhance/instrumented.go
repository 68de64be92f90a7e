package enhance

import (
	"context"
	"time"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
)

// Instrumented records metrics, a trace span and a debug log line for every
// call to the wrapped Enhancer.
type Instrumented struct {
	next    Enhancer
	metrics *observability.LiveMetrics
	tracer  *observability.Tracer
	logger  logging.Logger
}

// NewInstrumented wraps next. A nil metrics disables metrics and a nil logger
// disables logging.
func NewInstrumented(next Enhancer, metrics *observability.LiveMetrics, logger logging.Logger) *Instrumented {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Instrumented{
		next:    next,
		metrics: metrics,
		tracer:  observability.NewTracer(),
		logger:  logger.With(logging.F("component", "enhancer"), logging.F("provider", next.Name())),
	}
}

// Name returns the wrapped provider's name.
func (i *Instrumented) Name() string {
	return i.next.Name()
}

// Enhance calls the wrapped Enhancer inside a span.
func (i *Instrumented) Enhance(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := i.tracer.StartEnhanceSpan(ctx, i.Name(), req.ItemID, string(req.Category))
	defer span.End()
	helper := observability.NewSpanHelper(span)

	start := time.Now()
	res, err := i.next.Enhance(ctx, req)
	elapsed := time.Since(start)
	helper.SetDuration(elapsed.Milliseconds())

	if err != nil {
		code := plerrors.CodeOf(err)
		i.metrics.RecordEnhancement(i.Name(), string(code), elapsed.Seconds())
		helper.SetError(err, string(code), plerrors.IsErrorRetryable(err))
		i.logger.WithContext(ctx).Debug("enhancement failed",
			logging.F("item_id", req.ItemID),
			logging.F("code", string(code)),
			logging.F("duration_ms", elapsed.Milliseconds()),
			logging.Err(err))
		return nil, err
	}

	i.metrics.RecordEnhancement(i.Name(), observability.StatusSuccess, elapsed.Seconds())
	if res.Confidence != nil {
		i.metrics.RecordConfidence(*res.Confidence)
		helper.SetConfidence(*res.Confidence)
	}
	helper.SetSuccess()
	i.logger.WithContext(ctx).Debug("enhancement succeeded",
		logging.F("item_id", req.ItemID),
		logging.F("duration_ms", elapsed.Milliseconds()))
	return res, nil
}
