package enhance

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
)

// Limited bounds an Enhancer with a token-bucket rate limit and a per-request
// timeout. Every error it returns is an *errors.EnhanceError carrying the
// item ID and elapsed time.
type Limited struct {
	next    Enhancer
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLimited wraps next. ratePerSecond <= 0 disables rate limiting and
// timeout <= 0 disables the timeout.
func NewLimited(next Enhancer, ratePerSecond float64, burst int, timeout time.Duration) *Limited {
	l := &Limited{next: next, timeout: timeout}
	if ratePerSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return l
}

// Name returns the wrapped provider's name.
func (l *Limited) Name() string {
	return l.next.Name()
}

// Enhance waits for a token and calls the wrapped provider within the timeout.
// Time spent waiting for a token counts against the timeout.
func (l *Limited) Enhance(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	callCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	if l.limiter != nil {
		if err := l.limiter.Wait(callCtx); err != nil {
			if callCtx.Err() != nil {
				return nil, l.fail(ctx, callCtx, req, start, callCtx.Err())
			}
			// The wait would outlast the deadline.
			ee := plerrors.NewEnhanceError(plerrors.ErrRateLimit, l.Name(), "client rate limit", err)
			return nil, l.annotate(ee, req, start)
		}
	}

	res, err := l.next.Enhance(callCtx, req)
	if err != nil {
		return nil, l.fail(ctx, callCtx, req, start, err)
	}
	return res, nil
}

func (l *Limited) fail(parent, callCtx context.Context, req *Request, start time.Time, err error) *plerrors.EnhanceError {
	ee := plerrors.ClassifyError(err, l.Name())
	// Our own deadline expired while the caller's context is still live.
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		ee.Code = plerrors.ErrTimeout
	}
	return l.annotate(ee, req, start)
}

func (l *Limited) annotate(ee *plerrors.EnhanceError, req *Request, start time.Time) *plerrors.EnhanceError {
	if ee.ItemID == "" {
		ee.ItemID = req.ItemID
	}
	if ee.Duration == 0 {
		ee.Duration = time.Since(start)
	}
	return ee
}
