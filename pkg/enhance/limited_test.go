package enhance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
)

// stubEnhancer answers with fn and counts calls.
type stubEnhancer struct {
	calls int32
	fn    func(ctx context.Context, req *Request) (*Result, error)
}

func (s *stubEnhancer) Name() string { return "stub" }

func (s *stubEnhancer) Enhance(ctx context.Context, req *Request) (*Result, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.fn(ctx, req)
}

func TestLimited_PassesThrough(t *testing.T) {
	stub := &stubEnhancer{fn: func(_ context.Context, req *Request) (*Result, error) {
		return &Result{ItemID: req.ItemID, EnhancedContent: "done"}, nil
	}}

	l := NewLimited(stub, 0, 0, time.Second)
	assert.Equal(t, "stub", l.Name())

	res, err := l.Enhance(context.Background(), &Request{ItemID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "done", res.EnhancedContent)
}

func TestLimited_TimeoutIsFailure(t *testing.T) {
	stub := &stubEnhancer{fn: func(ctx context.Context, _ *Request) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	l := NewLimited(stub, 0, 0, 30*time.Millisecond)
	_, err := l.Enhance(context.Background(), &Request{ItemID: "a"})
	require.Error(t, err)

	var ee *plerrors.EnhanceError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, plerrors.ErrTimeout, ee.Code)
	assert.Equal(t, "a", ee.ItemID)
	assert.Equal(t, "stub", ee.Provider)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.calls), "a timeout must not be retried")
}

func TestLimited_CallerCancelIsNotTimeout(t *testing.T) {
	stub := &stubEnhancer{fn: func(ctx context.Context, _ *Request) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := NewLimited(stub, 0, 0, time.Minute).Enhance(ctx, &Request{ItemID: "a"})
	require.Error(t, err)
	assert.Equal(t, plerrors.ErrCanceled, plerrors.CodeOf(err))
}

func TestLimited_ClassifiesPlainErrors(t *testing.T) {
	stub := &stubEnhancer{fn: func(context.Context, *Request) (*Result, error) {
		return nil, errors.New("something odd")
	}}

	_, err := NewLimited(stub, 0, 0, time.Second).Enhance(context.Background(), &Request{ItemID: "b"})
	require.Error(t, err)

	var ee *plerrors.EnhanceError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, plerrors.ErrInternal, ee.Code)
	assert.Equal(t, "b", ee.ItemID)
	assert.Greater(t, ee.Duration, time.Duration(0))
}

func TestLimited_RateLimit(t *testing.T) {
	stub := &stubEnhancer{fn: func(_ context.Context, req *Request) (*Result, error) {
		return &Result{ItemID: req.ItemID}, nil
	}}

	// One token, refilled every 10s: the second call cannot get a token
	// before its 50ms deadline.
	l := NewLimited(stub, 0.1, 1, 50*time.Millisecond)

	_, err := l.Enhance(context.Background(), &Request{ItemID: "first"})
	require.NoError(t, err)

	_, err = l.Enhance(context.Background(), &Request{ItemID: "second"})
	require.Error(t, err)
	assert.Equal(t, plerrors.ErrRateLimit, plerrors.CodeOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.calls))
}

func TestInstrumented_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewLiveMetrics(reg)

	fail := false
	stub := &stubEnhancer{fn: func(_ context.Context, req *Request) (*Result, error) {
		if fail {
			return nil, plerrors.NewEnhanceError(plerrors.ErrUnavailable, "stub", "down", nil)
		}
		return &Result{ItemID: req.ItemID, Confidence: float(0.6)}, nil
	}}

	e := NewInstrumented(stub, metrics, nil)
	assert.Equal(t, "stub", e.Name())

	_, err := e.Enhance(context.Background(), &Request{ItemID: "a"})
	require.NoError(t, err)

	fail = true
	_, err = e.Enhance(context.Background(), &Request{ItemID: "b"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EnhanceRequestsTotal.WithLabelValues("stub", observability.StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EnhanceRequestsTotal.WithLabelValues("stub", string(plerrors.ErrUnavailable))))
}

func TestInstrumented_NilMetrics(t *testing.T) {
	stub := &stubEnhancer{fn: func(_ context.Context, req *Request) (*Result, error) {
		return &Result{ItemID: req.ItemID}, nil
	}}

	_, err := NewInstrumented(stub, nil, nil).Enhance(context.Background(), &Request{ItemID: "a"})
	require.NoError(t, err)
}
