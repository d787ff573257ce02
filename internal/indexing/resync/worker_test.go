package resync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/indexing/reconcile"
	"github.com/vietddude/envelope-indexer/internal/infra/chain/sui"
	"github.com/vietddude/envelope-indexer/internal/infra/rpc/provider"
)

type queuedJob struct {
	job   *domain.ResyncJob
	delay time.Duration
}

// fakeQueue ignores due times: every queued job is due.
type fakeQueue struct {
	mu     sync.Mutex
	jobs   []queuedJob
	popErr error
}

func (q *fakeQueue) PopDue(ctx context.Context) (*domain.ResyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.popErr != nil {
		return nil, q.popErr
	}
	if len(q.jobs) == 0 {
		return nil, nil
	}
	next := q.jobs[0]
	q.jobs = q.jobs[1:]
	return next.job, nil
}

func (q *fakeQueue) Enqueue(ctx context.Context, job *domain.ResyncJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, queuedJob{job: job, delay: delay})
	return nil
}

func (q *fakeQueue) Count(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs), nil
}

func (q *fakeQueue) snapshot() []queuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queuedJob(nil), q.jobs...)
}

type fakeEngine struct {
	mu        sync.Mutex
	envErr    error
	txErr     error
	envelopes []string
	digests   []string
}

func (e *fakeEngine) ResyncEnvelope(ctx context.Context, id string) (*domain.Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envelopes = append(e.envelopes, id)
	if e.envErr != nil {
		return nil, e.envErr
	}
	return &domain.Envelope{EnvelopeID: id}, nil
}

func (e *fakeEngine) ResyncTransaction(ctx context.Context, digest string) (*reconcile.TransactionResync, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.digests = append(e.digests, digest)
	if e.txErr != nil {
		return nil, e.txErr
	}
	return &reconcile.TransactionResync{Digest: digest, Claims: 1, Applied: 1}, nil
}

type depthRecorder struct {
	mu    sync.Mutex
	depth int
	calls int
}

func (d *depthRecorder) SetQueueDepth(network domain.Network, depth int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depth = depth
	d.calls++
}

func testConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 5 * time.Millisecond,
		Strategy: &ExponentialBackoff{
			InitialDelay: time.Second,
			MaxDelay:     4 * time.Second,
			MaxAttempts:  3,
			Classifier:   ClassifyFailure,
		},
	}
}

func job(kind domain.ResyncKind, target string) *domain.ResyncJob {
	return &domain.ResyncJob{ID: string(kind) + ":" + target, Kind: kind, Target: target, Network: domain.NetworkTestnet}
}

func TestProcessNext_EmptyQueue(t *testing.T) {
	depth := &depthRecorder{}
	w := NewWorker(testConfig(), domain.NetworkTestnet, &fakeQueue{}, &fakeEngine{}, depth)

	found, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, depth.calls)
}

func TestProcessNext_RunsJobKinds(t *testing.T) {
	q := &fakeQueue{}
	require.NoError(t, q.Enqueue(context.Background(), job(domain.ResyncKindEnvelope, "0xA"), 0))
	require.NoError(t, q.Enqueue(context.Background(), job(domain.ResyncKindTransaction, "D2"), 0))
	engine := &fakeEngine{}
	w := NewWorker(testConfig(), domain.NetworkTestnet, q, engine, nil)

	for i := 0; i < 2; i++ {
		found, err := w.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.True(t, found)
	}
	assert.Equal(t, []string{"0xA"}, engine.envelopes)
	assert.Equal(t, []string{"D2"}, engine.digests)
	assert.Empty(t, q.snapshot())
}

func TestProcessNext_TransientFailureIsRequeuedWithBackoff(t *testing.T) {
	q := &fakeQueue{}
	require.NoError(t, q.Enqueue(context.Background(), job(domain.ResyncKindTransaction, "D2"), 0))
	engine := &fakeEngine{txErr: fmt.Errorf("rpc call: %w", &provider.HTTPStatusError{StatusCode: 502})}
	w := NewWorker(testConfig(), domain.NetworkTestnet, q, engine, nil)

	_, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	queued := q.snapshot()
	require.Len(t, queued, 1)
	assert.Equal(t, 1, queued[0].job.Attempts)
	assert.Equal(t, time.Second, queued[0].delay)
	assert.NotEmpty(t, queued[0].job.LastErr)

	_, err = w.ProcessNext(context.Background())
	require.NoError(t, err)
	queued = q.snapshot()
	require.Len(t, queued, 1)
	assert.Equal(t, 2, queued[0].job.Attempts)
	assert.Equal(t, 2*time.Second, queued[0].delay)

	// Third failure reaches MaxAttempts
	_, err = w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Empty(t, q.snapshot())
	assert.Len(t, engine.digests, 3)
}

func TestProcessNext_PermanentFailureIsDropped(t *testing.T) {
	cases := []error{
		fmt.Errorf("%w: D9", reconcile.ErrNoClaimEvent),
		fmt.Errorf("get 0xA: %w", sui.ErrObjectNotFound),
		sui.ErrWrongObjectType,
		&provider.RPCError{Code: -32602, Message: "invalid params"},
	}
	for _, cause := range cases {
		t.Run(cause.Error(), func(t *testing.T) {
			q := &fakeQueue{}
			require.NoError(t, q.Enqueue(context.Background(), job(domain.ResyncKindEnvelope, "0xA"), 0))
			w := NewWorker(testConfig(), domain.NetworkTestnet, q, &fakeEngine{envErr: cause}, nil)

			found, err := w.ProcessNext(context.Background())
			require.NoError(t, err)
			assert.True(t, found)
			assert.Empty(t, q.snapshot())
		})
	}
}

func TestProcessNext_UnknownKindIsDropped(t *testing.T) {
	q := &fakeQueue{}
	require.NoError(t, q.Enqueue(context.Background(), job("checkpoint", "42"), 0))
	w := NewWorker(testConfig(), domain.NetworkTestnet, q, &fakeEngine{}, nil)

	found, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, q.snapshot())
}

func TestProcessNext_QueueErrorIsReturned(t *testing.T) {
	q := &fakeQueue{popErr: errors.New("connection refused")}
	w := NewWorker(testConfig(), domain.NetworkTestnet, q, &fakeEngine{}, nil)

	found, err := w.ProcessNext(context.Background())
	assert.Error(t, err)
	assert.False(t, found)
}

func TestRun_DrainsQueueAndStops(t *testing.T) {
	q := &fakeQueue{}
	for _, id := range []string{"0x1", "0x2", "0x3"} {
		require.NoError(t, q.Enqueue(context.Background(), job(domain.ResyncKindEnvelope, id), 0))
	}
	engine := &fakeEngine{}
	depth := &depthRecorder{}
	w := NewWorker(testConfig(), domain.NetworkTestnet, q, engine, depth)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return len(engine.envelopes) == 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	depth.mu.Lock()
	defer depth.mu.Unlock()
	assert.Equal(t, 0, depth.depth)
}

func TestExponentialBackoff(t *testing.T) {
	s := DefaultBackoff(5, nil)
	assert.Equal(t, 2*time.Second, s.GetDelay(0))
	assert.Equal(t, 4*time.Second, s.GetDelay(1))
	assert.Equal(t, 32*time.Second, s.GetDelay(4))
	assert.Equal(t, 60*time.Second, s.GetDelay(10))

	transient := errors.New("connection reset by peer")
	assert.True(t, s.ShouldRetry(transient, 0))
	assert.True(t, s.ShouldRetry(transient, 4))
	assert.False(t, s.ShouldRetry(transient, 5))
	assert.False(t, s.ShouldRetry(sui.ErrObjectNotFound, 0))
}

func TestClassifyFailure(t *testing.T) {
	assert.Equal(t, CategoryTransient, ClassifyFailure(sui.ErrTransactionNotFound))
	assert.Equal(t, CategoryTransient, ClassifyFailure(errors.New("i/o timeout")))
	assert.Equal(t, CategoryPermanent, ClassifyFailure(context.Canceled))
	assert.Equal(t, CategoryPermanent, ClassifyFailure(reconcile.ErrNoClaimEvent))
	assert.Equal(t, "permanent", CategoryPermanent.String())
}
