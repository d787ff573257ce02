package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "resync:testnet", queueKey(domain.NetworkTestnet))
	assert.Equal(t, "resync_job:mainnet:transaction:D1", jobKey(domain.NetworkMainnet, JobID(domain.ResyncKindTransaction, "D1")))
}

func TestJobID_CollapsesSameTarget(t *testing.T) {
	assert.Equal(t, JobID(domain.ResyncKindEnvelope, "0xE"), JobID(domain.ResyncKindEnvelope, "0xE"))
	assert.NotEqual(t, JobID(domain.ResyncKindEnvelope, "0xE"), JobID(domain.ResyncKindTransaction, "0xE"))
}

func TestJobEncoding(t *testing.T) {
	job := &domain.ResyncJob{
		ID:       "envelope:0xE",
		Network:  domain.NetworkTestnet,
		Kind:     domain.ResyncKindEnvelope,
		Target:   "0xE",
		Attempts: 2,
		LastErr:  "timeout",
	}
	data, err := encodeJob(job)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"last_error":"timeout"`)

	got, err := decodeJob(data)
	require.NoError(t, err)
	assert.Equal(t, job, got)

	_, err = decodeJob([]byte("{"))
	assert.Error(t, err)
}

func TestDueScore_IsMillisecondPrecision(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, float64(1700000000123), dueScore(at))
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{URL: "redis://localhost:6379/0"}.Enabled())
}

func newTestQueue(t *testing.T) (*ResyncQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewResyncQueue(client, domain.NetworkTestnet), mr
}

func envelopeJob(target string) *domain.ResyncJob {
	return &domain.ResyncJob{Kind: domain.ResyncKindEnvelope, Target: target, Reason: "test"}
}

func TestResyncQueue_EnqueueFillsDefaults(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	job := envelopeJob("0xE")
	require.NoError(t, q.Enqueue(ctx, job, 0))
	assert.Equal(t, "envelope:0xE", job.ID)
	assert.Equal(t, domain.NetworkTestnet, job.Network)
	assert.NotZero(t, job.CreatedAt)
	assert.True(t, mr.Exists(jobKey(domain.NetworkTestnet, job.ID)))
	assert.Equal(t, jobTTL, mr.TTL(jobKey(domain.NetworkTestnet, job.ID)))
}

func TestResyncQueue_DelayedJobIsInvisibleUntilDue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, envelopeJob("0xLater"), time.Hour))

	job, err := q.PopDue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "job stays queued")

	require.NoError(t, q.Enqueue(ctx, envelopeJob("0xNow"), 0))
	job, err = q.PopDue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "0xNow", job.Target)
}

func TestResyncQueue_PopsEarliestDueFirst(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, envelopeJob("0xB"), -time.Second))
	require.NoError(t, q.Enqueue(ctx, envelopeJob("0xA"), -2*time.Second))
	require.NoError(t, q.Enqueue(ctx, envelopeJob("0xC"), 0))

	var order []string
	for {
		job, err := q.PopDue(ctx)
		require.NoError(t, err)
		if job == nil {
			break
		}
		order = append(order, job.Target)
	}
	assert.Equal(t, []string{"0xA", "0xB", "0xC"}, order)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResyncQueue_SameTargetCollapses(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, envelopeJob("0xE"), 0))
	retry := envelopeJob("0xE")
	retry.Attempts = 2
	retry.LastErr = "timeout"
	require.NoError(t, q.Enqueue(ctx, retry, 0))

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := q.PopDue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts, "latest payload wins")
	assert.Equal(t, "timeout", job.LastErr)

	job, err = q.PopDue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestResyncQueue_ExpiredPayloadIsSkipped(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, envelopeJob("0xE"), -time.Second))
	mr.FastForward(jobTTL + time.Minute)
	require.False(t, mr.Exists(jobKey(domain.NetworkTestnet, "envelope:0xE")))

	job, err := q.PopDue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "orphaned id is removed")
}

func TestResyncQueue_PendingAndClear(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, envelopeJob("0xB"), time.Hour))
	require.NoError(t, q.Enqueue(ctx, envelopeJob("0xA"), time.Minute))

	other := NewResyncQueue(&Client{rdb: q.rdb}, domain.NetworkMainnet)
	require.NoError(t, other.Enqueue(ctx, envelopeJob("0xM"), 0))

	jobs, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "0xA", jobs[0].Target)
	assert.Equal(t, "0xB", jobs[1].Target)

	require.NoError(t, q.Clear(ctx))
	jobs, err = q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.False(t, mr.Exists(jobKey(domain.NetworkTestnet, "envelope:0xA")))

	n, err := other.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "other networks are untouched")
}
