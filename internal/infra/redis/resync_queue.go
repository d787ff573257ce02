package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
)

// jobTTL bounds how long an abandoned job payload survives in Redis.
const jobTTL = 24 * time.Hour

// ResyncQueue is a delayed job queue for one network. Jobs live in a sorted
// set scored by the unix-millisecond time they become due; payloads are
// stored next to it as JSON strings.
type ResyncQueue struct {
	rdb     *redis.Client
	network domain.Network
}

// NewResyncQueue creates a new Redis-backed resync queue.
func NewResyncQueue(client *Client, network domain.Network) *ResyncQueue {
	return &ResyncQueue{
		rdb:     client.rdb,
		network: network,
	}
}

// Key helpers
func queueKey(network domain.Network) string {
	return fmt.Sprintf("resync:%s", network)
}

func jobKey(network domain.Network, id string) string {
	return fmt.Sprintf("resync_job:%s:%s", network, id)
}

// JobID derives a stable id so repeated requests for the same target collapse
// into a single queued job.
func JobID(kind domain.ResyncKind, target string) string {
	return string(kind) + ":" + target
}

func dueScore(at time.Time) float64 {
	return float64(at.UnixMilli())
}

func encodeJob(job *domain.ResyncJob) ([]byte, error) {
	return json.Marshal(job)
}

func decodeJob(data []byte) (*domain.ResyncJob, error) {
	var job domain.ResyncJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Enqueue schedules job to run after delay. Re-enqueueing an existing job id
// replaces its payload and due time.
func (q *ResyncQueue) Enqueue(ctx context.Context, job *domain.ResyncJob, delay time.Duration) error {
	if job.ID == "" {
		job.ID = JobID(job.Kind, job.Target)
	}
	if job.Network == "" {
		job.Network = q.network
	}
	if job.CreatedAt == 0 {
		job.CreatedAt = time.Now().Unix()
	}

	data, err := encodeJob(job)
	if err != nil {
		return fmt.Errorf("failed to marshal resync job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(q.network, job.ID), data, jobTTL)
	pipe.ZAdd(ctx, queueKey(q.network), redis.Z{
		Score:  dueScore(time.Now().Add(delay)),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue resync job: %w", err)
	}
	return nil
}

// PopDue removes and returns the oldest job whose due time has passed.
// Returns nil when nothing is due.
func (q *ResyncQueue) PopDue(ctx context.Context) (*domain.ResyncJob, error) {
	key := queueKey(q.network)
	ids, err := q.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	id := ids[0]

	// Another worker may have claimed it first.
	removed, err := q.rdb.ZRem(ctx, key, id).Result()
	if err != nil {
		return nil, fmt.Errorf("zrem failed: %w", err)
	}
	if removed == 0 {
		return nil, nil
	}

	data, err := q.rdb.GetDel(ctx, jobKey(q.network, id)).Bytes()
	if err == redis.Nil {
		// Payload expired but id was still queued
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resync job: %w", err)
	}

	job, err := decodeJob(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal resync job: %w", err)
	}
	return job, nil
}

// Pending returns every queued job without removing it.
func (q *ResyncQueue) Pending(ctx context.Context) ([]*domain.ResyncJob, error) {
	ids, err := q.rdb.ZRange(ctx, queueKey(q.network), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	jobs := make([]*domain.ResyncJob, 0, len(ids))
	for _, id := range ids {
		data, err := q.rdb.Get(ctx, jobKey(q.network, id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get resync job: %w", err)
		}
		job, err := decodeJob(data)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Count returns the number of queued jobs.
func (q *ResyncQueue) Count(ctx context.Context) (int, error) {
	count, err := q.rdb.ZCard(ctx, queueKey(q.network)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}

// Clear drops every queued job for the network.
func (q *ResyncQueue) Clear(ctx context.Context) error {
	ids, err := q.rdb.ZRange(ctx, queueKey(q.network), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("zrange failed: %w", err)
	}
	keys := []string{queueKey(q.network)}
	for _, id := range ids {
		keys = append(keys, jobKey(q.network, id))
	}
	return q.rdb.Del(ctx, keys...).Err()
}
