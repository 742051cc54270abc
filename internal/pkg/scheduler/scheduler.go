// Package scheduler is a delayed-job queue on Redis sorted sets. Jobs are
// spread over shards by murmur3 of their key; each shard is a ZSET scored by
// run-at time in unix milliseconds. Shards are split between scheduler nodes
// with a consistent hash ring, so every due job is popped by exactly one node.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/twmb/murmur3"
	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/config"
	"github.com/Gopher0727/Guildhall/utils/consistenthash"
)

var ErrUnknownKind = errors.New("no handler registered for job kind")

// Job is the unit stored in a shard.
type Job struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload,omitempty"`
	RunAt   int64           `json:"run_at"`
	Attempt int             `json:"attempt"`
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// Handler runs a job. Handlers must be idempotent: a job can run again
// after a retry.
type Handler func(ctx context.Context, job Job) error

// Enqueuer is what services depend on to schedule work.
type Enqueuer interface {
	Schedule(ctx context.Context, kind, key string, payload any, runAt time.Time) error
}

// popDue atomically removes and returns up to ARGV[2] members of KEYS[1]
// whose score is at most ARGV[1].
var popDue = redis.NewScript(`
local items = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
if #items > 0 then
  redis.call("ZREM", KEYS[1], unpack(items))
end
return items
`)

// store is the slice of go-redis the scheduler needs.
type store interface {
	redis.Scripter
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
}

type Scheduler struct {
	rdb         store
	logger      *zap.Logger
	shards      int
	owned       *bitset.BitSet
	poll        time.Duration
	batch       int
	maxAttempts int
	retryDelay  time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler

	now func() time.Time
}

// New builds a scheduler for nodeID. With no nodes configured the node owns
// every shard.
func New(rdb store, cfg config.SchedulerConfig, nodeID string, logger *zap.Logger) *Scheduler {
	shards := cfg.Shards
	if shards <= 0 {
		shards = 16
	}
	s := &Scheduler{
		rdb:         rdb,
		logger:      logger.With(zap.String("component", "scheduler"), zap.String("node", nodeID)),
		shards:      shards,
		poll:        time.Duration(max(cfg.PollIntervalMs, 10)) * time.Millisecond,
		batch:       max(cfg.BatchSize, 1),
		maxAttempts: max(cfg.MaxAttempts, 1),
		retryDelay:  time.Second,
		handlers:    make(map[string]Handler),
		now:         time.Now,
	}
	s.owned = ownedShards(cfg.Nodes, nodeID, shards)
	return s
}

func ownedShards(nodes map[string]int, nodeID string, shards int) *bitset.BitSet {
	if len(nodes) == 0 {
		all := bitset.New(uint(shards))
		for i := range shards {
			all.Set(uint(i))
		}
		return all
	}
	ring := consistenthash.New(0, nil)
	for node, weight := range nodes {
		ring.AddWeighted(node, weight)
	}
	return ring.Owned(nodeID, shards)
}

// Register binds a handler to a job kind.
func (s *Scheduler) Register(kind string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// OwnedShards reports how many shards this node polls.
func (s *Scheduler) OwnedShards() uint {
	return s.owned.Count()
}

func (s *Scheduler) shardOf(key string) int {
	return int(murmur3.StringSum32(key) % uint32(s.shards))
}

func shardKey(shard int) string {
	return "scheduler:shard:" + strconv.Itoa(shard)
}

// Schedule stores a job to run at runAt. Times in the past run on the next poll.
func (s *Scheduler) Schedule(ctx context.Context, kind, key string, payload any, runAt time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return s.enqueue(ctx, Job{ID: uuid.NewString(), Kind: kind, Key: key, Payload: raw, RunAt: runAt.UnixMilli()})
}

func (s *Scheduler) enqueue(ctx context.Context, job Job) error {
	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	err = s.rdb.ZAdd(ctx, shardKey(s.shardOf(job.Key)), redis.Z{Score: float64(job.RunAt), Member: member}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Kind, err)
	}
	return nil
}

// Run polls owned shards until ctx is cancelled, dispatching due jobs to
// a pool of workers.
func (s *Scheduler) Run(ctx context.Context, workers int) {
	pool := newWorkerPool(workers, s.batch*2, s.logger)
	pool.start()
	defer pool.stop()

	s.logger.Info("scheduler started", zap.Uint("owned_shards", s.owned.Count()))
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			jobs, err := s.pollOnce(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("scheduler poll failed", zap.Error(err))
			}
			for _, job := range jobs {
				if !pool.submit(ctx, func() { s.dispatch(context.WithoutCancel(ctx), job) }) {
					// Put it back so another poll or node picks it up.
					if err := s.enqueue(context.WithoutCancel(ctx), job); err != nil {
						s.logger.Error("failed to requeue job on shutdown", zap.String("job_id", job.ID), zap.Error(err))
					}
				}
			}
		}
	}
}

// pollOnce pops every due job from the owned shards.
func (s *Scheduler) pollOnce(ctx context.Context) ([]Job, error) {
	nowMs := s.now().UnixMilli()
	var jobs []Job
	var errs []error
	for i, ok := s.owned.NextSet(0); ok; i, ok = s.owned.NextSet(i + 1) {
		items, err := popDue.Run(ctx, s.rdb, []string{shardKey(int(i))}, nowMs, s.batch).StringSlice()
		if err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", i, err))
			continue
		}
		for _, item := range items {
			var job Job
			if err := json.Unmarshal([]byte(item), &job); err != nil {
				s.logger.Error("dropping undecodable job", zap.Uint("shard", i), zap.Error(err))
				continue
			}
			jobs = append(jobs, job)
		}
	}
	return jobs, errors.Join(errs...)
}

// RunDue pops and runs every due job synchronously. Shutdown calls it once
// the workers have stopped; jobs not yet due stay queued.
func (s *Scheduler) RunDue(ctx context.Context) error {
	jobs, err := s.pollOnce(ctx)
	for _, job := range jobs {
		s.dispatch(ctx, job)
	}
	return err
}

func (s *Scheduler) dispatch(ctx context.Context, job Job) {
	s.mu.RLock()
	h, ok := s.handlers[job.Kind]
	s.mu.RUnlock()

	log := s.logger.With(zap.String("job_id", job.ID), zap.String("kind", job.Kind), zap.Int("attempt", job.Attempt+1))
	if !ok {
		log.Error("dropping job", zap.Error(ErrUnknownKind))
		return
	}

	err := h(ctx, job)
	if err == nil {
		return
	}
	job.Attempt++
	if job.Attempt >= s.maxAttempts {
		log.Error("job failed permanently", zap.Error(err))
		return
	}
	job.RunAt = s.now().Add(time.Duration(job.Attempt) * s.retryDelay).UnixMilli()
	if qerr := s.enqueue(ctx, job); qerr != nil {
		log.Error("failed to reschedule job", zap.Error(qerr), zap.NamedError("cause", err))
		return
	}
	log.Warn("job failed, retrying", zap.Error(err))
}
