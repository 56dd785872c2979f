package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"SignalEngine/pkg/logger"
)

// ErrNotRunning is returned by PublishMessage before Start or after Stop.
var ErrNotRunning = errors.New("queue not running")

type Mode int

const (
	ModeProducerConsumer Mode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m Mode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

func (m Mode) consumes() bool { return m != ModeProducerOnly }

// promoteDue moves retries whose score (unix ms) has passed back onto the
// pending list in one round trip.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
  redis.call('ZREM', KEYS[1], m)
  redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

const promoteBatch = 100

type keys struct {
	pending, inflight, retry, dead string
}

func newKeys(prefix string) keys {
	return keys{
		pending:  prefix + ":pending",
		inflight: prefix + ":inflight",
		retry:    prefix + ":retry",
		dead:     prefix + ":dead",
	}
}

// RedisQueue is a reliable job queue on Redis lists. Workers move each
// envelope from the pending list to an in-flight list while its job runs and
// remove it only once the job has succeeded, been rescheduled or been dead
// lettered.
type RedisQueue struct {
	client   *redis.Client
	cfg      *QueueConfig
	mode     Mode
	prefix   string
	keys     keys
	logger   *logger.Logger
	observer Observer
	now      func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces every key of the queue.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(q *RedisQueue) {
		if prefix != "" {
			q.prefix = prefix
		}
	}
}

func WithObserver(o Observer) RedisQueueOption {
	return func(q *RedisQueue) {
		if o != nil {
			q.observer = o
		}
	}
}

func NewRedisQueue(l *logger.Logger, cfg *QueueConfig, client *redis.Client, mode Mode, opts ...RedisQueueOption) *RedisQueue {
	if l == nil {
		l = logger.NewNop()
	}
	q := &RedisQueue{
		client:   client,
		cfg:      cfg.withDefaults(),
		mode:     mode,
		prefix:   "signalengine:queue",
		logger:   l.Component("queue"),
		observer: nopObserver{},
		now:      time.Now,
		jobs:     make(map[string]Job),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.keys = newKeys(q.prefix)
	return q
}

// RegisterJob binds job to its Type. Registrations after Start take effect
// for envelopes dequeued afterwards.
func (q *RedisQueue) RegisterJob(job Job) {
	if !q.mode.consumes() {
		q.logger.Warn("producer-only queue ignores jobs", logger.String("job", job.Name()))
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if prev, ok := q.jobs[job.Type()]; ok {
		q.logger.Warn("job type already bound",
			logger.String("type", job.Type()),
			logger.String("job", prev.Name()))
		return
	}
	q.jobs[job.Type()] = job
	q.logger.Debug("job registered", logger.String("type", job.Type()), logger.String("job", job.Name()))
}

func (q *RedisQueue) job(msgType string) (Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[msgType]
	return j, ok
}

// Start verifies the connection and, in consuming modes, launches the
// workers and the retry promoter.
func (q *RedisQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue already running")
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := q.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.running = true

	if q.mode.consumes() {
		if q.cfg.Reclaim {
			if n, err := q.reclaim(pingCtx); err != nil {
				q.logger.Warn("reclaim in-flight jobs failed", logger.Error(err))
			} else if n > 0 {
				q.logger.Info("reclaimed in-flight jobs", logger.Int("count", n))
			}
		}
		for i := 0; i < q.cfg.Workers; i++ {
			q.wg.Add(1)
			go q.work(ctx, i)
		}
		q.wg.Add(1)
		go q.promote(ctx)
	}

	q.logger.Info("queue started",
		logger.String("mode", q.mode.String()),
		logger.String("prefix", q.prefix),
		logger.Int("workers", q.cfg.Workers),
	)
	return nil
}

// Stop cancels the workers and waits for them until ctx expires. A job
// interrupted by Stop stays in flight and is reclaimed on the next Start.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.logger.Info("queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// PublishMessage encodes payload into an envelope and pushes it onto the
// pending list.
func (q *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	running := q.running
	_, bound := q.jobs[msgType]
	q.mu.RUnlock()

	if !running {
		return ErrNotRunning
	}
	if q.mode.consumes() && !bound {
		return fmt.Errorf("no job bound to %q", msgType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    body,
		EnqueuedAt: q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.keys.pending, data).Err(); err != nil {
		return fmt.Errorf("push %s: %w", msgType, err)
	}
	return nil
}

func (q *RedisQueue) work(ctx context.Context, id int) {
	defer q.wg.Done()
	for ctx.Err() == nil {
		raw, err := q.client.BLMove(ctx, q.keys.pending, q.keys.inflight, "RIGHT", "LEFT", q.cfg.PollInterval).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.observer.RecordError("queue_dequeue")
			q.logger.Error("dequeue failed", logger.Int("worker", id), logger.Error(err))
			sleepCtx(ctx, q.cfg.PollInterval)
			continue
		}
		q.dispatch(ctx, raw)
	}
}

func (q *RedisQueue) dispatch(ctx context.Context, raw string) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		q.logger.Error("undecodable envelope dead lettered", logger.Error(err))
		q.settle(raw, func(bg context.Context, p redis.Pipeliner) { p.LPush(bg, q.keys.dead, raw) })
		return
	}
	job, ok := q.job(env.Type)
	if !ok {
		q.fail(raw, env, fmt.Errorf("no job bound to %q", env.Type), true)
		return
	}

	start := time.Now()
	err = job.Handle(ctx, env.Payload)
	q.observer.RecordLatency("queue_"+env.Type, time.Since(start).Seconds())

	switch {
	case err == nil:
		q.settle(raw, nil)
	case ctx.Err() != nil:
		q.logger.Warn("job interrupted by shutdown", logger.String("id", env.ID), logger.String("type", env.Type))
	default:
		q.fail(raw, env, err, false)
	}
}

// fail reschedules env with backoff or, once the retry limit is spent,
// moves it to the dead list.
func (q *RedisQueue) fail(raw string, env *Envelope, cause error, dead bool) {
	env.Attempts++
	env.LastError = cause.Error()
	dead = dead || env.Attempts > q.cfg.RetryLimit

	data, err := json.Marshal(env)
	if err != nil {
		q.logger.Error("encode failed envelope", logger.String("id", env.ID), logger.Error(err))
		data = []byte(raw)
	}

	if dead {
		q.observer.RecordError("queue_dead_letter")
		q.logger.Error("job dead lettered",
			logger.String("id", env.ID),
			logger.String("type", env.Type),
			logger.Int("attempts", env.Attempts),
			logger.Error(cause),
		)
		q.settle(raw, func(bg context.Context, p redis.Pipeliner) { p.LPush(bg, q.keys.dead, data) })
		return
	}

	delay := q.cfg.Backoff(env.Attempts)
	due := q.now().Add(delay)
	q.logger.Warn("job failed, retry scheduled",
		logger.String("id", env.ID),
		logger.String("type", env.Type),
		logger.Int("attempt", env.Attempts),
		logger.Duration("backoff", delay),
		logger.Error(cause),
	)
	q.settle(raw, func(bg context.Context, p redis.Pipeliner) {
		p.ZAdd(bg, q.keys.retry, redis.Z{Score: float64(due.UnixMilli()), Member: data})
	})
}

// settle removes raw from the in-flight list, atomically with then. It runs
// on its own deadline so a finished job is not lost to a shutdown.
func (q *RedisQueue) settle(raw string, then func(ctx context.Context, p redis.Pipeliner)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.keys.inflight, 1, raw)
		if then != nil {
			then(ctx, p)
		}
		return nil
	})
	if err != nil {
		q.observer.RecordError("queue_settle")
		q.logger.Error("settle envelope failed", logger.Error(err))
	}
}

func (q *RedisQueue) promote(ctx context.Context) {
	defer q.wg.Done()
	t := time.NewTicker(q.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := promoteDue.Run(ctx, q.client, []string{q.keys.retry, q.keys.pending},
				q.now().UnixMilli(), promoteBatch).Int()
			if err != nil {
				if ctx.Err() == nil {
					q.logger.Error("promote retries failed", logger.Error(err))
				}
				continue
			}
			if n > 0 {
				q.logger.Debug("retries promoted", logger.Int("count", n))
			}
		}
	}
}

func (q *RedisQueue) reclaim(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.keys.inflight, q.keys.pending, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Stats reports the length of every list of the queue.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	var pending, inflight, dead *redis.IntCmd
	var retry *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		pending = p.LLen(ctx, q.keys.pending)
		inflight = p.LLen(ctx, q.keys.inflight)
		retry = p.ZCard(ctx, q.keys.retry)
		dead = p.LLen(ctx, q.keys.dead)
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{
		Pending:  pending.Val(),
		InFlight: inflight.Val(),
		Retrying: retry.Val(),
		Dead:     dead.Val(),
	}, nil
}

// DeadLetters returns up to limit dead envelopes, newest first. Entries that
// cannot be decoded are returned with only LastError set.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int64) ([]Envelope, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := q.client.LRange(ctx, q.keys.dead, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}
	out := make([]Envelope, 0, len(raws))
	for _, raw := range raws {
		env, err := decodeEnvelope(raw)
		if err != nil {
			out = append(out, Envelope{LastError: err.Error()})
			continue
		}
		out = append(out, *env)
	}
	return out, nil
}

// RequeueDead moves every decodable dead envelope back to pending with a
// fresh retry budget. Undecodable entries are kept.
func (q *RedisQueue) RequeueDead(ctx context.Context) (requeued int, err error) {
	total, err := q.client.LLen(ctx, q.keys.dead).Result()
	if err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	for i := int64(0); i < total; i++ {
		raw, err := q.client.RPop(ctx, q.keys.dead).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return requeued, fmt.Errorf("pop dead letter: %w", err)
		}
		env, derr := decodeEnvelope(raw)
		if derr != nil {
			if err := q.client.LPush(ctx, q.keys.dead, raw).Err(); err != nil {
				return requeued, fmt.Errorf("restore dead letter: %w", err)
			}
			continue
		}
		env.Attempts, env.LastError = 0, ""
		data, _ := json.Marshal(env)
		if err := q.client.LPush(ctx, q.keys.pending, data).Err(); err != nil {
			_ = q.client.RPush(ctx, q.keys.dead, raw).Err()
			return requeued, fmt.Errorf("requeue %s: %w", env.ID, err)
		}
		requeued++
	}
	return requeued, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
