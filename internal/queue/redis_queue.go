package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"playlist-exporter/internal/config"
	"playlist-exporter/internal/telemetry"
)

// Handler processes one delivery and must settle it.
type Handler func(ctx context.Context, d *Delivery)

// RedisQueue is a durable work queue on Redis. Each named queue owns a ready
// list of delivery tags, an in-flight set scored by lease deadline, a
// scheduled set for delayed retries, a hash of message bodies, a hash of
// attempt counts, a hash of lease tokens and a dead-letter list.
type RedisQueue struct {
	client        *redis.Client
	visibilityTTL time.Duration
	heartbeat     time.Duration
	pollInterval  time.Duration
	reclaimBatch  int64
	log           logrus.FieldLogger
	now           func() time.Time
}

// NewClient opens the process-wide Redis connection pool.
func NewClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
}

// NewRedisQueue builds a queue on top of a shared client.
func NewRedisQueue(client *redis.Client, cfg config.Config, log logrus.FieldLogger) *RedisQueue {
	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 30 * time.Second
	}
	poll := cfg.WorkerPollInterval
	if poll == 0 {
		poll = time.Second
	}
	batch := int64(cfg.ReclaimBatchSize)
	if batch == 0 {
		batch = 100
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisQueue{
		client:        client,
		visibilityTTL: visibility,
		heartbeat:     visibility / 3,
		pollInterval:  poll,
		reclaimBatch:  batch,
		log:           log,
		now:           time.Now,
	}
}

type keys struct {
	ready, inflight, scheduled, bodies, attempts, leases, dlq string
}

func keysFor(queueName string) keys {
	prefix := "queue:" + queueName + ":"
	return keys{
		ready:     prefix + "ready",
		inflight:  prefix + "inflight",
		scheduled: prefix + "scheduled",
		bodies:    prefix + "bodies",
		attempts:  prefix + "attempts",
		leases:    prefix + "leases",
		dlq:       prefix + "dlq",
	}
}

// Publish stores body and appends it to the ready list atomically. The
// connection is borrowed from the pool for the duration of the call and always
// returned, including on error.
func (q *RedisQueue) Publish(ctx context.Context, queueName string, body []byte) error {
	k := keysFor(queueName)
	tag := uuid.NewString()

	conn := q.client.Conn()
	defer conn.Close()

	_, err := conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k.bodies, tag, body)
		pipe.RPush(ctx, k.ready, tag)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	return nil
}

// Consume delivers messages to handler one at a time until ctx is cancelled.
// Several consumers may run against the same queue; each message is leased to
// exactly one of them.
func (q *RedisQueue) Consume(ctx context.Context, queueName string, handler Handler) error {
	if handler == nil {
		return errors.New("handler required")
	}
	log := q.log.WithField("queue", queueName)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		got, err := q.ConsumeOnce(ctx, queueName, handler)
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("dequeue failed")
		}
		if got && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// ConsumeOnce runs one maintenance pass and hands at most one message to
// handler. It reports whether a message was delivered.
func (q *RedisQueue) ConsumeOnce(ctx context.Context, queueName string, handler Handler) (bool, error) {
	k := keysFor(queueName)
	now := q.now()

	if _, err := q.moveDue(ctx, k, k.scheduled, now); err != nil {
		return false, fmt.Errorf("promote scheduled: %w", err)
	}
	reclaimed, err := q.moveDue(ctx, k, k.inflight, now)
	if err != nil {
		return false, fmt.Errorf("reclaim expired leases: %w", err)
	}
	if len(reclaimed) > 0 {
		telemetry.LeasesReclaimed.Add(float64(len(reclaimed)))
		q.log.WithFields(logrus.Fields{"queue": queueName, "count": len(reclaimed)}).Info("redelivering expired leases")
	}
	if depth, err := q.Depth(ctx, queueName); err == nil {
		telemetry.QueueDepthGauge.WithLabelValues(queueName).Set(float64(depth))
	}

	d, err := q.dequeue(ctx, queueName, k, now)
	if err != nil || d == nil {
		return false, err
	}

	telemetry.InFlightGauge.WithLabelValues(queueName).Inc()
	defer telemetry.InFlightGauge.WithLabelValues(queueName).Dec()

	stop := q.keepAlive(ctx, d)
	handler(ctx, d)
	stop()
	if !d.Settled() {
		q.log.WithFields(logrus.Fields{"queue": queueName, "tag": d.Tag}).Warn("handler left delivery unsettled, requeueing")
		if err := d.Nack(ctx, 0); err != nil {
			return true, err
		}
	}
	return true, nil
}

// keepAlive extends d's lease every heartbeat interval until the returned
// function is called, so a slow handler does not lose its message to another
// consumer.
func (q *RedisQueue) keepAlive(ctx context.Context, d *Delivery) func() {
	if q.heartbeat <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(q.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if d.Settled() {
					return
				}
				if err := q.extend(ctx, keysFor(d.Queue), d); err != nil {
					q.log.WithFields(logrus.Fields{"queue": d.Queue, "tag": d.Tag}).WithError(err).Warn("lease heartbeat failed")
					if errors.Is(err, ErrLeaseLost) {
						return
					}
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func (q *RedisQueue) dequeue(ctx context.Context, queueName string, k keys, now time.Time) (*Delivery, error) {
	deadline := now.Add(q.visibilityTTL).UnixMilli()
	lease := uuid.NewString()
	res, err := dequeueScript.Run(ctx, q.client, []string{k.ready, k.inflight, k.attempts, k.leases}, deadline, lease).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return nil, fmt.Errorf("unexpected reply from dequeue script: %T", res)
	}
	tag, ok := arr[0].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected tag type from dequeue script: %T", arr[0])
	}
	attempt, _ := arr[1].(int64)

	body, err := q.client.HGet(ctx, k.bodies, tag).Bytes()
	if errors.Is(err, redis.Nil) {
		// Orphaned tag; nothing to deliver.
		return nil, q.forget(ctx, k, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("load body %s: %w", tag, err)
	}

	return &Delivery{
		Tag:     tag,
		Queue:   queueName,
		Body:    body,
		Attempt: int(attempt),
		lease:   lease,
		queue:   q,
	}, nil
}

// moveDue atomically moves members of a deadline-scored set whose score has
// passed onto the tail of the ready list, revoking any lease they held.
func (q *RedisQueue) moveDue(ctx context.Context, k keys, from string, now time.Time) ([]string, error) {
	res, err := moveDueScript.Run(ctx, q.client, []string{from, k.ready, k.leases}, now.UnixMilli(), q.reclaimBatch).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return res, err
}

// leaseResult maps a settle script reply onto ErrLeaseLost.
func leaseResult(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (q *RedisQueue) extend(ctx context.Context, k keys, d *Delivery) error {
	deadline := q.now().Add(q.visibilityTTL).UnixMilli()
	return leaseResult(extendScript.Run(ctx, q.client, []string{k.inflight, k.leases}, d.Tag, d.lease, deadline).Int64())
}

func (q *RedisQueue) ack(ctx context.Context, k keys, d *Delivery) error {
	return leaseResult(ackScript.Run(ctx, q.client, []string{k.inflight, k.bodies, k.attempts, k.leases}, d.Tag, d.lease).Int64())
}

// forget drops a tag whose body is gone.
func (q *RedisQueue) forget(ctx context.Context, k keys, tag string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, k.inflight, tag)
	pipe.LRem(ctx, k.ready, 0, tag)
	pipe.HDel(ctx, k.bodies, tag)
	pipe.HDel(ctx, k.attempts, tag)
	pipe.HDel(ctx, k.leases, tag)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) nack(ctx context.Context, k keys, d *Delivery, delay time.Duration) error {
	var at int64 = -1
	if delay > 0 {
		at = q.now().Add(delay).UnixMilli()
	}
	return leaseResult(nackScript.Run(ctx, q.client, []string{k.inflight, k.ready, k.scheduled, k.leases}, d.Tag, d.lease, at).Int64())
}

func (q *RedisQueue) deadLetter(ctx context.Context, k keys, d *Delivery, reason string) error {
	entry, err := encodeDeadLetter(d, reason, q.now())
	if err != nil {
		return err
	}
	return leaseResult(deadLetterScript.Run(ctx, q.client, []string{k.inflight, k.dlq, k.bodies, k.attempts, k.leases}, d.Tag, d.lease, entry).Int64())
}

// Depth returns the number of messages waiting in the ready list.
func (q *RedisQueue) Depth(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, keysFor(queueName).ready).Result()
}

// InFlight returns the number of leased, unsettled messages.
func (q *RedisQueue) InFlight(ctx context.Context, queueName string) (int64, error) {
	return q.client.ZCard(ctx, keysFor(queueName).inflight).Result()
}

// Scheduled returns the number of messages waiting for a delayed retry.
func (q *RedisQueue) Scheduled(ctx context.Context, queueName string) (int64, error) {
	return q.client.ZCard(ctx, keysFor(queueName).scheduled).Result()
}

// Pending counts stored bodies that have not been settled yet.
func (q *RedisQueue) Pending(ctx context.Context, queueName string) (int64, error) {
	return q.client.HLen(ctx, keysFor(queueName).bodies).Result()
}

// DeadLetters reads up to count dead-lettered entries, oldest first.
func (q *RedisQueue) DeadLetters(ctx context.Context, queueName string, count int64) ([]DeadLetter, error) {
	raw, err := q.client.LRange(ctx, keysFor(queueName).dlq, 0, count-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(raw))
	for _, r := range raw {
		dl, err := decodeDeadLetter(r)
		if err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, nil
}

// Ping checks broker reachability.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

var dequeueScript = redis.NewScript(`
local tag = redis.call('LPOP', KEYS[1])
if not tag then
  return nil
end
redis.call('ZADD', KEYS[2], ARGV[1], tag)
redis.call('HSET', KEYS[4], tag, ARGV[2])
local attempt = redis.call('HINCRBY', KEYS[3], tag, 1)
return {tag, attempt}
`)

var moveDueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, tag in ipairs(due) do
  redis.call('ZREM', KEYS[1], tag)
  redis.call('HDEL', KEYS[3], tag)
  redis.call('RPUSH', KEYS[2], tag)
end
return due
`)

// The settle scripts act only while ARGV[2] is still the tag's lease token.

var extendScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('ZADD', KEYS[1], 'XX', ARGV[3], ARGV[1])
return 1
`)

var ackScript = redis.NewScript(`
if redis.call('HGET', KEYS[4], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
return 1
`)

var nackScript = redis.NewScript(`
if redis.call('HGET', KEYS[4], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
local at = tonumber(ARGV[3])
if at < 0 then
  redis.call('RPUSH', KEYS[2], ARGV[1])
else
  redis.call('ZADD', KEYS[3], at, ARGV[1])
end
return 1
`)

var deadLetterScript = redis.NewScript(`
if redis.call('HGET', KEYS[5], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('RPUSH', KEYS[2], ARGV[3])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
redis.call('HDEL', KEYS[5], ARGV[1])
return 1
`)
