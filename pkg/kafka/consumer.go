package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"SignalEngine/pkg/logger"
)

// MessageHandler handles the records of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads the registered topics in one consumer group. Records are
// fanned out to worker lanes keyed by (topic, partition); a record's offset
// is committed once it has been handled, dead lettered or dropped.
type Consumer struct {
	cfg     *ConsumerConfig
	logger  *logger.Logger
	metrics *consumerMetrics
	hook    ConsumerHook
	dlq     *kafka.Writer

	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	lanes    []chan kafka.Message

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	stopOnce sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: no brokers")
	}

	c := &Consumer{
		cfg:      cfg,
		logger:   logger.NewNop(),
		metrics:  newConsumerMetrics(metricsRegisterer()),
		hook:     NoopHook{},
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
	}
	if cfg.Logger != nil {
		c.logger = cfg.Logger.Component("kafka_consumer")
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return c, nil
}

// WithConsumerHook installs h around every handler call.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler binds h to its topic. Handlers must be registered before
// Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if c.started {
		c.logger.Warn("handler registered after start ignored", logger.String("topic", h.Topic()))
		return
	}
	if _, dup := c.handlers[h.Topic()]; dup {
		c.logger.Warn("topic already has a handler", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

func (c *Consumer) Start() error {
	if c.started {
		return errors.New("kafka consumer already started")
	}
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	c.started = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.lanes = make([]chan kafka.Message, c.cfg.Workers)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, c.cfg.BufferSize)
		c.wg.Add(1)
		go c.work(ctx, i)
	}

	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			GroupID:     c.cfg.GroupID,
			Topic:       topic,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: c.cfg.startOffset(),
		})
		c.readers[topic] = r
		c.wg.Add(1)
		go c.fetch(ctx, topic, r)
	}

	c.logger.Info("consuming",
		logger.String("group", c.cfg.GroupID),
		logger.Int("topics", len(c.readers)),
		logger.Int("workers", c.cfg.Workers),
	)
	return nil
}

// Stop halts fetching and handling and closes the readers. Records fetched
// but not committed are redelivered to the group.
func (c *Consumer) Stop(ctx context.Context) error {
	if !c.started {
		return nil
	}
	var err error
	c.stopOnce.Do(func() {
		c.cancel()

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.logger.Warn("close reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.logger.Warn("close dlq writer", logger.Error(cerr))
			}
		}
	})
	return err
}

func (c *Consumer) fetch(ctx context.Context, topic string, r *kafka.Reader) {
	defer c.wg.Done()
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch failed", logger.String("topic", topic), logger.Error(err))
			if !sleepCtx(ctx, c.cfg.BackoffMin) {
				return
			}
			continue
		}
		i := lane(km.Topic, km.Partition, len(c.lanes))
		select {
		case c.lanes[i] <- km:
			c.metrics.backlog.WithLabelValues(strconv.Itoa(i)).Set(float64(len(c.lanes[i])))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context, id int) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case km := <-c.lanes[id]:
			c.process(ctx, km)
		}
	}
}

func (c *Consumer) process(ctx context.Context, km kafka.Message) {
	h, ok := c.handlers[km.Topic]
	if !ok {
		return
	}
	start := time.Now()
	attempts, err := c.handle(ctx, h, km)
	c.metrics.duration.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())

	if err != nil && ctx.Err() != nil {
		return
	}

	result := "ok"
	if err != nil {
		fields := []logger.Field{
			logger.String("topic", km.Topic),
			logger.Int("partition", km.Partition),
			logger.Int64("offset", km.Offset),
			logger.Int("attempts", attempts),
			logger.Error(err),
		}
		if c.dlq == nil {
			result = "dropped"
			c.logger.Error("message dropped", fields...)
		} else if derr := c.deadLetter(ctx, km, err, attempts); derr != nil {
			// leave uncommitted so the record is redelivered
			c.logger.Error("dead letter write failed", append(fields, logger.String("dlq_error", derr.Error()))...)
			return
		} else {
			result = "dlq"
			c.logger.Warn("message dead lettered", fields...)
		}
	}

	c.commit(km)
	c.metrics.handled.WithLabelValues(km.Topic, result).Inc()
}

// handle runs h with the hooks, retrying with backoff. Hook errors are not
// retried.
func (c *Consumer) handle(ctx context.Context, h MessageHandler, km kafka.Message) (int, error) {
	for attempt := 1; ; attempt++ {
		hctx, hkm, data, err := c.hook.BeforeHandle(ctx, km.Topic, km, km.Value)
		if hctx == nil {
			hctx = ctx
		}
		if err == nil {
			err = invoke(hctx, h, data)
			safeAfter(c.hook, hctx, km.Topic, hkm, data, err)
			if err == nil {
				return attempt, nil
			}
		}
		safeOnError(c.hook, hctx, km.Topic, hkm, data, err)

		var hookErr *HookError
		if errors.As(err, &hookErr) || attempt > c.cfg.RetryMax {
			return attempt, err
		}
		if !sleepCtx(ctx, backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return attempt, err
		}
	}
}

func invoke(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) deadLetter(ctx context.Context, km kafka.Message, cause error, attempts int) error {
	headers := append([]kafka.Header{}, km.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(km.Topic)},
		kafka.Header{Key: "source_partition", Value: []byte(strconv.Itoa(km.Partition))},
		kafka.Header{Key: "source_offset", Value: []byte(strconv.FormatInt(km.Offset, 10))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
	)
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(wctx, kafka.Message{
		Key:     km.Key,
		Value:   km.Value,
		Headers: headers,
		Time:    time.Now(),
	})
}

func (c *Consumer) commit(km kafka.Message) {
	r := c.readers[km.Topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoff(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.logger.Error("commit failed",
		logger.String("topic", km.Topic),
		logger.Int("partition", km.Partition),
		logger.Int64("offset", km.Offset),
		logger.Error(err),
	)
}

// lane maps a partition to a worker so that its records are handled in
// order.
func lane(topic string, partition, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	_, _ = h.Write([]byte{byte(partition >> 24), byte(partition >> 16), byte(partition >> 8), byte(partition)})
	return int(h.Sum32() % uint32(n))
}

// backoff doubles min per attempt up to max and subtracts up to half of it
// as jitter.
func backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	if half := int64(d / 2); half > 0 {
		d -= time.Duration(rand.Int64N(half))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
