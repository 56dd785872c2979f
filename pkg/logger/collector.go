package logger

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Publisher ships a batch of aggregated entries. *kafka.Producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	// TimeInterval is the longest an entry waits before it is published.
	TimeInterval time.Duration
	// CountThreshold publishes early once this many distinct entries are held.
	CountThreshold int
	Topic          string
	Publisher      Publisher
	// PublishTimeout bounds a single PublishMessage call.
	PublishTimeout time.Duration
}

// AggregatedLogEntry counts repeats of one log site. Fields are those of the
// latest occurrence.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds repeated error logs into one entry per site (level,
// component, message and caller) and publishes the entries in batches from
// a single sender goroutine.
type LogCollector struct {
	cfg     CollectionConfig
	log     *Logger
	now     func() time.Time
	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry
	closed  bool
	batches chan []AggregatedLogEntry
	quit    chan struct{}
	done    sync.WaitGroup
	once    sync.Once
}

// NewLogCollector starts the collector. Publish failures are written to l,
// which must not itself feed this collector.
func NewLogCollector(cfg *CollectionConfig, l *Logger) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		log:     l,
		now:     time.Now,
		entries: make(map[uint64]*AggregatedLogEntry),
		batches: make(chan []AggregatedLogEntry, 8),
		quit:    make(chan struct{}),
	}
	if c.log == nil {
		c.log = NewNop()
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}
	if c.cfg.PublishTimeout <= 0 {
		c.cfg.PublishTimeout = 10 * time.Second
	}
	c.done.Add(2)
	go c.tick()
	go c.send()
	return c
}

func (c *LogCollector) AddLog(level, component, message string, fields map[string]interface{}, caller string) {
	now := c.now()
	key := fingerprint(level, component, message, caller)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		e.Fields = fields
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Component: component,
			Message:   message,
			Caller:    caller,
			Fields:    fields,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	if len(c.entries) >= c.cfg.CountThreshold {
		c.cutLocked()
	}
}

func fingerprint(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

func (c *LogCollector) drainLocked() []AggregatedLogEntry {
	if len(c.entries) == 0 {
		return nil
	}
	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)
	return batch
}

// cutLocked hands the held entries to the sender. When the sender is backed
// up the batch is dropped with a warning.
func (c *LogCollector) cutLocked() {
	if c.closed {
		return
	}
	batch := c.drainLocked()
	if batch == nil {
		return
	}
	select {
	case c.batches <- batch:
	default:
		c.log.Warn("log batch dropped, publisher is behind", Int("entries", len(batch)))
	}
}

func (c *LogCollector) tick() {
	defer c.done.Done()
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.mu.Lock()
			c.cutLocked()
			c.mu.Unlock()
		case <-c.quit:
			c.mu.Lock()
			final := c.drainLocked()
			c.closed = true
			c.mu.Unlock()
			if final != nil {
				c.batches <- final
			}
			close(c.batches)
			return
		}
	}
}

func (c *LogCollector) send() {
	defer c.done.Done()
	for batch := range c.batches {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PublishTimeout)
		err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch)
		cancel()
		if err != nil {
			c.log.Warn("publish log batch failed",
				String("topic", c.cfg.Topic),
				Int("entries", len(batch)),
				Error(err),
			)
		}
	}
}

// Close publishes what is held and waits for the sender to drain.
func (c *LogCollector) Close() {
	c.once.Do(func() {
		close(c.quit)
		c.done.Wait()
	})
}
