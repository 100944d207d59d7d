// Package kafkaconsumer applies mutation events from other instances by invalidating the cached
// state of local sources.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/spatial-entities/internal/core/observability"
	"github.com/mohammed-shakir/spatial-entities/internal/core/spatial"
	"github.com/mohammed-shakir/spatial-entities/internal/invalidation"
	mylog "github.com/mohammed-shakir/spatial-entities/internal/logger"
)

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	dedupe *seqDedupe

	mu      sync.RWMutex
	targets map[string][]spatial.Invalidator

	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
}

func New(cfg Config, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg = cfg.withDefaults()
	return &Consumer{
		cfg:     cfg,
		logger:  logger,
		dedupe:  newSeqDedupe(cfg.DedupeSize),
		targets: make(map[string][]spatial.Invalidator),
		assign:  make(map[int32]struct{}),
	}
}

// Register makes events for layer invalidate inv.
func (c *Consumer) Register(layer string, inv spatial.Invalidator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets[layer] = append(c.targets[layer], inv)
}

// Start consumes until ctx is done. Consume errors are logged and retried.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.cfg.Brokers) == 0 || c.cfg.Topic == "" {
		return errors.New("kafkaconsumer: brokers and topic are required")
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	ctx = mylog.WithComponent(ctx, "kafka_consumer")
	c.logger.InfoContext(ctx, "mutation event consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	h := c.handler()
	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, h); err != nil {
			c.logger.ErrorContext(ctx, "kafka consume error", "err", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "mutation event consumer shutting down")
			return nil
		}
	}
}

func (c *Consumer) handler() *groupHandler {
	return &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			defer c.assignMu.Unlock()
			c.assign = make(map[int32]struct{})
			for _, parts := range sess.Claims() {
				for _, p := range parts {
					c.assign[p] = struct{}{}
				}
			}
			c.assigned.Store(true)
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			defer c.assignMu.Unlock()
			c.assigned.Store(false)
			c.assign = make(map[int32]struct{})
		},
		process: c.ProcessOne,
	}
}

// Readiness reports whether the group has assigned partitions to this member.
func (c *Consumer) Readiness() (ready bool, partitions []int32) {
	if !c.assigned.Load() {
		return false, nil
	}
	c.assignMu.RLock()
	defer c.assignMu.RUnlock()
	for p := range c.assign {
		partitions = append(partitions, p)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
	return true, partitions
}

// ProcessOne applies one message. Malformed events are dropped (returning nil) so a poison message
// cannot stall the partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncEvent("in", "unknown", "decode_error")
		c.logger.WarnContext(ctx, "drop undecodable event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		observability.IncEvent("in", ev.Op, "invalid")
		c.logger.WarnContext(ctx, "drop invalid event", "offset", msg.Offset, "err", err)
		return nil
	}
	if c.cfg.InstanceID != "" && ev.Source == c.cfg.InstanceID {
		observability.IncEvent("in", ev.Op, "own")
		return nil
	}
	if !c.dedupe.shouldApply(ev.Source, ev.Seq) {
		observability.IncEvent("in", ev.Op, "duplicate")
		return nil
	}

	c.mu.RLock()
	targets := c.targets[ev.Layer]
	c.mu.RUnlock()
	for _, t := range targets {
		t.Invalidate()
	}
	result := "applied"
	if len(targets) == 0 {
		result = "unrouted"
	}
	observability.IncEvent("in", ev.Op, result)

	ctx = mylog.WithOp(mylog.WithLayer(ctx, ev.Layer), ev.Op)
	c.logger.DebugContext(ctx, "mutation event",
		"source", ev.Source, "seq", ev.Seq, "ids", len(ev.FeatureIDs), "targets", len(targets))
	return nil
}
