package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"strata/internal/logging"
	"strata/internal/pattern"
	"strata/source"

	"github.com/IBM/sarama"
	"golang.org/x/sync/semaphore"
)

func init() {
	source.Register("kafka", func(driver string) (source.Adapter, error) {
		switch driver {
		case "", "sarama":
			return &SaramaDriver{}, nil
		}
		return nil, fmt.Errorf("kafka: unsupported driver %q", driver)
	})
}

// Index dimensions of a Kafka element. The topic is recorded as its ordinal
// within Config.Topics.
const (
	DimTopic     = "topic"
	DimPartition = "partition"
	DimOffset    = "offset"
)

type claimKey struct {
	topic     string
	partition int32
}

// SaramaDriver consumes URLs from Kafka message values. In e2e mode offsets
// are marked only after the runner acknowledges an element, and at most
// BackPressure.Capacity elements are in flight.
type SaramaDriver struct {
	cfg    Config
	topics map[string]int
	cl     sarama.Client
	group  sarama.ConsumerGroup
	sem    *semaphore.Weighted

	mu       sync.Mutex
	sess     sarama.ConsumerGroupSession
	trackers map[claimKey]*offsetTracker
}

func (d *SaramaDriver) Configure(cfg any) error {
	config, ok := cfg.(Config)
	if !ok {
		return fmt.Errorf("kafka: unexpected config %T", cfg)
	}
	if len(config.Brokers) == 0 || len(config.Topics) == 0 {
		return fmt.Errorf("kafka: brokers and topics are required")
	}
	d.setup(config)

	ver, err := sarama.ParseKafkaVersion(config.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = config.Checkpoint.CommitInt
	if config.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if config.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = config.SASLUser, config.SASLPass
	}
	switch config.StartFrom {
	case "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	if d.cl, err = sarama.NewClient(config.Brokers, sc); err != nil {
		return err
	}
	d.group, err = sarama.NewConsumerGroupFromClient(config.GroupID, d.cl)
	return err
}

func (d *SaramaDriver) setup(config Config) {
	d.cfg = config
	d.topics = make(map[string]int, len(config.Topics))
	for i, t := range config.Topics {
		d.topics[t] = i
	}
	d.sem = semaphore.NewWeighted(config.BackPressure.Capacity)
	d.trackers = make(map[claimKey]*offsetTracker)
}

func (d *SaramaDriver) Run(ctx context.Context, emit source.EmitFunc) error {
	handler := &groupHandler{driver: d, emit: emit}

	go func() {
		for err := range d.group.Errors() {
			logging.L().Warn("sarama-driver: consumer error", "err", err)
		}
	}()

	for {
		if err := d.group.Consume(ctx, d.cfg.Topics, handler); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (d *SaramaDriver) Close() error {
	if d.group != nil {
		_ = d.group.Close()
	}
	if d.cl != nil {
		_ = d.cl.Close()
	}
	return nil
}

// OnAck resolves the element's offset; the partition watermark advances once
// every earlier offset has been acknowledged too.
func (d *SaramaDriver) OnAck(ix pattern.Index) {
	if d.cfg.CommitMode != CommitE2E {
		return
	}
	key, off, ok := d.recordOf(ix)
	if !ok {
		logging.L().Warn("sarama-driver: ack for foreign index", "index", ix.String())
		return
	}
	d.ack(key, off)
}

func (d *SaramaDriver) ack(key claimKey, off int64) {
	d.mu.Lock()
	t, sess := d.trackers[key], d.sess
	d.mu.Unlock()
	if t == nil {
		return
	}
	mark, moved, known := t.resolve(off)
	if !known {
		return
	}
	d.sem.Release(1)
	if moved && sess != nil {
		sess.MarkOffset(key.topic, key.partition, mark+1, "")
		logging.L().Debug("kafka ack released", "topic", key.topic, "partition", key.partition, "offset", mark)
	}
}

func (d *SaramaDriver) tracker(key claimKey) *offsetTracker {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.trackers[key]
	if !ok {
		t = newOffsetTracker()
		d.trackers[key] = t
	}
	return t
}

func (d *SaramaDriver) indexOf(msg *sarama.ConsumerMessage) pattern.Index {
	return pattern.Index{
		{Dimension: pattern.Dimension{Name: DimTopic, Operation: pattern.Merge}, Value: int64(d.topics[msg.Topic])},
		{Dimension: pattern.Dimension{Name: DimPartition, Operation: pattern.Merge}, Value: int64(msg.Partition)},
		{Dimension: pattern.Dimension{Name: DimOffset, Operation: pattern.Concat}, Value: msg.Offset},
	}
}

func (d *SaramaDriver) recordOf(ix pattern.Index) (claimKey, int64, bool) {
	tp, ok1 := ix.Find(DimTopic)
	pp, ok2 := ix.Find(DimPartition)
	op, ok3 := ix.Find(DimOffset)
	if !ok1 || !ok2 || !ok3 || tp.Value < 0 || tp.Value >= int64(len(d.cfg.Topics)) {
		return claimKey{}, 0, false
	}
	return claimKey{topic: d.cfg.Topics[tp.Value], partition: int32(pp.Value)}, op.Value, true
}

type groupHandler struct {
	driver *SaramaDriver
	emit   source.EmitFunc
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.driver.mu.Lock()
	h.driver.sess = sess
	h.driver.mu.Unlock()
	return nil
}

func (h *groupHandler) Cleanup(_ sarama.ConsumerGroupSession) error {
	h.driver.mu.Lock()
	defer h.driver.mu.Unlock()

	dropped := 0
	for _, t := range h.driver.trackers {
		dropped += t.pending()
	}
	if dropped > 0 {
		h.driver.sem.Release(int64(dropped))
		logging.L().Info("sarama-driver: rebalance, dropped unacknowledged offsets", "count", dropped)
	}
	h.driver.trackers = make(map[claimKey]*offsetTracker)
	h.driver.sess = nil
	return nil
}

func (h *groupHandler) ConsumeClaim(
	sess sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handle(sess, msg); err != nil {
				return err
			}
		}
	}
}

func (h *groupHandler) handle(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	d := h.driver
	e2e := d.cfg.CommitMode == CommitE2E
	key := claimKey{topic: msg.Topic, partition: msg.Partition}

	if e2e {
		if err := d.sem.Acquire(sess.Context(), 1); err != nil {
			return err
		}
		d.tracker(key).track(msg.Offset)
	}

	url := strings.TrimSpace(string(msg.Value))
	if url == "" {
		logging.L().Warn("sarama-driver: skipping empty message", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		if e2e {
			d.ack(key, msg.Offset)
		} else {
			sess.MarkMessage(msg, "")
		}
		return nil
	}

	if err := h.emit(source.Element{Key: d.indexOf(msg), Value: url}); err != nil {
		return err
	}
	if !e2e {
		sess.MarkMessage(msg, "")
	}
	return nil
}
