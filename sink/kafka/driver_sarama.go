package kafka

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"strata/internal/config"
	"strata/internal/logging"
	"strata/internal/netcdf"
	"strata/internal/pattern"
	"strata/sink"
)

type Config struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	Acks    int16    `koanf:"required_acks"` // 0,1,-1
	Version string   `koanf:"version"`
}

// LoadConfig merges YAML (if present) with env-vars
// (prefix `STRATA_KAFKA_SINK__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.LoadDriver(path, "STRATA_KAFKA_SINK__", &cfg); err != nil {
		return cfg, err
	}
	if cfg.Topic == "" {
		cfg.Topic = "strata.datasets"
	}
	if cfg.Version == "" {
		cfg.Version = "2.8.0"
	}
	return cfg, nil
}

// Message is the JSON value published for every dataset.
type Message struct {
	Index   string         `json:"index"`
	Summary netcdf.Summary `json:"summary"`
}

type driver struct {
	cfg Config
	p   sarama.AsyncProducer
	ack sink.EmitFn

	newProducer func([]string, *sarama.Config) (sarama.AsyncProducer, error)
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	d.cfg = cfg

	ver, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	if d.newProducer == nil {
		d.newProducer = sarama.NewAsyncProducer
	}
	if d.p, err = d.newProducer(cfg.Brokers, sc); err != nil {
		return err
	}
	d.wg.Add(2)
	go d.drainSuccesses()
	go d.drainErrors()
	return nil
}

func (d *driver) Push(ds sink.Dataset) error {
	if ds.Value == nil {
		return fmt.Errorf("kafka-sink: %s: nil dataset", ds.Key)
	}
	raw, err := json.Marshal(Message{Index: ds.Key.String(), Summary: ds.Value.Summary()})
	if err != nil {
		return err
	}
	d.p.Input() <- &sarama.ProducerMessage{
		Topic:    d.cfg.Topic,
		Key:      sarama.StringEncoder(ds.Key.String()),
		Value:    sarama.ByteEncoder(raw),
		Metadata: ds.Key,
	}
	return nil
}

func (d *driver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.p != nil {
			err = d.p.Close()
		}
		d.wg.Wait()
	})
	return err
}

/* ────────── sink.AckAware ────────── */
func (d *driver) BindAck(fn sink.EmitFn) { d.ack = fn }

func (d *driver) drainSuccesses() {
	defer d.wg.Done()
	for m := range d.p.Successes() {
		if ix, ok := m.Metadata.(pattern.Index); ok && d.ack != nil {
			d.ack(ix)
		}
	}
}

func (d *driver) drainErrors() {
	defer d.wg.Done()
	for e := range d.p.Errors() {
		logging.L().Error("kafka-sink: publish failed", "topic", d.cfg.Topic, "err", e.Err)
	}
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
