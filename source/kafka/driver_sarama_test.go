package kafka

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"strata/source"

	"github.com/IBM/sarama"
)

type fakeSession struct {
	ctx context.Context

	mu     sync.Mutex
	marked []int64
	msgs   []int64
}

func (f *fakeSession) Claims() map[string][]int32 { return nil }
func (f *fakeSession) MemberID() string           { return "m" }
func (f *fakeSession) GenerationID() int32        { return 1 }
func (f *fakeSession) MarkOffset(_ string, _ int32, offset int64, _ string) {
	f.mu.Lock()
	f.marked = append(f.marked, offset)
	f.mu.Unlock()
}
func (f *fakeSession) Commit()                                  {}
func (f *fakeSession) ResetOffset(string, int32, int64, string) {}
func (f *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg.Offset)
	f.mu.Unlock()
}
func (f *fakeSession) Context() context.Context { return f.ctx }

func newDriver(mode CommitMode) *SaramaDriver {
	cfg := Config{Topics: []string{"urls", "more-urls"}, CommitMode: mode}
	applyDefaults(&cfg)
	d := &SaramaDriver{}
	d.setup(cfg)
	return d
}

func msg(topic string, part int32, off int64, value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: topic, Partition: part, Offset: off, Value: []byte(value)}
}

func TestSaramaDriver_IndexRoundTrip(t *testing.T) {
	d := newDriver(CommitE2E)
	ix := d.indexOf(msg("more-urls", 3, 42, "x"))
	if ix.String() != "topic=1,partition=3,offset=42" {
		t.Fatalf("unexpected index %s", ix)
	}
	key, off, ok := d.recordOf(ix)
	if !ok || key.topic != "more-urls" || key.partition != 3 || off != 42 {
		t.Fatalf("unexpected record %+v %d %v", key, off, ok)
	}
	if _, _, ok := d.recordOf(ix[:2]); ok {
		t.Fatal("index without offset must not resolve")
	}
}

func TestSaramaDriver_E2EMarksContiguousWatermark(t *testing.T) {
	d := newDriver(CommitE2E)
	sess := &fakeSession{ctx: context.Background()}
	var got []source.Element
	h := &groupHandler{driver: d, emit: func(e source.Element) error { got = append(got, e); return nil }}
	if err := h.Setup(sess); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	for off := int64(10); off < 13; off++ {
		if err := h.handle(sess, msg("urls", 0, off, " https://x/a.nc\n")); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if len(got) != 3 || got[0].Value != "https://x/a.nc" {
		t.Fatalf("unexpected elements %+v", got)
	}
	if len(sess.msgs) != 0 {
		t.Fatal("e2e mode must not mark on emit")
	}

	d.OnAck(got[1].Key)
	if len(sess.marked) != 0 {
		t.Fatalf("watermark moved past unacked offset: %v", sess.marked)
	}
	d.OnAck(got[0].Key)
	if len(sess.marked) != 1 || sess.marked[0] != 12 {
		t.Fatalf("want mark 12 (next after 11), got %v", sess.marked)
	}
	d.OnAck(got[0].Key) // duplicate ack is ignored
	d.OnAck(got[2].Key)
	if len(sess.marked) != 2 || sess.marked[1] != 13 {
		t.Fatalf("want mark 13, got %v", sess.marked)
	}

	// all three slots returned to the semaphore
	if !d.sem.TryAcquire(d.cfg.BackPressure.Capacity) {
		t.Fatal("semaphore slots leaked")
	}
}

func TestSaramaDriver_AutoModeMarksOnEmit(t *testing.T) {
	d := newDriver(CommitAuto)
	sess := &fakeSession{ctx: context.Background()}
	h := &groupHandler{driver: d, emit: func(source.Element) error { return nil }}

	if err := h.handle(sess, msg("urls", 1, 5, "file:///tmp/a.nc")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := h.handle(sess, msg("urls", 1, 6, "   ")); err != nil {
		t.Fatalf("handle empty: %v", err)
	}
	if len(sess.msgs) != 2 {
		t.Fatalf("want both messages marked, got %v", sess.msgs)
	}
}

func TestSaramaDriver_BackpressureBlocksUntilAck(t *testing.T) {
	d := newDriver(CommitE2E)
	d.cfg.BackPressure.Capacity = 1
	d.setup(d.cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sess := &fakeSession{ctx: ctx}
	var first source.Element
	h := &groupHandler{driver: d, emit: func(e source.Element) error { first = e; return nil }}
	_ = h.Setup(sess)

	if err := h.handle(sess, msg("urls", 0, 1, "a")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := h.handle(sess, msg("urls", 0, 2, "b")); err == nil {
		t.Fatal("second element should block until the context expires")
	}

	d.OnAck(first.Key)
	if !d.sem.TryAcquire(1) {
		t.Fatal("ack did not release the slot")
	}
}

func TestSaramaDriver_CleanupReleasesPending(t *testing.T) {
	d := newDriver(CommitE2E)
	sess := &fakeSession{ctx: context.Background()}
	h := &groupHandler{driver: d, emit: func(source.Element) error { return nil }}
	_ = h.Setup(sess)
	_ = h.handle(sess, msg("urls", 0, 1, "a"))
	_ = h.handle(sess, msg("urls", 0, 2, "b"))

	if err := h.Cleanup(sess); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !d.sem.TryAcquire(d.cfg.BackPressure.Capacity) {
		t.Fatal("pending slots not released on rebalance")
	}
	d.sem.Release(d.cfg.BackPressure.Capacity)

	// late ack after rebalance is a no-op
	d.ack(claimKey{"urls", 0}, 1)
	if len(sess.marked) != 0 {
		t.Fatalf("late ack marked %v", sess.marked)
	}
}

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kafka.yml")
	if err := os.WriteFile(path, []byte("schema_version: v1\nbrokers: [localhost:9092]\ntopics: [urls]\ncommit_mode: e2e\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("STRATA_KAFKA__GROUP_ID", "ingest")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.GroupID != "ingest" || cfg.CommitMode != CommitE2E || cfg.StartFrom != "newest" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Checkpoint.CommitInt != 5*time.Second || cfg.BackPressure.Capacity != 1_000 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestNewAdapter_Drivers(t *testing.T) {
	if _, err := source.NewAdapter("kafka", "sarama"); err != nil {
		t.Fatalf("sarama: %v", err)
	}
	if _, err := source.NewAdapter("kafka", "kgo"); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
