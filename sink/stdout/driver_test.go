package stdout

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"strata/internal/keyed"
	"strata/internal/netcdf"
	"strata/internal/pattern"
	"strata/sink"
)

func sample(t *testing.T) *netcdf.Dataset {
	t.Helper()
	ds := netcdf.NewDataset("a.nc")
	if err := ds.AddDim("y", 2); err != nil {
		t.Fatalf("AddDim: %v", err)
	}
	if err := ds.AddDim("x", 3); err != nil {
		t.Fatalf("AddDim: %v", err)
	}
	if _, err := ds.AddVar("t", []string{"y", "x"}, []int16{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("AddVar: %v", err)
	}
	if err := ds.SetAttr("title", "sample"); err != nil {
		t.Fatalf("SetAttr: %v", err)
	}
	return ds
}

func index(v int64) pattern.Index {
	return pattern.Index{{Dimension: pattern.Dimension{Name: "time"}, Value: v}}
}

func TestStdoutSink_PrintsSummaryLine(t *testing.T) {
	var out bytes.Buffer
	s, err := sink.NewAdapter("stdout")
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if err := s.Configure(Config{PrintCounter: true, PrintAttrs: true, Out: &out}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := s.Push(keyed.New(index(4), sample(t))); err != nil {
		t.Fatalf("Push: %v", err)
	}

	got := strings.TrimSpace(out.String())
	want := "[sink 000001] time=4 a.nc CDF-1 dims=x:3,y:2 vars=1 size=12 B loaded title=sample"
	if got != want {
		t.Fatalf("want %q\n got %q", want, got)
	}
}

func TestStdoutSink_AcksEveryElementWithoutBatching(t *testing.T) {
	var acked []string
	d := &driver{}
	d.BindAck(func(ix pattern.Index) { acked = append(acked, ix.String()) })
	if err := d.Configure(Config{Out: &bytes.Buffer{}}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	for i := int64(0); i < 3; i++ {
		if err := d.Push(keyed.New(index(i), sample(t))); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if strings.Join(acked, " ") != "time=0 time=1 time=2" {
		t.Fatalf("unexpected acks %v", acked)
	}
}

func TestStdoutSink_BatchFlushOnSizeAndClose(t *testing.T) {
	var acked int
	d := &driver{}
	d.BindAck(func(pattern.Index) { acked++ })
	if err := d.Configure(Config{BatchSize: 2, Out: &bytes.Buffer{}}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	_ = d.Push(keyed.New(index(0), sample(t)))
	if acked != 0 {
		t.Fatalf("acked before batch filled: %d", acked)
	}
	_ = d.Push(keyed.New(index(1), sample(t)))
	if acked != 2 {
		t.Fatalf("want 2 acks after batch, got %d", acked)
	}
	_ = d.Push(keyed.New(index(2), sample(t)))
	_ = d.Close()
	if acked != 3 {
		t.Fatalf("want pending ack flushed on close, got %d", acked)
	}
}

func TestStdoutSink_TimerFlush(t *testing.T) {
	done := make(chan pattern.Index, 1)
	d := &driver{}
	d.BindAck(func(ix pattern.Index) { done <- ix })
	if err := d.Configure(Config{BatchSize: 10, FlushMS: 5, Out: &bytes.Buffer{}}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	_ = d.Push(keyed.New(index(7), sample(t)))

	select {
	case ix := <-done:
		if ix.String() != "time=7" {
			t.Fatalf("unexpected ack %s", ix)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not flush")
	}
}

func TestStdoutSink_ConfigureRejectsWrongType(t *testing.T) {
	if err := (&driver{}).Configure("nope"); err == nil {
		t.Fatal("expected error")
	}
}
