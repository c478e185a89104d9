package kafka

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"strata/internal/keyed"
	"strata/internal/netcdf"
	"strata/internal/pattern"
)

func mockDriver(t *testing.T) (*driver, *mocks.AsyncProducer) {
	t.Helper()
	var mp *mocks.AsyncProducer
	d := &driver{newProducer: func(_ []string, sc *sarama.Config) (sarama.AsyncProducer, error) {
		mp = mocks.NewAsyncProducer(t, sc)
		return mp, nil
	}}
	if err := d.Configure(Config{Brokers: []string{"mock:9092"}, Topic: "datasets", Version: "2.8.0"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return d, mp
}

func TestKafkaSink_PublishesSummaryAndAcks(t *testing.T) {
	d, mp := mockDriver(t)
	acks := make(chan pattern.Index, 1)
	d.BindAck(func(ix pattern.Index) { acks <- ix })

	var published []byte
	mp.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		published = val
		return nil
	})

	ds := netcdf.NewDataset("b.nc")
	if err := ds.AddDim("x", 2); err != nil {
		t.Fatalf("AddDim: %v", err)
	}
	if _, err := ds.AddVar("v", []string{"x"}, []float64{1, 2}); err != nil {
		t.Fatalf("AddVar: %v", err)
	}
	ix := pattern.Index{{Dimension: pattern.Dimension{Name: "time"}, Value: 2}}
	if err := d.Push(keyed.New(ix, ds)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	select {
	case got := <-acks:
		if got.String() != "time=2" {
			t.Fatalf("unexpected ack %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no ack after successful publish")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var m Message
	if err := json.Unmarshal(published, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Index != "time=2" || m.Summary.Name != "b.nc" || m.Summary.Bytes != 16 {
		t.Fatalf("unexpected message %+v", m)
	}
}

func TestKafkaSink_FailedPublishIsNotAcked(t *testing.T) {
	d, mp := mockDriver(t)
	acked := 0
	d.BindAck(func(pattern.Index) { acked++ })
	mp.ExpectInputAndFail(errors.New("broker down"))

	ds := netcdf.NewDataset("c.nc")
	if err := d.Push(keyed.New(pattern.Index{}, ds)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if acked != 0 {
		t.Fatalf("failed publish acked %d times", acked)
	}
}

func TestKafkaSink_RejectsNilDataset(t *testing.T) {
	d, _ := mockDriver(t)
	defer d.Close()
	if err := d.Push(keyed.New(pattern.Index{}, (*netcdf.Dataset)(nil))); err == nil {
		t.Fatal("expected error")
	}
}
