package envelope

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/artpar/dataforge/core/data"
	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/metacodec"
	"github.com/artpar/dataforge/domain/names"
)

type sample struct {
	Label  string    `json:"label" codec:"label"`
	Points []float64 `json:"points" codec:"points"`
}

func TestRoundTripFormats(t *testing.T) {
	ctx := context.Background()
	m := meta.NewBuilder().Put("source", "test").Seal()
	want := sample{Label: "x", Points: []float64{1, 2.5}}

	formats := []IOFormat[sample]{JSONFormat[sample](), CBORFormat[sample]()}
	for _, f := range formats {
		t.Run(f.Name(), func(t *testing.T) {
			env, err := ToEnvelope(ctx, data.Static(want, m), f)
			if err != nil {
				t.Fatalf("ToEnvelope: %v", err)
			}
			if !meta.Equal(env.Meta, m) {
				t.Error("envelope lost the data meta")
			}

			got, err := ToData(env, f).Await(ctx)
			if err != nil {
				t.Fatalf("Await: %v", err)
			}
			if got.Label != want.Label || len(got.Points) != 2 || got.Points[1] != 2.5 {
				t.Errorf("got %+v, want %+v", got, want)
			}
		})
	}
}

type countingFormat struct {
	reads atomic.Int32
}

func (f *countingFormat) Name() string { return "counting" }
func (f *countingFormat) Read(b []byte) (string, error) {
	f.reads.Add(1)
	return string(b), nil
}
func (f *countingFormat) Write(v string) ([]byte, error) { return []byte(v), nil }

func TestToDataIsLazy(t *testing.T) {
	f := &countingFormat{}
	d := ToData(Envelope{Meta: meta.Empty, Data: []byte("payload")}, IOFormat[string](f))

	if f.reads.Load() != 0 {
		t.Fatal("payload parsed before Await")
	}
	for i := 0; i < 2; i++ {
		v, err := d.Await(context.Background())
		if err != nil || v != "payload" {
			t.Fatalf("Await = %q, %v", v, err)
		}
	}
	if n := f.reads.Load(); n != 1 {
		t.Errorf("payload parsed %d times, want 1", n)
	}
}

func TestToDataWithoutPayload(t *testing.T) {
	d := ToData(Envelope{Meta: meta.Empty}, JSONFormat[int]())
	if _, err := d.Await(context.Background()); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestToEnvelopePropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := ToEnvelope(context.Background(), data.Failed[int](boom, nil), JSONFormat[int]())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestMetaFormat(t *testing.T) {
	payload := meta.NewBuilder().Put("x.y", 1).Seal()
	f := MetaFormat(metacodec.YAML)

	env, err := ToEnvelope(context.Background(), data.Static(payload, nil), f)
	if err != nil {
		t.Fatal(err)
	}
	back, err := ToData(env, f).Await(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := meta.GetInt(back, names.MustParse("x.y"), 0); v != 1 {
		t.Errorf("x.y = %d, want 1", v)
	}
}
