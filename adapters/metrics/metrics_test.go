package metrics_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/artpar/dataforge/adapters/metrics"
	"github.com/artpar/dataforge/core/data"
	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/names"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m.RequestsTotal == nil || m.ComputationsTotal == nil || m.ConfigChanges == nil {
		t.Fatal("collector has nil metrics")
	}

	// A second collector on the same registry collides.
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	metrics.NewWithRegistry(reg)
}

func TestCollector_CountsComputations(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	ctx := data.WithObserver(context.Background(), m)

	ok := data.New(nil, func(context.Context) (int, error) { return 1, nil })
	bad := data.New(nil, func(context.Context) (int, error) { return 0, errors.New("boom") })
	for i := 0; i < 3; i++ {
		ok.Await(ctx)
		bad.Await(ctx)
	}

	if got := testutil.ToFloat64(m.ComputationsTotal.WithLabelValues("int", "ok")); got != 1 {
		t.Errorf("ok computations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ComputationsTotal.WithLabelValues("int", "error")); got != 1 {
		t.Errorf("failed computations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ComputationsInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}

func TestCollector_WatchConfig(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	cfg := meta.NewConfig()
	stop := m.WatchConfig("app", cfg)

	a := names.MustParse("node.a")
	cfg.Set(a, meta.Value(1))
	cfg.Set(a, meta.Value(2))
	cfg.Remove(a)

	if got := testutil.ToFloat64(m.ConfigChanges.WithLabelValues("app", "update")); got != 1 {
		t.Errorf("updates = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConfigChanges.WithLabelValues("app", "remove")); got != 1 {
		t.Errorf("removes = %v, want 1", got)
	}

	// the intermediate node and node.a
	if got := testutil.ToFloat64(m.ConfigChanges.WithLabelValues("app", "add")); got != 2 {
		t.Errorf("adds = %v, want 2", got)
	}

	stop()
	cfg.Set(a, meta.Value(3))
	if got := testutil.ToFloat64(m.ConfigChanges.WithLabelValues("app", "add")); got != 2 {
		t.Errorf("adds after stop = %v, want 2", got)
	}
}

func TestCollector_RecordReload(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	at := time.Unix(1700000000, 0)

	m.RecordReload(at, nil)
	m.RecordReload(at, errors.New("bad yaml"))

	if got := testutil.ToFloat64(m.ConfigReloads); got != 1 {
		t.Errorf("reloads = %v", got)
	}
	if got := testutil.ToFloat64(m.ConfigReloadErrors); got != 1 {
		t.Errorf("reload errors = %v", got)
	}
	if got := testutil.ToFloat64(m.ConfigLastReload); got != 1700000000 {
		t.Errorf("last reload = %v", got)
	}
}

func TestLabels(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, "2xx"}, {204, "2xx"}, {404, "4xx"}, {503, "5xx"}, {42, "42"},
	}
	for _, tt := range tests {
		if got := metrics.StatusClass(tt.status); got != tt.want {
			t.Errorf("StatusClass(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
	if got := metrics.TypeLabel(reflect.TypeOf(1.5)); got != "float64" {
		t.Errorf("TypeLabel = %q", got)
	}
	if got := metrics.TypeLabel(nil); got != "unknown" {
		t.Errorf("TypeLabel(nil) = %q", got)
	}
}
