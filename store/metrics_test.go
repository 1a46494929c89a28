package store_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/rddb/store"
)

func TestCollectors_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range store.Collectors() {
		if err := reg.Register(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestRowsWritten_CountsSavedRows(t *testing.T) {
	reg := store.NewRegistry()
	tags := reg.MustRegister(store.Define("Tag", store.Flat, store.Unique("label")))

	s, err := store.New(store.NewMemoryBackend(), store.DefaultConfig(), reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prom := prometheus.NewRegistry()
	prom.MustRegister(store.Collectors()...)
	before := rowsWritten(t, prom)

	if err := s.Save(context.Background(), tags.New("t1").Set("label", "red")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after := rowsWritten(t, prom); after-before != 2 {
		t.Errorf("expected 2 rows written, got %v", after-before)
	}
}

func rowsWritten(t *testing.T, g prometheus.Gatherer) float64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != "rddb_store_rows_written" {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
