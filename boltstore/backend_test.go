package boltstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/rddb/boltstore"
	"github.com/jacentio/rddb/store"
)

func openTest(t *testing.T, path string) *boltstore.Backend {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "test.db")
	}
	b, err := boltstore.Open(path, boltstore.Options{NoSync: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func TestBackend_PartitionQuery(t *testing.T) {
	ctx := context.Background()
	b := openTest(t, "")

	rows := []store.Row{
		{store.AttrPK: s("USER#u1"), store.AttrSK: s("USER"), "email": s("a@b.com")},
		{store.AttrPK: s("USER#u1"), store.AttrSK: s("a@b.com"), store.AttrData: s("$nil")},
		{store.AttrPK: s("USER#u10"), store.AttrSK: s("USER")},
		{store.AttrPK: s("USER#u2"), store.AttrSK: s("USER")},
	}
	if err := b.BatchWrite(ctx, "rddb", rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := b.Query(ctx, store.QueryInput{
		TableName:      "rddb",
		PartitionKey:   store.AttrPK,
		PartitionValue: s("USER#u1"),
		SortKey:        store.AttrSK,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows for USER#u1, got %d", len(out))
	}
	if email, _ := out[0].String("email"); email != "a@b.com" {
		t.Errorf("expected root row first with email, got %v", out[0])
	}
}

func TestBackend_IndexQuery(t *testing.T) {
	ctx := context.Background()
	b := openTest(t, "")

	for _, row := range []store.Row{
		{store.AttrPK: s("USER#u1"), store.AttrSK: s("USER:name"), store.AttrData: s("#Fandango#Clem")},
		{store.AttrPK: s("USER#u2"), store.AttrSK: s("USER:name"), store.AttrData: s("#Fandango#Zed")},
		{store.AttrPK: s("USER#u3"), store.AttrSK: s("USER:name"), store.AttrData: s("#Smith#Clem")},
	} {
		if err := b.PutItem(ctx, "rddb", row); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	out, err := b.Query(ctx, store.QueryInput{
		TableName:      "rddb",
		IndexName:      store.DefaultIndexName,
		PartitionKey:   store.AttrSK,
		PartitionValue: s("USER:name"),
		SortKey:        store.AttrData,
		SortOp:         store.SortBeginsWith,
		SortValues:     []types.AttributeValue{s("#Fandango")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	if pk, _ := out[1].String(store.AttrPK); pk != "USER#u2" {
		t.Errorf("expected USER#u2 second, got %q", pk)
	}
}

func TestBackend_NumericSortKey(t *testing.T) {
	ctx := context.Background()
	b := openTest(t, "")

	for _, ts := range []string{"1000", "200", "30"} {
		if err := b.PutItem(ctx, "rddb-CONTENT", store.Row{store.AttrPK: s("c1"), store.AttrSK: n(ts)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	out, err := b.Query(ctx, store.QueryInput{
		TableName:      "rddb-CONTENT",
		PartitionKey:   store.AttrPK,
		PartitionValue: s("c1"),
		SortKey:        store.AttrSK,
		SortOp:         store.SortBetween,
		SortValues:     []types.AttributeValue{n("100"), n("2000")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	if ts, _ := out[0].Number(store.AttrSK); ts != 200 {
		t.Errorf("expected 200 first, got %d", ts)
	}
}

func TestBackend_MissingTable(t *testing.T) {
	b := openTest(t, "")

	out, err := b.Query(context.Background(), store.QueryInput{
		TableName:      "nothing",
		PartitionKey:   store.AttrPK,
		PartitionValue: s("x"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no rows, got %d", len(out))
	}
}

func TestBackend_RejectsRows(t *testing.T) {
	b := openTest(t, "")

	tests := []struct {
		name string
		row  store.Row
	}{
		{"no pk", store.Row{store.AttrSK: s("USER")}},
		{"no sk", store.Row{store.AttrPK: s("USER#u1")}},
		{"unsupported attribute", store.Row{store.AttrPK: s("USER#u1"), store.AttrSK: s("USER"), "flag": &types.AttributeValueMemberBOOL{Value: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.PutItem(context.Background(), "rddb", tt.row)
			if !errors.Is(err, store.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestBackend_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	b, err := boltstore.Open(path, boltstore.Options{NoSync: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	row := store.Row{store.AttrPK: s("USER#u1"), store.AttrSK: s("USER"), "blob": &types.AttributeValueMemberB{Value: []byte{1, 2, 3}}}
	if err := b.PutItem(ctx, "rddb", row); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b = openTest(t, path)
	out, err := b.Query(ctx, store.QueryInput{TableName: "rddb", PartitionKey: store.AttrPK, PartitionValue: s("USER#u1")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 row, got %d", len(out))
	}
	blob, ok := out[0]["blob"].(*types.AttributeValueMemberB)
	if !ok || len(blob.Value) != 3 || blob.Value[2] != 3 {
		t.Errorf("expected blob to survive reopen, got %v", out[0]["blob"])
	}
}

func TestBackend_WithStore(t *testing.T) {
	ctx := context.Background()
	b := openTest(t, "")

	registry := store.NewRegistry()
	users := registry.MustRegister(store.Define("User", store.Flat,
		store.Unique("email"),
		store.Searchable("balance", store.AsSigned(1000)),
	))
	st, err := store.New(b, store.DefaultConfig(), registry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for id, balance := range map[string]int{"u1": -7, "u2": 4, "u3": 12} {
		rec := users.New(id).Set("email", id+"@example.com").Set("balance", balance)
		if err := st.Save(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	recs, err := st.Query(users).Select("balance").Range(ctx, store.RangeArgs{Start: -10, End: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "u1" || recs[1].ID != "u2" {
		t.Errorf("expected u1 then u2, got %v", recs)
	}
	if recs[0].Int("balance") != -7 {
		t.Errorf("expected balance -7, got %d", recs[0].Int("balance"))
	}

	rec := users.New("u3")
	if err := st.Load(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.String("email") != "u3@example.com" {
		t.Errorf("expected u3 email, got %q", rec.String("email"))
	}
}
