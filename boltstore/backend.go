// Package boltstore provides a store.Backend on an embedded bbolt file.
//
// Each table is a bucket. Rows are keyed on their (pk, sk) pair, so a query
// on the primary key seeks straight to its partition; secondary index queries
// scan the bucket. Row attributes are encoded with msgpack.
package boltstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/jacentio/rddb/store"
)

var _ store.Backend = (*Backend)(nil)

// keySep separates the partition and sort parts of a row key.
const keySep = 0x00

// Options configures Open.
type Options struct {
	// Timeout bounds waiting for the file lock. Default: 10s
	Timeout time.Duration

	// NoSync skips fsync after each commit. Only use it for tests.
	NoSync bool

	// Logger receives debug output. Default: slog.Default()
	Logger *slog.Logger
}

// Backend implements store.Backend on bbolt.
type Backend struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// Open opens or creates the database file at path.
func Open(path string, opt Options) (*Backend, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = opt.Timeout
	if bopt.Timeout == 0 {
		bopt.Timeout = 10 * time.Second
	}
	bopt.NoSync = opt.NoSync
	if opt.NoSync {
		bopt.NoFreelistSync = true
	}

	db, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("boltstore: %w", err)
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{db: db, logger: logger}, nil
}

// Close releases the database file.
func (b *Backend) Close() error {
	return b.db.Close()
}

// PutItem writes a single row, replacing any row with the same key.
func (b *Backend) PutItem(ctx context.Context, table string, row store.Row) error {
	return b.BatchWrite(ctx, table, []store.Row{row})
}

// BatchWrite writes rows in one transaction; either all rows are written or none.
func (b *Backend) BatchWrite(ctx context.Context, table string, rows []store.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(table))
		if err != nil {
			return fmt.Errorf("boltstore: bucket %s: %w", table, err)
		}
		for _, row := range rows {
			key, err := rowKey(row)
			if err != nil {
				return err
			}
			value, err := encodeRow(row)
			if err != nil {
				return err
			}
			if err := bucket.Put(key, value); err != nil {
				return fmt.Errorf("boltstore: put %s: %w", table, err)
			}
		}
		return nil
	})
}

// Query reads the candidate rows of in and evaluates the query on them.
// A table that was never written is empty.
func (b *Backend) Query(ctx context.Context, in store.QueryInput) ([]store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var prefix []byte
	if in.IndexName == "" && in.PartitionKey == store.AttrPK && in.PartitionValue != nil {
		p, err := keyPart(in.PartitionValue)
		if err != nil {
			return nil, err
		}
		prefix = append(p, keySep)
	}

	var rows []store.Row
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(in.TableName))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		k, v := c.First()
		if prefix != nil {
			k, v = c.Seek(prefix)
		}
		for ; k != nil; k, v = c.Next() {
			if prefix != nil && !bytes.HasPrefix(k, prefix) {
				break
			}
			row, err := decodeRow(v)
			if err != nil {
				return fmt.Errorf("boltstore: row %q: %w", k, err)
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("boltstore query", "table", in.TableName, "index", in.IndexName, "scanned", len(rows), "seek", prefix != nil)
	return store.EvaluateQuery(in, rows), nil
}

// attr is the msgpack form of one attribute value.
type attr struct {
	T string `msgpack:"t"`
	S string `msgpack:"s,omitempty"`
	B []byte `msgpack:"b,omitempty"`
}

func toAttr(v types.AttributeValue) (attr, error) {
	switch x := v.(type) {
	case *types.AttributeValueMemberS:
		return attr{T: "S", S: x.Value}, nil
	case *types.AttributeValueMemberN:
		return attr{T: "N", S: x.Value}, nil
	case *types.AttributeValueMemberB:
		return attr{T: "B", B: x.Value}, nil
	}
	return attr{}, fmt.Errorf("%w: boltstore cannot store %T", store.ErrValidation, v)
}

func (a attr) value() (types.AttributeValue, error) {
	switch a.T {
	case "S":
		return &types.AttributeValueMemberS{Value: a.S}, nil
	case "N":
		return &types.AttributeValueMemberN{Value: a.S}, nil
	case "B":
		return &types.AttributeValueMemberB{Value: append([]byte(nil), a.B...)}, nil
	}
	return nil, fmt.Errorf("unknown attribute kind %q", a.T)
}

func encodeRow(row store.Row) ([]byte, error) {
	m := make(map[string]attr, len(row))
	for name, v := range row {
		a, err := toAttr(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		m[name] = a
	}
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("boltstore: encode row: %w", err)
	}
	return data, nil
}

func decodeRow(data []byte) (store.Row, error) {
	var m map[string]attr
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	row := make(store.Row, len(m))
	for name, a := range m {
		v, err := a.value()
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		row[name] = v
	}
	return row, nil
}

// rowKey renders (pk, sk) so that every row of a partition shares a prefix.
func rowKey(row store.Row) ([]byte, error) {
	pk, ok := row[store.AttrPK]
	if !ok {
		return nil, fmt.Errorf("%w: row has no %s attribute", store.ErrValidation, store.AttrPK)
	}
	sk, ok := row[store.AttrSK]
	if !ok {
		return nil, fmt.Errorf("%w: row has no %s attribute", store.ErrValidation, store.AttrSK)
	}
	p, err := keyPart(pk)
	if err != nil {
		return nil, err
	}
	s, err := keyPart(sk)
	if err != nil {
		return nil, err
	}
	key := append(p, keySep)
	return append(key, s...), nil
}

func keyPart(v types.AttributeValue) ([]byte, error) {
	switch x := v.(type) {
	case *types.AttributeValueMemberS:
		return append([]byte{'S'}, x.Value...), nil
	case *types.AttributeValueMemberN:
		return append([]byte{'N'}, x.Value...), nil
	case *types.AttributeValueMemberB:
		return append([]byte{'B'}, x.Value...), nil
	}
	return nil, fmt.Errorf("%w: key attribute of type %T", store.ErrValidation, v)
}
