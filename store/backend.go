package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Backend is the sorted key-value store the indexing layer writes to and queries.
//
// Writes are unconditional upserts with no transactionality across rows.
type Backend interface {
	// PutItem writes a single row.
	PutItem(ctx context.Context, table string, row Row) error

	// BatchWrite writes many rows. A failure may leave some rows written.
	BatchWrite(ctx context.Context, table string, rows []Row) error

	// Query returns the rows matching in, ordered by the sort key.
	Query(ctx context.Context, in QueryInput) ([]Row, error)
}

// SortOp is a sort-key condition operator.
type SortOp int

const (
	SortNone SortOp = iota
	SortEqual
	SortBeginsWith
	SortBetween
	SortGreaterEqual
	SortLessEqual
)

// FilterOp is a non-key filter operator.
type FilterOp int

const (
	FilterEqual FilterOp = iota
	FilterBeginsWith
)

// Filter restricts query results on a non-key attribute.
type Filter struct {
	Name  string
	Op    FilterOp
	Value types.AttributeValue
}

// QueryInput defines parameters for querying rows.
type QueryInput struct {
	// TableName is the table to query.
	TableName string

	// IndexName is the optional secondary index to query.
	IndexName string

	// PartitionKey names the hash attribute of the table or index.
	PartitionKey string

	// PartitionValue is matched for equality against PartitionKey.
	PartitionValue types.AttributeValue

	// SortKey names the range attribute of the table or index.
	SortKey string

	// SortOp is the optional condition on SortKey. SortBetween takes two values,
	// every other operator takes one.
	SortOp     SortOp
	SortValues []types.AttributeValue

	// Filters are applied after the key condition.
	Filters []Filter

	// ExcludeExpired drops rows whose ttl has passed.
	ExcludeExpired bool

	// Limit is the maximum number of rows to return (0 = no limit).
	Limit int32

	// ScanIndexForward determines sort order (nil or true = ascending, false = descending).
	ScanIndexForward *bool
}

func (in QueryInput) descending() bool {
	return in.ScanIndexForward != nil && !*in.ScanIndexForward
}

// Validate checks that the sort condition carries the right number of values.
func (in QueryInput) Validate() error {
	if in.TableName == "" || in.PartitionKey == "" || in.PartitionValue == nil {
		return fmt.Errorf("%w: query needs a table and partition key", ErrValidation)
	}
	want := 1
	switch in.SortOp {
	case SortNone:
		want = 0
	case SortBetween:
		want = 2
	}
	if len(in.SortValues) != want {
		return fmt.Errorf("%w: sort condition expects %d values, got %d", ErrValidation, want, len(in.SortValues))
	}
	if in.SortOp != SortNone && in.SortKey == "" {
		return fmt.Errorf("%w: sort condition without sort key", ErrValidation)
	}
	return nil
}
