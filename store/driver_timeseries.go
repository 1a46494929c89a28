package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/rddb/internal/codec"
	"github.com/jacentio/rddb/internal/keys"
)

// timeSeriesKeyDriver addresses rows by id, ordered by timestamp.
type timeSeriesKeyDriver struct {
	baseDriver
}

func newTimeSeriesKeyDriver(env driverEnv) Driver {
	return &timeSeriesKeyDriver{baseDriver{env}}
}

// Equals returns every row of the id, newest first.
func (d *timeSeriesKeyDriver) Equals(value any) ([]QueryInput, error) {
	id, ok := value.(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: %s id must be a non-empty string", ErrValidation, d.et.Name())
	}
	return []QueryInput{{
		TableName:        d.table,
		PartitionKey:     AttrPK,
		PartitionValue:   attrS(id),
		SortKey:          AttrSK,
		ScanIndexForward: aws.Bool(false),
	}}, nil
}

// Range returns the rows of args.ID with a timestamp within bounds, newest first.
func (d *timeSeriesKeyDriver) Range(args RangeArgs) ([]QueryInput, error) {
	if args.ID == "" {
		return nil, fmt.Errorf("%w: %s key range needs an id", ErrValidation, d.et.Name())
	}
	q := QueryInput{
		TableName:        d.table,
		PartitionKey:     AttrPK,
		PartitionValue:   attrS(args.ID),
		SortKey:          AttrSK,
		ScanIndexForward: aws.Bool(false),
	}
	if err := timestampCondition(&q, d.et.Name(), args); err != nil {
		return nil, err
	}
	return []QueryInput{q}, nil
}

// RowsToWrite returns the record's single row.
func (d *timeSeriesKeyDriver) RowsToWrite(rec *Record, projection Row) ([]Row, error) {
	row := projection.Clone()
	row[AttrPK] = attrS(rec.ID)
	row[AttrSK] = attrN(rec.Timestamp)
	row[AttrData] = attrS(keys.Nil)
	return []Row{row}, nil
}

func (d *timeSeriesKeyDriver) ExtractKeyValue(_ context.Context, row Row) (any, bool, error) {
	id, ok := row.String(AttrPK)
	if !ok || id == "" {
		return nil, false, fmt.Errorf("%w: %s row has no id", ErrValidation, d.et.Name())
	}
	return id, true, nil
}

// timeSeriesSearchableDriver queries the secondary index named after the
// field, hashed on the field's column and sorted by timestamp.
type timeSeriesSearchableDriver struct {
	baseDriver
}

func newTimeSeriesSearchableDriver(env driverEnv) Driver {
	return &timeSeriesSearchableDriver{baseDriver{env}}
}

func (d *timeSeriesSearchableDriver) Equals(value any) ([]QueryInput, error) {
	q, err := d.partition(value)
	if err != nil {
		return nil, err
	}
	return []QueryInput{q}, nil
}

// Range returns the records whose field equals args.Value with a timestamp
// within bounds.
func (d *timeSeriesSearchableDriver) Range(args RangeArgs) ([]QueryInput, error) {
	if args.Value == nil {
		return nil, fmt.Errorf("%w: range on %s.%s needs a value", ErrValidation, d.et.Name(), d.field.Name)
	}
	q, err := d.partition(args.Value)
	if err != nil {
		return nil, err
	}
	if err := timestampCondition(&q, d.et.Name(), args); err != nil {
		return nil, err
	}
	return []QueryInput{q}, nil
}

func (d *timeSeriesSearchableDriver) partition(value any) (QueryInput, error) {
	s, err := d.encode(value)
	if err != nil {
		return QueryInput{}, err
	}
	return QueryInput{
		TableName:      d.table,
		IndexName:      d.field.Name,
		PartitionKey:   d.field.Name,
		PartitionValue: attrS(s),
		SortKey:        AttrSK,
	}, nil
}

// timestampCondition sets a sort condition on the numeric timestamp.
func timestampCondition(q *QueryInput, entityType string, args RangeArgs) error {
	start, err := timestampBound(args.Start)
	if err != nil {
		return fmt.Errorf("%s range start: %w", entityType, err)
	}
	end, err := timestampBound(args.End)
	if err != nil {
		return fmt.Errorf("%s range end: %w", entityType, err)
	}

	switch {
	case start != nil && end != nil:
		q.SortOp = SortBetween
		q.SortValues = []types.AttributeValue{start, end}
	case start != nil:
		q.SortOp = SortGreaterEqual
		q.SortValues = []types.AttributeValue{start}
	case end != nil:
		q.SortOp = SortLessEqual
		q.SortValues = []types.AttributeValue{end}
	default:
		return fmt.Errorf("%w: %s range needs a start or an end", ErrValidation, entityType)
	}
	if start != nil && end != nil && compareAttr(start, end) > 0 {
		return fmt.Errorf("%w: %s range has start after end", ErrValidation, entityType)
	}
	return nil
}

func timestampBound(v any) (types.AttributeValue, error) {
	if v == nil {
		return nil, nil
	}
	n, kind, err := codec.Normalize(v)
	if err != nil || kind != KindNumber {
		return nil, fmt.Errorf("%w: timestamp bound must be an integer, got %T", ErrValidation, v)
	}
	return attrN(n.(int64)), nil
}
