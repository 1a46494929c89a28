package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/rddb/internal/codec"
	"github.com/jacentio/rddb/internal/keys"
)

// flatKeyDriver addresses the root row of a flat record.
type flatKeyDriver struct {
	baseDriver
}

func newFlatKeyDriver(env driverEnv) Driver {
	return &flatKeyDriver{baseDriver{env}}
}

func (d *flatKeyDriver) Equals(value any) ([]QueryInput, error) {
	id, ok := value.(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: %s id must be a non-empty string", ErrValidation, d.et.Name())
	}
	return []QueryInput{{
		TableName:        d.table,
		PartitionKey:     AttrPK,
		PartitionValue:   attrS(keys.RootPK(d.et.Name(), id)),
		SortKey:          AttrSK,
		SortOp:           SortEqual,
		SortValues:       []types.AttributeValue{attrS(keys.RootSK(d.et.Name()))},
		Limit:            1,
		ScanIndexForward: aws.Bool(false),
	}}, nil
}

// RowsToWrite returns the root row, which carries every projected column.
func (d *flatKeyDriver) RowsToWrite(rec *Record, projection Row) ([]Row, error) {
	row := projection.Clone()
	row[AttrPK] = attrS(keys.RootPK(d.et.Name(), rec.ID))
	row[AttrSK] = attrS(keys.RootSK(d.et.Name()))
	row[AttrData] = attrS(keys.Nil)
	return []Row{row}, nil
}

func (d *flatKeyDriver) ExtractKeyValue(_ context.Context, row Row) (any, bool, error) {
	pk, _ := row.String(AttrPK)
	id, ok := keys.IDFromPK(d.et.Name(), pk)
	if !ok {
		return nil, false, fmt.Errorf("%w: row %q does not belong to %s", ErrValidation, pk, d.et.Name())
	}
	return id, true, nil
}

// uniqueDriver writes one row whose sort key is the raw value.
type uniqueDriver struct {
	baseDriver
}

func newUniqueDriver(env driverEnv) Driver {
	return &uniqueDriver{baseDriver{env}}
}

func (d *uniqueDriver) Equals(value any) ([]QueryInput, error) {
	s, err := d.uniqueValue(value)
	if err != nil {
		return nil, err
	}
	q := d.indexQuery(s)
	q.SortOp = SortEqual
	q.SortValues = []types.AttributeValue{attrS(keys.Nil)}
	q.Filters = []Filter{{Name: AttrPK, Op: FilterBeginsWith, Value: attrS(keys.RefPrefix(d.et.Name()))}}
	return []QueryInput{q}, nil
}

func (d *uniqueDriver) RowsToWrite(rec *Record, projection Row) ([]Row, error) {
	value, ok := rec.Fields[d.field.Name]
	if !ok || value == nil {
		return nil, nil
	}
	s, err := d.uniqueValue(value)
	if err != nil {
		return nil, err
	}
	row := d.indexRow(rec, projection)
	row[AttrSK] = attrS(s)
	row[AttrData] = attrS(keys.Nil)
	return []Row{row}, nil
}

// ExtractKeyValue reads the raw value back from the sort key. Numbers are
// told apart from numeric-looking strings by the field's recorded kind.
func (d *uniqueDriver) ExtractKeyValue(ctx context.Context, row Row) (any, bool, error) {
	sk, ok := row.String(AttrSK)
	if !ok {
		return nil, false, nil
	}
	if !codec.LooksTyped(sk) {
		return sk, true, nil
	}
	kind, err := d.meta.ResolveType(ctx, d.et, d.field.Name)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s.%s: %w", d.et.Name(), d.field.Name, err)
	}
	if kind != KindNumber {
		return sk, true, nil
	}
	n, err := strconv.ParseInt(sk, 10, 64)
	if err != nil {
		return nil, false, invalid(d.field.Name, fmt.Errorf("%w: %q", codec.ErrMalformed, sk))
	}
	return n, true, nil
}

// uniqueValue renders the sort key of a unique row: the raw value, with
// numbers in plain decimal.
func (d *uniqueDriver) uniqueValue(value any) (string, error) {
	v, kind, err := codec.Normalize(value)
	if err != nil {
		return "", invalid(d.field.Name, err)
	}
	var s string
	switch kind {
	case KindComposite:
		return "", fmt.Errorf("%w: unique field %s cannot hold a composite value", ErrValidation, d.field.Name)
	case KindNumber:
		s = strconv.FormatInt(v.(int64), 10)
	default:
		s = v.(string)
	}
	if s == "" {
		return "", fmt.Errorf("%w: unique field %s is empty", ErrValidation, d.field.Name)
	}
	return s, nil
}

// searchableDriver writes one row in the TYPE:field partition of the index,
// with the encoded value as its data.
type searchableDriver struct {
	baseDriver
}

func newSearchableDriver(env driverEnv) Driver {
	return &searchableDriver{baseDriver{env}}
}

func (d *searchableDriver) Equals(value any) ([]QueryInput, error) {
	s, err := d.encode(value)
	if err != nil {
		return nil, err
	}
	q := d.partition()
	q.SortOp = SortEqual
	q.SortValues = []types.AttributeValue{attrS(s)}
	return []QueryInput{q}, nil
}

func (d *searchableDriver) Match(value any) ([]QueryInput, error) {
	v, kind, err := codec.Normalize(value)
	if err != nil {
		return nil, invalid(d.field.Name, err)
	}
	if kind == KindNumber {
		return nil, fmt.Errorf("%w: match on numeric value of %s", ErrValidation, d.field.Name)
	}
	s, err := d.encode(v)
	if err != nil {
		return nil, err
	}
	q := d.partition()
	q.SortOp = SortBeginsWith
	q.SortValues = []types.AttributeValue{attrS(s)}
	return []QueryInput{q}, nil
}

// Range bounds the encoded value. A signed numeric range that spans zero is
// split into a negative and a non-negative query, in that order.
func (d *searchableDriver) Range(args RangeArgs) ([]QueryInput, error) {
	if args.Start == nil && args.End == nil {
		return nil, fmt.Errorf("%w: range on %s needs a start or an end", ErrValidation, d.field.Name)
	}

	start, startKind, err := d.bound(args.Start)
	if err != nil {
		return nil, err
	}
	end, endKind, err := d.bound(args.End)
	if err != nil {
		return nil, err
	}
	if start != nil && end != nil && startKind != endKind {
		return nil, fmt.Errorf("%w: range on %s mixes %s and %s bounds", ErrValidation, d.field.Name, startKind, endKind)
	}

	if d.field.Signed && (startKind == KindNumber || endKind == KindNumber) {
		return d.signedRange(start, end)
	}

	lo, hi := "", ""
	if start != nil {
		if lo, err = d.encode(start); err != nil {
			return nil, err
		}
	}
	if end != nil {
		if hi, err = d.encode(end); err != nil {
			return nil, err
		}
	}
	if start != nil && end != nil && lo > hi {
		return nil, fmt.Errorf("%w: range on %s has start after end", ErrValidation, d.field.Name)
	}
	return []QueryInput{d.between(lo, hi, start != nil, end != nil)}, nil
}

func (d *searchableDriver) signedRange(start, end any) ([]QueryInput, error) {
	var lo, hi *int64
	if start != nil {
		n := start.(int64)
		lo = &n
	}
	if end != nil {
		n := end.(int64)
		hi = &n
	}
	if lo != nil && hi != nil && *lo > *hi {
		return nil, fmt.Errorf("%w: range on %s has start after end", ErrValidation, d.field.Name)
	}

	enc := func(n int64) (string, error) {
		s, err := codec.EncodeScalar(n, d.magnitude)
		if err != nil {
			return "", invalid(d.field.Name, err)
		}
		return s, nil
	}

	spansZero := (lo == nil || *lo < 0) && (hi == nil || *hi >= 0)
	if !spansZero {
		var encLo, encHi string
		var err error
		if lo != nil {
			if encLo, err = enc(*lo); err != nil {
				return nil, err
			}
		}
		if hi != nil {
			if encHi, err = enc(*hi); err != nil {
				return nil, err
			}
		}
		return []QueryInput{d.between(encLo, encHi, lo != nil, hi != nil)}, nil
	}

	minusOne, err := enc(-1)
	if err != nil {
		return nil, err
	}
	zero, err := enc(0)
	if err != nil {
		return nil, err
	}

	negative := d.between("", minusOne, false, true)
	if lo != nil {
		encLo, err := enc(*lo)
		if err != nil {
			return nil, err
		}
		negative = d.between(encLo, minusOne, true, true)
	}
	positive := d.between(zero, "", true, false)
	if hi != nil {
		encHi, err := enc(*hi)
		if err != nil {
			return nil, err
		}
		positive = d.between(zero, encHi, true, true)
	}
	return []QueryInput{negative, positive}, nil
}

func (d *searchableDriver) bound(v any) (any, Kind, error) {
	if v == nil {
		return nil, "", nil
	}
	n, kind, err := codec.Normalize(v)
	if err != nil {
		return nil, "", invalid(d.field.Name, err)
	}
	return n, kind, nil
}

func (d *searchableDriver) between(lo, hi string, hasLo, hasHi bool) QueryInput {
	q := d.partition()
	switch {
	case hasLo && hasHi:
		q.SortOp = SortBetween
		q.SortValues = []types.AttributeValue{attrS(lo), attrS(hi)}
	case hasLo:
		q.SortOp = SortGreaterEqual
		q.SortValues = []types.AttributeValue{attrS(lo)}
	default:
		q.SortOp = SortLessEqual
		q.SortValues = []types.AttributeValue{attrS(hi)}
	}
	return q
}

func (d *searchableDriver) partition() QueryInput {
	return d.indexQuery(keys.SearchableSK(d.et.Name(), d.field.Name))
}

func (d *searchableDriver) RowsToWrite(rec *Record, projection Row) ([]Row, error) {
	value, ok := rec.Fields[d.field.Name]
	if !ok || value == nil {
		return nil, nil
	}
	s, err := d.encode(value)
	if err != nil {
		return nil, err
	}
	row := d.indexRow(rec, projection)
	row[AttrSK] = attrS(keys.SearchableSK(d.et.Name(), d.field.Name))
	row[AttrData] = attrS(s)
	return []Row{row}, nil
}

func (d *searchableDriver) ExtractKeyValue(ctx context.Context, row Row) (any, bool, error) {
	data, ok := row.String(AttrData)
	if !ok {
		return nil, false, nil
	}
	v, err := d.decode(ctx, data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// referenceDriver writes one row keyed on the target record, so that every
// record pointing at a target can be listed from the index.
type referenceDriver struct {
	baseDriver
}

func newReferenceDriver(env driverEnv) Driver {
	return &referenceDriver{baseDriver{env}}
}

func (d *referenceDriver) Equals(value any) ([]QueryInput, error) {
	id, err := refValue(d.field, value)
	if err != nil {
		return nil, err
	}
	q := d.indexQuery(keys.ReferenceSK(d.field.Target, id))
	q.SortOp = SortBeginsWith
	q.SortValues = []types.AttributeValue{attrS(keys.RefPrefix(d.et.Name()))}
	return []QueryInput{q}, nil
}

func (d *referenceDriver) RowsToWrite(rec *Record, projection Row) ([]Row, error) {
	value, ok := rec.Fields[d.field.Name]
	if !ok || value == nil {
		return nil, nil
	}
	id, err := refValue(d.field, value)
	if err != nil {
		return nil, err
	}
	row := d.indexRow(rec, projection)
	row[AttrSK] = attrS(keys.ReferenceSK(d.field.Target, id))
	row[AttrData] = attrS(keys.RootPK(d.et.Name(), rec.ID))
	return []Row{row}, nil
}

func (d *referenceDriver) ExtractKeyValue(_ context.Context, row Row) (any, bool, error) {
	sk, ok := row.String(AttrSK)
	if !ok {
		return nil, false, nil
	}
	return d.parse(sk)
}

func (d *referenceDriver) EncodeValue(value any) (types.AttributeValue, error) {
	id, err := refValue(d.field, value)
	if err != nil {
		return nil, err
	}
	return attrS(keys.ReferenceSK(d.field.Target, id)), nil
}

func (d *referenceDriver) DecodeValue(_ context.Context, row Row) (any, bool, error) {
	s, ok := row.String(d.field.Name)
	if !ok {
		return nil, false, nil
	}
	return d.parse(s)
}

func (d *referenceDriver) parse(s string) (any, bool, error) {
	prefix := keys.RefPrefix(d.field.Target)
	if !strings.HasPrefix(s, prefix) || len(s) == len(prefix) {
		return nil, false, fmt.Errorf("%w: %s.%s: %q is not a %s reference", ErrValidation, d.et.Name(), d.field.Name, s, d.field.Target)
	}
	return Ref{Type: d.field.Target, ID: s[len(prefix):]}, true, nil
}

// wildcardDriver lists every record of a type through the root rows in the index.
type wildcardDriver struct {
	baseDriver
}

func newWildcardDriver(env driverEnv) Driver {
	return &wildcardDriver{baseDriver{env}}
}

func (d *wildcardDriver) Equals(any) ([]QueryInput, error) {
	q := d.indexQuery(keys.RootSK(d.et.Name()))
	q.Filters = []Filter{{Name: AttrPK, Op: FilterBeginsWith, Value: attrS(keys.RefPrefix(d.et.Name()))}}
	return []QueryInput{q}, nil
}
