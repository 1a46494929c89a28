package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/rddb/internal/codec"
	"github.com/jacentio/rddb/internal/keys"
)

// RangeArgs bounds a range query. A nil Start or End leaves that side open.
type RangeArgs struct {
	// Start and End are inclusive bounds.
	Start any
	End   any

	// ID scopes a time-series key range to one record.
	ID string

	// Value is the indexed value of a time-series searchable range;
	// Start and End then bound the timestamp.
	Value any
}

// Driver builds the query specifications and rows for one field.
type Driver interface {
	// Field returns the field name the driver is bound to.
	Field() string

	// Role returns the field's role.
	Role() Role

	// Equals returns the queries selecting records whose field equals value.
	Equals(value any) ([]QueryInput, error)

	// Match returns the queries selecting records whose encoded value has value as prefix.
	Match(value any) ([]QueryInput, error)

	// Range returns the queries selecting records within args. Results are the
	// concatenation of the queries in order.
	Range(args RangeArgs) ([]QueryInput, error)

	// RowsToWrite returns the rows representing the field. projection holds the
	// encoded columns of every field set on rec.
	RowsToWrite(rec *Record, projection Row) ([]Row, error)

	// ExtractKeyValue recovers the field value carried in the key attributes of
	// a row returned by one of the driver's queries.
	ExtractKeyValue(ctx context.Context, row Row) (any, bool, error)

	// EncodeValue encodes a field value as a projected column.
	EncodeValue(value any) (types.AttributeValue, error)

	// DecodeValue decodes the field's projected column from row.
	DecodeValue(ctx context.Context, row Row) (any, bool, error)
}

// driverEnv is what a driver needs to know about its field and the store.
type driverEnv struct {
	et        *EntityType
	field     FieldDescriptor
	table     string
	index     string
	magnitude int64
	meta      *Meta
}

type driverConstructor func(env driverEnv) Driver

var flatDrivers = map[Role]driverConstructor{
	RolePrimaryKey: newFlatKeyDriver,
	RolePlain:      newPlainDriver,
	RoleUnique:     newUniqueDriver,
	RoleSearchable: newSearchableDriver,
	RoleReference:  newReferenceDriver,
	RoleWildcard:   newWildcardDriver,
}

var timeSeriesDrivers = map[Role]driverConstructor{
	RolePrimaryKey: newTimeSeriesKeyDriver,
	RolePlain:      newPlainDriver,
	RoleSearchable: newTimeSeriesSearchableDriver,
}

// baseDriver rejects every query and writes no rows of its own.
type baseDriver struct {
	driverEnv
}

func (d *baseDriver) Field() string { return d.field.Name }
func (d *baseDriver) Role() Role    { return d.field.Role }

func (d *baseDriver) Equals(any) ([]QueryInput, error) { return nil, d.unsupported("equals") }
func (d *baseDriver) Match(any) ([]QueryInput, error)  { return nil, d.unsupported("match") }
func (d *baseDriver) Range(RangeArgs) ([]QueryInput, error) {
	return nil, d.unsupported("range")
}

func (d *baseDriver) RowsToWrite(*Record, Row) ([]Row, error) { return nil, nil }

func (d *baseDriver) ExtractKeyValue(context.Context, Row) (any, bool, error) {
	return nil, false, nil
}

func (d *baseDriver) EncodeValue(value any) (types.AttributeValue, error) {
	s, err := d.encode(value)
	if err != nil {
		return nil, err
	}
	return attrS(s), nil
}

func (d *baseDriver) DecodeValue(ctx context.Context, row Row) (any, bool, error) {
	s, ok := row.String(d.field.Name)
	if !ok {
		return nil, false, nil
	}
	v, err := d.decode(ctx, s)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (d *baseDriver) unsupported(op string) error {
	return fmt.Errorf("%w: %s on %s field %s.%s", ErrUnsupportedOperation, op, d.field.Role, d.et.Name(), d.field.Name)
}

// encode renders a scalar or composite value in its sortable string form.
func (d *baseDriver) encode(value any) (string, error) {
	v, kind, err := codec.Normalize(value)
	if err != nil {
		return "", invalid(d.field.Name, err)
	}
	switch kind {
	case KindNumber:
		n := v.(int64)
		if n < 0 && d.field.Role == RoleSearchable && !d.field.Signed {
			return "", fmt.Errorf("%w: field %s is unsigned, got %d", ErrValidation, d.field.Name, n)
		}
		s, err := codec.EncodeScalar(n, d.magnitude)
		if err != nil {
			return "", invalid(d.field.Name, err)
		}
		return s, nil
	case KindComposite:
		s, err := codec.PackComposite(v.(Composite), d.magnitude)
		if err != nil {
			return "", invalid(d.field.Name, err)
		}
		return s, nil
	}
	s := v.(string)
	if d.field.Role == RoleSearchable && strings.ContainsRune(s, codec.Delimiter) {
		return "", invalid(d.field.Name, codec.ErrDelimiter)
	}
	return s, nil
}

// decode reverses encode, consulting the type cache for values that carry a
// numeric or composite marker.
func (d *baseDriver) decode(ctx context.Context, s string) (any, error) {
	if !codec.LooksTyped(s) {
		return s, nil
	}
	kind, err := d.meta.ResolveType(ctx, d.et, d.field.Name)
	if err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", d.et.Name(), d.field.Name, err)
	}
	switch kind {
	case KindNumber:
		n, err := codec.DecodeScalar(s)
		if err != nil {
			return nil, invalid(d.field.Name, err)
		}
		return n, nil
	case KindComposite:
		schema, err := d.meta.ResolveSchema(ctx, d.et, d.field.Name)
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", d.et.Name(), d.field.Name, err)
		}
		c, err := codec.UnpackComposite(s, schema.Components)
		if err != nil {
			return nil, invalid(d.field.Name, err)
		}
		return c, nil
	}
	return s, nil
}

// indexRow starts a row owned by rec with the projection of every other field.
func (d *baseDriver) indexRow(rec *Record, projection Row) Row {
	row := make(Row, len(projection)+3)
	for name, v := range projection {
		if name != d.field.Name {
			row[name] = v
		}
	}
	row[AttrPK] = attrS(keys.RootPK(d.et.Name(), rec.ID))
	return row
}

func (d *baseDriver) indexQuery(partition string) QueryInput {
	return QueryInput{
		TableName:      d.table,
		IndexName:      d.index,
		PartitionKey:   AttrSK,
		PartitionValue: attrS(partition),
		SortKey:        AttrData,
	}
}

// plainDriver is bound to unindexed fields. It only encodes and decodes columns.
type plainDriver struct {
	baseDriver
}

func newPlainDriver(env driverEnv) Driver {
	return &plainDriver{baseDriver{env}}
}

func (d *plainDriver) Equals(any) ([]QueryInput, error) { return nil, d.notIndexed() }
func (d *plainDriver) Match(any) ([]QueryInput, error)  { return nil, d.notIndexed() }
func (d *plainDriver) Range(RangeArgs) ([]QueryInput, error) {
	return nil, d.notIndexed()
}

func (d *plainDriver) notIndexed() error {
	return fmt.Errorf("%w: field %s.%s is not indexed", ErrValidation, d.et.Name(), d.field.Name)
}

// refValue extracts a reference id and checks the target type.
func refValue(f FieldDescriptor, value any) (string, error) {
	switch v := value.(type) {
	case Ref:
		if !strings.EqualFold(v.Type, f.Target) {
			return "", fmt.Errorf("%w: field %s references %s, got %s", ErrValidation, f.Name, f.Target, v.Type)
		}
		if v.ID == "" {
			return "", fmt.Errorf("%w: field %s: empty reference id", ErrValidation, f.Name)
		}
		return v.ID, nil
	case *Record:
		if v == nil || v.Type == nil {
			return "", fmt.Errorf("%w: field %s: nil record reference", ErrValidation, f.Name)
		}
		return refValue(f, Ref{Type: v.Type.Name(), ID: v.ID})
	case string:
		if v == "" {
			return "", fmt.Errorf("%w: field %s: empty reference id", ErrValidation, f.Name)
		}
		return v, nil
	}
	return "", fmt.Errorf("%w: field %s: %T is not a reference", ErrValidation, f.Name, value)
}
