package store

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/rddb/internal/codec"
)

// Composite is a flat, ordered tuple of scalar components.
type Composite = codec.Composite

// Component is one named element of a Composite.
type Component = codec.Component

// Kind is the scalar kind recorded for a field.
type Kind = codec.Kind

const (
	KindString    = codec.KindString
	KindNumber    = codec.KindNumber
	KindComposite = codec.KindComposite
)

// Ref identifies a record of another entity type.
type Ref struct {
	Type string
	ID   string
}

// Record is one entity instance.
type Record struct {
	// Type is the record's entity type.
	Type *EntityType

	// ID is the record identity.
	ID string

	// Timestamp is part of the identity of time-series records, in Unix
	// milliseconds. Zero means unset: Store.Save stamps the current time and
	// Store.Load reads the newest row of the id. Epoch zero cannot be stored.
	Timestamp int64

	// Fields maps field names to string, int64, Composite or Ref values.
	Fields map[string]any
}

// Set assigns a field value and returns the record for chaining.
func (r *Record) Set(field string, value any) *Record {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[field] = value
	return r
}

// Get returns a field value.
func (r *Record) Get(field string) (any, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// String returns a string field value.
func (r *Record) String(field string) string {
	s, _ := r.Fields[field].(string)
	return s
}

// Int returns a numeric field value.
func (r *Record) Int(field string) int64 {
	n, _ := r.Fields[field].(int64)
	return n
}

// Composite returns a composite field value.
func (r *Record) Composite(field string) Composite {
	c, _ := r.Fields[field].(Composite)
	return c
}

// Ref returns a reference field value.
func (r *Record) Ref(field string) Ref {
	ref, _ := r.Fields[field].(Ref)
	return ref
}

// Row is one physical item read from or written to the store.
type Row map[string]types.AttributeValue

// Reserved row attributes.
const (
	AttrPK   = "pk"
	AttrSK   = "sk"
	AttrData = "data"
	AttrHash = "hash"
	AttrTTL  = "ttl"
)

// String returns a string attribute.
func (r Row) String(name string) (string, bool) {
	v, ok := r[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return v.Value, true
}

// Number returns a numeric attribute as int64.
func (r Row) Number(name string) (int64, bool) {
	v, ok := r[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Unmarshal decodes the raw row into out using attributevalue struct tags.
func (r Row) Unmarshal(out any) error {
	if err := attributevalue.UnmarshalMap(r, out); err != nil {
		return fmt.Errorf("unmarshal row: %w", err)
	}
	return nil
}

func attrS(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func attrN(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func isReservedAttr(name string) bool {
	switch name {
	case AttrPK, AttrSK, AttrData, AttrHash, AttrTTL:
		return true
	}
	return false
}
