// Package codec provides the order-preserving value encodings used for sort keys.
//
// Encoded scalars and packed composites compare byte-wise in the same order as
// the values they encode, so range and prefix conditions on a string sort key
// stand in for typed comparisons.
package codec

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Delimiter prefixes every component of a packed composite.
const Delimiter = '#'

// DefaultMaxMagnitude is used for numbers that have no configured magnitude.
const DefaultMaxMagnitude int64 = 999999999999

// maxWidth keeps 10^width-1 inside int64.
const maxWidth = 18

var (
	ErrOutOfRange       = errors.New("rddb: number exceeds configured magnitude")
	ErrMalformed        = errors.New("rddb: malformed encoded value")
	ErrNested           = errors.New("rddb: composite components must be scalars")
	ErrDelimiter        = errors.New("rddb: value contains reserved delimiter")
	ErrSchemaMismatch   = errors.New("rddb: composite value does not match schema")
	ErrUnsupportedValue = errors.New("rddb: unsupported value type")
)

// Kind is the scalar kind recorded for a field.
type Kind string

const (
	KindString    Kind = "string"
	KindNumber    Kind = "number"
	KindComposite Kind = "composite"
)

// Component is one named element of a composite value.
type Component struct {
	Name  string
	Value any
}

// Composite is a flat, ordered tuple of scalars.
type Composite []Component

// Get returns the value of the named component.
func (c Composite) Get(name string) (any, bool) {
	for _, comp := range c {
		if comp.Name == name {
			return comp.Value, true
		}
	}
	return nil, false
}

// SchemaComponent names a component and its kind.
type SchemaComponent struct {
	Name string
	Kind Kind
}

// Normalize converts supported Go values to string, int64 or Composite.
func Normalize(v any) (any, Kind, error) {
	switch x := v.(type) {
	case string:
		return x, KindString, nil
	case int64:
		return x, KindNumber, nil
	case int:
		return int64(x), KindNumber, nil
	case int32:
		return int64(x), KindNumber, nil
	case int16:
		return int64(x), KindNumber, nil
	case int8:
		return int64(x), KindNumber, nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, "", fmt.Errorf("%w: %d", ErrOutOfRange, x)
		}
		return int64(x), KindNumber, nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, "", fmt.Errorf("%w: %d", ErrOutOfRange, x)
		}
		return int64(x), KindNumber, nil
	case uint32:
		return int64(x), KindNumber, nil
	case uint16:
		return int64(x), KindNumber, nil
	case uint8:
		return int64(x), KindNumber, nil
	case Composite:
		return x, KindComposite, nil
	case []Component:
		return Composite(x), KindComposite, nil
	}
	return nil, "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

// EncodeScalar encodes n as a fixed-width, sign-prefixed decimal string.
//
// Non-negative values are "0" followed by the zero-padded value. Negative
// values are "-" followed by the zero-padded nine's complement of their
// magnitude, so that larger magnitudes sort first.
func EncodeScalar(n, maxMagnitude int64) (string, error) {
	w, err := width(maxMagnitude)
	if err != nil {
		return "", err
	}
	if n > maxMagnitude || n < -maxMagnitude {
		return "", fmt.Errorf("%w: %d (max %d)", ErrOutOfRange, n, maxMagnitude)
	}
	if n >= 0 {
		return "0" + pad(n, w), nil
	}
	return "-" + pad(ceiling(w)+n, w), nil
}

// DecodeScalar is the inverse of EncodeScalar.
func DecodeScalar(s string) (int64, error) {
	if len(s) < 2 || len(s)-1 > maxWidth {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	digits := s[1:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	switch s[0] {
	case '0':
		return v, nil
	case '-':
		mag := ceiling(len(digits)) - v
		if mag == 0 {
			return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
		return -mag, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
}

// PackComposite serializes components in reverse declaration order, each
// prefixed with the delimiter. Numbers are encoded with maxMagnitude.
func PackComposite(c Composite, maxMagnitude int64) (string, error) {
	var buf strings.Builder
	for i := len(c) - 1; i >= 0; i-- {
		s, err := encodeComponent(c[i], maxMagnitude)
		if err != nil {
			return "", err
		}
		buf.WriteByte(Delimiter)
		buf.WriteString(s)
	}
	return buf.String(), nil
}

// UnpackComposite decodes a packed composite against its schema.
func UnpackComposite(s string, schema []SchemaComponent) (Composite, error) {
	if s == "" || s[0] != Delimiter {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	parts := strings.Split(s[1:], string(Delimiter))
	if len(parts) != len(schema) {
		return nil, fmt.Errorf("%w: %d components, schema has %d", ErrSchemaMismatch, len(parts), len(schema))
	}

	out := make(Composite, len(schema))
	for i, sc := range schema {
		raw := parts[len(parts)-1-i]
		switch sc.Kind {
		case KindNumber:
			n, err := DecodeScalar(raw)
			if err != nil {
				return nil, fmt.Errorf("component %s: %w", sc.Name, err)
			}
			out[i] = Component{Name: sc.Name, Value: n}
		case KindString:
			out[i] = Component{Name: sc.Name, Value: raw}
		default:
			return nil, fmt.Errorf("%w: component %s has kind %q", ErrSchemaMismatch, sc.Name, sc.Kind)
		}
	}
	return out, nil
}

// SchemaOf derives the component schema of a composite value.
func SchemaOf(c Composite) ([]SchemaComponent, error) {
	schema := make([]SchemaComponent, 0, len(c))
	for _, comp := range c {
		if strings.ContainsAny(comp.Name, "#:") || comp.Name == "" {
			return nil, fmt.Errorf("%w: component name %q", ErrDelimiter, comp.Name)
		}
		_, kind, err := Normalize(comp.Value)
		if err != nil {
			return nil, err
		}
		if kind == KindComposite {
			return nil, fmt.Errorf("%w: component %s", ErrNested, comp.Name)
		}
		schema = append(schema, SchemaComponent{Name: comp.Name, Kind: kind})
	}
	return schema, nil
}

// SchemaString renders a schema as "#name:kind" pairs in reverse order,
// mirroring the layout of the packed values it describes.
func SchemaString(schema []SchemaComponent) string {
	var buf strings.Builder
	for i := len(schema) - 1; i >= 0; i-- {
		buf.WriteByte(Delimiter)
		buf.WriteString(schema[i].Name)
		buf.WriteByte(':')
		buf.WriteString(string(schema[i].Kind))
	}
	return buf.String()
}

// ParseSchemaString is the inverse of SchemaString.
func ParseSchemaString(s string) ([]SchemaComponent, error) {
	if s == "" || s[0] != Delimiter {
		return nil, fmt.Errorf("%w: schema %q", ErrMalformed, s)
	}
	parts := strings.Split(s[1:], string(Delimiter))
	schema := make([]SchemaComponent, len(parts))
	for i, p := range parts {
		name, kind, ok := strings.Cut(p, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: schema %q", ErrMalformed, s)
		}
		switch Kind(kind) {
		case KindString, KindNumber:
		default:
			return nil, fmt.Errorf("%w: schema %q", ErrMalformed, s)
		}
		schema[len(parts)-1-i] = SchemaComponent{Name: name, Kind: Kind(kind)}
	}
	return schema, nil
}

// Checksum returns the md5 hex digest stored alongside schema rows.
func Checksum(s string) string {
	h := md5.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

// LooksTyped reports whether s carries a composite or numeric marker and may
// need a type lookup before it can be decoded.
func LooksTyped(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c == Delimiter || c == '-' || (c >= '0' && c <= '9')
}

func encodeComponent(comp Component, maxMagnitude int64) (string, error) {
	v, kind, err := Normalize(comp.Value)
	if err != nil {
		return "", fmt.Errorf("component %s: %w", comp.Name, err)
	}
	switch kind {
	case KindString:
		s := v.(string)
		if strings.IndexByte(s, Delimiter) >= 0 {
			return "", fmt.Errorf("%w: component %s", ErrDelimiter, comp.Name)
		}
		return s, nil
	case KindNumber:
		return EncodeScalar(v.(int64), maxMagnitude)
	}
	return "", fmt.Errorf("%w: component %s", ErrNested, comp.Name)
}

func width(maxMagnitude int64) (int, error) {
	if maxMagnitude <= 0 {
		return 0, fmt.Errorf("%w: magnitude %d", ErrOutOfRange, maxMagnitude)
	}
	w := len(strconv.FormatInt(maxMagnitude, 10))
	if w > maxWidth {
		return 0, fmt.Errorf("%w: magnitude %d", ErrOutOfRange, maxMagnitude)
	}
	return w, nil
}

func ceiling(w int) int64 {
	v := int64(1)
	for i := 0; i < w; i++ {
		v *= 10
	}
	return v - 1
}

func pad(v int64, w int) string {
	s := strconv.FormatInt(v, 10)
	if len(s) >= w {
		return s
	}
	return strings.Repeat("0", w-len(s)) + s
}
