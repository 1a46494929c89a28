package codec

import (
	"errors"
	"math"
	"sort"
	"testing"
)

func TestEncodeScalar_Format(t *testing.T) {
	tests := []struct {
		n        int64
		max      int64
		expected string
	}{
		{0, 999, "0000"},
		{5, 999, "0005"},
		{999, 999, "0999"},
		{-1, 999, "-998"},
		{-5, 999, "-994"},
		{-10, 999, "-989"},
		{-999, 999, "-000"},
		{42, 1000, "00042"},
	}

	for _, tt := range tests {
		result, err := EncodeScalar(tt.n, tt.max)
		if err != nil {
			t.Fatalf("EncodeScalar(%d, %d): unexpected error %v", tt.n, tt.max, err)
		}
		if result != tt.expected {
			t.Errorf("EncodeScalar(%d, %d) = %q, want %q", tt.n, tt.max, result, tt.expected)
		}
	}
}

func TestEncodeScalar_OutOfRange(t *testing.T) {
	for _, n := range []int64{1000, -1000} {
		_, err := EncodeScalar(n, 999)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("expected ErrOutOfRange for %d, got %v", n, err)
		}
	}
	if _, err := EncodeScalar(1, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for zero magnitude, got %v", err)
	}
}

func TestScalar_RoundTrip(t *testing.T) {
	const max = 99999
	for n := int64(-max); n <= max; n += 37 {
		enc, err := EncodeScalar(n, max)
		if err != nil {
			t.Fatalf("encode %d: %v", n, err)
		}
		dec, err := DecodeScalar(enc)
		if err != nil {
			t.Fatalf("decode %q: %v", enc, err)
		}
		if dec != n {
			t.Errorf("round trip %d -> %q -> %d", n, enc, dec)
		}
	}
}

func TestScalar_OrderPreserving(t *testing.T) {
	const max = 1000
	values := []int64{-1000, -999, -100, -10, -9, -5, -1, 0, 1, 5, 9, 10, 100, 999, 1000}

	encoded := make([]string, len(values))
	for i, n := range values {
		enc, err := EncodeScalar(n, max)
		if err != nil {
			t.Fatalf("encode %d: %v", n, err)
		}
		encoded[i] = enc
	}

	for i := range values {
		for j := range values {
			if (values[i] < values[j]) != (encoded[i] < encoded[j]) {
				t.Errorf("order mismatch: %d vs %d encoded %q vs %q", values[i], values[j], encoded[i], encoded[j])
			}
		}
	}

	if !sort.StringsAreSorted(encoded) {
		t.Errorf("expected encodings of sorted values to be sorted, got %v", encoded)
	}
}

func TestScalar_NegativeMagnitudesOrder(t *testing.T) {
	// Plain pad-and-sign would give "-010" > "-005"; the complement fixes it.
	a, _ := EncodeScalar(-10, 999)
	b, _ := EncodeScalar(-5, 999)
	if !(a < b) {
		t.Errorf("expected enc(-10) < enc(-5), got %q >= %q", a, b)
	}
}

func TestDecodeScalar_Malformed(t *testing.T) {
	for _, s := range []string{"", "0", "+12", "0a1", "-999", "x000", "0123456789012345678901"} {
		if _, err := DecodeScalar(s); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeScalar(%q): expected ErrMalformed, got %v", s, err)
		}
	}
}

func TestPackComposite_ReverseOrder(t *testing.T) {
	name := Composite{{Name: "first", Value: "Clem"}, {Name: "last", Value: "Fandango"}}

	result, err := PackComposite(name, DefaultMaxMagnitude)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "#Fandango#Clem" {
		t.Errorf("expected '#Fandango#Clem', got %q", result)
	}
}

func TestPackComposite_Numbers(t *testing.T) {
	c := Composite{{Name: "day", Value: 7}, {Name: "year", Value: int64(2024)}}

	result, err := PackComposite(c, 9999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "#02024#00007" {
		t.Errorf("expected '#02024#00007', got %q", result)
	}
}

func TestPackComposite_Rejects(t *testing.T) {
	tests := []struct {
		name string
		c    Composite
		want error
	}{
		{"nested", Composite{{Name: "a", Value: Composite{{Name: "b", Value: "x"}}}}, ErrNested},
		{"delimiter", Composite{{Name: "a", Value: "x#y"}}, ErrDelimiter},
		{"float", Composite{{Name: "a", Value: 1.5}}, ErrUnsupportedValue},
		{"magnitude", Composite{{Name: "a", Value: int64(10000)}}, ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PackComposite(tt.c, 9999)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestComposite_RoundTrip(t *testing.T) {
	c := Composite{
		{Name: "street", Value: "Main St"},
		{Name: "number", Value: int64(-12)},
		{Name: "city", Value: "Leeds"},
	}
	schema, err := SchemaOf(c)
	if err != nil {
		t.Fatalf("SchemaOf: %v", err)
	}

	packed, err := PackComposite(c, DefaultMaxMagnitude)
	if err != nil {
		t.Fatalf("PackComposite: %v", err)
	}
	result, err := UnpackComposite(packed, schema)
	if err != nil {
		t.Fatalf("UnpackComposite: %v", err)
	}

	if len(result) != len(c) {
		t.Fatalf("expected %d components, got %d", len(c), len(result))
	}
	for i := range c {
		if result[i].Name != c[i].Name || result[i].Value != c[i].Value {
			t.Errorf("component %d: expected %v, got %v", i, c[i], result[i])
		}
	}
}

func TestUnpackComposite_SchemaMismatch(t *testing.T) {
	schema := []SchemaComponent{{Name: "first", Kind: KindString}}

	_, err := UnpackComposite("#Fandango#Clem", schema)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestSchemaString_RoundTrip(t *testing.T) {
	schema := []SchemaComponent{{Name: "first", Kind: KindString}, {Name: "age", Kind: KindNumber}}

	s := SchemaString(schema)
	if s != "#age:number#first:string" {
		t.Errorf("expected '#age:number#first:string', got %q", s)
	}

	parsed, err := ParseSchemaString(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed) != 2 || parsed[0] != schema[0] || parsed[1] != schema[1] {
		t.Errorf("expected %v, got %v", schema, parsed)
	}
}

func TestParseSchemaString_Malformed(t *testing.T) {
	for _, s := range []string{"", "first:string", "#first", "#first:float"} {
		if _, err := ParseSchemaString(s); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseSchemaString(%q): expected ErrMalformed, got %v", s, err)
		}
	}
}

func TestChecksum_Deterministic(t *testing.T) {
	a := Checksum("#last:string#first:string")
	b := Checksum("#last:string#first:string")
	if a != b {
		t.Errorf("expected deterministic checksum, got %q and %q", a, b)
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
	if a == Checksum("#first:string") {
		t.Error("expected different schemas to have different checksums")
	}
}

func TestLooksTyped(t *testing.T) {
	tests := []struct {
		s        string
		expected bool
	}{
		{"", false},
		{"hello", false},
		{"#a#b", true},
		{"-998", true},
		{"0005", true},
		{"a@b.com", false},
	}

	for _, tt := range tests {
		if result := LooksTyped(tt.s); result != tt.expected {
			t.Errorf("LooksTyped(%q) = %v, want %v", tt.s, result, tt.expected)
		}
	}
}

func TestNormalize(t *testing.T) {
	v, kind, err := Normalize(7)
	if err != nil || kind != KindNumber || v != int64(7) {
		t.Errorf("expected int64(7) number, got %v %v %v", v, kind, err)
	}
	if _, _, err := Normalize(3.5); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue for float, got %v", err)
	}
	if _, kind, _ := Normalize([]Component{{Name: "a", Value: "b"}}); kind != KindComposite {
		t.Errorf("expected composite kind, got %v", kind)
	}
}

func TestNormalize_Unsigned(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected int64
		err      error
	}{
		{"uint", uint(42), 42, nil},
		{"uint64", uint64(7), 7, nil},
		{"uint64 overflow", uint64(math.MaxInt64) + 1, 0, ErrOutOfRange},
		{"uint8", uint8(255), 255, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, kind, err := Normalize(tt.value)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Errorf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil || kind != KindNumber || v != tt.expected {
				t.Errorf("expected %d number, got %v %v %v", tt.expected, v, kind, err)
			}
		})
	}
}
