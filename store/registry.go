package store

import (
	"fmt"
	"time"

	"github.com/jacentio/rddb/internal/keys"
)

// Layout selects how an entity type's records are laid out in the store.
type Layout string

const (
	// Flat stores records and their index rows in the shared base table.
	Flat Layout = "Flat"

	// TimeSeries stores one row per (id, timestamp) in a per-type table.
	TimeSeries Layout = "TimeSeries"
)

// Role is the indexing role of a field.
type Role int

const (
	RolePlain Role = iota
	RoleUnique
	RoleSearchable
	RoleReference
	RolePrimaryKey
	RoleWildcard
)

func (r Role) String() string {
	switch r {
	case RolePlain:
		return "Plain"
	case RoleUnique:
		return "Unique"
	case RoleSearchable:
		return "Searchable"
	case RoleReference:
		return "Reference"
	case RolePrimaryKey:
		return "PrimaryKey"
	case RoleWildcard:
		return "Wildcard"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Field names with a fixed meaning.
const (
	FieldID       = "id"
	FieldWildcard = "*"
)

var reservedFields = map[string]bool{
	FieldID: true, "timestamp": true,
}

// FieldDescriptor declares the role and options of one field.
type FieldDescriptor struct {
	// Name is the field name, also used as the column name.
	Name string

	// Role is the field's indexing role.
	Role Role

	// Composite marks a searchable field whose values are flat tuples.
	Composite bool

	// Signed marks a searchable numeric field that may hold negative values.
	Signed bool

	// MaxMagnitude bounds numeric values; zero uses Config.DefaultMaxMagnitude.
	MaxMagnitude int64

	// Target is the referenced entity type name (Reference fields only).
	Target string
}

// FieldOption adjusts a FieldDescriptor.
type FieldOption func(*FieldDescriptor)

// AsComposite marks a field as holding composite values.
func AsComposite() FieldOption {
	return func(f *FieldDescriptor) { f.Composite = true }
}

// AsSigned marks a numeric field as signed with the given maximum magnitude.
func AsSigned(maxMagnitude int64) FieldOption {
	return func(f *FieldDescriptor) {
		f.Signed = true
		f.MaxMagnitude = maxMagnitude
	}
}

// WithMaxMagnitude sets the maximum magnitude of an unsigned numeric field.
func WithMaxMagnitude(maxMagnitude int64) FieldOption {
	return func(f *FieldDescriptor) { f.MaxMagnitude = maxMagnitude }
}

// Plain declares an unindexed field stored only as a column.
func Plain(name string) FieldDescriptor {
	return FieldDescriptor{Name: name, Role: RolePlain}
}

// Unique declares a field whose values are indexed by exact match.
func Unique(name string) FieldDescriptor {
	return FieldDescriptor{Name: name, Role: RoleUnique}
}

// Searchable declares a field supporting equality, prefix and range queries.
func Searchable(name string, opts ...FieldOption) FieldDescriptor {
	f := FieldDescriptor{Name: name, Role: RoleSearchable}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Reference declares a field pointing at a record of the target type.
func Reference(name, target string) FieldDescriptor {
	return FieldDescriptor{Name: name, Role: RoleReference, Target: target}
}

// EntityType is the immutable descriptor table of one record type.
type EntityType struct {
	name   string
	layout Layout
	ttl    time.Duration
	fields []FieldDescriptor
	byName map[string]int
}

// Define builds an entity type. It must be registered before use.
func Define(name string, layout Layout, fields ...FieldDescriptor) *EntityType {
	et := &EntityType{
		name:   name,
		layout: layout,
		fields: append([]FieldDescriptor(nil), fields...),
		byName: make(map[string]int, len(fields)),
	}
	for i, f := range et.fields {
		if _, dup := et.byName[f.Name]; !dup {
			et.byName[f.Name] = i
		}
	}
	return et
}

// ExpireAfter sets a TTL applied to every row written for this type.
// It must be called before the type is registered.
func (et *EntityType) ExpireAfter(d time.Duration) *EntityType {
	et.ttl = d
	return et
}

// Name returns the entity type name.
func (et *EntityType) Name() string { return et.name }

// Layout returns the storage layout.
func (et *EntityType) Layout() Layout { return et.layout }

// TTL returns the row expiry, or zero if rows never expire.
func (et *EntityType) TTL() time.Duration { return et.ttl }

// Fields returns the declared fields in declaration order.
func (et *EntityType) Fields() []FieldDescriptor {
	return append([]FieldDescriptor(nil), et.fields...)
}

// Field returns the descriptor of the named field.
func (et *EntityType) Field(name string) (FieldDescriptor, bool) {
	i, ok := et.byName[name]
	if !ok {
		return FieldDescriptor{}, false
	}
	return et.fields[i], true
}

// New creates an empty record of this type.
func (et *EntityType) New(id string) *Record {
	return &Record{Type: et, ID: id, Fields: make(map[string]any)}
}

// NewAt creates an empty time-series record of this type.
func (et *EntityType) NewAt(id string, timestamp int64) *Record {
	rec := et.New(id)
	rec.Timestamp = timestamp
	return rec
}

// Registry holds every known entity type.
type Registry struct {
	types  []*EntityType
	byName map[string]*EntityType
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		types:  []*EntityType{},
		byName: make(map[string]*EntityType),
	}
}

// Register validates and adds an entity type.
// This should be called during init() for each type; reference targets must be
// registered before the types that point at them.
func (r *Registry) Register(et *EntityType) error {
	if err := r.check(et); err != nil {
		return err
	}
	r.types = append(r.types, et)
	r.byName[keys.TypeName(et.name)] = et
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(et *EntityType) *EntityType {
	if err := r.Register(et); err != nil {
		panic(err)
	}
	return et
}

// Lookup returns the entity type with the given name (case-insensitive).
func (r *Registry) Lookup(name string) (*EntityType, bool) {
	et, ok := r.byName[keys.TypeName(name)]
	return et, ok
}

// AllTypes returns all registered types.
func (r *Registry) AllTypes() []*EntityType {
	return r.types
}

// ReferencesTo returns every field, across registered types, that points at target.
func (r *Registry) ReferencesTo(target string) map[*EntityType][]string {
	result := make(map[*EntityType][]string)
	for _, et := range r.types {
		for _, f := range et.fields {
			if f.Role == RoleReference && keys.TypeName(f.Target) == keys.TypeName(target) {
				result[et] = append(result[et], f.Name)
			}
		}
	}
	return result
}

func (r *Registry) check(et *EntityType) error {
	if et == nil || et.name == "" {
		return fmt.Errorf("%w: entity type has no name", ErrConfiguration)
	}
	if keys.HasDelimiter(et.name) {
		return fmt.Errorf("%w: entity type name %q contains a key delimiter", ErrConfiguration, et.name)
	}
	if _, dup := r.byName[keys.TypeName(et.name)]; dup {
		return fmt.Errorf("%w: entity type %s already registered", ErrConfiguration, et.name)
	}
	if et.layout != Flat && et.layout != TimeSeries {
		return fmt.Errorf("%w: entity type %s has unknown layout %q", ErrConfiguration, et.name, et.layout)
	}

	seen := make(map[string]bool, len(et.fields))
	for _, f := range et.fields {
		if f.Name == "" || reservedFields[f.Name] || isReservedAttr(f.Name) || f.Name == FieldWildcard || keys.HasDelimiter(f.Name) {
			return fmt.Errorf("%w: %s: invalid field name %q", ErrConfiguration, et.name, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: %s: duplicate field %q", ErrConfiguration, et.name, f.Name)
		}
		seen[f.Name] = true

		switch f.Role {
		case RolePlain, RoleSearchable:
		case RoleUnique, RoleReference:
			if et.layout == TimeSeries {
				return fmt.Errorf("%w: %s: %s field %q is not allowed on a time-series type", ErrConfiguration, et.name, f.Role, f.Name)
			}
			if f.Composite {
				return fmt.Errorf("%w: %s: %s field %q cannot be composite", ErrConfiguration, et.name, f.Role, f.Name)
			}
		default:
			return fmt.Errorf("%w: %s: field %q has role %s which cannot be declared", ErrConfiguration, et.name, f.Name, f.Role)
		}

		if f.Signed && f.Role != RoleSearchable {
			return fmt.Errorf("%w: %s: only searchable fields can be signed (%q)", ErrConfiguration, et.name, f.Name)
		}
		if f.MaxMagnitude < 0 {
			return fmt.Errorf("%w: %s: negative magnitude on %q", ErrConfiguration, et.name, f.Name)
		}
		if f.Role == RoleReference {
			if f.Target == "" {
				return fmt.Errorf("%w: %s: reference %q has no target", ErrConfiguration, et.name, f.Name)
			}
			target, known := r.byName[keys.TypeName(f.Target)]
			if !known && keys.TypeName(f.Target) != keys.TypeName(et.name) {
				return fmt.Errorf("%w: %s: reference %q targets unregistered type %s", ErrConfiguration, et.name, f.Name, f.Target)
			}
			if known && target.layout != Flat {
				return fmt.Errorf("%w: %s: reference %q targets non-flat type %s", ErrConfiguration, et.name, f.Name, f.Target)
			}
		}
	}
	if et.ttl < 0 {
		return fmt.Errorf("%w: %s: negative TTL", ErrConfiguration, et.name)
	}
	return nil
}
