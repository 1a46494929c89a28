package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/jacentio/rddb/internal/codec"
	"github.com/jacentio/rddb/internal/keys"
)

// Schema is the component layout of a composite field.
type Schema struct {
	Components []codec.SchemaComponent
	Checksum   string
}

// Names returns the component names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Components))
	for i, c := range s.Components {
		names[i] = c.Name
	}
	return names
}

// Meta is the process-wide schema and type cache backed by metadata rows in
// the base table. Entries are never deleted by the store; the last write wins.
type Meta struct {
	backend Backend
	table   string
	index   string
	logger  *slog.Logger

	schemas *xsync.MapOf[string, Schema]
	kinds   *xsync.MapOf[string, Kind]
	group   singleflight.Group
}

// NewMeta creates a metadata cache over the config's base table.
func NewMeta(backend Backend, cfg Config) *Meta {
	cfg.validate()
	return &Meta{
		backend: backend,
		table:   cfg.TableName,
		index:   cfg.IndexName,
		logger:  cfg.Logger,
		schemas: xsync.NewMapOf[string, Schema](),
		kinds:   xsync.NewMapOf[string, Kind](),
	}
}

// StoreSchema persists the component layout of a composite field value.
// The write is skipped when an identical schema is already cached.
func (m *Meta) StoreSchema(ctx context.Context, et *EntityType, field string, value Composite) error {
	components, err := codec.SchemaOf(value)
	if err != nil {
		return invalid(field, err)
	}
	schemaString := codec.SchemaString(components)
	schema := Schema{Components: components, Checksum: codec.Checksum(schemaString)}

	pk := keys.MetaPK(keys.MetaSchema, et.Name(), field)
	if cached, ok := m.schemas.Load(pk); ok && cached.Checksum == schema.Checksum {
		return nil
	}

	row := Row{
		AttrPK:   attrS(pk),
		AttrSK:   attrS(keys.MetaSK(et.Name())),
		AttrData: attrS(schemaString),
		AttrHash: attrS(schema.Checksum),
	}
	if err := m.backend.PutItem(ctx, m.table, row); err != nil {
		return fmt.Errorf("store schema %s: %w", pk, err)
	}
	m.schemas.Store(pk, schema)
	MetaWrites.WithLabelValues("schema").Inc()
	m.logger.Debug("stored schema", "pk", pk, "schema", schemaString)
	return nil
}

// StoreType persists the scalar kind of a field.
// The write is skipped when the same kind is already cached.
func (m *Meta) StoreType(ctx context.Context, et *EntityType, field string, kind Kind) error {
	pk := keys.MetaPK(keys.MetaType, et.Name(), field)
	if cached, ok := m.kinds.Load(pk); ok && cached == kind {
		return nil
	}

	row := Row{
		AttrPK:   attrS(pk),
		AttrSK:   attrS(keys.MetaSK(et.Name())),
		AttrData: attrS(string(kind)),
	}
	if err := m.backend.PutItem(ctx, m.table, row); err != nil {
		return fmt.Errorf("store type %s: %w", pk, err)
	}
	m.kinds.Store(pk, kind)
	MetaWrites.WithLabelValues("type").Inc()
	m.logger.Debug("stored type", "pk", pk, "kind", kind)
	return nil
}

// ResolveSchema returns the cached schema of a composite field, reading it
// from the store on a miss. Concurrent misses for one field share a read.
func (m *Meta) ResolveSchema(ctx context.Context, et *EntityType, field string) (Schema, error) {
	pk := keys.MetaPK(keys.MetaSchema, et.Name(), field)
	if schema, ok := m.schemas.Load(pk); ok {
		MetaCacheLookups.WithLabelValues("schema", "hit").Inc()
		return schema, nil
	}
	MetaCacheLookups.WithLabelValues("schema", "miss").Inc()

	if err := m.shared(ctx, pk, et.Name()); err != nil {
		return Schema{}, err
	}
	schema, ok := m.schemas.Load(pk)
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrNotFound, pk)
	}
	return schema, nil
}

// ResolveType returns the cached kind of a field, reading it from the store on a miss.
func (m *Meta) ResolveType(ctx context.Context, et *EntityType, field string) (Kind, error) {
	pk := keys.MetaPK(keys.MetaType, et.Name(), field)
	if kind, ok := m.kinds.Load(pk); ok {
		MetaCacheLookups.WithLabelValues("type", "hit").Inc()
		return kind, nil
	}
	MetaCacheLookups.WithLabelValues("type", "miss").Inc()

	if err := m.shared(ctx, pk, et.Name()); err != nil {
		return "", err
	}
	kind, ok := m.kinds.Load(pk)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, pk)
	}
	return kind, nil
}

// FetchAll warms the cache with every metadata row of an entity type in one
// index query. It returns the number of rows applied.
func (m *Meta) FetchAll(ctx context.Context, et *EntityType) (int, error) {
	rows, err := m.backend.Query(ctx, QueryInput{
		TableName:      m.table,
		IndexName:      m.index,
		PartitionKey:   AttrSK,
		PartitionValue: attrS(keys.MetaSK(et.Name())),
		SortKey:        AttrData,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch metadata for %s: %w", et.Name(), err)
	}

	applied := 0
	for _, row := range rows {
		if err := m.Apply(row); err != nil {
			m.logger.Warn("skipping metadata row", "type", et.Name(), "error", err)
			continue
		}
		applied++
	}
	m.logger.Debug("fetched metadata", "type", et.Name(), "rows", applied)
	return applied, nil
}

// Apply caches the contents of a schema or type metadata row.
func (m *Meta) Apply(row Row) error {
	pk, _ := row.String(AttrPK)
	kind, _, _, ok := keys.ParseMetaPK(pk)
	if !ok {
		return fmt.Errorf("%w: %q is not a metadata key", ErrValidation, pk)
	}
	data, ok := row.String(AttrData)
	if !ok {
		return fmt.Errorf("%w: metadata row %s has no data", ErrValidation, pk)
	}

	switch kind {
	case keys.MetaSchema:
		components, err := codec.ParseSchemaString(data)
		if err != nil {
			return fmt.Errorf("metadata row %s: %w", pk, err)
		}
		checksum, ok := row.String(AttrHash)
		if !ok {
			checksum = codec.Checksum(data)
		}
		m.schemas.Store(pk, Schema{Components: components, Checksum: checksum})
	case keys.MetaType:
		k, err := parseKind(data)
		if err != nil {
			return fmt.Errorf("metadata row %s: %w", pk, err)
		}
		m.kinds.Store(pk, k)
	}
	return nil
}

// Forget drops a cached entry by its metadata partition key.
func (m *Meta) Forget(pk string) {
	m.schemas.Delete(pk)
	m.kinds.Delete(pk)
}

// shared runs one store read per key for all concurrent callers. The read is
// detached from the caller's cancellation; each caller still returns as soon
// as its own ctx is done.
func (m *Meta) shared(ctx context.Context, pk, entityType string) error {
	ch := m.group.DoChan(pk, func() (any, error) {
		return nil, m.load(context.WithoutCancel(ctx), pk, entityType)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Meta) load(ctx context.Context, pk, entityType string) error {
	rows, err := m.backend.Query(ctx, QueryInput{
		TableName:      m.table,
		PartitionKey:   AttrPK,
		PartitionValue: attrS(pk),
		SortKey:        AttrSK,
		SortOp:         SortEqual,
		SortValues:     []types.AttributeValue{attrS(keys.MetaSK(entityType))},
		Limit:          1,
	})
	if err != nil {
		return fmt.Errorf("resolve %s: %w", pk, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, pk)
	}
	return m.Apply(rows[0])
}

func parseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindString, KindNumber, KindComposite:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrValidation, s)
}
