package store

import (
	"context"
	"fmt"

	"github.com/jacentio/rddb/internal/codec"
)

// Strategy lays out the rows of one entity type and assembles records from them.
type Strategy interface {
	// Layout returns the layout the strategy implements.
	Layout() Layout

	// Type returns the entity type the strategy is bound to.
	Type() *EntityType

	// TableName returns the table holding the type's rows.
	TableName() string

	// Driver returns the driver of a field. "id" is the key driver and "*"
	// the wildcard driver where the layout has one.
	Driver(field string) (Driver, error)

	// KeyDriver returns the primary key driver.
	KeyDriver() Driver

	// StoreEntity writes every row of rec together with any metadata its
	// values need for decoding.
	StoreEntity(ctx context.Context, rec *Record) error

	// LoadEntity assembles a record from one row. by is the driver whose
	// query returned the row, or nil.
	LoadEntity(ctx context.Context, row Row, by Driver) (*Record, error)
}

// strategyEnv is shared by every strategy of a Store.
type strategyEnv struct {
	backend Backend
	meta    *Meta
	cfg     Config
}

type strategyConstructor func(env strategyEnv, et *EntityType) (Strategy, error)

var strategies = map[Layout]strategyConstructor{
	Flat:       newFlatStrategy,
	TimeSeries: newTimeSeriesStrategy,
}

func newStrategy(env strategyEnv, et *EntityType) (Strategy, error) {
	ctor, ok := strategies[et.Layout()]
	if !ok {
		return nil, fmt.Errorf("%w: no strategy for layout %q of %s", ErrConfiguration, et.Layout(), et.Name())
	}
	return ctor(env, et)
}

// baseStrategy holds the drivers of a type and the layout-independent
// parts of writing and assembling records.
type baseStrategy struct {
	strategyEnv
	et        *EntityType
	table     string
	key       Driver
	drivers   map[string]Driver
	timestamp bool
}

func newBaseStrategy(env strategyEnv, et *EntityType, table string, constructors map[Role]driverConstructor) (*baseStrategy, error) {
	s := &baseStrategy{
		strategyEnv: env,
		et:          et,
		table:       table,
		drivers:     make(map[string]Driver, len(et.fields)+2),
	}

	build := func(f FieldDescriptor) (Driver, bool) {
		ctor, ok := constructors[f.Role]
		if !ok {
			return nil, false
		}
		magnitude := f.MaxMagnitude
		if magnitude == 0 {
			magnitude = env.cfg.DefaultMaxMagnitude
		}
		return ctor(driverEnv{
			et:        et,
			field:     f,
			table:     table,
			index:     env.cfg.IndexName,
			magnitude: magnitude,
			meta:      env.meta,
		}), true
	}

	key, ok := build(FieldDescriptor{Name: FieldID, Role: RolePrimaryKey})
	if !ok {
		return nil, fmt.Errorf("%w: no %s driver for layout %s", ErrConfiguration, RolePrimaryKey, et.Layout())
	}
	s.key = key
	s.drivers[FieldID] = key

	for _, f := range et.fields {
		d, ok := build(f)
		if !ok {
			return nil, fmt.Errorf("%w: no %s driver for %s.%s on layout %s", ErrConfiguration, f.Role, et.Name(), f.Name, et.Layout())
		}
		s.drivers[f.Name] = d
	}

	if d, ok := build(FieldDescriptor{Name: FieldWildcard, Role: RoleWildcard}); ok {
		s.drivers[FieldWildcard] = d
	}
	return s, nil
}

func (s *baseStrategy) Type() *EntityType { return s.et }
func (s *baseStrategy) TableName() string { return s.table }
func (s *baseStrategy) KeyDriver() Driver { return s.key }

func (s *baseStrategy) Driver(field string) (Driver, error) {
	d, ok := s.drivers[field]
	if !ok {
		if field == FieldWildcard {
			return nil, fmt.Errorf("%w: %s layout of %s has no wildcard", ErrValidation, s.et.Layout(), s.et.Name())
		}
		return nil, fmt.Errorf("%w: %s has no field %q", ErrValidation, s.et.Name(), field)
	}
	return d, nil
}

// StoreEntity encodes rec, collects its rows and writes them with its metadata.
func (s *baseStrategy) StoreEntity(ctx context.Context, rec *Record) error {
	if err := s.check(rec); err != nil {
		return err
	}

	projection, tasks, err := s.encode(rec)
	if err != nil {
		return err
	}

	rows, err := s.key.RowsToWrite(rec, projection)
	if err != nil {
		return err
	}
	for _, f := range s.et.fields {
		fieldRows, err := s.drivers[f.Name].RowsToWrite(rec, projection)
		if err != nil {
			return err
		}
		rows = append(rows, fieldRows...)
	}

	if ttl := s.et.TTL(); ttl > 0 {
		exp := expiry(ttl)
		for _, row := range rows {
			row[AttrTTL] = exp
		}
	}

	return s.write(ctx, rows, tasks)
}

func (s *baseStrategy) check(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrValidation)
	}
	if rec.Type != s.et {
		return fmt.Errorf("%w: record is not a %s", ErrValidation, s.et.Name())
	}
	if rec.ID == "" {
		return fmt.Errorf("%w: %s record has no id", ErrValidation, s.et.Name())
	}
	if s.timestamp && rec.Timestamp == 0 {
		return fmt.Errorf("%w: %s record has no timestamp", ErrValidation, s.et.Name())
	}
	for name := range rec.Fields {
		if _, ok := s.et.Field(name); !ok {
			return fmt.Errorf("%w: %s has no field %q", ErrValidation, s.et.Name(), name)
		}
	}
	return nil
}

type metaTask func(ctx context.Context) error

// encode builds the projected columns of rec and the metadata writes they need.
func (s *baseStrategy) encode(rec *Record) (Row, []metaTask, error) {
	projection := make(Row, len(rec.Fields))
	var tasks []metaTask

	for _, f := range s.et.fields {
		value, ok := rec.Fields[f.Name]
		if !ok || value == nil {
			continue
		}
		col, err := s.drivers[f.Name].EncodeValue(value)
		if err != nil {
			return nil, nil, err
		}
		projection[f.Name] = col

		if f.Role == RoleReference {
			continue
		}
		v, kind, err := codec.Normalize(value)
		if err != nil {
			return nil, nil, invalid(f.Name, err)
		}
		name := f.Name
		tasks = append(tasks, func(ctx context.Context) error {
			return s.meta.StoreType(ctx, s.et, name, kind)
		})
		if kind == KindComposite {
			composite := v.(Composite)
			tasks = append(tasks, func(ctx context.Context) error {
				return s.meta.StoreSchema(ctx, s.et, name, composite)
			})
		}
	}
	return projection, tasks, nil
}

// write persists metadata and rows. Unless ConcurrentMetadata is set, the
// metadata is written before any row that depends on it.
func (s *baseStrategy) write(ctx context.Context, rows []Row, tasks []metaTask) error {
	batch := func(ctx context.Context) error {
		if err := s.backend.BatchWrite(ctx, s.table, rows); err != nil {
			return fmt.Errorf("write %s rows: %w", s.et.Name(), err)
		}
		RowsWritten.WithLabelValues(s.table).Add(float64(len(rows)))
		s.cfg.Logger.Debug("stored entity", "type", s.et.Name(), "table", s.table, "rows", len(rows), "metadata", len(tasks))
		return nil
	}

	if s.cfg.ConcurrentMetadata {
		all := append(tasks, batch)
		return fanOut(ctx, s.cfg.MaxConcurrency, len(all), func(ctx context.Context, i int) error {
			return all[i](ctx)
		})
	}

	err := fanOut(ctx, s.cfg.MaxConcurrency, len(tasks), func(ctx context.Context, i int) error {
		return tasks[i](ctx)
	})
	if err != nil {
		return err
	}
	return batch(ctx)
}

// assemble decodes the projected columns of row into rec, together with the
// value carried in the keys of an index row returned by by.
func (s *baseStrategy) assemble(ctx context.Context, rec *Record, row Row, by Driver) error {
	type decoded struct {
		name  string
		value any
		ok    bool
	}
	var tasks []func(ctx context.Context) (decoded, error)

	for _, f := range s.et.fields {
		if _, present := row[f.Name]; !present {
			continue
		}
		d := s.drivers[f.Name]
		tasks = append(tasks, func(ctx context.Context) (decoded, error) {
			v, ok, err := d.DecodeValue(ctx, row)
			return decoded{name: d.Field(), value: v, ok: ok}, err
		})
	}
	if by != nil && by.Role() != RolePrimaryKey && by.Role() != RoleWildcard {
		tasks = append(tasks, func(ctx context.Context) (decoded, error) {
			v, ok, err := by.ExtractKeyValue(ctx, row)
			return decoded{name: by.Field(), value: v, ok: ok}, err
		})
	}

	results := make([]decoded, len(tasks))
	err := fanOut(ctx, s.cfg.MaxConcurrency, len(tasks), func(ctx context.Context, i int) error {
		r, err := tasks[i](ctx)
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})
	if err != nil {
		return err
	}

	for _, r := range results {
		if r.ok {
			rec.Fields[r.name] = r.value
		}
	}
	return nil
}
