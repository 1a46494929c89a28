package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store writes and reads records of registered entity types.
type Store struct {
	backend    Backend
	config     Config
	registry   *Registry
	meta       *Meta
	strategies map[*EntityType]Strategy
}

// New creates a Store over backend for every type in registry.
// Types registered after New are not known to the Store.
func New(backend Backend, config Config, registry *Registry) (*Store, error) {
	config.validate()
	s := &Store{
		backend:    backend,
		config:     config,
		registry:   registry,
		meta:       NewMeta(backend, config),
		strategies: make(map[*EntityType]Strategy),
	}

	env := strategyEnv{backend: backend, meta: s.meta, cfg: config}
	for _, et := range registry.AllTypes() {
		strategy, err := newStrategy(env, et)
		if err != nil {
			return nil, err
		}
		s.strategies[et] = strategy
	}
	return s, nil
}

// Meta returns the schema and type cache.
func (s *Store) Meta() *Meta {
	return s.meta
}

// Registry returns the entity type registry.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Strategy returns the storage strategy of a registered type.
func (s *Store) Strategy(et *EntityType) (Strategy, error) {
	strategy, ok := s.strategies[et]
	if !ok {
		name := "<nil>"
		if et != nil {
			name = et.Name()
		}
		return nil, fmt.Errorf("%w: entity type %s is not registered", ErrConfiguration, name)
	}
	return strategy, nil
}

// Query starts a query over the records of et.
func (s *Store) Query(et *EntityType) *Query {
	strategy, err := s.Strategy(et)
	return &Query{store: s, strategy: strategy, err: err}
}

// Save writes every row of rec. A record without an id gets a random one;
// a time-series record without a timestamp is stamped with the current time
// in milliseconds.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Type == nil {
		return fmt.Errorf("%w: record has no type", ErrValidation)
	}
	strategy, err := s.Strategy(rec.Type)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if strategy.Layout() == TimeSeries && rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	return strategy.StoreEntity(ctx, rec)
}

// Load fills rec from the store by its identity. A time-series record with
// a zero timestamp is loaded from its newest row.
func (s *Store) Load(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Type == nil {
		return fmt.Errorf("%w: record has no type", ErrValidation)
	}
	if rec.ID == "" {
		return fmt.Errorf("%w: %s record has no id", ErrValidation, rec.Type.Name())
	}
	strategy, err := s.Strategy(rec.Type)
	if err != nil {
		return err
	}

	query := s.Query(rec.Type)
	var recs []*Record
	if strategy.Layout() == TimeSeries && rec.Timestamp != 0 {
		recs, err = query.ByIDRange(ctx, rec.ID, rec.Timestamp, rec.Timestamp)
	} else {
		recs, err = query.Select(FieldID).Limit(1).Equals(ctx, rec.ID)
	}
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, rec.Type.Name(), rec.ID)
	}

	rec.Timestamp = recs[0].Timestamp
	rec.Fields = recs[0].Fields
	return nil
}
