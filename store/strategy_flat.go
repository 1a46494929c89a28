package store

import (
	"context"
	"fmt"
)

// flatStrategy keeps every row of a record under one partition of the base
// table: the root row plus one row per unique, searchable and reference field.
type flatStrategy struct {
	*baseStrategy
}

func newFlatStrategy(env strategyEnv, et *EntityType) (Strategy, error) {
	base, err := newBaseStrategy(env, et, env.cfg.TableName, flatDrivers)
	if err != nil {
		return nil, err
	}
	return &flatStrategy{base}, nil
}

func (s *flatStrategy) Layout() Layout { return Flat }

// LoadEntity takes the id from the row's partition key, which every row of a
// flat record shares.
func (s *flatStrategy) LoadEntity(ctx context.Context, row Row, by Driver) (*Record, error) {
	id, ok, err := s.key.ExtractKeyValue(ctx, row)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s row has no id", ErrValidation, s.et.Name())
	}
	rec := s.et.New(id.(string))
	if err := s.assemble(ctx, rec, row, by); err != nil {
		return nil, err
	}
	return rec, nil
}
