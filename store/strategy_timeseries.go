package store

import (
	"context"
	"fmt"

	"github.com/jacentio/rddb/internal/keys"
)

// timeSeriesStrategy writes one row per (id, timestamp) to a table of its own.
type timeSeriesStrategy struct {
	*baseStrategy
}

func newTimeSeriesStrategy(env strategyEnv, et *EntityType) (Strategy, error) {
	base, err := newBaseStrategy(env, et, keys.TimeSeriesTable(env.cfg.TableName, et.Name()), timeSeriesDrivers)
	if err != nil {
		return nil, err
	}
	base.timestamp = true
	return &timeSeriesStrategy{base}, nil
}

func (s *timeSeriesStrategy) Layout() Layout { return TimeSeries }

func (s *timeSeriesStrategy) LoadEntity(ctx context.Context, row Row, by Driver) (*Record, error) {
	id, _, err := s.key.ExtractKeyValue(ctx, row)
	if err != nil {
		return nil, err
	}
	ts, ok := row.Number(AttrSK)
	if !ok {
		return nil, fmt.Errorf("%w: %s row %v has no timestamp", ErrValidation, s.et.Name(), id)
	}
	rec := s.et.NewAt(id.(string), ts)
	if err := s.assemble(ctx, rec, row, by); err != nil {
		return nil, err
	}
	return rec, nil
}
