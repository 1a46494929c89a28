package store

import (
	"context"
	"fmt"
	"time"
)

// Query is the query algebra of one entity type.
//
// Errors found while building a query are reported by the method that runs it.
type Query struct {
	store    *Store
	strategy Strategy
	err      error
}

// Select binds a selection to a field's driver.
func (q *Query) Select(field string) *Selection {
	sel := &Selection{query: q, err: q.err}
	if sel.err != nil {
		return sel
	}
	d, err := q.strategy.Driver(field)
	if err != nil {
		sel.err = err
		return sel
	}
	if err := compatible(q.strategy.Layout(), d.Role()); err != nil {
		sel.err = fmt.Errorf("%w: %s.%s", err, q.strategy.Type().Name(), field)
		return sel
	}
	sel.driver = d
	return sel
}

// ByID returns the records stored under id: the record itself for flat
// types, every row newest first for time-series types.
func (q *Query) ByID(ctx context.Context, id string) ([]*Record, error) {
	recs, err := q.Select(FieldID).Equals(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, q.typeName(), id)
	}
	return recs, nil
}

// ByIDRange returns the time-series rows of id with a timestamp in
// [start, end], newest first. A nil bound leaves that side open.
func (q *Query) ByIDRange(ctx context.Context, id string, start, end any) ([]*Record, error) {
	return q.Select(FieldID).Range(ctx, RangeArgs{Start: start, End: end, ID: id})
}

// Fetch returns every record of a flat type.
func (q *Query) Fetch(ctx context.Context) ([]*Record, error) {
	return q.Select(FieldWildcard).Equals(ctx, FieldWildcard)
}

func (q *Query) typeName() string {
	if q.strategy == nil {
		return ""
	}
	return q.strategy.Type().Name()
}

// compatible reports whether a role can be queried under a layout.
func compatible(layout Layout, role Role) error {
	switch role {
	case RolePrimaryKey, RoleSearchable:
		return nil
	case RoleUnique, RoleReference, RoleWildcard:
		if layout == Flat {
			return nil
		}
	}
	return fmt.Errorf("%w: %s fields cannot be queried on the %s layout", ErrValidation, role, layout)
}

// Selection is a query bound to one field.
type Selection struct {
	query   *Query
	driver  Driver
	filters []Filter
	limit   int32
	err     error
}

// Where keeps only records whose projected column equals value.
func (s *Selection) Where(field string, value any) *Selection {
	if s.err != nil {
		return s
	}
	if s.driver != nil && field == s.driver.Field() {
		s.err = fmt.Errorf("%w: %s is the selected field", ErrValidation, field)
		return s
	}
	if _, ok := s.query.strategy.Type().Field(field); !ok {
		s.err = fmt.Errorf("%w: %s has no field %q", ErrValidation, s.query.typeName(), field)
		return s
	}
	d, err := s.query.strategy.Driver(field)
	if err != nil {
		s.err = err
		return s
	}
	col, err := d.EncodeValue(value)
	if err != nil {
		s.err = err
		return s
	}
	s.filters = append(s.filters, Filter{Name: field, Op: FilterEqual, Value: col})
	return s
}

// Limit caps the number of records returned.
func (s *Selection) Limit(n int32) *Selection {
	s.limit = n
	return s
}

// Equals returns the records whose field equals value.
func (s *Selection) Equals(ctx context.Context, value any) ([]*Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	queries, err := s.driver.Equals(value)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "equals", queries)
}

// Match returns the records whose encoded field value starts with the
// encoding of value. A partial composite matches on its trailing components.
func (s *Selection) Match(ctx context.Context, value any) ([]*Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	queries, err := s.driver.Match(value)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "match", queries)
}

// Range returns the records within args.
func (s *Selection) Range(ctx context.Context, args RangeArgs) ([]*Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	queries, err := s.driver.Range(args)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "range", queries)
}

// run executes the queries, concatenates their rows in order and assembles
// a record per row.
func (s *Selection) run(ctx context.Context, op string, queries []QueryInput) ([]*Record, error) {
	st := s.query.store
	strategy := s.query.strategy
	start := time.Now()
	defer func() {
		QueryDuration.WithLabelValues(strategy.Type().Name(), op).Observe(time.Since(start).Seconds())
	}()

	for i := range queries {
		queries[i].Filters = append(queries[i].Filters, s.filters...)
		if strategy.Type().TTL() > 0 {
			queries[i].ExcludeExpired = true
		}
		if s.limit > 0 && len(queries[i].Filters) == 0 && !queries[i].ExcludeExpired {
			if queries[i].Limit == 0 || s.limit < queries[i].Limit {
				queries[i].Limit = s.limit
			}
		}
	}

	results := make([][]Row, len(queries))
	err := fanOut(ctx, st.config.MaxConcurrency, len(queries), func(ctx context.Context, i int) error {
		rows, err := st.backend.Query(ctx, queries[i])
		if err != nil {
			return fmt.Errorf("query %s.%s: %w", strategy.Type().Name(), s.driver.Field(), err)
		}
		results[i] = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, r := range results {
		rows = append(rows, r...)
	}
	if s.limit > 0 && len(rows) > int(s.limit) {
		rows = rows[:s.limit]
	}
	st.config.Logger.Debug("query", "type", strategy.Type().Name(), "field", s.driver.Field(), "op", op, "queries", len(queries), "rows", len(rows))

	recs := make([]*Record, len(rows))
	err = fanOut(ctx, st.config.MaxConcurrency, len(rows), func(ctx context.Context, i int) error {
		rec, err := strategy.LoadEntity(ctx, rows[i], s.driver)
		if err != nil {
			return err
		}
		recs[i] = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}
