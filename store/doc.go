// Package store provides a single-table DynamoDB indexing layer.
//
// Callers declare entity types and the fields they want to look records up
// by. For every record the store derives the rows needed for equality, prefix
// and range lookups on those fields, all kept in one base table with one
// secondary index over (sk, data).
//
// # Key Features
//
//   - Order-preserving encoding of signed numbers and composite values
//   - Unique, searchable and reference lookups through one secondary index
//   - Append-only time-series types in per-type tables
//   - Schema and type metadata persisted alongside the data and cached per process
//   - Bounded concurrent decoding of query results
//
// # Entity Types
//
// Types are declared with [Define] and registered before the [Store] is created:
//
//	users := registry.MustRegister(store.Define("User", store.Flat,
//	    store.Unique("email"),
//	    store.Searchable("name", store.AsComposite()),
//	    store.Searchable("balance", store.AsSigned(1_000_000)),
//	))
//
// Field values are strings, integers, [Composite] tuples of scalars, or [Ref]
// values for [Reference] fields.
//
// # Row Layout
//
// A flat record with id u1 is written as:
//
//	pk=USER#u1  sk=USER                       root row, every column
//	pk=USER#u1  sk=a@b.com     data=$nil      unique row
//	pk=USER#u1  sk=USER:name   data=#Fandango#Clem
//	pk=USER#u1  sk=ORG#o1      data=USER#u1   reference row
//
// Index rows carry the columns of every other field, so any row returned by
// a query decodes to a full record.
//
// Time-series records are written as one row, pk=id and sk=timestamp, to the
// table "<TableName>-<TYPE>". Their searchable fields are queried through a
// secondary index named after the field.
//
// # Queries
//
//	recs, err := s.Query(users).Select("name").Match(ctx, store.Composite{{Name: "last", Value: "Fandango"}})
//	recs, err := s.Query(users).Select("balance").Range(ctx, store.RangeArgs{Start: -5, End: 5})
//	recs, err := s.Query(users).Fetch(ctx)
//
// # Configuration
//
// Use [DefaultConfig] and override fields as needed:
//
//	cfg := store.DefaultConfig()
//	cfg.TableName = "app"
//	cfg.MaxConcurrency = 8
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrConfiguration] - a type, layout or role cannot be served
//   - [ErrValidation] - a record or query misuses a field
//   - [ErrUnsupportedOperation] - a role does not support the query operation
//   - [ErrSchemaMismatch] - a composite value does not match its schema
//   - [ErrNotFound] - no row or metadata exists
//
// Backend errors are returned wrapped but otherwise unchanged.
package store
