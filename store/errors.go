package store

import (
	"errors"
	"fmt"

	"github.com/jacentio/rddb/internal/codec"
)

var (
	// ErrConfiguration is returned when a type, layout or role has no registered strategy or driver,
	// or when a type declaration is invalid.
	ErrConfiguration = errors.New("rddb: configuration error")

	// ErrValidation is returned when a record or query misuses a field role.
	ErrValidation = errors.New("rddb: validation error")

	// ErrUnsupportedOperation is returned when a driver is asked for an operation its role forbids.
	// It wraps ErrValidation.
	ErrUnsupportedOperation = fmt.Errorf("%w: unsupported operation", ErrValidation)

	// ErrSchemaMismatch is returned when a composite value does not match its cached schema.
	ErrSchemaMismatch = codec.ErrSchemaMismatch

	// ErrNotFound is returned when a record or metadata row does not exist.
	ErrNotFound = errors.New("rddb: not found")

	// ErrUnprocessedItems is returned when a batch write still has unprocessed items
	// after all attempts.
	ErrUnprocessedItems = errors.New("rddb: batch write left unprocessed items")
)

// invalid wraps a codec or value error as a validation error.
func invalid(field string, err error) error {
	if errors.Is(err, ErrSchemaMismatch) {
		return fmt.Errorf("field %s: %w", field, err)
	}
	return fmt.Errorf("%w: field %s: %w", ErrValidation, field, err)
}

func errMissingKey(attr string) error {
	return fmt.Errorf("%w: row has no %s attribute", ErrValidation, attr)
}
