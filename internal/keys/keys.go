// Package keys builds the partition keys, sort keys and table names used by
// the single-table row layout.
package keys

import (
	"fmt"
	"strings"
)

// Nil is the placeholder stored in the data attribute of rows that have no data.
const Nil = "$nil"

const (
	schemaPrefix = "SCHEMA"
	typePrefix   = "TYPE"
	metaPrefix   = "META"
)

// MetaKind distinguishes schema rows from type rows.
type MetaKind string

const (
	MetaSchema MetaKind = schemaPrefix
	MetaType   MetaKind = typePrefix
)

// TypeName returns the key form of an entity type name.
func TypeName(entityType string) string {
	return strings.ToUpper(entityType)
}

// RootPK is the partition key shared by every row of a flat record.
func RootPK(entityType, id string) string {
	return fmt.Sprintf("%s#%s", TypeName(entityType), id)
}

// RootSK is the sort key of a flat record's root row.
func RootSK(entityType string) string {
	return TypeName(entityType)
}

// SearchableSK is the sort key of a searchable field's row.
func SearchableSK(entityType, field string) string {
	return fmt.Sprintf("%s:%s", TypeName(entityType), field)
}

// ReferenceSK is the sort key of a reference row pointing at target#id.
func ReferenceSK(target, id string) string {
	return fmt.Sprintf("%s#%s", TypeName(target), id)
}

// RefPrefix is the data prefix shared by every reference row owned by entityType.
func RefPrefix(entityType string) string {
	return TypeName(entityType) + "#"
}

// IDFromPK extracts the id from the "TYPE#id" partition key of entityType.
// The id itself may contain '#'.
func IDFromPK(entityType, pk string) (string, bool) {
	id, ok := strings.CutPrefix(pk, RefPrefix(entityType))
	return id, ok && id != ""
}

// HasDelimiter reports whether name contains a character that separates key parts.
func HasDelimiter(name string) bool {
	return strings.ContainsAny(name, "#:")
}

// MetaPK is the partition key of a schema or type metadata row.
func MetaPK(kind MetaKind, entityType, field string) string {
	return fmt.Sprintf("%s#%s:%s", kind, TypeName(entityType), field)
}

// MetaSK is the sort key shared by all metadata rows of an entity type.
func MetaSK(entityType string) string {
	return fmt.Sprintf("%s#%s", metaPrefix, TypeName(entityType))
}

// ParseMetaPK splits "SCHEMA#USER:name" into its kind, type and field.
func ParseMetaPK(pk string) (kind MetaKind, entityType, field string, ok bool) {
	prefix, target, found := strings.Cut(pk, "#")
	if !found {
		return "", "", "", false
	}
	switch MetaKind(prefix) {
	case MetaSchema, MetaType:
	default:
		return "", "", "", false
	}
	entityType, field, found = strings.Cut(target, ":")
	if !found || entityType == "" || field == "" {
		return "", "", "", false
	}
	return MetaKind(prefix), entityType, field, true
}

// TimeSeriesTable computes the per-type table name of a time-series entity.
func TimeSeriesTable(baseTable, entityType string) string {
	return fmt.Sprintf("%s-%s", baseTable, TypeName(entityType))
}
