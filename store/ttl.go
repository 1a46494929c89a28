package store

import (
	"maps"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsExpired reports whether row carries a ttl at or before the current time.
// Rows without a numeric ttl never expire.
func IsExpired(row Row) bool {
	return expiredAt(row, time.Now())
}

func expiredAt(row Row, now time.Time) bool {
	ttl, ok := row.Number(AttrTTL)
	return ok && ttl <= now.Unix()
}

// TTLFilterExpr returns the filter expression that drops expired rows.
// DynamoDB deletes expired items lazily, so reads filter them explicitly.
func TTLFilterExpr() string {
	return "(attribute_not_exists(#ttl) OR #ttl > :now)"
}

// TTLFilterNames returns the expression attribute names used by TTLFilterExpr.
func TTLFilterNames() map[string]string {
	return map[string]string{"#ttl": AttrTTL}
}

// TTLFilterValues returns the expression attribute values used by TTLFilterExpr.
func TTLFilterValues() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{":now": attrN(time.Now().Unix())}
}

// expiry returns the ttl column for a row written now that lives for d.
func expiry(d time.Duration) types.AttributeValue {
	return attrN(time.Now().Add(d).Unix())
}

// mergeExpr merges expression attribute maps; later maps win.
func mergeExpr[V any](ms ...map[string]V) map[string]V {
	result := make(map[string]V)
	for _, m := range ms {
		maps.Copy(result, m)
	}
	return result
}
