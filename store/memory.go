package store

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MemoryBackend is an in-process Backend for tests and local runs.
//
// Every table is keyed on (pk, sk). Secondary indexes are emulated: a query on
// any index matches rows carrying both the index's partition and sort attributes.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string]map[string]Row
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: make(map[string]map[string]Row)}
}

// PutItem writes a single row, replacing any row with the same key.
func (m *MemoryBackend) PutItem(ctx context.Context, table string, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(table, row)
}

// BatchWrite writes rows one by one; rows before a failing row stay written.
func (m *MemoryBackend) BatchWrite(ctx context.Context, table string, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		if err := m.put(table, row); err != nil {
			return err
		}
	}
	return nil
}

// Query evaluates in against the table's rows.
func (m *MemoryBackend) Query(ctx context.Context, in QueryInput) ([]Row, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	rows := make([]Row, 0, len(m.tables[in.TableName]))
	for _, row := range m.tables[in.TableName] {
		rows = append(rows, row)
	}
	m.mu.RUnlock()
	return EvaluateQuery(in, rows), nil
}

// Rows returns every row of a table ordered by (pk, sk).
func (m *MemoryBackend) Rows(table string) []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := make([]Row, 0, len(m.tables[table]))
	for _, row := range m.tables[table] {
		rows = append(rows, row.Clone())
	}
	sort.Slice(rows, func(i, j int) bool { return primaryLess(rows[i], rows[j]) })
	return rows
}

func (m *MemoryBackend) put(table string, row Row) error {
	key, err := PrimaryKeyString(row)
	if err != nil {
		return err
	}
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string]Row)
		m.tables[table] = t
	}
	t[key] = row.Clone()
	return nil
}

// PrimaryKeyString renders a row's (pk, sk) as a map key.
func PrimaryKeyString(row Row) (string, error) {
	pk, ok := row[AttrPK]
	if !ok {
		return "", errMissingKey(AttrPK)
	}
	sk, ok := row[AttrSK]
	if !ok {
		return "", errMissingKey(AttrSK)
	}
	return attrString(pk) + "\x00" + attrString(sk), nil
}

// EvaluateQuery applies a query to an unordered set of rows.
func EvaluateQuery(in QueryInput, rows []Row) []Row {
	var out []Row
	for _, row := range rows {
		if matchesQuery(in, row) {
			out = append(out, row.Clone())
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := compareAttr(out[i][in.SortKey], out[j][in.SortKey])
		if c == 0 {
			if in.descending() {
				return primaryLess(out[j], out[i])
			}
			return primaryLess(out[i], out[j])
		}
		if in.descending() {
			return c > 0
		}
		return c < 0
	})

	if in.Limit > 0 && len(out) > int(in.Limit) {
		out = out[:in.Limit]
	}
	return out
}

func matchesQuery(in QueryInput, row Row) bool {
	pv, ok := row[in.PartitionKey]
	if !ok || compareAttr(pv, in.PartitionValue) != 0 || !sameKind(pv, in.PartitionValue) {
		return false
	}
	if in.SortKey != "" {
		sv, ok := row[in.SortKey]
		if !ok {
			return false
		}
		if !matchesSort(in, sv) {
			return false
		}
	}
	for _, f := range in.Filters {
		v, ok := row[f.Name]
		if !ok {
			return false
		}
		switch f.Op {
		case FilterBeginsWith:
			if !beginsWith(v, f.Value) {
				return false
			}
		default:
			if !sameKind(v, f.Value) || compareAttr(v, f.Value) != 0 {
				return false
			}
		}
	}
	if in.ExcludeExpired && IsExpired(row) {
		return false
	}
	return true
}

func matchesSort(in QueryInput, v types.AttributeValue) bool {
	switch in.SortOp {
	case SortNone:
		return true
	case SortEqual:
		return sameKind(v, in.SortValues[0]) && compareAttr(v, in.SortValues[0]) == 0
	case SortBeginsWith:
		return beginsWith(v, in.SortValues[0])
	case SortBetween:
		return sameKind(v, in.SortValues[0]) &&
			compareAttr(v, in.SortValues[0]) >= 0 && compareAttr(v, in.SortValues[1]) <= 0
	case SortGreaterEqual:
		return sameKind(v, in.SortValues[0]) && compareAttr(v, in.SortValues[0]) >= 0
	case SortLessEqual:
		return sameKind(v, in.SortValues[0]) && compareAttr(v, in.SortValues[0]) <= 0
	}
	return false
}

func beginsWith(v, prefix types.AttributeValue) bool {
	s, ok := v.(*types.AttributeValueMemberS)
	p, ok2 := prefix.(*types.AttributeValueMemberS)
	return ok && ok2 && strings.HasPrefix(s.Value, p.Value)
}

func sameKind(a, b types.AttributeValue) bool {
	switch a.(type) {
	case *types.AttributeValueMemberS:
		_, ok := b.(*types.AttributeValueMemberS)
		return ok
	case *types.AttributeValueMemberN:
		_, ok := b.(*types.AttributeValueMemberN)
		return ok
	case *types.AttributeValueMemberB:
		_, ok := b.(*types.AttributeValueMemberB)
		return ok
	}
	return false
}

// compareAttr orders S values byte-wise and N values numerically.
// Values of different kinds order by kind.
func compareAttr(a, b types.AttributeValue) int {
	switch x := a.(type) {
	case *types.AttributeValueMemberS:
		if y, ok := b.(*types.AttributeValueMemberS); ok {
			return strings.Compare(x.Value, y.Value)
		}
	case *types.AttributeValueMemberN:
		if y, ok := b.(*types.AttributeValueMemberN); ok {
			xf, _, errX := big.ParseFloat(x.Value, 10, 128, big.ToNearestEven)
			yf, _, errY := big.ParseFloat(y.Value, 10, 128, big.ToNearestEven)
			if errX != nil || errY != nil {
				return strings.Compare(x.Value, y.Value)
			}
			return xf.Cmp(yf)
		}
	case *types.AttributeValueMemberB:
		if y, ok := b.(*types.AttributeValueMemberB); ok {
			return strings.Compare(string(x.Value), string(y.Value))
		}
	}
	return strings.Compare(kindName(a), kindName(b))
}

func kindName(v types.AttributeValue) string {
	switch v.(type) {
	case *types.AttributeValueMemberS:
		return "S"
	case *types.AttributeValueMemberN:
		return "N"
	case *types.AttributeValueMemberB:
		return "B"
	case nil:
		return ""
	}
	return "?"
}

func attrString(v types.AttributeValue) string {
	switch x := v.(type) {
	case *types.AttributeValueMemberS:
		return "S" + x.Value
	case *types.AttributeValueMemberN:
		return "N" + x.Value
	case *types.AttributeValueMemberB:
		return "B" + string(x.Value)
	}
	return "?"
}

func primaryLess(a, b Row) bool {
	if c := compareAttr(a[AttrPK], b[AttrPK]); c != 0 {
		return c < 0
	}
	return compareAttr(a[AttrSK], b[AttrSK]) < 0
}
