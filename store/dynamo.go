package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// batchWriteLimit is the maximum number of requests in one BatchWriteItem call.
const batchWriteLimit = 25

// DefaultBatchAttempts bounds resubmission of unprocessed batch items.
const DefaultBatchAttempts = 5

// DynamoAPI is the subset of *dynamodb.Client used by DynamoBackend.
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoBackend implements Backend on DynamoDB.
type DynamoBackend struct {
	client      DynamoAPI
	maxAttempts int
}

// NewDynamoBackend creates a backend over a DynamoDB client.
func NewDynamoBackend(client DynamoAPI) *DynamoBackend {
	return &DynamoBackend{
		client:      client,
		maxAttempts: DefaultBatchAttempts,
	}
}

// SetBatchAttempts sets how many times a batch is submitted before
// ErrUnprocessedItems is returned.
func (b *DynamoBackend) SetBatchAttempts(n int) {
	if n < 1 {
		n = 1
	}
	b.maxAttempts = n
}

// PutItem writes a single row.
func (b *DynamoBackend) PutItem(ctx context.Context, table string, row Row) error {
	_, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      row,
	})
	return err
}

// BatchWrite writes rows in chunks of 25. Chunks already written are not
// rolled back when a later chunk fails.
func (b *DynamoBackend) BatchWrite(ctx context.Context, table string, rows []Row) error {
	for start := 0; start < len(rows); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(rows) {
			end = len(rows)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, row := range rows[start:end] {
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: row},
			})
		}
		if err := b.writeChunk(ctx, table, requests); err != nil {
			return err
		}
	}
	return nil
}

func (b *DynamoBackend) writeChunk(ctx context.Context, table string, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{table: requests}
	for attempt := 0; attempt < b.maxAttempts; attempt++ {
		out, err := b.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
	}
	return fmt.Errorf("%w: %d rows for %s", ErrUnprocessedItems, len(pending[table]), table)
}

// Query runs a key-condition query, paginating until the limit or the end of results.
func (b *DynamoBackend) Query(ctx context.Context, in QueryInput) ([]Row, error) {
	queryInput, err := buildQueryInput(in)
	if err != nil {
		return nil, err
	}

	var rows []Row
	paginator := dynamodb.NewQueryPaginator(b.client, queryInput)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			rows = append(rows, Row(raw))
		}
		if in.Limit > 0 && len(rows) >= int(in.Limit) {
			return rows[:in.Limit], nil
		}
	}
	return rows, nil
}

// buildQueryInput renders a QueryInput as DynamoDB expressions.
func buildQueryInput(in QueryInput) (*dynamodb.QueryInput, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	exprNames := map[string]string{"#pk": in.PartitionKey}
	exprValues := map[string]types.AttributeValue{":pk": in.PartitionValue}
	keyCond := "#pk = :pk"

	if in.SortOp != SortNone {
		exprNames["#sk"] = in.SortKey
		for i, v := range in.SortValues {
			exprValues[fmt.Sprintf(":sk%d", i)] = v
		}
		switch in.SortOp {
		case SortEqual:
			keyCond += " AND #sk = :sk0"
		case SortBeginsWith:
			keyCond += " AND begins_with(#sk, :sk0)"
		case SortBetween:
			keyCond += " AND #sk BETWEEN :sk0 AND :sk1"
		case SortGreaterEqual:
			keyCond += " AND #sk >= :sk0"
		case SortLessEqual:
			keyCond += " AND #sk <= :sk0"
		}
	}

	var filterClauses []string
	for i, f := range in.Filters {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":f%d", i)
		exprNames[nameKey] = f.Name
		exprValues[valueKey] = f.Value
		switch f.Op {
		case FilterBeginsWith:
			filterClauses = append(filterClauses, fmt.Sprintf("begins_with(%s, %s)", nameKey, valueKey))
		default:
			filterClauses = append(filterClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
		}
	}
	if in.ExcludeExpired {
		filterClauses = append(filterClauses, TTLFilterExpr())
		exprNames = mergeExpr(exprNames, TTLFilterNames())
		exprValues = mergeExpr(exprValues, TTLFilterValues())
	}

	queryInput := &dynamodb.QueryInput{
		TableName:                 aws.String(in.TableName),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	}
	if len(filterClauses) > 0 {
		queryInput.FilterExpression = aws.String(joinStrings(filterClauses, " AND "))
	}
	if in.IndexName != "" {
		queryInput.IndexName = aws.String(in.IndexName)
	}
	if in.Limit > 0 {
		queryInput.Limit = aws.Int32(in.Limit)
	}
	if in.ScanIndexForward != nil {
		queryInput.ScanIndexForward = in.ScanIndexForward
	}
	return queryInput, nil
}

// joinStrings joins strings with a separator.
func joinStrings(strs []string, sep string) string {
	if len(strs) == 0 {
		return ""
	}
	result := strs[0]
	for _, s := range strs[1:] {
		result += sep + s
	}
	return result
}
