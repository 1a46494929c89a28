// Package stream provides DynamoDB Streams handlers that keep a process's
// metadata cache in sync with schema and type rows written by other processes.
package stream

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/rddb/internal/keys"
	"github.com/jacentio/rddb/store"
)

// Handler applies metadata row changes from a DynamoDB stream to a store.Meta.
type Handler struct {
	meta   *store.Meta
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(meta *store.Meta, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		meta:   meta,
		logger: logger,
	}
}

// HandleMetadataChanges processes DynamoDB stream events on the base table.
// Inserted and modified SCHEMA# and TYPE# rows replace the cached entry,
// removed rows drop it. Every other row is ignored.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleMetadataChanges(ctx context.Context, event events.DynamoDBEvent) error {
	applied := 0
	for _, record := range event.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if h.processRecord(record) {
			applied++
		}
	}
	if applied > 0 {
		h.logger.Info("metadata cache updated", "records", len(event.Records), "applied", applied)
	}
	return nil
}

// processRecord applies one stream record and reports whether it touched the cache.
func (h *Handler) processRecord(record events.DynamoDBEventRecord) bool {
	pk := getStringAttr(record.Change.Keys, store.AttrPK)
	if _, _, _, ok := keys.ParseMetaPK(pk); !ok {
		return false
	}

	switch record.EventName {
	case "INSERT", "MODIFY":
		row := ConvertStreamImage(record.Change.NewImage)
		if err := h.meta.Apply(row); err != nil {
			// A malformed row fails the same way on every retry.
			h.logger.Warn("skipping metadata row",
				"eventID", record.EventID,
				"pk", pk,
				"error", err,
			)
			return false
		}
		h.logger.Debug("applied metadata row", "pk", pk, "event", record.EventName)
	case "REMOVE":
		h.meta.Forget(pk)
		h.logger.Debug("forgot metadata row", "pk", pk)
	default:
		return false
	}
	return true
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// ConvertStreamImage converts a DynamoDB stream image to a store.Row.
// Only string, number and binary attributes are carried over.
func ConvertStreamImage(image map[string]events.DynamoDBAttributeValue) store.Row {
	result := make(store.Row)
	for k, v := range image {
		switch v.DataType() {
		case events.DataTypeString:
			result[k] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			result[k] = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			result[k] = &types.AttributeValueMemberB{Value: v.Binary()}
		}
	}
	return result
}
