package stream

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

// --- getStringAttr Tests ---

func TestGetStringAttr(t *testing.T) {
	tests := []struct {
		name     string
		image    map[string]events.DynamoDBAttributeValue
		expected string
	}{
		{"existing string", map[string]events.DynamoDBAttributeValue{"pk": events.NewStringAttribute("TYPE#USER:age")}, "TYPE#USER:age"},
		{"missing key", map[string]events.DynamoDBAttributeValue{"other": events.NewStringAttribute("value")}, ""},
		{"empty image", map[string]events.DynamoDBAttributeValue{}, ""},
		{"nil image", nil, ""},
		{"empty value", map[string]events.DynamoDBAttributeValue{"pk": events.NewStringAttribute("")}, ""},
		{"number attribute", map[string]events.DynamoDBAttributeValue{"pk": events.NewNumberAttribute("42")}, ""},
		{"unicode", map[string]events.DynamoDBAttributeValue{"pk": events.NewStringAttribute("TYPE#USER:名前")}, "TYPE#USER:名前"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getStringAttr(tt.image, "pk")
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

// --- processRecord Tests ---

func TestProcessRecord_SkipsUnknownEvents(t *testing.T) {
	h := NewHandler(nil, nil)

	record := events.DynamoDBEventRecord{
		EventName: "TRUNCATE",
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{"pk": events.NewStringAttribute("TYPE#USER:age")},
		},
	}
	// A nil meta would panic if the record were applied.
	if h.processRecord(record) {
		t.Error("expected unknown event to be skipped")
	}
}

func TestProcessRecord_SkipsNonMetadataKeys(t *testing.T) {
	h := NewHandler(nil, nil)

	for _, pk := range []string{"USER#u1", "SCHEMA#USER", "TYPE#:age", ""} {
		record := events.DynamoDBEventRecord{
			EventName: "REMOVE",
			Change: events.DynamoDBStreamRecord{
				Keys: map[string]events.DynamoDBAttributeValue{"pk": events.NewStringAttribute(pk)},
			},
		}
		if h.processRecord(record) {
			t.Errorf("expected %q to be skipped", pk)
		}
	}
}

func BenchmarkGetStringAttr(b *testing.B) {
	image := map[string]events.DynamoDBAttributeValue{
		"pk": events.NewStringAttribute("SCHEMA#USER:name"),
		"sk": events.NewStringAttribute("META#USER"),
	}

	for i := 0; i < b.N; i++ {
		getStringAttr(image, "pk")
	}
}
