package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/fleet-analytics/internal/model"
)

// MessageType represents the type of message on the analytics topic
type MessageType string

const (
	MsgTypeAnomalyDetected MessageType = "ANOMALY_DETECTED"
	MsgTypeRollupCompleted MessageType = "ROLLUP_COMPLETED"
)

// Source values say which process produced a message
const (
	SourceAPI    = "api"
	SourceRollup = "rollup"
)

// BaseMessage is used to peek at the message type
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// AnomalyNotification announces one anomalous row
type AnomalyNotification struct {
	Type            MessageType      `json:"type"`
	ID              string           `json:"id"`
	Source          string           `json:"source"`
	VehicleID       string           `json:"vehicle_id"`
	Timestamp       time.Time        `json:"timestamp"`
	AnomalyType     string           `json:"anomaly_type"`
	ConfidenceScore Float            `json:"confidence_score"`
	Threshold       Float            `json:"threshold"`
	Values          map[string]Float `json:"values"`
	DetectedAt      time.Time        `json:"detected_at"`
}

// RollupCompleted summarises a finished scheduled rollup
type RollupCompleted struct {
	Type        MessageType `json:"type"`
	ID          string      `json:"id"`
	Period      string      `json:"period"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	MetricTypes []string    `json:"metric_types"`
	Buckets     int         `json:"buckets"`
	Anomalies   int         `json:"anomalies"`
	CompletedAt time.Time   `json:"completed_at"`
}

// NewAnomalyNotification builds a notification for rec. columns names the
// values of rec's row in order.
func NewAnomalyNotification(rec model.AnomalyRecord, columns []string, threshold float64, source string, now time.Time) *AnomalyNotification {
	values := make(map[string]Float, len(columns))
	for i, c := range columns {
		if i < len(rec.OriginalSample.Values) {
			values[c] = Float(rec.OriginalSample.Values[i])
		}
	}
	return &AnomalyNotification{
		Type:            MsgTypeAnomalyDetected,
		ID:              uuid.New().String(),
		Source:          source,
		VehicleID:       rec.OriginalSample.VehicleID,
		Timestamp:       rec.OriginalSample.Timestamp.UTC(),
		AnomalyType:     rec.AnomalyType,
		ConfidenceScore: Float(rec.ConfidenceScore),
		Threshold:       Float(threshold),
		Values:          values,
		DetectedAt:      now.UTC(),
	}
}

// ParseMessage parses a JSON message into the appropriate message type
func ParseMessage(data []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch base.Type {
	case MsgTypeAnomalyDetected:
		var msg AnomalyNotification
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid anomaly message: %w", err)
		}
		if err := validateAnomaly(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MsgTypeRollupCompleted:
		var msg RollupCompleted
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid rollup message: %w", err)
		}
		if msg.Period == "" {
			return nil, fmt.Errorf("period is required")
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unknown message type: %s", base.Type)
	}
}

func validateAnomaly(msg *AnomalyNotification) error {
	if msg.VehicleID == "" {
		return fmt.Errorf("vehicle_id is required")
	}
	if msg.AnomalyType == "" {
		return fmt.Errorf("anomaly_type is required")
	}
	if msg.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// EncodeMessage encodes a message to JSON
func EncodeMessage(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}
