// Package coordination implements the agent coordination core: the message
// model, the durable message broker, and the workflow orchestrator that
// sequences multi-agent task execution.
//
// Messages and responses are persisted to an external memory store as flat
// JSON records. The record shape is fixed for compatibility with history
// already written by other agents, so enum fields are stored as their
// lowercase string tags and optional fields are stored as JSON null.
package coordination

import (
	"encoding/json"
	"fmt"
	"time"
)

// Protocol classifies how a message participates in a conversation.
type Protocol string

const (
	ProtocolRequestResponse  Protocol = "request_response"
	ProtocolPublishSubscribe Protocol = "publish_subscribe"
	ProtocolWorkflowHandoff  Protocol = "workflow_handoff"
	ProtocolBroadcast        Protocol = "broadcast"
	ProtocolCoordination     Protocol = "coordination"
)

// ParseProtocol maps a stored string tag back to a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(s); p {
	case ProtocolRequestResponse, ProtocolPublishSubscribe, ProtocolWorkflowHandoff, ProtocolBroadcast, ProtocolCoordination:
		return p, nil
	}
	return "", fmt.Errorf("unknown protocol %q", s)
}

// Priority orders messages by urgency.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// ParsePriority maps a stored string tag back to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// TimestampLayout is the wire format for message timestamps. The width is
// fixed (microsecond precision, UTC) so that ISO-8601 strings compare
// correctly with plain lexicographic comparison.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// NowTimestamp returns the current UTC time in the wire timestamp format.
func NowTimestamp() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// Message is the unit of inter-agent communication. An empty Recipient means
// the message is a broadcast addressed to all listening agents.
type Message struct {
	MessageID      string
	Sender         string
	Recipient      string
	Protocol       Protocol
	Priority       Priority
	Type           string
	Payload        map[string]any
	ConversationID string
	TaskID         string
	Timestamp      string
	ExpiresAt      string
	RequiresAck    bool
	CorrelationID  string
}

// IsBroadcast reports whether the message has no specific recipient.
func (m *Message) IsBroadcast() bool {
	return m.Recipient == ""
}

// messageRecord is the flat persisted form of a Message. The conversation id
// is not part of the record: it is the store call's scope and is re-attached
// when the record is read back.
type messageRecord struct {
	MCPMessage    bool           `json:"mcp_message"`
	MessageID     string         `json:"message_id"`
	Sender        string         `json:"sender"`
	Recipient     *string        `json:"recipient"`
	Protocol      string         `json:"protocol"`
	Priority      string         `json:"priority"`
	Type          string         `json:"type"`
	Payload       map[string]any `json:"payload"`
	Timestamp     string         `json:"timestamp"`
	ExpiresAt     *string        `json:"expires_at"`
	RequiresAck   bool           `json:"requires_ack"`
	CorrelationID *string        `json:"correlation_id"`
	TaskID        string         `json:"task_id"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func fromOptional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// MarshalRecord serializes the message into its persisted record form.
func (m *Message) MarshalRecord() ([]byte, error) {
	rec := messageRecord{
		MCPMessage:    true,
		MessageID:     m.MessageID,
		Sender:        m.Sender,
		Recipient:     optional(m.Recipient),
		Protocol:      string(m.Protocol),
		Priority:      string(m.Priority),
		Type:          m.Type,
		Payload:       m.Payload,
		Timestamp:     m.Timestamp,
		ExpiresAt:     optional(m.ExpiresAt),
		RequiresAck:   m.RequiresAck,
		CorrelationID: optional(m.CorrelationID),
		TaskID:        m.TaskID,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message record: %w", err)
	}
	return data, nil
}

// ParseMessageRecord reconstructs a Message from its persisted record form.
// The conversation id is supplied by the reader, since records are stored
// scoped to a conversation rather than carrying it inline.
func ParseMessageRecord(data []byte, conversationID string) (*Message, error) {
	var rec messageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message record: %w", err)
	}
	if !rec.MCPMessage {
		return nil, fmt.Errorf("not a message record")
	}
	if rec.MessageID == "" {
		return nil, fmt.Errorf("message record missing message_id")
	}
	protocol, err := ParseProtocol(rec.Protocol)
	if err != nil {
		return nil, err
	}
	priority, err := ParsePriority(rec.Priority)
	if err != nil {
		return nil, err
	}
	return &Message{
		MessageID:      rec.MessageID,
		Sender:         rec.Sender,
		Recipient:      fromOptional(rec.Recipient),
		Protocol:       protocol,
		Priority:       priority,
		Type:           rec.Type,
		Payload:        rec.Payload,
		ConversationID: conversationID,
		TaskID:         rec.TaskID,
		Timestamp:      rec.Timestamp,
		ExpiresAt:      fromOptional(rec.ExpiresAt),
		RequiresAck:    rec.RequiresAck,
		CorrelationID:  fromOptional(rec.CorrelationID),
	}, nil
}

// Response acknowledges exactly one original Message.
type Response struct {
	ResponseID        string
	OriginalMessageID string
	Sender            string
	Recipient         string
	Success           bool
	ErrorMessage      string
	Payload           map[string]any
	ConversationID    string
	TaskID            string
	Timestamp         string
}

type responseRecord struct {
	MCPResponse       bool           `json:"mcp_response"`
	ResponseID        string         `json:"response_id"`
	OriginalMessageID string         `json:"original_message_id"`
	Sender            string         `json:"sender"`
	Recipient         string         `json:"recipient"`
	Success           bool           `json:"success"`
	ErrorMessage      *string        `json:"error_message"`
	Payload           map[string]any `json:"payload"`
	Timestamp         string         `json:"timestamp"`
	TaskID            string         `json:"task_id"`
}

// MarshalRecord serializes the response into its persisted record form.
func (r *Response) MarshalRecord() ([]byte, error) {
	rec := responseRecord{
		MCPResponse:       true,
		ResponseID:        r.ResponseID,
		OriginalMessageID: r.OriginalMessageID,
		Sender:            r.Sender,
		Recipient:         r.Recipient,
		Success:           r.Success,
		ErrorMessage:      optional(r.ErrorMessage),
		Payload:           r.Payload,
		Timestamp:         r.Timestamp,
		TaskID:            r.TaskID,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response record: %w", err)
	}
	return data, nil
}

// ParseResponseRecord reconstructs a Response from its persisted record form.
func ParseResponseRecord(data []byte, conversationID string) (*Response, error) {
	var rec responseRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response record: %w", err)
	}
	if !rec.MCPResponse {
		return nil, fmt.Errorf("not a response record")
	}
	if rec.ResponseID == "" {
		return nil, fmt.Errorf("response record missing response_id")
	}
	return &Response{
		ResponseID:        rec.ResponseID,
		OriginalMessageID: rec.OriginalMessageID,
		Sender:            rec.Sender,
		Recipient:         rec.Recipient,
		Success:           rec.Success,
		ErrorMessage:      fromOptional(rec.ErrorMessage),
		Payload:           rec.Payload,
		ConversationID:    conversationID,
		TaskID:            rec.TaskID,
		Timestamp:         rec.Timestamp,
	}, nil
}
