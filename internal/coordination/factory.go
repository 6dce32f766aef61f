package coordination

import "github.com/google/uuid"

// NewRequestResponseMessage builds a request expecting an acknowledgement.
// Both message id and correlation id are freshly generated UUIDs, so two
// calls with identical arguments never collide.
func NewRequestResponseMessage(sender, recipient, requestType string, requestData map[string]any, conversationID, taskID string) *Message {
	return &Message{
		MessageID:      uuid.NewString(),
		Sender:         sender,
		Recipient:      recipient,
		Protocol:       ProtocolRequestResponse,
		Priority:       PriorityNormal,
		Type:           requestType,
		Payload:        requestData,
		ConversationID: conversationID,
		TaskID:         taskID,
		Timestamp:      NowTimestamp(),
		RequiresAck:    true,
		CorrelationID:  uuid.NewString(),
	}
}

// NewBroadcastMessage builds a message addressed to all listening agents.
// Broadcasts carry no recipient, require no acknowledgement and need no
// correlation id.
func NewBroadcastMessage(sender, messageType string, broadcastData map[string]any, conversationID, taskID string) *Message {
	return &Message{
		MessageID:      uuid.NewString(),
		Sender:         sender,
		Protocol:       ProtocolBroadcast,
		Priority:       PriorityNormal,
		Type:           messageType,
		Payload:        broadcastData,
		ConversationID: conversationID,
		TaskID:         taskID,
		Timestamp:      NowTimestamp(),
	}
}

// NewResponse builds the acknowledgement for msg. Sender and recipient are
// swapped relative to the original message, and conversation and task ids
// are carried over unchanged.
func NewResponse(msg *Message, success bool, errorMessage string, payload map[string]any) *Response {
	return &Response{
		ResponseID:        uuid.NewString(),
		OriginalMessageID: msg.MessageID,
		Sender:            msg.Recipient,
		Recipient:         msg.Sender,
		Success:           success,
		ErrorMessage:      errorMessage,
		Payload:           payload,
		ConversationID:    msg.ConversationID,
		TaskID:            msg.TaskID,
		Timestamp:         NowTimestamp(),
	}
}
