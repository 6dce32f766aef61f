package api

import "time"

// SendMessageRequest asks the coordination service to send one message.
// Leaving Recipient empty (or setting Broadcast) produces a broadcast.
type SendMessageRequest struct {
	Sender      string         `json:"sender"`
	Recipient   string         `json:"recipient,omitempty"`
	MessageType string         `json:"message_type"`
	Payload     map[string]any `json:"payload,omitempty"`
	TaskID      string         `json:"task_id"`
	Broadcast   bool           `json:"broadcast,omitempty"`
}

// SendMessageResponse reports the outcome of a send.
type SendMessageResponse struct {
	MessageID     string `json:"message_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Sent          bool   `json:"sent"`
}

// MessageView is the API projection of a stored message.
type MessageView struct {
	MessageID     string         `json:"message_id"`
	Sender        string         `json:"sender"`
	Recipient     string         `json:"recipient,omitempty"`
	Protocol      string         `json:"protocol"`
	Priority      string         `json:"priority"`
	MessageType   string         `json:"message_type"`
	Payload       map[string]any `json:"payload,omitempty"`
	TaskID        string         `json:"task_id"`
	Timestamp     string         `json:"timestamp"`
	RequiresAck   bool           `json:"requires_ack"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// ReceiveMessagesResponse lists the messages addressed to an agent.
type ReceiveMessagesResponse struct {
	AgentID  string        `json:"agent_id"`
	Messages []MessageView `json:"messages"`
}

// SendResponseRequest acknowledges a previously received message.
type SendResponseRequest struct {
	OriginalMessageID string         `json:"original_message_id"`
	Sender            string         `json:"sender"`
	Recipient         string         `json:"recipient"`
	Success           bool           `json:"success"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	Payload           map[string]any `json:"payload,omitempty"`
	TaskID            string         `json:"task_id"`
}

// SendResponseResponse reports the outcome of a response send.
type SendResponseResponse struct {
	ResponseID string `json:"response_id"`
	Sent       bool   `json:"sent"`
}

// ResponseView is the API projection of a stored response.
type ResponseView struct {
	ResponseID        string         `json:"response_id"`
	OriginalMessageID string         `json:"original_message_id"`
	Sender            string         `json:"sender"`
	Recipient         string         `json:"recipient"`
	Success           bool           `json:"success"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	Payload           map[string]any `json:"payload,omitempty"`
	TaskID            string         `json:"task_id"`
	Timestamp         string         `json:"timestamp"`
}

// ReceiveResponsesResponse lists the responses addressed to an agent.
type ReceiveResponsesResponse struct {
	AgentID   string         `json:"agent_id"`
	Responses []ResponseView `json:"responses"`
}

// ProcessResponse reports how many pending messages were run through
// registered handlers.
type ProcessResponse struct {
	AgentID   string `json:"agent_id"`
	Processed int    `json:"processed"`
}

// WorkflowStepSpec declares one step of a workflow.
type WorkflowStepSpec struct {
	StepID          string   `json:"step_id"`
	AgentID         string   `json:"agent_id"`
	TaskDescription string   `json:"task_description"`
	Dependencies    []string `json:"dependencies,omitempty"`
}

// WorkflowRequest declares a workflow's steps and asks for one execution
// pass over them.
type WorkflowRequest struct {
	WorkflowID string             `json:"workflow_id"`
	Steps      []WorkflowStepSpec `json:"steps"`
}

// WorkflowStepView reports one step's state after execution.
type WorkflowStepView struct {
	StepID  string         `json:"step_id"`
	AgentID string         `json:"agent_id"`
	Status  string         `json:"status"`
	Result  map[string]any `json:"result,omitempty"`
}

// WorkflowResponse reports the workflow state after one execution pass.
type WorkflowResponse struct {
	WorkflowID string             `json:"workflow_id"`
	Status     string             `json:"status"`
	Steps      []WorkflowStepView `json:"steps"`
	Error      string             `json:"error,omitempty"`
}

// HealthStatus represents the health of the coordination service.
type HealthStatus struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
