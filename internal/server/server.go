// Package server exposes the coordination core over HTTP for tool and
// agent processes that do not link the Go packages directly.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/oldnordic/LTMC-sub008/internal/coordination"
	"github.com/oldnordic/LTMC-sub008/pkg/api"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// Server routes coordination API requests to a conversation-scoped broker.
type Server struct {
	broker *coordination.MessageBroker
	health func(ctx context.Context) error
}

// New creates a coordination API server. The health function probes the
// backing store; nil disables the probe.
func New(broker *coordination.MessageBroker, health func(ctx context.Context) error) *Server {
	return &Server{
		broker: broker,
		health: health,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/messages", s.handleSendMessage).Methods(http.MethodPost)
	r.HandleFunc("/responses", s.handleSendResponse).Methods(http.MethodPost)
	r.HandleFunc("/agents/{agentID}/messages", s.handleReceiveMessages).Methods(http.MethodGet)
	r.HandleFunc("/agents/{agentID}/responses", s.handleReceiveResponses).Methods(http.MethodGet)
	r.HandleFunc("/agents/{agentID}/process", s.handleProcess).Methods(http.MethodPost)
	r.HandleFunc("/workflows", s.handleWorkflow).Methods(http.MethodPost)
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := statusHealthy
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			log.Printf("Health check failed: %v", err)
			status = statusUnhealthy
		}
	}

	code := http.StatusOK
	if status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, api.HealthStatus{
		Service:   "coordination",
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req api.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Sender == "" || req.MessageType == "" {
		http.Error(w, "sender and message_type are required", http.StatusBadRequest)
		return
	}

	var msg *coordination.Message
	if req.Broadcast || req.Recipient == "" {
		msg = coordination.NewBroadcastMessage(req.Sender, req.MessageType, req.Payload, s.broker.ConversationID(), req.TaskID)
	} else {
		msg = coordination.NewRequestResponseMessage(req.Sender, req.Recipient, req.MessageType, req.Payload, s.broker.ConversationID(), req.TaskID)
	}

	sent := s.broker.Send(r.Context(), msg)
	writeJSON(w, http.StatusOK, api.SendMessageResponse{
		MessageID:     msg.MessageID,
		CorrelationID: msg.CorrelationID,
		Sent:          sent,
	})
}

func (s *Server) handleSendResponse(w http.ResponseWriter, r *http.Request) {
	var req api.SendResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OriginalMessageID == "" || req.Sender == "" || req.Recipient == "" {
		http.Error(w, "original_message_id, sender and recipient are required", http.StatusBadRequest)
		return
	}

	// The caller already knows the original message, so the swap happened on
	// its side; the request carries the final sender/recipient.
	original := &coordination.Message{
		MessageID:      req.OriginalMessageID,
		Sender:         req.Recipient,
		Recipient:      req.Sender,
		ConversationID: s.broker.ConversationID(),
		TaskID:         req.TaskID,
	}
	resp := coordination.NewResponse(original, req.Success, req.ErrorMessage, req.Payload)

	sent := s.broker.SendResponse(r.Context(), resp)
	writeJSON(w, http.StatusOK, api.SendResponseResponse{
		ResponseID: resp.ResponseID,
		Sent:       sent,
	})
}

func (s *Server) handleReceiveMessages(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]
	since := r.URL.Query().Get("since")

	messages := s.broker.Receive(r.Context(), agentID, since)
	views := make([]api.MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, api.MessageView{
			MessageID:     msg.MessageID,
			Sender:        msg.Sender,
			Recipient:     msg.Recipient,
			Protocol:      string(msg.Protocol),
			Priority:      string(msg.Priority),
			MessageType:   msg.Type,
			Payload:       msg.Payload,
			TaskID:        msg.TaskID,
			Timestamp:     msg.Timestamp,
			RequiresAck:   msg.RequiresAck,
			CorrelationID: msg.CorrelationID,
		})
	}

	writeJSON(w, http.StatusOK, api.ReceiveMessagesResponse{
		AgentID:  agentID,
		Messages: views,
	})
}

func (s *Server) handleReceiveResponses(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]
	since := r.URL.Query().Get("since")

	responses := s.broker.ReceiveResponses(r.Context(), agentID, since)
	views := make([]api.ResponseView, 0, len(responses))
	for _, resp := range responses {
		views = append(views, api.ResponseView{
			ResponseID:        resp.ResponseID,
			OriginalMessageID: resp.OriginalMessageID,
			Sender:            resp.Sender,
			Recipient:         resp.Recipient,
			Success:           resp.Success,
			ErrorMessage:      resp.ErrorMessage,
			Payload:           resp.Payload,
			TaskID:            resp.TaskID,
			Timestamp:         resp.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, api.ReceiveResponsesResponse{
		AgentID:   agentID,
		Responses: views,
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]

	processed := s.broker.ProcessPendingMessages(r.Context(), agentID)
	writeJSON(w, http.StatusOK, api.ProcessResponse{
		AgentID:   agentID,
		Processed: processed,
	})
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	var req api.WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.WorkflowID == "" || len(req.Steps) == 0 {
		http.Error(w, "workflow_id and steps are required", http.StatusBadRequest)
		return
	}

	orchestrator := coordination.NewWorkflowOrchestrator(req.WorkflowID, s.broker.ConversationID(), s.broker)
	for _, step := range req.Steps {
		orchestrator.AddWorkflowStep(step.StepID, step.AgentID, step.TaskDescription, step.Dependencies)
	}

	state := orchestrator.ExecuteWorkflow(r.Context())

	steps := make([]api.WorkflowStepView, 0, len(state.Steps))
	for _, step := range state.Steps {
		steps = append(steps, api.WorkflowStepView{
			StepID:  step.StepID,
			AgentID: step.AgentID,
			Status:  string(step.Status),
			Result:  step.Result,
		})
	}

	writeJSON(w, http.StatusOK, api.WorkflowResponse{
		WorkflowID: state.WorkflowID,
		Status:     string(state.Status),
		Steps:      steps,
		Error:      state.Error,
	})
}
