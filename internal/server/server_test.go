package server_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/oldnordic/LTMC-sub008/internal/coordination"
	"github.com/oldnordic/LTMC-sub008/internal/server"
	"github.com/oldnordic/LTMC-sub008/internal/store"
	"github.com/oldnordic/LTMC-sub008/pkg/api"
)

func newTestServer(t *testing.T) (*httptest.Server, *coordination.MessageBroker) {
	t.Helper()
	backend, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "coordination.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	broker := coordination.NewMessageBroker(backend, backend, "conv-1")
	ts := httptest.NewServer(server.New(broker, backend.Ping).Router())
	t.Cleanup(ts.Close)
	return ts, broker
}

func TestSendAndReceiveRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)
	client := api.NewClient(ts.URL)

	sent, err := client.SendMessage(api.SendMessageRequest{
		Sender:      "agent-a",
		Recipient:   "agent-b",
		MessageType: "analysis_request",
		Payload:     map[string]any{"analysis_type": "dependency_mapping"},
		TaskID:      "task-1",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !sent.Sent || sent.MessageID == "" {
		t.Fatalf("send response = %+v", sent)
	}

	received, err := client.ReceiveMessages("agent-b", "")
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if len(received.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(received.Messages))
	}
	msg := received.Messages[0]
	if msg.MessageID != sent.MessageID {
		t.Errorf("message id = %q, want %q", msg.MessageID, sent.MessageID)
	}
	if msg.MessageType != "analysis_request" || !msg.RequiresAck {
		t.Errorf("message = %+v", msg)
	}
	if msg.Payload["analysis_type"] != "dependency_mapping" {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestBroadcastViaAPI(t *testing.T) {
	ts, broker := newTestServer(t)
	client := api.NewClient(ts.URL)

	sent, err := client.SendMessage(api.SendMessageRequest{
		Sender:      "agent-a",
		MessageType: "status_update",
		Broadcast:   true,
		TaskID:      "task-1",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if sent.CorrelationID != "" {
		t.Errorf("broadcast correlation id = %q, want empty", sent.CorrelationID)
	}

	// Broadcasts have no recipient, so a directed receive must not see them.
	if msgs := broker.Receive(context.Background(), "agent-b", ""); len(msgs) != 0 {
		t.Errorf("directed receive returned %d broadcast messages", len(msgs))
	}
}

func TestProcessAndCollectResponsesViaAPI(t *testing.T) {
	ts, broker := newTestServer(t)
	client := api.NewClient(ts.URL)

	broker.RegisterMessageHandler("analysis_request", func(ctx context.Context, msg *coordination.Message) (*coordination.Response, error) {
		return coordination.NewResponse(msg, true, "", map[string]any{"analysis": "done"}), nil
	})

	if _, err := client.SendMessage(api.SendMessageRequest{
		Sender:      "agent-a",
		Recipient:   "agent-b",
		MessageType: "analysis_request",
		TaskID:      "task-1",
	}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	processed, err := client.ProcessPending("agent-b")
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if processed.Processed != 1 {
		t.Fatalf("processed = %d, want 1", processed.Processed)
	}

	responses, err := client.ReceiveResponses("agent-a", "")
	if err != nil {
		t.Fatalf("receive responses failed: %v", err)
	}
	if len(responses.Responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses.Responses))
	}
	if !responses.Responses[0].Success || responses.Responses[0].Payload["analysis"] != "done" {
		t.Errorf("response = %+v", responses.Responses[0])
	}
}

func TestWorkflowEndpointSinglePass(t *testing.T) {
	ts, _ := newTestServer(t)
	client := api.NewClient(ts.URL)

	result, err := client.ExecuteWorkflow(api.WorkflowRequest{
		WorkflowID: "wf-1",
		Steps: []api.WorkflowStepSpec{
			{StepID: "step1", AgentID: "planner", TaskDescription: "Draft the plan"},
			{StepID: "step2", AgentID: "enforcer", TaskDescription: "Review the plan", Dependencies: []string{"step1"}},
		},
	})
	if err != nil {
		t.Fatalf("workflow failed: %v", err)
	}

	if result.Status != string(coordination.WorkflowCompleted) {
		t.Errorf("workflow status = %q", result.Status)
	}
	if result.Steps[0].Status != string(coordination.StepCompleted) {
		t.Errorf("step1 status = %q", result.Steps[0].Status)
	}
	if result.Steps[1].Status != string(coordination.StepPending) {
		t.Errorf("step2 status = %q, want pending after one pass", result.Steps[1].Status)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	client := api.NewClient(ts.URL)

	health, err := client.GetHealth()
	if err != nil {
		t.Fatalf("health failed: %v", err)
	}
	if health.Service != "coordination" || health.Status != "healthy" {
		t.Errorf("health = %+v", health)
	}
}
