package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// StepStatus is the lifecycle state of one workflow step. Steps only move
// forward: a completed or failed step is never reopened.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// WorkflowStatus is the overall state of one workflow run.
type WorkflowStatus string

const (
	WorkflowInitialized WorkflowStatus = "initialized"
	WorkflowRunning     WorkflowStatus = "running"
	WorkflowCompleted   WorkflowStatus = "completed"
	WorkflowFailed      WorkflowStatus = "failed"
)

// OrchestratorAgentID is the sender id stamped on workflow handoff messages.
const OrchestratorAgentID = "workflow_orchestrator"

// WorkflowTaskMessageType tags handoff messages dispatched to step agents.
const WorkflowTaskMessageType = "workflow_task"

// WorkflowStep is one unit of orchestrated work assigned to an agent.
type WorkflowStep struct {
	StepID          string         `json:"step_id"`
	AgentID         string         `json:"agent_id"`
	TaskDescription string         `json:"task_description"`
	Dependencies    []string       `json:"dependencies"`
	Status          StepStatus     `json:"status"`
	Result          map[string]any `json:"result,omitempty"`
}

// WorkflowState is the orchestrator's view of one workflow run. Steps keep
// declaration order; Agents maps each agent to the step ids assigned to it;
// Results accumulates per-step outputs that later-dispatched steps see in
// their handoff payload.
type WorkflowState struct {
	WorkflowID     string              `json:"workflow_id"`
	ConversationID string              `json:"conversation_id"`
	Status         WorkflowStatus      `json:"status"`
	Agents         map[string][]string `json:"agents"`
	Steps          []*WorkflowStep     `json:"steps"`
	Results        map[string]any      `json:"results"`
	Error          string              `json:"error,omitempty"`
}

// WorkflowOrchestrator owns one workflow's step graph and drives
// dependency-ordered dispatch through a MessageBroker.
//
// Execution is a single scan of the step list in declaration order: a step
// runs only when every dependency is already completed, and steps whose
// dependencies complete later in the same scan stay pending until the next
// ExecuteWorkflow call. Callers needing full resolution call
// ExecuteWorkflow repeatedly or declare steps in dependency order.
type WorkflowOrchestrator struct {
	broker *MessageBroker

	mu    sync.Mutex
	state *WorkflowState
}

// NewWorkflowOrchestrator creates an orchestrator for one workflow run.
func NewWorkflowOrchestrator(workflowID, conversationID string, broker *MessageBroker) *WorkflowOrchestrator {
	return &WorkflowOrchestrator{
		broker: broker,
		state: &WorkflowState{
			WorkflowID:     workflowID,
			ConversationID: conversationID,
			Status:         WorkflowInitialized,
			Agents:         make(map[string][]string),
			Steps:          []*WorkflowStep{},
			Results:        make(map[string]any),
		},
	}
}

// AddWorkflowStep appends a pending step. Dependencies are ids of other
// steps in the same workflow and are not validated at add time: a
// dependency on an undeclared step simply blocks the step from running.
// Repeated calls for the same agent accumulate its assigned step ids.
func (o *WorkflowOrchestrator) AddWorkflowStep(stepID, agentID, taskDescription string, dependencies []string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	step := &WorkflowStep{
		StepID:          stepID,
		AgentID:         agentID,
		TaskDescription: taskDescription,
		Dependencies:    append([]string(nil), dependencies...),
		Status:          StepPending,
	}
	o.state.Steps = append(o.state.Steps, step)
	o.state.Agents[agentID] = append(o.state.Agents[agentID], stepID)
}

type executionMarker struct {
	WorkflowExecution bool     `json:"workflow_execution"`
	WorkflowID        string   `json:"workflow_id"`
	TotalSteps        int      `json:"total_steps"`
	Agents            []string `json:"agents"`
	StartedAt         string   `json:"started_at"`
}

func (o *WorkflowOrchestrator) writeStartMarker(ctx context.Context) error {
	agents := make([]string, 0, len(o.state.Agents))
	for agentID := range o.state.Agents {
		agents = append(agents, agentID)
	}

	marker := executionMarker{
		WorkflowExecution: true,
		WorkflowID:        o.state.WorkflowID,
		TotalSteps:        len(o.state.Steps),
		Agents:            agents,
		StartedAt:         NowTimestamp(),
	}
	data, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("failed to marshal execution marker: %w", err)
	}

	key := fmt.Sprintf("workflow_%s_execution", o.state.WorkflowID)
	tags := []string{"workflow_execution", "workflow:" + o.state.WorkflowID}
	if err := o.broker.memory.Store(ctx, key, string(data), tags, o.state.ConversationID); err != nil {
		return fmt.Errorf("failed to store execution marker: %w", err)
	}
	return nil
}

// ExecuteWorkflow runs one scan over the step list, dispatching every
// pending step whose dependencies are completed. The workflow ends
// completed even when individual steps fail; only a failure to write the
// start marker fails the run as a whole.
func (o *WorkflowOrchestrator) ExecuteWorkflow(ctx context.Context) *WorkflowState {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.state.Status = WorkflowRunning

	if err := o.writeStartMarker(ctx); err != nil {
		o.state.Status = WorkflowFailed
		o.state.Error = err.Error()
		return o.state
	}

	for _, step := range o.state.Steps {
		if step.Status != StepPending {
			continue
		}
		if !o.dependenciesSatisfied(step) {
			continue
		}
		o.executeStep(ctx, step)
	}

	o.state.Status = WorkflowCompleted
	return o.state
}

// State returns the orchestrator's current workflow state.
func (o *WorkflowOrchestrator) State() *WorkflowState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// dependenciesSatisfied reports whether every dependency of step resolves to
// a declared step in completed state. A dependency naming no declared step
// blocks execution rather than being ignored.
func (o *WorkflowOrchestrator) dependenciesSatisfied(step *WorkflowStep) bool {
	for _, dep := range step.Dependencies {
		satisfied := false
		for _, other := range o.state.Steps {
			if other.StepID != dep {
				continue
			}
			satisfied = other.Status == StepCompleted
			break
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// executeStep dispatches one step to its agent through the broker. Dispatch
// failure is absorbed into the step's own result and never aborts the scan.
func (o *WorkflowOrchestrator) executeStep(ctx context.Context, step *WorkflowStep) {
	step.Status = StepRunning

	results := make(map[string]any, len(o.state.Results))
	for stepID, result := range o.state.Results {
		results[stepID] = result
	}

	msg := &Message{
		MessageID: uuid.NewString(),
		Sender:    OrchestratorAgentID,
		Recipient: step.AgentID,
		Protocol:  ProtocolWorkflowHandoff,
		Priority:  PriorityHigh,
		Type:      WorkflowTaskMessageType,
		Payload: map[string]any{
			"workflow_id":      o.state.WorkflowID,
			"step_id":          step.StepID,
			"task_description": step.TaskDescription,
			"workflow_results": results,
		},
		ConversationID: o.state.ConversationID,
		TaskID:         o.state.WorkflowID,
		Timestamp:      NowTimestamp(),
		RequiresAck:    true,
	}

	if !o.broker.Send(ctx, msg) {
		step.Status = StepFailed
		step.Result = map[string]any{"error": "failed to send task message"}
		return
	}

	step.Status = StepCompleted
	step.Result = map[string]any{
		"message_sent": true,
		"message_id":   msg.MessageID,
	}
	o.state.Results[step.StepID] = step.Result
}
