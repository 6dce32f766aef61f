package coordination

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// BroadcastTarget is the graph-edge sentinel recorded in place of a
// recipient when a broadcast is sent.
const BroadcastTarget = "broadcast"

// MessageHandler processes one received message. A nil response with a nil
// error means the handler has nothing to acknowledge.
type MessageHandler func(ctx context.Context, msg *Message) (*Response, error)

// MessageBroker is the durable mailbox shared by agents in one conversation.
// It persists messages to the memory store, reconstructs them on receive and
// dispatches pending messages to registered per-type handlers.
//
// Store-facing operations never return errors: failures are logged and
// collapsed into a false/empty result so coordination keeps functioning when
// the persistence backend is degraded. Callers needing retry implement it
// themselves on top of the boolean results.
type MessageBroker struct {
	memory         MemoryStore
	graph          GraphStore
	notifier       Notifier
	conversationID string

	mu       sync.RWMutex
	handlers map[string]MessageHandler
}

// NewMessageBroker creates a broker scoped to one conversation. The graph
// store may be nil, in which case no sender/recipient edges are recorded.
func NewMessageBroker(memory MemoryStore, graph GraphStore, conversationID string) *MessageBroker {
	return &MessageBroker{
		memory:         memory,
		graph:          graph,
		conversationID: conversationID,
		handlers:       make(map[string]MessageHandler),
	}
}

// SetNotifier attaches a best-effort send notifier. Notifier errors are
// logged and never affect Send's result.
func (b *MessageBroker) SetNotifier(n Notifier) {
	b.notifier = n
}

// ConversationID returns the conversation this broker is scoped to.
func (b *MessageBroker) ConversationID() string {
	return b.conversationID
}

func messageKey(messageID string) string {
	return fmt.Sprintf("message_%s", messageID)
}

func responseKey(responseID string) string {
	return fmt.Sprintf("response_%s", responseID)
}

func messageTags(msg *Message) []string {
	tags := []string{
		"mcp_message",
		"sender:" + msg.Sender,
		"protocol:" + string(msg.Protocol),
		"priority:" + string(msg.Priority),
		"task:" + msg.TaskID,
	}
	if !msg.IsBroadcast() {
		tags = append(tags, "recipient:"+msg.Recipient)
	}
	return tags
}

// Send persists the message and records a sender→recipient graph edge.
// Returns true only when the persistence call succeeds; the graph edge and
// the notifier are best-effort.
func (b *MessageBroker) Send(ctx context.Context, msg *Message) bool {
	data, err := msg.MarshalRecord()
	if err != nil {
		log.Printf("[broker] failed to serialize message %s: %v", msg.MessageID, err)
		return false
	}

	if err := b.memory.Store(ctx, messageKey(msg.MessageID), string(data), messageTags(msg), b.conversationID); err != nil {
		log.Printf("[broker] failed to store message %s: %v", msg.MessageID, err)
		return false
	}

	target := msg.Recipient
	if msg.IsBroadcast() {
		target = BroadcastTarget
	}

	if b.graph != nil {
		props := map[string]any{
			"message_id": msg.MessageID,
			"protocol":   string(msg.Protocol),
			"timestamp":  msg.Timestamp,
		}
		if err := b.graph.Link(ctx, msg.Sender, target, "sent_message", props); err != nil {
			log.Printf("[broker] failed to link %s -> %s: %v", msg.Sender, target, err)
		}
	}

	if b.notifier != nil {
		if err := b.notifier.MessageSent(ctx, msg); err != nil {
			log.Printf("[broker] failed to notify send of %s: %v", msg.MessageID, err)
		}
	}

	return true
}

// Receive returns all stored messages addressed to agentID. When since is a
// non-empty timestamp, only messages strictly newer than it are returned.
// Store failures yield an empty list and individual corrupt records are
// skipped, so one bad record never hides the rest.
func (b *MessageBroker) Receive(ctx context.Context, agentID, since string) []*Message {
	docs, err := b.memory.Retrieve(ctx, "mcp_message recipient:"+agentID, b.conversationID)
	if err != nil {
		log.Printf("[broker] failed to retrieve messages for %s: %v", agentID, err)
		return []*Message{}
	}

	messages := make([]*Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := ParseMessageRecord([]byte(doc.Content), b.conversationID)
		if err != nil {
			log.Printf("[broker] skipping record %s: %v", doc.Key, err)
			continue
		}
		if since != "" && msg.Timestamp <= since {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// SendResponse persists the response. Returns false on any failure.
func (b *MessageBroker) SendResponse(ctx context.Context, resp *Response) bool {
	data, err := resp.MarshalRecord()
	if err != nil {
		log.Printf("[broker] failed to serialize response %s: %v", resp.ResponseID, err)
		return false
	}

	tags := []string{
		"mcp_response",
		"sender:" + resp.Sender,
		"recipient:" + resp.Recipient,
		"task:" + resp.TaskID,
	}
	if err := b.memory.Store(ctx, responseKey(resp.ResponseID), string(data), tags, b.conversationID); err != nil {
		log.Printf("[broker] failed to store response %s: %v", resp.ResponseID, err)
		return false
	}
	return true
}

// ReceiveResponses returns all stored responses addressed to agentID,
// letting a requester collect the acknowledgements for messages it sent
// with RequiresAck. Failure semantics match Receive.
func (b *MessageBroker) ReceiveResponses(ctx context.Context, agentID, since string) []*Response {
	docs, err := b.memory.Retrieve(ctx, "mcp_response recipient:"+agentID, b.conversationID)
	if err != nil {
		log.Printf("[broker] failed to retrieve responses for %s: %v", agentID, err)
		return []*Response{}
	}

	responses := make([]*Response, 0, len(docs))
	for _, doc := range docs {
		resp, err := ParseResponseRecord([]byte(doc.Content), b.conversationID)
		if err != nil {
			log.Printf("[broker] skipping record %s: %v", doc.Key, err)
			continue
		}
		if since != "" && resp.Timestamp <= since {
			continue
		}
		responses = append(responses, resp)
	}
	return responses
}

// RegisterMessageHandler installs the handler for a message type. The last
// registration for a given type wins.
func (b *MessageBroker) RegisterMessageHandler(messageType string, handler MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[messageType] = handler
}

func (b *MessageBroker) handlerFor(messageType string) (MessageHandler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handler, ok := b.handlers[messageType]
	return handler, ok
}

func callHandler(ctx context.Context, handler MessageHandler, msg *Message) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}

// ProcessPendingMessages receives everything addressed to agentID and runs
// each message through its registered handler. Messages without a handler
// are not counted. A handled message counts as processed whether the
// handler succeeds or fails; when the message requires an acknowledgement,
// a failing handler produces an error response in place of its own.
func (b *MessageBroker) ProcessPendingMessages(ctx context.Context, agentID string) int {
	processed := 0
	for _, msg := range b.Receive(ctx, agentID, "") {
		handler, ok := b.handlerFor(msg.Type)
		if !ok {
			continue
		}

		resp, err := callHandler(ctx, handler, msg)
		processed++

		if err != nil {
			log.Printf("[broker] handler for %s failed on message %s: %v", msg.Type, msg.MessageID, err)
			if msg.RequiresAck {
				errResp := NewResponse(msg, false, err.Error(), nil)
				if !b.SendResponse(ctx, errResp) {
					log.Printf("[broker] failed to send error response for message %s", msg.MessageID)
				}
			}
			continue
		}

		if resp != nil && msg.RequiresAck {
			if !b.SendResponse(ctx, resp) {
				log.Printf("[broker] failed to send response for message %s", msg.MessageID)
			}
		}
	}
	return processed
}
