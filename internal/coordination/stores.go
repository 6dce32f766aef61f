package coordination

import "context"

// Document is one stored record returned by a MemoryStore query.
type Document struct {
	Key     string
	Content string
}

// MemoryStore is the durable document store messages and responses are
// persisted into. The query passed to Retrieve is a whitespace-separated
// list of tags, e.g. "mcp_message recipient:agent-b"; a document matches
// when it carries every listed tag. Implementations own their concurrency
// control; the broker treats them as externally synchronized.
type MemoryStore interface {
	Store(ctx context.Context, key, content string, tags []string, conversationID string) error
	Retrieve(ctx context.Context, query, conversationID string) ([]Document, error)
}

// GraphStore records directed annotations between agents. Link failures are
// treated as best-effort enrichment by callers and never affect message
// delivery.
type GraphStore interface {
	Link(ctx context.Context, source, target, relationship string, properties map[string]any) error
}

// Notifier is told about successfully persisted messages so idle agents can
// wake and poll instead of busy-polling the store. Strictly best-effort.
type Notifier interface {
	MessageSent(ctx context.Context, msg *Message) error
}
