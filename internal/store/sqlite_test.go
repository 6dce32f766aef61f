package store_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/oldnordic/LTMC-sub008/internal/coordination"
	"github.com/oldnordic/LTMC-sub008/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "coordination.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRetrieveByTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	puts := []struct {
		key, content string
		tags         []string
	}{
		{"message_1", `{"id":1}`, []string{"mcp_message", "recipient:agent-b", "sender:agent-a"}},
		{"message_2", `{"id":2}`, []string{"mcp_message", "recipient:agent-b", "sender:agent-c"}},
		{"message_3", `{"id":3}`, []string{"mcp_message", "recipient:agent-x", "sender:agent-a"}},
		{"response_1", `{"id":4}`, []string{"mcp_response", "recipient:agent-b"}},
	}
	for _, p := range puts {
		if err := s.Store(ctx, p.key, p.content, p.tags, "conv-1"); err != nil {
			t.Fatalf("store %s failed: %v", p.key, err)
		}
	}

	tests := []struct {
		name     string
		query    string
		wantKeys []string
	}{
		{"single tag", "mcp_message", []string{"message_1", "message_2", "message_3"}},
		{"two tags", "mcp_message recipient:agent-b", []string{"message_1", "message_2"}},
		{"three tags", "mcp_message recipient:agent-b sender:agent-a", []string{"message_1"}},
		{"responses only", "mcp_response recipient:agent-b", []string{"response_1"}},
		{"no match", "mcp_message recipient:nobody", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Retrieve(ctx, tt.query, "conv-1")
			if err != nil {
				t.Fatalf("retrieve failed: %v", err)
			}
			if len(docs) != len(tt.wantKeys) {
				t.Fatalf("got %d documents, want %d", len(docs), len(tt.wantKeys))
			}
			for i, want := range tt.wantKeys {
				if docs[i].Key != want {
					t.Errorf("docs[%d].Key = %q, want %q", i, docs[i].Key, want)
				}
			}
		})
	}
}

func TestSQLiteStoreConversationIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Store(ctx, "message_1", `{"id":1}`, []string{"mcp_message"}, "conv-1"); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	docs, err := s.Retrieve(ctx, "mcp_message", "conv-2")
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("conv-2 sees %d documents from conv-1", len(docs))
	}
}

func TestSQLiteStoreOverwriteReplacesContentAndTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Store(ctx, "message_1", `{"v":1}`, []string{"mcp_message", "recipient:agent-b"}, "conv-1"); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := s.Store(ctx, "message_1", `{"v":2}`, []string{"mcp_message", "recipient:agent-c"}, "conv-1"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	if docs, _ := s.Retrieve(ctx, "mcp_message recipient:agent-b", "conv-1"); len(docs) != 0 {
		t.Errorf("stale tag still matches %d documents", len(docs))
	}
	docs, err := s.Retrieve(ctx, "mcp_message recipient:agent-c", "conv-1")
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != `{"v":2}` {
		t.Errorf("docs = %+v, want single updated document", docs)
	}
}

func TestSQLiteStoreRejectsEmptyQuery(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Retrieve(context.Background(), "   ", "conv-1"); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestSQLiteStoreLink(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "links.db")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	defer s.Close()

	props := map[string]any{"message_id": "m-1", "protocol": "request_response"}
	if err := s.Link(ctx, "agent-a", "agent-b", "sent_message", props); err != nil {
		t.Fatalf("link failed: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer db.Close()

	var source, target, relationship, properties string
	err = db.QueryRow("SELECT source, target, relationship, properties FROM links").
		Scan(&source, &target, &relationship, &properties)
	if err != nil {
		t.Fatalf("failed to read link row: %v", err)
	}
	if source != "agent-a" || target != "agent-b" || relationship != "sent_message" {
		t.Errorf("link row = %s -> %s (%s)", source, target, relationship)
	}
	if properties == "" || properties == "null" {
		t.Errorf("properties = %q, want JSON object", properties)
	}
}

func TestBrokerEndToEndOverSQLite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	broker := coordination.NewMessageBroker(s, s, "conv-1")

	payload := map[string]any{"analysis_type": "dependency_mapping"}
	msg := coordination.NewRequestResponseMessage("A", "B", "analysis_request", payload, "conv-1", "task-1")
	if !broker.Send(ctx, msg) {
		t.Fatal("send failed")
	}

	received := broker.Receive(ctx, "B", "")
	if len(received) != 1 {
		t.Fatalf("got %d messages, want 1", len(received))
	}
	if received[0].MessageID != msg.MessageID {
		t.Errorf("message id = %q, want %q", received[0].MessageID, msg.MessageID)
	}
	if received[0].Payload["analysis_type"] != "dependency_mapping" {
		t.Errorf("payload = %v", received[0].Payload)
	}
}
