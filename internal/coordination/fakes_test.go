package coordination_test

import (
	"context"
	"errors"
	"strings"

	"github.com/oldnordic/LTMC-sub008/internal/coordination"
)

type fakeDoc struct {
	content        string
	tags           map[string]bool
	conversationID string
}

// fakeMemoryStore is an in-memory MemoryStore with injectable failures.
type fakeMemoryStore struct {
	docs        map[string]fakeDoc
	order       []string
	storeErr    error
	storeErrOn  string // key prefix that triggers storeErr; empty matches all
	retrieveErr error
}

func newFakeMemoryStore() *fakeMemoryStore {
	return &fakeMemoryStore{docs: map[string]fakeDoc{}}
}

func (f *fakeMemoryStore) Store(ctx context.Context, key, content string, tags []string, conversationID string) error {
	if f.storeErr != nil && (f.storeErrOn == "" || strings.HasPrefix(key, f.storeErrOn)) {
		return f.storeErr
	}
	tagSet := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tagSet[tag] = true
	}
	if _, exists := f.docs[key]; !exists {
		f.order = append(f.order, key)
	}
	f.docs[key] = fakeDoc{content: content, tags: tagSet, conversationID: conversationID}
	return nil
}

func (f *fakeMemoryStore) Retrieve(ctx context.Context, query, conversationID string) ([]coordination.Document, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	terms := strings.Fields(query)
	var docs []coordination.Document
	for _, key := range f.order {
		doc := f.docs[key]
		if doc.conversationID != conversationID {
			continue
		}
		matches := true
		for _, term := range terms {
			if !doc.tags[term] {
				matches = false
				break
			}
		}
		if matches {
			docs = append(docs, coordination.Document{Key: key, Content: doc.content})
		}
	}
	return docs, nil
}

// put injects a raw document, bypassing the broker's serialization. Used to
// plant corrupt records.
func (f *fakeMemoryStore) put(key, content, conversationID string, tags ...string) {
	_ = f.Store(context.Background(), key, content, tags, conversationID)
}

type fakeLink struct {
	source, target, relationship string
	properties                   map[string]any
}

type fakeGraphStore struct {
	links   []fakeLink
	linkErr error
}

func (f *fakeGraphStore) Link(ctx context.Context, source, target, relationship string, properties map[string]any) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links = append(f.links, fakeLink{source: source, target: target, relationship: relationship, properties: properties})
	return nil
}

type fakeNotifier struct {
	sent      []string
	notifyErr error
}

func (f *fakeNotifier) MessageSent(ctx context.Context, msg *coordination.Message) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.sent = append(f.sent, msg.MessageID)
	return nil
}

var errBackendDown = errors.New("backend unavailable")
