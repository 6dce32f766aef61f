// Package notify publishes best-effort wake-up signals when messages are
// persisted, so idle agents can subscribe instead of busy-polling the
// memory store. Delivery is durable only in the store; signals here may be
// lost without affecting correctness.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/oldnordic/LTMC-sub008/internal/coordination"
)

// MessageSentEvent announces one persisted message. Recipient is the
// broadcast sentinel when the message had none.
type MessageSentEvent struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Protocol  string `json:"protocol"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

const subjectPrefix = "coordination.sent."

// NATSNotifier implements coordination.Notifier over a NATS connection.
type NATSNotifier struct {
	conn          *nats.Conn
	subscriptions []*nats.Subscription
}

// NewNATSNotifier connects to NATS with unbounded reconnects, matching the
// best-effort role of the notifier.
func NewNATSNotifier(natsURL string) (*NATSNotifier, error) {
	nc, err := nats.Connect(natsURL,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %v", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Printf("Connected to NATS at %s", natsURL)
	return &NATSNotifier{conn: nc}, nil
}

// MessageSent publishes the send announcement on the recipient's subject.
func (n *NATSNotifier) MessageSent(ctx context.Context, msg *coordination.Message) error {
	recipient := msg.Recipient
	if msg.IsBroadcast() {
		recipient = coordination.BroadcastTarget
	}

	event := MessageSentEvent{
		MessageID: msg.MessageID,
		Sender:    msg.Sender,
		Recipient: recipient,
		Protocol:  string(msg.Protocol),
		Type:      msg.Type,
		Timestamp: msg.Timestamp,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sent event: %w", err)
	}

	if err := n.conn.Publish(subjectPrefix+recipient, data); err != nil {
		return fmt.Errorf("failed to publish sent event: %w", err)
	}
	return nil
}

// Subscribe invokes handler for every send announcement addressed to
// agentID. Pass coordination.BroadcastTarget to observe broadcasts.
func (n *NATSNotifier) Subscribe(agentID string, handler func(MessageSentEvent)) error {
	sub, err := n.conn.Subscribe(subjectPrefix+agentID, func(m *nats.Msg) {
		var event MessageSentEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			log.Printf("Failed to unmarshal sent event: %v", err)
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe for %s: %w", agentID, err)
	}

	n.subscriptions = append(n.subscriptions, sub)
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (n *NATSNotifier) IsConnected() bool {
	return n.conn != nil && n.conn.IsConnected()
}

// Close drops all subscriptions and the connection.
func (n *NATSNotifier) Close() error {
	for _, sub := range n.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("Error unsubscribing: %v", err)
		}
	}
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}
