package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oldnordic/LTMC-sub008/cmd/utils"
	"github.com/oldnordic/LTMC-sub008/internal/coordination"
	"github.com/oldnordic/LTMC-sub008/internal/notify"
	"github.com/oldnordic/LTMC-sub008/internal/server"
	"github.com/oldnordic/LTMC-sub008/internal/store"
)

// backend is what a persistence implementation must provide to serve the
// daemon: both store roles plus lifecycle.
type backend interface {
	coordination.MemoryStore
	coordination.GraphStore
	Ping(ctx context.Context) error
	Close() error
}

func newBackend() (backend, error) {
	switch kind := utils.GetEnv("MEMORY_BACKEND", "sqlite"); kind {
	case "redis":
		return store.NewRedisStore(utils.GetEnv("REDIS_URL", "redis://localhost:6379"))
	default:
		return store.NewSQLiteStore(utils.GetEnv("SQLITE_PATH", "coordination.db"))
	}
}

func main() {
	conversationID := utils.GetEnv("CONVERSATION_ID", "default")
	httpAddr := utils.GetEnv("HTTP_ADDR", ":8080")

	persistence, err := newBackend()
	if err != nil {
		log.Fatalf("Failed to initialize backend: %v", err)
	}
	defer persistence.Close()

	broker := coordination.NewMessageBroker(persistence, persistence, conversationID)

	// Workflow handoffs delivered to this daemon are acknowledged so the
	// orchestrating side can see them picked up.
	broker.RegisterMessageHandler(coordination.WorkflowTaskMessageType, func(ctx context.Context, msg *coordination.Message) (*coordination.Response, error) {
		log.Printf("[%s] Acknowledging workflow task %s", msg.Recipient, msg.MessageID)
		return coordination.NewResponse(msg, true, "", map[string]any{
			"acknowledged": true,
			"step_id":      msg.Payload["step_id"],
		}), nil
	})

	var notifier *notify.NATSNotifier
	if natsURL := utils.GetEnv("NATS_URL", ""); natsURL != "" {
		notifier, err = notify.NewNATSNotifier(natsURL)
		if err != nil {
			log.Printf("Send notifications disabled: %v", err)
		} else {
			broker.SetNotifier(notifier)
			defer notifier.Close()
		}
	}

	apiServer := server.New(broker, persistence.Ping)
	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: apiServer.Router(),
	}

	go func() {
		log.Printf("Coordination service starting on %s (conversation %s)", httpAddr, conversationID)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down coordination service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Coordination service stopped")
}
