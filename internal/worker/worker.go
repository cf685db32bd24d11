package worker

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quinticechen/alchemist-resume-sub001/internal/retry"
	"github.com/quinticechen/alchemist-resume-sub001/internal/store"
)


type Worker struct {
	store       store.OutboxStore
	batchSize   int
	maxAttempts int
	retryDelay  time.Duration
	provider    Provider
}

type payloadData map[string]interface{}

type Config struct {
	BatchSize     int
	MaxAttempts   int
	RetryDelay    time.Duration
	EmailProvider string
}

func New(store store.OutboxStore, cfg Config) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Worker{
		store:       store,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		provider:    newProvider(cfg.EmailProvider),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	last, err := w.store.GetLastOffset(ctx)
	if err != nil {
		return err
	}

	events, err := w.store.ListOutboxEvents(ctx, last, w.batchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := w.processEvent(ctx, event); err != nil {
			log.Printf("notif process error: %v", err)
		}
		last = event.CreatedAt
	}

	if !last.IsZero() {
		if err := w.store.UpdateOffset(ctx, last); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) processEvent(ctx context.Context, event store.OutboxEvent) error {
	payload := payloadData{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}

	body := templateForEvent(event.Type)
	if body == "" {
		return nil
	}

	recipient := findRecipient(payload)
	if recipient == "" {
		return nil
	}

	message := renderTemplate(body, payload)

	notification := store.Notification{
		NotificationID: uuid.NewString(),
		Channel:        "email",
		Recipient:      recipient,
		Status:         "pending",
		Attempts:       1,
	}
	if err := w.store.InsertNotification(ctx, notification); err != nil {
		return err
	}

	_, providerErr := retry.Do(ctx, retry.Policy{MaxAttempts: w.maxAttempts, Delay: w.retryDelay}, func() (struct{}, error) {
		return struct{}{}, w.provider.Send(ctx, message, recipient)
	})
	if providerErr != nil {
		return w.store.MarkNotificationFailed(ctx, notification.NotificationID, providerErr.Error())
	}
	return w.store.MarkNotificationSent(ctx, notification.NotificationID)
}

func templateForEvent(eventType string) string {
	switch eventType {
	case "user.signed_up":
		return "Welcome to Resume Alchemist. Your account includes 3 free resume optimizations."
	case "analysis.processed":
		return "Your optimized resume is ready: {google_doc_url}"
	case "analysis.failed":
		return "We could not process your resume. Your usage has not been counted. {reason}"
	case "subscription.activated":
		return "Your {plan} subscription is now active."
	case "support.contact":
		return "We received your message and will get back to you shortly."
	default:
		return ""
	}
}

func renderTemplate(template string, payload payloadData) string {
	result := template
	result = strings.ReplaceAll(result, "{google_doc_url}", str(payload, "google_doc_url"))
	result = strings.ReplaceAll(result, "{reason}", str(payload, "reason"))
	result = strings.ReplaceAll(result, "{plan}", str(payload, "plan"))
	result = strings.ReplaceAll(result, "{email}", str(payload, "email"))
	return strings.TrimSpace(result)
}

func str(payload payloadData, key string) string {
	if value, ok := payload[key]; ok {
		if text, ok := value.(string); ok {
			return text
		}
	}
	return ""
}

func findRecipient(payload payloadData) string {
	if email, ok := payload["email"].(string); ok && email != "" {
		return email
	}
	return ""
}

func Start(ctx context.Context, interval time.Duration, w *Worker) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Run(ctx); err != nil {
				log.Printf("notif worker error: %v", err)
			}
		}
	}
}
