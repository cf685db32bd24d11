package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quinticechen/alchemist-resume-sub001/internal/models"
)

type SignupInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	User    models.User
	Session models.Session
}

type CreateResumeInput struct {
	UserID   string
	FilePath string
	FileName string
	MimeType string
	FileSize int64
}

type CreateAnalysisInput struct {
	UserID   string
	ResumeID string
	JobURL   string
}

type CompleteAnalysisInput struct {
	AnalysisID   string
	Status       string
	AnalysisData json.RawMessage
	GoogleDocURL string
	Reason       string
}

type CreateSubscriptionInput struct {
	UserID            string
	Plan              string
	Interval          string
	CheckoutSessionID string
}

type AuthStore interface {
	Signup(ctx context.Context, input SignupInput) (AuthResult, error)
	Login(ctx context.Context, email, password string) (AuthResult, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type ResumeStore interface {
	InsertResume(ctx context.Context, input CreateResumeInput) (models.Resume, error)
	GetResume(ctx context.Context, userID, resumeID string) (models.Resume, error)
	ListResumes(ctx context.Context, userID string) ([]models.Resume, error)
}

type AnalysisStore interface {
	CreateAnalysis(ctx context.Context, input CreateAnalysisInput) (models.Analysis, error)
	GetAnalysis(ctx context.Context, userID, analysisID string) (models.Analysis, error)
	ListAnalyses(ctx context.Context, userID string) ([]models.Analysis, error)
	MarkAnalysisProcessing(ctx context.Context, analysisID string) error
	CompleteAnalysis(ctx context.Context, input CompleteAnalysisInput) (models.Analysis, error)
}

type BillingStore interface {
	CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (models.Subscription, error)
	ActivateSubscription(ctx context.Context, userID, checkoutSessionID string) (models.Subscription, error)
	GetSubscription(ctx context.Context, userID string) (models.Subscription, error)
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type Notification struct {
	NotificationID string
	Channel        string
	Recipient      string
	Status         string
	Attempts       int
}

type OutboxStore interface {
	InsertOutboxEvent(ctx context.Context, eventType string, payload json.RawMessage) error
	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]OutboxEvent, error)
	GetLastOffset(ctx context.Context) (time.Time, error)
	UpdateOffset(ctx context.Context, last time.Time) error
	InsertNotification(ctx context.Context, notification Notification) error
	MarkNotificationSent(ctx context.Context, notificationID string) error
	MarkNotificationFailed(ctx context.Context, notificationID, reason string) error
}

type Store interface {
	AuthStore
	ResumeStore
	AnalysisStore
	BillingStore
	OutboxStore
}
