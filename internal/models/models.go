package models

import (
	"encoding/json"
	"time"
)

type User struct {
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	TrialRemaining int       `json:"trial_remaining"`
	Created        time.Time `json:"created_at"`
}

type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Resume struct {
	ResumeID string    `json:"resume_id"`
	UserID   string    `json:"user_id"`
	FilePath string    `json:"file_path"`
	FileName string    `json:"file_name"`
	MimeType string    `json:"mime_type"`
	FileSize int64     `json:"file_size"`
	Created  time.Time `json:"created_at"`
}

const (
	AnalysisStatusPending    = "pending"
	AnalysisStatusProcessing = "processing"
	AnalysisStatusProcessed  = "processed"
	AnalysisStatusFailed     = "failed"
)

type Analysis struct {
	AnalysisID   string          `json:"analysis_id"`
	ResumeID     string          `json:"resume_id"`
	UserID       string          `json:"user_id"`
	JobURL       string          `json:"job_url"`
	Status       string          `json:"status"`
	AnalysisData json.RawMessage `json:"analysis_data,omitempty"`
	GoogleDocURL string          `json:"google_doc_url,omitempty"`
	Created      time.Time       `json:"created_at"`
	Updated      time.Time       `json:"updated_at"`
}

const (
	SubscriptionStatusPending = "pending"
	SubscriptionStatusActive  = "active"
	SubscriptionStatusExpired = "expired"
)

type Subscription struct {
	SubscriptionID    string    `json:"subscription_id"`
	UserID            string    `json:"user_id"`
	Plan              string    `json:"plan"`
	Interval          string    `json:"interval"`
	Status            string    `json:"status"`
	CheckoutSessionID string    `json:"checkout_session_id"`
	Created           time.Time `json:"created_at"`
}
