package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/quinticechen/alchemist-resume-sub001/internal/models"
	"github.com/quinticechen/alchemist-resume-sub001/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionTTL     = 24 * time.Hour
	trialAllowance = 3
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Signup(ctx context.Context, input store.SignupInput) (store.AuthResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.AuthResult{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.AuthResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))
	`, input.Email)
	if err = row.Scan(&exists); err != nil {
		return store.AuthResult{}, err
	}
	if exists {
		err = store.ErrEmailTaken
		return store.AuthResult{}, err
	}

	user := models.User{
		UserID:         uuid.NewString(),
		Email:          input.Email,
		TrialRemaining: trialAllowance,
		Created:        time.Now().UTC(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO users (user_id, email, password_hash, trial_remaining, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.UserID, user.Email, string(hash), user.TrialRemaining, user.Created)
	if err != nil {
		return store.AuthResult{}, err
	}

	payload, _ := json.Marshal(map[string]string{"user_id": user.UserID, "email": user.Email})
	if err = insertOutboxTx(ctx, tx, "user.signed_up", payload); err != nil {
		return store.AuthResult{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return store.AuthResult{}, err
	}

	session, err := s.createSession(ctx, user.UserID)
	if err != nil {
		return store.AuthResult{}, err
	}
	return store.AuthResult{User: user, Session: session}, nil
}

func (s *Store) Login(ctx context.Context, email, password string) (store.AuthResult, error) {
	var user models.User
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, email, password_hash, trial_remaining, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email)
	if err := row.Scan(&user.UserID, &user.Email, &passwordHash, &user.TrialRemaining, &user.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.AuthResult{}, store.ErrInvalidCredentials
		}
		return store.AuthResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return store.AuthResult{}, store.ErrInvalidCredentials
	}

	session, err := s.createSession(ctx, user.UserID)
	if err != nil {
		return store.AuthResult{}, err
	}
	return store.AuthResult{User: user, Session: session}, nil
}

func (s *Store) createSession(ctx context.Context, userID string) (models.Session, error) {
	session := models.Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(sessionTTL),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, session.SessionID, session.UserID, session.ExpiresAt)
	if err != nil {
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error) {
	var session models.Session
	var user models.User
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, s.expires_at,
		       u.user_id, u.email, u.trial_remaining, u.created_at
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt,
		&user.UserID, &user.Email, &user.TrialRemaining, &user.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, models.User{}, store.ErrSessionNotFound
		}
		return models.Session{}, models.User{}, err
	}
	return session, user, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sessions
		WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

func (s *Store) InsertResume(ctx context.Context, input store.CreateResumeInput) (models.Resume, error) {
	resume := models.Resume{
		ResumeID: uuid.NewString(),
		UserID:   input.UserID,
		FilePath: input.FilePath,
		FileName: input.FileName,
		MimeType: input.MimeType,
		FileSize: input.FileSize,
		Created:  time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO resumes (resume_id, user_id, file_path, file_name, mime_type, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, resume.ResumeID, resume.UserID, resume.FilePath, resume.FileName, resume.MimeType, resume.FileSize, resume.Created)
	if err != nil {
		return models.Resume{}, err
	}
	return resume, nil
}

func (s *Store) GetResume(ctx context.Context, userID, resumeID string) (models.Resume, error) {
	var resume models.Resume
	row := s.pool.QueryRow(ctx, `
		SELECT resume_id, user_id, file_path, file_name, mime_type, file_size, created_at
		FROM resumes
		WHERE resume_id = $1 AND user_id = $2
	`, resumeID, userID)
	if err := row.Scan(&resume.ResumeID, &resume.UserID, &resume.FilePath, &resume.FileName, &resume.MimeType, &resume.FileSize, &resume.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Resume{}, store.ErrNotFound
		}
		return models.Resume{}, err
	}
	return resume, nil
}

func (s *Store) ListResumes(ctx context.Context, userID string) ([]models.Resume, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT resume_id, user_id, file_path, file_name, mime_type, file_size, created_at
		FROM resumes
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resumes []models.Resume
	for rows.Next() {
		var resume models.Resume
		if err := rows.Scan(&resume.ResumeID, &resume.UserID, &resume.FilePath, &resume.FileName, &resume.MimeType, &resume.FileSize, &resume.Created); err != nil {
			return nil, err
		}
		resumes = append(resumes, resume)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return resumes, nil
}

func (s *Store) CreateAnalysis(ctx context.Context, input store.CreateAnalysisInput) (models.Analysis, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Analysis{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var trialRemaining int
	row := tx.QueryRow(ctx, `
		SELECT trial_remaining
		FROM users
		WHERE user_id = $1
		FOR UPDATE
	`, input.UserID)
	if err = row.Scan(&trialRemaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrNotFound
		}
		return models.Analysis{}, err
	}

	var subscribed bool
	row = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE user_id = $1 AND status = 'active'
		)
	`, input.UserID)
	if err = row.Scan(&subscribed); err != nil {
		return models.Analysis{}, err
	}

	if !subscribed {
		if trialRemaining <= 0 {
			err = store.ErrTrialExhausted
			return models.Analysis{}, err
		}
		_, err = tx.Exec(ctx, `
			UPDATE users SET trial_remaining = trial_remaining - 1
			WHERE user_id = $1
		`, input.UserID)
		if err != nil {
			return models.Analysis{}, err
		}
	}

	var owned bool
	row = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM resumes WHERE resume_id = $1 AND user_id = $2)
	`, input.ResumeID, input.UserID)
	if err = row.Scan(&owned); err != nil {
		return models.Analysis{}, err
	}
	if !owned {
		err = store.ErrNotFound
		return models.Analysis{}, err
	}

	now := time.Now().UTC()
	analysis := models.Analysis{
		AnalysisID: uuid.NewString(),
		ResumeID:   input.ResumeID,
		UserID:     input.UserID,
		JobURL:     input.JobURL,
		Status:     models.AnalysisStatusPending,
		Created:    now,
		Updated:    now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO analyses (analysis_id, resume_id, user_id, job_url, status, used_trial, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, analysis.AnalysisID, analysis.ResumeID, analysis.UserID, analysis.JobURL, analysis.Status, !subscribed, analysis.Created, analysis.Updated)
	if err != nil {
		return models.Analysis{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Analysis{}, err
	}
	return analysis, nil
}

func (s *Store) GetAnalysis(ctx context.Context, userID, analysisID string) (models.Analysis, error) {
	var analysis models.Analysis
	row := s.pool.QueryRow(ctx, `
		SELECT analysis_id, resume_id, user_id, job_url, status,
		       COALESCE(analysis_data, 'null'::jsonb), COALESCE(google_doc_url, ''), created_at, updated_at
		FROM analyses
		WHERE analysis_id = $1 AND user_id = $2
	`, analysisID, userID)
	if err := scanAnalysis(row, &analysis); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Analysis{}, store.ErrNotFound
		}
		return models.Analysis{}, err
	}
	return analysis, nil
}

func (s *Store) ListAnalyses(ctx context.Context, userID string) ([]models.Analysis, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT analysis_id, resume_id, user_id, job_url, status,
		       COALESCE(analysis_data, 'null'::jsonb), COALESCE(google_doc_url, ''), created_at, updated_at
		FROM analyses
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []models.Analysis
	for rows.Next() {
		var analysis models.Analysis
		if err := scanAnalysis(rows, &analysis); err != nil {
			return nil, err
		}
		analyses = append(analyses, analysis)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return analyses, nil
}

func (s *Store) MarkAnalysisProcessing(ctx context.Context, analysisID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE analyses
		SET status = $1, updated_at = NOW()
		WHERE analysis_id = $2 AND status = $3
	`, models.AnalysisStatusProcessing, analysisID, models.AnalysisStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrInvalidTransition
	}
	return nil
}

func (s *Store) CompleteAnalysis(ctx context.Context, input store.CompleteAnalysisInput) (models.Analysis, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Analysis{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current string
	var userID string
	var usedTrial bool
	row := tx.QueryRow(ctx, `
		SELECT status, user_id, used_trial
		FROM analyses
		WHERE analysis_id = $1
		FOR UPDATE
	`, input.AnalysisID)
	if err = row.Scan(&current, &userID, &usedTrial); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrNotFound
		}
		return models.Analysis{}, err
	}
	if !store.ValidTransition(current, input.Status) {
		err = store.ErrInvalidTransition
		return models.Analysis{}, err
	}

	// A failed run gives the trial credit back: the user was promised the
	// attempt would not count. The row's used_trial flag is cleared so a
	// credit is never refunded twice.
	if store.RefundsTrial(input.Status, usedTrial) {
		_, err = tx.Exec(ctx, `
			UPDATE users SET trial_remaining = trial_remaining + 1
			WHERE user_id = $1
		`, userID)
		if err != nil {
			return models.Analysis{}, err
		}
		_, err = tx.Exec(ctx, `
			UPDATE analyses SET used_trial = FALSE
			WHERE analysis_id = $1
		`, input.AnalysisID)
		if err != nil {
			return models.Analysis{}, err
		}
	}

	var analysis models.Analysis
	var email string
	row = tx.QueryRow(ctx, `
		UPDATE analyses a
		SET status = $1,
		    analysis_data = COALESCE($2::jsonb, a.analysis_data),
		    google_doc_url = COALESCE(NULLIF($3, ''), a.google_doc_url),
		    updated_at = NOW()
		FROM users u
		WHERE a.analysis_id = $4 AND u.user_id = a.user_id
		RETURNING a.analysis_id, a.resume_id, a.user_id, a.job_url, a.status,
		          COALESCE(a.analysis_data, 'null'::jsonb), COALESCE(a.google_doc_url, ''),
		          a.created_at, a.updated_at, u.email
	`, input.Status, nullableJSON(input.AnalysisData), input.GoogleDocURL, input.AnalysisID)
	if err = row.Scan(&analysis.AnalysisID, &analysis.ResumeID, &analysis.UserID, &analysis.JobURL, &analysis.Status,
		&analysis.AnalysisData, &analysis.GoogleDocURL, &analysis.Created, &analysis.Updated, &email); err != nil {
		return models.Analysis{}, err
	}

	payload, _ := json.Marshal(map[string]string{
		"analysis_id":    analysis.AnalysisID,
		"resume_id":      analysis.ResumeID,
		"user_id":        analysis.UserID,
		"email":          email,
		"status":         analysis.Status,
		"google_doc_url": analysis.GoogleDocURL,
		"reason":         input.Reason,
	})
	if err = insertOutboxTx(ctx, tx, "analysis."+analysis.Status, payload); err != nil {
		return models.Analysis{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Analysis{}, err
	}
	if string(analysis.AnalysisData) == "null" {
		analysis.AnalysisData = nil
	}
	return analysis, nil
}

func (s *Store) CreateSubscription(ctx context.Context, input store.CreateSubscriptionInput) (models.Subscription, error) {
	subscription := models.Subscription{
		SubscriptionID:    uuid.NewString(),
		UserID:            input.UserID,
		Plan:              input.Plan,
		Interval:          input.Interval,
		Status:            models.SubscriptionStatusPending,
		CheckoutSessionID: input.CheckoutSessionID,
		Created:           time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (subscription_id, user_id, plan, billing_interval, status, checkout_session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, subscription.SubscriptionID, subscription.UserID, subscription.Plan, subscription.Interval,
		subscription.Status, subscription.CheckoutSessionID, subscription.Created)
	if err != nil {
		return models.Subscription{}, err
	}
	return subscription, nil
}

func (s *Store) ActivateSubscription(ctx context.Context, userID, checkoutSessionID string) (models.Subscription, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Subscription{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var subscription models.Subscription
	var email string
	row := tx.QueryRow(ctx, `
		UPDATE subscriptions s
		SET status = 'active'
		FROM users u
		WHERE s.checkout_session_id = $1 AND s.user_id = $2 AND u.user_id = s.user_id
		RETURNING s.subscription_id, s.user_id, s.plan, s.billing_interval, s.status, s.checkout_session_id, s.created_at, u.email
	`, checkoutSessionID, userID)
	if err = row.Scan(&subscription.SubscriptionID, &subscription.UserID, &subscription.Plan, &subscription.Interval,
		&subscription.Status, &subscription.CheckoutSessionID, &subscription.Created, &email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrNotFound
		}
		return models.Subscription{}, err
	}

	payload, _ := json.Marshal(map[string]string{
		"subscription_id": subscription.SubscriptionID,
		"user_id":         subscription.UserID,
		"email":           email,
		"plan":            subscription.Plan,
	})
	if err = insertOutboxTx(ctx, tx, "subscription.activated", payload); err != nil {
		return models.Subscription{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Subscription{}, err
	}
	return subscription, nil
}

func (s *Store) GetSubscription(ctx context.Context, userID string) (models.Subscription, error) {
	var subscription models.Subscription
	row := s.pool.QueryRow(ctx, `
		SELECT subscription_id, user_id, plan, billing_interval, status, checkout_session_id, created_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	if err := row.Scan(&subscription.SubscriptionID, &subscription.UserID, &subscription.Plan, &subscription.Interval,
		&subscription.Status, &subscription.CheckoutSessionID, &subscription.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Subscription{}, store.ErrNotFound
		}
		return models.Subscription{}, err
	}
	return subscription, nil
}

func (s *Store) InsertOutboxEvent(ctx context.Context, eventType string, payload json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, NOW())
	`, uuid.NewString(), eventType, payload)
	return err
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
		WHERE created_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetLastOffset(ctx context.Context) (time.Time, error) {
	var value time.Time
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time
		FROM notification_offsets
		WHERE id = 1
	`)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return value, nil
}

func (s *Store) UpdateOffset(ctx context.Context, value time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_offsets (id, last_event_time)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_event_time = EXCLUDED.last_event_time
	`, value)
	return err
}

func (s *Store) InsertNotification(ctx context.Context, notification store.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (notification_id, channel, recipient, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, notification.NotificationID, notification.Channel, notification.Recipient, notification.Status, notification.Attempts)
	return err
}

func (s *Store) MarkNotificationSent(ctx context.Context, notificationID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'sent'
		WHERE notification_id = $1
	`, notificationID)
	return err
}

func (s *Store) MarkNotificationFailed(ctx context.Context, notificationID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'failed', attempts = attempts + 1, last_error = $2
		WHERE notification_id = $1
	`, notificationID, reason)
	return err
}

func insertOutboxTx(ctx context.Context, tx pgx.Tx, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, NOW())
	`, uuid.NewString(), eventType, payload)
	return err
}

func nullableJSON(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row scanner, analysis *models.Analysis) error {
	if err := row.Scan(&analysis.AnalysisID, &analysis.ResumeID, &analysis.UserID, &analysis.JobURL, &analysis.Status,
		&analysis.AnalysisData, &analysis.GoogleDocURL, &analysis.Created, &analysis.Updated); err != nil {
		return err
	}
	if string(analysis.AnalysisData) == "null" {
		analysis.AnalysisData = nil
	}
	return nil
}
