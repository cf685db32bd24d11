package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/quinticechen/alchemist-resume-sub001/internal/billing"
	"github.com/quinticechen/alchemist-resume-sub001/internal/broker"
	"github.com/quinticechen/alchemist-resume-sub001/internal/models"
	"github.com/quinticechen/alchemist-resume-sub001/internal/store"
	"github.com/quinticechen/alchemist-resume-sub001/internal/upload"
)

type Uploader interface {
	Upload(ctx context.Context, userID string, file upload.File) (upload.Result, error)
}

type Dispatcher interface {
	DispatchAsync(analysis models.Analysis, resume models.Resume, resumeURL string)
}

type CheckoutClient interface {
	CreateCheckoutSession(ctx context.Context, plan, interval, successURL, cancelURL string) (billing.CheckoutSession, error)
	VerifySession(ctx context.Context, sessionID string) (bool, error)
}

type UpdatePublisher interface {
	PublishUpdate(update broker.Update) error
}

type Handler struct {
	store         store.Store
	uploader      Uploader
	dispatcher    Dispatcher
	billing       CheckoutClient
	publisher     UpdatePublisher
	callbackToken string
	storageBase   string
	successURL    string
	cancelURL     string
}

type Options struct {
	CallbackToken  string
	StorageBaseURL string
	SuccessURL     string
	CancelURL      string
}

func NewHandler(store store.Store, uploader Uploader, dispatcher Dispatcher, billingClient CheckoutClient, publisher UpdatePublisher, options Options) *Handler {
	return &Handler{
		store:         store,
		uploader:      uploader,
		dispatcher:    dispatcher,
		billing:       billingClient,
		publisher:     publisher,
		callbackToken: options.CallbackToken,
		storageBase:   strings.TrimRight(options.StorageBaseURL, "/"),
		successURL:    options.SuccessURL,
		cancelURL:     options.CancelURL,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/auth/signup", h.handleSignup)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/resumes", h.handleResumes)
	mux.HandleFunc("/api/analyses", h.handleAnalyses)
	mux.HandleFunc("/api/analyses/", h.handleAnalysisByID)
	mux.HandleFunc("/api/billing/checkout", h.handleCheckout)
	mux.HandleFunc("/api/billing/verify", h.handleVerify)
	mux.HandleFunc("/api/support/contact", h.handleSupportContact)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	SessionID string   `json:"session_id"`
	ExpiresAt string   `json:"expires_at"`
	User      userInfo `json:"user"`
}

type userInfo struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	TrialRemaining int    `json:"trial_remaining"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req signupRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}
	if !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "invalid_request", "email must be a valid address")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "invalid_request", "password must be at least 8 characters")
		return
	}

	result, err := h.store.Signup(r.Context(), store.SignupInput{Email: req.Email, Password: req.Password})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email_taken", "email is already registered")
			return
		}
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthResponse(result))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req signupRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	result, err := h.store.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

func toAuthResponse(result store.AuthResult) authResponse {
	return authResponse{
		SessionID: result.Session.SessionID,
		ExpiresAt: result.Session.ExpiresAt.Format(time.RFC3339),
		User: userInfo{
			UserID:         result.User.UserID,
			Email:          result.User.Email,
			TrialRemaining: result.User.TrialRemaining,
		},
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if err := h.store.DeleteSession(r.Context(), info.Session.SessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	writeJSON(w, http.StatusOK, userInfo{
		UserID:         info.User.UserID,
		Email:          info.User.Email,
		TrialRemaining: info.User.TrialRemaining,
	})
}

func (h *Handler) handleResumes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleUploadResume(w, r)
	case http.MethodGet:
		h.handleListResumes(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUploadResume(w http.ResponseWriter, r *http.Request) {
	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	if err := r.ParseMultipartForm(upload.MaxFileSize + 1024); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected multipart form with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, upload.MaxFileSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not read uploaded file")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	result, err := h.uploader.Upload(r.Context(), info.User.UserID, upload.File{
		Name:     header.Filename,
		MimeType: mimeType,
		Data:     data,
	})
	if err != nil {
		var invalid *upload.ValidationError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, "invalid_file", invalid.Reason)
			return
		}
		var failed *upload.UploadError
		if errors.As(err, &failed) {
			writeError(w, http.StatusBadGateway, "storage_unavailable", "could not store the file, please try again")
			return
		}
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"resume_id":  result.RecordID,
		"file_path":  result.FilePath,
		"public_url": result.PublicURL,
	})
}

func (h *Handler) handleListResumes(w http.ResponseWriter, r *http.Request) {
	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	resumes, err := h.store.ListResumes(r.Context(), info.User.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, resumes)
}

type createAnalysisRequest struct {
	ResumeID string `json:"resume_id"`
	JobURL   string `json:"job_url"`
}

func (h *Handler) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateAnalysis(w, r)
	case http.MethodGet:
		h.handleListAnalyses(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req createAnalysisRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.ResumeID = strings.TrimSpace(req.ResumeID)
	req.JobURL = strings.TrimSpace(req.JobURL)
	if req.ResumeID == "" || req.JobURL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "resume_id and job_url are required")
		return
	}
	if !strings.HasPrefix(req.JobURL, "http://") && !strings.HasPrefix(req.JobURL, "https://") {
		writeError(w, http.StatusBadRequest, "invalid_request", "job_url must be an absolute URL")
		return
	}

	resume, err := h.store.GetResume(r.Context(), info.User.UserID, req.ResumeID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	analysis, err := h.store.CreateAnalysis(r.Context(), store.CreateAnalysisInput{
		UserID:   info.User.UserID,
		ResumeID: req.ResumeID,
		JobURL:   req.JobURL,
	})
	if err != nil {
		if errors.Is(err, store.ErrTrialExhausted) {
			writeError(w, http.StatusPaymentRequired, "trial_exhausted", "free analyses used up, a subscription is required")
			return
		}
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	if h.dispatcher != nil {
		h.dispatcher.DispatchAsync(analysis, resume, h.storageBase+"/"+resume.FilePath)
	}

	writeJSON(w, http.StatusAccepted, analysis)
}

func (h *Handler) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	analyses, err := h.store.ListAnalyses(r.Context(), info.User.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, analyses)
}

func (h *Handler) handleAnalysisByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/analyses/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.handleGetAnalysis(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "complete":
		h.handleCompleteAnalysis(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetAnalysis(w http.ResponseWriter, r *http.Request, analysisID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	analysis, err := h.store.GetAnalysis(r.Context(), info.User.UserID, analysisID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type completeAnalysisRequest struct {
	Status       string          `json:"status"`
	AnalysisData json.RawMessage `json:"analysis_data"`
	GoogleDocURL string          `json:"google_doc_url"`
	Reason       string          `json:"reason"`
}

// handleCompleteAnalysis is the callback the workflow engine posts results
// to. It authenticates with the shared callback token rather than a user
// session.
func (h *Handler) handleCompleteAnalysis(w http.ResponseWriter, r *http.Request, analysisID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if h.callbackToken == "" || bearerToken(r.Header.Get("Authorization")) != h.callbackToken {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid callback token")
		return
	}

	var req completeAnalysisRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	if req.Status != models.AnalysisStatusProcessed && req.Status != models.AnalysisStatusFailed {
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be processed or failed")
		return
	}
	if req.Status == models.AnalysisStatusProcessed && req.GoogleDocURL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "google_doc_url is required for processed results")
		return
	}

	analysis, err := h.store.CompleteAnalysis(r.Context(), store.CompleteAnalysisInput{
		AnalysisID:   analysisID,
		Status:       req.Status,
		AnalysisData: req.AnalysisData,
		GoogleDocURL: req.GoogleDocURL,
		Reason:       req.Reason,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "invalid_transition", "analysis already finished")
			return
		}
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	if h.publisher != nil {
		update := broker.Update{
			AnalysisID:   analysis.AnalysisID,
			ResumeID:     analysis.ResumeID,
			UserID:       analysis.UserID,
			Status:       analysis.Status,
			GoogleDocURL: analysis.GoogleDocURL,
			Timestamp:    time.Now().UTC(),
		}
		if err := h.publisher.PublishUpdate(update); err != nil {
			log.Printf("publish analysis update: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, analysis)
}

type checkoutRequest struct {
	Plan     string `json:"plan"`
	Interval string `json:"interval"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req checkoutRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Plan = strings.TrimSpace(req.Plan)
	req.Interval = strings.TrimSpace(req.Interval)
	if req.Plan == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "plan is required")
		return
	}
	if req.Interval == "" {
		req.Interval = "monthly"
	}
	if req.Interval != "monthly" && req.Interval != "annual" {
		writeError(w, http.StatusBadRequest, "invalid_request", "interval must be monthly or annual")
		return
	}

	session, err := h.billing.CreateCheckoutSession(r.Context(), req.Plan, req.Interval, h.successURL, h.cancelURL)
	if err != nil {
		writeError(w, http.StatusBadGateway, "provider_error", "payment provider unavailable")
		return
	}

	if _, err := h.store.CreateSubscription(r.Context(), store.CreateSubscriptionInput{
		UserID:            info.User.UserID,
		Plan:              req.Plan,
		Interval:          req.Interval,
		CheckoutSessionID: session.SessionID,
	}); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

type verifyRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req verifyRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	paid, err := h.billing.VerifySession(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "provider_error", "payment provider unavailable")
		return
	}
	if !paid {
		writeError(w, http.StatusConflict, "payment_incomplete", "checkout session has not been paid")
		return
	}

	subscription, err := h.store.ActivateSubscription(r.Context(), info.User.UserID, req.SessionID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, subscription)
}

type supportRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (h *Handler) handleSupportContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req supportRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Subject = strings.TrimSpace(req.Subject)
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	payload, _ := json.Marshal(map[string]string{
		"user_id": info.User.UserID,
		"email":   info.User.Email,
		"subject": req.Subject,
		"message": req.Message,
	})
	if err := h.store.InsertOutboxEvent(r.Context(), "support.contact", payload); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found", "resource not found"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, store.ErrEmailTaken):
		return http.StatusConflict, "email_taken", "email is already registered"
	case errors.Is(err, store.ErrTrialExhausted):
		return http.StatusPaymentRequired, "trial_exhausted", "free analyses used up"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "analysis state does not allow this action"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
