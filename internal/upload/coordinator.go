package upload

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/quinticechen/alchemist-resume-sub001/internal/models"
	"github.com/quinticechen/alchemist-resume-sub001/internal/retry"
	"github.com/quinticechen/alchemist-resume-sub001/internal/store"

	"github.com/google/uuid"
)

// MaxFileSize is the upload ceiling in bytes.
const MaxFileSize = 5 * 1000 * 1000

const pdfMimeType = "application/pdf"

// ValidationError rejects a file before any network call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid resume file: " + e.Reason
}

// UploadError reports storage-write retries exhausted.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return "resume upload failed: " + e.Err.Error()
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type File struct {
	Name     string
	MimeType string
	Data     []byte
}

type Result struct {
	FilePath  string
	PublicURL string
	RecordID  string
}

type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) string
}

type MetadataStore interface {
	InsertResume(ctx context.Context, input store.CreateResumeInput) (models.Resume, error)
}

// Notifier surfaces the terminal outcome of an upload to the user.
type Notifier interface {
	UploadSucceeded(resume models.Resume)
	UploadFailed(err error)
}

type LogNotifier struct{}

func (LogNotifier) UploadSucceeded(resume models.Resume) {
	log.Printf("resume uploaded resume_id=%s file=%s", resume.ResumeID, resume.FileName)
}

func (LogNotifier) UploadFailed(err error) {
	log.Printf("resume upload failed: %v", err)
}

// DefaultPolicy is one attempt plus three retries, one second apart.
func DefaultPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 4, Delay: time.Second}
}

type Coordinator struct {
	storage ObjectStorage
	store   MetadataStore
	policy  retry.Policy
	notify  Notifier
}

func NewCoordinator(storage ObjectStorage, metadata MetadataStore, policy retry.Policy, notify Notifier) *Coordinator {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy()
	}
	if notify == nil {
		notify = LogNotifier{}
	}
	return &Coordinator{storage: storage, store: metadata, policy: policy, notify: notify}
}

// Upload validates the file, writes it to object storage with bounded
// retries, records the metadata row, and returns the identifiers. A key is
// never referenced without a corresponding metadata insert, so a partially
// written object on failure is left in place.
func (c *Coordinator) Upload(ctx context.Context, userID string, file File) (Result, error) {
	if err := validate(file); err != nil {
		c.notify.UploadFailed(err)
		return Result{}, err
	}

	key := uuid.NewString() + filepath.Ext(file.Name)

	_, err := retry.Do(ctx, c.policy, func() (struct{}, error) {
		return struct{}{}, c.storage.Put(ctx, key, file.Data, file.MimeType)
	})
	if err != nil {
		uploadErr := &UploadError{Err: err}
		c.notify.UploadFailed(uploadErr)
		return Result{}, uploadErr
	}

	publicURL := c.storage.PublicURL(key)

	resume, err := c.store.InsertResume(ctx, store.CreateResumeInput{
		UserID:   userID,
		FilePath: key,
		FileName: file.Name,
		MimeType: file.MimeType,
		FileSize: int64(len(file.Data)),
	})
	if err != nil {
		wrapped := fmt.Errorf("record resume metadata: %w", err)
		c.notify.UploadFailed(wrapped)
		return Result{}, wrapped
	}

	c.notify.UploadSucceeded(resume)
	return Result{FilePath: key, PublicURL: publicURL, RecordID: resume.ResumeID}, nil
}

func validate(file File) error {
	if file.MimeType != pdfMimeType {
		return &ValidationError{Reason: fmt.Sprintf("unsupported file type %q, only PDF is accepted", file.MimeType)}
	}
	if len(file.Data) == 0 {
		return &ValidationError{Reason: "empty file"}
	}
	if len(file.Data) > MaxFileSize {
		return &ValidationError{Reason: fmt.Sprintf("file size %d exceeds the %d byte limit", len(file.Data), MaxFileSize)}
	}
	return nil
}
