package upload

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quinticechen/alchemist-resume-sub001/internal/models"
	"github.com/quinticechen/alchemist-resume-sub001/internal/retry"
	"github.com/quinticechen/alchemist-resume-sub001/internal/store"
)

type fakeStorage struct {
	putCalls int
	failures int
	lastKey  string
}

func (f *fakeStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	f.putCalls++
	f.lastKey = key
	if f.putCalls <= f.failures {
		return errors.New("transient storage error")
	}
	return nil
}

func (f *fakeStorage) PublicURL(key string) string {
	return "https://files.example.com/" + key
}

type fakeMetadata struct {
	inserts int
	input   store.CreateResumeInput
}

func (f *fakeMetadata) InsertResume(ctx context.Context, input store.CreateResumeInput) (models.Resume, error) {
	f.inserts++
	f.input = input
	return models.Resume{
		ResumeID: "resume-1",
		UserID:   input.UserID,
		FilePath: input.FilePath,
		FileName: input.FileName,
		MimeType: input.MimeType,
		FileSize: input.FileSize,
	}, nil
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 4, Delay: time.Millisecond}
}

func pdfFile(size int) File {
	return File{Name: "resume.pdf", MimeType: "application/pdf", Data: bytes.Repeat([]byte{0x25}, size)}
}

func TestOversizeRejectedBeforeAnyNetworkCall(t *testing.T) {
	storage := &fakeStorage{}
	metadata := &fakeMetadata{}
	coordinator := NewCoordinator(storage, metadata, testPolicy(), nil)

	_, err := coordinator.Upload(context.Background(), "u1", pdfFile(MaxFileSize+1))

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("err=%v, want ValidationError", err)
	}
	if storage.putCalls != 0 {
		t.Fatalf("storage called %d times for an invalid file", storage.putCalls)
	}
	if metadata.inserts != 0 {
		t.Fatalf("metadata inserted %d times for an invalid file", metadata.inserts)
	}
}

func TestWrongMimeTypeRejected(t *testing.T) {
	storage := &fakeStorage{}
	coordinator := NewCoordinator(storage, &fakeMetadata{}, testPolicy(), nil)

	file := File{Name: "resume.docx", MimeType: "application/msword", Data: []byte("x")}
	_, err := coordinator.Upload(context.Background(), "u1", file)

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("err=%v, want ValidationError", err)
	}
	if storage.putCalls != 0 {
		t.Fatalf("storage called %d times for an invalid file", storage.putCalls)
	}
}

func TestTransientFailuresRetriedThenRecorded(t *testing.T) {
	storage := &fakeStorage{failures: 2}
	metadata := &fakeMetadata{}
	coordinator := NewCoordinator(storage, metadata, testPolicy(), nil)

	result, err := coordinator.Upload(context.Background(), "u1", pdfFile(1024))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if storage.putCalls != 3 {
		t.Fatalf("putCalls=%d, want exactly 3", storage.putCalls)
	}
	if metadata.inserts != 1 {
		t.Fatalf("inserts=%d, want exactly 1", metadata.inserts)
	}
	if result.RecordID != "resume-1" {
		t.Fatalf("RecordID=%q", result.RecordID)
	}
	if !strings.HasSuffix(result.FilePath, ".pdf") {
		t.Fatalf("FilePath=%q, want generated key keeping the extension", result.FilePath)
	}
	if result.PublicURL != "https://files.example.com/"+result.FilePath {
		t.Fatalf("PublicURL=%q", result.PublicURL)
	}
	if metadata.input.FileSize != 1024 {
		t.Fatalf("recorded size=%d, want 1024", metadata.input.FileSize)
	}
}

func TestExhaustedRetriesReturnUploadError(t *testing.T) {
	storage := &fakeStorage{failures: 10}
	metadata := &fakeMetadata{}
	coordinator := NewCoordinator(storage, metadata, testPolicy(), nil)

	_, err := coordinator.Upload(context.Background(), "u1", pdfFile(16))

	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("err=%v, want UploadError", err)
	}
	if storage.putCalls != 4 {
		t.Fatalf("putCalls=%d, want 4 (one attempt plus three retries)", storage.putCalls)
	}
	if metadata.inserts != 0 {
		t.Fatalf("inserts=%d, want 0 after terminal failure", metadata.inserts)
	}
}

func TestGeneratedKeysDoNotCollide(t *testing.T) {
	storage := &fakeStorage{}
	coordinator := NewCoordinator(storage, &fakeMetadata{}, testPolicy(), nil)

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		result, err := coordinator.Upload(context.Background(), "u1", pdfFile(8))
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		if seen[result.FilePath] {
			t.Fatalf("key %q generated twice", result.FilePath)
		}
		seen[result.FilePath] = true
	}
}
