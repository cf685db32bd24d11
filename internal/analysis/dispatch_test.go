package analysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quinticechen/alchemist-resume-sub001/internal/broker"
	"github.com/quinticechen/alchemist-resume-sub001/internal/models"
	"github.com/quinticechen/alchemist-resume-sub001/internal/store"
)

type fakeAnalysisStore struct {
	processing []string
	completed  []store.CompleteAnalysisInput
}

func (f *fakeAnalysisStore) CreateAnalysis(ctx context.Context, input store.CreateAnalysisInput) (models.Analysis, error) {
	return models.Analysis{}, nil
}

func (f *fakeAnalysisStore) GetAnalysis(ctx context.Context, userID, analysisID string) (models.Analysis, error) {
	return models.Analysis{}, store.ErrNotFound
}

func (f *fakeAnalysisStore) ListAnalyses(ctx context.Context, userID string) ([]models.Analysis, error) {
	return nil, nil
}

func (f *fakeAnalysisStore) MarkAnalysisProcessing(ctx context.Context, analysisID string) error {
	f.processing = append(f.processing, analysisID)
	return nil
}

func (f *fakeAnalysisStore) CompleteAnalysis(ctx context.Context, input store.CompleteAnalysisInput) (models.Analysis, error) {
	f.completed = append(f.completed, input)
	return models.Analysis{AnalysisID: input.AnalysisID, Status: input.Status}, nil
}

type fakePublisher struct {
	updates []broker.Update
}

func (f *fakePublisher) PublishUpdate(update broker.Update) error {
	f.updates = append(f.updates, update)
	return nil
}

func TestDispatchPostsPayloadAndMarksProcessing(t *testing.T) {
	var received webhookRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	st := &fakeAnalysisStore{}
	pub := &fakePublisher{}
	dispatcher := NewDispatcher(server.URL, "secret", nil, st, pub)

	analysis := models.Analysis{AnalysisID: "a1", ResumeID: "r1", UserID: "u1", JobURL: "https://jobs.example.com/1", Status: models.AnalysisStatusPending}
	resume := models.Resume{ResumeID: "r1", FilePath: "key.pdf", FileName: "resume.pdf"}

	if err := dispatcher.Dispatch(context.Background(), analysis, resume, "https://files.example.com/key.pdf"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if received.AnalysisID != "a1" || received.JobURL != "https://jobs.example.com/1" ||
		received.ResumeURL != "https://files.example.com/key.pdf" || received.FileName != "resume.pdf" {
		t.Fatalf("webhook payload=%+v", received)
	}
	if auth != "Bearer secret" {
		t.Fatalf("auth header=%q", auth)
	}
	if len(st.processing) != 1 || st.processing[0] != "a1" {
		t.Fatalf("processing=%v", st.processing)
	}
	if len(pub.updates) != 1 || pub.updates[0].Status != models.AnalysisStatusProcessing {
		t.Fatalf("updates=%v", pub.updates)
	}
}

func TestDispatchRejectedByWebhook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	st := &fakeAnalysisStore{}
	dispatcher := NewDispatcher(server.URL, "", nil, st, nil)

	err := dispatcher.Dispatch(context.Background(), models.Analysis{AnalysisID: "a1"}, models.Resume{}, "")
	if err == nil {
		t.Fatal("expected webhook error")
	}
	if len(st.processing) != 0 {
		t.Fatalf("marked processing after rejected dispatch: %v", st.processing)
	}
}
