package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/quinticechen/alchemist-resume-sub001/internal/broker"
	"github.com/quinticechen/alchemist-resume-sub001/internal/models"
	"github.com/quinticechen/alchemist-resume-sub001/internal/store"
)

// Downloader fetches a stored resume so its text can accompany the webhook
// payload.
type Downloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

type UpdatePublisher interface {
	PublishUpdate(update broker.Update) error
}

// Dispatcher hands an analysis to the external AI workflow. The workflow is
// fire-and-forget: results come back later through the completion callback,
// never through this request.
type Dispatcher struct {
	url        string
	token      string
	client     *http.Client
	downloader Downloader
	store      store.AnalysisStore
	publisher  UpdatePublisher
}

func NewDispatcher(url, token string, downloader Downloader, analysisStore store.AnalysisStore, publisher UpdatePublisher) *Dispatcher {
	return &Dispatcher{
		url:        url,
		token:      token,
		client:     &http.Client{Timeout: 10 * time.Second},
		downloader: downloader,
		store:      analysisStore,
		publisher:  publisher,
	}
}

type webhookRequest struct {
	AnalysisID string `json:"analysisId"`
	ResumeURL  string `json:"resumeUrl"`
	JobURL     string `json:"jobUrl"`
	FileName   string `json:"fileName"`
	ResumeText string `json:"resumeText,omitempty"`
}

// Dispatch posts the analysis to the workflow webhook and marks it
// processing. The resume text is best-effort: a download or extraction
// failure falls back to sending the URL alone.
func (d *Dispatcher) Dispatch(ctx context.Context, analysis models.Analysis, resume models.Resume, resumeURL string) error {
	payload := webhookRequest{
		AnalysisID: analysis.AnalysisID,
		ResumeURL:  resumeURL,
		JobURL:     analysis.JobURL,
		FileName:   resume.FileName,
	}
	if d.downloader != nil {
		data, err := d.downloader.Download(ctx, resume.FilePath)
		if err != nil {
			log.Printf("resume download for dispatch failed: %v", err)
		} else if text, err := ExtractText(data); err != nil {
			log.Printf("resume text extraction failed: %v", err)
		} else {
			payload.ResumeText = text
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("analysis webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("analysis webhook status %d", resp.StatusCode)
	}

	if err := d.store.MarkAnalysisProcessing(ctx, analysis.AnalysisID); err != nil {
		return err
	}
	if d.publisher != nil {
		update := broker.Update{
			AnalysisID: analysis.AnalysisID,
			ResumeID:   analysis.ResumeID,
			UserID:     analysis.UserID,
			Status:     models.AnalysisStatusProcessing,
			Timestamp:  time.Now().UTC(),
		}
		if err := d.publisher.PublishUpdate(update); err != nil {
			log.Printf("publish processing update: %v", err)
		}
	}
	return nil
}

// DispatchAsync runs Dispatch in the background and marks the analysis
// failed when the webhook cannot be reached, so the record never sticks in
// pending for a request that was never accepted.
func (d *Dispatcher) DispatchAsync(analysis models.Analysis, resume models.Resume, resumeURL string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.Dispatch(ctx, analysis, resume, resumeURL); err != nil {
			log.Printf("dispatch analysis %s: %v", analysis.AnalysisID, err)
			if _, markErr := d.store.CompleteAnalysis(ctx, store.CompleteAnalysisInput{
				AnalysisID: analysis.AnalysisID,
				Status:     models.AnalysisStatusFailed,
				Reason:     "workflow dispatch failed",
			}); markErr != nil {
				log.Printf("mark analysis %s failed: %v", analysis.AnalysisID, markErr)
			}
		}
	}()
}
