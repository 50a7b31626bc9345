package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kylenessen/ramble/internal/config"
	"github.com/kylenessen/ramble/internal/faults"
	"github.com/kylenessen/ramble/internal/logger"
	"github.com/kylenessen/ramble/internal/types"
)

const assemblyAIBaseURL = "https://api.assemblyai.com/v2"

// -------------------------------
//  API Request/Response Structs
// -------------------------------

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type submitRequest struct {
	AudioURL      string `json:"audio_url"`
	SpeakerLabels bool   `json:"speaker_labels"`
	FormatText    bool   `json:"format_text"`
	Punctuate     bool   `json:"punctuate"`
	Disfluencies  bool   `json:"disfluencies"`
	SpeechModel   string `json:"speech_model"`
	LanguageCode  string `json:"language_code"`
}

type transcriptResponse struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"` // queued, processing, completed, error
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	AudioDuration float64 `json:"audio_duration"` // seconds
	LanguageCode  string  `json:"language_code"`
	Error         string  `json:"error"`
	Words         []struct {
		Text       string  `json:"text"`
		Start      int     `json:"start"`
		End        int     `json:"end"`
		Confidence float64 `json:"confidence"`
	} `json:"words"`
}

// AssemblyAI transcribes audio through the AssemblyAI REST API: upload the
// file, submit a transcription job, poll until it settles, and map the result.
type AssemblyAI struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	maxWait      time.Duration
	log          *logger.Logger
}

// NewAssemblyAI builds the production transcriber from config.
func NewAssemblyAI(cfg config.TranscriptionConfig) (*AssemblyAI, error) {
	if cfg.Service != "assemblyai" {
		return nil, fmt.Errorf("unsupported transcription service: %s", cfg.Service)
	}
	return &AssemblyAI{
		apiKey:       cfg.APIKey,
		baseURL:      assemblyAIBaseURL,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: 3 * time.Second,
		maxWait:      30 * time.Minute,
		log:          logger.New(),
	}, nil
}

// Transcribe uploads the local audio file and blocks until the provider
// finishes. Transport and provider failures come back as transport faults;
// the resilience layer decides whether to try again.
func (a *AssemblyAI) Transcribe(ctx context.Context, audioPath string) (*types.TranscriptResult, error) {
	log := a.log.WithItem(filepath.Base(audioPath))
	log.Info("starting transcription")

	audioURL, err := a.upload(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	id, err := a.submit(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	log.WithField("transcript_id", id).Info("transcription job submitted")

	resp, err := a.pollUntilDone(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &types.TranscriptResult{
		Text:          resp.Text,
		Confidence:    resp.Confidence,
		AudioDuration: int(resp.AudioDuration * 1000),
		LanguageCode:  resp.LanguageCode,
	}
	for _, w := range resp.Words {
		result.Words = append(result.Words, types.Word{
			Text:       w.Text,
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Confidence,
		})
	}
	log.WithField("chars", len(result.Text)).Info("transcription completed")
	return result, nil
}

func (a *AssemblyAI) upload(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", faults.Transport("transcription.upload", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/upload", f)
	if err != nil {
		return "", faults.Transport("transcription.upload", err)
	}
	req.Header.Set("Authorization", a.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var out uploadResponse
	if err := a.doJSON(req, &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", faults.Transportf("transcription.upload", "upload response missing upload_url")
	}
	return out.UploadURL, nil
}

func (a *AssemblyAI) submit(ctx context.Context, audioURL string) (string, error) {
	body, _ := json.Marshal(submitRequest{
		AudioURL:      audioURL,
		SpeakerLabels: true,
		FormatText:    true,
		Punctuate:     true,
		Disfluencies:  true,
		SpeechModel:   "best",
		LanguageCode:  "en_us",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", faults.Transport("transcription.submit", err)
	}
	req.Header.Set("Authorization", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var out transcriptResponse
	if err := a.doJSON(req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", faults.Transportf("transcription.submit", "submit response missing id")
	}
	return out.ID, nil
}

func (a *AssemblyAI) pollUntilDone(ctx context.Context, id string) (*transcriptResponse, error) {
	deadline := time.Now().Add(a.maxWait)
	for {
		select {
		case <-ctx.Done():
			return nil, faults.Transport("transcription.poll", ctx.Err())
		case <-time.After(a.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/transcript/"+id, nil)
		if err != nil {
			return nil, faults.Transport("transcription.poll", err)
		}
		req.Header.Set("Authorization", a.apiKey)

		var out transcriptResponse
		if err := a.doJSON(req, &out); err != nil {
			return nil, err
		}

		a.log.WithField("transcript_id", id).WithField("status", out.Status).Debug("polling transcription")

		switch out.Status {
		case "completed":
			return &out, nil
		case "error":
			return nil, faults.Transportf("transcription.poll", "transcription failed: %s", out.Error)
		}

		if time.Now().After(deadline) {
			return nil, faults.Transportf("transcription.poll", "transcription did not complete within %s", a.maxWait)
		}
	}
}

func (a *AssemblyAI) doJSON(req *http.Request, target any) error {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return faults.Transport("transcription.http", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return faults.Transport("transcription.http", err)
	}
	if resp.StatusCode >= 300 {
		return faults.Transportf("transcription.http", "unexpected status %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return faults.Transportf("transcription.http", "decode response: %v", err)
	}
	return nil
}
