package types

import "time"

// PendingItem identifies one unprocessed recording discovered in the inbox.
// CreatedTime is the best available creation timestamp: a device-embedded
// recording time when the filename carries one, otherwise the storage
// provider's timestamp. Immutable once listed.
type PendingItem struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	CreatedTime time.Time `json:"created_time"`
	ID          string    `json:"id"`
}

// Word is one word-level entry of a transcript, times in milliseconds.
type Word struct {
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// TranscriptResult is the structured output of the transcription collaborator.
type TranscriptResult struct {
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	AudioDuration int     `json:"audio_duration"` // milliseconds
	LanguageCode  string  `json:"language_code"`
	Words         []Word  `json:"words"`
}

// EnhancedContent is the organized document derived from a transcript.
type EnhancedContent struct {
	SessionTitle string   `json:"session_title"`
	Keywords     []string `json:"keywords"`
	Content      string   `json:"content"`
	// OverrideDate is set when the speaker named an authoritative session
	// date in the recording, formatted YYYY-MM-DD. Empty otherwise.
	OverrideDate string `json:"override_date,omitempty"`
}

// BundleMetadata is the metadata document written into each output bundle.
type BundleMetadata struct {
	ProcessingDate       string  `json:"processing_date"`
	OriginalFilename     string  `json:"original_filename"`
	SessionTitle         string  `json:"session_title"`
	OverrideDate         string  `json:"override_date,omitempty"`
	DurationSeconds      float64 `json:"duration_seconds"`
	OriginalSizeMB       float64 `json:"original_size_mb"`
	CompressedSizeMB     float64 `json:"compressed_size_mb"`
	TranscriptionService string  `json:"transcription_service"`
	LLMService           string  `json:"llm_service"`
	AudioFilename        string  `json:"audio_filename"`
	TranscriptFilename   string  `json:"transcript_filename"`
	ContentFilename      string  `json:"content_filename"`
	WordCount            int     `json:"word_count"`
}
