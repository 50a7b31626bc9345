// Package transcription converts audio recordings into structured transcripts.
package transcription

import (
	"context"
	"fmt"
	"strings"

	"github.com/kylenessen/ramble/internal/types"
)

// Transcriber is the transcription collaborator consumed by the pipeline.
// Implementations may block for the duration of remote processing.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*types.TranscriptResult, error)
}

// wordTableLimit caps the word-level timestamp table in the rendered
// transcript document.
const wordTableLimit = 50

// FormatMarkdown renders a transcript as the raw-transcript document stored
// in the output bundle.
func FormatMarkdown(t *types.TranscriptResult) string {
	var b strings.Builder
	b.WriteString("# Raw Transcript\n\n")
	fmt.Fprintf(&b, "**Duration:** %d ms\n", t.AudioDuration)
	fmt.Fprintf(&b, "**Language:** %s\n", t.LanguageCode)
	fmt.Fprintf(&b, "**Confidence:** %.2f\n\n", t.Confidence)
	b.WriteString("## Transcript Text\n\n")
	b.WriteString(t.Text)
	b.WriteString("\n")

	if len(t.Words) > 0 {
		b.WriteString("\n## Word-Level Timestamps\n\n")
		b.WriteString("| Word | Start (ms) | End (ms) | Confidence |\n")
		b.WriteString("|------|------------|----------|------------|\n")
		for i, w := range t.Words {
			if i == wordTableLimit {
				b.WriteString("| ... | ... | ... | ... |\n")
				break
			}
			fmt.Fprintf(&b, "| %s | %d | %d | %.2f |\n", w.Text, w.Start, w.End, w.Confidence)
		}
	}
	return b.String()
}
