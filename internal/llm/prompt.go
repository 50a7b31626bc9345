package llm

import (
	"fmt"
	"time"
)

const systemPrompt = "You are an expert at processing voice memos into structured, actionable content. Always respond with valid JSON."

// buildPrompt assembles the enhancement prompt around the transcript text.
func buildPrompt(transcript string, recordedAt time.Time) string {
	recorded := "unknown"
	if !recordedAt.IsZero() {
		recorded = recordedAt.Format("2006-01-02 15:04")
	}

	return fmt.Sprintf(`Process this voice memo transcript into a single, organized document:

RECORDING TIMESTAMP: %s

ORIGINAL TRANSCRIPT:
%s

Please:
1. **CLEAN**: Remove filler words (um, uh, like, you know) and fix transcription artifacts (run-on sentences, missing punctuation, capitalization) while preserving the speaker's natural voice and intent
2. **EXCLUDE**: Remove any irrelevant interactions like talking to pets (e.g., "Angus, hurry up"), greeting neighbors, or other incidental conversations that aren't part of the main content
3. **STRUCTURE**: Organize content with clear headings where applicable. If there is a single idea, use only one heading
4. **PRESERVE FLOW**: Maintain the natural progression of topics and the speaker's original meaning
5. **COMPLETE**: Naturally finish any incomplete thoughts without adding new ideas
6. Create concise session title reflecting the main topic
7. If the speaker explicitly names the session date (e.g. "this is my journal for June 7th"), resolve it against the recording timestamp and report it as override_date in YYYY-MM-DD form; otherwise use null

Format response as JSON:
{
  "session_title": "descriptive-session-title",
  "keywords": ["keyword1", "keyword2", "keyword3"],
  "content": "# Session Title\n\nWell-structured markdown content with headings, organized thoughts, and actionable items",
  "override_date": null
}

Ensure the JSON is valid and properly formatted.`, recorded, transcript)
}
