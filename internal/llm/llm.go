// Package llm rewrites raw voice-memo transcripts into organized prose via a
// chat-completions language model.
package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kylenessen/ramble/internal/faults"
	"github.com/kylenessen/ramble/internal/types"
)

// Enhancer is the enhancement collaborator consumed by the pipeline.
// recordedAt is the recording's creation time, used to resolve date
// ambiguities in spoken content; the zero time means unknown.
type Enhancer interface {
	Enhance(ctx context.Context, transcript *types.TranscriptResult, recordedAt time.Time) (*types.EnhancedContent, error)
}

// parseResponse extracts and validates the model's JSON payload. Models often
// wrap the JSON in prose or code fences, so the payload is taken between the
// first '{' and the last '}'. A structurally invalid payload is a content
// fault: retrying the same prompt will not fix a model that cannot produce
// the shape.
func parseResponse(raw string) (*types.EnhancedContent, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, faults.Contentf("llm.parse", "no JSON object in model response")
	}

	var out types.EnhancedContent
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return nil, faults.Content("llm.parse", err)
	}

	if strings.TrimSpace(out.SessionTitle) == "" {
		return nil, faults.Contentf("llm.parse", "missing required field: session_title")
	}
	if strings.TrimSpace(out.Content) == "" {
		return nil, faults.Contentf("llm.parse", "missing required field: content")
	}
	if out.Keywords == nil {
		return nil, faults.Contentf("llm.parse", "missing required field: keywords")
	}
	if out.OverrideDate != "" && out.OverrideDate != "null" {
		if _, err := time.Parse("2006-01-02", out.OverrideDate); err != nil {
			// A malformed date is dropped rather than failing the memo.
			out.OverrideDate = ""
		}
	} else {
		out.OverrideDate = ""
	}
	return &out, nil
}
