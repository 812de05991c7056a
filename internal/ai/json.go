package ai

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mindwell/apiserver/types"
)

// ErrNoJSON is returned by ExtractJSON when the text holds no parseable JSON.
var ErrNoJSON = errors.New("model output is not valid JSON")

// ExtractJSON decodes model output into v after removing markdown code
// fences. Any parse failure is reported as ErrNoJSON.
func ExtractJSON(text string, v any) error {
	clean := strings.ReplaceAll(text, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return errors.Join(ErrNoJSON, err)
	}
	return nil
}

// ParseAnalysis decodes an analysis object. The boolean is false when the
// text could not be parsed or names no emotional state, in which case the
// returned value is the neutral analysis.
func ParseAnalysis(text string) (types.Analysis, bool) {
	var analysis types.Analysis
	if err := ExtractJSON(text, &analysis); err != nil {
		return NeutralAnalysis(), false
	}
	if strings.TrimSpace(analysis.EmotionalState) == "" {
		return NeutralAnalysis(), false
	}
	if analysis.Themes == nil {
		analysis.Themes = []string{}
	}
	if analysis.ProgressIndicators == nil {
		analysis.ProgressIndicators = []string{}
	}
	return analysis, true
}
