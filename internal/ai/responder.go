package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mindwell/apiserver/types"
)

// FallbackReply is returned to the user whenever the reply call fails.
const FallbackReply = "I hear you. I'm here with you. Could you tell me more about what you're feeling right now?"

const defaultSystemPrompt = "You are a licensed AI therapist. Respond empathetically using a CBT-like style. " +
	"Keep the user safe: if they mention self-harm, encourage them to contact local emergency services or a crisis line."

// NeutralAnalysis is substituted when the analysis call fails or returns
// something that cannot be parsed.
func NeutralAnalysis() types.Analysis {
	return types.Analysis{
		EmotionalState:      "neutral",
		Themes:              []string{},
		RiskLevel:           0,
		RecommendedApproach: "supportive",
		ProgressIndicators:  []string{},
	}
}

// Result is the outcome of a single chat turn.
type Result struct {
	Analysis types.Analysis
	Reply    string

	// Degraded is set when either value is a fallback.
	Degraded bool
}

// SessionAnalysis summarises a whole conversation or a set of session notes.
type SessionAnalysis struct {
	Themes              []string `json:"themes"`
	EmotionalSummary    string   `json:"emotionalSummary"`
	RiskFindings        []string `json:"riskFindings"`
	FollowUpSuggestions []string `json:"followUpSuggestions"`
}

// Responder turns user messages into an analysis and an assistant reply.
// The foreground chat path and the background workflow share it.
type Responder struct {
	model         Model
	logger        *slog.Logger
	historyWindow int
	systemPrompt  string
	callTimeout   time.Duration
}

func NewResponder(model Model, logger *slog.Logger, historyWindow int) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	if historyWindow < 0 {
		historyWindow = 0
	}
	return &Responder{
		model:         model,
		logger:        logger,
		historyWindow: historyWindow,
		systemPrompt:  defaultSystemPrompt,
	}
}

// WithCallTimeout bounds every model call made by the responder. A turn makes
// two calls, so the request deadline must leave room for both.
func (r *Responder) WithCallTimeout(d time.Duration) *Responder {
	r.callTimeout = d
	return r
}

func (r *Responder) generate(ctx context.Context, prompt string) (string, error) {
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}
	return r.model.Generate(ctx, prompt)
}

// Respond runs the analysis call followed by the reply call. It never fails:
// model errors are replaced by NeutralAnalysis and FallbackReply.
func (r *Responder) Respond(ctx context.Context, text string, history []types.ChatMessage) Result {
	result := Result{}

	analysisText, err := r.generate(ctx, analysisPrompt(text))
	if err != nil {
		r.logger.Warn("message analysis failed, using neutral analysis", "error", err)
		result.Analysis = NeutralAnalysis()
		result.Degraded = true
	} else if analysis, ok := ParseAnalysis(analysisText); ok {
		result.Analysis = analysis
	} else {
		r.logger.Warn("message analysis was not usable, using neutral analysis")
		result.Analysis = analysis
		result.Degraded = true
	}

	reply, err := r.generate(ctx, r.replyPrompt(text, history, result.Analysis))
	reply = strings.TrimSpace(reply)
	switch {
	case err != nil:
		r.logger.Warn("reply generation failed, using fallback reply", "error", err)
		result.Reply = FallbackReply
		result.Degraded = true
	case reply == "":
		r.logger.Warn("reply generation returned no text, using fallback reply")
		result.Reply = FallbackReply
		result.Degraded = true
	default:
		result.Reply = reply
	}

	return result
}

// AnalyzeSession summarises session content. The boolean is false when the
// model could not produce a usable summary.
func (r *Responder) AnalyzeSession(ctx context.Context, content string) (SessionAnalysis, bool) {
	prompt := fmt.Sprintf(`Analyze the following therapy session:

%s

Return JSON only:
{
  "themes": ["string"],
  "emotionalSummary": "string",
  "riskFindings": ["string"],
  "followUpSuggestions": ["string"]
}`, content)

	text, err := r.generate(ctx, prompt)
	if err != nil {
		r.logger.Warn("session analysis failed", "error", err)
		return SessionAnalysis{}, false
	}
	var analysis SessionAnalysis
	if err := ExtractJSON(text, &analysis); err != nil {
		r.logger.Warn("session analysis was not valid JSON", "error", err)
		return SessionAnalysis{}, false
	}
	return analysis, true
}

// Recommend asks for three to five activities suited to the mood score.
// It returns an empty list when the model fails.
func (r *Responder) Recommend(ctx context.Context, score float64, moodContext string) []types.Recommendation {
	if strings.TrimSpace(moodContext) == "" {
		moodContext = "none"
	}
	prompt := fmt.Sprintf(`Provide 3-5 activity recommendations for a person with a mood score of %v out of 100.
Context: %s
Return JSON only:
[
  {
    "name": "string",
    "reason": "string",
    "expectedBenefit": "string",
    "duration": "string",
    "difficulty": "easy|medium|hard"
  }
]`, score, moodContext)

	text, err := r.generate(ctx, prompt)
	if err != nil {
		r.logger.Warn("recommendation generation failed", "error", err)
		return []types.Recommendation{}
	}
	var items []types.Recommendation
	if err := ExtractJSON(text, &items); err != nil {
		r.logger.Warn("recommendations were not valid JSON", "error", err)
		return []types.Recommendation{}
	}
	return items
}

func analysisPrompt(text string) string {
	return fmt.Sprintf(`Analyze this message and return JSON only:

Message: %s

Required structure:
{
  "emotionalState": "string",
  "themes": ["string"],
  "riskLevel": number,
  "recommendedApproach": "string",
  "progressIndicators": ["string"]
}`, text)
}

func (r *Responder) replyPrompt(text string, history []types.ChatMessage, analysis types.Analysis) string {
	var sb strings.Builder
	sb.WriteString(r.systemPrompt)
	sb.WriteString("\n\n")

	if window := recent(history, r.historyWindow); len(window) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, msg := range window {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
		}
		sb.WriteString("\n")
	}

	analysisJSON, _ := json.Marshal(analysis)
	fmt.Fprintf(&sb, "User message: %s\nAnalysis: %s\n\nRespond with a supportive, safe message.", text, analysisJSON)
	return sb.String()
}

func recent(history []types.ChatMessage, n int) []types.ChatMessage {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
