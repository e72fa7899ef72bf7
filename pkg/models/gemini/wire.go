package gemini

import (
	"strings"

	"google.golang.org/genai"

	"github.com/mariozechner/coding-agent/chat/pkg/models"
	"github.com/mariozechner/coding-agent/chat/pkg/store"
)

// Part is one text fragment on the wire.
type Part struct {
	Text    string `json:"text"`
	Thought bool   `json:"thought,omitempty"`
}

// Content is one conversation turn on the wire.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// GenerationConfig holds the sampling parameters sent with every call.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// GenerateContentRequest is the body of a generateContent call.
type GenerateContentRequest struct {
	Contents         []Content              `json:"contents"`
	GenerationConfig GenerationConfig       `json:"generationConfig"`
	SafetySettings   []*genai.SafetySetting `json:"safetySettings"`
}

// Candidate is one proposed completion.
type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// PromptFeedback explains why a prompt produced no candidates.
type PromptFeedback struct {
	BlockReason genai.BlockedReason `json:"blockReason,omitempty"`
}

// GenerateContentResponse is the subset of the reply the chat consumes.
type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
}

// DefaultGenerationConfig is used for every request.
var DefaultGenerationConfig = GenerationConfig{
	Temperature:     0.9,
	TopP:            1,
	TopK:            1,
	MaxOutputTokens: 2048,
}

// DefaultSafetySettings returns the thresholds sent with every request.
func DefaultSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		})
	}
	return settings
}

// BuildRequest converts the full history into a request envelope.
// Every turn and every segment is sent; the endpoint keeps no state.
func BuildRequest(history []store.Turn) GenerateContentRequest {
	contents := make([]Content, 0, len(history))
	for _, turn := range history {
		role := "user"
		if turn.Role == store.RoleModel {
			role = "model"
		}
		parts := make([]Part, 0, len(turn.Segments))
		for _, seg := range turn.Segments {
			parts = append(parts, Part{Text: seg.Text})
		}
		contents = append(contents, Content{Role: role, Parts: parts})
	}
	return GenerateContentRequest{
		Contents:         contents,
		GenerationConfig: DefaultGenerationConfig,
		SafetySettings:   DefaultSafetySettings(),
	}
}

// Normalize maps a decoded reply onto a TurnResult.
// Candidate text always wins over a block reason.
func Normalize(resp GenerateContentResponse) models.TurnResult {
	for _, cand := range resp.Candidates {
		if text, ok := candidateText(cand); ok {
			return models.Success(text)
		}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return models.Blocked(string(resp.PromptFeedback.BlockReason))
	}
	return models.Unavailable("no response or unexpected shape", nil)
}

// candidateText joins the non-thought parts of c. A candidate whose parts
// are all empty still counts as an answer.
func candidateText(c Candidate) (string, bool) {
	if c.Content == nil {
		return "", false
	}
	var sb strings.Builder
	var found bool
	for _, p := range c.Content.Parts {
		if p.Thought {
			continue
		}
		found = true
		sb.WriteString(p.Text)
	}
	return sb.String(), found
}
