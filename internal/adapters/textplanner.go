package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"

	"github.com/reelforge/reelforge/internal/pipelineerr"
)

// SegmentPrompt is one (spoken_text, visual_prompt) pair the planner
// requests from the text model.
type SegmentPrompt struct {
	SpokenText   string `json:"spoken_text"`
	VisualPrompt string `json:"visual_prompt"`
}

// planResponse mirrors the JSON object the text model returns.
type planResponse struct {
	Segments []SegmentPrompt `json:"segments"`
}

// TextPlanner is the C3 text-model adapter: split a normalized script into
// shot-sized (spoken_text, visual_prompt) pairs.
type TextPlanner interface {
	Plan(ctx context.Context, normalizedScript, characterName string, targetSecondsPerClip int, corrective bool) ([]SegmentPrompt, error)
}

// OpenAITextPlanner calls an OpenAI chat model in JSON mode to produce the
// segment/prompt pairing, the same request shape the source pipeline used
// for its plan-generation call.
type OpenAITextPlanner struct {
	client *openai.Client
	model  string
}

func NewOpenAITextPlanner(apiKey string) *OpenAITextPlanner {
	return &OpenAITextPlanner{
		client: openai.NewClient(apiKey),
		model:  "gpt-5-mini",
	}
}

var _ TextPlanner = (*OpenAITextPlanner)(nil)

func (p *OpenAITextPlanner) Plan(ctx context.Context, normalizedScript, characterName string, targetSecondsPerClip int, corrective bool) ([]SegmentPrompt, error) {
	systemPrompt := buildPlanSystemPrompt(characterName, targetSecondsPerClip, corrective)
	userPrompt := fmt.Sprintf("Script to segment:\n\n%s", normalizedScript)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		return nil, &pipelineerr.TransientError{Cause: fmt.Errorf("text planner request failed: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &pipelineerr.PlanningError{Reason: "text model returned no choices"}
	}

	rawContent := resp.Choices[0].Message.Content
	const maxLogLen = 2000

	var plan planResponse
	if err := json.Unmarshal([]byte(rawContent), &plan); err != nil {
		log.Printf("[text-planner] parse failed: %v", err)
		log.Printf("[text-planner] raw response: %s", truncateForLog(rawContent, maxLogLen))
		return nil, &pipelineerr.PlanningError{Reason: fmt.Sprintf("failed to parse plan: %v", err)}
	}

	if len(plan.Segments) == 0 {
		log.Printf("[text-planner] plan has no segments, raw: %s", truncateForLog(rawContent, maxLogLen))
		return nil, &pipelineerr.PlanningError{Reason: "plan has no segments"}
	}

	for i, seg := range plan.Segments {
		if seg.SpokenText == "" || seg.VisualPrompt == "" {
			return nil, &pipelineerr.PlanningError{Reason: fmt.Sprintf("segment %d missing spoken_text or visual_prompt", i)}
		}
	}

	return plan.Segments, nil
}

func buildPlanSystemPrompt(characterName string, targetSecondsPerClip int, corrective bool) string {
	who := "the narrator"
	if characterName != "" {
		who = characterName
	}

	prompt := fmt.Sprintf(`You are a video production assistant splitting a finished advertisement script into shot-sized segments for %s.

Return a JSON object: {"segments": [{"spoken_text": "...", "visual_prompt": "..."}]}.

Rules:
- Each segment's spoken_text is a VERBATIM, non-overlapping slice of the input script. Do not paraphrase, add, or drop any words.
- The concatenation of every segment's spoken_text, in order, must reproduce the input script exactly (whitespace differences are fine, wording is not).
- Aim for roughly %d seconds of spoken narration per segment (about 2-3 short sentences).
- visual_prompt is a director's shot description: what happens on screen while spoken_text is narrated. Present tense, no audio cues, no dialogue.
- Never leave spoken_text or visual_prompt empty.`, who, targetSecondsPerClip)

	if corrective {
		prompt += `

IMPORTANT: Your previous attempt violated the verbatim-concatenation rule. Re-read the script carefully and make sure every word appears in exactly one segment, in order, with nothing added or omitted.`
	}

	return prompt
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
