package planner

import (
	"context"
	"strings"

	"github.com/reelforge/reelforge/internal/adapters"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/pipelineerr"
)

const defaultTargetSecondsPerClip = 7

// Plan normalizes the raw script and asks the text planner for an ordered
// (spoken_text, visual_prompt) segmentation. If the model's segments don't
// concatenate back to the normalized script, it re-prompts once with a
// corrective instruction; a second violation is fatal.
func Plan(ctx context.Context, textPlanner adapters.TextPlanner, rawScript, characterName string, targetSecondsPerClip int) (normalizedScript string, segments []models.Segment, err error) {
	normalizedScript = Normalize(rawScript)
	if targetSecondsPerClip <= 0 {
		targetSecondsPerClip = defaultTargetSecondsPerClip
	}

	pairs, err := textPlanner.Plan(ctx, normalizedScript, characterName, targetSecondsPerClip, false)
	if err != nil {
		return "", nil, err
	}

	if !concatenationMatches(pairs, normalizedScript) {
		pairs, err = textPlanner.Plan(ctx, normalizedScript, characterName, targetSecondsPerClip, true)
		if err != nil {
			return "", nil, err
		}
		if !concatenationMatches(pairs, normalizedScript) {
			return "", nil, &pipelineerr.PlanningError{Reason: "segments do not reconstruct the normalized script after corrective retry"}
		}
	}

	segments = make([]models.Segment, len(pairs))
	for i, p := range pairs {
		segments[i] = models.Segment{
			Index:        i,
			SpokenText:   p.SpokenText,
			VisualPrompt: p.VisualPrompt,
		}
	}

	return normalizedScript, segments, nil
}

// concatenationMatches checks the planning invariant: joining every
// segment's spoken_text, in order, must reproduce the normalized script,
// modulo whitespace.
func concatenationMatches(pairs []adapters.SegmentPrompt, normalizedScript string) bool {
	var joined strings.Builder
	for i, p := range pairs {
		if i > 0 {
			joined.WriteString(" ")
		}
		joined.WriteString(p.SpokenText)
	}

	return collapseWhitespace(joined.String()) == collapseWhitespace(normalizedScript)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
