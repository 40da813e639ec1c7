// Package subtitles generates TikTok-style word-highlighted ASS captions
// for the Assembly step's optional subtitle burn-in.
package subtitles

import (
	"fmt"
	"os"
	"strings"

	"github.com/reelforge/reelforge/internal/models"
)

const (
	wordsPerChunk = 4

	fontName = "Noto Sans"
	fontSize = 124

	colorWhite     = "&H00FFFFFF"
	colorBlack     = "&H00000000"
	colorPurple    = "&H00CC3299"
	colorSemiBlack = "&H80000000"

	outlineNormal    = 6
	outlineHighlight = 16

	marginV = 440
)

// word is one spoken token paced across the segment's spoken duration, since
// no per-word transcription is available: word timing is derived from the
// segment's own duration, not a speech-to-text pass.
type word struct {
	text  string
	start float64
	end   float64
}

// Generate builds an ASS subtitle file spanning every segment/clip pair,
// pacing each segment's words evenly across the clip's actual duration.
func Generate(segments []models.Segment, clips []models.Clip, outputPath string) error {
	if len(segments) == 0 {
		return fmt.Errorf("no segments to generate subtitles from")
	}

	words := layoutWords(segments, clips)
	if len(words) == 0 {
		return fmt.Errorf("no words to generate subtitles from")
	}

	chunks := chunkWords(words, wordsPerChunk)

	var sb strings.Builder
	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	sb.WriteString("PlayResX: 2160\n")
	sb.WriteString("PlayResY: 3840\n")
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	sb.WriteString(fmt.Sprintf(
		"Style: Default,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,2,0,1,%d,0,2,40,40,%d,1\n\n",
		fontName, fontSize, colorWhite, colorWhite, colorBlack, colorSemiBlack, outlineNormal, marginV,
	))

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, chunk := range chunks {
		for i, w := range chunk {
			startTime := w.start
			var endTime float64
			if i < len(chunk)-1 {
				endTime = chunk[i+1].start
			} else {
				endTime = w.end
			}

			sb.WriteString(fmt.Sprintf(
				"Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
				formatASSTime(startTime),
				formatASSTime(endTime),
				highlightedText(chunk, i),
			))
		}
	}

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write ASS subtitle file: %w", err)
	}
	return nil
}

// layoutWords paces each segment's words evenly across its clip's actual
// duration, accumulating a running offset across segments.
func layoutWords(segments []models.Segment, clips []models.Clip) []word {
	durations := make(map[int]float64, len(clips))
	for _, c := range clips {
		durations[c.SegmentRef] = c.DurationSeconds
	}

	var out []word
	offset := 0.0
	for _, seg := range segments {
		tokens := strings.Fields(seg.SpokenText)
		if len(tokens) == 0 {
			continue
		}

		duration := durations[seg.Index]
		if duration <= 0 {
			duration = float64(len(tokens)) * 0.4 // fallback pace, ~150 WPM
		}

		perWord := duration / float64(len(tokens))
		for i, tok := range tokens {
			start := offset + float64(i)*perWord
			end := start + perWord
			out = append(out, word{text: tok, start: start, end: end})
		}
		offset += duration
	}
	return out
}

func chunkWords(words []word, chunkSize int) [][]word {
	var chunks [][]word
	var current []word

	for _, w := range words {
		current = append(current, w)
		isSentenceEnd := strings.ContainsAny(w.text, ".!?")
		if len(current) >= chunkSize || (isSentenceEnd && len(current) >= 2) {
			chunks = append(chunks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func highlightedText(chunk []word, activeIdx int) string {
	var parts []string
	for i, w := range chunk {
		clean := strings.ToUpper(strings.TrimSpace(w.text))
		if clean == "" {
			continue
		}
		if i == activeIdx {
			parts = append(parts, fmt.Sprintf("{\\3c%s\\bord%d}%s{\\r}", colorPurple, outlineHighlight, clean))
		} else {
			parts = append(parts, clean)
		}
	}
	return strings.Join(parts, " ")
}

func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	centiseconds := int((seconds - float64(int(seconds))) * 100)
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centiseconds)
}
