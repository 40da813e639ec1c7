package adapters

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/reelforge/reelforge/internal/pipelineerr"
)

// MuxTool wraps the ffmpeg/ffprobe subprocess boundary the pipeline uses for
// every local media operation: concatenation, audio replacement, last-frame
// extraction, and subtitle burn-in.
type MuxTool struct {
	tempDir string
}

func NewMuxTool(tempDir string) (*MuxTool, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mux temp dir: %w", err)
	}
	return &MuxTool{tempDir: tempDir}, nil
}

func (m *MuxTool) TempFile(name string) string {
	return filepath.Join(m.tempDir, name)
}

func (m *MuxTool) Cleanup(paths ...string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

// ConcatenateHTTPS builds a concat-demuxer manifest referencing each clip by
// its C1 signed URL directly, so ffmpeg reads the clips over HTTPS instead
// of requiring them to be downloaded to the orchestrator host first.
func (m *MuxTool) ConcatenateHTTPS(ctx context.Context, clipURLs []string, outputPath string) error {
	if len(clipURLs) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	f, err := os.CreateTemp(m.tempDir, "concat_list_*.txt")
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	listPath := f.Name()
	for _, url := range clipURLs {
		fmt.Fprintf(f, "file '%s'\n", url)
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{
		"-protocol_whitelist", "file,http,https,tcp,tls,crypto",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	}

	return m.run(ctx, "concatenate", "ffmpeg", args...)
}

// ReplaceAudio discards a video's native audio track and muxes in the given
// audio file instead. If the video is shorter than the audio, the last
// frame is frozen (tpad) to extend the video until the audio finishes.
func (m *MuxTool) ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	filterExpr := "[0:v]tpad=stop_mode=clone:stop_duration=60[v]"

	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-filter_complex", filterExpr,
		"-map", "[v]",
		"-map", "1:a",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		"-y",
		outputPath,
	}

	return m.run(ctx, "replace_audio", "ffmpeg", args...)
}

// ExtractLastFrame pulls the final frame of a video as a still image, used
// by the Clip Producer to build the continuity frame passed into the next
// clip's generation request.
func (m *MuxTool) ExtractLastFrame(ctx context.Context, videoPath, outputImagePath string) error {
	args := []string{
		"-sseof", "-1",
		"-i", videoPath,
		"-frames:v", "1",
		"-y",
		outputImagePath,
	}

	return m.run(ctx, "extract_last_frame", "ffmpeg", args...)
}

// BurnSubtitles overlays an ASS subtitle track into a video, re-encoding
// the video stream while copying audio untouched.
func (m *MuxTool) BurnSubtitles(ctx context.Context, videoPath, assPath, outputPath string) error {
	vf := fmt.Sprintf("ass='%s'", escapeFFmpegFilterPath(assPath))

	args := []string{
		"-i", videoPath,
		"-vf", vf,
		"-c:v", "libx264",
		"-c:a", "copy",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	return m.run(ctx, "burn_subtitles", "ffmpeg", args...)
}

// MixAudioLayers combines a narration track with optional background music
// and a sound effect into one track, narration at full volume and the
// other layers ducked under it, trimmed to narration's length.
// musicPath and/or sfxPath may be empty to skip that layer; at least one
// must be set.
func (m *MuxTool) MixAudioLayers(ctx context.Context, narrationPath, musicPath, sfxPath, outputPath string) error {
	inputs := []string{"-i", narrationPath}
	weights := []string{"1.0"}

	if musicPath != "" {
		inputs = append(inputs, "-i", musicPath)
		weights = append(weights, "0.25")
	}
	if sfxPath != "" {
		inputs = append(inputs, "-i", sfxPath)
		weights = append(weights, "0.8")
	}
	if len(weights) == 1 {
		return fmt.Errorf("mix audio layers called with no music or sfx to mix")
	}

	filter := fmt.Sprintf("amix=inputs=%d:duration=first:weights=%s", len(weights), strings.Join(weights, " "))
	args := append(inputs, "-filter_complex", filter, "-c:a", "aac", "-y", outputPath)

	return m.run(ctx, "mix_audio_layers", "ffmpeg", args...)
}

// AudioDuration returns the duration of an audio file in milliseconds.
func (m *MuxTool) AudioDuration(ctx context.Context, audioPath string) (int, error) {
	return m.probeDurationMs(ctx, audioPath)
}

// VideoDuration returns the duration of a video file in milliseconds.
func (m *MuxTool) VideoDuration(ctx context.Context, videoPath string) (int, error) {
	return m.probeDurationMs(ctx, videoPath)
}

func (m *MuxTool) probeDurationMs(ctx context.Context, path string) (int, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return 0, &pipelineerr.MuxError{Operation: "probe_duration", Stderr: stderr.String()}
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration output %q: %w", output, err)
	}

	return int(durationSec * 1000), nil
}

func (m *MuxTool) run(ctx context.Context, operation, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &pipelineerr.MuxError{Operation: operation, Stderr: stderr.String()}
	}
	return nil
}

func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}
