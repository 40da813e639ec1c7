package artifactstore

import "testing"

func TestKeyHelpers(t *testing.T) {
	userID := "user-42"
	jobID := "8f14e45f-ceea-4b7c-9c3d-000000000001"
	prefix := userID + "/" + jobID

	if got, want := CharacterImageKey(userID, jobID), prefix+"/character_image.png"; got != want {
		t.Errorf("CharacterImageKey = %q, want %q", got, want)
	}
	if got, want := ClipKey(userID, jobID, 3), prefix+"/clips/clip_003.mp4"; got != want {
		t.Errorf("ClipKey = %q, want %q", got, want)
	}
	if got, want := PromptKey(userID, jobID, 3), prefix+"/prompts/prompt_003.txt"; got != want {
		t.Errorf("PromptKey = %q, want %q", got, want)
	}
	if got, want := MergedKey(userID, jobID), prefix+"/merged.mp4"; got != want {
		t.Errorf("MergedKey = %q, want %q", got, want)
	}
	if got, want := FinalKey(userID, jobID), prefix+"/final.mp4"; got != want {
		t.Errorf("FinalKey = %q, want %q", got, want)
	}
	if got, want := ClipsPrefix(userID, jobID), prefix+"/clips/"; got != want {
		t.Errorf("ClipsPrefix = %q, want %q", got, want)
	}
}

func TestKeyHelpersDefaultToAnonymousUser(t *testing.T) {
	jobID := "8f14e45f-ceea-4b7c-9c3d-000000000001"
	if got, want := ClipKey("", jobID, 0), anonymousUser+"/"+jobID+"/clips/clip_000.mp4"; got != want {
		t.Errorf("ClipKey with empty userID = %q, want %q", got, want)
	}
}

func TestRetryDelayBounded(t *testing.T) {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		d := retryDelay(attempt)
		if d <= 0 {
			t.Errorf("attempt %d: expected positive delay, got %v", attempt, d)
		}
		if d > maxRetryDelay+maxRetryDelay/4 {
			t.Errorf("attempt %d: delay %v exceeds max+jitter bound", attempt, d)
		}
	}
}

func TestIsRetryableStatus(t *testing.T) {
	retryable := []int{429, 408, 502, 503, 504}
	for _, s := range retryable {
		if !isRetryableStatus(s) {
			t.Errorf("expected status %d to be retryable", s)
		}
	}
	nonRetryable := []int{400, 401, 403, 404, 413}
	for _, s := range nonRetryable {
		if isRetryableStatus(s) {
			t.Errorf("expected status %d to be non-retryable", s)
		}
	}
}
