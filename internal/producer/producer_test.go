package producer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/reelforge/internal/adapters"
	"github.com/reelforge/reelforge/internal/artifactstore"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/pipelineerr"
)

// fakeJobPersister is an in-memory stand-in for jobstore.Store.
type fakeJobPersister struct {
	mu    sync.Mutex
	saved *models.Job
}

func (f *fakeJobPersister) Save(ctx context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = job
	return nil
}

// fakeVideoModel returns each queued result/error pair in order, one per
// GenerateVideo call, panicking if called more times than queued.
type fakeVideoModel struct {
	mu      sync.Mutex
	calls   int
	results []*adapters.VideoResult
	errs    []error
}

func (f *fakeVideoModel) GenerateVideo(ctx context.Context, req adapters.VideoRequest) (*adapters.VideoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.errs) {
		panic(fmt.Sprintf("fakeVideoModel: unexpected call %d", i+1))
	}
	return f.results[i], f.errs[i]
}

// newTestArtifactStore spins up an in-memory Supabase-Storage-compatible
// server so Put/SignedURL calls in the producer succeed without a real
// backend.
func newTestArtifactStore(t *testing.T) *artifactstore.Store {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/storage/v1/object/sign/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"signedURL": "/signed%s"}`, r.URL.Path)
	})
	mux.HandleFunc("/storage/v1/object/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return artifactstore.New(server.URL, "test-service-key", "test-bucket")
}

func TestClassifyGenErrTransientRetriesUntilBudget(t *testing.T) {
	transient := &pipelineerr.TransientError{Cause: errors.New("boom")}

	for attempts := 0; attempts < MaxTransientAttempts-1; attempts++ {
		if got := classifyGenErr(transient, false, false, attempts); got != actionRetrySameReference {
			t.Fatalf("attempt %d: got %v, want actionRetrySameReference", attempts, got)
		}
	}
	if got := classifyGenErr(transient, false, false, MaxTransientAttempts); got != actionFail {
		t.Fatalf("got %v, want actionFail once budget is exhausted", got)
	}
}

func TestClassifyGenErrRejectionFallsBackOnce(t *testing.T) {
	rejection := &pipelineerr.ContentPolicyRejection{Reason: "unsafe"}

	if got := classifyGenErr(rejection, false, false, 0); got != actionFallbackToCharacterImage {
		t.Fatalf("got %v, want actionFallbackToCharacterImage on first rejection off the character image", got)
	}
	if got := classifyGenErr(rejection, true, false, 0); got != actionFail {
		t.Fatalf("got %v, want actionFail once fallback already used", got)
	}
	if got := classifyGenErr(rejection, false, true, 0); got != actionFail {
		t.Fatalf("got %v, want actionFail when already on the character image", got)
	}
}

func TestClassifyGenErrUnknownErrorFails(t *testing.T) {
	if got := classifyGenErr(errors.New("weird"), false, false, 0); got != actionFail {
		t.Fatalf("got %v, want actionFail for an unclassified error", got)
	}
}

// TestGenerateWithRetryFallbackSetsRetryCountOne covers spec scenario 3: a
// content-policy rejection on the continuity frame falls back to the
// character image once, succeeds, and leaves RetryCount at 1.
func TestGenerateWithRetryFallbackSetsRetryCountOne(t *testing.T) {
	job := &models.Job{
		ID:                uuid.New(),
		CharacterImageURL: "https://example.com/character.png",
		Segments:          []models.Segment{{Index: 0, VisualPrompt: "a dog runs across a field"}},
		Clips:             []models.Clip{{Index: 0, Status: models.ClipStatusAbsent}},
	}

	mux, err := adapters.NewMuxTool(t.TempDir())
	if err != nil {
		t.Fatalf("failed to build mux tool: %v", err)
	}

	video := &fakeVideoModel{
		errs:    []error{&pipelineerr.ContentPolicyRejection{Reason: "unsafe"}, nil},
		results: []*adapters.VideoResult{nil, {VideoBytes: []byte("fake-mp4-bytes"), DurationSeconds: 8}},
	}
	jobs := &fakeJobPersister{}

	p := &Producer{
		Artifacts:  newTestArtifactStore(t),
		Jobs:       jobs,
		VideoModel: video,
		Mux:        mux,
	}

	// The continuity frame (the previous clip's last frame) is never equal
	// to the character image, which is what lets the fallback branch fire.
	continuityReferenceURL := "https://example.com/continuity-frame.png"

	if err := p.generateWithRetry(context.Background(), job, 0, continuityReferenceURL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clip := job.Clips[0]
	if clip.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1 after a rejection-then-fallback-success", clip.RetryCount)
	}
	if clip.Status != models.ClipStatusCompleted {
		t.Errorf("Status = %v, want completed", clip.Status)
	}
	if clip.ArtifactURL == "" {
		t.Error("expected a signed artifact URL after a successful fallback generation")
	}
	if video.calls != 2 {
		t.Errorf("GenerateVideo called %d times, want 2 (reject, then succeed on fallback)", video.calls)
	}
}

func TestReferenceImageUsesCharacterImageForFirstClip(t *testing.T) {
	job := &models.Job{
		ID:                uuid.New(),
		CharacterImageURL: "https://example.com/character.png",
		Segments:          []models.Segment{{Index: 0}},
		Clips:             []models.Clip{{Index: 0, Status: models.ClipStatusAbsent}},
	}
	p := &Producer{}

	url, continuityKey, err := p.referenceImage(context.Background(), job, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != job.CharacterImageURL {
		t.Errorf("got %q, want character image URL for clip 0", url)
	}
	if continuityKey != "" {
		t.Errorf("got continuity key %q, want none for the character image path", continuityKey)
	}
}

func TestTransientBackoffGrowsThenCaps(t *testing.T) {
	cap := 10 * time.Second

	if got := transientBackoff(1, cap); got != 2*time.Second {
		t.Errorf("attempt 1: got %v, want 2s", got)
	}
	if got := transientBackoff(2, cap); got != 4*time.Second {
		t.Errorf("attempt 2: got %v, want 4s", got)
	}
	if got := transientBackoff(5, cap); got != cap {
		t.Errorf("attempt 5: got %v, want capped at %v", got, cap)
	}
}

func TestProducerTimeoutDefaults(t *testing.T) {
	p := &Producer{}
	if got := p.clipGenTimeout(); got != defaultClipGenTimeout {
		t.Errorf("got %v, want default %v", got, defaultClipGenTimeout)
	}
	if got := p.retryBackoffCap(); got != defaultRetryBackoffCap {
		t.Errorf("got %v, want default %v", got, defaultRetryBackoffCap)
	}

	p2 := &Producer{ClipGenTimeout: time.Minute, RetryBackoffCap: 5 * time.Second}
	if got := p2.clipGenTimeout(); got != time.Minute {
		t.Errorf("got %v, want configured 1m", got)
	}
	if got := p2.retryBackoffCap(); got != 5*time.Second {
		t.Errorf("got %v, want configured 5s", got)
	}
}

func TestReferenceImageFallsBackWhenPreviousClipHasNoArtifact(t *testing.T) {
	job := &models.Job{
		ID:                uuid.New(),
		CharacterImageURL: "https://example.com/character.png",
		Segments:          []models.Segment{{Index: 0}, {Index: 1}},
		Clips: []models.Clip{
			{Index: 0, Status: models.ClipStatusFailed},
			{Index: 1, Status: models.ClipStatusAbsent},
		},
	}
	p := &Producer{}

	url, continuityKey, err := p.referenceImage(context.Background(), job, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != job.CharacterImageURL {
		t.Errorf("got %q, want character image URL when previous clip has no artifact", url)
	}
	if continuityKey != "" {
		t.Errorf("got continuity key %q, want none when falling back to the character image", continuityKey)
	}
}
