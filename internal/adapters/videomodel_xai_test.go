package adapters

import (
	"errors"
	"testing"

	"github.com/reelforge/reelforge/internal/pipelineerr"
)

func TestClassifyXAIFailure(t *testing.T) {
	cases := []struct {
		message      string
		wantRejected bool
	}{
		{"request blocked by safety filter", true},
		{"Content Policy violation detected", true},
		{"this clip violates our usage guidelines", true},
		{"inappropriate content detected in prompt", true},
		{"internal server error, please retry", false},
		{"render timed out", false},
		{"", false},
	}

	for _, c := range cases {
		err := classifyXAIFailure(c.message)

		var rejection *pipelineerr.ContentPolicyRejection
		var transient *pipelineerr.TransientError

		switch {
		case errors.As(err, &rejection):
			if !c.wantRejected {
				t.Errorf("classifyXAIFailure(%q) = ContentPolicyRejection, want TransientError", c.message)
			}
		case errors.As(err, &transient):
			if c.wantRejected {
				t.Errorf("classifyXAIFailure(%q) = TransientError, want ContentPolicyRejection", c.message)
			}
		default:
			t.Errorf("classifyXAIFailure(%q) returned neither a rejection nor a transient error: %v", c.message, err)
		}
	}
}
