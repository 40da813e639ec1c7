package orchestrator

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHubDeliversToSubscriber(t *testing.T) {
	hub := NewHub()
	jobID := uuid.New()

	ch, cancel := hub.Subscribe(jobID)
	defer cancel()

	hub.Publish(jobID, Event{Name: EventStep1, Data: map[string]interface{}{"progress": 10}})

	select {
	case ev := <-ch:
		if ev.Name != EventStep1 {
			t.Errorf("got event %q, want %q", ev.Name, EventStep1)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHubPublishWithNoSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	hub.Publish(uuid.New(), Event{Name: EventStep1})
}

func TestHubCancelStopsDelivery(t *testing.T) {
	hub := NewHub()
	jobID := uuid.New()

	ch, cancel := hub.Subscribe(jobID)
	cancel()

	hub.Publish(jobID, Event{Name: EventStep1})

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after cancel")
	}
}

func TestErrorCodeClassification(t *testing.T) {
	// A nil error matches none of pipelineerr's typed errors and falls
	// through to the internal_error default.
	if got := errorCode(nil); got != "internal_error" {
		t.Errorf("errorCode(nil) = %q", got)
	}
}
