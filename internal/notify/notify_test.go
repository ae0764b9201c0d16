package notify

import (
	"encoding/json"
	"testing"
	"time"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
)

func TestNewNATSNotifierRequiresURL(t *testing.T) {
	_, err := NewNATSNotifier(config.NotifyConfig{})
	if err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestEventJSONShape(t *testing.T) {
	event := Event{
		BuildID:   "b-1",
		Title:     "Example Book",
		Format:    "pdf",
		Outcome:   "success",
		Revision:  "a1b2c3d4",
		Artifact:  "dist/example-book.pdf",
		Chapters:  3,
		Blocks:    5,
		Duration:  "2.1s",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}

	if decoded["build_id"] != "b-1" {
		t.Errorf("expected build_id b-1, got %v", decoded["build_id"])
	}
	if decoded["format"] != "pdf" {
		t.Errorf("expected format pdf, got %v", decoded["format"])
	}
	if _, present := decoded["error"]; present {
		t.Error("empty error should be omitted")
	}
	if _, present := decoded["artifact"]; !present {
		t.Error("artifact should be present")
	}
}
