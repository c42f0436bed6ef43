// Package snapshot captures user-visible page state into a serializable
// record and replays it against a freshly (re)loaded UI. Snapshots exist so
// the automation can reload pages and switch accounts without destroying
// what the user typed and selected.
package snapshot

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store TTLs. A snapshot older than its store's TTL is discarded unread.
const (
	// SessionTTL bounds the short-lived, single-navigation store.
	SessionTTL = 5 * time.Minute
	// DurableTTL bounds the cross-navigation store; reloads the engine
	// triggers itself complete well inside it.
	DurableTTL = 2 * time.Minute
)

// ImageRef records one occupied slot at capture time.
type ImageRef struct {
	URL         string `json:"url"`
	SlotIndex   int    `json:"slot_index"`
	ContainerID string `json:"container_id"`
}

// PageStateSnapshot is a durable record of user input on one page.
type PageStateSnapshot struct {
	InputsByKey         map[string]string `json:"inputs_by_key"`
	Images              []ImageRef        `json:"images"`
	SelectedModel       string            `json:"selected_model,omitempty"`
	SelectedAspectRatio string            `json:"selected_aspect_ratio,omitempty"`
	Path                string            `json:"path"`
	SavedAt             time.Time         `json:"saved_at"`
}

// Empty reports whether the snapshot holds nothing worth restoring.
func (s *PageStateSnapshot) Empty() bool {
	return len(s.InputsByKey) == 0 && len(s.Images) == 0 &&
		s.SelectedModel == "" && s.SelectedAspectRatio == ""
}

// Marshal serializes the snapshot.
func (s *PageStateSnapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal deserializes a snapshot.
func Unmarshal(data []byte) (*PageStateSnapshot, error) {
	var s PageStateSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
