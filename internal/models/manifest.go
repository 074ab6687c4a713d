package models

import "time"

// Manifest describes a built store: the embedding space its vectors live in and
// the build that produced them.
type Manifest struct {
	Dimensions  int       `json:"dimensions"`
	Provider    string    `json:"provider"`
	BuildID     string    `json:"build_id,omitempty"`
	BuiltAt     time.Time `json:"built_at,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"` // corpus fingerprint at build time
	Entries     int       `json:"entries"`
}
