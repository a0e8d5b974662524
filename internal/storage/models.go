package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Recommendation is one stored recommendation result. List-valued fields
// are JSON arrays stored as text.
type Recommendation struct {
	ID             string
	CreatedAt      time.Time
	Description    string
	Tags           string
	Roles          string
	Mode           string
	Message        string
	Reason         string
	Shortlist      string
	Picks          string
	CatalogVersion int64
}

// AssistantVector is a cached embedding of an assistant's comparison text.
type AssistantVector struct {
	Model       string
	TextHash    string
	AssistantID string
	Embedding   []float32
}
